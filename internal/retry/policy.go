// Package retry retries store operations that fail because the database connection
// is unavailable.
package retry

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultMaxRetries is the number of retries after the first attempt.
	DefaultMaxRetries = 3
	// DefaultDelay is the base backoff step.
	DefaultDelay = time.Second
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Observer is told about every retry before its delay.
type Observer func(op string, attempt int, err error)

// LinearPolicy retries transient failures with a delay that grows by a fixed step:
// delay, 2*delay, 3*delay.
type LinearPolicy struct {
	maxRetries int
	delay      time.Duration
	sleep      Sleeper
	observe    Observer
	classify   func(error) bool
	logger     *zap.Logger
}

// Option customizes a LinearPolicy.
type Option func(*LinearPolicy)

// WithSleeper replaces the timer based wait.
func WithSleeper(s Sleeper) Option {
	return func(p *LinearPolicy) { p.sleep = s }
}

// WithObserver registers a callback run before each retry.
func WithObserver(o Observer) Option {
	return func(p *LinearPolicy) { p.observe = o }
}

// WithClassifier replaces IsTransient as the retry predicate.
func WithClassifier(fn func(error) bool) Option {
	return func(p *LinearPolicy) { p.classify = fn }
}

// WithLogger sets the logger used to report retries.
func WithLogger(l *zap.Logger) Option {
	return func(p *LinearPolicy) { p.logger = l }
}

// NewLinearPolicy builds a policy. Negative maxRetries disables retries; a
// non-positive delay selects DefaultDelay.
func NewLinearPolicy(maxRetries int, delay time.Duration, opts ...Option) *LinearPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if delay <= 0 {
		delay = DefaultDelay
	}
	p := &LinearPolicy{
		maxRetries: maxRetries,
		delay:      delay,
		sleep:      timerSleep,
		classify:   IsTransient,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ShouldRetry reports whether a failure of the given 1-based attempt may be retried.
func (p *LinearPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt > p.maxRetries {
		return false
	}
	return p.classify(err)
}

// Backoff returns the wait before retry number attempt.
func (p *LinearPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.delay * time.Duration(attempt)
}

// Do runs fn until it succeeds, fails with a non-transient error, or the retries are
// used up. The last error is returned wrapped.
func (p *LinearPolicy) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !p.ShouldRetry(err, attempt) {
			if attempt > 1 {
				return fmt.Errorf("%s failed after %d attempts: %w", op, attempt, err)
			}
			return err
		}
		wait := p.Backoff(attempt)
		p.logger.Warn("transient store failure, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		if p.observe != nil {
			p.observe(op, attempt, err)
		}
		if err := p.sleep(ctx, wait); err != nil {
			return fmt.Errorf("%s retry wait: %w", op, err)
		}
	}
}

func timerSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
