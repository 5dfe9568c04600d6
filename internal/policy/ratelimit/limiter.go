// Package ratelimit implements the request pacer shared by every stage of a sync run.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/feedsync/internal/metrics"
	"github.com/JakeFAU/feedsync/internal/reconcile"
)

// Limiter spaces outbound requests at least one interval apart.
type Limiter struct {
	limiter  *rate.Limiter
	interval time.Duration
}

var _ reconcile.Pacer = (*Limiter)(nil)

// Config holds pacer configuration.
type Config struct {
	// Interval is the minimum gap between requests; zero or negative disables pacing.
	Interval time.Duration
}

// New creates a new Limiter. The first Wait never blocks.
func New(cfg Config) *Limiter {
	limit := rate.Inf
	if cfg.Interval > 0 {
		limit = rate.Every(cfg.Interval)
	}
	return &Limiter{
		limiter:  rate.NewLimiter(limit, 1),
		interval: cfg.Interval,
	}
}

// Interval reports the configured gap.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}

// Wait blocks until the next request may be sent, respecting the context.
func (l *Limiter) Wait(ctx context.Context) error {
	start := time.Now()
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	// An immediately available token is not a delay.
	if d := time.Since(start); d > time.Millisecond {
		metrics.ObservePacingDelay(d)
	}
	return nil
}
