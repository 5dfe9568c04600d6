// Package scheduler runs sync jobs on a cron schedule and on demand, never more than
// one at a time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/feedsync/internal/reconcile"
)

// ErrRunInProgress is returned when a run is requested while another is active.
var ErrRunInProgress = errors.New("sync run already in progress")

// ErrStopped is returned when a run is requested after Stop.
var ErrStopped = errors.New("scheduler stopped")

// RunFunc performs one sync run.
type RunFunc func(ctx context.Context) (reconcile.Report, error)

// Scheduler serializes sync runs started by cron ticks and manual triggers.
type Scheduler struct {
	run    RunFunc
	cron   *cron.Cron
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
	stopped bool
	last    *Result
}

// New builds a Scheduler. Runs inherit ctx and stop when it is cancelled or Stop is called.
func New(ctx context.Context, run RunFunc, logger *zap.Logger) (*Scheduler, error) {
	if run == nil {
		return nil, errors.New("run func is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("scheduler")
	runCtx, cancel := context.WithCancel(ctx)
	return &Scheduler{
		run:    run,
		cron:   cron.New(cron.WithLogger(cronLogger{l: logger.Sugar()})),
		logger: logger,
		ctx:    runCtx,
		cancel: cancel,
	}, nil
}

// Schedule registers spec (standard five-field cron or a descriptor such as "@every 1h").
func (s *Scheduler) Schedule(spec string) error {
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	s.logger.Info("sync scheduled", zap.String("schedule", spec))
	return nil
}

// Start begins firing scheduled runs.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule, cancels an active run and waits for it to return or for
// ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	cronDone := s.cron.Stop()
	s.cancel()

	runsDone := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(runsDone)
	}()
	for _, done := range []<-chan struct{}{cronDone.Done(), runsDone} {
		select {
		case <-done:
		case <-ctx.Done():
			return fmt.Errorf("stop scheduler: %w", ctx.Err())
		}
	}
	return nil
}

// Trigger starts a run in the background. It returns ErrRunInProgress if one is active.
func (s *Scheduler) Trigger() error {
	if err := s.acquire(); err != nil {
		return err
	}
	go func() {
		defer s.wg.Done()
		s.execute(s.ctx)
	}()
	return nil
}

// RunNow performs a run synchronously. It returns ErrRunInProgress if one is active.
func (s *Scheduler) RunNow(ctx context.Context) (reconcile.Report, error) {
	if err := s.acquire(); err != nil {
		return reconcile.Report{}, err
	}
	defer s.wg.Done()
	return s.execute(ctx)
}

// Result is a finished run.
type Result struct {
	Report reconcile.Report
	Err    error
}

// Last returns the most recently finished run.
func (s *Scheduler) Last() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Result{}, false
	}
	return *s.last, true
}

// Running reports whether a run is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) tick() {
	if err := s.acquire(); err != nil {
		s.logger.Warn("skipping scheduled sync", zap.Error(err))
		return
	}
	defer s.wg.Done()
	s.execute(s.ctx)
}

// acquire claims the single run slot. On success the caller owns one wg count and
// must call wg.Done when the run returns.
func (s *Scheduler) acquire() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if s.running {
		return ErrRunInProgress
	}
	s.running = true
	s.wg.Add(1)
	return nil
}

func (s *Scheduler) execute(ctx context.Context) (reconcile.Report, error) {
	report, err := s.run(ctx)
	if err != nil {
		s.logger.Error("sync run failed", zap.String("run_id", report.RunID), zap.Error(err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.last = &Result{Report: report, Err: err}
	return report, err
}

type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debugw("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
