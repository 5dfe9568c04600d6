package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/feedsync/internal/reconcile"
)

// blockingRun returns a RunFunc that waits on release and counts invocations.
func blockingRun(release <-chan struct{}, calls *atomic.Int32) RunFunc {
	return func(ctx context.Context) (reconcile.Report, error) {
		n := calls.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
			return reconcile.Report{RunID: "cancelled"}, ctx.Err()
		}
		return reconcile.Report{RunID: fmt.Sprintf("run-%d", n)}, nil
	}
}

func TestRunNowRecordsLast(t *testing.T) {
	t.Parallel()

	s, err := New(context.Background(), func(context.Context) (reconcile.Report, error) {
		return reconcile.Report{RunID: "run-1"}, nil
	}, nil)
	require.NoError(t, err)

	_, ok := s.Last()
	assert.False(t, ok)

	report, err := s.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "run-1", report.RunID)

	last, ok := s.Last()
	require.True(t, ok)
	assert.Equal(t, "run-1", last.Report.RunID)
	require.NoError(t, last.Err)
	assert.False(t, s.Running())
}

func TestRunNowRecordsFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("sitemap index unavailable")
	s, err := New(context.Background(), func(context.Context) (reconcile.Report, error) {
		return reconcile.Report{RunID: "run-x", FailedState: reconcile.StateCountCompare}, boom
	}, nil)
	require.NoError(t, err)

	_, err = s.RunNow(context.Background())
	require.ErrorIs(t, err, boom)
	last, ok := s.Last()
	require.True(t, ok)
	require.ErrorIs(t, last.Err, boom)
	assert.True(t, last.Report.Failed())
}

func TestTriggerRejectsOverlap(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	var calls atomic.Int32
	s, err := New(context.Background(), blockingRun(release, &calls), nil)
	require.NoError(t, err)

	require.NoError(t, s.Trigger())
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, s.Running())

	require.ErrorIs(t, s.Trigger(), ErrRunInProgress)
	_, err = s.RunNow(context.Background())
	require.ErrorIs(t, err, ErrRunInProgress)

	s.tick()
	assert.Equal(t, int32(1), calls.Load(), "tick must skip while a run is active")

	close(release)
	require.Eventually(t, func() bool { return !s.Running() }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Trigger())
	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, int32(2), calls.Load())
}

func TestStopCancelsActiveRun(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	s, err := New(context.Background(), blockingRun(make(chan struct{}), &calls), nil)
	require.NoError(t, err)
	s.Start()

	require.NoError(t, s.Trigger())
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	last, ok := s.Last()
	require.True(t, ok)
	require.ErrorIs(t, last.Err, context.Canceled)
}

func TestStoppedSchedulerRefusesRuns(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	s, err := New(context.Background(), func(context.Context) (reconcile.Report, error) {
		calls.Add(1)
		return reconcile.Report{}, nil
	}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	require.ErrorIs(t, s.Trigger(), ErrStopped)
	_, err = s.RunNow(context.Background())
	require.ErrorIs(t, err, ErrStopped)
	s.tick()

	assert.Zero(t, calls.Load())
	assert.False(t, s.Running())
	_, ok := s.Last()
	assert.False(t, ok)
}

func TestStopWaitsForConcurrentTriggers(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	close(release)
	var calls atomic.Int32
	s, err := New(context.Background(), blockingRun(release, &calls), nil)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 200 {
			if errors.Is(s.Trigger(), ErrStopped) {
				return
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	<-done
	assert.False(t, s.Running())
}

func TestScheduleRejectsBadSpec(t *testing.T) {
	t.Parallel()

	s, err := New(context.Background(), func(context.Context) (reconcile.Report, error) {
		return reconcile.Report{}, nil
	}, nil)
	require.NoError(t, err)

	require.Error(t, s.Schedule("every tuesday"))
	require.NoError(t, s.Schedule("@every 1h"))
	require.NoError(t, s.Schedule("0 3 * * *"))
}

func TestNewRequiresRunFunc(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), nil, nil)
	require.Error(t, err)
}
