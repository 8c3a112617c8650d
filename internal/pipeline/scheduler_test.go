package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type funcRunner func(ctx context.Context) (Summary, error)

func (f funcRunner) RunCycle(ctx context.Context) (Summary, error) {
	return f(ctx)
}

func TestNewSchedulerSpec(t *testing.T) {
	logger := zaptest.NewLogger(t)
	noop := funcRunner(func(context.Context) (Summary, error) { return Summary{}, nil })

	s, err := NewScheduler(noop, 2*time.Hour, "", logger)
	require.NoError(t, err)
	assert.Equal(t, "@every 2h0m0s", s.Spec())

	s, err = NewScheduler(noop, 2*time.Hour, "0 */3 * * *", logger)
	require.NoError(t, err)
	assert.Equal(t, "0 */3 * * *", s.Spec())

	_, err = NewScheduler(noop, 0, "", logger)
	assert.Error(t, err)
	_, err = NewScheduler(noop, time.Hour, "every tuesday", logger)
	assert.Error(t, err)
}

func TestSchedulerRunsImmediatelyAndStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs int32
	runner := funcRunner(func(context.Context) (Summary, error) {
		atomic.AddInt32(&runs, 1)
		cancel()
		return Summary{}, errors.New("cycle failed")
	})

	// cron logs from its own goroutine after Stop, which outlives the test logger
	s, err := NewScheduler(runner, time.Hour, "", zap.NewNop())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))
}

func TestSchedulerSurvivesPanickingCycle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := funcRunner(func(context.Context) (Summary, error) {
		cancel()
		panic("boom")
	})

	s, err := NewScheduler(runner, time.Hour, "", zap.NewNop())
	require.NoError(t, err)
	assert.NoError(t, s.Run(ctx))
}
