package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func TestRun_ImmediateAndPeriodic(t *testing.T) {
	var runs atomic.Int64
	s := New(time.Second, func(ctx context.Context) { runs.Inc() }, nil)

	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool { return runs.Load() >= 1 },
		time.Second, 10*time.Millisecond, "job should run immediately on start")

	s.Shutdown()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after Shutdown")
	}
	// Shutdown is idempotent.
	s.Shutdown()
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New(time.Second, func(ctx context.Context) {}, nil)

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after context cancellation")
	}
}
