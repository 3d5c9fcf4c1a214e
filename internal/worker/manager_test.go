package worker_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mapsync-service/internal/worker"
)

type countingWorker struct {
	*worker.BaseWorker
	runs atomic.Int32
}

func newCountingWorker(clk clock.Clock) *countingWorker {
	w := &countingWorker{}
	w.BaseWorker = worker.NewBaseWorker("counter", time.Second, clk, zap.NewNop())
	return w
}

func (w *countingWorker) Start(ctx context.Context) error {
	return w.RunEvery(ctx, func(context.Context) { w.runs.Add(1) })
}

func TestWorkerManager(t *testing.T) {
	t.Run("start without workers fails", func(t *testing.T) {
		m := worker.NewWorkerManager(zap.NewNop())
		assert.Error(t, m.Start(context.Background()))
	})

	t.Run("runs on every tick and stops cleanly", func(t *testing.T) {
		clk := clock.NewMock()
		w := newCountingWorker(clk)
		m := worker.NewWorkerManager(zap.NewNop())
		m.Register(w)

		require.NoError(t, m.Start(context.Background()))
		require.Eventually(t, func() bool {
			clk.Add(time.Second)
			return w.runs.Load() >= 2
		}, time.Second, 5*time.Millisecond)

		require.NoError(t, m.Stop())
		assert.True(t, w.IsStopped())
		assert.NoError(t, w.Stop(), "second stop is a no-op")
	})

	t.Run("context cancellation ends the worker", func(t *testing.T) {
		clk := clock.NewMock()
		w := newCountingWorker(clk)
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- w.Start(ctx) }()

		cancel()
		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(time.Second):
			t.Fatal("worker did not return")
		}
	})
}
