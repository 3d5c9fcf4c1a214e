package worker

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// BaseWorker holds what every periodic worker shares: a name, a stop
// channel and the clock that drives its ticker.
type BaseWorker struct {
	name     string
	logger   *zap.Logger
	clock    clock.Clock
	interval time.Duration
	stopChan chan struct{}
	stopped  bool
	mu       sync.Mutex
}

func NewBaseWorker(name string, interval time.Duration, clk clock.Clock, logger *zap.Logger) *BaseWorker {
	return &BaseWorker{
		name:     name,
		logger:   logger.With(zap.String("worker", name)),
		clock:    clk,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

func (w *BaseWorker) Name() string {
	return w.name
}

// Stop signals the loop to exit. Calling it twice is harmless.
func (w *BaseWorker) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}

	w.logger.Info("Stopping worker")
	close(w.stopChan)
	w.stopped = true

	return nil
}

func (w *BaseWorker) IsStopped() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stopped
}

func (w *BaseWorker) StopChan() <-chan struct{} {
	return w.stopChan
}

func (w *BaseWorker) Interval() time.Duration {
	return w.interval
}

func (w *BaseWorker) Logger() *zap.Logger {
	return w.logger
}

// RunEvery calls run once per interval until Stop is called or ctx ends.
// A stop returns nil, a cancelled context returns its error.
func (w *BaseWorker) RunEvery(ctx context.Context, run func(ctx context.Context)) error {
	ticker := w.clock.Ticker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.StopChan():
			w.logger.Info("Worker stopped")
			return nil

		case <-ctx.Done():
			w.logger.Info("Context cancelled")
			return ctx.Err()

		case <-ticker.C:
			run(ctx)
		}
	}
}
