package worker

import (
	"context"
	"time"
)

// Worker is a periodic background job run by the WorkerManager.
// BaseWorker provides everything except Start.
type Worker interface {
	// Start runs the loop until Stop is called or ctx is done.
	Start(ctx context.Context) error
	Stop() error
	Name() string
	Interval() time.Duration
}
