package cache

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/mapsync-service/internal/worker"
)

// DefaultJanitorInterval is how often expired persistent entries are purged.
const DefaultJanitorInterval = 10 * time.Minute

// Purger deletes expired entries from a persistent store that has no native TTL.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// JanitorWorker periodically purges expired rows from the Postgres cache tier.
// Redis and Valkey expire keys themselves and need no janitor.
type JanitorWorker struct {
	*worker.BaseWorker
	purger Purger
}

func NewJanitorWorker(purger Purger, interval time.Duration, clk clock.Clock, logger *zap.Logger) *JanitorWorker {
	if interval <= 0 {
		interval = DefaultJanitorInterval
	}
	return &JanitorWorker{
		BaseWorker: worker.NewBaseWorker("cache-janitor", interval, clk, logger),
		purger:     purger,
	}
}

func (w *JanitorWorker) Start(ctx context.Context) error {
	w.Logger().Info("Starting cache janitor", zap.Duration("interval", w.Interval()))
	return w.RunEvery(ctx, w.purge)
}

func (w *JanitorWorker) purge(ctx context.Context) {
	n, err := w.purger.PurgeExpired(ctx)
	if err != nil {
		w.Logger().Warn("Failed to purge expired cache entries", zap.Error(err))
		return
	}
	if n > 0 {
		w.Logger().Info("Purged expired cache entries", zap.Int64("count", n))
	}
}
