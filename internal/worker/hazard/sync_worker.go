package hazard

import (
	"context"
	"errors"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/mapsync-service/internal/config"
	apperrors "github.com/mapsync-service/internal/pkg/errors"
	"github.com/mapsync-service/internal/worker"
)

// Syncer reconciles hazards inside the current map window.
type Syncer interface {
	SyncHazards(ctx context.Context) (int, error)
}

// SyncWorker pulls active hazards from the backend on a fixed interval so
// hazards reported by other users appear without a viewport change.
type SyncWorker struct {
	*worker.BaseWorker
	syncer Syncer
}

func NewSyncWorker(cfg *config.HazardConfig, syncer Syncer, clk clock.Clock, logger *zap.Logger) *SyncWorker {
	return &SyncWorker{
		BaseWorker: worker.NewBaseWorker("hazard-sync", cfg.SyncInterval, clk, logger),
		syncer:     syncer,
	}
}

func (w *SyncWorker) Start(ctx context.Context) error {
	w.Logger().Info("Starting hazard sync", zap.Duration("interval", w.Interval()))
	return w.RunEvery(ctx, w.syncOnce)
}

func (w *SyncWorker) syncOnce(ctx context.Context) {
	placed, err := w.syncer.SyncHazards(ctx)
	switch {
	case errors.Is(err, apperrors.ErrSuperseded), errors.Is(err, context.Canceled):
		return
	case err != nil:
		// the advisory is already raised by the coordinator
		w.Logger().Debug("Hazard sync failed", zap.Error(err))
		return
	}
	if placed > 0 {
		w.Logger().Info("Hazards synced", zap.Int("placed", placed))
	}
}
