package usecase

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/mapsync-service/internal/domain"
	"github.com/mapsync-service/internal/domain/repository"
	apperrors "github.com/mapsync-service/internal/pkg/errors"
	"github.com/mapsync-service/internal/pkg/validator"
)

type ViewportConfig struct {
	Debounce      time.Duration
	MoveThreshold float64
	// Limits[i] applies below ZoomTiers[i]; the last limit applies above every tier.
	Limits    []int
	ZoomTiers []float64
}

// ViewportWatcher turns a stream of viewport changes into venue queries:
// debounced, filtered for noise, sized by zoom and resolved through the cache.
type ViewportWatcher struct {
	cfg     ViewportConfig
	clock   clock.Clock
	cache   *WindowedCache[[]domain.VenueRecord]
	backend repository.BackendRepository
	coord   *RequestCoordinator
	overlay VenueOverlay
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	timer      *clock.Timer
	pendingVP  *domain.Viewport
	lastVP     *domain.Viewport
	lastWindow *domain.QueryWindow
}

func NewViewportWatcher(
	cfg ViewportConfig,
	clk clock.Clock,
	cache *WindowedCache[[]domain.VenueRecord],
	backend repository.BackendRepository,
	coord *RequestCoordinator,
	overlay VenueOverlay,
	logger *zap.Logger,
) *ViewportWatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &ViewportWatcher{
		cfg:     cfg,
		clock:   clk,
		cache:   cache,
		backend: backend,
		coord:   coord,
		overlay: overlay,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// OnViewportChanged records vp and (re)arms the debounce timer.
func (w *ViewportWatcher) OnViewportChanged(vp domain.Viewport) error {
	if !vp.Valid() {
		return apperrors.ErrInvalidViewport
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.pendingVP = &vp
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = w.clock.AfterFunc(w.cfg.Debounce, w.fire)
	return nil
}

// Flush issues the pending viewport immediately instead of waiting for the debounce.
func (w *ViewportWatcher) Flush() {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()
	w.fire()
}

// Refresh re-queries the last issued window, bypassing cached results.
func (w *ViewportWatcher) Refresh(ctx context.Context) bool {
	w.mu.Lock()
	if w.lastVP == nil {
		w.mu.Unlock()
		return false
	}
	vp := *w.lastVP
	key := w.lastWindow.Key()
	w.mu.Unlock()

	w.cache.Invalidate(ctx, key)
	w.issue(vp)
	return true
}

// LastWindow returns the window of the most recently issued query.
func (w *ViewportWatcher) LastWindow() (domain.QueryWindow, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.lastWindow == nil {
		return domain.QueryWindow{}, false
	}
	return *w.lastWindow, true
}

// LimitForZoom picks the result cap from the zoom bracket.
func (w *ViewportWatcher) LimitForZoom(zoom float64) int {
	for i, tier := range w.cfg.ZoomTiers {
		if zoom < tier {
			return w.cfg.Limits[i]
		}
	}
	return w.cfg.Limits[len(w.cfg.Limits)-1]
}

// Wait blocks until every issued query has settled.
func (w *ViewportWatcher) Wait() {
	w.wg.Wait()
}

func (w *ViewportWatcher) Close() {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.pendingVP = nil
	w.mu.Unlock()

	w.cancel()
	w.wg.Wait()
}

func (w *ViewportWatcher) fire() {
	w.mu.Lock()
	vp := w.pendingVP
	w.pendingVP = nil
	w.timer = nil
	if vp == nil {
		w.mu.Unlock()
		return
	}
	if w.lastVP != nil && !w.movedEnough(*w.lastVP, *vp) {
		w.mu.Unlock()
		w.logger.Debug("Viewport change below threshold, skipping")
		return
	}
	w.mu.Unlock()

	w.issue(*vp)
}

func (w *ViewportWatcher) movedEnough(prev, next domain.Viewport) bool {
	a, b := prev.Bounds.Center(), next.Bounds.Center()
	moved := math.Abs(a.Lat-b.Lat)+math.Abs(a.Lon-b.Lon) > w.cfg.MoveThreshold
	zoomed := math.Abs(prev.Zoom-next.Zoom) >= 1
	return moved || zoomed
}

func (w *ViewportWatcher) issue(vp domain.Viewport) {
	limit := w.LimitForZoom(vp.Zoom)
	window := domain.NewQueryWindow(vp, limit)
	key := window.Key()

	w.mu.Lock()
	sameWindow := w.lastWindow != nil && w.lastWindow.Key() == key
	req, cancelPrevious := w.coord.Begin(w.ctx, domain.ClassVenues)
	w.lastVP = &vp
	w.lastWindow = &window
	w.wg.Add(1)
	w.mu.Unlock()

	// the same key joins the same pending lookup, so aborting it would only force a refetch
	if !sameWindow {
		cancelPrevious()
	}

	go func() {
		defer w.wg.Done()

		records, err := w.cache.Coalesce(req.Ctx, key, func(ctx context.Context) ([]domain.VenueRecord, error) {
			return w.backend.FetchVenues(ctx, window)
		})

		w.mu.Lock()
		defer w.mu.Unlock()
		if w.coord.Settle(req, err) != OutcomeCurrent {
			return
		}
		w.overlay.ReplaceVenues(window, w.materialize(records, limit))
	}()
}

// materialize builds a fresh list in delivery order, skipping invalid records.
func (w *ViewportWatcher) materialize(records []domain.VenueRecord, limit int) []domain.Venue {
	venues := make([]domain.Venue, 0, min(len(records), limit))
	for _, r := range records {
		if len(venues) == limit {
			break
		}
		if err := validator.Validate(r); err != nil {
			w.logger.Debug("Skipping invalid venue", zap.String("id", r.ID), zap.String("reason", validator.Describe(err)))
			continue
		}
		venues = append(venues, r.Materialize())
	}
	return venues
}
