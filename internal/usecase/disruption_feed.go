package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/mapsync-service/internal/domain"
	"github.com/mapsync-service/internal/domain/repository"
	apperrors "github.com/mapsync-service/internal/pkg/errors"
	"github.com/mapsync-service/internal/pkg/metrics"
)

type DisruptionConfig struct {
	RadiusMeters int
}

// DisruptionFeed keeps one marker per canonical disruption along the current route.
type DisruptionFeed struct {
	cfg     DisruptionConfig
	clock   clock.Clock
	backend repository.BackendRepository
	coord   *RequestCoordinator
	overlay DisruptionOverlay
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	encodedPath string
	index       map[string]domain.DisruptionFeature
	order       []string
}

func NewDisruptionFeed(
	cfg DisruptionConfig,
	clk clock.Clock,
	backend repository.BackendRepository,
	coord *RequestCoordinator,
	overlay DisruptionOverlay,
	logger *zap.Logger,
) *DisruptionFeed {
	ctx, cancel := context.WithCancel(context.Background())
	return &DisruptionFeed{
		cfg:     cfg,
		clock:   clk,
		backend: backend,
		coord:   coord,
		overlay: overlay,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		index:   make(map[string]domain.DisruptionFeature),
	}
}

// Load switches to a new route: drawn markers are cleared at once, then the
// features along encodedPath are fetched in the background.
func (f *DisruptionFeed) Load(encodedPath string) error {
	if encodedPath == "" {
		return apperrors.ErrInvalidRoute
	}

	f.mu.Lock()
	req, cancelPrevious := f.coord.Begin(f.ctx, domain.ClassDisruptions)
	cancelPrevious()
	f.encodedPath = encodedPath
	f.resetLocked()
	f.overlay.ClearDisruptions()
	f.overlay.ShowDisruptionsLoading()
	f.wg.Add(1)
	f.mu.Unlock()

	go f.fetch(req, encodedPath)
	return nil
}

// Poll re-fetches the current route without clearing. Known ids never get a second marker.
func (f *DisruptionFeed) Poll() bool {
	f.mu.Lock()
	if f.encodedPath == "" {
		f.mu.Unlock()
		return false
	}
	path := f.encodedPath
	req, cancelPrevious := f.coord.Begin(f.ctx, domain.ClassDisruptions)
	cancelPrevious()
	f.wg.Add(1)
	f.mu.Unlock()

	go f.fetch(req, path)
	return true
}

// Clear drops the current route's markers and abandons any fetch.
func (f *DisruptionFeed) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.coord.Invalidate(domain.ClassDisruptions)
	f.encodedPath = ""
	f.resetLocked()
	f.overlay.ClearDisruptions()
}

// Features returns indexed features in the order their markers were placed.
func (f *DisruptionFeed) Features() []domain.DisruptionFeature {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.featuresLocked()
}

func (f *DisruptionFeed) Summary() domain.DisruptionSummary {
	f.mu.Lock()
	defer f.mu.Unlock()
	return domain.Summarize(f.featuresLocked(), f.clock.Now())
}

func (f *DisruptionFeed) Wait() {
	f.wg.Wait()
}

func (f *DisruptionFeed) Close() {
	f.cancel()
	f.wg.Wait()
}

func (f *DisruptionFeed) fetch(req *Request, encodedPath string) {
	defer f.wg.Done()

	records, err := f.backend.FetchDisruptions(req.Ctx, encodedPath, f.cfg.RadiusMeters)
	now := f.clock.Now()

	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.coord.Settle(req, err) {
	case OutcomeSuperseded:
		return
	case OutcomeFailed:
		// replace the loading placeholder with whatever is already known
		features := f.featuresLocked()
		f.overlay.RenderDisruptionPanel(features, domain.Summarize(features, now))
		return
	}

	for _, feature := range Dedupe(records, now) {
		if feature.Position == nil {
			f.logger.Debug("Skipping disruption without position", zap.String("id", feature.CanonicalID))
			continue
		}
		if existing, ok := f.index[feature.CanonicalID]; ok {
			if feature.Closer(existing, now) {
				f.index[feature.CanonicalID] = feature
			}
			continue
		}
		f.index[feature.CanonicalID] = feature
		f.order = append(f.order, feature.CanonicalID)
		f.overlay.PlaceDisruption(feature)
	}

	metrics.DisruptionMarkers.Set(float64(len(f.order)))
	features := f.featuresLocked()
	f.overlay.RenderDisruptionPanel(features, domain.Summarize(features, now))
}

func (f *DisruptionFeed) resetLocked() {
	f.index = make(map[string]domain.DisruptionFeature)
	f.order = nil
	metrics.DisruptionMarkers.Set(0)
}

func (f *DisruptionFeed) featuresLocked() []domain.DisruptionFeature {
	out := make([]domain.DisruptionFeature, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.index[id])
	}
	return out
}

// Dedupe collapses records sharing a canonical id, keeping the closest one
// (ties go to the one active at now). First-seen order is preserved.
func Dedupe(records []domain.DisruptionRecord, now time.Time) []domain.DisruptionFeature {
	best := make(map[string]int, len(records))
	out := make([]domain.DisruptionFeature, 0, len(records))

	for _, r := range records {
		feature := domain.NewDisruptionFeature(r)
		i, seen := best[feature.CanonicalID]
		if !seen {
			best[feature.CanonicalID] = len(out)
			out = append(out, feature)
			continue
		}
		if feature.Closer(out[i], now) {
			out[i] = feature
		}
	}
	return out
}
