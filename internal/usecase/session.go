package usecase

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/mapsync-service/internal/config"
	"github.com/mapsync-service/internal/domain"
	"github.com/mapsync-service/internal/domain/repository"
	"github.com/mapsync-service/internal/pkg/logger"
)

const (
	venueNamespace      = "venues"
	routeLabelNamespace = "route-labels"
)

// MapSession wires one map view: caches, coordinator, the four components and
// the display state they all paint into.
type MapSession struct {
	clock  clock.Clock
	logger *zap.Logger

	state       *MapState
	coord       *RequestCoordinator
	venueCache  *WindowedCache[[]domain.VenueRecord]
	labelCache  *WindowedCache[domain.ScoreValue]
	viewport    *ViewportWatcher
	routes      *RouteScoreEngine
	disruptions *DisruptionFeed
	hazards     *HazardManager
}

// NewMapSession builds a session. store may be nil for memory-only caching.
func NewMapSession(
	cfg *config.Config,
	store repository.CacheRepository,
	backend repository.BackendRepository,
	lit []orb.LineString,
	clk clock.Clock,
	log *zap.Logger,
) *MapSession {
	state := NewMapState(clk, lit, logger.Component(log, "map_state"))
	coord := NewRequestCoordinator(state, logger.Component(log, "coordinator"))

	venueCache := NewWindowedCache[[]domain.VenueRecord](CacheOptions{
		Namespace:  venueNamespace,
		TTL:        cfg.Cache.VenueTTL,
		MaxEntries: cfg.Cache.VenueMaxEntries,
	}, store, clk, logger.Component(log, "venue_cache"))

	labelCache := NewWindowedCache[domain.ScoreValue](CacheOptions{
		Namespace:  routeLabelNamespace,
		TTL:        cfg.Cache.RouteLabelTTL,
		MaxEntries: cfg.Cache.RouteLabelMaxEntries,
		PruneTo:    cfg.Cache.RouteLabelPruneTo,
	}, store, clk, logger.Component(log, "label_cache"))

	s := &MapSession{
		clock:      clk,
		logger:     log,
		state:      state,
		coord:      coord,
		venueCache: venueCache,
		labelCache: labelCache,
	}

	s.viewport = NewViewportWatcher(ViewportConfig{
		Debounce:      cfg.Viewport.Debounce,
		MoveThreshold: cfg.Viewport.MoveThreshold,
		Limits:        cfg.Viewport.Limits,
		ZoomTiers:     cfg.Viewport.ZoomTiers,
	}, clk, venueCache, backend, coord, state, logger.Component(log, "viewport"))

	s.routes = NewRouteScoreEngine(RouteScoreConfig{
		LatencyBudget: cfg.RouteScore.LatencyBudget,
		Crossfade:     cfg.RouteScore.Crossfade,
		Thresholds:    domain.Thresholds{MediumAt: cfg.RouteScore.MediumAt, HighAt: cfg.RouteScore.HighAt},
		TimeOfDay:     cfg.RouteScore.TimeOfDay,
		Lookahead:     cfg.RouteScore.Lookahead,
	}, clk, labelCache, NewRouteHeuristic(state), backend, coord, state, state, logger.Component(log, "route_score"))

	s.disruptions = NewDisruptionFeed(DisruptionConfig{
		RadiusMeters: cfg.Disruption.RadiusMeters,
	}, clk, backend, coord, state, logger.Component(log, "disruptions"))

	s.hazards = NewHazardManager(HazardConfig{
		Tick:        cfg.Hazard.Tick,
		FinalWindow: cfg.Hazard.FinalWindow,
		DefaultTTL:  cfg.Hazard.DefaultTTL,
	}, clk, backend, coord, state, logger.Component(log, "hazards"))

	return s
}

// MoveViewport feeds a viewport change into the debounced venue pipeline.
func (s *MapSession) MoveViewport(vp domain.Viewport) error {
	return s.viewport.OnViewportChanged(vp)
}

// RefreshVenues re-queries the last window, bypassing the cache.
func (s *MapSession) RefreshVenues(ctx context.Context) bool {
	return s.viewport.Refresh(ctx)
}

// DrawRoute paints route and loads the disruptions along it.
func (s *MapSession) DrawRoute(ctx context.Context, route domain.RouteCandidate) (domain.ScoreValue, error) {
	value, err := s.routes.Draw(ctx, route)
	if err != nil {
		return value, err
	}
	encoded := route.EncodedPath
	if encoded == "" {
		encoded = EncodePath(route.Path)
	}
	if err := s.disruptions.Load(encoded); err != nil {
		return value, err
	}
	return value, nil
}

func (s *MapSession) ClearRoute() {
	s.routes.Clear()
	s.disruptions.Clear()
}

func (s *MapSession) CompareRoutes(ctx context.Context, candidates []domain.RouteCandidate) ([]domain.RankedRoute, error) {
	return s.routes.Compare(ctx, candidates)
}

func (s *MapSession) PollDisruptions() bool {
	return s.disruptions.Poll()
}

func (s *MapSession) ReportHazard(ctx context.Context, pos domain.Point, ttl time.Duration, kind string) (domain.Hazard, error) {
	return s.hazards.Report(ctx, pos, ttl, kind)
}

func (s *MapSession) RemoveHazard(id string) error {
	return s.hazards.Remove(id)
}

// SyncHazards reconciles hazards inside the last queried window. It is a
// no-op until a viewport has been issued.
func (s *MapSession) SyncHazards(ctx context.Context) (int, error) {
	window, ok := s.viewport.LastWindow()
	if !ok {
		return 0, nil
	}
	return s.hazards.Sync(ctx, window.Bounds())
}

func (s *MapSession) DismissAdvisory(class domain.RequestClass) bool {
	return s.state.Dismiss(class)
}

// Snapshot copies the display state along with which request classes are in flight.
func (s *MapSession) Snapshot() MapSnapshot {
	snap := s.state.Snapshot()
	snap.Busy = s.coord.BusyClasses()
	return snap
}

func (s *MapSession) Generations() map[string]uint64 {
	return s.coord.Generations()
}

func (s *MapSession) Hazards() *HazardManager {
	return s.hazards
}

// Wait blocks until every background request has settled.
func (s *MapSession) Wait() {
	s.viewport.Wait()
	s.routes.Wait()
	s.disruptions.Wait()
}

func (s *MapSession) Close() {
	s.viewport.Close()
	s.routes.Close()
	s.disruptions.Close()
	s.hazards.Close()
	s.logger.Info("Map session closed")
}
