package usecase

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/mapsync-service/internal/domain"
	"github.com/mapsync-service/internal/domain/repository"
	apperrors "github.com/mapsync-service/internal/pkg/errors"
	"github.com/mapsync-service/internal/pkg/metrics"
)

type RouteScoreConfig struct {
	// LatencyBudget decides between crossfade and instant recolor. It never aborts a request.
	LatencyBudget time.Duration
	Crossfade     time.Duration
	Thresholds    domain.Thresholds
	TimeOfDay     string
	Lookahead     int
}

// RouteState is a snapshot of the drawn route.
type RouteState struct {
	Route  domain.RouteCandidate `json:"route"`
	Value  domain.ScoreValue     `json:"value"`
	Status domain.ScoreStatus    `json:"status"`
}

type drawnRoute struct {
	route   domain.RouteCandidate
	key     string
	value   domain.ScoreValue
	status  domain.ScoreStatus
	drawnAt time.Time
}

// RouteScoreEngine labels a route immediately from cache or heuristic, then
// converges on the backend's authoritative score.
type RouteScoreEngine struct {
	cfg        RouteScoreConfig
	clock      clock.Clock
	labels     *WindowedCache[domain.ScoreValue]
	heuristic  *RouteHeuristic
	backend    repository.BackendRepository
	coord      *RequestCoordinator
	overlay    RouteOverlay
	comparison ComparisonOverlay
	logger     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	current *drawnRoute
}

func NewRouteScoreEngine(
	cfg RouteScoreConfig,
	clk clock.Clock,
	labels *WindowedCache[domain.ScoreValue],
	heuristic *RouteHeuristic,
	backend repository.BackendRepository,
	coord *RequestCoordinator,
	overlay RouteOverlay,
	comparison ComparisonOverlay,
	logger *zap.Logger,
) *RouteScoreEngine {
	ctx, cancel := context.WithCancel(context.Background())
	return &RouteScoreEngine{
		cfg:        cfg,
		clock:      clk,
		labels:     labels,
		heuristic:  heuristic,
		backend:    backend,
		coord:      coord,
		overlay:    overlay,
		comparison: comparison,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// PathKey is the label cache key for an encoded path.
func PathKey(encodedPath string) string {
	return strconv.FormatUint(xxhash.Sum64String(encodedPath), 16)
}

// Draw paints route with an optimistic label right away and starts the
// authoritative check in the background. The returned value is what was painted.
func (e *RouteScoreEngine) Draw(ctx context.Context, route domain.RouteCandidate) (domain.ScoreValue, error) {
	route, err := e.prepare(route)
	if err != nil {
		return domain.ScoreValue{}, err
	}
	key := PathKey(route.EncodedPath)
	optimistic := e.optimistic(ctx, key, route.Path)
	route.Score, route.Label = optimistic.Score, optimistic.Label

	e.mu.Lock()
	req, cancelPrevious := e.coord.Begin(e.ctx, domain.ClassRouteScore)
	cancelPrevious()
	e.current = &drawnRoute{
		route:   route,
		key:     key,
		value:   optimistic,
		status:  domain.StatusChecking,
		drawnAt: e.clock.Now(),
	}
	e.overlay.PaintRoute(route, optimistic, domain.Transition{Kind: domain.TransitionInstant})
	e.overlay.ShowScoreStatus(domain.StatusChecking)
	e.wg.Add(1)
	e.mu.Unlock()

	go e.confirm(req, route, key)
	return optimistic, nil
}

// Compare scores alternatives and publishes them ranked safest first.
func (e *RouteScoreEngine) Compare(ctx context.Context, candidates []domain.RouteCandidate) ([]domain.RankedRoute, error) {
	if len(candidates) == 0 {
		return nil, apperrors.ErrInvalidRoute
	}
	prepared := make([]domain.RouteCandidate, 0, len(candidates))
	polylines := make([]string, 0, len(candidates))
	for _, c := range candidates {
		p, err := e.prepare(c)
		if err != nil {
			return nil, err
		}
		prepared = append(prepared, p)
		polylines = append(polylines, p.EncodedPath)
	}

	e.mu.Lock()
	req, cancelPrevious := e.coord.Begin(ctx, domain.ClassComparison)
	e.mu.Unlock()
	cancelPrevious()

	scores, err := e.backend.ScoreRoutes(req.Ctx, e.scoreRequest(polylines...))
	if err == nil && len(scores) != len(prepared) {
		err = apperrors.ErrMalformedResponse
	}

	e.mu.Lock()
	outcome := e.coord.Settle(req, err)
	if outcome != OutcomeCurrent {
		e.mu.Unlock()
		if outcome == OutcomeSuperseded {
			return nil, apperrors.ErrSuperseded
		}
		return nil, err
	}

	ranked := make([]domain.RankedRoute, len(prepared))
	for i, c := range prepared {
		v := e.authoritative(scores[i])
		c.Score, c.Label = v.Score, v.Label
		ranked[i] = domain.RankedRoute{Candidate: c, Value: v}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Value.Score > ranked[j].Value.Score
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	e.comparison.ShowComparison(ranked)
	e.mu.Unlock()

	for _, r := range ranked {
		e.labels.Set(ctx, PathKey(r.Candidate.EncodedPath), r.Value, e.labelTTL())
	}
	return ranked, nil
}

// Clear removes the drawn route and abandons any in-flight scoring.
func (e *RouteScoreEngine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.coord.Invalidate(domain.ClassRouteScore)
	e.current = nil
	e.overlay.ClearRoute()
	e.overlay.ShowScoreStatus(domain.StatusIdle)
}

// State returns the drawn route, if any.
func (e *RouteScoreEngine) State() (RouteState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return RouteState{}, false
	}
	return RouteState{Route: e.current.route, Value: e.current.value, Status: e.current.status}, true
}

// Wait blocks until background confirmations have settled.
func (e *RouteScoreEngine) Wait() {
	e.wg.Wait()
}

func (e *RouteScoreEngine) Close() {
	e.cancel()
	e.wg.Wait()
}

func (e *RouteScoreEngine) confirm(req *Request, route domain.RouteCandidate, key string) {
	defer e.wg.Done()

	scores, err := e.backend.ScoreRoutes(req.Ctx, e.scoreRequest(route.EncodedPath))
	if err == nil && len(scores) == 0 {
		err = apperrors.ErrMalformedResponse
	}

	e.mu.Lock()
	outcome := e.coord.Settle(req, err)
	switch outcome {
	case OutcomeSuperseded:
		e.mu.Unlock()
		return
	case OutcomeFailed:
		// the optimistic color stays; only the status changes
		e.current.status = domain.StatusUnavailable
		e.overlay.ShowScoreStatus(domain.StatusUnavailable)
		e.mu.Unlock()
		return
	}

	auth := e.authoritative(scores[0])
	prev := e.current.value
	elapsed := e.clock.Now().Sub(e.current.drawnAt)

	transition := domain.Transition{Kind: domain.TransitionNone}
	if auth.Label != prev.Label {
		if elapsed > e.cfg.LatencyBudget {
			transition = domain.Transition{Kind: domain.TransitionInstant}
		} else {
			transition = domain.Transition{Kind: domain.TransitionCrossfade, Duration: e.cfg.Crossfade}
		}
		metrics.RouteRecolors.WithLabelValues(string(transition.Kind)).Inc()
	}

	e.current.value = prev.Merge(auth)
	e.current.status = domain.StatusConfirmed
	e.current.route.Score, e.current.route.Label = auth.Score, auth.Label
	e.overlay.PaintRoute(e.current.route, e.current.value, transition)
	e.overlay.ShowScoreStatus(domain.StatusConfirmed)
	e.mu.Unlock()

	e.labels.Set(e.ctx, key, auth, e.labelTTL())
}

func (e *RouteScoreEngine) optimistic(ctx context.Context, key string, path []domain.Point) domain.ScoreValue {
	if cached, ok := e.labels.Get(ctx, key); ok {
		return domain.ScoreValue{
			Phase:  domain.PhaseOptimistic,
			Source: domain.SourceCache,
			Score:  cached.Score,
			Label:  cached.Label,
		}
	}
	score := e.heuristic.Score(path)
	return domain.ScoreValue{
		Phase:  domain.PhaseOptimistic,
		Source: domain.SourceHeuristic,
		Score:  score,
		Label:  e.cfg.Thresholds.LabelFor(score),
	}
}

func (e *RouteScoreEngine) authoritative(s domain.RouteScore) domain.ScoreValue {
	score := clamp01(s.Overall)
	label, ok := domain.ParseLabel(s.Label)
	if !ok {
		label = e.cfg.Thresholds.LabelFor(score)
	}
	return domain.ScoreValue{
		Phase:  domain.PhaseAuthoritative,
		Source: domain.SourceBackend,
		Score:  score,
		Label:  label,
	}
}

func (e *RouteScoreEngine) prepare(route domain.RouteCandidate) (domain.RouteCandidate, error) {
	if route.EncodedPath == "" && len(route.Path) == 0 {
		return route, apperrors.ErrInvalidRoute
	}
	if route.EncodedPath == "" {
		route.EncodedPath = EncodePath(route.Path)
	}
	if len(route.Path) == 0 {
		path, err := DecodePath(route.EncodedPath)
		if err != nil || len(path) == 0 {
			return route, apperrors.Wrap(apperrors.ErrInvalidRoute, err)
		}
		route.Path = path
	}
	return route, nil
}

func (e *RouteScoreEngine) scoreRequest(polylines ...string) domain.ScoreRequest {
	return domain.ScoreRequest{Polylines: polylines, When: e.cfg.TimeOfDay, Minutes: e.cfg.Lookahead}
}

func (e *RouteScoreEngine) labelTTL() time.Duration {
	return e.labels.opts.TTL
}
