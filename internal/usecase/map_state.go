package usecase

import (
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/mapsync-service/internal/domain"
	apperrors "github.com/mapsync-service/internal/pkg/errors"
)

// RouteView is the displayed route together with how it was last painted.
type RouteView struct {
	Route      domain.RouteCandidate `json:"route"`
	Value      domain.ScoreValue     `json:"value"`
	Transition domain.Transition     `json:"transition"`
	Color      string                `json:"color"`
}

// DisruptionPanel is the list rendered next to the route.
type DisruptionPanel struct {
	Loading  bool                       `json:"loading"`
	Features []domain.DisruptionFeature `json:"features"`
	Summary  domain.DisruptionSummary   `json:"summary"`
}

// MapSnapshot is a point-in-time copy of everything on the map.
type MapSnapshot struct {
	Window      *domain.QueryWindow          `json:"window,omitempty"`
	Venues      []domain.Venue               `json:"venues"`
	Route       *RouteView                   `json:"route,omitempty"`
	ScoreStatus domain.ScoreStatus           `json:"score_status"`
	Comparison  []domain.RankedRoute         `json:"comparison,omitempty"`
	Markers     []domain.DisruptionFeature   `json:"markers"`
	Panel       DisruptionPanel              `json:"panel"`
	Hazards     []domain.HazardView          `json:"hazards"`
	Advisories  []domain.Advisory            `json:"advisories"`
	Busy        map[domain.RequestClass]bool `json:"busy,omitempty"`
	RoutePaints int                          `json:"route_paints"`
	CapturedAt  time.Time                    `json:"captured_at"`
}

// MapState is the in-process display. It implements every overlay, collects
// advisories and feeds the route heuristic with what is currently shown.
// It never calls back into the components.
type MapState struct {
	clock  clock.Clock
	lit    []orb.LineString
	logger *zap.Logger

	mu          sync.RWMutex
	window      *domain.QueryWindow
	venues      []domain.Venue
	route       *RouteView
	status      domain.ScoreStatus
	comparison  []domain.RankedRoute
	markers     []domain.DisruptionFeature
	panel       DisruptionPanel
	hazards     map[string]domain.HazardView
	advisories  map[domain.RequestClass]domain.Advisory
	routePaints int
}

func NewMapState(clk clock.Clock, lit []orb.LineString, logger *zap.Logger) *MapState {
	return &MapState{
		clock:      clk,
		lit:        lit,
		logger:     logger,
		status:     domain.StatusIdle,
		hazards:    make(map[string]domain.HazardView),
		advisories: make(map[domain.RequestClass]domain.Advisory),
	}
}

func (s *MapState) ReplaceVenues(window domain.QueryWindow, venues []domain.Venue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.window = &window
	s.venues = venues
}

func (s *MapState) PaintRoute(route domain.RouteCandidate, value domain.ScoreValue, transition domain.Transition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.route = &RouteView{Route: route, Value: value, Transition: transition, Color: value.Label.Color()}
	s.routePaints++
}

func (s *MapState) ShowScoreStatus(status domain.ScoreStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

func (s *MapState) ClearRoute() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.route = nil
	s.comparison = nil
}

func (s *MapState) ShowComparison(ranked []domain.RankedRoute) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comparison = ranked
}

func (s *MapState) ClearDisruptions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers = nil
	s.panel = DisruptionPanel{}
}

func (s *MapState) ShowDisruptionsLoading() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.panel.Loading = true
}

func (s *MapState) PlaceDisruption(feature domain.DisruptionFeature) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.markers {
		if s.markers[i].CanonicalID == feature.CanonicalID {
			s.markers[i] = feature
			return
		}
	}
	s.markers = append(s.markers, feature)
}

func (s *MapState) RenderDisruptionPanel(features []domain.DisruptionFeature, summary domain.DisruptionSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.panel = DisruptionPanel{Features: features, Summary: summary}
	// markers follow the panel so an updated closer record moves its marker
	byID := make(map[string]domain.DisruptionFeature, len(features))
	for _, f := range features {
		byID[f.CanonicalID] = f
	}
	for i, m := range s.markers {
		if f, ok := byID[m.CanonicalID]; ok {
			s.markers[i] = f
		}
	}
}

func (s *MapState) AttachHazard(view domain.HazardView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hazards[view.LocalID] = view
}

func (s *MapState) UpdateHazard(view domain.HazardView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.hazards[view.LocalID]; !ok {
		return
	}
	s.hazards[view.LocalID] = view
}

func (s *MapState) DetachHazard(localID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.hazards, localID)
}

// Advise records or replaces the advisory for class.
func (s *MapState) Advise(class domain.RequestClass, err *apperrors.AppError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advisories[class] = domain.Advisory{
		Class:     class,
		Code:      err.Code,
		Message:   err.Message,
		Retryable: err.Retryable,
		RaisedAt:  s.clock.Now(),
	}
}

// Resolve clears the advisory for class after a successful request.
func (s *MapState) Resolve(class domain.RequestClass) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.advisories, class)
}

// Dismiss removes an advisory on user request.
func (s *MapState) Dismiss(class domain.RequestClass) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.advisories[class]; !ok {
		return false
	}
	delete(s.advisories, class)
	return true
}

func (s *MapState) Advisory(class domain.RequestClass) (domain.Advisory, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.advisories[class]
	return a, ok
}

func (s *MapState) LitSegments() []orb.LineString {
	return s.lit
}

func (s *MapState) VenuePositions() []domain.Point {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Point, len(s.venues))
	for i, v := range s.venues {
		out[i] = v.Position
	}
	return out
}

func (s *MapState) DisruptionPositions() []domain.Point {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Point, 0, len(s.markers))
	for _, m := range s.markers {
		if m.Position != nil {
			out = append(out, *m.Position)
		}
	}
	return out
}

// Snapshot copies the displayed state. Hazards are ordered by local id and
// advisories by class.
func (s *MapState) Snapshot() MapSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := MapSnapshot{
		Venues:      append([]domain.Venue(nil), s.venues...),
		ScoreStatus: s.status,
		Comparison:  append([]domain.RankedRoute(nil), s.comparison...),
		Markers:     append([]domain.DisruptionFeature(nil), s.markers...),
		Panel: DisruptionPanel{
			Loading:  s.panel.Loading,
			Features: append([]domain.DisruptionFeature(nil), s.panel.Features...),
			Summary:  s.panel.Summary,
		},
		Hazards:     make([]domain.HazardView, 0, len(s.hazards)),
		Advisories:  make([]domain.Advisory, 0, len(s.advisories)),
		RoutePaints: s.routePaints,
		CapturedAt:  s.clock.Now(),
	}
	if s.window != nil {
		w := *s.window
		snap.Window = &w
	}
	if s.route != nil {
		r := *s.route
		snap.Route = &r
	}
	for _, h := range s.hazards {
		snap.Hazards = append(snap.Hazards, h)
	}
	sort.Slice(snap.Hazards, func(i, j int) bool { return snap.Hazards[i].LocalID < snap.Hazards[j].LocalID })
	for _, a := range s.advisories {
		snap.Advisories = append(snap.Advisories, a)
	}
	sort.Slice(snap.Advisories, func(i, j int) bool { return snap.Advisories[i].Class < snap.Advisories[j].Class })

	return snap
}
