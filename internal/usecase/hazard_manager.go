package usecase

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mapsync-service/internal/domain"
	"github.com/mapsync-service/internal/domain/repository"
	apperrors "github.com/mapsync-service/internal/pkg/errors"
	"github.com/mapsync-service/internal/pkg/metrics"
)

type HazardConfig struct {
	Tick        time.Duration
	FinalWindow time.Duration
	DefaultTTL  time.Duration
}

// HazardManager owns user-reported hazards: optimistic placement,
// reconciliation with the backend, and a single shared countdown ticker
// that runs only while at least one hazard exists.
type HazardManager struct {
	cfg     HazardConfig
	clock   clock.Clock
	backend repository.BackendRepository
	coord   *RequestCoordinator
	overlay HazardOverlay
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	hazards   map[string]*domain.Hazard
	byBackend map[string]string
	ticker    *clock.Ticker
	stopTick  chan struct{}
}

func NewHazardManager(
	cfg HazardConfig,
	clk clock.Clock,
	backend repository.BackendRepository,
	coord *RequestCoordinator,
	overlay HazardOverlay,
	logger *zap.Logger,
) *HazardManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &HazardManager{
		cfg:       cfg,
		clock:     clk,
		backend:   backend,
		coord:     coord,
		overlay:   overlay,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		hazards:   make(map[string]*domain.Hazard),
		byBackend: make(map[string]string),
	}
}

// Place shows a hazard immediately under a temporary local id.
func (m *HazardManager) Place(pos domain.Point, ttl time.Duration, kind string) (domain.Hazard, error) {
	if !pos.Valid() {
		return domain.Hazard{}, apperrors.ErrInvalidRequest.WithDetails(map[string]interface{}{"field": "position"})
	}
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return domain.Hazard{}, apperrors.ErrInvalidRequest.WithDetails(map[string]interface{}{"field": "kind"})
	}
	if ttl <= 0 {
		ttl = m.cfg.DefaultTTL
	}

	h := &domain.Hazard{
		LocalID:   domain.LocalIDPrefix + uuid.NewString(),
		Position:  pos,
		Kind:      kind,
		CreatedAt: m.clock.Now(),
		TTL:       ttl,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.addLocked(h)
	return *h, nil
}

// Report places a hazard and creates it on the backend. A backend failure
// leaves the local hazard in place and raises an advisory.
func (m *HazardManager) Report(ctx context.Context, pos domain.Point, ttl time.Duration, kind string) (domain.Hazard, error) {
	h, err := m.Place(pos, ttl, kind)
	if err != nil {
		return h, err
	}

	id, err := m.backend.CreateHazard(ctx, domain.HazardReport{
		Lat:       pos.Lat,
		Lng:       pos.Lon,
		TTLSecs:   int(h.TTL / time.Second),
		Kind:      h.Kind,
		ClientRef: h.LocalID,
	})
	if err != nil {
		m.coord.Advise(domain.ClassHazards, err)
		return h, nil
	}

	m.Confirm(h.LocalID, id)
	if confirmed, ok := m.Get(h.LocalID); ok {
		return confirmed, nil
	}
	return h, nil
}

// Confirm attaches the backend id to a locally placed hazard.
func (m *HazardManager) Confirm(localID, backendID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.hazards[localID]
	if !ok || h.BackendID != "" || backendID == "" {
		return false
	}
	// a sync may have placed the same backend hazard before the create call returned
	if dup, ok := m.byBackend[backendID]; ok && dup != localID {
		m.removeLocked(dup)
	}
	h.BackendID = backendID
	m.byBackend[backendID] = localID
	m.overlay.UpdateHazard(m.viewLocked(h, m.clock.Now()))
	return true
}

// Sync fetches active hazards inside bounds and reconciles them. Older
// sync responses are dropped when a newer sync has started.
func (m *HazardManager) Sync(ctx context.Context, bounds domain.BoundingBox) (int, error) {
	m.mu.Lock()
	req, cancelPrevious := m.coord.Begin(ctx, domain.ClassHazards)
	m.mu.Unlock()
	cancelPrevious()

	snapshot, err := m.backend.ActiveHazards(req.Ctx, bounds)
	if err == nil && snapshot == nil {
		err = apperrors.ErrMalformedResponse
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.coord.Settle(req, err) {
	case OutcomeSuperseded:
		return 0, apperrors.ErrSuperseded
	case OutcomeFailed:
		return 0, err
	}
	return m.reconcileLocked(*snapshot), nil
}

// Reconcile places every active backend hazard not already shown. Matching is
// by backend id, then by the client_ref echo of a local id. Applying the same
// snapshot twice places nothing the second time.
func (m *HazardManager) Reconcile(snapshot domain.HazardSnapshot) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reconcileLocked(snapshot)
}

func (m *HazardManager) reconcileLocked(snapshot domain.HazardSnapshot) int {
	serverNow := snapshot.ServerNow
	if serverNow.IsZero() {
		serverNow = m.clock.Now()
	}

	placed := 0
	for _, item := range snapshot.Items {
		remaining := item.ExpiresAt.Sub(serverNow)
		if remaining <= 0 {
			continue
		}
		if _, known := m.byBackend[item.PublicID]; known {
			continue
		}
		if local, ok := m.hazards[item.ClientRef]; ok && item.ClientRef != "" {
			if local.BackendID == "" {
				local.BackendID = item.PublicID
				m.byBackend[item.PublicID] = local.LocalID
				m.overlay.UpdateHazard(m.viewLocked(local, m.clock.Now()))
			}
			continue
		}

		h := &domain.Hazard{
			LocalID:   domain.LocalIDPrefix + uuid.NewString(),
			BackendID: item.PublicID,
			Position:  item.Position,
			Kind:      item.Kind,
			CreatedAt: m.clock.Now(),
			TTL:       remaining,
		}
		m.byBackend[h.BackendID] = h.LocalID
		m.addLocked(h)
		placed++
	}
	return placed
}

// Remove deletes a hazard by local or backend id.
func (m *HazardManager) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	localID, ok := m.resolveLocked(id)
	if !ok {
		return apperrors.ErrHazardNotFound
	}
	m.removeLocked(localID)
	return nil
}

// Tick advances every countdown to now and removes expired hazards.
func (m *HazardManager) Tick(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for localID, h := range m.hazards {
		if h.Remaining(now) <= 0 {
			m.removeLocked(localID)
			metrics.HazardsExpired.Inc()
			continue
		}
		m.overlay.UpdateHazard(m.viewLocked(h, now))
	}
}

func (m *HazardManager) Get(id string) (domain.Hazard, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	localID, ok := m.resolveLocked(id)
	if !ok {
		return domain.Hazard{}, false
	}
	return *m.hazards[localID], true
}

// Active returns the current view of every hazard.
func (m *HazardManager) Active() []domain.HazardView {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	out := make([]domain.HazardView, 0, len(m.hazards))
	for _, h := range m.hazards {
		out = append(out, m.viewLocked(h, now))
	}
	return out
}

func (m *HazardManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.hazards)
}

// TickerRunning reports whether the shared countdown ticker is active.
func (m *HazardManager) TickerRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ticker != nil
}

func (m *HazardManager) Close() {
	m.mu.Lock()
	m.stopTickerLocked()
	m.mu.Unlock()
	m.cancel()
	m.wg.Wait()
}

func (m *HazardManager) addLocked(h *domain.Hazard) {
	m.hazards[h.LocalID] = h
	metrics.HazardsActive.Set(float64(len(m.hazards)))
	m.overlay.AttachHazard(m.viewLocked(h, m.clock.Now()))
	m.startTickerLocked()
}

func (m *HazardManager) removeLocked(localID string) {
	h, ok := m.hazards[localID]
	if !ok {
		return
	}
	delete(m.hazards, localID)
	if h.BackendID != "" && m.byBackend[h.BackendID] == localID {
		delete(m.byBackend, h.BackendID)
	}
	metrics.HazardsActive.Set(float64(len(m.hazards)))
	m.overlay.DetachHazard(localID)
	if len(m.hazards) == 0 {
		m.stopTickerLocked()
	}
}

func (m *HazardManager) resolveLocked(id string) (string, bool) {
	if _, ok := m.hazards[id]; ok {
		return id, true
	}
	localID, ok := m.byBackend[id]
	return localID, ok
}

func (m *HazardManager) viewLocked(h *domain.Hazard, now time.Time) domain.HazardView {
	remaining := h.Remaining(now)
	return domain.HazardView{
		ID:        h.ID(),
		LocalID:   h.LocalID,
		Kind:      h.Kind,
		Position:  h.Position,
		Confirmed: h.Confirmed(),
		Remaining: remaining,
		Expiring:  remaining < m.cfg.FinalWindow,
	}
}

func (m *HazardManager) startTickerLocked() {
	if m.ticker != nil {
		return
	}
	ticker := m.clock.Ticker(m.cfg.Tick)
	stop := make(chan struct{})
	m.ticker = ticker
	m.stopTick = stop

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			select {
			case <-ticker.C:
				// read the clock rather than the tick value; ticks may be dropped under load
				m.Tick(m.clock.Now())
			case <-stop:
				return
			case <-m.ctx.Done():
				return
			}
		}
	}()
}

func (m *HazardManager) stopTickerLocked() {
	if m.ticker == nil {
		return
	}
	m.ticker.Stop()
	close(m.stopTick)
	m.ticker = nil
	m.stopTick = nil
}
