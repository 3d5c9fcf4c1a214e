package usecase_test

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/mock"

	"github.com/mapsync-service/internal/config"
	"github.com/mapsync-service/internal/domain"
)

// MockBackend is a testify mock of repository.BackendRepository.
type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) FetchVenues(ctx context.Context, window domain.QueryWindow) ([]domain.VenueRecord, error) {
	args := m.Called(ctx, window)
	if v := args.Get(0); v != nil {
		return v.([]domain.VenueRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBackend) ScoreRoutes(ctx context.Context, req domain.ScoreRequest) ([]domain.RouteScore, error) {
	args := m.Called(ctx, req)
	if v := args.Get(0); v != nil {
		return v.([]domain.RouteScore), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBackend) FetchDisruptions(ctx context.Context, encodedPath string, radiusMeters int) ([]domain.DisruptionRecord, error) {
	args := m.Called(ctx, encodedPath, radiusMeters)
	if v := args.Get(0); v != nil {
		return v.([]domain.DisruptionRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBackend) CreateHazard(ctx context.Context, report domain.HazardReport) (string, error) {
	args := m.Called(ctx, report)
	return args.String(0), args.Error(1)
}

func (m *MockBackend) ActiveHazards(ctx context.Context, bounds domain.BoundingBox) (*domain.HazardSnapshot, error) {
	args := m.Called(ctx, bounds)
	if v := args.Get(0); v != nil {
		return v.(*domain.HazardSnapshot), args.Error(1)
	}
	return nil, args.Error(1)
}

// memoryStore is a map-backed repository.CacheRepository.
type memoryStore struct {
	mu      sync.Mutex
	entries map[string]domain.StoredEntry
}

func newMemoryStore() *memoryStore {
	return &memoryStore{entries: make(map[string]domain.StoredEntry)}
}

func (s *memoryStore) Get(_ context.Context, namespace, key string) (*domain.StoredEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[namespace+"|"+key]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *memoryStore) Set(_ context.Context, namespace, key string, entry domain.StoredEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[namespace+"|"+key] = entry
	return nil
}

func (s *memoryStore) Delete(_ context.Context, namespace, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, namespace+"|"+key)
	return nil
}

func (s *memoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

var testEpoch = time.Date(2026, 3, 14, 21, 0, 0, 0, time.UTC)

func newMockClock() *clock.Mock {
	clk := clock.NewMock()
	clk.Set(testEpoch)
	return clk
}

func testConfig() *config.Config {
	return config.Default()
}

func ptr[T any](v T) *T {
	return &v
}

func venueRecord(id string, lat, lng float64) domain.VenueRecord {
	return domain.VenueRecord{ID: id, Name: "Venue " + id, Lat: ptr(lat), Lng: ptr(lng)}
}

func melbourneViewport(zoom float64) domain.Viewport {
	return domain.Viewport{
		Bounds: domain.BoundingBox{
			MinLat: -37.821, MinLon: 144.953, MaxLat: -37.801, MaxLon: 144.973,
		},
		Zoom: zoom,
	}
}

// shortRoute is a few hundred meters along Swanston St.
var shortRoute = []domain.Point{
	{Lat: -37.8136, Lon: 144.9631},
	{Lat: -37.8150, Lon: 144.9640},
	{Lat: -37.8166, Lon: 144.9650},
}

// otherRoute runs along Collins St.
var otherRoute = []domain.Point{
	{Lat: -37.8150, Lon: 144.9600},
	{Lat: -37.8160, Lon: 144.9660},
	{Lat: -37.8170, Lon: 144.9720},
}
