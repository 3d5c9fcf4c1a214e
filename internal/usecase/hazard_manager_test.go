package usecase_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mapsync-service/internal/domain"
	apperrors "github.com/mapsync-service/internal/pkg/errors"
	"github.com/mapsync-service/internal/usecase"
)

type hazardFixture struct {
	clock   *clock.Mock
	backend *MockBackend
	state   *usecase.MapState
	hazards *usecase.HazardManager
}

func newHazardFixture(t *testing.T) *hazardFixture {
	t.Helper()
	clk := newMockClock()
	backend := &MockBackend{}
	state := usecase.NewMapState(clk, nil, zap.NewNop())
	coord := usecase.NewRequestCoordinator(state, zap.NewNop())
	hazards := usecase.NewHazardManager(usecase.HazardConfig{
		Tick:        time.Second,
		FinalWindow: time.Minute,
		DefaultTTL:  30 * time.Minute,
	}, clk, backend, coord, state, zap.NewNop())
	t.Cleanup(hazards.Close)
	return &hazardFixture{clock: clk, backend: backend, state: state, hazards: hazards}
}

var flinders = domain.Point{Lat: -37.8183, Lon: 144.9671}

func TestHazardManager_Place(t *testing.T) {
	f := newHazardFixture(t)
	assert.False(t, f.hazards.TickerRunning())

	h, err := f.hazards.Place(flinders, 0, "broken light")
	require.NoError(t, err)
	assert.True(t, domain.IsLocalHazardID(h.LocalID))
	assert.Equal(t, h.LocalID, h.ID())
	assert.Equal(t, 30*time.Minute, h.TTL)
	assert.True(t, f.hazards.TickerRunning())

	hazards := f.state.Snapshot().Hazards
	require.Len(t, hazards, 1)
	assert.False(t, hazards[0].Confirmed)
	assert.Equal(t, 30*time.Minute, hazards[0].Remaining)

	t.Run("rejects bad input", func(t *testing.T) {
		_, err := f.hazards.Place(domain.Point{Lat: 91, Lon: 0}, time.Minute, "x")
		assert.ErrorIs(t, err, apperrors.ErrInvalidRequest)
		_, err = f.hazards.Place(flinders, time.Minute, "  ")
		assert.ErrorIs(t, err, apperrors.ErrInvalidRequest)
	})
}

func TestHazardManager_Countdown(t *testing.T) {
	f := newHazardFixture(t)
	h, err := f.hazards.Place(flinders, 900*time.Second, "flooding")
	require.NoError(t, err)

	f.hazards.Tick(h.CreatedAt.Add(899 * time.Second))
	views := f.state.Snapshot().Hazards
	require.Len(t, views, 1)
	assert.Equal(t, time.Second, views[0].Remaining)
	assert.True(t, views[0].Expiring)

	f.hazards.Tick(h.CreatedAt.Add(901 * time.Second))
	assert.Equal(t, 0, f.hazards.Len())
	assert.Empty(t, f.state.Snapshot().Hazards)
	assert.False(t, f.hazards.TickerRunning(), "ticker stops once the set is empty")
}

func TestHazardManager_TickerExpiresHazards(t *testing.T) {
	f := newHazardFixture(t)
	_, err := f.hazards.Place(flinders, 3*time.Second, "debris")
	require.NoError(t, err)

	f.clock.Add(4 * time.Second)
	require.Eventually(t, func() bool { return f.hazards.Len() == 0 }, time.Second, time.Millisecond)
	assert.False(t, f.hazards.TickerRunning())

	_, err = f.hazards.Place(flinders, time.Minute, "debris")
	require.NoError(t, err)
	assert.True(t, f.hazards.TickerRunning(), "ticker restarts for a new hazard")
}

func TestHazardManager_Report(t *testing.T) {
	ctx := context.Background()

	t.Run("backend id replaces the local one", func(t *testing.T) {
		f := newHazardFixture(t)
		f.backend.On("CreateHazard", mock.Anything, mock.MatchedBy(func(r domain.HazardReport) bool {
			return strings.HasPrefix(r.ClientRef, domain.LocalIDPrefix) && r.TTLSecs == 900 && r.Kind == "flooding"
		})).Return("hz-42", nil).Once()

		h, err := f.hazards.Report(ctx, flinders, 15*time.Minute, "flooding")
		require.NoError(t, err)
		assert.Equal(t, "hz-42", h.ID())
		assert.True(t, h.Confirmed())

		views := f.state.Snapshot().Hazards
		require.Len(t, views, 1)
		assert.Equal(t, "hz-42", views[0].ID)
		assert.Equal(t, h.LocalID, views[0].LocalID)
		assert.True(t, views[0].Confirmed)
	})

	t.Run("failure keeps the local hazard", func(t *testing.T) {
		f := newHazardFixture(t)
		f.backend.On("CreateHazard", mock.Anything, mock.Anything).Return("", apperrors.ErrUnavailable).Once()

		h, err := f.hazards.Report(ctx, flinders, 15*time.Minute, "flooding")
		require.NoError(t, err)
		assert.False(t, h.Confirmed())
		assert.Equal(t, 1, f.hazards.Len())

		advisory, ok := f.state.Advisory(domain.ClassHazards)
		require.True(t, ok)
		assert.Equal(t, apperrors.CodeUnavailable, advisory.Code)
	})
}

func TestHazardManager_Reconcile(t *testing.T) {
	f := newHazardFixture(t)
	now := f.clock.Now()
	local, err := f.hazards.Place(flinders, 15*time.Minute, "flooding")
	require.NoError(t, err)

	snapshot := domain.HazardSnapshot{
		ServerNow: now,
		Items: []domain.ActiveHazard{
			{PublicID: "hz-1", Position: domain.Point{Lat: -37.81, Lon: 144.96}, Kind: "debris", ExpiresAt: now.Add(10 * time.Minute)},
			{PublicID: "hz-2", Position: domain.Point{Lat: -37.82, Lon: 144.97}, Kind: "debris", ExpiresAt: now.Add(-time.Second)},
			{PublicID: "hz-3", Position: flinders, Kind: "flooding", ExpiresAt: now.Add(15 * time.Minute), ClientRef: local.LocalID},
		},
	}

	assert.Equal(t, 1, f.hazards.Reconcile(snapshot))
	assert.Equal(t, 2, f.hazards.Len())
	assert.Equal(t, 0, f.hazards.Reconcile(snapshot), "reconcile is idempotent")
	assert.Equal(t, 2, f.hazards.Len())

	confirmed, ok := f.hazards.Get(local.LocalID)
	require.True(t, ok)
	assert.Equal(t, "hz-3", confirmed.BackendID)

	synced, ok := f.hazards.Get("hz-1")
	require.True(t, ok)
	assert.Equal(t, 10*time.Minute, synced.TTL)

	t.Run("remaining is measured against server time", func(t *testing.T) {
		skewed := domain.HazardSnapshot{
			ServerNow: now.Add(-time.Hour),
			Items: []domain.ActiveHazard{
				{PublicID: "hz-4", Position: flinders, Kind: "x", ExpiresAt: now.Add(-50 * time.Minute)},
			},
		}
		assert.Equal(t, 1, f.hazards.Reconcile(skewed))
		h, ok := f.hazards.Get("hz-4")
		require.True(t, ok)
		assert.Equal(t, 10*time.Minute, h.TTL)
	})
}

func TestHazardManager_Remove(t *testing.T) {
	f := newHazardFixture(t)
	a, err := f.hazards.Place(flinders, time.Minute, "a")
	require.NoError(t, err)
	b, err := f.hazards.Place(flinders, time.Minute, "b")
	require.NoError(t, err)
	require.True(t, f.hazards.Confirm(b.LocalID, "hz-b"))
	assert.False(t, f.hazards.Confirm(b.LocalID, "hz-other"), "confirmed hazards keep their id")

	assert.NoError(t, f.hazards.Remove(a.LocalID))
	assert.NoError(t, f.hazards.Remove("hz-b"))
	assert.ErrorIs(t, f.hazards.Remove("hz-b"), apperrors.ErrHazardNotFound)
	assert.Equal(t, 0, f.hazards.Len())
	assert.False(t, f.hazards.TickerRunning())
}

func TestHazardManager_ConfirmDropsSyncedDuplicate(t *testing.T) {
	f := newHazardFixture(t)
	now := f.clock.Now()
	local, err := f.hazards.Place(flinders, 15*time.Minute, "flooding")
	require.NoError(t, err)

	// the sync saw the hazard before the create call returned, without a client_ref echo
	f.hazards.Reconcile(domain.HazardSnapshot{ServerNow: now, Items: []domain.ActiveHazard{
		{PublicID: "hz-7", Position: flinders, Kind: "flooding", ExpiresAt: now.Add(15 * time.Minute)},
	}})
	require.Equal(t, 2, f.hazards.Len())

	require.True(t, f.hazards.Confirm(local.LocalID, "hz-7"))
	assert.Equal(t, 1, f.hazards.Len())
	h, ok := f.hazards.Get("hz-7")
	require.True(t, ok)
	assert.Equal(t, local.LocalID, h.LocalID)
}

func TestHazardManager_Sync(t *testing.T) {
	f := newHazardFixture(t)
	ctx := context.Background()
	bounds := melbourneViewport(15).Bounds
	now := f.clock.Now()
	f.backend.On("ActiveHazards", mock.Anything, bounds).Return(&domain.HazardSnapshot{
		ServerNow: now,
		Items: []domain.ActiveHazard{
			{PublicID: "hz-1", Position: flinders, Kind: "debris", ExpiresAt: now.Add(time.Minute)},
		},
	}, nil).Once()
	f.backend.On("ActiveHazards", mock.Anything, bounds).Return(nil, apperrors.ErrUnavailable).Once()

	placed, err := f.hazards.Sync(ctx, bounds)
	require.NoError(t, err)
	assert.Equal(t, 1, placed)

	_, err = f.hazards.Sync(ctx, bounds)
	assert.ErrorIs(t, err, apperrors.ErrUnavailable)
	assert.Equal(t, 1, f.hazards.Len())
}
