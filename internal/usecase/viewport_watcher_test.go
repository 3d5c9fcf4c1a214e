package usecase_test

import (
	"context"
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

type watcherFixture struct {
	clock   *clock.Mock
	backend *MockBackend
	state   *usecase.MapState
	cache   *usecase.WindowedCache[[]domain.VenueRecord]
	watcher *usecase.ViewportWatcher
}

func newWatcherFixture(t *testing.T, moveThreshold float64) *watcherFixture {
	t.Helper()
	cfg := testConfig()
	clk := newMockClock()
	backend := &MockBackend{}
	state := usecase.NewMapState(clk, nil, zap.NewNop())
	coord := usecase.NewRequestCoordinator(state, zap.NewNop())
	cache := usecase.NewWindowedCache[[]domain.VenueRecord](venueCacheOptions, nil, clk, zap.NewNop())
	watcher := usecase.NewViewportWatcher(usecase.ViewportConfig{
		Debounce:      cfg.Viewport.Debounce,
		MoveThreshold: moveThreshold,
		Limits:        cfg.Viewport.Limits,
		ZoomTiers:     cfg.Viewport.ZoomTiers,
	}, clk, cache, backend, coord, state, zap.NewNop())
	t.Cleanup(watcher.Close)

	return &watcherFixture{clock: clk, backend: backend, state: state, cache: cache, watcher: watcher}
}

func shifted(vp domain.Viewport, dLat float64) domain.Viewport {
	vp.Bounds.MinLat += dLat
	vp.Bounds.MaxLat += dLat
	return vp
}

func TestViewportWatcher_LimitForZoom(t *testing.T) {
	f := newWatcherFixture(t, 0.01)

	tests := []struct {
		zoom float64
		want int
	}{
		{zoom: 10, want: 120},
		{zoom: 13.9, want: 120},
		{zoom: 14, want: 250},
		{zoom: 15.5, want: 250},
		{zoom: 16, want: 500},
		{zoom: 19, want: 500},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, f.watcher.LimitForZoom(tt.zoom), "zoom %v", tt.zoom)
	}
}

func TestViewportWatcher_Debounce(t *testing.T) {
	f := newWatcherFixture(t, 0.01)
	final := shifted(melbourneViewport(15), 0.05)
	want := domain.NewQueryWindow(final, 250)

	f.backend.On("FetchVenues", mock.Anything, want).
		Return([]domain.VenueRecord{venueRecord("1", -37.76, 144.96)}, nil).Once()

	require.NoError(t, f.watcher.OnViewportChanged(melbourneViewport(15)))
	f.clock.Add(200 * time.Millisecond)
	require.NoError(t, f.watcher.OnViewportChanged(shifted(melbourneViewport(15), 0.02)))
	f.clock.Add(200 * time.Millisecond)
	require.NoError(t, f.watcher.OnViewportChanged(final))

	f.clock.Add(349 * time.Millisecond)
	f.backend.AssertNotCalled(t, "FetchVenues", mock.Anything, mock.Anything)

	f.clock.Add(time.Millisecond)
	require.Eventually(t, func() bool { return len(f.state.Snapshot().Venues) == 1 }, time.Second, time.Millisecond)
	f.watcher.Wait()

	snap := f.state.Snapshot()
	require.NotNil(t, snap.Window)
	assert.Equal(t, want.Key(), snap.Window.Key())
	f.backend.AssertNumberOfCalls(t, "FetchVenues", 1)
}

func TestViewportWatcher_InvalidViewport(t *testing.T) {
	f := newWatcherFixture(t, 0.01)
	vp := melbourneViewport(15)
	vp.Bounds.MinLat, vp.Bounds.MaxLat = vp.Bounds.MaxLat, vp.Bounds.MinLat

	err := f.watcher.OnViewportChanged(vp)
	assert.ErrorIs(t, err, apperrors.ErrInvalidViewport)
}

func TestViewportWatcher_NoiseThreshold(t *testing.T) {
	f := newWatcherFixture(t, 0.01)
	f.backend.On("FetchVenues", mock.Anything, mock.Anything).Return([]domain.VenueRecord{}, nil)

	require.NoError(t, f.watcher.OnViewportChanged(melbourneViewport(15)))
	f.watcher.Flush()
	f.watcher.Wait()
	f.backend.AssertNumberOfCalls(t, "FetchVenues", 1)

	t.Run("small pan is ignored", func(t *testing.T) {
		require.NoError(t, f.watcher.OnViewportChanged(shifted(melbourneViewport(15), 0.005)))
		f.watcher.Flush()
		f.watcher.Wait()
		f.backend.AssertNumberOfCalls(t, "FetchVenues", 1)
	})

	t.Run("fractional zoom is ignored", func(t *testing.T) {
		require.NoError(t, f.watcher.OnViewportChanged(melbourneViewport(15.6)))
		f.watcher.Flush()
		f.watcher.Wait()
		f.backend.AssertNumberOfCalls(t, "FetchVenues", 1)
	})

	t.Run("a whole zoom level is not noise", func(t *testing.T) {
		require.NoError(t, f.watcher.OnViewportChanged(melbourneViewport(16)))
		f.watcher.Flush()
		f.watcher.Wait()
		f.backend.AssertNumberOfCalls(t, "FetchVenues", 2)
	})

	t.Run("a real pan is not noise", func(t *testing.T) {
		require.NoError(t, f.watcher.OnViewportChanged(shifted(melbourneViewport(16), 0.02)))
		f.watcher.Flush()
		f.watcher.Wait()
		f.backend.AssertNumberOfCalls(t, "FetchVenues", 3)
	})
}

func TestViewportWatcher_OffsetWindowsShareOneRequest(t *testing.T) {
	f := newWatcherFixture(t, 0)
	release := make(chan struct{})
	f.backend.On("FetchVenues", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { <-release }).
		Return([]domain.VenueRecord{venueRecord("1", -37.81, 144.96)}, nil)

	first := melbourneViewport(15)
	second := shifted(first, 0.0001)
	require.Equal(t, domain.NewQueryWindow(first, 250).Key(), domain.NewQueryWindow(second, 250).Key())

	require.NoError(t, f.watcher.OnViewportChanged(first))
	f.watcher.Flush()
	require.Eventually(t, func() bool {
		_, pending := f.cache.Pending(domain.NewQueryWindow(first, 250).Key())
		return pending
	}, time.Second, time.Millisecond)

	require.NoError(t, f.watcher.OnViewportChanged(second))
	f.watcher.Flush()
	close(release)
	f.watcher.Wait()

	f.backend.AssertNumberOfCalls(t, "FetchVenues", 1)
	assert.Len(t, f.state.Snapshot().Venues, 1)
}

func TestViewportWatcher_StaleResponseIsDropped(t *testing.T) {
	f := newWatcherFixture(t, 0.01)
	slow := melbourneViewport(15)
	fast := shifted(slow, 0.1)
	release := make(chan struct{})

	f.backend.On("FetchVenues", mock.Anything, domain.NewQueryWindow(slow, 250)).
		Run(func(mock.Arguments) { <-release }).
		Return([]domain.VenueRecord{venueRecord("slow", -37.81, 144.96)}, nil).Once()
	f.backend.On("FetchVenues", mock.Anything, domain.NewQueryWindow(fast, 250)).
		Return([]domain.VenueRecord{venueRecord("fast", -37.71, 144.96)}, nil).Once()

	require.NoError(t, f.watcher.OnViewportChanged(slow))
	f.watcher.Flush()
	require.NoError(t, f.watcher.OnViewportChanged(fast))
	f.watcher.Flush()

	require.Eventually(t, func() bool { return len(f.state.Snapshot().Venues) == 1 }, time.Second, time.Millisecond)
	close(release)
	f.watcher.Wait()

	venues := f.state.Snapshot().Venues
	require.Len(t, venues, 1)
	assert.Equal(t, "fast", venues[0].ID)
	window, ok := f.watcher.LastWindow()
	require.True(t, ok)
	assert.Equal(t, domain.NewQueryWindow(fast, 250), window)
}

func TestViewportWatcher_CachedWindowSkipsBackend(t *testing.T) {
	f := newWatcherFixture(t, 0.01)
	a := melbourneViewport(15)
	b := shifted(a, 0.1)
	f.backend.On("FetchVenues", mock.Anything, mock.Anything).
		Return([]domain.VenueRecord{venueRecord("1", -37.81, 144.96)}, nil)

	for _, vp := range []domain.Viewport{a, b, a} {
		require.NoError(t, f.watcher.OnViewportChanged(vp))
		f.watcher.Flush()
		f.watcher.Wait()
	}
	f.backend.AssertNumberOfCalls(t, "FetchVenues", 2)

	t.Run("refresh bypasses the cache", func(t *testing.T) {
		assert.True(t, f.watcher.Refresh(context.Background()))
		f.watcher.Wait()
		f.backend.AssertNumberOfCalls(t, "FetchVenues", 3)
	})
}

func TestViewportWatcher_Materialize(t *testing.T) {
	f := newWatcherFixture(t, 0.01)
	records := []domain.VenueRecord{
		venueRecord("ok", -37.81, 144.96),
		{ID: "no-coords", Name: "Missing"},
		venueRecord("bad-lat", -137.81, 144.96),
	}
	for i := 0; i < 130; i++ {
		records = append(records, venueRecord("bulk", -37.81, 144.96))
	}
	f.backend.On("FetchVenues", mock.Anything, mock.Anything).Return(records, nil)

	require.NoError(t, f.watcher.OnViewportChanged(melbourneViewport(12)))
	f.watcher.Flush()
	f.watcher.Wait()

	venues := f.state.Snapshot().Venues
	assert.Len(t, venues, 120)
	assert.Equal(t, "ok", venues[0].ID)
	for _, v := range venues[1:] {
		assert.Equal(t, "bulk", v.ID)
	}
}

func TestViewportWatcher_FailureKeepsVenues(t *testing.T) {
	f := newWatcherFixture(t, 0.01)
	a := melbourneViewport(15)
	b := shifted(a, 0.1)
	f.backend.On("FetchVenues", mock.Anything, domain.NewQueryWindow(a, 250)).
		Return([]domain.VenueRecord{venueRecord("1", -37.81, 144.96)}, nil)
	f.backend.On("FetchVenues", mock.Anything, domain.NewQueryWindow(b, 250)).
		Return(nil, apperrors.ErrUnavailable)

	require.NoError(t, f.watcher.OnViewportChanged(a))
	f.watcher.Flush()
	f.watcher.Wait()
	require.NoError(t, f.watcher.OnViewportChanged(b))
	f.watcher.Flush()
	f.watcher.Wait()

	snap := f.state.Snapshot()
	assert.Len(t, snap.Venues, 1)
	require.Len(t, snap.Advisories, 1)
	assert.Equal(t, domain.ClassVenues, snap.Advisories[0].Class)
}
