package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mapsync-service/internal/config"
	"github.com/mapsync-service/internal/domain"
	apperrors "github.com/mapsync-service/internal/pkg/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := &config.BackendConfig{BaseURL: server.URL, Timeout: 5 * time.Second}
	return NewClient(cfg, zap.NewNop()).(*client)
}

func TestClient_FetchVenues(t *testing.T) {
	window := domain.QueryWindow{North: -37.801, East: 144.973, South: -37.821, West: 144.953, Zoom: 14, Limit: 120}

	t.Run("successful request", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/venues", r.URL.Path)
			assert.Equal(t, "120", r.URL.Query().Get("limit"))
			assert.Equal(t, "-37.801000", r.URL.Query().Get("n"))
			assert.Equal(t, "144.953000", r.URL.Query().Get("w"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"venues":[{"id":"a","name":"Bar","lat":-37.81,"lng":144.96},{"id":"b","name":"No coords"}]}`)
		})

		venues, err := c.FetchVenues(context.Background(), window)
		require.NoError(t, err)
		require.Len(t, venues, 2)
		assert.Equal(t, "a", venues[0].ID)
		require.NotNil(t, venues[0].Lat)
		assert.Equal(t, -37.81, *venues[0].Lat)
		assert.Nil(t, venues[1].Lat)
	})

	t.Run("mistyped record does not fail the batch", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"venues":[
				{"id":"a","name":"Bar","lat":-37.81,"lng":144.96},
				{"id":"b","name":"Bad lat","lat":"n/a","lng":144.96},
				{"id":"c","name":{"en":"Object name"},"lat":-37.81,"lng":144.96},
				{"id":7,"name":"Cafe","lat":"-37.812","lng":144.961}
			]}`)
		})

		venues, err := c.FetchVenues(context.Background(), window)
		require.NoError(t, err)
		require.Len(t, venues, 3)

		assert.Equal(t, "a", venues[0].ID)
		assert.Equal(t, "b", venues[1].ID)
		assert.Nil(t, venues[1].Lat)
		assert.Equal(t, "7", venues[2].ID)
		require.NotNil(t, venues[2].Lat)
		assert.Equal(t, -37.812, *venues[2].Lat)
	})

	t.Run("server error is unavailable", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})

		_, err := c.FetchVenues(context.Background(), window)
		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrUnavailable)
	})

	t.Run("bad json is malformed", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"venues":[`)
		})

		_, err := c.FetchVenues(context.Background(), window)
		assert.ErrorIs(t, err, apperrors.ErrMalformedResponse)
	})

	t.Run("missing array is malformed", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{}`)
		})

		_, err := c.FetchVenues(context.Background(), window)
		assert.ErrorIs(t, err, apperrors.ErrMalformedResponse)
	})

	t.Run("cancelled context is not unavailable", func(t *testing.T) {
		release := make(chan struct{})
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			<-release
		})
		defer close(release)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := c.FetchVenues(ctx, window)
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.Canceled))
		assert.False(t, errors.Is(err, apperrors.ErrUnavailable))
	})
}

func TestClient_ScoreRoutes(t *testing.T) {
	t.Run("sends polylines and decodes scores", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/api/route/score", r.URL.Path)

			var req domain.ScoreRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, []string{"abc"}, req.Polylines)
			assert.Equal(t, "night", req.When)
			assert.Equal(t, 60, req.Minutes)

			_, _ = io.WriteString(w, `{"routes":[{"overall":0.71,"label":"green"}]}`)
		})

		scores, err := c.ScoreRoutes(context.Background(), domain.ScoreRequest{Polylines: []string{"abc"}, When: "night", Minutes: 60})
		require.NoError(t, err)
		require.Len(t, scores, 1)
		assert.Equal(t, 0.71, scores[0].Overall)
		assert.Equal(t, "green", scores[0].Label)
	})

	t.Run("route count mismatch is malformed", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"routes":[]}`)
		})

		_, err := c.ScoreRoutes(context.Background(), domain.ScoreRequest{Polylines: []string{"abc"}})
		assert.ErrorIs(t, err, apperrors.ErrMalformedResponse)
	})
}

func TestClient_FetchDisruptions(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/disruptions/along-route", r.URL.Path)
		assert.Equal(t, "enc", r.URL.Query().Get("polyline"))
		assert.Equal(t, "200", r.URL.Query().Get("radius_m"))
		_, _ = io.WriteString(w, `{"features":[
			{"properties":{"id":17,"title":"Works","impact":"Lane closed","when":{"start":"2025-06-01T08:00:00Z"},"distance_m":"42.5","marker":{"lat":-37.81,"lon":144.96}}},
			{"properties":{"title":"Event","road":"Swanston St"},"geometry":{"type":"Point","coordinates":[144.97,-37.82]}},
			{"properties":{"title":"Nowhere"}},
			{"properties":{"id":"L","title":"Closure"},"geometry":{"type":"LineString","coordinates":[[144.95,-37.80],[144.96,-37.81],[144.97,-37.82]]}},
			{"properties":{"id":"P","title":"Event zone"},"geometry":{"type":"Polygon","coordinates":[[[144.90,-37.70],[144.91,-37.70],[144.91,-37.71],[144.90,-37.70]]]}}
		]}`)
	})

	records, err := c.FetchDisruptions(context.Background(), "enc", 200)
	require.NoError(t, err)
	require.Len(t, records, 5)

	assert.Equal(t, "17", records[0].ID)
	require.NotNil(t, records[0].DistanceM)
	assert.Equal(t, 42.5, *records[0].DistanceM)
	assert.Equal(t, "2025-06-01T08:00:00Z", records[0].Start)
	assert.Equal(t, -37.81, *records[0].Lat)

	assert.Equal(t, "Swanston St", records[1].Location)
	require.NotNil(t, records[1].Lat)
	assert.Equal(t, -37.82, *records[1].Lat)
	assert.Equal(t, 144.97, *records[1].Lon)

	assert.Nil(t, records[2].Lat)
	assert.Nil(t, records[2].DistanceM)

	require.NotNil(t, records[3].Lat)
	assert.Equal(t, -37.81, *records[3].Lat)
	assert.Equal(t, 144.96, *records[3].Lon)

	require.NotNil(t, records[4].Lat)
	assert.Equal(t, -37.70, *records[4].Lat)
	assert.Equal(t, 144.90, *records[4].Lon)
}

func TestClient_CreateHazard(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/hazards/", r.URL.Path)
		var report domain.HazardReport
		require.NoError(t, json.NewDecoder(r.Body).Decode(&report))
		assert.Equal(t, 1800, report.TTLSecs)
		assert.Equal(t, "local:abc", report.ClientRef)
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":"hz_9"}`)
	})

	id, err := c.CreateHazard(context.Background(), domain.HazardReport{
		Lat: -37.81, Lng: 144.96, TTLSecs: 1800, Kind: "lighting", ClientRef: "local:abc",
	})
	require.NoError(t, err)
	assert.Equal(t, "hz_9", id)
}

func TestClient_ActiveHazards(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/hazards/active/", r.URL.Path)
		assert.Equal(t, "-37.821000", r.URL.Query().Get("sw_lat"))
		assert.Equal(t, "144.973000", r.URL.Query().Get("ne_lng"))
		_, _ = io.WriteString(w, `{"now":"2025-06-01T22:00:00Z","items":[
			{"public_id":"hz_1","lat":-37.81,"lng":144.96,"kind":"lighting","created_at":"2025-06-01T21:50:00Z","expires_at":"2025-06-01T22:20:00Z","client_ref":"local:x"},
			{"public_id":"hz_2","lat":-37.81,"kind":"debris","expires_at":"2025-06-01T22:20:00Z"},
			{"public_id":"hz_3","lat":-37.81,"lng":144.96,"kind":"debris","expires_at":"soon"},
			{"public_id":"hz_4","lat":"n/a","lng":144.96,"kind":"debris","expires_at":"2025-06-01T22:20:00Z"},
			{"public_id":"hz_5","lat":[1],"lng":144.96,"kind":"debris","expires_at":"2025-06-01T22:20:00Z"},
			{"public_id":"hz_6","lat":"-37.82","lng":144.97,"kind":"debris","expires_at":"2025-06-01T22:10:00Z"}
		]}`)
	})

	snap, err := c.ActiveHazards(context.Background(), domain.BoundingBox{MinLat: -37.821, MinLon: 144.953, MaxLat: -37.801, MaxLon: 144.973})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 1, 22, 0, 0, 0, time.UTC), snap.ServerNow)
	require.Len(t, snap.Items, 2)
	assert.Equal(t, "hz_1", snap.Items[0].PublicID)
	assert.Equal(t, "hz_6", snap.Items[1].PublicID)
	assert.Equal(t, -37.82, snap.Items[1].Position.Lat)
	assert.Equal(t, "local:x", snap.Items[0].ClientRef)
	assert.Equal(t, 20*time.Minute, snap.Items[0].ExpiresAt.Sub(snap.ServerNow))
}
