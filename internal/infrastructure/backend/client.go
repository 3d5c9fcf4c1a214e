package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/mapsync-service/internal/config"
	"github.com/mapsync-service/internal/domain"
	"github.com/mapsync-service/internal/domain/repository"
	apperrors "github.com/mapsync-service/internal/pkg/errors"
	"github.com/mapsync-service/internal/pkg/metrics"
)

const maxErrorBody = 2048

type client struct {
	httpClient *http.Client
	baseURL    string
	logger     *zap.Logger
}

// NewClient builds the transport to the geo-data backend.
func NewClient(cfg *config.BackendConfig, logger *zap.Logger) repository.BackendRepository {
	return NewClientWithHTTP(cfg.BaseURL, &http.Client{Timeout: cfg.Timeout}, logger)
}

func NewClientWithHTTP(baseURL string, httpClient *http.Client, logger *zap.Logger) repository.BackendRepository {
	return &client{
		httpClient: httpClient,
		baseURL:    baseURL,
		logger:     logger,
	}
}

func (c *client) FetchVenues(ctx context.Context, window domain.QueryWindow) ([]domain.VenueRecord, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(window.Limit))
	q.Set("n", formatCoord(window.North))
	q.Set("s", formatCoord(window.South))
	q.Set("e", formatCoord(window.East))
	q.Set("w", formatCoord(window.West))

	var resp venuesResponse
	if err := c.do(ctx, "venues", http.MethodGet, "/api/venues?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Venues == nil {
		return nil, apperrors.Wrap(apperrors.ErrMalformedResponse, errors.New("venues: missing venues array"))
	}

	records := make([]domain.VenueRecord, 0, len(resp.Venues))
	for i, raw := range resp.Venues {
		var v venuePayload
		if err := json.Unmarshal(raw, &v); err != nil {
			c.logger.Warn("Skipping malformed venue", zap.Int("index", i), zap.Error(err))
			continue
		}
		records = append(records, v.record())
	}
	return records, nil
}

func (c *client) ScoreRoutes(ctx context.Context, req domain.ScoreRequest) ([]domain.RouteScore, error) {
	var resp scoreResponse
	if err := c.do(ctx, "route_score", http.MethodPost, "/api/route/score", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Routes) != len(req.Polylines) {
		return nil, apperrors.Wrap(apperrors.ErrMalformedResponse,
			fmt.Errorf("route score: got %d routes for %d polylines", len(resp.Routes), len(req.Polylines)))
	}
	return resp.Routes, nil
}

func (c *client) FetchDisruptions(ctx context.Context, encodedPath string, radiusMeters int) ([]domain.DisruptionRecord, error) {
	q := url.Values{}
	q.Set("polyline", encodedPath)
	q.Set("radius_m", strconv.Itoa(radiusMeters))

	var resp disruptionsResponse
	if err := c.do(ctx, "disruptions", http.MethodGet, "/api/disruptions/along-route?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}

	records := make([]domain.DisruptionRecord, 0, len(resp.Features))
	for _, f := range resp.Features {
		records = append(records, f.record())
	}
	return records, nil
}

func (c *client) CreateHazard(ctx context.Context, report domain.HazardReport) (string, error) {
	var resp createHazardResponse
	if err := c.do(ctx, "hazard_create", http.MethodPost, "/api/hazards/", report, &resp); err != nil {
		return "", err
	}
	id := resp.ID.String()
	if id == "" {
		return "", apperrors.Wrap(apperrors.ErrMalformedResponse, errors.New("hazard create: missing id"))
	}
	return id, nil
}

func (c *client) ActiveHazards(ctx context.Context, bounds domain.BoundingBox) (*domain.HazardSnapshot, error) {
	q := url.Values{}
	q.Set("sw_lat", formatCoord(bounds.MinLat))
	q.Set("sw_lng", formatCoord(bounds.MinLon))
	q.Set("ne_lat", formatCoord(bounds.MaxLat))
	q.Set("ne_lng", formatCoord(bounds.MaxLon))

	var resp activeHazardsResponse
	if err := c.do(ctx, "hazards_active", http.MethodGet, "/api/hazards/active/?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}

	snapshot := &domain.HazardSnapshot{Items: make([]domain.ActiveHazard, 0, len(resp.Items))}
	if t, ok := parseTimestamp(resp.Now); ok {
		snapshot.ServerNow = t
	}
	for i, raw := range resp.Items {
		var item hazardPayload
		if err := json.Unmarshal(raw, &item); err != nil {
			c.logger.Warn("Skipping malformed hazard", zap.Int("index", i), zap.Error(err))
			continue
		}
		h, err := item.toDomain()
		if err != nil {
			c.logger.Warn("Skipping malformed hazard", zap.String("public_id", item.PublicID.String()), zap.Error(err))
			continue
		}
		snapshot.Items = append(snapshot.Items, h)
	}
	return snapshot, nil
}

// do performs one JSON round trip. Transport failures and non-2xx statuses
// map to ErrUnavailable, undecodable bodies to ErrMalformedResponse.
// Context cancellation is returned unwrapped by category so callers can tell it apart.
func (c *client) do(ctx context.Context, endpoint, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		c.logger.Error("Failed to create request", zap.String("endpoint", endpoint), zap.Error(err))
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("Calling backend", zap.String("endpoint", endpoint), zap.String("method", method), zap.String("path", path))

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveBackend(endpoint, 0, start)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s: %w", endpoint, ctxErr)
		}
		c.logger.Warn("Backend request failed", zap.String("endpoint", endpoint), zap.Error(err))
		return apperrors.Wrap(apperrors.ErrUnavailable, err)
	}
	defer resp.Body.Close()
	metrics.ObserveBackend(endpoint, resp.StatusCode, start)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warn("Backend returned error",
			zap.String("endpoint", endpoint),
			zap.Int("status_code", resp.StatusCode),
			zap.String("body", string(raw)))
		return apperrors.Wrap(apperrors.ErrUnavailable, fmt.Errorf("%s: status %d", endpoint, resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s: %w", endpoint, ctxErr)
		}
		c.logger.Error("Failed to decode backend response", zap.String("endpoint", endpoint), zap.Error(err))
		return apperrors.Wrap(apperrors.ErrMalformedResponse, fmt.Errorf("%s: %w", endpoint, err))
	}

	return nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
