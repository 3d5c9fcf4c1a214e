package repository

import (
	"context"

	"github.com/mapsync-service/internal/domain"
)

// BackendRepository is the transport to the geo-data backend.
// Every method honors ctx cancellation.
type BackendRepository interface {
	// FetchVenues returns raw venue records inside the window, in delivery order.
	FetchVenues(ctx context.Context, window domain.QueryWindow) ([]domain.VenueRecord, error)

	// ScoreRoutes returns one score per polyline, in request order.
	ScoreRoutes(ctx context.Context, req domain.ScoreRequest) ([]domain.RouteScore, error)

	// FetchDisruptions returns features within radiusMeters of the encoded path.
	FetchDisruptions(ctx context.Context, encodedPath string, radiusMeters int) ([]domain.DisruptionRecord, error)

	// CreateHazard returns the backend id of the new hazard.
	CreateHazard(ctx context.Context, report domain.HazardReport) (string, error)

	ActiveHazards(ctx context.Context, bounds domain.BoundingBox) (*domain.HazardSnapshot, error)
}
