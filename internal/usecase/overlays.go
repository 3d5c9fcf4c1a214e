package usecase

import "github.com/mapsync-service/internal/domain"

// Overlays are the display side of the coordination layer. Calls arrive from
// background goroutines, already ordered by generation id, so implementations
// only need to guard their own state.

type VenueOverlay interface {
	// ReplaceVenues swaps the whole displayed set; venues is never reused by the caller.
	ReplaceVenues(window domain.QueryWindow, venues []domain.Venue)
}

type RouteOverlay interface {
	PaintRoute(route domain.RouteCandidate, value domain.ScoreValue, transition domain.Transition)
	ShowScoreStatus(status domain.ScoreStatus)
	ClearRoute()
}

type ComparisonOverlay interface {
	ShowComparison(ranked []domain.RankedRoute)
}

type DisruptionOverlay interface {
	ClearDisruptions()
	ShowDisruptionsLoading()
	PlaceDisruption(feature domain.DisruptionFeature)
	RenderDisruptionPanel(features []domain.DisruptionFeature, summary domain.DisruptionSummary)
}

// HazardOverlay keys hazards by local id, which never changes once assigned.
type HazardOverlay interface {
	AttachHazard(view domain.HazardView)
	UpdateHazard(view domain.HazardView)
	DetachHazard(localID string)
}
