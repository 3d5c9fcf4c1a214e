package usecase

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/twpayne/go-polyline"

	"github.com/mapsync-service/internal/domain"
	"github.com/mapsync-service/internal/pkg/utils"
)

const (
	heuristicSamples       = 48
	litProximityMeters     = 30.0
	venueRadiusMeters      = 600.0
	venueSaturation        = 6.0
	disruptionRadiusMeters = 200.0
	disruptionSaturation   = 3.0

	litWeight        = 0.5
	venueWeight      = 0.3
	disruptionWeight = 0.4
)

// SignalSource is the locally known context the heuristic scores against.
type SignalSource interface {
	LitSegments() []orb.LineString
	VenuePositions() []domain.Point
	DisruptionPositions() []domain.Point
}

// RouteHeuristic gives an instant, approximate score from lighting coverage,
// nearby venue density and known disruptions. It never touches the network.
type RouteHeuristic struct {
	signals SignalSource
}

func NewRouteHeuristic(signals SignalSource) *RouteHeuristic {
	return &RouteHeuristic{signals: signals}
}

// Score returns a value in [0,1]. An empty path scores 0.
func (h *RouteHeuristic) Score(path []domain.Point) float64 {
	n := len(path)
	if n == 0 {
		return 0
	}

	score := litWeight*math.Min(1, h.litCoverage(path)) +
		venueWeight*math.Min(1, float64(h.venuesNearStart(path))/venueSaturation) -
		disruptionWeight*math.Min(1, float64(h.disruptionsNearMiddle(path))/disruptionSaturation)

	return clamp01(score)
}

func (h *RouteHeuristic) litCoverage(path []domain.Point) float64 {
	segments := h.signals.LitSegments()
	if len(segments) == 0 {
		return 0
	}

	n := len(path)
	step := n / heuristicSamples
	if step < 1 {
		step = 1
	}

	hits, samples := 0, 0
	for i := 0; i < n; i += step {
		samples++
		p := path[i].Orb()
		for _, seg := range segments {
			if utils.DistanceToPathMeters(p, seg) <= litProximityMeters {
				hits++
				break
			}
		}
	}
	return float64(hits) / float64(samples)
}

func (h *RouteHeuristic) venuesNearStart(path []domain.Point) int {
	if len(path) < 2 {
		return 0
	}
	start, end := path[0], path[len(path)-1]
	bounds := domain.BoundsAround(start, end)

	count := 0
	for _, v := range h.signals.VenuePositions() {
		if bounds.Contains(v) && utils.DistanceMeters(v.Orb(), start.Orb()) <= venueRadiusMeters {
			count++
		}
	}
	return count
}

func (h *RouteHeuristic) disruptionsNearMiddle(path []domain.Point) int {
	mid := path[len(path)/2].Orb()

	count := 0
	for _, d := range h.signals.DisruptionPositions() {
		if utils.DistanceMeters(mid, d.Orb()) <= disruptionRadiusMeters {
			count++
		}
	}
	return count
}

// DecodePath decodes an encoded polyline into points.
func DecodePath(encoded string) ([]domain.Point, error) {
	coords, rest, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, fmt.Errorf("decode polyline: %w", err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("decode polyline: %d trailing bytes", len(rest))
	}

	path := make([]domain.Point, 0, len(coords))
	for _, c := range coords {
		p := domain.Point{Lat: c[0], Lon: c[1]}
		if !p.Valid() {
			return nil, fmt.Errorf("decode polyline: invalid vertex %v", c)
		}
		path = append(path, p)
	}
	return path, nil
}

// EncodePath is the inverse of DecodePath.
func EncodePath(path []domain.Point) string {
	coords := make([][]float64, 0, len(path))
	for _, p := range path {
		coords = append(coords, []float64{p.Lat, p.Lon})
	}
	return string(polyline.EncodeCoords(coords))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
