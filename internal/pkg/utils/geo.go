package utils

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
)

const metersPerDegreeLat = 111320.0

// Quantize rounds v to the given number of decimals.
func Quantize(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

// DistanceMeters is the great-circle distance between two points.
func DistanceMeters(a, b orb.Point) float64 {
	return geo.Distance(a, b)
}

// DistanceToSegmentMeters approximates the distance from p to segment a-b by
// projecting all three into a local equirectangular plane around p.
func DistanceToSegmentMeters(p, a, b orb.Point) float64 {
	origin := p
	return planar.DistanceFromSegment(project(a, origin), project(b, origin), orb.Point{0, 0})
}

// DistanceToPathMeters is the smallest segment distance from p to path.
func DistanceToPathMeters(p orb.Point, path orb.LineString) float64 {
	switch len(path) {
	case 0:
		return math.Inf(1)
	case 1:
		return DistanceMeters(p, path[0])
	}
	best := math.Inf(1)
	for i := 1; i < len(path); i++ {
		if d := DistanceToSegmentMeters(p, path[i-1], path[i]); d < best {
			best = d
		}
	}
	return best
}

// Midpoint returns the vertex halfway along the path by index.
func Midpoint(path orb.LineString) (orb.Point, bool) {
	if len(path) == 0 {
		return orb.Point{}, false
	}
	return path[len(path)/2], true
}

func project(p, origin orb.Point) orb.Point {
	cos := math.Cos(origin.Lat() * math.Pi / 180)
	return orb.Point{
		(p.Lon() - origin.Lon()) * metersPerDegreeLat * cos,
		(p.Lat() - origin.Lat()) * metersPerDegreeLat,
	}
}

// ValidateCoordinates reports whether lat/lon are finite and inside WGS84 ranges.
func ValidateCoordinates(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
