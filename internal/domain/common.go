package domain

import (
	"math"

	"github.com/paulmach/orb"
)

type Point struct {
	Lat float64 `json:"lat" db:"lat"`
	Lon float64 `json:"lon" db:"lon"`
}

// Orb converts to orb's lon/lat ordering.
func (p Point) Orb() orb.Point {
	return orb.Point{p.Lon, p.Lat}
}

func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lon, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

func PointFromOrb(p orb.Point) Point {
	return Point{Lat: p.Lat(), Lon: p.Lon()}
}

type BoundingBox struct {
	MinLat float64 `json:"min_lat" db:"min_lat"`
	MinLon float64 `json:"min_lon" db:"min_lon"`
	MaxLat float64 `json:"max_lat" db:"max_lat"`
	MaxLon float64 `json:"max_lon" db:"max_lon"`
}

func (b BoundingBox) Orb() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.MinLon, b.MinLat},
		Max: orb.Point{b.MaxLon, b.MaxLat},
	}
}

func (b BoundingBox) Center() Point {
	return PointFromOrb(b.Orb().Center())
}

func (b BoundingBox) Contains(p Point) bool {
	return b.Orb().Contains(p.Orb())
}

func (b BoundingBox) Valid() bool {
	sw := Point{Lat: b.MinLat, Lon: b.MinLon}
	ne := Point{Lat: b.MaxLat, Lon: b.MaxLon}
	return sw.Valid() && ne.Valid() && b.MinLat <= b.MaxLat && b.MinLon <= b.MaxLon
}

// BoundsAround returns the smallest box containing both points.
func BoundsAround(a, b Point) BoundingBox {
	return BoundingBox{
		MinLat: math.Min(a.Lat, b.Lat),
		MinLon: math.Min(a.Lon, b.Lon),
		MaxLat: math.Max(a.Lat, b.Lat),
		MaxLon: math.Max(a.Lon, b.Lon),
	}
}

// Viewport is what the map reports after a pan or zoom.
type Viewport struct {
	Bounds BoundingBox `json:"bounds"`
	Zoom   float64     `json:"zoom"`
}

func (v Viewport) Valid() bool {
	return v.Bounds.Valid() && v.Zoom >= 0 && v.Zoom <= 24 && !math.IsNaN(v.Zoom)
}
