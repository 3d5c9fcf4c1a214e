package domain

import (
	"fmt"
	"math"
)

const (
	queryWindowVersion  = "v1"
	queryWindowDecimals = 1000.0
)

// QueryWindow is a viewport quantized to roughly 110 m so nearby pans share a cache key.
type QueryWindow struct {
	North float64 `json:"n"`
	East  float64 `json:"e"`
	South float64 `json:"s"`
	West  float64 `json:"w"`
	Zoom  int     `json:"zoom"`
	Limit int     `json:"limit"`
}

func NewQueryWindow(vp Viewport, limit int) QueryWindow {
	return QueryWindow{
		North: quantize(vp.Bounds.MaxLat),
		East:  quantize(vp.Bounds.MaxLon),
		South: quantize(vp.Bounds.MinLat),
		West:  quantize(vp.Bounds.MinLon),
		Zoom:  int(math.Round(vp.Zoom)),
		Limit: limit,
	}
}

// Key is deterministic: equal windows always produce equal keys.
func (w QueryWindow) Key() string {
	return fmt.Sprintf("%s|z%d|%.3f,%.3f,%.3f,%.3f|L%d",
		queryWindowVersion, w.Zoom, w.North, w.East, w.South, w.West, w.Limit)
}

func (w QueryWindow) Bounds() BoundingBox {
	return BoundingBox{MinLat: w.South, MinLon: w.West, MaxLat: w.North, MaxLon: w.East}
}

func quantize(v float64) float64 {
	q := math.Round(v*queryWindowDecimals) / queryWindowDecimals
	if q == 0 {
		// drop negative zero so "-0.000" and "0.000" never split a key
		return 0
	}
	return q
}
