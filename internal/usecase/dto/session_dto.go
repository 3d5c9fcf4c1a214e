package dto

import (
	"time"

	"github.com/mapsync-service/internal/domain"
)

// ViewportRequest is a map viewport as reported by the client.
type ViewportRequest struct {
	North float64 `json:"north" validate:"latitude"`
	South float64 `json:"south" validate:"latitude,ltefield=North"`
	East  float64 `json:"east" validate:"longitude"`
	West  float64 `json:"west" validate:"longitude,ltefield=East"`
	Zoom  float64 `json:"zoom" validate:"gte=0,lte=24"`
}

func (r ViewportRequest) Viewport() domain.Viewport {
	return domain.Viewport{
		Bounds: domain.BoundingBox{MinLat: r.South, MinLon: r.West, MaxLat: r.North, MaxLon: r.East},
		Zoom:   r.Zoom,
	}
}

type RouteRequest struct {
	Kind         string `json:"kind"`
	Polyline     string `json:"polyline" validate:"required"`
	DistanceText string `json:"distance_text"`
	DurationText string `json:"duration_text"`
}

func (r RouteRequest) Candidate() domain.RouteCandidate {
	return domain.RouteCandidate{
		Kind:         r.Kind,
		EncodedPath:  r.Polyline,
		DistanceText: r.DistanceText,
		DurationText: r.DurationText,
	}
}

type CompareRequest struct {
	Routes []RouteRequest `json:"routes" validate:"required,min=1,max=5,dive"`
}

func (r CompareRequest) Candidates() []domain.RouteCandidate {
	out := make([]domain.RouteCandidate, len(r.Routes))
	for i, route := range r.Routes {
		out[i] = route.Candidate()
	}
	return out
}

// HazardRequest reports a hazard. TTLSecs is optional and limited to the offered choices.
type HazardRequest struct {
	Lat     float64 `json:"lat" validate:"latitude"`
	Lng     float64 `json:"lng" validate:"longitude"`
	TTLSecs int     `json:"ttl_secs" validate:"omitempty,oneof=900 1800 3600"`
	Kind    string  `json:"kind" validate:"hazard_kind"`
}

func (r HazardRequest) Position() domain.Point {
	return domain.Point{Lat: r.Lat, Lon: r.Lng}
}

func (r HazardRequest) TTL() time.Duration {
	return time.Duration(r.TTLSecs) * time.Second
}

type RouteResponse struct {
	Value domain.ScoreValue `json:"value"`
	Color string            `json:"color"`
}

type HazardResponse struct {
	ID        string `json:"id"`
	LocalID   string `json:"local_id"`
	Kind      string `json:"kind"`
	Confirmed bool   `json:"confirmed"`
	TTLSecs   int    `json:"ttl_secs"`
}

func NewHazardResponse(h domain.Hazard) HazardResponse {
	return HazardResponse{
		ID:        h.ID(),
		LocalID:   h.LocalID,
		Kind:      h.Kind,
		Confirmed: h.Confirmed(),
		TTLSecs:   int(h.TTL / time.Second),
	}
}

type SyncResponse struct {
	Placed int `json:"placed"`
}
