package domain

import (
	"strings"
	"time"
)

// LocalIDPrefix marks hazards that have not been acknowledged by the backend.
const LocalIDPrefix = "local:"

// HazardTTLChoices are the lifetimes a user may pick when reporting.
var HazardTTLChoices = []time.Duration{15 * time.Minute, 30 * time.Minute, time.Hour}

type Hazard struct {
	LocalID   string        `json:"local_id"`
	BackendID string        `json:"backend_id,omitempty"`
	Position  Point         `json:"position"`
	Kind      string        `json:"kind"`
	CreatedAt time.Time     `json:"created_at"`
	TTL       time.Duration `json:"ttl"`
}

// ID prefers the authoritative id once one is known.
func (h Hazard) ID() string {
	if h.BackendID != "" {
		return h.BackendID
	}
	return h.LocalID
}

func (h Hazard) Remaining(now time.Time) time.Duration {
	left := h.TTL - now.Sub(h.CreatedAt)
	if left < 0 {
		return 0
	}
	return left
}

func (h Hazard) Confirmed() bool {
	return h.BackendID != ""
}

func IsLocalHazardID(id string) bool {
	return strings.HasPrefix(id, LocalIDPrefix)
}

// ValidHazardTTL reports whether ttl is one of the offered choices.
func ValidHazardTTL(ttl time.Duration) bool {
	for _, c := range HazardTTLChoices {
		if c == ttl {
			return true
		}
	}
	return false
}

// HazardReport is the body of a hazard create request.
type HazardReport struct {
	Lat       float64 `json:"lat" validate:"latitude"`
	Lng       float64 `json:"lng" validate:"longitude"`
	TTLSecs   int     `json:"ttl_secs" validate:"gt=0"`
	Kind      string  `json:"kind" validate:"hazard_kind"`
	ClientRef string  `json:"client_ref,omitempty"`
}

// ActiveHazard is one backend hazard from an active-hazards snapshot.
type ActiveHazard struct {
	PublicID  string
	Position  Point
	Kind      string
	CreatedAt time.Time
	ExpiresAt time.Time
	ClientRef string
}

// HazardSnapshot carries the backend clock so remaining lifetimes are computed on its timeline.
type HazardSnapshot struct {
	ServerNow time.Time
	Items     []ActiveHazard
}

// HazardView is the overlay-facing state of one hazard.
type HazardView struct {
	ID        string        `json:"id"`
	LocalID   string        `json:"local_id"`
	Kind      string        `json:"kind"`
	Position  Point         `json:"position"`
	Confirmed bool          `json:"confirmed"`
	Remaining time.Duration `json:"remaining"`
	Expiring  bool          `json:"expiring"`
}
