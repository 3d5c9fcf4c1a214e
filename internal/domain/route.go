package domain

import (
	"strings"
	"time"
)

// Label is the safety bucket shown as the route color.
type Label string

const (
	LabelLow    Label = "Low"
	LabelMedium Label = "Medium"
	LabelHigh   Label = "High"
)

// ParseLabel accepts both bucket names and the backend's traffic-light colors.
func ParseLabel(s string) (Label, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high", "green":
		return LabelHigh, true
	case "medium", "yellow", "amber":
		return LabelMedium, true
	case "low", "red":
		return LabelLow, true
	}
	return "", false
}

// Color is the traffic-light color used by the route overlay.
func (l Label) Color() string {
	switch l {
	case LabelHigh:
		return "green"
	case LabelMedium:
		return "yellow"
	default:
		return "red"
	}
}

// Thresholds buckets a score in [0,1] into a Label.
type Thresholds struct {
	MediumAt float64
	HighAt   float64
}

func (t Thresholds) LabelFor(score float64) Label {
	switch {
	case score >= t.HighAt:
		return LabelHigh
	case score >= t.MediumAt:
		return LabelMedium
	default:
		return LabelLow
	}
}

// RouteCandidate is a route produced by the directions provider.
type RouteCandidate struct {
	Kind         string  `json:"kind"`
	Path         []Point `json:"-"`
	EncodedPath  string  `json:"encoded_path" validate:"required"`
	DistanceText string  `json:"distance_text,omitempty"`
	DurationText string  `json:"duration_text,omitempty"`
	Score        float64 `json:"score"`
	Label        Label   `json:"label"`
}

type ScorePhase string

const (
	PhaseOptimistic    ScorePhase = "optimistic"
	PhaseAuthoritative ScorePhase = "authoritative"
)

type ScoreSource string

const (
	SourceCache     ScoreSource = "cache"
	SourceHeuristic ScoreSource = "heuristic"
	SourceBackend   ScoreSource = "backend"
)

// ScoreValue is a route score tagged with how much it can be trusted.
type ScoreValue struct {
	Phase  ScorePhase  `json:"phase"`
	Source ScoreSource `json:"source"`
	Score  float64     `json:"score"`
	Label  Label       `json:"label"`
}

// Merge folds next into v. An optimistic value never replaces an authoritative one.
func (v ScoreValue) Merge(next ScoreValue) ScoreValue {
	if v.Phase == PhaseAuthoritative && next.Phase == PhaseOptimistic {
		return v
	}
	return next
}

type TransitionKind string

const (
	TransitionNone      TransitionKind = "none"
	TransitionInstant   TransitionKind = "instant"
	TransitionCrossfade TransitionKind = "crossfade"
)

// Transition describes how the overlay moves from the old color to the new one.
type Transition struct {
	Kind     TransitionKind `json:"kind"`
	Duration time.Duration  `json:"duration"`
}

type ScoreStatus string

const (
	StatusIdle        ScoreStatus = "idle"
	StatusChecking    ScoreStatus = "checking"
	StatusConfirmed   ScoreStatus = "confirmed"
	StatusUnavailable ScoreStatus = "unavailable"
)

// RouteScore is one entry of the backend's score response.
type RouteScore struct {
	Overall float64 `json:"overall"`
	Label   string  `json:"label,omitempty"`
}

// ScoreRequest is the body sent to the route score endpoint.
type ScoreRequest struct {
	Polylines []string `json:"polylines"`
	When      string   `json:"when"`
	Minutes   int      `json:"minutes"`
}

// RankedRoute is one entry of a route comparison, safest first.
type RankedRoute struct {
	Candidate RouteCandidate `json:"candidate"`
	Value     ScoreValue     `json:"value"`
	Rank      int            `json:"rank"`
}
