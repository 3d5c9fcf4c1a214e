package domain

import (
	"math"
	"regexp"
	"strings"
	"time"
)

// DisruptionRecord holds the properties of one feature from the along-route endpoint.
type DisruptionRecord struct {
	ID           string
	Title        string
	Location     string
	Impact       string
	Description  string
	EventType    string
	EventSubType string
	Lanes        string
	RoadStatus   string
	Start        string
	End          string
	DistanceM    *float64
	Lat          *float64
	Lon          *float64
}

type Severity string

const (
	SeverityNone   Severity = "none"
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

var (
	severeImpact   = regexp.MustCompile(`(full|complete)\s*clos|detour|closed\b|no access|blocked`)
	moderateImpact = regexp.MustCompile(`lane|shoulder|speed|reduced|stop/?go|traffic control|contra\s*flow`)
	whitespace     = regexp.MustCompile(`\s+`)
)

// SeverityFromText classifies free impact text.
func SeverityFromText(text string) Severity {
	t := strings.ToLower(strings.TrimSpace(text))
	switch {
	case t == "":
		return SeverityNone
	case severeImpact.MatchString(t):
		return SeverityHigh
	case moderateImpact.MatchString(t):
		return SeverityMedium
	}
	return SeverityLow
}

// ActiveWindow is open-ended on whichever side is missing.
type ActiveWindow struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

func (w ActiveWindow) ActiveAt(now time.Time) bool {
	if w.Start != nil && now.Before(*w.Start) {
		return false
	}
	if w.End != nil && now.After(*w.End) {
		return false
	}
	return true
}

type DisruptionFeature struct {
	CanonicalID    string       `json:"id"`
	Title          string       `json:"title"`
	Location       string       `json:"location,omitempty"`
	DistanceMeters *float64     `json:"distance_m,omitempty"`
	Window         ActiveWindow `json:"when"`
	Severity       Severity     `json:"severity"`
	Impact         string       `json:"impact,omitempty"`
	Position       *Point       `json:"position,omitempty"`
}

// NewDisruptionFeature normalizes a record. Unparseable times leave that side of the window open.
func NewDisruptionFeature(r DisruptionRecord) DisruptionFeature {
	f := DisruptionFeature{
		CanonicalID:    CanonicalDisruptionID(r),
		Title:          r.Title,
		Location:       r.Location,
		DistanceMeters: r.DistanceM,
		Window:         ActiveWindow{Start: parseTime(r.Start), End: parseTime(r.End)},
		Severity: SeverityFromText(strings.Join([]string{
			r.Impact, r.Title, r.EventType, r.EventSubType, r.Description, r.Lanes, r.RoadStatus,
		}, " ")),
		Impact: r.Impact,
	}
	if f.Title == "" {
		f.Title = "Planned disruption"
	}
	if r.Lat != nil && r.Lon != nil {
		p := Point{Lat: *r.Lat, Lon: *r.Lon}
		if p.Valid() {
			f.Position = &p
		}
	}
	return f
}

// CanonicalDisruptionID uses the backend id when present, otherwise a
// lowercased composite with whitespace collapsed.
func CanonicalDisruptionID(r DisruptionRecord) string {
	if id := strings.TrimSpace(r.ID); id != "" {
		return id
	}
	composite := strings.Join([]string{r.Title, r.Location, r.Start, r.End, r.EventType, r.EventSubType}, "|")
	return whitespace.ReplaceAllString(strings.ToLower(composite), " ")
}

func (f DisruptionFeature) distance() float64 {
	if f.DistanceMeters == nil || math.IsNaN(*f.DistanceMeters) {
		return math.Inf(1)
	}
	return *f.DistanceMeters
}

// Closer reports whether f should replace other for the same canonical id:
// smaller distance wins, a missing distance loses, ties favor the one active now.
func (f DisruptionFeature) Closer(other DisruptionFeature, now time.Time) bool {
	a, b := f.distance(), other.distance()
	if a != b {
		return a < b
	}
	return f.Window.ActiveAt(now) && !other.Window.ActiveAt(now)
}

type DisruptionSummary struct {
	Count       int      `json:"count"`
	ActiveNow   int      `json:"active_now"`
	MaxSeverity Severity `json:"severity"`
}

func Summarize(features []DisruptionFeature, now time.Time) DisruptionSummary {
	s := DisruptionSummary{Count: len(features), MaxSeverity: SeverityNone}
	for _, f := range features {
		if f.Window.ActiveAt(now) {
			s.ActiveNow++
		}
		if f.Severity.Rank() > s.MaxSeverity.Rank() {
			s.MaxSeverity = f.Severity
		}
	}
	return s
}

func parseTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
