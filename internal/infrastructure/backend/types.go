package backend

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mapsync-service/internal/domain"
)

// venuesResponse keeps each venue raw so one mistyped record is skipped
// instead of failing the whole batch.
type venuesResponse struct {
	Venues []json.RawMessage `json:"venues"`
}

type venuePayload struct {
	ID       flexString `json:"id"`
	Name     string     `json:"name"`
	Address  string     `json:"address"`
	Lat      flexFloat  `json:"lat"`
	Lng      flexFloat  `json:"lng"`
	Category string     `json:"category"`
	Hours    string     `json:"hours"`
	OpenNow  *bool      `json:"open_now"`
}

// record keeps unusable coordinates as nil so validation drops the venue downstream.
func (p venuePayload) record() domain.VenueRecord {
	return domain.VenueRecord{
		ID:       p.ID.String(),
		Name:     p.Name,
		Address:  p.Address,
		Lat:      p.Lat.ptr(),
		Lng:      p.Lng.ptr(),
		Category: p.Category,
		Hours:    p.Hours,
		OpenNow:  p.OpenNow,
	}
}

type scoreResponse struct {
	Routes []domain.RouteScore `json:"routes"`
}

type createHazardResponse struct {
	ID flexString `json:"id"`
}

type activeHazardsResponse struct {
	Now   string            `json:"now"`
	Items []json.RawMessage `json:"items"`
}

type hazardPayload struct {
	PublicID  flexString `json:"public_id"`
	Lat       flexFloat  `json:"lat"`
	Lng       flexFloat  `json:"lng"`
	Kind      string     `json:"kind"`
	CreatedAt string     `json:"created_at"`
	ExpiresAt string     `json:"expires_at"`
	ClientRef string     `json:"client_ref,omitempty"`
}

func (p hazardPayload) toDomain() (domain.ActiveHazard, error) {
	if p.PublicID.String() == "" {
		return domain.ActiveHazard{}, errors.New("missing public_id")
	}
	if !p.Lat.set || !p.Lng.set {
		return domain.ActiveHazard{}, errors.New("missing coordinates")
	}
	pos := domain.Point{Lat: p.Lat.value, Lon: p.Lng.value}
	if !pos.Valid() {
		return domain.ActiveHazard{}, errors.New("invalid coordinates")
	}
	expires, ok := parseTimestamp(p.ExpiresAt)
	if !ok {
		return domain.ActiveHazard{}, errors.New("invalid expires_at")
	}
	created, ok := parseTimestamp(p.CreatedAt)
	if !ok {
		created = time.Time{}
	}
	return domain.ActiveHazard{
		PublicID:  p.PublicID.String(),
		Position:  pos,
		Kind:      p.Kind,
		CreatedAt: created,
		ExpiresAt: expires,
		ClientRef: p.ClientRef,
	}, nil
}

type disruptionsResponse struct {
	Features []disruptionFeature `json:"features"`
}

type disruptionFeature struct {
	Properties disruptionProperties `json:"properties"`
	Geometry   *geojson.Geometry    `json:"geometry,omitempty"`
}

type disruptionProperties struct {
	ID           flexString `json:"id"`
	Title        string     `json:"title"`
	Name         string     `json:"name"`
	Location     string     `json:"location"`
	Road         string     `json:"road"`
	Impact       string     `json:"impact"`
	Description  string     `json:"description"`
	EventType    string     `json:"eventType"`
	EventSubType string     `json:"eventSubType"`
	Lanes        string     `json:"lanes"`
	RoadStatus   string     `json:"roadStatus"`
	When         *struct {
		Start string `json:"start"`
		End   string `json:"end"`
	} `json:"when"`
	DistanceM flexFloat `json:"distance_m"`
	Marker    *struct {
		Lat flexFloat `json:"lat"`
		Lon flexFloat `json:"lon"`
	} `json:"marker"`
}

func (f disruptionFeature) record() domain.DisruptionRecord {
	p := f.Properties
	r := domain.DisruptionRecord{
		ID:           p.ID.String(),
		Title:        firstNonEmpty(p.Title, p.Name),
		Location:     firstNonEmpty(p.Road, p.Location),
		Impact:       p.Impact,
		Description:  p.Description,
		EventType:    p.EventType,
		EventSubType: p.EventSubType,
		Lanes:        p.Lanes,
		RoadStatus:   p.RoadStatus,
		DistanceM:    p.DistanceM.ptr(),
	}
	if p.When != nil {
		r.Start, r.End = p.When.Start, p.When.End
	}
	if p.Marker != nil {
		r.Lat, r.Lon = p.Marker.Lat.ptr(), p.Marker.Lon.ptr()
	}
	if (r.Lat == nil || r.Lon == nil) && f.Geometry != nil {
		if pt, ok := anchor(f.Geometry.Coordinates); ok {
			lat, lon := pt.Lat(), pt.Lon()
			r.Lat, r.Lon = &lat, &lon
		}
	}
	return r
}

// anchor picks the pin position for a geometry: the point itself, the middle
// vertex of a line, or the first vertex of a polygon's outer ring.
func anchor(g orb.Geometry) (orb.Point, bool) {
	switch geom := g.(type) {
	case orb.Point:
		return geom, true
	case orb.LineString:
		if len(geom) > 0 {
			return geom[len(geom)/2], true
		}
	case orb.Polygon:
		if len(geom) > 0 && len(geom[0]) > 0 {
			return geom[0][0], true
		}
	}
	return orb.Point{}, false
}

// flexString accepts ids encoded as JSON strings or numbers.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		*s = flexString(strings.TrimSpace(str))
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(b, &num); err != nil {
		return err
	}
	*s = flexString(num.String())
	return nil
}

func (s flexString) String() string { return string(s) }

// flexFloat accepts numbers, numeric strings and null.
type flexFloat struct {
	value float64
	set   bool
}

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*f = flexFloat{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err == nil {
		*f = flexFloat{value: v, set: true}
		return nil
	}
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
	if err != nil {
		// unparseable values are treated as absent
		*f = flexFloat{}
		return nil
	}
	*f = flexFloat{value: v, set: true}
	return nil
}

func (f flexFloat) ptr() *float64 {
	if !f.set {
		return nil
	}
	v := f.value
	return &v
}

func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
