package domain

// VenueRecord is a venue exactly as the backend delivers it. Coordinates are
// pointers so missing values can be told apart from zero.
type VenueRecord struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Address  string   `json:"address,omitempty"`
	Lat      *float64 `json:"lat" validate:"required,latitude"`
	Lng      *float64 `json:"lng" validate:"required,longitude"`
	Category string   `json:"category,omitempty"`
	Hours    string   `json:"hours,omitempty"`
	OpenNow  *bool    `json:"open_now,omitempty"`
}

// Venue is a materialized, displayable venue.
type Venue struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Address  string `json:"address,omitempty"`
	Position Point  `json:"position"`
	Category string `json:"category,omitempty"`
	Hours    string `json:"hours,omitempty"`
	OpenNow  *bool  `json:"open_now,omitempty"`
}

// Materialize converts a validated record into a Venue.
func (r VenueRecord) Materialize() Venue {
	return Venue{
		ID:       r.ID,
		Name:     r.Name,
		Address:  r.Address,
		Position: Point{Lat: *r.Lat, Lon: *r.Lng},
		Category: r.Category,
		Hours:    r.Hours,
		OpenNow:  r.OpenNow,
	}
}
