package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type coordinates struct {
	Lat  *float64 `validate:"required,latitude"`
	Lng  *float64 `validate:"required,longitude"`
	Kind string   `validate:"hazard_kind"`
}

func TestValidate(t *testing.T) {
	lat, lng := -37.81, 144.96
	require.NoError(t, Validate(coordinates{Lat: &lat, Lng: &lng, Kind: "debris"}))

	bad := 95.0
	err := Validate(coordinates{Lat: &bad, Kind: " "})
	require.Error(t, err)

	desc := Describe(err)
	assert.Contains(t, desc, "Lat:latitude")
	assert.Contains(t, desc, "Lng:required")
	assert.Contains(t, desc, "Kind:hazard_kind")
}
