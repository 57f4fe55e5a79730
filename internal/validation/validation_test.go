package validation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type position struct {
	Lat float64 `json:"lat" validate:"latitude"`
	Lon float64 `json:"lon" validate:"longitude"`
	Sev int     `json:"sev" validate:"min=1,max=5"`
}

func TestCoordinateRules(t *testing.T) {
	v := New()

	require.NoError(t, v.Struct(position{Lat: 0, Lon: 0, Sev: 1}))
	require.NoError(t, v.Struct(position{Lat: -90, Lon: 180, Sev: 5}))

	err := v.Struct(position{Lat: 91, Lon: math.NaN(), Sev: 6})
	require.Error(t, err)
	fields := Fields(err)
	assert.Equal(t, "latitude", fields["lat"])
	assert.Equal(t, "longitude", fields["lon"])
	assert.Equal(t, "max=5", fields["sev"])
}

func TestFieldsNil(t *testing.T) {
	assert.Nil(t, Fields(nil))
}
