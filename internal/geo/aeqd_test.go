package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCartesianToGeographicAEQD_Origin(t *testing.T) {
	lon, lat := CartesianToGeographicAEQD([]float64{0}, []float64{0}, -97.5, 35.2, 0)
	assert.Equal(t, []float64{-97.5}, lon)
	assert.Equal(t, []float64{35.2}, lat)
}

func TestCartesianToGeographicAEQD_DueNorth(t *testing.T) {
	d := 100000.0
	lon, lat := CartesianToGeographicAEQD([]float64{0}, []float64{d}, 10, 45, DefaultEarthRadius)

	wantLat := 45 + d/DefaultEarthRadius*rad2deg
	assert.InDelta(t, 10, lon[0], 1e-9)
	assert.InDelta(t, wantLat, lat[0], 1e-9)
}

func TestCartesianToGeographicAEQD_DueEastOnEquator(t *testing.T) {
	d := 250000.0
	lon, lat := CartesianToGeographicAEQD([]float64{d}, []float64{0}, 20, 0, DefaultEarthRadius)

	assert.InDelta(t, 20+d/DefaultEarthRadius*rad2deg, lon[0], 1e-9)
	assert.InDelta(t, 0, lat[0], 1e-9)
}

func TestCartesianToGeographicAEQD_WrapsDateline(t *testing.T) {
	d := 300000.0
	lon, _ := CartesianToGeographicAEQD([]float64{d, -d}, []float64{0, 0}, 179, 0, 0)

	assert.InDelta(t, 179+d/DefaultEarthRadius*rad2deg-360, lon[0], 1e-9)
	assert.InDelta(t, 179-d/DefaultEarthRadius*rad2deg, lon[1], 1e-9)
	for _, v := range lon {
		assert.True(t, v >= -180 && v <= 180, "longitude %v out of range", v)
	}

	lon, _ = CartesianToGeographicAEQD([]float64{-d}, []float64{0}, -179, 0, 0)
	assert.InDelta(t, -179-d/DefaultEarthRadius*rad2deg+360, lon[0], 1e-9)
}

func TestCartesianToGeographicAEQD_ShortInput(t *testing.T) {
	lon, lat := CartesianToGeographicAEQD([]float64{1, 2, 3}, []float64{1}, 0, 0, 0)
	assert.Len(t, lon, 1)
	assert.Len(t, lat, 1)
}

func TestAEQDRoundTrip(t *testing.T) {
	x := []float64{-150000, -5000, 0, 1234.5, 98000, 240000}
	y := []float64{200000, -75000, 3000, -1, 0, -180000}
	lon0, lat0 := -97.3, 36.7

	lon, lat := CartesianToGeographicAEQD(x, y, lon0, lat0, 0)
	gx, gy := GeographicToCartesianAEQD(lon, lat, lon0, lat0, 0)
	for i := range x {
		assert.InDelta(t, x[i], gx[i], 1e-3, "x[%d]", i)
		assert.InDelta(t, y[i], gy[i], 1e-3, "y[%d]", i)
	}
}

func TestGeographicToCartesianAEQD_Antipode(t *testing.T) {
	x, y := GeographicToCartesianAEQD([]float64{180}, []float64{0}, 0, 0, 0)
	assert.True(t, math.IsNaN(x[0]))
	assert.True(t, math.IsNaN(y[0]))
}

func TestCartesianToGeographic_AEQDMesh(t *testing.T) {
	m := GridMapping{Name: MappingAzimuthalEquidistant, LatitudeOfProjectionOrigin: 40, LongitudeOfProjectionOrigin: -100}
	x := []float64{-1000, 0, 1000}
	y := []float64{-2000, 2000}

	lon, lat, err := CartesianToGeographic(m, x, y)
	require.NoError(t, err)
	require.Len(t, lon, 2)
	require.Len(t, lon[0], 3)

	assert.Less(t, lon[0][0], -100.0)
	assert.Greater(t, lon[0][2], -100.0)
	assert.Less(t, lat[0][1], 40.0)
	assert.Greater(t, lat[1][1], 40.0)
	assert.InDelta(t, -100, lon[1][1], 1e-9)
}
