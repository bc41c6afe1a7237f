// Package geo converts grid projection coordinates to and from geographic
// coordinates. The azimuthal equidistant projection used by radar grids is
// evaluated in closed form; other CF grid mappings go through
// github.com/ctessum/geom/proj.
package geo

import "math"

// DefaultEarthRadius is the spherical earth radius in metres used when a
// grid mapping does not name one.
const DefaultEarthRadius = 6370997.0

const (
	deg2rad = math.Pi / 180
	rad2deg = 180 / math.Pi
)

// CartesianToGeographicAEQD maps azimuthal equidistant x/y (metres) about
// (lon0, lat0) to longitude and latitude in degrees. Points at the origin
// map to the origin. Longitudes are wrapped into [-180, 180]. A radius
// <= 0 selects DefaultEarthRadius.
func CartesianToGeographicAEQD(x, y []float64, lon0, lat0, R float64) (lon, lat []float64) {
	if R <= 0 {
		R = DefaultEarthRadius
	}
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	lon = make([]float64, n)
	lat = make([]float64, n)

	lat0r := lat0 * deg2rad
	sinLat0, cosLat0 := math.Sincos(lat0r)

	for i := 0; i < n; i++ {
		rho := math.Hypot(x[i], y[i])
		if rho == 0 {
			lat[i] = lat0
			lon[i] = lon0
			continue
		}
		c := rho / R
		sinC, cosC := math.Sincos(c)

		s := cosC*sinLat0 + y[i]*sinC*cosLat0/rho
		lat[i] = math.Asin(clampUnit(s)) * rad2deg

		lo := lon0*deg2rad + math.Atan2(x[i]*sinC, rho*cosLat0*cosC-y[i]*sinLat0*sinC)
		lon[i] = wrapLongitude(lo * rad2deg)
	}
	return lon, lat
}

// antipodeTol is the angular distance from the antipode, in radians,
// within which the forward transform is undefined.
const antipodeTol = 1e-9

// GeographicToCartesianAEQD is the forward azimuthal equidistant transform.
// The antipode of the origin has no unique image and returns NaN.
func GeographicToCartesianAEQD(lon, lat []float64, lon0, lat0, R float64) (x, y []float64) {
	if R <= 0 {
		R = DefaultEarthRadius
	}
	n := len(lon)
	if len(lat) < n {
		n = len(lat)
	}
	x = make([]float64, n)
	y = make([]float64, n)

	sinLat0, cosLat0 := math.Sincos(lat0 * deg2rad)
	for i := 0; i < n; i++ {
		sinLat, cosLat := math.Sincos(lat[i] * deg2rad)
		sinDl, cosDl := math.Sincos((lon[i] - lon0) * deg2rad)

		cosC := clampUnit(sinLat0*sinLat + cosLat0*cosLat*cosDl)
		c := math.Acos(cosC)
		k := 1.0
		if math.Pi-c < antipodeTol {
			// Every azimuth reaches the antipode.
			x[i], y[i] = math.NaN(), math.NaN()
			continue
		}
		if c != 0 {
			k = c / math.Sin(c)
		}
		x[i] = R * k * cosLat * sinDl
		y[i] = R * k * (cosLat0*sinLat - sinLat0*cosLat*cosDl)
	}
	return x, y
}

func clampUnit(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

func wrapLongitude(lon float64) float64 {
	if lon > 180 {
		lon -= 360
	}
	if lon < -180 {
		lon += 360
	}
	return lon
}
