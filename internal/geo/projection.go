package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ctessum/geom/proj"
)

// ErrProjectionUnavailable is returned when a grid mapping cannot be
// converted to geographic coordinates.
var ErrProjectionUnavailable = errors.New("projection unavailable")

// CF grid_mapping_name values understood by NewProjector.
const (
	MappingAzimuthalEquidistant  = "azimuthal_equidistant"
	MappingLambertConformalConic = "lambert_conformal_conic"
	MappingPolarStereographic    = "polar_stereographic"
	MappingMercator              = "mercator"
	MappingTransverseMercator    = "transverse_mercator"
	MappingLatitudeLongitude     = "latitude_longitude"
)

// GridMapping carries the CF grid-mapping attributes of a gridded dataset.
type GridMapping struct {
	Name                              string
	LatitudeOfProjectionOrigin        float64
	LongitudeOfProjectionOrigin       float64
	LongitudeOfCentralMeridian        float64
	StraightVerticalLongitudeFromPole float64
	StandardParallel                  []float64
	ScaleFactor                       float64
	FalseEasting                      float64
	FalseNorthing                     float64
	SemiMajorAxis                     float64 // metres; 0 means DefaultEarthRadius
	SemiMinorAxis                     float64 // metres; 0 means spherical
}

// ParseGridMapping builds a GridMapping from CF attributes. Numeric
// attribute values may be any integer or float type, or slices of them.
func ParseGridMapping(attrs map[string]interface{}) GridMapping {
	var m GridMapping
	if v, ok := attrs["grid_mapping_name"].(string); ok {
		m.Name = strings.TrimSpace(v)
	}
	first := func(key string) float64 {
		vals := attrFloats(attrs[key])
		if len(vals) == 0 {
			return 0
		}
		return vals[0]
	}
	m.LatitudeOfProjectionOrigin = first("latitude_of_projection_origin")
	m.LongitudeOfProjectionOrigin = first("longitude_of_projection_origin")
	m.LongitudeOfCentralMeridian = first("longitude_of_central_meridian")
	m.StraightVerticalLongitudeFromPole = first("straight_vertical_longitude_from_pole")
	m.StandardParallel = attrFloats(attrs["standard_parallel"])
	m.ScaleFactor = first("scale_factor_at_central_meridian")
	if m.ScaleFactor == 0 {
		m.ScaleFactor = first("scale_factor_at_projection_origin")
	}
	m.FalseEasting = first("false_easting")
	m.FalseNorthing = first("false_northing")
	m.SemiMajorAxis = first("semi_major_axis")
	if m.SemiMajorAxis == 0 {
		m.SemiMajorAxis = first("earth_radius")
	}
	m.SemiMinorAxis = first("semi_minor_axis")
	return m
}

func attrFloats(v interface{}) []float64 {
	switch t := v.(type) {
	case float64:
		return []float64{t}
	case float32:
		return []float64{float64(t)}
	case int8:
		return []float64{float64(t)}
	case int16:
		return []float64{float64(t)}
	case int32:
		return []float64{float64(t)}
	case int64:
		return []float64{float64(t)}
	case int:
		return []float64{float64(t)}
	case uint8:
		return []float64{float64(t)}
	case []float64:
		return t
	case []float32:
		out := make([]float64, len(t))
		for i, f := range t {
			out[i] = float64(f)
		}
		return out
	case []int32:
		out := make([]float64, len(t))
		for i, f := range t {
			out[i] = float64(f)
		}
		return out
	case []int16:
		out := make([]float64, len(t))
		for i, f := range t {
			out[i] = float64(f)
		}
		return out
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return nil
		}
		return []float64{f}
	}
	return nil
}

// Projector converts between grid projection coordinates (metres) and
// geographic coordinates (degrees).
type Projector interface {
	Inverse(x, y float64) (lon, lat float64, err error)
	Forward(lon, lat float64) (x, y float64, err error)
}

// NewProjector returns the projector for m.
func NewProjector(m GridMapping) (Projector, error) {
	switch m.Name {
	case MappingAzimuthalEquidistant:
		return aeqdProjector{m: m}, nil
	case MappingLatitudeLongitude:
		return lonLatProjector{}, nil
	}
	def, err := Proj4(m)
	if err != nil {
		return nil, err
	}
	gridSR, err := proj.Parse(def)
	if err != nil {
		return nil, fmt.Errorf("%w: parse %q: %v", ErrProjectionUnavailable, def, err)
	}
	geoSR, err := proj.Parse(fmt.Sprintf("+proj=longlat %s +no_defs", ellipsoid(m)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProjectionUnavailable, err)
	}
	inverse, err := gridSR.NewTransform(geoSR)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProjectionUnavailable, err)
	}
	forward, err := geoSR.NewTransform(gridSR)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProjectionUnavailable, err)
	}
	return projProjector{inverse: inverse, forward: forward}, nil
}

// Proj4 renders a proj4 definition for the non-AEQD mappings.
func Proj4(m GridMapping) (string, error) {
	var b strings.Builder
	switch m.Name {
	case MappingLambertConformalConic:
		lat1, lat2 := m.LatitudeOfProjectionOrigin, m.LatitudeOfProjectionOrigin
		if len(m.StandardParallel) > 0 {
			lat1, lat2 = m.StandardParallel[0], m.StandardParallel[0]
		}
		if len(m.StandardParallel) > 1 {
			lat2 = m.StandardParallel[1]
		}
		lon0 := m.LongitudeOfCentralMeridian
		if lon0 == 0 {
			lon0 = m.LongitudeOfProjectionOrigin
		}
		fmt.Fprintf(&b, "+proj=lcc +lat_1=%g +lat_2=%g +lat_0=%g +lon_0=%g",
			lat1, lat2, m.LatitudeOfProjectionOrigin, lon0)
	case MappingPolarStereographic:
		lat0 := 90.0
		if m.LatitudeOfProjectionOrigin < 0 {
			lat0 = -90
		}
		latTS := lat0
		if len(m.StandardParallel) > 0 {
			latTS = m.StandardParallel[0]
		}
		lon0 := m.StraightVerticalLongitudeFromPole
		if lon0 == 0 {
			lon0 = m.LongitudeOfProjectionOrigin
		}
		fmt.Fprintf(&b, "+proj=stere +lat_0=%g +lat_ts=%g +lon_0=%g", lat0, latTS, lon0)
	case MappingMercator:
		latTS := 0.0
		if len(m.StandardParallel) > 0 {
			latTS = m.StandardParallel[0]
		}
		lon0 := m.LongitudeOfProjectionOrigin
		if lon0 == 0 {
			lon0 = m.LongitudeOfCentralMeridian
		}
		fmt.Fprintf(&b, "+proj=merc +lat_ts=%g +lon_0=%g", latTS, lon0)
	case MappingTransverseMercator:
		k := m.ScaleFactor
		if k == 0 {
			k = 1
		}
		fmt.Fprintf(&b, "+proj=tmerc +lat_0=%g +lon_0=%g +k_0=%g",
			m.LatitudeOfProjectionOrigin, m.LongitudeOfCentralMeridian, k)
	default:
		return "", fmt.Errorf("%w: grid mapping %q", ErrProjectionUnavailable, m.Name)
	}
	fmt.Fprintf(&b, " +x_0=%g +y_0=%g %s +units=m +no_defs", m.FalseEasting, m.FalseNorthing, ellipsoid(m))
	return b.String(), nil
}

func ellipsoid(m GridMapping) string {
	a := m.SemiMajorAxis
	if a <= 0 {
		a = DefaultEarthRadius
	}
	b := m.SemiMinorAxis
	if b <= 0 {
		b = a
	}
	return "+a=" + strconv.FormatFloat(a, 'f', -1, 64) + " +b=" + strconv.FormatFloat(b, 'f', -1, 64)
}

// CartesianToGeographic meshes the x and y coordinate vectors (rows follow
// y, columns follow x) and returns the longitude and latitude of every grid
// point.
func CartesianToGeographic(m GridMapping, x, y []float64) (lon, lat [][]float64, err error) {
	if m.Name == MappingAzimuthalEquidistant {
		xs := make([]float64, 0, len(x)*len(y))
		ys := make([]float64, 0, len(x)*len(y))
		for _, yv := range y {
			for _, xv := range x {
				xs = append(xs, xv-m.FalseEasting)
				ys = append(ys, yv-m.FalseNorthing)
			}
		}
		flon, flat := CartesianToGeographicAEQD(xs, ys, m.LongitudeOfProjectionOrigin, m.LatitudeOfProjectionOrigin, m.SemiMajorAxis)
		return reshape(flon, len(y), len(x)), reshape(flat, len(y), len(x)), nil
	}

	p, err := NewProjector(m)
	if err != nil {
		return nil, nil, err
	}
	lon = make([][]float64, len(y))
	lat = make([][]float64, len(y))
	for j, yv := range y {
		lon[j] = make([]float64, len(x))
		lat[j] = make([]float64, len(x))
		for i, xv := range x {
			lo, la, err := p.Inverse(xv, yv)
			if err != nil {
				lo, la = math.NaN(), math.NaN()
			}
			lon[j][i], lat[j][i] = lo, la
		}
	}
	return lon, lat, nil
}

func reshape(flat []float64, ny, nx int) [][]float64 {
	out := make([][]float64, ny)
	for j := range out {
		out[j] = flat[j*nx : (j+1)*nx]
	}
	return out
}

type aeqdProjector struct {
	m GridMapping
}

func (p aeqdProjector) Inverse(x, y float64) (float64, float64, error) {
	lon, lat := CartesianToGeographicAEQD([]float64{x - p.m.FalseEasting}, []float64{y - p.m.FalseNorthing},
		p.m.LongitudeOfProjectionOrigin, p.m.LatitudeOfProjectionOrigin, p.m.SemiMajorAxis)
	return lon[0], lat[0], nil
}

func (p aeqdProjector) Forward(lon, lat float64) (float64, float64, error) {
	x, y := GeographicToCartesianAEQD([]float64{lon}, []float64{lat},
		p.m.LongitudeOfProjectionOrigin, p.m.LatitudeOfProjectionOrigin, p.m.SemiMajorAxis)
	if math.IsNaN(x[0]) {
		return 0, 0, fmt.Errorf("point (%g, %g) is antipodal to the projection origin", lon, lat)
	}
	return x[0] + p.m.FalseEasting, y[0] + p.m.FalseNorthing, nil
}

type lonLatProjector struct{}

func (lonLatProjector) Inverse(x, y float64) (float64, float64, error) { return x, y, nil }
func (lonLatProjector) Forward(lon, lat float64) (float64, float64, error) {
	return lon, lat, nil
}

type projProjector struct {
	inverse proj.Transformer
	forward proj.Transformer
}

func (p projProjector) Inverse(x, y float64) (float64, float64, error) {
	return p.inverse(x, y)
}

func (p projProjector) Forward(lon, lat float64) (float64, float64, error) {
	return p.forward(lon, lat)
}
