package grid

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/banshee-data/celltrack/internal/geo"
	"github.com/banshee-data/celltrack/internal/monitoring"
	"github.com/banshee-data/celltrack/internal/ncfile"
)

// WRF writes Times as fixed-width character records.
const wrfTimeLayout = "2006-01-02_15:04:05"

// wrfEarthRadius is the sphere WRF uses for its map projections.
const wrfEarthRadius = 6370000.0

// nuwrfSource reads NU-WRF wrfout files using the model's composite
// reflectivity.
type nuwrfSource struct{}

func (nuwrfSource) Name() string    { return "NUWRF" }
func (nuwrfSource) Pattern() string { return "wrfout*" }

// wrfGlobals holds the global attributes that describe the model grid.
type wrfGlobals struct {
	dx, dt     float64
	mapProj    int
	truelat1   float64
	truelat2   float64
	standLon   float64
	moadCenLat float64
	cenLat     float64
	cenLon     float64
}

func readWRFGlobals(ds *ncfile.Dataset) (wrfGlobals, error) {
	attrs := ds.Attrs()
	var g wrfGlobals
	var ok bool
	if g.dx, ok = ncfile.AttrFloat(attrs, "DX"); !ok || g.dx <= 0 {
		return g, fmt.Errorf("%s: missing or invalid DX attribute", ds.Path())
	}
	g.dt, _ = ncfile.AttrFloat(attrs, "DT")
	mp, _ := ncfile.AttrFloat(attrs, "MAP_PROJ")
	g.mapProj = int(mp)
	g.truelat1, _ = ncfile.AttrFloat(attrs, "TRUELAT1")
	g.truelat2, _ = ncfile.AttrFloat(attrs, "TRUELAT2")
	g.standLon, _ = ncfile.AttrFloat(attrs, "STAND_LON")
	g.moadCenLat, _ = ncfile.AttrFloat(attrs, "MOAD_CEN_LAT")
	g.cenLat, _ = ncfile.AttrFloat(attrs, "CEN_LAT")
	g.cenLon, _ = ncfile.AttrFloat(attrs, "CEN_LON")
	return g, nil
}

// WRFGridMapping translates WRF MAP_PROJ codes to CF grid mappings.
func WRFGridMapping(mapProj int, truelat1, truelat2, standLon, moadCenLat float64) geo.GridMapping {
	m := geo.GridMapping{SemiMajorAxis: wrfEarthRadius}
	switch mapProj {
	case 1:
		m.Name = geo.MappingLambertConformalConic
		m.StandardParallel = []float64{truelat1, truelat2}
		m.LatitudeOfProjectionOrigin = moadCenLat
		m.LongitudeOfCentralMeridian = standLon
	case 2:
		m.Name = geo.MappingPolarStereographic
		m.LatitudeOfProjectionOrigin = 90
		if truelat1 < 0 {
			m.LatitudeOfProjectionOrigin = -90
		}
		m.StandardParallel = []float64{truelat1}
		m.StraightVerticalLongitudeFromPole = standLon
	case 3:
		m.Name = geo.MappingMercator
		m.StandardParallel = []float64{truelat1}
		m.LongitudeOfProjectionOrigin = standLon
	case 6:
		m.Name = geo.MappingLatitudeLongitude
	default:
		m.Name = fmt.Sprintf("wrf_map_proj_%d", mapProj)
	}
	return m
}

func (nuwrfSource) Load(ctx context.Context, files []string, opts Options) (*Composite, error) {
	globals, err := openWRFGlobals(files[0])
	if err != nil {
		return nil, err
	}
	c := &Composite{}
	for n, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := readWRFFile(f, n == 0, c); err != nil {
			return nil, err
		}
	}
	finishWRF(c, globals)
	return c, nil
}

func openWRFGlobals(path string) (wrfGlobals, error) {
	ds, err := ncfile.Open(path)
	if err != nil {
		return wrfGlobals{}, err
	}
	defer ds.Close()
	return readWRFGlobals(ds)
}

// finishWRF derives the projection grid and spacing of a composite whose
// frames, times and point coordinates have been read.
func finishWRF(c *Composite, g wrfGlobals) {
	ny, nx := len(c.Refl[0]), len(c.Refl[0][0])
	c.Mapping = WRFGridMapping(g.mapProj, g.truelat1, g.truelat2, g.standLon, g.moadCenLat)

	var cx, cy float64
	if p, err := geo.NewProjector(c.Mapping); err == nil {
		if x, y, err := p.Forward(g.cenLon, g.cenLat); err == nil {
			cx, cy = x, y
		}
	} else {
		monitoring.Logf("warning: %v; grid x/y centred on zero", err)
	}
	c.X = centredAxis(nx, cx, g.dx)
	c.Y = centredAxis(ny, cy, g.dx)

	c.DxyKm = g.dx / 1000
	c.DtMinutes = TimeStepMinutes(c.Times)
	if c.DtMinutes == 0 && g.dt > 0 {
		c.DtMinutes = g.dt / 60
	}
	c.Date = DateStamp(c.Times[0])
}

// readWRFFile appends the frames and times of one wrfout file to c. The
// first file also supplies the point latitude and longitude.
func readWRFFile(path string, first bool, c *Composite) error {
	ds, err := ncfile.Open(path)
	if err != nil {
		return err
	}
	defer ds.Close()

	comp, err := ds.Float64s("COMDBZ")
	if err != nil {
		return err
	}
	if len(comp.Shape) != 3 {
		return fmt.Errorf("%s: COMDBZ must be (Time, south_north, west_east), got %d dims", path, len(comp.Shape))
	}
	nt := comp.Shape[0]
	if len(c.Refl) > 0 && (comp.Shape[1] != len(c.Refl[0]) || comp.Shape[2] != len(c.Refl[0][0])) {
		return fmt.Errorf("%s: grid %dx%d differs from the first file", path, comp.Shape[1], comp.Shape[2])
	}
	for k := 0; k < nt; k++ {
		f, err := comp.Frame(k)
		if err != nil {
			return err
		}
		c.Refl = append(c.Refl, f)
	}

	if first {
		lat, err := ds.Float64s("XLAT")
		if err != nil {
			return err
		}
		lon, err := ds.Float64s("XLONG")
		if err != nil {
			return err
		}
		if c.Lat, err = lat.Frame(0); err != nil {
			return err
		}
		if c.Lon, err = lon.Frame(0); err != nil {
			return err
		}
	}

	raw, err := ds.Strings("Times")
	if err != nil {
		return err
	}
	if len(raw) != nt {
		return fmt.Errorf("%s: %d Times for %d frames", path, len(raw), nt)
	}
	for i, s := range raw {
		t, err := time.Parse(wrfTimeLayout, strings.TrimRight(s, "\x00 "))
		if err != nil {
			return fmt.Errorf("%s: Times[%d]: %w", path, i, err)
		}
		c.Times = append(c.Times, t)
	}
	monitoring.Debugf("read %s: %d frames", filepath.Base(path), nt)
	return nil
}

func centredAxis(n int, centre, step float64) []float64 {
	out := make([]float64, n)
	half := float64(n-1) / 2
	for i := range out {
		out[i] = centre + (float64(i)-half)*step
	}
	return out
}
