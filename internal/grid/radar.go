package grid

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/banshee-data/celltrack/internal/geo"
	"github.com/banshee-data/celltrack/internal/monitoring"
	"github.com/banshee-data/celltrack/internal/ncfile"
)

// radarVars names the variables of a gridded radar volume.
type radarVars struct {
	refl  string
	rhohv string
}

// radarVolume is one file of a gridded radar volume after QC and
// reduction to column maxima.
type radarVolume struct {
	x, y    []float64
	mapping geo.GridMapping
	frames  [][][]float64
	times   []time.Time
}

func readRadarVolume(path string, vars radarVars, qc QC) (*radarVolume, error) {
	ds, err := ncfile.Open(path)
	if err != nil {
		return nil, err
	}
	defer ds.Close()

	vol := &radarVolume{}
	if vol.x, err = readAxis(ds, "x"); err != nil {
		return nil, err
	}
	if vol.y, err = readAxis(ds, "y"); err != nil {
		return nil, err
	}

	refl, err := ds.Float64s(vars.refl)
	if err != nil {
		return nil, err
	}
	var rhohv []float64
	if ds.Has(vars.rhohv) {
		rh, err := ds.Float64s(vars.rhohv)
		if err != nil {
			return nil, err
		}
		if len(rh.Data) != len(refl.Data) {
			return nil, fmt.Errorf("%s: %s and %s differ in size", path, vars.rhohv, vars.refl)
		}
		rhohv = rh.Data
	} else {
		monitoring.Logf("%s: no %s variable, skipping QC", filepath.Base(path), vars.rhohv)
	}

	nt, nz, ny, nx := 1, 0, 0, 0
	switch len(refl.Shape) {
	case 3:
		nz, ny, nx = refl.Shape[0], refl.Shape[1], refl.Shape[2]
	case 4:
		nt, nz, ny, nx = refl.Shape[0], refl.Shape[1], refl.Shape[2], refl.Shape[3]
	default:
		return nil, fmt.Errorf("%s: %s must be (z, y, x) or (time, z, y, x), got %d dims", path, vars.refl, len(refl.Shape))
	}
	if ny != len(vol.y) || nx != len(vol.x) {
		return nil, fmt.Errorf("%s: %s is %dx%d but axes are %dx%d", path, vars.refl, ny, nx, len(vol.y), len(vol.x))
	}

	step := nz * ny * nx
	for k := 0; k < nt; k++ {
		var rh []float64
		if rhohv != nil {
			rh = rhohv[k*step : (k+1)*step]
		}
		vol.frames = append(vol.frames, ColumnMax(refl.Data[k*step:(k+1)*step], rh, nz, ny, nx, qc))
	}

	vol.mapping = readGridMapping(ds)
	if ds.Has("time") {
		if vol.times, err = readTimes(ds, "time"); err != nil {
			return nil, err
		}
	}
	return vol, nil
}

func readAxis(ds *ncfile.Dataset, name string) ([]float64, error) {
	a, err := ds.Float64s(name)
	if err != nil {
		return nil, err
	}
	attrs, err := ds.VarAttrs(name)
	if err != nil {
		return nil, err
	}
	if units, _ := ncfile.AttrString(attrs, "units"); strings.TrimSpace(units) == "km" {
		for i := range a.Data {
			a.Data[i] *= 1000
		}
	}
	return a.Data, nil
}

func readTimes(ds *ncfile.Dataset, name string) ([]time.Time, error) {
	a, err := ds.Float64s(name)
	if err != nil {
		return nil, err
	}
	attrs, err := ds.VarAttrs(name)
	if err != nil {
		return nil, err
	}
	units, ok := ncfile.AttrString(attrs, "units")
	if !ok {
		return nil, fmt.Errorf("%s: variable %s has no units", ds.Path(), name)
	}
	return ncfile.DecodeTimes(a.Data, units)
}

// readGridMapping reads the CF grid mapping from ProjectionCoordinateSystem,
// falling back to an azimuthal equidistant projection about the radar
// origin.
func readGridMapping(ds *ncfile.Dataset) geo.GridMapping {
	if ds.Has("ProjectionCoordinateSystem") {
		if attrs, err := ds.VarAttrs("ProjectionCoordinateSystem"); err == nil {
			if m := geo.ParseGridMapping(attrs); m.Name != "" {
				return m
			}
		}
	}
	m := geo.GridMapping{Name: geo.MappingAzimuthalEquidistant}
	if ds.Has("origin_latitude") && ds.Has("origin_longitude") {
		if lat, err := ds.Float64s("origin_latitude"); err == nil && lat.Len() > 0 {
			m.LatitudeOfProjectionOrigin = lat.Data[0]
		}
		if lon, err := ds.Float64s("origin_longitude"); err == nil && lon.Len() > 0 {
			m.LongitudeOfProjectionOrigin = lon.Data[0]
		}
	}
	return m
}

// assembleRadar concatenates per-file volumes along time and fills in the
// grid metadata shared by the radar sources.
func assembleRadar(ctx context.Context, files []string, vars radarVars, qc QC, fileTime func(string, *radarVolume) ([]time.Time, error)) (*Composite, error) {
	c := &Composite{}
	for n, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vol, err := readRadarVolume(f, vars, qc)
		if err != nil {
			return nil, err
		}
		times, err := fileTime(f, vol)
		if err != nil {
			return nil, err
		}
		if len(times) != len(vol.frames) {
			return nil, fmt.Errorf("%s: %d times for %d frames", f, len(times), len(vol.frames))
		}
		if n == 0 {
			c.X, c.Y, c.Mapping = vol.x, vol.y, vol.mapping
		} else if len(vol.x) != len(c.X) || len(vol.y) != len(c.Y) {
			return nil, fmt.Errorf("%s: grid %dx%d differs from %dx%d", f, len(vol.y), len(vol.x), len(c.Y), len(c.X))
		}
		c.Refl = append(c.Refl, vol.frames...)
		c.Times = append(c.Times, times...)
		monitoring.Debugf("read %s: %d frames", filepath.Base(f), len(vol.frames))
	}

	c.DxyKm = GridSpacingKm(c.X)
	c.DtMinutes = TimeStepMinutes(c.Times)

	lon, lat, err := geo.CartesianToGeographic(c.Mapping, c.X, c.Y)
	switch {
	case errors.Is(err, geo.ErrProjectionUnavailable):
		monitoring.Logf("warning: %v; features will have no latitude/longitude", err)
	case err != nil:
		return nil, err
	default:
		c.Lon, c.Lat = lon, lat
	}
	return c, nil
}
