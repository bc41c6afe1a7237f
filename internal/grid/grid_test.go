package grid

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/celltrack/internal/fsutil"
	"github.com/banshee-data/celltrack/internal/geo"
	"github.com/banshee-data/celltrack/internal/monitoring"
	"github.com/banshee-data/celltrack/internal/ncfile"
)

func init() {
	monitoring.SetLogger(nil)
}

var testQC = QC{RhohvMin: 0.9, ReflMin: 10}

func TestColumnMax_QC(t *testing.T) {
	// nz=2, ny=1, nx=3
	refl := []float64{
		5, 20, 5,
		math.NaN(), 15, 3,
	}
	rhohv := []float64{
		0.5, 0.5, 0.95,
		0.99, 0.99, 0.5,
	}
	got := ColumnMax(refl, rhohv, 2, 1, 3, testQC)

	assert.True(t, math.IsNaN(got[0][0]), "low rhohv and low refl gate is masked, NaN above is skipped")
	assert.Equal(t, 20.0, got[0][1])
	assert.Equal(t, 5.0, got[0][2], "good rhohv keeps weak echo")

	noQC := ColumnMax(refl, nil, 2, 1, 3, testQC)
	assert.Equal(t, 5.0, noQC[0][0])
}

func TestGridSpacingKm(t *testing.T) {
	assert.Equal(t, 0.5, GridSpacingKm([]float64{0, 500, 1000, 1500}))
	assert.Equal(t, 0.0, GridSpacingKm([]float64{7}))
	// mean diff 999.6 truncates to 999 m
	assert.InDelta(t, 0.999, GridSpacingKm([]float64{0, 999.6, 1999.2}), 1e-12)
}

func TestTimeStepMinutes(t *testing.T) {
	base := time.Date(2022, 6, 2, 10, 0, 0, 0, time.UTC)
	times := []time.Time{base, base.Add(4*time.Minute + 50*time.Second), base.Add(10 * time.Minute)}
	// intervals truncate to 4 and 5 minutes; mean 4.5 truncates to 4
	assert.Equal(t, 4.0, TimeStepMinutes(times))
	assert.Equal(t, 0.0, TimeStepMinutes(times[:1]))
}

func TestDateFromPath(t *testing.T) {
	d, ok := DateFromPath("/archive/TRACER/JUNE/20220602/")
	assert.True(t, ok)
	assert.Equal(t, "20220602", d)

	_, ok = DateFromPath("/archive/TRACER/JUNE")
	assert.False(t, ok)
	_, ok = DateFromPath("/data/20221399")
	assert.False(t, ok)
}

func TestPolarrisFileTime(t *testing.T) {
	got, err := PolarrisFileTime("/data/wrfout_d03_CSU_2011_0520_103000.nc")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2011, 5, 20, 10, 30, 0, 0, time.UTC), got)

	_, err = PolarrisFileTime("/data/short.nc")
	assert.Error(t, err)
	_, err = PolarrisFileTime("/data/no_suffix_2011_0520_103000")
	assert.Error(t, err)
}

func TestLookup(t *testing.T) {
	for _, tag := range []string{"NEXRAD", "nexrad", " Polarris ", "NUWRF"} {
		_, err := Lookup(tag)
		assert.NoError(t, err, tag)
	}
	_, err := Lookup("GOES")
	assert.True(t, errors.Is(err, ErrUnknownSource))
	assert.Equal(t, []string{"NEXRAD", "NUWRF", "POLARRIS"}, Names())
}

func TestLoad_NoFiles(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	_, err := Load(context.Background(), fsys, "NUWRF", "/empty", Options{QC: testQC})
	assert.True(t, errors.Is(err, ErrNoFiles))
}

func TestWRFGridMapping(t *testing.T) {
	m := WRFGridMapping(1, 30, 60, -98, 38)
	assert.Equal(t, geo.MappingLambertConformalConic, m.Name)
	assert.Equal(t, []float64{30, 60}, m.StandardParallel)
	assert.Equal(t, -98.0, m.LongitudeOfCentralMeridian)

	assert.Equal(t, geo.MappingPolarStereographic, WRFGridMapping(2, -60, 0, 0, 0).Name)
	assert.Equal(t, -90.0, WRFGridMapping(2, -60, 0, 0, 0).LatitudeOfProjectionOrigin)
	assert.Equal(t, geo.MappingMercator, WRFGridMapping(3, 10, 0, 100, 0).Name)

	_, err := geo.NewProjector(WRFGridMapping(99, 0, 0, 0, 0))
	assert.True(t, errors.Is(err, geo.ErrProjectionUnavailable))
}

// writeRadarFile writes a single-time (time, z, y, x) gridded radar file.
func writeRadarFile(t *testing.T, path, reflName, rhohvName string, refl, rhohv [][][][]float32, seconds float64) {
	t.Helper()
	w, err := ncfile.Create(path)
	require.NoError(t, err)
	require.NoError(t, w.AddVar("time", []string{"time"}, []float64{seconds},
		ncfile.Attr{Key: "units", Value: "seconds since 2022-06-02T10:00:00Z"}))
	require.NoError(t, w.AddVar("z", []string{"z"}, []float64{500, 1500}))
	require.NoError(t, w.AddVar("y", []string{"y"}, []float64{-1000, 0, 1000}, ncfile.Attr{Key: "units", Value: "m"}))
	require.NoError(t, w.AddVar("x", []string{"x"}, []float64{-1, 0, 1, 2}, ncfile.Attr{Key: "units", Value: "km"}))
	require.NoError(t, w.AddVar("ProjectionCoordinateSystem", []string{"time"}, []int32{0},
		ncfile.Attr{Key: "grid_mapping_name", Value: "azimuthal_equidistant"},
		ncfile.Attr{Key: "latitude_of_projection_origin", Value: 29.47},
		ncfile.Attr{Key: "longitude_of_projection_origin", Value: -95.08}))
	require.NoError(t, w.AddVar(reflName, []string{"time", "z", "y", "x"}, refl,
		ncfile.Attr{Key: "_FillValue", Value: float32(-9999)}))
	require.NoError(t, w.AddVar(rhohvName, []string{"time", "z", "y", "x"}, rhohv))
	require.NoError(t, w.Close())
}

func radarVolumeFixture(peak float32) ([][][][]float32, [][][][]float32) {
	refl := make([][][][]float32, 1)
	rhohv := make([][][][]float32, 1)
	refl[0] = make([][][]float32, 2)
	rhohv[0] = make([][][]float32, 2)
	for k := 0; k < 2; k++ {
		refl[0][k] = make([][]float32, 3)
		rhohv[0][k] = make([][]float32, 3)
		for j := 0; j < 3; j++ {
			refl[0][k][j] = []float32{5, 5, 5, 5}
			rhohv[0][k][j] = []float32{0.5, 0.99, 0.99, 0.99}
		}
	}
	refl[0][1][1][2] = peak
	refl[0][0][2][3] = -9999
	refl[0][1][2][3] = -9999
	return refl, rhohv
}

func TestLoad_NEXRAD(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "20220602")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	r1, h1 := radarVolumeFixture(40)
	r2, h2 := radarVolumeFixture(45)
	writeRadarFile(t, filepath.Join(dir, "KHGX_grid_100000.nc"), "reflectivity", "cross_correlation_ratio", r1, h1, 0)
	writeRadarFile(t, filepath.Join(dir, "KHGX_grid_100500.nc"), "reflectivity", "cross_correlation_ratio", r2, h2, 300)

	c, err := Load(context.Background(), fsutil.OSFileSystem{}, "nexrad", dir, Options{Site: "KHGX", QC: testQC})
	require.NoError(t, err)

	assert.Equal(t, "NEXRAD", c.Source)
	assert.Equal(t, "KHGX", c.Site)
	assert.Equal(t, "20220602", c.Date)
	assert.Equal(t, 2, c.NumFrames())
	assert.Equal(t, []float64{-1000, 0, 1000, 2000}, c.X)
	assert.Equal(t, 1.0, c.DxyKm)
	assert.Equal(t, 5.0, c.DtMinutes)
	assert.Equal(t, time.Date(2022, 6, 2, 10, 5, 0, 0, time.UTC), c.Times[1])

	assert.Equal(t, 40.0, c.Refl[0][1][2])
	assert.Equal(t, 45.0, c.Refl[1][1][2])
	assert.True(t, math.IsNaN(c.Refl[0][0][0]), "rhohv QC masks column 0")
	assert.Equal(t, 5.0, c.Refl[0][0][1])
	assert.True(t, math.IsNaN(c.Refl[0][2][3]), "all-fill column is NaN")

	require.NotNil(t, c.Lat)
	assert.InDelta(t, 29.47, c.Lat[1][1], 1e-9)
	assert.InDelta(t, -95.08, c.Lon[1][1], 1e-9)

	lon, lat := c.LonLatAt(1.2, 0.9)
	assert.InDelta(t, -95.08, lon, 1e-9)
	assert.InDelta(t, 29.47, lat, 1e-9)
}

func TestLoad_POLARRIS(t *testing.T) {
	dir := t.TempDir()
	r1, h1 := radarVolumeFixture(50)
	writeRadarFile(t, filepath.Join(dir, "POLARRIS_2011_0520_103000.nc"), "CZ", "RH", r1, h1, 0)
	writeRadarFile(t, filepath.Join(dir, "POLARRIS_2011_0520_104000.nc"), "CZ", "RH", r1, h1, 0)

	c, err := Load(context.Background(), fsutil.OSFileSystem{}, "POLARRIS", dir, Options{QC: testQC})
	require.NoError(t, err)
	assert.Equal(t, "20110520", c.Date)
	assert.Equal(t, 10.0, c.DtMinutes)
	assert.Equal(t, time.Date(2011, 5, 20, 10, 30, 0, 0, time.UTC), c.Times[0])
	assert.Equal(t, 50.0, c.Refl[1][1][2])
}

func TestLoad_NUWRF(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wrfout_d03_2011-05-20_10:00:00")

	comp := [][][]float32{
		{{0, 10, 20}, {30, 40, 50}},
		{{1, 11, 21}, {31, 41, 51}},
	}
	xlat := [][][]float32{{{35, 35, 35}, {35.03, 35.03, 35.03}}}
	xlong := [][][]float32{{{-97.03, -97, -96.97}, {-97.03, -97, -96.97}}}

	w, err := ncfile.Create(path)
	require.NoError(t, err)
	require.NoError(t, w.AddVar("Times", []string{"Time", "DateStrLen"},
		[]string{"2011-05-20_10:00:00", "2011-05-20_10:10:00"}))
	require.NoError(t, w.AddVar("COMDBZ", []string{"Time", "south_north", "west_east"}, comp))
	require.NoError(t, w.AddVar("XLAT", []string{"XTime", "south_north", "west_east"}, xlat))
	require.NoError(t, w.AddVar("XLONG", []string{"XTime", "south_north", "west_east"}, xlong))
	require.NoError(t, w.Close())

	c := &Composite{}
	require.NoError(t, readWRFFile(path, true, c))
	require.Len(t, c.Refl, 2)
	assert.Equal(t, 41.0, c.Refl[1][1][1])
	assert.InDelta(t, 35.03, c.Lat[1][0], 1e-5)
	assert.InDelta(t, -96.97, c.Lon[0][2], 1e-5)
	assert.Equal(t, time.Date(2011, 5, 20, 10, 10, 0, 0, time.UTC), c.Times[1])

	finishWRF(c, wrfGlobals{dx: 3000, dt: 18, mapProj: 99})
	assert.Equal(t, 3.0, c.DxyKm)
	assert.Equal(t, 10.0, c.DtMinutes)
	assert.Equal(t, "20110520", c.Date)
	assert.Equal(t, []float64{-3000, 0, 3000}, c.X)
	assert.Equal(t, []float64{-1500, 1500}, c.Y)
	require.NoError(t, c.Validate())

	// A single time falls back to the model time step.
	single := &Composite{Refl: c.Refl[:1], Times: c.Times[:1]}
	finishWRF(single, wrfGlobals{dx: 1000, dt: 120, mapProj: 99})
	assert.Equal(t, 2.0, single.DtMinutes)

	// Without global attributes the loader rejects the file.
	_, err = Load(context.Background(), fsutil.OSFileSystem{}, "NUWRF", dir, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DX")
}

func TestCentredAxis(t *testing.T) {
	assert.Equal(t, []float64{-1500, -500, 500, 1500}, centredAxis(4, 0, 1000))
	assert.Equal(t, []float64{9000, 10000, 11000}, centredAxis(3, 10000, 1000))
}

func TestConventionsWarning(t *testing.T) {
	assert.Empty(t, conventionsWarning("", false))
	assert.Empty(t, conventionsWarning("CF/Radial instrument_parameters", true))
	assert.Empty(t, conventionsWarning("CF-1.7", true))
	assert.Contains(t, conventionsWarning("ACDD-1.3", true), `"ACDD-1.3"`)
}

func TestWarnConventionsDoesNotBlockLoad(t *testing.T) {
	var logged []string
	monitoring.SetLogger(func(format string, v ...interface{}) { logged = append(logged, format) })
	defer monitoring.SetLogger(nil)

	dir := filepath.Join(t.TempDir(), "20220602")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	r, h := radarVolumeFixture(40)
	writeRadarFile(t, filepath.Join(dir, "KHGX_grid_100000.nc"), "reflectivity", "cross_correlation_ratio", r, h, 0)

	warnConventions(filepath.Join(dir, "missing.nc"))
	c, err := Load(context.Background(), fsutil.OSFileSystem{}, "NEXRAD", dir, Options{QC: testQC})
	require.NoError(t, err)
	assert.Equal(t, 1, c.NumFrames())
	for _, l := range logged {
		assert.NotContains(t, l, "Conventions")
	}
}
