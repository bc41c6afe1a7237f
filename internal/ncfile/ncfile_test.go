package ncfile

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grid.nc")

	w, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, w.AddVar("x", []string{"x"}, []float64{-1000, 0, 1000},
		Attr{"units", "m"}, Attr{"standard_name", "projection_x_coordinate"}))
	require.NoError(t, w.AddVar("refl", []string{"time", "y", "x"}, [][][]int16{
		{{10, 20, -9999}, {30, 40, 50}},
		{{-9999, -9999, 60}, {70, 80, 90}},
	}, Attr{"_FillValue", int16(-9999)}, Attr{"scale_factor", float32(0.5)}, Attr{"add_offset", float32(1)}))
	require.NoError(t, w.AddVar("label", []string{"strlen"}, "KTLX"))
	require.NoError(t, w.Close())

	ds, err := Open(path)
	require.NoError(t, err)
	defer ds.Close()

	assert.True(t, ds.Has("refl"))
	assert.False(t, ds.Has("missing"))

	x, err := ds.Float64s("x")
	require.NoError(t, err)
	assert.Equal(t, []int{3}, x.Shape)
	assert.Equal(t, []float64{-1000, 0, 1000}, x.Data)

	attrs, err := ds.VarAttrs("x")
	require.NoError(t, err)
	units, ok := AttrString(attrs, "units")
	require.True(t, ok)
	assert.Equal(t, "m", units)

	refl, err := ds.Float64s("refl")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 3}, refl.Shape)
	assert.Equal(t, 6.0, refl.Data[0])
	assert.True(t, math.IsNaN(refl.Data[2]))

	frame, err := refl.Frame(1)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(frame[0][0]))
	assert.Equal(t, 46.0, frame[1][2])

	_, err = refl.Frame(2)
	assert.Error(t, err)

	dims, err := ds.Dims("refl")
	require.NoError(t, err)
	assert.Equal(t, []string{"time", "y", "x"}, dims)

	label, err := ds.Strings("label")
	require.NoError(t, err)
	assert.Equal(t, []string{"KTLX"}, label)

	_, err = ds.Float64s("missing")
	assert.Error(t, err)
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.nc"))
	assert.Error(t, err)
}

func TestAttrFloat(t *testing.T) {
	attrs := map[string]interface{}{
		"scalar": float32(2.5),
		"slice":  []int32{7, 8},
		"text":   "abc",
	}
	v, ok := AttrFloat(attrs, "scalar")
	assert.True(t, ok)
	assert.Equal(t, 2.5, v)

	v, ok = AttrFloat(attrs, "slice")
	assert.True(t, ok)
	assert.Equal(t, 7.0, v)

	_, ok = AttrFloat(attrs, "text")
	assert.False(t, ok)
	_, ok = AttrFloat(attrs, "absent")
	assert.False(t, ok)
}

func TestDecodeTimes(t *testing.T) {
	times, err := DecodeTimes([]float64{0, 90, math.NaN()}, "seconds since 2011-05-20T10:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2011, 5, 20, 10, 0, 0, 0, time.UTC), times[0])
	assert.Equal(t, time.Date(2011, 5, 20, 10, 1, 30, 0, time.UTC), times[1])
	assert.True(t, times[2].IsZero())

	times, err = DecodeTimes([]float64{1.5}, "hours since 2000-01-01 00:00:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2000, 1, 1, 1, 30, 0, 0, time.UTC), times[0])

	times, err = DecodeTimes([]float64{2}, "days since 1970-01-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(1970, 1, 3, 0, 0, 0, 0, time.UTC), times[0])
}

func TestParseTimeUnitsErrors(t *testing.T) {
	for _, units := range []string{"seconds", "fortnights since 2000-01-01", "seconds since yesterday"} {
		_, _, err := ParseTimeUnits(units)
		assert.Error(t, err, units)
	}
}

func TestNest2(t *testing.T) {
	got := Nest2([]int32{1, 2, 3, 4, 5, 6}, 2, 3)
	assert.Equal(t, [][]int32{{1, 2, 3}, {4, 5, 6}}, got)
}
