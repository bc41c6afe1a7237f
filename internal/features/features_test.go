package features

import (
	"context"
	"math"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/celltrack/internal/config"
	"github.com/banshee-data/celltrack/internal/grid"
	"github.com/banshee-data/celltrack/internal/testutil"
)

func defaultParams(thresholds ...float64) Params {
	return Params{
		Thresholds:        thresholds,
		PositionThreshold: config.PositionWeightedDiff,
		Sigma:             1.0,
		TargetMaximum:     true,
	}
}

func TestGaussianSmooth(t *testing.T) {
	f := testutil.NewField(7, 9, 12)
	f[3][4] = math.NaN()

	s := GaussianSmooth(f, 1.5)
	for j := range s {
		for i := range s[j] {
			if j == 3 && i == 4 {
				assert.True(t, math.IsNaN(s[j][i]))
				continue
			}
			assert.InDelta(t, 12, s[j][i], 1e-9, "constant field stays constant at (%d,%d)", j, i)
		}
	}

	peak := testutil.NewField(11, 11, 0)
	peak[5][5] = 100
	sp := GaussianSmooth(peak, 1)
	assert.Less(t, sp[5][5], 100.0)
	assert.Greater(t, sp[5][5], sp[5][6])
	assert.InDelta(t, sp[5][6], sp[6][5], 1e-12)

	same := GaussianSmooth(peak, 0)
	assert.Equal(t, peak, same)
	same[0][0] = 1
	assert.Equal(t, 0.0, peak[0][0], "sigma 0 returns a copy")
}

func TestDetectFrame_TwoBlobs(t *testing.T) {
	f := testutil.NewField(40, 60, 0)
	testutil.AddBlob(f, 10, 12, 2.5, 50, 0)
	testutil.AddBlob(f, 28, 44, 2.5, 50, 0)

	cands := DetectFrame(f, defaultParams(20, 40), 1)
	require.Len(t, cands, 2)
	sort.Slice(cands, func(a, b int) bool { return cands[a].Hdim1 < cands[b].Hdim1 })

	assert.InDelta(t, 10, cands[0].Hdim1, 1e-6)
	assert.InDelta(t, 12, cands[0].Hdim2, 1e-6)
	assert.InDelta(t, 28, cands[1].Hdim1, 1e-6)
	assert.InDelta(t, 44, cands[1].Hdim2, 1e-6)
	for _, c := range cands {
		assert.Equal(t, 40.0, c.Threshold, "stricter threshold replaces the looser feature")
		assert.Greater(t, c.Num, 0)
	}
}

func TestDetectFrame_KeepsWeakFeatureAtLowerThreshold(t *testing.T) {
	f := testutil.NewField(30, 60, 0)
	testutil.AddBlob(f, 15, 10, 2.5, 55, 0)
	testutil.AddBlob(f, 15, 45, 2.5, 30, 0)

	cands := DetectFrame(f, defaultParams(40, 20), 1)
	require.Len(t, cands, 2)
	got := []float64{cands[0].Threshold, cands[1].Threshold}
	sort.Float64s(got)
	assert.Equal(t, []float64{20, 40}, got)
}

func TestDetectFrame_NMinAndPositions(t *testing.T) {
	f := testutil.NewField(30, 30, 0)
	testutil.AddBlob(f, 8, 8, 3, 50, 0)
	testutil.AddBlob(f, 22, 22, 0.6, 50, 0)

	p := defaultParams(20)
	p.Sigma = 0
	all := DetectFrame(f, p, 1)
	require.Len(t, all, 2)

	p.NMin = 10
	big := DetectFrame(f, p, 1)
	require.Len(t, big, 1)
	assert.InDelta(t, 8, big[0].Hdim1, 1e-9)

	p.PositionThreshold = config.PositionExtreme
	ext := DetectFrame(f, p, 1)
	require.Len(t, ext, 1)
	assert.Equal(t, 8.0, ext[0].Hdim1)
	assert.Equal(t, 8.0, ext[0].Hdim2)

	p.PositionThreshold = config.PositionCenter
	ctr := DetectFrame(f, p, 1)
	assert.InDelta(t, 8, ctr[0].Hdim2, 1e-9)

	p.PositionThreshold = config.PositionWeightedAbs
	abs := DetectFrame(f, p, 1)
	assert.InDelta(t, 8, abs[0].Hdim1, 1e-9)
}

func TestDetectFrame_MinDistance(t *testing.T) {
	f := testutil.NewField(20, 40, 0)
	testutil.AddBlob(f, 10, 10, 1, 50, 0)
	testutil.AddBlob(f, 10, 17, 1.5, 50, 0)

	p := defaultParams(40)
	p.Sigma = 0
	require.Len(t, DetectFrame(f, p, 1), 2)

	p.MinDistanceKm = 10
	kept := DetectFrame(f, p, 1)
	require.Len(t, kept, 1)
	assert.InDelta(t, 17, kept[0].Hdim2, 1e-9, "larger region wins at equal threshold")
}

func TestDetectFrame_Minimum(t *testing.T) {
	f := testutil.NewField(20, 20, 50)
	for j := range f {
		for i := range f[j] {
			d := math.Hypot(float64(j)-10, float64(i)-10)
			f[j][i] = 50 - 50*math.Exp(-d*d/8)
		}
	}
	p := defaultParams(10)
	p.Sigma = 0
	p.TargetMaximum = false
	cands := DetectFrame(f, p, 1)
	require.Len(t, cands, 1)
	assert.InDelta(t, 10, cands[0].Hdim1, 1e-6)
}

func syntheticComposite(frames [][][]float64) *grid.Composite {
	ny, nx := len(frames[0]), len(frames[0][0])
	base := time.Date(2022, 6, 2, 10, 0, 0, 0, time.UTC)
	c := &grid.Composite{
		Source:    "NEXRAD",
		X:         testutil.Axis(nx, -float64(nx/2)*1000, 1000),
		Y:         testutil.Axis(ny, -float64(ny/2)*1000, 1000),
		Refl:      frames,
		DxyKm:     1,
		DtMinutes: 5,
		Date:      "20220602",
	}
	for k := range frames {
		c.Times = append(c.Times, base.Add(time.Duration(k)*5*time.Minute))
	}
	c.Lon = testutil.NewField(ny, nx, 0)
	c.Lat = testutil.NewField(ny, nx, 0)
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			c.Lon[j][i] = -95 + float64(i)*0.01
			c.Lat[j][i] = 29 + float64(j)*0.01
		}
	}
	return c
}

func TestDetect_Composite(t *testing.T) {
	frames := testutil.MovingBlobs(3, 30, 40, 0,
		testutil.Blob{Y: 10, X: 8, VX: 2, Sigma: 2, Peak: 45},
		testutil.Blob{Y: 22, X: 30, Sigma: 2, Peak: 45, First: 1},
	)
	c := syntheticComposite(frames)

	fs, err := Detect(context.Background(), c, defaultParams(20))
	require.NoError(t, err)
	require.Len(t, fs, 5)

	for i, f := range fs {
		assert.Equal(t, i+1, f.ID)
		assert.Equal(t, -1, f.Cell)
	}
	assert.Equal(t, 0, fs[0].Frame)
	assert.Equal(t, 1, fs[0].Idx)
	assert.Equal(t, c.Times[2], fs[4].Time)

	f0 := fs[0]
	assert.InDelta(t, 10, f0.Hdim1, 1e-6)
	assert.InDelta(t, 8, f0.Hdim2, 1e-6)
	assert.InDelta(t, -20000+8000, f0.ProjX, 1e-6)
	assert.InDelta(t, -15000+10000, f0.ProjY, 1e-6)
	assert.InDelta(t, -95+0.08, f0.Lon, 1e-6)
	assert.InDelta(t, 29+0.10, f0.Lat, 1e-6)

	_, err = Detect(context.Background(), c, Params{})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Detect(ctx, c, defaultParams(20))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWatershed(t *testing.T) {
	f := [][]float64{
		{50, 40, 30, 40, 50, 0, 25},
		{45, 35, 25, 35, 45, 0, 25},
		{0, 0, 0, 0, 0, 0, 0},
		{5, 5, 5, 5, 5, 5, 5},
	}
	seeds := []Seed{{Row: 0, Col: 0, Label: 1}, {Row: 0.2, Col: 3.9, Label: 2}, {Row: 3, Col: 3, Label: 3}}
	m := Watershed(f, seeds, 20, true)

	want := [][]int32{
		{1, 1, 1, 2, 2, 0, 0},
		{1, 1, 1, 2, 2, 0, 0},
		{0, 0, 0, 0, 0, 0, 0},
		{0, 0, 0, 0, 0, 0, 0},
	}
	// column 2 is a ridge at 30/25; label 1 reaches it first through brighter pixels
	assert.Equal(t, want[2], m[2])
	assert.Equal(t, want[3], m[3], "seed below threshold claims nothing")
	assert.Equal(t, int32(0), m[0][6], "region with no seed stays unlabelled")
	assert.Equal(t, int32(1), m[0][0])
	assert.Equal(t, int32(2), m[0][4])
	assert.Equal(t, int32(2), m[1][3])
	for j := 0; j < 2; j++ {
		for i := 0; i < 5; i++ {
			assert.NotZero(t, m[j][i], "connected pixel (%d,%d) assigned", j, i)
		}
	}
}

func TestThresholdIsStrict(t *testing.T) {
	f := testutil.NewField(5, 5, 0)
	f[2][2] = 20
	f[2][3] = 20

	p := defaultParams(20)
	p.Sigma = 0
	assert.Empty(t, DetectFrame(f, p, 1), "pixels equal to the threshold are not a feature")

	f[2][2] = 21
	cands := DetectFrame(f, p, 1)
	require.Len(t, cands, 1)
	assert.Equal(t, 1, cands[0].Num)

	m := Watershed(f, []Seed{{Row: 2, Col: 2, Label: 1}}, 20, true)
	assert.Equal(t, int32(1), m[2][2])
	assert.Equal(t, int32(0), m[2][3], "a pixel at the threshold is not flooded")
}

func TestSegmentAndAnnotate(t *testing.T) {
	frames := testutil.MovingBlobs(2, 20, 30, 0,
		testutil.Blob{Y: 6, X: 6, Sigma: 2, Peak: 45},
		testutil.Blob{Y: 14, X: 22, Sigma: 2, Peak: 35},
	)
	c := syntheticComposite(frames)
	c.DxyKm = 0.5

	fs, err := Detect(context.Background(), c, defaultParams(20))
	require.NoError(t, err)
	require.Len(t, fs, 4)

	mask, err := Segment(context.Background(), c, fs, SegmentParams{Threshold: 20, TargetMaximum: true})
	require.NoError(t, err)
	require.Len(t, mask, 2)

	for _, f := range fs {
		assert.Greater(t, f.NCells, 0)
		j, i := int(math.Round(f.Hdim1)), int(math.Round(f.Hdim2))
		assert.Equal(t, int32(f.ID), mask[f.Frame][j][i])
	}

	require.NoError(t, Annotate(fs, mask, c.Refl, c.DxyKm))
	for _, f := range fs {
		assert.Equal(t, f.NCells, f.Area)
		assert.InDelta(t, float64(f.Area)*0.25, f.AreaKm2, 1e-12)
	}
	assert.Equal(t, 45.0, fs[0].MaxRefl)
	assert.Equal(t, 35.0, fs[1].MaxRefl)

	assert.Error(t, Annotate(fs, mask[:1], c.Refl, 1))
}

func TestAnnotate_NoSegment(t *testing.T) {
	fs := []Feature{{ID: 1}, {ID: 2}}
	mask := [][][]int32{{{1, 1}, {0, 0}}}
	refl := [][][]float64{{{math.NaN(), math.NaN()}, {10, 10}}}
	require.NoError(t, Annotate(fs, mask, refl, 1))

	assert.Equal(t, 2, fs[0].Area)
	assert.True(t, math.IsNaN(fs[0].MaxRefl))
	assert.Equal(t, 0, fs[1].Area)
	assert.Equal(t, 0.0, fs[1].MaxRefl)
}

func TestByFrame(t *testing.T) {
	fs := []Feature{{Frame: 0}, {Frame: 2}, {Frame: 0}, {Frame: 5}}
	assert.Equal(t, [][]int{{0, 2}, nil, {1}}, ByFrame(fs, 3))
}

func TestInterpolation(t *testing.T) {
	assert.Equal(t, 1500.0, interp1([]float64{1000, 2000, 3000}, 0.5))
	assert.Equal(t, 4000.0, interp1([]float64{1000, 2000, 3000}, 3))
	assert.True(t, math.IsNaN(interp1(nil, 0)))

	field := [][]float64{{0, 10}, {20, 30}}
	assert.Equal(t, 15.0, bilinear(field, 0.5, 0.5))
	assert.Equal(t, 30.0, bilinear(field, 5, 5))
}
