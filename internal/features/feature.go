// Package features detects storm features in reflectivity composites,
// segments the area each feature owns, and derives per-feature statistics.
//
// Detection follows the multi-threshold approach: each threshold in turn
// labels 4-connected regions of the smoothed field, and features found at
// a stricter threshold replace the looser feature whose region contains
// them. Segmentation floods outward from every feature position in
// descending reflectivity order.
package features

import (
	"math"
	"time"
)

// Feature is one detected storm feature at one timestep.
type Feature struct {
	ID        int     // 1-based, unique across all frames
	Frame     int     // time index
	Idx       int     // 1-based index within the frame
	Hdim1     float64 // fractional row (y index)
	Hdim2     float64 // fractional column (x index)
	Num       int     // pixels in the detection region
	Threshold float64 // strictest threshold the feature passed
	Time      time.Time
	ProjX     float64 // metres
	ProjY     float64 // metres
	Lat       float64
	Lon       float64

	// Filled by Segment.
	NCells int

	// Filled by Annotate.
	Area    int
	AreaKm2 float64
	MaxRefl float64

	// Filled by linking. Cell is -1 for features not in a kept cell.
	Cell     int
	TimeCell time.Duration
}

// ByFrame groups feature indices by frame.
func ByFrame(fs []Feature, nframes int) [][]int {
	out := make([][]int, nframes)
	for i, f := range fs {
		if f.Frame >= 0 && f.Frame < nframes {
			out[f.Frame] = append(out[f.Frame], i)
		}
	}
	return out
}

// interp1 linearly interpolates axis at a fractional index, extrapolating
// beyond the ends.
func interp1(axis []float64, idx float64) float64 {
	n := len(axis)
	switch {
	case n == 0:
		return math.NaN()
	case n == 1:
		return axis[0]
	}
	i0 := int(math.Floor(idx))
	if i0 < 0 {
		i0 = 0
	}
	if i0 > n-2 {
		i0 = n - 2
	}
	f := idx - float64(i0)
	return axis[i0] + f*(axis[i0+1]-axis[i0])
}

// bilinear interpolates a 2-D field at a fractional (row, col).
func bilinear(field [][]float64, row, col float64) float64 {
	ny := len(field)
	if ny == 0 || len(field[0]) == 0 {
		return math.NaN()
	}
	nx := len(field[0])
	row = math.Max(0, math.Min(row, float64(ny-1)))
	col = math.Max(0, math.Min(col, float64(nx-1)))
	j0, i0 := int(math.Floor(row)), int(math.Floor(col))
	j1, i1 := j0+1, i0+1
	if j1 >= ny {
		j1 = j0
	}
	if i1 >= nx {
		i1 = i0
	}
	fy, fx := row-float64(j0), col-float64(i0)
	top := field[j0][i0]*(1-fx) + field[j0][i1]*fx
	bot := field[j1][i0]*(1-fx) + field[j1][i1]*fx
	return top*(1-fy) + bot*fy
}
