// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common test helpers and synthetic reflectivity
// fields used across the tracking packages.
package testutil

import (
	"math"
	"testing"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// NewField returns an ny-by-nx field filled with v.
func NewField(ny, nx int, v float64) [][]float64 {
	f := make([][]float64, ny)
	for j := range f {
		f[j] = make([]float64, nx)
		for i := range f[j] {
			f[j][i] = v
		}
	}
	return f
}

// AddBlob raises field to an isotropic gaussian of the given peak centred
// at (cy, cx). Existing higher values are kept.
func AddBlob(field [][]float64, cy, cx, sigma, peak, background float64) {
	for j := range field {
		for i := range field[j] {
			dy := float64(j) - cy
			dx := float64(i) - cx
			v := background + (peak-background)*math.Exp(-(dx*dx+dy*dy)/(2*sigma*sigma))
			if v > field[j][i] || math.IsNaN(field[j][i]) {
				field[j][i] = v
			}
		}
	}
}

// Blob describes a gaussian that moves at constant velocity in pixel units.
type Blob struct {
	Y, X   float64 // position at frame 0
	VY, VX float64 // pixels per frame
	Sigma  float64
	Peak   float64
	First  int // first frame the blob is visible
	Last   int // last frame the blob is visible, inclusive; 0 means all
}

// MovingBlobs renders nt frames of ny-by-nx fields containing the blobs.
func MovingBlobs(nt, ny, nx int, background float64, blobs ...Blob) [][][]float64 {
	frames := make([][][]float64, nt)
	for k := range frames {
		frames[k] = NewField(ny, nx, background)
		for _, b := range blobs {
			if k < b.First || (b.Last > 0 && k > b.Last) {
				continue
			}
			AddBlob(frames[k], b.Y+b.VY*float64(k), b.X+b.VX*float64(k), b.Sigma, b.Peak, background)
		}
	}
	return frames
}

// Axis returns n coordinates starting at start with the given step.
func Axis(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}
