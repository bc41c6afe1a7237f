package features

import (
	"context"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/celltrack/internal/config"
	"github.com/banshee-data/celltrack/internal/grid"
	"github.com/banshee-data/celltrack/internal/monitoring"
)

// Params configures feature detection.
type Params struct {
	Thresholds        []float64
	PositionThreshold string
	Sigma             float64
	NMin              int
	MinDistanceKm     float64
	TargetMaximum     bool
}

// ParamsFromConfig reads detection parameters from a tuning config.
func ParamsFromConfig(cfg *config.TuningConfig) Params {
	return Params{
		Thresholds:        cfg.GetThresholds(),
		PositionThreshold: cfg.GetPositionThreshold(),
		Sigma:             cfg.GetSigmaThreshold(),
		NMin:              cfg.GetNMinThreshold(),
		MinDistanceKm:     cfg.GetMinDistanceKm(),
		TargetMaximum:     cfg.GetTargetMaximum(),
	}
}

// Candidate is a feature detected in a single 2-D field.
type Candidate struct {
	Hdim1, Hdim2 float64
	Num          int
	Threshold    float64
	pixels       []int // flat indices j*nx+i
}

// Detect finds features in every frame of the composite and numbers them
// 1..N in frame order.
func Detect(ctx context.Context, c *grid.Composite, p Params) ([]Feature, error) {
	if len(p.Thresholds) == 0 {
		return nil, fmt.Errorf("feature detection needs at least one threshold")
	}
	var out []Feature
	id := 1
	for k, frame := range c.Refl {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cands := DetectFrame(frame, p, c.DxyKm)
		for n, cd := range cands {
			f := Feature{
				ID:        id,
				Frame:     k,
				Idx:       n + 1,
				Hdim1:     cd.Hdim1,
				Hdim2:     cd.Hdim2,
				Num:       cd.Num,
				Threshold: cd.Threshold,
				Time:      c.Times[k],
				ProjX:     interp1(c.X, cd.Hdim2),
				ProjY:     interp1(c.Y, cd.Hdim1),
				Lat:       math.NaN(),
				Lon:       math.NaN(),
				Cell:      -1,
				MaxRefl:   math.NaN(),
			}
			if c.Lat != nil && c.Lon != nil {
				f.Lat = bilinear(c.Lat, cd.Hdim1, cd.Hdim2)
				f.Lon = bilinear(c.Lon, cd.Hdim1, cd.Hdim2)
			}
			out = append(out, f)
			id++
		}
		monitoring.Debugf("frame %d: %d features", k, len(cands))
	}
	return out, nil
}

// DetectFrame runs multi-threshold detection on one field. dxyKm is only
// used for the minimum distance filter.
func DetectFrame(field [][]float64, p Params, dxyKm float64) []Candidate {
	ny := len(field)
	if ny == 0 {
		return nil
	}
	nx := len(field[0])
	data := GaussianSmooth(field, p.Sigma)

	thresholds := append([]float64(nil), p.Thresholds...)
	if p.TargetMaximum {
		sort.Float64s(thresholds)
	} else {
		sort.Sort(sort.Reverse(sort.Float64Slice(thresholds)))
	}

	var kept []Candidate
	owner := make([]int, ny*nx) // index+1 into kept, 0 = none
	for _, thr := range thresholds {
		labels, sizes := labelRegions(data, thr, p.TargetMaximum)
		regions := make([][]int, len(sizes))
		for idx, l := range labels {
			if l > 0 {
				regions[l-1] = append(regions[l-1], idx)
			}
		}

		var fresh []Candidate
		replaced := make(map[int]bool)
		for _, px := range regions {
			if len(px) == 0 || len(px) < p.NMin {
				continue
			}
			cd := position(data, nx, px, thr, p.PositionThreshold, p.TargetMaximum)
			fresh = append(fresh, cd)
			for _, idx := range px {
				if o := owner[idx]; o > 0 {
					replaced[o-1] = true
				}
			}
		}
		if len(fresh) == 0 {
			continue
		}

		next := kept[:0:0]
		for i, cd := range kept {
			if !replaced[i] {
				next = append(next, cd)
			}
		}
		next = append(next, fresh...)
		kept = next
		for i := range owner {
			owner[i] = 0
		}
		for i, cd := range kept {
			for _, idx := range cd.pixels {
				owner[idx] = i + 1
			}
		}
	}

	if p.MinDistanceKm > 0 && dxyKm > 0 {
		kept = filterMinDistance(kept, p.MinDistanceKm/dxyKm, p.TargetMaximum)
	}
	return kept
}

// labelRegions labels 4-connected pixels strictly beyond the threshold.
// Labels are 1-based in raster order of each region's first pixel.
func labelRegions(data [][]float64, thr float64, maximum bool) ([]int, []int) {
	ny, nx := len(data), len(data[0])
	labels := make([]int, ny*nx)
	var sizes []int
	in := func(j, i int) bool {
		v := data[j][i]
		if math.IsNaN(v) {
			return false
		}
		if maximum {
			return v > thr
		}
		return v < thr
	}
	stack := make([]int, 0, 64)
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			if labels[j*nx+i] != 0 || !in(j, i) {
				continue
			}
			label := len(sizes) + 1
			size := 0
			labels[j*nx+i] = label
			stack = append(stack[:0], j*nx+i)
			for len(stack) > 0 {
				idx := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				size++
				cj, ci := idx/nx, idx%nx
				for _, d := range [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
					nj, ni := cj+d[0], ci+d[1]
					if nj < 0 || nj >= ny || ni < 0 || ni >= nx {
						continue
					}
					n := nj*nx + ni
					if labels[n] == 0 && in(nj, ni) {
						labels[n] = label
						stack = append(stack, n)
					}
				}
			}
			sizes = append(sizes, size)
		}
	}
	return labels, sizes
}

func position(data [][]float64, nx int, px []int, thr float64, method string, maximum bool) Candidate {
	rows := make([]float64, len(px))
	cols := make([]float64, len(px))
	vals := make([]float64, len(px))
	for n, idx := range px {
		rows[n] = float64(idx / nx)
		cols[n] = float64(idx % nx)
		vals[n] = data[idx/nx][idx%nx]
	}
	cd := Candidate{Num: len(px), Threshold: thr, pixels: px}

	var weights []float64
	switch method {
	case config.PositionExtreme:
		var at int
		if maximum {
			at = floats.MaxIdx(vals)
		} else {
			at = floats.MinIdx(vals)
		}
		cd.Hdim1, cd.Hdim2 = rows[at], cols[at]
		return cd
	case config.PositionWeightedAbs:
		weights = make([]float64, len(vals))
		for n, v := range vals {
			weights[n] = math.Abs(v)
		}
	case config.PositionWeightedDiff:
		weights = make([]float64, len(vals))
		for n, v := range vals {
			weights[n] = math.Abs(v - thr)
		}
	}
	if weights != nil && floats.Sum(weights) == 0 {
		weights = nil
	}
	cd.Hdim1 = stat.Mean(rows, weights)
	cd.Hdim2 = stat.Mean(cols, weights)
	return cd
}

// filterMinDistance keeps the strongest of any features closer than
// minPixels: stricter threshold first, then larger region.
func filterMinDistance(cands []Candidate, minPixels float64, maximum bool) []Candidate {
	order := make([]int, len(cands))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ca, cb := cands[order[a]], cands[order[b]]
		if ca.Threshold != cb.Threshold {
			if maximum {
				return ca.Threshold > cb.Threshold
			}
			return ca.Threshold < cb.Threshold
		}
		return ca.Num > cb.Num
	})
	keep := make([]bool, len(cands))
	var chosen []int
	for _, i := range order {
		ok := true
		for _, k := range chosen {
			if math.Hypot(cands[i].Hdim1-cands[k].Hdim1, cands[i].Hdim2-cands[k].Hdim2) < minPixels {
				ok = false
				break
			}
		}
		if ok {
			keep[i] = true
			chosen = append(chosen, i)
		}
	}
	out := cands[:0:0]
	for i, cd := range cands {
		if keep[i] {
			out = append(out, cd)
		}
	}
	return out
}
