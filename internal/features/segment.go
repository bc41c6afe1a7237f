package features

import (
	"container/heap"
	"context"
	"fmt"
	"math"

	"github.com/banshee-data/celltrack/internal/config"
	"github.com/banshee-data/celltrack/internal/grid"
)

// SegmentParams configures watershed segmentation.
type SegmentParams struct {
	Threshold     float64
	TargetMaximum bool
}

// Segment assigns grid points to features. The returned mask is indexed
// [time][y][x] and holds the owning feature ID or 0. NCells is set on every
// feature.
func Segment(ctx context.Context, c *grid.Composite, fs []Feature, p SegmentParams) ([][][]int32, error) {
	groups := ByFrame(fs, c.NumFrames())
	mask := make([][][]int32, c.NumFrames())
	for k, frame := range c.Refl {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		seeds := make([]Seed, 0, len(groups[k]))
		for _, i := range groups[k] {
			seeds = append(seeds, Seed{Row: fs[i].Hdim1, Col: fs[i].Hdim2, Label: int32(fs[i].ID)})
		}
		m := Watershed(frame, seeds, p.Threshold, p.TargetMaximum)
		mask[k] = m

		counts := make(map[int32]int)
		for _, row := range m {
			for _, l := range row {
				if l > 0 {
					counts[l]++
				}
			}
		}
		for _, i := range groups[k] {
			fs[i].NCells = counts[int32(fs[i].ID)]
		}
	}
	return mask, nil
}

// Seed is a labelled starting point for the watershed flood.
type Seed struct {
	Row, Col float64
	Label    int32
}

// Watershed floods outward from the seeds over the pixels that pass the
// threshold, visiting brighter pixels first (dimmer first when
// maximum is false). Pixels not reachable from a seed stay 0. A seed whose
// own pixel fails the threshold claims nothing.
func Watershed(field [][]float64, seeds []Seed, threshold float64, maximum bool) [][]int32 {
	ny := len(field)
	if ny == 0 {
		return nil
	}
	nx := len(field[0])
	labels := make([][]int32, ny)
	for j := range labels {
		labels[j] = make([]int32, nx)
	}
	in := func(j, i int) bool {
		v := field[j][i]
		if math.IsNaN(v) {
			return false
		}
		if maximum {
			return v > threshold
		}
		return v < threshold
	}
	priority := func(j, i int) float64 {
		if maximum {
			return -field[j][i]
		}
		return field[j][i]
	}

	pq := &floodQueue{}
	var age int
	for _, s := range seeds {
		j := int(math.Round(s.Row))
		i := int(math.Round(s.Col))
		if j < 0 || j >= ny || i < 0 || i >= nx || !in(j, i) {
			continue
		}
		labels[j][i] = s.Label
		heap.Push(pq, floodItem{j: j, i: i, prio: priority(j, i), age: age})
		age++
	}

	for pq.Len() > 0 {
		it := heap.Pop(pq).(floodItem)
		l := labels[it.j][it.i]
		for _, d := range [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
			nj, ni := it.j+d[0], it.i+d[1]
			if nj < 0 || nj >= ny || ni < 0 || ni >= nx {
				continue
			}
			if labels[nj][ni] != 0 || !in(nj, ni) {
				continue
			}
			labels[nj][ni] = l
			heap.Push(pq, floodItem{j: nj, i: ni, prio: priority(nj, ni), age: age})
			age++
		}
	}
	return labels
}

type floodItem struct {
	j, i int
	prio float64
	age  int
}

// floodQueue orders pixels by priority, then by insertion age.
type floodQueue []floodItem

func (q floodQueue) Len() int { return len(q) }
func (q floodQueue) Less(a, b int) bool {
	if q[a].prio != q[b].prio {
		return q[a].prio < q[b].prio
	}
	return q[a].age < q[b].age
}
func (q floodQueue) Swap(a, b int)       { q[a], q[b] = q[b], q[a] }
func (q *floodQueue) Push(x interface{}) { *q = append(*q, x.(floodItem)) }
func (q *floodQueue) Pop() interface{} {
	old := *q
	it := old[len(old)-1]
	*q = old[:len(old)-1]
	return it
}

// Annotate sets Area, AreaKm2 and MaxRefl on every feature from the
// segmentation mask and the unsmoothed reflectivity. Features that own no
// pixels get zero area and a zero maximum.
func Annotate(fs []Feature, mask [][][]int32, refl [][][]float64, dxyKm float64) error {
	if len(mask) != len(refl) {
		return fmt.Errorf("mask has %d frames, reflectivity %d", len(mask), len(refl))
	}
	byID := make(map[int32]int, len(fs))
	for i := range fs {
		byID[int32(fs[i].ID)] = i
		fs[i].Area = 0
		fs[i].AreaKm2 = 0
		fs[i].MaxRefl = 0
	}
	seen := make(map[int32]bool, len(fs))
	for k := range mask {
		for j, row := range mask[k] {
			for i, l := range row {
				if l <= 0 {
					continue
				}
				idx, ok := byID[l]
				if !ok {
					continue
				}
				f := &fs[idx]
				f.Area++
				v := refl[k][j][i]
				if math.IsNaN(v) {
					continue
				}
				if !seen[l] || v > f.MaxRefl {
					f.MaxRefl = v
					seen[l] = true
				}
			}
		}
	}
	for i := range fs {
		fs[i].AreaKm2 = float64(fs[i].Area) * dxyKm * dxyKm
		if fs[i].Area > 0 && !seen[int32(fs[i].ID)] {
			fs[i].MaxRefl = math.NaN()
		}
	}
	return nil
}

// SegmentParamsFromConfig reads segmentation parameters from a tuning
// config.
func SegmentParamsFromConfig(cfg *config.TuningConfig) SegmentParams {
	return SegmentParams{
		Threshold:     cfg.GetSegmentationThreshold(),
		TargetMaximum: cfg.GetTargetMaximum(),
	}
}
