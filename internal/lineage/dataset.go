package lineage

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/banshee-data/celltrack/internal/features"
	"github.com/banshee-data/celltrack/internal/grid"
)

// Dataset is the standardized feature/cell/track dataset with the
// segmentation mask attached.
type Dataset struct {
	Times []time.Time
	X, Y  []float64 // metres
	DxyKm float64

	Features FeatureTable
	Cells    CellTable
	Tracks   TrackTable

	// Mask is (time, y, x); 0 is background, otherwise a feature id.
	Mask [][][]int32
}

// FeatureTable holds one entry per feature.
type FeatureTable struct {
	ID           []int32
	TimeIndex    []int32
	Hdim1, Hdim2 []float64
	ProjX, ProjY []float64
	Lat, Lon     []float64
	Time         []time.Time
	ThresholdMax []float64
	Num          []int32
	Area         []int32
	AreaKm2      []float64
	MaxRefl      []float64
	ParentCell   []int32
	ParentTrack  []int32
	TimeCell     []float64 // seconds since the cell began

	Nearby []NearbyCount
}

// NearbyCount is a per-feature count of other features within RadiusKm.
type NearbyCount struct {
	RadiusKm float64
	Counts   []int32
}

// Name is the dataset variable name of the count column.
func (n NearbyCount) Name() string {
	return fmt.Sprintf("feature_nearby_count_%dkm", int(n.RadiusKm))
}

// CellTable holds one entry per kept cell.
type CellTable struct {
	ID                []int32
	ParentTrack       []int32
	ChildFeatureCount []int32
	StartsWithSplit   []bool
	EndsWithMerge     []bool
}

// TrackTable holds one entry per track.
type TrackTable struct {
	ID             []int32
	ChildCellCount []int32
}

// Len is the number of features.
func (ft *FeatureTable) Len() int { return len(ft.ID) }

// Standardize builds the dataset from linked features, the merge/split
// grouping, the composite coordinates and the segmentation mask.
func Standardize(fs []features.Feature, ms *MergeSplit, c *grid.Composite, mask [][][]int32) *Dataset {
	ds := &Dataset{
		Times: c.Times,
		X:     c.X,
		Y:     c.Y,
		DxyKm: c.DxyKm,
		Mask:  mask,
	}

	order := make([]int, len(fs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return fs[order[a]].ID < fs[order[b]].ID })

	ft := &ds.Features
	childFeatures := make(map[int]int32)
	for _, i := range order {
		f := fs[i]
		ft.ID = append(ft.ID, int32(f.ID))
		ft.TimeIndex = append(ft.TimeIndex, int32(f.Frame))
		ft.Hdim1 = append(ft.Hdim1, f.Hdim1)
		ft.Hdim2 = append(ft.Hdim2, f.Hdim2)
		ft.ProjX = append(ft.ProjX, f.ProjX)
		ft.ProjY = append(ft.ProjY, f.ProjY)
		ft.Lat = append(ft.Lat, f.Lat)
		ft.Lon = append(ft.Lon, f.Lon)
		ft.Time = append(ft.Time, f.Time)
		ft.ThresholdMax = append(ft.ThresholdMax, f.Threshold)
		ft.Num = append(ft.Num, int32(f.Num))
		ft.Area = append(ft.Area, int32(f.Area))
		ft.AreaKm2 = append(ft.AreaKm2, f.AreaKm2)
		ft.MaxRefl = append(ft.MaxRefl, f.MaxRefl)

		cell, track := int32(-1), int32(-1)
		timeCell := math.NaN()
		if f.Cell >= 0 {
			cell = int32(f.Cell)
			timeCell = f.TimeCell.Seconds()
			childFeatures[f.Cell]++
			if ms != nil {
				if t, ok := ms.CellTrack[f.Cell]; ok {
					track = int32(t)
				}
			}
		}
		ft.ParentCell = append(ft.ParentCell, cell)
		ft.ParentTrack = append(ft.ParentTrack, track)
		ft.TimeCell = append(ft.TimeCell, timeCell)
	}

	if ms == nil {
		return ds
	}
	childCells := make(map[int]int32)
	for _, id := range ms.Cells {
		t := ms.CellTrack[id]
		childCells[t]++
		ds.Cells.ID = append(ds.Cells.ID, int32(id))
		ds.Cells.ParentTrack = append(ds.Cells.ParentTrack, int32(t))
		ds.Cells.ChildFeatureCount = append(ds.Cells.ChildFeatureCount, childFeatures[id])
		ds.Cells.StartsWithSplit = append(ds.Cells.StartsWithSplit, ms.CellStartsSplit[id])
		ds.Cells.EndsWithMerge = append(ds.Cells.EndsWithMerge, ms.CellEndsMerge[id])
	}
	for _, t := range ms.Tracks {
		ds.Tracks.ID = append(ds.Tracks.ID, int32(t))
		ds.Tracks.ChildCellCount = append(ds.Tracks.ChildCellCount, childCells[t])
	}
	return ds
}

// CellFeatures returns the feature-table rows belonging to cell in time
// order.
func (ds *Dataset) CellFeatures(cell int32) []int {
	var rows []int
	for i, c := range ds.Features.ParentCell {
		if c == cell {
			rows = append(rows, i)
		}
	}
	sort.SliceStable(rows, func(a, b int) bool {
		return ds.Features.TimeIndex[rows[a]] < ds.Features.TimeIndex[rows[b]]
	})
	return rows
}

// TrackFeatures returns the feature-table rows belonging to track in time
// order.
func (ds *Dataset) TrackFeatures(track int32) []int {
	var rows []int
	for i, t := range ds.Features.ParentTrack {
		if t == track {
			rows = append(rows, i)
		}
	}
	sort.SliceStable(rows, func(a, b int) bool {
		return ds.Features.TimeIndex[rows[a]] < ds.Features.TimeIndex[rows[b]]
	})
	return rows
}

// FramesOf returns the first and last frame a set of rows spans.
func (ds *Dataset) FramesOf(rows []int) (first, last int) {
	first, last = math.MaxInt32, -1
	for _, r := range rows {
		f := int(ds.Features.TimeIndex[r])
		if f < first {
			first = f
		}
		if f > last {
			last = f
		}
	}
	return first, last
}
