package lineage

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/kdtree"
)

// CountTrackNeighbors adds one NearbyCount column per radius. For every
// timestep a KD-tree is built over the feature centres at that timestep,
// in kilometres from the pixel indices and spacingKm, and each feature
// counts the other features within the radius, boundary included.
func CountTrackNeighbors(ds *Dataset, radiiKm []float64, spacingKm float64) error {
	if spacingKm <= 0 {
		return fmt.Errorf("grid spacing must be positive, got %v", spacingKm)
	}
	for _, r := range radiiKm {
		if r < 0 {
			return fmt.Errorf("neighbour radius must not be negative, got %v", r)
		}
	}
	ft := &ds.Features
	n := ft.Len()

	byFrame := make(map[int32][]int)
	var frames []int32
	for i, t := range ft.TimeIndex {
		if _, ok := byFrame[t]; !ok {
			frames = append(frames, t)
		}
		byFrame[t] = append(byFrame[t], i)
	}

	cols := make([]NearbyCount, len(radiiKm))
	for k, r := range radiiKm {
		cols[k] = NearbyCount{RadiusKm: r, Counts: make([]int32, n)}
	}

	for _, t := range frames {
		rows := byFrame[t]
		pts := make(kdtree.Points, len(rows))
		for j, row := range rows {
			pts[j] = kdtree.Point{ft.Hdim2[row] * spacingKm, ft.Hdim1[row] * spacingKm}
		}
		tree := kdtree.New(append(kdtree.Points(nil), pts...), false)
		for k, r := range radiiKm {
			for j, row := range rows {
				keep := kdtree.NewDistKeeper(r * r)
				tree.NearestSet(keep, pts[j])
				found := 0
				for _, cd := range keep.Heap {
					if cd.Comparable != nil {
						found++
					}
				}
				// The query point itself is always within range.
				if found > 0 {
					found--
				}
				cols[k].Counts[row] = int32(found)
			}
		}
	}

	names := make(map[string]bool)
	for _, c := range cols {
		if names[c.Name()] {
			return fmt.Errorf("duplicate neighbour column %s", c.Name())
		}
		names[c.Name()] = true
	}
	ft.Nearby = cols
	return nil
}
