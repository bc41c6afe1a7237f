// Package trackio writes the tracking products as NetCDF files and reads
// the merged track dataset back for plotting.
package trackio

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/banshee-data/celltrack/internal/lineage"
	"github.com/banshee-data/celltrack/internal/monitoring"
	"github.com/banshee-data/celltrack/internal/ncfile"
)

// Product file names inside the save directory.
const (
	FeaturesFile = "Features.nc"
	MaskFile     = "Mask_Segmentation_refl.nc"
	TrackFile    = "Track.nc"
	MergedFile   = "Track_features_merges.nc"
)

const nearbyPrefix = "feature_nearby_count_"

// WriteFeatures writes the feature table without linking columns.
func WriteFeatures(dir string, ds *lineage.Dataset) (string, error) {
	return write(filepath.Join(dir, FeaturesFile), selectCols(ds.Columns(), func(c lineage.Column) bool {
		return c.Name == "time" || (isFeatureCol(c) && !isLinkCol(c.Name))
	}))
}

// WriteMask writes the segmentation mask with its coordinates.
func WriteMask(dir string, ds *lineage.Dataset) (string, error) {
	return write(filepath.Join(dir, MaskFile), selectCols(lineage.Compress(ds.Columns()), func(c lineage.Column) bool {
		switch c.Name {
		case "time", "x", "y", "segmentation_mask":
			return true
		}
		return false
	}))
}

// WriteTrack writes the feature table including the cell assignment.
func WriteTrack(dir string, ds *lineage.Dataset) (string, error) {
	return write(filepath.Join(dir, TrackFile), selectCols(ds.Columns(), func(c lineage.Column) bool {
		return c.Name == "time" || (isFeatureCol(c) && c.Name != "feature_parent_track_id" &&
			!strings.HasPrefix(c.Name, nearbyPrefix))
	}))
}

// WriteMerged writes the full standardized dataset with integer columns
// narrowed.
func WriteMerged(dir string, ds *lineage.Dataset) (string, error) {
	return write(filepath.Join(dir, MergedFile), lineage.Compress(ds.Columns()))
}

func isFeatureCol(c lineage.Column) bool {
	return len(c.Dims) == 1 && c.Dims[0] == "feature"
}

func isLinkCol(name string) bool {
	switch name {
	case "feature_parent_cell_id", "feature_parent_track_id", "feature_time_cell":
		return true
	}
	return strings.HasPrefix(name, nearbyPrefix)
}

func selectCols(cols []lineage.Column, keep func(lineage.Column) bool) []lineage.Column {
	var out []lineage.Column
	for _, c := range cols {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}

// write creates path and adds every non-empty column. Classic NetCDF only
// allows a zero-length dimension when it is the record dimension, so empty
// tables are left out and read back as empty.
func write(path string, cols []lineage.Column) (string, error) {
	w, err := ncfile.Create(path)
	if err != nil {
		return "", err
	}
	for _, c := range cols {
		if isEmpty(c.Values) {
			monitoring.Debugf("skipping empty variable %s in %s", c.Name, path)
			continue
		}
		if err := w.AddVar(c.Name, c.Dims, c.Values, c.Attrs...); err != nil {
			w.Close()
			return "", err
		}
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	monitoring.Logf("wrote %s", path)
	return path, nil
}

func isEmpty(v interface{}) bool {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Slice {
		if rv.Len() == 0 {
			return true
		}
		rv = rv.Index(0)
	}
	return false
}

// ReadMerged reads a dataset written by WriteMerged.
func ReadMerged(path string) (*lineage.Dataset, error) {
	nc, err := ncfile.Open(path)
	if err != nil {
		return nil, err
	}
	defer nc.Close()

	r := &reader{nc: nc}
	ds := &lineage.Dataset{}
	timeVals := r.floats("time")
	ds.X = r.floats("x")
	ds.Y = r.floats("y")

	ft := &ds.Features
	ft.ID = r.ints("feature")
	ft.TimeIndex = r.ints("feature_time_index")
	ft.Hdim1 = r.floats("feature_hdim1_coordinate")
	ft.Hdim2 = r.floats("feature_hdim2_coordinate")
	ft.ProjX = r.floats("feature_projection_x_coordinate")
	ft.ProjY = r.floats("feature_projection_y_coordinate")
	ft.Lat = r.floats("feature_latitude")
	ft.Lon = r.floats("feature_longitude")
	featureTimes := r.floats("feature_time")
	ft.ThresholdMax = r.floats("feature_threshold_max")
	ft.Num = r.ints("feature_num")
	ft.Area = r.ints("feature_area")
	ft.AreaKm2 = r.floats("feature_area_km2")
	ft.MaxRefl = r.floats("feature_max_reflectivity")
	ft.ParentCell = r.ints("feature_parent_cell_id")
	ft.ParentTrack = r.ints("feature_parent_track_id")
	ft.TimeCell = r.floats("feature_time_cell")

	for _, name := range nc.Variables() {
		if !strings.HasPrefix(name, nearbyPrefix) {
			continue
		}
		attrs, err := nc.VarAttrs(name)
		if err != nil {
			return nil, err
		}
		radius, ok := ncfile.AttrFloat(attrs, "radius_km")
		if !ok {
			return nil, fmt.Errorf("variable %s in %s has no radius_km", name, path)
		}
		ft.Nearby = append(ft.Nearby, lineage.NearbyCount{RadiusKm: radius, Counts: r.ints(name)})
	}

	ds.Cells.ID = r.ints("cell")
	ds.Cells.ParentTrack = r.ints("cell_parent_track_id")
	ds.Cells.ChildFeatureCount = r.ints("cell_child_feature_count")
	ds.Cells.StartsWithSplit = r.bools("cell_starts_with_split")
	ds.Cells.EndsWithMerge = r.bools("cell_ends_with_merge")
	ds.Tracks.ID = r.ints("track")
	ds.Tracks.ChildCellCount = r.ints("track_child_cell_count")
	ds.Mask = r.mask("segmentation_mask")

	if r.err != nil {
		return nil, r.err
	}
	if ds.Times, err = ncfile.DecodeTimes(timeVals, lineage.TimeUnits); err != nil {
		return nil, err
	}
	if ft.Time, err = ncfile.DecodeTimes(featureTimes, lineage.TimeUnits); err != nil {
		return nil, err
	}
	if len(ds.X) > 1 {
		dx := ds.X[1] - ds.X[0]
		if dx < 0 {
			dx = -dx
		}
		ds.DxyKm = dx / 1000
	}
	if n := ft.Len(); len(ft.ParentCell) != n || len(ft.TimeIndex) != n || len(ft.Hdim1) != n {
		return nil, fmt.Errorf("%s: inconsistent feature table lengths", path)
	}
	return ds, nil
}

// reader accumulates the first error so ReadMerged can read every column
// before checking.
type reader struct {
	nc  *ncfile.Dataset
	err error
}

func (r *reader) floats(name string) []float64 {
	if r.err != nil || !r.nc.Has(name) {
		return nil
	}
	a, err := r.nc.Float64s(name)
	if err != nil {
		r.err = err
		return nil
	}
	return a.Data
}

func (r *reader) ints(name string) []int32 {
	v := r.floats(name)
	if v == nil {
		return nil
	}
	out := make([]int32, len(v))
	for i, x := range v {
		out[i] = int32(x)
	}
	return out
}

func (r *reader) bools(name string) []bool {
	v := r.floats(name)
	if v == nil {
		return nil
	}
	out := make([]bool, len(v))
	for i, x := range v {
		out[i] = x != 0
	}
	return out
}

func (r *reader) mask(name string) [][][]int32 {
	if r.err != nil || !r.nc.Has(name) {
		return nil
	}
	a, err := r.nc.Float64s(name)
	if err != nil {
		r.err = err
		return nil
	}
	if len(a.Shape) != 3 {
		r.err = fmt.Errorf("variable %s in %s: want 3 dimensions, got %d", name, r.nc.Path(), len(a.Shape))
		return nil
	}
	nt, ny, nx := a.Shape[0], a.Shape[1], a.Shape[2]
	out := make([][][]int32, nt)
	for k := range out {
		flat := make([]int32, ny*nx)
		for i := range flat {
			flat[i] = int32(a.Data[k*ny*nx+i])
		}
		out[k] = ncfile.Nest2(flat, ny, nx)
	}
	return out
}
