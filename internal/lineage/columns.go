package lineage

import (
	"time"

	"github.com/banshee-data/celltrack/internal/ncfile"
)

// TimeUnits is the CF time encoding used for every time variable.
const TimeUnits = "seconds since 1970-01-01 00:00:00"

// Column is one dataset variable ready to be written.
type Column struct {
	Name   string
	Dims   []string
	Values interface{}
	Attrs  []ncfile.Attr
}

// Columns lays the dataset out as NetCDF variables: coordinates first,
// then the feature, cell and track tables, then the mask.
func (ds *Dataset) Columns() []Column {
	ft := &ds.Features
	f := []string{"feature"}
	cols := []Column{
		{Name: "time", Dims: []string{"time"}, Values: EncodeTimes(ds.Times),
			Attrs: []ncfile.Attr{{Key: "units", Value: TimeUnits}, {Key: "standard_name", Value: "time"}}},
		{Name: "y", Dims: []string{"y"}, Values: orEmpty(ds.Y),
			Attrs: []ncfile.Attr{{Key: "units", Value: "m"}, {Key: "standard_name", Value: "projection_y_coordinate"}}},
		{Name: "x", Dims: []string{"x"}, Values: orEmpty(ds.X),
			Attrs: []ncfile.Attr{{Key: "units", Value: "m"}, {Key: "standard_name", Value: "projection_x_coordinate"}}},
		{Name: "feature", Dims: f, Values: ft.ID},
		{Name: "feature_time_index", Dims: f, Values: ft.TimeIndex},
		{Name: "feature_hdim1_coordinate", Dims: f, Values: ft.Hdim1},
		{Name: "feature_hdim2_coordinate", Dims: f, Values: ft.Hdim2},
		{Name: "feature_projection_x_coordinate", Dims: f, Values: ft.ProjX, Attrs: units("m")},
		{Name: "feature_projection_y_coordinate", Dims: f, Values: ft.ProjY, Attrs: units("m")},
		{Name: "feature_latitude", Dims: f, Values: ft.Lat, Attrs: units("degrees_north")},
		{Name: "feature_longitude", Dims: f, Values: ft.Lon, Attrs: units("degrees_east")},
		{Name: "feature_time", Dims: f, Values: EncodeTimes(ft.Time), Attrs: units(TimeUnits)},
		{Name: "feature_threshold_max", Dims: f, Values: ft.ThresholdMax, Attrs: units("dBZ")},
		{Name: "feature_num", Dims: f, Values: ft.Num},
		{Name: "feature_area", Dims: f, Values: ft.Area},
		{Name: "feature_area_km2", Dims: f, Values: ft.AreaKm2, Attrs: units("km2")},
		{Name: "feature_max_reflectivity", Dims: f, Values: ft.MaxRefl, Attrs: units("dBZ")},
		{Name: "feature_parent_cell_id", Dims: f, Values: ft.ParentCell},
		{Name: "feature_parent_track_id", Dims: f, Values: ft.ParentTrack},
		{Name: "feature_time_cell", Dims: f, Values: ft.TimeCell, Attrs: units("s")},
	}
	for _, n := range ft.Nearby {
		cols = append(cols, Column{Name: n.Name(), Dims: f, Values: n.Counts,
			Attrs: []ncfile.Attr{{Key: "radius_km", Value: n.RadiusKm}}})
	}

	c := []string{"cell"}
	cols = append(cols,
		Column{Name: "cell", Dims: c, Values: ds.Cells.ID},
		Column{Name: "cell_parent_track_id", Dims: c, Values: ds.Cells.ParentTrack},
		Column{Name: "cell_child_feature_count", Dims: c, Values: ds.Cells.ChildFeatureCount},
		Column{Name: "cell_starts_with_split", Dims: c, Values: flags(ds.Cells.StartsWithSplit)},
		Column{Name: "cell_ends_with_merge", Dims: c, Values: flags(ds.Cells.EndsWithMerge)},
	)
	t := []string{"track"}
	cols = append(cols,
		Column{Name: "track", Dims: t, Values: ds.Tracks.ID},
		Column{Name: "track_child_cell_count", Dims: t, Values: ds.Tracks.ChildCellCount},
	)
	if ds.Mask != nil {
		cols = append(cols, Column{Name: "segmentation_mask", Dims: []string{"time", "y", "x"}, Values: ds.Mask,
			Attrs: []ncfile.Attr{{Key: "long_name", Value: "feature id owning each pixel, 0 for background"}}})
	}
	return cols
}

// EncodeTimes converts times to float seconds since the Unix epoch. Zero
// times encode as NaN.
func EncodeTimes(ts []time.Time) []float64 {
	out := make([]float64, len(ts))
	for i, t := range ts {
		if t.IsZero() {
			out[i] = nan
			continue
		}
		out[i] = float64(t.UnixNano()) / 1e9
	}
	return out
}

func units(u string) []ncfile.Attr { return []ncfile.Attr{{Key: "units", Value: u}} }

func flags(b []bool) []int8 {
	out := make([]int8, len(b))
	for i, v := range b {
		if v {
			out[i] = 1
		}
	}
	return out
}

func orEmpty(v []float64) []float64 {
	if v == nil {
		return []float64{}
	}
	return v
}
