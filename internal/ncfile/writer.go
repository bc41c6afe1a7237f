package ncfile

import (
	"fmt"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/cdf"
	"github.com/batchatco/go-native-netcdf/netcdf/util"
)

// Attr is a single variable attribute. Attributes are written in the order
// given.
type Attr struct {
	Key   string
	Value interface{}
}

// Writer creates a classic NetCDF file.
type Writer struct {
	path string
	w    *cdf.CDFWriter
}

// Create opens path for writing, truncating any existing file.
func Create(path string) (*Writer, error) {
	w, err := cdf.OpenWriter(path)
	if err != nil {
		return nil, fmt.Errorf("create netcdf %s: %w", path, err)
	}
	return &Writer{path: path, w: w}, nil
}

// AddVar adds a variable. values must be a slice nested to len(dims) levels
// of one of the classic element types (int8, int16, int32, float32,
// float64, or string for characters).
func (w *Writer) AddVar(name string, dims []string, values interface{}, attrs ...Attr) error {
	keys := make([]string, 0, len(attrs))
	vals := make(map[string]interface{}, len(attrs))
	for _, a := range attrs {
		keys = append(keys, a.Key)
		vals[a.Key] = a.Value
	}
	om, err := util.NewOrderedMap(keys, vals)
	if err != nil {
		return fmt.Errorf("attributes of %s: %w", name, err)
	}
	err = w.w.AddVar(name, api.Variable{
		Values:     values,
		Dimensions: dims,
		Attributes: om,
	})
	if err != nil {
		return fmt.Errorf("add variable %s to %s: %w", name, w.path, err)
	}
	return nil
}

// Close flushes the file to disk.
func (w *Writer) Close() error {
	if err := w.w.Close(); err != nil {
		return fmt.Errorf("close netcdf %s: %w", w.path, err)
	}
	return nil
}

// Nest2 reshapes row-major data into ny rows of nx values.
func Nest2[T any](data []T, ny, nx int) [][]T {
	out := make([][]T, ny)
	for j := range out {
		out[j] = data[j*nx : (j+1)*nx]
	}
	return out
}
