// Package ncfile wraps github.com/batchatco/go-native-netcdf with the few
// helpers the tracking workflows need: decoding packed variables to
// float64 with fill values as NaN, reading attributes as plain maps, and
// writing classic NetCDF files with ordered attributes.
package ncfile

import (
	"fmt"
	"math"
	"reflect"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
)

// Array is a decoded n-dimensional variable stored row-major.
type Array struct {
	Shape []int
	Data  []float64
}

// Len returns the number of elements.
func (a *Array) Len() int { return len(a.Data) }

// Frame returns the 2-D slab at index k of the leading dimension of a 3-D
// array, or the whole array when it is already 2-D. Rows alias a.Data.
func (a *Array) Frame(k int) ([][]float64, error) {
	var ny, nx, off int
	switch len(a.Shape) {
	case 2:
		if k != 0 {
			return nil, fmt.Errorf("frame %d out of range for 2-D array", k)
		}
		ny, nx = a.Shape[0], a.Shape[1]
	case 3:
		if k < 0 || k >= a.Shape[0] {
			return nil, fmt.Errorf("frame %d out of range [0, %d)", k, a.Shape[0])
		}
		ny, nx = a.Shape[1], a.Shape[2]
		off = k * ny * nx
	default:
		return nil, fmt.Errorf("cannot take a 2-D frame of a %d-D array", len(a.Shape))
	}
	out := make([][]float64, ny)
	for j := range out {
		out[j] = a.Data[off+j*nx : off+(j+1)*nx]
	}
	return out, nil
}

// Dataset is an open NetCDF file.
type Dataset struct {
	path string
	g    api.Group
}

// Open opens a NetCDF (CDF or HDF5) file for reading.
func Open(path string) (*Dataset, error) {
	g, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open netcdf %s: %w", path, err)
	}
	return &Dataset{path: path, g: g}, nil
}

// Close releases the file.
func (d *Dataset) Close() {
	d.g.Close()
}

// Path returns the file the dataset was opened from.
func (d *Dataset) Path() string { return d.path }

// Has reports whether the dataset defines the named variable.
func (d *Dataset) Has(name string) bool {
	for _, v := range d.g.ListVariables() {
		if v == name {
			return true
		}
	}
	return false
}

// Variables lists the variable names in file order.
func (d *Dataset) Variables() []string {
	return d.g.ListVariables()
}

// Attrs returns the global attributes.
func (d *Dataset) Attrs() map[string]interface{} {
	return attrMap(d.g.Attributes())
}

// VarAttrs returns the attributes of the named variable.
func (d *Dataset) VarAttrs(name string) (map[string]interface{}, error) {
	vg, err := d.g.GetVarGetter(name)
	if err != nil {
		return nil, fmt.Errorf("variable %s in %s: %w", name, d.path, err)
	}
	return attrMap(vg.Attributes()), nil
}

// Dims returns the dimension names of the named variable.
func (d *Dataset) Dims(name string) ([]string, error) {
	vg, err := d.g.GetVarGetter(name)
	if err != nil {
		return nil, fmt.Errorf("variable %s in %s: %w", name, d.path, err)
	}
	return vg.Dimensions(), nil
}

// Float64s reads and unpacks the named variable. Values equal to
// _FillValue or missing_value become NaN; scale_factor and add_offset are
// applied to the rest.
func (d *Dataset) Float64s(name string) (*Array, error) {
	v, err := d.g.GetVariable(name)
	if err != nil {
		return nil, fmt.Errorf("variable %s in %s: %w", name, d.path, err)
	}
	arr, err := flatten(v.Values)
	if err != nil {
		return nil, fmt.Errorf("variable %s in %s: %w", name, d.path, err)
	}
	unpack(arr.Data, attrMap(v.Attributes))
	return arr, nil
}

// Strings reads a character variable as one string per record.
func (d *Dataset) Strings(name string) ([]string, error) {
	v, err := d.g.GetVariable(name)
	if err != nil {
		return nil, fmt.Errorf("variable %s in %s: %w", name, d.path, err)
	}
	switch t := v.Values.(type) {
	case string:
		return []string{t}, nil
	case []string:
		return t, nil
	case [][]string:
		var out []string
		for _, row := range t {
			out = append(out, row...)
		}
		return out, nil
	}
	return nil, fmt.Errorf("variable %s in %s: not a character variable (%T)", name, d.path, v.Values)
}

func attrMap(am api.AttributeMap) map[string]interface{} {
	out := make(map[string]interface{})
	if am == nil {
		return out
	}
	for _, k := range am.Keys() {
		if v, ok := am.Get(k); ok {
			out[k] = v
		}
	}
	return out
}

// AttrFloat returns the first numeric value of attrs[key].
func AttrFloat(attrs map[string]interface{}, key string) (float64, bool) {
	v, ok := attrs[key]
	if !ok {
		return 0, false
	}
	arr, err := flatten(v)
	if err != nil || len(arr.Data) == 0 {
		return 0, false
	}
	return arr.Data[0], true
}

// AttrString returns attrs[key] when it is a string.
func AttrString(attrs map[string]interface{}, key string) (string, bool) {
	s, ok := attrs[key].(string)
	return s, ok
}

func unpack(data []float64, attrs map[string]interface{}) {
	fill, hasFill := AttrFloat(attrs, "_FillValue")
	missing, hasMissing := AttrFloat(attrs, "missing_value")
	scale, hasScale := AttrFloat(attrs, "scale_factor")
	offset, hasOffset := AttrFloat(attrs, "add_offset")
	if !hasScale {
		scale = 1
	}
	if !hasOffset {
		offset = 0
	}
	for i, v := range data {
		if (hasFill && v == fill) || (hasMissing && v == missing) {
			data[i] = math.NaN()
			continue
		}
		data[i] = v*scale + offset
	}
}

// flatten walks nested slices of numbers into a row-major float64 array.
// go-native-netcdf hands back variables as interface{} holding slices
// nested to the variable's rank, so the element type is only known at
// run time.
func flatten(values interface{}) (*Array, error) {
	rv := reflect.ValueOf(values)
	if !rv.IsValid() {
		return nil, fmt.Errorf("empty value")
	}
	var shape []int
	for t := rv; t.Kind() == reflect.Slice; {
		shape = append(shape, t.Len())
		if t.Len() == 0 {
			break
		}
		t = t.Index(0)
	}
	size := 1
	for _, s := range shape {
		size *= s
	}
	arr := &Array{Shape: shape, Data: make([]float64, 0, size)}
	if err := appendValues(&arr.Data, rv); err != nil {
		return nil, err
	}
	return arr, nil
}

func appendValues(dst *[]float64, rv reflect.Value) error {
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if err := appendValues(dst, rv.Index(i)); err != nil {
				return err
			}
		}
	case reflect.Float32, reflect.Float64:
		*dst = append(*dst, rv.Float())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		*dst = append(*dst, float64(rv.Int()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		*dst = append(*dst, float64(rv.Uint()))
	case reflect.Interface:
		return appendValues(dst, rv.Elem())
	default:
		return fmt.Errorf("unsupported element type %s", rv.Type())
	}
	return nil
}
