package lineage

import (
	"math"
)

var nan = math.NaN()

// Compress narrows every int32 column, and the int32 mask, to the smallest
// signed width that holds all of its values. Classic NetCDF has no
// compression filters, so narrowing is the only size reduction available.
func Compress(cols []Column) []Column {
	out := make([]Column, len(cols))
	for i, c := range cols {
		switch v := c.Values.(type) {
		case []int32:
			c.Values = narrow1(v)
		case [][][]int32:
			c.Values = narrow3(v)
		}
		out[i] = c
	}
	return out
}

func widthFor(lo, hi int32) int {
	switch {
	case lo >= math.MinInt8 && hi <= math.MaxInt8:
		return 8
	case lo >= math.MinInt16 && hi <= math.MaxInt16:
		return 16
	}
	return 32
}

func narrow1(v []int32) interface{} {
	if len(v) == 0 {
		return v
	}
	lo, hi := v[0], v[0]
	for _, x := range v {
		lo, hi = min32(lo, x), max32(hi, x)
	}
	switch widthFor(lo, hi) {
	case 8:
		out := make([]int8, len(v))
		for i, x := range v {
			out[i] = int8(x)
		}
		return out
	case 16:
		out := make([]int16, len(v))
		for i, x := range v {
			out[i] = int16(x)
		}
		return out
	}
	return v
}

func narrow3(v [][][]int32) interface{} {
	var lo, hi int32
	for _, plane := range v {
		for _, row := range plane {
			for _, x := range row {
				lo, hi = min32(lo, x), max32(hi, x)
			}
		}
	}
	switch widthFor(lo, hi) {
	case 8:
		return convert3(v, func(x int32) int8 { return int8(x) })
	case 16:
		return convert3(v, func(x int32) int16 { return int16(x) })
	}
	return v
}

func convert3[T int8 | int16](v [][][]int32, conv func(int32) T) [][][]T {
	out := make([][][]T, len(v))
	for k, plane := range v {
		out[k] = make([][]T, len(plane))
		for j, row := range plane {
			r := make([]T, len(row))
			for i, x := range row {
				r[i] = conv(x)
			}
			out[k][j] = r
		}
	}
	return out
}

func min32(a, b int32) int32 {
	if a < b {
		return a
	}
	return b
}

func max32(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}
