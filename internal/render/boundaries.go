package render

import (
	"fmt"
	"math"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"gonum.org/v1/plot/plotter"

	"github.com/banshee-data/celltrack/internal/geo"
)

// LoadBoundaries reads the line and polygon shapes of a longitude/latitude
// shapefile and projects them into grid coordinates in km. Vertices that
// fail to project split the line they belong to.
func LoadBoundaries(path string, pr geo.Projector) ([]plotter.XYs, error) {
	dec, err := shp.NewDecoder(path)
	if err != nil {
		return nil, fmt.Errorf("open boundaries %s: %w", path, err)
	}
	defer dec.Close()

	var out []plotter.XYs
	for {
		g, _, more := dec.DecodeRowFields()
		if !more {
			break
		}
		for _, line := range polylines(g) {
			out = append(out, projectLine(line, pr)...)
		}
	}
	if err := dec.Error(); err != nil {
		return nil, fmt.Errorf("read boundaries %s: %w", path, err)
	}
	return out, nil
}

func polylines(g geom.Geom) [][]geom.Point {
	switch t := g.(type) {
	case geom.LineString:
		return [][]geom.Point{[]geom.Point(t)}
	case geom.MultiLineString:
		out := make([][]geom.Point, 0, len(t))
		for _, ls := range t {
			out = append(out, []geom.Point(ls))
		}
		return out
	case geom.Polygon:
		out := make([][]geom.Point, 0, len(t))
		for _, ring := range t {
			out = append(out, []geom.Point(ring))
		}
		return out
	case geom.MultiPolygon:
		var out [][]geom.Point
		for _, poly := range t {
			out = append(out, polylines(poly)...)
		}
		return out
	}
	return nil
}

func projectLine(pts []geom.Point, pr geo.Projector) []plotter.XYs {
	var out []plotter.XYs
	var cur plotter.XYs
	flush := func() {
		if len(cur) > 1 {
			out = append(out, cur)
		}
		cur = nil
	}
	for _, p := range pts {
		x, y, err := pr.Forward(p.X, p.Y)
		if err != nil || math.IsNaN(x) || math.IsNaN(y) {
			flush()
			continue
		}
		cur = append(cur, plotter.XY{X: x / 1000, Y: y / 1000})
	}
	flush()
	return out
}
