// Package render draws per-timestep reflectivity overlays with the tracked
// cells and tracks, and an HTML summary of a run.
package render

import (
	"context"
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/banshee-data/celltrack/internal/config"
	"github.com/banshee-data/celltrack/internal/fsutil"
	"github.com/banshee-data/celltrack/internal/grid"
	"github.com/banshee-data/celltrack/internal/lineage"
	"github.com/banshee-data/celltrack/internal/monitoring"
)

// PlotDir is the image directory inside a save directory.
const PlotDir = "tobac_Plot"

const titleLayout = "2006-01-02T15:04:05"

var (
	cellColor  = color.NRGBA{R: 255, A: 255}
	trackColor = color.NRGBA{B: 255, A: 160}
	maskColor  = color.NRGBA{R: 128, G: 128, B: 128, A: 90}
	lineColor  = color.Black
	dashDot    = []vg.Length{vg.Points(6), vg.Points(2), vg.Points(1), vg.Points(2)}
)

// Options controls frame appearance.
type Options struct {
	VMin, VMax float64 // dBZ
	Width      vg.Length
	Height     vg.Length
	DPI        int
	// Extent is lon min, lon max, lat min, lat max; nil shows the whole grid.
	Extent *[4]float64
	// Boundaries are polylines already in grid coordinates (km).
	Boundaries []plotter.XYs
}

// OptionsFromConfig reads plot settings from cfg.
func OptionsFromConfig(cfg *config.TuningConfig) Options {
	o := Options{
		VMin:   cfg.GetPlotVMin(),
		VMax:   cfg.GetPlotVMax(),
		Width:  vg.Length(cfg.GetPlotWidthIn()) * vg.Inch,
		Height: vg.Length(cfg.GetPlotHeightIn()) * vg.Inch,
		DPI:    100,
	}
	if ext, ok := cfg.GetPlotExtent(); ok {
		o.Extent = &ext
	}
	return o
}

// FrameName is the image file name for a timestep.
func FrameName(date, source string, index int) string {
	date = fsutil.SafeName(date)
	if source == "NEXRAD" {
		return fmt.Sprintf("%s_tobac_%d.png", date, index)
	}
	return fmt.Sprintf("%s_tobac_%s_%d.png", date, source, index)
}

// Renderer draws frames of one composite with one track dataset.
type Renderer struct {
	c    *grid.Composite
	ds   *lineage.Dataset
	opts Options

	cells  []cellPath
	tracks []int32
	// xr, yr are the plotted axis ranges in km.
	xr, yr [2]float64
}

type cellPath struct {
	id          int32
	track       int32
	first, last int
	pts         plotter.XYs
}

// NewRenderer prepares the cell paths of ds on the grid of c.
func NewRenderer(c *grid.Composite, ds *lineage.Dataset, opts Options) *Renderer {
	r := &Renderer{c: c, ds: ds, opts: opts}

	trackOf := make(map[int32]int32, len(ds.Cells.ID))
	for i, id := range ds.Cells.ID {
		if i < len(ds.Cells.ParentTrack) {
			trackOf[id] = ds.Cells.ParentTrack[i]
		}
	}
	cellIDs := ds.Cells.ID
	if len(cellIDs) == 0 {
		cellIDs = distinctCells(ds.Features.ParentCell)
	}
	for _, id := range cellIDs {
		if id < 0 {
			continue
		}
		rows := ds.CellFeatures(id)
		if len(rows) == 0 {
			continue
		}
		first, last := ds.FramesOf(rows)
		cp := cellPath{id: id, track: -1, first: first, last: last}
		if t, ok := trackOf[id]; ok {
			cp.track = t
		}
		for _, row := range rows {
			x, y := r.gridPoint(ds.Features.Hdim1[row], ds.Features.Hdim2[row])
			cp.pts = append(cp.pts, plotter.XY{X: x, Y: y})
		}
		r.cells = append(r.cells, cp)
	}
	r.tracks = ds.Tracks.ID

	r.xr = [2]float64{minOf(c.X) / 1000, maxOf(c.X) / 1000}
	r.yr = [2]float64{minOf(c.Y) / 1000, maxOf(c.Y) / 1000}
	if opts.Extent != nil {
		if xr, yr, err := projectExtent(c, *opts.Extent); err != nil {
			monitoring.Logf("warning: ignoring plot extent: %v", err)
		} else {
			r.xr, r.yr = xr, yr
		}
	}
	return r
}

// gridPoint maps a fractional feature position to the nearest grid point
// in km.
func (r *Renderer) gridPoint(hdim1, hdim2 float64) (x, y float64) {
	ny, nx := r.c.Shape()
	j := clamp(int(math.Round(hdim1)), ny)
	i := clamp(int(math.Round(hdim2)), nx)
	return r.c.X[i] / 1000, r.c.Y[j] / 1000
}

// Plot builds the overlay for timestep k.
func (r *Renderer) Plot(k int) (*plot.Plot, error) {
	if k < 0 || k >= r.c.NumFrames() {
		return nil, fmt.Errorf("timestep %d out of range [0, %d)", k, r.c.NumFrames())
	}
	p := plot.New()
	p.Title.Text = r.c.Times[k].UTC().Format(titleLayout)
	p.X.Label.Text = "x (km)"
	p.Y.Label.Text = "y (km)"

	hm := plotter.NewHeatMap(&field{c: r.c, k: k}, LangRainbow12(r.opts.VMin, r.opts.VMax).Palette(120))
	hm.Min, hm.Max = r.opts.VMin, r.opts.VMax
	hm.NaN = color.Transparent
	hm.Underflow = langRainbow12[0]
	hm.Overflow = langRainbow12[len(langRainbow12)-1]
	p.Add(hm)

	for _, b := range r.opts.Boundaries {
		l, err := plotter.NewLine(b)
		if err != nil {
			return nil, fmt.Errorf("boundary line: %w", err)
		}
		l.Color = lineColor
		l.Width = vg.Points(0.5)
		p.Add(l)
	}

	if pts := r.maskPoints(k); len(pts) > 0 {
		s, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, fmt.Errorf("mask scatter: %w", err)
		}
		s.GlyphStyle.Color = maskColor
		s.GlyphStyle.Radius = vg.Points(0.5)
		s.GlyphStyle.Shape = draw.CircleGlyph{}
		p.Add(s)
	}

	for _, cp := range r.cells {
		if k < cp.first || k > cp.last {
			continue
		}
		if err := addPath(p, cp.pts, strconv.Itoa(int(cp.id)), cellColor); err != nil {
			return nil, err
		}
	}
	for _, t := range r.tracks {
		for _, cp := range r.cells {
			if cp.track != t || k < cp.first || k > cp.last {
				continue
			}
			if err := addPath(p, cp.pts, strconv.Itoa(int(t)), trackColor); err != nil {
				return nil, err
			}
		}
	}

	// Fixed axes so paths and boundaries outside the view do not stretch it.
	p.X.Min, p.X.Max = r.xr[0], r.xr[1]
	p.Y.Min, p.Y.Max = r.yr[0], r.yr[1]
	return p, nil
}

func (r *Renderer) maskPoints(k int) plotter.XYs {
	if k >= len(r.ds.Mask) {
		return nil
	}
	ny, nx := r.c.Shape()
	var pts plotter.XYs
	for j, row := range r.ds.Mask[k] {
		if j >= ny {
			break
		}
		for i, v := range row {
			if i >= nx {
				break
			}
			if v > 0 {
				pts = append(pts, plotter.XY{X: r.c.X[i] / 1000, Y: r.c.Y[j] / 1000})
			}
		}
	}
	return pts
}

func addPath(p *plot.Plot, pts plotter.XYs, label string, c color.Color) error {
	l, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("path %s: %w", label, err)
	}
	l.Color = c
	l.Dashes = dashDot
	l.Width = vg.Points(1)

	end := pts[len(pts)-1]
	lbl, err := plotter.NewLabels(plotter.XYLabels{XYs: plotter.XYs{end}, Labels: []string{label}})
	if err != nil {
		return fmt.Errorf("label %s: %w", label, err)
	}
	for i := range lbl.TextStyle {
		lbl.TextStyle[i].Color = c
		lbl.TextStyle[i].Rotation = math.Pi / 2
	}
	p.Add(l, lbl)
	return nil
}

// Save draws timestep k with a colour bar and writes it as a PNG.
func (r *Renderer) Save(k int, path string) error {
	p, err := r.Plot(k)
	if err != nil {
		return err
	}
	cb := plot.New()
	cb.HideX()
	cb.Y.Label.Text = "Reflectivity (dBZ)"
	cb.Add(&plotter.ColorBar{ColorMap: LangRainbow12(r.opts.VMin, r.opts.VMax), Vertical: true, Colors: len(langRainbow12)})

	w, h := r.opts.Width, r.opts.Height
	if w <= 0 {
		w = 9 * vg.Inch
	}
	if h <= 0 {
		h = 9 * vg.Inch
	}
	dpi := r.opts.DPI
	if dpi <= 0 {
		dpi = 100
	}
	img := vgimg.NewWith(vgimg.UseWH(w, h), vgimg.UseDPI(dpi))
	dc := draw.New(img)
	cbw := w / 8
	p.Draw(draw.Crop(dc, 0, -cbw, 0, 0))
	cb.Draw(draw.Crop(dc, w-cbw, 0, 0, 0))

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// SaveAll writes every timestep from start into dir and returns the paths.
func (r *Renderer) SaveAll(ctx context.Context, dir, date string, start int) ([]string, error) {
	if start < 0 {
		start = 0
	}
	var paths []string
	for k := start; k < r.c.NumFrames(); k++ {
		if err := ctx.Err(); err != nil {
			return paths, err
		}
		path := filepath.Join(dir, FrameName(date, r.c.Source, k))
		if err := r.Save(k, path); err != nil {
			return paths, fmt.Errorf("timestep %d: %w", k, err)
		}
		monitoring.Debugf("rendered %s", path)
		paths = append(paths, path)
	}
	monitoring.Logf("rendered %d frames to %s", len(paths), dir)
	return paths, nil
}

// field adapts one composite frame to plotter.GridXYZ in km.
type field struct {
	c *grid.Composite
	k int
}

func (f *field) Dims() (c, r int)   { return len(f.c.X), len(f.c.Y) }
func (f *field) Z(c, r int) float64 { return f.c.Refl[f.k][r][c] }
func (f *field) X(c int) float64    { return f.c.X[c] / 1000 }
func (f *field) Y(r int) float64    { return f.c.Y[r] / 1000 }

func projectExtent(c *grid.Composite, ext [4]float64) (xr, yr [2]float64, err error) {
	pr, err := c.Projector()
	if err != nil {
		return xr, yr, err
	}
	xr = [2]float64{math.Inf(1), math.Inf(-1)}
	yr = xr
	for _, lon := range ext[:2] {
		for _, lat := range ext[2:] {
			x, y, err := pr.Forward(lon, lat)
			if err != nil {
				return xr, yr, err
			}
			xr[0], xr[1] = math.Min(xr[0], x/1000), math.Max(xr[1], x/1000)
			yr[0], yr[1] = math.Min(yr[0], y/1000), math.Max(yr[1], y/1000)
		}
	}
	if math.IsNaN(xr[0]+xr[1]+yr[0]+yr[1]) || xr[0] >= xr[1] || yr[0] >= yr[1] {
		return xr, yr, fmt.Errorf("extent %v does not project to a finite area", ext)
	}
	return xr, yr, nil
}

func distinctCells(ids []int32) []int32 {
	seen := make(map[int32]bool)
	var out []int32
	for _, id := range ids {
		if id >= 0 && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

func minOf(v []float64) float64 {
	m := math.Inf(1)
	for _, x := range v {
		m = math.Min(m, x)
	}
	return m
}

func maxOf(v []float64) float64 {
	m := math.Inf(-1)
	for _, x := range v {
		m = math.Max(m, x)
	}
	return m
}
