package render

import (
	"bytes"
	"fmt"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/celltrack/internal/lineage"
)

// SummaryFile is the HTML summary written next to the frames.
const SummaryFile = "summary.html"

// FrameCounts tallies features, active cells and active tracks per frame.
type FrameCounts struct {
	Features []int
	Cells    []int
	Tracks   []int
}

// CountPerFrame tallies ds over nframes timesteps.
func CountPerFrame(ds *lineage.Dataset, nframes int) FrameCounts {
	fc := FrameCounts{
		Features: make([]int, nframes),
		Cells:    make([]int, nframes),
		Tracks:   make([]int, nframes),
	}
	cells := make([]map[int32]bool, nframes)
	tracks := make([]map[int32]bool, nframes)
	for i := range cells {
		cells[i] = make(map[int32]bool)
		tracks[i] = make(map[int32]bool)
	}
	ft := &ds.Features
	for i, t := range ft.TimeIndex {
		k := int(t)
		if k < 0 || k >= nframes {
			continue
		}
		fc.Features[k]++
		if i < len(ft.ParentCell) && ft.ParentCell[i] >= 0 {
			cells[k][ft.ParentCell[i]] = true
		}
		if i < len(ft.ParentTrack) && ft.ParentTrack[i] >= 0 {
			tracks[k][ft.ParentTrack[i]] = true
		}
	}
	for k := 0; k < nframes; k++ {
		fc.Cells[k] = len(cells[k])
		fc.Tracks[k] = len(tracks[k])
	}
	return fc
}

// WriteSummaryHTML writes an interactive chart of per-frame counts.
func WriteSummaryHTML(path, title string, ds *lineage.Dataset) error {
	n := len(ds.Times)
	fc := CountPerFrame(ds, n)

	x := make([]string, n)
	for k, t := range ds.Times {
		x[k] = t.UTC().Format("15:04")
	}
	series := func(v []int) []opts.LineData {
		out := make([]opts.LineData, len(v))
		for i, c := range v {
			out[i] = opts.LineData{Value: c}
		}
		return out
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("%d frames, %d features", n, ds.Features.Len())}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time (UTC)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Count"}),
	)
	line.SetXAxis(x).
		AddSeries("features", series(fc.Features)).
		AddSeries("cells", series(fc.Cells)).
		AddSeries("tracks", series(fc.Tracks))

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px"}),
		charts.WithTitleOpts(opts.Title{Title: "Features per track"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	var names []string
	var counts []opts.BarData
	perTrack := make(map[int32]int)
	for _, t := range ds.Features.ParentTrack {
		if t >= 0 {
			perTrack[t]++
		}
	}
	for _, t := range ds.Tracks.ID {
		names = append(names, fmt.Sprintf("%d", t))
		counts = append(counts, opts.BarData{Value: perTrack[t]})
	}
	bar.SetXAxis(names).AddSeries("features", counts)

	page := components.NewPage()
	page.AddCharts(line, bar)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return fmt.Errorf("render summary: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
