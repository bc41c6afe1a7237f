package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/jonboulle/clockwork"

	"github.com/banshee-data/celltrack/internal/config"
	"github.com/banshee-data/celltrack/internal/fsutil"
	"github.com/banshee-data/celltrack/internal/grid"
	"github.com/banshee-data/celltrack/internal/lineage"
	"github.com/banshee-data/celltrack/internal/monitoring"
	"github.com/banshee-data/celltrack/internal/render"
	"github.com/banshee-data/celltrack/internal/trackio"
)

// PlotOptions configures a plotting run.
type PlotOptions struct {
	InputDir string
	// TrackDir is the save directory of a tracking run.
	TrackDir string
	Source   string
	Site     string
	// Boundaries is an optional longitude/latitude line shapefile.
	Boundaries string
	StartIndex int

	Config  *config.TuningConfig
	FS      fsutil.FileSystem
	Clock   clockwork.Clock
	Metrics *monitoring.Metrics
}

// PlotSummary describes a finished plotting run.
type PlotSummary struct {
	PlotDir string
	Images  []string
	Summary string
	Stages  []StageTiming
}

// RunPlot renders one overlay per timestep from StartIndex into
// <trackdir>/tobac_Plot/ and writes an HTML summary next to them.
func RunPlot(ctx context.Context, o PlotOptions) (*PlotSummary, error) {
	cfg := o.Config
	if cfg == nil {
		cfg = config.DefaultTuningConfig()
	}
	fsys := o.FS
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	st := newStages(o.Clock, o.Metrics)
	sum, err := runPlot(ctx, o, cfg, fsys, st)
	if sum != nil {
		sum.Stages = st.timings
	}
	o.Metrics.Finish(st.clock.Now(), err)
	return sum, err
}

func runPlot(ctx context.Context, o PlotOptions, cfg *config.TuningConfig, fsys fsutil.FileSystem, st *stages) (*PlotSummary, error) {
	var c *grid.Composite
	var ds *lineage.Dataset
	err := st.run("load", func() error {
		var err error
		c, err = grid.Load(ctx, fsys, o.Source, o.InputDir, grid.Options{
			Site: o.Site,
			QC:   grid.QC{RhohvMin: cfg.GetQCRhohvMin(), ReflMin: cfg.GetQCReflMin()},
		})
		if err != nil {
			return err
		}
		ds, err = trackio.ReadMerged(filepath.Join(o.TrackDir, trackio.MergedFile))
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(ds.Times) != c.NumFrames() {
		monitoring.Logf("warning: track dataset has %d timesteps, input grids have %d", len(ds.Times), c.NumFrames())
	}
	if len(ds.Times) == 0 {
		ds.Times = c.Times
	}

	sum := &PlotSummary{PlotDir: filepath.Join(o.TrackDir, render.PlotDir)}
	if err := fsutil.EnsureDirs(fsys, sum.PlotDir); err != nil {
		return nil, err
	}

	opts := render.OptionsFromConfig(cfg)
	if o.Boundaries != "" {
		pr, err := c.Projector()
		if err != nil {
			return nil, fmt.Errorf("project boundaries: %w", err)
		}
		opts.Boundaries, err = render.LoadBoundaries(o.Boundaries, pr)
		if err != nil {
			return nil, err
		}
		monitoring.Logf("loaded %d boundary lines from %s", len(opts.Boundaries), o.Boundaries)
	}

	err = st.run("render", func() error {
		r := render.NewRenderer(c, ds, opts)
		paths, err := r.SaveAll(ctx, sum.PlotDir, c.Date, o.StartIndex)
		sum.Images = paths
		if o.Metrics != nil {
			o.Metrics.ImagesRendered.Add(float64(len(paths)))
			for range paths {
				o.Metrics.FileWritten("png")
			}
		}
		return err
	})
	if err != nil {
		return sum, err
	}

	err = st.run("summary", func() error {
		path := filepath.Join(sum.PlotDir, render.SummaryFile)
		title := fmt.Sprintf("%s %s", c.Source, c.Date)
		if err := render.WriteSummaryHTML(path, title, ds); err != nil {
			return err
		}
		sum.Summary = path
		o.Metrics.FileWritten("html")
		return nil
	})
	return sum, err
}
