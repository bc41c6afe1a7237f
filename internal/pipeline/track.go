package pipeline

import (
	"context"
	"fmt"
	"math"
	"path/filepath"

	"github.com/jonboulle/clockwork"

	"github.com/banshee-data/celltrack/internal/config"
	"github.com/banshee-data/celltrack/internal/features"
	"github.com/banshee-data/celltrack/internal/fsutil"
	"github.com/banshee-data/celltrack/internal/grid"
	"github.com/banshee-data/celltrack/internal/lineage"
	"github.com/banshee-data/celltrack/internal/monitoring"
	"github.com/banshee-data/celltrack/internal/render"
	"github.com/banshee-data/celltrack/internal/store"
	"github.com/banshee-data/celltrack/internal/trackio"
	"github.com/banshee-data/celltrack/internal/tracks"
)

// TrackOptions configures a tracking run.
type TrackOptions struct {
	InputDir  string
	OutputDir string
	Source    string
	Site      string
	// Threshold (dBZ) and Speed (m/s) override the config when nonzero.
	Threshold float64
	Speed     float64

	Config  *config.TuningConfig
	FS      fsutil.FileSystem
	Clock   clockwork.Clock
	Metrics *monitoring.Metrics
	// Store archives the run when set.
	Store *store.Store
}

// RunSummary describes a finished tracking run.
type RunSummary struct {
	RunID    string
	Source   string
	Date     string
	SaveDir  string
	Frames   int
	Features int
	Cells    int
	Tracks   int
	// Oversize counts linking subnetworks solved at the adaptive floor.
	Oversize int
	Files    []string
	Stages   []StageTiming
}

// RunTrack detects, segments, links and groups storm cells and writes the
// NetCDF products into <output>/<source>_tobac_Save_<date>/.
func RunTrack(ctx context.Context, o TrackOptions) (*RunSummary, error) {
	cfg := o.Config
	if cfg == nil {
		cfg = config.DefaultTuningConfig()
	}
	cfg.ApplyCommandLine(o.Threshold, o.Speed)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	fsys := o.FS
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	st := newStages(o.Clock, o.Metrics)
	started := st.clock.Now()

	sum, ds, err := runTrack(ctx, o, cfg, fsys, st)
	if sum != nil {
		sum.Stages = st.timings
	}
	if err == nil && o.Store != nil {
		sum.RunID, err = o.Store.RecordRun(ctx, store.Run{
			Source:       sum.Source,
			Site:         o.Site,
			Date:         sum.Date,
			InputDir:     o.InputDir,
			SaveDir:      sum.SaveDir,
			ThresholdDBZ: cfg.GetSegmentationThreshold(),
			SpeedMS:      cfg.GetVMax(),
			Frames:       sum.Frames,
			Features:     sum.Features,
			Cells:        sum.Cells,
			Tracks:       sum.Tracks,
			StartedAt:    started,
			FinishedAt:   st.clock.Now(),
		}, trackSummaries(ds))
		if err == nil {
			monitoring.Logf("archived run %s", sum.RunID)
		}
	}
	o.Metrics.Finish(st.clock.Now(), err)
	return sum, err
}

func runTrack(ctx context.Context, o TrackOptions, cfg *config.TuningConfig, fsys fsutil.FileSystem, st *stages) (*RunSummary, *lineage.Dataset, error) {
	var c *grid.Composite
	err := st.run("load", func() error {
		var err error
		c, err = grid.Load(ctx, fsys, o.Source, o.InputDir, grid.Options{
			Site: o.Site,
			QC:   grid.QC{RhohvMin: cfg.GetQCRhohvMin(), ReflMin: cfg.GetQCReflMin()},
		})
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	if o.Metrics != nil {
		o.Metrics.FramesLoaded.Add(float64(c.NumFrames()))
	}

	saveDir := filepath.Join(o.OutputDir, SaveDirName(c.Source, c.Date))
	if err := fsutil.EnsureDirs(fsys, saveDir, filepath.Join(saveDir, render.PlotDir)); err != nil {
		return nil, nil, err
	}
	lk, err := lockDir(saveDir)
	if err != nil {
		return nil, nil, err
	}
	defer lk.Unlock()

	sum := &RunSummary{Source: c.Source, Date: c.Date, SaveDir: saveDir, Frames: c.NumFrames()}
	wrote := func(kind string, path string, err error) error {
		if err != nil {
			return err
		}
		sum.Files = append(sum.Files, path)
		o.Metrics.FileWritten(kind)
		return nil
	}

	var fs []features.Feature
	err = st.run("detect", func() error {
		var err error
		fs, err = features.Detect(ctx, c, features.ParamsFromConfig(cfg))
		if err != nil {
			return err
		}
		if len(fs) == 0 {
			return ErrNoFeatures
		}
		path, err := trackio.WriteFeatures(saveDir, lineage.Standardize(fs, nil, c, nil))
		return wrote("features", path, err)
	})
	if err != nil {
		return sum, nil, err
	}
	sum.Features = len(fs)
	if o.Metrics != nil {
		o.Metrics.FeaturesDetected.Add(float64(len(fs)))
	}

	var mask [][][]int32
	err = st.run("segment", func() error {
		var err error
		mask, err = features.Segment(ctx, c, fs, features.SegmentParamsFromConfig(cfg))
		if err != nil {
			return err
		}
		path, err := trackio.WriteMask(saveDir, lineage.Standardize(nil, nil, c, mask))
		if err := wrote("mask", path, err); err != nil {
			return err
		}
		if err := features.Annotate(fs, mask, c.Refl, c.DxyKm); err != nil {
			return err
		}
		path, err = trackio.WriteFeatures(saveDir, lineage.Standardize(fs, nil, c, nil))
		return wrote("features", path, err)
	})
	if err != nil {
		return sum, nil, err
	}

	err = st.run("link", func() error {
		p := tracks.ParamsFromConfig(cfg, c.DtMinutes, c.DxyKm)
		monitoring.Logf("linking with search range %.0f px, memory %d, stubs %d", p.SearchRange, p.Memory, p.Stubs)
		res, err := tracks.Link(ctx, fs, c.NumFrames(), p)
		if err != nil {
			return err
		}
		sum.Cells, sum.Oversize = res.Cells, res.Oversize
		path, err := trackio.WriteTrack(saveDir, lineage.Standardize(fs, nil, c, nil))
		return wrote("track", path, err)
	})
	if err != nil {
		return sum, nil, err
	}
	if o.Metrics != nil {
		o.Metrics.CellsLinked.Add(float64(sum.Cells))
	}

	var ds *lineage.Dataset
	err = st.run("merge", func() error {
		ms, err := lineage.MergeSplitMEST(fs, c.DxyKm*1000, cfg.GetMergeSplitDistanceM(), cfg.GetMergeSplitFrameLen())
		if err != nil {
			return err
		}
		sum.Tracks = len(ms.Tracks)
		ds = lineage.Standardize(fs, ms, c, mask)
		if err := lineage.CountTrackNeighbors(ds, cfg.GetNeighborRadiiKm(), c.DxyKm); err != nil {
			return err
		}
		path, err := trackio.WriteMerged(saveDir, ds)
		return wrote("merged", path, err)
	})
	if err != nil {
		return sum, nil, err
	}
	if o.Metrics != nil {
		o.Metrics.TracksGrouped.Add(float64(sum.Tracks))
	}

	monitoring.Logf("%s %s: %d features, %d cells, %d tracks in %s",
		sum.Source, sum.Date, sum.Features, sum.Cells, sum.Tracks, saveDir)
	return sum, ds, nil
}

// trackSummaries reduces the merged dataset to per-track rows.
func trackSummaries(ds *lineage.Dataset) []store.TrackSummary {
	byTrack := make(map[int32]*store.TrackSummary)
	cells := make(map[int32]map[int32]bool)
	var out []store.TrackSummary
	for _, t := range ds.Tracks.ID {
		byTrack[t] = &store.TrackSummary{Track: int(t), MaxRefl: math.NaN()}
		cells[t] = make(map[int32]bool)
	}
	ft := &ds.Features
	for i, t := range ft.ParentTrack {
		ts, ok := byTrack[t]
		if !ok {
			continue
		}
		ts.Features++
		cells[t][ft.ParentCell[i]] = true
		tm := ft.Time[i]
		if ts.FirstTime.IsZero() || tm.Before(ts.FirstTime) {
			ts.FirstTime = tm
		}
		if tm.After(ts.LastTime) {
			ts.LastTime = tm
		}
		if v := ft.MaxRefl[i]; !math.IsNaN(v) && (math.IsNaN(ts.MaxRefl) || v > ts.MaxRefl) {
			ts.MaxRefl = v
		}
	}
	for _, t := range ds.Tracks.ID {
		ts := byTrack[t]
		ts.Cells = len(cells[t])
		out = append(out, *ts)
	}
	return out
}
