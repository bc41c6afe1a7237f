package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/banshee-data/celltrack/internal/grid"
	"github.com/banshee-data/celltrack/internal/monitoring"
	"github.com/banshee-data/celltrack/internal/pipeline"
)

type plotFlags struct {
	path        string
	trackPath   string
	site        string
	dataType    string
	boundaries  string
	startIndex  int
	metricsFile string
}

func newPlotCommand(g *globalFlags) *cobra.Command {
	f := &plotFlags{}
	cmd := &cobra.Command{
		Use:   "plot",
		Short: "Render reflectivity overlays with cell and track paths",
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.startIndex < 0 {
				return fmt.Errorf("--start-index must be >= 0, got %d", f.startIndex)
			}
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			opts := pipeline.PlotOptions{
				InputDir:   f.path,
				TrackDir:   f.trackPath,
				Source:     f.dataType,
				Site:       f.site,
				Boundaries: f.boundaries,
				StartIndex: f.startIndex,
				Config:     cfg,
			}
			if f.metricsFile != "" {
				opts.Metrics = monitoring.NewMetrics()
			}
			sum, runErr := pipeline.RunPlot(cmd.Context(), opts)
			if f.metricsFile != "" {
				if err := opts.Metrics.WriteTextfile(f.metricsFile); err != nil {
					monitoring.Logf("failed to write metrics: %v", err)
				}
			}
			if runErr != nil {
				return runErr
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Rendered %d images into %s\n", len(sum.Images), sum.PlotDir)
			if sum.Summary != "" {
				fmt.Fprintf(out, "Summary: %s\n", sum.Summary)
			}
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.path, "path", "", "Directory holding the input frames")
	fl.StringVar(&f.trackPath, "trackpath", "", "Save directory written by the track command")
	fl.StringVar(&f.site, "site", "", "Radar site code, e.g. khgx")
	fl.StringVar(&f.dataType, "type", "", "Data type, one of "+strings.Join(grid.Names(), ", "))
	fl.StringVar(&f.boundaries, "boundaries", "", "Longitude/latitude line shapefile drawn under the overlay (optional)")
	fl.IntVar(&f.startIndex, "start-index", 0, "First timestep to render")
	fl.StringVar(&f.metricsFile, "metrics-file", "", "Write Prometheus textfile metrics here (optional)")
	_ = cmd.MarkFlagRequired("path")
	_ = cmd.MarkFlagRequired("trackpath")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}
