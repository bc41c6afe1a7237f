package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/banshee-data/celltrack/internal/grid"
	"github.com/banshee-data/celltrack/internal/monitoring"
	"github.com/banshee-data/celltrack/internal/pipeline"
	"github.com/banshee-data/celltrack/internal/store"
)

type trackFlags struct {
	path        string
	output      string
	site        string
	threshold   float64
	speed       float64
	dataType    string
	dbPath      string
	metricsFile string
}

func newTrackCommand(g *globalFlags) *cobra.Command {
	f := &trackFlags{}
	cmd := &cobra.Command{
		Use:   "track",
		Short: "Detect, segment and link storm cells for one directory of frames",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			opts := pipeline.TrackOptions{
				InputDir:  f.path,
				OutputDir: f.output,
				Source:    f.dataType,
				Site:      f.site,
				Threshold: f.threshold,
				Speed:     f.speed,
				Config:    cfg,
			}
			if f.metricsFile != "" {
				opts.Metrics = monitoring.NewMetrics()
			}
			if f.dbPath != "" {
				st, err := store.OpenAndMigrate(f.dbPath)
				if err != nil {
					return err
				}
				defer st.Close()
				opts.Store = st
			}

			sum, runErr := pipeline.RunTrack(cmd.Context(), opts)
			if f.metricsFile != "" {
				if err := opts.Metrics.WriteTextfile(f.metricsFile); err != nil {
					monitoring.Logf("failed to write metrics: %v", err)
				}
			}
			if runErr != nil {
				return runErr
			}
			fmt.Fprint(cmd.OutOrStdout(), formatRunSummary(sum))
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.path, "path", "", "Directory holding the input frames")
	fl.StringVarP(&f.output, "output", "o", ".", "Directory that receives the save directory")
	fl.StringVar(&f.site, "site", "", "Radar site code, e.g. khgx")
	fl.Float64Var(&f.threshold, "threshold", 0, "Feature and segmentation threshold in dBZ (0 keeps the configured value)")
	fl.Float64Var(&f.speed, "speed", 0, "Maximum cell speed in m/s (0 keeps the configured value)")
	fl.StringVar(&f.dataType, "type", "", "Data type, one of "+strings.Join(grid.Names(), ", "))
	fl.StringVar(&f.dbPath, "db", "", "SQLite run archive (optional)")
	fl.StringVar(&f.metricsFile, "metrics-file", "", "Write Prometheus textfile metrics here (optional)")
	_ = cmd.MarkFlagRequired("path")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func formatRunSummary(sum *pipeline.RunSummary) string {
	var b strings.Builder
	if sum.RunID != "" {
		fmt.Fprintf(&b, "Run %s\n", sum.RunID)
	}
	fmt.Fprintf(&b, "%s %s: %d frames, %d features, %d cells, %d tracks\n",
		sum.Source, sum.Date, sum.Frames, sum.Features, sum.Cells, sum.Tracks)
	if sum.Oversize > 0 {
		fmt.Fprintf(&b, "%d oversize subnetworks solved at the adaptive floor\n", sum.Oversize)
	}
	fmt.Fprintf(&b, "Saved to %s\n", sum.SaveDir)

	rows := make([][]string, 0, len(sum.Stages))
	for _, s := range sum.Stages {
		rows = append(rows, []string{s.Stage, s.Duration.String()})
	}
	b.WriteString(renderTable([]string{"Stage", "Duration"}, rows, []columnAlignment{alignLeft, alignRight}))
	b.WriteString("\n")
	for _, p := range sum.Files {
		b.WriteString(p)
		b.WriteString("\n")
	}
	return b.String()
}
