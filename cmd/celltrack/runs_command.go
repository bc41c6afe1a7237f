package main

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/celltrack/internal/store"
)

func newRunsCommand() *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List archived tracking runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.OpenAndMigrate(dbPath)
			if err != nil {
				return err
			}
			defer st.Close()
			runs, err := st.ListRuns(cmd.Context())
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs archived")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatRuns(runs))
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "celltrack.db", "SQLite run archive")

	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "List the tracks archived with one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.OpenAndMigrate(dbPath)
			if err != nil {
				return err
			}
			defer st.Close()
			tracks, err := st.RunTracks(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatTracks(tracks))
			return nil
		},
	}
	cmd.AddCommand(show)
	return cmd
}

func formatRuns(runs []store.Run) string {
	headers := []string{"Run", "Source", "Site", "Date", "dBZ", "m/s", "Frames", "Features", "Cells", "Tracks", "Started"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight, alignLeft}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			r.ID,
			r.Source,
			r.Site,
			r.Date,
			formatFloat(r.ThresholdDBZ),
			formatFloat(r.SpeedMS),
			strconv.Itoa(r.Frames),
			strconv.Itoa(r.Features),
			strconv.Itoa(r.Cells),
			strconv.Itoa(r.Tracks),
			formatTime(r.StartedAt),
		})
	}
	return renderTable(headers, rows, aligns)
}

func formatTracks(tracks []store.TrackSummary) string {
	headers := []string{"Track", "Cells", "Features", "First", "Last", "Max dBZ"}
	aligns := []columnAlignment{alignRight, alignRight, alignRight, alignLeft, alignLeft, alignRight}
	rows := make([][]string, 0, len(tracks))
	for _, t := range tracks {
		maxRefl := "-"
		if !math.IsNaN(t.MaxRefl) {
			maxRefl = formatFloat(t.MaxRefl)
		}
		rows = append(rows, []string{
			strconv.Itoa(t.Track),
			strconv.Itoa(t.Cells),
			strconv.Itoa(t.Features),
			formatTime(t.FirstTime),
			formatTime(t.LastTime),
			maxRefl,
		})
	}
	return renderTable(headers, rows, aligns)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}
