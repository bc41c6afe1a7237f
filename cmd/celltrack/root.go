package main

import (
	"github.com/spf13/cobra"

	"github.com/banshee-data/celltrack/internal/config"
	"github.com/banshee-data/celltrack/internal/monitoring"
)

type globalFlags struct {
	verbose bool
	config  string
}

// loadConfig reads the tuning file named by --config, or returns the
// embedded defaults when none is given.
func (g *globalFlags) loadConfig() (*config.TuningConfig, error) {
	if g.config == "" {
		return config.DefaultTuningConfig(), nil
	}
	return config.LoadTuningConfig(g.config)
}

func newRootCommand() *cobra.Command {
	g := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:           "celltrack",
		Short:         "Storm cell tracking for NEXRAD, POLARRIS and NU-WRF grids",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			monitoring.SetVerbose(g.verbose)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Log per-frame detail")
	rootCmd.PersistentFlags().StringVarP(&g.config, "config", "c", "", "Tuning configuration file (TOML)")

	rootCmd.AddCommand(newTrackCommand(g))
	rootCmd.AddCommand(newPlotCommand(g))
	rootCmd.AddCommand(newRunsCommand())
	rootCmd.AddCommand(newMigrateCommand())
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}
