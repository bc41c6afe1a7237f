package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/celltrack/internal/store"
)

func newMigrateCommand() *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the run archive schema",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "celltrack.db", "SQLite run archive")

	withStore := func(f func(cmd *cobra.Command, st *store.Store) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			st, err := store.Open(dbPath)
			if err != nil {
				return err
			}
			defer st.Close()
			return f(cmd, st)
		}
	}
	printVersion := func(cmd *cobra.Command, st *store.Store) error {
		v, dirty, err := st.MigrateVersion()
		if err != nil {
			return err
		}
		suffix := ""
		if dirty {
			suffix = " (dirty)"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Schema version %d%s\n", v, suffix)
		return nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: withStore(func(cmd *cobra.Command, st *store.Store) error {
			if err := st.MigrateUp(); err != nil {
				return err
			}
			return printVersion(cmd, st)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Args:  cobra.NoArgs,
		RunE: withStore(func(cmd *cobra.Command, st *store.Store) error {
			if err := st.MigrateDown(); err != nil {
				return err
			}
			return printVersion(cmd, st)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE:  withStore(printVersion),
	})
	return cmd
}
