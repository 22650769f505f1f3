package main

import (
	"github.com/spf13/cobra"

	"github.com/leadsignal/signals-cli/internal/monitoring"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print an engine health snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		collector := monitoring.NewCollector(env.Store, env.Budget)
		snap, err := collector.Collect(ctx)
		if err != nil {
			return err
		}
		return printJSON(snap)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
