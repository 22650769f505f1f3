package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Deactivate postings unseen beyond the staleness window",
	Long:  "Flips stale postings inactive, resolves their signals, and recomputes the affected company scores.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		stats, err := env.Engine.Sweep(ctx)
		if err != nil {
			return err
		}
		return printJSON(stats)
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
