package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var replayLimit int

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Re-run parked observations from the dead letter queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		stats, err := env.Engine.ReplayDLQ(ctx, replayLimit)
		if err != nil {
			return err
		}
		return printJSON(stats)
	},
}

func init() {
	replayCmd.Flags().IntVar(&replayLimit, "limit", 100, "max entries to replay")
	rootCmd.AddCommand(replayCmd)
}
