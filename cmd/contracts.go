package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/leadsignal/signals-cli/pkg/contractsfinder"
)

var (
	contractsSinceDays int
	contractsPages     int
)

var contractsCmd = &cobra.Command{
	Use:   "contracts",
	Short: "Contract award sync and no-hiring reconciliation",
}

var contractsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch recent contract awards and land them against companies",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		client := contractsfinder.NewClient(cfg.Contracts, env.Budget)
		since := time.Now().UTC().AddDate(0, 0, -contractsSinceDays)
		raws, err := client.FetchAwards(ctx, since, contractsPages)
		if err != nil {
			return err
		}

		stats, err := env.Engine.SyncContracts(ctx, raws)
		if err != nil {
			return err
		}
		return printJSON(stats)
	},
}

var contractsReconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Evaluate recent large awards for missing hiring activity",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		stats, err := env.Engine.ReconcileContracts(ctx)
		if err != nil {
			return err
		}
		return printJSON(stats)
	},
}

func init() {
	contractsSyncCmd.Flags().IntVar(&contractsSinceDays, "since-days", 7, "fetch awards published within this many days")
	contractsSyncCmd.Flags().IntVar(&contractsPages, "pages", 5, "max provider pages to fetch")
	contractsCmd.AddCommand(contractsSyncCmd)
	contractsCmd.AddCommand(contractsReconcileCmd)
	rootCmd.AddCommand(contractsCmd)
}
