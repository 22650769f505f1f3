package main

import (
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/leadsignal/signals-cli/internal/model"
)

var rescanDomain string

var rescanCmd = &cobra.Command{
	Use:   "rescan [company-id]",
	Short: "Re-classify one company's active postings",
	Long:  "Re-runs lifecycle classification over a company's active postings so staleness transitions are picked up without waiting for the next provider sweep.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		company, err := resolveRescanTarget(cmd, args, env)
		if err != nil {
			return err
		}

		stats, err := env.Engine.Rescan(ctx, company.ID)
		if err != nil {
			return err
		}
		return printJSON(stats)
	},
}

func resolveRescanTarget(cmd *cobra.Command, args []string, env *appEnv) (*model.Company, error) {
	if rescanDomain != "" {
		company, err := env.Store.GetCompanyByDomain(cmd.Context(), rescanDomain)
		if err != nil {
			return nil, err
		}
		if company == nil {
			return nil, eris.Errorf("no company with domain %q", rescanDomain)
		}
		return company, nil
	}

	if len(args) == 0 {
		return nil, eris.New("a company id or --domain is required")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return nil, eris.Wrapf(err, "parse company id %q", args[0])
	}
	company, err := env.Store.GetCompany(cmd.Context(), id)
	if err != nil {
		return nil, err
	}
	if company == nil {
		return nil, eris.Errorf("no company with id %d", id)
	}
	return company, nil
}

func init() {
	rescanCmd.Flags().StringVar(&rescanDomain, "domain", "", "look the company up by domain instead of id")
	rootCmd.AddCommand(rescanCmd)
}
