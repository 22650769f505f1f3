package main

import (
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/leadsignal/signals-cli/internal/engine"
)

var scoreAll bool

var scoreCmd = &cobra.Command{
	Use:   "score [company-id]",
	Short: "Recalculate company pain scores from active signals",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if scoreAll {
			n, err := env.Engine.RecalculateAll(ctx)
			if err != nil {
				return err
			}
			return printJSON(map[string]int{"companies_rescored": n})
		}

		if len(args) == 0 {
			return eris.New("a company id or --all is required")
		}
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return eris.Wrapf(err, "parse company id %q", args[0])
		}

		score, err := env.Engine.RecalculateScore(ctx, id)
		if err != nil {
			return err
		}
		return printJSON(engine.RescanStats{CompanyID: id, Score: score})
	},
}

func init() {
	scoreCmd.Flags().BoolVar(&scoreAll, "all", false, "recalculate every company")
	rootCmd.AddCommand(scoreCmd)
}
