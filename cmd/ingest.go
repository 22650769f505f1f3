package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/leadsignal/signals-cli/internal/model"
	"github.com/leadsignal/signals-cli/pkg/adzuna"
)

var (
	ingestSource     string
	ingestFile       string
	ingestWhat       string
	ingestWhere      string
	ingestCategory   string
	ingestPages      int
	ingestMaxDaysOld int
	ingestLimit      int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Sweep a provider and run observations through the pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		observations, err := gatherObservations(cmd, env)
		if err != nil {
			return err
		}

		limit := ingestLimit
		if limit <= 0 {
			limit = cfg.Ingest.BatchLimit
		}
		if limit > 0 && len(observations) > limit {
			observations = observations[:limit]
		}

		stats, err := env.Engine.IngestBatch(ctx, observations)
		if err != nil {
			return err
		}
		return printJSON(stats)
	},
}

func gatherObservations(cmd *cobra.Command, env *appEnv) ([]model.RawPosting, error) {
	if ingestFile != "" {
		data, err := os.ReadFile(ingestFile)
		if err != nil {
			return nil, eris.Wrapf(err, "read observations file %s", ingestFile)
		}
		var observations []model.RawPosting
		if err := json.Unmarshal(data, &observations); err != nil {
			return nil, eris.Wrapf(err, "parse observations file %s", ingestFile)
		}
		zap.L().Info("observations loaded from file",
			zap.String("file", ingestFile), zap.Int("count", len(observations)))
		return observations, nil
	}

	switch ingestSource {
	case adzuna.Provider:
		client := adzuna.NewClient(cfg.Adzuna, env.Budget)
		return client.Search(cmd.Context(), adzuna.SearchParams{
			What:       ingestWhat,
			Where:      ingestWhere,
			Category:   ingestCategory,
			MaxDaysOld: ingestMaxDaysOld,
			MaxPages:   ingestPages,
		})
	default:
		return nil, eris.Errorf("unknown source %q", ingestSource)
	}
}

func init() {
	ingestCmd.Flags().StringVar(&ingestSource, "source", adzuna.Provider, "observation provider")
	ingestCmd.Flags().StringVar(&ingestFile, "file", "", "read observations from a JSON file instead of a provider")
	ingestCmd.Flags().StringVar(&ingestWhat, "what", "", "keyword query")
	ingestCmd.Flags().StringVar(&ingestWhere, "where", "", "location filter")
	ingestCmd.Flags().StringVar(&ingestCategory, "category", "", "provider category tag")
	ingestCmd.Flags().IntVar(&ingestPages, "pages", 1, "max provider pages to fetch")
	ingestCmd.Flags().IntVar(&ingestMaxDaysOld, "max-days-old", 0, "drop postings older than this many days")
	ingestCmd.Flags().IntVar(&ingestLimit, "limit", 0, "max observations to process (default from config)")
	rootCmd.AddCommand(ingestCmd)
}
