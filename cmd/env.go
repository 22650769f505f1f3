package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/leadsignal/signals-cli/internal/budget"
	"github.com/leadsignal/signals-cli/internal/engine"
	"github.com/leadsignal/signals-cli/internal/signal"
	"github.com/leadsignal/signals-cli/internal/store"
	"github.com/leadsignal/signals-cli/pkg/adzuna"
	"github.com/leadsignal/signals-cli/pkg/contractsfinder"
)

// appEnv holds the initialized store, engine and provider budgets shared by
// all commands.
type appEnv struct {
	Store  store.Store
	Engine *engine.Engine
	Budget *budget.Manager
}

// Close releases resources held by the environment.
func (ae *appEnv) Close() {
	if ae.Store != nil {
		_ = ae.Store.Close()
	}
}

// initEnv opens the store, applies migrations, loads the signal taxonomy
// and builds the engine. Callers should defer env.Close().
func initEnv(ctx context.Context) (*appEnv, error) {
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL, cfg.Store.MaxConns, cfg.Store.MinConns)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	taxonomy := signal.DefaultTaxonomy()
	if cfg.Engine.TaxonomyFile != "" {
		taxonomy, err = signal.LoadTaxonomy(cfg.Engine.TaxonomyFile)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		zap.L().Info("taxonomy overrides loaded", zap.String("file", cfg.Engine.TaxonomyFile))
	}

	quota := budget.NewManager(map[string]budget.Limits{
		adzuna.Provider: {
			DailyCalls: cfg.Adzuna.DailyBudget,
			RatePerSec: cfg.Adzuna.RatePerSec,
		},
		contractsfinder.Provider: {
			DailyCalls: cfg.Contracts.DailyBudget,
			RatePerSec: cfg.Contracts.RatePerSec,
		},
	})

	return &appEnv{
		Store:  st,
		Engine: engine.New(st, cfg.Engine, cfg.Ingest, taxonomy),
		Budget: quota,
	}, nil
}

// printJSON writes v to stdout as indented JSON. Batch commands report
// aggregate stats this way, never individual observation errors.
func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return eris.Wrap(err, "marshal output")
	}
	fmt.Println(string(out))
	return nil
}
