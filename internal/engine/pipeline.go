// Package engine is the consolidated ingestion pipeline: resolve company,
// track posting lifecycle, emit pain signals, recompute scores.
package engine

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/leadsignal/signals-cli/internal/config"
	"github.com/leadsignal/signals-cli/internal/identity"
	"github.com/leadsignal/signals-cli/internal/lifecycle"
	"github.com/leadsignal/signals-cli/internal/model"
	"github.com/leadsignal/signals-cli/internal/normalize"
	"github.com/leadsignal/signals-cli/internal/signal"
	"github.com/leadsignal/signals-cli/internal/store"
)

// ErrSkip marks a data-quality drop: the observation is counted and
// reported, never retried.
var ErrSkip = eris.New("engine: observation skipped")

// IngestResult summarizes what one observation changed.
type IngestResult struct {
	CompanyID      int64              `json:"company_id"`
	MatchType      model.MatchType    `json:"match_type"`
	Transition     model.Transition   `json:"transition"`
	SignalsEmitted []model.PainSignal `json:"signals_emitted"`
	Score          int                `json:"score"`
}

// Engine wires the pipeline stages over one store.
type Engine struct {
	store      store.Store
	resolver   *identity.Resolver
	tracker    *lifecycle.Tracker
	generator  *signal.Generator
	aggregator *signal.Aggregator
	cfg        config.EngineConfig
	ingestCfg  config.IngestConfig
	locks      keyedMutex
	nowFunc    func() time.Time
}

// New assembles an engine from configuration.
func New(st store.Store, cfg config.EngineConfig, ingestCfg config.IngestConfig, taxonomy signal.Taxonomy) *Engine {
	return &Engine{
		store:    st,
		resolver: identity.NewResolver(st, cfg.FuzzyMatchThreshold),
		tracker: lifecycle.NewTracker(st, lifecycle.Config{
			RepostTitleThreshold: cfg.RepostTitleThreshold,
			RepostScanWindow:     cfg.RepostScanWindow,
			RefreshWindow:        cfg.RefreshWindow(),
		}),
		generator:  signal.NewGenerator(st, taxonomy),
		aggregator: signal.NewAggregator(st),
		cfg:        cfg,
		ingestCfg:  ingestCfg,
		nowFunc:    time.Now,
	}
}

// IngestObservation runs one raw posting through the full pipeline. It is
// idempotent: feeding the same observation repeatedly converges on the
// same state.
func (e *Engine) IngestObservation(ctx context.Context, raw model.RawPosting) (*IngestResult, error) {
	if err := validateObservation(raw); err != nil {
		return nil, err
	}

	// Before resolution the only handle on a company is its normalized
	// name, so the resolve step serializes on that. Two observations of
	// the same unseen company would otherwise both fall through to create.
	unlockName := e.locks.Lock(nameKey(raw.CompanyName))
	match, err := e.resolver.Resolve(ctx, raw)
	unlockName()
	if err != nil {
		return nil, eris.Wrap(err, "engine: resolve company")
	}

	// From here the company ID is known and everything keys on it: the
	// repost search and the score recompute are check-then-act sequences
	// that must not interleave with a concurrent rescore or sweep.
	unlock := e.locks.Lock(companyKey(match.Company.ID))
	defer unlock()

	tracked, err := e.tracker.Observe(ctx, match.Company, raw)
	if err != nil {
		return nil, eris.Wrap(err, "engine: observe posting")
	}

	classification, _ := e.tracker.Classify(tracked.Posting, e.nowFunc().UTC())
	emitted, err := e.generator.Process(ctx, tracked.Posting, classification)
	if err != nil {
		return nil, eris.Wrap(err, "engine: generate signals")
	}

	score, err := e.aggregator.Recalculate(ctx, match.Company.ID)
	if err != nil {
		return nil, eris.Wrap(err, "engine: recalculate score")
	}

	zap.L().Debug("observation ingested",
		zap.Int64("company_id", match.Company.ID),
		zap.String("match_type", string(match.Type)),
		zap.String("transition", string(tracked.Transition)),
		zap.Int("signals_emitted", len(emitted)),
		zap.Int("score", score))

	return &IngestResult{
		CompanyID:      match.Company.ID,
		MatchType:      match.Type,
		Transition:     tracked.Transition,
		SignalsEmitted: emitted,
		Score:          score,
	}, nil
}

// RecalculateScore recomputes one company's score from its active signals.
func (e *Engine) RecalculateScore(ctx context.Context, companyID int64) (int, error) {
	unlock := e.locks.Lock(companyKey(companyID))
	defer unlock()
	return e.aggregator.Recalculate(ctx, companyID)
}

// RecalculateAll recomputes every company's score, returning the number of
// companies touched.
func (e *Engine) RecalculateAll(ctx context.Context) (int, error) {
	ids, err := e.store.ListCompanyIDs(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "engine: list companies")
	}
	for _, id := range ids {
		if _, err := e.RecalculateScore(ctx, id); err != nil {
			return 0, eris.Wrapf(err, "engine: recalculate company %d", id)
		}
	}
	return len(ids), nil
}

func validateObservation(raw model.RawPosting) error {
	if strings.TrimSpace(raw.CompanyName) == "" {
		return eris.Wrap(ErrSkip, "missing company name")
	}
	if strings.TrimSpace(raw.Title) == "" {
		return eris.Wrap(ErrSkip, "missing title")
	}
	if raw.PostedAt.After(time.Now().Add(24 * time.Hour)) {
		return eris.Wrap(ErrSkip, "posted date in the future")
	}
	return nil
}

func companyKey(id int64) string {
	return "company:" + strconv.FormatInt(id, 10)
}

func nameKey(raw string) string {
	return "name:" + normalize.Name(raw)
}
