package engine

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// RescanStats aggregates one targeted company rescan.
type RescanStats struct {
	CompanyID      int64 `json:"company_id"`
	Postings       int   `json:"postings"`
	SignalsEmitted int   `json:"signals_emitted"`
	Score          int   `json:"score"`
}

// Rescan re-runs lifecycle classification over a company's active postings
// and recomputes its score. Postings age into new staleness tiers between
// observations, so a rescan picks up transitions without waiting for the
// provider to re-deliver them.
func (e *Engine) Rescan(ctx context.Context, companyID int64) (*RescanStats, error) {
	unlock := e.locks.Lock(companyKey(companyID))
	defer unlock()

	postings, err := e.store.ListActivePostings(ctx, companyID)
	if err != nil {
		return nil, eris.Wrapf(err, "engine: list active postings for company %d", companyID)
	}

	now := e.nowFunc().UTC()
	stats := &RescanStats{CompanyID: companyID, Postings: len(postings)}
	for i := range postings {
		p := &postings[i]
		classification, _ := e.tracker.Classify(p, now)
		emitted, err := e.generator.Process(ctx, p, classification)
		if err != nil {
			return stats, eris.Wrapf(err, "engine: rescan posting %d", p.ID)
		}
		stats.SignalsEmitted += len(emitted)
	}

	score, err := e.aggregator.Recalculate(ctx, companyID)
	if err != nil {
		return stats, eris.Wrapf(err, "engine: rescore company %d", companyID)
	}
	stats.Score = score

	zap.L().Info("company rescanned",
		zap.Int64("company_id", companyID),
		zap.Int("postings", stats.Postings),
		zap.Int("signals_emitted", stats.SignalsEmitted),
		zap.Int("score", stats.Score))

	return stats, nil
}
