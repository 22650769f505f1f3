package engine

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// SweepStats aggregates one deactivation sweep.
type SweepStats struct {
	PostingsDeactivated int   `json:"postings_deactivated"`
	SignalsResolved     int64 `json:"signals_resolved"`
	CompaniesRescored   int   `json:"companies_rescored"`
}

// Sweep flips postings unseen beyond the staleness window to inactive,
// resolves their signals, and recomputes the affected companies' scores.
// The cascade is what makes scores decay: a posting that quietly
// disappears takes its contributions with it.
func (e *Engine) Sweep(ctx context.Context) (*SweepStats, error) {
	now := e.nowFunc().UTC()
	cutoff := now.Add(-e.cfg.StalenessWindow())

	stale, err := e.store.MarkStalePostings(ctx, cutoff)
	if err != nil {
		return nil, eris.Wrap(err, "engine: mark stale postings")
	}

	stats := &SweepStats{PostingsDeactivated: len(stale)}
	touched := make(map[int64]struct{})

	for _, p := range stale {
		n, err := e.store.ResolvePostingSignals(ctx, p.ID, now)
		if err != nil {
			return stats, eris.Wrapf(err, "engine: resolve signals for posting %d", p.ID)
		}
		stats.SignalsResolved += n
		touched[p.CompanyID] = struct{}{}
	}

	for companyID := range touched {
		if _, err := e.RecalculateScore(ctx, companyID); err != nil {
			return stats, eris.Wrapf(err, "engine: rescore company %d", companyID)
		}
		stats.CompaniesRescored++
	}

	zap.L().Info("staleness sweep complete",
		zap.Time("cutoff", cutoff),
		zap.Int("postings_deactivated", stats.PostingsDeactivated),
		zap.Int64("signals_resolved", stats.SignalsResolved),
		zap.Int("companies_rescored", stats.CompaniesRescored))

	return stats, nil
}
