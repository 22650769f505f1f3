package engine

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/leadsignal/signals-cli/internal/model"
)

// ContractStats aggregates one contract sync + reconciliation run.
type ContractStats struct {
	Fetched         int64 `json:"fetched"`
	Upserted        int64 `json:"upserted"`
	Skipped         int64 `json:"skipped"`
	Evaluated       int   `json:"evaluated"`
	SignalsEmitted  int   `json:"signals_emitted"`
	SignalsResolved int   `json:"signals_resolved"`
}

// SyncContracts lands raw contract awards: each supplier is resolved
// through the same identity cascade as a posting observation, then the
// whole batch is upserted by reference in one store round trip. Duplicate
// references within a batch collapse to the last occurrence.
func (e *Engine) SyncContracts(ctx context.Context, raws []model.RawContract) (*ContractStats, error) {
	stats := &ContractStats{Fetched: int64(len(raws))}

	byRef := make(map[string]int)
	var awards []model.ContractAward
	for _, raw := range raws {
		if strings.TrimSpace(raw.SupplierName) == "" || strings.TrimSpace(raw.Reference) == "" {
			stats.Skipped++
			continue
		}

		unlock := e.locks.Lock(nameKey(raw.SupplierName))
		match, err := e.resolver.Resolve(ctx, model.RawPosting{
			Title:       "contract-award", // resolver requires a title-bearing shape; unused for identity
			CompanyName: raw.SupplierName,
			PostedAt:    raw.AwardedAt,
			Source:      raw.Source,
		})
		unlock()
		if err != nil {
			stats.Skipped++
			zap.L().Warn("contract supplier unresolved",
				zap.String("supplier", raw.SupplierName), zap.Error(err))
			continue
		}

		award := model.ContractAward{
			CompanyID:    match.Company.ID,
			SupplierName: raw.SupplierName,
			BuyerName:    raw.BuyerName,
			Value:        raw.Value,
			AwardedAt:    raw.AwardedAt.UTC(),
			Reference:    raw.Reference,
			Source:       raw.Source,
		}
		if i, seen := byRef[raw.Reference]; seen {
			awards[i] = award
			continue
		}
		byRef[raw.Reference] = len(awards)
		awards = append(awards, award)
	}

	n, err := e.store.UpsertContractBatch(ctx, awards)
	if err != nil {
		return stats, eris.Wrap(err, "engine: upsert contract batch")
	}
	stats.Upserted = n

	return stats, nil
}

// ReconcileContracts applies the no-hiring rule over recent large awards.
// Batch evaluation, not observation-time: hiring activity after the award
// arrives asynchronously, so the join is only meaningful in retrospect.
func (e *Engine) ReconcileContracts(ctx context.Context) (*ContractStats, error) {
	since := e.nowFunc().UTC().AddDate(0, 0, -e.cfg.ContractLookbackDays)

	awards, err := e.store.ListRecentContracts(ctx, e.cfg.ContractMinValue, since)
	if err != nil {
		return nil, eris.Wrap(err, "engine: list recent contracts")
	}

	stats := &ContractStats{Evaluated: len(awards)}
	touched := make(map[int64]struct{})

	for i := range awards {
		award := &awards[i]
		unlock := e.locks.Lock(companyKey(award.CompanyID))
		sig, resolved, err := e.generator.EvaluateContract(ctx, award)
		unlock()
		if err != nil {
			return stats, eris.Wrapf(err, "engine: evaluate contract %s", award.Reference)
		}
		if sig != nil {
			stats.SignalsEmitted++
			touched[award.CompanyID] = struct{}{}
		}
		if resolved {
			stats.SignalsResolved++
			touched[award.CompanyID] = struct{}{}
		}
	}

	for companyID := range touched {
		if _, err := e.RecalculateScore(ctx, companyID); err != nil {
			return stats, eris.Wrapf(err, "engine: rescore company %d", companyID)
		}
	}

	zap.L().Info("contract reconciliation complete",
		zap.Int("evaluated", stats.Evaluated),
		zap.Int("signals_emitted", stats.SignalsEmitted),
		zap.Int("signals_resolved", stats.SignalsResolved),
		zap.Time("since", since))

	return stats, nil
}
