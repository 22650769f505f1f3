// Package monitoring gathers engine health metrics and raises webhook alerts
// when they cross configured thresholds.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/leadsignal/signals-cli/internal/store"
)

// MetricsSnapshot holds a point-in-time view of system health.
type MetricsSnapshot struct {
	// Engine state.
	Companies        int     `json:"companies"`
	ActivePostings   int     `json:"active_postings"`
	InactivePostings int     `json:"inactive_postings"`
	ActiveSignals    int     `json:"active_signals"`
	ResolvedSignals  int     `json:"resolved_signals"`
	Contracts        int     `json:"contracts"`
	AvgPainScore     float64 `json:"avg_pain_score"`
	MaxPainScore     int     `json:"max_pain_score"`

	// Ingestion health.
	DLQDepth        int            `json:"dlq_depth"`
	BudgetUsed      map[string]int `json:"budget_used,omitempty"`
	BudgetRemaining map[string]int `json:"budget_remaining,omitempty"`

	CollectedAt time.Time `json:"collected_at"`
}

// BudgetReporter abstracts the quota manager methods the collector needs.
type BudgetReporter interface {
	Usage() map[string]int
	Remaining(provider string) int
}

// Collector gathers metrics from the store and the API budget manager.
type Collector struct {
	store  store.Store
	budget BudgetReporter
}

// NewCollector creates a metrics collector. budget may be nil when no
// provider quotas are configured.
func NewCollector(st store.Store, budget BudgetReporter) *Collector {
	return &Collector{store: st, budget: budget}
}

// Collect gathers a snapshot of system metrics.
func (c *Collector) Collect(ctx context.Context) (*MetricsSnapshot, error) {
	stats, err := c.store.Stats(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: store stats")
	}

	snap := &MetricsSnapshot{
		Companies:        stats.Companies,
		ActivePostings:   stats.ActivePostings,
		InactivePostings: stats.InactivePostings,
		ActiveSignals:    stats.ActiveSignals,
		ResolvedSignals:  stats.ResolvedSignals,
		Contracts:        stats.Contracts,
		AvgPainScore:     stats.AvgPainScore,
		MaxPainScore:     stats.MaxPainScore,
		DLQDepth:         stats.DLQDepth,
		CollectedAt:      time.Now().UTC(),
	}

	if c.budget != nil {
		snap.BudgetUsed = c.budget.Usage()
		snap.BudgetRemaining = make(map[string]int, len(snap.BudgetUsed))
		for provider := range snap.BudgetUsed {
			snap.BudgetRemaining[provider] = c.budget.Remaining(provider)
		}
	}

	return snap, nil
}
