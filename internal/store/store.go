// Package store persists companies, job postings, pain signals and contract
// awards behind a single interface with Postgres and SQLite backends.
package store

import (
	"context"
	"time"

	"github.com/leadsignal/signals-cli/internal/model"
	"github.com/leadsignal/signals-cli/internal/resilience"
)

// Stats is a point-in-time view of the data the engine has accumulated,
// consumed by the monitoring collector.
type Stats struct {
	Companies        int     `json:"companies"`
	ActivePostings   int     `json:"active_postings"`
	InactivePostings int     `json:"inactive_postings"`
	ActiveSignals    int     `json:"active_signals"`
	ResolvedSignals  int     `json:"resolved_signals"`
	Contracts        int     `json:"contracts"`
	DLQDepth         int     `json:"dlq_depth"`
	AvgPainScore     float64 `json:"avg_pain_score"`
	MaxPainScore     int     `json:"max_pain_score"`
}

// Store defines the persistence contract for the signal engine.
//
// Lookup methods return (nil, nil) when no row matches. InsertPosting is the
// one conflict-aware write: concurrent observers of the same new fingerprint
// must converge on a single row.
type Store interface {
	// Companies
	CreateCompany(ctx context.Context, c *model.Company) error
	GetCompany(ctx context.Context, id int64) (*model.Company, error)
	GetCompanyByDomain(ctx context.Context, domain string) (*model.Company, error)
	GetCompanyByRegistry(ctx context.Context, registryNumber string) (*model.Company, error)
	GetCompanyByNormalizedName(ctx context.Context, normalizedName string) (*model.Company, error)
	SearchCompaniesByToken(ctx context.Context, token string, limit int) ([]model.Company, error)
	UpdateCompanyScore(ctx context.Context, id int64, score int, at time.Time) error
	ListCompanyIDs(ctx context.Context) ([]int64, error)
	// ListTopCompanies returns companies ordered by pain score, highest
	// first.
	ListTopCompanies(ctx context.Context, limit int) ([]model.Company, error)

	// Job postings
	GetPosting(ctx context.Context, id int64) (*model.JobPosting, error)
	GetPostingByFingerprint(ctx context.Context, fingerprint string) (*model.JobPosting, error)
	// InsertPosting inserts p, or on a fingerprint conflict loads the
	// winning row into p. Returns true when this call created the row.
	InsertPosting(ctx context.Context, p *model.JobPosting) (bool, error)
	RefreshPosting(ctx context.Context, id int64, seenAt time.Time) error
	ListActivePostings(ctx context.Context, companyID int64) ([]model.JobPosting, error)
	ListInactivePostings(ctx context.Context, companyID int64, limit int) ([]model.JobPosting, error)
	// MarkStalePostings flips postings unseen since the cutoff to inactive
	// and returns the affected rows.
	MarkStalePostings(ctx context.Context, unseenSince time.Time) ([]model.JobPosting, error)
	CountPostingsInWindow(ctx context.Context, companyID int64, from, to time.Time) (int, error)

	// Pain signals
	InsertSignal(ctx context.Context, s *model.PainSignal) error
	ResolveSignal(ctx context.Context, id int64, at time.Time) error
	ResolvePostingSignals(ctx context.Context, postingID int64, at time.Time) (int64, error)
	GetActivePostingSignal(ctx context.Context, postingID int64, family model.SignalFamily) (*model.PainSignal, error)
	// HasPostingSignal reports whether any signal of the family exists for
	// the posting, active or resolved (one-time families check history).
	HasPostingSignal(ctx context.Context, postingID int64, family model.SignalFamily) (bool, error)
	GetActiveContractSignal(ctx context.Context, companyID int64, contractRef string) (*model.PainSignal, error)
	ListActiveSignals(ctx context.Context, companyID int64) ([]model.PainSignal, error)
	SumActiveSignalScores(ctx context.Context, companyID int64) (int, error)

	// Contract awards
	UpsertContract(ctx context.Context, c *model.ContractAward) error
	// UpsertContractBatch lands a whole sync batch keyed by reference and
	// returns the number of rows written.
	UpsertContractBatch(ctx context.Context, awards []model.ContractAward) (int64, error)
	ListRecentContracts(ctx context.Context, minValue float64, since time.Time) ([]model.ContractAward, error)

	// Dead letter queue for failed observations
	EnqueueDLQ(ctx context.Context, e resilience.DLQEntry) error
	// DequeueDLQ returns entries whose next retry time has passed and whose
	// retry budget is not exhausted.
	DequeueDLQ(ctx context.Context, f resilience.DLQFilter) ([]resilience.DLQEntry, error)
	// RequeueDLQ records another failed attempt for an entry.
	RequeueDLQ(ctx context.Context, id, errMsg string, nextRetryAt time.Time) error
	DeleteDLQ(ctx context.Context, id string) error

	// Monitoring
	Stats(ctx context.Context) (*Stats, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
