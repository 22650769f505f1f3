package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/leadsignal/signals-cli/internal/db"
	"github.com/leadsignal/signals-cli/internal/model"
	"github.com/leadsignal/signals-cli/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, maxConns, minConns int32) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	if maxConns <= 0 {
		maxConns = 10
	}
	if minConns <= 0 {
		minConns = 2
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}

	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool, used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS pg_trgm;

CREATE TABLE IF NOT EXISTS companies (
	id               BIGSERIAL PRIMARY KEY,
	name             TEXT NOT NULL,
	normalized_name  TEXT NOT NULL,
	domain           TEXT NOT NULL DEFAULT '',
	registry_number  TEXT NOT NULL DEFAULT '',
	industry         TEXT NOT NULL DEFAULT '',
	region           TEXT NOT NULL DEFAULT '',
	pain_score       INT NOT NULL DEFAULT 0,
	last_activity_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_companies_domain
	ON companies(lower(domain)) WHERE domain <> '';
CREATE UNIQUE INDEX IF NOT EXISTS idx_companies_registry
	ON companies(registry_number) WHERE registry_number <> '';
CREATE INDEX IF NOT EXISTS idx_companies_normalized_name
	ON companies(normalized_name);
CREATE INDEX IF NOT EXISTS idx_companies_name_trgm
	ON companies USING gin (normalized_name gin_trgm_ops);

CREATE TABLE IF NOT EXISTS job_postings (
	id                    BIGSERIAL PRIMARY KEY,
	company_id            BIGINT NOT NULL REFERENCES companies(id),
	title                 TEXT NOT NULL,
	normalized_title      TEXT NOT NULL,
	location              TEXT NOT NULL DEFAULT '',
	normalized_location   TEXT NOT NULL DEFAULT '',
	fingerprint           TEXT NOT NULL UNIQUE,
	posted_at             TIMESTAMPTZ NOT NULL,
	last_seen_at          TIMESTAMPTZ NOT NULL,
	active                BOOLEAN NOT NULL DEFAULT true,
	repost_count          INT NOT NULL DEFAULT 0,
	previous_posting_id   BIGINT REFERENCES job_postings(id),
	salary_min            DOUBLE PRECISION,
	salary_max            DOUBLE PRECISION,
	salary_increase_pct   DOUBLE PRECISION,
	referral_bonus        BOOLEAN NOT NULL DEFAULT false,
	referral_bonus_amount DOUBLE PRECISION,
	source                TEXT NOT NULL DEFAULT '',
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_postings_company_active
	ON job_postings(company_id, active, last_seen_at DESC);
CREATE INDEX IF NOT EXISTS idx_postings_last_seen
	ON job_postings(last_seen_at) WHERE active;

CREATE TABLE IF NOT EXISTS pain_signals (
	id           BIGSERIAL PRIMARY KEY,
	company_id   BIGINT NOT NULL REFERENCES companies(id),
	type         TEXT NOT NULL,
	family       TEXT NOT NULL,
	posting_id   BIGINT REFERENCES job_postings(id),
	contract_ref TEXT NOT NULL DEFAULT '',
	score        INT NOT NULL,
	urgency      TEXT NOT NULL,
	active       BOOLEAN NOT NULL DEFAULT true,
	resolved_at  TIMESTAMPTZ,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_signals_posting_family
	ON pain_signals(posting_id, family, active);
CREATE INDEX IF NOT EXISTS idx_signals_company_active
	ON pain_signals(company_id, active);
CREATE INDEX IF NOT EXISTS idx_signals_contract
	ON pain_signals(company_id, contract_ref) WHERE contract_ref <> '';

CREATE TABLE IF NOT EXISTS contract_awards (
	id            BIGSERIAL PRIMARY KEY,
	company_id    BIGINT NOT NULL REFERENCES companies(id),
	supplier_name TEXT NOT NULL,
	buyer_name    TEXT NOT NULL DEFAULT '',
	value         DOUBLE PRECISION NOT NULL,
	awarded_at    TIMESTAMPTZ NOT NULL,
	reference     TEXT NOT NULL UNIQUE,
	source        TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_contracts_awarded
	ON contract_awards(awarded_at DESC);

CREATE TABLE IF NOT EXISTS ingest_dlq (
	id             TEXT PRIMARY KEY,
	observation    JSONB NOT NULL,
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL,
	failed_phase   TEXT NOT NULL DEFAULT '',
	retry_count    INT NOT NULL DEFAULT 0,
	max_retries    INT NOT NULL DEFAULT 3,
	next_retry_at  TIMESTAMPTZ NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_failed_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_dlq_next_retry
	ON ingest_dlq(next_retry_at) WHERE retry_count < max_retries;
`

// Migrate creates the schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// CreateCompany inserts a new company and sets its ID.
func (s *PostgresStore) CreateCompany(ctx context.Context, c *model.Company) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO companies (name, normalized_name, domain, registry_number, industry, region, pain_score, last_activity_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT DO NOTHING
		RETURNING id, created_at, updated_at`,
		c.Name, c.NormalizedName, c.Domain, c.RegistryNumber, c.Industry, c.Region, c.PainScore, c.LastActivityAt,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err == nil {
		return nil
	}
	if err != pgx.ErrNoRows {
		return eris.Wrap(err, "postgres: create company")
	}

	// Conflict on a unique identifier: re-read the winning row.
	existing, err := s.readCompanyConflictWinner(ctx, c)
	if err != nil {
		return err
	}
	if existing == nil {
		return eris.Errorf("postgres: company %q vanished after conflict", c.NormalizedName)
	}
	*c = *existing
	return nil
}

// readCompanyConflictWinner locates the row a concurrent create won with,
// checked in identifier-strength order.
func (s *PostgresStore) readCompanyConflictWinner(ctx context.Context, c *model.Company) (*model.Company, error) {
	if c.Domain != "" {
		if existing, err := s.GetCompanyByDomain(ctx, c.Domain); err != nil || existing != nil {
			return existing, err
		}
	}
	if c.RegistryNumber != "" {
		if existing, err := s.GetCompanyByRegistry(ctx, c.RegistryNumber); err != nil || existing != nil {
			return existing, err
		}
	}
	return s.GetCompanyByNormalizedName(ctx, c.NormalizedName)
}

// GetCompany fetches a company by ID.
func (s *PostgresStore) GetCompany(ctx context.Context, id int64) (*model.Company, error) {
	return s.queryCompany(ctx, `SELECT `+companyColumns+` FROM companies WHERE id = $1`, id)
}

// GetCompanyByDomain fetches a company by its unique domain, case-insensitive.
func (s *PostgresStore) GetCompanyByDomain(ctx context.Context, domain string) (*model.Company, error) {
	return s.queryCompany(ctx, `SELECT `+companyColumns+` FROM companies WHERE lower(domain) = lower($1) AND domain <> ''`, domain)
}

// GetCompanyByRegistry fetches a company by external registry number.
func (s *PostgresStore) GetCompanyByRegistry(ctx context.Context, registryNumber string) (*model.Company, error) {
	return s.queryCompany(ctx, `SELECT `+companyColumns+` FROM companies WHERE registry_number = $1 AND registry_number <> ''`, registryNumber)
}

// GetCompanyByNormalizedName fetches a company by exact normalized name.
func (s *PostgresStore) GetCompanyByNormalizedName(ctx context.Context, normalizedName string) (*model.Company, error) {
	return s.queryCompany(ctx, `SELECT `+companyColumns+` FROM companies WHERE normalized_name = $1 ORDER BY id LIMIT 1`, normalizedName)
}

// SearchCompaniesByToken narrows fuzzy-match candidates by trigram
// similarity against the token.
func (s *PostgresStore) SearchCompaniesByToken(ctx context.Context, token string, limit int) ([]model.Company, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+companyColumns+`
		FROM companies
		WHERE normalized_name % $1 OR normalized_name LIKE '%' || $1 || '%'
		ORDER BY similarity(normalized_name, $1) DESC
		LIMIT $2`, token, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: search companies")
	}
	defer rows.Close()
	return scanCompanies(rows)
}

// UpdateCompanyScore overwrites the pain score. A plain overwrite, not an
// increment: the aggregator always recomputes from active signals.
func (s *PostgresStore) UpdateCompanyScore(ctx context.Context, id int64, score int, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE companies SET pain_score = $2, last_activity_at = $3, updated_at = now() WHERE id = $1`,
		id, score, at)
	if err != nil {
		return eris.Wrapf(err, "postgres: update score for company %d", id)
	}
	return nil
}

// ListCompanyIDs returns all company IDs.
func (s *PostgresStore) ListCompanyIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM companies ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list company ids")
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan company id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListTopCompanies returns companies ordered by pain score, highest first.
func (s *PostgresStore) ListTopCompanies(ctx context.Context, limit int) ([]model.Company, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+companyColumns+`
		FROM companies
		ORDER BY pain_score DESC, last_activity_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list top companies")
	}
	defer rows.Close()
	return scanCompanies(rows)
}

// GetPosting fetches a posting by ID.
func (s *PostgresStore) GetPosting(ctx context.Context, id int64) (*model.JobPosting, error) {
	return s.queryPosting(ctx, `SELECT `+postingColumns+` FROM job_postings WHERE id = $1`, id)
}

// GetPostingByFingerprint fetches a posting by its unique fingerprint.
func (s *PostgresStore) GetPostingByFingerprint(ctx context.Context, fingerprint string) (*model.JobPosting, error) {
	return s.queryPosting(ctx, `SELECT `+postingColumns+` FROM job_postings WHERE fingerprint = $1`, fingerprint)
}

// InsertPosting inserts p, relying on the fingerprint unique constraint to
// resolve races. When another observer won the insert, the winning row is
// loaded into p and false is returned.
func (s *PostgresStore) InsertPosting(ctx context.Context, p *model.JobPosting) (bool, error) {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO job_postings (
			company_id, title, normalized_title, location, normalized_location, fingerprint,
			posted_at, last_seen_at, active, repost_count, previous_posting_id,
			salary_min, salary_max, salary_increase_pct, referral_bonus, referral_bonus_amount, source
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (fingerprint) DO NOTHING
		RETURNING id, created_at, updated_at`,
		p.CompanyID, p.Title, p.NormalizedTitle, p.Location, p.NormalizedLocation, p.Fingerprint,
		p.PostedAt, p.LastSeenAt, p.Active, p.RepostCount, p.PreviousPostingID,
		p.SalaryMin, p.SalaryMax, p.SalaryIncreasePct, p.ReferralBonus, p.ReferralBonusAmt, p.Source,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err == nil {
		return true, nil
	}
	if err != pgx.ErrNoRows {
		return false, eris.Wrap(err, "postgres: insert posting")
	}

	// Conflict: re-read the winning row and proceed as a refresh.
	existing, err := s.GetPostingByFingerprint(ctx, p.Fingerprint)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, eris.Errorf("postgres: posting %s vanished after conflict", p.Fingerprint)
	}
	*p = *existing
	return false, nil
}

// RefreshPosting marks a posting seen: active, last-seen updated. Repeated
// refreshes are idempotent; last-write-wins is safe because observations
// only move a posting toward more recently seen.
func (s *PostgresStore) RefreshPosting(ctx context.Context, id int64, seenAt time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE job_postings SET active = true, last_seen_at = $2, updated_at = now() WHERE id = $1`,
		id, seenAt)
	if err != nil {
		return eris.Wrapf(err, "postgres: refresh posting %d", id)
	}
	return nil
}

// ListActivePostings returns a company's active postings, most recent first.
func (s *PostgresStore) ListActivePostings(ctx context.Context, companyID int64) ([]model.JobPosting, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+postingColumns+`
		FROM job_postings
		WHERE company_id = $1 AND active
		ORDER BY posted_at DESC`, companyID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list active postings")
	}
	defer rows.Close()
	return scanPostings(rows)
}

// ListInactivePostings returns a company's inactive postings, most recent
// first, bounded by limit. This is the repost-detection scan window.
func (s *PostgresStore) ListInactivePostings(ctx context.Context, companyID int64, limit int) ([]model.JobPosting, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+postingColumns+`
		FROM job_postings
		WHERE company_id = $1 AND NOT active
		ORDER BY last_seen_at DESC
		LIMIT $2`, companyID, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list inactive postings")
	}
	defer rows.Close()
	return scanPostings(rows)
}

// MarkStalePostings flips postings unseen since the cutoff to inactive and
// returns the affected rows so the caller can resolve their signals.
func (s *PostgresStore) MarkStalePostings(ctx context.Context, unseenSince time.Time) ([]model.JobPosting, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE job_postings
		SET active = false, updated_at = now()
		WHERE active AND last_seen_at < $1
		RETURNING `+postingColumns, unseenSince)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: mark stale postings")
	}
	defer rows.Close()
	return scanPostings(rows)
}

// CountPostingsInWindow counts a company's postings first posted in [from, to).
func (s *PostgresStore) CountPostingsInWindow(ctx context.Context, companyID int64, from, to time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM job_postings WHERE company_id = $1 AND posted_at >= $2 AND posted_at < $3`,
		companyID, from, to).Scan(&n)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: count postings in window")
	}
	return n, nil
}

// InsertSignal appends a pain signal. The family column is derived from the
// type so the exclusivity lookups stay indexed.
func (s *PostgresStore) InsertSignal(ctx context.Context, sig *model.PainSignal) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO pain_signals (company_id, type, family, posting_id, contract_ref, score, urgency, active, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`,
		sig.CompanyID, sig.Type, sig.Type.Family(), sig.PostingID, sig.ContractRef,
		sig.Score, sig.Urgency, sig.Active, sig.ResolvedAt,
	).Scan(&sig.ID, &sig.CreatedAt)
	if err != nil {
		return eris.Wrap(err, "postgres: insert signal")
	}
	return nil
}

// ResolveSignal closes a signal. Signals are never mutated in place beyond
// this one transition.
func (s *PostgresStore) ResolveSignal(ctx context.Context, id int64, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE pain_signals SET active = false, resolved_at = $2 WHERE id = $1 AND active`,
		id, at)
	if err != nil {
		return eris.Wrapf(err, "postgres: resolve signal %d", id)
	}
	return nil
}

// ResolvePostingSignals closes every active signal attached to a posting.
func (s *PostgresStore) ResolvePostingSignals(ctx context.Context, postingID int64, at time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE pain_signals SET active = false, resolved_at = $2 WHERE posting_id = $1 AND active`,
		postingID, at)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: resolve signals for posting %d", postingID)
	}
	return tag.RowsAffected(), nil
}

// GetActivePostingSignal returns the active signal of a family for a posting.
func (s *PostgresStore) GetActivePostingSignal(ctx context.Context, postingID int64, family model.SignalFamily) (*model.PainSignal, error) {
	return s.querySignal(ctx, `
		SELECT `+signalColumns+` FROM pain_signals
		WHERE posting_id = $1 AND family = $2 AND active
		LIMIT 1`, postingID, family)
}

// HasPostingSignal reports whether any signal of the family was ever
// emitted for the posting.
func (s *PostgresStore) HasPostingSignal(ctx context.Context, postingID int64, family model.SignalFamily) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pain_signals WHERE posting_id = $1 AND family = $2)`,
		postingID, family).Scan(&exists)
	if err != nil {
		return false, eris.Wrap(err, "postgres: has posting signal")
	}
	return exists, nil
}

// GetActiveContractSignal returns the active contract-family signal for a
// (company, contract reference) pair.
func (s *PostgresStore) GetActiveContractSignal(ctx context.Context, companyID int64, contractRef string) (*model.PainSignal, error) {
	return s.querySignal(ctx, `
		SELECT `+signalColumns+` FROM pain_signals
		WHERE company_id = $1 AND contract_ref = $2 AND active
		LIMIT 1`, companyID, contractRef)
}

// ListActiveSignals returns a company's active signals, newest first.
func (s *PostgresStore) ListActiveSignals(ctx context.Context, companyID int64) ([]model.PainSignal, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+signalColumns+` FROM pain_signals
		WHERE company_id = $1 AND active
		ORDER BY created_at DESC`, companyID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list active signals")
	}
	defer rows.Close()
	return scanSignals(rows)
}

// SumActiveSignalScores totals the contributions of a company's active signals.
func (s *PostgresStore) SumActiveSignalScores(ctx context.Context, companyID int64) (int, error) {
	var sum int
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(score), 0) FROM pain_signals WHERE company_id = $1 AND active`,
		companyID).Scan(&sum)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: sum active signal scores")
	}
	return sum, nil
}

// UpsertContract inserts or updates a contract award keyed by reference.
func (s *PostgresStore) UpsertContract(ctx context.Context, c *model.ContractAward) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO contract_awards (company_id, supplier_name, buyer_name, value, awarded_at, reference, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (reference) DO UPDATE SET
			value = EXCLUDED.value, awarded_at = EXCLUDED.awarded_at, buyer_name = EXCLUDED.buyer_name
		RETURNING id, created_at`,
		c.CompanyID, c.SupplierName, c.BuyerName, c.Value, c.AwardedAt, c.Reference, c.Source,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return eris.Wrap(err, "postgres: upsert contract")
	}
	return nil
}

// UpsertContractBatch lands a sync batch in one round trip through a temp
// table COPY. References must be unique within the batch.
func (s *PostgresStore) UpsertContractBatch(ctx context.Context, awards []model.ContractAward) (int64, error) {
	rows := make([][]any, 0, len(awards))
	for _, c := range awards {
		rows = append(rows, []any{
			c.CompanyID, c.SupplierName, c.BuyerName, c.Value, c.AwardedAt, c.Reference, c.Source,
		})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "contract_awards",
		Columns:      []string{"company_id", "supplier_name", "buyer_name", "value", "awarded_at", "reference", "source"},
		ConflictKeys: []string{"reference"},
		UpdateCols:   []string{"value", "awarded_at", "buyer_name"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert contract batch")
	}
	return n, nil
}

// ListRecentContracts returns awards at or above minValue awarded since the cutoff.
func (s *PostgresStore) ListRecentContracts(ctx context.Context, minValue float64, since time.Time) ([]model.ContractAward, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, company_id, supplier_name, buyer_name, value, awarded_at, reference, source, created_at
		FROM contract_awards
		WHERE value >= $1 AND awarded_at >= $2
		ORDER BY awarded_at DESC`, minValue, since)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list recent contracts")
	}
	defer rows.Close()

	var contracts []model.ContractAward
	for rows.Next() {
		var c model.ContractAward
		if err := rows.Scan(&c.ID, &c.CompanyID, &c.SupplierName, &c.BuyerName, &c.Value,
			&c.AwardedAt, &c.Reference, &c.Source, &c.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan contract")
		}
		contracts = append(contracts, c)
	}
	return contracts, rows.Err()
}

// EnqueueDLQ parks a failed observation for later replay.
func (s *PostgresStore) EnqueueDLQ(ctx context.Context, e resilience.DLQEntry) error {
	payload, err := json.Marshal(e.Observation)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal dlq observation")
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO ingest_dlq (id, observation, error, error_type, failed_phase, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			error = EXCLUDED.error, error_type = EXCLUDED.error_type,
			retry_count = ingest_dlq.retry_count, last_failed_at = EXCLUDED.last_failed_at`,
		e.ID, payload, e.Error, e.ErrorType, e.FailedPhase,
		e.RetryCount, e.MaxRetries, e.NextRetryAt, e.CreatedAt, e.LastFailedAt)
	if err != nil {
		return eris.Wrap(err, "postgres: enqueue dlq")
	}
	return nil
}

// DequeueDLQ returns replay-eligible entries, oldest first.
func (s *PostgresStore) DequeueDLQ(ctx context.Context, f resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, observation, error, error_type, failed_phase, retry_count, max_retries, next_retry_at, created_at, last_failed_at
		FROM ingest_dlq
		WHERE next_retry_at <= now()
			AND retry_count < max_retries
			AND ($1 = '' OR error_type = $1)
		ORDER BY next_retry_at ASC
		LIMIT $2`, f.ErrorType, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: dequeue dlq")
	}
	defer rows.Close()

	var entries []resilience.DLQEntry
	for rows.Next() {
		var e resilience.DLQEntry
		var payload []byte
		if err := rows.Scan(&e.ID, &payload, &e.Error, &e.ErrorType, &e.FailedPhase,
			&e.RetryCount, &e.MaxRetries, &e.NextRetryAt, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan dlq entry")
		}
		if err := json.Unmarshal(payload, &e.Observation); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal dlq observation %s", e.ID)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// RequeueDLQ records another failed attempt for an entry.
func (s *PostgresStore) RequeueDLQ(ctx context.Context, id, errMsg string, nextRetryAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE ingest_dlq
		SET retry_count = retry_count + 1, error = $2, next_retry_at = $3, last_failed_at = now()
		WHERE id = $1`, id, errMsg, nextRetryAt)
	if err != nil {
		return eris.Wrapf(err, "postgres: requeue dlq %s", id)
	}
	return nil
}

// DeleteDLQ removes a replayed or abandoned entry.
func (s *PostgresStore) DeleteDLQ(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM ingest_dlq WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete dlq %s", id)
	}
	return nil
}

// Stats gathers the monitoring snapshot in one round trip.
func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{}
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM companies),
			(SELECT COUNT(*) FROM job_postings WHERE active),
			(SELECT COUNT(*) FROM job_postings WHERE NOT active),
			(SELECT COUNT(*) FROM pain_signals WHERE active),
			(SELECT COUNT(*) FROM pain_signals WHERE NOT active),
			(SELECT COUNT(*) FROM contract_awards),
			(SELECT COUNT(*) FROM ingest_dlq),
			(SELECT COALESCE(AVG(pain_score), 0) FROM companies),
			(SELECT COALESCE(MAX(pain_score), 0) FROM companies)`).
		Scan(&st.Companies, &st.ActivePostings, &st.InactivePostings,
			&st.ActiveSignals, &st.ResolvedSignals, &st.Contracts, &st.DLQDepth,
			&st.AvgPainScore, &st.MaxPainScore)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats")
	}
	return st, nil
}

func (s *PostgresStore) queryCompany(ctx context.Context, sql string, args ...any) (*model.Company, error) {
	c := &model.Company{}
	err := s.pool.QueryRow(ctx, sql, args...).Scan(companyDests(c)...)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: query company")
	}
	return c, nil
}

func (s *PostgresStore) queryPosting(ctx context.Context, sql string, args ...any) (*model.JobPosting, error) {
	p := &model.JobPosting{}
	err := s.pool.QueryRow(ctx, sql, args...).Scan(postingDests(p)...)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: query posting")
	}
	return p, nil
}

func (s *PostgresStore) querySignal(ctx context.Context, sql string, args ...any) (*model.PainSignal, error) {
	sig := &model.PainSignal{}
	err := s.pool.QueryRow(ctx, sql, args...).Scan(signalDests(sig)...)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: query signal")
	}
	return sig, nil
}

// companyColumns is the standard column list for company queries.
const companyColumns = `id, name, normalized_name, domain, registry_number, industry, region,
	pain_score, last_activity_at, created_at, updated_at`

func companyDests(c *model.Company) []any {
	return []any{
		&c.ID, &c.Name, &c.NormalizedName, &c.Domain, &c.RegistryNumber, &c.Industry, &c.Region,
		&c.PainScore, &c.LastActivityAt, &c.CreatedAt, &c.UpdatedAt,
	}
}

func scanCompanies(rows pgx.Rows) ([]model.Company, error) {
	var companies []model.Company
	for rows.Next() {
		var c model.Company
		if err := rows.Scan(companyDests(&c)...); err != nil {
			return nil, eris.Wrap(err, "postgres: scan company")
		}
		companies = append(companies, c)
	}
	return companies, rows.Err()
}

// postingColumns is the standard column list for posting queries.
const postingColumns = `id, company_id, title, normalized_title, location, normalized_location,
	fingerprint, posted_at, last_seen_at, active, repost_count, previous_posting_id,
	salary_min, salary_max, salary_increase_pct, referral_bonus, referral_bonus_amount,
	source, created_at, updated_at`

func postingDests(p *model.JobPosting) []any {
	return []any{
		&p.ID, &p.CompanyID, &p.Title, &p.NormalizedTitle, &p.Location, &p.NormalizedLocation,
		&p.Fingerprint, &p.PostedAt, &p.LastSeenAt, &p.Active, &p.RepostCount, &p.PreviousPostingID,
		&p.SalaryMin, &p.SalaryMax, &p.SalaryIncreasePct, &p.ReferralBonus, &p.ReferralBonusAmt,
		&p.Source, &p.CreatedAt, &p.UpdatedAt,
	}
}

func scanPostings(rows pgx.Rows) ([]model.JobPosting, error) {
	var postings []model.JobPosting
	for rows.Next() {
		var p model.JobPosting
		if err := rows.Scan(postingDests(&p)...); err != nil {
			return nil, eris.Wrap(err, "postgres: scan posting")
		}
		postings = append(postings, p)
	}
	return postings, rows.Err()
}

// signalColumns is the standard column list for signal queries.
const signalColumns = `id, company_id, type, posting_id, contract_ref, score, urgency, active, resolved_at, created_at`

func signalDests(s *model.PainSignal) []any {
	return []any{
		&s.ID, &s.CompanyID, &s.Type, &s.PostingID, &s.ContractRef,
		&s.Score, &s.Urgency, &s.Active, &s.ResolvedAt, &s.CreatedAt,
	}
}

func scanSignals(rows pgx.Rows) ([]model.PainSignal, error) {
	var signals []model.PainSignal
	for rows.Next() {
		var s model.PainSignal
		if err := rows.Scan(signalDests(&s)...); err != nil {
			return nil, eris.Wrap(err, "postgres: scan signal")
		}
		signals = append(signals, s)
	}
	return signals, rows.Err()
}
