package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/leadsignal/signals-cli/internal/model"
	"github.com/leadsignal/signals-cli/internal/resilience"
)

// SQLiteStore implements Store using modernc.org/sqlite, for local runs
// without a Postgres instance. Fuzzy candidate narrowing degrades from
// trigram similarity to substring matching.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	sdb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := sdb.Exec(pragma); err != nil {
			sdb.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: sdb}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	name             TEXT NOT NULL,
	normalized_name  TEXT NOT NULL,
	domain           TEXT NOT NULL DEFAULT '',
	registry_number  TEXT NOT NULL DEFAULT '',
	industry         TEXT NOT NULL DEFAULT '',
	region           TEXT NOT NULL DEFAULT '',
	pain_score       INTEGER NOT NULL DEFAULT 0,
	last_activity_at DATETIME NOT NULL,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_companies_domain
	ON companies(lower(domain)) WHERE domain <> '';
CREATE UNIQUE INDEX IF NOT EXISTS idx_companies_registry
	ON companies(registry_number) WHERE registry_number <> '';
CREATE INDEX IF NOT EXISTS idx_companies_normalized_name ON companies(normalized_name);

CREATE TABLE IF NOT EXISTS job_postings (
	id                    INTEGER PRIMARY KEY AUTOINCREMENT,
	company_id            INTEGER NOT NULL REFERENCES companies(id),
	title                 TEXT NOT NULL,
	normalized_title      TEXT NOT NULL,
	location              TEXT NOT NULL DEFAULT '',
	normalized_location   TEXT NOT NULL DEFAULT '',
	fingerprint           TEXT NOT NULL UNIQUE,
	posted_at             DATETIME NOT NULL,
	last_seen_at          DATETIME NOT NULL,
	active                INTEGER NOT NULL DEFAULT 1,
	repost_count          INTEGER NOT NULL DEFAULT 0,
	previous_posting_id   INTEGER REFERENCES job_postings(id),
	salary_min            REAL,
	salary_max            REAL,
	salary_increase_pct   REAL,
	referral_bonus        INTEGER NOT NULL DEFAULT 0,
	referral_bonus_amount REAL,
	source                TEXT NOT NULL DEFAULT '',
	created_at            DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at            DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_postings_company_active ON job_postings(company_id, active, last_seen_at);
CREATE INDEX IF NOT EXISTS idx_postings_last_seen ON job_postings(last_seen_at);

CREATE TABLE IF NOT EXISTS pain_signals (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	company_id   INTEGER NOT NULL REFERENCES companies(id),
	type         TEXT NOT NULL,
	family       TEXT NOT NULL,
	posting_id   INTEGER REFERENCES job_postings(id),
	contract_ref TEXT NOT NULL DEFAULT '',
	score        INTEGER NOT NULL,
	urgency      TEXT NOT NULL,
	active       INTEGER NOT NULL DEFAULT 1,
	resolved_at  DATETIME,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_signals_posting_family ON pain_signals(posting_id, family, active);
CREATE INDEX IF NOT EXISTS idx_signals_company_active ON pain_signals(company_id, active);

CREATE TABLE IF NOT EXISTS contract_awards (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	company_id    INTEGER NOT NULL REFERENCES companies(id),
	supplier_name TEXT NOT NULL,
	buyer_name    TEXT NOT NULL DEFAULT '',
	value         REAL NOT NULL,
	awarded_at    DATETIME NOT NULL,
	reference     TEXT NOT NULL UNIQUE,
	source        TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS ingest_dlq (
	id             TEXT PRIMARY KEY,
	observation    TEXT NOT NULL,
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL,
	failed_phase   TEXT NOT NULL DEFAULT '',
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	next_retry_at  DATETIME NOT NULL,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	last_failed_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_dlq_next_retry ON ingest_dlq(next_retry_at);
`

// Migrate creates the schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateCompany inserts a new company and sets its ID.
func (s *SQLiteStore) CreateCompany(ctx context.Context, c *model.Company) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO companies (name, normalized_name, domain, registry_number, industry, region, pain_score, last_activity_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Name, c.NormalizedName, c.Domain, c.RegistryNumber, c.Industry, c.Region, c.PainScore, c.LastActivityAt, now, now)
	if err != nil {
		return eris.Wrap(err, "sqlite: create company")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: create company rows affected")
	}
	if n > 0 {
		id, err := res.LastInsertId()
		if err != nil {
			return eris.Wrap(err, "sqlite: create company id")
		}
		c.ID = id
		c.CreatedAt = now
		c.UpdatedAt = now
		return nil
	}

	// Conflict on a unique identifier: re-read the winning row.
	existing, err := s.readCompanyConflictWinner(ctx, c)
	if err != nil {
		return err
	}
	if existing == nil {
		return eris.Errorf("sqlite: company %q vanished after conflict", c.NormalizedName)
	}
	*c = *existing
	return nil
}

// readCompanyConflictWinner locates the row a concurrent create won with,
// checked in identifier-strength order.
func (s *SQLiteStore) readCompanyConflictWinner(ctx context.Context, c *model.Company) (*model.Company, error) {
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
func (s *SQLiteStore) GetCompany(ctx context.Context, id int64) (*model.Company, error) {
	return s.queryCompany(ctx, `SELECT `+companyColumns+` FROM companies WHERE id = ?`, id)
}

// GetCompanyByDomain fetches a company by its unique domain, case-insensitive.
func (s *SQLiteStore) GetCompanyByDomain(ctx context.Context, domain string) (*model.Company, error) {
	return s.queryCompany(ctx, `SELECT `+companyColumns+` FROM companies WHERE lower(domain) = lower(?) AND domain <> ''`, domain)
}

// GetCompanyByRegistry fetches a company by external registry number.
func (s *SQLiteStore) GetCompanyByRegistry(ctx context.Context, registryNumber string) (*model.Company, error) {
	return s.queryCompany(ctx, `SELECT `+companyColumns+` FROM companies WHERE registry_number = ? AND registry_number <> ''`, registryNumber)
}

// GetCompanyByNormalizedName fetches a company by exact normalized name.
func (s *SQLiteStore) GetCompanyByNormalizedName(ctx context.Context, normalizedName string) (*model.Company, error) {
	return s.queryCompany(ctx, `SELECT `+companyColumns+` FROM companies WHERE normalized_name = ? ORDER BY id LIMIT 1`, normalizedName)
}

// SearchCompaniesByToken narrows fuzzy-match candidates by substring match.
func (s *SQLiteStore) SearchCompaniesByToken(ctx context.Context, token string, limit int) ([]model.Company, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+companyColumns+`
		FROM companies
		WHERE instr(normalized_name, ?) > 0
		ORDER BY length(normalized_name) ASC
		LIMIT ?`, token, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: search companies")
	}
	defer rows.Close()

	var companies []model.Company
	for rows.Next() {
		var c model.Company
		if err := rows.Scan(companyDests(&c)...); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan company")
		}
		companies = append(companies, c)
	}
	return companies, rows.Err()
}

// UpdateCompanyScore overwrites the pain score.
func (s *SQLiteStore) UpdateCompanyScore(ctx context.Context, id int64, score int, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE companies SET pain_score = ?, last_activity_at = ?, updated_at = ? WHERE id = ?`,
		score, at, time.Now().UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update score for company %d", id)
	}
	return nil
}

// ListTopCompanies returns companies ordered by pain score, highest first.
func (s *SQLiteStore) ListTopCompanies(ctx context.Context, limit int) ([]model.Company, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+companyColumns+`
		FROM companies
		ORDER BY pain_score DESC, last_activity_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list top companies")
	}
	defer rows.Close()

	var companies []model.Company
	for rows.Next() {
		var c model.Company
		if err := rows.Scan(companyDests(&c)...); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan company")
		}
		companies = append(companies, c)
	}
	return companies, rows.Err()
}

// ListCompanyIDs returns all company IDs.
func (s *SQLiteStore) ListCompanyIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM companies ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list company ids")
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan company id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetPosting fetches a posting by ID.
func (s *SQLiteStore) GetPosting(ctx context.Context, id int64) (*model.JobPosting, error) {
	return s.queryPosting(ctx, `SELECT `+postingColumns+` FROM job_postings WHERE id = ?`, id)
}

// GetPostingByFingerprint fetches a posting by its unique fingerprint.
func (s *SQLiteStore) GetPostingByFingerprint(ctx context.Context, fingerprint string) (*model.JobPosting, error) {
	return s.queryPosting(ctx, `SELECT `+postingColumns+` FROM job_postings WHERE fingerprint = ?`, fingerprint)
}

// InsertPosting inserts p, or loads the winning row on fingerprint conflict.
// SQLite serializes writers, so DO NOTHING plus a re-read is race-free.
func (s *SQLiteStore) InsertPosting(ctx context.Context, p *model.JobPosting) (bool, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO job_postings (
			company_id, title, normalized_title, location, normalized_location, fingerprint,
			posted_at, last_seen_at, active, repost_count, previous_posting_id,
			salary_min, salary_max, salary_increase_pct, referral_bonus, referral_bonus_amount, source,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO NOTHING`,
		p.CompanyID, p.Title, p.NormalizedTitle, p.Location, p.NormalizedLocation, p.Fingerprint,
		p.PostedAt, p.LastSeenAt, p.Active, p.RepostCount, p.PreviousPostingID,
		p.SalaryMin, p.SalaryMax, p.SalaryIncreasePct, p.ReferralBonus, p.ReferralBonusAmt, p.Source,
		now, now)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: insert posting")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: insert posting rows affected")
	}
	if n > 0 {
		id, err := res.LastInsertId()
		if err != nil {
			return false, eris.Wrap(err, "sqlite: insert posting id")
		}
		p.ID = id
		p.CreatedAt = now
		p.UpdatedAt = now
		return true, nil
	}

	existing, err := s.GetPostingByFingerprint(ctx, p.Fingerprint)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, eris.Errorf("sqlite: posting %s vanished after conflict", p.Fingerprint)
	}
	*p = *existing
	return false, nil
}

// RefreshPosting marks a posting seen.
func (s *SQLiteStore) RefreshPosting(ctx context.Context, id int64, seenAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE job_postings SET active = 1, last_seen_at = ?, updated_at = ? WHERE id = ?`,
		seenAt, time.Now().UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: refresh posting %d", id)
	}
	return nil
}

// ListActivePostings returns a company's active postings, most recent first.
func (s *SQLiteStore) ListActivePostings(ctx context.Context, companyID int64) ([]model.JobPosting, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+postingColumns+`
		FROM job_postings
		WHERE company_id = ? AND active = 1
		ORDER BY posted_at DESC`, companyID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list active postings")
	}
	defer rows.Close()
	return s.collectPostings(rows)
}

// ListInactivePostings returns a company's inactive postings, most recent first.
func (s *SQLiteStore) ListInactivePostings(ctx context.Context, companyID int64, limit int) ([]model.JobPosting, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+postingColumns+`
		FROM job_postings
		WHERE company_id = ? AND active = 0
		ORDER BY last_seen_at DESC
		LIMIT ?`, companyID, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list inactive postings")
	}
	defer rows.Close()
	return s.collectPostings(rows)
}

// MarkStalePostings flips postings unseen since the cutoff to inactive and
// returns them. Runs in a transaction so the selected set matches the update.
func (s *SQLiteStore) MarkStalePostings(ctx context.Context, unseenSince time.Time) ([]model.JobPosting, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin stale sweep")
	}
	defer tx.Rollback() //nolint:errcheck

	rows, err := tx.QueryContext(ctx, `
		SELECT `+postingColumns+`
		FROM job_postings
		WHERE active = 1 AND last_seen_at < ?`, unseenSince)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: select stale postings")
	}
	stale, err := s.collectPostings(rows)
	if err != nil {
		return nil, err
	}

	if len(stale) > 0 {
		if _, err := tx.ExecContext(ctx,
			`UPDATE job_postings SET active = 0, updated_at = ? WHERE active = 1 AND last_seen_at < ?`,
			time.Now().UTC(), unseenSince); err != nil {
			return nil, eris.Wrap(err, "sqlite: mark stale postings")
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit stale sweep")
	}
	for i := range stale {
		stale[i].Active = false
	}
	return stale, nil
}

// CountPostingsInWindow counts a company's postings first posted in [from, to).
func (s *SQLiteStore) CountPostingsInWindow(ctx context.Context, companyID int64, from, to time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM job_postings WHERE company_id = ? AND posted_at >= ? AND posted_at < ?`,
		companyID, from, to).Scan(&n)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: count postings in window")
	}
	return n, nil
}

// InsertSignal appends a pain signal.
func (s *SQLiteStore) InsertSignal(ctx context.Context, sig *model.PainSignal) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO pain_signals (company_id, type, family, posting_id, contract_ref, score, urgency, active, resolved_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sig.CompanyID, sig.Type, sig.Type.Family(), sig.PostingID, sig.ContractRef,
		sig.Score, sig.Urgency, sig.Active, sig.ResolvedAt, now)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert signal")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return eris.Wrap(err, "sqlite: insert signal id")
	}
	sig.ID = id
	sig.CreatedAt = now
	return nil
}

// ResolveSignal closes a signal.
func (s *SQLiteStore) ResolveSignal(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE pain_signals SET active = 0, resolved_at = ? WHERE id = ? AND active = 1`,
		at, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: resolve signal %d", id)
	}
	return nil
}

// ResolvePostingSignals closes every active signal attached to a posting.
func (s *SQLiteStore) ResolvePostingSignals(ctx context.Context, postingID int64, at time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pain_signals SET active = 0, resolved_at = ? WHERE posting_id = ? AND active = 1`,
		at, postingID)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: resolve signals for posting %d", postingID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: resolve signals rows affected")
	}
	return n, nil
}

// GetActivePostingSignal returns the active signal of a family for a posting.
func (s *SQLiteStore) GetActivePostingSignal(ctx context.Context, postingID int64, family model.SignalFamily) (*model.PainSignal, error) {
	return s.querySignal(ctx, `
		SELECT `+signalColumns+` FROM pain_signals
		WHERE posting_id = ? AND family = ? AND active = 1
		LIMIT 1`, postingID, family)
}

// HasPostingSignal reports whether any signal of the family exists for the posting.
func (s *SQLiteStore) HasPostingSignal(ctx context.Context, postingID int64, family model.SignalFamily) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pain_signals WHERE posting_id = ? AND family = ?`,
		postingID, family).Scan(&n)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: has posting signal")
	}
	return n > 0, nil
}

// GetActiveContractSignal returns the active contract-family signal for a
// (company, contract reference) pair.
func (s *SQLiteStore) GetActiveContractSignal(ctx context.Context, companyID int64, contractRef string) (*model.PainSignal, error) {
	return s.querySignal(ctx, `
		SELECT `+signalColumns+` FROM pain_signals
		WHERE company_id = ? AND contract_ref = ? AND active = 1
		LIMIT 1`, companyID, contractRef)
}

// ListActiveSignals returns a company's active signals, newest first.
func (s *SQLiteStore) ListActiveSignals(ctx context.Context, companyID int64) ([]model.PainSignal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+signalColumns+` FROM pain_signals
		WHERE company_id = ? AND active = 1
		ORDER BY created_at DESC`, companyID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list active signals")
	}
	defer rows.Close()

	var signals []model.PainSignal
	for rows.Next() {
		var sig model.PainSignal
		if err := rows.Scan(signalDests(&sig)...); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan signal")
		}
		signals = append(signals, sig)
	}
	return signals, rows.Err()
}

// SumActiveSignalScores totals the contributions of a company's active signals.
func (s *SQLiteStore) SumActiveSignalScores(ctx context.Context, companyID int64) (int, error) {
	var sum int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(score), 0) FROM pain_signals WHERE company_id = ? AND active = 1`,
		companyID).Scan(&sum)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: sum active signal scores")
	}
	return sum, nil
}

// UpsertContract inserts or updates a contract award keyed by reference.
func (s *SQLiteStore) UpsertContract(ctx context.Context, c *model.ContractAward) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contract_awards (company_id, supplier_name, buyer_name, value, awarded_at, reference, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(reference) DO UPDATE SET
			value = excluded.value, awarded_at = excluded.awarded_at, buyer_name = excluded.buyer_name`,
		c.CompanyID, c.SupplierName, c.BuyerName, c.Value, c.AwardedAt, c.Reference, c.Source, now)
	if err != nil {
		return eris.Wrap(err, "sqlite: upsert contract")
	}
	if c.ID == 0 {
		err = s.db.QueryRowContext(ctx,
			`SELECT id, created_at FROM contract_awards WHERE reference = ?`, c.Reference).
			Scan(&c.ID, &c.CreatedAt)
		if err != nil {
			return eris.Wrap(err, "sqlite: read back contract")
		}
	}
	return nil
}

// UpsertContractBatch lands a sync batch inside one transaction. SQLite has
// no COPY path, so this is a plain loop with the same conflict handling.
func (s *SQLiteStore) UpsertContractBatch(ctx context.Context, awards []model.ContractAward) (int64, error) {
	if len(awards) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin contract batch")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	var n int64
	for _, c := range awards {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO contract_awards (company_id, supplier_name, buyer_name, value, awarded_at, reference, source, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(reference) DO UPDATE SET
				value = excluded.value, awarded_at = excluded.awarded_at, buyer_name = excluded.buyer_name`,
			c.CompanyID, c.SupplierName, c.BuyerName, c.Value, c.AwardedAt, c.Reference, c.Source, now)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert contract %s", c.Reference)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit contract batch")
	}
	return n, nil
}

// ListRecentContracts returns awards at or above minValue awarded since the cutoff.
func (s *SQLiteStore) ListRecentContracts(ctx context.Context, minValue float64, since time.Time) ([]model.ContractAward, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, company_id, supplier_name, buyer_name, value, awarded_at, reference, source, created_at
		FROM contract_awards
		WHERE value >= ? AND awarded_at >= ?
		ORDER BY awarded_at DESC`, minValue, since)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list recent contracts")
	}
	defer rows.Close()

	var contracts []model.ContractAward
	for rows.Next() {
		var c model.ContractAward
		if err := rows.Scan(&c.ID, &c.CompanyID, &c.SupplierName, &c.BuyerName, &c.Value,
			&c.AwardedAt, &c.Reference, &c.Source, &c.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan contract")
		}
		contracts = append(contracts, c)
	}
	return contracts, rows.Err()
}

// EnqueueDLQ parks a failed observation for later replay.
func (s *SQLiteStore) EnqueueDLQ(ctx context.Context, e resilience.DLQEntry) error {
	payload, err := json.Marshal(e.Observation)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal dlq observation")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ingest_dlq (id, observation, error, error_type, failed_phase, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			error = excluded.error, error_type = excluded.error_type,
			last_failed_at = excluded.last_failed_at`,
		e.ID, string(payload), e.Error, e.ErrorType, e.FailedPhase,
		e.RetryCount, e.MaxRetries, e.NextRetryAt, e.CreatedAt, e.LastFailedAt)
	if err != nil {
		return eris.Wrap(err, "sqlite: enqueue dlq")
	}
	return nil
}

// DequeueDLQ returns replay-eligible entries, oldest first.
func (s *SQLiteStore) DequeueDLQ(ctx context.Context, f resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, observation, error, error_type, failed_phase, retry_count, max_retries, next_retry_at, created_at, last_failed_at
		FROM ingest_dlq
		WHERE next_retry_at <= ?
			AND retry_count < max_retries
			AND (? = '' OR error_type = ?)
		ORDER BY next_retry_at ASC
		LIMIT ?`, time.Now().UTC(), f.ErrorType, f.ErrorType, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: dequeue dlq")
	}
	defer rows.Close()

	var entries []resilience.DLQEntry
	for rows.Next() {
		var e resilience.DLQEntry
		var payload string
		if err := rows.Scan(&e.ID, &payload, &e.Error, &e.ErrorType, &e.FailedPhase,
			&e.RetryCount, &e.MaxRetries, &e.NextRetryAt, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan dlq entry")
		}
		if err := json.Unmarshal([]byte(payload), &e.Observation); err != nil {
			return nil, eris.Wrapf(err, "sqlite: unmarshal dlq observation %s", e.ID)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// RequeueDLQ records another failed attempt for an entry.
func (s *SQLiteStore) RequeueDLQ(ctx context.Context, id, errMsg string, nextRetryAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE ingest_dlq
		SET retry_count = retry_count + 1, error = ?, next_retry_at = ?, last_failed_at = ?
		WHERE id = ?`, errMsg, nextRetryAt, time.Now().UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: requeue dlq %s", id)
	}
	return nil
}

// DeleteDLQ removes a replayed or abandoned entry.
func (s *SQLiteStore) DeleteDLQ(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM ingest_dlq WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete dlq %s", id)
	}
	return nil
}

// Stats gathers the monitoring snapshot.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM companies),
			(SELECT COUNT(*) FROM job_postings WHERE active = 1),
			(SELECT COUNT(*) FROM job_postings WHERE active = 0),
			(SELECT COUNT(*) FROM pain_signals WHERE active = 1),
			(SELECT COUNT(*) FROM pain_signals WHERE active = 0),
			(SELECT COUNT(*) FROM contract_awards),
			(SELECT COUNT(*) FROM ingest_dlq),
			(SELECT COALESCE(AVG(pain_score), 0) FROM companies),
			(SELECT COALESCE(MAX(pain_score), 0) FROM companies)`).
		Scan(&st.Companies, &st.ActivePostings, &st.InactivePostings,
			&st.ActiveSignals, &st.ResolvedSignals, &st.Contracts, &st.DLQDepth,
			&st.AvgPainScore, &st.MaxPainScore)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats")
	}
	return st, nil
}

func (s *SQLiteStore) queryCompany(ctx context.Context, query string, args ...any) (*model.Company, error) {
	c := &model.Company{}
	err := s.db.QueryRowContext(ctx, query, args...).Scan(companyDests(c)...)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: query company")
	}
	return c, nil
}

func (s *SQLiteStore) queryPosting(ctx context.Context, query string, args ...any) (*model.JobPosting, error) {
	p := &model.JobPosting{}
	err := s.db.QueryRowContext(ctx, query, args...).Scan(postingDests(p)...)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: query posting")
	}
	return p, nil
}

func (s *SQLiteStore) querySignal(ctx context.Context, query string, args ...any) (*model.PainSignal, error) {
	sig := &model.PainSignal{}
	err := s.db.QueryRowContext(ctx, query, args...).Scan(signalDests(sig)...)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: query signal")
	}
	return sig, nil
}

func (s *SQLiteStore) collectPostings(rows *sql.Rows) ([]model.JobPosting, error) {
	defer rows.Close()
	var postings []model.JobPosting
	for rows.Next() {
		var p model.JobPosting
		if err := rows.Scan(postingDests(&p)...); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan posting")
		}
		postings = append(postings, p)
	}
	return postings, rows.Err()
}

// Open selects a store backend by driver name.
func Open(ctx context.Context, driver, databaseURL string, maxConns, minConns int32) (Store, error) {
	switch strings.ToLower(driver) {
	case "postgres", "":
		return NewPostgres(ctx, databaseURL, maxConns, minConns)
	case "sqlite":
		return NewSQLite(databaseURL)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}
