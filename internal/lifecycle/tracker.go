// Package lifecycle tracks job postings across repeated observations:
// refreshes, reposts and the staleness classifications that feed signal
// generation.
package lifecycle

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/leadsignal/signals-cli/internal/model"
	"github.com/leadsignal/signals-cli/internal/normalize"
)

// PostingStore is the slice of the store the tracker needs.
type PostingStore interface {
	GetPostingByFingerprint(ctx context.Context, fingerprint string) (*model.JobPosting, error)
	InsertPosting(ctx context.Context, p *model.JobPosting) (bool, error)
	RefreshPosting(ctx context.Context, id int64, seenAt time.Time) error
	ListInactivePostings(ctx context.Context, companyID int64, limit int) ([]model.JobPosting, error)
}

// Config holds the tracker thresholds.
type Config struct {
	// RepostTitleThreshold is the minimum core-title similarity (0-100) for
	// a repost match. Defaults to 85.
	RepostTitleThreshold float64
	// RepostScanWindow bounds the predecessor search over a company's most
	// recently closed postings. Defaults to 10.
	RepostScanWindow int
	// RefreshWindow separates hard-to-fill from stale classifications.
	// Defaults to 14 days.
	RefreshWindow time.Duration
}

func (c Config) withDefaults() Config {
	if c.RepostTitleThreshold <= 0 {
		c.RepostTitleThreshold = 85
	}
	if c.RepostScanWindow <= 0 {
		c.RepostScanWindow = 10
	}
	if c.RefreshWindow <= 0 {
		c.RefreshWindow = 14 * 24 * time.Hour
	}
	return c
}

// Result is the outcome of observing one posting.
type Result struct {
	Posting    *model.JobPosting
	Transition model.Transition
	DaysOpen   int
}

// Tracker resolves posting observations against tracked state.
type Tracker struct {
	store   PostingStore
	cfg     Config
	nowFunc func() time.Time
}

// NewTracker creates a tracker.
func NewTracker(store PostingStore, cfg Config) *Tracker {
	return &Tracker{store: store, cfg: cfg.withDefaults(), nowFunc: time.Now}
}

// Observe decides whether a posting observation is new, a refresh of a
// tracked posting, or a repost of a closed one.
//
// A known fingerprint is always a refresh, including when the posting had
// already gone inactive: re-observation reactivates it. A repost is a new
// fingerprint whose core title and location match a recently closed posting
// of the same company; it becomes a new row linked to its predecessor.
// Losing the insert race to a concurrent observer degrades to a refresh of
// the winning row.
func (t *Tracker) Observe(ctx context.Context, company *model.Company, raw model.RawPosting) (*Result, error) {
	if strings.TrimSpace(raw.Title) == "" {
		return nil, eris.New("lifecycle: observation has no title")
	}
	now := t.nowFunc().UTC()

	fingerprint := normalize.Fingerprint(raw.Title, raw.CompanyName, raw.Location)

	existing, err := t.store.GetPostingByFingerprint(ctx, fingerprint)
	if err != nil {
		return nil, eris.Wrap(err, "lifecycle: fingerprint lookup")
	}
	if existing != nil {
		return t.refresh(ctx, existing, now)
	}

	predecessor, err := t.findPredecessor(ctx, company.ID, raw)
	if err != nil {
		// Losing the predecessor only downgrades a repost to "new"; the
		// observation itself still lands.
		zap.L().Warn("lifecycle: predecessor search failed",
			zap.Int64("company_id", company.ID), zap.Error(err))
	}

	salaryMin, salaryMax := normalize.AnnualRange(raw.SalaryMin, raw.SalaryMax, raw.SalaryPeriod)
	referral, referralAmt := normalize.DetectReferralBonus(raw.Description)

	postedAt := raw.PostedAt.UTC()
	if postedAt.IsZero() {
		postedAt = now
	}

	posting := &model.JobPosting{
		CompanyID:          company.ID,
		Title:              raw.Title,
		NormalizedTitle:    normalize.Title(raw.Title),
		Location:           raw.Location,
		NormalizedLocation: normalize.Location(raw.Location),
		Fingerprint:        fingerprint,
		PostedAt:           postedAt,
		LastSeenAt:         now,
		Active:             true,
		SalaryMin:          salaryMin,
		SalaryMax:          salaryMax,
		ReferralBonus:      referral,
		ReferralBonusAmt:   referralAmt,
		Source:             raw.Source,
	}

	transition := model.TransitionNew
	if predecessor != nil {
		transition = model.TransitionReposted
		posting.RepostCount = predecessor.RepostCount + 1
		posting.PreviousPostingID = &predecessor.ID
		posting.SalaryIncreasePct = normalize.SalaryIncreasePct(
			predecessor.SalaryMin, predecessor.SalaryMax, salaryMin, salaryMax)
	}

	created, err := t.store.InsertPosting(ctx, posting)
	if err != nil {
		return nil, eris.Wrap(err, "lifecycle: insert posting")
	}
	if !created {
		// A concurrent observer won the fingerprint; ours is a re-sighting.
		return t.refresh(ctx, posting, now)
	}

	zap.L().Debug("lifecycle: posting tracked",
		zap.Int64("posting_id", posting.ID),
		zap.String("transition", string(transition)),
		zap.Int("repost_count", posting.RepostCount))

	return &Result{
		Posting:    posting,
		Transition: transition,
		DaysOpen:   daysBetween(posting.PostedAt, now),
	}, nil
}

func (t *Tracker) refresh(ctx context.Context, p *model.JobPosting, now time.Time) (*Result, error) {
	if err := t.store.RefreshPosting(ctx, p.ID, now); err != nil {
		return nil, eris.Wrap(err, "lifecycle: refresh posting")
	}
	p.Active = true
	p.LastSeenAt = now
	return &Result{
		Posting:    p,
		Transition: model.TransitionRefreshed,
		DaysOpen:   daysBetween(p.PostedAt, now),
	}, nil
}

// findPredecessor scans the company's recently closed postings for the same
// role. Core titles strip seniority modifiers, so "Senior Site Manager"
// still matches a closed "Site Manager" advert.
func (t *Tracker) findPredecessor(ctx context.Context, companyID int64, raw model.RawPosting) (*model.JobPosting, error) {
	candidates, err := t.store.ListInactivePostings(ctx, companyID, t.cfg.RepostScanWindow)
	if err != nil {
		return nil, eris.Wrap(err, "lifecycle: list inactive postings")
	}

	coreTitle := normalize.CoreTitle(raw.Title)
	location := normalize.Location(raw.Location)

	for i := range candidates {
		c := &candidates[i]
		if !normalize.LocationsCompatible(location, c.NormalizedLocation) {
			continue
		}
		sim := normalize.Similarity(coreTitle, normalize.CoreTitle(c.NormalizedTitle))
		if sim >= t.cfg.RepostTitleThreshold {
			zap.L().Debug("lifecycle: repost predecessor found",
				zap.Int64("predecessor_id", c.ID),
				zap.Float64("similarity", sim))
			return c, nil
		}
	}
	return nil, nil
}

func daysBetween(from, to time.Time) int {
	if to.Before(from) {
		return 0
	}
	return int(to.Sub(from).Hours() / 24)
}
