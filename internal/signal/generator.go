package signal

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/leadsignal/signals-cli/internal/lifecycle"
	"github.com/leadsignal/signals-cli/internal/model"
)

// SignalStore is the slice of the store the generator needs.
type SignalStore interface {
	InsertSignal(ctx context.Context, s *model.PainSignal) error
	ResolveSignal(ctx context.Context, id int64, at time.Time) error
	GetActivePostingSignal(ctx context.Context, postingID int64, family model.SignalFamily) (*model.PainSignal, error)
	HasPostingSignal(ctx context.Context, postingID int64, family model.SignalFamily) (bool, error)
	GetActiveContractSignal(ctx context.Context, companyID int64, contractRef string) (*model.PainSignal, error)
	CountPostingsInWindow(ctx context.Context, companyID int64, from, to time.Time) (int, error)
}

// Generator maps lifecycle state onto the signal taxonomy. All signal
// transitions are resolve-then-insert; rows are never mutated beyond the
// active→resolved flip.
type Generator struct {
	store    SignalStore
	taxonomy Taxonomy
	nowFunc  func() time.Time
}

// NewGenerator creates a generator with the given taxonomy.
func NewGenerator(store SignalStore, taxonomy Taxonomy) *Generator {
	if taxonomy == nil {
		taxonomy = DefaultTaxonomy()
	}
	return &Generator{store: store, taxonomy: taxonomy, nowFunc: time.Now}
}

// Process evaluates every posting-scoped rule for one observed posting and
// returns the signals emitted. classification is the staleness-family
// outcome of lifecycle classification, empty when the posting is too young.
func (g *Generator) Process(ctx context.Context, p *model.JobPosting, classification model.SignalType) ([]model.PainSignal, error) {
	var emitted []model.PainSignal

	// Rule 1: staleness family. A changed classification resolves the old
	// signal and inserts the new tier; an unchanged one is a no-op.
	if classification != "" {
		sig, err := g.replaceFamilySignal(ctx, p, classification)
		if err != nil {
			return emitted, err
		}
		if sig != nil {
			emitted = append(emitted, *sig)
		}
	}

	// Rule 2: repost tier, same replace semantics.
	if repostType, ok := lifecycle.RepostSignal(p.RepostCount); ok {
		sig, err := g.replaceFamilySignal(ctx, p, repostType)
		if err != nil {
			return emitted, err
		}
		if sig != nil {
			emitted = append(emitted, *sig)
		}
	}

	// Rule 3: salary escalation is a one-time event relative to the
	// predecessor, so it is emitted at most once per posting, ever.
	if salaryType, ok := lifecycle.SalarySignal(p.SalaryIncreasePct); ok {
		sig, err := g.emitOnce(ctx, p, salaryType)
		if err != nil {
			return emitted, err
		}
		if sig != nil {
			emitted = append(emitted, *sig)
		}
	}

	// Rule 4: referral bonus, also one-time per posting.
	if p.ReferralBonus {
		sig, err := g.emitOnce(ctx, p, model.SignalHighReferralBonus)
		if err != nil {
			return emitted, err
		}
		if sig != nil {
			emitted = append(emitted, *sig)
		}
	}

	return emitted, nil
}

// EvaluateContract applies the no-hiring rule to one contract award: a
// large award followed by zero postings within 30/60 days of the award
// date escalates through the contract family. When the condition no longer
// holds — late-arriving posting data shows hiring inside the window — an
// active signal for the award is resolved. The bool reports that a signal
// was resolved without a replacement, so callers know to rescore.
func (g *Generator) EvaluateContract(ctx context.Context, award *model.ContractAward) (*model.PainSignal, bool, error) {
	now := g.nowFunc().UTC()

	target, err := g.contractTier(ctx, award, now)
	if err != nil {
		return nil, false, err
	}

	existing, err := g.store.GetActiveContractSignal(ctx, award.CompanyID, award.Reference)
	if err != nil {
		return nil, false, eris.Wrap(err, "signal: contract signal lookup")
	}

	if target == "" {
		if existing == nil {
			return nil, false, nil
		}
		if err := g.store.ResolveSignal(ctx, existing.ID, now); err != nil {
			return nil, false, eris.Wrap(err, "signal: resolve refuted contract signal")
		}
		zap.L().Debug("contract signal resolved, hiring observed in window",
			zap.Int64("company_id", award.CompanyID),
			zap.String("contract_ref", award.Reference))
		return nil, true, nil
	}

	if existing != nil {
		if existing.Type == target {
			return nil, false, nil
		}
		if err := g.store.ResolveSignal(ctx, existing.ID, now); err != nil {
			return nil, false, eris.Wrap(err, "signal: resolve contract signal")
		}
	}

	sig, err := g.insert(ctx, model.PainSignal{
		CompanyID:   award.CompanyID,
		Type:        target,
		ContractRef: award.Reference,
	})
	if err != nil {
		return nil, false, err
	}
	return sig, false, nil
}

// contractTier picks the deepest elapsed window with zero postings. An
// empty type means no tier applies: either no window has elapsed yet, or
// hiring activity inside the longest elapsed window refutes the whole
// family (shorter windows end earlier and are covered by the same
// postings).
func (g *Generator) contractTier(ctx context.Context, award *model.ContractAward, now time.Time) (model.SignalType, error) {
	for _, tier := range []struct {
		window time.Duration
		typ    model.SignalType
	}{
		{60 * 24 * time.Hour, model.SignalContractNoHiring60},
		{30 * 24 * time.Hour, model.SignalContractNoHiring30},
	} {
		windowEnd := award.AwardedAt.Add(tier.window)
		if now.Before(windowEnd) {
			continue
		}
		n, err := g.store.CountPostingsInWindow(ctx, award.CompanyID, award.AwardedAt, windowEnd)
		if err != nil {
			return "", eris.Wrap(err, "signal: count postings in window")
		}
		if n == 0 {
			return tier.typ, nil
		}
		return "", nil
	}
	return "", nil
}

// replaceFamilySignal keeps the at-most-one-active-per-family invariant:
// if the active signal already has the target type nothing happens,
// otherwise it is resolved and the new tier inserted.
func (g *Generator) replaceFamilySignal(ctx context.Context, p *model.JobPosting, target model.SignalType) (*model.PainSignal, error) {
	existing, err := g.store.GetActivePostingSignal(ctx, p.ID, target.Family())
	if err != nil {
		return nil, eris.Wrap(err, "signal: family lookup")
	}
	if existing != nil {
		if existing.Type == target {
			return nil, nil
		}
		if err := g.store.ResolveSignal(ctx, existing.ID, g.nowFunc().UTC()); err != nil {
			return nil, eris.Wrap(err, "signal: resolve superseded signal")
		}
	}

	return g.insert(ctx, model.PainSignal{
		CompanyID: p.CompanyID,
		Type:      target,
		PostingID: &p.ID,
	})
}

// emitOnce inserts a signal unless one of its family was ever emitted for
// the posting, active or resolved.
func (g *Generator) emitOnce(ctx context.Context, p *model.JobPosting, target model.SignalType) (*model.PainSignal, error) {
	seen, err := g.store.HasPostingSignal(ctx, p.ID, target.Family())
	if err != nil {
		return nil, eris.Wrap(err, "signal: one-time lookup")
	}
	if seen {
		return nil, nil
	}

	return g.insert(ctx, model.PainSignal{
		CompanyID: p.CompanyID,
		Type:      target,
		PostingID: &p.ID,
	})
}

func (g *Generator) insert(ctx context.Context, sig model.PainSignal) (*model.PainSignal, error) {
	entry, ok := g.taxonomy[sig.Type]
	if !ok {
		return nil, eris.Errorf("signal: type %q missing from taxonomy", sig.Type)
	}
	sig.Score = entry.Score
	sig.Urgency = entry.Urgency
	sig.Active = true

	if err := g.store.InsertSignal(ctx, &sig); err != nil {
		return nil, eris.Wrap(err, "signal: insert")
	}

	zap.L().Debug("signal emitted",
		zap.Int64("company_id", sig.CompanyID),
		zap.String("type", string(sig.Type)),
		zap.Int("score", sig.Score))
	return &sig, nil
}
