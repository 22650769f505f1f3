// Package identity resolves noisy company observations to canonical records.
package identity

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/leadsignal/signals-cli/internal/model"
	"github.com/leadsignal/signals-cli/internal/normalize"
)

// CompanyStore is the slice of the store the resolver needs.
type CompanyStore interface {
	GetCompanyByDomain(ctx context.Context, domain string) (*model.Company, error)
	GetCompanyByRegistry(ctx context.Context, registryNumber string) (*model.Company, error)
	GetCompanyByNormalizedName(ctx context.Context, normalizedName string) (*model.Company, error)
	SearchCompaniesByToken(ctx context.Context, token string, limit int) ([]model.Company, error)
	CreateCompany(ctx context.Context, c *model.Company) error
}

// Match is the outcome of resolving one observation.
type Match struct {
	Company    *model.Company
	Type       model.MatchType
	Confidence float64
	Created    bool
}

// Resolver deduplicates company observations.
type Resolver struct {
	store          CompanyStore
	fuzzyThreshold float64
	candidateLimit int
}

// NewResolver creates a resolver. fuzzyThreshold is the minimum similarity
// (0-100) for a fuzzy name match; values <= 0 fall back to 85.
func NewResolver(store CompanyStore, fuzzyThreshold float64) *Resolver {
	if fuzzyThreshold <= 0 {
		fuzzyThreshold = 85
	}
	return &Resolver{
		store:          store,
		fuzzyThreshold: fuzzyThreshold,
		candidateLimit: 20,
	}
}

// Resolve finds or creates the canonical company for an observation.
//
// The cascade, strongest identifier first:
//  1. Exact domain match (confidence 1.0)
//  2. Registry number match (confidence 1.0)
//  3. Exact normalized-name match (confidence 1.0)
//  4. Fuzzy name match at or above the threshold (confidence sim/100)
//  5. Create a new company
//
// Passes 1-4 are read-only: a match never writes observed identity fields
// onto the matched company. A fuzzy match is a probabilistic guess, and
// grafting its domain or registry number onto the candidate would promote
// that guess to an authoritative identifier for every later observation —
// a false merge that cannot be unwound once signals accumulate.
//
// Read failures inside a pass degrade to the next pass; only the final
// create is fatal, so one flaky lookup cannot drop an observation.
func (r *Resolver) Resolve(ctx context.Context, obs model.RawPosting) (*Match, error) {
	name := strings.TrimSpace(obs.CompanyName)
	if name == "" {
		return nil, eris.New("identity: observation has no company name")
	}
	normalized := normalize.Name(name)
	if normalized == "" {
		return nil, eris.Errorf("identity: company name %q normalizes to nothing", name)
	}
	domain := normalizeDomain(obs.CompanyDomain)
	registry := strings.TrimSpace(obs.RegistryNumber)

	// Pass 1: domain.
	if domain != "" {
		existing, err := r.store.GetCompanyByDomain(ctx, domain)
		if err != nil {
			zap.L().Warn("resolve: domain lookup failed", zap.Error(err))
		} else if existing != nil {
			zap.L().Debug("resolve: matched by domain",
				zap.String("domain", domain),
				zap.Int64("company_id", existing.ID))
			return &Match{Company: existing, Type: model.MatchDomain, Confidence: 1.0}, nil
		}
	}

	// Pass 2: registry number.
	if registry != "" {
		existing, err := r.store.GetCompanyByRegistry(ctx, registry)
		if err != nil {
			zap.L().Warn("resolve: registry lookup failed", zap.Error(err))
		} else if existing != nil {
			zap.L().Debug("resolve: matched by registry",
				zap.String("registry_number", registry),
				zap.Int64("company_id", existing.ID))
			return &Match{Company: existing, Type: model.MatchRegistry, Confidence: 1.0}, nil
		}
	}

	// Pass 3: exact normalized name.
	existing, err := r.store.GetCompanyByNormalizedName(ctx, normalized)
	if err != nil {
		zap.L().Warn("resolve: name lookup failed", zap.Error(err))
	} else if existing != nil {
		zap.L().Debug("resolve: matched by normalized name",
			zap.String("normalized_name", normalized),
			zap.Int64("company_id", existing.ID))
		return &Match{Company: existing, Type: model.MatchName, Confidence: 1.0}, nil
	}

	// Pass 4: fuzzy match over candidates sharing the first token.
	if best, sim := r.fuzzyMatch(ctx, normalized); best != nil {
		zap.L().Debug("resolve: fuzzy match",
			zap.String("observed", normalized),
			zap.String("matched", best.NormalizedName),
			zap.Float64("similarity", sim),
			zap.Int64("company_id", best.ID))
		return &Match{Company: best, Type: model.MatchFuzzy, Confidence: sim / 100}, nil
	}

	// Pass 5: create.
	created := &model.Company{
		Name:           name,
		NormalizedName: normalized,
		Domain:         domain,
		RegistryNumber: registry,
		Industry:       obs.Industry,
		Region:         obs.Region,
		LastActivityAt: obs.PostedAt.UTC(),
	}
	if err := r.store.CreateCompany(ctx, created); err != nil {
		return nil, eris.Wrap(err, "identity: create company")
	}

	zap.L().Info("resolve: created new company",
		zap.String("name", name),
		zap.String("normalized_name", normalized),
		zap.Int64("company_id", created.ID))

	return &Match{Company: created, Type: model.MatchNew, Confidence: 1.0, Created: true}, nil
}

func (r *Resolver) fuzzyMatch(ctx context.Context, normalized string) (*model.Company, float64) {
	token := normalize.FirstToken(normalized)
	if token == "" {
		return nil, 0
	}

	candidates, err := r.store.SearchCompaniesByToken(ctx, token, r.candidateLimit)
	if err != nil {
		zap.L().Warn("resolve: candidate search failed", zap.Error(err))
		return nil, 0
	}

	var best *model.Company
	var bestSim float64
	for i := range candidates {
		sim := normalize.Similarity(normalized, candidates[i].NormalizedName)
		if sim >= r.fuzzyThreshold && sim > bestSim {
			best = &candidates[i]
			bestSim = sim
		}
	}
	return best, bestSim
}

// normalizeDomain strips protocol and www prefix from a domain or URL.
func normalizeDomain(raw string) string {
	d := strings.TrimSpace(raw)
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	d = strings.TrimPrefix(d, "www.")
	if i := strings.IndexByte(d, '/'); i >= 0 {
		d = d[:i]
	}
	return strings.ToLower(d)
}
