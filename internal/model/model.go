// Package model defines the canonical entities shared across the signal engine.
package model

import "time"

// Company is the canonical record a set of noisy observations resolves to.
// Identity fields are owned by the resolver, the score field by the aggregator.
type Company struct {
	ID             int64     `json:"id" db:"id"`
	Name           string    `json:"name" db:"name"`
	NormalizedName string    `json:"normalized_name" db:"normalized_name"`
	Domain         string    `json:"domain,omitempty" db:"domain"`
	RegistryNumber string    `json:"registry_number,omitempty" db:"registry_number"`
	Industry       string    `json:"industry,omitempty" db:"industry"`
	Region         string    `json:"region,omitempty" db:"region"`
	PainScore      int       `json:"pain_score" db:"pain_score"`
	LastActivityAt time.Time `json:"last_activity_at" db:"last_activity_at"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// JobPosting is one tracked advert for a role at a company. The fingerprint
// is unique among active postings; a repost is a new row linked to its
// predecessor, never a resurrection of the old one.
type JobPosting struct {
	ID                 int64      `json:"id" db:"id"`
	CompanyID          int64      `json:"company_id" db:"company_id"`
	Title              string     `json:"title" db:"title"`
	NormalizedTitle    string     `json:"normalized_title" db:"normalized_title"`
	Location           string     `json:"location,omitempty" db:"location"`
	NormalizedLocation string     `json:"normalized_location,omitempty" db:"normalized_location"`
	Fingerprint        string     `json:"fingerprint" db:"fingerprint"`
	PostedAt           time.Time  `json:"posted_at" db:"posted_at"`
	LastSeenAt         time.Time  `json:"last_seen_at" db:"last_seen_at"`
	Active             bool       `json:"active" db:"active"`
	RepostCount        int        `json:"repost_count" db:"repost_count"`
	PreviousPostingID  *int64     `json:"previous_posting_id,omitempty" db:"previous_posting_id"`
	SalaryMin          *float64   `json:"salary_min,omitempty" db:"salary_min"`
	SalaryMax          *float64   `json:"salary_max,omitempty" db:"salary_max"`
	SalaryIncreasePct  *float64   `json:"salary_increase_pct,omitempty" db:"salary_increase_pct"`
	ReferralBonus      bool       `json:"referral_bonus" db:"referral_bonus"`
	ReferralBonusAmt   *float64   `json:"referral_bonus_amount,omitempty" db:"referral_bonus_amount"`
	Source             string     `json:"source,omitempty" db:"source"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
}

// PainSignal is one typed, time-boxed observation of hiring difficulty.
// Signals are append-only: a changed classification resolves the old row
// and inserts a new one.
type PainSignal struct {
	ID          int64      `json:"id" db:"id"`
	CompanyID   int64      `json:"company_id" db:"company_id"`
	Type        SignalType `json:"type" db:"type"`
	PostingID   *int64     `json:"posting_id,omitempty" db:"posting_id"`
	ContractRef string     `json:"contract_ref,omitempty" db:"contract_ref"`
	Score       int        `json:"score" db:"score"`
	Urgency     Urgency    `json:"urgency" db:"urgency"`
	Active      bool       `json:"active" db:"active"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

// ContractAward is a public-sector contract win observed for a company.
type ContractAward struct {
	ID           int64     `json:"id" db:"id"`
	CompanyID    int64     `json:"company_id" db:"company_id"`
	SupplierName string    `json:"supplier_name" db:"supplier_name"`
	BuyerName    string    `json:"buyer_name,omitempty" db:"buyer_name"`
	Value        float64   `json:"value" db:"value"`
	AwardedAt    time.Time `json:"awarded_at" db:"awarded_at"`
	Reference    string    `json:"reference" db:"reference"`
	Source       string    `json:"source,omitempty" db:"source"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// RawPosting is an untrusted job observation from any provider. Fields may
// be missing or duplicated; the pipeline validates and normalizes.
type RawPosting struct {
	Title          string     `json:"title"`
	CompanyName    string     `json:"company_name"`
	CompanyDomain  string     `json:"company_domain,omitempty"`
	RegistryNumber string     `json:"registry_number,omitempty"`
	Location       string     `json:"location,omitempty"`
	Industry       string     `json:"industry,omitempty"`
	Region         string     `json:"region,omitempty"`
	PostedAt       time.Time  `json:"posted_at"`
	Description    string     `json:"description,omitempty"`
	SalaryMin      *float64   `json:"salary_min,omitempty"`
	SalaryMax      *float64   `json:"salary_max,omitempty"`
	SalaryPeriod   string     `json:"salary_period,omitempty"` // annual, monthly, weekly, daily, hourly
	Source         string     `json:"source"`
}

// RawContract is an untrusted contract-award observation.
type RawContract struct {
	SupplierName string    `json:"supplier_name"`
	BuyerName    string    `json:"buyer_name,omitempty"`
	Value        float64   `json:"value"`
	AwardedAt    time.Time `json:"awarded_at"`
	Reference    string    `json:"reference"`
	Source       string    `json:"source"`
}

// MatchType records which resolver strategy produced a company match.
type MatchType string

// Resolver match types, in cascade priority order.
const (
	MatchDomain   MatchType = "domain"
	MatchRegistry MatchType = "registry"
	MatchName     MatchType = "name"
	MatchFuzzy    MatchType = "fuzzy"
	MatchNew      MatchType = "new"
)

// Transition is the lifecycle outcome of observing a posting.
type Transition string

// Posting transitions.
const (
	TransitionNew       Transition = "new"
	TransitionRefreshed Transition = "refreshed"
	TransitionReposted  Transition = "reposted"
)

// SignalType is the closed taxonomy of pain signals.
type SignalType string

// Signal taxonomy.
const (
	SignalHardToFill30       SignalType = "hard_to_fill_30"
	SignalHardToFill60       SignalType = "hard_to_fill_60"
	SignalHardToFill90       SignalType = "hard_to_fill_90"
	SignalStaleJob30         SignalType = "stale_job_30"
	SignalStaleJob60         SignalType = "stale_job_60"
	SignalStaleJob90         SignalType = "stale_job_90"
	SignalJobRepostedOnce    SignalType = "job_reposted_once"
	SignalJobRepostedTwice   SignalType = "job_reposted_twice"
	SignalJobReposted3Plus   SignalType = "job_reposted_3plus"
	SignalSalaryIncrease10   SignalType = "salary_increase_10"
	SignalSalaryIncrease20   SignalType = "salary_increase_20"
	SignalHighReferralBonus  SignalType = "high_referral_bonus"
	SignalContractNoHiring30 SignalType = "contract_no_hiring_30d"
	SignalContractNoHiring60 SignalType = "contract_no_hiring_60d"
)

// Urgency is the outreach urgency tier attached to a signal.
type Urgency string

// Urgency tiers.
const (
	UrgencyImmediate  Urgency = "immediate"
	UrgencyShortTerm  Urgency = "short_term"
	UrgencyMediumTerm Urgency = "medium_term"
)

// SignalFamily groups signal types that are mutually exclusive for a single
// (company, posting) pair. At most one active signal per family per pair.
type SignalFamily string

// Signal families.
const (
	FamilyStaleness SignalFamily = "staleness"
	FamilyRepost    SignalFamily = "repost"
	FamilySalary    SignalFamily = "salary"
	FamilyReferral  SignalFamily = "referral"
	FamilyContract  SignalFamily = "contract"
)

// Family returns the exclusivity family for a signal type.
func (t SignalType) Family() SignalFamily {
	switch t {
	case SignalHardToFill30, SignalHardToFill60, SignalHardToFill90,
		SignalStaleJob30, SignalStaleJob60, SignalStaleJob90:
		return FamilyStaleness
	case SignalJobRepostedOnce, SignalJobRepostedTwice, SignalJobReposted3Plus:
		return FamilyRepost
	case SignalSalaryIncrease10, SignalSalaryIncrease20:
		return FamilySalary
	case SignalHighReferralBonus:
		return FamilyReferral
	case SignalContractNoHiring30, SignalContractNoHiring60:
		return FamilyContract
	}
	return ""
}
