// Package signal converts lifecycle observations into typed pain signals
// and keeps company scores consistent with the active signal set.
package signal

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/leadsignal/signals-cli/internal/model"
)

// Entry is one taxonomy row: the score contribution and urgency tier of a
// signal type.
type Entry struct {
	Score   int           `yaml:"score"`
	Urgency model.Urgency `yaml:"urgency"`
}

// Taxonomy maps every signal type to its contribution. The table is fixed
// per deployment, not per tenant.
type Taxonomy map[model.SignalType]Entry

// DefaultTaxonomy returns the built-in signal table.
func DefaultTaxonomy() Taxonomy {
	return Taxonomy{
		model.SignalHardToFill30:       {Score: 8, Urgency: model.UrgencyShortTerm},
		model.SignalHardToFill60:       {Score: 20, Urgency: model.UrgencyImmediate},
		model.SignalHardToFill90:       {Score: 35, Urgency: model.UrgencyImmediate},
		model.SignalStaleJob30:         {Score: 5, Urgency: model.UrgencyMediumTerm},
		model.SignalStaleJob60:         {Score: 15, Urgency: model.UrgencyShortTerm},
		model.SignalStaleJob90:         {Score: 25, Urgency: model.UrgencyImmediate},
		model.SignalJobRepostedOnce:    {Score: 10, Urgency: model.UrgencyImmediate},
		model.SignalJobRepostedTwice:   {Score: 20, Urgency: model.UrgencyImmediate},
		model.SignalJobReposted3Plus:   {Score: 30, Urgency: model.UrgencyImmediate},
		model.SignalSalaryIncrease10:   {Score: 15, Urgency: model.UrgencyImmediate},
		model.SignalSalaryIncrease20:   {Score: 25, Urgency: model.UrgencyImmediate},
		model.SignalHighReferralBonus:  {Score: 15, Urgency: model.UrgencyShortTerm},
		model.SignalContractNoHiring30: {Score: 20, Urgency: model.UrgencyImmediate},
		model.SignalContractNoHiring60: {Score: 35, Urgency: model.UrgencyImmediate},
	}
}

// LoadTaxonomy reads a taxonomy override file. Types missing from the file
// keep their defaults; unknown types are rejected.
func LoadTaxonomy(path string) (Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "signal: read taxonomy %s", path)
	}

	var overrides map[model.SignalType]Entry
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, eris.Wrapf(err, "signal: parse taxonomy %s", path)
	}

	tax := DefaultTaxonomy()
	for typ, entry := range overrides {
		if _, known := tax[typ]; !known {
			return nil, eris.Errorf("signal: unknown signal type %q in %s", typ, path)
		}
		tax[typ] = entry
	}
	return tax, nil
}
