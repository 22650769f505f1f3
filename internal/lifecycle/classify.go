package lifecycle

import (
	"time"

	"github.com/leadsignal/signals-cli/internal/model"
)

// Classify buckets an active posting by how long it has been open and
// whether it is still being refreshed. A posting open 30+ days that was
// seen within the refresh window is hard-to-fill (the company keeps paying
// to advertise it); one that stopped being refreshed is stale. Postings
// younger than 30 days carry no staleness classification.
func (t *Tracker) Classify(p *model.JobPosting, now time.Time) (model.SignalType, bool) {
	if p == nil || !p.Active {
		return "", false
	}

	daysOpen := daysBetween(p.PostedAt, now)
	if daysOpen < 30 {
		return "", false
	}

	fresh := now.Sub(p.LastSeenAt) <= t.cfg.RefreshWindow

	switch {
	case daysOpen >= 90:
		if fresh {
			return model.SignalHardToFill90, true
		}
		return model.SignalStaleJob90, true
	case daysOpen >= 60:
		if fresh {
			return model.SignalHardToFill60, true
		}
		return model.SignalStaleJob60, true
	default:
		if fresh {
			return model.SignalHardToFill30, true
		}
		return model.SignalStaleJob30, true
	}
}

// RepostSignal maps a repost count onto its signal tier.
func RepostSignal(repostCount int) (model.SignalType, bool) {
	switch {
	case repostCount >= 3:
		return model.SignalJobReposted3Plus, true
	case repostCount == 2:
		return model.SignalJobRepostedTwice, true
	case repostCount == 1:
		return model.SignalJobRepostedOnce, true
	default:
		return "", false
	}
}

// SalarySignal maps a salary increase percentage onto its signal tier.
// A nil increase means "unknown", which never produces a signal.
func SalarySignal(increasePct *float64) (model.SignalType, bool) {
	if increasePct == nil {
		return "", false
	}
	switch {
	case *increasePct >= 20:
		return model.SignalSalaryIncrease20, true
	case *increasePct >= 10:
		return model.SignalSalaryIncrease10, true
	default:
		return "", false
	}
}
