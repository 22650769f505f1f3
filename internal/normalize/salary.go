package normalize

import (
	"regexp"
	"strconv"
	"strings"
)

// Annualize converts a salary figure quoted for the given period into an
// annual amount. Unknown periods are treated as annual.
func Annualize(amount float64, period string) float64 {
	switch strings.ToLower(strings.TrimSpace(period)) {
	case "hourly", "hour", "ph":
		return amount * 37.5 * 52
	case "daily", "day", "pd":
		return amount * 5 * 52
	case "weekly", "week", "pw":
		return amount * 52
	case "monthly", "month", "pm":
		return amount * 12
	default:
		return amount
	}
}

// AnnualRange annualizes an optional min/max salary pair in place.
func AnnualRange(min, max *float64, period string) (*float64, *float64) {
	var lo, hi *float64
	if min != nil {
		v := Annualize(*min, period)
		lo = &v
	}
	if max != nil {
		v := Annualize(*max, period)
		hi = &v
	}
	return lo, hi
}

// SalaryIncreasePct compares two salary ranges by midpoint and returns the
// percentage increase from old to new. It returns nil when either side has
// no data: nil means "unknown", which must not be conflated with a 0%
// "no increase".
func SalaryIncreasePct(oldMin, oldMax, newMin, newMax *float64) *float64 {
	oldMid := midpoint(oldMin, oldMax)
	newMid := midpoint(newMin, newMax)
	if oldMid == nil || newMid == nil || *oldMid <= 0 {
		return nil
	}
	pct := (*newMid - *oldMid) / *oldMid * 100
	return &pct
}

func midpoint(min, max *float64) *float64 {
	switch {
	case min != nil && max != nil:
		v := (*min + *max) / 2
		return &v
	case min != nil:
		return min
	case max != nil:
		return max
	default:
		return nil
	}
}

var (
	referralRe       = regexp.MustCompile(`(?i)referral\s+(bonus|scheme|reward|payment)`)
	referralAmountRe = regexp.MustCompile(`(?i)[£$€]\s?([\d,]+(?:\.\d+)?)[^.]{0,60}?referral|referral[^.]{0,60}?[£$€]\s?([\d,]+(?:\.\d+)?)`)
)

// DetectReferralBonus scans posting text for a referral bonus mention and
// extracts the advertised amount when one is quoted nearby.
func DetectReferralBonus(description string) (bool, *float64) {
	if description == "" || !referralRe.MatchString(description) {
		return false, nil
	}
	m := referralAmountRe.FindStringSubmatch(description)
	if m == nil {
		return true, nil
	}
	raw := m[1]
	if raw == "" {
		raw = m[2]
	}
	raw = strings.ReplaceAll(raw, ",", "")
	amount, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return true, nil
	}
	return true, &amount
}
