package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func TestAnnualize(t *testing.T) {
	tests := []struct {
		period   string
		amount   float64
		expected float64
	}{
		{"annual", 45000, 45000},
		{"", 45000, 45000},
		{"monthly", 3000, 36000},
		{"weekly", 800, 41600},
		{"daily", 200, 52000},
		{"hourly", 20, 39000},
	}

	for _, tt := range tests {
		t.Run(tt.period, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Annualize(tt.amount, tt.period), 0.001)
		})
	}
}

func TestSalaryIncreasePct(t *testing.T) {
	pct := SalaryIncreasePct(ptr(40000), ptr(50000), ptr(50000), ptr(60000))
	require.NotNil(t, pct)
	assert.InDelta(t, 22.22, *pct, 0.01)

	// Single-sided ranges use the one figure available.
	pct = SalaryIncreasePct(ptr(40000), nil, ptr(44000), nil)
	require.NotNil(t, pct)
	assert.InDelta(t, 10.0, *pct, 0.001)
}

func TestSalaryIncreasePctUnknownIsNil(t *testing.T) {
	// No predecessor data: unknown, not 0%.
	assert.Nil(t, SalaryIncreasePct(nil, nil, ptr(45000), nil))
	// No successor data either way.
	assert.Nil(t, SalaryIncreasePct(ptr(45000), nil, nil, nil))
}

func TestDetectReferralBonus(t *testing.T) {
	found, amount := DetectReferralBonus("We offer a £2,000 referral bonus for successful hires.")
	assert.True(t, found)
	require.NotNil(t, amount)
	assert.InDelta(t, 2000.0, *amount, 0.001)

	found, amount = DetectReferralBonus("Referral bonus available, ask for details.")
	assert.True(t, found)
	assert.Nil(t, amount)

	found, amount = DetectReferralBonus("Great benefits and a company car.")
	assert.False(t, found)
	assert.Nil(t, amount)

	found, amount = DetectReferralBonus("Generous referral scheme paying $1500 per hire.")
	assert.True(t, found)
	require.NotNil(t, amount)
	assert.InDelta(t, 1500.0, *amount, 0.001)
}
