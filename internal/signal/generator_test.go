package signal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadsignal/signals-cli/internal/model"
)

// mockSignalStore is a hand-rolled in-memory SignalStore and ScoreStore.
type mockSignalStore struct {
	signals       []model.PainSignal
	nextID        int64
	postingCounts map[string]int // "companyID:from" → postings in window
	scores        map[int64]int
}

func newMockSignalStore() *mockSignalStore {
	return &mockSignalStore{
		postingCounts: make(map[string]int),
		scores:        make(map[int64]int),
	}
}

func (m *mockSignalStore) InsertSignal(_ context.Context, s *model.PainSignal) error {
	m.nextID++
	s.ID = m.nextID
	s.CreatedAt = time.Now().UTC()
	m.signals = append(m.signals, *s)
	return nil
}

func (m *mockSignalStore) ResolveSignal(_ context.Context, id int64, at time.Time) error {
	for i := range m.signals {
		if m.signals[i].ID == id && m.signals[i].Active {
			m.signals[i].Active = false
			m.signals[i].ResolvedAt = &at
		}
	}
	return nil
}

func (m *mockSignalStore) GetActivePostingSignal(_ context.Context, postingID int64, family model.SignalFamily) (*model.PainSignal, error) {
	for i := range m.signals {
		s := m.signals[i]
		if s.Active && s.PostingID != nil && *s.PostingID == postingID && s.Type.Family() == family {
			return &s, nil
		}
	}
	return nil, nil
}

func (m *mockSignalStore) HasPostingSignal(_ context.Context, postingID int64, family model.SignalFamily) (bool, error) {
	for _, s := range m.signals {
		if s.PostingID != nil && *s.PostingID == postingID && s.Type.Family() == family {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockSignalStore) GetActiveContractSignal(_ context.Context, companyID int64, ref string) (*model.PainSignal, error) {
	for i := range m.signals {
		s := m.signals[i]
		if s.Active && s.CompanyID == companyID && s.ContractRef == ref {
			return &s, nil
		}
	}
	return nil, nil
}

func (m *mockSignalStore) CountPostingsInWindow(_ context.Context, companyID int64, from, _ time.Time) (int, error) {
	return m.postingCounts[windowKey(companyID, from)], nil
}

func (m *mockSignalStore) SumActiveSignalScores(_ context.Context, companyID int64) (int, error) {
	sum := 0
	for _, s := range m.signals {
		if s.Active && s.CompanyID == companyID {
			sum += s.Score
		}
	}
	return sum, nil
}

func (m *mockSignalStore) UpdateCompanyScore(_ context.Context, id int64, score int, _ time.Time) error {
	m.scores[id] = score
	return nil
}

func (m *mockSignalStore) activeFor(postingID int64) []model.PainSignal {
	var out []model.PainSignal
	for _, s := range m.signals {
		if s.Active && s.PostingID != nil && *s.PostingID == postingID {
			out = append(out, s)
		}
	}
	return out
}

func windowKey(companyID int64, from time.Time) string {
	return fmt.Sprintf("%d:%s", companyID, from.Format("2006-01-02"))
}

func posting(id, companyID int64) *model.JobPosting {
	return &model.JobPosting{ID: id, CompanyID: companyID, Active: true}
}

func TestProcess_StalenessEscalation(t *testing.T) {
	st := newMockSignalStore()
	g := NewGenerator(st, nil)
	ctx := context.Background()
	p := posting(1, 7)

	// Day 31: hard_to_fill_30 appears.
	emitted, err := g.Process(ctx, p, model.SignalHardToFill30)
	require.NoError(t, err)
	require.Len(t, emitted, 1)
	assert.Equal(t, model.SignalHardToFill30, emitted[0].Type)
	assert.Equal(t, 8, emitted[0].Score)
	assert.Equal(t, model.UrgencyShortTerm, emitted[0].Urgency)

	// Re-observation at the same tier is a no-op.
	emitted, err = g.Process(ctx, p, model.SignalHardToFill30)
	require.NoError(t, err)
	assert.Empty(t, emitted)
	assert.Len(t, st.activeFor(1), 1)

	// Day 61: the 30 tier resolves, the 60 tier inserts.
	emitted, err = g.Process(ctx, p, model.SignalHardToFill60)
	require.NoError(t, err)
	require.Len(t, emitted, 1)
	assert.Equal(t, model.SignalHardToFill60, emitted[0].Type)

	active := st.activeFor(1)
	require.Len(t, active, 1, "exactly one active staleness signal at all times")
	assert.Equal(t, model.SignalHardToFill60, active[0].Type)

	// The resolved row keeps its history.
	var resolved int
	for _, s := range st.signals {
		if !s.Active {
			resolved++
			assert.NotNil(t, s.ResolvedAt)
		}
	}
	assert.Equal(t, 1, resolved)
}

func TestProcess_RepostTier(t *testing.T) {
	st := newMockSignalStore()
	g := NewGenerator(st, nil)
	ctx := context.Background()

	p := posting(2, 7)
	p.RepostCount = 1
	emitted, err := g.Process(ctx, p, "")
	require.NoError(t, err)
	require.Len(t, emitted, 1)
	assert.Equal(t, model.SignalJobRepostedOnce, emitted[0].Type)
	assert.Equal(t, 10, emitted[0].Score)
}

func TestProcess_SalaryOneTime(t *testing.T) {
	st := newMockSignalStore()
	g := NewGenerator(st, nil)
	ctx := context.Background()

	pct := 22.0
	p := posting(3, 7)
	p.RepostCount = 1
	p.SalaryIncreasePct = &pct

	emitted, err := g.Process(ctx, p, "")
	require.NoError(t, err)
	require.Len(t, emitted, 2) // repost + salary

	types := map[model.SignalType]bool{}
	for _, s := range emitted {
		types[s.Type] = true
	}
	assert.True(t, types[model.SignalJobRepostedOnce])
	assert.True(t, types[model.SignalSalaryIncrease20])

	// Re-observation: salary signal is never re-emitted.
	emitted, err = g.Process(ctx, p, "")
	require.NoError(t, err)
	assert.Empty(t, emitted)
}

func TestProcess_SalaryNilNeverSignals(t *testing.T) {
	st := newMockSignalStore()
	g := NewGenerator(st, nil)

	p := posting(4, 7)
	p.RepostCount = 1
	p.SalaryIncreasePct = nil

	emitted, err := g.Process(context.Background(), p, "")
	require.NoError(t, err)
	require.Len(t, emitted, 1)
	assert.Equal(t, model.SignalJobRepostedOnce, emitted[0].Type)
}

func TestProcess_ReferralOneTime(t *testing.T) {
	st := newMockSignalStore()
	g := NewGenerator(st, nil)
	ctx := context.Background()

	p := posting(5, 7)
	p.ReferralBonus = true

	emitted, err := g.Process(ctx, p, "")
	require.NoError(t, err)
	require.Len(t, emitted, 1)
	assert.Equal(t, model.SignalHighReferralBonus, emitted[0].Type)

	emitted, err = g.Process(ctx, p, "")
	require.NoError(t, err)
	assert.Empty(t, emitted)
}

func TestEvaluateContract(t *testing.T) {
	st := newMockSignalStore()
	g := NewGenerator(st, nil)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	g.nowFunc = func() time.Time { return now }
	ctx := context.Background()

	award := &model.ContractAward{
		CompanyID: 7, Reference: "ocds-001", Value: 500000,
		AwardedAt: now.AddDate(0, 0, -35),
	}

	// 35 days in, zero postings since the award: 30d tier fires.
	sig, resolved, err := g.EvaluateContract(ctx, award)
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.False(t, resolved)
	assert.Equal(t, model.SignalContractNoHiring30, sig.Type)
	assert.Equal(t, 20, sig.Score)

	// Re-evaluation at the same tier is a no-op.
	sig, resolved, err = g.EvaluateContract(ctx, award)
	require.NoError(t, err)
	assert.Nil(t, sig)
	assert.False(t, resolved)

	// 65 days in: escalates to the 60d tier, resolving the 30d signal.
	now = award.AwardedAt.AddDate(0, 0, 65)
	sig, _, err = g.EvaluateContract(ctx, award)
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, model.SignalContractNoHiring60, sig.Type)

	var active []model.PainSignal
	for _, s := range st.signals {
		if s.Active {
			active = append(active, s)
		}
	}
	require.Len(t, active, 1)
	assert.Equal(t, model.SignalContractNoHiring60, active[0].Type)
}

func TestEvaluateContract_HiringSuppressesSignal(t *testing.T) {
	st := newMockSignalStore()
	g := NewGenerator(st, nil)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	g.nowFunc = func() time.Time { return now }

	award := &model.ContractAward{
		CompanyID: 7, Reference: "ocds-002", Value: 500000,
		AwardedAt: now.AddDate(0, 0, -35),
	}
	st.postingCounts[windowKey(award.CompanyID, award.AwardedAt)] = 3

	sig, resolved, err := g.EvaluateContract(context.Background(), award)
	require.NoError(t, err)
	assert.Nil(t, sig)
	assert.False(t, resolved)
}

func TestEvaluateContract_LatePostingsResolveSignal(t *testing.T) {
	st := newMockSignalStore()
	g := NewGenerator(st, nil)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	g.nowFunc = func() time.Time { return now }
	ctx := context.Background()

	award := &model.ContractAward{
		CompanyID: 7, Reference: "ocds-004", Value: 500000,
		AwardedAt: now.AddDate(0, 0, -35),
	}

	sig, resolved, err := g.EvaluateContract(ctx, award)
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.False(t, resolved)
	assert.Equal(t, model.SignalContractNoHiring30, sig.Type)

	// Posting data for the window arrives after the signal was emitted.
	// The next reconciliation must resolve it, not leave it active.
	st.postingCounts[windowKey(award.CompanyID, award.AwardedAt)] = 1

	sig, resolved, err = g.EvaluateContract(ctx, award)
	require.NoError(t, err)
	assert.Nil(t, sig)
	assert.True(t, resolved)

	for _, s := range st.signals {
		assert.False(t, s.Active, "refuted contract signal left active")
	}

	// A further pass is a no-op: nothing to emit, nothing to resolve.
	sig, resolved, err = g.EvaluateContract(ctx, award)
	require.NoError(t, err)
	assert.Nil(t, sig)
	assert.False(t, resolved)
}

func TestEvaluateContract_TooEarly(t *testing.T) {
	st := newMockSignalStore()
	g := NewGenerator(st, nil)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	g.nowFunc = func() time.Time { return now }

	award := &model.ContractAward{
		CompanyID: 7, Reference: "ocds-003", Value: 500000,
		AwardedAt: now.AddDate(0, 0, -10),
	}

	sig, resolved, err := g.EvaluateContract(context.Background(), award)
	require.NoError(t, err)
	assert.Nil(t, sig)
	assert.False(t, resolved)
}

func TestRecalculate_CapsAtHundred(t *testing.T) {
	st := newMockSignalStore()
	g := NewGenerator(st, nil)
	a := NewAggregator(st)
	ctx := context.Background()

	// Signals across postings summing well past 100.
	for i := int64(1); i <= 5; i++ {
		p := posting(i, 7)
		_, err := g.Process(ctx, p, model.SignalHardToFill90) // 35 each
		require.NoError(t, err)
	}

	score, err := a.Recalculate(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 100, score)
	assert.Equal(t, 100, st.scores[7])
}

func TestRecalculate_DropsWithResolution(t *testing.T) {
	st := newMockSignalStore()
	g := NewGenerator(st, nil)
	a := NewAggregator(st)
	ctx := context.Background()

	p := posting(1, 7)
	emitted, err := g.Process(ctx, p, model.SignalHardToFill90)
	require.NoError(t, err)
	require.Len(t, emitted, 1)

	score, err := a.Recalculate(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 35, score)

	require.NoError(t, st.ResolveSignal(ctx, emitted[0].ID, time.Now().UTC()))
	score, err = a.Recalculate(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 0, score)
}

func TestLoadTaxonomy_Override(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taxonomy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("hard_to_fill_30:\n  score: 12\n  urgency: immediate\n"), 0o644))

	tax, err := LoadTaxonomy(path)
	require.NoError(t, err)
	assert.Equal(t, 12, tax[model.SignalHardToFill30].Score)
	assert.Equal(t, model.UrgencyImmediate, tax[model.SignalHardToFill30].Urgency)
	// Untouched types keep defaults.
	assert.Equal(t, 35, tax[model.SignalHardToFill90].Score)
}

func TestLoadTaxonomy_UnknownType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taxonomy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("not_a_signal:\n  score: 1\n  urgency: immediate\n"), 0o644))

	_, err := LoadTaxonomy(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown signal type")
}
