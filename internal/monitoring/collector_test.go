package monitoring

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadsignal/signals-cli/internal/model"
	"github.com/leadsignal/signals-cli/internal/store"
)

func newCollectorStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "monitoring.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

type stubBudget struct {
	usage     map[string]int
	remaining map[string]int
}

func (s *stubBudget) Usage() map[string]int { return s.usage }
func (s *stubBudget) Remaining(provider string) int {
	r, ok := s.remaining[provider]
	if !ok {
		return -1
	}
	return r
}

func TestCollector_EmptyStore(t *testing.T) {
	c := NewCollector(newCollectorStore(t), nil)

	snap, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Companies)
	assert.Equal(t, 0, snap.DLQDepth)
	assert.Nil(t, snap.BudgetUsed)
	assert.False(t, snap.CollectedAt.IsZero())
}

func TestCollector_ReflectsStoreState(t *testing.T) {
	st := newCollectorStore(t)
	ctx := context.Background()

	company := &model.Company{
		Name:           "Wates Group",
		NormalizedName: "wates group",
		PainScore:      40,
		LastActivityAt: time.Now().UTC(),
	}
	require.NoError(t, st.CreateCompany(ctx, company))

	posting := &model.JobPosting{
		CompanyID:       company.ID,
		Title:           "Quantity Surveyor",
		NormalizedTitle: "quantity surveyor",
		Fingerprint:     "fp-qs-1",
		PostedAt:        time.Now().UTC().AddDate(0, 0, -10),
		LastSeenAt:      time.Now().UTC(),
		Active:          true,
	}
	created, err := st.InsertPosting(ctx, posting)
	require.NoError(t, err)
	require.True(t, created)

	require.NoError(t, st.InsertSignal(ctx, &model.PainSignal{
		CompanyID: company.ID,
		Type:      model.SignalHardToFill30,
		PostingID: &posting.ID,
		Score:     8,
		Urgency:   model.UrgencyShortTerm,
		Active:    true,
	}))

	c := NewCollector(st, &stubBudget{
		usage:     map[string]int{"adzuna": 100},
		remaining: map[string]int{"adzuna": 2400},
	})

	snap, err := c.Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Companies)
	assert.Equal(t, 1, snap.ActivePostings)
	assert.Equal(t, 1, snap.ActiveSignals)
	assert.Equal(t, 40, snap.MaxPainScore)
	assert.Equal(t, 100, snap.BudgetUsed["adzuna"])
	assert.Equal(t, 2400, snap.BudgetRemaining["adzuna"])
}
