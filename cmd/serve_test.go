package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadsignal/signals-cli/internal/model"
	"github.com/leadsignal/signals-cli/internal/monitoring"
	"github.com/leadsignal/signals-cli/internal/store"
)

func newServeStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "serve.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func seedCompany(t *testing.T, st store.Store, name string, score int) *model.Company {
	t.Helper()
	ctx := context.Background()
	c := &model.Company{
		Name:           name,
		NormalizedName: name,
		LastActivityAt: time.Now().UTC(),
	}
	require.NoError(t, st.CreateCompany(ctx, c))
	require.NoError(t, st.UpdateCompanyScore(ctx, c.ID, score, time.Now().UTC()))
	c.PainScore = score
	return c
}

func doGet(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Health(t *testing.T) {
	st := newServeStore(t)
	r := newRouter(st, monitoring.NewCollector(st, nil))

	rec := doGet(t, r, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRouter_Metrics(t *testing.T) {
	st := newServeStore(t)
	seedCompany(t, st, "wates group", 40)
	r := newRouter(st, monitoring.NewCollector(st, nil))

	rec := doGet(t, r, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap monitoring.MetricsSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, 1, snap.Companies)
	assert.Equal(t, 40, snap.MaxPainScore)
}

func TestRouter_CompaniesOrderedByScore(t *testing.T) {
	st := newServeStore(t)
	seedCompany(t, st, "low ltd", 5)
	high := seedCompany(t, st, "high ltd", 90)
	r := newRouter(st, monitoring.NewCollector(st, nil))

	rec := doGet(t, r, "/companies?limit=10")
	require.Equal(t, http.StatusOK, rec.Code)

	var companies []model.Company
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &companies))
	require.Len(t, companies, 2)
	assert.Equal(t, high.ID, companies[0].ID)
}

func TestRouter_CompanyByID(t *testing.T) {
	st := newServeStore(t)
	c := seedCompany(t, st, "kier group", 25)
	r := newRouter(st, monitoring.NewCollector(st, nil))

	rec := doGet(t, r, "/companies/"+itoa(c.ID))
	require.Equal(t, http.StatusOK, rec.Code)

	var got model.Company
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, c.ID, got.ID)
	assert.Equal(t, "kier group", got.Name)
}

func TestRouter_CompanyNotFound(t *testing.T) {
	st := newServeStore(t)
	r := newRouter(st, monitoring.NewCollector(st, nil))

	assert.Equal(t, http.StatusNotFound, doGet(t, r, "/companies/999").Code)
	assert.Equal(t, http.StatusBadRequest, doGet(t, r, "/companies/abc").Code)
}

func TestRouter_CompanySignals(t *testing.T) {
	st := newServeStore(t)
	ctx := context.Background()
	c := seedCompany(t, st, "costain group", 20)
	require.NoError(t, st.InsertSignal(ctx, &model.PainSignal{
		CompanyID:   c.ID,
		Type:        model.SignalContractNoHiring30,
		ContractRef: "CF-1",
		Score:       20,
		Urgency:     model.UrgencyImmediate,
		Active:      true,
	}))
	r := newRouter(st, monitoring.NewCollector(st, nil))

	rec := doGet(t, r, "/companies/"+itoa(c.ID)+"/signals")
	require.Equal(t, http.StatusOK, rec.Code)

	var signals []model.PainSignal
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &signals))
	require.Len(t, signals, 1)
	assert.Equal(t, model.SignalContractNoHiring30, signals[0].Type)
}

func TestRouter_CompanyPostings(t *testing.T) {
	st := newServeStore(t)
	ctx := context.Background()
	c := seedCompany(t, st, "balfour beatty", 10)
	p := &model.JobPosting{
		CompanyID:       c.ID,
		Title:           "Site Manager",
		NormalizedTitle: "site manager",
		Fingerprint:     "fp-serve-1",
		PostedAt:        time.Now().UTC().AddDate(0, 0, -7),
		LastSeenAt:      time.Now().UTC(),
		Active:          true,
	}
	created, err := st.InsertPosting(ctx, p)
	require.NoError(t, err)
	require.True(t, created)
	r := newRouter(st, monitoring.NewCollector(st, nil))

	rec := doGet(t, r, "/companies/"+itoa(c.ID)+"/postings")
	require.Equal(t, http.StatusOK, rec.Code)

	var postings []model.JobPosting
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &postings))
	require.Len(t, postings, 1)
	assert.Equal(t, "Site Manager", postings[0].Title)
}
