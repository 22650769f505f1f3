package contractsfinder

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadsignal/signals-cli/internal/budget"
	"github.com/leadsignal/signals-cli/internal/config"
)

const awardsJSON = `{
	"maxPage": 1,
	"results": [{
		"ocid": "ocds-b5fd17-123",
		"buyer": {"name": "Manchester City Council"},
		"awards": [{
			"id": "award-1",
			"date": "2026-07-01T00:00:00Z",
			"value": {"amount": 500000},
			"suppliers": [{"name": "Costain Group"}]
		}]
	}]
}`

func testConfig(baseURL string) config.ContractsConfig {
	return config.ContractsConfig{BaseURL: baseURL, TimeoutSecs: 5}
}

func TestFetchAwards_MapsResults(t *testing.T) {
	since := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Notices/OCDS/Search", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "2026-06-01", q.Get("publishedFrom"))
		assert.Equal(t, "award", q.Get("stages"))
		assert.Equal(t, "1", q.Get("page"))
		fmt.Fprint(w, awardsJSON)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	contracts, err := c.FetchAwards(context.Background(), since, 1)
	require.NoError(t, err)
	require.Len(t, contracts, 1)

	got := contracts[0]
	assert.Equal(t, "Costain Group", got.SupplierName)
	assert.Equal(t, "Manchester City Council", got.BuyerName)
	assert.Equal(t, 500000.0, got.Value)
	assert.Equal(t, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC), got.AwardedAt)
	assert.Equal(t, "ocds-b5fd17-123-award-1", got.Reference)
	assert.Equal(t, Provider, got.Source)
}

func TestFetchAwards_JointAwardGetsDistinctReferences(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"maxPage": 1,
			"results": [{
				"ocid": "ocds-b5fd17-456",
				"buyer": {"name": "TfL"},
				"awards": [{
					"id": "award-1",
					"date": "2026-07-01T00:00:00Z",
					"value": {"amount": 2000000},
					"suppliers": [{"name": "Balfour Beatty"}, {"name": "Costain Group"}]
				}]
			}]
		}`)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	contracts, err := c.FetchAwards(context.Background(), time.Now().AddDate(0, -1, 0), 1)
	require.NoError(t, err)
	require.Len(t, contracts, 2)
	assert.NotEqual(t, contracts[0].Reference, contracts[1].Reference)
	assert.Equal(t, "Balfour Beatty", contracts[0].SupplierName)
	assert.Equal(t, "Costain Group", contracts[1].SupplierName)
}

func TestFetchAwards_PaginatesToMaxPage(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprintf(w, `{
			"maxPage": 2,
			"results": [{
				"ocid": "ocds-b5fd17-%s",
				"buyer": {"name": "Council"},
				"awards": [{
					"id": "award-1",
					"date": "2026-07-01T00:00:00Z",
					"value": {"amount": 300000},
					"suppliers": [{"name": "Supplier"}]
				}]
			}]
		}`, r.URL.Query().Get("page"))
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	contracts, err := c.FetchAwards(context.Background(), time.Now().AddDate(0, -1, 0), 10)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Len(t, contracts, 2)
}

func TestFetchAwards_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, awardsJSON)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	contracts, err := c.FetchAwards(context.Background(), time.Now().AddDate(0, -1, 0), 1)
	require.NoError(t, err)
	assert.Len(t, contracts, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchAwards_BudgetExhaustedStopsCleanly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request should be made with an exhausted budget")
	}))
	defer srv.Close()

	quota := budget.NewManager(map[string]budget.Limits{
		Provider: {DailyCalls: 1},
	})
	require.NoError(t, quota.Acquire(context.Background(), Provider))

	c := NewClient(testConfig(srv.URL), quota)
	contracts, err := c.FetchAwards(context.Background(), time.Now().AddDate(0, -1, 0), 1)
	require.NoError(t, err)
	assert.Empty(t, contracts)
}
