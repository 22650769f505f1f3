// Package adzuna provides a client for the Adzuna job search API.
package adzuna

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/leadsignal/signals-cli/internal/budget"
	"github.com/leadsignal/signals-cli/internal/config"
	"github.com/leadsignal/signals-cli/internal/model"
	"github.com/leadsignal/signals-cli/internal/resilience"
)

// Provider is the budget manager key for this API.
const Provider = "adzuna"

const resultsPerPage = 50

// SearchParams narrows a job search.
type SearchParams struct {
	// What is the keyword query, e.g. "site manager".
	What string
	// Where restricts results geographically, e.g. "manchester".
	Where string
	// Category is an Adzuna category tag, e.g. "construction-jobs".
	Category string
	// MaxDaysOld drops postings older than this many days. Zero means no cap.
	MaxDaysOld int
	// MaxPages bounds pagination. Zero defaults to 1.
	MaxPages int
}

// Client defines the Adzuna search operations.
type Client interface {
	// Search pages through results for the given params and returns raw
	// posting observations. Pagination stops early when the daily call
	// budget runs out; results gathered so far are returned.
	Search(ctx context.Context, params SearchParams) ([]model.RawPosting, error)
}

// QuotaAcquirer gates each API call against a provider budget.
type QuotaAcquirer interface {
	Acquire(ctx context.Context, provider string) error
}

// Option configures the Adzuna client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = u }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithCircuitBreaker replaces the default circuit breaker.
func WithCircuitBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *httpClient) { c.breaker = cb }
}

type httpClient struct {
	appID   string
	appKey  string
	baseURL string
	country string
	quota   QuotaAcquirer
	http    *http.Client
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
}

// NewClient creates an Adzuna client. quota may be nil to disable budgeting.
func NewClient(cfg config.AdzunaConfig, quota QuotaAcquirer, opts ...Option) Client {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	c := &httpClient{
		appID:   cfg.AppID,
		appKey:  cfg.AppKey,
		baseURL: cfg.BaseURL,
		country: cfg.Country,
		quota:   quota,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry: resilience.RetryConfig{
			OnRetry: resilience.RetryLogger(Provider, "search"),
		},
	}
	cbCfg := resilience.DefaultCircuitBreakerConfig()
	cbCfg.OnStateChange = func(from, to resilience.CircuitState) {
		zap.L().Warn("adzuna circuit state change",
			zap.String("from", from.String()), zap.String("to", to.String()))
	}
	c.breaker = resilience.NewCircuitBreaker(cbCfg)
	if c.baseURL == "" {
		c.baseURL = "https://api.adzuna.com/v1/api"
	}
	if c.country == "" {
		c.country = "gb"
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// searchResponse is the subset of the Adzuna payload we consume.
type searchResponse struct {
	Count   int         `json:"count"`
	Results []adzunaJob `json:"results"`
}

type adzunaJob struct {
	Title   string `json:"title"`
	Company struct {
		DisplayName string `json:"display_name"`
	} `json:"company"`
	Location struct {
		DisplayName string   `json:"display_name"`
		Area        []string `json:"area"`
	} `json:"location"`
	Created     time.Time `json:"created"`
	Description string    `json:"description"`
	SalaryMin   *float64  `json:"salary_min"`
	SalaryMax   *float64  `json:"salary_max"`
	Category    struct {
		Label string `json:"label"`
	} `json:"category"`
}

func (c *httpClient) Search(ctx context.Context, params SearchParams) ([]model.RawPosting, error) {
	maxPages := params.MaxPages
	if maxPages <= 0 {
		maxPages = 1
	}

	var out []model.RawPosting
	for page := 1; page <= maxPages; page++ {
		if c.quota != nil {
			if err := c.quota.Acquire(ctx, Provider); err != nil {
				if eris.Is(err, budget.ErrExhausted) {
					zap.L().Warn("adzuna budget exhausted, stopping pagination",
						zap.Int("page", page), zap.Int("fetched", len(out)))
					return out, nil
				}
				return out, eris.Wrap(err, "adzuna: acquire quota")
			}
		}

		resp, err := resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) (*searchResponse, error) {
			return resilience.DoVal(ctx, c.retry, func(ctx context.Context) (*searchResponse, error) {
				return c.fetchPage(ctx, params, page)
			})
		})
		if err != nil {
			return out, eris.Wrapf(err, "adzuna: search page %d", page)
		}

		for _, job := range resp.Results {
			out = append(out, toRawPosting(job))
		}
		if len(resp.Results) < resultsPerPage {
			break
		}
	}
	return out, nil
}

func (c *httpClient) fetchPage(ctx context.Context, params SearchParams, page int) (*searchResponse, error) {
	q := url.Values{}
	q.Set("app_id", c.appID)
	q.Set("app_key", c.appKey)
	q.Set("results_per_page", strconv.Itoa(resultsPerPage))
	q.Set("content-type", "application/json")
	if params.What != "" {
		q.Set("what", params.What)
	}
	if params.Where != "" {
		q.Set("where", params.Where)
	}
	if params.Category != "" {
		q.Set("category", params.Category)
	}
	if params.MaxDaysOld > 0 {
		q.Set("max_days_old", strconv.Itoa(params.MaxDaysOld))
	}

	reqURL := fmt.Sprintf("%s/jobs/%s/search/%d?%s", c.baseURL, c.country, page, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "adzuna: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(err, 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "adzuna: read response body")
	}

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, resilience.NewTransientError(
			eris.Errorf("adzuna: status %d: %s", resp.StatusCode, string(body)),
			resp.StatusCode,
		)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("adzuna: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var result searchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "adzuna: unmarshal response")
	}
	return &result, nil
}

func toRawPosting(job adzunaJob) model.RawPosting {
	raw := model.RawPosting{
		Title:        job.Title,
		CompanyName:  job.Company.DisplayName,
		Location:     job.Location.DisplayName,
		Industry:     job.Category.Label,
		PostedAt:     job.Created,
		Description:  job.Description,
		SalaryMin:    job.SalaryMin,
		SalaryMax:    job.SalaryMax,
		SalaryPeriod: "annual", // Adzuna normalizes salaries to annual figures
		Source:       Provider,
	}
	// The area list runs country → region → locality.
	if len(job.Location.Area) > 1 {
		raw.Region = job.Location.Area[1]
	}
	return raw
}
