// Package contractsfinder provides a client for the UK Contracts Finder
// OCDS award feed.
package contractsfinder

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
const Provider = "contracts_finder"

const pageSize = 100

// Client defines the award feed operations.
type Client interface {
	// FetchAwards pages through award notices published since the given
	// time and returns raw contract observations. Pagination stops early
	// when the daily call budget runs out.
	FetchAwards(ctx context.Context, since time.Time, maxPages int) ([]model.RawContract, error)
}

// QuotaAcquirer gates each API call against a provider budget.
type QuotaAcquirer interface {
	Acquire(ctx context.Context, provider string) error
}

// Option configures the client.
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
	baseURL string
	quota   QuotaAcquirer
	http    *http.Client
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
}

// NewClient creates a Contracts Finder client. quota may be nil to disable
// budgeting.
func NewClient(cfg config.ContractsConfig, quota QuotaAcquirer, opts ...Option) Client {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	c := &httpClient{
		baseURL: cfg.BaseURL,
		quota:   quota,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry: resilience.RetryConfig{
			OnRetry: resilience.RetryLogger(Provider, "fetch_awards"),
		},
	}
	cbCfg := resilience.DefaultCircuitBreakerConfig()
	cbCfg.OnStateChange = func(from, to resilience.CircuitState) {
		zap.L().Warn("contracts finder circuit state change",
			zap.String("from", from.String()), zap.String("to", to.String()))
	}
	c.breaker = resilience.NewCircuitBreaker(cbCfg)
	if c.baseURL == "" {
		c.baseURL = "https://www.contractsfinder.service.gov.uk/Published"
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// searchResponse is the subset of the OCDS search payload we consume.
type searchResponse struct {
	Results []release `json:"results"`
	MaxPage int       `json:"maxPage"`
}

type release struct {
	OCID  string `json:"ocid"`
	Buyer struct {
		Name string `json:"name"`
	} `json:"buyer"`
	Awards []award `json:"awards"`
}

type award struct {
	ID    string    `json:"id"`
	Date  time.Time `json:"date"`
	Value struct {
		Amount float64 `json:"amount"`
	} `json:"value"`
	Suppliers []struct {
		Name string `json:"name"`
	} `json:"suppliers"`
}

func (c *httpClient) FetchAwards(ctx context.Context, since time.Time, maxPages int) ([]model.RawContract, error) {
	if maxPages <= 0 {
		maxPages = 1
	}

	var out []model.RawContract
	for page := 1; page <= maxPages; page++ {
		if c.quota != nil {
			if err := c.quota.Acquire(ctx, Provider); err != nil {
				if eris.Is(err, budget.ErrExhausted) {
					zap.L().Warn("contracts finder budget exhausted, stopping pagination",
						zap.Int("page", page), zap.Int("fetched", len(out)))
					return out, nil
				}
				return out, eris.Wrap(err, "contractsfinder: acquire quota")
			}
		}

		resp, err := resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) (*searchResponse, error) {
			return resilience.DoVal(ctx, c.retry, func(ctx context.Context) (*searchResponse, error) {
				return c.fetchPage(ctx, since, page)
			})
		})
		if err != nil {
			return out, eris.Wrapf(err, "contractsfinder: fetch page %d", page)
		}

		for _, rel := range resp.Results {
			out = append(out, toRawContracts(rel)...)
		}
		if page >= resp.MaxPage || len(resp.Results) == 0 {
			break
		}
	}
	return out, nil
}

func (c *httpClient) fetchPage(ctx context.Context, since time.Time, page int) (*searchResponse, error) {
	q := url.Values{}
	q.Set("publishedFrom", since.UTC().Format("2006-01-02"))
	q.Set("stages", "award")
	q.Set("size", strconv.Itoa(pageSize))
	q.Set("page", strconv.Itoa(page))

	reqURL := fmt.Sprintf("%s/Notices/OCDS/Search?%s", c.baseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "contractsfinder: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(err, 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "contractsfinder: read response body")
	}

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, resilience.NewTransientError(
			eris.Errorf("contractsfinder: status %d: %s", resp.StatusCode, string(body)),
			resp.StatusCode,
		)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("contractsfinder: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var result searchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "contractsfinder: unmarshal response")
	}
	return &result, nil
}

// toRawContracts flattens one release into per-supplier observations. Joint
// awards credit every named supplier; the reference keeps them distinct.
func toRawContracts(rel release) []model.RawContract {
	var out []model.RawContract
	for _, aw := range rel.Awards {
		for i, supplier := range aw.Suppliers {
			ref := rel.OCID + "-" + aw.ID
			if len(aw.Suppliers) > 1 {
				ref = fmt.Sprintf("%s-%d", ref, i)
			}
			out = append(out, model.RawContract{
				SupplierName: supplier.Name,
				BuyerName:    rel.Buyer.Name,
				Value:        aw.Value.Amount,
				AwardedAt:    aw.Date,
				Reference:    ref,
				Source:       Provider,
			})
		}
	}
	return out
}
