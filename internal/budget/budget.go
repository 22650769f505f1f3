// Package budget enforces per-provider API quotas: a steady request rate and
// a hard daily call ceiling. Providers like Adzuna meter by calls per day, so
// exhausting the ceiling defers work to the next window instead of erroring
// the whole run.
package budget

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrExhausted is returned when a provider's daily call budget is spent.
var ErrExhausted = eris.New("budget: daily call budget exhausted")

// Limits configures one provider's quota.
type Limits struct {
	// DailyCalls is the hard ceiling per UTC day. Zero means unlimited.
	DailyCalls int
	// RatePerSec is the sustained request rate. Zero means unthrottled.
	RatePerSec float64
	// Burst is the limiter burst size. Defaults to 1 when a rate is set.
	Burst int
}

type providerState struct {
	limiter *rate.Limiter
	limits  Limits

	mu   sync.Mutex
	day  time.Time // UTC midnight of the current window
	used int
}

// Manager tracks quotas for multiple providers.
type Manager struct {
	mu        sync.RWMutex
	providers map[string]*providerState
	nowFunc   func() time.Time
}

// NewManager creates a Manager with the given per-provider limits.
func NewManager(limits map[string]Limits) *Manager {
	m := &Manager{
		providers: make(map[string]*providerState, len(limits)),
		nowFunc:   time.Now,
	}
	for name, l := range limits {
		m.providers[name] = newState(l)
	}
	return m
}

func newState(l Limits) *providerState {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if l.RatePerSec > 0 {
		burst := l.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(l.RatePerSec), burst)
	}
	return &providerState{limiter: limiter, limits: l}
}

// Acquire blocks until the provider's rate limiter admits a call, then
// consumes one unit of the daily budget. Returns ErrExhausted without
// blocking when the daily ceiling is already spent. Unknown providers are
// admitted unthrottled.
func (m *Manager) Acquire(ctx context.Context, provider string) error {
	st := m.state(provider)
	if st == nil {
		return nil
	}

	if err := st.consume(m.nowFunc()); err != nil {
		return err
	}

	if err := st.limiter.Wait(ctx); err != nil {
		return eris.Wrapf(err, "budget: wait for %s", provider)
	}
	return nil
}

// Remaining reports the calls left in the provider's current daily window.
// Returns -1 for unlimited or unknown providers.
func (m *Manager) Remaining(provider string) int {
	st := m.state(provider)
	if st == nil || st.limits.DailyCalls <= 0 {
		return -1
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	st.rollWindow(m.nowFunc())
	return st.limits.DailyCalls - st.used
}

// Usage returns a snapshot of used calls per provider for monitoring.
func (m *Manager) Usage() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	usage := make(map[string]int, len(m.providers))
	for name, st := range m.providers {
		st.mu.Lock()
		st.rollWindow(m.nowFunc())
		usage[name] = st.used
		st.mu.Unlock()
	}
	return usage
}

func (m *Manager) state(provider string) *providerState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.providers[provider]
}

func (st *providerState) consume(now time.Time) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.rollWindow(now)
	if st.limits.DailyCalls > 0 && st.used >= st.limits.DailyCalls {
		zap.L().Warn("daily call budget exhausted",
			zap.Int("daily_calls", st.limits.DailyCalls))
		return ErrExhausted
	}
	st.used++
	return nil
}

// rollWindow resets the counter when the UTC day has rolled over. Caller
// holds st.mu.
func (st *providerState) rollWindow(now time.Time) {
	day := now.UTC().Truncate(24 * time.Hour)
	if !day.Equal(st.day) {
		st.day = day
		st.used = 0
	}
}
