package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(threshold int, reset time.Duration) *CircuitBreaker {
	return NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: threshold,
		ResetTimeout:     reset,
	})
}

func failing(ctx context.Context) (int, error) {
	return 0, eris.New("upstream down")
}

func succeeding(ctx context.Context) (int, error) {
	return 1, nil
}

func TestCircuit_OpensAfterThreshold(t *testing.T) {
	cb := newTestBreaker(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := ExecuteVal(ctx, cb, failing)
		require.Error(t, err)
		assert.False(t, eris.Is(err, ErrCircuitOpen))
	}
	assert.Equal(t, CircuitOpen, cb.State())

	_, err := ExecuteVal(ctx, cb, succeeding)
	assert.True(t, eris.Is(err, ErrCircuitOpen))
}

func TestCircuit_SuccessResetsFailureCount(t *testing.T) {
	cb := newTestBreaker(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, _ = ExecuteVal(ctx, cb, failing) //nolint:errcheck
	}
	_, err := ExecuteVal(ctx, cb, succeeding)
	require.NoError(t, err)

	// Two more failures should not reach the threshold again.
	for i := 0; i < 2; i++ {
		_, _ = ExecuteVal(ctx, cb, failing) //nolint:errcheck
	}
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuit_HalfOpenProbeCloses(t *testing.T) {
	cb := newTestBreaker(1, time.Minute)
	ctx := context.Background()

	_, _ = ExecuteVal(ctx, cb, failing) //nolint:errcheck
	require.Equal(t, CircuitOpen, cb.State())

	cb.nowFunc = func() time.Time { return time.Now().Add(2 * time.Minute) }
	assert.Equal(t, CircuitHalfOpen, cb.State())

	val, err := ExecuteVal(ctx, cb, succeeding)
	require.NoError(t, err)
	assert.Equal(t, 1, val)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuit_HalfOpenProbeFailureReopens(t *testing.T) {
	cb := newTestBreaker(1, time.Minute)
	ctx := context.Background()

	_, _ = ExecuteVal(ctx, cb, failing) //nolint:errcheck
	require.Equal(t, CircuitOpen, cb.State())

	jump := 2 * time.Minute
	cb.nowFunc = func() time.Time { return time.Now().Add(jump) }

	_, err := ExecuteVal(ctx, cb, failing)
	require.Error(t, err)
	assert.False(t, eris.Is(err, ErrCircuitOpen), "probe should have been allowed")

	// Reopened: the next call is rejected outright.
	_, err = ExecuteVal(ctx, cb, succeeding)
	assert.True(t, eris.Is(err, ErrCircuitOpen))
}

func TestCircuit_StateChangeCallback(t *testing.T) {
	var transitions []string
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Minute,
		OnStateChange: func(from, to CircuitState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	ctx := context.Background()

	_, _ = ExecuteVal(ctx, cb, failing) //nolint:errcheck
	cb.nowFunc = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err := ExecuteVal(ctx, cb, succeeding)
	require.NoError(t, err)

	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestCircuit_DefaultsApplied(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{})
	assert.Equal(t, 5, cb.cfg.FailureThreshold)
	assert.Equal(t, 30*time.Second, cb.cfg.ResetTimeout)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitState_String(t *testing.T) {
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(99).String())
}
