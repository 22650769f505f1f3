package resilience

import (
	"fmt"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", eris.New("bad payload"), false},
		{"explicit transient", NewTransientError(eris.New("throttled"), 429), true},
		{"wrapped transient", fmt.Errorf("search: %w", NewTransientError(eris.New("gateway"), 502)), true},
		{"connection reset syscall", fmt.Errorf("dial: %w", syscall.ECONNRESET), true},
		{"connection refused syscall", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"reset message only", eris.New("read tcp: connection reset by peer"), true},
		{"timeout message only", eris.New("Get \"https://api\": i/o timeout"), true},
		{"not found", eris.New("company not found"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestTransientErrorUnwrap(t *testing.T) {
	inner := eris.New("rate limited")
	te := NewTransientError(inner, 429)

	assert.Equal(t, "rate limited", te.Error())
	assert.True(t, eris.Is(te, inner))
	assert.Equal(t, 429, te.StatusCode)
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 201, 301, 400, 401, 403, 404, 409, 422} {
		assert.False(t, IsTransientHTTPStatus(code), "status %d", code)
	}
}
