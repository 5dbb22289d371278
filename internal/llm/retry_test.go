package llm

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{name: "nil", err: nil, retryable: false},
		{name: "rate limit", err: fmt.Errorf("rate limit exceeded: slow down"), retryable: true},
		{name: "server error", err: fmt.Errorf("Claude API internal error: oops"), retryable: true},
		{name: "bad gateway", err: fmt.Errorf("Claude API error 502: upstream"), retryable: true},
		{name: "timeout", err: fmt.Errorf("context deadline exceeded"), retryable: true},
		{name: "connection refused", err: fmt.Errorf("dial tcp: connection refused"), retryable: true},
		{name: "invalid api key", err: fmt.Errorf("invalid API key: nope"), retryable: false},
		{name: "bad request", err: fmt.Errorf("bad request: malformed"), retryable: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, isRetryableError(tt.err))
		})
	}
}

func TestIsHTTPStatusRetryable(t *testing.T) {
	assert.True(t, isHTTPStatusRetryable(http.StatusTooManyRequests))
	assert.True(t, isHTTPStatusRetryable(http.StatusInternalServerError))
	assert.True(t, isHTTPStatusRetryable(http.StatusServiceUnavailable))
	assert.False(t, isHTTPStatusRetryable(http.StatusBadRequest))
	assert.False(t, isHTTPStatusRetryable(http.StatusUnauthorized))
}

func TestCalculateBackoff(t *testing.T) {
	base := 100 * time.Millisecond
	max := 5 * time.Second

	for attempt := 0; attempt < 10; attempt++ {
		delay := calculateBackoff(attempt, base, max)
		// Jitter ranges 0.5x to 1.5x, so the cap can be exceeded by at
		// most half.
		assert.GreaterOrEqual(t, delay, time.Duration(float64(base)*0.5))
		assert.LessOrEqual(t, delay, time.Duration(float64(max)*1.5))
	}
}
