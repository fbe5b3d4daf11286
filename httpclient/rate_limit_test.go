package httpclient

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRateLimitTransport(t *testing.T) {
	next := NewMockTransport()

	tests := []struct {
		name        string
		cfg         RateLimitConfig
		wantWrapped bool
		wantBurst   int
	}{
		{
			name:        "given zero rate, then returns next unchanged",
			cfg:         RateLimitConfig{},
			wantWrapped: false,
		},
		{
			name:        "given rate without burst, then burst is one",
			cfg:         RateLimitConfig{RequestsPerSecond: 5},
			wantWrapped: true,
			wantBurst:   1,
		},
		{
			name:        "given defaults, then burst is ten",
			cfg:         DefaultRateLimitConfig(),
			wantWrapped: true,
			wantBurst:   10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := newRateLimitTransport(next, tt.cfg, nil)

			rl, ok := rt.(*rateLimitTransport)
			assert.Equal(t, tt.wantWrapped, ok)
			if ok {
				assert.Equal(t, tt.wantBurst, rl.limiter.Burst())
				assert.Same(t, next, rl.Unwrap())
			}
		})
	}
}

func TestRateLimit_FailFast(t *testing.T) {
	mock := NewMockTransport().StubResponse(http.StatusOK, "")
	client := newTestClient(t, mock, WithRateLimit(RateLimitConfig{
		RequestsPerSecond: 0.001,
		Burst:             1,
	}))

	_, err := client.Request("List").Get(context.Background(), "/orders")
	require.NoError(t, err)

	_, err = client.Request("List").Get(context.Background(), "/orders")
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.True(t, DefaultTransientPredicate(nil, err))

	_, err = client.Request("List").ThrowTransient().Get(context.Background(), "/orders")
	assert.ErrorIs(t, err, ErrTransient)
	assert.Equal(t, 1, mock.RequestCount())
}

func TestRateLimit_WaitBeyondDeadline(t *testing.T) {
	mock := NewMockTransport().StubResponse(http.StatusOK, "")
	client := newTestClient(t, mock, WithRateLimit(RateLimitConfig{
		RequestsPerSecond: 0.001,
		Burst:             1,
		WaitOnLimit:       true,
	}))

	_, err := client.Request("List").Get(context.Background(), "/orders")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.Request("List").Get(ctx, "/orders")

	assert.ErrorIs(t, err, ErrRateLimited, "a wait that cannot meet the deadline fails early")
	assert.Equal(t, 1, mock.RequestCount())
}
