package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when the local rate limiter rejects a request.
// DefaultTransientPredicate classifies it as transient.
var ErrRateLimited = errors.New("httpclient: rate limit exceeded")

// RateLimitConfig configures the client-side token bucket.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate. 0 or less disables limiting.
	RequestsPerSecond float64

	// Burst is the bucket size. 0 or less means 1.
	Burst int

	// WaitOnLimit waits for a token within the request context. When false a
	// request without a token fails with ErrRateLimited.
	WaitOnLimit bool
}

// DefaultRateLimitConfig allows 100 requests per second with a burst of 10,
// waiting for tokens.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		Burst:             10,
		WaitOnLimit:       true,
	}
}

type rateLimitTransport struct {
	next    http.RoundTripper
	limiter *rate.Limiter
	wait    bool
	metrics *metrics
}

var _ http.RoundTripper = (*rateLimitTransport)(nil)

func newRateLimitTransport(next http.RoundTripper, cfg RateLimitConfig, m *metrics) http.RoundTripper {
	if cfg.RequestsPerSecond <= 0 {
		return next
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &rateLimitTransport{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
		wait:    cfg.WaitOnLimit,
		metrics: m,
	}
}

func (t *rateLimitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	if !t.wait {
		if !t.limiter.Allow() {
			t.metrics.recordRateLimited(ctx)
			return nil, ErrRateLimited
		}
		return t.next.RoundTrip(req)
	}

	if err := t.limiter.Wait(ctx); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		// Wait fails early when the deadline cannot be met.
		t.metrics.recordRateLimited(ctx)
		return nil, fmt.Errorf("%w: %w", ErrRateLimited, err)
	}
	return t.next.RoundTrip(req)
}

func (t *rateLimitTransport) Unwrap() http.RoundTripper {
	return t.next
}
