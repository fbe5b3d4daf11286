package httpserver

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/kroma-labs/apiclient-go/webapi"
)

// RateLimitConfig configures the rate limiting middleware.
type RateLimitConfig struct {
	// Limit is the rate limit in requests per second.
	Limit rate.Limit

	// Burst is the maximum burst size (token bucket capacity).
	Burst int

	// KeyFunc extracts a key from the request for per-key rate limiting.
	// If nil, a global rate limit is applied to all requests.
	KeyFunc KeyFunc

	// Redis enables distributed rate limiting across multiple instances.
	// If nil, an in-memory rate limiter is used (single-instance only).
	Redis redis.UniversalClient

	// RedisKeyPrefix is the prefix for Redis keys.
	// Default: "ratelimit:"
	RedisKeyPrefix string
}

// DefaultRateLimitConfig returns a default rate limit configuration.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Limit:          100,
		Burst:          200,
		RedisKeyPrefix: "ratelimit:",
	}
}

// RateLimit returns middleware that limits request rate using a token bucket.
//
// A rejected request gets 429 with x-error-type transient and Retry-After,
// so an httpclient caller classifies it as transient.
func RateLimit(cfg RateLimitConfig) Middleware {
	if cfg.RedisKeyPrefix == "" {
		cfg.RedisKeyPrefix = "ratelimit:"
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	if cfg.Redis != nil {
		return redisRateLimiter(cfg)
	}
	return memoryRateLimiter(cfg)
}

// rejectRateLimited writes the 429 transient error.
func rejectRateLimited(w http.ResponseWriter, limit rate.Limit) {
	if limit > 0 {
		retry := int(math.Ceil(1 / float64(limit)))
		w.Header().Set("Retry-After", strconv.Itoa(max(retry, 1)))
	}
	WriteError(w, &Error{
		Type:    webapi.TransientError,
		Status:  http.StatusTooManyRequests,
		Message: "rate limit exceeded",
	})
}

func memoryRateLimiter(cfg RateLimitConfig) Middleware {
	if cfg.KeyFunc == nil {
		limiter := rate.NewLimiter(cfg.Limit, cfg.Burst)
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if !limiter.Allow() {
					rejectRateLimited(w, cfg.Limit)
					return
				}
				next.ServeHTTP(w, r)
			})
		}
	}

	var mu sync.RWMutex
	limiters := make(map[string]*rate.Limiter)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := cfg.KeyFunc(r)

			mu.RLock()
			limiter, exists := limiters[key]
			mu.RUnlock()

			if !exists {
				mu.Lock()
				limiter, exists = limiters[key]
				if !exists {
					limiter = rate.NewLimiter(cfg.Limit, cfg.Burst)
					limiters[key] = limiter
				}
				mu.Unlock()
			}

			if !limiter.Allow() {
				rejectRateLimited(w, cfg.Limit)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// tokenBucketScript refills tokens by elapsed time, capped at burst, and
// consumes one atomically. It returns 1 when allowed.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local data = redis.call('HMGET', key, 'tokens', 'last_update')
local tokens = tonumber(data[1])
local last_update = tonumber(data[2])

if tokens == nil then
    tokens = burst
    last_update = now
end

local elapsed_ms = now - last_update
tokens = math.min(burst, tokens + (elapsed_ms / 1000.0) * rate)

local allowed = 0
if tokens >= 1 then
    tokens = tokens - 1
    allowed = 1
end

redis.call('HMSET', key, 'tokens', tokens, 'last_update', now)
redis.call('EXPIRE', key, ttl)
return allowed
`)

// redisKeyTTL expires the bucket of an inactive key, in seconds.
const redisKeyTTL = 60

// allowRedis runs the token bucket script for key. On redis errors it fails
// open.
func allowRedis(ctx context.Context, cfg RateLimitConfig, key string) bool {
	allowed, err := tokenBucketScript.Run(ctx, cfg.Redis, []string{cfg.RedisKeyPrefix + key},
		float64(cfg.Limit), cfg.Burst, time.Now().UnixMilli(), redisKeyTTL).Int()
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("rate limit store unavailable, allowing request")
		return true
	}
	return allowed == 1
}

func redisRateLimiter(cfg RateLimitConfig) Middleware {
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = func(*http.Request) string { return "global" }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !allowRedis(r.Context(), cfg, keyFunc(r)) {
				rejectRateLimited(w, cfg.Limit)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitByIP returns rate limiting middleware keyed by client IP.
func RateLimitByIP(limit rate.Limit, burst int) Middleware {
	return RateLimit(RateLimitConfig{
		Limit:   limit,
		Burst:   burst,
		KeyFunc: KeyFuncByIP(),
	})
}

// RateLimitByIPRedis returns distributed rate limiting middleware keyed by client IP.
func RateLimitByIPRedis(rdb redis.UniversalClient, limit rate.Limit, burst int) Middleware {
	return RateLimit(RateLimitConfig{
		Limit:   limit,
		Burst:   burst,
		Redis:   rdb,
		KeyFunc: KeyFuncByIP(),
	})
}
