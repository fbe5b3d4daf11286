package httpclient

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	gobreaker "github.com/sony/gobreaker/v2"
	gobreakerredis "github.com/sony/gobreaker/v2/redis"
)

// NewRedisStore returns a gobreaker store that shares breaker state between
// processes through Redis.
//
//	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{"localhost:6379"}})
//	client := httpclient.New(
//	    httpclient.WithServiceName("orders"),
//	    httpclient.WithBreaker(httpclient.DistributedBreakerConfig(httpclient.NewRedisStore(rdb))),
//	)
func NewRedisStore(client redis.UniversalClient) gobreaker.SharedDataStore {
	return gobreakerredis.NewStoreFromClient(client)
}

// BreakerClassifier reports whether an outcome counts as a breaker failure.
type BreakerClassifier func(resp *http.Response, err error) bool

// BreakerConfig configures the circuit breaker transport. A rejected request
// fails with gobreaker.ErrOpenState or gobreaker.ErrTooManyRequests, which
// DefaultTransientPredicate classifies as transient.
type BreakerConfig struct {
	// MaxRequests passes through while half-open. 0 means 1.
	MaxRequests uint32

	// Interval clears the closed-state counts periodically. 0 never clears.
	Interval time.Duration

	// Timeout is how long the breaker stays open. 0 means 60s.
	Timeout time.Duration

	// FailureThreshold is the minimum request count before tripping.
	FailureThreshold uint32

	// FailureRatio trips the breaker at this failure ratio (0.0 - 1.0).
	FailureRatio float64

	// ConsecutiveFailures trips the breaker after this many failures in a row.
	// 0 disables the rule.
	ConsecutiveFailures uint32

	// Store shares state between processes. Nil keeps the breaker in memory.
	Store gobreaker.SharedDataStore

	// Classifier selects failures. Nil means DefaultBreakerClassifier.
	Classifier BreakerClassifier

	OnStateChange func(name string, from, to gobreaker.State)
}

// DefaultBreakerConfig returns an in-memory breaker that trips after 5
// consecutive failures, or at 50% failures over at least 20 requests.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:         1,
		Interval:            10 * time.Second,
		Timeout:             10 * time.Second,
		FailureThreshold:    20,
		FailureRatio:        0.5,
		ConsecutiveFailures: 5,
		Classifier:          DefaultBreakerClassifier,
	}
}

// DistributedBreakerConfig returns DefaultBreakerConfig backed by store.
func DistributedBreakerConfig(store gobreaker.SharedDataStore) BreakerConfig {
	cfg := DefaultBreakerConfig()
	cfg.Store = store
	return cfg
}

// DefaultBreakerClassifier counts connection failures and 5xx responses.
// 429 is left to the caller's backoff.
func DefaultBreakerClassifier(resp *http.Response, err error) bool {
	if err != nil {
		return isConnectionError(err)
	}
	return resp != nil && resp.StatusCode >= http.StatusInternalServerError
}

func (c BreakerConfig) readyToTrip(counts gobreaker.Counts) bool {
	if c.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= c.ConsecutiveFailures {
		return true
	}
	if c.FailureThreshold > 0 && counts.Requests < c.FailureThreshold {
		return false
	}
	if c.FailureRatio > 0 && counts.Requests > 0 {
		return float64(counts.TotalFailures)/float64(counts.Requests) >= c.FailureRatio
	}
	return false
}

// breaker is satisfied by both gobreaker breaker kinds.
type breaker interface {
	Execute(req func() (*http.Response, error)) (*http.Response, error)
}

// errBreakerFailure marks a response the classifier rejected so gobreaker
// counts it; the response itself is still returned.
var errBreakerFailure = errors.New("httpclient: breaker failure")

type breakerTransport struct {
	next       http.RoundTripper
	breaker    breaker
	classifier BreakerClassifier
	metrics    *metrics
	name       string
}

var _ http.RoundTripper = (*breakerTransport)(nil)

func newCircuitBreakerTransport(next http.RoundTripper, cfg *internalConfig) http.RoundTripper {
	if cfg.BreakerConfig == nil {
		return next
	}
	bc := *cfg.BreakerConfig
	if bc.Classifier == nil {
		bc.Classifier = DefaultBreakerClassifier
	}

	name := cfg.ServiceName
	if name == "" {
		name = "apiclient"
	}

	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: bc.MaxRequests,
		Interval:    bc.Interval,
		Timeout:     bc.Timeout,
		ReadyToTrip: bc.readyToTrip,
		IsExcluded: func(err error) bool {
			return errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			cfg.Metrics.recordBreakerState(context.Background(), name, int64(to))
			cfg.Logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
			if bc.OnStateChange != nil {
				bc.OnStateChange(name, from, to)
			}
		},
	}

	var cb breaker = gobreaker.NewCircuitBreaker[*http.Response](st)
	if bc.Store != nil {
		dcb, err := gobreaker.NewDistributedCircuitBreaker[*http.Response](bc.Store, st)
		if err != nil {
			// The process keeps a local breaker when the store is unusable.
			cfg.Logger.Error().Err(err).Str("breaker", name).
				Msg("distributed circuit breaker unavailable, using local breaker")
		} else {
			cb = dcb
		}
	}

	return &breakerTransport{
		next:       next,
		breaker:    cb,
		classifier: bc.Classifier,
		metrics:    cfg.Metrics,
		name:       name,
	}
}

func (t *breakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	var failed *http.Response
	resp, err := t.breaker.Execute(func() (*http.Response, error) {
		resp, err := t.next.RoundTrip(req) //nolint:bodyclose // returned to the caller
		if t.classifier(resp, err) {
			if err != nil {
				return nil, err
			}
			failed = resp
			return nil, errBreakerFailure
		}
		return resp, err
	})

	switch {
	case err == nil:
		t.metrics.recordBreakerRequest(ctx, t.name, "success")
		return resp, nil
	case errors.Is(err, errBreakerFailure):
		t.metrics.recordBreakerRequest(ctx, t.name, "failure")
		return failed, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		t.metrics.recordBreakerRequest(ctx, t.name, "rejected")
		return nil, err
	default:
		t.metrics.recordBreakerRequest(ctx, t.name, "failure")
		return nil, err
	}
}

func (t *breakerTransport) Unwrap() http.RoundTripper {
	return t.next
}
