package httpclient

import (
	"crypto/tls"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/kroma-labs/apiclient-go/webapi"
)

const (
	// scope is the instrumentation scope name for OpenTelemetry.
	scope = "github.com/kroma-labs/apiclient-go/httpclient"
)

// =============================================================================
// Config - HTTP Transport Configuration
// =============================================================================

// Config holds the HTTP transport configuration.
// Use DefaultConfig() and adjust the fields you need.
//
// Example:
//
//	cfg := httpclient.DefaultConfig()
//	cfg.Timeout = 5 * time.Second
//	cfg.MaxIdleConnsPerHost = 25
//
//	client := httpclient.New(httpclient.WithConfig(cfg))
type Config struct {
	// Timeout bounds the whole request, body read included. Zero means none.
	//
	// Default: 15s
	Timeout time.Duration

	// MaxIdleConns caps idle keep-alive connections across all hosts.
	//
	// Default: 100
	MaxIdleConns int

	// MaxIdleConnsPerHost caps idle connections per host. When a client
	// mostly talks to one service, set this close to MaxIdleConns.
	//
	// Default: 20
	MaxIdleConnsPerHost int

	// MaxConnsPerHost caps idle plus active connections per host.
	// Zero means unlimited.
	//
	// Default: 100
	MaxConnsPerHost int

	// IdleConnTimeout is how long an idle connection stays pooled. Keep it
	// below the server's idle timeout to avoid "connection reset" errors.
	//
	// Default: 90s
	IdleConnTimeout time.Duration

	// TLSHandshakeTimeout bounds the TLS handshake.
	//
	// Default: 10s
	TLSHandshakeTimeout time.Duration

	// ExpectContinueTimeout is the wait for "100 Continue".
	//
	// Default: 1s
	ExpectContinueTimeout time.Duration

	// ResponseHeaderTimeout bounds the wait for response headers once the
	// request is written. Zero defers to Timeout.
	ResponseHeaderTimeout time.Duration

	// DialTimeout bounds TCP connection establishment.
	//
	// Default: 5s
	DialTimeout time.Duration

	// KeepAlive is the TCP keep-alive interval.
	//
	// Default: 30s
	KeepAlive time.Duration

	// FallbackDelay is the RFC 6555 dual-stack fallback delay.
	// Negative disables it.
	//
	// Default: 300ms
	FallbackDelay time.Duration

	// WriteBufferSize and ReadBufferSize size the per-connection buffers.
	//
	// Default: 64KB
	WriteBufferSize int
	ReadBufferSize  int

	// MaxResponseHeaderBytes limits response header size.
	// Zero uses the net/http default.
	MaxResponseHeaderBytes int64

	// DisableKeepAlives forces a new connection per request.
	DisableKeepAlives bool

	// DisableCompression stops the transport from requesting gzip.
	//
	// Default: true
	DisableCompression bool

	// ForceHTTP2 attempts HTTP/2 even with a custom dialer or TLS config.
	ForceHTTP2 bool
}

// DefaultConfig returns balanced settings for typical service-to-service calls.
func DefaultConfig() Config {
	return Config{
		Timeout: 15 * time.Second,

		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		MaxConnsPerHost:     100,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		DialTimeout:   5 * time.Second,
		KeepAlive:     30 * time.Second,
		FallbackDelay: 300 * time.Millisecond,

		WriteBufferSize: 64 * 1024,
		ReadBufferSize:  64 * 1024,

		DisableCompression: true,
	}
}

// HighThroughputConfig returns settings for gateways and pipelines that keep
// many concurrent requests open to the same services.
func HighThroughputConfig() Config {
	cfg := DefaultConfig()
	cfg.Timeout = 30 * time.Second
	cfg.MaxIdleConns = 500
	cfg.MaxIdleConnsPerHost = 100
	cfg.MaxConnsPerHost = 0
	cfg.IdleConnTimeout = 120 * time.Second
	cfg.WriteBufferSize = 128 * 1024
	cfg.ReadBufferSize = 128 * 1024
	return cfg
}

// LowLatencyConfig returns settings that fail fast for user-facing calls.
func LowLatencyConfig() Config {
	cfg := DefaultConfig()
	cfg.Timeout = 5 * time.Second
	cfg.MaxIdleConns = 50
	cfg.MaxIdleConnsPerHost = 25
	cfg.MaxConnsPerHost = 50
	cfg.IdleConnTimeout = 60 * time.Second
	cfg.TLSHandshakeTimeout = 5 * time.Second
	cfg.ExpectContinueTimeout = 500 * time.Millisecond
	cfg.ResponseHeaderTimeout = 3 * time.Second
	cfg.DialTimeout = 2 * time.Second
	cfg.KeepAlive = 15 * time.Second
	cfg.FallbackDelay = 150 * time.Millisecond
	cfg.WriteBufferSize = 32 * 1024
	cfg.ReadBufferSize = 32 * 1024
	cfg.ForceHTTP2 = true
	return cfg
}

// ConservativeConfig returns settings for memory-constrained environments or
// processes holding many clients.
func ConservativeConfig() Config {
	cfg := DefaultConfig()
	cfg.Timeout = 10 * time.Second
	cfg.MaxIdleConns = 20
	cfg.MaxIdleConnsPerHost = 5
	cfg.MaxConnsPerHost = 20
	cfg.IdleConnTimeout = 30 * time.Second
	cfg.WriteBufferSize = 4 * 1024
	cfg.ReadBufferSize = 4 * 1024
	return cfg
}

// =============================================================================
// Internal Configuration
// =============================================================================

// internalConfig holds the transport, pipeline and telemetry settings.
type internalConfig struct {
	httpConfig Config

	// === Request defaults ===

	BaseURL        string
	DefaultHeaders http.Header
	HeaderNames    webapi.HeaderNames
	SendOptions    SendOptions

	// === Logging ===

	Logger       zerolog.Logger
	Debug        bool
	GenerateCurl bool
	EnableTrace  bool

	// === OpenTelemetry ===

	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	Tracer         trace.Tracer
	Meter          metric.Meter
	Metrics        *metrics
	Propagators    propagation.TextMapPropagator

	// ServiceName is added as "http.client.name" on spans and metrics and
	// names the circuit breaker.
	ServiceName string

	// EnableNetworkTrace records DNS, connect, TLS and TTFB timings.
	// Default: true
	EnableNetworkTrace bool

	// Filters skip tracing for requests any filter rejects.
	Filters []Filter

	// SpanNameFormatter overrides "HTTP {method} {operation}".
	SpanNameFormatter SpanNameFormatter

	// === Transport ===

	TLSConfig            *tls.Config
	ProxyURL             *url.URL
	ProxyFromEnvironment bool

	// === Resilience ===

	BreakerConfig   *BreakerConfig
	RateLimitConfig *RateLimitConfig
	Coalesce        bool

	// MockTransport replaces the network transport, for tests.
	MockTransport *MockTransport
}

// newConfig creates a config with defaults and applies opts.
func newConfig(opts ...Option) *internalConfig {
	cfg := &internalConfig{
		httpConfig:     DefaultConfig(),
		DefaultHeaders: make(http.Header),
		HeaderNames:    webapi.DefaultHeaderNames(),
		SendOptions:    DefaultSendOptions(),
		Logger:         zerolog.Nop(),
		TracerProvider: otel.GetTracerProvider(),
		MeterProvider:  otel.GetMeterProvider(),

		EnableNetworkTrace:   true,
		ProxyFromEnvironment: true,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	cfg.HeaderNames = cfg.HeaderNames.Normalize()
	if cfg.Propagators == nil {
		cfg.Propagators = propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		)
	}
	cfg.Tracer = cfg.TracerProvider.Tracer(scope)
	cfg.Meter = cfg.MeterProvider.Meter(scope)

	// A failed instrument registration leaves metrics nil; recording is nil-safe.
	cfg.Metrics, _ = newMetrics(cfg.Meter)

	return cfg
}

// buildTransport creates an http.Transport from the configuration.
func (cfg *internalConfig) buildTransport() *http.Transport {
	hc := cfg.httpConfig

	dialer := &net.Dialer{
		Timeout:       hc.DialTimeout,
		KeepAlive:     hc.KeepAlive,
		FallbackDelay: hc.FallbackDelay,
	}

	transport := &http.Transport{
		DialContext:            dialer.DialContext,
		MaxIdleConns:           hc.MaxIdleConns,
		MaxIdleConnsPerHost:    hc.MaxIdleConnsPerHost,
		MaxConnsPerHost:        hc.MaxConnsPerHost,
		IdleConnTimeout:        hc.IdleConnTimeout,
		TLSHandshakeTimeout:    hc.TLSHandshakeTimeout,
		ResponseHeaderTimeout:  hc.ResponseHeaderTimeout,
		ExpectContinueTimeout:  hc.ExpectContinueTimeout,
		DisableKeepAlives:      hc.DisableKeepAlives,
		DisableCompression:     hc.DisableCompression,
		WriteBufferSize:        hc.WriteBufferSize,
		ReadBufferSize:         hc.ReadBufferSize,
		MaxResponseHeaderBytes: hc.MaxResponseHeaderBytes,
		TLSClientConfig:        cfg.TLSConfig,
		ForceAttemptHTTP2:      hc.ForceHTTP2,
	}

	if cfg.ProxyURL != nil {
		transport.Proxy = http.ProxyURL(cfg.ProxyURL)
	} else if cfg.ProxyFromEnvironment {
		transport.Proxy = http.ProxyFromEnvironment
	}

	return transport
}

// buildChain wraps base with the configured transports, innermost first:
// rate limit, circuit breaker, coalescing, then OpenTelemetry.
func (cfg *internalConfig) buildChain(base http.RoundTripper) http.RoundTripper {
	rt := base
	if cfg.RateLimitConfig != nil {
		rt = newRateLimitTransport(rt, *cfg.RateLimitConfig, cfg.Metrics)
	}
	rt = newCircuitBreakerTransport(rt, cfg)
	if cfg.Coalesce {
		rt = newCoalesceTransport(rt)
	}
	return newOtelTransport(rt, cfg)
}

// baseAttributes returns common attributes for all spans and metrics.
func (cfg *internalConfig) baseAttributes() []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 1)
	if cfg.ServiceName != "" {
		attrs = append(attrs, attribute.String("http.client.name", cfg.ServiceName))
	}
	return attrs
}

// =============================================================================
// Options - Functional Options for Client Configuration
// =============================================================================

// Filter reports whether a request should be traced.
type Filter func(r *http.Request) bool

// SpanNameFormatter names the client span for a request.
type SpanNameFormatter func(method string, r *http.Request) string

// Option configures the HTTP client.
type Option func(*internalConfig)

// WithConfig sets the HTTP transport configuration.
func WithConfig(c Config) Option {
	return func(cfg *internalConfig) {
		cfg.httpConfig = c
	}
}

// WithBaseURL sets the base URL that request URI templates are joined to.
func WithBaseURL(baseURL string) Option {
	return func(cfg *internalConfig) {
		cfg.BaseURL = baseURL
	}
}

// WithDefaultHeader adds a header sent on every request.
func WithDefaultHeader(key, value string) Option {
	return func(cfg *internalConfig) {
		cfg.DefaultHeaders.Add(key, value)
	}
}

// WithDefaultHeaders adds headers sent on every request.
func WithDefaultHeaders(h http.Header) Option {
	return func(cfg *internalConfig) {
		for k, vs := range h {
			for _, v := range vs {
				cfg.DefaultHeaders.Add(k, v)
			}
		}
	}
}

// WithHeaderNames overrides the correlation, error and paging header names.
// Empty names keep their defaults.
func WithHeaderNames(names webapi.HeaderNames) Option {
	return func(cfg *internalConfig) {
		cfg.HeaderNames = names
	}
}

// WithDefaultSendOptions adjusts the client's default send policy.
//
// Example:
//
//	client := httpclient.New(
//	    httpclient.WithDefaultSendOptions(func(o *httpclient.SendOptions) {
//	        o.ThrowTransient = true
//	        o.ThrowKnown = true
//	    }),
//	)
func WithDefaultSendOptions(fn func(*SendOptions)) Option {
	return func(cfg *internalConfig) {
		fn(&cfg.SendOptions)
	}
}

// WithLogger sets the logger for debug output. Default: zerolog.Nop().
func WithLogger(logger zerolog.Logger) Option {
	return func(cfg *internalConfig) {
		cfg.Logger = logger
	}
}

// WithDebug logs every request and response at debug level.
func WithDebug(enabled bool) Option {
	return func(cfg *internalConfig) {
		cfg.Debug = enabled
	}
}

// WithGenerateCurl records an equivalent curl command on every Result.
func WithGenerateCurl(enabled bool) Option {
	return func(cfg *internalConfig) {
		cfg.GenerateCurl = enabled
	}
}

// WithEnableTrace collects TraceInfo timings on every Result.
func WithEnableTrace(enabled bool) Option {
	return func(cfg *internalConfig) {
		cfg.EnableTrace = enabled
	}
}

// WithServiceName identifies this client in traces, metrics and breaker state.
func WithServiceName(name string) Option {
	return func(cfg *internalConfig) {
		cfg.ServiceName = name
	}
}

// WithTracerProvider sets the tracer provider. Default: the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cfg *internalConfig) {
		cfg.TracerProvider = tp
	}
}

// WithMeterProvider sets the meter provider. Default: the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(cfg *internalConfig) {
		cfg.MeterProvider = mp
	}
}

// WithPropagators sets the propagators used to inject trace context.
// Default: W3C TraceContext and Baggage.
func WithPropagators(p propagation.TextMapPropagator) Option {
	return func(cfg *internalConfig) {
		cfg.Propagators = p
	}
}

// WithTLSConfig sets the TLS configuration.
func WithTLSConfig(tlsCfg *tls.Config) Option {
	return func(cfg *internalConfig) {
		cfg.TLSConfig = tlsCfg
	}
}

// WithProxyURL routes requests through a fixed proxy.
func WithProxyURL(proxyURL *url.URL) Option {
	return func(cfg *internalConfig) {
		cfg.ProxyURL = proxyURL
		cfg.ProxyFromEnvironment = false
	}
}

// WithProxyFromEnvironment toggles HTTP_PROXY / HTTPS_PROXY / NO_PROXY.
func WithProxyFromEnvironment(enabled bool) Option {
	return func(cfg *internalConfig) {
		cfg.ProxyFromEnvironment = enabled
	}
}

// WithDisableNetworkTrace turns off DNS/connect/TLS timing collection.
func WithDisableNetworkTrace() Option {
	return func(cfg *internalConfig) {
		cfg.EnableNetworkTrace = false
	}
}

// WithFilter adds a trace filter. All filters must accept a request for it
// to be traced.
//
// Example:
//
//	httpclient.WithFilter(func(r *http.Request) bool {
//	    return !strings.HasPrefix(r.URL.Path, "/health")
//	})
func WithFilter(f Filter) Option {
	return func(cfg *internalConfig) {
		cfg.Filters = append(cfg.Filters, f)
	}
}

// WithSpanNameFormatter sets a custom span name formatter.
func WithSpanNameFormatter(f SpanNameFormatter) Option {
	return func(cfg *internalConfig) {
		cfg.SpanNameFormatter = f
	}
}

// WithBreaker wraps the transport in a circuit breaker.
//
// Example:
//
//	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{"localhost:6379"}})
//	client := httpclient.New(
//	    httpclient.WithServiceName("orders"),
//	    httpclient.WithBreaker(httpclient.DistributedBreakerConfig(httpclient.NewRedisStore(rdb))),
//	)
func WithBreaker(c BreakerConfig) Option {
	return func(cfg *internalConfig) {
		cfg.BreakerConfig = &c
	}
}

// WithRateLimit limits the request rate of the client.
func WithRateLimit(c RateLimitConfig) Option {
	return func(cfg *internalConfig) {
		cfg.RateLimitConfig = &c
	}
}

// WithCoalescing shares one in-flight response among identical concurrent
// GET and HEAD requests.
func WithCoalescing() Option {
	return func(cfg *internalConfig) {
		cfg.Coalesce = true
	}
}
