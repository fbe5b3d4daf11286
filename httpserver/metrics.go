package httpserver

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/kroma-labs/apiclient-go/webapi"
)

// Metrics records server metrics using OpenTelemetry.
type Metrics struct {
	serviceName     string
	names           webapi.HeaderNames
	routeFunc       func(*http.Request) string
	skipPaths       map[string]bool
	requestDuration metric.Float64Histogram
	requestSize     metric.Int64Histogram
	responseSize    metric.Int64Histogram
	activeRequests  metric.Int64UpDownCounter
	errorTotal      metric.Int64Counter
}

// MetricsConfig configures the metrics middleware.
type MetricsConfig struct {
	// MeterProvider is the OTel meter provider.
	// If nil, uses otel.GetMeterProvider().
	MeterProvider metric.MeterProvider

	// ServiceName is recorded as service.name when set.
	ServiceName string

	// Names are the header names the error type is read back from.
	Names webapi.HeaderNames

	// RouteFunc returns the route recorded as http.route after the handler
	// ran. Default: RouteFromContext, falling back to the URL path.
	RouteFunc func(*http.Request) string

	// SkipPaths are paths that should not be recorded.
	SkipPaths []string

	// DurationBuckets are the request duration histogram bounds in seconds.
	DurationBuckets []float64
}

// DefaultMetricsConfig returns a default metrics configuration.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		MeterProvider: otel.GetMeterProvider(),
		DurationBuckets: []float64{
			0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
		},
	}
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = otel.GetMeterProvider()
	}
	if cfg.RouteFunc == nil {
		cfg.RouteFunc = func(r *http.Request) string {
			if route := RouteFromContext(r.Context()); route != "" {
				return route
			}
			return r.URL.Path
		}
	}

	meter := cfg.MeterProvider.Meter(
		tracerName,
		metric.WithInstrumentationVersion("1.0.0"),
	)

	durationOpts := []metric.Float64HistogramOption{
		metric.WithDescription("Duration of HTTP requests in seconds"),
		metric.WithUnit("s"),
	}
	if len(cfg.DurationBuckets) > 0 {
		durationOpts = append(durationOpts, metric.WithExplicitBucketBoundaries(cfg.DurationBuckets...))
	}
	requestDuration, err := meter.Float64Histogram("http.server.request.duration", durationOpts...)
	if err != nil {
		return nil, err
	}

	requestSize, err := meter.Int64Histogram(
		"http.server.request.size",
		metric.WithDescription("Size of HTTP request bodies in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	responseSize, err := meter.Int64Histogram(
		"http.server.response.size",
		metric.WithDescription("Size of HTTP response bodies in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	activeRequests, err := meter.Int64UpDownCounter(
		"http.server.active_requests",
		metric.WithDescription("Number of active HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	errorTotal, err := meter.Int64Counter(
		"http.server.errors",
		metric.WithDescription("Error responses by x-error-type"),
	)
	if err != nil {
		return nil, err
	}

	skip := make(map[string]bool, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = true
	}

	return &Metrics{
		serviceName:     cfg.ServiceName,
		names:           cfg.Names.Normalize(),
		routeFunc:       cfg.RouteFunc,
		skipPaths:       skip,
		requestDuration: requestDuration,
		requestSize:     requestSize,
		responseSize:    responseSize,
		activeRequests:  activeRequests,
		errorTotal:      errorTotal,
	}, nil
}

// Middleware returns middleware that records:
//   - http.server.request.duration
//   - http.server.request.size and http.server.response.size
//   - http.server.active_requests
//   - http.server.errors, by the error.type written by WriteError
//
// Example:
//
//	metrics, _ := httpserver.NewMetrics(httpserver.DefaultMetricsConfig())
//	handler := metrics.Middleware()(myHandler)
func (m *Metrics) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.skipPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			ctx := r.Context()

			attrs := []attribute.KeyValue{
				attribute.String("http.request.method", r.Method),
			}
			if m.serviceName != "" {
				attrs = append(attrs, attribute.String("service.name", m.serviceName))
			}
			active := metric.WithAttributes(attrs...)

			m.activeRequests.Add(ctx, 1, active)
			defer m.activeRequests.Add(ctx, -1, active)

			wrapped := wrapResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			attrs = append(attrs,
				attribute.String("http.route", m.routeFunc(r)),
				attribute.Int("http.response.status_code", wrapped.Status()),
			)
			done := metric.WithAttributes(attrs...)

			if r.ContentLength > 0 {
				m.requestSize.Record(ctx, r.ContentLength, done)
			}

			m.requestDuration.Record(ctx, time.Since(start).Seconds(), done)
			m.responseSize.Record(ctx, int64(wrapped.BytesWritten()), done)

			if errorType := wrapped.Header().Get(m.names.ErrorType); errorType != "" {
				m.errorTotal.Add(ctx, 1, metric.WithAttributes(
					append(attrs, attribute.String("error.type", errorType))...))
			}
		})
	}
}
