package httpserver

import (
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/kroma-labs/apiclient-go/webapi"
)

const tracerName = "github.com/kroma-labs/apiclient-go/httpserver"

// TracingConfig configures the tracing middleware.
type TracingConfig struct {
	// TracerProvider is the OTel tracer provider.
	// If nil, uses otel.GetTracerProvider().
	TracerProvider trace.TracerProvider

	// Propagator is the context propagator.
	// If nil, uses otel.GetTextMapPropagator().
	Propagator propagation.TextMapPropagator

	// ServiceName is recorded as service.name when set.
	ServiceName string

	// Names are the header names the error type is read back from.
	Names webapi.HeaderNames

	// SkipPaths are paths that should not be traced.
	SkipPaths []string

	// SpanNameFormatter formats the span name.
	// Default: "HTTP {method} {path}", renamed to "HTTP {method} {route}"
	// once the route is known.
	SpanNameFormatter func(r *http.Request) string

	// RouteFunc returns the matched route after the handler ran.
	// Default: RouteFromContext.
	RouteFunc func(r *http.Request) string
}

// DefaultTracingConfig returns a default tracing configuration.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		TracerProvider: otel.GetTracerProvider(),
		Propagator:     otel.GetTextMapPropagator(),
	}
}

// Tracing returns middleware that adds OpenTelemetry tracing to requests.
//
// The incoming trace context is extracted, so a span started by an
// httpclient caller becomes the parent of the server span. The span carries
// the correlation id and the x-error-type of error responses; 5xx responses
// mark it as an error.
//
//	handler := httpserver.Tracing(httpserver.TracingConfig{
//	    TracerProvider: tp,
//	    ServiceName:    "orders",
//	})(myHandler)
func Tracing(cfg TracingConfig) Middleware {
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}
	if cfg.Propagator == nil {
		cfg.Propagator = otel.GetTextMapPropagator()
	}
	renameByRoute := cfg.SpanNameFormatter == nil
	if cfg.SpanNameFormatter == nil {
		cfg.SpanNameFormatter = func(r *http.Request) string {
			return "HTTP " + r.Method + " " + r.URL.Path
		}
	}
	if cfg.RouteFunc == nil {
		cfg.RouteFunc = routeFromRequest
	}

	tracer := cfg.TracerProvider.Tracer(
		tracerName,
		trace.WithInstrumentationVersion("1.0.0"),
	)
	names := cfg.Names.Normalize()

	skipPaths := make(map[string]bool)
	for _, path := range cfg.SkipPaths {
		skipPaths[path] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			ctx := cfg.Propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

			attrs := []attribute.KeyValue{
				semconv.HTTPRequestMethodKey.String(r.Method),
				semconv.URLPath(r.URL.Path),
				semconv.ServerAddress(r.Host),
				semconv.UserAgentOriginal(r.UserAgent()),
				semconv.ClientAddress(r.RemoteAddr),
			}
			if cfg.ServiceName != "" {
				attrs = append(attrs, semconv.ServiceName(cfg.ServiceName))
			}

			ctx, span := tracer.Start(ctx, cfg.SpanNameFormatter(r),
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(attrs...),
			)
			defer span.End()

			wrapped := wrapResponseWriter(w)
			r = r.WithContext(ctx)
			next.ServeHTTP(wrapped, r)

			if route := cfg.RouteFunc(r); route != "" {
				span.SetAttributes(semconv.HTTPRoute(route))
				if renameByRoute {
					span.SetName("HTTP " + r.Method + " " + route)
				}
			}

			// CorrelationID may run inside Tracing; its response header is
			// set either way.
			id := webapi.CorrelationIDFromContext(ctx)
			if id == "" {
				id = wrapped.Header().Get(names.CorrelationID)
			}
			if id != "" {
				span.SetAttributes(attribute.String("correlation.id", id))
			}

			status := wrapped.Status()
			span.SetAttributes(semconv.HTTPResponseStatusCode(status))
			if errorType := wrapped.Header().Get(names.ErrorType); errorType != "" {
				span.SetAttributes(attribute.String("error.type", errorType))
			}
			if status >= 500 {
				span.SetStatus(codes.Error, http.StatusText(status))
			}
		})
	}
}
