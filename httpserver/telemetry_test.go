package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/kroma-labs/apiclient-go/webapi"
)

func attrValue(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, a := range attrs {
		if string(a.Key) == key {
			return a.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTracing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		handler    http.Handler
		wantStatus codes.Code
		wantType   string
	}{
		{
			name:       "given a success, then an unset status",
			handler:    okHandler(),
			wantStatus: codes.Unset,
		},
		{
			name: "given a known error, then the error type is recorded",
			handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				WriteError(w, NewError(webapi.ConflictError, "taken"))
			}),
			wantStatus: codes.Unset,
			wantType:   "conflict",
		},
		{
			name: "given an unhandled error, then the span is an error",
			handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				WriteError(w, context.Canceled)
			}),
			wantStatus: codes.Error,
			wantType:   "unhandled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			exporter := tracetest.NewInMemoryExporter()
			tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

			h := Chain(
				Tracing(TracingConfig{TracerProvider: tp, ServiceName: "orders"}),
				CorrelationID(CorrelationConfig{Generate: func() string { return "span-1" }}),
			)(tt.handler)
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/orders/1", nil))

			spans := exporter.GetSpans()
			require.Len(t, spans, 1)
			span := spans[0]

			assert.Equal(t, "HTTP GET /orders/1", span.Name)
			assert.Equal(t, trace.SpanKindServer, span.SpanKind)
			assert.Equal(t, tt.wantStatus, span.Status.Code)

			id, ok := attrValue(span.Attributes, "correlation.id")
			require.True(t, ok)
			assert.Equal(t, "span-1", id.AsString())

			errType, ok := attrValue(span.Attributes, "error.type")
			if tt.wantType == "" {
				assert.False(t, ok)
			} else {
				require.True(t, ok)
				assert.Equal(t, tt.wantType, errType.AsString())
			}
		})
	}

	t.Run("given an incoming traceparent, then the server span is its child", func(t *testing.T) {
		t.Parallel()

		exporter := tracetest.NewInMemoryExporter()
		tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
		prop := propagation.TraceContext{}

		parentCtx, parent := tp.Tracer("caller").Start(context.Background(), "call")
		req := httptest.NewRequest(http.MethodGet, "/orders", nil)
		prop.Inject(parentCtx, propagation.HeaderCarrier(req.Header))
		parent.End()

		h := Tracing(TracingConfig{TracerProvider: tp, Propagator: prop})(okHandler())
		h.ServeHTTP(httptest.NewRecorder(), req)

		var server sdktrace.ReadOnlySpan
		for _, s := range exporter.GetSpans().Snapshots() {
			if s.SpanKind() == trace.SpanKindServer {
				server = s
			}
		}
		require.NotNil(t, server)
		assert.Equal(t, parent.SpanContext().TraceID(), server.SpanContext().TraceID())
		assert.Equal(t, parent.SpanContext().SpanID(), server.Parent().SpanID())
	})

	t.Run("given a route in the context, then the span is named by it", func(t *testing.T) {
		t.Parallel()

		exporter := tracetest.NewInMemoryExporter()
		tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

		req := httptest.NewRequest(http.MethodGet, "/orders/42", nil)
		req = req.WithContext(ContextWithRoute(req.Context(), "/orders/{id}"))
		Tracing(TracingConfig{TracerProvider: tp})(okHandler()).ServeHTTP(httptest.NewRecorder(), req)

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		assert.Equal(t, "HTTP GET /orders/{id}", spans[0].Name)
		route, ok := attrValue(spans[0].Attributes, "http.route")
		require.True(t, ok)
		assert.Equal(t, "/orders/{id}", route.AsString())
	})

	t.Run("given a skipped path, then no span", func(t *testing.T) {
		t.Parallel()

		exporter := tracetest.NewInMemoryExporter()
		tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

		h := Tracing(TracingConfig{TracerProvider: tp, SkipPaths: []string{"/metrics"}})(okHandler())
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))

		assert.Empty(t, exporter.GetSpans())
	})
}

func TestMetrics(t *testing.T) {
	t.Parallel()

	t.Run("given error responses, then errors are counted by type and route", func(t *testing.T) {
		t.Parallel()

		reader := sdkmetric.NewManualReader()
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

		m, err := NewMetrics(MetricsConfig{
			MeterProvider: mp,
			RouteFunc:     func(*http.Request) string { return "/orders/{id}" },
		})
		require.NoError(t, err)

		h := m.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/orders/404" {
				WriteError(w, NewError(webapi.NotFoundError, "missing"))
				return
			}
			_, _ = w.Write([]byte("ok"))
		}))

		for _, p := range []string{"/orders/1", "/orders/404", "/orders/404"} {
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
		}

		var rm metricdata.ResourceMetrics
		require.NoError(t, reader.Collect(context.Background(), &rm))

		found := map[string]bool{}
		for _, sm := range rm.ScopeMetrics {
			for _, md := range sm.Metrics {
				found[md.Name] = true
				if md.Name != "http.server.errors" {
					continue
				}
				sum, ok := md.Data.(metricdata.Sum[int64])
				require.True(t, ok)
				require.Len(t, sum.DataPoints, 1)
				dp := sum.DataPoints[0]
				assert.Equal(t, int64(2), dp.Value)

				v, ok := dp.Attributes.Value("error.type")
				require.True(t, ok)
				assert.Equal(t, "not_found", v.AsString())
				v, ok = dp.Attributes.Value("http.route")
				require.True(t, ok)
				assert.Equal(t, "/orders/{id}", v.AsString())
			}
		}

		assert.True(t, found["http.server.request.duration"])
		assert.True(t, found["http.server.response.size"])
		assert.True(t, found["http.server.active_requests"])
		assert.True(t, found["http.server.errors"])
	})
}

func TestPrometheusHandler(t *testing.T) {
	t.Parallel()

	t.Run("given the default registry, then text exposition is served", func(t *testing.T) {
		t.Parallel()

		rec := httptest.NewRecorder()
		PrometheusHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "go_goroutines")
	})
}
