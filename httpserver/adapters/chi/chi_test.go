package chi_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	chilib "github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/kroma-labs/apiclient-go/httpserver"
	chiadapter "github.com/kroma-labs/apiclient-go/httpserver/adapters/chi"
	"github.com/kroma-labs/apiclient-go/webapi"
)

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestTracing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		path      string
		wantName  string
		wantRoute string
	}{
		{
			name:      "given a matched route, then the span is named by its pattern",
			path:      "/orders/7",
			wantName:  "HTTP GET /orders/{id}",
			wantRoute: "/orders/{id}",
		},
		{
			name:      "given a nested route, then the full pattern is used",
			path:      "/customers/3/orders/9",
			wantName:  "HTTP GET /customers/{cid}/orders/{id}",
			wantRoute: "/customers/{cid}/orders/{id}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			exporter := tracetest.NewInMemoryExporter()
			tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

			r := chilib.NewRouter()
			r.Use(chiadapter.Tracing(httpserver.TracingConfig{TracerProvider: tp}))
			r.Get("/orders/{id}", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
			r.Route("/customers/{cid}", func(r chilib.Router) {
				r.Get("/orders/{id}", func(w http.ResponseWriter, _ *http.Request) {
					w.WriteHeader(http.StatusOK)
				})
			})

			rec := serve(r, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, http.StatusOK, rec.Code)

			spans := exporter.GetSpans()
			require.Len(t, spans, 1)
			assert.Equal(t, tt.wantName, spans[0].Name)

			var route string
			for _, a := range spans[0].Attributes {
				if a.Key == "http.route" {
					route = a.Value.AsString()
				}
			}
			assert.Equal(t, tt.wantRoute, route)
		})
	}
}

func TestNewMetrics(t *testing.T) {
	t.Parallel()

	t.Run("given a failing route, then errors are counted by pattern and type", func(t *testing.T) {
		t.Parallel()

		reader := sdkmetric.NewManualReader()
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

		metrics, err := chiadapter.NewMetrics(httpserver.MetricsConfig{MeterProvider: mp})
		require.NoError(t, err)

		r := chilib.NewRouter()
		r.Use(metrics.Middleware())
		r.Get("/orders/{id}", func(w http.ResponseWriter, _ *http.Request) {
			httpserver.WriteError(w, httpserver.NewError(webapi.NotFoundError, "missing"))
		})

		serve(r, httptest.NewRequest(http.MethodGet, "/orders/1", nil))
		serve(r, httptest.NewRequest(http.MethodGet, "/orders/2", nil))

		var rm metricdata.ResourceMetrics
		require.NoError(t, reader.Collect(context.Background(), &rm))

		var found bool
		for _, sm := range rm.ScopeMetrics {
			for _, m := range sm.Metrics {
				if m.Name != "http.server.errors" {
					continue
				}
				sum, ok := m.Data.(metricdata.Sum[int64])
				require.True(t, ok)
				require.Len(t, sum.DataPoints, 1)
				dp := sum.DataPoints[0]
				assert.Equal(t, int64(2), dp.Value)

				route, _ := dp.Attributes.Value("http.route")
				assert.Equal(t, "/orders/{id}", route.AsString())
				errType, _ := dp.Attributes.Value("error.type")
				assert.Equal(t, "not_found", errType.AsString())
				found = true
			}
		}
		assert.True(t, found)
	})
}

func TestHandleErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantType   string
	}{
		{
			name:       "given an unknown path, then not found",
			method:     http.MethodGet,
			path:       "/nowhere",
			wantStatus: http.StatusNotFound,
			wantType:   "not_found",
		},
		{
			name:       "given a wrong method, then 405 unhandled",
			method:     http.MethodDelete,
			path:       "/orders",
			wantStatus: http.StatusMethodNotAllowed,
			wantType:   "unhandled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := chilib.NewRouter()
			chiadapter.HandleErrors(r)
			r.Get("/orders", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

			rec := serve(r, httptest.NewRequest(tt.method, tt.path, nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantType, rec.Header().Get("x-error-type"))
		})
	}
}

func TestMiddlewareWithChi(t *testing.T) {
	t.Parallel()

	t.Run("given the default middleware, then handlers read correlation and options", func(t *testing.T) {
		t.Parallel()

		var (
			id   string
			opts webapi.RequestOptions
		)
		r := chilib.NewRouter()
		r.Use(httpserver.DefaultMiddleware())
		r.Get("/orders", func(w http.ResponseWriter, req *http.Request) {
			id = webapi.CorrelationIDFromContext(req.Context())
			opts, _ = httpserver.RequestOptionsFromContext(req.Context())
			httpserver.WriteResult(w, nil)
		})

		req := httptest.NewRequest(http.MethodGet, "/orders?$skip=10&$take=5", nil)
		req.Header.Set("x-correlation-id", "chi-1")
		rec := serve(r, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "chi-1", id)
		require.NotNil(t, opts.Paging)
		assert.Equal(t, webapi.NewSkipTake(10, 5), *opts.Paging)
	})
}

func TestRegisterPrometheus(t *testing.T) {
	t.Parallel()

	t.Run("given prometheus registered, then metrics endpoint works", func(t *testing.T) {
		t.Parallel()

		r := chilib.NewRouter()
		chiadapter.RegisterPrometheus(r, "")

		rec := serve(r, httptest.NewRequest(http.MethodGet, "/metrics", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "go_goroutines")
	})
}
