package gin_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	ginlib "github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/kroma-labs/apiclient-go/httpserver"
	ginadapter "github.com/kroma-labs/apiclient-go/httpserver/adapters/gin"
	"github.com/kroma-labs/apiclient-go/webapi"
)

func init() {
	ginlib.SetMode(ginlib.TestMode)
}

func serve(r *ginlib.Engine, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestWrapMiddleware(t *testing.T) {
	t.Parallel()

	t.Run("given httpserver middleware, when wrapped, then works with Gin", func(t *testing.T) {
		t.Parallel()

		r := ginlib.New()
		r.Use(ginadapter.WrapMiddleware(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				w.Header().Set("X-Custom", "test-value")
				next.ServeHTTP(w, req)
			})
		}))
		r.GET("/test", func(c *ginlib.Context) {
			c.String(http.StatusOK, "hello")
		})

		rec := serve(r, httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "test-value", rec.Header().Get("X-Custom"))
		assert.Equal(t, "hello", rec.Body.String())
	})

	t.Run("given middleware that does not call next, then the handler is skipped", func(t *testing.T) {
		t.Parallel()

		called := false
		r := ginlib.New()
		r.Use(ginadapter.WrapMiddleware(func(http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusTeapot)
			})
		}))
		r.GET("/test", func(*ginlib.Context) { called = true })

		rec := serve(r, httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.Equal(t, http.StatusTeapot, rec.Code)
		assert.False(t, called)
	})
}

func TestCorrelationAndOptions(t *testing.T) {
	t.Parallel()

	t.Run("given an incoming id and options, then handlers read both from the context", func(t *testing.T) {
		t.Parallel()

		var (
			id   string
			opts webapi.RequestOptions
		)
		r := ginlib.New()
		r.Use(ginadapter.CorrelationID(httpserver.CorrelationConfig{}), ginadapter.RequestOptions())
		r.GET("/orders", func(c *ginlib.Context) {
			id = webapi.CorrelationIDFromContext(c.Request.Context())
			opts, _ = httpserver.RequestOptionsFromContext(c.Request.Context())
			c.Status(http.StatusOK)
		})

		req := httptest.NewRequest(http.MethodGet, "/orders?$skip=10&$take=5", nil)
		req.Header.Set("x-correlation-id", "gin-1")
		rec := serve(r, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "gin-1", id)
		assert.Equal(t, "gin-1", rec.Header().Get("x-correlation-id"))
		require.NotNil(t, opts.Paging)
		assert.Equal(t, int64(10), opts.Paging.Skip)
		assert.Equal(t, int64(5), opts.Paging.Take)
	})

	t.Run("given malformed options, then a validation error and no handler", func(t *testing.T) {
		t.Parallel()

		called := false
		r := ginlib.New()
		r.Use(ginadapter.RequestOptions())
		r.GET("/orders", func(*ginlib.Context) { called = true })

		rec := serve(r, httptest.NewRequest(http.MethodGet, "/orders?$page=x", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "validation", rec.Header().Get("x-error-type"))
		assert.False(t, called)
	})
}

func TestRecovery(t *testing.T) {
	t.Parallel()

	t.Run("given a panicking handler, then 500 unhandled", func(t *testing.T) {
		t.Parallel()

		r := ginlib.New()
		r.Use(ginadapter.Recovery(zerolog.Nop()))
		r.GET("/panic", func(*ginlib.Context) { panic("boom") })

		rec := serve(r, httptest.NewRequest(http.MethodGet, "/panic", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "unhandled", rec.Header().Get("x-error-type"))
	})
}

func TestTracing(t *testing.T) {
	t.Parallel()

	t.Run("given a parameterized route, then the span is named by it and sees the status", func(t *testing.T) {
		t.Parallel()

		exporter := tracetest.NewInMemoryExporter()
		tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

		r := ginlib.New()
		r.Use(ginadapter.Tracing(httpserver.TracingConfig{TracerProvider: tp}))
		r.GET("/orders/:id", func(c *ginlib.Context) {
			ginadapter.WriteError(c, httpserver.NewError(webapi.NotFoundError, "missing"))
		})

		rec := serve(r, httptest.NewRequest(http.MethodGet, "/orders/42", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		assert.Equal(t, "HTTP GET /orders/:id", spans[0].Name)

		attrs := map[string]any{}
		for _, a := range spans[0].Attributes {
			attrs[string(a.Key)] = a.Value.AsInterface()
		}
		assert.Equal(t, int64(http.StatusNotFound), attrs["http.response.status_code"])
		assert.Equal(t, "not_found", attrs["error.type"])
	})
}

func TestWriteError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{
			name:       "given a not found error, then 404",
			err:        httpserver.NewError(webapi.NotFoundError, "missing"),
			wantStatus: http.StatusNotFound,
			wantType:   "not_found",
		},
		{
			name:       "given a plain error, then 500 unhandled",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantType:   "unhandled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			after := false
			r := ginlib.New()
			r.GET("/orders", func(c *ginlib.Context) {
				ginadapter.WriteError(c, tt.err)
			}, func(*ginlib.Context) { after = true })

			rec := serve(r, httptest.NewRequest(http.MethodGet, "/orders", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantType, rec.Header().Get("x-error-type"))
			assert.False(t, after)
		})
	}
}

func TestWriteResult(t *testing.T) {
	t.Parallel()

	t.Run("given a value, then JSON", func(t *testing.T) {
		t.Parallel()

		r := ginlib.New()
		r.GET("/orders/1", func(c *ginlib.Context) {
			ginadapter.WriteResult(c, map[string]int{"id": 1})
		})

		rec := serve(r, httptest.NewRequest(http.MethodGet, "/orders/1", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"id":1}`, rec.Body.String())
	})
}

func TestTimeout(t *testing.T) {
	t.Parallel()

	t.Run("given a fast handler, then it completes", func(t *testing.T) {
		t.Parallel()

		r := ginlib.New()
		r.Use(ginadapter.Timeout(5 * time.Second))
		r.GET("/test", func(c *ginlib.Context) { c.String(http.StatusOK, "ok") })

		rec := serve(r, httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ok", rec.Body.String())
	})
}

func TestRateLimit(t *testing.T) {
	t.Parallel()

	t.Run("given the limit is exceeded, then 429 transient", func(t *testing.T) {
		t.Parallel()

		r := ginlib.New()
		r.Use(ginadapter.RateLimit(httpserver.RateLimitConfig{Limit: 0.001, Burst: 1}))
		r.GET("/test", func(c *ginlib.Context) { c.String(http.StatusOK, "ok") })

		assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/test", nil)).Code)

		rec := serve(r, httptest.NewRequest(http.MethodGet, "/test", nil))
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "transient", rec.Header().Get("x-error-type"))
	})

	t.Run("given per-IP limits, then IPs do not share a bucket", func(t *testing.T) {
		t.Parallel()

		r := ginlib.New()
		r.Use(ginadapter.RateLimitByIP(0.001, 1))
		r.GET("/test", func(c *ginlib.Context) { c.String(http.StatusOK, "ok") })

		req := func(ip string) *http.Request {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.RemoteAddr = ip + ":1234"
			return req
		}

		assert.Equal(t, http.StatusOK, serve(r, req("10.0.0.1")).Code)
		assert.Equal(t, http.StatusTooManyRequests, serve(r, req("10.0.0.1")).Code)
		assert.Equal(t, http.StatusOK, serve(r, req("10.0.0.2")).Code)
	})
}

func TestRegisterPrometheus(t *testing.T) {
	t.Parallel()

	t.Run("given prometheus registered, then metrics endpoint works", func(t *testing.T) {
		t.Parallel()

		r := ginlib.New()
		ginadapter.RegisterPrometheus(r, "")

		rec := serve(r, httptest.NewRequest(http.MethodGet, "/metrics", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "go_goroutines")
	})
}
