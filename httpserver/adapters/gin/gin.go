// Package gin adapts httpserver middleware to the Gin framework.
//
//	r := gin.New()
//	r.Use(ginadapter.Recovery(logger))
//	r.Use(ginadapter.CorrelationID(httpserver.CorrelationConfig{Logger: &logger}))
//	r.Use(ginadapter.RequestOptions())
//	r.Use(ginadapter.Tracing(httpserver.DefaultTracingConfig()))
//
//	r.GET("/orders/:id", func(c *gin.Context) {
//	    opts, _ := httpserver.RequestOptionsFromContext(c.Request.Context())
//	    ...
//	    ginadapter.WriteError(c, err)
//	})
//
// Every middleware stores the matched route (c.FullPath) with
// httpserver.ContextWithRoute, so spans and metrics are named by route.
package gin

import (
	"net/http"
	"time"

	ginlib "github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/kroma-labs/apiclient-go/httpserver"
)

// WrapMiddleware adapts httpserver middleware to Gin middleware.
//
// Handler writes go through the writer the middleware passes on, so
// logging, tracing and metrics see the final status.
//
//	r.Use(ginadapter.WrapMiddleware(myCustomMiddleware))
func WrapMiddleware(m httpserver.Middleware) ginlib.HandlerFunc {
	return func(c *ginlib.Context) {
		if route := c.FullPath(); route != "" {
			c.Request = c.Request.WithContext(httpserver.ContextWithRoute(c.Request.Context(), route))
		}

		original := c.Writer
		var reached bool
		handler := m(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reached = true
			c.Request = r
			if w != http.ResponseWriter(original) {
				c.Writer = &responseWriter{ResponseWriter: original, w: w}
				defer func() { c.Writer = original }()
			}
			c.Next()
		}))
		handler.ServeHTTP(original, c.Request)
		if !reached || c.IsAborted() {
			c.Abort()
		}
	}
}

// responseWriter keeps Gin's bookkeeping from the original writer and sends
// the bytes through the middleware's writer, which ends at the original.
type responseWriter struct {
	ginlib.ResponseWriter
	w http.ResponseWriter
}

func (rw *responseWriter) Header() http.Header {
	return rw.w.Header()
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.w.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	return rw.w.Write(b)
}

func (rw *responseWriter) WriteString(s string) (int, error) {
	return rw.w.Write([]byte(s))
}

// Recovery recovers panics and answers with an UnhandledError.
func Recovery(logger zerolog.Logger) ginlib.HandlerFunc {
	return WrapMiddleware(httpserver.Recovery(logger))
}

// CorrelationID forwards or generates the correlation id.
func CorrelationID(cfg httpserver.CorrelationConfig) ginlib.HandlerFunc {
	return WrapMiddleware(httpserver.CorrelationID(cfg))
}

// RequestOptions parses the `$` query parameters and conditional headers.
func RequestOptions() ginlib.HandlerFunc {
	return WrapMiddleware(httpserver.RequestOptions())
}

// Logger logs every request with its correlation id and error type.
func Logger(cfg httpserver.LoggerConfig) ginlib.HandlerFunc {
	return WrapMiddleware(httpserver.Logger(cfg))
}

// Tracing starts a server span named by the Gin route.
func Tracing(cfg httpserver.TracingConfig) ginlib.HandlerFunc {
	return WrapMiddleware(httpserver.Tracing(cfg))
}

// Metrics records request metrics by Gin route.
//
//	metrics, _ := httpserver.NewMetrics(httpserver.DefaultMetricsConfig())
//	r.Use(ginadapter.Metrics(metrics))
func Metrics(m *httpserver.Metrics) ginlib.HandlerFunc {
	return WrapMiddleware(m.Middleware())
}

// Timeout answers with a TransientError when a handler overruns.
func Timeout(timeout time.Duration) ginlib.HandlerFunc {
	return WrapMiddleware(httpserver.Timeout(timeout))
}

// RateLimit applies token bucket rate limiting.
func RateLimit(cfg httpserver.RateLimitConfig) ginlib.HandlerFunc {
	return WrapMiddleware(httpserver.RateLimit(cfg))
}

// RateLimitByIP rate limits per client IP.
//
//	r.Use(ginadapter.RateLimitByIP(100, 200))
func RateLimitByIP(limit rate.Limit, burst int) ginlib.HandlerFunc {
	return WrapMiddleware(httpserver.RateLimitByIP(limit, burst))
}

// WriteError writes err with the error header contract and aborts.
func WriteError(c *ginlib.Context, err error) {
	httpserver.WriteError(c.Writer, err)
	c.Abort()
}

// WriteResult writes v with 200, or 204 when v is nil.
func WriteResult(c *ginlib.Context, v any) {
	httpserver.WriteResult(c.Writer, v)
}

// WrapHandler wraps an http.Handler as a Gin handler.
//
//	r.GET("/custom", ginadapter.WrapHandler(myHandler))
func WrapHandler(h http.Handler) ginlib.HandlerFunc {
	return func(c *ginlib.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RegisterPrometheus registers the Prometheus metrics endpoint.
//
//	ginadapter.RegisterPrometheus(r, "/metrics")
func RegisterPrometheus(r *ginlib.Engine, path string) {
	if path == "" {
		path = "/metrics"
	}
	r.GET(path, WrapHandler(httpserver.PrometheusHandler()))
}
