// Package chi adapts the httpserver contract to the chi router.
//
// chi is net/http based, so httpserver middleware is used with r.Use
// unchanged. This package adds the route pattern chi matched to Tracing and
// Metrics, and answers unmatched routes with the error header contract.
//
//	r := chi.NewRouter()
//	r.Use(httpserver.DefaultMiddleware(httpserver.WithDefaultLogger(logCfg)))
//	r.Use(chiadapter.Tracing(httpserver.TracingConfig{}))
//	chiadapter.HandleErrors(r)
//
//	r.Get("/orders/{id}", getOrder)
package chi

import (
	"net/http"

	chilib "github.com/go-chi/chi/v5"

	"github.com/kroma-labs/apiclient-go/httpserver"
	"github.com/kroma-labs/apiclient-go/webapi"
)

// RoutePattern returns the pattern chi matched for r, such as
// "/orders/{id}". It is complete only after the router handled r.
func RoutePattern(r *http.Request) string {
	rctx := chilib.RouteContext(r.Context())
	if rctx == nil {
		return ""
	}
	return rctx.RoutePattern()
}

// Tracing is httpserver.Tracing with spans named by the chi route pattern.
func Tracing(cfg httpserver.TracingConfig) httpserver.Middleware {
	if cfg.RouteFunc == nil {
		cfg.RouteFunc = RoutePattern
	}
	return httpserver.Tracing(cfg)
}

// NewMetrics is httpserver.NewMetrics recording the chi route pattern as
// http.route.
func NewMetrics(cfg httpserver.MetricsConfig) (*httpserver.Metrics, error) {
	if cfg.RouteFunc == nil {
		cfg.RouteFunc = func(r *http.Request) string {
			if route := RoutePattern(r); route != "" {
				return route
			}
			return r.URL.Path
		}
	}
	return httpserver.NewMetrics(cfg)
}

// NotFound answers unmatched paths with a NotFoundError.
func NotFound(w http.ResponseWriter, _ *http.Request) {
	httpserver.WriteError(w, httpserver.NewError(webapi.NotFoundError, http.StatusText(http.StatusNotFound)))
}

// MethodNotAllowed answers unmatched methods with status 405.
func MethodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	httpserver.WriteError(w, &httpserver.Error{
		Type:    webapi.UnhandledError,
		Status:  http.StatusMethodNotAllowed,
		Message: http.StatusText(http.StatusMethodNotAllowed),
	})
}

// HandleErrors installs NotFound and MethodNotAllowed on r.
func HandleErrors(r *chilib.Mux) {
	r.NotFound(NotFound)
	r.MethodNotAllowed(MethodNotAllowed)
}

// RegisterPrometheus registers the Prometheus metrics endpoint.
func RegisterPrometheus(r chilib.Router, path string) {
	if path == "" {
		path = "/metrics"
	}
	r.Method(http.MethodGet, path, httpserver.PrometheusHandler())
}
