package httpserver

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusHandler returns the /metrics handler for the default registry.
//
//	mux.Handle("/metrics", httpserver.PrometheusHandler())
func PrometheusHandler() http.Handler {
	return promhttp.Handler()
}

// PrometheusHandlerFor returns a /metrics handler for a specific gatherer,
// such as a registry owned by one service.
func PrometheusHandlerFor(g prometheus.Gatherer, opts promhttp.HandlerOpts) http.Handler {
	return promhttp.HandlerFor(g, opts)
}
