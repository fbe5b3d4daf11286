package httpserver

import (
	"net/http"
)

// Middleware is a function that wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain composes multiple middleware into a single middleware.
//
// The first middleware is the outermost (runs first on request, last on
// response).
//
//	handler := httpserver.Chain(
//	    httpserver.Tracing(tp),
//	    httpserver.Recovery(logger),
//	    httpserver.CorrelationID(httpserver.CorrelationConfig{}),
//	)(myHandler)
func Chain(middlewares ...Middleware) Middleware {
	return func(next http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// DefaultMiddleware returns the stack an API speaking the webapi contract
// needs:
//  1. Recovery (when a logger is configured)
//  2. CorrelationID
//  3. RequestOptions
//  4. Logger (when a logger is configured)
//
// Tracing and Metrics need providers and are added separately.
func DefaultMiddleware(opts ...MiddlewareOption) Middleware {
	cfg := &middlewareConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	var middlewares []Middleware
	if cfg.logger != nil {
		middlewares = append(middlewares, Recovery(cfg.logger.Logger))
	}

	correlation := cfg.correlation
	if cfg.logger != nil && correlation.Logger == nil {
		l := cfg.logger.Logger
		correlation.Logger = &l
	}
	middlewares = append(middlewares, CorrelationID(correlation), RequestOptions())

	if cfg.logger != nil {
		middlewares = append(middlewares, Logger(*cfg.logger))
	}

	return Chain(middlewares...)
}

type middlewareConfig struct {
	logger      *LoggerConfig
	correlation CorrelationConfig
}

// MiddlewareOption configures DefaultMiddleware.
type MiddlewareOption func(*middlewareConfig)

// WithDefaultLogger adds recovery and request logging to DefaultMiddleware.
func WithDefaultLogger(cfg LoggerConfig) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.logger = &cfg
	}
}

// WithCorrelation overrides the correlation id settings.
func WithCorrelation(cfg CorrelationConfig) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.correlation = cfg
	}
}
