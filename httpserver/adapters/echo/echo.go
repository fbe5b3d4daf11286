// Package echo adapts httpserver middleware to the Echo framework.
//
//	e := echo.New()
//	e.HTTPErrorHandler = echoadapter.ErrorHandler
//	e.Use(echoadapter.Recovery(logger))
//	e.Use(echoadapter.CorrelationID(httpserver.CorrelationConfig{}))
//	e.Use(echoadapter.RequestOptions())
//
//	e.GET("/orders/:id", func(c echo.Context) error {
//	    order, err := store.Get(c.Request().Context(), c.Param("id"))
//	    if err != nil {
//	        return err // written by ErrorHandler with x-error-type
//	    }
//	    return echoadapter.WriteResult(c, order)
//	})
package echo

import (
	"fmt"
	"net/http"
	"time"

	echolib "github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/kroma-labs/apiclient-go/httpserver"
	"github.com/kroma-labs/apiclient-go/webapi"
)

// WrapMiddleware adapts httpserver middleware to Echo middleware.
//
// Handler writes go through the writer the middleware passes on, and a
// handler error is written through c.Error inside the middleware, so
// logging, tracing and metrics see the final status.
func WrapMiddleware(m httpserver.Middleware) echolib.MiddlewareFunc {
	return func(next echolib.HandlerFunc) echolib.HandlerFunc {
		return func(c echolib.Context) error {
			req := c.Request()
			if route := c.Path(); route != "" {
				req = req.WithContext(httpserver.ContextWithRoute(req.Context(), route))
			}

			res := c.Response()
			original := res.Writer
			defer func() { res.Writer = original }()

			handler := m(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				res.Writer = w
				c.SetRequest(r)
				if err := next(c); err != nil {
					c.Error(err)
				}
			}))
			handler.ServeHTTP(original, req)
			return nil
		}
	}
}

// statusTypes maps the status of an *echo.HTTPError to an error type.
var statusTypes = map[int]webapi.ErrorType{
	http.StatusBadRequest:          webapi.ValidationError,
	http.StatusUnauthorized:        webapi.AuthenticationError,
	http.StatusForbidden:           webapi.AuthorizationError,
	http.StatusNotFound:            webapi.NotFoundError,
	http.StatusConflict:            webapi.ConflictError,
	http.StatusPreconditionFailed:  webapi.ConcurrencyError,
	http.StatusTooManyRequests:     webapi.TransientError,
	http.StatusServiceUnavailable:  webapi.TransientError,
	http.StatusGatewayTimeout:      webapi.TransientError,
	http.StatusRequestTimeout:      webapi.TransientError,
	http.StatusInternalServerError: webapi.UnhandledError,
}

// ErrorHandler is an echo.HTTPErrorHandler that writes errors with the
// error header contract. Echo's own *echo.HTTPError (404 route, 405 method)
// is mapped by status; other errors go through httpserver.WriteError.
func ErrorHandler(err error, c echolib.Context) {
	if c.Response().Committed {
		return
	}

	if he, ok := err.(*echolib.HTTPError); ok {
		t, known := statusTypes[he.Code]
		if !known {
			t = webapi.UnhandledError
		}
		err = &httpserver.Error{
			Type:    t,
			Status:  he.Code,
			Message: fmt.Sprint(he.Message),
			Err:     he.Internal,
		}
	}

	if c.Request().Method == http.MethodHead {
		httpserver.WriteError(headWriter{c.Response()}, err)
		return
	}
	httpserver.WriteError(c.Response(), err)
}

// headWriter drops the body of HEAD error responses.
type headWriter struct {
	http.ResponseWriter
}

func (w headWriter) Write(b []byte) (int, error) { return len(b), nil }

// Recovery recovers panics and answers with an UnhandledError.
func Recovery(logger zerolog.Logger) echolib.MiddlewareFunc {
	return WrapMiddleware(httpserver.Recovery(logger))
}

// CorrelationID forwards or generates the correlation id.
func CorrelationID(cfg httpserver.CorrelationConfig) echolib.MiddlewareFunc {
	return WrapMiddleware(httpserver.CorrelationID(cfg))
}

// RequestOptions parses the `$` query parameters and conditional headers.
func RequestOptions() echolib.MiddlewareFunc {
	return WrapMiddleware(httpserver.RequestOptions())
}

// Logger logs every request with its correlation id and error type.
func Logger(cfg httpserver.LoggerConfig) echolib.MiddlewareFunc {
	return WrapMiddleware(httpserver.Logger(cfg))
}

// Tracing starts a server span named by the Echo route.
func Tracing(cfg httpserver.TracingConfig) echolib.MiddlewareFunc {
	return WrapMiddleware(httpserver.Tracing(cfg))
}

// Metrics records request metrics by Echo route.
func Metrics(m *httpserver.Metrics) echolib.MiddlewareFunc {
	return WrapMiddleware(m.Middleware())
}

// Timeout answers with a TransientError when a handler overruns.
func Timeout(timeout time.Duration) echolib.MiddlewareFunc {
	return WrapMiddleware(httpserver.Timeout(timeout))
}

// RateLimit applies token bucket rate limiting.
func RateLimit(cfg httpserver.RateLimitConfig) echolib.MiddlewareFunc {
	return WrapMiddleware(httpserver.RateLimit(cfg))
}

// RateLimitByIP rate limits per client IP.
func RateLimitByIP(limit rate.Limit, burst int) echolib.MiddlewareFunc {
	return WrapMiddleware(httpserver.RateLimitByIP(limit, burst))
}

// WriteResult writes v with 200, or 204 when v is nil.
func WriteResult(c echolib.Context, v any) error {
	httpserver.WriteResult(c.Response(), v)
	return nil
}

// WrapHandler wraps an http.Handler as an Echo handler.
func WrapHandler(h http.Handler) echolib.HandlerFunc {
	return echolib.WrapHandler(h)
}

// RegisterPrometheus registers the Prometheus metrics endpoint.
//
//	echoadapter.RegisterPrometheus(e, "/metrics")
func RegisterPrometheus(e *echolib.Echo, path string) {
	if path == "" {
		path = "/metrics"
	}
	e.GET(path, WrapHandler(httpserver.PrometheusHandler()))
}
