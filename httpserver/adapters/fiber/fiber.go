// Package fiber adapts the httpserver contract to the Fiber framework.
//
// Fiber is not net/http based: middleware wrapped through the adaptor runs
// before the Fiber handler and cannot observe its response. CorrelationID,
// RequestOptions, Recovery, Logger and Tracing are therefore native Fiber
// handlers that share httpserver's configuration types and error rendering.
//
//	app := fiber.New(fiber.Config{ErrorHandler: fiberadapter.ErrorHandler})
//	app.Use(fiberadapter.Recovery(logger))
//	app.Use(fiberadapter.CorrelationID(httpserver.CorrelationConfig{}))
//	app.Use(fiberadapter.RequestOptions())
//
//	app.Get("/orders/:id", func(c *fiber.Ctx) error {
//	    opts, _ := httpserver.RequestOptionsFromContext(c.UserContext())
//	    ...
//	})
package fiber

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"runtime/debug"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/kroma-labs/apiclient-go/httpserver"
	"github.com/kroma-labs/apiclient-go/webapi"
)

const tracerName = "github.com/kroma-labs/apiclient-go/httpserver/adapters/fiber"

// WrapMiddleware adapts httpserver middleware that acts before the handler,
// such as RateLimit.
func WrapMiddleware(m httpserver.Middleware) fiber.Handler {
	return adaptor.HTTPMiddleware(func(next http.Handler) http.Handler {
		return m(next)
	})
}

// WriteError writes err with the error header contract.
func WriteError(c *fiber.Ctx, err error) error {
	status, header, body := httpserver.RenderError(err)
	for k, vs := range header {
		for _, v := range vs {
			c.Set(k, v)
		}
	}
	return c.Status(status).Send(body)
}

// WriteResult writes v with 200, or 204 when v is nil.
func WriteResult(c *fiber.Ctx, v any) error {
	if v == nil {
		return c.SendStatus(fiber.StatusNoContent)
	}
	return c.Status(fiber.StatusOK).JSON(v)
}

// statusTypes maps the code of a *fiber.Error to an error type.
var statusTypes = map[int]webapi.ErrorType{
	fiber.StatusBadRequest:          webapi.ValidationError,
	fiber.StatusUnauthorized:        webapi.AuthenticationError,
	fiber.StatusForbidden:           webapi.AuthorizationError,
	fiber.StatusNotFound:            webapi.NotFoundError,
	fiber.StatusConflict:            webapi.ConflictError,
	fiber.StatusPreconditionFailed:  webapi.ConcurrencyError,
	fiber.StatusRequestTimeout:      webapi.TransientError,
	fiber.StatusTooManyRequests:     webapi.TransientError,
	fiber.StatusServiceUnavailable:  webapi.TransientError,
	fiber.StatusGatewayTimeout:      webapi.TransientError,
	fiber.StatusInternalServerError: webapi.UnhandledError,
}

// ErrorHandler is a fiber.ErrorHandler writing errors with the error header
// contract. Fiber's own *fiber.Error is mapped by status.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		t, ok := statusTypes[fe.Code]
		if !ok {
			t = webapi.UnhandledError
		}
		err = &httpserver.Error{Type: t, Status: fe.Code, Message: fe.Message}
	}
	return WriteError(c, err)
}

// next runs the rest of the chain and writes its error, so the caller sees
// the final status.
func next(c *fiber.Ctx) {
	if err := c.Next(); err != nil {
		if herr := c.App().ErrorHandler(c, err); herr != nil {
			_ = c.SendStatus(fiber.StatusInternalServerError)
		}
	}
}

// CorrelationID forwards or generates the correlation id and stores it in
// c.UserContext().
func CorrelationID(cfg httpserver.CorrelationConfig) fiber.Handler {
	header := cfg.HeaderName()
	return func(c *fiber.Ctx) error {
		id := c.Get(header)
		if id == "" {
			id = cfg.NewID()
		}
		c.Set(header, id)
		c.SetUserContext(cfg.Context(c.UserContext(), id))
		return c.Next()
	}
}

// RequestOptions parses the `$` query parameters and conditional headers
// into c.UserContext().
func RequestOptions() fiber.Handler {
	return func(c *fiber.Ctx) error {
		query, err := url.ParseQuery(string(c.Request().URI().QueryString()))
		if err != nil {
			return WriteError(c, httpserver.NewValidationError(map[string][]string{
				"query": {err.Error()},
			}))
		}

		header := make(http.Header)
		for _, name := range []string{"If-Match", "If-None-Match"} {
			if v := c.Get(name); v != "" {
				header.Set(name, v)
			}
		}

		opts, err := httpserver.ReadRequestOptions(c.Method(), query, header)
		if err != nil {
			return WriteError(c, err)
		}
		c.SetUserContext(httpserver.ContextWithRequestOptions(c.UserContext(), opts))
		return c.Next()
	}
}

// Recovery recovers panics and answers with an UnhandledError.
func Recovery(logger zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			logger.Error().
				Interface("panic", rec).
				Str("method", c.Method()).
				Str("path", c.Path()).
				Str("correlation_id", webapi.CorrelationIDFromContext(c.UserContext())).
				Str("stack", string(debug.Stack())).
				Msg("panic recovered")

			err = WriteError(c, &httpserver.Error{
				Type:    webapi.UnhandledError,
				Message: "an unexpected error occurred",
				Err:     fmt.Errorf("panic: %v", rec),
			})
		}()
		return c.Next()
	}
}

// Logger logs every request with its correlation id and error type.
func Logger(cfg httpserver.LoggerConfig) fiber.Handler {
	names := cfg.Names.Normalize()
	skip := make(map[string]bool, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = true
	}

	return func(c *fiber.Ctx) error {
		if skip[c.Path()] {
			return c.Next()
		}

		start := time.Now()
		next(c)
		status := c.Response().StatusCode()

		event := cfg.Logger.Info()
		switch {
		case status >= 500:
			event = cfg.Logger.Error()
		case status >= 400:
			event = cfg.Logger.Warn()
		}
		if cfg.ServiceName != "" {
			event.Str("service", cfg.ServiceName)
		}
		event.
			Str("method", c.Method()).
			Str("path", c.Path()).
			Str("route", c.Route().Path).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Int("bytes", len(c.Response().Body())).
			Str("remote_addr", c.IP())
		if id := webapi.CorrelationIDFromContext(c.UserContext()); id != "" {
			event.Str("correlation_id", id)
		}
		if t := c.GetRespHeader(names.ErrorType); t != "" {
			event.Str("error_type", t)
		}
		event.Msg("request completed")
		return nil
	}
}

// Tracing starts a server span named by the Fiber route.
func Tracing(cfg httpserver.TracingConfig) fiber.Handler {
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}
	if cfg.Propagator == nil {
		cfg.Propagator = otel.GetTextMapPropagator()
	}
	tracer := cfg.TracerProvider.Tracer(tracerName, trace.WithInstrumentationVersion("1.0.0"))
	names := cfg.Names.Normalize()
	skip := make(map[string]bool, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = true
	}

	return func(c *fiber.Ctx) error {
		if skip[c.Path()] {
			return c.Next()
		}

		carrier := propagation.MapCarrier{}
		for k, v := range c.GetReqHeaders() {
			if len(v) > 0 {
				carrier.Set(k, v[0])
			}
		}
		ctx := cfg.Propagator.Extract(c.UserContext(), carrier)

		attrs := []attribute.KeyValue{
			semconv.HTTPRequestMethodKey.String(c.Method()),
			semconv.URLPath(c.Path()),
			semconv.ServerAddress(c.Hostname()),
			semconv.UserAgentOriginal(c.Get(fiber.HeaderUserAgent)),
			semconv.ClientAddress(c.IP()),
		}
		if cfg.ServiceName != "" {
			attrs = append(attrs, semconv.ServiceName(cfg.ServiceName))
		}

		ctx, span := tracer.Start(ctx, "HTTP "+c.Method()+" "+c.Path(),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attrs...),
		)
		defer span.End()

		c.SetUserContext(ctx)
		next(c)

		if route := c.Route().Path; route != "" {
			span.SetName("HTTP " + c.Method() + " " + route)
			span.SetAttributes(semconv.HTTPRoute(route))
		}
		if id := webapi.CorrelationIDFromContext(c.UserContext()); id != "" {
			span.SetAttributes(attribute.String("correlation.id", id))
		}
		status := c.Response().StatusCode()
		span.SetAttributes(semconv.HTTPResponseStatusCode(status))
		if t := c.GetRespHeader(names.ErrorType); t != "" {
			span.SetAttributes(attribute.String("error.type", t))
		}
		if status >= 500 {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
		return nil
	}
}

// RateLimit applies token bucket rate limiting.
func RateLimit(cfg httpserver.RateLimitConfig) fiber.Handler {
	return WrapMiddleware(httpserver.RateLimit(cfg))
}

// RateLimitByIP rate limits per client IP.
func RateLimitByIP(limit rate.Limit, burst int) fiber.Handler {
	return WrapMiddleware(httpserver.RateLimitByIP(limit, burst))
}

// RegisterPrometheus registers the Prometheus metrics endpoint.
//
//	fiberadapter.RegisterPrometheus(app, "/metrics")
func RegisterPrometheus(app *fiber.App, path string) {
	if path == "" {
		path = "/metrics"
	}
	app.Get(path, adaptor.HTTPHandler(httpserver.PrometheusHandler()))
}
