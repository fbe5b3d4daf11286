// Package grpcgateway adapts the httpserver contract to grpc-gateway.
//
// gRPC status errors returned through the gateway are written with the
// error header contract, so a typed client sees the same error taxonomy as
// from any other webapi service. The correlation id is forwarded to the
// gRPC backend as metadata.
//
//	gwmux := runtime.NewServeMux(grpcgateway.ServeMuxOptions()...)
//	// register gRPC services with gwmux...
//
//	handler := grpcgateway.NewHandler(gwmux, grpcgateway.Config{
//	    Logger: &logger,
//	    Tracer: &tracingCfg,
//	})
//	http.ListenAndServe(":8080", handler)
package grpcgateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/kroma-labs/apiclient-go/httpserver"
	"github.com/kroma-labs/apiclient-go/webapi"
)

// MetadataCorrelationID is the gRPC metadata key carrying the correlation id.
const MetadataCorrelationID = "x-correlation-id"

// WrapWithMiddleware wraps a grpc-gateway ServeMux with httpserver middleware.
// The first middleware is the outermost.
func WrapWithMiddleware(mux *runtime.ServeMux, middlewares ...httpserver.Middleware) http.Handler {
	return httpserver.Chain(middlewares...)(mux)
}

// ServeMuxOptions returns the runtime.ServeMux options that write gateway
// and routing errors with the error header contract and forward the
// correlation id.
func ServeMuxOptions() []runtime.ServeMuxOption {
	return []runtime.ServeMuxOption{
		runtime.WithErrorHandler(ErrorHandler),
		runtime.WithRoutingErrorHandler(RoutingErrorHandler),
		runtime.WithMetadata(CorrelationMetadata),
	}
}

type codeMapping struct {
	errType webapi.ErrorType
	status  int
}

var grpcCodes = map[codes.Code]codeMapping{
	codes.InvalidArgument:    {webapi.ValidationError, 0},
	codes.OutOfRange:         {webapi.ValidationError, 0},
	codes.FailedPrecondition: {webapi.BusinessError, 0},
	codes.Unauthenticated:    {webapi.AuthenticationError, 0},
	codes.PermissionDenied:   {webapi.AuthorizationError, 0},
	codes.NotFound:           {webapi.NotFoundError, 0},
	codes.AlreadyExists:      {webapi.DuplicateError, 0},
	codes.Aborted:            {webapi.ConcurrencyError, 0},
	codes.Unavailable:        {webapi.TransientError, 0},
	codes.DeadlineExceeded:   {webapi.TransientError, http.StatusGatewayTimeout},
	codes.ResourceExhausted:  {webapi.TransientError, http.StatusTooManyRequests},
	codes.Unimplemented:      {webapi.UnhandledError, http.StatusNotImplemented},
}

// FromStatus converts a gRPC status error into an *httpserver.Error. Typed
// errors and unmapped codes are returned unchanged.
func FromStatus(err error) error {
	var typed interface{ ErrorType() webapi.ErrorType }
	if errors.As(err, &typed) {
		return err
	}

	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	m, ok := grpcCodes[st.Code()]
	if !ok {
		return err
	}
	return &httpserver.Error{Type: m.errType, Status: m.status, Message: st.Message(), Err: err}
}

// ErrorHandler is a runtime.ErrorHandlerFunc writing errors with the error
// header contract.
func ErrorHandler(
	_ context.Context,
	_ *runtime.ServeMux,
	_ runtime.Marshaler,
	w http.ResponseWriter,
	_ *http.Request,
	err error,
) {
	httpserver.WriteError(w, FromStatus(err))
}

// RoutingErrorHandler is a runtime.RoutingErrorHandlerFunc for unmatched
// paths and methods.
func RoutingErrorHandler(
	_ context.Context,
	_ *runtime.ServeMux,
	_ runtime.Marshaler,
	w http.ResponseWriter,
	_ *http.Request,
	httpStatus int,
) {
	t := webapi.UnhandledError
	switch httpStatus {
	case http.StatusNotFound:
		t = webapi.NotFoundError
	case http.StatusBadRequest:
		t = webapi.ValidationError
	}
	httpserver.WriteError(w, &httpserver.Error{
		Type:    t,
		Status:  httpStatus,
		Message: http.StatusText(httpStatus),
	})
}

// CorrelationMetadata forwards the request's correlation id to the gRPC
// backend.
func CorrelationMetadata(_ context.Context, r *http.Request) metadata.MD {
	id := webapi.CorrelationIDFromContext(r.Context())
	if id == "" {
		return nil
	}
	return metadata.Pairs(MetadataCorrelationID, id)
}

// Config holds configuration for NewHandler.
type Config struct {
	// Logger enables Recovery and Logger middleware.
	Logger *zerolog.Logger

	// Correlation overrides the correlation id settings.
	Correlation httpserver.CorrelationConfig

	// Tracer enables OpenTelemetry tracing.
	Tracer *httpserver.TracingConfig

	// Metrics enables OpenTelemetry metrics.
	Metrics *httpserver.Metrics

	// RateLimit enables rate limiting.
	RateLimit *httpserver.RateLimitConfig

	// Timeout bounds each request when positive.
	Timeout time.Duration
}

// NewHandler wraps the gateway mux with middleware in this order:
//  1. Recovery (if Logger provided)
//  2. Tracing (if Tracer provided)
//  3. Metrics (if Metrics provided)
//  4. CorrelationID
//  5. RequestOptions
//  6. Logger (if Logger provided)
//  7. RateLimit (if RateLimit provided)
//  8. Timeout (if Timeout provided)
func NewHandler(mux *runtime.ServeMux, cfg Config) http.Handler {
	var middlewares []httpserver.Middleware

	if cfg.Logger != nil {
		middlewares = append(middlewares, httpserver.Recovery(*cfg.Logger))
	}
	if cfg.Tracer != nil {
		middlewares = append(middlewares, httpserver.Tracing(*cfg.Tracer))
	}
	if cfg.Metrics != nil {
		middlewares = append(middlewares, cfg.Metrics.Middleware())
	}

	correlation := cfg.Correlation
	if cfg.Logger != nil && correlation.Logger == nil {
		correlation.Logger = cfg.Logger
	}
	middlewares = append(middlewares, httpserver.CorrelationID(correlation), httpserver.RequestOptions())

	if cfg.Logger != nil {
		middlewares = append(middlewares, httpserver.Logger(httpserver.LoggerConfig{
			Logger: *cfg.Logger,
		}))
	}
	if cfg.RateLimit != nil {
		middlewares = append(middlewares, httpserver.RateLimit(*cfg.RateLimit))
	}
	if cfg.Timeout > 0 {
		middlewares = append(middlewares, httpserver.Timeout(cfg.Timeout))
	}

	return httpserver.Chain(middlewares...)(mux)
}
