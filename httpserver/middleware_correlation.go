package httpserver

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kroma-labs/apiclient-go/webapi"
)

// CorrelationConfig configures the CorrelationID middleware.
type CorrelationConfig struct {
	// Header is the correlation id header. Default: x-correlation-id.
	Header string

	// Generate creates an id for requests without one. Default: UUID v4.
	Generate func() string

	// Logger, when set, is attached to the request context with a
	// correlation_id field, for zerolog.Ctx in handlers.
	Logger *zerolog.Logger
}

// CorrelationID returns middleware that forwards or generates the
// correlation id.
//
// The id is taken from the request header, or generated, then echoed on the
// response and stored in the context with webapi.ContextWithCorrelationID.
// An httpclient request built from that context sends the same id, so it
// follows a call across services.
//
//	handler := httpserver.CorrelationID(httpserver.CorrelationConfig{})(mux)
//
//	func getOrder(w http.ResponseWriter, r *http.Request) {
//	    id := webapi.CorrelationIDFromContext(r.Context())
//	    ...
//	}
func CorrelationID(cfg CorrelationConfig) Middleware {
	header := cfg.HeaderName()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(header)
			if id == "" {
				id = cfg.NewID()
			}
			w.Header().Set(header, id)

			next.ServeHTTP(w, r.WithContext(cfg.Context(r.Context(), id)))
		})
	}
}

// HeaderName returns the configured header, or x-correlation-id.
func (cfg CorrelationConfig) HeaderName() string {
	if cfg.Header != "" {
		return cfg.Header
	}
	return webapi.DefaultHeaderNames().CorrelationID
}

// NewID generates an id with Generate, or a UUID v4.
func (cfg CorrelationConfig) NewID() string {
	if cfg.Generate != nil {
		return cfg.Generate()
	}
	return uuid.NewString()
}

// Context stores id in ctx, with the correlated logger when one is set.
func (cfg CorrelationConfig) Context(ctx context.Context, id string) context.Context {
	ctx = webapi.ContextWithCorrelationID(ctx, id)
	if cfg.Logger != nil {
		ctx = cfg.Logger.With().Str("correlation_id", id).Logger().WithContext(ctx)
	}
	return ctx
}
