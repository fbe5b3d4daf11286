package httpserver

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog"

	"github.com/kroma-labs/apiclient-go/webapi"
)

// Recovery returns middleware that recovers from panics.
//
// The panic is logged with its stack and the correlation id, and answered
// with an UnhandledError (500, x-error-type: unhandled).
//
//	handler := httpserver.Recovery(logger)(myHandler)
func Recovery(logger zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logger.Error().
					Interface("panic", rec).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("correlation_id", webapi.CorrelationIDFromContext(r.Context())).
					Str("stack", string(debug.Stack())).
					Msg("panic recovered")

				WriteError(w, &Error{
					Type:    webapi.UnhandledError,
					Message: "an unexpected error occurred",
					Err:     fmt.Errorf("panic: %v", rec),
				})
			}()

			next.ServeHTTP(w, r)
		})
	}
}
