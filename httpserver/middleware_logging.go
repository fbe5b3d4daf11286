package httpserver

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/kroma-labs/apiclient-go/webapi"
)

// LoggerConfig configures the logging middleware.
type LoggerConfig struct {
	Logger zerolog.Logger

	// ServiceName is added to every entry when set.
	ServiceName string

	// Names are the header names the error type is read back from.
	// Zero fields use the webapi defaults.
	Names webapi.HeaderNames

	// SkipPaths are paths that should not be logged.
	// Useful for health check endpoints that are called frequently.
	SkipPaths []string

	// LogRequestBody enables logging of request body (use with caution).
	// This reads the entire request body into memory, which may impact
	// performance for large payloads. Consider using only in development.
	LogRequestBody bool

	// LogResponseBody enables logging of response body (use with caution).
	// This buffers the entire response body, which may impact performance
	// for large payloads. Consider using only in development.
	LogResponseBody bool

	// MaxBodyLogSize limits the size of logged bodies (default: 4KB).
	// Bodies larger than this will be truncated in the log output.
	MaxBodyLogSize int
}

const defaultMaxBodyLogSize = 4 * 1024 // 4KB

// Logger returns middleware that logs HTTP requests.
//
// Each entry carries the method, path, status, duration, correlation id and,
// for error responses, the x-error-type written by WriteError. The level is
// Info below 400, Warn below 500, Error otherwise.
//
// Example:
//
//	handler := httpserver.Logger(httpserver.LoggerConfig{
//	    Logger:    logger,
//	    SkipPaths: []string{"/livez", "/readyz", "/ping"},
//	})(myHandler)
func Logger(cfg LoggerConfig) Middleware {
	skipPaths := make(map[string]bool)
	for _, path := range cfg.SkipPaths {
		skipPaths[path] = true
	}

	names := cfg.Names.Normalize()

	maxBodySize := cfg.MaxBodyLogSize
	if maxBodySize <= 0 {
		maxBodySize = defaultMaxBodyLogSize
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()

			var requestBody []byte
			if cfg.LogRequestBody && r.Body != nil {
				requestBody, _ = io.ReadAll(io.LimitReader(r.Body, int64(maxBodySize)))
				r.Body.Close()
				r.Body = io.NopCloser(bytes.NewReader(requestBody))
			}

			var wrapped *responseWriter
			var responseBody *bytes.Buffer

			if cfg.LogResponseBody {
				responseBody = &bytes.Buffer{}
				wrapped = wrapResponseWriterWithBody(w, responseBody, maxBodySize)
			} else {
				wrapped = wrapResponseWriter(w)
			}

			next.ServeHTTP(wrapped, r)

			duration := time.Since(start)
			correlationID := webapi.CorrelationIDFromContext(r.Context())

			event := cfg.Logger.Info()
			if wrapped.Status() >= 400 {
				event = cfg.Logger.Warn()
			}
			if wrapped.Status() >= 500 {
				event = cfg.Logger.Error()
			}

			if cfg.ServiceName != "" {
				event.Str("service", cfg.ServiceName)
			}
			event.
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", wrapped.Status()).
				Dur("duration", duration).
				Int("bytes", wrapped.BytesWritten()).
				Str("remote_addr", r.RemoteAddr).
				Str("user_agent", r.UserAgent())

			if correlationID != "" {
				event.Str("correlation_id", correlationID)
			}
			if errorType := wrapped.Header().Get(names.ErrorType); errorType != "" {
				event.Str("error_type", errorType)
			}

			if cfg.LogRequestBody && len(requestBody) > 0 {
				event.Bytes("request_body", requestBody)
			}

			if cfg.LogResponseBody && responseBody != nil && responseBody.Len() > 0 {
				event.Bytes("response_body", responseBody.Bytes())
			}

			event.Msg("request completed")
		})
	}
}

// wrapResponseWriterWithBody creates a responseWriter that also captures the body.
func wrapResponseWriterWithBody(
	w http.ResponseWriter,
	body *bytes.Buffer,
	maxSize int,
) *responseWriter {
	rw := wrapResponseWriter(w)
	rw.bodyBuffer = body
	rw.maxBodySize = maxSize
	return rw
}
