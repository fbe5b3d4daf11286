package httpclient

import (
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httptrace"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// maskedHeaders are rendered as *** in curl output.
var maskedHeaders = map[string]bool{
	"Authorization":       true,
	"Proxy-Authorization": true,
	"Cookie":              true,
}

// generateCurlCommand renders req as a curl command line. The body is read
// through GetBody so the request stays sendable.
//
//	curl -X POST 'https://orders.internal/orders' -H 'Content-Type: application/json' -d '{"total":10}'
func generateCurlCommand(req *http.Request) string {
	parts := []string{"curl"}
	if req.Method != http.MethodGet {
		parts = append(parts, "-X", req.Method)
	}
	parts = append(parts, shellQuote(req.URL.String()))

	keys := make([]string, 0, len(req.Header))
	for k := range req.Header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range req.Header[k] {
			if maskedHeaders[k] {
				v = "***"
			}
			parts = append(parts, "-H", shellQuote(k+": "+v))
		}
	}

	if req.GetBody != nil {
		if rc, err := req.GetBody(); err == nil {
			body, _ := io.ReadAll(rc)
			_ = rc.Close()
			if len(body) > 0 {
				parts = append(parts, "-d", shellQuote(string(body)))
			}
		}
	}

	return strings.Join(parts, " ")
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// requestTracer captures connection timings for Result.TraceInfo.
type requestTracer struct {
	dnsStart, dnsEnd   time.Time
	connStart, connEnd time.Time
	tlsStart, tlsEnd   time.Time
	wrote, firstByte   time.Time
	start              time.Time
}

func newRequestTracer() *requestTracer {
	return &requestTracer{start: time.Now()}
}

func (t *requestTracer) clientTrace() *httptrace.ClientTrace {
	return &httptrace.ClientTrace{
		DNSStart:             func(httptrace.DNSStartInfo) { t.dnsStart = time.Now() },
		DNSDone:              func(httptrace.DNSDoneInfo) { t.dnsEnd = time.Now() },
		ConnectStart:         func(_, _ string) { t.connStart = time.Now() },
		ConnectDone:          func(_, _ string, _ error) { t.connEnd = time.Now() },
		TLSHandshakeStart:    func() { t.tlsStart = time.Now() },
		TLSHandshakeDone:     func(tls.ConnectionState, error) { t.tlsEnd = time.Now() },
		WroteRequest:         func(httptrace.WroteRequestInfo) { t.wrote = time.Now() },
		GotFirstResponseByte: func() { t.firstByte = time.Now() },
	}
}

func (t *requestTracer) toTraceInfo() *TraceInfo {
	info := &TraceInfo{
		DNSLookup:  span(t.dnsStart, t.dnsEnd),
		ConnTime:   span(t.connStart, t.connEnd),
		ServerTime: span(t.wrote, t.firstByte),
		TotalTime:  time.Since(t.start).String(),
	}
	if !t.tlsStart.IsZero() {
		info.TLSHandshake = span(t.tlsStart, t.tlsEnd)
	}
	return info
}

func span(from, to time.Time) string {
	if from.IsZero() || to.IsZero() {
		return "0s"
	}
	return to.Sub(from).String()
}

func logRequest(logger zerolog.Logger, req *http.Request, operation, correlationID string) {
	logger.Debug().
		Str("operation", operation).
		Str("correlation_id", correlationID).
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Msg("HTTP request")
}

func logCurl(logger zerolog.Logger, operation, curl string) {
	logger.Debug().
		Str("operation", operation).
		Str("curl", curl).
		Msg("HTTP request as curl")
}

func logResponse(
	logger zerolog.Logger,
	resp *http.Response,
	operation, correlationID string,
	duration time.Duration,
) {
	logger.Debug().
		Str("operation", operation).
		Str("correlation_id", correlationID).
		Int("status", resp.StatusCode).
		Dur("duration", duration).
		Int64("content_length", resp.ContentLength).
		Msg("HTTP response")
}

func logFailure(logger zerolog.Logger, req *http.Request, operation string, err error) {
	logger.Debug().
		Err(err).
		Str("operation", operation).
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Msg("HTTP request failed")
}
