package httpclient

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"strconv"
	"syscall"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/kroma-labs/apiclient-go/webapi"
)

// Values of the error.type attribute for round trips that produced no
// response. Responses use the server's x-error-type, else the status code.
const (
	ErrorTypeTimeout           = "timeout"
	ErrorTypeConnectionRefused = "connection_refused"
	ErrorTypeDNSError          = "dns_error"
	ErrorTypeTLSError          = "tls_error"
	ErrorTypeCancelled         = "cancelled"
	ErrorTypeConnectionReset   = "connection_reset"
	ErrorTypeEOF               = "eof"
	ErrorTypeCircuitOpen       = "circuit_open"
	ErrorTypeRateLimited       = "rate_limited"
	ErrorTypeUnknown           = "unknown"
)

const attrTransient = attribute.Key("apiclient.transient")

type phase struct {
	start, end time.Time
}

func (p phase) complete() bool { return !p.start.IsZero() && !p.end.IsZero() }

func (p phase) millis() float64 {
	return float64(p.end.Sub(p.start)) / float64(time.Millisecond)
}

// networkTrace collects the connection phases of one send. Every event it
// emits carries the operation and correlation id of that send.
type networkTrace struct {
	operation     string
	correlationID string

	dns     phase
	connect phase
	tls     phase
	// wait runs from the request being written to the first response byte.
	wait phase

	gotConn time.Time
	reused  bool
	wasIdle bool
	peer    string
	addrs   []string
	alpn    string
}

func newNetworkTrace(req *http.Request, names webapi.HeaderNames) *networkTrace {
	return &networkTrace{
		operation:     OperationFromContext(req.Context()),
		correlationID: req.Header.Get(names.CorrelationID),
	}
}

func (nt *networkTrace) clientTrace() *httptrace.ClientTrace {
	return &httptrace.ClientTrace{
		DNSStart: func(httptrace.DNSStartInfo) { nt.dns.start = time.Now() },
		DNSDone: func(info httptrace.DNSDoneInfo) {
			nt.dns.end = time.Now()
			for _, a := range info.Addrs {
				nt.addrs = append(nt.addrs, a.String())
			}
		},
		ConnectStart:      func(_, _ string) { nt.connect.start = time.Now() },
		ConnectDone:       func(_, _ string, _ error) { nt.connect.end = time.Now() },
		TLSHandshakeStart: func() { nt.tls.start = time.Now() },
		TLSHandshakeDone: func(state tls.ConnectionState, _ error) {
			nt.tls.end = time.Now()
			nt.alpn = state.NegotiatedProtocol
		},
		GotConn: func(info httptrace.GotConnInfo) {
			nt.gotConn = time.Now()
			nt.reused = info.Reused
			nt.wasIdle = info.WasIdle
			if info.Conn != nil && info.Conn.RemoteAddr() != nil {
				nt.peer = info.Conn.RemoteAddr().String()
			}
		},
		WroteRequest:         func(httptrace.WroteRequestInfo) { nt.wait.start = time.Now() },
		GotFirstResponseByte: func() { nt.wait.end = time.Now() },
	}
}

func (nt *networkTrace) eventAttributes(extra ...attribute.KeyValue) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 2+len(extra))
	if nt.operation != "" {
		attrs = append(attrs, attribute.String("apiclient.operation", nt.operation))
	}
	if nt.correlationID != "" {
		attrs = append(attrs, attribute.String("correlation.id", nt.correlationID))
	}
	return append(attrs, extra...)
}

// annotate adds one span event per completed phase, stamped at the phase end.
func (nt *networkTrace) annotate(span trace.Span) {
	if nt.dns.complete() {
		span.AddEvent("dns", trace.WithTimestamp(nt.dns.end), trace.WithAttributes(nt.eventAttributes(
			attribute.Float64("dns.duration_ms", nt.dns.millis()),
			attribute.StringSlice("dns.addresses", nt.addrs),
		)...))
	}
	if nt.connect.complete() {
		span.AddEvent("connect", trace.WithTimestamp(nt.connect.end), trace.WithAttributes(nt.eventAttributes(
			attribute.Float64("connect.duration_ms", nt.connect.millis()),
		)...))
	}
	if nt.tls.complete() {
		span.AddEvent("tls", trace.WithTimestamp(nt.tls.end), trace.WithAttributes(nt.eventAttributes(
			attribute.Float64("tls.duration_ms", nt.tls.millis()),
			attribute.String("tls.protocol", nt.alpn),
		)...))
	}
	if !nt.gotConn.IsZero() {
		span.AddEvent("got_conn", trace.WithTimestamp(nt.gotConn), trace.WithAttributes(nt.eventAttributes(
			attribute.Bool("connection.reused", nt.reused),
			attribute.Bool("connection.was_idle", nt.wasIdle),
			attribute.String("network.peer.address", nt.peer),
		)...))
	}
	if nt.wait.complete() {
		span.AddEvent("first_byte", trace.WithTimestamp(nt.wait.end), trace.WithAttributes(nt.eventAttributes(
			attribute.Float64("ttfb_ms", nt.wait.millis()),
		)...))
	}
}

// record feeds the phase histograms. attrs must stay low-cardinality, so the
// correlation id never reaches them.
func (nt *networkTrace) record(ctx context.Context, m *metrics, attrs []attribute.KeyValue) {
	if m == nil {
		return
	}
	if !nt.reused && !nt.connect.start.IsZero() {
		m.recordConnectionOpened(ctx, attrs)
	}
	for _, p := range []struct {
		phase phase
		hist  metric.Float64Histogram
	}{
		{nt.dns, m.dnsDuration},
		{nt.connect, m.connectionDuration},
		{nt.tls, m.tlsDuration},
		{nt.wait, m.ttfb},
	} {
		if p.phase.complete() {
			m.recordPhase(ctx, p.hist, p.phase.end.Sub(p.phase.start), attrs)
		}
	}
}

// errorKinds is checked in order; the first match names the failure.
var errorKinds = []struct {
	kind  string
	match func(error) bool
}{
	{ErrorTypeCircuitOpen, func(err error) bool {
		return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
	}},
	{ErrorTypeRateLimited, func(err error) bool { return errors.Is(err, ErrRateLimited) }},
	{ErrorTypeCancelled, func(err error) bool { return errors.Is(err, context.Canceled) }},
	{ErrorTypeTimeout, func(err error) bool {
		var netErr net.Error
		return errors.Is(err, context.DeadlineExceeded) ||
			(errors.As(err, &netErr) && netErr.Timeout()) ||
			containsPattern(err, []string{"timeout"})
	}},
	{ErrorTypeDNSError, func(err error) bool {
		var dnsErr *net.DNSError
		return errors.As(err, &dnsErr) || containsPattern(err, []string{"no such host"})
	}},
	{ErrorTypeTLSError, func(err error) bool {
		var recordErr *tls.RecordHeaderError
		var certErr *tls.CertificateVerificationError
		return errors.As(err, &recordErr) || errors.As(err, &certErr) ||
			containsPattern(err, []string{"x509:", "tls:", "certificate"})
	}},
	{ErrorTypeConnectionRefused, func(err error) bool {
		return errors.Is(err, syscall.ECONNREFUSED) || containsPattern(err, []string{"connection refused"})
	}},
	{ErrorTypeConnectionReset, func(err error) bool {
		return errors.Is(err, syscall.ECONNRESET) || containsPattern(err, []string{"connection reset"})
	}},
	{ErrorTypeEOF, func(err error) bool {
		return errors.Is(err, io.EOF) || containsPattern(err, []string{"eof"})
	}},
}

// classifyError names a failed round trip for error.type.
func classifyError(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range errorKinds {
		if k.match(err) {
			return k.kind
		}
	}
	return ErrorTypeUnknown
}

// responseErrorType is the known x-error-type of a failed response, else its
// status code. Successful responses have none.
func responseErrorType(resp *http.Response, names webapi.HeaderNames) string {
	if resp.StatusCode < http.StatusBadRequest {
		return ""
	}
	if t := webapi.ParseErrorType(resp.Header.Get(names.ErrorType)); t.IsKnown() {
		return t.String()
	}
	return strconv.Itoa(resp.StatusCode)
}

// markFailed sets the span status and the error.type and apiclient.transient
// attributes. err may be nil for a failed response.
func markFailed(span trace.Span, err error, errorType, description string, transient bool) {
	if err != nil {
		span.RecordError(err)
		description = err.Error()
	}
	span.SetStatus(codes.Error, description)
	span.SetAttributes(
		attribute.String("error.type", errorType),
		attrTransient.Bool(transient),
	)
}
