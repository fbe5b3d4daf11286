package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptrace"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type operationKey struct{}

// ContextWithOperation tags ctx with the logical operation name used for span
// names and metrics. RequestBuilder does this for every request it builds.
func ContextWithOperation(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, operationKey{}, name)
}

// OperationFromContext returns the operation name stored in ctx, or "".
func OperationFromContext(ctx context.Context) string {
	name, _ := ctx.Value(operationKey{}).(string)
	return name
}

// otelTransport is the outermost transport: it opens the client span,
// injects trace context and records request metrics. The span ends when the
// response body is closed.
type otelTransport struct {
	base http.RoundTripper
	cfg  *internalConfig
}

var _ http.RoundTripper = (*otelTransport)(nil)

func newOtelTransport(base http.RoundTripper, cfg *internalConfig) *otelTransport {
	return &otelTransport{base: base, cfg: cfg}
}

func (t *otelTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	for _, f := range t.cfg.Filters {
		if !f(req) {
			return t.base.RoundTrip(req)
		}
	}

	start := time.Now()
	ctx, span := t.cfg.Tracer.Start(req.Context(), t.spanName(req),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(t.requestAttributes(req)...),
	)

	req = req.Clone(ctx)
	t.cfg.Propagators.Inject(ctx, propagation.HeaderCarrier(req.Header))

	baseAttrs := t.cfg.baseAttributes()
	t.cfg.Metrics.recordActiveRequest(ctx, 1, baseAttrs)
	defer t.cfg.Metrics.recordActiveRequest(ctx, -1, baseAttrs)

	if req.ContentLength > 0 {
		t.cfg.Metrics.recordRequestBodySize(ctx, req.ContentLength, baseAttrs)
	}

	var nt *networkTrace
	if t.cfg.EnableNetworkTrace {
		nt = newNetworkTrace(req, t.cfg.HeaderNames)
		req = req.WithContext(httptrace.WithClientTrace(ctx, nt.clientTrace()))
	}

	resp, err := t.base.RoundTrip(req)
	duration := time.Since(start)

	if nt != nil {
		nt.annotate(span)
		nt.record(ctx, t.cfg.Metrics, baseAttrs)
	}

	if err != nil {
		errorType := classifyError(err)
		markFailed(span, err, errorType, "", isTransientError(err))
		t.cfg.Metrics.recordError(ctx, errorType, baseAttrs)
		t.cfg.Metrics.recordRequestDuration(ctx, duration, t.metricsAttributes(req, nil, errorType))
		span.End()
		return nil, err
	}

	span.SetAttributes(t.responseAttributes(resp)...)
	errorType := responseErrorType(resp, t.cfg.HeaderNames)
	if errorType != "" {
		markFailed(span, nil, errorType, fmt.Sprintf("HTTP %d", resp.StatusCode), IsTransientStatus(resp.StatusCode))
	}

	attrs := t.metricsAttributes(req, resp, errorType)
	t.cfg.Metrics.recordRequestDuration(ctx, duration, attrs)

	if resp.Body == nil || resp.Body == http.NoBody {
		span.End()
		return resp, nil
	}
	bodyStart := time.Now()
	resp.Body = newWrappedBody(span, resp.Body, func(n int64) {
		t.cfg.Metrics.recordResponseBody(ctx, n, time.Since(bodyStart), attrs)
	})
	return resp, nil
}

func (t *otelTransport) Unwrap() http.RoundTripper {
	return t.base
}

// spanName returns "HTTP {method} {operation}", or "HTTP {method}" for
// requests without an operation.
func (t *otelTransport) spanName(req *http.Request) string {
	if t.cfg.SpanNameFormatter != nil {
		return t.cfg.SpanNameFormatter(req.Method, req)
	}
	if op := OperationFromContext(req.Context()); op != "" {
		return "HTTP " + req.Method + " " + op
	}
	return "HTTP " + req.Method
}

func (t *otelTransport) requestAttributes(req *http.Request) []attribute.KeyValue {
	attrs := append(t.cfg.baseAttributes(), attribute.String("http.request.method", req.Method))
	if op := OperationFromContext(req.Context()); op != "" {
		attrs = append(attrs, attribute.String("apiclient.operation", op))
	}
	if req.URL != nil {
		attrs = append(attrs,
			attribute.String("url.full", req.URL.String()),
			attribute.String("url.scheme", req.URL.Scheme),
		)
		attrs = append(attrs, serverAttributes(req)...)
	}
	if req.ContentLength > 0 {
		attrs = append(attrs, attribute.Int64("http.request.body.size", req.ContentLength))
	}
	if ua := req.UserAgent(); ua != "" {
		attrs = append(attrs, attribute.String("user_agent.original", ua))
	}
	if id := req.Header.Get(t.cfg.HeaderNames.CorrelationID); id != "" {
		attrs = append(attrs, attribute.String("correlation.id", id))
	}
	return attrs
}

func (t *otelTransport) responseAttributes(resp *http.Response) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.Int("http.response.status_code", resp.StatusCode)}
	if resp.ContentLength > 0 {
		attrs = append(attrs, attribute.Int64("http.response.body.size", resp.ContentLength))
	}
	if resp.ProtoMajor > 0 {
		version := strconv.Itoa(resp.ProtoMajor)
		if resp.ProtoMajor == 1 {
			version += "." + strconv.Itoa(resp.ProtoMinor)
		}
		attrs = append(attrs, attribute.String("network.protocol.version", version))
	}
	return attrs
}

// metricsAttributes keeps to low-cardinality attributes: no URL and no
// correlation id.
func (t *otelTransport) metricsAttributes(
	req *http.Request,
	resp *http.Response,
	errorType string,
) []attribute.KeyValue {
	attrs := append(t.cfg.baseAttributes(), attribute.String("http.request.method", req.Method))
	if req.URL != nil {
		attrs = append(attrs, serverAttributes(req)...)
	}
	if resp != nil {
		attrs = append(attrs, attribute.Int("http.response.status_code", resp.StatusCode))
	}
	if errorType != "" {
		attrs = append(attrs, attribute.String("error.type", errorType))
	}
	return attrs
}

func serverAttributes(req *http.Request) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if host := req.URL.Hostname(); host != "" {
		attrs = append(attrs, attribute.String("server.address", host))
	}
	switch port := req.URL.Port(); {
	case port != "":
		if p, err := strconv.Atoi(port); err == nil {
			attrs = append(attrs, attribute.Int("server.port", p))
		}
	case req.URL.Scheme == "http":
		attrs = append(attrs, attribute.Int("server.port", 80))
	case req.URL.Scheme == "https":
		attrs = append(attrs, attribute.Int("server.port", 443))
	}
	return attrs
}
