package httpclient

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// metrics holds the client instruments. Every record method is nil-safe.
type metrics struct {
	// === Transport ===

	requestDuration         metric.Float64Histogram
	requestBodySize         metric.Int64Histogram
	responseBodySize        metric.Int64Histogram
	activeRequests          metric.Int64UpDownCounter
	requestErrors           metric.Int64Counter
	contentTransferDuration metric.Float64Histogram

	// === Network timing ===

	connectionsOpened  metric.Int64Counter
	connectionDuration metric.Float64Histogram
	dnsDuration        metric.Float64Histogram
	tlsDuration        metric.Float64Histogram
	ttfb               metric.Float64Histogram

	// === Pipeline ===

	// sendOutcomes counts send pipeline outcomes by "outcome":
	// success, transient, known, unsuccessful, unexpected_status, failed.
	sendOutcomes metric.Int64Counter

	// === Resilience ===

	breakerRequests metric.Int64Counter
	breakerState    metric.Int64Gauge
	rateLimited     metric.Int64Counter
}

var (
	latencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.075, 0.1, 0.25, 0.5, 0.75, 1, 2.5, 5, 7.5, 10}
	phaseBuckets   = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}
	sizeBuckets    = []float64{0, 100, 1024, 10 * 1024, 100 * 1024, 1024 * 1024, 10 * 1024 * 1024}
)

func newMetrics(meter metric.Meter) (*metrics, error) {
	m := &metrics{}
	var err error

	seconds := func(name, desc string, buckets []float64) metric.Float64Histogram {
		if err != nil {
			return nil
		}
		var h metric.Float64Histogram
		h, err = meter.Float64Histogram(name,
			metric.WithDescription(desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(buckets...),
		)
		return h
	}
	bytesHist := func(name, desc string) metric.Int64Histogram {
		if err != nil {
			return nil
		}
		var h metric.Int64Histogram
		h, err = meter.Int64Histogram(name,
			metric.WithDescription(desc),
			metric.WithUnit("By"),
			metric.WithExplicitBucketBoundaries(sizeBuckets...),
		)
		return h
	}
	counter := func(name, desc, unit string) metric.Int64Counter {
		if err != nil {
			return nil
		}
		var c metric.Int64Counter
		c, err = meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
		return c
	}

	m.requestDuration = seconds("http.client.request.duration",
		"Duration of HTTP client requests in seconds", latencyBuckets)
	m.requestBodySize = bytesHist("http.client.request.body.size",
		"Size of HTTP client request bodies in bytes")
	m.responseBodySize = bytesHist("http.client.response.body.size",
		"Size of HTTP client response bodies in bytes")
	m.contentTransferDuration = seconds("http.client.content_transfer.duration",
		"Response body download duration in seconds", latencyBuckets)
	m.connectionDuration = seconds("http.client.connection.duration",
		"Time to establish HTTP connection in seconds", phaseBuckets)
	m.dnsDuration = seconds("http.client.dns.duration",
		"DNS lookup duration in seconds", phaseBuckets)
	m.tlsDuration = seconds("http.client.tls.duration",
		"TLS handshake duration in seconds", phaseBuckets)
	m.ttfb = seconds("http.client.ttfb",
		"Time to first response byte in seconds", latencyBuckets)
	m.requestErrors = counter("http.client.request.error",
		"Number of HTTP client request errors", "{error}")
	m.connectionsOpened = counter("http.client.connection.opened",
		"Number of new HTTP client connections", "{connection}")
	m.sendOutcomes = counter("apiclient.send.outcome",
		"Outcomes of the send pipeline by classification", "{request}")
	m.breakerRequests = counter("apiclient.breaker.requests",
		"Requests seen by the circuit breaker by result", "{request}")
	m.rateLimited = counter("apiclient.ratelimit.rejected",
		"Requests rejected by the client rate limiter", "{request}")
	if err != nil {
		return nil, err
	}

	m.activeRequests, err = meter.Int64UpDownCounter("http.client.active_requests",
		metric.WithDescription("Number of active HTTP client requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	m.breakerState, err = meter.Int64Gauge("apiclient.breaker.state",
		metric.WithDescription("Circuit breaker state: 0 closed, 1 half-open, 2 open"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *metrics) recordRequestDuration(ctx context.Context, d time.Duration, attrs []attribute.KeyValue) {
	if m == nil {
		return
	}
	m.requestDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
}

func (m *metrics) recordRequestBodySize(ctx context.Context, size int64, attrs []attribute.KeyValue) {
	if m == nil {
		return
	}
	m.requestBodySize.Record(ctx, size, metric.WithAttributes(attrs...))
}

// recordResponseBody records the body size and download time once the body
// is closed.
func (m *metrics) recordResponseBody(
	ctx context.Context,
	size int64,
	transfer time.Duration,
	attrs []attribute.KeyValue,
) {
	if m == nil {
		return
	}
	m.responseBodySize.Record(ctx, size, metric.WithAttributes(attrs...))
	m.contentTransferDuration.Record(ctx, transfer.Seconds(), metric.WithAttributes(attrs...))
}

func (m *metrics) recordActiveRequest(ctx context.Context, delta int64, attrs []attribute.KeyValue) {
	if m == nil {
		return
	}
	m.activeRequests.Add(ctx, delta, metric.WithAttributes(attrs...))
}

func (m *metrics) recordError(ctx context.Context, errorType string, attrs []attribute.KeyValue) {
	if m == nil {
		return
	}
	all := append(append([]attribute.KeyValue{}, attrs...), attribute.String("error.type", errorType))
	m.requestErrors.Add(ctx, 1, metric.WithAttributes(all...))
}

func (m *metrics) recordConnectionOpened(ctx context.Context, attrs []attribute.KeyValue) {
	if m == nil {
		return
	}
	m.connectionsOpened.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *metrics) recordPhase(ctx context.Context, h metric.Float64Histogram, d time.Duration, attrs []attribute.KeyValue) {
	if m == nil || h == nil {
		return
	}
	h.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
}

func (m *metrics) recordSendOutcome(ctx context.Context, operation, outcome string, attrs []attribute.KeyValue) {
	if m == nil {
		return
	}
	all := append(append([]attribute.KeyValue{}, attrs...),
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	)
	m.sendOutcomes.Add(ctx, 1, metric.WithAttributes(all...))
}

func (m *metrics) recordBreakerRequest(ctx context.Context, name, result string) {
	if m == nil {
		return
	}
	m.breakerRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("breaker.name", name),
		attribute.String("result", result),
	))
}

func (m *metrics) recordBreakerState(ctx context.Context, name string, state int64) {
	if m == nil {
		return
	}
	m.breakerState.Record(ctx, state, metric.WithAttributes(attribute.String("breaker.name", name)))
}

func (m *metrics) recordRateLimited(ctx context.Context) {
	if m == nil {
		return
	}
	m.rateLimited.Add(ctx, 1)
}
