package httpclient

import (
	"net/http"

	"github.com/kroma-labs/apiclient-go/webapi"
)

// Client is a typed HTTP client: requests are built from URI templates, args
// and options, sent through a classification pipeline, and returned as
// Results.
//
// A Client is safe for concurrent use. Its default SendOptions are fixed at
// construction; per-call adjustments live on each RequestBuilder.
//
//	client := httpclient.New(
//	    httpclient.WithBaseURL("https://api.example.com"),
//	    httpclient.WithServiceName("payment-service"),
//	)
//
//	res, err := client.Request("CreatePayment").
//	    Args(httpclient.NewBodyArg("payment", payment)).
//	    EnsureSuccess().
//	    Post(ctx, "/payments")
type Client struct {
	httpClient *http.Client
	config     *internalConfig
}

// HTTP returns the underlying *http.Client, transport chain included.
func (c *Client) HTTP() *http.Client {
	return c.httpClient
}

// Defaults returns a copy of the client's default send options.
func (c *Client) Defaults() SendOptions {
	return c.config.SendOptions.clone()
}

// HeaderNames returns the header names the client reads and writes.
func (c *Client) HeaderNames() webapi.HeaderNames {
	return c.config.HeaderNames
}

// Request creates a RequestBuilder for the named operation. The name is used
// in span names and debug logs.
func (c *Client) Request(operationName string) *RequestBuilder {
	return &RequestBuilder{
		client:        c,
		operationName: operationName,
		headers:       make(http.Header),
		sendOpts:      c.Defaults(),
	}
}

// New creates a Client with production defaults: pooled transport, optional
// rate limit, breaker and coalescing, and OpenTelemetry instrumentation.
func New(opts ...Option) *Client {
	cfg := newConfig(opts...)

	var base http.RoundTripper = cfg.buildTransport()
	if cfg.MockTransport != nil {
		base = cfg.MockTransport
	}

	return &Client{
		httpClient: &http.Client{
			Transport: cfg.buildChain(base),
			Timeout:   cfg.httpConfig.Timeout,
		},
		config: cfg,
	}
}

// NewWithTransport creates a Client over a custom base transport. The
// configured resilience transports and instrumentation wrap base.
func NewWithTransport(base http.RoundTripper, opts ...Option) *Client {
	cfg := newConfig(opts...)

	return &Client{
		httpClient: &http.Client{
			Transport: cfg.buildChain(base),
			Timeout:   cfg.httpConfig.Timeout,
		},
		config: cfg,
	}
}

// WrapClient instruments an existing http.Client in place and returns a
// Client around it. A nil transport means http.DefaultTransport.
func WrapClient(httpClient *http.Client, opts ...Option) *Client {
	cfg := newConfig(opts...)

	base := httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	httpClient.Transport = cfg.buildChain(base)

	return &Client{
		httpClient: httpClient,
		config:     cfg,
	}
}

// NewTransport returns base wrapped in OpenTelemetry instrumentation, for use
// with an http.Client the caller owns.
func NewTransport(base http.RoundTripper, opts ...Option) http.RoundTripper {
	cfg := newConfig(opts...)
	return newOtelTransport(base, cfg)
}
