// Package httpclient is a typed HTTP client pipeline with OpenTelemetry
// instrumentation.
//
// # Quick Start
//
//	client := httpclient.New(
//	    httpclient.WithBaseURL("https://orders.example.com"),
//	    httpclient.WithServiceName("order-client"),
//	)
//
//	order, err := httpclient.As[Order](
//	    client.Request("GetOrder").
//	        Args(httpclient.NewArg("id", 42)).
//	        Options(webapi.RequestOptions{}.Include("total")).
//	        ThrowKnown().
//	        Get(ctx, "/orders/{id}"),
//	).Value()
//
// # Building Requests
//
// A URI template names its parameters in braces. Each `{name}` is replaced by
// the escaped value of the query arg of the same name, and that arg is then
// left out of the query string. Doubled braces are literal:
//
//	/orders/{id}          -> /orders/42
//	/docs/{{id}}          -> /docs/{{id}}
//	/docs/{{{id}}}        -> /docs/{{42}}
//
// Args that are not consumed by the template become query parameters, in
// order, followed by the parameters rendered from webapi.RequestOptions
// ($fields, $exclude, $skip, $take, ...). An ETag in the options is sent as
// If-None-Match for GET and HEAD, and as If-Match otherwise.
//
// # Send Options
//
// The client holds default SendOptions. Each RequestBuilder copies them,
// may adjust its copy (ThrowTransient, ThrowKnown, EnsureSuccess,
// ExpectStatus, NullOnNotFound, BeforeRequest), and is reset to the defaults
// after every terminal call. The pipeline checks a response in this order:
//
//  1. transient (5xx, 408, 429, connection failures, cancellation)
//  2. known error (status plus the x-error-type header)
//  3. ensure success
//  4. expected status codes
//
// # Results
//
// Terminal calls return a *Result whenever a response arrived. Result.Err
// maps the status to a typed *Error (errors.Is(err, httpclient.ErrNotFound))
// or a *RequestError. As[T] wraps a Result for deferred decoding; decode
// errors surface on the first call to Value.
//
// # Transport Chain
//
// Requests pass, outermost first, through OpenTelemetry instrumentation,
// optional request coalescing, an optional circuit breaker and an optional
// rate limiter before reaching the pooled http.Transport:
//
//	client := httpclient.New(
//	    httpclient.WithServiceName("orders"),
//	    httpclient.WithBreaker(httpclient.DefaultBreakerConfig()),
//	    httpclient.WithRateLimit(httpclient.DefaultRateLimitConfig()),
//	    httpclient.WithCoalescing(),
//	)
//
// Breaker and rate limit rejections are transient by the default predicate.
//
// # Configuration Presets
//
// Connection pool and timeout settings come from Config. Start from one of
// DefaultConfig, HighThroughputConfig, LowLatencyConfig or
// ConservativeConfig and pass it with WithConfig.
//
// # Testing
//
// MockTransport serves canned responses through the full chain:
//
//	mock := httpclient.NewMockTransport().
//	    StubPath("/orders/42", http.StatusOK, `{"id":42}`)
//	client := httpclient.New(httpclient.WithMockTransport(mock))
package httpclient
