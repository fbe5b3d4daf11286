package httpclient

import (
	"context"
	"net/http"
	"net/http/httptrace"
	"time"

	"github.com/google/uuid"

	"github.com/kroma-labs/apiclient-go/webapi"
)

// Send pipeline outcomes recorded on apiclient.send.outcome.
const (
	outcomeSuccess          = "success"
	outcomeResponse         = "response"
	outcomeTransient        = "transient"
	outcomeKnown            = "known"
	outcomeUnsuccessful     = "unsuccessful"
	outcomeUnexpectedStatus = "unexpected_status"
	outcomeFailed           = "failed"
)

// send builds, dispatches and classifies one request. The builder's send
// options are restored to the client defaults when it returns, whatever the
// outcome.
//
// Whenever a response was received the Result is returned, also alongside a
// classification error.
func (rb *RequestBuilder) send(
	ctx context.Context,
	method, uriTemplate string,
	patch PatchOption,
) (*Result, error) {
	defer rb.resetSendOptions()
	opts := rb.sendOpts

	req, err := rb.build(ctx, method, uriTemplate, patch)
	if err != nil {
		return nil, err
	}
	return rb.client.dispatch(req, rb.operationName, opts, rb.enableTrace)
}

func (rb *RequestBuilder) resetSendOptions() {
	rb.sendOpts = rb.client.Defaults()
}

// dispatch runs the pipeline over a built request:
//  1. sets the correlation id header and runs the before-request hooks
//  2. sends; a transport failure is raised as transient when enabled
//  3. classifies the response: transient, known, ensure success, expected
//     status, in that order
func (c *Client) dispatch(
	req *http.Request,
	operation string,
	opts SendOptions,
	enableTrace bool,
) (*Result, error) {
	cfg := c.config
	ctx := req.Context()

	correlationID := c.ensureCorrelationID(req)
	if err := applyInterceptors(req, opts.BeforeRequest); err != nil {
		return nil, err
	}

	var curl string
	if cfg.GenerateCurl {
		curl = generateCurlCommand(req)
	}
	if cfg.Debug {
		logRequest(cfg.Logger, req, operation, correlationID)
		if curl != "" {
			logCurl(cfg.Logger, operation, curl)
		}
	}

	var tracer *requestTracer
	if enableTrace || cfg.EnableTrace {
		tracer = newRequestTracer()
		req = req.WithContext(httptrace.WithClientTrace(ctx, tracer.clientTrace()))
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if cfg.Debug {
			logFailure(cfg.Logger, req, operation, err)
		}
		if opts.ThrowTransient && opts.isTransient(nil, err) {
			cfg.Metrics.recordSendOutcome(ctx, operation, outcomeTransient, cfg.baseAttributes())
			return nil, newTransientError(0, nil, err)
		}
		cfg.Metrics.recordSendOutcome(ctx, operation, outcomeFailed, cfg.baseAttributes())
		return nil, err
	}
	if cfg.Debug {
		logResponse(cfg.Logger, resp, operation, correlationID, time.Since(start))
	}

	res, err := newResult(resp, cfg.HeaderNames)
	if err != nil {
		return nil, err
	}
	res.SetNullOnNotFound(opts.NullOnNotFound && req.Method == http.MethodGet)
	res.curlCommand = curl
	if tracer != nil {
		res.traceInfo = tracer.toTraceInfo()
	}

	outcome, err := classify(res, opts)
	cfg.Metrics.recordSendOutcome(ctx, operation, outcome, cfg.baseAttributes())
	return res, err
}

// classify applies the send options to a received response. It evaluates
// success without fixing it, so the caller can still set null-on-404 on the
// returned result.
func classify(res *Result, opts SendOptions) (string, error) {
	resp := res.Response()
	success, notFoundAsEmpty := res.peekSuccess()

	if opts.ThrowTransient && opts.isTransient(resp, nil) {
		return outcomeTransient, newTransientError(resp.StatusCode, res.body, nil)
	}
	if opts.ThrowKnown && !success {
		if err := res.knownError(opts.KnownUsesContentAsMessage); err != nil {
			return outcomeKnown, err
		}
	}
	if opts.EnsureSuccess && !success {
		return outcomeUnsuccessful, newRequestError(resp, res.body, nil)
	}
	if !notFoundAsEmpty && !opts.isExpected(resp.StatusCode) {
		return outcomeUnexpectedStatus, newRequestError(resp, res.body, opts.ExpectedStatusCodes)
	}
	if success {
		return outcomeSuccess, nil
	}
	return outcomeResponse, nil
}

// ensureCorrelationID keeps a correlation id already on the request, else
// takes the one in the context, else generates one.
func (c *Client) ensureCorrelationID(req *http.Request) string {
	header := c.config.HeaderNames.CorrelationID
	if id := req.Header.Get(header); id != "" {
		return id
	}
	id := webapi.CorrelationIDFromContext(req.Context())
	if id == "" {
		id = uuid.NewString()
	}
	req.Header.Set(header, id)
	return id
}
