package httpclient

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/kroma-labs/apiclient-go/webapi"
)

// PatchOption selects the content type of a PATCH request.
type PatchOption int

const (
	// PatchNotSpecified is rejected by Patch.
	PatchNotSpecified PatchOption = iota
	// JSONPatch sends application/json-patch+json (RFC 6902).
	JSONPatch
	// MergePatch sends application/merge-patch+json (RFC 7396).
	MergePatch
)

// ContentType returns the media type for the option, or "".
func (p PatchOption) ContentType() string {
	switch p {
	case JSONPatch:
		return "application/json-patch+json"
	case MergePatch:
		return "application/merge-patch+json"
	default:
		return ""
	}
}

// RequestBuilder composes and sends one request.
//
// Create one per call with Client.Request. The builder is not safe for
// concurrent use.
//
//	res, err := client.Request("ListOrders").
//	    Args(httpclient.NewArg("customer", customerID)).
//	    Options(webapi.RequestOptions{}.WithPaging(webapi.NewSkipTake(0, 50))).
//	    EnsureSuccess().
//	    Get(ctx, "/orders")
type RequestBuilder struct {
	client        *Client
	operationName string

	args        []Arg
	options     webapi.RequestOptions
	queryParams QueryString
	headers     http.Header
	body        io.Reader
	contentType string
	enableTrace bool

	fileUploads []FileUpload
	formFields  []formField

	sendOpts SendOptions
}

// Args appends request args. They are applied in the order given.
func (rb *RequestBuilder) Args(args ...Arg) *RequestBuilder {
	rb.args = append(rb.args, args...)
	return rb
}

// Options sets the request options.
func (rb *RequestBuilder) Options(opts webapi.RequestOptions) *RequestBuilder {
	rb.options = opts
	return rb
}

// Query adds a raw query parameter. Builder parameters follow the args in
// the query string.
func (rb *RequestBuilder) Query(key, value string) *RequestBuilder {
	rb.queryParams.Add(key, value)
	return rb
}

// Header sets a request header, overriding client defaults.
func (rb *RequestBuilder) Header(key, value string) *RequestBuilder {
	rb.headers.Set(key, value)
	return rb
}

// Headers sets several request headers.
func (rb *RequestBuilder) Headers(headers map[string]string) *RequestBuilder {
	for k, v := range headers {
		rb.headers.Set(k, v)
	}
	return rb
}

// Body sets the request body with automatic content type detection:
//   - string: text/plain
//   - []byte: application/octet-stream
//   - io.Reader: passthrough
//   - url.Values: form encoded
//   - anything else: JSON
//
// Body and a body arg are mutually exclusive.
func (rb *RequestBuilder) Body(v any) *RequestBuilder {
	if v == nil {
		return rb
	}
	body, contentType, err := encodeBody(v)
	if err != nil {
		rb.body = &bodyEncodingError{err: err}
		return rb
	}
	rb.body = body
	rb.contentType = contentType
	return rb
}

// BodyJSON encodes v as JSON regardless of its type.
func (rb *RequestBuilder) BodyJSON(v any) *RequestBuilder {
	if v == nil {
		return rb
	}
	data, err := json.Marshal(v)
	if err != nil {
		rb.body = &bodyEncodingError{err: err}
		return rb
	}
	rb.body = bytes.NewReader(data)
	rb.contentType = "application/json"
	return rb
}

// BodyXML encodes v as XML.
func (rb *RequestBuilder) BodyXML(v any) *RequestBuilder {
	if v == nil {
		return rb
	}
	data, err := xml.Marshal(v)
	if err != nil {
		rb.body = &bodyEncodingError{err: err}
		return rb
	}
	rb.body = bytes.NewReader(data)
	rb.contentType = "application/xml"
	return rb
}

// BodyForm sets form data as the request body.
func (rb *RequestBuilder) BodyForm(data map[string]string) *RequestBuilder {
	values := make(url.Values)
	for k, v := range data {
		values.Set(k, v)
	}
	rb.body = strings.NewReader(values.Encode())
	rb.contentType = "application/x-www-form-urlencoded"
	return rb
}

// EnableTrace collects request timings into Result.TraceInfo.
func (rb *RequestBuilder) EnableTrace() *RequestBuilder {
	rb.enableTrace = true
	return rb
}

// =============================================================================
// Terminals
// =============================================================================

// Get sends a GET request.
func (rb *RequestBuilder) Get(ctx context.Context, uriTemplate string) (*Result, error) {
	return rb.Send(ctx, http.MethodGet, uriTemplate)
}

// Head sends a HEAD request.
func (rb *RequestBuilder) Head(ctx context.Context, uriTemplate string) (*Result, error) {
	return rb.Send(ctx, http.MethodHead, uriTemplate)
}

// Post sends a POST request.
func (rb *RequestBuilder) Post(ctx context.Context, uriTemplate string) (*Result, error) {
	return rb.Send(ctx, http.MethodPost, uriTemplate)
}

// Put sends a PUT request.
func (rb *RequestBuilder) Put(ctx context.Context, uriTemplate string) (*Result, error) {
	return rb.Send(ctx, http.MethodPut, uriTemplate)
}

// Delete sends a DELETE request.
func (rb *RequestBuilder) Delete(ctx context.Context, uriTemplate string) (*Result, error) {
	return rb.Send(ctx, http.MethodDelete, uriTemplate)
}

// Patch sends a PATCH request with the content type selected by opt.
// PatchNotSpecified fails immediately with ErrPatchOptionNotSpecified.
//
// Example:
//
//	res, err := client.Request("RenameOrder").
//	    Body(`{"name":"rush"}`).
//	    Patch(ctx, httpclient.MergePatch, "/orders/42")
func (rb *RequestBuilder) Patch(ctx context.Context, opt PatchOption, uriTemplate string) (*Result, error) {
	if opt == PatchNotSpecified {
		rb.resetSendOptions()
		return nil, ErrPatchOptionNotSpecified
	}
	return rb.send(ctx, http.MethodPatch, uriTemplate, opt)
}

// Send sends a request with an arbitrary method.
func (rb *RequestBuilder) Send(ctx context.Context, method, uriTemplate string) (*Result, error) {
	return rb.send(ctx, method, uriTemplate, PatchNotSpecified)
}

// Build composes the request without sending it.
func (rb *RequestBuilder) Build(ctx context.Context, method, uriTemplate string) (*http.Request, error) {
	return rb.build(ctx, method, uriTemplate, PatchNotSpecified)
}

// =============================================================================
// Building
// =============================================================================

// build composes the request:
//  1. substitutes `{name}` placeholders from query-scalar args
//  2. composes the query: existing query, unused args in order, builder
//     parameters, request options, raw query fragment
//  3. sets the conditional ETag header, then applies every arg in order
func (rb *RequestBuilder) build(
	ctx context.Context,
	method, uriTemplate string,
	patch PatchOption,
) (*http.Request, error) {
	if er, ok := rb.body.(*bodyEncodingError); ok {
		return nil, fmt.Errorf("httpclient: encode body: %w", er.err)
	}
	if err := rb.checkSingleBody(); err != nil {
		return nil, err
	}

	expanded := ExpandTemplate(uriTemplate, rb.args)
	target, rawQuery, _ := strings.Cut(joinURL(rb.client.config.BaseURL, expanded), "?")

	q, err := ParseQuery(rawQuery)
	if err != nil {
		return nil, fmt.Errorf("httpclient: parse query: %w", err)
	}
	for _, a := range rb.args {
		if a.Kind() == ArgBody || a.Used() {
			continue
		}
		if err := a.AddToQuery(&q); err != nil {
			return nil, err
		}
	}
	q.pairs = append(q.pairs, rb.queryParams.pairs...)
	rb.options.AppendQuery(q.Add)
	q.AddRaw(rb.options.RawQuery)

	if q.Len() > 0 {
		target += "?" + q.Encode()
	}

	body, contentType := rb.body, rb.contentType
	if len(rb.fileUploads) > 0 {
		mp, ct, err := rb.buildMultipart()
		if err != nil {
			return nil, err
		}
		body, contentType = mp, ct
	}

	req, err := http.NewRequestWithContext(ContextWithOperation(ctx, rb.operationName), method, target, nil)
	if err != nil {
		return nil, err
	}
	if err := setRequestBody(req, body); err != nil {
		return nil, fmt.Errorf("httpclient: read body: %w", err)
	}

	for k, vs := range rb.client.config.DefaultHeaders {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	for k, vs := range rb.headers {
		req.Header[k] = vs
	}
	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}

	if etag := rb.options.QuotedETag(); etag != "" {
		if method == http.MethodGet || method == http.MethodHead {
			req.Header.Set("If-None-Match", etag)
		} else {
			req.Header.Set("If-Match", etag)
		}
	}

	for _, a := range rb.args {
		if err := a.ApplyToRequest(req); err != nil {
			return nil, err
		}
	}

	if ct := patch.ContentType(); ct != "" {
		req.Header.Set("Content-Type", ct)
	}

	return req, nil
}

func (rb *RequestBuilder) checkSingleBody() error {
	n := 0
	if rb.body != nil {
		n++
	}
	if len(rb.fileUploads) > 0 {
		n++
	}
	for _, a := range rb.args {
		if a.Kind() == ArgBody {
			n++
		}
	}
	if n > 1 {
		return ErrMultipleBodies
	}
	return nil
}

// joinURL joins base and path with exactly one slash. An absolute path is
// returned unchanged.
func joinURL(base, path string) string {
	if base == "" || strings.Contains(path, "://") {
		return path
	}
	if path == "" {
		return base
	}
	if strings.HasPrefix(path, "?") {
		return strings.TrimSuffix(base, "/") + path
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(path, "/")
}

// encodeBody encodes v by its type and returns the matching content type.
func encodeBody(v any) (io.Reader, string, error) {
	switch body := v.(type) {
	case string:
		return strings.NewReader(body), "text/plain; charset=utf-8", nil
	case []byte:
		return bytes.NewReader(body), "application/octet-stream", nil
	case io.Reader:
		return body, "", nil
	case url.Values:
		return strings.NewReader(body.Encode()), "application/x-www-form-urlencoded", nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(data), "application/json", nil
	}
}

// bodyEncodingError carries an encoding failure from Body until build.
type bodyEncodingError struct {
	err error
}

func (e *bodyEncodingError) Read(_ []byte) (int, error) {
	return 0, e.err
}
