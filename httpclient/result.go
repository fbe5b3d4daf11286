package httpclient

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/kroma-labs/apiclient-go/webapi"
)

// Result wraps an *http.Response and its buffered body.
//
// Error metadata (type, code, messages) is read from the response headers on
// first access. Success is evaluated once, on the caller's first read;
// SetNullOnNotFound only has an effect before that.
//
// Example:
//
//	res, err := client.Request("GetOrder").
//	    Args(httpclient.NewArg("id", id)).
//	    Get(ctx, "/orders/{id}")
//	if err != nil {
//	    return err
//	}
//	if err := res.Err(); err != nil {
//	    return err // typed, e.g. errors.Is(err, httpclient.ErrNotFound)
//	}
type Result struct {
	resp  *http.Response
	body  []byte
	names webapi.HeaderNames

	curlCommand string
	traceInfo   *TraceInfo

	mu              sync.Mutex
	nullOnNotFound  bool
	evaluated       bool
	success         bool
	notFoundAsEmpty bool

	metaOnce  sync.Once
	errorType webapi.ErrorType
	errorCode int
	hasCode   bool
	messages  webapi.MessageItems
}

// NewResult buffers the body of resp and wraps it. The original body is
// closed and replaced with a re-readable copy.
func NewResult(resp *http.Response) (*Result, error) {
	return newResult(resp, webapi.DefaultHeaderNames())
}

func newResult(resp *http.Response, names webapi.HeaderNames) (*Result, error) {
	var body []byte
	if resp.Body != nil {
		data, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return nil, err
		}
		body = data
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	return &Result{
		resp:  resp,
		body:  body,
		names: names.Normalize(),
	}, nil
}

// Response returns the wrapped response.
func (r *Result) Response() *http.Response {
	return r.resp
}

// Header returns the response headers.
func (r *Result) Header() http.Header {
	return r.resp.Header
}

// SetNullOnNotFound makes a 404 to a GET behave as an empty 204 success. It
// is ignored for other methods and once the caller has read success, status
// or body. A result returned by Send has not been read yet, so the flag can
// still be set on it.
func (r *Result) SetNullOnNotFound(v bool) *Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.evaluated {
		return r
	}
	if v && r.resp.Request != nil && r.resp.Request.Method != http.MethodGet {
		return r
	}
	r.nullOnNotFound = v
	return r
}

// IsSuccess reports a 2xx status, or a 404 treated as empty.
func (r *Result) IsSuccess() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.evaluated {
		r.evaluated = true
		r.success, r.notFoundAsEmpty = r.successLocked()
	}
	return r.success
}

// peekSuccess evaluates success without fixing the null-on-404 flag.
func (r *Result) peekSuccess() (success, notFoundAsEmpty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.evaluated {
		return r.success, r.notFoundAsEmpty
	}
	return r.successLocked()
}

func (r *Result) successLocked() (success, notFoundAsEmpty bool) {
	notFoundAsEmpty = r.nullOnNotFound && r.resp.StatusCode == http.StatusNotFound
	return notFoundAsEmpty || (r.resp.StatusCode >= 200 && r.resp.StatusCode < 300), notFoundAsEmpty
}

func (r *Result) isNotFoundAsEmpty() bool {
	r.IsSuccess()
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.notFoundAsEmpty
}

// StatusCode returns the response status, or 204 for a 404 treated as empty.
func (r *Result) StatusCode() int {
	if r.isNotFoundAsEmpty() {
		return http.StatusNoContent
	}
	return r.resp.StatusCode
}

// Body returns the buffered body. It is nil for a 404 treated as empty.
func (r *Result) Body() []byte {
	if r.isNotFoundAsEmpty() {
		return nil
	}
	return r.body
}

// String returns the body as text.
func (r *Result) String() string {
	return string(r.Body())
}

// ETag returns the response ETag header.
func (r *Result) ETag() string {
	return r.resp.Header.Get("ETag")
}

// Paging returns the paging metadata from the response headers, or nil.
func (r *Result) Paging() *webapi.PagingResult {
	return webapi.PagingFromHeader(r.resp.Header, r.names)
}

// CurlCommand returns the equivalent curl command when curl generation is on.
func (r *Result) CurlCommand() string {
	return r.curlCommand
}

// TraceInfo returns request timings when EnableTrace was set on the request.
func (r *Result) TraceInfo() *TraceInfo {
	return r.traceInfo
}

func (r *Result) loadMeta() {
	r.metaOnce.Do(func() {
		h := r.resp.Header
		r.errorType = webapi.ParseErrorType(h.Get(r.names.ErrorType))
		if v := h.Get(r.names.ErrorCode); v != "" {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				r.errorCode, r.hasCode = n, true
			}
		}
		if v := h.Get(r.names.Messages); v != "" {
			var items webapi.MessageItems
			if err := json.Unmarshal([]byte(v), &items); err == nil {
				r.messages = items
			}
		}
	})
}

// ErrorType returns the x-error-type header as an ErrorType, or "".
func (r *Result) ErrorType() webapi.ErrorType {
	r.loadMeta()
	return r.errorType
}

// ErrorCode returns the x-error-code header value.
func (r *Result) ErrorCode() (int, bool) {
	r.loadMeta()
	return r.errorCode, r.hasCode
}

// Messages returns the messages decoded from the x-messages header.
func (r *Result) Messages() webapi.MessageItems {
	r.loadMeta()
	return r.messages
}

// Err returns nil on success, the known error when the status maps to one,
// and a *RequestError otherwise.
func (r *Result) Err() error {
	if r.IsSuccess() {
		return nil
	}
	if err := r.KnownError(false); err != nil {
		return err
	}
	return newRequestError(r.resp, r.body, nil)
}

// ToResult converts the result into an Outcome without raising.
func (r *Result) ToResult() Outcome[struct{}] {
	return Outcome[struct{}]{Err: r.Err()}
}

// KnownError maps an unsuccessful status to its known error:
//
//	400 BusinessError if x-error-type says business, else ValidationError
//	401 AuthenticationError
//	403 AuthorizationError
//	404 NotFoundError
//	409 ConflictError, or DuplicateError / DataConsistencyError by x-error-type
//	412 ConcurrencyError
//	503 TransientError
//
// It returns nil on success or for any other status. With contentAsMessage
// the body text becomes the error message.
func (r *Result) KnownError(contentAsMessage bool) error {
	if !r.IsSuccess() {
		return r.knownError(contentAsMessage)
	}
	return nil
}

func (r *Result) knownError(contentAsMessage bool) error {
	headerType := r.ErrorType()

	var t webapi.ErrorType
	switch r.resp.StatusCode {
	case http.StatusBadRequest:
		t = webapi.ValidationError
		if headerType == webapi.BusinessError {
			t = webapi.BusinessError
		}
	case http.StatusUnauthorized:
		t = webapi.AuthenticationError
	case http.StatusForbidden:
		t = webapi.AuthorizationError
	case http.StatusNotFound:
		t = webapi.NotFoundError
	case http.StatusConflict:
		t = webapi.ConflictError
		if headerType == webapi.DuplicateError || headerType == webapi.DataConsistencyError {
			t = headerType
		}
	case http.StatusPreconditionFailed:
		t = webapi.ConcurrencyError
	case http.StatusServiceUnavailable:
		t = webapi.TransientError
	default:
		return nil
	}

	e := &Error{
		Type:       t,
		StatusCode: r.resp.StatusCode,
		Code:       t.Code(),
		Message:    http.StatusText(r.resp.StatusCode),
		Messages:   r.Messages(),
		Body:       r.body,
	}
	if code, ok := r.ErrorCode(); ok {
		e.Code = code
	}
	if contentAsMessage {
		if text := strings.TrimSpace(string(r.body)); text != "" {
			e.Message = text
		}
	}
	if t == webapi.ValidationError {
		e.ValidationErrors = parseValidationErrors(r.body)
		if e.ValidationErrors == nil {
			e.ValidationErrors = e.Messages.ByProperty()
		}
	}
	return e
}

// Decode unmarshals the body into v by content type (JSON by default, XML
// for xml content types).
func (r *Result) Decode(v any) error {
	return decodeBody(r.Body(), r.resp.Header.Get("Content-Type"), v)
}

// parseValidationErrors reads a field to messages map from a JSON object
// body. Values may be a string or an array of strings.
func parseValidationErrors(body []byte) map[string][]string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}

	var raw map[string]any
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil
	}

	out := make(map[string][]string, len(raw))
	for field, v := range raw {
		switch t := v.(type) {
		case string:
			out[field] = []string{t}
		case []any:
			for _, item := range t {
				out[field] = append(out[field], fmt.Sprint(item))
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func decodeBody(body []byte, contentType string, target any) error {
	if len(body) == 0 {
		return nil
	}
	if strings.Contains(contentType, "application/xml") || strings.Contains(contentType, "text/xml") {
		return xml.Unmarshal(body, target)
	}
	return json.Unmarshal(body, target)
}

// TraceInfo holds the timings of one request phase by phase, rendered as
// duration strings such as "45.2ms".
type TraceInfo struct {
	DNSLookup    string
	ConnTime     string
	TLSHandshake string
	ServerTime   string
	TotalTime    string
}

func (t *TraceInfo) String() string {
	if t == nil {
		return "TraceInfo: nil (EnableTrace() was not called)"
	}
	return fmt.Sprintf(
		"DNS Lookup:    %s\nTCP Connect:   %s\nTLS Handshake: %s\nServer Time:   %s\nTotal Time:    %s",
		t.DNSLookup,
		t.ConnTime,
		t.TLSHandshake,
		t.ServerTime,
		t.TotalTime,
	)
}
