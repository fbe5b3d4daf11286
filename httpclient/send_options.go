package httpclient

import (
	"net/http"
	"slices"
)

// SendOptions is the policy applied by the send pipeline to one call.
//
// A Client holds the default SendOptions for its lifetime. Every
// RequestBuilder starts from a copy of those defaults, may adjust its copy
// through the builder toggles, and is reset to the defaults after each
// terminal call, whatever its outcome.
//
// The checks run in a fixed order: transient, known error, ensure success,
// expected status.
type SendOptions struct {
	// ThrowTransient returns a TransientError when TransientPredicate reports
	// the outcome as transient.
	ThrowTransient bool

	// TransientPredicate classifies outcomes. Nil means
	// DefaultTransientPredicate.
	TransientPredicate TransientPredicate

	// ThrowKnown returns the known error mapped from the response status and
	// x-error-type header, when one applies.
	ThrowKnown bool

	// KnownUsesContentAsMessage uses the response body text as the message of
	// known errors.
	KnownUsesContentAsMessage bool

	// EnsureSuccess returns a RequestError for any unsuccessful response.
	EnsureSuccess bool

	// ExpectedStatusCodes, when not empty, returns a RequestError for any
	// status outside the set.
	ExpectedStatusCodes []int

	// NullOnNotFound treats a 404 response to a GET as an empty success.
	NullOnNotFound bool

	// BeforeRequest hooks run in order after correlation headers are set and
	// before dispatch.
	BeforeRequest []RequestInterceptor
}

// DefaultSendOptions returns the baseline policy: nothing is raised, every
// response is handed back as is.
func DefaultSendOptions() SendOptions {
	return SendOptions{
		TransientPredicate: DefaultTransientPredicate,
	}
}

// clone returns a copy that shares no slices with o.
func (o SendOptions) clone() SendOptions {
	o.ExpectedStatusCodes = slices.Clone(o.ExpectedStatusCodes)
	o.BeforeRequest = slices.Clone(o.BeforeRequest)
	return o
}

func (o SendOptions) isTransient(resp *http.Response, err error) bool {
	if o.TransientPredicate == nil {
		return DefaultTransientPredicate(resp, err)
	}
	return o.TransientPredicate(resp, err)
}

func (o SendOptions) isExpected(status int) bool {
	return len(o.ExpectedStatusCodes) == 0 || slices.Contains(o.ExpectedStatusCodes, status)
}

// =============================================================================
// Per-call toggles on RequestBuilder
// =============================================================================

// ThrowTransient raises transient outcomes as a transient *Error.
func (rb *RequestBuilder) ThrowTransient() *RequestBuilder {
	rb.sendOpts.ThrowTransient = true
	return rb
}

// WithTransientPredicate overrides the transient classification for this
// call.
func (rb *RequestBuilder) WithTransientPredicate(p TransientPredicate) *RequestBuilder {
	rb.sendOpts.TransientPredicate = p
	return rb
}

// ThrowKnown raises the known error mapped from the response.
func (rb *RequestBuilder) ThrowKnown() *RequestBuilder {
	rb.sendOpts.ThrowKnown = true
	return rb
}

// KnownUsesContentAsMessage uses the response body as the known error message.
func (rb *RequestBuilder) KnownUsesContentAsMessage() *RequestBuilder {
	rb.sendOpts.KnownUsesContentAsMessage = true
	return rb
}

// EnsureSuccess raises a *RequestError for any unsuccessful response.
func (rb *RequestBuilder) EnsureSuccess() *RequestBuilder {
	rb.sendOpts.EnsureSuccess = true
	return rb
}

// ExpectStatus raises a *RequestError for any status outside codes.
func (rb *RequestBuilder) ExpectStatus(codes ...int) *RequestBuilder {
	rb.sendOpts.ExpectedStatusCodes = append(rb.sendOpts.ExpectedStatusCodes, codes...)
	return rb
}

// NullOnNotFound treats a 404 to a GET as an empty success.
func (rb *RequestBuilder) NullOnNotFound() *RequestBuilder {
	rb.sendOpts.NullOnNotFound = true
	return rb
}

// BeforeRequest appends hooks run just before dispatch.
func (rb *RequestBuilder) BeforeRequest(hooks ...RequestInterceptor) *RequestBuilder {
	rb.sendOpts.BeforeRequest = append(rb.sendOpts.BeforeRequest, hooks...)
	return rb
}

// WithSendOptions edits this call's send options directly, for example to
// switch off a flag the client enables by default.
func (rb *RequestBuilder) WithSendOptions(fn func(*SendOptions)) *RequestBuilder {
	fn(&rb.sendOpts)
	return rb
}

// SendOptions returns a copy of the options the next terminal call will use.
func (rb *RequestBuilder) SendOptions() SendOptions {
	return rb.sendOpts.clone()
}
