package httpclient

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/kroma-labs/apiclient-go/webapi"
)

// Build errors. These are returned before anything is dispatched.
var (
	// ErrBodyRequired is returned when a body arg carries no value.
	ErrBodyRequired = errors.New("httpclient: body argument requires a value")

	// ErrMultipleBodies is returned when more than one body source is set.
	ErrMultipleBodies = errors.New("httpclient: only one request body may be attached")

	// ErrPatchOptionNotSpecified is returned by Patch when no patch content
	// type was selected.
	ErrPatchOptionNotSpecified = errors.New("httpclient: patch option not specified")

	// ErrNoResponse is returned when a typed result wraps no response.
	ErrNoResponse = errors.New("httpclient: no response")
)

// Sentinel errors matched by *Error through errors.Is.
var (
	ErrValidation      = errors.New("validation error")
	ErrBusiness        = errors.New("business error")
	ErrAuthentication  = errors.New("authentication error")
	ErrAuthorization   = errors.New("authorization error")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrDuplicate       = errors.New("duplicate")
	ErrDataConsistency = errors.New("data consistency error")
	ErrConcurrency     = errors.New("concurrency error")
	ErrTransient       = errors.New("transient error")
)

var sentinelByType = map[webapi.ErrorType]error{
	webapi.ValidationError:      ErrValidation,
	webapi.BusinessError:        ErrBusiness,
	webapi.AuthenticationError:  ErrAuthentication,
	webapi.AuthorizationError:   ErrAuthorization,
	webapi.NotFoundError:        ErrNotFound,
	webapi.ConflictError:        ErrConflict,
	webapi.DuplicateError:       ErrDuplicate,
	webapi.DataConsistencyError: ErrDataConsistency,
	webapi.ConcurrencyError:     ErrConcurrency,
	webapi.TransientError:       ErrTransient,
}

// Error is a known, typed failure. It is produced from a response status and
// the x-error-type header, or from a transport failure classified transient.
type Error struct {
	Type       webapi.ErrorType
	StatusCode int

	// Code is the x-error-code header value, or the type's own code.
	Code int

	Message  string
	Messages webapi.MessageItems

	// ValidationErrors maps a field to its messages for ValidationError.
	ValidationErrors map[string][]string

	Body []byte

	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("httpclient: ")
	b.WriteString(string(e.Type))
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for e.Type and any *Error of the same type.
func (e *Error) Is(target error) bool {
	if s, ok := sentinelByType[e.Type]; ok && s == target {
		return true
	}
	var other *Error
	if errors.As(target, &other) {
		return other.Type == e.Type
	}
	return false
}

// ErrorType returns e.Type. A server relaying e writes the same type back.
func (e *Error) ErrorType() webapi.ErrorType {
	return e.Type
}

// IsTransient reports whether the caller may retry.
func (e *Error) IsTransient() bool {
	return e.Type == webapi.TransientError
}

func newTransientError(status int, body []byte, cause error) *Error {
	msg := "a transient error occurred; please try again"
	if status > 0 {
		msg = http.StatusText(status)
	}
	return &Error{
		Type:       webapi.TransientError,
		StatusCode: status,
		Code:       webapi.TransientError.Code(),
		Message:    msg,
		Body:       body,
		Err:        cause,
	}
}

// RequestError is an unsuccessful response that no known error covers. It is
// returned when success or a specific status set was required.
type RequestError struct {
	StatusCode int
	Status     string
	Body       string

	// Expected is set when the failure came from an expected status check.
	Expected []int
}

const maxBodySnippet = 512

func newRequestError(resp *http.Response, body []byte, expected []int) *RequestError {
	snippet := string(body)
	if len(snippet) > maxBodySnippet {
		snippet = snippet[:maxBodySnippet] + "..."
	}
	return &RequestError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       snippet,
		Expected:   expected,
	}
}

func (e *RequestError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "httpclient: unsuccessful response: status %d", e.StatusCode)
	if len(e.Expected) > 0 {
		fmt.Fprintf(&b, ", expected one of %v", e.Expected)
	}
	if e.Body != "" {
		b.WriteString(": ")
		b.WriteString(e.Body)
	}
	return b.String()
}

// DeserializationError is a failure to decode a successful response body.
// It surfaces only when the value is first read.
type DeserializationError struct {
	Target string
	Err    error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("httpclient: decode response into %s: %v", e.Target, e.Err)
}

func (e *DeserializationError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a transient failure.
func IsTransient(err error) bool { return errors.Is(err, ErrTransient) }

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsBusiness reports whether err is a business rule failure.
func IsBusiness(err error) bool { return errors.Is(err, ErrBusiness) }

// IsAuthentication reports whether err is an authentication failure.
func IsAuthentication(err error) bool { return errors.Is(err, ErrAuthentication) }

// IsAuthorization reports whether err is an authorization failure.
func IsAuthorization(err error) bool { return errors.Is(err, ErrAuthorization) }

// IsNotFound reports whether err is a not found failure.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict reports whether err is a conflict failure.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsDuplicate reports whether err is a duplicate failure.
func IsDuplicate(err error) bool { return errors.Is(err, ErrDuplicate) }

// IsDataConsistency reports whether err is a data consistency failure.
func IsDataConsistency(err error) bool { return errors.Is(err, ErrDataConsistency) }

// IsConcurrency reports whether err is an optimistic concurrency failure.
func IsConcurrency(err error) bool { return errors.Is(err, ErrConcurrency) }

// ErrorTypeOf returns the known error type carried by err, or "".
func ErrorTypeOf(err error) webapi.ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ""
}
