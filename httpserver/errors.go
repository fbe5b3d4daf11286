package httpserver

import (
	"errors"
	"net/http"

	"github.com/kroma-labs/apiclient-go/webapi"
)

// Error is a failure written back with the error header contract: the type
// in x-error-type, the code in x-error-code and the messages in x-messages.
//
//	return httpserver.NewError(webapi.NotFoundError, "order 42 does not exist")
type Error struct {
	Type webapi.ErrorType

	// Code overrides Type.Code() when not zero.
	Code int

	// Status overrides Type.StatusCode() when not zero.
	Status int

	Message  string
	Messages webapi.MessageItems

	// Fields maps a property to its messages for validation errors. It is
	// written as the JSON body.
	Fields map[string][]string

	Err error
}

// NewError creates an Error of type t.
func NewError(t webapi.ErrorType, message string) *Error {
	return &Error{Type: t, Message: message}
}

// NewValidationError creates a ValidationError from a property to messages
// map. Every entry is also listed in x-messages.
func NewValidationError(fields map[string][]string) *Error {
	e := &Error{Type: webapi.ValidationError, Message: "validation failed", Fields: fields}
	for property, texts := range fields {
		for _, text := range texts {
			e.Messages.Add(webapi.MessageError, property, text)
		}
	}
	return e
}

func (e *Error) Error() string {
	msg := "httpserver: " + string(e.Type)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorType returns e.Type.
func (e *Error) ErrorType() webapi.ErrorType {
	return e.Type
}

// StatusCode returns e.Status, or the status conventionally used for e.Type.
func (e *Error) StatusCode() int {
	if e.Status != 0 {
		return e.Status
	}
	return e.Type.StatusCode()
}

func (e *Error) code() int {
	if e.Code != 0 {
		return e.Code
	}
	return e.Type.Code()
}

// typedError is implemented by errors that carry their own error type, such
// as a client error relayed by a gateway.
type typedError interface {
	error
	ErrorType() webapi.ErrorType
}

// asError converts err into an *Error. Typed errors keep their type; any
// other error becomes an UnhandledError whose message hides the cause.
func asError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}

	var typed typedError
	if errors.As(err, &typed) && typed.ErrorType().IsKnown() {
		return &Error{Type: typed.ErrorType(), Message: typed.Error(), Err: err}
	}

	return &Error{
		Type:    webapi.UnhandledError,
		Message: http.StatusText(http.StatusInternalServerError),
		Err:     err,
	}
}
