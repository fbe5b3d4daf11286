package httpclient

import (
	"bytes"
	"fmt"
	"mime"
	"strings"
	"sync"

	"github.com/kroma-labs/apiclient-go/webapi"
)

// Outcome is a non-raising success or failure value.
type Outcome[T any] struct {
	Value T
	Err   error
}

// IsSuccess reports whether the outcome carries no error.
func (o Outcome[T]) IsSuccess() bool { return o.Err == nil }

// IsFailure reports whether the outcome carries an error.
func (o Outcome[T]) IsFailure() bool { return o.Err != nil }

// Get returns the value and error.
func (o Outcome[T]) Get() (T, error) { return o.Value, o.Err }

// TypedResult is a Result whose body decodes into T on first use.
//
// A decode failure is kept and returned only when the value is read, never
// when the result is created.
type TypedResult[T any] struct {
	*Result

	sendErr error

	once      sync.Once
	value     T
	decodeErr error
}

// As wraps the return values of a terminal call into a TypedResult. It is
// shaped to take a terminal call directly:
//
//	order, err := httpclient.As[Order](
//	    client.Request("GetOrder").Args(httpclient.NewArg("id", id)).Get(ctx, "/orders/{id}"),
//	).Value()
func As[T any](res *Result, err error) *TypedResult[T] {
	return &TypedResult[T]{Result: res, sendErr: err}
}

// Value evaluates success first, returning the mapped error on failure, and
// then decodes the body once. A 404 treated as empty and an empty body both
// yield the zero value.
func (r *TypedResult[T]) Value() (T, error) {
	var zero T
	if r.sendErr != nil {
		return zero, r.sendErr
	}
	if r.Result == nil {
		return zero, ErrNoResponse
	}
	if err := r.Result.Err(); err != nil {
		return zero, err
	}

	r.once.Do(r.decode)
	if r.decodeErr != nil {
		return zero, r.decodeErr
	}
	return r.value, nil
}

// Err returns the send error, the mapped status error, or the deferred decode
// error, in that order.
func (r *TypedResult[T]) Err() error {
	_, err := r.Value()
	return err
}

// ToResult converts to an Outcome without raising.
func (r *TypedResult[T]) ToResult() Outcome[T] {
	v, err := r.Value()
	return Outcome[T]{Value: v, Err: err}
}

func (r *TypedResult[T]) decode() {
	body := r.Result.Body()
	if len(bytes.TrimSpace(body)) == 0 {
		return
	}

	if s, ok := any(&r.value).(*string); ok && isVerbatimText(r.Result.Header().Get("Content-Type"), body) {
		*s = string(body)
		return
	}

	if err := decodeBody(body, r.Result.Header().Get("Content-Type"), &r.value); err != nil {
		r.decodeErr = &DeserializationError{Target: fmt.Sprintf("%T", r.value), Err: err}
		var zero T
		r.value = zero
		return
	}

	ps, ok := any(&r.value).(webapi.PagingSetter)
	if !ok {
		ps, ok = any(r.value).(webapi.PagingSetter)
	}
	if ok && !isNilValue(ps) {
		if p := r.Result.Paging(); p != nil {
			ps.SetPaging(p)
		}
	}
}

// isVerbatimText reports whether body goes into a string target as is. Any
// text/* media type is; JSON and XML media types are decoded; otherwise a
// body shaped like a JSON string is decoded.
func isVerbatimText(contentType string, body []byte) bool {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		switch {
		case strings.HasPrefix(mediaType, "text/"):
			return true
		case strings.Contains(mediaType, "json"), strings.Contains(mediaType, "xml"):
			return false
		}
	}
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) < 2 || trimmed[0] != '"' || trimmed[len(trimmed)-1] != '"'
}
