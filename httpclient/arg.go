package httpclient

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-querystring/query"
)

// ArgKind describes where an Arg contributes to a request.
type ArgKind int

const (
	// ArgBody attaches the value as the request content.
	ArgBody ArgKind = iota
	// ArgQueryScalar contributes one parameter (or one per element of a
	// slice). It is the only kind eligible for URI template substitution.
	ArgQueryScalar
	// ArgQueryFromProperties flattens a struct's `url` tagged fields into
	// parameters.
	ArgQueryFromProperties
	// ArgQueryFromPropertiesWithPrefix is ArgQueryFromProperties with every
	// key prefixed by "<name>.".
	ArgQueryFromPropertiesWithPrefix
)

func (k ArgKind) String() string {
	switch k {
	case ArgBody:
		return "body"
	case ArgQueryScalar:
		return "query"
	case ArgQueryFromProperties:
		return "query_properties"
	case ArgQueryFromPropertiesWithPrefix:
		return "query_properties_prefixed"
	default:
		return "unknown"
	}
}

// Arg is a typed unit of request customization. It can contribute to the
// URI template, the query string and the outgoing request itself.
//
// Build calls ExpandTemplate, then AddToQuery for every non-body arg that was
// not consumed by the template, then ApplyToRequest for every arg in order.
type Arg interface {
	Name() string
	Kind() ArgKind
	Used() bool
	MarkUsed()
	IsDefault() bool

	// Escaped returns the value as a path-escaped string for template
	// substitution.
	Escaped() string

	AddToQuery(q *QueryString) error
	ApplyToRequest(req *http.Request) error
}

type argBase struct {
	name string
	kind ArgKind
	used bool
}

func (a *argBase) Name() string  { return a.name }
func (a *argBase) Kind() ArgKind { return a.kind }
func (a *argBase) Used() bool    { return a.used }
func (a *argBase) MarkUsed()     { a.used = true }

// =============================================================================
// Scalar
// =============================================================================

type scalarArg[T any] struct {
	argBase
	value T
}

// NewArg creates a query-scalar arg. A zero value contributes nothing to the
// query; a slice contributes one parameter per element.
//
// Example:
//
//	client.Request("GetOrder").
//	    Args(httpclient.NewArg("id", 42), httpclient.NewArg("status", []string{"open", "held"})).
//	    Get(ctx, "/orders/{id}")
func NewArg[T any](name string, value T) Arg {
	return &scalarArg[T]{
		argBase: argBase{name: name, kind: ArgQueryScalar},
		value:   value,
	}
}

func (a *scalarArg[T]) IsDefault() bool {
	return isZeroValue(a.value)
}

func (a *scalarArg[T]) Escaped() string {
	values := formatValues(a.value)
	for i, v := range values {
		values[i] = url.PathEscape(v)
	}
	return strings.Join(values, ",")
}

func (a *scalarArg[T]) AddToQuery(q *QueryString) error {
	if a.used || a.IsDefault() {
		return nil
	}
	for _, v := range formatValues(a.value) {
		q.Add(a.name, v)
	}
	return nil
}

func (a *scalarArg[T]) ApplyToRequest(*http.Request) error {
	return nil
}

// =============================================================================
// Body
// =============================================================================

type bodyArg[T any] struct {
	argBase
	value       T
	contentType string
}

// BodyArgOption customizes a body arg.
type BodyArgOption func(*bodyArgOptions)

type bodyArgOptions struct {
	contentType string
}

// WithContentType overrides the content type chosen for a body arg.
func WithContentType(ct string) BodyArgOption {
	return func(o *bodyArgOptions) {
		o.contentType = ct
	}
}

// NewBodyArg creates an arg that attaches value as the request content.
// It is marked used at construction so it never reaches the query string.
// A nil value fails the build with ErrBodyRequired.
func NewBodyArg[T any](name string, value T, opts ...BodyArgOption) Arg {
	var o bodyArgOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &bodyArg[T]{
		argBase:     argBase{name: name, kind: ArgBody, used: true},
		value:       value,
		contentType: o.contentType,
	}
}

func (a *bodyArg[T]) IsDefault() bool {
	return isZeroValue(a.value)
}

func (a *bodyArg[T]) Escaped() string {
	return ""
}

func (a *bodyArg[T]) AddToQuery(*QueryString) error {
	return nil
}

func (a *bodyArg[T]) ApplyToRequest(req *http.Request) error {
	if isNilValue(a.value) {
		return fmt.Errorf("%w: %q", ErrBodyRequired, a.name)
	}

	body, contentType, err := encodeBody(a.value)
	if err != nil {
		return fmt.Errorf("httpclient: encode body %q: %w", a.name, err)
	}
	if a.contentType != "" {
		contentType = a.contentType
	}

	if err := setRequestBody(req, body); err != nil {
		return fmt.Errorf("httpclient: read body %q: %w", a.name, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return nil
}

// =============================================================================
// Properties
// =============================================================================

type propertiesArg[T any] struct {
	argBase
	value T
}

// NewPropertiesArg creates an arg that flattens value, a struct or pointer to
// struct with `url` tags, into query parameters sorted by key.
//
// Example:
//
//	type OrderFilter struct {
//	    Status string `url:"status,omitempty"`
//	    Since  int    `url:"since,omitempty"`
//	}
//
//	client.Request("ListOrders").
//	    Args(httpclient.NewPropertiesArg("filter", OrderFilter{Status: "open"})).
//	    Get(ctx, "/orders")
func NewPropertiesArg[T any](name string, value T) Arg {
	return &propertiesArg[T]{
		argBase: argBase{name: name, kind: ArgQueryFromProperties},
		value:   value,
	}
}

// NewPrefixedPropertiesArg is NewPropertiesArg with every key rendered as
// "<name>.<key>".
func NewPrefixedPropertiesArg[T any](name string, value T) Arg {
	return &propertiesArg[T]{
		argBase: argBase{name: name, kind: ArgQueryFromPropertiesWithPrefix},
		value:   value,
	}
}

func (a *propertiesArg[T]) IsDefault() bool {
	return isZeroValue(a.value)
}

func (a *propertiesArg[T]) Escaped() string {
	return ""
}

func (a *propertiesArg[T]) AddToQuery(q *QueryString) error {
	if a.used || isNilValue(a.value) {
		return nil
	}

	values, err := query.Values(a.value)
	if err != nil {
		return fmt.Errorf("httpclient: flatten arg %q: %w", a.name, err)
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	prefix := ""
	if a.kind == ArgQueryFromPropertiesWithPrefix {
		prefix = a.name + "."
	}
	for _, k := range keys {
		for _, v := range values[k] {
			q.Add(prefix+k, v)
		}
	}
	return nil
}

func (a *propertiesArg[T]) ApplyToRequest(*http.Request) error {
	return nil
}

// =============================================================================
// Value helpers
// =============================================================================

func isZeroValue(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() == 0
	default:
		return rv.IsZero()
	}
}

func isNilValue(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}

// formatValues renders v as query values: one per element for slices and
// arrays (except []byte), otherwise a single value.
func formatValues(v any) []string {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return nil
	}
	if (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) &&
		rv.Type().Elem().Kind() != reflect.Uint8 {
		out := make([]string, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out = append(out, formatValue(rv.Index(i).Interface()))
		}
		return out
	}
	return []string{formatValue(v)}
}

func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case uint:
		return strconv.FormatUint(uint64(t), 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case uint32:
		return strconv.FormatUint(uint64(t), 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case time.Time:
		return t.Format(time.RFC3339Nano)
	case *time.Time:
		if t == nil {
			return ""
		}
		return t.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return t.String()
	default:
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Pointer {
			if rv.IsNil() {
				return ""
			}
			return formatValue(rv.Elem().Interface())
		}
		return fmt.Sprint(v)
	}
}

// setRequestBody attaches an encoded body so that it can be replayed through
// GetBody for curl generation and redirects.
func setRequestBody(req *http.Request, body io.Reader) error {
	if body == nil {
		return nil
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	req.ContentLength = int64(len(data))
	req.Body = io.NopCloser(bytes.NewReader(data))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	return nil
}
