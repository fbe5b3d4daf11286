package httpserver

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/kroma-labs/apiclient-go/webapi"
)

type requestOptionsKey struct{}

// ContextWithRequestOptions stores opts in ctx.
func ContextWithRequestOptions(ctx context.Context, opts webapi.RequestOptions) context.Context {
	return context.WithValue(ctx, requestOptionsKey{}, opts)
}

// RequestOptionsFromContext returns the options parsed by the RequestOptions
// middleware.
func RequestOptionsFromContext(ctx context.Context) (webapi.RequestOptions, bool) {
	opts, ok := ctx.Value(requestOptionsKey{}).(webapi.RequestOptions)
	return opts, ok
}

// RequestOptions returns middleware that reads webapi.RequestOptions back
// from the query (`$fields`, `$skip`, `$take`, `$page`, `$size`, `$count`,
// `$text`, `$inactive` and their aliases) and the ETag from the conditional
// header: If-None-Match for GET and HEAD, If-Match otherwise.
//
// A malformed parameter is answered with a ValidationError naming it.
//
//	mux.Handle("/orders", httpserver.RequestOptions()(listOrders))
//
//	func listOrders(w http.ResponseWriter, r *http.Request) {
//	    opts, _ := httpserver.RequestOptionsFromContext(r.Context())
//	    if opts.Paging != nil { ... }
//	}
func RequestOptions() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			opts, err := ReadRequestOptions(r.Method, r.URL.Query(), r.Header)
			if err != nil {
				WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithRequestOptions(r.Context(), opts)))
		})
	}
}

// ReadRequestOptions parses options from query values and takes the ETag
// from If-None-Match for GET and HEAD, If-Match otherwise. A malformed
// parameter is returned as a ValidationError *Error.
func ReadRequestOptions(method string, query url.Values, header http.Header) (webapi.RequestOptions, error) {
	opts, err := webapi.ParseRequestOptions(query)
	if err != nil {
		return webapi.RequestOptions{}, optionsValidationError(err)
	}

	conditional := "If-Match"
	if method == http.MethodGet || method == http.MethodHead {
		conditional = "If-None-Match"
	}
	if etag := header.Get(conditional); etag != "" {
		opts.ETag = etag
	}
	return opts, nil
}

// optionsValidationError lists every joined parse error under the
// parameter it names.
func optionsValidationError(err error) *Error {
	var errs []error
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	} else {
		errs = []error{err}
	}

	fields := make(map[string][]string)
	for _, e := range errs {
		text := strings.TrimPrefix(e.Error(), webapi.ErrInvalidRequestOptions.Error()+": ")
		param, _, _ := strings.Cut(text, " ")
		fields[param] = append(fields[param], text)
	}

	ve := NewValidationError(fields)
	ve.Message = "invalid request options"
	ve.Err = err
	return ve
}
