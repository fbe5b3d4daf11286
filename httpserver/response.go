package httpserver

import (
	"net/http"
	"strconv"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/kroma-labs/apiclient-go/webapi"
)

// Writer writes results and errors using one set of header names. The zero
// value uses webapi.DefaultHeaderNames.
type Writer struct {
	Names webapi.HeaderNames
}

var defaultWriter = Writer{}

func (wr Writer) names() webapi.HeaderNames {
	return wr.Names.Normalize()
}

// WriteJSON writes v as JSON with statusCode.
//
// Encoding errors are logged, since the status line has already been sent.
func WriteJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().
			Err(err).
			Int("status_code", statusCode).
			Msg("failed to encode JSON response")
	}
}

// WriteResult writes v with 200 OK, or 204 No Content when v is nil.
//
//	order, err := repo.Get(ctx, id)
//	if err != nil {
//	    httpserver.WriteError(w, err)
//	    return
//	}
//	httpserver.WriteETag(w, order.Version)
//	httpserver.WriteResult(w, order)
func WriteResult(w http.ResponseWriter, v any) {
	defaultWriter.WriteResult(w, v)
}

// WriteResult writes v with 200 OK, or 204 No Content when v is nil.
func (wr Writer) WriteResult(w http.ResponseWriter, v any) {
	if v == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	WriteJSON(w, http.StatusOK, v)
}

// WriteCollection writes the items as a JSON array and their paging in the
// paging headers, where the client hydrates webapi.CollectionResult from.
//
//	total := int64(len(all))
//	httpserver.WriteCollection(w, page, &webapi.PagingResult{
//	    PagingArgs: *opts.Paging,
//	    TotalCount: &total,
//	})
func WriteCollection[T any](w http.ResponseWriter, items []T, paging *webapi.PagingResult) {
	WriteCollectionWith(defaultWriter, w, items, paging)
}

// WriteCollectionWith is WriteCollection with custom header names.
func WriteCollectionWith[T any](wr Writer, w http.ResponseWriter, items []T, paging *webapi.PagingResult) {
	if paging != nil && paging.TotalPages == nil && paging.TotalCount != nil && paging.Take > 0 {
		pages := (*paging.TotalCount + paging.Take - 1) / paging.Take
		paging.TotalPages = &pages
	}
	paging.WriteHeader(w.Header(), wr.names())
	WriteJSON(w, http.StatusOK, webapi.CollectionResult[T]{Items: items})
}

// WriteError writes err with the error header contract. An *Error, or any
// error exposing ErrorType(), keeps its type; anything else is written as
// an UnhandledError with a generic message.
//
// Validation errors carry their property map as the JSON body; every other
// type carries its message as plain text.
func WriteError(w http.ResponseWriter, err error) {
	defaultWriter.WriteError(w, err)
}

// WriteError writes err with the error header contract.
func (wr Writer) WriteError(w http.ResponseWriter, err error) {
	status, header, body := wr.RenderError(err)
	h := w.Header()
	for k, vs := range header {
		h[k] = vs
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// RenderError returns the status, headers and body WriteError writes for
// err. Adapters for frameworks that are not net/http based write these
// themselves.
func (wr Writer) RenderError(err error) (int, http.Header, []byte) {
	e := asError(err)
	names := wr.names()

	h := make(http.Header)
	h.Set(names.ErrorType, string(e.Type))
	h.Set(names.ErrorCode, strconv.Itoa(e.code()))
	if len(e.Messages) > 0 {
		if data, mErr := json.Marshal(e.Messages); mErr == nil {
			h.Set(names.Messages, string(data))
		}
	}

	if e.Type == webapi.ValidationError && len(e.Fields) > 0 {
		if data, mErr := json.Marshal(e.Fields); mErr == nil {
			h.Set("Content-Type", "application/json")
			return e.StatusCode(), h, data
		}
	}

	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	return e.StatusCode(), h, []byte(e.Message)
}

// RenderError is Writer.RenderError with the default header names.
func RenderError(err error) (int, http.Header, []byte) {
	return defaultWriter.RenderError(err)
}

// WriteETag sets the ETag response header, quoting tag once.
func WriteETag(w http.ResponseWriter, tag string) {
	if tag == "" {
		return
	}
	w.Header().Set("ETag", webapi.QuoteETag(tag))
}

// CheckIfMatch compares the If-Match precondition carried in opts against
// the current version of a resource. It returns a ConcurrencyError when they
// differ; a request without a precondition always passes.
//
//	opts, _ := httpserver.RequestOptionsFromContext(r.Context())
//	if err := httpserver.CheckIfMatch(opts, order.Version); err != nil {
//	    httpserver.WriteError(w, err)
//	    return
//	}
func CheckIfMatch(opts webapi.RequestOptions, current string) error {
	if opts.ETag == "" || opts.ETag == "*" {
		return nil
	}
	if webapi.UnquoteETag(opts.ETag) != webapi.UnquoteETag(current) {
		return NewError(webapi.ConcurrencyError, "resource version does not match")
	}
	return nil
}

// NotModified reports whether the If-None-Match precondition carried in opts
// matches the current version, and if so writes 304 Not Modified.
func NotModified(w http.ResponseWriter, opts webapi.RequestOptions, current string) bool {
	if opts.ETag == "" || current == "" {
		return false
	}
	if opts.ETag != "*" && webapi.UnquoteETag(opts.ETag) != webapi.UnquoteETag(current) {
		return false
	}
	WriteETag(w, current)
	w.WriteHeader(http.StatusNotModified)
	return true
}
