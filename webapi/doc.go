// Package webapi holds the wire vocabulary shared by the HTTP client
// pipeline and its server-side counterpart.
//
// It defines the header names that carry error and paging metadata, the
// request options that render into `$`-prefixed query parameters, ETag
// quoting, message items, and the error type codes that both sides agree on.
//
// # Request Options
//
//	opts := webapi.RequestOptions{}.
//	    Include("id", "total").
//	    WithPaging(webapi.NewPageSize(2, 50)).
//	    WithCount()
//
// renders as `$fields=id,total&$page=2&$size=50&$count=true`, and
// ParseRequestOptions reads the same parameters (plus common aliases) back.
//
// # Headers
//
// DefaultHeaderNames returns the conventional names:
//
//	x-correlation-id, x-error-type, x-error-code, x-messages,
//	x-paging-page-number, x-paging-page-size, x-paging-skip,
//	x-paging-take, x-paging-total-count, x-paging-total-pages
package webapi
