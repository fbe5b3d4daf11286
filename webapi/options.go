package webapi

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Query parameter names rendered by RequestOptions.
const (
	QueryFields   = "$fields"
	QueryExclude  = "$exclude"
	QuerySkip     = "$skip"
	QueryTake     = "$take"
	QueryPage     = "$page"
	QuerySize     = "$size"
	QueryCount    = "$count"
	QueryText     = "$text"
	QueryInactive = "$inactive"
)

// ErrInvalidRequestOptions is returned when a query parameter cannot be
// parsed back into RequestOptions.
var ErrInvalidRequestOptions = errors.New("webapi: invalid request options")

// queryAliases lists the accepted inbound names for each parameter,
// canonical name first.
var queryAliases = map[string][]string{
	QueryFields:   {QueryFields, "fields", "$include", "include"},
	QueryExclude:  {QueryExclude, "exclude"},
	QuerySkip:     {QuerySkip, "skip", "$offset", "offset"},
	QueryTake:     {QueryTake, "take", "$top", "top", "$limit", "limit"},
	QueryPage:     {QueryPage, "page"},
	QuerySize:     {QuerySize, "size", "$pageSize", "pageSize"},
	QueryCount:    {QueryCount, "count", "$totalCount"},
	QueryText:     {QueryText, "text"},
	QueryInactive: {QueryInactive, "inactive", "$includeInactive"},
}

// RequestOptions carries cross-cutting request preferences.
//
// Everything except ETag and RawQuery renders into `$` query parameters
// through AppendQuery. The ETag travels as a conditional header and RawQuery
// is appended verbatim after every other parameter.
type RequestOptions struct {
	ETag            string
	IncludeFields   []string
	ExcludeFields   []string
	Paging          *PagingArgs
	GetCount        bool
	IncludeText     bool
	IncludeInactive bool
	RawQuery        string
}

// WithETag sets the ETag, quoting it once.
func (o RequestOptions) WithETag(etag string) RequestOptions {
	o.ETag = QuoteETag(etag)
	return o
}

// Include appends fields to the $fields selection.
func (o RequestOptions) Include(fields ...string) RequestOptions {
	o.IncludeFields = append(append([]string(nil), o.IncludeFields...), fields...)
	return o
}

// Exclude appends fields to the $exclude selection.
func (o RequestOptions) Exclude(fields ...string) RequestOptions {
	o.ExcludeFields = append(append([]string(nil), o.ExcludeFields...), fields...)
	return o
}

// WithPaging sets the paging arguments.
func (o RequestOptions) WithPaging(p PagingArgs) RequestOptions {
	o.Paging = &p
	return o
}

// WithCount requests the total count.
func (o RequestOptions) WithCount() RequestOptions {
	o.GetCount = true
	return o
}

// WithText requests text for reference data.
func (o RequestOptions) WithText() RequestOptions {
	o.IncludeText = true
	return o
}

// WithInactive requests inactive items to be included.
func (o RequestOptions) WithInactive() RequestOptions {
	o.IncludeInactive = true
	return o
}

// WithQuery sets a raw query fragment appended after every other parameter.
func (o RequestOptions) WithQuery(raw string) RequestOptions {
	o.RawQuery = raw
	return o
}

// QuotedETag returns the ETag quoted once, or "" when unset.
func (o RequestOptions) QuotedETag() string {
	return QuoteETag(o.ETag)
}

// AppendQuery renders the options through add, in this order: $fields,
// $exclude, $skip/$take or $page/$size, $count, $text, $inactive.
func (o RequestOptions) AppendQuery(add func(key, value string)) {
	if fields := joinFields(o.IncludeFields); fields != "" {
		add(QueryFields, fields)
	}
	if fields := joinFields(o.ExcludeFields); fields != "" {
		add(QueryExclude, fields)
	}

	if o.Paging != nil {
		if o.Paging.IsSkipTake() {
			add(QuerySkip, strconv.FormatInt(o.Paging.Skip, 10))
			add(QueryTake, strconv.FormatInt(o.Paging.Take, 10))
		} else {
			add(QueryPage, strconv.FormatInt(o.Paging.Page, 10))
			add(QuerySize, strconv.FormatInt(o.Paging.Size, 10))
		}
	}

	if o.GetCount {
		add(QueryCount, "true")
	}
	if o.IncludeText {
		add(QueryText, "true")
	}
	if o.IncludeInactive {
		add(QueryInactive, "true")
	}
}

// Values renders the options into url.Values.
func (o RequestOptions) Values() url.Values {
	v := url.Values{}
	o.AppendQuery(v.Add)
	return v
}

// IsEmpty reports whether the options would contribute nothing to a request.
func (o RequestOptions) IsEmpty() bool {
	return o.ETag == "" && len(o.IncludeFields) == 0 && len(o.ExcludeFields) == 0 &&
		o.Paging == nil && !o.GetCount && !o.IncludeText && !o.IncludeInactive &&
		o.RawQuery == ""
}

// ParseRequestOptions reads options back from query values, accepting the
// canonical `$` names and their aliases. ETag and RawQuery are left empty.
func ParseRequestOptions(values url.Values) (RequestOptions, error) {
	var (
		opts RequestOptions
		errs []error
	)

	opts.IncludeFields = splitFields(lookupAll(values, QueryFields))
	opts.ExcludeFields = splitFields(lookupAll(values, QueryExclude))

	parseInt := func(key string) (int64, bool) {
		raw, ok := lookup(values, key)
		if !ok {
			return 0, false
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			errs = append(errs, fmt.Errorf("%w: %s must be a non-negative integer, got %q",
				ErrInvalidRequestOptions, key, raw))
			return 0, false
		}
		return n, true
	}
	parseBool := func(key string) bool {
		raw, ok := lookup(values, key)
		if !ok {
			return false
		}
		if raw == "" {
			return true
		}
		b, err := strconv.ParseBool(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s must be a boolean, got %q",
				ErrInvalidRequestOptions, key, raw))
			return false
		}
		return b
	}

	skip, hasSkip := parseInt(QuerySkip)
	take, hasTake := parseInt(QueryTake)
	page, hasPage := parseInt(QueryPage)
	size, hasSize := parseInt(QuerySize)

	switch {
	case hasSkip || hasTake:
		p := NewSkipTake(skip, take)
		opts.Paging = &p
	case hasPage || hasSize:
		p := NewPageSize(page, size)
		opts.Paging = &p
	}

	opts.GetCount = parseBool(QueryCount)
	opts.IncludeText = parseBool(QueryText)
	opts.IncludeInactive = parseBool(QueryInactive)

	if len(errs) > 0 {
		return RequestOptions{}, errors.Join(errs...)
	}
	return opts, nil
}

func lookup(values url.Values, key string) (string, bool) {
	for _, alias := range queryAliases[key] {
		if vs, ok := values[alias]; ok && len(vs) > 0 {
			return vs[0], true
		}
	}
	return "", false
}

func lookupAll(values url.Values, key string) []string {
	var out []string
	for _, alias := range queryAliases[key] {
		out = append(out, values[alias]...)
	}
	return out
}

func joinFields(fields []string) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, ",")
}

func splitFields(raw []string) []string {
	var out []string
	for _, r := range raw {
		for _, f := range strings.Split(r, ",") {
			if f = strings.TrimSpace(f); f != "" {
				out = append(out, f)
			}
		}
	}
	return out
}
