package httpclient

import (
	"net/url"
	"strings"
)

// queryEscaper keeps characters that are legal in a query and read better
// unescaped, so `$fields=a,b` stays readable on the wire.
var queryEscaper = strings.NewReplacer("%24", "$", "%2C", ",", "%2c", ",", "%3A", ":", "%3a", ":")

// QueryString is an ordered list of query parameters.
// Unlike url.Values it preserves insertion order and duplicate keys.
type QueryString struct {
	pairs []queryPair
}

type queryPair struct {
	key   string
	value string
	raw   string
}

// ParseQuery parses raw (with or without a leading '?') preserving order.
func ParseQuery(raw string) (QueryString, error) {
	var q QueryString
	raw = strings.TrimLeft(raw, "?&")

	for raw != "" {
		var part string
		part, raw, _ = strings.Cut(raw, "&")
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")

		key, err := url.QueryUnescape(k)
		if err != nil {
			return QueryString{}, err
		}
		value, err := url.QueryUnescape(v)
		if err != nil {
			return QueryString{}, err
		}
		q.Add(key, value)
	}
	return q, nil
}

// Add appends a key/value pair.
func (q *QueryString) Add(key, value string) {
	q.pairs = append(q.pairs, queryPair{key: key, value: value})
}

// AddRaw appends an already encoded fragment verbatim. Leading '?' and '&'
// are stripped so the fragment never double-prefixes.
func (q *QueryString) AddRaw(fragment string) {
	fragment = strings.TrimLeft(fragment, "?&")
	if fragment == "" {
		return
	}
	q.pairs = append(q.pairs, queryPair{raw: fragment})
}

// Len returns the number of pairs, counting each raw fragment once.
func (q QueryString) Len() int {
	return len(q.pairs)
}

// Get returns the first value for key.
func (q QueryString) Get(key string) string {
	for _, p := range q.pairs {
		if p.raw == "" && p.key == key {
			return p.value
		}
	}
	return ""
}

// Values returns every value for key, in order.
func (q QueryString) Values(key string) []string {
	var out []string
	for _, p := range q.pairs {
		if p.raw == "" && p.key == key {
			out = append(out, p.value)
		}
	}
	return out
}

// Encode renders the pairs in order, without a leading '?'.
func (q QueryString) Encode() string {
	var b strings.Builder
	for i, p := range q.pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		if p.raw != "" {
			b.WriteString(p.raw)
			continue
		}
		b.WriteString(queryEscaper.Replace(url.QueryEscape(p.key)))
		b.WriteByte('=')
		b.WriteString(queryEscaper.Replace(url.QueryEscape(p.value)))
	}
	return b.String()
}
