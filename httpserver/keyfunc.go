package httpserver

import (
	"net"
	"net/http"
	"strings"
)

// KeyFunc extracts a rate limiting key from a request. Requests with the
// same key share a bucket; a nil KeyFunc means one global bucket.
//
//	httpserver.RateLimit(httpserver.RateLimitConfig{
//	    Limit:   100,
//	    Burst:   200,
//	    KeyFunc: httpserver.KeyFuncByIPAndPath(),
//	})
type KeyFunc func(r *http.Request) string

// KeyFuncByIP keys by client IP: the first X-Forwarded-For hop when present,
// otherwise the host part of RemoteAddr.
func KeyFuncByIP() KeyFunc {
	return clientIP
}

// KeyFuncByPath keys by URL path, so all clients of an endpoint share a
// bucket.
func KeyFuncByPath() KeyFunc {
	return func(r *http.Request) string {
		return r.URL.Path
	}
}

// KeyFuncByIPAndPath keys by client IP and path.
func KeyFuncByIPAndPath() KeyFunc {
	return func(r *http.Request) string {
		return clientIP(r) + ":" + r.URL.Path
	}
}

// KeyFuncByHeader keys by a header value, such as a tenant id or API key.
func KeyFuncByHeader(header string) KeyFunc {
	return func(r *http.Request) string {
		return r.Header.Get(header)
	}
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
