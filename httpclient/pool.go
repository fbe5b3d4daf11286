package httpclient

import (
	"net/http"
	"time"
)

// PoolStats is a snapshot of the connection pool settings in effect.
type PoolStats struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration
	DisableKeepAlives   bool
}

// PoolStats returns the pool settings of the base *http.Transport, or the
// zero value when the chain does not end in one (a mock, for instance).
func (c *Client) PoolStats() PoolStats {
	if c.httpClient == nil {
		return PoolStats{}
	}
	transport := unwrapTransport(c.httpClient.Transport)
	if transport == nil {
		return PoolStats{}
	}
	return PoolStats{
		MaxIdleConns:        transport.MaxIdleConns,
		MaxIdleConnsPerHost: transport.MaxIdleConnsPerHost,
		MaxConnsPerHost:     transport.MaxConnsPerHost,
		IdleConnTimeout:     transport.IdleConnTimeout,
		DisableKeepAlives:   transport.DisableKeepAlives,
	}
}

// unwrapTransport follows Unwrap through the chain to the base transport.
func unwrapTransport(rt http.RoundTripper) *http.Transport {
	for rt != nil {
		switch t := rt.(type) {
		case *http.Transport:
			return t
		case interface{ Unwrap() http.RoundTripper }:
			rt = t.Unwrap()
		default:
			return nil
		}
	}
	return nil
}
