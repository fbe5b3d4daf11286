package httpclient

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/sync/singleflight"
)

// GenerateCoalesceKey returns a key identifying a request for deduplication:
// a hash of the method, the URL with its query sorted, and the body.
func GenerateCoalesceKey(method, rawURL string, body []byte) string {
	parts := []string{method}

	u, err := url.Parse(rawURL)
	if err != nil {
		parts = append(parts, rawURL)
	} else {
		query := u.Query()
		params := make([]string, 0, len(query))
		for key, values := range query {
			sort.Strings(values)
			for _, v := range values {
				params = append(params, key+"="+v)
			}
		}
		sort.Strings(params)
		parts = append(parts, u.Scheme+"://"+u.Host+u.Path, strings.Join(params, "&"))
	}

	if len(body) > 0 {
		parts = append(parts, hashBytes(body))
	}
	return hashBytes([]byte(strings.Join(parts, "|")))
}

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// coalescedResponse is the shared outcome of one flight.
type coalescedResponse struct {
	resp *http.Response
	body []byte
}

// coalesceTransport shares one upstream call among identical concurrent GET
// and HEAD requests. Each caller receives its own copy of the response.
type coalesceTransport struct {
	next  http.RoundTripper
	group singleflight.Group
}

var _ http.RoundTripper = (*coalesceTransport)(nil)

// varyHeaders change the upstream response for an otherwise identical request.
var varyHeaders = []string{
	"Authorization",
	"Accept",
	"If-None-Match",
	"If-Modified-Since",
	"If-Match",
	"Range",
}

func coalesceKey(req *http.Request) string {
	key := GenerateCoalesceKey(req.Method, req.URL.String(), nil)
	var vary []string
	for _, h := range varyHeaders {
		if v := req.Header.Values(h); len(v) > 0 {
			vary = append(vary, h+"="+strings.Join(v, ","))
		}
	}
	if len(vary) == 0 {
		return key
	}
	// Hashed so credentials never sit in the key.
	return key + "|" + hashBytes([]byte(strings.Join(vary, "\n")))
}

func newCoalesceTransport(next http.RoundTripper) http.RoundTripper {
	return &coalesceTransport{next: next}
}

func (t *coalesceTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return t.next.RoundTrip(req)
	}

	v, err, _ := t.group.Do(coalesceKey(req), func() (any, error) {
		resp, err := t.next.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		return &coalescedResponse{resp: resp, body: body}, nil
	})
	if err != nil {
		return nil, err
	}

	shared := v.(*coalescedResponse)
	resp := *shared.resp
	resp.Header = shared.resp.Header.Clone()
	resp.Body = io.NopCloser(bytes.NewReader(shared.body))
	resp.ContentLength = int64(len(shared.body))
	resp.Request = req
	return &resp, nil
}

func (t *coalesceTransport) Unwrap() http.RoundTripper {
	return t.next
}
