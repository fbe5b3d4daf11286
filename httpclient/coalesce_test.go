package httpclient

import (
	"context"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCoalesceKey(t *testing.T) {
	tests := []struct {
		name      string
		a, b      [3]string
		wantEqual bool
	}{
		{
			name:      "given reordered query, then keys match",
			a:         [3]string{"GET", "http://x/orders?b=2&a=1", ""},
			b:         [3]string{"GET", "http://x/orders?a=1&b=2", ""},
			wantEqual: true,
		},
		{
			name:      "given different methods, then keys differ",
			a:         [3]string{"GET", "http://x/orders", ""},
			b:         [3]string{"HEAD", "http://x/orders", ""},
			wantEqual: false,
		},
		{
			name:      "given different bodies, then keys differ",
			a:         [3]string{"POST", "http://x/orders", `{"id":1}`},
			b:         [3]string{"POST", "http://x/orders", `{"id":2}`},
			wantEqual: false,
		},
		{
			name:      "given different paths, then keys differ",
			a:         [3]string{"GET", "http://x/orders/1", ""},
			b:         [3]string{"GET", "http://x/orders/2", ""},
			wantEqual: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ka := GenerateCoalesceKey(tt.a[0], tt.a[1], []byte(tt.a[2]))
			kb := GenerateCoalesceKey(tt.b[0], tt.b[1], []byte(tt.b[2]))
			assert.Equal(t, tt.wantEqual, ka == kb)
		})
	}
}

// slowTransport counts calls and holds each one until release is closed.
type slowTransport struct {
	calls   atomic.Int32
	release chan struct{}
}

func (s *slowTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	s.calls.Add(1)
	<-s.release
	return stub{response: MockResponse{StatusCode: http.StatusOK, Body: `{"id":1}`}}.serve(req)
}

func TestCoalesce_SharesConcurrentGets(t *testing.T) {
	upstream := &slowTransport{release: make(chan struct{})}
	client := NewWithTransport(upstream, WithBaseURL("http://orders.test"), WithCoalescing())

	const callers = 8
	var wg sync.WaitGroup
	bodies := make([]string, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := client.Request("GetOrder").Get(context.Background(), "/orders/1")
			if assert.NoError(t, err) {
				bodies[i] = res.String()
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(upstream.release)
	wg.Wait()

	assert.Equal(t, int32(1), upstream.calls.Load())
	for _, b := range bodies {
		assert.Equal(t, `{"id":1}`, b)
	}
}

// echoHeaderTransport answers 304 when If-None-Match is set, otherwise 200
// with the Accept header as body. Each call is held until release is closed.
type echoHeaderTransport struct {
	calls   atomic.Int32
	release chan struct{}
}

func (e *echoHeaderTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	e.calls.Add(1)
	<-e.release
	if req.Header.Get("If-None-Match") != "" {
		return stub{response: MockResponse{StatusCode: http.StatusNotModified}}.serve(req)
	}
	return stub{response: MockResponse{StatusCode: http.StatusOK, Body: req.Header.Get("Accept")}}.serve(req)
}

func TestCoalesceTransport_VaryingHeadersNotShared(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		values     [2]string
		wantStatus [2]int
		wantBody   [2]string
	}{
		{
			name:       "given one caller with an etag, then only that caller gets 304",
			header:     "If-None-Match",
			values:     [2]string{`"v1"`, ""},
			wantStatus: [2]int{http.StatusNotModified, http.StatusOK},
		},
		{
			name:       "given different accept headers, then each caller gets its own body",
			header:     "Accept",
			values:     [2]string{"application/json", "application/xml"},
			wantStatus: [2]int{http.StatusOK, http.StatusOK},
			wantBody:   [2]string{"application/json", "application/xml"},
		},
		{
			name:       "given different if-modified-since, then calls are not shared",
			header:     "If-Modified-Since",
			values:     [2]string{"Mon, 01 Jan 2024 00:00:00 GMT", ""},
			wantStatus: [2]int{http.StatusOK, http.StatusOK},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upstream := &echoHeaderTransport{release: make(chan struct{})}
			tr := newCoalesceTransport(upstream)

			var wg sync.WaitGroup
			statuses := make([]int, 2)
			bodies := make([]string, 2)
			for i, v := range tt.values {
				wg.Add(1)
				go func() {
					defer wg.Done()
					req, err := http.NewRequest(http.MethodGet, "http://orders.test/orders/1", nil)
					if !assert.NoError(t, err) {
						return
					}
					if v != "" {
						req.Header.Set(tt.header, v)
					}
					resp, err := tr.RoundTrip(req)
					if !assert.NoError(t, err) {
						return
					}
					body, _ := io.ReadAll(resp.Body)
					statuses[i] = resp.StatusCode
					bodies[i] = string(body)
				}()
			}

			time.Sleep(50 * time.Millisecond)
			close(upstream.release)
			wg.Wait()

			assert.Equal(t, int32(2), upstream.calls.Load())
			assert.Equal(t, tt.wantStatus[:], statuses)
			assert.Equal(t, tt.wantBody[:], bodies)
		})
	}
}

func TestCoalesceTransport_Passthrough(t *testing.T) {
	tests := []struct {
		name   string
		method string
		auth   [2]string
	}{
		{name: "given POST, then every call goes upstream", method: http.MethodPost},
		{
			name:   "given different credentials, then calls are not shared",
			method: http.MethodGet,
			auth:   [2]string{"Bearer a", "Bearer b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := NewMockTransport().StubResponse(http.StatusOK, "ok")
			tr := newCoalesceTransport(mock)

			for _, auth := range tt.auth {
				req, err := http.NewRequest(tt.method, "http://orders.test/orders", nil)
				require.NoError(t, err)
				if auth != "" {
					req.Header.Set("Authorization", auth)
				}
				resp, err := tr.RoundTrip(req)
				require.NoError(t, err)
				body, _ := io.ReadAll(resp.Body)
				assert.Equal(t, "ok", string(body))
			}

			assert.Equal(t, 2, mock.RequestCount())
		})
	}
}
