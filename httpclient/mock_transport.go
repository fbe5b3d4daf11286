package httpclient

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sync"
)

// MockResponse is a canned response served by MockTransport.
type MockResponse struct {
	StatusCode int
	Body       string
	Header     http.Header
}

// MockTransport is an http.RoundTripper serving canned responses, for tests.
// Stubs are matched in registration order; the first match wins.
//
//	mock := httpclient.NewMockTransport().
//	    StubPath("/orders/42", http.StatusOK, `{"id":42}`)
//	client := httpclient.New(httpclient.WithMockTransport(mock))
type MockTransport struct {
	mu          sync.RWMutex
	stubs       []stub
	fallback    *stub
	requests    []*http.Request
	bodies      [][]byte
	requestHook func(*http.Request)
}

type stub struct {
	matcher  func(*http.Request) bool
	response MockResponse
	err      error
}

var _ http.RoundTripper = (*MockTransport)(nil)

// NewMockTransport creates an empty MockTransport. Unmatched requests fail.
func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

// Respond serves resp for requests matching matcher.
func (m *MockTransport) Respond(matcher func(*http.Request) bool, resp MockResponse) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stubs = append(m.stubs, stub{matcher: matcher, response: resp})
	return m
}

// StubResponse serves statusCode and body for every unmatched request.
func (m *MockTransport) StubResponse(statusCode int, body string) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = &stub{response: MockResponse{StatusCode: statusCode, Body: body}}
	return m
}

// StubError fails every unmatched request with err.
func (m *MockTransport) StubError(err error) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = &stub{err: err}
	return m
}

// StubPath serves requests for path.
func (m *MockTransport) StubPath(path string, statusCode int, body string) *MockTransport {
	return m.StubFunc(func(req *http.Request) bool {
		return req.URL.Path == path
	}, statusCode, body)
}

// StubPathWithHeaders serves requests for path with response headers.
func (m *MockTransport) StubPathWithHeaders(
	path string,
	statusCode int,
	body string,
	header http.Header,
) *MockTransport {
	return m.Respond(func(req *http.Request) bool {
		return req.URL.Path == path
	}, MockResponse{StatusCode: statusCode, Body: body, Header: header})
}

// StubPathRegex serves requests whose path matches pattern.
func (m *MockTransport) StubPathRegex(pattern string, statusCode int, body string) *MockTransport {
	re := regexp.MustCompile(pattern)
	return m.StubFunc(func(req *http.Request) bool {
		return re.MatchString(req.URL.Path)
	}, statusCode, body)
}

// StubMethod serves requests with method.
func (m *MockTransport) StubMethod(method string, statusCode int, body string) *MockTransport {
	return m.StubFunc(func(req *http.Request) bool {
		return req.Method == method
	}, statusCode, body)
}

// StubFunc serves requests matching matcher.
func (m *MockTransport) StubFunc(
	matcher func(*http.Request) bool,
	statusCode int,
	body string,
) *MockTransport {
	return m.Respond(matcher, MockResponse{StatusCode: statusCode, Body: body})
}

// StubFuncError fails requests matching matcher with err.
func (m *MockTransport) StubFuncError(matcher func(*http.Request) bool, err error) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stubs = append(m.stubs, stub{matcher: matcher, err: err})
	return m
}

// OnRequest registers a hook called with each request before matching.
func (m *MockTransport) OnRequest(fn func(*http.Request)) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestHook = fn
	return m
}

func (m *MockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
		_ = req.Body.Close()
		req.Body = io.NopCloser(bytes.NewReader(body))
	}

	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.bodies = append(m.bodies, body)
	hook := m.requestHook
	m.mu.Unlock()

	if hook != nil {
		hook(req)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.stubs {
		if s.matcher(req) {
			return s.serve(req)
		}
	}
	if m.fallback != nil {
		return m.fallback.serve(req)
	}
	return nil, fmt.Errorf("httpclient: no stub for %s %s", req.Method, req.URL)
}

func (s stub) serve(req *http.Request) (*http.Response, error) {
	if s.err != nil {
		return nil, s.err
	}
	header := s.response.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", s.response.StatusCode, http.StatusText(s.response.StatusCode)),
		StatusCode:    s.response.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewBufferString(s.response.Body)),
		ContentLength: int64(len(s.response.Body)),
		Request:       req,
	}, nil
}

// Requests returns the requests received so far.
func (m *MockTransport) Requests() []*http.Request {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*http.Request{}, m.requests...)
}

// RequestCount returns the number of requests received.
func (m *MockTransport) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// LastRequest returns the most recent request, or nil.
func (m *MockTransport) LastRequest() *http.Request {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1]
}

// LastBody returns the body of the most recent request, or nil.
func (m *MockTransport) LastBody() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.bodies) == 0 {
		return nil
	}
	return m.bodies[len(m.bodies)-1]
}

// Reset clears stubs and recorded requests.
func (m *MockTransport) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stubs = nil
	m.fallback = nil
	m.requests = nil
	m.bodies = nil
	m.requestHook = nil
}

// WithMockTransport replaces the network transport with mock. The rest of
// the chain still wraps it.
func WithMockTransport(mock *MockTransport) Option {
	return func(cfg *internalConfig) {
		cfg.MockTransport = mock
	}
}
