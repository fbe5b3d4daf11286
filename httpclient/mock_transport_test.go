package httpclient

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockTransport_Matching(t *testing.T) {
	mock := NewMockTransport().
		StubPath("/orders/1", http.StatusOK, "one").
		StubPathRegex(`^/orders/\d+$`, http.StatusOK, "any").
		StubMethod(http.MethodDelete, http.StatusNoContent, "").
		StubPathWithHeaders("/legacy", http.StatusOK, "legacy", http.Header{"Deprecation": {"true"}}).
		StubFuncError(func(r *http.Request) bool { return r.URL.Path == "/down" }, errors.New("down")).
		StubResponse(http.StatusNotFound, "fallback")

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantBody   string
		wantErr    bool
	}{
		{name: "given exact path, then first stub wins", method: http.MethodGet, path: "/orders/1", wantStatus: 200, wantBody: "one"},
		{name: "given regex path, then regex stub", method: http.MethodGet, path: "/orders/9", wantStatus: 200, wantBody: "any"},
		{name: "given delete, then method stub", method: http.MethodDelete, path: "/x", wantStatus: 204},
		{name: "given legacy path, then stub headers", method: http.MethodGet, path: "/legacy", wantStatus: 200, wantBody: "legacy"},
		{name: "given error stub, then error", method: http.MethodGet, path: "/down", wantErr: true},
		{name: "given no match, then fallback", method: http.MethodGet, path: "/other", wantStatus: 404, wantBody: "fallback"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, "http://orders.test"+tt.path, nil)
			require.NoError(t, err)

			resp, err := mock.RoundTrip(req)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			body, _ := io.ReadAll(resp.Body)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantBody, string(body))
			assert.Same(t, req, resp.Request)
		})
	}
}

func TestMockTransport_NoStub(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "http://orders.test/orders", nil)
	require.NoError(t, err)

	_, err = NewMockTransport().RoundTrip(req)

	assert.ErrorContains(t, err, "no stub for GET http://orders.test/orders")
}

func TestMockTransport_Recording(t *testing.T) {
	var seen []string
	mock := NewMockTransport().
		StubResponse(http.StatusOK, "").
		OnRequest(func(r *http.Request) { seen = append(seen, r.Method) })

	for _, body := range []string{"first", "second"} {
		req, err := http.NewRequest(http.MethodPost, "http://orders.test/orders", strings.NewReader(body))
		require.NoError(t, err)
		_, err = mock.RoundTrip(req)
		require.NoError(t, err)

		replay, _ := io.ReadAll(req.Body)
		assert.Equal(t, body, string(replay), "the captured body stays readable")
	}

	assert.Equal(t, 2, mock.RequestCount())
	assert.Len(t, mock.Requests(), 2)
	assert.Equal(t, "second", string(mock.LastBody()))
	assert.Equal(t, []string{http.MethodPost, http.MethodPost}, seen)

	mock.Reset()
	assert.Zero(t, mock.RequestCount())
	assert.Nil(t, mock.LastRequest())
	assert.Nil(t, mock.LastBody())
}
