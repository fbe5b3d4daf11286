package httpclient

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCurlCommand(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		body    string
		headers map[string]string
		want    string
	}{
		{
			name:   "given GET, then omits method flag",
			method: http.MethodGet,
			want:   "curl 'http://orders.test/orders?status=open'",
		},
		{
			name:    "given POST with body, then renders method, headers and body",
			method:  http.MethodPost,
			body:    `{"note":"it's late"}`,
			headers: map[string]string{"Content-Type": "application/json"},
			want: `curl -X POST 'http://orders.test/orders?status=open' ` +
				`-H 'Content-Type: application/json' -d '{"note":"it'\''s late"}'`,
		},
		{
			name:    "given credentials, then masks them",
			method:  http.MethodGet,
			headers: map[string]string{"Authorization": "Bearer secret", "Cookie": "sid=1"},
			want:    "curl 'http://orders.test/orders?status=open' -H 'Authorization: ***' -H 'Cookie: ***'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, "http://orders.test/orders?status=open", nil)
			require.NoError(t, err)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if tt.body != "" {
				require.NoError(t, setRequestBody(req, strings.NewReader(tt.body)))
			}

			assert.Equal(t, tt.want, generateCurlCommand(req))
		})
	}
}

func TestGenerateCurlCommand_KeepsBodySendable(t *testing.T) {
	req, err := http.NewRequest(http.MethodPut, "http://orders.test/orders/1", nil)
	require.NoError(t, err)
	require.NoError(t, setRequestBody(req, strings.NewReader("payload")))

	_ = generateCurlCommand(req)

	buf := new(bytes.Buffer)
	_, err = buf.ReadFrom(req.Body)
	require.NoError(t, err)
	assert.Equal(t, "payload", buf.String())
}

func TestTraceInfo_String(t *testing.T) {
	var nilInfo *TraceInfo
	assert.Contains(t, nilInfo.String(), "EnableTrace() was not called")

	info := &TraceInfo{DNSLookup: "1ms", ConnTime: "2ms", TLSHandshake: "0s", ServerTime: "5ms", TotalTime: "9ms"}
	assert.Contains(t, info.String(), "Total Time:    9ms")
}

func TestClient_DebugLogging(t *testing.T) {
	var logs bytes.Buffer
	logger := zerolog.New(&logs).Level(zerolog.DebugLevel)

	mock := NewMockTransport().StubResponse(http.StatusAccepted, "")
	client := newTestClient(t, mock, WithLogger(logger), WithDebug(true), WithGenerateCurl(true))

	_, err := client.Request("CancelOrder").
		Header("x-correlation-id", "cid-7").
		BeforeRequest(BearerToken("secret")).
		Delete(context.Background(), "/orders/1")
	require.NoError(t, err)

	out := logs.String()
	assert.Contains(t, out, `"message":"HTTP request"`)
	assert.Contains(t, out, `"message":"HTTP request as curl"`)
	assert.Contains(t, out, `"message":"HTTP response"`)
	assert.Contains(t, out, `"operation":"CancelOrder"`)
	assert.Contains(t, out, `"correlation_id":"cid-7"`)
	assert.Contains(t, out, `"status":202`)
	assert.NotContains(t, out, "secret")
}

func TestClient_DebugLoggingFailure(t *testing.T) {
	var logs bytes.Buffer
	logger := zerolog.New(&logs).Level(zerolog.DebugLevel)

	mock := NewMockTransport().StubError(&netError{msg: "connection refused"})
	client := newTestClient(t, mock, WithLogger(logger), WithDebug(true))

	_, err := client.Request("ListOrders").Get(context.Background(), "/orders")
	require.Error(t, err)

	assert.Contains(t, logs.String(), `"message":"HTTP request failed"`)
	assert.Contains(t, logs.String(), "connection refused")
}
