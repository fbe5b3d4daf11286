package grpcgateway_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/kroma-labs/apiclient-go/httpserver"
	"github.com/kroma-labs/apiclient-go/httpserver/adapters/grpcgateway"
	"github.com/kroma-labs/apiclient-go/webapi"
)

func TestWrapWithMiddleware(t *testing.T) {
	t.Parallel()

	t.Run("given multiple middleware, when wrapped, then applies in order", func(t *testing.T) {
		t.Parallel()

		var order []string
		record := func(name string) httpserver.Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					order = append(order, name+"-before")
					next.ServeHTTP(w, r)
					order = append(order, name+"-after")
				})
			}
		}

		handler := grpcgateway.WrapWithMiddleware(runtime.NewServeMux(), record("m1"), record("m2"))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, []string{"m1-before", "m2-before", "m2-after", "m1-after"}, order)
	})
}

func TestFromStatus(t *testing.T) {
	t.Parallel()

	typed := httpserver.NewError(webapi.BusinessError, "closed")
	plain := errors.New("boom")

	tests := []struct {
		name       string
		err        error
		wantType   webapi.ErrorType
		wantStatus int
		wantSame   bool
	}{
		{
			name:       "given InvalidArgument, then validation",
			err:        status.Error(codes.InvalidArgument, "bad id"),
			wantType:   webapi.ValidationError,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "given NotFound, then not found",
			err:        status.Error(codes.NotFound, "no order"),
			wantType:   webapi.NotFoundError,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "given AlreadyExists, then duplicate",
			err:        status.Error(codes.AlreadyExists, "exists"),
			wantType:   webapi.DuplicateError,
			wantStatus: http.StatusConflict,
		},
		{
			name:       "given Aborted, then concurrency",
			err:        status.Error(codes.Aborted, "stale"),
			wantType:   webapi.ConcurrencyError,
			wantStatus: http.StatusPreconditionFailed,
		},
		{
			name:       "given ResourceExhausted, then transient with 429",
			err:        status.Error(codes.ResourceExhausted, "quota"),
			wantType:   webapi.TransientError,
			wantStatus: http.StatusTooManyRequests,
		},
		{
			name:       "given DeadlineExceeded, then transient with 504",
			err:        status.Error(codes.DeadlineExceeded, "slow"),
			wantType:   webapi.TransientError,
			wantStatus: http.StatusGatewayTimeout,
		},
		{name: "given a typed error, then unchanged", err: typed, wantSame: true},
		{name: "given a plain error, then unchanged", err: plain, wantSame: true},
		{name: "given an unmapped code, then unchanged", err: status.Error(codes.Internal, "x"), wantSame: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := grpcgateway.FromStatus(tt.err)
			if tt.wantSame {
				assert.Same(t, tt.err, got)
				return
			}

			var e *httpserver.Error
			require.ErrorAs(t, got, &e)
			assert.Equal(t, tt.wantType, e.Type)
			assert.Equal(t, tt.wantStatus, e.StatusCode())
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestErrorHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
		wantBody   string
	}{
		{
			name:       "given a NotFound status, then not found with its message",
			err:        status.Error(codes.NotFound, "order 9 not found"),
			wantStatus: http.StatusNotFound,
			wantType:   "not_found",
			wantBody:   "order 9 not found",
		},
		{
			name:       "given an Internal status, then unhandled without details",
			err:        status.Error(codes.Internal, "stack trace here"),
			wantStatus: http.StatusInternalServerError,
			wantType:   "unhandled",
			wantBody:   "Internal Server Error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/v1/orders/9", nil)
			grpcgateway.ErrorHandler(req.Context(), runtime.NewServeMux(), &runtime.JSONPb{}, rec, req, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantType, rec.Header().Get("x-error-type"))
			assert.Equal(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestRoutingErrorHandler(t *testing.T) {
	t.Parallel()

	t.Run("given an unknown path, then a not found error", func(t *testing.T) {
		t.Parallel()

		gwmux := runtime.NewServeMux(grpcgateway.ServeMuxOptions()...)

		rec := httptest.NewRecorder()
		gwmux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/nowhere", nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "not_found", rec.Header().Get("x-error-type"))
		assert.Equal(t, "5", rec.Header().Get("x-error-code"))
	})
}

func TestCorrelationMetadata(t *testing.T) {
	t.Parallel()

	t.Run("given a correlation id, then it is forwarded as outgoing metadata", func(t *testing.T) {
		t.Parallel()

		gwmux := runtime.NewServeMux(grpcgateway.ServeMuxOptions()...)
		ctx := webapi.ContextWithCorrelationID(context.Background(), "gw-1")
		req := httptest.NewRequest(http.MethodGet, "/v1/orders/1", nil).WithContext(ctx)

		annotated, err := runtime.AnnotateContext(ctx, gwmux, req, "/orders.v1.Orders/GetOrder")
		require.NoError(t, err)

		md, ok := metadata.FromOutgoingContext(annotated)
		require.True(t, ok)
		assert.Equal(t, []string{"gw-1"}, md.Get(grpcgateway.MetadataCorrelationID))
	})

	t.Run("given no correlation id, then no metadata", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/v1/orders/1", nil)
		assert.Nil(t, grpcgateway.CorrelationMetadata(req.Context(), req))
	})
}

func TestNewHandler(t *testing.T) {
	t.Parallel()

	t.Run("given a logger, then correlation, options and logging wrap the gateway", func(t *testing.T) {
		t.Parallel()

		var (
			buf  bytes.Buffer
			id   string
			opts webapi.RequestOptions
		)
		logger := zerolog.New(&buf)

		gwmux := runtime.NewServeMux(grpcgateway.ServeMuxOptions()...)
		require.NoError(t, gwmux.HandlePath(http.MethodGet, "/v1/orders/{id}",
			func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
				id = webapi.CorrelationIDFromContext(r.Context())
				opts, _ = httpserver.RequestOptionsFromContext(r.Context())
				httpserver.WriteResult(w, map[string]string{"id": "1"})
			}))

		handler := grpcgateway.NewHandler(gwmux, grpcgateway.Config{Logger: &logger})

		req := httptest.NewRequest(http.MethodGet, "/v1/orders/1?$fields=id", nil)
		req.Header.Set("x-correlation-id", "gw-2")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "gw-2", rec.Header().Get("x-correlation-id"))
		assert.Equal(t, "gw-2", id)
		assert.Equal(t, []string{"id"}, opts.IncludeFields)
		assert.Contains(t, buf.String(), `"correlation_id":"gw-2"`)
	})

	t.Run("given a rate limit, then excess requests get 429 transient", func(t *testing.T) {
		t.Parallel()

		gwmux := runtime.NewServeMux(grpcgateway.ServeMuxOptions()...)
		require.NoError(t, gwmux.HandlePath(http.MethodGet, "/v1/ping",
			func(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
				w.WriteHeader(http.StatusOK)
			}))

		handler := grpcgateway.NewHandler(gwmux, grpcgateway.Config{
			RateLimit: &httpserver.RateLimitConfig{Limit: 0.001, Burst: 1},
		})

		first := httptest.NewRecorder()
		handler.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/v1/ping", nil))
		assert.Equal(t, http.StatusOK, first.Code)

		second := httptest.NewRecorder()
		handler.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/v1/ping", nil))
		assert.Equal(t, http.StatusTooManyRequests, second.Code)
		assert.Equal(t, "transient", second.Header().Get("x-error-type"))
	})
}
