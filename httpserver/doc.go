// Package httpserver is the server side of the webapi contract that
// httpclient consumes: error headers, correlation ids, request options,
// paging headers and ETags.
//
// # Middleware
//
//	mux := http.NewServeMux()
//	mux.HandleFunc("GET /orders/{id}", getOrder)
//
//	handler := httpserver.Chain(
//	    httpserver.Tracing(httpserver.TracingConfig{ServiceName: "orders"}),
//	    httpserver.DefaultMiddleware(httpserver.WithDefaultLogger(httpserver.LoggerConfig{
//	        Logger: logger,
//	    })),
//	)(mux)
//
// DefaultMiddleware installs Recovery, CorrelationID, RequestOptions and
// Logger. Tracing, Metrics, RateLimit and Timeout are added as needed.
//
// # Writing responses
//
//	func getOrder(w http.ResponseWriter, r *http.Request) {
//	    opts, _ := httpserver.RequestOptionsFromContext(r.Context())
//	    order, err := store.Get(r.Context(), r.PathValue("id"))
//	    if err != nil {
//	        httpserver.WriteError(w, err)
//	        return
//	    }
//	    if httpserver.NotModified(w, opts, order.Version) {
//	        return
//	    }
//	    httpserver.WriteETag(w, order.Version)
//	    httpserver.WriteResult(w, order)
//	}
//
// WriteError sets x-error-type, x-error-code and x-messages from an *Error
// or any error exposing ErrorType(), so an httpclient.Error relayed by a
// gateway keeps its type. WriteCollection writes the paging headers that
// httpclient reads back into a webapi.CollectionResult.
//
// # Rate Limiting
//
// A rejected request gets 429 with x-error-type transient:
//
//	mux.Handle("/api/", httpserver.RateLimitByIP(50, 100)(apiHandler))
//
// Distributed rate limiting with Redis:
//
//	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
//	    Addrs: []string{"localhost:6379"},
//	})
//	mux.Handle("/api/", httpserver.RateLimitByIPRedis(rdb, 100, 200)(apiHandler))
//
// # Framework Adapters
//
//	import "github.com/kroma-labs/apiclient-go/httpserver/adapters/chi"
//	import "github.com/kroma-labs/apiclient-go/httpserver/adapters/gin"
//	import "github.com/kroma-labs/apiclient-go/httpserver/adapters/echo"
//	import "github.com/kroma-labs/apiclient-go/httpserver/adapters/fiber"
//	import "github.com/kroma-labs/apiclient-go/httpserver/adapters/grpcgateway"
package httpserver
