package httpserver

import (
	"context"
	"net/http"
)

type routeKey struct{}

// ContextWithRoute stores the matched route pattern, such as
// "/orders/{id}", for Tracing and Metrics. Framework adapters set it.
func ContextWithRoute(ctx context.Context, route string) context.Context {
	return context.WithValue(ctx, routeKey{}, route)
}

// RouteFromContext returns the route stored by ContextWithRoute, or "".
func RouteFromContext(ctx context.Context) string {
	route, _ := ctx.Value(routeKey{}).(string)
	return route
}

func routeFromRequest(r *http.Request) string {
	return RouteFromContext(r.Context())
}
