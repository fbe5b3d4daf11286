// Package client is a typed client for the orders API.
package client

import (
	"context"

	"github.com/kroma-labs/apiclient-go/example/orders/internal/database"
	"github.com/kroma-labs/apiclient-go/httpclient"
	"github.com/kroma-labs/apiclient-go/webapi"
)

// Orders calls the orders API.
type Orders struct {
	http *httpclient.Client
}

// New creates an Orders client for baseURL. opts are applied after the
// defaults.
func New(baseURL string, opts ...httpclient.Option) *Orders {
	defaults := []httpclient.Option{
		httpclient.WithBaseURL(baseURL),
		httpclient.WithServiceName("orders-client"),
		httpclient.WithDefaultSendOptions(func(o *httpclient.SendOptions) {
			o.ThrowTransient = true
			o.ThrowKnown = true
			o.KnownUsesContentAsMessage = true
		}),
	}
	return &Orders{http: httpclient.New(append(defaults, opts...)...)}
}

// Get returns order id and its ETag. A missing order yields nil.
func (c *Orders) Get(ctx context.Context, id int64) (*database.Order, string, error) {
	res := httpclient.As[*database.Order](c.http.Request("GetOrder").
		Args(httpclient.NewArg("id", id)).
		NullOnNotFound().
		Get(ctx, "/orders/{id}"))
	o, err := res.Value()
	if err != nil {
		return nil, "", err
	}
	return o, res.ETag(), nil
}

// List returns one page of orders with the total count.
func (c *Orders) List(ctx context.Context, page, size int64) (webapi.CollectionResult[database.Order], error) {
	return httpclient.As[webapi.CollectionResult[database.Order]](c.http.Request("ListOrders").
		Options(webapi.RequestOptions{}.WithPaging(webapi.NewPageSize(page, size)).WithCount()).
		Get(ctx, "/orders")).Value()
}

// Create stores o.
func (c *Orders) Create(ctx context.Context, o database.Order) (database.Order, error) {
	return httpclient.As[database.Order](c.http.Request("CreateOrder").
		Args(httpclient.NewBodyArg("order", o)).
		ExpectStatus(201).
		Post(ctx, "/orders")).Value()
}

// SetTotal merge-patches the total of order id, guarded by etag.
func (c *Orders) SetTotal(ctx context.Context, id int64, etag string, total int64) (database.Order, string, error) {
	res := httpclient.As[database.Order](c.http.Request("SetOrderTotal").
		Args(httpclient.NewArg("id", id), httpclient.NewBodyArg("patch", map[string]int64{"total": total})).
		Options(webapi.RequestOptions{}.WithETag(etag)).
		Patch(ctx, httpclient.MergePatch, "/orders/{id}"))
	o, err := res.Value()
	if err != nil {
		return database.Order{}, "", err
	}
	return o, res.ETag(), nil
}
