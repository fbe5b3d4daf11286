// Package api serves the orders resource with the webapi contract.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	chilib "github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"github.com/kroma-labs/apiclient-go/example/orders/internal/database"
	"github.com/kroma-labs/apiclient-go/httpserver"
	chiadapter "github.com/kroma-labs/apiclient-go/httpserver/adapters/chi"
	"github.com/kroma-labs/apiclient-go/webapi"
)

// Store persists orders.
type Store interface {
	Get(ctx context.Context, id int64) (database.Order, error)
	List(ctx context.Context, skip, take int64) ([]database.Order, error)
	Count(ctx context.Context) (int64, error)
	Create(ctx context.Context, o database.Order) (database.Order, error)
	Update(ctx context.Context, id, version, total int64) (database.Order, error)
}

const defaultPageSize = 20

// Handler serves /orders.
type Handler struct {
	store Store
}

// New creates a Handler over store.
func New(store Store) *Handler {
	return &Handler{store: store}
}

// Routes registers the order routes on r.
func (h *Handler) Routes(r chilib.Router) {
	r.Route("/orders", func(r chilib.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{id}", h.get)
		r.Put("/{id}", h.update)
		r.Patch("/{id}", h.patch)
	})
}

// storeError maps store failures to typed errors.
func storeError(err error) error {
	switch {
	case errors.Is(err, database.ErrNotFound):
		return httpserver.NewError(webapi.NotFoundError, err.Error())
	case errors.Is(err, database.ErrDuplicate):
		return httpserver.NewError(webapi.DuplicateError, err.Error())
	case errors.Is(err, database.ErrStale):
		return httpserver.NewError(webapi.ConcurrencyError, err.Error())
	default:
		return err
	}
}

func etag(o database.Order) string {
	return strconv.FormatInt(o.Version, 10)
}

func orderID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chilib.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, httpserver.NewValidationError(map[string][]string{"id": {"must be a positive number"}})
	}
	return id, nil
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		httpserver.WriteError(w, err)
		return
	}
	o, err := h.store.Get(r.Context(), id)
	if err != nil {
		httpserver.WriteError(w, storeError(err))
		return
	}

	opts, _ := httpserver.RequestOptionsFromContext(r.Context())
	if httpserver.NotModified(w, opts, etag(o)) {
		return
	}
	httpserver.WriteETag(w, etag(o))
	httpserver.WriteResult(w, o)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	opts, _ := httpserver.RequestOptionsFromContext(r.Context())
	paging := webapi.NewSkipTake(0, defaultPageSize)
	if opts.Paging != nil {
		paging = *opts.Paging
	}

	orders, err := h.store.List(r.Context(), paging.Skip, paging.Take)
	if err != nil {
		httpserver.WriteError(w, err)
		return
	}

	result := &webapi.PagingResult{PagingArgs: paging}
	if opts.GetCount {
		total, err := h.store.Count(r.Context())
		if err != nil {
			httpserver.WriteError(w, err)
			return
		}
		result.TotalCount = &total
	}
	httpserver.WriteCollection(w, orders, result)
}

func validate(o database.Order) error {
	fields := map[string][]string{}
	if o.ID <= 0 {
		fields["id"] = append(fields["id"], "must be a positive number")
	}
	if o.Customer == "" {
		fields["customer"] = append(fields["customer"], "is required")
	}
	if o.Total <= 0 {
		fields["total"] = append(fields["total"], "must be positive")
	}
	if len(fields) > 0 {
		return httpserver.NewValidationError(fields)
	}
	return nil
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in database.Order
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httpserver.WriteError(w, httpserver.NewValidationError(map[string][]string{"body": {err.Error()}}))
		return
	}
	if err := validate(in); err != nil {
		httpserver.WriteError(w, err)
		return
	}

	o, err := h.store.Create(r.Context(), in)
	if err != nil {
		httpserver.WriteError(w, storeError(err))
		return
	}
	httpserver.WriteETag(w, etag(o))
	httpserver.WriteJSON(w, http.StatusCreated, o)
}

// expectedVersion returns the version named by If-Match, or the current one
// when the request is unconditional.
func (h *Handler) expectedVersion(r *http.Request, id int64) (int64, error) {
	opts, _ := httpserver.RequestOptionsFromContext(r.Context())
	if opts.ETag == "" || opts.ETag == "*" {
		o, err := h.store.Get(r.Context(), id)
		if err != nil {
			return 0, storeError(err)
		}
		return o.Version, nil
	}
	v, err := strconv.ParseInt(webapi.UnquoteETag(opts.ETag), 10, 64)
	if err != nil {
		return 0, httpserver.NewError(webapi.ConcurrencyError, "unknown order version")
	}
	return v, nil
}

func (h *Handler) save(w http.ResponseWriter, r *http.Request, id, total int64) {
	version, err := h.expectedVersion(r, id)
	if err != nil {
		httpserver.WriteError(w, err)
		return
	}
	o, err := h.store.Update(r.Context(), id, version, total)
	if err != nil {
		httpserver.WriteError(w, storeError(err))
		return
	}
	httpserver.WriteETag(w, etag(o))
	httpserver.WriteResult(w, o)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		httpserver.WriteError(w, err)
		return
	}
	var in database.Order
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httpserver.WriteError(w, httpserver.NewValidationError(map[string][]string{"body": {err.Error()}}))
		return
	}
	if in.Total <= 0 {
		httpserver.WriteError(w, httpserver.NewValidationError(map[string][]string{"total": {"must be positive"}}))
		return
	}
	h.save(w, r, id, in.Total)
}

// patch accepts a merge patch of the total.
func (h *Handler) patch(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		httpserver.WriteError(w, err)
		return
	}
	if ct := r.Header.Get("Content-Type"); ct != "application/merge-patch+json" {
		httpserver.WriteError(w, &httpserver.Error{
			Type:    webapi.ValidationError,
			Status:  http.StatusUnsupportedMediaType,
			Message: "expected application/merge-patch+json",
		})
		return
	}

	var in struct {
		Total *int64 `json:"total"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httpserver.WriteError(w, httpserver.NewValidationError(map[string][]string{"body": {err.Error()}}))
		return
	}
	if in.Total == nil || *in.Total <= 0 {
		httpserver.WriteError(w, httpserver.NewValidationError(map[string][]string{"total": {"must be positive"}}))
		return
	}
	h.save(w, r, id, *in.Total)
}

// Router builds the chi router with the default middleware stack.
func Router(h *Handler, logCfg httpserver.LoggerConfig, metrics *httpserver.Metrics) *chilib.Mux {
	r := chilib.NewRouter()
	chiadapter.HandleErrors(r)

	r.Use(chiadapter.Tracing(httpserver.TracingConfig{ServiceName: logCfg.ServiceName}))
	if metrics != nil {
		r.Use(metrics.Middleware())
	}
	r.Use(httpserver.DefaultMiddleware(httpserver.WithDefaultLogger(logCfg)))

	h.Routes(r)
	return r
}
