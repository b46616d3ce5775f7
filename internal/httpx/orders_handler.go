package httpx

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-clothing-orders/internal/apperr"
	"github.com/ariefcatur/go-clothing-orders/internal/inventory"
	"github.com/ariefcatur/go-clothing-orders/internal/logger"
	"github.com/ariefcatur/go-clothing-orders/internal/orders"
	"github.com/ariefcatur/go-clothing-orders/internal/redisx"
)

type OrdersHandler struct {
	Orders    *orders.Service
	Inventory *inventory.Service
	Cache     *redisx.Cache
}

type reasonReq struct {
	Reason string `json:"reason"`
}

type statusResp struct {
	OrderID   string    `json:"order_id"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
	Cached    bool      `json:"cached"`
}

type availabilityResp struct {
	VariantID string `json:"variant_id"`
	Available int    `json:"available"`
	Cached    bool   `json:"cached"`
}

// Register mounts the routes that need a signed-in caller.
func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.placeOrder)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getStatus)
	r.Post("/orders/{id}/cancel", h.cancel)
	r.Post("/orders/{id}/cancellation-request", h.requestCancellation)
	r.Post("/orders/{id}/confirm-delivery", h.confirmDelivery)
}

// RegisterPublic mounts the storefront routes.
func (h *OrdersHandler) RegisterPublic(r chi.Router) {
	r.Get("/variants/{variantID}/availability", h.availability)
}

func (h *OrdersHandler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req orders.PlaceOrderInput
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	actor := actorFrom(r)

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// Idempotency is a Redis fast path. Without Redis every request places an order.
	customer := req.CustomerID
	if customer == "" {
		customer = actor.ID
	}
	key := r.Header.Get("Idempotency-Key")
	existing, claimed, err := h.Cache.ClaimIdempotency(ctx, customer, key)
	if err != nil {
		logger.Warn(ctx).Err(err).Msg("idempotency claim failed, continuing without it")
		claimed, key = true, ""
	}
	if !claimed {
		if existing == "" {
			writeError(w, r, apperr.New(apperr.KindConcurrentModification, "a request with this idempotency key is in progress"))
			return
		}
		o, err := h.Orders.GetOrder(ctx, actor, existing)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, o)
		return
	}

	o, err := h.Orders.PlaceOrder(ctx, actor, req)
	if err != nil {
		_ = h.Cache.ReleaseIdempotency(ctx, customer, key)
		writeError(w, r, err)
		return
	}
	_ = h.Cache.CompleteIdempotency(ctx, customer, key, o.ID)
	cacheStatus(ctx, h.Cache, o)
	writeJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	f, err := listFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	out, err := h.Orders.ListOrders(ctx, actorFrom(r), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if out == nil {
		out = []orders.Order{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Orders.GetOrder(ctx, actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	actor := actorFrom(r)

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// 1) cache, only when the caller may see the order
	if s, ok, err := h.Cache.OrderStatus(ctx, id); err == nil && ok && (actor.IsAdmin() || actor.Owns(s.CustomerID)) {
		writeJSON(w, http.StatusOK, statusResp{OrderID: s.OrderID, Status: s.Status, UpdatedAt: s.UpdatedAt, Cached: true})
		return
	}

	// 2) fallback to the store
	o, err := h.Orders.GetOrder(ctx, actor, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	cacheStatus(ctx, h.Cache, o)
	writeJSON(w, http.StatusOK, statusResp{OrderID: o.ID, Status: string(o.Status), UpdatedAt: o.UpdatedAt})
}

func (h *OrdersHandler) cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, id string) (*orders.Order, error) {
		return h.Orders.CancelByCustomer(ctx, actorFrom(r), id)
	})
}

func (h *OrdersHandler) requestCancellation(w http.ResponseWriter, r *http.Request) {
	var req reasonReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	h.transition(w, r, func(ctx context.Context, id string) (*orders.Order, error) {
		return h.Orders.RequestCancellation(ctx, actorFrom(r), id, req.Reason)
	})
}

func (h *OrdersHandler) confirmDelivery(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, id string) (*orders.Order, error) {
		return h.Orders.ConfirmDelivery(ctx, actorFrom(r), id)
	})
}

func (h *OrdersHandler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id string) (*orders.Order, error)) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := fn(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	cacheStatus(ctx, h.Cache, o)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) availability(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "variantID")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if n, ok, err := h.Cache.Availability(ctx, id); err == nil && ok {
		writeJSON(w, http.StatusOK, availabilityResp{VariantID: id, Available: n, Cached: true})
		return
	}
	n, err := h.Inventory.Available(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, availabilityResp{VariantID: id, Available: n})
}

// cacheStatus refreshes the status cache after a write. Failures are logged
// and never fail the request; the store stays the source of truth.
func cacheStatus(ctx context.Context, c *redisx.Cache, o *orders.Order) {
	err := c.SetOrderStatus(ctx, redisx.OrderStatus{
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		Status:     string(o.Status),
		UpdatedAt:  o.UpdatedAt,
	})
	if err != nil {
		logger.Warn(ctx).Err(err).Str("order_id", o.ID).Msg("status cache write failed")
	}
}

func listFilter(r *http.Request) (orders.ListFilter, error) {
	q := r.URL.Query()
	f := orders.ListFilter{
		CustomerID: q.Get("customer_id"),
		Status:     orders.Status(q.Get("status")),
	}
	var err error
	if f.Limit, err = intParam(q.Get("limit"), 50); err != nil {
		return f, err
	}
	if f.Offset, err = intParam(q.Get("offset"), 0); err != nil {
		return f, err
	}
	return f, nil
}

func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, apperr.New(apperr.KindInvalidInput, "invalid number %q", v)
	}
	return n, nil
}
