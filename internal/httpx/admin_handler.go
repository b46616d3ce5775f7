package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-clothing-orders/internal/inventory"
	"github.com/ariefcatur/go-clothing-orders/internal/orders"
	"github.com/ariefcatur/go-clothing-orders/internal/redisx"
)

// AdminHandler serves the back-office routes. The router only lets admins
// through; the services check the role again.
type AdminHandler struct {
	Orders    *orders.Service
	Inventory *inventory.Service
	Cache     *redisx.Cache
}

type transitionReq struct {
	Event          orders.Event `json:"event"`
	Reason         string       `json:"reason,omitempty"`
	TrackingNumber string       `json:"tracking_number,omitempty"`
}

type openStockReq struct {
	OnHand int    `json:"on_hand"`
	Reason string `json:"reason"`
}

type adjustReq struct {
	Delta  int    `json:"delta"`
	Reason string `json:"reason"`
}

func (h *AdminHandler) Register(r chi.Router) {
	r.Get("/orders", h.listOrders)
	r.Get("/orders/summary", h.summary)
	r.Post("/orders/{id}/transitions", h.transition)

	r.Get("/inventory/low-stock", h.lowStock)
	r.Post("/inventory/{variantID}", h.openStock)
	r.Get("/inventory/{variantID}", h.stock)
	r.Post("/inventory/{variantID}/adjust", h.adjust)
	r.Get("/inventory/{variantID}/transactions", h.history)
}

func (h *AdminHandler) listOrders(w http.ResponseWriter, r *http.Request) {
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

func (h *AdminHandler) summary(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	sum, err := h.Orders.Summary(ctx, actorFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (h *AdminHandler) transition(w http.ResponseWriter, r *http.Request) {
	var req transitionReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Orders.Transition(ctx, actorFrom(r), chi.URLParam(r, "id"), req.Event, orders.TransitionInput{
		Reason:         req.Reason,
		TrackingNumber: req.TrackingNumber,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	cacheStatus(ctx, h.Cache, o)
	writeJSON(w, http.StatusOK, o)
}

func (h *AdminHandler) openStock(w http.ResponseWriter, r *http.Request) {
	var req openStockReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	v, err := h.Inventory.OpenStock(ctx, actorFrom(r), chi.URLParam(r, "variantID"), req.OnHand, req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (h *AdminHandler) adjust(w http.ResponseWriter, r *http.Request) {
	var req adjustReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	v, err := h.Inventory.Restock(ctx, actorFrom(r), chi.URLParam(r, "variantID"), req.Delta, req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *AdminHandler) stock(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	v, err := h.Inventory.Stock(ctx, actorFrom(r), chi.URLParam(r, "variantID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *AdminHandler) history(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query().Get("limit"), 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	txs, err := h.Inventory.History(ctx, actorFrom(r), chi.URLParam(r, "variantID"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if txs == nil {
		txs = []inventory.Transaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

// lowStock reads the projection kept by the inventory consumer, so it is
// empty when Redis is not configured.
func (h *AdminHandler) lowStock(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query().Get("limit"), 50)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	out, err := h.Cache.LowStock(ctx, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if out == nil {
		out = []redisx.LowStockEntry{}
	}
	writeJSON(w, http.StatusOK, out)
}
