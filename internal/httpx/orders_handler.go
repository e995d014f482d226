package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/ariefcatur/go-marketplace-orders/internal/auth"
	"github.com/ariefcatur/go-marketplace-orders/internal/checkout"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/reconcile"
	"github.com/ariefcatur/go-marketplace-orders/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
)

type OrdersHandler struct {
	Store     orders.Store
	Checkout  *checkout.Service
	Reconcile *reconcile.Engine
	Redis     *redis.Client
}

type createOrderResp struct {
	Message    string       `json:"message"`
	Data       orders.Order `json:"data"`
	PaymentURL string       `json:"payment_url"`
}

func (h *OrdersHandler) create(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	var in checkout.Input
	if err := decode(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.Checkout.Checkout(r.Context(), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createOrderResp{
		Message:    "order created",
		Data:       o,
		PaymentURL: *o.InvoiceURL,
	})
}

// list refreshes PENDING orders from the gateway before answering, so a buyer
// returning from the payment page sees the result even without a webhook.
func (h *OrdersHandler) list(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	list, err := h.Store.ListOrders(r.Context(), id.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list = h.Reconcile.Sweep(r.Context(), list)
	if list == nil {
		list = []orders.Order{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": list})
}

func (h *OrdersHandler) get(w http.ResponseWriter, r *http.Request) {
	o, err := h.owned(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": o})
}

func (h *OrdersHandler) status(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	id, _ := auth.FromContext(ctx)

	// 1) coba cache
	if cs, ok := redisx.CachedOrderStatus(ctx, h.Redis, chi.URLParam(r, "id")); ok && cs.UserID == id.UserID {
		writeJSON(w, http.StatusOK, map[string]any{"data": cs})
		return
	}

	// 2) fallback DB
	o, err := h.owned(r.WithContext(ctx))
	if err != nil {
		writeError(w, r, err)
		return
	}
	redisx.CacheStatus(ctx, h.Redis, o.ID, o.UserID, string(o.Status), o.UpdatedAt)
	writeJSON(w, http.StatusOK, map[string]any{"data": redisx.CachedStatus{
		Status: string(o.Status), UserID: o.UserID, UpdatedAt: o.UpdatedAt,
	}})
}

// owned loads the order in the path; another buyer's order reads as not found.
func (h *OrdersHandler) owned(r *http.Request) (orders.Order, error) {
	id, _ := auth.FromContext(r.Context())
	o, err := h.Store.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return orders.Order{}, err
	}
	if o.UserID != id.UserID {
		return orders.Order{}, orders.ErrNotFound
	}
	return o, nil
}
