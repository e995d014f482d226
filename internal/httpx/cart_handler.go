package httpx

import (
	"net/http"

	"github.com/ariefcatur/go-marketplace-orders/internal/auth"
	"github.com/ariefcatur/go-marketplace-orders/internal/cart"
	"github.com/go-chi/chi/v5"
)

type CartHandler struct {
	Cart *cart.Service
}

func (h *CartHandler) view(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	c, err := h.Cart.View(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": c})
}

func (h *CartHandler) add(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	var in cart.AddItemInput
	if err := decode(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	it, err := h.Cart.AddItem(r.Context(), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "added to cart", "data": it})
}

func (h *CartHandler) update(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	var in cart.UpdateQuantityInput
	if err := decode(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	it, err := h.Cart.UpdateQuantity(r.Context(), id, chi.URLParam(r, "itemID"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "quantity updated", "data": it})
}

func (h *CartHandler) remove(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	if err := h.Cart.RemoveItem(r.Context(), id, chi.URLParam(r, "itemID")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "item removed"})
}
