package httpx

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/reconcile"
)

type WebhookHandler struct {
	Engine *reconcile.Engine
	// CallbackToken, kalau diisi, wajib sama dengan header x-callback-token.
	CallbackToken string
}

func (h *WebhookHandler) handle(w http.ResponseWriter, r *http.Request) {
	if h.CallbackToken != "" {
		got := r.Header.Get("x-callback-token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.CallbackToken)) != 1 {
			writeJSON(w, http.StatusForbidden, errorBody{Message: "invalid token"})
			return
		}
	}

	var p reconcile.WebhookPayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&p); err != nil {
		writeError(w, r, orders.ErrMalformedWebhook)
		return
	}
	if _, err := h.Engine.HandleWebhook(r.Context(), p); err != nil {
		writeError(w, r, err)
		return
	}
	// no-op (order sudah PAID/EXPIRED) tetap 200 supaya Xendit berhenti retry
	writeJSON(w, http.StatusOK, map[string]string{"message": "Webhook received"})
}
