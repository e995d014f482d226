package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ariefcatur/go-marketplace-orders/internal/logging"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// writeError maps domain errors onto status codes. Unclassified errors are
// logged and reported as 500 without internals.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var short *orders.InsufficientStockError
	switch {
	case errors.As(err, &short):
		writeJSON(w, http.StatusBadRequest, errorBody{Message: "insufficient stock", Error: short.Error()})
	case errors.Is(err, orders.ErrEmptyCart):
		writeJSON(w, http.StatusBadRequest, errorBody{Message: "cart is empty"})
	case errors.Is(err, orders.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorBody{Message: "invalid input", Error: err.Error()})
	case errors.Is(err, orders.ErrMalformedWebhook):
		writeJSON(w, http.StatusBadRequest, errorBody{Message: "invalid data"})
	case errors.Is(err, orders.ErrUnknownOrder):
		writeJSON(w, http.StatusNotFound, errorBody{Message: "order not found"})
	case errors.Is(err, orders.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Message: "not found"})
	case errors.Is(err, orders.ErrPaymentGateway):
		logging.FromCtx(r.Context()).Error("payment gateway", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Message: "failed to create order", Error: "payment gateway unavailable"})
	default:
		logging.FromCtx(r.Context()).Error("unhandled error", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Message: "internal error"})
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return errors.Join(orders.ErrInvalidInput, err)
	}
	return nil
}
