package orders

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrEmptyCart        = errors.New("cart is empty")
	ErrInvalidInput     = errors.New("invalid input")
	ErrPaymentGateway   = errors.New("payment gateway error")
	ErrUnknownOrder     = errors.New("order not found")
	ErrMalformedWebhook = errors.New("malformed webhook payload")
)

// InsufficientStockError names the product whose stock cannot cover the request.
type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	name := e.ProductName
	if name == "" {
		name = e.ProductID
	}
	if e.Available < 0 {
		return fmt.Sprintf("insufficient stock for product %q (requested %d)", name, e.Requested)
	}
	return fmt.Sprintf("insufficient stock for product %q (requested %d, available %d)", name, e.Requested, e.Available)
}

func IsInsufficientStock(err error) bool {
	var e *InsufficientStockError
	return errors.As(err, &e)
}
