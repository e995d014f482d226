// Package checkout turns a buyer's cart into a PENDING order with a payment
// invoice, atomically.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ariefcatur/go-marketplace-orders/internal/auth"
	"github.com/ariefcatur/go-marketplace-orders/internal/metrics"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/xendit"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type Gateway interface {
	CreateInvoice(ctx context.Context, req xendit.InvoiceRequest) (xendit.Invoice, error)
}

type Input struct {
	ShippingService string  `json:"shipping_service" validate:"required"`
	ShippingCost    *int64  `json:"shipping_cost" validate:"required,min=0"`
	Courier         string  `json:"courier" validate:"required"`
	Address         *string `json:"address,omitempty"`
	Phone           *string `json:"phone,omitempty"`
	Notes           *string `json:"notes,omitempty" validate:"omitempty,max=500"`
}

type Service struct {
	Store    orders.Store
	Gateway  Gateway
	Validate *validator.Validate
	Producer string // nama service di envelope event
	Metrics  *metrics.Reconcile
	Log      *slog.Logger
}

// Checkout runs every step in one transaction: any failure, including the
// invoice call, leaves stock, cart and orders as they were.
func (s *Service) Checkout(ctx context.Context, id auth.Identity, in Input) (orders.Order, error) {
	if err := s.Validate.Struct(in); err != nil {
		return orders.Order{}, fmt.Errorf("%w: %v", orders.ErrInvalidInput, err)
	}
	shippingCost := *in.ShippingCost

	var out orders.Order
	err := s.Store.InTx(ctx, func(tx orders.Tx) error {
		cart, err := tx.LockCart(ctx, id.UserID)
		if errors.Is(err, orders.ErrNotFound) || (err == nil && len(cart.Items) == 0) {
			return orders.ErrEmptyCart
		}
		if err != nil {
			return err
		}

		for _, it := range cart.Items {
			if it.Product.Stock < it.Quantity {
				return &orders.InsufficientStockError{
					ProductID:   it.ProductID,
					ProductName: it.Product.Name,
					Requested:   it.Quantity,
					Available:   it.Product.Stock,
				}
			}
		}

		buyer, err := tx.Buyer(ctx, id.UserID)
		if err != nil {
			return fmt.Errorf("load buyer: %w", err)
		}

		o := &orders.Order{
			UserID:          id.UserID,
			ExternalID:      "ORD-" + uuid.NewString(),
			Status:          orders.StatusPending,
			Courier:         in.Courier,
			ShippingService: in.ShippingService,
			ShippingCost:    shippingCost,
			Address:         fallback(in.Address, buyer.Address),
			Phone:           fallback(in.Phone, buyer.Phone),
			Notes:           in.Notes,
			PaymentMethod:   orders.PaymentMethodXendit,
		}
		for _, it := range cart.Items {
			// harga diambil sekarang; perubahan katalog setelah ini tidak mempengaruhi order
			o.Items = append(o.Items, orders.OrderItem{
				ProductID:   it.ProductID,
				ProductName: it.Product.Name,
				Quantity:    it.Quantity,
				Price:       it.Product.Price,
			})
		}
		o.Total = o.ItemsTotal() + shippingCost

		if err := tx.InsertOrder(ctx, o); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		if err := orders.Reserve(ctx, tx, o.Items); err != nil {
			return err
		}

		payer := buyer.Email
		if payer == "" {
			payer = id.Email
		}
		inv, err := s.Gateway.CreateInvoice(ctx, xendit.InvoiceRequest{
			ExternalID:  o.ExternalID,
			Amount:      o.Total,
			PayerEmail:  payer,
			Description: "Payment for order " + o.ExternalID,
			Items:       invoiceItems(o),
		})
		if err != nil {
			return fmt.Errorf("%w: %w", orders.ErrPaymentGateway, err)
		}
		if err := tx.AttachInvoice(ctx, o.ID, inv.ID, inv.InvoiceURL); err != nil {
			return err
		}
		o.InvoiceID, o.InvoiceURL = &inv.ID, &inv.InvoiceURL

		if err := tx.EnqueueEvent(ctx, orders.TopicOrderCreated, s.createdEvent(o)); err != nil {
			return fmt.Errorf("enqueue event: %w", err)
		}
		if err := tx.ClearCart(ctx, cart.ID); err != nil {
			return err
		}
		out = *o
		return nil
	})
	s.count(err)
	if err != nil {
		return orders.Order{}, err
	}

	s.Log.Info("order created", "order_id", out.ID, "external_id", out.ExternalID,
		"user_id", out.UserID, "total", out.Total, "items", len(out.Items))
	return out, nil
}

func (s *Service) createdEvent(o *orders.Order) orders.Envelope {
	items := make([]orders.ItemPrice, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orders.ItemPrice{ProductID: it.ProductID, Qty: it.Quantity, Price: it.Price})
	}
	p, _ := json.Marshal(orders.OrderCreatedPayload{
		OrderID:    o.ID,
		ExternalID: o.ExternalID,
		UserID:     o.UserID,
		Items:      items,
		Total:      o.Total,
		InvoiceURL: *o.InvoiceURL,
	})
	return orders.NewEnvelope(uuid.NewString(), orders.EventOrderCreated, s.Producer, o.ID, p)
}

func (s *Service) count(err error) {
	if s.Metrics == nil {
		return
	}
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, orders.ErrEmptyCart):
		result = "empty_cart"
	case orders.IsInsufficientStock(err):
		result = "insufficient_stock"
	case errors.Is(err, orders.ErrPaymentGateway):
		result = "gateway_error"
	case errors.Is(err, orders.ErrInvalidInput):
		result = "invalid"
	default:
		result = "error"
	}
	s.Metrics.Checkouts.WithLabelValues(result).Inc()
}

func invoiceItems(o *orders.Order) []xendit.Item {
	out := make([]xendit.Item, 0, len(o.Items)+1)
	for _, it := range o.Items {
		out = append(out, xendit.Item{Name: it.ProductName, Quantity: it.Quantity, Price: it.Price, Category: "Product"})
	}
	out = append(out, xendit.Item{
		Name:     fmt.Sprintf("Shipping (%s - %s)", strings.ToUpper(o.Courier), o.ShippingService),
		Quantity: 1,
		Price:    o.ShippingCost,
		Category: "Shipping",
	})
	return out
}

// input dulu, lalu profil buyer, terakhir "-"
func fallback(in *string, profile string) string {
	if in != nil && strings.TrimSpace(*in) != "" {
		return *in
	}
	if strings.TrimSpace(profile) != "" {
		return profile
	}
	return "-"
}
