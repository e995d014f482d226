package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-marketplace-orders/internal/auth"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/go-playground/validator/v10"
)

type AddItemInput struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gte=1"`
}

type UpdateQuantityInput struct {
	Quantity int `json:"quantity" validate:"gte=1"`
}

type Service struct {
	Store    orders.Store
	Validate *validator.Validate
}

// View returns the buyer's cart; a buyer without one gets an empty cart.
func (s *Service) View(ctx context.Context, id auth.Identity) (orders.Cart, error) {
	c, err := s.Store.GetCart(ctx, id.UserID)
	if errors.Is(err, orders.ErrNotFound) {
		return orders.Cart{UserID: id.UserID, Items: []orders.CartItem{}}, nil
	}
	if c.Items == nil {
		c.Items = []orders.CartItem{}
	}
	return c, err
}

// AddItem creates the cart on first use and increments an existing line. The
// resulting quantity must fit the current stock.
func (s *Service) AddItem(ctx context.Context, id auth.Identity, in AddItemInput) (orders.CartItem, error) {
	if err := s.Validate.Struct(in); err != nil {
		return orders.CartItem{}, fmt.Errorf("%w: %v", orders.ErrInvalidInput, err)
	}
	var out orders.CartItem
	err := s.Store.InTx(ctx, func(tx orders.Tx) error {
		p, err := tx.Product(ctx, in.ProductID)
		if err != nil {
			return err
		}
		c, err := tx.EnsureCart(ctx, id.UserID)
		if err != nil {
			return err
		}
		want := in.Quantity
		for _, it := range c.Items {
			if it.ProductID == in.ProductID {
				want += it.Quantity
			}
		}
		if err := checkStock(p, want); err != nil {
			return err
		}
		out, err = tx.AddCartItem(ctx, c.ID, p.ID, in.Quantity)
		out.Product = p
		return err
	})
	return out, err
}

func (s *Service) UpdateQuantity(ctx context.Context, id auth.Identity, itemID string, in UpdateQuantityInput) (orders.CartItem, error) {
	if err := s.Validate.Struct(in); err != nil {
		return orders.CartItem{}, fmt.Errorf("%w: %v", orders.ErrInvalidInput, err)
	}
	var out orders.CartItem
	err := s.Store.InTx(ctx, func(tx orders.Tx) error {
		c, err := tx.LockCart(ctx, id.UserID)
		if err != nil {
			return err
		}
		it, ok := findItem(c, itemID)
		if !ok {
			return orders.ErrNotFound
		}
		if err := checkStock(it.Product, in.Quantity); err != nil {
			return err
		}
		out, err = tx.SetCartItemQuantity(ctx, c.ID, itemID, in.Quantity)
		out.Product = it.Product
		return err
	})
	return out, err
}

func (s *Service) RemoveItem(ctx context.Context, id auth.Identity, itemID string) error {
	return s.Store.InTx(ctx, func(tx orders.Tx) error {
		c, err := tx.LockCart(ctx, id.UserID)
		if err != nil {
			return err
		}
		if _, ok := findItem(c, itemID); !ok {
			return orders.ErrNotFound
		}
		return tx.DeleteCartItem(ctx, c.ID, itemID)
	})
}

func findItem(c orders.Cart, itemID string) (orders.CartItem, bool) {
	for _, it := range c.Items {
		if it.ID == itemID {
			return it, true
		}
	}
	return orders.CartItem{}, false
}

func checkStock(p orders.Product, qty int) error {
	if p.Stock < qty {
		return &orders.InsufficientStockError{ProductID: p.ID, ProductName: p.Name, Requested: qty, Available: p.Stock}
	}
	return nil
}
