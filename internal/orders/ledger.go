package orders

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
)

// byProduct returns the lines sorted by product id. Every writer to
// products.stock takes row locks in this order, so two transactions touching
// the same products cannot wait on each other in a cycle.
func byProduct(items []OrderItem) []OrderItem {
	out := slices.Clone(items)
	slices.SortStableFunc(out, func(a, b OrderItem) int { return cmp.Compare(a.ProductID, b.ProductID) })
	return out
}

// Reserve decrements stock for every line in product id order. The first line that cannot
// be covered aborts with *InsufficientStockError; the caller must roll back the
// transaction so earlier decrements disappear with it.
func Reserve(ctx context.Context, l StockLedger, items []OrderItem) error {
	for _, it := range byProduct(items) {
		if it.Quantity <= 0 {
			return fmt.Errorf("%w: quantity for product %s", ErrInvalidInput, it.ProductID)
		}
		if err := l.DecrementStock(ctx, it.ProductID, it.Quantity); err != nil {
			var short *InsufficientStockError
			if errors.As(err, &short) && short.ProductName == "" {
				short.ProductName = it.ProductName
			}
			return err
		}
	}
	return nil
}

// Release is the compensating restock for an abandoned order.
func Release(ctx context.Context, l StockLedger, items []OrderItem) ([]ItemQty, error) {
	out := make([]ItemQty, 0, len(items))
	for _, it := range byProduct(items) {
		if err := l.IncrementStock(ctx, it.ProductID, it.Quantity); err != nil {
			return nil, fmt.Errorf("restock %s: %w", it.ProductID, err)
		}
		out = append(out, ItemQty{ProductID: it.ProductID, Qty: it.Quantity})
	}
	return out, nil
}
