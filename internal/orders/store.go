package orders

import (
	"context"
	"time"
)

// Store is the persistence boundary of the order core. Everything that must be
// atomic runs through InTx; the remaining methods are plain reads.
type Store interface {
	// InTx runs fn inside one transaction. A non-nil error from fn rolls back
	// every write made through tx.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	// ListOrders returns the buyer's orders newest first, items included.
	ListOrders(ctx context.Context, userID string) ([]Order, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	// OrderByExternalID looks the reference up verbatim.
	OrderByExternalID(ctx context.Context, externalID string) (Order, error)
	GetCart(ctx context.Context, userID string) (Cart, error)

	PendingEvents(ctx context.Context, limit int) ([]Event, error)
	MarkEventSent(ctx context.Context, id int64) error
}

// StockLedger is the only write path to products.stock.
type StockLedger interface {
	// DecrementStock subtracts qty only when stock >= qty, otherwise it fails
	// with *InsufficientStockError and changes nothing.
	DecrementStock(ctx context.Context, productID string, qty int) error
	IncrementStock(ctx context.Context, productID string, qty int) error
}

type Tx interface {
	StockLedger

	Buyer(ctx context.Context, userID string) (Buyer, error)
	Product(ctx context.Context, productID string) (Product, error)

	// LockCart loads the buyer's cart with items and products and holds row
	// locks on the cart and its products (product id order) until the
	// transaction ends. ErrNotFound if the buyer has none.
	LockCart(ctx context.Context, userID string) (Cart, error)
	// EnsureCart is LockCart that creates the cart on first use.
	EnsureCart(ctx context.Context, userID string) (Cart, error)
	// AddCartItem inserts the line or increments the existing one for productID.
	AddCartItem(ctx context.Context, cartID, productID string, qty int) (CartItem, error)
	SetCartItemQuantity(ctx context.Context, cartID, itemID string, qty int) (CartItem, error)
	DeleteCartItem(ctx context.Context, cartID, itemID string) error
	// ClearCart deletes the items; the cart row stays.
	ClearCart(ctx context.Context, cartID string) error

	// InsertOrder persists o and o.Items, filling generated ids and timestamps.
	InsertOrder(ctx context.Context, o *Order) error
	AttachInvoice(ctx context.Context, orderID, invoiceID, invoiceURL string) error
	// LockOrder loads the order with items under a row lock.
	LockOrder(ctx context.Context, orderID string) (Order, error)
	// CompareAndSetStatus moves the order from -> to only if it is still in
	// from. It reports whether this call performed the write.
	CompareAndSetStatus(ctx context.Context, orderID string, from, to Status, at time.Time) (bool, error)

	// EnqueueEvent writes an outbox row that commits or rolls back with tx.
	// The envelope's CorrelationID becomes the Kafka key.
	EnqueueEvent(ctx context.Context, topic string, env Envelope) error
}
