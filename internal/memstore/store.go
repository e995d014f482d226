// Package memstore is an in-memory orders.Store. Transactions run one at a time
// against a private copy of the state, which replaces the shared state only on
// success, so a failed transaction leaves no trace.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/google/uuid"
)

type Store struct {
	mu sync.Mutex
	st *state
}

var _ orders.Store = (*Store)(nil)

type cartItemRow struct {
	ID        string
	CartID    string
	ProductID string
	Quantity  int
	seq       int64
}

type state struct {
	users      map[string]orders.Buyer
	products   map[string]orders.Product
	carts      map[string]orders.Cart // by user id, items not populated
	cartItems  map[string]cartItemRow
	orders     map[string]orders.Order // items not populated
	orderItems map[string][]orders.OrderItem
	outbox     []orders.Event
	seq        int64
}

func New() *Store {
	return &Store{st: &state{
		users:      map[string]orders.Buyer{},
		products:   map[string]orders.Product{},
		carts:      map[string]orders.Cart{},
		cartItems:  map[string]cartItemRow{},
		orders:     map[string]orders.Order{},
		orderItems: map[string][]orders.OrderItem{},
	}}
}

func (s *state) clone() *state {
	c := &state{
		users:      make(map[string]orders.Buyer, len(s.users)),
		products:   make(map[string]orders.Product, len(s.products)),
		carts:      make(map[string]orders.Cart, len(s.carts)),
		cartItems:  make(map[string]cartItemRow, len(s.cartItems)),
		orders:     make(map[string]orders.Order, len(s.orders)),
		orderItems: make(map[string][]orders.OrderItem, len(s.orderItems)),
		outbox:     append([]orders.Event(nil), s.outbox...),
		seq:        s.seq,
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.carts {
		c.carts[k] = v
	}
	for k, v := range s.cartItems {
		c.cartItems[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.orderItems {
		c.orderItems[k] = append([]orders.OrderItem(nil), v...)
	}
	return c
}

func (s *Store) InTx(ctx context.Context, fn func(tx orders.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(&memTx{st: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) ListOrders(_ context.Context, userID string) ([]orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []orders.Order
	for _, o := range s.st.orders {
		if o.UserID == userID {
			out = append(out, s.st.withItems(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) GetOrder(_ context.Context, orderID string) (orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.st.orders[orderID]
	if !ok {
		return orders.Order{}, orders.ErrNotFound
	}
	return s.st.withItems(o), nil
}

func (s *Store) OrderByExternalID(_ context.Context, externalID string) (orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.st.orders {
		if o.ExternalID == externalID {
			return s.st.withItems(o), nil
		}
	}
	return orders.Order{}, orders.ErrNotFound
}

func (s *Store) GetCart(_ context.Context, userID string) (orders.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.cart(userID)
}

func (s *Store) PendingEvents(_ context.Context, limit int) ([]orders.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []orders.Event
	for _, e := range s.st.outbox {
		if e.SentAt == nil {
			out = append(out, e)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *Store) MarkEventSent(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.st.outbox {
		if s.st.outbox[i].ID == id {
			now := time.Now().UTC()
			s.st.outbox[i].SentAt = &now
			return nil
		}
	}
	return orders.ErrNotFound
}

// ---- seeding & inspection, used by local runs and tests ----

func (s *Store) PutUser(b orders.Buyer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.users[b.ID] = b
}

func (s *Store) PutProduct(p orders.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	s.st.products[p.ID] = p
}

func (s *Store) Product(id string) (orders.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.st.products[id]
	return p, ok
}

// SetPrice changes a catalog price, as the external catalog service would.
func (s *Store) SetPrice(id string, price int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.st.products[id]
	p.Price = price
	s.st.products[id] = p
}

func (s *Store) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.orders)
}

func (s *Store) Events() []orders.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]orders.Event(nil), s.st.outbox...)
}

// ---- state helpers ----

func (s *state) next() int64 {
	s.seq++
	return s.seq
}

func (s *state) withItems(o orders.Order) orders.Order {
	o.Items = append([]orders.OrderItem(nil), s.orderItems[o.ID]...)
	return o
}

func (s *state) cart(userID string) (orders.Cart, error) {
	c, ok := s.carts[userID]
	if !ok {
		return orders.Cart{}, orders.ErrNotFound
	}
	var rows []cartItemRow
	for _, r := range s.cartItems {
		if r.CartID == c.ID {
			rows = append(rows, r)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })

	c.Items = nil
	for _, r := range rows {
		c.Items = append(c.Items, orders.CartItem{
			ID: r.ID, CartID: r.CartID, ProductID: r.ProductID, Quantity: r.Quantity,
			Product: s.products[r.ProductID],
		})
	}
	return c, nil
}

// ---- transaction ----

type memTx struct{ st *state }

func (t *memTx) Buyer(_ context.Context, userID string) (orders.Buyer, error) {
	b, ok := t.st.users[userID]
	if !ok {
		return orders.Buyer{}, orders.ErrNotFound
	}
	return b, nil
}

func (t *memTx) Product(_ context.Context, productID string) (orders.Product, error) {
	p, ok := t.st.products[productID]
	if !ok {
		return orders.Product{}, orders.ErrNotFound
	}
	return p, nil
}

func (t *memTx) LockCart(_ context.Context, userID string) (orders.Cart, error) {
	return t.st.cart(userID)
}

func (t *memTx) EnsureCart(_ context.Context, userID string) (orders.Cart, error) {
	if _, ok := t.st.carts[userID]; !ok {
		t.st.carts[userID] = orders.Cart{ID: uuid.NewString(), UserID: userID}
	}
	return t.st.cart(userID)
}

func (t *memTx) cartOwner(cartID string) bool {
	for _, c := range t.st.carts {
		if c.ID == cartID {
			return true
		}
	}
	return false
}

func (t *memTx) AddCartItem(_ context.Context, cartID, productID string, qty int) (orders.CartItem, error) {
	if !t.cartOwner(cartID) {
		return orders.CartItem{}, orders.ErrNotFound
	}
	p, ok := t.st.products[productID]
	if !ok {
		return orders.CartItem{}, orders.ErrNotFound
	}
	for id, r := range t.st.cartItems {
		if r.CartID == cartID && r.ProductID == productID {
			r.Quantity += qty
			t.st.cartItems[id] = r
			return orders.CartItem{ID: r.ID, CartID: cartID, ProductID: productID, Quantity: r.Quantity, Product: p}, nil
		}
	}
	r := cartItemRow{ID: uuid.NewString(), CartID: cartID, ProductID: productID, Quantity: qty, seq: t.st.next()}
	t.st.cartItems[r.ID] = r
	return orders.CartItem{ID: r.ID, CartID: cartID, ProductID: productID, Quantity: qty, Product: p}, nil
}

func (t *memTx) SetCartItemQuantity(_ context.Context, cartID, itemID string, qty int) (orders.CartItem, error) {
	r, ok := t.st.cartItems[itemID]
	if !ok || r.CartID != cartID {
		return orders.CartItem{}, orders.ErrNotFound
	}
	r.Quantity = qty
	t.st.cartItems[itemID] = r
	return orders.CartItem{ID: r.ID, CartID: cartID, ProductID: r.ProductID, Quantity: qty, Product: t.st.products[r.ProductID]}, nil
}

func (t *memTx) DeleteCartItem(_ context.Context, cartID, itemID string) error {
	r, ok := t.st.cartItems[itemID]
	if !ok || r.CartID != cartID {
		return orders.ErrNotFound
	}
	delete(t.st.cartItems, itemID)
	return nil
}

func (t *memTx) ClearCart(_ context.Context, cartID string) error {
	for id, r := range t.st.cartItems {
		if r.CartID == cartID {
			delete(t.st.cartItems, id)
		}
	}
	return nil
}

func (t *memTx) InsertOrder(_ context.Context, o *orders.Order) error {
	for _, other := range t.st.orders {
		if other.ExternalID == o.ExternalID {
			return fmt.Errorf("duplicate external_id %q", o.ExternalID)
		}
	}
	now := time.Now().UTC()
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	o.CreatedAt, o.UpdatedAt = now, now
	for i := range o.Items {
		o.Items[i].ID = uuid.NewString()
		o.Items[i].OrderID = o.ID
	}

	row := *o
	row.Items = nil
	t.st.orders[o.ID] = row
	t.st.orderItems[o.ID] = append([]orders.OrderItem(nil), o.Items...)
	return nil
}

func (t *memTx) AttachInvoice(_ context.Context, orderID, invoiceID, invoiceURL string) error {
	o, ok := t.st.orders[orderID]
	if !ok {
		return orders.ErrNotFound
	}
	o.InvoiceID, o.InvoiceURL = &invoiceID, &invoiceURL
	o.UpdatedAt = time.Now().UTC()
	t.st.orders[orderID] = o
	return nil
}

func (t *memTx) LockOrder(_ context.Context, orderID string) (orders.Order, error) {
	o, ok := t.st.orders[orderID]
	if !ok {
		return orders.Order{}, orders.ErrNotFound
	}
	return t.st.withItems(o), nil
}

func (t *memTx) CompareAndSetStatus(_ context.Context, orderID string, from, to orders.Status, at time.Time) (bool, error) {
	if !orders.CanTransition(from, to) {
		return false, fmt.Errorf("illegal transition %s -> %s", from, to)
	}
	o, ok := t.st.orders[orderID]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status, o.UpdatedAt = to, at
	switch to {
	case orders.StatusPaid:
		o.PaidAt = &at
	case orders.StatusExpired:
		o.ExpiredAt = &at
	}
	t.st.orders[orderID] = o
	return true, nil
}

func (t *memTx) DecrementStock(_ context.Context, productID string, qty int) error {
	p, ok := t.st.products[productID]
	if !ok {
		return orders.ErrNotFound
	}
	if p.Stock < qty {
		return &orders.InsufficientStockError{ProductID: p.ID, ProductName: p.Name, Requested: qty, Available: p.Stock}
	}
	p.Stock -= qty
	p.UpdatedAt = time.Now().UTC()
	t.st.products[productID] = p
	return nil
}

func (t *memTx) IncrementStock(_ context.Context, productID string, qty int) error {
	p, ok := t.st.products[productID]
	if !ok {
		return orders.ErrNotFound
	}
	p.Stock += qty
	p.UpdatedAt = time.Now().UTC()
	t.st.products[productID] = p
	return nil
}

func (t *memTx) EnqueueEvent(_ context.Context, topic string, env orders.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	t.st.outbox = append(t.st.outbox, orders.Event{
		ID:        t.st.next(),
		EventID:   env.EventID,
		Topic:     topic,
		Key:       env.CorrelationID,
		Payload:   data,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}
