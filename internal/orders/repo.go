package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repo is the Postgres Store.
type Repo struct{ DB *pgxpool.Pool }

var _ Store = (*Repo)(nil)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const orderColumns = `id, user_id, external_id, status, total, courier, shipping_service, shipping_cost,
	address, phone, notes, payment_method, invoice_id, invoice_url, created_at, updated_at, paid_at, expired_at`

func (r *Repo) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repo) ListOrders(ctx context.Context, userID string) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id=$1 ORDER BY created_at DESC, id`, userID)
	if err != nil {
		return nil, err
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Order, error) { return scanOrder(row) })
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	ids := make([]string, len(out))
	for i := range out {
		ids[i] = out[i].ID
	}
	items, err := loadItems(ctx, r.DB, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Items = items[out[i].ID]
	}
	return out, nil
}

func (r *Repo) GetOrder(ctx context.Context, orderID string) (Order, error) {
	return getOrder(ctx, r.DB, `WHERE id=$1`, orderID)
}

func (r *Repo) OrderByExternalID(ctx context.Context, externalID string) (Order, error) {
	return getOrder(ctx, r.DB, `WHERE external_id=$1`, externalID)
}

func (r *Repo) GetCart(ctx context.Context, userID string) (Cart, error) {
	return loadCart(ctx, r.DB, userID, false)
}

func (r *Repo) PendingEvents(ctx context.Context, limit int) ([]Event, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, event_id, topic, key, payload, created_at, sent_at
		FROM outbox WHERE sent_at IS NULL ORDER BY id LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.EventID, &e.Topic, &e.Key, &e.Payload, &e.CreatedAt, &e.SentAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Repo) MarkEventSent(ctx context.Context, id int64) error {
	_, err := r.DB.Exec(ctx, `UPDATE outbox SET sent_at=now() WHERE id=$1`, id)
	return err
}

// ---- transaction ----

type pgTx struct{ tx pgx.Tx }

func (t *pgTx) Buyer(ctx context.Context, userID string) (Buyer, error) {
	var b Buyer
	err := t.tx.QueryRow(ctx, `
		SELECT id, email, COALESCE(full_address, ''), COALESCE(phone, '')
		FROM users WHERE id=$1`, userID).Scan(&b.ID, &b.Email, &b.Address, &b.Phone)
	return b, notFound(err)
}

func (t *pgTx) Product(ctx context.Context, productID string) (Product, error) {
	var p Product
	err := t.tx.QueryRow(ctx, `
		SELECT id, name, price, weight, stock, COALESCE(seller_id, ''), updated_at
		FROM products WHERE id=$1`, productID).
		Scan(&p.ID, &p.Name, &p.Price, &p.Weight, &p.Stock, &p.SellerID, &p.UpdatedAt)
	return p, notFound(err)
}

func (t *pgTx) LockCart(ctx context.Context, userID string) (Cart, error) {
	return loadCart(ctx, t.tx, userID, true)
}

func (t *pgTx) EnsureCart(ctx context.Context, userID string) (Cart, error) {
	if _, err := t.tx.Exec(ctx, `
		INSERT INTO carts(id, user_id) VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING`, uuid.NewString(), userID); err != nil {
		return Cart{}, err
	}
	return loadCart(ctx, t.tx, userID, true)
}

func (t *pgTx) AddCartItem(ctx context.Context, cartID, productID string, qty int) (CartItem, error) {
	var it CartItem
	err := t.tx.QueryRow(ctx, `
		INSERT INTO cart_items(id, cart_id, product_id, quantity)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (cart_id, product_id) DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
		RETURNING id, cart_id, product_id, quantity`,
		uuid.NewString(), cartID, productID, qty,
	).Scan(&it.ID, &it.CartID, &it.ProductID, &it.Quantity)
	if err != nil {
		return CartItem{}, err
	}
	it.Product, err = t.Product(ctx, productID)
	return it, err
}

func (t *pgTx) SetCartItemQuantity(ctx context.Context, cartID, itemID string, qty int) (CartItem, error) {
	var it CartItem
	err := t.tx.QueryRow(ctx, `
		UPDATE cart_items SET quantity=$3 WHERE id=$2 AND cart_id=$1
		RETURNING id, cart_id, product_id, quantity`, cartID, itemID, qty,
	).Scan(&it.ID, &it.CartID, &it.ProductID, &it.Quantity)
	if err != nil {
		return CartItem{}, notFound(err)
	}
	it.Product, err = t.Product(ctx, it.ProductID)
	return it, err
}

func (t *pgTx) DeleteCartItem(ctx context.Context, cartID, itemID string) error {
	ct, err := t.tx.Exec(ctx, `DELETE FROM cart_items WHERE id=$2 AND cart_id=$1`, cartID, itemID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) ClearCart(ctx context.Context, cartID string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id=$1`, cartID)
	return err
}

func (t *pgTx) InsertOrder(ctx context.Context, o *Order) error {
	now := time.Now().UTC()
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	o.CreatedAt, o.UpdatedAt = now, now

	_, err := t.tx.Exec(ctx, `
		INSERT INTO orders(id, user_id, external_id, status, total, courier, shipping_service, shipping_cost,
		                   address, phone, notes, payment_method, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$13)`,
		o.ID, o.UserID, o.ExternalID, string(o.Status), o.Total, o.Courier, o.ShippingService, o.ShippingCost,
		o.Address, o.Phone, o.Notes, o.PaymentMethod, now,
	)
	if err != nil {
		return err
	}

	for i := range o.Items {
		it := &o.Items[i]
		it.ID = uuid.NewString()
		it.OrderID = o.ID
		if _, err := t.tx.Exec(ctx, `
			INSERT INTO order_items(id, order_id, product_id, product_name, quantity, price)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			it.ID, it.OrderID, it.ProductID, it.ProductName, it.Quantity, it.Price,
		); err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) AttachInvoice(ctx context.Context, orderID, invoiceID, invoiceURL string) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE orders SET invoice_id=$2, invoice_url=$3, updated_at=now() WHERE id=$1`,
		orderID, invoiceID, invoiceURL)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) LockOrder(ctx context.Context, orderID string) (Order, error) {
	return getOrder(ctx, t.tx, `WHERE id=$1 FOR UPDATE`, orderID)
}

func (t *pgTx) CompareAndSetStatus(ctx context.Context, orderID string, from, to Status, at time.Time) (bool, error) {
	if !CanTransition(from, to) {
		return false, fmt.Errorf("illegal transition %s -> %s", from, to)
	}
	ct, err := t.tx.Exec(ctx, `
		UPDATE orders SET status=$3, updated_at=$4,
			paid_at    = CASE WHEN $3 = 'PAID' THEN $4 ELSE paid_at END,
			expired_at = CASE WHEN $3 = 'EXPIRED' THEN $4 ELSE expired_at END
		WHERE id=$1 AND status=$2`,
		orderID, string(from), string(to), at)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

// DecrementStock: conditional update, bukan read-then-write. Row lock di UPDATE
// men-serialisasi order lain yang menyentuh produk yang sama.
func (t *pgTx) DecrementStock(ctx context.Context, productID string, qty int) error {
	var left int
	err := t.tx.QueryRow(ctx, `
		UPDATE products SET stock = stock - $2, updated_at = now()
		WHERE id=$1 AND stock >= $2
		RETURNING stock`, productID, qty).Scan(&left)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	short := &InsufficientStockError{ProductID: productID, Requested: qty, Available: -1}
	if err := t.tx.QueryRow(ctx, `SELECT name, stock FROM products WHERE id=$1`, productID).
		Scan(&short.ProductName, &short.Available); err != nil {
		return notFound(err)
	}
	return short
}

func (t *pgTx) IncrementStock(ctx context.Context, productID string, qty int) error {
	ct, err := t.tx.Exec(ctx, `UPDATE products SET stock = stock + $2, updated_at = now() WHERE id=$1`, productID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) EnqueueEvent(ctx context.Context, topic string, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `INSERT INTO outbox(event_id, topic, key, payload) VALUES ($1, $2, $3, $4)`,
		env.EventID, topic, env.CorrelationID, data)
	return err
}

// ---- helpers ----

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o      Order
		status string
	)
	err := row.Scan(&o.ID, &o.UserID, &o.ExternalID, &status, &o.Total, &o.Courier, &o.ShippingService,
		&o.ShippingCost, &o.Address, &o.Phone, &o.Notes, &o.PaymentMethod, &o.InvoiceID, &o.InvoiceURL,
		&o.CreatedAt, &o.UpdatedAt, &o.PaidAt, &o.ExpiredAt)
	o.Status = Status(status)
	return o, err
}

func getOrder(ctx context.Context, q querier, where string, arg any) (Order, error) {
	o, err := scanOrder(q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders `+where, arg))
	if err != nil {
		return Order{}, notFound(err)
	}
	items, err := loadItems(ctx, q, []string{o.ID})
	if err != nil {
		return Order{}, err
	}
	o.Items = items[o.ID]
	return o, nil
}

func loadItems(ctx context.Context, q querier, orderIDs []string) (map[string][]OrderItem, error) {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, product_id, product_name, quantity, price
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, id`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]OrderItem, len(orderIDs))
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Quantity, &it.Price); err != nil {
			return nil, err
		}
		out[it.OrderID] = append(out[it.OrderID], it)
	}
	return out, rows.Err()
}

func loadCart(ctx context.Context, q querier, userID string, lock bool) (Cart, error) {
	sql := `SELECT id, user_id FROM carts WHERE user_id=$1`
	if lock {
		sql += ` FOR UPDATE`
	}
	var c Cart
	if err := q.QueryRow(ctx, sql, userID).Scan(&c.ID, &c.UserID); err != nil {
		return Cart{}, notFound(err)
	}
	if lock {
		// produk dikunci urut id, sama dengan urutan Reserve/Release
		if _, err := q.Exec(ctx, `
			SELECT p.id FROM products p
			WHERE p.id IN (SELECT product_id FROM cart_items WHERE cart_id=$1)
			ORDER BY p.id FOR UPDATE`, c.ID); err != nil {
			return Cart{}, err
		}
	}

	rows, err := q.Query(ctx, `
		SELECT ci.id, ci.cart_id, ci.product_id, ci.quantity,
		       p.id, p.name, p.price, p.weight, p.stock, COALESCE(p.seller_id, ''), p.updated_at
		FROM cart_items ci JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id=$1 ORDER BY ci.created_at, ci.id`, c.ID)
	if err != nil {
		return Cart{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var it CartItem
		p := &it.Product
		if err := rows.Scan(&it.ID, &it.CartID, &it.ProductID, &it.Quantity,
			&p.ID, &p.Name, &p.Price, &p.Weight, &p.Stock, &p.SellerID, &p.UpdatedAt); err != nil {
			return Cart{}, err
		}
		c.Items = append(c.Items, it)
	}
	return c, rows.Err()
}
