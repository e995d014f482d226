package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// users dan products dimiliki service lain (auth, catalog); tabel dibuat di sini
// hanya supaya environment lokal bisa jalan sendiri.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id           TEXT PRIMARY KEY,
		email        TEXT NOT NULL UNIQUE,
		full_address TEXT,
		phone        TEXT,
		role         TEXT NOT NULL DEFAULT 'buyer'
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id         TEXT PRIMARY KEY,
		seller_id  TEXT NOT NULL,
		name       TEXT NOT NULL,
		price      BIGINT NOT NULL CHECK (price >= 0),
		weight     INT NOT NULL DEFAULT 0,
		stock      INT NOT NULL CHECK (stock >= 0),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS carts (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL UNIQUE REFERENCES users(id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS cart_items (
		id         TEXT PRIMARY KEY,
		cart_id    TEXT NOT NULL REFERENCES carts(id) ON DELETE CASCADE,
		product_id TEXT NOT NULL REFERENCES products(id),
		quantity   INT NOT NULL CHECK (quantity > 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (cart_id, product_id)
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id               TEXT PRIMARY KEY,
		user_id          TEXT NOT NULL REFERENCES users(id),
		external_id      TEXT NOT NULL UNIQUE,
		status           TEXT NOT NULL CHECK (status IN ('PENDING','PAID','EXPIRED')),
		total            BIGINT NOT NULL,
		courier          TEXT NOT NULL,
		shipping_service TEXT NOT NULL,
		shipping_cost    BIGINT NOT NULL,
		address          TEXT NOT NULL,
		phone            TEXT NOT NULL,
		notes            TEXT,
		payment_method   TEXT NOT NULL,
		invoice_id       TEXT,
		invoice_url      TEXT,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		paid_at          TIMESTAMPTZ,
		expired_at       TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS orders_user_created_idx ON orders (user_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id           TEXT PRIMARY KEY,
		order_id     TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		product_id   TEXT NOT NULL REFERENCES products(id),
		product_name TEXT NOT NULL,
		quantity     INT NOT NULL CHECK (quantity > 0),
		price        BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS outbox (
		id         BIGSERIAL PRIMARY KEY,
		event_id   TEXT NOT NULL UNIQUE,
		topic      TEXT NOT NULL,
		key        TEXT NOT NULL,
		payload    JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		sent_at    TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS outbox_unsent_idx ON outbox (id) WHERE sent_at IS NULL`,
}

// Migrate applies the schema idempotently.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	for i, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i, err)
		}
	}
	return nil
}
