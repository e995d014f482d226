package postgres

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Options struct {
	MaxConns int32
	MinConns int32
	// MaxElapsed bounds the startup retry; zero means one minute.
	MaxElapsed time.Duration
}

// Connect opens the pool and retries the initial ping with exponential backoff,
// so the api survives starting before Postgres is ready.
func Connect(ctx context.Context, dsn string, opt Options, log *slog.Logger) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 8
	cfg.MinConns = 1
	if opt.MaxConns > 0 {
		cfg.MaxConns = opt.MaxConns
	}
	if opt.MinConns > 0 {
		cfg.MinConns = opt.MinConns
	}
	cfg.HealthCheckPeriod = 30 * time.Second
	if opt.MaxElapsed <= 0 {
		opt.MaxElapsed = time.Minute
	}

	return backoff.Retry(ctx, func() (*pgxpool.Pool, error) {
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			// config salah, retry tidak akan membantu
			return nil, backoff.Permanent(err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return pool, nil
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(opt.MaxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn("postgres not ready", "err", err, "retry_in", next)
		}),
	)
}
