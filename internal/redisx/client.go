package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

type Options struct {
	Addr     string
	Password string
	DB       int
}

func New(opt Options) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         opt.Addr,
		Password:     opt.Password,
		DB:           opt.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

func Exists(ctx context.Context, rdb *redis.Client, key string) (bool, error) {
	n, err := rdb.Exists(ctx, key).Result()
	return n > 0, err
}

// Claim sets key only if absent and reports whether this caller got it.
// Redis unavailable berarti claim dianggap berhasil: DB tetap jadi kebenaran.
func Claim(ctx context.Context, rdb *redis.Client, key string, ttl time.Duration) bool {
	if rdb == nil {
		return true
	}
	ok, err := rdb.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return true
	}
	return ok
}

// Unclaim gives a claimed key back so the next caller can take it.
func Unclaim(ctx context.Context, rdb *redis.Client, key string) {
	if rdb == nil {
		return
	}
	_ = rdb.Del(ctx, key).Err()
}

// Seen reports a dedup hit; errors count as a miss.
func Seen(ctx context.Context, rdb *redis.Client, key string) bool {
	if rdb == nil {
		return false
	}
	ok, _ := Exists(ctx, rdb, key)
	return ok
}

func Mark(ctx context.Context, rdb *redis.Client, key string, ttl time.Duration) {
	if rdb == nil {
		return
	}
	_ = rdb.Set(ctx, key, "1", ttl).Err()
}

type CachedStatus struct {
	Status    string    `json:"status"`
	UserID    string    `json:"user_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

func CacheStatus(ctx context.Context, rdb *redis.Client, orderID, userID, status string, at time.Time) {
	if rdb == nil {
		return
	}
	b, _ := json.Marshal(CachedStatus{Status: status, UserID: userID, UpdatedAt: at})
	_ = rdb.Set(ctx, OrderStatusKey(orderID), b, TTLStatusCache).Err()
}

// CachedOrderStatus returns ok=false on a miss or any Redis failure.
func CachedOrderStatus(ctx context.Context, rdb *redis.Client, orderID string) (CachedStatus, bool) {
	if rdb == nil {
		return CachedStatus{}, false
	}
	s, err := rdb.Get(ctx, OrderStatusKey(orderID)).Bytes()
	if err != nil {
		return CachedStatus{}, false
	}
	var cs CachedStatus
	if err := json.Unmarshal(s, &cs); err != nil {
		return CachedStatus{}, false
	}
	return cs, true
}

func InvalidateStatus(ctx context.Context, rdb *redis.Client, orderID string) error {
	if rdb == nil {
		return nil
	}
	err := rdb.Del(ctx, OrderStatusKey(orderID)).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

func Ping(ctx context.Context, rdb *redis.Client) error {
	return rdb.Ping(ctx).Err()
}
