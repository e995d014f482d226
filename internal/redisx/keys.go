package redisx

import (
	"fmt"
	"time"
)

const (
	// Cache status order: order_status:{order_id} -> {"status": "...", "updated_at": "..."}
	KeyOrderStatus = "order_status:%s"

	// Dedup event processing: dedup:{service}:{id} (id = event_id atau external_id:status)
	KeyDedup = "dedup:%s:%s"

	// Throttle polling invoice per order: poll:{order_id}
	KeyPollThrottle = "poll:%s"
)

var (
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)

func OrderStatusKey(orderID string) string { return fmt.Sprintf(KeyOrderStatus, orderID) }

func DedupKey(service, id string) string { return fmt.Sprintf(KeyDedup, service, id) }

func PollThrottleKey(orderID string) string { return fmt.Sprintf(KeyPollThrottle, orderID) }
