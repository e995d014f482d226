// Package notify consumes order lifecycle events and tells the buyer.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	kafkax "github.com/ariefcatur/go-marketplace-orders/internal/kafka"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/redisx"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
)

// Topics yang di-consume notifier.
var Topics = []string{orders.TopicOrderCreated, orders.TopicOrderPaid, orders.TopicOrderExpired}

type Service struct {
	Redis       *redis.Client
	ServiceName string
	Log         *slog.Logger
}

// HandleEvent dipasang sebagai handler consumer. Redelivery dari outbox relay
// (at-least-once) di-dedup pakai event_id.
func (s *Service) HandleEvent(ctx context.Context, m kafkago.Message) error {
	env, err := kafkax.UnmarshalEnvelope(m.Value)
	if err != nil {
		// pesan rusak tidak akan sembuh dengan retry; log dan commit
		s.Log.Error("drop undecodable message", "topic", m.Topic, "offset", m.Offset, "err", err)
		return nil
	}

	dkey := redisx.DedupKey(s.ServiceName, env.EventID)
	if redisx.Seen(ctx, s.Redis, dkey) {
		return nil
	}

	switch env.EventType {
	case orders.EventOrderCreated:
		p, err := kafkax.UnwrapPayload[orders.OrderCreatedPayload](env.Payload)
		if err != nil {
			return err
		}
		s.Log.Info("notify buyer: awaiting payment",
			"user_id", p.UserID, "order_id", p.OrderID, "external_id", p.ExternalID,
			"total", p.Total, "payment_url", p.InvoiceURL)

	case orders.EventOrderPaid, orders.EventOrderExpired:
		p, err := kafkax.UnwrapPayload[orders.OrderSettledPayload](env.Payload)
		if err != nil {
			return err
		}
		// status berubah, cache GET /orders/{id}/status jangan sampai basi
		if err := redisx.InvalidateStatus(ctx, s.Redis, p.OrderID); err != nil {
			s.Log.Warn("invalidate status cache", "order_id", p.OrderID, "err", err)
		}
		s.Log.Info("notify buyer: "+message(p.Status),
			"user_id", p.UserID, "order_id", p.OrderID, "external_id", p.ExternalID,
			"status", p.Status, "restocked_lines", len(p.Restocked))

	default:
		return nil // ignore
	}

	redisx.Mark(ctx, s.Redis, dkey, redisx.TTLDedup)
	return nil
}

func message(s orders.Status) string {
	switch s {
	case orders.StatusPaid:
		return "payment received"
	case orders.StatusExpired:
		return "invoice expired, order cancelled"
	default:
		return fmt.Sprintf("order %s", s)
	}
}
