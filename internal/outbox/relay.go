// Package outbox relays committed outbox rows to Kafka.
package outbox

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	kafkax "github.com/ariefcatur/go-marketplace-orders/internal/kafka"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
)

type Source interface {
	PendingEvents(ctx context.Context, limit int) ([]orders.Event, error)
	MarkEventSent(ctx context.Context, id int64) error
}

type Publisher interface {
	Publish(ctx context.Context, msgs ...kafkax.Message) error
}

// Relay delivers at least once: a crash between Publish and MarkEventSent
// republishes the row, consumers dedup on event_id.
type Relay struct {
	Source   Source
	Pub      Publisher
	Interval time.Duration
	Batch    int
	Log      *slog.Logger
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	interval := r.Interval
	if interval <= 0 {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if _, err := r.Drain(ctx); err != nil && ctx.Err() == nil {
			r.Log.Warn("outbox relay", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// Drain relays one batch in id order and stops at the first failure so that
// events of one order keep their order.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	batch := r.Batch
	if batch <= 0 {
		batch = 100
	}
	evs, err := r.Source.PendingEvents(ctx, batch)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, ev := range evs {
		msg := kafkax.Message{
			Topic:     ev.Topic,
			Key:       orders.PartitionKey(ev.Key),
			Value:     ev.Payload,
			EventType: eventType(ev.Payload),
		}
		if err := r.Pub.Publish(ctx, msg); err != nil {
			return sent, err
		}
		if err := r.Source.MarkEventSent(ctx, ev.ID); err != nil {
			return sent, err
		}
		sent++
	}
	if sent > 0 {
		r.Log.Debug("outbox relayed", "count", sent)
	}
	return sent, nil
}

func eventType(payload []byte) string {
	var head struct {
		EventType string `json:"event_type"`
	}
	_ = json.Unmarshal(payload, &head)
	return head.EventType
}
