// Package reconcile moves orders out of PENDING from gateway reports. The
// webhook and the listing poll both end in the same transaction, so a payment
// reported twice still transitions the order and adjusts stock once.
package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ariefcatur/go-marketplace-orders/internal/metrics"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/redisx"
	"github.com/ariefcatur/go-marketplace-orders/internal/xendit"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type Outcome int

const (
	OutcomeNoop Outcome = iota
	OutcomePaid
	OutcomeExpired
)

func (o Outcome) String() string {
	switch o {
	case OutcomePaid:
		return "paid"
	case OutcomeExpired:
		return "expired"
	default:
		return "noop"
	}
}

// Trigger names what reported the gateway status.
type Trigger string

const (
	TriggerWebhook Trigger = "webhook"
	TriggerPoll    Trigger = "poll"
)

type InvoiceFetcher interface {
	GetInvoice(ctx context.Context, invoiceID string) (xendit.Invoice, error)
}

type Engine struct {
	Store   orders.Store
	Gateway InvoiceFetcher
	// Redis is optional; every use of it is a fast path in front of the DB.
	Redis           *redis.Client
	Producer        string
	PollConcurrency int
	PollThrottle    time.Duration
	Metrics         *metrics.Reconcile
	Log             *slog.Logger
}

// ApplyGatewayStatus applies one gateway report to the order in a single
// transaction: lock the row, compare-and-swap out of PENDING, restock on
// EXPIRED, enqueue the event. Non-PENDING orders and statuses that imply no
// transition give OutcomeNoop.
func (e *Engine) ApplyGatewayStatus(ctx context.Context, trig Trigger, orderID, gatewayStatus string) (Outcome, error) {
	var (
		outcome   Outcome
		updated   orders.Order
		restocked []orders.ItemQty
	)
	err := e.Store.InTx(ctx, func(tx orders.Tx) error {
		outcome, restocked = OutcomeNoop, nil

		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status != orders.StatusPending {
			return nil
		}
		to, ok := orders.TargetStatus(gatewayStatus)
		if !ok {
			return nil
		}

		now := time.Now().UTC()
		won, err := tx.CompareAndSetStatus(ctx, o.ID, orders.StatusPending, to, now)
		if err != nil {
			return fmt.Errorf("set status: %w", err)
		}
		if !won {
			return nil
		}

		// stok sudah dipotong saat checkout: PAID tidak menyentuh stok,
		// EXPIRED mengembalikannya
		if to == orders.StatusExpired {
			if restocked, err = orders.Release(ctx, tx, o.Items); err != nil {
				return err
			}
		}

		topic, eventType := orders.TopicFor(to)
		p, _ := json.Marshal(orders.OrderSettledPayload{
			OrderID:       o.ID,
			ExternalID:    o.ExternalID,
			UserID:        o.UserID,
			Status:        to,
			GatewayStatus: gatewayStatus,
			Restocked:     restocked,
			At:            now,
		})
		env := orders.NewEnvelope(uuid.NewString(), eventType, e.Producer, o.ID, p)
		if err := tx.EnqueueEvent(ctx, topic, env); err != nil {
			return fmt.Errorf("enqueue event: %w", err)
		}

		o.Status, o.UpdatedAt = to, now
		updated = o
		outcome = outcomeFor(to)
		return nil
	})
	if err != nil {
		return OutcomeNoop, err
	}

	e.record(trig, outcome)
	if outcome != OutcomeNoop {
		redisx.CacheStatus(ctx, e.Redis, updated.ID, updated.UserID, string(updated.Status), updated.UpdatedAt)
		e.Log.Info("order status changed", "order_id", updated.ID, "external_id", updated.ExternalID,
			"status", updated.Status, "gateway_status", gatewayStatus, "trigger", trig, "restocked", len(restocked))
	}
	return outcome, nil
}

func outcomeFor(s orders.Status) Outcome {
	switch s {
	case orders.StatusPaid:
		return OutcomePaid
	case orders.StatusExpired:
		return OutcomeExpired
	default:
		return OutcomeNoop
	}
}

func (e *Engine) record(trig Trigger, out Outcome) {
	if e.Metrics == nil {
		return
	}
	if out == OutcomeNoop {
		e.Metrics.Noops.WithLabelValues(string(trig)).Inc()
		return
	}
	e.Metrics.Transitions.WithLabelValues(string(trig), out.String()).Inc()
}
