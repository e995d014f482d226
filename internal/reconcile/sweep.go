package reconcile

import (
	"context"

	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/redisx"
	"golang.org/x/sync/errgroup"
)

// Sweep polls the gateway for every PENDING order with an invoice and applies
// what it reports. Failures are logged and skip only that order; the returned
// slice carries refreshed statuses in the input order.
func (e *Engine) Sweep(ctx context.Context, list []orders.Order) []orders.Order {
	out := make([]orders.Order, len(list))
	copy(out, list)

	limit := e.PollConcurrency
	if limit <= 0 {
		limit = 4
	}
	var g errgroup.Group
	g.SetLimit(limit)

	for i := range out {
		o := out[i]
		if o.Status != orders.StatusPending || o.InvoiceID == nil || *o.InvoiceID == "" {
			continue
		}
		if e.PollThrottle > 0 && !redisx.Claim(ctx, e.Redis, redisx.PollThrottleKey(o.ID), e.PollThrottle) {
			continue
		}
		g.Go(func() error {
			if refreshed, ok := e.poll(ctx, o); ok {
				out[i] = refreshed
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (e *Engine) poll(ctx context.Context, o orders.Order) (orders.Order, bool) {
	log := e.Log.With("order_id", o.ID, "invoice_id", *o.InvoiceID)

	inv, err := e.Gateway.GetInvoice(ctx, *o.InvoiceID)
	if err != nil {
		if e.Metrics != nil {
			e.Metrics.PollErrors.Inc()
		}
		log.Warn("poll invoice", "err", err)
		// gagal: listing berikutnya harus boleh coba lagi
		if e.PollThrottle > 0 {
			redisx.Unclaim(ctx, e.Redis, redisx.PollThrottleKey(o.ID))
		}
		return o, false
	}
	if _, moves := orders.TargetStatus(inv.Status); !moves {
		return o, false
	}
	if _, err := e.ApplyGatewayStatus(ctx, TriggerPoll, o.ID, inv.Status); err != nil {
		log.Error("apply polled status", "gateway_status", inv.Status, "err", err)
		return o, false
	}
	// webhook mungkin menang duluan; ambil state terbaru apa pun hasilnya
	fresh, err := e.Store.GetOrder(ctx, o.ID)
	if err != nil {
		log.Warn("reload order", "err", err)
		return o, false
	}
	return fresh, true
}
