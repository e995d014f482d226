package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/redisx"
)

// WebhookPayload is the subset of the Xendit invoice callback the engine reads.
type WebhookPayload struct {
	ID         string `json:"id"`
	ExternalID string `json:"external_id"`
	Status     string `json:"status"`
}

const dedupService = "webhook"

// HandleWebhook resolves the order by its stored external reference, verbatim,
// and applies the reported status. A repeated delivery is a no-op.
func (e *Engine) HandleWebhook(ctx context.Context, p WebhookPayload) (Outcome, error) {
	if p.ExternalID == "" || p.Status == "" {
		return OutcomeNoop, orders.ErrMalformedWebhook
	}

	dkey := redisx.DedupKey(dedupService, p.ExternalID+":"+p.Status)
	if redisx.Seen(ctx, e.Redis, dkey) {
		e.record(TriggerWebhook, OutcomeNoop)
		return OutcomeNoop, nil
	}

	o, err := e.Store.OrderByExternalID(ctx, p.ExternalID)
	if errors.Is(err, orders.ErrNotFound) {
		return OutcomeNoop, fmt.Errorf("%w: %s", orders.ErrUnknownOrder, p.ExternalID)
	}
	if err != nil {
		return OutcomeNoop, err
	}

	out, err := e.ApplyGatewayStatus(ctx, TriggerWebhook, o.ID, p.Status)
	if err != nil {
		return OutcomeNoop, err
	}
	// ditandai setelah apply sukses; kalau apply gagal, retry dari Xendit harus diproses
	redisx.Mark(ctx, e.Redis, dkey, redisx.TTLDedup)
	return out, nil
}
