package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/redisx"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eventMessage(t *testing.T, eventID, eventType string, payload any) kafkago.Message {
	t.Helper()
	p, err := json.Marshal(payload)
	require.NoError(t, err)
	b, err := json.Marshal(orders.NewEnvelope(eventID, eventType, "order-api", "o-1", p))
	require.NoError(t, err)
	return kafkago.Message{Topic: orders.TopicOrderPaid, Value: b}
}

func newService(t *testing.T) (*Service, *miniredis.Miniredis, *bytes.Buffer) {
	mr := miniredis.RunT(t)
	rdb := redisx.New(redisx.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	var buf bytes.Buffer
	return &Service{
		Redis:       rdb,
		ServiceName: "notifier",
		Log:         slog.New(slog.NewJSONHandler(&buf, nil)),
	}, mr, &buf
}

func TestHandleEvent_PaidInvalidatesCacheOnce(t *testing.T) {
	svc, mr, buf := newService(t)
	ctx := context.Background()
	redisx.CacheStatus(ctx, svc.Redis, "o-1", "u-1", "PENDING", time.Now())

	m := eventMessage(t, "ev-1", orders.EventOrderPaid, orders.OrderSettledPayload{
		OrderID: "o-1", ExternalID: "ORD-1", UserID: "u-1", Status: orders.StatusPaid,
	})
	require.NoError(t, svc.HandleEvent(ctx, m))
	assert.False(t, mr.Exists("order_status:o-1"))
	assert.True(t, mr.Exists("dedup:notifier:ev-1"))

	// redelivery
	require.NoError(t, svc.HandleEvent(ctx, m))
	assert.Equal(t, 1, strings.Count(buf.String(), "payment received"))
}

func TestHandleEvent_Created(t *testing.T) {
	svc, _, buf := newService(t)
	m := eventMessage(t, "ev-2", orders.EventOrderCreated, orders.OrderCreatedPayload{
		OrderID: "o-1", UserID: "u-1", Total: 150000, InvoiceURL: "https://pay.test/x",
	})
	require.NoError(t, svc.HandleEvent(context.Background(), m))
	assert.Contains(t, buf.String(), "awaiting payment")
	assert.Contains(t, buf.String(), "https://pay.test/x")
}

func TestHandleEvent_GarbageIsDropped(t *testing.T) {
	svc, _, buf := newService(t)
	require.NoError(t, svc.HandleEvent(context.Background(), kafkago.Message{Value: []byte("{")}))
	assert.Contains(t, buf.String(), "drop undecodable message")
}

func TestHandleEvent_BadPayloadIsRetried(t *testing.T) {
	svc, mr, _ := newService(t)
	env := orders.NewEnvelope("ev-3", orders.EventOrderExpired, "order-api", "o-1", []byte(`"oops"`))
	b, err := json.Marshal(env)
	require.NoError(t, err)

	assert.Error(t, svc.HandleEvent(context.Background(), kafkago.Message{Value: b}))
	assert.False(t, mr.Exists("dedup:notifier:ev-3"))
}
