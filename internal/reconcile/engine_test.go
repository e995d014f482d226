package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ariefcatur/go-marketplace-orders/internal/memstore"
	"github.com/ariefcatur/go-marketplace-orders/internal/metrics"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/redisx"
	"github.com/ariefcatur/go-marketplace-orders/internal/xendit"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeInvoices struct {
	mu       sync.Mutex
	status   map[string]string
	err      error
	calls    atomic.Int32
	inflight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
}

func (f *fakeInvoices) GetInvoice(_ context.Context, id string) (xendit.Invoice, error) {
	f.calls.Add(1)
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return xendit.Invoice{}, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return xendit.Invoice{ID: id, Status: f.status[id]}, nil
}

func counterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	_ = c.Write(&m)
	return m.GetCounter().GetValue()
}

func newEngine(st *memstore.Store, gw InvoiceFetcher) *Engine {
	return &Engine{
		Store:           st,
		Gateway:         gw,
		Producer:        "order-api",
		PollConcurrency: 2,
		Metrics:         metrics.NewReconcile(prometheus.NewRegistry()),
		Log:             slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// seedOrder places a PENDING order for 2 x P1 with stock already decremented
// from 5 to 3, the way checkout leaves it.
func seedOrder(t *testing.T, st *memstore.Store, ext string) orders.Order {
	t.Helper()
	ctx := context.Background()
	if _, ok := st.Product("P1"); !ok {
		st.PutProduct(orders.Product{ID: "P1", Name: "Kopi", Price: 50000, Stock: 5})
	}
	o := &orders.Order{
		UserID: "u-1", ExternalID: ext, Status: orders.StatusPending,
		Courier: "jne", ShippingService: "REG", ShippingCost: 20000,
		Address: "-", Phone: "-", PaymentMethod: orders.PaymentMethodXendit,
		Items: []orders.OrderItem{{ProductID: "P1", ProductName: "Kopi", Quantity: 2, Price: 50000}},
	}
	o.Total = o.ItemsTotal() + o.ShippingCost
	require.NoError(t, st.InTx(ctx, func(tx orders.Tx) error {
		if err := tx.InsertOrder(ctx, o); err != nil {
			return err
		}
		if err := orders.Reserve(ctx, tx, o.Items); err != nil {
			return err
		}
		return tx.AttachInvoice(ctx, o.ID, "inv-"+ext, "https://pay.test/"+ext)
	}))
	got, err := st.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	return got
}

func stock(t *testing.T, st *memstore.Store) int {
	p, ok := st.Product("P1")
	require.True(t, ok)
	return p.Stock
}

func eventsOf(st *memstore.Store, eventType string) int {
	n := 0
	for _, ev := range st.Events() {
		var env orders.Envelope
		if json.Unmarshal(ev.Payload, &env) == nil && env.EventType == eventType {
			n++
		}
	}
	return n
}

func TestApply_PaidIsIdempotent(t *testing.T) {
	st := memstore.New()
	o := seedOrder(t, st, "ORD-1")
	e := newEngine(st, nil)
	ctx := context.Background()

	out, err := e.ApplyGatewayStatus(ctx, TriggerWebhook, o.ID, "PAID")
	require.NoError(t, err)
	assert.Equal(t, OutcomePaid, out)

	out, err = e.ApplyGatewayStatus(ctx, TriggerPoll, o.ID, "SETTLED")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, out)

	got, err := st.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPaid, got.Status)
	require.NotNil(t, got.PaidAt)
	assert.Nil(t, got.ExpiredAt)
	assert.Equal(t, 3, stock(t, st))
	assert.Equal(t, 1, eventsOf(st, orders.EventOrderPaid))
	assert.Equal(t, float64(1), counterValue(e.Metrics.Transitions.WithLabelValues("webhook", "paid")))
	assert.Equal(t, float64(1), counterValue(e.Metrics.Noops.WithLabelValues("poll")))
}

func TestApply_ExpiredRestocksOnce(t *testing.T) {
	st := memstore.New()
	o := seedOrder(t, st, "ORD-1")
	e := newEngine(st, nil)
	ctx := context.Background()

	out, err := e.ApplyGatewayStatus(ctx, TriggerWebhook, o.ID, "EXPIRED")
	require.NoError(t, err)
	assert.Equal(t, OutcomeExpired, out)
	assert.Equal(t, 5, stock(t, st))

	out, err = e.ApplyGatewayStatus(ctx, TriggerPoll, o.ID, "EXPIRED")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, out)
	assert.Equal(t, 5, stock(t, st))
	assert.Equal(t, 1, eventsOf(st, orders.EventOrderExpired))
}

func TestApply_PaidAfterExpiredIsNoop(t *testing.T) {
	st := memstore.New()
	o := seedOrder(t, st, "ORD-1")
	e := newEngine(st, nil)
	ctx := context.Background()

	_, err := e.ApplyGatewayStatus(ctx, TriggerWebhook, o.ID, "EXPIRED")
	require.NoError(t, err)
	out, err := e.ApplyGatewayStatus(ctx, TriggerWebhook, o.ID, "PAID")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, out)

	got, err := st.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusExpired, got.Status)
	assert.Nil(t, got.PaidAt)
	assert.Equal(t, 5, stock(t, st))
}

func TestApply_NonTerminalStatusesAreNoops(t *testing.T) {
	st := memstore.New()
	o := seedOrder(t, st, "ORD-1")
	e := newEngine(st, nil)

	for _, s := range []string{"PENDING", "VOIDED", "", "paid"} {
		out, err := e.ApplyGatewayStatus(context.Background(), TriggerPoll, o.ID, s)
		require.NoError(t, err, s)
		assert.Equal(t, OutcomeNoop, out, s)
	}
	got, err := st.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, got.Status)
	assert.Empty(t, st.Events())
}

func TestApply_UnknownOrder(t *testing.T) {
	e := newEngine(memstore.New(), nil)
	_, err := e.ApplyGatewayStatus(context.Background(), TriggerPoll, "missing", "PAID")
	assert.ErrorIs(t, err, orders.ErrNotFound)
}

func TestApply_CachesStatus(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redisx.New(redisx.Options{Addr: mr.Addr()})
	defer rdb.Close()

	st := memstore.New()
	o := seedOrder(t, st, "ORD-1")
	e := newEngine(st, nil)
	e.Redis = rdb

	_, err := e.ApplyGatewayStatus(context.Background(), TriggerWebhook, o.ID, "PAID")
	require.NoError(t, err)
	cs, ok := redisx.CachedOrderStatus(context.Background(), rdb, o.ID)
	require.True(t, ok)
	assert.Equal(t, "PAID", cs.Status)
}

func TestWebhook(t *testing.T) {
	st := memstore.New()
	o := seedOrder(t, st, "ORD-abc-123")
	e := newEngine(st, nil)
	ctx := context.Background()

	_, err := e.HandleWebhook(ctx, WebhookPayload{Status: "PAID"})
	assert.ErrorIs(t, err, orders.ErrMalformedWebhook)
	_, err = e.HandleWebhook(ctx, WebhookPayload{ExternalID: o.ExternalID})
	assert.ErrorIs(t, err, orders.ErrMalformedWebhook)

	// referensi dicocokkan utuh, tidak dipotong
	_, err = e.HandleWebhook(ctx, WebhookPayload{ExternalID: "ORD-abc", Status: "PAID"})
	assert.ErrorIs(t, err, orders.ErrUnknownOrder)
	_, err = e.HandleWebhook(ctx, WebhookPayload{ExternalID: "abc-123", Status: "PAID"})
	assert.ErrorIs(t, err, orders.ErrUnknownOrder)

	out, err := e.HandleWebhook(ctx, WebhookPayload{ExternalID: o.ExternalID, Status: "PAID"})
	require.NoError(t, err)
	assert.Equal(t, OutcomePaid, out)
}

func TestWebhook_RedeliveryShortCircuits(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redisx.New(redisx.Options{Addr: mr.Addr()})
	defer rdb.Close()

	st := memstore.New()
	o := seedOrder(t, st, "ORD-1")
	e := newEngine(st, nil)
	e.Redis = rdb
	ctx := context.Background()

	out, err := e.HandleWebhook(ctx, WebhookPayload{ExternalID: o.ExternalID, Status: "PAID"})
	require.NoError(t, err)
	assert.Equal(t, OutcomePaid, out)
	assert.True(t, mr.Exists("dedup:webhook:ORD-1:PAID"))

	out, err = e.HandleWebhook(ctx, WebhookPayload{ExternalID: o.ExternalID, Status: "PAID"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, out)
	assert.Equal(t, 1, eventsOf(st, orders.EventOrderPaid))
}

func TestSweep_RefreshesAndSkips(t *testing.T) {
	st := memstore.New()
	st.PutProduct(orders.Product{ID: "P1", Name: "Kopi", Price: 50000, Stock: 10})
	paid := seedOrder(t, st, "ORD-1")
	stillPending := seedOrder(t, st, "ORD-2")
	expired := seedOrder(t, st, "ORD-3")
	noInvoice := orders.Order{ID: "x", Status: orders.StatusPending}

	gw := &fakeInvoices{status: map[string]string{
		"inv-ORD-1": "SETTLED",
		"inv-ORD-2": "PENDING",
		"inv-ORD-3": "EXPIRED",
	}}
	e := newEngine(st, gw)

	in := []orders.Order{paid, stillPending, expired, noInvoice}
	out := e.Sweep(context.Background(), in)

	require.Len(t, out, 4)
	assert.Equal(t, orders.StatusPaid, out[0].Status)
	assert.Equal(t, orders.StatusPending, out[1].Status)
	assert.Equal(t, orders.StatusExpired, out[2].Status)
	assert.Equal(t, "x", out[3].ID)
	assert.Equal(t, int32(3), gw.calls.Load())
	assert.Equal(t, orders.StatusPending, in[0].Status, "input slice untouched")
	assert.Equal(t, 6, stock(t, st))
}

func TestSweep_GatewayErrorsSwallowed(t *testing.T) {
	st := memstore.New()
	o := seedOrder(t, st, "ORD-1")
	gw := &fakeInvoices{err: &xendit.UnavailableError{Op: "get invoice", Err: errors.New("timeout")}}
	e := newEngine(st, gw)

	out := e.Sweep(context.Background(), []orders.Order{o})
	require.Len(t, out, 1)
	assert.Equal(t, orders.StatusPending, out[0].Status)
	assert.Equal(t, float64(1), counterValue(e.Metrics.PollErrors))
}

func TestSweep_BoundedConcurrency(t *testing.T) {
	st := memstore.New()
	st.PutProduct(orders.Product{ID: "P1", Name: "Kopi", Price: 50000, Stock: 100})
	gw := &fakeInvoices{status: map[string]string{}, delay: 10 * time.Millisecond}
	var list []orders.Order
	for i := 0; i < 8; i++ {
		list = append(list, seedOrder(t, st, "ORD-"+string(rune('a'+i))))
	}
	e := newEngine(st, gw)
	e.PollConcurrency = 3

	e.Sweep(context.Background(), list)
	assert.Equal(t, int32(8), gw.calls.Load())
	assert.LessOrEqual(t, gw.peak.Load(), int32(3))
}

func TestSweep_Throttled(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redisx.New(redisx.Options{Addr: mr.Addr()})
	defer rdb.Close()

	st := memstore.New()
	o := seedOrder(t, st, "ORD-1")
	gw := &fakeInvoices{status: map[string]string{"inv-ORD-1": "PENDING"}}
	e := newEngine(st, gw)
	e.Redis = rdb
	e.PollThrottle = time.Minute

	e.Sweep(context.Background(), []orders.Order{o})
	e.Sweep(context.Background(), []orders.Order{o})
	assert.Equal(t, int32(1), gw.calls.Load())

	mr.FastForward(2 * time.Minute)
	e.Sweep(context.Background(), []orders.Order{o})
	assert.Equal(t, int32(2), gw.calls.Load())
}

func TestSweep_FailedPollRetriedOnNextListing(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redisx.New(redisx.Options{Addr: mr.Addr()})
	defer rdb.Close()

	st := memstore.New()
	o := seedOrder(t, st, "ORD-1")
	gw := &fakeInvoices{
		status: map[string]string{"inv-ORD-1": "PAID"},
		err:    &xendit.UnavailableError{Op: "get invoice", Err: errors.New("timeout")},
	}
	e := newEngine(st, gw)
	e.Redis = rdb
	e.PollThrottle = 10 * time.Second

	out := e.Sweep(context.Background(), []orders.Order{o})
	assert.Equal(t, orders.StatusPending, out[0].Status)
	assert.False(t, mr.Exists(redisx.PollThrottleKey(o.ID)))

	gw.err = nil
	out = e.Sweep(context.Background(), []orders.Order{o})
	assert.Equal(t, int32(2), gw.calls.Load())
	assert.Equal(t, orders.StatusPaid, out[0].Status)
}

func TestWebhookAndPollRace_TransitionOnce(t *testing.T) {
	for round := 0; round < 20; round++ {
		st := memstore.New()
		o := seedOrder(t, st, "ORD-1")
		gw := &fakeInvoices{status: map[string]string{"inv-ORD-1": "PAID"}}
		e := newEngine(st, gw)

		var wg sync.WaitGroup
		var swept []orders.Order
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = e.HandleWebhook(context.Background(), WebhookPayload{ExternalID: "ORD-1", Status: "PAID"})
		}()
		go func() {
			defer wg.Done()
			swept = e.Sweep(context.Background(), []orders.Order{o})
		}()
		wg.Wait()

		got, err := st.GetOrder(context.Background(), o.ID)
		require.NoError(t, err)
		assert.Equal(t, orders.StatusPaid, got.Status)
		assert.Equal(t, orders.StatusPaid, swept[0].Status)
		assert.Equal(t, 1, eventsOf(st, orders.EventOrderPaid))
		assert.Equal(t, 3, stock(t, st))
		transitions := counterValue(e.Metrics.Transitions.WithLabelValues("webhook", "paid")) +
			counterValue(e.Metrics.Transitions.WithLabelValues("poll", "paid"))
		assert.Equal(t, float64(1), transitions)
	}
}
