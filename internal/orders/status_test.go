package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTargetStatus(t *testing.T) {
	cases := []struct {
		in   string
		want Status
		ok   bool
	}{
		{GatewayPaid, StatusPaid, true},
		{GatewaySettled, StatusPaid, true},
		{GatewayExpired, StatusExpired, true},
		{GatewayPending, "", false},
		{"paid", "", false},
		{"VOIDED", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		got, ok := TargetStatus(c.in)
		assert.Equal(t, c.want, got, c.in)
		assert.Equal(t, c.ok, ok, c.in)
	}
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusPending, StatusPaid))
	assert.True(t, CanTransition(StatusPending, StatusExpired))
	assert.False(t, CanTransition(StatusPaid, StatusExpired))
	assert.False(t, CanTransition(StatusExpired, StatusPaid))
	assert.False(t, CanTransition(StatusPending, StatusPending))
	assert.True(t, StatusPaid.Terminal())
	assert.False(t, StatusPending.Terminal())
}

func TestTopicFor(t *testing.T) {
	topic, ev := TopicFor(StatusExpired)
	assert.Equal(t, TopicOrderExpired, topic)
	assert.Equal(t, EventOrderExpired, ev)
	topic, ev = TopicFor(StatusPaid)
	assert.Equal(t, TopicOrderPaid, topic)
	assert.Equal(t, EventOrderPaid, ev)
}

func TestOrderTotals(t *testing.T) {
	o := Order{ShippingCost: 20000, Items: []OrderItem{
		{Quantity: 2, Price: 50000},
		{Quantity: 1, Price: 30000},
	}}
	assert.Equal(t, int64(130000), o.ItemsTotal())
	assert.Equal(t, int64(100000), o.Items[0].Subtotal())
}

func TestInsufficientStockError(t *testing.T) {
	err := error(&InsufficientStockError{ProductID: "B", ProductName: "Product B", Requested: 1, Available: 0})
	assert.True(t, IsInsufficientStock(err))
	assert.Equal(t, `insufficient stock for product "Product B" (requested 1, available 0)`, err.Error())

	unknown := &InsufficientStockError{ProductID: "B", Requested: 2, Available: -1}
	assert.Equal(t, `insufficient stock for product "B" (requested 2)`, unknown.Error())
	assert.False(t, IsInsufficientStock(ErrEmptyCart))
}
