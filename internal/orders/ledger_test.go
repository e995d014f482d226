package orders

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapLedger map[string]int

// orderedLedger records the product ids in the order the ledger saw them.
type orderedLedger struct {
	mapLedger
	seen []string
}

func (o *orderedLedger) DecrementStock(ctx context.Context, id string, qty int) error {
	o.seen = append(o.seen, id)
	return o.mapLedger.DecrementStock(ctx, id, qty)
}

func (o *orderedLedger) IncrementStock(ctx context.Context, id string, qty int) error {
	o.seen = append(o.seen, id)
	return o.mapLedger.IncrementStock(ctx, id, qty)
}

func (m mapLedger) DecrementStock(_ context.Context, id string, qty int) error {
	if m[id] < qty {
		return &InsufficientStockError{ProductID: id, Requested: qty, Available: m[id]}
	}
	m[id] -= qty
	return nil
}

func (m mapLedger) IncrementStock(_ context.Context, id string, qty int) error {
	if _, ok := m[id]; !ok {
		return ErrNotFound
	}
	m[id] += qty
	return nil
}

func TestReserve(t *testing.T) {
	l := mapLedger{"A": 5, "B": 1}
	err := Reserve(context.Background(), l, []OrderItem{
		{ProductID: "A", Quantity: 2},
		{ProductID: "B", Quantity: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, mapLedger{"A": 3, "B": 0}, l)
}

func TestReserve_ShortfallNamesProduct(t *testing.T) {
	l := mapLedger{"A": 5, "B": 0}
	err := Reserve(context.Background(), l, []OrderItem{
		{ProductID: "A", ProductName: "Product A", Quantity: 2},
		{ProductID: "B", ProductName: "Product B", Quantity: 1},
	})
	var short *InsufficientStockError
	require.True(t, errors.As(err, &short))
	assert.Equal(t, "Product B", short.ProductName)
	// rollback adalah tugas transaksi pemanggil
	assert.Equal(t, 3, l["A"])
}

func TestReserve_RejectsNonPositive(t *testing.T) {
	err := Reserve(context.Background(), mapLedger{"A": 5}, []OrderItem{{ProductID: "A", Quantity: 0}})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRelease(t *testing.T) {
	l := mapLedger{"A": 3}
	got, err := Release(context.Background(), l, []OrderItem{{ProductID: "A", Quantity: 2}})
	require.NoError(t, err)
	assert.Equal(t, []ItemQty{{ProductID: "A", Qty: 2}}, got)
	assert.Equal(t, 5, l["A"])

	_, err = Release(context.Background(), l, []OrderItem{{ProductID: "Z", Quantity: 1}})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLedger_TouchesProductsInIDOrder(t *testing.T) {
	ctx := context.Background()
	items := []OrderItem{
		{ProductID: "C", Quantity: 1},
		{ProductID: "A", Quantity: 1},
		{ProductID: "B", Quantity: 1},
	}

	l := &orderedLedger{mapLedger: mapLedger{"A": 1, "B": 1, "C": 1}}
	require.NoError(t, Reserve(ctx, l, items))
	assert.Equal(t, []string{"A", "B", "C"}, l.seen)

	l.seen = nil
	got, err := Release(ctx, l, items)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, l.seen)
	assert.Len(t, got, 3)

	// urutan input pemanggil tidak diubah
	assert.Equal(t, "C", items[0].ProductID)
}
