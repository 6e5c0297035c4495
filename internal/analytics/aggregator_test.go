package analytics

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"orderflow/internal/domain/event"
	"orderflow/internal/domain/order"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func placedBody(t *testing.T, eventID, orderID string) []byte {
	t.Helper()
	body, err := json.Marshal(event.NewOrderPlaced(order.Order{
		ID:        orderID,
		UserID:    "u-1",
		Items:     []order.Item{{SKU: "fries", Qty: 1}},
		CreatedAt: event.NowUTC(),
	}, eventID))
	require.NoError(t, err)
	return body
}

func reservedBody(t *testing.T, eventID, orderID string) []byte {
	t.Helper()
	body, err := json.Marshal(event.NewInventoryReserved(orderID, eventID))
	require.NoError(t, err)
	return body
}

func failedBody(t *testing.T, eventID, orderID string) []byte {
	t.Helper()
	body, err := json.Marshal(event.NewInventoryFailed(orderID, "Simulated failure", eventID))
	require.NoError(t, err)
	return body
}

func TestAggregatorCountsAndDedups(t *testing.T) {
	a := NewAggregator()

	a.Observe(placedBody(t, "e1", "ord-1"))
	a.Observe(placedBody(t, "e1", "ord-1")) // redelivered
	a.Observe(placedBody(t, "e2", "ord-2"))
	a.Observe(reservedBody(t, "e3", "ord-1"))
	a.Observe(reservedBody(t, "e3", "ord-1")) // redelivered
	a.Observe(failedBody(t, "e4", "ord-2"))

	snap := a.Snapshot()
	assert.Equal(t, 2, snap.TotalOrdersSeen)
	assert.Equal(t, 2, snap.TotalInventoryEvents)
	assert.Equal(t, 1, snap.InventoryFailed)
	assert.InDelta(t, 0.5, snap.FailureRate, 1e-9)
}

func TestAggregatorDropsUnparseable(t *testing.T) {
	a := NewAggregator()

	a.Observe([]byte(`not json`))
	a.Observe([]byte(`{"event_type":"Unknown"}`))

	snap := a.Snapshot()
	assert.Equal(t, 0, snap.TotalOrdersSeen)
	assert.Equal(t, 0, snap.TotalInventoryEvents)
}

func TestAggregatorFlush(t *testing.T) {
	a := NewAggregator()
	a.Observe(placedBody(t, "e1", "ord-1"))

	path := filepath.Join(t.TempDir(), "nested", "metrics.json")
	require.NoError(t, a.Flush(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var snap Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, 1, snap.TotalOrdersSeen)
	assert.Len(t, snap.OrdersPerMinute, 1)
}
