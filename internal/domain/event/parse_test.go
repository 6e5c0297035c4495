package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validOrderPlaced() string {
	return `{
		"event_id": "evt-1",
		"event_type": "OrderPlaced",
		"created_at": "2024-02-15T10:23:45.000000Z",
		"correlation_id": "ord-1",
		"order": {
			"order_id": "ord-1",
			"user_id": "u-1",
			"items": [{"sku": "fries", "qty": 2}],
			"created_at": "2024-02-15T10:23:45.000000Z"
		}
	}`
}

func TestParseOrderPlaced(t *testing.T) {
	ev, err := Parse([]byte(validOrderPlaced()))
	require.NoError(t, err)

	placed, ok := ev.(*OrderPlaced)
	require.True(t, ok)
	assert.Equal(t, "evt-1", placed.EventID)
	assert.Equal(t, TypeOrderPlaced, placed.EventType)
	assert.Equal(t, "ord-1", placed.Order.ID)
	assert.Equal(t, "u-1", placed.Order.UserID)
	require.Len(t, placed.Order.Items, 1)
	assert.Equal(t, "fries", placed.Order.Items[0].SKU)
	assert.Equal(t, 2, placed.Order.Items[0].Qty)
}

func TestParseInventoryReserved(t *testing.T) {
	body := `{"event_id":"evt-2","event_type":"InventoryReserved","created_at":"2024-02-15T10:24:00.000000Z","correlation_id":"ord-1","order_id":"ord-1"}`

	ev, err := Parse([]byte(body))
	require.NoError(t, err)

	reserved, ok := ev.(*InventoryReserved)
	require.True(t, ok)
	assert.Equal(t, "ord-1", reserved.OrderID)
}

func TestParseInventoryFailed(t *testing.T) {
	body := `{"event_id":"evt-3","event_type":"InventoryFailed","created_at":"2024-02-15T10:24:00.000000Z","order_id":"ord-1","reason":"Simulated failure"}`

	ev, err := Parse([]byte(body))
	require.NoError(t, err)

	failed, ok := ev.(*InventoryFailed)
	require.True(t, ok)
	assert.Equal(t, "Simulated failure", failed.Reason)
}

func TestParseMalformedJSON(t *testing.T) {
	_, err := Parse([]byte(`{"event_id": "evt-1",`))
	require.ErrorIs(t, err, ErrMalformedPayload)
	assert.True(t, IsPoison(err))
}

func TestParseSchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "unknown event type",
			body: `{"event_id":"e","event_type":"OrderShipped","created_at":"t"}`,
		},
		{
			name: "missing event type",
			body: `{"event_id":"e","created_at":"t"}`,
		},
		{
			name: "missing event_id",
			body: `{"event_type":"InventoryReserved","created_at":"t","order_id":"o"}`,
		},
		{
			name: "missing order_id",
			body: `{"event_id":"e","event_type":"InventoryReserved","created_at":"t"}`,
		},
		{
			name: "failed without reason",
			body: `{"event_id":"e","event_type":"InventoryFailed","created_at":"t","order_id":"o"}`,
		},
		{
			name: "top level array",
			body: `[1, 2, 3]`,
		},
		{
			name: "wrong field type",
			body: `{"event_id":"e","event_type":"InventoryReserved","created_at":"t","order_id":42}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.body))
			require.ErrorIs(t, err, ErrSchemaViolation)
			assert.True(t, IsPoison(err))
		})
	}
}

// An unrecognized extra field is rejected identically to a missing required
// field: both are schema violations, never silently ignored.
func TestParseStrictUnknownFields(t *testing.T) {
	body := `{
		"event_id": "evt-2",
		"event_type": "InventoryReserved",
		"created_at": "2024-02-15T10:24:00.000000Z",
		"order_id": "ord-1",
		"retry_count": 3
	}`

	_, err := Parse([]byte(body))
	require.ErrorIs(t, err, ErrSchemaViolation)
}

func TestParseOrderInvariants(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "zero quantity",
			body: `{"event_id":"e","event_type":"OrderPlaced","created_at":"t","order":{"order_id":"o","user_id":"u","items":[{"sku":"fries","qty":0}],"created_at":"t"}}`,
		},
		{
			name: "negative quantity",
			body: `{"event_id":"e","event_type":"OrderPlaced","created_at":"t","order":{"order_id":"o","user_id":"u","items":[{"sku":"fries","qty":-1}],"created_at":"t"}}`,
		},
		{
			name: "no items",
			body: `{"event_id":"e","event_type":"OrderPlaced","created_at":"t","order":{"order_id":"o","user_id":"u","items":[],"created_at":"t"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.body))
			require.ErrorIs(t, err, ErrSchemaViolation)
		})
	}
}
