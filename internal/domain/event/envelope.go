package event

import (
	"time"

	"orderflow/internal/domain/order"
)

// Event type names double as the routing keys on the exchange.
const (
	TypeOrderPlaced       = "OrderPlaced"
	TypeInventoryReserved = "InventoryReserved"
	TypeInventoryFailed   = "InventoryFailed"
)

// Envelope is the common head of every event on the wire. EventID is the
// deduplication key: two envelopes carrying the same EventID are the same
// logical occurrence regardless of payload.
type Envelope struct {
	EventID       string `json:"event_id"`
	EventType     string `json:"event_type"`
	CreatedAt     string `json:"created_at"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

func (e Envelope) Meta() Envelope { return e }

// Event is the closed union of known event variants.
type Event interface {
	Meta() Envelope
}

type OrderPlaced struct {
	Envelope
	Order order.Order `json:"order"`
}

type InventoryReserved struct {
	Envelope
	OrderID string `json:"order_id"`
}

type InventoryFailed struct {
	Envelope
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

// NowUTC returns the wire-format timestamp: UTC, microsecond precision,
// Z suffix.
func NowUTC() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000000Z")
}

func NewOrderPlaced(o order.Order, eventID string) *OrderPlaced {
	return &OrderPlaced{
		Envelope: Envelope{
			EventID:       eventID,
			EventType:     TypeOrderPlaced,
			CreatedAt:     NowUTC(),
			CorrelationID: o.ID,
		},
		Order: o,
	}
}

func NewInventoryReserved(orderID, eventID string) *InventoryReserved {
	return &InventoryReserved{
		Envelope: Envelope{
			EventID:       eventID,
			EventType:     TypeInventoryReserved,
			CreatedAt:     NowUTC(),
			CorrelationID: orderID,
		},
		OrderID: orderID,
	}
}

func NewInventoryFailed(orderID, reason, eventID string) *InventoryFailed {
	return &InventoryFailed{
		Envelope: Envelope{
			EventID:       eventID,
			EventType:     TypeInventoryFailed,
			CreatedAt:     NowUTC(),
			CorrelationID: orderID,
		},
		OrderID: orderID,
		Reason:  reason,
	}
}
