package reservation

import "time"

const (
	StatusReserved = "RESERVED"
	StatusFailed   = "FAILED"
)

// Record is the idempotency anchor for a reservation: its existence under
// the order id proves the business effect already happened.
type Record struct {
	OrderID   string    `json:"order_id"`
	Status    string    `json:"status"`
	Snapshot  []byte    `json:"snapshot"`
	CreatedAt time.Time `json:"created_at"`
}
