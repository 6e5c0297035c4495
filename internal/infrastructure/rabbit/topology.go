package rabbit

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Broker topology. Routing keys are the event type names.
const (
	Exchange               = "orders"
	QueueOrderPlaced       = "order-placed"
	QueueOrderPlacedDLQ    = "order-placed.dlq"
	QueueInventoryReserved = "inventory-reserved"
)

// DeclareTopology declares the exchange, work queues, bindings, and
// dead-letter configuration. Declarations are idempotent: re-declaring with
// identical arguments is a no-op, while re-declaring an existing queue or
// exchange with different arguments fails with a PRECONDITION_FAILED channel
// error from the broker, which is surfaced here instead of being swallowed.
// Returns the declared queues keyed by name so callers can attach consumers
// without re-declaring.
func DeclareTopology(ch *amqp.Channel) (map[string]amqp.Queue, error) {
	if err := ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", Exchange, err)
	}

	queues := make(map[string]amqp.Queue, 3)

	// DLQ first: a terminal sink with no bindings. Messages land here via
	// the default exchange when the work queue rejects without requeue.
	dlq, err := ch.QueueDeclare(QueueOrderPlacedDLQ, true, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", QueueOrderPlacedDLQ, err)
	}
	queues[QueueOrderPlacedDLQ] = dlq

	// order-placed: consumed by the inventory service; reject-without-requeue
	// dead-letters into the DLQ through the default (unnamed) exchange.
	placed, err := ch.QueueDeclare(QueueOrderPlaced, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": QueueOrderPlacedDLQ,
	})
	if err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", QueueOrderPlaced, err)
	}
	if err := ch.QueueBind(QueueOrderPlaced, "OrderPlaced", Exchange, false, nil); err != nil {
		return nil, fmt.Errorf("bind queue %s: %w", QueueOrderPlaced, err)
	}
	queues[QueueOrderPlaced] = placed

	// inventory-reserved: consumed by the notification service.
	reserved, err := ch.QueueDeclare(QueueInventoryReserved, true, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", QueueInventoryReserved, err)
	}
	if err := ch.QueueBind(QueueInventoryReserved, "InventoryReserved", Exchange, false, nil); err != nil {
		return nil, fmt.Errorf("bind queue %s: %w", QueueInventoryReserved, err)
	}
	queues[QueueInventoryReserved] = reserved

	return queues, nil
}
