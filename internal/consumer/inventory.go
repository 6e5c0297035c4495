package consumer

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"orderflow/internal/domain/event"
	"orderflow/internal/domain/reservation"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	amqp "github.com/rabbitmq/amqp091-go"
)

var (
	ordersReserved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_orders_reserved_total",
		Help: "The total number of orders reserved",
	})
	duplicatesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_duplicate_deliveries_total",
		Help: "The total number of duplicate deliveries skipped",
	})
	poisonRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_poison_rejected_total",
		Help: "The total number of poison messages rejected to the DLQ",
	})
	simulatedFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_simulated_failures_total",
		Help: "The total number of simulated reservation failures",
	})
	processingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "inventory_processing_duration_seconds",
		Help:    "Time taken to process an order-placed delivery",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2},
	})
)

// Outcome is the terminal disposition of one delivery.
type Outcome int

const (
	// OutcomeAck: effects applied (or already applied earlier); acknowledge.
	OutcomeAck Outcome = iota
	// OutcomeReject: poison; reject without requeue, routing to the DLQ.
	OutcomeReject
	// OutcomeRequeue: transient failure (store or publish); nack with
	// requeue so the broker redelivers. Redelivery is safe: the dedup key
	// is the message id, the reservation key is the order id.
	OutcomeRequeue
)

// Store is the idempotency store the consumer writes through. Both insert
// operations are atomic insert-if-absent at the storage layer.
type Store interface {
	MarkProcessed(ctx context.Context, messageID string) (bool, error)
	TryCreateReservation(ctx context.Context, orderID, status string, snapshot []byte) (bool, error)
	GetReservation(ctx context.Context, orderID string) (*reservation.Record, error)
}

type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// Mirror is the optional analytics firehose; delivery is best effort.
type Mirror interface {
	SendMessage(ctx context.Context, key, value []byte) error
}

// Inventory consumes OrderPlaced deliveries: validate, dedup, reserve,
// publish the result event, then ack. Acknowledgment happens only after all
// side effects completed; any failure leaves the message to be redelivered.
//
// The one designed exception: the message is marked processed before the
// reservation and publish. A crash inside that window causes the retried
// delivery to be skipped at the dedup step even though the downstream event
// was never published — an accepted risk traded for simplicity, not a bug.
// Reordering would trade it for duplicate publishes under redelivery.
type Inventory struct {
	store            Store
	publisher        Publisher
	mirror           Mirror
	failReservations bool
}

func NewInventory(store Store, publisher Publisher, mirror Mirror, failReservations bool) *Inventory {
	return &Inventory{
		store:            store,
		publisher:        publisher,
		mirror:           mirror,
		failReservations: failReservations,
	}
}

// Handle runs the state machine for one message body and returns its
// terminal outcome.
func (c *Inventory) Handle(ctx context.Context, body []byte) Outcome {
	started := time.Now()

	ev, err := event.Parse(body)
	if err != nil {
		slog.Warn("rejecting malformed OrderPlaced message to DLQ", "error", err)
		poisonRejected.Inc()
		return OutcomeReject
	}

	placed, ok := ev.(*event.OrderPlaced)
	if !ok {
		slog.Warn("rejecting unexpected event type on order-placed queue",
			"event_type", ev.Meta().EventType)
		poisonRejected.Inc()
		return OutcomeReject
	}

	eventID := placed.EventID
	orderID := placed.Order.ID

	// Message-level dedup: existence of the record means this logical
	// event's effects were already applied.
	isNew, err := c.store.MarkProcessed(ctx, eventID)
	if err != nil {
		slog.Error("idempotency store unavailable", "event_id", eventID, "error", err)
		return OutcomeRequeue
	}
	if !isNew {
		slog.Info("duplicate delivery, skipping", "event_id", eventID, "order_id", orderID)
		duplicatesSkipped.Inc()
		return OutcomeAck
	}

	c.mirrorEvent(ctx, orderID, body)

	if c.failReservations {
		failed := event.NewInventoryFailed(orderID, "Simulated failure", uuid.New().String())
		if err := c.publishEvent(ctx, failed.EventType, failed); err != nil {
			slog.Error("publish InventoryFailed", "order_id", orderID, "error", err)
			return OutcomeRequeue
		}
		slog.Info("inventory reservation failed (simulated)", "order_id", orderID)
		simulatedFailures.Inc()
		return OutcomeAck
	}

	snapshot, err := json.Marshal(placed.Order)
	if err != nil {
		slog.Error("marshal order snapshot", "order_id", orderID, "error", err)
		return OutcomeRequeue
	}

	created, err := c.store.TryCreateReservation(ctx, orderID, reservation.StatusReserved, snapshot)
	if err != nil {
		slog.Error("idempotency store unavailable", "order_id", orderID, "error", err)
		return OutcomeRequeue
	}
	if !created {
		// Already reserved by an earlier message for the same order:
		// observably equivalent to having just reserved it.
		if existing, err := c.store.GetReservation(ctx, orderID); err == nil && existing != nil {
			slog.Info("order already reserved", "order_id", orderID, "status", existing.Status)
		}
	}

	reserved := event.NewInventoryReserved(orderID, uuid.New().String())
	if err := c.publishEvent(ctx, reserved.EventType, reserved); err != nil {
		slog.Error("publish InventoryReserved", "order_id", orderID, "error", err)
		return OutcomeRequeue
	}

	slog.Info("inventory reserved", "order_id", orderID, "event_id", eventID)
	ordersReserved.Inc()
	processingDuration.Observe(time.Since(started).Seconds())
	return OutcomeAck
}

// HandleDelivery maps the outcome onto broker acknowledgment.
func (c *Inventory) HandleDelivery(ctx context.Context, d amqp.Delivery) {
	switch c.Handle(ctx, d.Body) {
	case OutcomeAck:
		if err := d.Ack(false); err != nil {
			slog.Error("ack failed", "error", err)
		}
	case OutcomeReject:
		if err := d.Reject(false); err != nil {
			slog.Error("reject failed", "error", err)
		}
	case OutcomeRequeue:
		if err := d.Nack(false, true); err != nil {
			slog.Error("nack failed", "error", err)
		}
	}
}

func (c *Inventory) publishEvent(ctx context.Context, routingKey string, ev event.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	if err := c.publisher.Publish(ctx, routingKey, body); err != nil {
		return err
	}

	c.mirrorEvent(ctx, ev.Meta().CorrelationID, body)
	return nil
}

// mirrorEvent copies an event onto the analytics firehose. Best effort: a
// mirror failure is logged and never affects the ack decision.
func (c *Inventory) mirrorEvent(ctx context.Context, key string, body []byte) {
	if c.mirror == nil {
		return
	}
	if err := c.mirror.SendMessage(ctx, []byte(key), body); err != nil {
		slog.Warn("firehose mirror failed", "error", err)
	}
}
