package consumer

import (
	"context"
	"log/slog"

	"orderflow/internal/domain/event"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	amqp "github.com/rabbitmq/amqp091-go"
)

var notificationsSent = promauto.NewCounter(prometheus.CounterOpts{
	Name: "notification_confirmations_total",
	Help: "The total number of confirmation notifications sent",
})

// Notification consumes InventoryReserved and performs a log-equivalent
// side effect. No idempotency store: re-notification on redelivery is
// tolerable, and decode failures are logged and acked rather than
// dead-lettered.
type Notification struct{}

func NewNotification() *Notification {
	return &Notification{}
}

func (n *Notification) HandleDelivery(ctx context.Context, d amqp.Delivery) {
	defer func() {
		if err := d.Ack(false); err != nil {
			slog.Error("ack failed", "error", err)
		}
	}()

	ev, err := event.Parse(d.Body)
	if err != nil {
		slog.Warn("unreadable message on inventory-reserved queue", "error", err)
		return
	}

	reserved, ok := ev.(*event.InventoryReserved)
	if !ok {
		slog.Warn("unexpected event type on inventory-reserved queue",
			"event_type", ev.Meta().EventType)
		return
	}

	slog.Info("notification: order confirmed",
		"order_id", reserved.OrderID, "correlation_id", reserved.CorrelationID)
	notificationsSent.Inc()
}
