package rabbit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler processes one delivery and must end it with ack, reject, or nack.
type Handler func(ctx context.Context, d amqp.Delivery)

// Consumer runs a single logical worker against one queue with a prefetch
// window of exactly one unacknowledged message: the broker will not deliver
// the next message until the current one is acked or rejected. On connection
// loss it redials with backoff; unacknowledged messages are redelivered by
// the broker, which is how a backlog accumulated during an outage drains
// after reconnect.
type Consumer struct {
	url   string
	queue string
	tag   string
}

func NewConsumer(url, queue, tag string) *Consumer {
	return &Consumer{url: url, queue: queue, tag: tag}
}

// Run consumes until ctx is done. A delivery in flight when ctx is canceled
// runs to ack/reject before the connection is torn down.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	attempt := 0
	for {
		err := c.consumeOnce(ctx, handle)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		attempt++
		wait := backoff(attempt)
		slog.Warn("consumer connection lost, reconnecting",
			"queue", c.queue, "error", err, "backoff", wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *Consumer) consumeOnce(ctx context.Context, handle Handler) error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	// prefetch = 1: strict sequential processing per consumer instance
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	if _, err := DeclareTopology(ch); err != nil {
		return err
	}

	deliveries, err := ch.Consume(c.queue, c.tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}

	slog.Info("consuming", "queue", c.queue, "consumer", c.tag)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			handle(ctx, d)
		}
	}
}
