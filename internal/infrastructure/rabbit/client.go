package rabbit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Client owns one connection and one channel to the broker and is the only
// publish path in a process. It is constructed once at startup and passed
// into publishers; access is serialized by the mutex (single writer).
// A failed publish drops the connection so the next call redials.
type Client struct {
	url string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// Connect dials the broker, retrying with backoff, and declares the
// topology on the resulting channel.
func Connect(ctx context.Context, url string) (*Client, error) {
	c := &Client{url: url}

	var err error
	for attempt := 0; attempt < 5; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff(attempt)):
			}
		}
		c.mu.Lock()
		err = c.ensureLocked()
		c.mu.Unlock()
		if err == nil {
			return c, nil
		}
		slog.Warn("rabbit connect failed", "attempt", attempt+1, "error", err)
	}

	return nil, fmt.Errorf("connect to rabbit after retries: %w", err)
}

// Publish sends a persistent JSON message to the topic exchange.
func (c *Client) Publish(ctx context.Context, routingKey string, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureLocked(); err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}

	err := c.ch.PublishWithContext(ctx, Exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		c.dropLocked()
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}

	return nil
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropLocked()
}

func (c *Client) ensureLocked() error {
	if c.conn != nil && !c.conn.IsClosed() && c.ch != nil && !c.ch.IsClosed() {
		return nil
	}
	c.dropLocked()

	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if _, err := DeclareTopology(ch); err != nil {
		ch.Close()
		conn.Close()
		return err
	}

	c.conn = conn
	c.ch = ch
	return nil
}

func (c *Client) dropLocked() {
	if c.ch != nil {
		_ = c.ch.Close()
		c.ch = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// backoff doubles per attempt, capped at 30s.
func backoff(attempt int) time.Duration {
	if attempt > 5 {
		attempt = 5
	}
	d := time.Duration(1<<attempt) * time.Second
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}
