package relay

import (
	"context"
	"log/slog"
	"time"

	"orderflow/internal/domain/outbox"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_outbox_events_published_total",
		Help: "The total number of outbox events published to the exchange",
	})
	publishErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_outbox_publish_errors_total",
		Help: "The total number of failed publish attempts",
	})
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// OutboxRelay drains staged events from the outbox table to the exchange.
// The routing key is the staged event type. Failed publishes return to the
// new state and are retried on the next poll, so the producer side is
// at-least-once; consumer-side dedup absorbs the duplicates.
type OutboxRelay struct {
	repo      outbox.Repository
	publisher Publisher

	interval  time.Duration
	batchSize int
}

func New(repo outbox.Repository, publisher Publisher) *OutboxRelay {
	return &OutboxRelay{
		repo:      repo,
		publisher: publisher,
		interval:  2 * time.Second,
		batchSize: 10,
	}
}

func (r *OutboxRelay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	slog.Info("outbox relay started", "interval", r.interval, "batch_size", r.batchSize)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.processBatch(ctx); err != nil {
				slog.Error("outbox batch failed", "error", err)
			}
		}
	}
}

func (r *OutboxRelay) processBatch(ctx context.Context) error {
	events, err := r.repo.FetchBatch(ctx, r.batchSize)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	var processedIDs []string
	var failedIDs []string

	for _, e := range events {
		sendCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := r.publisher.Publish(sendCtx, e.EventType, e.Payload)
		cancel()

		if err != nil {
			slog.Error("publish outbox event", "id", e.ID, "event_type", e.EventType, "error", err)
			publishErrors.Inc()
			failedIDs = append(failedIDs, e.ID)
			continue
		}

		eventsPublished.Inc()
		processedIDs = append(processedIDs, e.ID)
	}

	if len(processedIDs) > 0 {
		if err := r.repo.MarkProcessed(ctx, processedIDs); err != nil {
			return err
		}
		slog.Info("outbox events published", "count", len(processedIDs))
	}

	if len(failedIDs) > 0 {
		if err := r.repo.MarkFailed(ctx, failedIDs); err != nil {
			slog.Error("mark outbox events failed", "error", err)
		}
	}

	return nil
}
