package relay

import (
	"context"
	"errors"
	"testing"

	"orderflow/internal/domain/outbox"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	pending   []*outbox.Event
	processed []string
	failed    []string
}

func (r *fakeRepo) Create(context.Context, *outbox.Event) error { return nil }

func (r *fakeRepo) FetchBatch(_ context.Context, limit int) ([]*outbox.Event, error) {
	if limit > len(r.pending) {
		limit = len(r.pending)
	}
	batch := r.pending[:limit]
	r.pending = r.pending[limit:]
	return batch, nil
}

func (r *fakeRepo) MarkProcessed(_ context.Context, ids []string) error {
	r.processed = append(r.processed, ids...)
	return nil
}

func (r *fakeRepo) MarkFailed(_ context.Context, ids []string) error {
	r.failed = append(r.failed, ids...)
	return nil
}

type fakePublisher struct {
	failKeys map[string]bool
	sent     []string
}

func (p *fakePublisher) Publish(_ context.Context, routingKey string, _ []byte) error {
	if p.failKeys[routingKey] {
		return errors.New("publish failed")
	}
	p.sent = append(p.sent, routingKey)
	return nil
}

func TestProcessBatchPublishesAndMarks(t *testing.T) {
	repo := &fakeRepo{pending: []*outbox.Event{
		{ID: "1", EventType: "OrderPlaced", Payload: []byte(`{}`)},
		{ID: "2", EventType: "OrderPlaced", Payload: []byte(`{}`)},
	}}
	pub := &fakePublisher{}
	r := New(repo, pub)

	require.NoError(t, r.processBatch(context.Background()))

	assert.Equal(t, []string{"OrderPlaced", "OrderPlaced"}, pub.sent)
	assert.Equal(t, []string{"1", "2"}, repo.processed)
	assert.Empty(t, repo.failed)
}

// A failed publish returns the event to the retry pool instead of losing it.
func TestProcessBatchReturnsFailuresForRetry(t *testing.T) {
	repo := &fakeRepo{pending: []*outbox.Event{
		{ID: "1", EventType: "OrderPlaced", Payload: []byte(`{}`)},
		{ID: "2", EventType: "Broken", Payload: []byte(`{}`)},
	}}
	pub := &fakePublisher{failKeys: map[string]bool{"Broken": true}}
	r := New(repo, pub)

	require.NoError(t, r.processBatch(context.Background()))

	assert.Equal(t, []string{"1"}, repo.processed)
	assert.Equal(t, []string{"2"}, repo.failed)
}

func TestProcessBatchEmpty(t *testing.T) {
	repo := &fakeRepo{}
	r := New(repo, &fakePublisher{})

	require.NoError(t, r.processBatch(context.Background()))
	assert.Empty(t, repo.processed)
	assert.Empty(t, repo.failed)
}
