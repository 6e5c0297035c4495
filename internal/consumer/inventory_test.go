package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"orderflow/internal/domain/event"
	"orderflow/internal/domain/order"
	"orderflow/internal/domain/reservation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore implements the insert-if-absent contract in memory: only one
// caller per key can ever observe true.
type fakeStore struct {
	mu           sync.Mutex
	processed    map[string]bool
	reservations map[string]*reservation.Record

	markErr    error
	reserveErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		processed:    make(map[string]bool),
		reservations: make(map[string]*reservation.Record),
	}
}

func (s *fakeStore) MarkProcessed(_ context.Context, messageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markErr != nil {
		return false, s.markErr
	}
	if s.processed[messageID] {
		return false, nil
	}
	s.processed[messageID] = true
	return true, nil
}

func (s *fakeStore) TryCreateReservation(_ context.Context, orderID, status string, snapshot []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reserveErr != nil {
		return false, s.reserveErr
	}
	if _, exists := s.reservations[orderID]; exists {
		return false, nil
	}
	s.reservations[orderID] = &reservation.Record{OrderID: orderID, Status: status, Snapshot: snapshot}
	return true, nil
}

func (s *fakeStore) GetReservation(_ context.Context, orderID string) (*reservation.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reservations[orderID], nil
}

type published struct {
	routingKey string
	body       []byte
}

type fakePublisher struct {
	mu        sync.Mutex
	published []published
	err       error
}

func (p *fakePublisher) Publish(_ context.Context, routingKey string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, published{routingKey: routingKey, body: body})
	return nil
}

func (p *fakePublisher) byKey(routingKey string) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []published
	for _, m := range p.published {
		if m.routingKey == routingKey {
			out = append(out, m)
		}
	}
	return out
}

func orderPlacedBody(t *testing.T, eventID, orderID string) []byte {
	t.Helper()
	placed := event.NewOrderPlaced(order.Order{
		ID:        orderID,
		UserID:    "u-1",
		Items:     []order.Item{{SKU: "fries", Qty: 2}},
		CreatedAt: event.NowUTC(),
	}, eventID)
	body, err := json.Marshal(placed)
	require.NoError(t, err)
	return body
}

func TestHandleReservesAndPublishes(t *testing.T) {
	store := newFakeStore()
	pub := &fakePublisher{}
	inv := NewInventory(store, pub, nil, false)

	outcome := inv.Handle(context.Background(), orderPlacedBody(t, "evt-1", "ord-1"))

	assert.Equal(t, OutcomeAck, outcome)
	require.Len(t, store.reservations, 1)
	assert.Equal(t, reservation.StatusReserved, store.reservations["ord-1"].Status)

	reserved := pub.byKey(event.TypeInventoryReserved)
	require.Len(t, reserved, 1)

	ev, err := event.Parse(reserved[0].body)
	require.NoError(t, err)
	assert.Equal(t, "ord-1", ev.(*event.InventoryReserved).OrderID)
}

// Delivering the same envelope (same event_id) twice results in exactly one
// reservation record and exactly one InventoryReserved publish.
func TestHandleDuplicateDelivery(t *testing.T) {
	store := newFakeStore()
	pub := &fakePublisher{}
	inv := NewInventory(store, pub, nil, false)

	body := orderPlacedBody(t, "evt-1", "ord-1")

	assert.Equal(t, OutcomeAck, inv.Handle(context.Background(), body))
	assert.Equal(t, OutcomeAck, inv.Handle(context.Background(), body))

	assert.Len(t, store.reservations, 1)
	assert.Len(t, pub.byKey(event.TypeInventoryReserved), 1)
}

// A distinct message (fresh event_id) for an already-reserved order still
// proceeds to publish: "already reserved" and "just reserved" are observably
// equivalent downstream.
func TestHandleAlreadyReservedOrder(t *testing.T) {
	store := newFakeStore()
	pub := &fakePublisher{}
	inv := NewInventory(store, pub, nil, false)

	assert.Equal(t, OutcomeAck, inv.Handle(context.Background(), orderPlacedBody(t, "evt-1", "ord-1")))
	assert.Equal(t, OutcomeAck, inv.Handle(context.Background(), orderPlacedBody(t, "evt-2", "ord-1")))

	assert.Len(t, store.reservations, 1)
	assert.Len(t, pub.byKey(event.TypeInventoryReserved), 2)
}

func TestHandlePoison(t *testing.T) {
	tests := []struct {
		name string
		body []byte
	}{
		{name: "malformed JSON", body: []byte(`{"event_id":`)},
		{name: "schema violation", body: []byte(`{"event_id":"e","event_type":"OrderPlaced","created_at":"t","order":{},"extra":1}`)},
		{name: "wrong variant for queue", body: []byte(`{"event_id":"e","event_type":"InventoryReserved","created_at":"t","order_id":"o"}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			pub := &fakePublisher{}
			inv := NewInventory(store, pub, nil, false)

			outcome := inv.Handle(context.Background(), tt.body)

			assert.Equal(t, OutcomeReject, outcome)
			assert.Empty(t, store.reservations)
			assert.Empty(t, store.processed)
			assert.Empty(t, pub.published)
		})
	}
}

// With fault injection enabled every valid order yields an InventoryFailed
// event and zero reservation records.
func TestHandleSimulatedFailure(t *testing.T) {
	store := newFakeStore()
	pub := &fakePublisher{}
	inv := NewInventory(store, pub, nil, true)

	outcome := inv.Handle(context.Background(), orderPlacedBody(t, "evt-1", "ord-1"))

	assert.Equal(t, OutcomeAck, outcome)
	assert.Empty(t, store.reservations)

	failed := pub.byKey(event.TypeInventoryFailed)
	require.Len(t, failed, 1)

	ev, err := event.Parse(failed[0].body)
	require.NoError(t, err)
	assert.Equal(t, "Simulated failure", ev.(*event.InventoryFailed).Reason)
	assert.Empty(t, pub.byKey(event.TypeInventoryReserved))
}

func TestHandleStoreUnavailable(t *testing.T) {
	store := newFakeStore()
	store.markErr = errors.New("connection refused")
	pub := &fakePublisher{}
	inv := NewInventory(store, pub, nil, false)

	outcome := inv.Handle(context.Background(), orderPlacedBody(t, "evt-1", "ord-1"))

	assert.Equal(t, OutcomeRequeue, outcome)
	assert.Empty(t, pub.published)
}

func TestHandleReservationWriteUnavailable(t *testing.T) {
	store := newFakeStore()
	store.reserveErr = errors.New("connection refused")
	pub := &fakePublisher{}
	inv := NewInventory(store, pub, nil, false)

	outcome := inv.Handle(context.Background(), orderPlacedBody(t, "evt-1", "ord-1"))

	assert.Equal(t, OutcomeRequeue, outcome)
	assert.Empty(t, pub.published)
}

// Documents the accepted crash-window trade-off: the message is marked
// processed before the publish, so when the publish fails and the broker
// redelivers, the retry is skipped at the dedup step and the downstream
// event is never published. Reordering would instead duplicate publishes
// under redelivery.
func TestHandlePublishFailureThenRedelivery(t *testing.T) {
	store := newFakeStore()
	pub := &fakePublisher{err: errors.New("broker gone")}
	inv := NewInventory(store, pub, nil, false)

	body := orderPlacedBody(t, "evt-1", "ord-1")

	assert.Equal(t, OutcomeRequeue, inv.Handle(context.Background(), body))

	// Broker redelivers after the publish path recovers.
	pub.err = nil
	assert.Equal(t, OutcomeAck, inv.Handle(context.Background(), body))

	assert.Len(t, store.reservations, 1)
	assert.Empty(t, pub.byKey(event.TypeInventoryReserved))
}

// Two simultaneous attempts for the same key observe exactly one true from
// the insert-if-absent primitive and no error.
func TestInsertIfAbsentRace(t *testing.T) {
	store := newFakeStore()

	const goroutines = 8
	results := make(chan bool, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			created, err := store.TryCreateReservation(context.Background(), "ord-1", reservation.StatusReserved, nil)
			assert.NoError(t, err)
			results <- created
		}()
	}
	wg.Wait()
	close(results)

	inserted := 0
	for created := range results {
		if created {
			inserted++
		}
	}
	assert.Equal(t, 1, inserted)
}

// Draining a backlog of N distinct orders produces N reservations and N
// publishes, with no duplicates even when the broker redelivers some
// messages mid-drain.
func TestBacklogDrainWithRedeliveries(t *testing.T) {
	store := newFakeStore()
	pub := &fakePublisher{}
	inv := NewInventory(store, pub, nil, false)

	const n = 20
	var backlog [][]byte
	for i := 0; i < n; i++ {
		body := orderPlacedBody(t, fmt.Sprintf("evt-%d", i), fmt.Sprintf("ord-%d", i))
		backlog = append(backlog, body)
		if i%3 == 0 {
			backlog = append(backlog, body) // broker-level redelivery
		}
	}

	for _, body := range backlog {
		assert.Equal(t, OutcomeAck, inv.Handle(context.Background(), body))
	}

	assert.Len(t, store.reservations, n)
	assert.Len(t, pub.byKey(event.TypeInventoryReserved), n)
}

type fakeMirror struct {
	mu   sync.Mutex
	sent int
	err  error
}

func (m *fakeMirror) SendMessage(context.Context, []byte, []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent++
	return nil
}

func TestMirrorIsBestEffort(t *testing.T) {
	store := newFakeStore()
	pub := &fakePublisher{}
	mirror := &fakeMirror{err: errors.New("kafka down")}
	inv := NewInventory(store, pub, mirror, false)

	// A mirror failure never affects the ack decision.
	outcome := inv.Handle(context.Background(), orderPlacedBody(t, "evt-1", "ord-1"))
	assert.Equal(t, OutcomeAck, outcome)
	assert.Len(t, pub.byKey(event.TypeInventoryReserved), 1)

	// With the mirror healthy, both the incoming OrderPlaced and the
	// outgoing result event are copied to the firehose.
	mirror.err = nil
	outcome = inv.Handle(context.Background(), orderPlacedBody(t, "evt-2", "ord-2"))
	assert.Equal(t, OutcomeAck, outcome)
	assert.Equal(t, 2, mirror.sent)
}
