package analytics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"orderflow/internal/domain/event"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ordersSeen = promauto.NewCounter(prometheus.CounterOpts{
		Name: "analytics_orders_seen_total",
		Help: "Distinct orders observed on the firehose",
	})
	inventoryEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "analytics_inventory_events_total",
		Help: "Distinct inventory result events observed on the firehose",
	})
	unparseable = promauto.NewCounter(prometheus.CounterOpts{
		Name: "analytics_unparseable_total",
		Help: "Firehose messages that failed to parse",
	})
)

// Snapshot is the periodically flushed aggregate.
type Snapshot struct {
	GeneratedAtUnix      int64          `json:"generatedAtUnix"`
	TotalOrdersSeen      int            `json:"totalOrdersSeen"`
	TotalInventoryEvents int            `json:"totalInventoryEvents"`
	InventoryFailed      int            `json:"inventoryFailed"`
	FailureRate          float64        `json:"failureRate"`
	OrdersPerMinute      map[string]int `json:"ordersPerMinuteBucket"`
}

// Aggregator is a read-only aggregation over the event firehose: it counts
// and dedups, nothing more. Dedup here is in-memory (per process lifetime);
// this side carries none of the pipeline's reliability obligations.
type Aggregator struct {
	mu sync.Mutex

	seenOrders    map[string]struct{}
	seenInventory map[string]struct{}

	totalOrders     int
	totalInventory  int
	inventoryFailed int
	perMinute       map[int64]int
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		seenOrders:    make(map[string]struct{}),
		seenInventory: make(map[string]struct{}),
		perMinute:     make(map[int64]int),
	}
}

// Observe folds one firehose message into the aggregate. Unparseable
// messages are counted and dropped; duplicates are ignored.
func (a *Aggregator) Observe(body []byte) {
	ev, err := event.Parse(body)
	if err != nil {
		unparseable.Inc()
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	switch e := ev.(type) {
	case *event.OrderPlaced:
		if _, dup := a.seenOrders[e.Order.ID]; dup {
			return
		}
		a.seenOrders[e.Order.ID] = struct{}{}
		a.totalOrders++
		a.perMinute[minuteBucket(e.CreatedAt)]++
		ordersSeen.Inc()

	case *event.InventoryReserved:
		a.observeInventory(e.OrderID, e.EventType, false)

	case *event.InventoryFailed:
		a.observeInventory(e.OrderID, e.EventType, true)
	}
}

func (a *Aggregator) observeInventory(orderID, eventType string, failed bool) {
	dedupKey := orderID + ":" + eventType
	if _, dup := a.seenInventory[dedupKey]; dup {
		return
	}
	a.seenInventory[dedupKey] = struct{}{}
	a.totalInventory++
	if failed {
		a.inventoryFailed++
	}
	inventoryEvents.Inc()
}

func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	rate := 0.0
	if a.totalInventory > 0 {
		rate = float64(a.inventoryFailed) / float64(a.totalInventory)
	}

	perMinute := make(map[string]int, len(a.perMinute))
	buckets := make([]int64, 0, len(a.perMinute))
	for b := range a.perMinute {
		buckets = append(buckets, b)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i] < buckets[j] })
	for _, b := range buckets {
		perMinute[fmt.Sprintf("%d", b)] = a.perMinute[b]
	}

	return Snapshot{
		GeneratedAtUnix:      time.Now().Unix(),
		TotalOrdersSeen:      a.totalOrders,
		TotalInventoryEvents: a.totalInventory,
		InventoryFailed:      a.inventoryFailed,
		FailureRate:          rate,
		OrdersPerMinute:      perMinute,
	}
}

// Flush writes the snapshot as indented JSON.
func (a *Aggregator) Flush(path string) error {
	snap := a.Snapshot()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	return nil
}

// minuteBucket maps a wire timestamp to minutes since epoch. Falls back to
// the current minute when the timestamp does not parse.
func minuteBucket(createdAt string) int64 {
	t, err := time.Parse("2006-01-02T15:04:05.000000Z", createdAt)
	if err != nil {
		if t, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			t = time.Now().UTC()
		}
	}
	return t.Unix() / 60
}
