package postgres

import (
	"context"
	"errors"
	"fmt"

	"orderflow/internal/domain/reservation"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the idempotency store: processed-message records keyed by event
// id and reservation records keyed by order id. Both writes are single
// atomic insert-if-absent statements — never read-then-write — so concurrent
// deliveries of the same key cannot both observe "absent".
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// MarkProcessed records that a message id has been handled. Returns true if
// this call inserted the record (first delivery), false if it already
// existed (duplicate delivery). Only one concurrent caller can observe true.
func (s *Store) MarkProcessed(ctx context.Context, messageID string) (bool, error) {
	const query = `
		INSERT INTO processed_messages (message_id, seen_at)
		VALUES ($1, NOW())
		ON CONFLICT (message_id) DO NOTHING
	`

	tag, err := s.pool.Exec(ctx, query, messageID)
	if err != nil {
		return false, fmt.Errorf("insert processed message: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// TryCreateReservation inserts the reservation record for an order if none
// exists. Returns true on insert, false if the order was already reserved.
// The record's existence is the idempotency proof for the business effect.
func (s *Store) TryCreateReservation(ctx context.Context, orderID, status string, snapshot []byte) (bool, error) {
	const query = `
		INSERT INTO inventory_reservations (order_id, status, snapshot, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (order_id) DO NOTHING
	`

	tag, err := s.pool.Exec(ctx, query, orderID, status, snapshot)
	if err != nil {
		return false, fmt.Errorf("insert reservation: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// GetReservation returns the reservation for an order, or nil if absent.
func (s *Store) GetReservation(ctx context.Context, orderID string) (*reservation.Record, error) {
	const query = `
		SELECT order_id, status, snapshot, created_at
		FROM inventory_reservations
		WHERE order_id = $1
	`

	r := &reservation.Record{}
	err := s.pool.QueryRow(ctx, query, orderID).Scan(&r.OrderID, &r.Status, &r.Snapshot, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reservation: %w", err)
	}

	return r, nil
}

// CountReservations is used by the inspection tool and tests.
func (s *Store) CountReservations(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM inventory_reservations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count reservations: %w", err)
	}
	return n, nil
}
