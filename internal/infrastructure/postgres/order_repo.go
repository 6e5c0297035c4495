package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"orderflow/internal/domain/order"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

func (r *OrderRepository) Create(ctx context.Context, o *order.Order, status string) error {
	const sql = `
		INSERT INTO orders (id, user_id, status, items, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
	`

	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshal items: %w", err)
	}

	// Check for transaction in context
	var executor interface {
		Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	} = r.pool

	if tx := GetTx(ctx); tx != nil {
		executor = tx
	}

	if _, err := executor.Exec(ctx, sql, o.ID, o.UserID, status, items); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	return nil
}

type StoredOrder struct {
	Order     order.Order `json:"order"`
	Status    string      `json:"status"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*StoredOrder, error) {
	const sql = `
		SELECT id, user_id, status, items, created_at, updated_at
		FROM orders
		WHERE id = $1
	`

	var (
		so        StoredOrder
		items     []byte
		createdAt time.Time
	)
	err := r.pool.QueryRow(ctx, sql, id).Scan(
		&so.Order.ID, &so.Order.UserID, &so.Status, &items, &createdAt, &so.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("get order by id: %w", err)
	}

	if err := json.Unmarshal(items, &so.Order.Items); err != nil {
		return nil, fmt.Errorf("unmarshal items: %w", err)
	}
	so.Order.CreatedAt = createdAt.UTC().Format("2006-01-02T15:04:05.000000Z")

	return &so, nil
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status string) error {
	const sql = `
		UPDATE orders
		SET status = $2, updated_at = NOW()
		WHERE id = $1
	`

	var executor interface {
		Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	} = r.pool

	if tx := GetTx(ctx); tx != nil {
		executor = tx
	}

	tag, err := executor.Exec(ctx, sql, id, status)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order not found")
	}

	return nil
}
