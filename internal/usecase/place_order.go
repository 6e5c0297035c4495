package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"orderflow/internal/domain/event"
	"orderflow/internal/domain/order"
	"orderflow/internal/domain/outbox"
	"orderflow/internal/infrastructure/postgres"

	"github.com/google/uuid"
)

const StatusPending = "PENDING"

type PlaceOrderParams struct {
	UserID string       `json:"user_id"`
	Items  []order.Item `json:"items"`
}

// PlaceOrder persists a new order and stages its OrderPlaced event in the
// outbox within one transaction; the relay publishes it afterwards. The
// event gets a freshly minted event_id and correlation_id = order id.
type PlaceOrder struct {
	txManager  postgres.Transactor
	orderRepo  *postgres.OrderRepository
	outboxRepo outbox.Repository
}

func NewPlaceOrder(
	txManager postgres.Transactor,
	orderRepo *postgres.OrderRepository,
	outboxRepo outbox.Repository,
) *PlaceOrder {
	return &PlaceOrder{
		txManager:  txManager,
		orderRepo:  orderRepo,
		outboxRepo: outboxRepo,
	}
}

func (uc *PlaceOrder) Execute(ctx context.Context, params PlaceOrderParams) (string, error) {
	newOrder := order.Order{
		ID:        uuid.New().String(),
		UserID:    params.UserID,
		Items:     params.Items,
		CreatedAt: event.NowUTC(),
	}
	if err := newOrder.Validate(); err != nil {
		return "", fmt.Errorf("invalid order: %w", err)
	}

	placed := event.NewOrderPlaced(newOrder, uuid.New().String())
	payload, err := json.Marshal(placed)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	outboxEvent := &outbox.Event{
		ID:            placed.EventID,
		EventType:     event.TypeOrderPlaced,
		Payload:       payload,
		Status:        outbox.StatusNew,
		CorrelationID: newOrder.ID,
		CreatedAt:     time.Now().UTC(),
	}

	err = uc.txManager.WithinTransaction(ctx, func(txCtx context.Context) error {
		if err := uc.orderRepo.Create(txCtx, &newOrder, StatusPending); err != nil {
			return err
		}
		return uc.outboxRepo.Create(txCtx, outboxEvent)
	})
	if err != nil {
		return "", fmt.Errorf("transaction failed: %w", err)
	}

	return newOrder.ID, nil
}
