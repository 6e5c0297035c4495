package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"orderflow/internal/domain/order"
	"orderflow/internal/infrastructure/postgres"

	"github.com/redis/go-redis/v9"
)

type OrderDTO struct {
	ID        string       `json:"order_id"`
	UserID    string       `json:"user_id"`
	Status    string       `json:"status"`
	Items     []order.Item `json:"items"`
	CreatedAt string       `json:"created_at"`
}

type GetOrder struct {
	redisClient *redis.Client
	orderRepo   *postgres.OrderRepository
}

func NewGetOrder(redisClient *redis.Client, orderRepo *postgres.OrderRepository) *GetOrder {
	return &GetOrder{
		redisClient: redisClient,
		orderRepo:   orderRepo,
	}
}

func (uc *GetOrder) Execute(ctx context.Context, orderID string) (*OrderDTO, error) {
	cacheKey := fmt.Sprintf("order:%s", orderID)

	if uc.redisClient != nil {
		val, err := uc.redisClient.Get(ctx, cacheKey).Result()
		if err == nil {
			var dto OrderDTO
			if err := json.Unmarshal([]byte(val), &dto); err == nil {
				return &dto, nil
			}
		}
	}

	stored, err := uc.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}

	dto := &OrderDTO{
		ID:        stored.Order.ID,
		UserID:    stored.Order.UserID,
		Status:    stored.Status,
		Items:     stored.Order.Items,
		CreatedAt: stored.Order.CreatedAt,
	}

	if uc.redisClient != nil {
		data, _ := json.Marshal(dto)
		// short TTL so reservation status changes show up quickly
		uc.redisClient.Set(ctx, cacheKey, data, 1*time.Second)
	}

	return dto, nil
}
