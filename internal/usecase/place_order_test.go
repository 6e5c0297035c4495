package usecase

import (
	"context"
	"testing"

	"orderflow/internal/domain/order"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Invalid requests are rejected before anything touches storage.
func TestPlaceOrderValidation(t *testing.T) {
	uc := NewPlaceOrder(nil, nil, nil)

	tests := []struct {
		name   string
		params PlaceOrderParams
	}{
		{"missing user", PlaceOrderParams{Items: []order.Item{{SKU: "fries", Qty: 1}}}},
		{"no items", PlaceOrderParams{UserID: "u-1"}},
		{"zero qty", PlaceOrderParams{UserID: "u-1", Items: []order.Item{{SKU: "fries", Qty: 0}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := uc.Execute(context.Background(), tt.params)
			require.Error(t, err)

			var fieldErr *order.FieldError
			assert.ErrorAs(t, err, &fieldErr)
		})
	}
}
