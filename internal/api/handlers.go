package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"orderflow/internal/domain/order"
	"orderflow/internal/usecase"

	"github.com/go-chi/chi/v5"
)

type Handlers struct {
	placeOrderUC *usecase.PlaceOrder
	getOrderUC   *usecase.GetOrder
}

func NewHandlers(placeOrderUC *usecase.PlaceOrder, getOrderUC *usecase.GetOrder) *Handlers {
	return &Handlers{
		placeOrderUC: placeOrderUC,
		getOrderUC:   getOrderUC,
	}
}

func (h *Handlers) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string       `json:"user_id"`
		Items  []order.Item `json:"items"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	id, err := h.placeOrderUC.Execute(r.Context(), usecase.PlaceOrderParams{
		UserID: req.UserID,
		Items:  req.Items,
	})
	if err != nil {
		var fieldErr *order.FieldError
		if errors.As(err, &fieldErr) {
			http.Error(w, fieldErr.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{
		"order_id": id,
		"status":   usecase.StatusPending,
	})
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "missing order id", http.StatusBadRequest)
		return
	}

	o, err := h.getOrderUC.Execute(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	json.NewEncoder(w).Encode(o)
}
