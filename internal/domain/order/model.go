package order

// Item is a single order line: SKU plus a positive quantity.
type Item struct {
	SKU string `json:"sku"`
	Qty int    `json:"qty"`
}

type Order struct {
	ID        string `json:"order_id"`
	UserID    string `json:"user_id"`
	Items     []Item `json:"items"`
	CreatedAt string `json:"created_at"`
}

// Validate checks the order invariants: at least one item, every quantity
// positive, non-empty identifiers.
func (o *Order) Validate() error {
	if o.ID == "" {
		return errMissing("order_id")
	}
	if o.UserID == "" {
		return errMissing("user_id")
	}
	if o.CreatedAt == "" {
		return errMissing("created_at")
	}
	if len(o.Items) == 0 {
		return errInvalid("items", "must contain at least one item")
	}
	for _, it := range o.Items {
		if it.SKU == "" {
			return errMissing("items.sku")
		}
		if it.Qty <= 0 {
			return errInvalid("items.qty", "must be positive")
		}
	}
	return nil
}

type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return "field " + e.Field + ": " + e.Reason
}

func errMissing(field string) error {
	return &FieldError{Field: field, Reason: "required"}
}

func errInvalid(field, reason string) error {
	return &FieldError{Field: field, Reason: reason}
}
