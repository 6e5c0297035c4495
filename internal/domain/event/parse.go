package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Both parse error kinds are poison: callers never retry them in place.
var (
	// ErrMalformedPayload means the bytes are not structurally valid JSON.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrSchemaViolation means valid JSON that does not match any known
	// event shape: unknown event type, unknown or missing fields, wrong
	// types, out-of-range values.
	ErrSchemaViolation = errors.New("schema violation")
)

// IsPoison reports whether err is a parse failure that must be routed to
// the dead-letter queue instead of being retried.
func IsPoison(err error) bool {
	return errors.Is(err, ErrMalformedPayload) || errors.Is(err, ErrSchemaViolation)
}

// Parse decodes and validates a wire event in two stages: a generic JSON
// decode (failure: ErrMalformedPayload), then a strict decode against the
// variant declared by event_type (failure: ErrSchemaViolation). Unknown
// top-level fields are rejected so producer/consumer schema drift shows up
// immediately instead of being silently ignored.
func Parse(body []byte) (Event, error) {
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrMalformedPayload)
	}

	var probe struct {
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, fmt.Errorf("%w: not a JSON object", ErrSchemaViolation)
	}

	switch probe.EventType {
	case TypeOrderPlaced:
		var ev OrderPlaced
		if err := strictUnmarshal(body, &ev); err != nil {
			return nil, err
		}
		if err := ev.Envelope.validate(); err != nil {
			return nil, err
		}
		if err := ev.Order.Validate(); err != nil {
			return nil, fmt.Errorf("%w: order: %s", ErrSchemaViolation, err)
		}
		return &ev, nil

	case TypeInventoryReserved:
		var ev InventoryReserved
		if err := strictUnmarshal(body, &ev); err != nil {
			return nil, err
		}
		if err := ev.Envelope.validate(); err != nil {
			return nil, err
		}
		if ev.OrderID == "" {
			return nil, fmt.Errorf("%w: order_id required", ErrSchemaViolation)
		}
		return &ev, nil

	case TypeInventoryFailed:
		var ev InventoryFailed
		if err := strictUnmarshal(body, &ev); err != nil {
			return nil, err
		}
		if err := ev.Envelope.validate(); err != nil {
			return nil, err
		}
		if ev.OrderID == "" {
			return nil, fmt.Errorf("%w: order_id required", ErrSchemaViolation)
		}
		if ev.Reason == "" {
			return nil, fmt.Errorf("%w: reason required", ErrSchemaViolation)
		}
		return &ev, nil

	case "":
		return nil, fmt.Errorf("%w: event_type required", ErrSchemaViolation)
	default:
		return nil, fmt.Errorf("%w: unknown event_type %q", ErrSchemaViolation, probe.EventType)
	}
}

func strictUnmarshal(body []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %s", ErrSchemaViolation, err)
	}
	return nil
}

func (e Envelope) validate() error {
	if e.EventID == "" {
		return fmt.Errorf("%w: event_id required", ErrSchemaViolation)
	}
	if e.CreatedAt == "" {
		return fmt.Errorf("%w: created_at required", ErrSchemaViolation)
	}
	return nil
}
