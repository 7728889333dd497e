package event

import (
	"time"

	"github.com/google/uuid"
)

// Event is a domain event about one supplier.
type Event struct {
	ID            string                 `json:"id"`
	Type          Type                   `json:"type"`
	SupplierName  string                 `json:"supplier_name"`
	Level         int                    `json:"level,omitempty"`
	Payload       map[string]interface{} `json:"payload"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
}

// NewEvent creates an event that starts its own chain: CorrelationID is
// the event's ID.
func NewEvent(eventType Type, supplierName string, level int, payload map[string]interface{}) *Event {
	evt := NewEventWithCorrelation(eventType, supplierName, level, payload, "")
	evt.CorrelationID = evt.ID
	return evt
}

// NewEventWithCorrelation creates an event in an existing chain, such as
// the rejection that follows a recorded approval decision.
func NewEventWithCorrelation(eventType Type, supplierName string, level int, payload map[string]interface{}, correlationID string) *Event {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		SupplierName:  supplierName,
		Level:         level,
		Payload:       payload,
		Timestamp:     time.Now(),
		CorrelationID: correlationID,
	}
}

// WithPayload returns a copy of the event with key set.
func (e *Event) WithPayload(key string, value interface{}) *Event {
	payload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		payload[k] = v
	}
	payload[key] = value

	cp := *e
	cp.Payload = payload
	return &cp
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if val, ok := e.Payload[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// GetPayloadInt retrieves an integer value from the payload
func (e *Event) GetPayloadInt(key string) int64 {
	if val, ok := e.Payload[key]; ok {
		switch v := val.(type) {
		case int64:
			return v
		case int:
			return int64(v)
		case float64:
			return int64(v)
		}
	}
	return 0
}
