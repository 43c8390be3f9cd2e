package event

import (
	"time"

	"github.com/google/uuid"
)

// Event represents a domain event raised by a completion session
type Event struct {
	ID             string                 `json:"id"`
	Type           Type                   `json:"type"`
	ServiceOrderID int64                  `json:"service_order_id"`
	SessionID      string                 `json:"session_id"`
	Payload        map[string]interface{} `json:"payload"`
	Timestamp      time.Time              `json:"timestamp"`
	CorrelationID  string                 `json:"correlation_id"`
}

// NewEvent creates a domain event. The session ID doubles as correlation ID so every
// event of one wizard run can be traced together.
func NewEvent(eventType Type, serviceOrderID int64, sessionID string, payload map[string]interface{}) *Event {
	correlationID := sessionID
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	return &Event{
		ID:             uuid.NewString(),
		Type:           eventType,
		ServiceOrderID: serviceOrderID,
		SessionID:      sessionID,
		Payload:        payload,
		Timestamp:      time.Now(),
		CorrelationID:  correlationID,
	}
}

// Text reads a string payload value, or "" when absent
func (e *Event) Text(key string) string {
	if s, ok := e.Payload[key].(string); ok {
		return s
	}
	return ""
}

// Int64 reads an integer payload value. Numbers that went through JSON arrive
// as float64 and are truncated.
func (e *Event) Int64(key string) (int64, bool) {
	switch v := e.Payload[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	}
	return 0, false
}

// Amount reads a monetary payload value
func (e *Event) Amount(key string) (float64, bool) {
	switch v := e.Payload[key].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	}
	return 0, false
}
