package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated = "OrderCreated"
	EventOrderPaid    = "OrderPaid"
	EventOrderExpired = "OrderExpired"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // salah satu const di atas
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g., "order-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // biasanya order_id
	Payload       json.RawMessage `json:"payload"`                  // payload spesifik
}

// ---- Payload tipe per event ----

type ItemQty struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type ItemPrice struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
	Price     int64  `json:"price"`
}

type OrderCreatedPayload struct {
	OrderID    string      `json:"order_id"`
	ExternalID string      `json:"external_id"`
	UserID     string      `json:"user_id"`
	Items      []ItemPrice `json:"items"`
	Total      int64       `json:"total"`
	InvoiceURL string      `json:"invoice_url"`
}

// OrderSettledPayload is shared by OrderPaid and OrderExpired.
type OrderSettledPayload struct {
	OrderID       string    `json:"order_id"`
	ExternalID    string    `json:"external_id"`
	UserID        string    `json:"user_id"`
	Status        Status    `json:"status"`
	GatewayStatus string    `json:"gateway_status"`
	Restocked     []ItemQty `json:"restocked,omitempty"` // hanya untuk EXPIRED
	At            time.Time `json:"at"`
}

// Event is an outbox row waiting to be relayed to Kafka.
type Event struct {
	ID        int64
	EventID   string
	Topic     string
	Key       string
	Payload   json.RawMessage
	CreatedAt time.Time
	SentAt    *time.Time
}

func NewEnvelope(eventID, eventType, producer, correlationID string, payload []byte) Envelope {
	return Envelope{
		EventID:       eventID,
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: correlationID,
		Payload:       payload,
	}
}
