package orders

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventRefundRequested    = "RefundRequested"
	EventRefundSettled      = "RefundSettled"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type OrderCreatedPayload struct {
	OrderID   string `json:"order_id"`
	ProductID string `json:"product_id"`
	BuyerID   string `json:"buyer_id"`
	Quantity  int    `json:"quantity"`
	FromStock bool   `json:"from_stock"`
	Total     string `json:"total"`
}

type OrderStatusChangedPayload struct {
	OrderID string `json:"order_id"`
	From    Status `json:"from"`
	To      Status `json:"to"`
}

type RefundRequestedPayload struct {
	RefundID       string `json:"refund_id"`
	OrderID        string `json:"order_id"`
	BuyerID        string `json:"buyer_id"`
	OriginalAmount string `json:"original_amount"`
	ServiceFee     string `json:"service_fee"`
	RefundAmount   string `json:"refund_amount"`
}

type RefundSettledPayload struct {
	RefundID string       `json:"refund_id"`
	OrderID  string       `json:"order_id"`
	BuyerID  string       `json:"buyer_id"`
	Status   RefundStatus `json:"status"`
	Reason   string       `json:"reason,omitempty"`
}

// Publisher matches kafka.Producer; the lifecycle never waits on delivery.
type Publisher interface {
	Publish(topic string, key, value []byte, headers ...kafkago.Header)
}

// PublishEvent wraps payload in a v1 envelope and hands it to p. A nil
// publisher drops the event.
func PublishEvent(p Publisher, producer, topic, eventType, orderID, traceID string, payload any) error {
	if p == nil {
		return nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	ev, err := json.Marshal(Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		TraceID:       traceID,
		CorrelationID: orderID,
		Payload:       body,
	})
	if err != nil {
		return fmt.Errorf("encode %s envelope: %w", eventType, err)
	}
	p.Publish(topic, PartitionKey(orderID), ev,
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
	return nil
}
