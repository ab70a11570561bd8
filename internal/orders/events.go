package orders

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/ariefcatur/order-lifecycle/internal/kafka"
)

const (
	EventOrderCreated   = "OrderCreated"
	EventOrderConfirmed = "OrderConfirmed"
	EventOrderCanceled  = "OrderCanceled"
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

type ItemQty struct {
	ProductID int64 `json:"product_id"`
	Qty       int   `json:"qty"`
}

// OrderEventPayload is shared by the three lifecycle events.
type OrderEventPayload struct {
	OrderID    int64     `json:"order_id"`
	CustomerID int64     `json:"customer_id"`
	Status     Status    `json:"status"`
	TotalCents int64     `json:"total_cents"`
	Items      []ItemQty `json:"items"`
}

func payloadFor(o *Order) OrderEventPayload {
	items := make([]ItemQty, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, ItemQty{ProductID: it.ProductID, Qty: it.Qty})
	}
	return OrderEventPayload{
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		Status:     o.Status,
		TotalCents: o.TotalCents,
		Items:      items,
	}
}

// Publisher sends one already-encoded event. Implementations must not block
// the caller on broker I/O.
type Publisher interface {
	Publish(topic string, key, value []byte, headers ...kafkago.Header)
}

func newEnvelope(eventType, producer, traceID string, at time.Time, o *Order) Envelope {
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    at,
		Producer:      producer,
		TraceID:       traceID,
		CorrelationID: strconv.FormatInt(o.ID, 10),
		Payload:       kafkax.MustMarshal(payloadFor(o)),
	}
}
