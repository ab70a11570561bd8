package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ariefcatur/order-lifecycle/internal/apperr"
	"github.com/ariefcatur/order-lifecycle/internal/idempotency"
	kafkax "github.com/ariefcatur/order-lifecycle/internal/kafka"
	"github.com/ariefcatur/order-lifecycle/internal/logging"
	"github.com/ariefcatur/order-lifecycle/internal/metrics"
)

// Store is the order and stock storage the service runs against. *Repo is
// the Postgres implementation.
type Store interface {
	CreateOrderTx(ctx context.Context, customerID int64, items []ItemInput) (*Order, error)
	FindByID(ctx context.Context, id int64) (*Order, error)
	UpdateStatus(ctx context.Context, id int64, from, to Status) (bool, error)
	CancelWithRestock(ctx context.Context, id int64, from Status, items []OrderItem) (*Order, error)
	ListProducts(ctx context.Context, f ProductFilter) ([]Product, error)
}

type CustomerChecker interface {
	AssertCustomerExists(ctx context.Context, customerID int64) error
}

// Idempotency is the claim protocol guarding confirm. *idempotency.Coordinator
// implements it.
type Idempotency interface {
	TryClaim(ctx context.Context, key, targetType string, targetID int64) (idempotency.Claim, error)
	Lookup(ctx context.Context, key string) ([]byte, bool, error)
	Complete(ctx context.Context, key string, body []byte) error
	Release(ctx context.Context, key string) error
}

// Reply carries the order together with the exact bytes to send back. On a
// replay Order is nil and Body is the stored response.
type Reply struct {
	Order    *Order
	Body     json.RawMessage
	Replayed bool
}

type Service struct {
	store     Store
	customers CustomerChecker
	idem      Idempotency
	events    Publisher
	statuses  StatusCache
	metrics   *metrics.Metrics
	producer  string
	now       func() time.Time
}

type ServiceOption func(*Service)

func WithPublisher(p Publisher, producer string) ServiceOption {
	return func(s *Service) { s.events, s.producer = p, producer }
}

func WithServiceMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the clock used to stamp side effects when the store
// did not report a transition time.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, customers CustomerChecker, idem Idempotency, opts ...ServiceOption) *Service {
	s := &Service{store: store, customers: customers, idem: idem, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func validateCreate(in CreateOrderInput) error {
	if in.CustomerID <= 0 {
		return apperr.Validation("customer_id must be a positive integer")
	}
	if len(in.Items) == 0 {
		return apperr.Validation("order must contain at least one item")
	}
	for i, it := range in.Items {
		if it.ProductID <= 0 {
			return apperr.Validation("items[%d].product_id must be a positive integer", i)
		}
		if it.Qty <= 0 {
			return apperr.Validation("items[%d].qty must be a positive integer", i)
		}
	}
	return nil
}

// Create validates the customer and then creates the order with its stock
// decrements in one transaction.
//
// A key whose confirm already completed short-circuits with the stored body.
// The key is only read here, never claimed: two concurrent creates sharing
// a key can both create an order.
func (s *Service) Create(ctx context.Context, key string, in CreateOrderInput) (Reply, error) {
	if err := validateCreate(in); err != nil {
		return Reply{}, err
	}

	if key = strings.TrimSpace(key); key != "" {
		body, ok, err := s.idem.Lookup(ctx, key)
		if err != nil {
			return Reply{}, err
		}
		if ok {
			return Reply{Body: body, Replayed: true}, nil
		}
	}

	if err := s.customers.AssertCustomerExists(ctx, in.CustomerID); err != nil {
		return Reply{}, err
	}

	o, err := s.store.CreateOrderTx(ctx, in.CustomerID, in.Items)
	if err != nil {
		return Reply{}, err
	}
	body, err := json.Marshal(o)
	if err != nil {
		return Reply{}, fmt.Errorf("encode order: %w", err)
	}

	s.metrics.OrderCreated()
	s.transitioned(ctx, EventOrderCreated, o)
	logging.FromContext(ctx).Info("order created",
		zap.Int64("order_id", o.ID), zap.Int64("customer_id", o.CustomerID), zap.Int64("total_cents", o.TotalCents))
	return Reply{Order: o, Body: body}, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Order, error) {
	o, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, apperr.ErrOrderNotFound
	}
	return o, nil
}

// Confirm moves a CREATED order to CONFIRMED exactly once per key. Repeating
// the call with the same key returns the first response byte for byte.
func (s *Service) Confirm(ctx context.Context, id int64, key string) (Reply, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Reply{}, apperr.ErrIdempotencyKeyRequired
	}

	claim, err := s.idem.TryClaim(ctx, key, idempotency.TargetOrder, id)
	if err != nil {
		return Reply{}, err
	}
	if claim.Replayed {
		return Reply{Body: claim.Body, Replayed: true}, nil
	}

	reply, err := s.confirmClaimed(ctx, id, key)
	if err != nil {
		if rerr := s.idem.Release(ctx, key); rerr != nil {
			logging.FromContext(ctx).Error("release idempotency key", zap.String("key", key), zap.Error(rerr))
		}
		return Reply{}, err
	}
	return reply, nil
}

func (s *Service) confirmClaimed(ctx context.Context, id int64, key string) (Reply, error) {
	o, err := s.Get(ctx, id)
	if err != nil {
		return Reply{}, err
	}
	if err := CheckConfirm(o); err != nil {
		return Reply{}, err
	}

	ok, err := s.store.UpdateStatus(ctx, id, StatusCreated, StatusConfirmed)
	if err != nil {
		return Reply{}, fmt.Errorf("confirm order %d: %w", id, err)
	}
	if !ok {
		return Reply{}, apperr.ErrInvalidOrderStatus
	}

	o, err = s.Get(ctx, id)
	if err != nil {
		return Reply{}, err
	}
	body, err := json.Marshal(o)
	if err != nil {
		return Reply{}, fmt.Errorf("encode order: %w", err)
	}
	if err := s.idem.Complete(ctx, key, body); err != nil {
		return Reply{}, err
	}

	s.metrics.Transition(string(StatusConfirmed))
	s.transitioned(ctx, EventOrderConfirmed, o)
	logging.FromContext(ctx).Info("order confirmed", zap.Int64("order_id", id), zap.String("key", key))
	return Reply{Order: o, Body: body}, nil
}

// Cancel cancels the order and returns its items to stock. A CONFIRMED
// order can only be canceled within CancellationWindow of its creation, as
// measured by the store that stamped created_at.
func (s *Service) Cancel(ctx context.Context, id int64) (*Order, error) {
	o, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	canceled, err := s.store.CancelWithRestock(ctx, id, o.Status, o.Items)
	if err != nil {
		return nil, err
	}

	s.metrics.Transition(string(StatusCanceled))
	s.transitioned(ctx, EventOrderCanceled, canceled)
	logging.FromContext(ctx).Info("order canceled", zap.Int64("order_id", id), zap.String("from", string(o.Status)))
	return canceled, nil
}

// ProductPage is one page of the product listing. NextCursor is nil on the
// last page.
type ProductPage struct {
	Data       []Product  `json:"data"`
	Pagination Pagination `json:"pagination"`
}

type Pagination struct {
	NextCursor *int64 `json:"nextCursor"`
	Limit      int    `json:"limit"`
}

func (s *Service) ListProducts(ctx context.Context, f ProductFilter) (ProductPage, error) {
	f = f.normalized()
	ps, err := s.store.ListProducts(ctx, f)
	if err != nil {
		return ProductPage{}, err
	}
	page := ProductPage{Data: ps, Pagination: Pagination{Limit: f.Limit}}
	if len(ps) == f.Limit {
		next := ps[len(ps)-1].ID
		page.Pagination.NextCursor = &next
	}
	return page, nil
}

// transitioned runs the post-commit side effects. Both are best effort and
// never change the caller's outcome. The cache entry and the event carry the
// store's timestamp for the transition so every cache writer orders by the
// same clock.
func (s *Service) transitioned(ctx context.Context, eventType string, o *Order) {
	at := o.UpdatedAt.UTC()
	if at.IsZero() {
		at = s.now().UTC()
	}
	s.cacheStatus(ctx, StatusView{OrderID: o.ID, Status: o.Status, UpdatedAt: at})
	s.publish(ctx, eventType, at, o)
}

func (s *Service) publish(ctx context.Context, eventType string, at time.Time, o *Order) {
	if s.events == nil {
		return
	}
	topic, ok := topicByEvent[eventType]
	if !ok {
		logging.FromContext(ctx).Error("no topic for event", zap.String("event_type", eventType))
		return
	}
	ev := newEnvelope(eventType, s.producer, middleware.GetReqID(ctx), at, o)
	s.events.Publish(topic, PartitionKey(o.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
