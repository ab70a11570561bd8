package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ariefcatur/order-lifecycle/internal/customers"
	"github.com/ariefcatur/order-lifecycle/internal/httpclient"
	"github.com/ariefcatur/order-lifecycle/internal/orders"
)

const idempotencyHeader = "X-Idempotency-Key"

// state is what one run's steps hand to each other.
type state struct {
	req       Request
	customer  json.RawMessage
	orderID   int64
	confirmed json.RawMessage
}

func (s *state) keyHeader() http.Header {
	return http.Header{idempotencyHeader: []string{s.req.IdempotencyKey}}
}

type validateCustomerStep struct {
	client *httpclient.Client
	st     *state
}

func (s *validateCustomerStep) Name() string { return "validate_customer" }

func (s *validateCustomerStep) Execute(ctx context.Context) error {
	body, err := s.client.Get(ctx, customers.Path(s.st.req.CustomerID), nil)
	if err != nil {
		return err
	}
	s.st.customer = body
	return nil
}

type createOrderStep struct {
	client *httpclient.Client
	st     *state
}

func (s *createOrderStep) Name() string { return "create_order" }

func (s *createOrderStep) Execute(ctx context.Context) error {
	body, err := s.client.PostJSON(ctx, "/orders",
		orders.CreateOrderInput{CustomerID: s.st.req.CustomerID, Items: s.st.req.Items}, s.st.keyHeader())
	if err != nil {
		return err
	}
	// On a retried run this is the stored confirm response; its id is the
	// same order.
	var o struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(body, &o); err != nil {
		return fmt.Errorf("decode created order: %w", err)
	}
	if o.ID == 0 {
		return errors.New("created order has no id")
	}
	s.st.orderID = o.ID
	return nil
}

type confirmOrderStep struct {
	client *httpclient.Client
	st     *state
}

func (s *confirmOrderStep) Name() string { return "confirm_order" }

func (s *confirmOrderStep) Execute(ctx context.Context) error {
	body, err := s.client.Do(ctx, http.MethodPost, fmt.Sprintf("/orders/%d/confirm", s.st.orderID), nil, s.st.keyHeader())
	if err != nil {
		return err
	}
	s.st.confirmed = body
	return nil
}
