// Package saga sequences validate-customer, create-order and confirm-order
// as one operation over HTTP. Steps commit independently; a failed step
// stops the run and nothing already done is compensated.
package saga

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ariefcatur/order-lifecycle/internal/httpclient"
	"github.com/ariefcatur/order-lifecycle/internal/logging"
	"github.com/ariefcatur/order-lifecycle/internal/metrics"
	"github.com/ariefcatur/order-lifecycle/internal/orders"
)

const defaultCorrelationID = "N/A"

// ErrMissingFields rejects a request before any downstream call.
var ErrMissingFields = errors.New("missing required fields: customer_id, items, idempotency_key")

type Request struct {
	CustomerID     int64              `json:"customer_id"`
	Items          []orders.ItemInput `json:"items"`
	IdempotencyKey string             `json:"idempotency_key"`
	CorrelationID  string             `json:"correlation_id"`
}

func (r Request) Validate() error {
	if r.CustomerID == 0 || len(r.Items) == 0 || r.IdempotencyKey == "" {
		return ErrMissingFields
	}
	return nil
}

type Result struct {
	Success       bool   `json:"success"`
	CorrelationID string `json:"correlationId"`
	Data          Data   `json:"data"`
}

// Data holds the downstream bodies as received.
type Data struct {
	Customer json.RawMessage `json:"customer"`
	Order    json.RawMessage `json:"order"`
}

// Step is one unit of work in a run.
type Step interface {
	Name() string
	Execute(ctx context.Context) error
}

type Orchestrator struct {
	customers *httpclient.Client
	orders    *httpclient.Client
	metrics   *metrics.Metrics
}

func NewOrchestrator(customers, orders *httpclient.Client, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{customers: customers, orders: orders, metrics: m}
}

// Run executes the steps in order. The first failing step's error is
// returned unchanged, so a *httpclient.StatusError keeps the downstream
// status and body.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}

	st := &state{req: req}
	steps := []Step{
		&validateCustomerStep{client: o.customers, st: st},
		&createOrderStep{client: o.orders, st: st},
		&confirmOrderStep{client: o.orders, st: st},
	}

	log := logging.FromContext(ctx).With(
		zap.String("idempotency_key", req.IdempotencyKey),
		zap.String("correlation_id", req.CorrelationID),
	)
	for _, step := range steps {
		start := time.Now()
		log.Info("saga step started", zap.String("step", step.Name()))
		if err := step.Execute(ctx); err != nil {
			o.metrics.SagaStep(step.Name(), "failed")
			log.Warn("saga step failed", zap.String("step", step.Name()), zap.Error(err),
				zap.Duration("took", time.Since(start)))
			return Result{}, err
		}
		o.metrics.SagaStep(step.Name(), "ok")
		log.Info("saga step done", zap.String("step", step.Name()), zap.Duration("took", time.Since(start)))
	}

	corr := req.CorrelationID
	if corr == "" {
		corr = defaultCorrelationID
	}
	return Result{
		Success:       true,
		CorrelationID: corr,
		Data:          Data{Customer: st.customer, Order: st.confirmed},
	}, nil
}
