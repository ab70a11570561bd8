package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "orderlifecycle"

// Metrics owns every collector the services export. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	reg *prometheus.Registry

	OrdersCreated    prometheus.Counter
	OrderTransitions *prometheus.CounterVec
	IdempotencyClaim *prometheus.CounterVec
	StaleClaims      prometheus.Gauge
	SagaSteps        *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
	EventsProjected  *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		reg: reg,
		OrdersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "orders_created_total",
			Help: "Orders committed with status CREATED.",
		}),
		OrderTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "orders_transitions_total",
			Help: "Order status transitions applied, by target status.",
		}, []string{"to"}),
		IdempotencyClaim: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "idempotency_claims_total",
			Help: "Idempotency claim attempts by outcome.",
		}, []string{"outcome"}),
		StaleClaims: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "idempotency_stale_claims",
			Help: "PROCESSING claims older than the configured threshold at the last scan.",
		}),
		SagaSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "saga_steps_total",
			Help: "Orchestration saga steps by step and outcome.",
		}, []string{"step", "outcome"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
		EventsProjected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_projected_total",
			Help: "Order lifecycle events handled by the projector.",
		}, []string{"event_type", "outcome"}),
	}
	reg.MustRegister(
		m.OrdersCreated, m.OrderTransitions, m.IdempotencyClaim, m.StaleClaims,
		m.SagaSteps, m.HTTPDuration, m.EventsProjected,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) OrderCreated() {
	if m == nil {
		return
	}
	m.OrdersCreated.Inc()
}

func (m *Metrics) Transition(to string) {
	if m == nil {
		return
	}
	m.OrderTransitions.WithLabelValues(to).Inc()
}

func (m *Metrics) Claim(outcome string) {
	if m == nil {
		return
	}
	m.IdempotencyClaim.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetStaleClaims(n int) {
	if m == nil {
		return
	}
	m.StaleClaims.Set(float64(n))
}

func (m *Metrics) SagaStep(step, outcome string) {
	if m == nil {
		return
	}
	m.SagaSteps.WithLabelValues(step, outcome).Inc()
}

func (m *Metrics) ObserveHTTP(route, method, status string, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPDuration.WithLabelValues(route, method, status).Observe(seconds)
}

func (m *Metrics) Projected(eventType, outcome string) {
	if m == nil {
		return
	}
	m.EventsProjected.WithLabelValues(eventType, outcome).Inc()
}
