// Package metrics exposes Prometheus instrumentation for the inventory engine.
// A nil *Metrics is valid and records nothing, so services can run without it.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Operation labels.
const (
	OpCheckout = "checkout"
	OpFulfill  = "fulfill"
	OpCancel   = "cancel"
	OpStockIn  = "stock_in"
	OpExpire   = "expire"
)

type Metrics struct {
	Operations          *prometheus.CounterVec
	OperationDuration   *prometheus.HistogramVec
	UnitsDepleted       *prometheus.CounterVec
	ReceiptJobs         *prometheus.CounterVec
	CircuitBreakerState *prometheus.GaugeVec

	gatherer prometheus.Gatherer
}

// New creates all collectors and registers them with reg. Passing a fresh
// prometheus.NewRegistry() keeps tests isolated from the default registry.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clinicrx_operations_total",
			Help: "Engine operations by kind and outcome (ok or error code)",
		}, []string{"op", "outcome"}),
		OperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clinicrx_operation_duration_seconds",
			Help:    "Engine operation duration including lock waits",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5},
		}, []string{"op"}),
		UnitsDepleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clinicrx_units_depleted_total",
			Help: "Medicine units removed from batches",
		}, []string{"kind"}),
		ReceiptJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clinicrx_receipt_jobs_total",
			Help: "Receipt jobs processed by outcome",
		}, []string{"outcome"}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		}, []string{"name"}),
		gatherer: reg,
	}

	reg.MustRegister(
		m.Operations,
		m.OperationDuration,
		m.UnitsDepleted,
		m.ReceiptJobs,
		m.CircuitBreakerState,
	)
	return m
}

// ObserveOperation records one finished operation. outcome is "ok" or an error code.
func (m *Metrics) ObserveOperation(op, outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(op, outcome).Inc()
	m.OperationDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

func (m *Metrics) AddUnitsDepleted(kind string, units int) {
	if m == nil || units <= 0 {
		return
	}
	m.UnitsDepleted.WithLabelValues(kind).Add(float64(units))
}

func (m *Metrics) ReceiptJob(outcome string) {
	if m == nil {
		return
	}
	m.ReceiptJobs.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// Handler serves the registry this Metrics was built with.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
