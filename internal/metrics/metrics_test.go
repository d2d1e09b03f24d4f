package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"clinicrx/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveOperation_CountsByOutcome(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	m.ObserveOperation(metrics.OpCheckout, "ok", time.Now())
	m.ObserveOperation(metrics.OpCheckout, "ok", time.Now())
	m.ObserveOperation(metrics.OpCheckout, "INSUFFICIENT_STOCK", time.Now())

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Operations.WithLabelValues(metrics.OpCheckout, "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues(metrics.OpCheckout, "INSUFFICIENT_STOCK")))
}

func TestAddUnitsDepleted_IgnoresNonPositive(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	m.AddUnitsDepleted("sale", 7)
	m.AddUnitsDepleted("sale", 0)
	m.AddUnitsDepleted("sale", -3)

	assert.Equal(t, 7.0, testutil.ToFloat64(m.UnitsDepleted.WithLabelValues("sale")))
}

func TestNilMetrics_IsNoop(t *testing.T) {
	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.ObserveOperation(metrics.OpFulfill, "ok", time.Now())
		m.AddUnitsDepleted("prescription", 1)
		m.ReceiptJob("ok")
		m.SetBreakerState("smtp", 2)
	})
}

func TestHandler_ExposesRegisteredCollectors(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	m.ReceiptJob("generated")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `clinicrx_receipt_jobs_total{outcome="generated"} 1`)
}
