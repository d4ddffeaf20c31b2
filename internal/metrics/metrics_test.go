package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestIntakeMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewIntakeMetrics(reg)

	m.ObserveTurn("ok")
	m.ObserveTurn("ok")
	m.ObserveTurn("provider_error")
	m.ObserveCompletion()
	m.ObserveExtractionFailure()
	m.ObserveObserverFailure("completion")
	m.ObserveProviderLatency("reply", 0.4)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.turnsTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.turnsTotal.WithLabelValues("provider_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.completionsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.extractionFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.observerFailures.WithLabelValues("completion")))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var im *IntakeMetrics
	im.ObserveTurn("ok")
	im.ObserveCompletion()
	im.ObserveExtractionFailure()
	im.ObserveObserverFailure("message")
	im.ObserveProviderLatency("reply", 1)

	var nm *NotifyMetrics
	nm.ObserveDelivery("sent")
}

func TestNotifyMetricsCustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewNotifyMetrics(reg)
	m.ObserveDelivery("sent")
	m.ObserveDelivery("failed")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.deliveries.WithLabelValues("sent")))
	count, err := testutil.GatherAndCount(reg, "rental_notify_deliveries_total")
	assert.NoError(t, err)
	assert.Equal(t, 2, count)
}
