package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "rental"

// IntakeMetrics exposes counters/histograms for dialogue turns.
type IntakeMetrics struct {
	turnsTotal         *prometheus.CounterVec
	completionsTotal   prometheus.Counter
	extractionFailures prometheus.Counter
	observerFailures   *prometheus.CounterVec
	providerLatency    *prometheus.HistogramVec
}

func NewIntakeMetrics(reg prometheus.Registerer) *IntakeMetrics {
	m := &IntakeMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "turns_total",
			Help:      "Dialogue turns processed by outcome",
		}, []string{"outcome"}),
		completionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "completions_total",
			Help:      "Dialogues that reached the completion marker",
		}),
		extractionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "extraction_failures_total",
			Help:      "Extraction calls that produced no parseable JSON object",
		}),
		observerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "observer_failures_total",
			Help:      "Observer callbacks that returned an error or panicked",
		}, []string{"kind"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "provider_latency_seconds",
			Help:      "Latency of completion provider calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"call"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.completionsTotal, m.extractionFailures, m.observerFailures, m.providerLatency)
	return m
}

func (m *IntakeMetrics) ObserveTurn(outcome string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(outcome).Inc()
}

func (m *IntakeMetrics) ObserveCompletion() {
	if m == nil {
		return
	}
	m.completionsTotal.Inc()
}

func (m *IntakeMetrics) ObserveExtractionFailure() {
	if m == nil {
		return
	}
	m.extractionFailures.Inc()
}

func (m *IntakeMetrics) ObserveObserverFailure(kind string) {
	if m == nil {
		return
	}
	m.observerFailures.WithLabelValues(kind).Inc()
}

func (m *IntakeMetrics) ObserveProviderLatency(call string, seconds float64) {
	if m == nil {
		return
	}
	m.providerLatency.WithLabelValues(call).Observe(seconds)
}

// NotifyMetrics counts operator notification deliveries.
type NotifyMetrics struct {
	deliveries *prometheus.CounterVec
}

func NewNotifyMetrics(reg prometheus.Registerer) *NotifyMetrics {
	m := &NotifyMetrics{
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "deliveries_total",
			Help:      "Operator notification sends by status",
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.deliveries)
	return m
}

func (m *NotifyMetrics) ObserveDelivery(status string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(status).Inc()
}
