package bench

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics mirrors the benchmark into Prometheus collectors so a run can be
// exported in textfile-collector format.
type Metrics struct {
	Registry *prometheus.Registry

	duration *prometheus.HistogramVec
	failures *prometheus.CounterVec
	dropped  *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dnstiming_lookup_duration_seconds",
				Help:    "Lookup duration per strategy in seconds",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
			},
			[]string{"strategy"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dnstiming_lookup_failures_total",
				Help: "Total number of failed lookups per strategy",
			},
			[]string{"strategy"},
		),
		dropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dnstiming_lookup_dropped_total",
				Help: "Total number of lookups below the sample threshold",
			},
			[]string{"strategy"},
		),
	}
	m.Registry.MustRegister(m.duration, m.failures, m.dropped)
	return m
}

func (m *Metrics) observe(strategy string, seconds float64) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(strategy).Observe(seconds)
}

func (m *Metrics) fail(strategy string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(strategy).Inc()
}

func (m *Metrics) drop(strategy string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(strategy).Inc()
}

// WriteTextfile writes the registry for node_exporter's textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}
