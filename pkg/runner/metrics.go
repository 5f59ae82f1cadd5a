package runner

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ethpandaops/cryptoperf/pkg/store"
)

const metricsNamespace = "cryptoperf"

// Metrics exposes trial counters and latency histograms.
type Metrics struct {
	trials   *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates the trial metrics and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		trials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "trials_total",
			Help:      "Trials executed, by algorithm, operation and outcome.",
		}, []string{"algorithm", "operation", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "trial_duration_seconds",
			Help:      "Time spent in the executor per trial.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 12),
		}, []string{"algorithm", "operation"}),
	}

	reg.MustRegister(m.trials, m.duration)

	return m
}

func (m *Metrics) observe(record *store.TestRecord) {
	if m == nil {
		return
	}

	outcome := store.OutcomeSuccess
	if !record.Success {
		outcome = store.OutcomeFailure
	}

	m.trials.WithLabelValues(record.Algorithm, record.Operation, outcome).Inc()
	m.duration.WithLabelValues(record.Algorithm, record.Operation).
		Observe(time.Duration(record.DurationNs).Seconds())
}
