package router

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/najoast/mfshell/loader"
)

// Metrics provides Prometheus metrics for navigations.
// All methods are nil-safe: calls on a nil *Metrics are no-ops.
type Metrics struct {
	// NavigationsTotal counts navigations, labeled by result.
	// Result values: "ok", "reused", "failed", "stale".
	NavigationsTotal *prometheus.CounterVec

	// FailuresTotal counts failed navigations, labeled by failure kind.
	FailuresTotal *prometheus.CounterVec

	// Duration observes navigation latency in seconds.
	Duration prometheus.Histogram
}

// NewMetrics creates navigation metrics and registers them with reg. If
// reg is nil, metrics are created but not registered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		NavigationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mfshell",
			Subsystem: "router",
			Name:      "navigations_total",
			Help:      "Total number of navigations by result",
		}, []string{"result"}),
		FailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mfshell",
			Subsystem: "router",
			Name:      "failures_total",
			Help:      "Total number of failed navigations by kind",
		}, []string{"kind"}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mfshell",
			Subsystem: "router",
			Name:      "navigation_duration_seconds",
			Help:      "Latency of navigations",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{m.NavigationsTotal, m.FailuresTotal, m.Duration} {
			if err := reg.Register(c); err != nil {
				if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
					panic(err)
				}
			}
		}
	}

	return m
}

func (m *Metrics) recordNavigation(result string, start time.Time) {
	if m == nil {
		return
	}
	m.NavigationsTotal.WithLabelValues(result).Inc()
	m.Duration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) recordFailure(err error) {
	if m == nil {
		return
	}
	m.FailuresTotal.WithLabelValues(loader.Kind(err)).Inc()
}
