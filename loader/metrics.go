package loader

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics provides Prometheus metrics for remote loading.
// All methods are nil-safe: calls on a nil *Metrics are no-ops.
type Metrics struct {
	// FetchesTotal counts network fetches of entry artifacts, labeled by
	// result ("ok", "error").
	FetchesTotal *prometheus.CounterVec

	// CacheHitsTotal counts loads served from the artifact cache.
	CacheHitsTotal prometheus.Counter

	// FailuresTotal counts failed loads, labeled by kind.
	FailuresTotal *prometheus.CounterVec

	// FetchDuration observes fetch latency in seconds.
	FetchDuration prometheus.Histogram
}

// NewMetrics creates loader metrics and registers them with reg. If reg is
// nil, metrics are created but not registered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mfshell",
			Subsystem: "loader",
			Name:      "fetches_total",
			Help:      "Total number of remote entry artifact fetches",
		}, []string{"result"}),
		CacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mfshell",
			Subsystem: "loader",
			Name:      "cache_hits_total",
			Help:      "Total number of loads served from the artifact cache",
		}),
		FailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mfshell",
			Subsystem: "loader",
			Name:      "failures_total",
			Help:      "Total number of failed loads by kind",
		}, []string{"kind"}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mfshell",
			Subsystem: "loader",
			Name:      "fetch_duration_seconds",
			Help:      "Latency of remote entry artifact fetches",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	if reg != nil {
		collectors := []prometheus.Collector{
			m.FetchesTotal,
			m.CacheHitsTotal,
			m.FailuresTotal,
			m.FetchDuration,
		}
		for _, c := range collectors {
			if err := reg.Register(c); err != nil {
				if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
					panic(err)
				}
			}
		}
	}

	return m
}

func (m *Metrics) recordFetch(start time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.FetchesTotal.WithLabelValues(result).Inc()
	m.FetchDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) recordCacheHit() {
	if m == nil {
		return
	}
	m.CacheHitsTotal.Inc()
}

func (m *Metrics) recordFailure(err error) {
	if m == nil {
		return
	}
	m.FailuresTotal.WithLabelValues(Kind(err)).Inc()
}
