package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Checks       *prometheus.CounterVec
	StoreErrors  prometheus.Counter
	Degraded     prometheus.Gauge
	BucketsSwept prometheus.Counter
}

// New registers ratelimit metrics on reg. Tests pass a fresh registry.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Checks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "folio_ratelimit_checks_total",
			Help: "Rate limit checks by policy and result",
		}, []string{"policy", "result"}),
		StoreErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "folio_ratelimit_store_errors_total",
			Help: "Primary bucket store errors",
		}),
		Degraded: f.NewGauge(prometheus.GaugeOpts{
			Name: "folio_ratelimit_degraded",
			Help: "1 while checks are served by the in-memory fallback",
		}),
		BucketsSwept: f.NewCounter(prometheus.CounterOpts{
			Name: "folio_ratelimit_buckets_swept_total",
			Help: "Expired in-memory buckets evicted by the sweeper",
		}),
	}
}

func (m *Metrics) RecordCheck(policy string, allowed bool) {
	result := "allowed"
	if !allowed {
		result = "rejected"
	}
	m.Checks.WithLabelValues(policy, result).Inc()
}

func (m *Metrics) IncrementStoreErrors() {
	m.StoreErrors.Inc()
}

func (m *Metrics) SetDegraded(degraded bool) {
	if degraded {
		m.Degraded.Set(1)
		return
	}
	m.Degraded.Set(0)
}

func (m *Metrics) AddSwept(n int) {
	m.BucketsSwept.Add(float64(n))
}
