package limits

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mercator-hq/admission/pkg/limits/quota"
	"mercator-hq/admission/pkg/limits/ratelimit"
)

// Metrics contains Prometheus metrics for quota pools and permit gates.
type Metrics struct {
	registry *prometheus.Registry

	// Quota ledger
	takes       *prometheus.CounterVec
	resolutions *prometheus.CounterVec
	remaining   *prometheus.GaugeVec
	holdTime    *prometheus.HistogramVec

	// Permit gate
	permits *prometheus.CounterVec
	refills *prometheus.CounterVec
	parked  *prometheus.GaugeVec
}

// NewMetrics registers the collectors on reg. A nil reg uses a fresh
// registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		takes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admission_quota_takes_total",
				Help: "Total number of slot take attempts by result",
			},
			[]string{"pool", "result"},
		),

		resolutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admission_quota_resolutions_total",
				Help: "Total number of pending slots resolved by outcome",
			},
			[]string{"pool", "outcome"},
		),

		remaining: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "admission_quota_remaining",
				Help: "Current number of slots remaining in the pool",
			},
			[]string{"pool"},
		),

		holdTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "admission_quota_hold_duration_seconds",
				Help:    "Time a slot stayed pending before it was resolved",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16), // 100µs to ~3s
			},
			[]string{"pool", "outcome"},
		),

		permits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admission_ratelimit_permits_total",
				Help: "Total number of permit requests by result",
			},
			[]string{"pool", "result"},
		),

		refills: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admission_ratelimit_refills_total",
				Help: "Total number of permit gate refills",
			},
			[]string{"pool"},
		),

		parked: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "admission_ratelimit_parked_waiters",
				Help: "Current number of callers parked waiting for a refill",
			},
			[]string{"pool"},
		),
	}
}

// Registry returns the Prometheus registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ForPool returns the observer hook for one pool.
func (m *Metrics) ForPool(pool string) *PoolMetrics {
	return &PoolMetrics{
		takes:       m.takes.MustCurryWith(prometheus.Labels{"pool": pool}),
		resolutions: m.resolutions.MustCurryWith(prometheus.Labels{"pool": pool}),
		holdTime:    m.holdTime.MustCurryWith(prometheus.Labels{"pool": pool}),
		permits:     m.permits.MustCurryWith(prometheus.Labels{"pool": pool}),
		remaining:   m.remaining.WithLabelValues(pool),
		refills:     m.refills.WithLabelValues(pool),
		parked:      m.parked.WithLabelValues(pool),
	}
}

// PoolMetrics records one pool's activity. It implements both quota.Observer
// and ratelimit.Observer.
type PoolMetrics struct {
	takes       *prometheus.CounterVec
	resolutions *prometheus.CounterVec
	holdTime    prometheus.ObserverVec
	permits     *prometheus.CounterVec
	remaining   prometheus.Gauge
	refills     prometheus.Counter
	parked      prometheus.Gauge
}

var (
	_ quota.Observer     = (*PoolMetrics)(nil)
	_ ratelimit.Observer = (*PoolMetrics)(nil)
)

// Observe implements quota.Observer.
func (p *PoolMetrics) Observe(ev quota.Event) {
	switch ev.Kind {
	case quota.EventTaken:
		p.takes.WithLabelValues("taken").Inc()
	case quota.EventRejected:
		p.takes.WithLabelValues(string(ev.Reason)).Inc()
	case quota.EventConfirmed, quota.EventCancelled, quota.EventExpired:
		outcome := string(ev.Kind)
		p.resolutions.WithLabelValues(outcome).Inc()
		p.holdTime.WithLabelValues(outcome).Observe(ev.Held.Seconds())
	}
	p.remaining.Set(float64(ev.Remaining))
}

func (p *PoolMetrics) setRemaining(n int64) {
	p.remaining.Set(float64(n))
}

// PermitDecision implements ratelimit.Observer.
func (p *PoolMetrics) PermitDecision(granted bool) {
	result := "granted"
	if !granted {
		result = "denied"
	}
	p.permits.WithLabelValues(result).Inc()
}

// Refilled implements ratelimit.Observer.
func (p *PoolMetrics) Refilled(primary, secondary0, secondary1 int) {
	p.refills.Inc()
}

// Parked implements ratelimit.Observer.
func (p *PoolMetrics) Parked(delta int) {
	p.parked.Add(float64(delta))
}
