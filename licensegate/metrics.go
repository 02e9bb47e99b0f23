package licensegate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"
)

const (
	outcomeGranted = "granted"
	outcomeDenied  = "denied"
	outcomeFailed  = "failed"
)

// Metrics holds Prometheus instrumentation for checkouts. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	checkouts       *prometheus.CounterVec
	checkinFailures prometheus.Counter
	cacheHits       prometheus.Counter
	breakerState    *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		checkouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "licensegate",
				Name:      "checkout_total",
				Help:      "Remote license checkouts by outcome",
			},
			[]string{"outcome"},
		),
		checkinFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "licensegate",
				Name:      "checkin_failures_total",
				Help:      "License check-ins that failed after a checkout",
			},
		),
		cacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "licensegate",
				Name:      "cache_hits_total",
				Help:      "Checkout lookups served from the cache",
			},
		),
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "licensegate",
				Name:      "breaker_state",
				Help:      "License authority circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.checkouts, m.checkinFailures, m.cacheHits, m.breakerState} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) checkout(outcome string) {
	if m == nil {
		return
	}
	m.checkouts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) checkinFailed() {
	if m == nil {
		return
	}
	m.checkinFailures.Inc()
}

func (m *Metrics) cacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

func (m *Metrics) breakerChanged(name string, to gobreaker.State) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(name).Set(float64(to))
}
