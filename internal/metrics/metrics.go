// Package metrics exposes Prometheus instruments for the authenticated
// client. A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "connectly_client"

// Refresh outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	// OutcomeReused means another exchange had already replaced the stale
	// access token, so no network call was made.
	OutcomeReused = "reused"
)

type Metrics struct {
	refreshes *prometheus.CounterVec
	replays   prometheus.Counter
	waiters   prometheus.Gauge
}

// New creates the instruments and registers them on reg when reg is not nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_total",
			Help:      "Refresh exchanges by outcome.",
		}, []string{"outcome"}),
		replays: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replay_total",
			Help:      "Requests replayed after a successful refresh.",
		}),
		waiters: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "refresh_waiters",
			Help:      "Callers currently waiting on a refresh exchange.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.refreshes, m.replays, m.waiters)
	}
	return m
}

func (m *Metrics) Refresh(outcome string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Replayed() {
	if m == nil {
		return
	}
	m.replays.Inc()
}

func (m *Metrics) SetWaiters(n int64) {
	if m == nil {
		return
	}
	m.waiters.Set(float64(n))
}
