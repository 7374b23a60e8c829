package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes counters and histograms for booking and calendar flows.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	transitions  *prometheus.CounterVec
	syncTotal    *prometheus.CounterVec
	syncDuration prometheus.Histogram
	syncedEvents prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scheduler",
			Subsystem: "booking",
			Name:      "transitions_total",
			Help:      "Reservation lifecycle operations by outcome",
		}, []string{"operation", "outcome"}),
		syncTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scheduler",
			Subsystem: "calendar",
			Name:      "sync_total",
			Help:      "External calendar sync runs by outcome",
		}, []string{"outcome"}),
		syncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "scheduler",
			Subsystem: "calendar",
			Name:      "sync_duration_seconds",
			Help:      "Duration of a single provider calendar sync",
			Buckets:   prometheus.DefBuckets,
		}),
		syncedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scheduler",
			Subsystem: "calendar",
			Name:      "busy_intervals_synced_total",
			Help:      "Busy intervals written to the cache",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.transitions, m.syncTotal, m.syncDuration, m.syncedEvents)
	return m
}

func (m *Metrics) ObserveTransition(operation, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) ObserveSync(outcome string, took time.Duration, intervals int) {
	if m == nil {
		return
	}
	m.syncTotal.WithLabelValues(outcome).Inc()
	m.syncDuration.Observe(took.Seconds())
	if intervals > 0 {
		m.syncedEvents.Add(float64(intervals))
	}
}
