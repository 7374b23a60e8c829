package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveTransition(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveTransition("create", "ok")
	m.ObserveTransition("create", "ok")
	m.ObserveTransition("create", "CONFLICT")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.transitions.WithLabelValues("create", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("create", "CONFLICT")))
}

func TestObserveSync(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveSync("ok", 150*time.Millisecond, 4)
	m.ObserveSync("error", time.Second, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.syncTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.syncTotal.WithLabelValues("error")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.syncedEvents))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveTransition("create", "ok")
	m.ObserveSync("ok", time.Second, 1)
}
