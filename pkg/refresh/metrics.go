package refresh

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeApplied   = "applied"
	outcomeStale     = "stale"
	outcomeSignedOut = "signed_out"
	outcomeError     = "error"
)

// Metrics records refresh outcomes. A nil *Metrics records nothing.
// One Metrics value is meant to be shared by every scheduler of a process.
type Metrics struct {
	refreshes *prometheus.CounterVec
	duration  prometheus.Histogram
}

// NewMetrics registers the refresh collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "licensekit",
			Subsystem: "refresh",
			Name:      "refreshes_total",
			Help:      "Entitlement fetches by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "licensekit",
			Subsystem: "refresh",
			Name:      "fetch_duration_seconds",
			Help:      "Time spent fetching an entitlement.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.refreshes, m.duration)
	}
	return m
}

func (m *Metrics) observe(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome).Inc()
	m.duration.Observe(took.Seconds())
}
