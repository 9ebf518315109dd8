package payment

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts order lifecycle events. A nil *Metrics records nothing.
type Metrics struct {
	ordersCreated       *prometheus.CounterVec
	captures            *prometheus.CounterVec
	transitions         *prometheus.CounterVec
	licensesIssued      *prometheus.CounterVec
	persistenceFailures prometheus.Counter
}

// NewMetrics registers the payment collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ordersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "licensekit",
			Subsystem: "payment",
			Name:      "orders_created_total",
			Help:      "Orders created at the provider by plan.",
		}, []string{"plan"}),
		captures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "licensekit",
			Subsystem: "payment",
			Name:      "captures_total",
			Help:      "Capture attempts by outcome.",
		}, []string{"outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "licensekit",
			Subsystem: "payment",
			Name:      "order_transitions_total",
			Help:      "Order state transitions.",
		}, []string{"from", "to"}),
		licensesIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "licensekit",
			Subsystem: "payment",
			Name:      "licenses_issued_total",
			Help:      "Licenses issued from captured orders by plan.",
		}, []string{"plan"}),
		persistenceFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "licensekit",
			Subsystem: "payment",
			Name:      "license_persistence_failures_total",
			Help:      "Captured orders whose license could not be written.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.ordersCreated, m.captures, m.transitions, m.licensesIssued, m.persistenceFailures)
	}
	return m
}

func (m *Metrics) orderCreated(plan string) {
	if m != nil {
		m.ordersCreated.WithLabelValues(plan).Inc()
	}
}

func (m *Metrics) capture(outcome string) {
	if m != nil {
		m.captures.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) transition(from, to State) {
	if m != nil {
		m.transitions.WithLabelValues(string(from), string(to)).Inc()
	}
}

func (m *Metrics) licenseIssued(plan string) {
	if m != nil {
		m.licensesIssued.WithLabelValues(plan).Inc()
	}
}

func (m *Metrics) persistenceFailure() {
	if m != nil {
		m.persistenceFailures.Inc()
	}
}
