package failuredetector

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the prometheus collectors a Detector updates as peers flip
// between alive and suspected. A nil *Metrics is safe everywhere below.
type Metrics struct {
	transitions *prometheus.CounterVec
}

// NewMetrics constructs the collectors and, if reg is non-nil, registers
// them.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "distsys",
			Subsystem: "failuredetector",
			Name:      "suspicion_transitions_total",
			Help:      "Peer alive/suspected status flips, by peer and resulting state.",
		}, []string{"peer", "state"}),
	}
	if reg != nil {
		reg.MustRegister(m.transitions)
	}
	return m
}

func (m *Metrics) transition(peer, state string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(peer, state).Inc()
}
