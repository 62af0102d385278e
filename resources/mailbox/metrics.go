package mailbox

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the prometheus collectors a Mailbox updates as messages
// flow through its local inbox. A nil *Metrics is safe to use everywhere
// below; every method guards against it.
type Metrics struct {
	queueDepth *prometheus.GaugeVec
}

// NewMetrics constructs the collectors and, if reg is non-nil, registers
// them.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "distsys",
			Subsystem: "mailbox",
			Name:      "queue_depth",
			Help:      "Pending messages in a mailbox's local inbox, by archetype self id.",
		}, []string{"self"}),
	}
	if reg != nil {
		reg.MustRegister(m.queueDepth)
	}
	return m
}

func (m *Metrics) setQueueDepth(self string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(self).Set(float64(depth))
}
