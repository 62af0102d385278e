package archetype

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the prometheus collectors the scheduler updates per
// archetype run. NewMetrics always returns a non-nil *Metrics; a nil
// *Metrics (e.g. a Context built without WithMetrics) is also safe to use,
// since every method is a no-op on a nil receiver.
type Metrics struct {
	commits *prometheus.CounterVec
	aborts  *prometheus.CounterVec
	retries *prometheus.CounterVec
}

// NewMetrics constructs the collectors and, if reg is non-nil, registers
// them. Passing a nil registerer is useful in tests that don't want to
// touch the default prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "distsys",
			Subsystem: "archetype",
			Name:      "commits_total",
			Help:      "Critical sections committed, by archetype name.",
		}, []string{"archetype"}),
		aborts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "distsys",
			Subsystem: "archetype",
			Name:      "aborts_total",
			Help:      "Critical sections aborted, by archetype name and reason.",
		}, []string{"archetype", "reason"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "distsys",
			Subsystem: "archetype",
			Name:      "retries_total",
			Help:      "Critical section retries after abort, by archetype name.",
		}, []string{"archetype"}),
	}
	if reg != nil {
		reg.MustRegister(m.commits, m.aborts, m.retries)
	}
	return m
}

func (m *Metrics) commit(archetypeName string) {
	if m == nil {
		return
	}
	m.commits.WithLabelValues(archetypeName).Inc()
}

func (m *Metrics) abort(archetypeName, reason string) {
	if m == nil {
		return
	}
	m.aborts.WithLabelValues(archetypeName, reason).Inc()
}

func (m *Metrics) retry(archetypeName string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(archetypeName).Inc()
}
