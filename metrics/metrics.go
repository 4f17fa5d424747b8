package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the instrumentation recorded by the executor and replayer.
// Collectors are registered on the registerer handed in by the caller so tests
// can use an isolated registry.
type Metrics struct {
	invocations *prometheus.CounterVec
	replays     *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "disputeflow",
			Name:      "invocations_total",
			Help:      "Contract invocations by operation and outcome.",
		}, []string{"op", "outcome"}),
		replays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "disputeflow",
			Name:      "replays_total",
			Help:      "Journal replay verifications by outcome.",
		}, []string{"outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.invocations, m.replays)
	}
	return m
}

// Invocation records one invocation attempt. Outcome is "ok" or a fault kind.
func (m *Metrics) Invocation(op, outcome string) {
	m.invocations.WithLabelValues(op, outcome).Inc()
}

// Replay records one replay verification.
func (m *Metrics) Replay(ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "mismatch"
	}
	m.replays.WithLabelValues(outcome).Inc()
}
