package metrics

import "github.com/prometheus/client_golang/prometheus"

// promDestination records events as a CounterVec, generalizing the
// teacher's single-gauge registration pattern (cli/server/metrics.go's
// neogoVersion GaugeVec) to the full event-category set spec §4.8 names.
type promDestination struct {
	counter *prometheus.CounterVec
}

func newPromDestination(reg prometheus.Registerer) *promDestination {
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "notary",
			Name:      "events_total",
			Help:      "Count of notary events by category.",
		},
		[]string{"event"},
	)
	reg.MustRegister(counter)
	return &promDestination{counter: counter}
}

func (d *promDestination) record(e Event) {
	d.counter.WithLabelValues(string(e)).Inc()
}
