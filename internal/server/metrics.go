package server

import "github.com/prometheus/client_golang/prometheus"

// metrics holds the server's Prometheus collectors.
type metrics struct {
	// experiments is the number of live experiments
	experiments prometheus.Gauge

	trialsProposed  prometheus.Counter
	trialsCompleted prometheus.Counter

	// failures counts failed operations by operation and error kind
	failures *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		experiments: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "adaptivexp_experiments",
			Help: "Number of experiments currently held in memory",
		}),
		trialsProposed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adaptivexp_trials_proposed_total",
			Help: "Total number of trials handed out by optimizers",
		}),
		trialsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adaptivexp_trials_completed_total",
			Help: "Total number of trials completed with results",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adaptivexp_operation_failures_total",
			Help: "Total number of failed operations per operation and error kind",
		}, []string{"operation", "kind"}),
	}

	reg.MustRegister(
		m.experiments,
		m.trialsProposed,
		m.trialsCompleted,
		m.failures,
	)
	return m
}
