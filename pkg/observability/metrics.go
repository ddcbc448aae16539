// Package observability provides a runner listener which records Prometheus
// metrics about flow runs.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/excellent-lang/excellent/pkg/flows"
)

// Metrics is a flows.Listener which counts run lifecycle events and node
// visits.
type Metrics struct {
	runsStarted   prometheus.Counter
	runsResumed   prometheus.Counter
	runsPaused    prometheus.Counter
	runsCompleted prometheus.Counter
	nodeVisits    *prometheus.CounterVec
	stepErrors    prometheus.Counter
}

// NewMetrics creates run metrics registered with the given registerer, e.g.
// prometheus.DefaultRegisterer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	metrics := &Metrics{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "excellent_runs_started_total",
			Help: "Total number of flow runs started",
		}),
		runsResumed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "excellent_runs_resumed_total",
			Help: "Total number of flow runs resumed with input",
		}),
		runsPaused: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "excellent_runs_paused_total",
			Help: "Total number of times a run paused to wait for input",
		}),
		runsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "excellent_runs_completed_total",
			Help: "Total number of flow runs completed",
		}),
		nodeVisits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "excellent_node_visits_total",
			Help: "Total number of node visits",
		}, []string{"node"}),
		stepErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "excellent_step_errors_total",
			Help: "Total number of template errors recorded on steps",
		}),
	}

	registerer.MustRegister(
		metrics.runsStarted,
		metrics.runsResumed,
		metrics.runsPaused,
		metrics.runsCompleted,
		metrics.nodeVisits,
		metrics.stepErrors,
	)
	return metrics
}

func (m *Metrics) RunStarted(run *flows.RunState) {
	m.runsStarted.Inc()
}

func (m *Metrics) RunResumed(run *flows.RunState) {
	m.runsResumed.Inc()
}

func (m *Metrics) NodeVisited(run *flows.RunState, step *flows.Step) {
	m.nodeVisits.WithLabelValues(step.Node().UUID()).Inc()
	m.stepErrors.Add(float64(len(step.Errors())))
}

func (m *Metrics) RunPaused(run *flows.RunState) {
	m.runsPaused.Inc()
}

func (m *Metrics) RunCompleted(run *flows.RunState) {
	m.runsCompleted.Inc()
}
