// Package metrics exposes Prometheus counters for the orchestrator.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the orchestrator counter set. Register one instance per
// process.
type Metrics struct {
	registry *prometheus.Registry

	TasksTotal   *prometheus.CounterVec
	PhasesTotal  *prometheus.CounterVec
	TasksCreated prometheus.Counter
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		TasksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "morgus",
			Name:      "tasks_total",
			Help:      "Tasks finished, by outcome.",
		}, []string{"outcome"}),
		PhasesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "morgus",
			Name:      "phases_total",
			Help:      "Phases finished, by phase and outcome.",
		}, []string{"phase", "outcome"}),
		TasksCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "morgus",
			Name:      "tasks_created_total",
			Help:      "Tasks accepted through the submission API.",
		}),
	}
}

// ObservePhase records a finished phase. Outcomes are completed, exhausted
// and error.
func (m *Metrics) ObservePhase(phase, outcome string) {
	m.PhasesTotal.WithLabelValues(phase, outcome).Inc()
}

// ObserveTask records a finished task.
func (m *Metrics) ObserveTask(outcome string) {
	m.TasksTotal.WithLabelValues(outcome).Inc()
}

// Handler serves the scrape endpoint for this metric set.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
