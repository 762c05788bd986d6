// Package metrics holds the Prometheus collectors for the contacts service.
//
// A nil *Metrics is valid and records nothing, so components can be built
// without instrumentation in tests.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "contacts"

// Operation results.
const (
	ResultOK      = "ok"
	ResultInvalid = "invalid"
	ResultError   = "error"
)

// Uniqueness conflict stages.
const (
	StagePrecheck = "precheck"
	StageCommit   = "commit"
)

// Metrics groups the collectors registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	operations      *prometheus.CounterVec
	conflicts       *prometheus.CounterVec
	archiveRuns     *prometheus.CounterVec
	archiveProgress prometheus.Gauge
}

// New creates the collectors and registers them, together with the Go and
// process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Contact store operations by operation and result.",
		}, []string{"op", "result"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uniqueness_conflicts_total",
			Help:      "Email uniqueness conflicts by the stage that detected them.",
		}, []string{"stage"}),
		archiveRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_runs_total",
			Help:      "Archive runs by outcome.",
		}, []string{"result"}),
		archiveProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "archive_progress",
			Help:      "Progress of the current archive run in percent.",
		}),
	}

	m.registry.MustRegister(
		m.operations,
		m.conflicts,
		m.archiveRuns,
		m.archiveProgress,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveOperation counts one store operation.
func (m *Metrics) ObserveOperation(op, result string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, result).Inc()
}

// ObserveConflict counts one uniqueness conflict.
func (m *Metrics) ObserveConflict(stage string) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(stage).Inc()
}

// ObserveArchiveRun counts one finished archive run.
func (m *Metrics) ObserveArchiveRun(result string) {
	if m == nil {
		return
	}
	m.archiveRuns.WithLabelValues(result).Inc()
}

// SetArchiveProgress publishes the current run's progress.
func (m *Metrics) SetArchiveProgress(percent int) {
	if m == nil {
		return
	}
	m.archiveProgress.Set(float64(percent))
}
