// Package metrics holds the process-wide Prometheus registry and the
// counters exported by the scheduler pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var registry = prometheus.NewRegistry()

// Registry returns the registry the ops server exposes at /metrics.
func Registry() *prometheus.Registry {
	return registry
}

var (
	RunsTotal = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Name: "tempo_runs_total",
		Help: "Job executions attempted (including overlap skips).",
	})
	RunsSucceeded = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Name: "tempo_runs_succeeded_total",
		Help: "Job executions that completed and posted a result.",
	})
	RunsFailed = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Name: "tempo_runs_failed_total",
		Help: "Job executions that ended in a runner error.",
	})
	RunsSkipped = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Name: "tempo_runs_skipped_total",
		Help: "Trigger fires skipped because the previous run was still active.",
	})
	ParseFailures = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Name: "tempo_definition_parse_failures_total",
		Help: "Starter messages that could not be parsed into a job definition.",
	})
	SyncWrites = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Name: "tempo_sync_writes_total",
		Help: "Platform write operations issued by the forum synchronizer.",
	})
)
