// Package metrics provides the Prometheus collectors of the saga coordinator.
// Labels stay low-cardinality: no saga or step ids.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CommandsTotal counts dispatched commands by name and outcome (ok|error).
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "saga_commands_total",
		Help: "Total number of dispatched commands, by command and outcome.",
	}, []string{"command", "outcome"})

	// CommandDuration observes handler latency by command name.
	CommandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "saga_command_duration_seconds",
		Help:    "Command handler latency in seconds, by command.",
		Buckets: prometheus.DefBuckets,
	}, []string{"command"})

	// EventsPublishedTotal counts domain events handed to the event bus.
	EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "saga_events_published_total",
		Help: "Total number of published domain events, by event type.",
	}, []string{"event_type"})

	// LogsCreatedTotal counts saga log rows by severity.
	LogsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "saga_logs_created_total",
		Help: "Total number of saga log entries written, by type.",
	}, []string{"type"})
)

// Outcome maps an error to the outcome label value.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
