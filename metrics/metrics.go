// Package metrics defines the Prometheus collectors shared by the
// processor and the watcher.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "errorwatch_events_processed_total",
			Help: "Total number of events folded into issue aggregates",
		},
	)

	EventsDiscarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errorwatch_events_discarded_total",
			Help: "Total number of queue messages dropped without aggregation",
		},
		[]string{"reason"},
	)

	AggregateFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "errorwatch_aggregate_failures_total",
			Help: "Total number of failed aggregate updates (message left for redelivery)",
		},
	)

	WorkerExits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errorwatch_worker_exits_total",
			Help: "Total number of worker exits by reason",
		},
		[]string{"reason"},
	)

	AlertsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errorwatch_alerts_sent_total",
			Help: "Total number of alert notifications sent",
		},
		[]string{"rule"},
	)

	AlertsDeduplicated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "errorwatch_alerts_deduplicated_total",
			Help: "Total number of matches skipped because an alert record already existed",
		},
	)

	AlertSendFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errorwatch_alert_send_failures_total",
			Help: "Total number of failed alert sends",
		},
		[]string{"rule"},
	)

	TriggerFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errorwatch_trigger_failures_total",
			Help: "Total number of isolated trigger evaluation failures",
		},
		[]string{"rule"},
	)

	WatcherRunFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "errorwatch_watcher_run_failures_total",
			Help: "Total number of watcher runs that aborted before advancing state",
		},
	)
)
