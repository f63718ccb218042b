package watcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"
)

// HealthReporter bumps a liveness counter once per completed evaluation
// cycle. The counter name is configured so several deployments can
// share one Pushgateway; a flat-lining counter is the external signal
// that the watcher stalled.
type HealthReporter struct {
	counter prometheus.Counter
	pusher  *push.Pusher
	logger  *zap.SugaredLogger
}

// NewHealthReporter registers the cycle counter under counterName and,
// when gateway is non-empty, prepares a Pushgateway pusher for
// environments where the watcher is not scraped.
func NewHealthReporter(counterName, gateway string, logger *zap.SugaredLogger) *HealthReporter {
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: counterName,
		Help: "Completed watcher evaluation cycles",
	})
	if err := prometheus.Register(counter); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			counter = already.ExistingCollector.(prometheus.Counter)
		} else {
			logger.Warnw("Failed to register cycle counter", "name", counterName, "error", err)
		}
	}

	reporter := &HealthReporter{counter: counter, logger: logger}
	if gateway != "" {
		reporter.pusher = push.New(gateway, "errorwatch_watcher").Collector(counter)
	}
	return reporter
}

// Report records one completed cycle. Push failures are logged and
// swallowed; liveness reporting must never fail a cycle that already
// succeeded.
func (r *HealthReporter) Report() {
	r.counter.Inc()
	if r.pusher == nil {
		return
	}
	if err := r.pusher.Push(); err != nil {
		r.logger.Warnw("Failed to push cycle counter", "error", err)
	}
}
