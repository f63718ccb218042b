// Package processor drains the exporter queue and folds events into
// issue aggregates. A supervisor owns a bounded set of workers; each
// worker polls, parses and applies messages single-threaded, recycling
// itself after a message quota.
package processor

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"errorwatch/core"
	"errorwatch/metrics"
)

const defaultSeenCacheSize = 4096

// EventRecorder is the slice of the store the aggregator writes
// through.
type EventRecorder interface {
	RecordEvent(ctx context.Context, event *core.Event) error
}

// Aggregator applies events to the store. A bounded LRU of recently
// recorded event IDs short-circuits immediate redeliveries; it is an
// optimization only, since the store's merge semantics already tolerate
// duplicates.
type Aggregator struct {
	store  EventRecorder
	seen   *lru.Cache[string, struct{}]
	logger *zap.SugaredLogger
}

func NewAggregator(store EventRecorder, logger *zap.SugaredLogger) (*Aggregator, error) {
	seen, err := lru.New[string, struct{}](defaultSeenCacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating seen-event cache: %w", err)
	}
	return &Aggregator{store: store, seen: seen, logger: logger}, nil
}

// Apply records one event. The event ID enters the cache only after the
// store confirms the write, so a failed record is retried on
// redelivery.
func (a *Aggregator) Apply(ctx context.Context, event *core.Event) error {
	if id := event.EventID; id != "" && a.seen.Contains(id) {
		metrics.EventsDiscarded.WithLabelValues("duplicate").Inc()
		return nil
	}

	if err := a.store.RecordEvent(ctx, event); err != nil {
		metrics.AggregateFailures.Inc()
		return fmt.Errorf("recording event %s: %w", event.EventID, err)
	}
	metrics.EventsProcessed.Inc()

	if event.EventID != "" {
		a.seen.Add(event.EventID, struct{}{})
	}
	return nil
}
