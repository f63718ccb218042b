package processor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"errorwatch/core"
	"errorwatch/metrics"
	"errorwatch/queue"
)

// Worker exit reasons, reported to the supervisor and the worker-exit
// counter.
const (
	exitQuota    = "quota"
	exitShutdown = "shutdown"
	exitPanic    = "panic"
)

// worker is one single-threaded consumer loop. It acknowledges a
// message only after the aggregate update commits; a failed update
// leaves the message for redelivery. Parse failures are poison: logged,
// counted and deleted so they cannot loop forever.
type worker struct {
	id         int
	backend    queue.Backend
	aggregator *Aggregator
	quota      int
	sleepDelay time.Duration
	logger     *zap.SugaredLogger
}

// run polls until the quota is reached or the context is cancelled.
// The quota is checked at batch boundaries only: a worker finishes the
// batch it is holding before recycling, never mid-message.
func (w *worker) run(ctx context.Context) string {
	processed := 0
	for {
		if ctx.Err() != nil {
			return exitShutdown
		}

		batch, err := w.backend.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return exitShutdown
			}
			w.logger.Warnw("Failed to receive messages", "worker", w.id, "error", err)
			if !w.sleep(ctx) {
				return exitShutdown
			}
			continue
		}

		if len(batch) == 0 {
			if !w.sleep(ctx) {
				return exitShutdown
			}
			continue
		}

		for _, msg := range batch {
			w.handle(ctx, msg)
			processed++
		}
		if processed >= w.quota {
			w.logger.Debugw("Worker reached message quota", "worker", w.id, "processed", processed)
			return exitQuota
		}
	}
}

func (w *worker) handle(ctx context.Context, msg queue.Message) {
	event, err := core.ParseEvent(msg.Body)
	if err != nil {
		metrics.EventsDiscarded.WithLabelValues("unparseable").Inc()
		w.logger.Warnw("Dropping unparseable message", "worker", w.id, "error", err)
		if err := w.backend.Delete(ctx, msg); err != nil {
			w.logger.Warnw("Failed to delete poison message", "worker", w.id, "error", err)
		}
		return
	}

	if err := w.aggregator.Apply(ctx, event); err != nil {
		// Leave the message unacknowledged; the queue redelivers it.
		w.logger.Warnw("Failed to apply event",
			"worker", w.id,
			"eventID", event.EventID,
			"error", err,
		)
		return
	}

	if err := w.backend.Delete(ctx, msg); err != nil {
		// Redelivery after a successful apply is absorbed by the
		// aggregator's duplicate handling.
		w.logger.Warnw("Failed to acknowledge message", "worker", w.id, "error", err)
	}
}

func (w *worker) sleep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(w.sleepDelay):
		return true
	}
}
