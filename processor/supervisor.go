package processor

import (
	"context"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"errorwatch/metrics"
	"errorwatch/queue"
)

// Config holds the consumer pool's runtime options.
type Config struct {
	// WorkerCount is the pool size; zero means one worker per CPU.
	WorkerCount int

	// WorkerQuota is how many messages a worker processes before it
	// recycles. Bounds per-worker resource growth and limits the blast
	// radius of a wedged worker.
	WorkerQuota int

	// SleepDelay is how long a worker idles after an empty poll or a
	// receive failure.
	SleepDelay time.Duration
}

type workerExit struct {
	id     int
	reason string
}

// Supervisor owns a bounded set of workers and replaces each one as it
// exits, whether by quota, panic or receive trouble. Worker death never
// aborts the pool; only context cancellation stops it.
type Supervisor struct {
	backend    queue.Backend
	aggregator *Aggregator
	cfg        Config
	logger     *zap.SugaredLogger
}

func NewSupervisor(backend queue.Backend, aggregator *Aggregator, cfg Config, logger *zap.SugaredLogger) *Supervisor {
	return &Supervisor{
		backend:    backend,
		aggregator: aggregator,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run blocks until the context is cancelled, keeping the pool at full
// strength. Cancellation is cooperative: each worker finishes its
// in-flight batch before exiting.
func (s *Supervisor) Run(ctx context.Context) error {
	count := s.cfg.WorkerCount
	if count <= 0 {
		count = runtime.NumCPU()
	}

	exits := make(chan workerExit)
	var wg sync.WaitGroup
	var nextID int

	start := func() {
		nextID++
		id := nextID
		wg.Add(1)
		go func() {
			defer wg.Done()
			reason := s.runWorker(ctx, id)
			select {
			case exits <- workerExit{id: id, reason: reason}:
			case <-ctx.Done():
			}
		}()
	}

	for i := 0; i < count; i++ {
		start()
	}
	s.logger.Infof("Started %d queue workers", count)

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			s.logger.Info("Processor stopped")
			return nil
		case exit := <-exits:
			metrics.WorkerExits.WithLabelValues(exit.reason).Inc()
			s.logger.Debugw("Replacing worker", "worker", exit.id, "reason", exit.reason)
			start()
		}
	}
}

// runWorker contains a single worker's panic: the supervisor sees it as
// one more exit reason and replaces the worker.
func (s *Supervisor) runWorker(ctx context.Context, id int) (reason string) {
	defer func() {
		if r := recover(); r != nil {
			reason = exitPanic
			s.logger.Errorw("Worker panicked",
				"worker", id,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()

	w := &worker{
		id:         id,
		backend:    s.backend,
		aggregator: s.aggregator,
		quota:      s.cfg.WorkerQuota,
		sleepDelay: s.cfg.SleepDelay,
		logger:     s.logger,
	}
	return w.run(ctx)
}
