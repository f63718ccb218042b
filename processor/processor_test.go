package processor

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"errorwatch/queue"
	"errorwatch/storage"
)

func eventBody(eventID, fingerprint, user string) []byte {
	return []byte(fmt.Sprintf(
		`{"eventID":%q,"fingerprints":[%q],"dateReceived":"2026-08-25T10:00:00.000000Z","user":{"id":%q},"message":"boom"}`,
		eventID, fingerprint, user,
	))
}

func eventMessage(eventID, fingerprint, user string) queue.Message {
	return queue.Message{
		Body:          eventBody(eventID, fingerprint, user),
		ReceiptHandle: "rh-" + eventID,
	}
}

func newTestWorker(t *testing.T, backend queue.Backend, store *storage.MockStore, quota int) *worker {
	t.Helper()
	logger := zap.NewNop().Sugar()
	aggregator, err := NewAggregator(store, logger)
	require.NoError(t, err)
	return &worker{
		id:         1,
		backend:    backend,
		aggregator: aggregator,
		quota:      quota,
		sleepDelay: time.Millisecond,
		logger:     logger,
	}
}

func TestWorkerProcessesAndAcknowledges(t *testing.T) {
	store := storage.NewMockStore()
	backend := queue.NewStaticBackend([]queue.Message{
		eventMessage("e1", "issue-1", "user-1"),
		eventMessage("e2", "issue-1", "user-2"),
	})
	w := newTestWorker(t, backend, store, 2)

	reason := w.run(context.Background())
	assert.Equal(t, exitQuota, reason)
	assert.Len(t, backend.Deleted(), 2)

	count, err := store.EventCount(context.Background(), "issue-1", "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestWorkerFinishesBatchBeforeRecycling(t *testing.T) {
	store := storage.NewMockStore()
	backend := queue.NewStaticBackend([]queue.Message{
		eventMessage("e1", "issue-1", "user-1"),
		eventMessage("e2", "issue-1", "user-2"),
		eventMessage("e3", "issue-1", "user-3"),
	})
	w := newTestWorker(t, backend, store, 2)

	reason := w.run(context.Background())
	assert.Equal(t, exitQuota, reason)
	assert.Len(t, backend.Deleted(), 3, "the in-flight batch completes even past the quota")
}

func TestWorkerDropsPoisonMessages(t *testing.T) {
	store := storage.NewMockStore()
	backend := queue.NewStaticBackend(
		[]queue.Message{
			{Body: []byte("not json"), ReceiptHandle: "rh-poison"},
			eventMessage("e1", "issue-1", "user-1"),
		},
	)
	w := newTestWorker(t, backend, store, 2)

	reason := w.run(context.Background())
	assert.Equal(t, exitQuota, reason)
	assert.Len(t, backend.Deleted(), 2, "poison messages are deleted, not retried")

	count, err := store.EventCount(context.Background(), "issue-1", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "only the valid event was aggregated")
}

func TestWorkerLeavesMessageOnStoreFailure(t *testing.T) {
	store := storage.NewMockStore()
	store.RecordEventErr = assert.AnError
	backend := queue.NewStaticBackend([]queue.Message{
		eventMessage("e1", "issue-1", "user-1"),
	})
	w := newTestWorker(t, backend, store, 1)

	reason := w.run(context.Background())
	assert.Equal(t, exitQuota, reason)
	assert.Empty(t, backend.Deleted(), "a failed update leaves the message for redelivery")
}

func TestAggregatorSuppressesImmediateRedelivery(t *testing.T) {
	store := storage.NewMockStore()
	logger := zap.NewNop().Sugar()
	aggregator, err := NewAggregator(store, logger)
	require.NoError(t, err)

	backend := queue.NewStaticBackend([]queue.Message{
		eventMessage("e1", "issue-1", "user-1"),
		eventMessage("e1", "issue-1", "user-1"),
	})
	w := &worker{
		id: 1, backend: backend, aggregator: aggregator,
		quota: 2, sleepDelay: time.Millisecond, logger: logger,
	}

	w.run(context.Background())
	assert.Len(t, backend.Deleted(), 2, "redeliveries are still acknowledged")

	count, err := store.EventCount(context.Background(), "issue-1", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "the cached redelivery was not re-applied")
}

func TestWorkerStopsOnCancel(t *testing.T) {
	store := storage.NewMockStore()
	backend := queue.NewStaticBackend()
	w := newTestWorker(t, backend, store, 100)
	w.sleepDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan string, 1)
	go func() { done <- w.run(ctx) }()

	cancel()
	select {
	case reason := <-done:
		assert.Equal(t, exitShutdown, reason)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop on cancellation")
	}
}

// panicOnceBackend panics on the first Receive and behaves normally
// afterwards, standing in for a wedged worker.
type panicOnceBackend struct {
	queue.Backend
	once sync.Once
}

func (b *panicOnceBackend) Receive(ctx context.Context) ([]queue.Message, error) {
	var panicked bool
	b.once.Do(func() { panicked = true })
	if panicked {
		panic("receive blew up")
	}
	return b.Backend.Receive(ctx)
}

func TestSupervisorReplacesPanickedWorker(t *testing.T) {
	store := storage.NewMockStore()
	static := queue.NewStaticBackend([]queue.Message{
		eventMessage("e1", "issue-1", "user-1"),
	})
	backend := &panicOnceBackend{Backend: static}

	logger := zap.NewNop().Sugar()
	aggregator, err := NewAggregator(store, logger)
	require.NoError(t, err)
	supervisor := NewSupervisor(backend, aggregator, Config{
		WorkerCount: 1,
		WorkerQuota: 100,
		SleepDelay:  time.Millisecond,
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- supervisor.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(static.Deleted()) == 1
	}, 5*time.Second, 5*time.Millisecond, "replacement worker should drain the queue")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not stop on cancellation")
	}
}
