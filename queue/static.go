package queue

import (
	"context"
	"sync"
)

// StaticBackend serves a fixed sequence of batches and then nothing. It
// exists for tests and local verification without an SQS endpoint, and
// records which messages were acknowledged and published.
type StaticBackend struct {
	mu        sync.Mutex
	batches   [][]Message
	deleted   []string
	published [][]byte
}

// NewStaticBackend builds a backend that yields the given batches in
// order, one per Receive call.
func NewStaticBackend(batches ...[]Message) *StaticBackend {
	return &StaticBackend{batches: batches}
}

func (b *StaticBackend) Receive(_ context.Context) ([]Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.batches) == 0 {
		return nil, nil
	}
	batch := b.batches[0]
	b.batches = b.batches[1:]
	return batch, nil
}

func (b *StaticBackend) Delete(_ context.Context, msg Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, msg.ReceiptHandle)
	return nil
}

func (b *StaticBackend) Publish(_ context.Context, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, append([]byte(nil), body...))
	return nil
}

// Deleted returns the receipt handles acknowledged so far.
func (b *StaticBackend) Deleted() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.deleted...)
}

// Published returns the bodies published so far.
func (b *StaticBackend) Published() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([][]byte, len(b.published))
	copy(out, b.published)
	return out
}

// Drained reports whether every batch has been served.
func (b *StaticBackend) Drained() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.batches) == 0
}
