package notify

import (
	"context"
	"sync"
)

// SentAlert is one delivery recorded by the mock backend.
type SentAlert struct {
	To      []string
	Subject string
	Body    string
}

// MockBackend records sends for assertions. Set Err to make every send
// fail, or FailSubjects to fail only matching subjects.
type MockBackend struct {
	mu           sync.Mutex
	sent         []SentAlert
	Err          error
	FailSubjects map[string]error
}

func NewMockBackend() *MockBackend {
	return &MockBackend{}
}

func (b *MockBackend) SendAlert(_ context.Context, to []string, subject, body string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Err != nil {
		return b.Err
	}
	if err, ok := b.FailSubjects[subject]; ok {
		return err
	}
	b.sent = append(b.sent, SentAlert{
		To:      append([]string(nil), to...),
		Subject: subject,
		Body:    body,
	})
	return nil
}

// Sent returns the alerts delivered so far.
func (b *MockBackend) Sent() []SentAlert {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]SentAlert, len(b.sent))
	copy(out, b.sent)
	return out
}

// SentCount returns how many alerts were delivered.
func (b *MockBackend) SentCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sent)
}
