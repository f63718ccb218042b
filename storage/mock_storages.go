package storage

import (
	"context"
	"sync"
	"time"

	"errorwatch/core"
)

// MockStore is an in-memory Store for tests. Counting is exact rather
// than sketched; error fields let tests inject failures at specific
// operations.
type MockStore struct {
	mu sync.Mutex

	issues  map[string]*mockIssue
	buckets map[string]map[string]*mockBucket
	alerts  map[[3]string]time.Time
	runs    []*mockRun
	nextRun int64

	RecordEventErr   error
	ChangedIssuesErr error
	HasAlertErr      error
	RecordAlertErr   error
	StartRunErr      error
	FinishRunErr     error
}

type mockIssue struct {
	firstSeen time.Time
	lastSeen  time.Time
	message   string
	module    string
	groupID   string
}

type mockBucket struct {
	count int64
	users map[string]struct{}
}

type mockRun struct {
	id       int64
	ranAt    time.Time
	finished bool
}

// NewMockStore returns an empty MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		issues:  make(map[string]*mockIssue),
		buckets: make(map[string]map[string]*mockBucket),
		alerts:  make(map[[3]string]time.Time),
	}
}

func (m *MockStore) RecordEvent(_ context.Context, event *core.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RecordEventErr != nil {
		return m.RecordEventErr
	}

	issue, ok := m.issues[event.Fingerprint()]
	if !ok {
		issue = &mockIssue{
			firstSeen: event.Received(),
			lastSeen:  event.Received(),
			message:   event.Message,
			module:    event.Module,
			groupID:   event.GroupID,
		}
		m.issues[event.Fingerprint()] = issue
	} else {
		if event.Received().Before(issue.firstSeen) {
			issue.firstSeen = event.Received()
		}
		if event.Received().After(issue.lastSeen) {
			issue.lastSeen = event.Received()
		}
	}

	days, ok := m.buckets[event.Fingerprint()]
	if !ok {
		days = make(map[string]*mockBucket)
		m.buckets[event.Fingerprint()] = days
	}
	bucket, ok := days[event.BucketDate()]
	if !ok {
		bucket = &mockBucket{users: make(map[string]struct{})}
		days[event.BucketDate()] = bucket
	}
	bucket.count++
	if userID := event.UserID(); userID != "" {
		bucket.users[userID] = struct{}{}
	}
	return nil
}

func (m *MockStore) ChangedIssues(_ context.Context, since time.Time) ([]core.IssueAggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ChangedIssuesErr != nil {
		return nil, m.ChangedIssuesErr
	}

	var out []core.IssueAggregate
	for fingerprint, issue := range m.issues {
		if !since.IsZero() && issue.lastSeen.Before(since) {
			continue
		}
		out = append(out, core.IssueAggregate{
			Fingerprint: fingerprint,
			FirstSeen:   issue.firstSeen,
			LastSeen:    issue.lastSeen,
			Message:     issue.message,
			Module:      issue.module,
			GroupID:     issue.groupID,
		})
	}
	return out, nil
}

func (m *MockStore) EventCount(_ context.Context, fingerprint, fromDate string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for date, bucket := range m.buckets[fingerprint] {
		if fromDate != "" && date < fromDate {
			continue
		}
		count += bucket.count
	}
	return count, nil
}

func (m *MockStore) DistinctUserEstimate(_ context.Context, fingerprint, fromDate string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	users := make(map[string]struct{})
	for date, bucket := range m.buckets[fingerprint] {
		if fromDate != "" && date < fromDate {
			continue
		}
		for user := range bucket.users {
			users[user] = struct{}{}
		}
	}
	return uint64(len(users)), nil
}

func (m *MockStore) HasAlert(_ context.Context, ruleID, fingerprint, dedupKey string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.HasAlertErr != nil {
		return false, m.HasAlertErr
	}
	_, ok := m.alerts[[3]string{ruleID, fingerprint, dedupKey}]
	return ok, nil
}

func (m *MockStore) RecordAlert(_ context.Context, ruleID, fingerprint, dedupKey string, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RecordAlertErr != nil {
		return m.RecordAlertErr
	}
	key := [3]string{ruleID, fingerprint, dedupKey}
	if _, ok := m.alerts[key]; !ok {
		m.alerts[key] = sentAt
	}
	return nil
}

// AlertCount returns the number of recorded alert records.
func (m *MockStore) AlertCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.alerts)
}

func (m *MockStore) LastFinishedRun(_ context.Context) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var latest time.Time
	for _, run := range m.runs {
		if run.finished && run.ranAt.After(latest) {
			latest = run.ranAt
		}
	}
	return latest, nil
}

func (m *MockStore) StartRun(_ context.Context, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.StartRunErr != nil {
		return 0, m.StartRunErr
	}
	m.nextRun++
	m.runs = append(m.runs, &mockRun{id: m.nextRun, ranAt: at})
	return m.nextRun, nil
}

func (m *MockStore) FinishRun(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FinishRunErr != nil {
		return m.FinishRunErr
	}
	for _, run := range m.runs {
		if run.id == id {
			run.finished = true
			return nil
		}
	}
	return ErrNotFound
}

func (m *MockStore) PruneRuns(_ context.Context, before time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.runs[:0]
	for _, run := range m.runs {
		if run.ranAt.After(before) {
			kept = append(kept, run)
		}
	}
	m.runs = kept
	return nil
}

// RunCount returns the number of retained run records.
func (m *MockStore) RunCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runs)
}

func (m *MockStore) Close() error { return nil }
