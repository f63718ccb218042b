// Package storage provides durable persistence for issue aggregates,
// alert records and watcher run state. Both the processor and the
// watcher coordinate exclusively through this store's transactions;
// neither process keeps authoritative state in memory.
package storage

import (
	"context"
	"errors"
	"time"

	"errorwatch/core"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("storage: not found")

// Store is the full persistence surface shared by the processor and the
// watcher.
type Store interface {
	// RecordEvent folds one event into its issue aggregate atomically:
	// issue row upsert, bucket count increment and user-sketch merge all
	// commit or roll back together. Safe to call concurrently from
	// independent workers; redelivered events may bump event_count again
	// but never change the sketch.
	RecordEvent(ctx context.Context, event *core.Event) error

	// ChangedIssues returns issues whose last_seen is at or after since.
	// A zero since returns every issue.
	ChangedIssues(ctx context.Context, since time.Time) ([]core.IssueAggregate, error)

	// EventCount sums bucket counts for an issue. fromDate ("YYYY-MM-DD",
	// "" for all time) bounds the trailing window.
	EventCount(ctx context.Context, fingerprint, fromDate string) (int64, error)

	// DistinctUserEstimate merges the issue's bucket sketches and returns
	// the estimated distinct-user count over the same window shape.
	DistinctUserEstimate(ctx context.Context, fingerprint, fromDate string) (uint64, error)

	// HasAlert reports whether an alert record exists for the triple.
	HasAlert(ctx context.Context, ruleID, fingerprint, dedupKey string) (bool, error)

	// RecordAlert appends an alert record. Recording an existing triple
	// is a no-op, so a crash between send and record at worst repeats
	// one send.
	RecordAlert(ctx context.Context, ruleID, fingerprint, dedupKey string, sentAt time.Time) error

	// LastFinishedRun returns the newest successfully finished run
	// timestamp, or a zero time when no run has ever finished.
	LastFinishedRun(ctx context.Context) (time.Time, error)

	// StartRun opens a run record marked unfinished and returns its id.
	StartRun(ctx context.Context, at time.Time) (int64, error)

	// FinishRun marks a run finished, advancing the watcher window.
	FinishRun(ctx context.Context, id int64) error

	// PruneRuns deletes run records older than before.
	PruneRuns(ctx context.Context, before time.Time) error

	Close() error
}

// IssueStats is the narrow read surface trigger evaluators need.
// *SQLStore satisfies it.
type IssueStats interface {
	EventCount(ctx context.Context, fingerprint, fromDate string) (int64, error)
	DistinctUserEstimate(ctx context.Context, fingerprint, fromDate string) (uint64, error)
}
