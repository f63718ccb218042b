package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"errorwatch/core"
	"errorwatch/hll"
)

// RecordEvent applies one event to its issue aggregate in a single
// transaction. The upsert keeps first_seen at the minimum and last_seen
// at the maximum observed, so out-of-order redelivery cannot move either
// backwards; issue metadata is captured from the first event that
// carries it.
func (s *SQLStore) RecordEvent(ctx context.Context, event *core.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting event transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	received := toEpoch(event.Received())

	_, err = tx.ExecContext(ctx, s.rebind(`
		INSERT INTO issues (fingerprint, first_seen, last_seen, message, module, group_id)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (fingerprint) DO UPDATE SET
			first_seen = CASE WHEN excluded.first_seen < issues.first_seen THEN excluded.first_seen ELSE issues.first_seen END,
			last_seen  = CASE WHEN excluded.last_seen  > issues.last_seen  THEN excluded.last_seen  ELSE issues.last_seen  END,
			message    = CASE WHEN issues.message  = '' THEN excluded.message  ELSE issues.message  END,
			module     = CASE WHEN issues.module   = '' THEN excluded.module   ELSE issues.module   END,
			group_id   = CASE WHEN issues.group_id = '' THEN excluded.group_id ELSE issues.group_id END`),
		event.Fingerprint(), received, received, event.Message, event.Module, event.GroupID,
	)
	if err != nil {
		return fmt.Errorf("upserting issue %s: %w", event.Fingerprint(), err)
	}

	_, err = tx.ExecContext(ctx, s.rebind(`
		INSERT INTO issue_buckets (fingerprint, bucket_date, event_count, user_sketch)
		VALUES (?, ?, 0, ?)
		ON CONFLICT (fingerprint, bucket_date) DO NOTHING`),
		event.Fingerprint(), event.BucketDate(), hll.New().Serialize(),
	)
	if err != nil {
		return fmt.Errorf("ensuring bucket for issue %s: %w", event.Fingerprint(), err)
	}

	if userID := event.UserID(); userID != "" {
		if err := s.mergeBucketUser(ctx, tx, event, userID); err != nil {
			return err
		}
	} else {
		_, err = tx.ExecContext(ctx, s.rebind(`
			UPDATE issue_buckets SET event_count = event_count + 1
			WHERE fingerprint = ? AND bucket_date = ?`),
			event.Fingerprint(), event.BucketDate(),
		)
		if err != nil {
			return fmt.Errorf("counting event for issue %s: %w", event.Fingerprint(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing event for issue %s: %w", event.Fingerprint(), err)
	}
	return nil
}

// mergeBucketUser performs the sketch read-modify-write inside the
// event transaction. The row lock (Postgres) or the single sqlite writer
// serializes concurrent merges, and merging is idempotent, so redelivery
// cannot inflate the distinct-user estimate.
func (s *SQLStore) mergeBucketUser(ctx context.Context, tx *sql.Tx, event *core.Event, userID string) error {
	var blob []byte
	err := tx.QueryRowContext(ctx, s.rebind(`
		SELECT user_sketch FROM issue_buckets
		WHERE fingerprint = ? AND bucket_date = ?`+s.dialect.forUpdate),
		event.Fingerprint(), event.BucketDate(),
	).Scan(&blob)
	if err != nil {
		return fmt.Errorf("loading bucket sketch for issue %s: %w", event.Fingerprint(), err)
	}

	sketch, err := hll.Parse(blob)
	if err != nil {
		return fmt.Errorf("bucket sketch for issue %s: %w", event.Fingerprint(), err)
	}
	sketch.Add(userID)

	_, err = tx.ExecContext(ctx, s.rebind(`
		UPDATE issue_buckets
		SET event_count = event_count + 1, user_sketch = ?
		WHERE fingerprint = ? AND bucket_date = ?`),
		sketch.Serialize(), event.Fingerprint(), event.BucketDate(),
	)
	if err != nil {
		return fmt.Errorf("updating bucket for issue %s: %w", event.Fingerprint(), err)
	}
	return nil
}

// ChangedIssues loads issues seen at or after since, oldest-first by
// fingerprint for deterministic evaluation order. The caller derives
// IsNew and counts per its own window.
func (s *SQLStore) ChangedIssues(ctx context.Context, since time.Time) ([]core.IssueAggregate, error) {
	query := `
		SELECT fingerprint, first_seen, last_seen, message, module, group_id
		FROM issues`
	args := []any{}
	if !since.IsZero() {
		query += ` WHERE last_seen >= ?`
		args = append(args, toEpoch(since))
	}
	query += ` ORDER BY fingerprint`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("loading changed issues: %w", err)
	}
	defer rows.Close()

	var issues []core.IssueAggregate
	for rows.Next() {
		var issue core.IssueAggregate
		var firstSeen, lastSeen int64
		if err := rows.Scan(&issue.Fingerprint, &firstSeen, &lastSeen, &issue.Message, &issue.Module, &issue.GroupID); err != nil {
			return nil, fmt.Errorf("scanning issue: %w", err)
		}
		issue.FirstSeen = fromEpoch(firstSeen)
		issue.LastSeen = fromEpoch(lastSeen)
		issues = append(issues, issue)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating issues: %w", err)
	}
	return issues, nil
}

// EventCount sums per-day bucket counts for an issue, optionally bounded
// to buckets at or after fromDate.
func (s *SQLStore) EventCount(ctx context.Context, fingerprint, fromDate string) (int64, error) {
	query := `SELECT COALESCE(SUM(event_count), 0) FROM issue_buckets WHERE fingerprint = ?`
	args := []any{fingerprint}
	if fromDate != "" {
		query += ` AND bucket_date >= ?`
		args = append(args, fromDate)
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, s.rebind(query), args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting events for issue %s: %w", fingerprint, err)
	}
	return count, nil
}

// DistinctUserEstimate merges the issue's bucket sketches and estimates
// the distinct-user cardinality, optionally bounded to buckets at or
// after fromDate.
func (s *SQLStore) DistinctUserEstimate(ctx context.Context, fingerprint, fromDate string) (uint64, error) {
	query := `SELECT user_sketch FROM issue_buckets WHERE fingerprint = ?`
	args := []any{fingerprint}
	if fromDate != "" {
		query += ` AND bucket_date >= ?`
		args = append(args, fromDate)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("loading sketches for issue %s: %w", fingerprint, err)
	}
	defer rows.Close()

	merged := hll.New()
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return 0, fmt.Errorf("scanning sketch for issue %s: %w", fingerprint, err)
		}
		sketch, err := hll.Parse(blob)
		if err != nil {
			return 0, fmt.Errorf("bucket sketch for issue %s: %w", fingerprint, err)
		}
		merged.Merge(sketch)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterating sketches for issue %s: %w", fingerprint, err)
	}
	return merged.Estimate(), nil
}
