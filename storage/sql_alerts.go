package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// HasAlert reports whether the (rule, issue, dedup key) triple has
// already been announced.
func (s *SQLStore) HasAlert(ctx context.Context, ruleID, fingerprint, dedupKey string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT 1 FROM alerts_sent
		WHERE rule_id = ? AND fingerprint = ? AND dedup_key = ?`),
		ruleID, fingerprint, dedupKey,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("looking up alert record (%s, %s, %s): %w", ruleID, fingerprint, dedupKey, err)
	}
	return true, nil
}

// RecordAlert appends an alert record after a confirmed send. The table
// is append-only and the primary key makes re-recording a no-op, so a
// crash between send and record costs at most one duplicate email.
func (s *SQLStore) RecordAlert(ctx context.Context, ruleID, fingerprint, dedupKey string, sentAt time.Time) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO alerts_sent (rule_id, fingerprint, dedup_key, sent_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (rule_id, fingerprint, dedup_key) DO NOTHING`),
		ruleID, fingerprint, dedupKey, toEpoch(sentAt),
	)
	if err != nil {
		return fmt.Errorf("recording alert (%s, %s, %s): %w", ruleID, fingerprint, dedupKey, err)
	}
	return nil
}
