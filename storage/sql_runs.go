package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// LastFinishedRun returns the ran_at of the newest finished watcher run.
// A zero time means no run has ever finished and the whole history is in
// scope.
func (s *SQLStore) LastFinishedRun(ctx context.Context) (time.Time, error) {
	var ranAt int64
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT ran_at FROM trigger_runs
		WHERE finished = 1
		ORDER BY ran_at DESC
		LIMIT 1`),
	).Scan(&ranAt)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("loading last finished run: %w", err)
	}
	return fromEpoch(ranAt), nil
}

// StartRun opens an unfinished run record. The watcher window only
// advances when FinishRun later flips it, so a run that dies mid-cycle
// is re-evaluated by the next one.
func (s *SQLStore) StartRun(ctx context.Context, at time.Time) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, s.rebind(`
		INSERT INTO trigger_runs (ran_at, finished)
		VALUES (?, 0)
		RETURNING id`),
		toEpoch(at),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("starting run: %w", err)
	}
	return id, nil
}

// FinishRun marks a run successfully completed.
func (s *SQLStore) FinishRun(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE trigger_runs SET finished = 1 WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("finishing run %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finishing run %d: %w", id, ErrNotFound)
	}
	return nil
}

// PruneRuns drops run records older than before. Run history only
// exists to define the evaluation window, so a short tail is enough.
func (s *SQLStore) PruneRuns(ctx context.Context, before time.Time) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		DELETE FROM trigger_runs WHERE ran_at <= ?`), toEpoch(before))
	if err != nil {
		return fmt.Errorf("pruning runs: %w", err)
	}
	return nil
}
