package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// DriverSQLite selects the embedded sqlite store (default; used by tests
// with a ":memory:" DSN). DriverPostgres selects a shared Postgres
// instance for deployments where processor and watcher run on separate
// hosts.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// dialect captures the few places the two supported engines diverge.
// Queries are written once with ? placeholders and rebound for Postgres.
type dialect struct {
	name      string
	blobType  string
	serialPK  string
	forUpdate string
}

var dialects = map[string]dialect{
	DriverSQLite: {
		name:      DriverSQLite,
		blobType:  "BLOB",
		serialPK:  "INTEGER PRIMARY KEY AUTOINCREMENT",
		forUpdate: "",
	},
	DriverPostgres: {
		name:     DriverPostgres,
		blobType: "BYTEA",
		serialPK: "BIGSERIAL PRIMARY KEY",
		// sqlite's single writer serializes bucket read-modify-write on
		// its own; Postgres needs an explicit row lock.
		forUpdate: " FOR UPDATE",
	},
}

// SQLStore implements Store over database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	logger  *zap.SugaredLogger
}

// Open connects to the configured store, runs migrations and returns a
// ready SQLStore.
func Open(driver, dsn string, logger *zap.SugaredLogger) (*SQLStore, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", driver, err)
	}

	store := &SQLStore{db: db, dialect: d, logger: logger}

	if driver == DriverSQLite {
		// Single writer: WAL allows concurrent readers, and one write
		// connection sidesteps SQLITE_BUSY under worker concurrency. It
		// also keeps :memory: databases on a single underlying database.
		db.SetMaxOpenConns(1)
		if err := store.configureSQLite(dsn); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging %s store: %w", driver, err)
	}

	if err := store.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Infof("Connected to %s store", driver)
	return store, nil
}

func (s *SQLStore) configureSQLite(dsn string) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("configuring sqlite (%s): %w", pragma, err)
		}
	}
	if dsn != ":memory:" {
		var mode string
		if err := s.db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
			return fmt.Errorf("verifying journal mode: %w", err)
		}
		if mode != "wal" {
			s.logger.Warnf("sqlite journal mode is %q, expected wal", mode)
		}
	}
	return nil
}

// migrate creates the schema. DDL is idempotent; there is no versioned
// migration chain yet because the schema has a single version.
func (s *SQLStore) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS issues (
			fingerprint TEXT PRIMARY KEY,
			first_seen  BIGINT NOT NULL,
			last_seen   BIGINT NOT NULL,
			message     TEXT NOT NULL DEFAULT '',
			module      TEXT NOT NULL DEFAULT '',
			group_id    TEXT NOT NULL DEFAULT ''
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS issue_buckets (
			fingerprint TEXT NOT NULL,
			bucket_date TEXT NOT NULL,
			event_count BIGINT NOT NULL DEFAULT 0,
			user_sketch %s,
			PRIMARY KEY (fingerprint, bucket_date)
		)`, s.dialect.blobType),
		`CREATE TABLE IF NOT EXISTS alerts_sent (
			rule_id     TEXT NOT NULL,
			fingerprint TEXT NOT NULL,
			dedup_key   TEXT NOT NULL,
			sent_at     BIGINT NOT NULL,
			PRIMARY KEY (rule_id, fingerprint, dedup_key)
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS trigger_runs (
			id       %s,
			ran_at   BIGINT NOT NULL,
			finished SMALLINT NOT NULL DEFAULT 0
		)`, s.dialect.serialPK),
		`CREATE INDEX IF NOT EXISTS idx_issues_last_seen ON issues (last_seen)`,
		`CREATE INDEX IF NOT EXISTS idx_trigger_runs_ran_at ON trigger_runs (ran_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("running migration: %w", err)
		}
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders to $n for Postgres. Queries in this
// package never contain a literal question mark.
func (s *SQLStore) rebind(query string) string {
	if s.dialect.name != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Timestamps are persisted as epoch microseconds so one column type
// serves both engines and ordering comparisons stay exact.
func toEpoch(t time.Time) int64 {
	return t.UnixMicro()
}

func fromEpoch(v int64) time.Time {
	return time.UnixMicro(v).UTC()
}
