// Package sqlite is the embedded single-node store. It backs local
// deployments and the service tests.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlitedrv "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"alcyxob/coaching-platform/internal/repository"
)

// timeLayout sorts lexically in time order for UTC values.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// DB wraps the sqlite handle. A single connection serializes writers; the
// active transaction travels in the context.
type DB struct {
	database *sql.DB
	path     string
}

// Open creates the file (and its directory) if needed and migrates the schema.
func Open(path string) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create db directory: %w", err)
		}
	}
	database, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	database.SetMaxOpenConns(1)

	db := &DB{database: database, path: path}
	if err := db.migrate(context.Background()); err != nil {
		_ = database.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) Close() error {
	return db.database.Close()
}

// NewStore opens path and wires every repository onto it.
func NewStore(path string) (*repository.Store, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	return &repository.Store{
		Drafts:    &draftRepo{db: db},
		Plans:     &planRepo{db: db},
		Signals:   &signalRepo{db: db},
		Triggers:  &triggerRepo{db: db},
		Proposals: &proposalRepo{db: db},
		Audits:    &auditRepo{db: db},
		Tx:        db,
		Close:     func(context.Context) error { return db.Close() },
	}, nil
}

func (db *DB) migrate(ctx context.Context) error {
	statements := []string{
		`PRAGMA busy_timeout = 5000;`,
		`CREATE TABLE IF NOT EXISTS drafts (
			id TEXT PRIMARY KEY,
			athlete_id TEXT NOT NULL,
			coach_id TEXT NOT NULL,
			name TEXT NOT NULL,
			start_date TEXT NOT NULL,
			week_start TEXT NOT NULL,
			snapshot_json TEXT NOT NULL DEFAULT '',
			publish_state TEXT NOT NULL,
			published_at TEXT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS weeks (
			id TEXT PRIMARY KEY,
			draft_id TEXT NOT NULL,
			week_index INTEGER NOT NULL,
			locked INTEGER NOT NULL DEFAULT 0,
			sessions_count INTEGER NOT NULL DEFAULT 0,
			total_minutes INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL,
			UNIQUE(draft_id, week_index)
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			draft_id TEXT NOT NULL,
			week_index INTEGER NOT NULL,
			ordinal INTEGER NOT NULL,
			day_of_week INTEGER NOT NULL,
			discipline TEXT NOT NULL,
			type TEXT NOT NULL,
			duration_minutes INTEGER NOT NULL,
			notes TEXT NULL,
			locked INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_draft ON sessions(draft_id, week_index, ordinal);`,
		`CREATE TABLE IF NOT EXISTS feedback (
			id TEXT PRIMARY KEY,
			athlete_id TEXT NOT NULL,
			draft_id TEXT NOT NULL,
			session_id TEXT NULL,
			status TEXT NOT NULL,
			feel TEXT NOT NULL DEFAULT '',
			rpe INTEGER NULL,
			soreness INTEGER NOT NULL DEFAULT 0,
			sleep_quality INTEGER NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_feedback_athlete ON feedback(athlete_id, created_at);`,
		`CREATE TABLE IF NOT EXISTS activities (
			id TEXT PRIMARY KEY,
			athlete_id TEXT NOT NULL,
			discipline TEXT NOT NULL,
			start_time TEXT NOT NULL,
			duration_minutes INTEGER NOT NULL,
			rpe INTEGER NULL,
			pain_flag INTEGER NOT NULL DEFAULT 0,
			source TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_activities_athlete ON activities(athlete_id, start_time);`,
		`CREATE TABLE IF NOT EXISTS triggers (
			id TEXT PRIMARY KEY,
			draft_id TEXT NOT NULL,
			athlete_id TEXT NOT NULL,
			trigger_type TEXT NOT NULL,
			window_start TEXT NOT NULL,
			window_end TEXT NOT NULL,
			evidence_json TEXT NOT NULL,
			created_at TEXT NOT NULL,
			UNIQUE(draft_id, trigger_type, window_start, window_end)
		);`,
		`CREATE TABLE IF NOT EXISTS proposals (
			id TEXT PRIMARY KEY,
			draft_id TEXT NOT NULL,
			athlete_id TEXT NOT NULL,
			coach_id TEXT NOT NULL,
			status TEXT NOT NULL,
			diff_json TEXT NOT NULL,
			rationale_text TEXT NOT NULL DEFAULT '',
			respects_locks INTEGER NOT NULL DEFAULT 0,
			trigger_ids_json TEXT NOT NULL,
			baseline_json TEXT NOT NULL,
			metadata_json TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			approved_at TEXT NULL,
			applied_at TEXT NULL,
			rejected_at TEXT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_proposals_draft ON proposals(draft_id, status, created_at);`,
		`CREATE TABLE IF NOT EXISTS audits (
			id TEXT PRIMARY KEY,
			draft_id TEXT NOT NULL,
			proposal_id TEXT NOT NULL,
			coach_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			diff_json TEXT NOT NULL,
			checkpoint_id TEXT NULL,
			metadata_json TEXT NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_proposal ON audits(proposal_id, event_type, created_at);`,
		`CREATE TABLE IF NOT EXISTS before_states (
			id TEXT PRIMARY KEY,
			draft_id TEXT NOT NULL,
			proposal_id TEXT NOT NULL,
			sessions_json TEXT NOT NULL,
			created_at TEXT NOT NULL
		);`,
	}
	for _, statement := range statements {
		if _, err := db.database.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("failed to migrate sqlite schema: %w", err)
		}
	}
	return nil
}

type txKey struct{}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// q returns the transaction bound to ctx, or the plain handle. With a single
// connection, bypassing an open transaction would deadlock.
func (db *DB) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return db.database
}

// WithinTx implements repository.TxRunner. Nested calls join the outer
// transaction.
func (db *DB) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}
	transaction, err := db.database.BeginTx(ctx, nil)
	if err != nil {
		return mapErr(err)
	}
	defer transaction.Rollback()

	if err := fn(context.WithValue(ctx, txKey{}, transaction)); err != nil {
		return mapErr(err)
	}
	if err := transaction.Commit(); err != nil {
		return mapErr(err)
	}
	return nil
}

// mapErr turns busy/locked conditions into repository.ErrRetryable.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var se *sqlitedrv.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return fmt.Errorf("%w: %v", repository.ErrRetryable, err)
		}
	}
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func formatNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func intPtr(i sql.NullInt64) *int {
	if !i.Valid {
		return nil
	}
	v := int(i.Int64)
	return &v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, 0, n*3)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ", "...)
		}
		b = append(b, '?')
	}
	return string(b)
}
