package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/huddlechat/huddle-server/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS call_log (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	identity         TEXT NOT NULL,
	peer             TEXT NOT NULL,
	direction        TEXT NOT NULL,
	outcome          TEXT NOT NULL,
	duration_seconds INTEGER NOT NULL DEFAULT 0,
	created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_call_log_identity ON call_log(identity, created_at DESC);
`

// SQLiteStore implements store.CallLogStore for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens (or creates) the call-log database at dbPath.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// RecordCall inserts one side's view of a finished call.
func (s *SQLiteStore) RecordCall(ctx context.Context, rec store.CallRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO call_log (identity, peer, direction, outcome, duration_seconds) VALUES (?, ?, ?, ?, ?)`,
		rec.Identity, rec.Peer, rec.Direction, rec.Outcome, rec.DurationSeconds,
	)
	if err != nil {
		return fmt.Errorf("insert call record: %w", err)
	}
	return nil
}

// RecentCalls returns the newest call records for an identity.
func (s *SQLiteStore) RecentCalls(ctx context.Context, identity string, limit int) ([]store.CallRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, identity, peer, direction, outcome, duration_seconds, created_at
		 FROM call_log WHERE identity = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		identity, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query call log: %w", err)
	}
	defer rows.Close()

	var records []store.CallRecord
	for rows.Next() {
		var rec store.CallRecord
		if err := rows.Scan(&rec.ID, &rec.Identity, &rec.Peer, &rec.Direction, &rec.Outcome, &rec.DurationSeconds, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan call record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate call log: %w", err)
	}
	return records, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ensure SQLiteStore implements store.CallLogStore.
var _ store.CallLogStore = (*SQLiteStore)(nil)
