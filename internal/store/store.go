// Package store provides the embedded relational store shared by the
// scheduler, the policy engine and the router cache. It wraps a single
// SQLite database file; all component tables are created up front so the
// rest of the runtime treats the store as opaque CRUD.
package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// Store wraps the process-local SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (and creates, if needed) the database at path and runs the
// schema migration. Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite serializes writers; a single connection avoids table-lock
	// errors under concurrent component access.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// DB exposes the underlying handle for components that own their own
// tables (the router's response cache).
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			priority TEXT NOT NULL,
			status TEXT NOT NULL,
			progress INTEGER NOT NULL DEFAULT 0,
			retry_count INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			started_at DATETIME,
			completed_at DATETIME,
			result TEXT,
			payload TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`,
		`CREATE TABLE IF NOT EXISTS approval_requests (
			id TEXT PRIMARY KEY,
			requester_id TEXT NOT NULL,
			team_id TEXT,
			action TEXT NOT NULL,
			risk TEXT NOT NULL,
			status TEXT NOT NULL,
			justification TEXT,
			created_at DATETIME NOT NULL,
			timeout_minutes INTEGER NOT NULL,
			decision TEXT,
			decision_reason TEXT,
			reviewer_id TEXT,
			decided_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_approvals_status ON approval_requests(status)`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp DATETIME NOT NULL,
			actor TEXT NOT NULL,
			action TEXT NOT NULL,
			detail TEXT
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// AppendAudit appends one audit record. The log is append-only; nothing
// in the runtime updates or deletes rows.
func (s *Store) AppendAudit(actor, action, detail string) error {
	_, err := s.db.Exec(
		`INSERT INTO audit_log (timestamp, actor, action, detail) VALUES (CURRENT_TIMESTAMP, ?, ?, ?)`,
		actor, action, detail)
	return err
}

// AuditEntry is one row of the audit log.
type AuditEntry struct {
	ID     int64
	Actor  string
	Action string
	Detail string
}

// RecentAudit returns the most recent n audit entries, newest first.
func (s *Store) RecentAudit(n int) ([]AuditEntry, error) {
	if n <= 0 {
		n = 100
	}
	rows, err := s.db.Query(
		`SELECT id, actor, action, COALESCE(detail, '') FROM audit_log ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.Actor, &e.Action, &e.Detail); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
