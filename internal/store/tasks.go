package store

import (
	"database/sql"
	"fmt"
	"time"
)

// TaskRow is the persisted form of a scheduler task. The scheduler owns
// the live Task type; this row is the durable copy written on every
// state transition.
type TaskRow struct {
	ID          string
	Name        string
	Description string
	Priority    string
	Status      string
	Progress    int
	RetryCount  int
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	Result      string
	Payload     string
}

// SaveTask writes the full row, replacing any prior version.
func (s *Store) SaveTask(row *TaskRow) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO tasks
			(id, name, description, priority, status, progress, retry_count,
			 created_at, started_at, completed_at, result, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.Name, row.Description, row.Priority, row.Status, row.Progress,
		row.RetryCount, row.CreatedAt, row.StartedAt, row.CompletedAt, row.Result, row.Payload)
	if err != nil {
		return fmt.Errorf("save task %s: %w", row.ID, err)
	}
	return nil
}

// GetTask loads one row by ID; nil when absent.
func (s *Store) GetTask(id string) (*TaskRow, error) {
	row := s.db.QueryRow(`
		SELECT id, name, description, priority, status, progress, retry_count,
		       created_at, started_at, completed_at, COALESCE(result, ''), COALESCE(payload, '')
		FROM tasks WHERE id = ?`, id)
	return scanTask(row)
}

// ListTasksByStatus returns all rows in the given status, oldest first.
func (s *Store) ListTasksByStatus(status string) ([]*TaskRow, error) {
	rows, err := s.db.Query(`
		SELECT id, name, description, priority, status, progress, retry_count,
		       created_at, started_at, completed_at, COALESCE(result, ''), COALESCE(payload, '')
		FROM tasks WHERE status = ? ORDER BY created_at ASC`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*TaskRow
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// RequeueInterrupted demotes rows left Running or Paused by a previous
// process to Queued, preserving retry counts. Called once at startup.
func (s *Store) RequeueInterrupted() (int64, error) {
	res, err := s.db.Exec(
		`UPDATE tasks SET status = 'queued', started_at = NULL WHERE status IN ('running', 'paused')`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CleanupOldTasks deletes terminal rows completed more than the given
// number of days ago.
func (s *Store) CleanupOldTasks(days int) (int64, error) {
	if days <= 0 {
		days = 30
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	res, err := s.db.Exec(`
		DELETE FROM tasks
		WHERE status IN ('completed', 'failed', 'cancelled') AND completed_at IS NOT NULL AND completed_at < ?`,
		cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(r rowScanner) (*TaskRow, error) {
	var t TaskRow
	var startedAt, completedAt sql.NullTime
	err := r.Scan(&t.ID, &t.Name, &t.Description, &t.Priority, &t.Status, &t.Progress,
		&t.RetryCount, &t.CreatedAt, &startedAt, &completedAt, &t.Result, &t.Payload)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if startedAt.Valid {
		t.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	return &t, nil
}
