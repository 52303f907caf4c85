package store

import (
	"database/sql"
	"time"
)

// ApprovalRow is the persisted form of an approval request. Lifecycle
// rules live in the policy package; the store only guarantees that
// terminal rows are never rewritten.
type ApprovalRow struct {
	ID             string
	RequesterID    string
	TeamID         string
	Action         string
	Risk           string
	Status         string
	Justification  string
	CreatedAt      time.Time
	TimeoutMinutes int
	Decision       string
	DecisionReason string
	ReviewerID     string
	DecidedAt      *time.Time
}

// InsertApproval inserts a new pending request.
func (s *Store) InsertApproval(row *ApprovalRow) error {
	_, err := s.db.Exec(`
		INSERT INTO approval_requests
			(id, requester_id, team_id, action, risk, status, justification,
			 created_at, timeout_minutes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.RequesterID, row.TeamID, row.Action, row.Risk, row.Status,
		row.Justification, row.CreatedAt, row.TimeoutMinutes)
	return err
}

// GetApproval loads one request; nil when absent.
func (s *Store) GetApproval(id string) (*ApprovalRow, error) {
	row := s.db.QueryRow(`
		SELECT id, requester_id, COALESCE(team_id, ''), action, risk, status,
		       COALESCE(justification, ''), created_at, timeout_minutes,
		       COALESCE(decision, ''), COALESCE(decision_reason, ''),
		       COALESCE(reviewer_id, ''), decided_at
		FROM approval_requests WHERE id = ?`, id)

	var a ApprovalRow
	var decidedAt sql.NullTime
	err := row.Scan(&a.ID, &a.RequesterID, &a.TeamID, &a.Action, &a.Risk, &a.Status,
		&a.Justification, &a.CreatedAt, &a.TimeoutMinutes,
		&a.Decision, &a.DecisionReason, &a.ReviewerID, &decidedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if decidedAt.Valid {
		a.DecidedAt = &decidedAt.Time
	}
	return &a, nil
}

// DecideApproval transitions a pending request to a terminal status.
// The WHERE clause enforces the immutability invariant: a row that has
// already left Pending is untouched and the call reports false.
func (s *Store) DecideApproval(id, status, decision, reason, reviewerID string) (bool, error) {
	res, err := s.db.Exec(`
		UPDATE approval_requests
		SET status = ?, decision = ?, decision_reason = ?, reviewer_id = ?, decided_at = ?
		WHERE id = ? AND status = 'pending'`,
		status, decision, reason, reviewerID, time.Now().UTC(), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListPendingApprovals returns all pending requests, oldest first.
func (s *Store) ListPendingApprovals() ([]*ApprovalRow, error) {
	rows, err := s.db.Query(`
		SELECT id, requester_id, COALESCE(team_id, ''), action, risk, status,
		       COALESCE(justification, ''), created_at, timeout_minutes,
		       COALESCE(decision, ''), COALESCE(decision_reason, ''),
		       COALESCE(reviewer_id, ''), decided_at
		FROM approval_requests WHERE status = 'pending' ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ApprovalRow
	for rows.Next() {
		var a ApprovalRow
		var decidedAt sql.NullTime
		if err := rows.Scan(&a.ID, &a.RequesterID, &a.TeamID, &a.Action, &a.Risk, &a.Status,
			&a.Justification, &a.CreatedAt, &a.TimeoutMinutes,
			&a.Decision, &a.DecisionReason, &a.ReviewerID, &decidedAt); err != nil {
			return nil, err
		}
		if decidedAt.Valid {
			a.DecidedAt = &decidedAt.Time
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// ExpireApprovals marks pending rows older than their timeout as
// expired and returns their IDs.
func (s *Store) ExpireApprovals(now time.Time) ([]string, error) {
	rows, err := s.db.Query(`SELECT id, created_at, timeout_minutes FROM approval_requests WHERE status = 'pending'`)
	if err != nil {
		return nil, err
	}

	var expired []string
	for rows.Next() {
		var id string
		var createdAt time.Time
		var timeoutMinutes int
		if err := rows.Scan(&id, &createdAt, &timeoutMinutes); err != nil {
			rows.Close()
			return nil, err
		}
		if now.Sub(createdAt) > time.Duration(timeoutMinutes)*time.Minute {
			expired = append(expired, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []string
	for _, id := range expired {
		ok, err := s.DecideApproval(id, "expired", "", "timed out", "")
		if err != nil {
			return out, err
		}
		if ok {
			out = append(out, id)
		}
	}
	return out, nil
}
