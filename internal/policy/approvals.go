package policy

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agiworkforce/workforce/internal/errdefs"
	"github.com/agiworkforce/workforce/internal/observability"
	"github.com/agiworkforce/workforce/internal/store"
)

// ApprovalStatus tracks a request through its lifecycle. Terminal
// statuses are immutable.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
	ApprovalExpired  ApprovalStatus = "expired"
)

// Decision is a reviewer's verdict on a pending request.
type Decision struct {
	Approved bool
	Reason   string
}

// Request is the in-memory view of one approval request.
type Request struct {
	ID             string         `json:"id"`
	RequesterID    string         `json:"requester_id"`
	TeamID         string         `json:"team_id,omitempty"`
	Action         Action         `json:"action"`
	Risk           Risk           `json:"risk"`
	Status         ApprovalStatus `json:"status"`
	Justification  string         `json:"justification,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	TimeoutMinutes int            `json:"timeout_minutes"`
	Decision       string         `json:"decision,omitempty"`
	DecisionReason string         `json:"decision_reason,omitempty"`
	ReviewerID     string         `json:"reviewer_id,omitempty"`
}

// Engine owns the approval request lifecycle. Requests persist in the
// store; waiters block on an in-memory channel that resolves when a
// reviewer decides or the expiry sweep fires.
type Engine struct {
	store   *store.Store
	sink    *observability.EventSink
	metrics *observability.Metrics

	// defaultTimeout applies when Create receives no timeout.
	defaultTimeout time.Duration

	mu      sync.Mutex
	waiters map[string][]chan ApprovalStatus
}

// NewEngine creates the approval engine.
func NewEngine(st *store.Store, sink *observability.EventSink, metrics *observability.Metrics) *Engine {
	return &Engine{
		store:          st,
		sink:           sink,
		metrics:        metrics,
		defaultTimeout: 30 * time.Minute,
		waiters:        make(map[string][]chan ApprovalStatus),
	}
}

// Create inserts a pending request and emits approval_required.
func (e *Engine) Create(requesterID string, action Action, risk Risk, justification string, timeout time.Duration) (*Request, error) {
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}
	req := &Request{
		ID:             uuid.NewString(),
		RequesterID:    requesterID,
		Action:         action,
		Risk:           risk,
		Status:         ApprovalPending,
		Justification:  justification,
		CreatedAt:      time.Now().UTC(),
		TimeoutMinutes: int(timeout / time.Minute),
	}

	actionJSON, err := json.Marshal(action)
	if err != nil {
		return nil, errdefs.Fatal("encode approval action").Wrap(err)
	}
	row := &store.ApprovalRow{
		ID:             req.ID,
		RequesterID:    req.RequesterID,
		Action:         string(actionJSON),
		Risk:           string(risk),
		Status:         string(ApprovalPending),
		Justification:  errdefs.Redact(justification),
		CreatedAt:      req.CreatedAt,
		TimeoutMinutes: req.TimeoutMinutes,
	}
	if err := e.store.InsertApproval(row); err != nil {
		return nil, errdefs.NewToolError(errdefs.ToolDatabase, "persist approval request").Wrap(err)
	}

	if e.sink != nil {
		e.sink.Emit(observability.TopicApprovalRequired, map[string]any{
			"request_id":   req.ID,
			"requester_id": req.RequesterID,
			"action":       action.Kind,
			"risk":         risk,
		})
	}
	return req, nil
}

// Decide transitions a pending request to Approved or Rejected. Calls
// against terminal requests are no-ops returning the stored status.
func (e *Engine) Decide(requestID string, decision Decision, reviewerID string) (ApprovalStatus, error) {
	status := ApprovalRejected
	if decision.Approved {
		status = ApprovalApproved
	}

	applied, err := e.store.DecideApproval(requestID, string(status), string(status), decision.Reason, reviewerID)
	if err != nil {
		return "", errdefs.NewToolError(errdefs.ToolDatabase, "decide approval").Wrap(err)
	}
	if !applied {
		row, err := e.store.GetApproval(requestID)
		if err != nil || row == nil {
			return "", errdefs.NewToolError(errdefs.ToolNotFound, "approval request %s not found", requestID)
		}
		return ApprovalStatus(row.Status), nil
	}

	_ = e.store.AppendAudit(reviewerID, "approval_decided",
		requestID+" -> "+string(status)+" ("+errdefs.Redact(decision.Reason)+")")

	topic := observability.TopicApprovalDenied
	if decision.Approved {
		topic = observability.TopicApprovalGranted
	}
	if e.sink != nil {
		e.sink.Emit(topic, map[string]any{
			"request_id":  requestID,
			"reviewer_id": reviewerID,
			"reason":      decision.Reason,
		})
	}
	if e.metrics != nil {
		e.metrics.ApprovalDecision(string(status))
	}

	e.notify(requestID, status)
	return status, nil
}

// Get loads one request.
func (e *Engine) Get(requestID string) (*Request, error) {
	row, err := e.store.GetApproval(requestID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, errdefs.NewToolError(errdefs.ToolNotFound, "approval request %s not found", requestID)
	}
	return rowToRequest(row), nil
}

// Pending lists all pending requests, oldest first.
func (e *Engine) Pending() ([]*Request, error) {
	rows, err := e.store.ListPendingApprovals()
	if err != nil {
		return nil, err
	}
	out := make([]*Request, 0, len(rows))
	for _, row := range rows {
		out = append(out, rowToRequest(row))
	}
	return out, nil
}

// ExpireTimedOut sweeps pending requests past their timeout, marks them
// Expired, and wakes their waiters. Returns the expired IDs.
func (e *Engine) ExpireTimedOut() ([]string, error) {
	expired, err := e.store.ExpireApprovals(time.Now().UTC())
	if err != nil {
		return nil, err
	}
	for _, id := range expired {
		if e.metrics != nil {
			e.metrics.ApprovalDecision(string(ApprovalExpired))
		}
		e.notify(id, ApprovalExpired)
	}
	return expired, nil
}

// Wait blocks until the request reaches a terminal status or ctx is
// cancelled. Cancellation resolves the pending request as rejected with
// reason "cancelled". An expired request surfaces as a timeout error; a
// rejection as a permission error carrying the reviewer's reason.
func (e *Engine) Wait(ctx context.Context, requestID string) error {
	ch := make(chan ApprovalStatus, 1)

	e.mu.Lock()
	e.waiters[requestID] = append(e.waiters[requestID], ch)
	e.mu.Unlock()

	// The decision may have landed before the waiter registered.
	if row, err := e.store.GetApproval(requestID); err == nil && row != nil && ApprovalStatus(row.Status) != ApprovalPending {
		e.dropWaiter(requestID, ch)
		return e.terminalError(requestID, ApprovalStatus(row.Status))
	}

	select {
	case status := <-ch:
		return e.terminalError(requestID, status)
	case <-ctx.Done():
		if _, err := e.Decide(requestID, Decision{Approved: false, Reason: "cancelled"}, "system"); err != nil {
			return errdefs.Permission("approval wait cancelled").Wrap(ctx.Err())
		}
		return errdefs.Permission("approval wait cancelled")
	}
}

func (e *Engine) terminalError(requestID string, status ApprovalStatus) error {
	switch status {
	case ApprovalApproved:
		return nil
	case ApprovalExpired:
		return errdefs.Timeout("approval request %s expired", requestID)
	default:
		reason := ""
		if row, err := e.store.GetApproval(requestID); err == nil && row != nil {
			reason = row.DecisionReason
		}
		if reason == "" {
			return errdefs.Permission("approval request %s was rejected", requestID)
		}
		return errdefs.Permission("approval request %s was rejected: %s", requestID, reason)
	}
}

func (e *Engine) dropWaiter(requestID string, ch chan ApprovalStatus) {
	e.mu.Lock()
	defer e.mu.Unlock()
	waiters := e.waiters[requestID]
	kept := waiters[:0]
	for _, w := range waiters {
		if w != ch {
			kept = append(kept, w)
		}
	}
	if len(kept) == 0 {
		delete(e.waiters, requestID)
	} else {
		e.waiters[requestID] = kept
	}
}

func (e *Engine) notify(requestID string, status ApprovalStatus) {
	e.mu.Lock()
	waiters := e.waiters[requestID]
	delete(e.waiters, requestID)
	e.mu.Unlock()
	for _, ch := range waiters {
		select {
		case ch <- status:
		default:
		}
	}
}

func rowToRequest(row *store.ApprovalRow) *Request {
	req := &Request{
		ID:             row.ID,
		RequesterID:    row.RequesterID,
		TeamID:         row.TeamID,
		Risk:           Risk(row.Risk),
		Status:         ApprovalStatus(row.Status),
		Justification:  row.Justification,
		CreatedAt:      row.CreatedAt,
		TimeoutMinutes: row.TimeoutMinutes,
		Decision:       row.Decision,
		DecisionReason: row.DecisionReason,
		ReviewerID:     row.ReviewerID,
	}
	_ = json.Unmarshal([]byte(row.Action), &req.Action)
	return req
}
