// Package scheduler implements the priority-ordered, cancellable,
// suspendable task manager. Tasks are cooperative async units: the task
// function receives a TaskContext and must check for cancellation and
// pause at every suspension point. Lifecycle transitions persist to the
// embedded store.
package scheduler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/agiworkforce/workforce/pkg/models"
)

// TaskStatus tracks a task through its lifecycle:
// Queued -> Running -> (Paused <-> Running) -> Completed|Failed|Cancelled.
type TaskStatus string

const (
	StatusQueued    TaskStatus = "queued"
	StatusRunning   TaskStatus = "running"
	StatusPaused    TaskStatus = "paused"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
	StatusCancelled TaskStatus = "cancelled"
)

// IsTerminal reports whether the status is final.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Task is the scheduler's unit of work, wrapping one executing step.
type Task struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Priority    models.Priority `json:"priority"`
	Status      TaskStatus      `json:"status"`

	// Progress is 0..100; it reaches 100 exactly when the task
	// completes.
	Progress int `json:"progress"`

	// Timeout, when positive, hard-bounds wall-clock execution.
	Timeout time.Duration `json:"timeout,omitempty"`

	RetryCount  int             `json:"retry_count"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`

	// seq is the insertion sequence used as the FIFO tie-breaker.
	seq uint64
}

// TaskFunc is the body of a task. It must honor ctx cancellation and
// call tc.CheckPause at suspension points.
type TaskFunc func(ctx context.Context, tc *TaskContext) (json.RawMessage, error)

// TaskContext is handed to every task function: identity, payload,
// progress reporting, and the cooperative pause gate. Cancellation
// arrives through the function's ctx.
type TaskContext struct {
	TaskID  string
	Payload json.RawMessage

	progress chan<- progressUpdate
	pause    *pauseGate
}

type progressUpdate struct {
	taskID   string
	progress int
}

// ReportProgress reports completion progress in [0,100]. Values are
// clamped; updates are debounced before persisting.
func (tc *TaskContext) ReportProgress(progress int) {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	select {
	case tc.progress <- progressUpdate{taskID: tc.TaskID, progress: progress}:
	default:
		// The progress channel is effectively unbounded; dropping is a
		// safety valve for a wedged scheduler, not a normal path.
	}
}

// CheckPause blocks while the task is paused. It returns ctx.Err() when
// the task is cancelled while paused (or was already cancelled).
func (tc *TaskContext) CheckPause(ctx context.Context) error {
	return tc.pause.wait(ctx)
}
