// Package models defines the shared data model for the workforce runtime.
//
// These types cross component boundaries: the orchestrator owns goals and
// plans, the scheduler references steps by ID, and tools exchange calls and
// results. Everything here is plain data; behavior lives in the internal
// packages.
package models

import (
	"fmt"
	"time"
)

// Priority orders work across goals and tasks.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

// String returns the lowercase name used in persistence and logs.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// ParsePriority converts a stored priority name back to a Priority.
// Unknown values default to PriorityMedium.
func ParsePriority(s string) Priority {
	switch s {
	case "low":
		return PriorityLow
	case "medium":
		return PriorityMedium
	case "high":
		return PriorityHigh
	case "critical":
		return PriorityCritical
	default:
		return PriorityMedium
	}
}

// GoalStatus tracks a goal through its lifecycle.
type GoalStatus string

const (
	GoalStatusPending   GoalStatus = "pending"
	GoalStatusPlanning  GoalStatus = "planning"
	GoalStatusExecuting GoalStatus = "executing"
	GoalStatusCompleted GoalStatus = "completed"
	GoalStatusFailed    GoalStatus = "failed"
	GoalStatusCancelled GoalStatus = "cancelled"
)

// IsTerminal reports whether the goal can no longer change state.
func (s GoalStatus) IsTerminal() bool {
	switch s {
	case GoalStatusCompleted, GoalStatusFailed, GoalStatusCancelled:
		return true
	default:
		return false
	}
}

// Goal is a user-submitted objective the runtime pursues autonomously.
//
// A goal owns exactly one plan once planning succeeds. Terminal states are
// Completed, Failed (with FailureReason set) and Cancelled.
type Goal struct {
	// ID is the unique identifier for the goal.
	ID string `json:"id"`

	// Description is the natural-language objective.
	Description string `json:"description"`

	// Priority orders this goal relative to others.
	Priority Priority `json:"priority"`

	// Deadline is an optional wall-clock bound for completion.
	Deadline *time.Time `json:"deadline,omitempty"`

	// Constraints are user-supplied restrictions the planner must honor.
	Constraints []string `json:"constraints,omitempty"`

	// SuccessCriteria describe what a completed goal looks like.
	SuccessCriteria []string `json:"success_criteria,omitempty"`

	// Status is the current lifecycle state.
	Status GoalStatus `json:"status"`

	// FailureReason explains a Failed status.
	FailureReason string `json:"failure_reason,omitempty"`

	// CreatedAt is when the goal was submitted.
	CreatedAt time.Time `json:"created_at"`

	// CompletedAt is when the goal reached a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
