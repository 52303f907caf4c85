package observability

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Topic names an event stream the UI layer consumes.
type Topic string

const (
	TopicGoalCreated      Topic = "goal_created"
	TopicGoalCompleted    Topic = "goal_completed"
	TopicStepStarted      Topic = "step_started"
	TopicStepCompleted    Topic = "step_completed"
	TopicTaskProgress     Topic = "task_progress"
	TopicToolExecution    Topic = "tool_execution"
	TopicApprovalRequired Topic = "approval_required"
	TopicApprovalGranted  Topic = "approval_granted"
	TopicApprovalDenied   Topic = "approval_denied"
	TopicError            Topic = "error"
)

// Event is one named event with a JSON-shaped payload.
type Event struct {
	ID        string         `json:"id"`
	Topic     Topic          `json:"topic"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Listener receives emitted events. Implementations must not block; the
// sink calls listeners synchronously on the emitting goroutine.
type Listener func(Event)

// EventSink fans events out to registered listeners. One sink exists per
// process; components receive it at construction.
type EventSink struct {
	mu        sync.RWMutex
	listeners []Listener

	// ring keeps the most recent events for late-attaching consumers.
	ring    []Event
	ringCap int
}

// NewEventSink creates a sink retaining up to 256 recent events.
func NewEventSink() *EventSink {
	return &EventSink{ringCap: 256}
}

// Subscribe registers a listener for all subsequent events.
func (s *EventSink) Subscribe(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Emit publishes an event to every listener.
func (s *EventSink) Emit(topic Topic, payload map[string]any) {
	event := Event{
		ID:        uuid.NewString(),
		Topic:     topic,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}

	s.mu.Lock()
	s.ring = append(s.ring, event)
	if len(s.ring) > s.ringCap {
		s.ring = s.ring[len(s.ring)-s.ringCap:]
	}
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, l := range listeners {
		l(event)
	}
}

// Recent returns up to n recent events, oldest first.
func (s *EventSink) Recent(n int) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 || n > len(s.ring) {
		n = len(s.ring)
	}
	out := make([]Event, n)
	copy(out, s.ring[len(s.ring)-n:])
	return out
}
