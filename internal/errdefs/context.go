package errdefs

import (
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SuggestedAction is the plain-English remediation surfaced with an error.
type SuggestedAction string

const (
	ActionRetry         SuggestedAction = "retry"
	ActionCheckCreds    SuggestedAction = "check_credentials"
	ActionFreeResources SuggestedAction = "free_resources"
	ActionAdjustRequest SuggestedAction = "adjust_request"
	ActionAbort         SuggestedAction = "abort"
)

// ErrorContext captures a failure site for diagnostics and the UI.
// RecoveryAttempts only ever increases.
type ErrorContext struct {
	ID               string          `json:"id"`
	Error            string          `json:"error"`
	Category         Category        `json:"category"`
	Timestamp        time.Time       `json:"timestamp"`
	Step             string          `json:"step,omitempty"`
	Tool             string          `json:"tool,omitempty"`
	Input            string          `json:"input,omitempty"`
	Stacktrace       []string        `json:"stacktrace,omitempty"`
	RecoveryAttempts int             `json:"recovery_attempts"`
	UserMessage      string          `json:"user_message"`
	SuggestedAction  SuggestedAction `json:"suggested_action"`
}

// NewContext builds an ErrorContext for err at the current call site.
// The error text and input are redacted before storage.
func NewContext(err error, step, tool, input string) *ErrorContext {
	cat := Categorize(err)
	return &ErrorContext{
		ID:              uuid.NewString(),
		Error:           Redact(err.Error()),
		Category:        cat,
		Timestamp:       time.Now().UTC(),
		Step:            step,
		Tool:            tool,
		Input:           Redact(input),
		Stacktrace:      captureStack(3),
		UserMessage:     userMessage(err),
		SuggestedAction: suggestedAction(err, cat),
	}
}

// RecordAttempt increments the recovery attempt counter.
func (c *ErrorContext) RecordAttempt() {
	c.RecoveryAttempts++
}

func captureStack(skip int) []string {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(skip, pcs)
	if n == 0 {
		return nil
	}
	frames := runtime.CallersFrames(pcs[:n])
	var out []string
	for {
		frame, more := frames.Next()
		out = append(out, frame.Function)
		if !more {
			break
		}
	}
	return out
}

func userMessage(err error) string {
	e, ok := AsError(err)
	if !ok {
		return "An unexpected error occurred."
	}
	switch e.Kind {
	case KindLLM:
		switch e.LLM {
		case LLMRateLimit:
			return "The AI provider is rate limiting requests. The operation will be retried shortly."
		case LLMAuth:
			return "The AI provider rejected the configured credentials."
		case LLMContextLength:
			return "The request is too large for the selected model."
		case LLMContentFilter:
			return "The AI provider declined the request due to its content policy."
		default:
			return "The AI provider request failed."
		}
	case KindResource:
		return "The system is low on resources; the operation will retry when capacity frees up."
	case KindPermission:
		return "The operation was not permitted. " + e.Message
	case KindPlanning:
		return "The goal could not be turned into an executable plan."
	case KindTimeout:
		return "The operation timed out."
	case KindConfig:
		return "The runtime configuration is invalid. " + e.Message
	case KindTool:
		return "A tool failed while executing the plan."
	default:
		return "An unexpected error occurred."
	}
}

func suggestedAction(err error, cat Category) SuggestedAction {
	e, ok := AsError(err)
	if ok && e.Kind == KindLLM {
		switch e.LLM {
		case LLMAuth:
			return ActionCheckCreds
		case LLMContextLength:
			return ActionAdjustRequest
		}
	}
	switch cat {
	case CategoryTransient:
		return ActionRetry
	case CategoryResource:
		return ActionFreeResources
	case CategoryPermission:
		return ActionCheckCreds
	case CategoryConfiguration:
		return ActionAdjustRequest
	default:
		return ActionAbort
	}
}

// ContextStore retains the most recent error contexts in memory for the
// UI's diagnostics view.
type ContextStore struct {
	mu       sync.Mutex
	max      int
	contexts []*ErrorContext
}

// NewContextStore creates a store that retains at most max contexts.
func NewContextStore(max int) *ContextStore {
	if max <= 0 {
		max = 100
	}
	return &ContextStore{max: max}
}

// Add records a context, evicting the oldest when the store is full.
func (s *ContextStore) Add(ec *ErrorContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contexts = append(s.contexts, ec)
	if len(s.contexts) > s.max {
		s.contexts = s.contexts[len(s.contexts)-s.max:]
	}
}

// Recent returns up to n most recent contexts, newest first.
func (s *ContextStore) Recent(n int) []*ErrorContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n > len(s.contexts) {
		n = len(s.contexts)
	}
	out := make([]*ErrorContext, 0, n)
	for i := len(s.contexts) - 1; i >= len(s.contexts)-n; i-- {
		out = append(out, s.contexts[i])
	}
	return out
}
