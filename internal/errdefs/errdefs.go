// Package errdefs defines the closed error taxonomy shared by every
// workforce component, plus the categorization rules that drive retry and
// recovery decisions.
//
// The taxonomy is a closed sum: tool errors, LLM errors, resource errors,
// and a handful of top-level kinds (planning, permission, transient,
// fatal, timeout, config). Each error maps to exactly one Category and
// one retryability verdict; callers never inspect message strings to
// decide whether to retry.
package errdefs

import (
	"errors"
	"fmt"
)

// Kind identifies a top-level error variant.
type Kind string

const (
	KindTool       Kind = "tool"
	KindLLM        Kind = "llm"
	KindResource   Kind = "resource"
	KindPlanning   Kind = "planning"
	KindPermission Kind = "permission"
	KindTransient  Kind = "transient"
	KindFatal      Kind = "fatal"
	KindTimeout    Kind = "timeout"
	KindConfig     Kind = "config"
)

// ToolErrorKind narrows a tool error to its failing subsystem.
type ToolErrorKind string

const (
	ToolBrowser           ToolErrorKind = "browser"
	ToolFileSystem        ToolErrorKind = "filesystem"
	ToolDatabase          ToolErrorKind = "database"
	ToolAPI               ToolErrorKind = "api"
	ToolUIAutomation      ToolErrorKind = "ui_automation"
	ToolEmail             ToolErrorKind = "email"
	ToolCalendar          ToolErrorKind = "calendar"
	ToolCloud             ToolErrorKind = "cloud"
	ToolCodeExecution     ToolErrorKind = "code_execution"
	ToolOCR               ToolErrorKind = "ocr"
	ToolNotFound          ToolErrorKind = "not_found"
	ToolInvalidParameters ToolErrorKind = "invalid_parameters"
)

// LLMErrorKind narrows an LLM error to its failure mode.
type LLMErrorKind string

const (
	LLMRateLimit         LLMErrorKind = "rate_limit"
	LLMContextLength     LLMErrorKind = "context_length"
	LLMContentFilter     LLMErrorKind = "content_filter"
	LLMAPI               LLMErrorKind = "api"
	LLMNetwork           LLMErrorKind = "network"
	LLMInvalidResponse   LLMErrorKind = "invalid_response"
	LLMModelNotAvailable LLMErrorKind = "model_not_available"
	LLMAuth              LLMErrorKind = "auth"
	LLMTimeout           LLMErrorKind = "timeout"
)

// ResourceErrorKind names the exhausted resource axis.
type ResourceErrorKind string

const (
	ResourceCPU         ResourceErrorKind = "cpu"
	ResourceMemory      ResourceErrorKind = "memory"
	ResourceNetwork     ResourceErrorKind = "network"
	ResourceStorage     ResourceErrorKind = "storage"
	ResourceConcurrency ResourceErrorKind = "concurrency"
)

// Error is the single error type every component returns. Kind is always
// set; exactly one of the sub-kind fields is set when Kind warrants it.
type Error struct {
	Kind     Kind
	Tool     ToolErrorKind
	LLM      LLMErrorKind
	Resource ResourceErrorKind

	// Message is the raw failure description. It is redacted before any
	// persistence or emission.
	Message string

	// Cause is the wrapped underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	label := string(e.Kind)
	switch {
	case e.Tool != "":
		label = fmt.Sprintf("%s/%s", e.Kind, e.Tool)
	case e.LLM != "":
		label = fmt.Sprintf("%s/%s", e.Kind, e.LLM)
	case e.Resource != "":
		label = fmt.Sprintf("%s/%s", e.Kind, e.Resource)
	}
	if e.Message == "" && e.Cause != nil {
		return fmt.Sprintf("[%s] %v", label, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", label, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewToolError creates a tool error of the given kind.
func NewToolError(kind ToolErrorKind, format string, args ...any) *Error {
	return &Error{Kind: KindTool, Tool: kind, Message: fmt.Sprintf(format, args...)}
}

// NewLLMError creates an LLM error of the given kind.
func NewLLMError(kind LLMErrorKind, format string, args ...any) *Error {
	return &Error{Kind: KindLLM, LLM: kind, Message: fmt.Sprintf(format, args...)}
}

// NewResourceError creates a resource error for the given axis.
func NewResourceError(kind ResourceErrorKind, format string, args ...any) *Error {
	return &Error{Kind: KindResource, Resource: kind, Message: fmt.Sprintf(format, args...)}
}

// Planning creates a planning failure.
func Planning(format string, args ...any) *Error {
	return &Error{Kind: KindPlanning, Message: fmt.Sprintf(format, args...)}
}

// Permission creates a permission-denied error.
func Permission(format string, args ...any) *Error {
	return &Error{Kind: KindPermission, Message: fmt.Sprintf(format, args...)}
}

// Transient creates a retryable transient error.
func Transient(format string, args ...any) *Error {
	return &Error{Kind: KindTransient, Message: fmt.Sprintf(format, args...)}
}

// Fatal creates a non-retryable fatal error.
func Fatal(format string, args ...any) *Error {
	return &Error{Kind: KindFatal, Message: fmt.Sprintf(format, args...)}
}

// Timeout creates a deadline-exceeded error.
func Timeout(format string, args ...any) *Error {
	return &Error{Kind: KindTimeout, Message: fmt.Sprintf(format, args...)}
}

// Config creates a configuration error.
func Config(format string, args ...any) *Error {
	return &Error{Kind: KindConfig, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to err and returns it.
func (e *Error) Wrap(cause error) *Error {
	e.Cause = cause
	return e
}

// AsError extracts an *Error from err's chain, if present.
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// IsKind reports whether err's chain contains an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	e, ok := AsError(err)
	return ok && e.Kind == kind
}
