// Package observability provides structured logging, the process event
// sink, and prometheus metrics for the workforce runtime.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/agiworkforce/workforce/internal/errdefs"
)

// LogConfig configures logging behavior.
type LogConfig struct {
	// Level sets the minimum log level: "debug", "info", "warn", "error".
	Level string

	// Format is "json" (production) or "text" (development).
	Format string

	// Output defaults to os.Stdout.
	Output io.Writer

	// AddSource includes file:line in records.
	AddSource bool
}

// NewLogger creates a slog.Logger whose string attributes pass through
// the shared secret redaction before emission.
func NewLogger(config LogConfig) *slog.Logger {
	if config.Output == nil {
		config.Output = os.Stdout
	}

	var level slog.Level
	switch strings.ToLower(config.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:       level,
		AddSource:   config.AddSource,
		ReplaceAttr: redactAttr,
	}

	var handler slog.Handler
	if strings.ToLower(config.Format) == "text" {
		handler = slog.NewTextHandler(config.Output, opts)
	} else {
		handler = slog.NewJSONHandler(config.Output, opts)
	}
	return slog.New(handler)
}

func redactAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindString {
		a.Value = slog.StringValue(errdefs.Redact(a.Value.String()))
	}
	return a
}

// ContextKey is the type for correlation IDs stored in contexts.
type ContextKey string

const (
	// GoalIDKey correlates log records with a goal.
	GoalIDKey ContextKey = "goal_id"

	// TaskIDKey correlates log records with a scheduled task.
	TaskIDKey ContextKey = "task_id"

	// ToolCallIDKey correlates log records with a tool invocation.
	ToolCallIDKey ContextKey = "tool_call_id"
)

// WithGoalID stores a goal ID on the context.
func WithGoalID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, GoalIDKey, id)
}

// GoalID retrieves the goal ID from the context, if any.
func GoalID(ctx context.Context) string {
	if id, ok := ctx.Value(GoalIDKey).(string); ok {
		return id
	}
	return ""
}

// WithTaskID stores a task ID on the context.
func WithTaskID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, TaskIDKey, id)
}

// TaskID retrieves the task ID from the context, if any.
func TaskID(ctx context.Context) string {
	if id, ok := ctx.Value(TaskIDKey).(string); ok {
		return id
	}
	return ""
}

// WithToolCallID stores a tool call ID on the context.
func WithToolCallID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ToolCallIDKey, id)
}

// ToolCallID retrieves the tool call ID from the context, if any.
func ToolCallID(ctx context.Context) string {
	if id, ok := ctx.Value(ToolCallIDKey).(string); ok {
		return id
	}
	return ""
}
