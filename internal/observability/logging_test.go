package observability

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestLoggerRedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "info", Format: "json", Output: &buf})

	logger.Info("provider configured", "detail", "api_key=sk-abcdefghijklmnopqrstuvwxyz123456789012")

	out := buf.String()
	if strings.Contains(out, "sk-abcdef") {
		t.Errorf("log output leaked a secret: %s", out)
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Errorf("expected redaction marker in: %s", out)
	}
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "warn", Format: "text", Output: &buf})

	logger.Info("should be dropped")
	logger.Warn("should appear")

	out := buf.String()
	if strings.Contains(out, "should be dropped") {
		t.Error("info record leaked through warn level")
	}
	if !strings.Contains(out, "should appear") {
		t.Error("warn record missing")
	}
}

func TestContextCorrelationIDs(t *testing.T) {
	ctx := context.Background()
	ctx = WithGoalID(ctx, "g1")
	ctx = WithTaskID(ctx, "t1")
	ctx = WithToolCallID(ctx, "c1")

	if GoalID(ctx) != "g1" || TaskID(ctx) != "t1" || ToolCallID(ctx) != "c1" {
		t.Errorf("correlation IDs lost: %s %s %s", GoalID(ctx), TaskID(ctx), ToolCallID(ctx))
	}
	if GoalID(context.Background()) != "" {
		t.Error("empty context should yield empty goal ID")
	}
}
