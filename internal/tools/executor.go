package tools

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/agiworkforce/workforce/internal/errdefs"
	"github.com/agiworkforce/workforce/internal/observability"
	"github.com/agiworkforce/workforce/internal/policy"
	"github.com/agiworkforce/workforce/internal/resources"
	"github.com/agiworkforce/workforce/internal/retry"
	"github.com/agiworkforce/workforce/pkg/models"
)

// ApprovalGate is the slice of the policy engine the executor needs:
// create a request and block until it resolves.
type ApprovalGate interface {
	Create(requesterID string, action policy.Action, risk policy.Risk, justification string, timeout time.Duration) (*policy.Request, error)
	Wait(ctx context.Context, requestID string) error
}

// Executor drives the tool invocation pipeline: resolve, validate,
// reserve, gate, dispatch under retry, release, emit.
type Executor struct {
	registry   *Registry
	resources  *resources.Manager
	classifier *policy.Classifier
	gate       ApprovalGate
	sink       *observability.EventSink
	metrics    *observability.Metrics
	logger     *slog.Logger

	// approvalTimeout bounds how long a suspended invocation waits.
	approvalTimeout time.Duration
}

// ExecutorConfig configures an Executor. Registry and Classifier are
// required; everything else degrades gracefully when nil.
type ExecutorConfig struct {
	Registry        *Registry
	Resources       *resources.Manager
	Classifier      *policy.Classifier
	Gate            ApprovalGate
	Sink            *observability.EventSink
	Metrics         *observability.Metrics
	Logger          *slog.Logger
	ApprovalTimeout time.Duration
}

// NewExecutor creates an executor.
func NewExecutor(cfg ExecutorConfig) *Executor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default().With("component", "tool-executor")
	}
	timeout := cfg.ApprovalTimeout
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &Executor{
		registry:        cfg.Registry,
		resources:       cfg.Resources,
		classifier:      cfg.Classifier,
		gate:            cfg.Gate,
		sink:            cfg.Sink,
		metrics:         cfg.Metrics,
		logger:          logger,
		approvalTimeout: timeout,
	}
}

// Execute runs one tool call through the full pipeline and returns its
// result. The error return carries the taxonomy error when the call
// fails; the ToolResult mirrors it for persistence either way.
func (e *Executor) Execute(ctx context.Context, call models.ToolCall) (*models.ToolResult, error) {
	start := time.Now()

	data, err := e.execute(ctx, call)
	duration := time.Since(start)

	result := &models.ToolResult{CallID: call.ID, Success: err == nil, Data: data}
	if err != nil {
		result.Error = errdefs.Redact(err.Error())
	}

	if e.metrics != nil {
		e.metrics.ToolExecution(call.ToolID, err == nil, duration.Seconds())
	}
	if e.sink != nil {
		payload := map[string]any{
			"id":          call.ID,
			"tool_name":   call.ToolID,
			"input":       json.RawMessage(call.Arguments),
			"duration_ms": duration.Milliseconds(),
			"success":     err == nil,
		}
		if err != nil {
			payload["error"] = result.Error
		} else if len(data) > 0 {
			payload["output"] = data
		}
		e.sink.Emit(observability.TopicToolExecution, payload)
	}
	return result, err
}

func (e *Executor) execute(ctx context.Context, call models.ToolCall) (json.RawMessage, error) {
	tool, ok := e.registry.Get(call.ToolID)
	if !ok {
		return nil, errdefs.NewToolError(errdefs.ToolNotFound, "tool %s is not registered", call.ToolID)
	}
	desc := tool.Descriptor()

	validated, err := ValidateArgs(desc, call.Arguments)
	if err != nil {
		return nil, err
	}
	if len(validated.Unknown) > 0 {
		e.logger.Debug("ignoring unknown tool arguments",
			"tool", call.ToolID, "keys", validated.Unknown)
	}

	if e.resources != nil {
		if err := e.resources.Reserve(desc.Estimated); err != nil {
			return nil, err
		}
		defer e.resources.Release(desc.Estimated)
	}

	if err := e.checkPolicy(ctx, call, tool, validated.Args); err != nil {
		return nil, err
	}

	var data json.RawMessage
	result := retry.Do(ctx, retryPolicyFor(desc), func() error {
		var execErr error
		data, execErr = tool.Execute(ctx, validated.Args)
		return execErr
	})
	if result.Err != nil {
		return nil, result.Err
	}
	return data, nil
}

func (e *Executor) checkPolicy(ctx context.Context, call models.ToolCall, tool Tool, args map[string]any) error {
	if e.classifier == nil {
		return nil
	}

	highest := policy.RiskLow
	var gated *policy.Action
	for _, action := range tool.Actions(args) {
		risk, err := e.classifier.Classify(action)
		if err != nil {
			return err
		}
		if riskRank(risk) > riskRank(highest) {
			highest = risk
			a := action
			gated = &a
		}
	}

	if !policy.RequiresApproval(highest) || gated == nil {
		return nil
	}
	if e.gate == nil {
		return errdefs.Permission("tool %s requires approval but no approval gate is configured", call.ToolID)
	}

	requester := observability.TaskID(ctx)
	if requester == "" {
		requester = call.ID
	}
	req, err := e.gate.Create(requester, *gated, highest, "", e.approvalTimeout)
	if err != nil {
		return err
	}
	e.logger.Info("tool invocation suspended for approval",
		"tool", call.ToolID, "risk", highest, "request_id", req.ID)
	return e.gate.Wait(ctx, req.ID)
}

func riskRank(r policy.Risk) int {
	switch r {
	case policy.RiskCritical:
		return 3
	case policy.RiskHigh:
		return 2
	case policy.RiskMedium:
		return 1
	default:
		return 0
	}
}

// retryPolicyFor selects the retry preset by the tool's capability
// class. Shell and UI automation run once unless the browser preset
// applies; validation failures never reach this point.
func retryPolicyFor(d Descriptor) retry.Policy {
	has := func(c Capability) bool {
		for _, tag := range d.Capabilities {
			if tag == c {
				return true
			}
		}
		return false
	}
	switch {
	case has(CapabilityDatabaseAccess):
		return retry.Database()
	case has(CapabilityNetworkOperation):
		return retry.Network()
	case has(CapabilityUIAutomation):
		return retry.Browser()
	case has(CapabilityFileRead) || has(CapabilityFileWrite):
		return retry.Filesystem()
	default:
		// Shell and other one-shot side effects are not retried blindly.
		return retry.Policy{MaxAttempts: 1}
	}
}
