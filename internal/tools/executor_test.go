package tools

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/agiworkforce/workforce/internal/errdefs"
	"github.com/agiworkforce/workforce/internal/observability"
	"github.com/agiworkforce/workforce/internal/policy"
	"github.com/agiworkforce/workforce/internal/resources"
	"github.com/agiworkforce/workforce/pkg/models"
)

// fakeTool is a scriptable tool for executor tests.
type fakeTool struct {
	desc    Descriptor
	actions []policy.Action
	execute func(ctx context.Context, args map[string]any) (json.RawMessage, error)
	calls   int
}

func (f *fakeTool) Descriptor() Descriptor { return f.desc }

func (f *fakeTool) Actions(map[string]any) []policy.Action { return f.actions }

func (f *fakeTool) Execute(ctx context.Context, args map[string]any) (json.RawMessage, error) {
	f.calls++
	if f.execute != nil {
		return f.execute(ctx, args)
	}
	return json.RawMessage(`"done"`), nil
}

// fakeGate records approval flow without a store.
type fakeGate struct {
	mu       sync.Mutex
	created  []*policy.Request
	decision error
}

func (g *fakeGate) Create(requesterID string, action policy.Action, risk policy.Risk, justification string, timeout time.Duration) (*policy.Request, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	req := &policy.Request{ID: "req-1", RequesterID: requesterID, Action: action, Risk: risk}
	g.created = append(g.created, req)
	return req, nil
}

func (g *fakeGate) Wait(ctx context.Context, requestID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.decision
}

func newExecutor(t *testing.T, reg *Registry, gate ApprovalGate) *Executor {
	t.Helper()
	scope := policy.NewScopeManager()
	root := t.TempDir()
	if err := scope.AddWorkspace(policy.Workspace{ID: "ws", Name: "ws", Root: root}); err != nil {
		t.Fatal(err)
	}
	return NewExecutor(ExecutorConfig{
		Registry:   reg,
		Resources:  resources.NewManager(resources.DefaultLimits(), nil),
		Classifier: policy.NewClassifier(scope, nil, nil),
		Gate:       gate,
		Sink:       observability.NewEventSink(),
	})
}

func lowRiskTool() *fakeTool {
	return &fakeTool{
		desc: Descriptor{
			ID: "echo", Name: "Echo",
			Parameters: []Parameter{{Name: "text", Type: TypeString, Required: true}},
			Estimated:  resources.Usage{CPUPercent: 1, MemoryMB: 1},
		},
		actions: nil,
	}
}

func TestExecuteHappyPath(t *testing.T) {
	reg := NewRegistry()
	tool := lowRiskTool()
	reg.Register(tool)
	exec := newExecutor(t, reg, nil)

	result, err := exec.Execute(context.Background(), models.ToolCall{
		ID: "c1", ToolID: "echo", Arguments: json.RawMessage(`{"text":"hi"}`),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success || string(result.Data) != `"done"` {
		t.Errorf("unexpected result: %+v", result)
	}
	if tool.calls != 1 {
		t.Errorf("tool should run once, got %d", tool.calls)
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	exec := newExecutor(t, NewRegistry(), nil)
	result, err := exec.Execute(context.Background(), models.ToolCall{ID: "c1", ToolID: "missing"})

	e, ok := errdefs.AsError(err)
	if !ok || e.Tool != errdefs.ToolNotFound {
		t.Fatalf("expected not-found, got %v", err)
	}
	if result.Success {
		t.Error("result should mirror the failure")
	}
}

func TestExecuteInvalidParams(t *testing.T) {
	reg := NewRegistry()
	tool := lowRiskTool()
	reg.Register(tool)
	exec := newExecutor(t, reg, nil)

	_, err := exec.Execute(context.Background(), models.ToolCall{
		ID: "c1", ToolID: "echo", Arguments: json.RawMessage(`{}`),
	})
	e, ok := errdefs.AsError(err)
	if !ok || e.Tool != errdefs.ToolInvalidParameters {
		t.Fatalf("expected invalid-parameters, got %v", err)
	}
	if tool.calls != 0 {
		t.Error("tool must not run on validation failure")
	}
}

func TestExecuteResourceDenial(t *testing.T) {
	reg := NewRegistry()
	tool := lowRiskTool()
	tool.desc.Estimated = resources.Usage{CPUPercent: 500}
	reg.Register(tool)
	exec := newExecutor(t, reg, nil)

	_, err := exec.Execute(context.Background(), models.ToolCall{
		ID: "c1", ToolID: "echo", Arguments: json.RawMessage(`{"text":"x"}`),
	})
	if !errdefs.IsKind(err, errdefs.KindResource) {
		t.Fatalf("expected resource error, got %v", err)
	}
	if !errdefs.IsRetryable(err) {
		t.Error("resource denial must be retryable")
	}
}

func TestExecuteReleasesResourcesOnFailure(t *testing.T) {
	reg := NewRegistry()
	tool := lowRiskTool()
	tool.execute = func(context.Context, map[string]any) (json.RawMessage, error) {
		return nil, errdefs.NewToolError(errdefs.ToolCodeExecution, "boom")
	}
	reg.Register(tool)

	mgr := resources.NewManager(resources.DefaultLimits(), nil)
	exec := NewExecutor(ExecutorConfig{Registry: reg, Resources: mgr})

	before := mgr.Snapshot()
	_, _ = exec.Execute(context.Background(), models.ToolCall{
		ID: "c1", ToolID: "echo", Arguments: json.RawMessage(`{"text":"x"}`),
	})
	if got := mgr.Snapshot(); got != before {
		t.Errorf("resources must be released on every path, got %+v", got)
	}
}

func TestExecuteApprovalApproved(t *testing.T) {
	reg := NewRegistry()
	tool := lowRiskTool()
	tool.actions = []policy.Action{{Kind: policy.ActionShellCommand, Command: "rm -rf /tmp/work"}}
	reg.Register(tool)

	gate := &fakeGate{decision: nil}
	exec := newExecutor(t, reg, gate)

	result, err := exec.Execute(context.Background(), models.ToolCall{
		ID: "c1", ToolID: "echo", Arguments: json.RawMessage(`{"text":"x"}`),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success {
		t.Error("approved call should succeed")
	}
	if len(gate.created) != 1 || gate.created[0].Risk != policy.RiskHigh {
		t.Errorf("expected one high-risk approval request, got %+v", gate.created)
	}
}

func TestExecuteApprovalRejected(t *testing.T) {
	reg := NewRegistry()
	tool := lowRiskTool()
	tool.actions = []policy.Action{{Kind: policy.ActionShellCommand, Command: "rm -rf /tmp/work"}}
	reg.Register(tool)

	gate := &fakeGate{decision: errdefs.Permission("approval request was rejected: no")}
	exec := newExecutor(t, reg, gate)

	_, err := exec.Execute(context.Background(), models.ToolCall{
		ID: "c1", ToolID: "echo", Arguments: json.RawMessage(`{"text":"x"}`),
	})
	if !errdefs.IsKind(err, errdefs.KindPermission) {
		t.Fatalf("expected permission error, got %v", err)
	}
	if tool.calls != 0 {
		t.Error("rejected call must not execute")
	}
}

func TestExecuteNoApprovalForMediumRisk(t *testing.T) {
	reg := NewRegistry()
	tool := lowRiskTool()
	tool.actions = []policy.Action{{Kind: policy.ActionShellCommand, Command: "ls -la"}}
	reg.Register(tool)

	gate := &fakeGate{}
	exec := newExecutor(t, reg, gate)

	if _, err := exec.Execute(context.Background(), models.ToolCall{
		ID: "c1", ToolID: "echo", Arguments: json.RawMessage(`{"text":"x"}`),
	}); err != nil {
		t.Fatal(err)
	}
	if len(gate.created) != 0 {
		t.Errorf("medium risk should not create approvals, got %d", len(gate.created))
	}
}

func TestExecuteEmitsEvent(t *testing.T) {
	reg := NewRegistry()
	reg.Register(lowRiskTool())

	sink := observability.NewEventSink()
	var events []observability.Event
	sink.Subscribe(func(e observability.Event) { events = append(events, e) })

	exec := NewExecutor(ExecutorConfig{Registry: reg, Sink: sink})
	_, err := exec.Execute(context.Background(), models.ToolCall{
		ID: "c1", ToolID: "echo", Arguments: json.RawMessage(`{"text":"x"}`),
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(events) != 1 || events[0].Topic != observability.TopicToolExecution {
		t.Fatalf("expected one tool_execution event, got %+v", events)
	}
	payload := events[0].Payload
	if payload["tool_name"] != "echo" || payload["success"] != true {
		t.Errorf("event payload wrong: %v", payload)
	}
}

func TestRetryPolicySelection(t *testing.T) {
	cases := []struct {
		caps     []Capability
		attempts int
	}{
		{[]Capability{CapabilityDatabaseAccess}, 5},
		{[]Capability{CapabilityNetworkOperation}, 4},
		{[]Capability{CapabilityUIAutomation}, 3},
		{[]Capability{CapabilityFileRead}, 3},
		{[]Capability{CapabilityShellExecute}, 1},
		{nil, 1},
	}
	for _, tc := range cases {
		got := retryPolicyFor(Descriptor{Capabilities: tc.caps})
		if got.MaxAttempts != tc.attempts {
			t.Errorf("caps %v: attempts = %d, want %d", tc.caps, got.MaxAttempts, tc.attempts)
		}
	}
}
