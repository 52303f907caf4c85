package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/agiworkforce/workforce/internal/errdefs"
	"github.com/agiworkforce/workforce/internal/llm"
	"github.com/agiworkforce/workforce/internal/observability"
	"github.com/agiworkforce/workforce/internal/policy"
	"github.com/agiworkforce/workforce/internal/resources"
	"github.com/agiworkforce/workforce/internal/retry"
	"github.com/agiworkforce/workforce/internal/scheduler"
	"github.com/agiworkforce/workforce/internal/tools"
	"github.com/agiworkforce/workforce/internal/tools/builtin"
	"github.com/agiworkforce/workforce/pkg/models"
)

// plannerClient replies with scripted plan payloads, one per call.
type plannerClient struct {
	plans []string
	calls int
}

func (c *plannerClient) Send(_ context.Context, _ *llm.Request) (*llm.Response, error) {
	idx := c.calls
	c.calls++
	if idx >= len(c.plans) {
		idx = len(c.plans) - 1
	}
	return &llm.Response{
		Content: c.plans[idx],
		Model:   "fake",
		Tokens:  llm.TokenUsage{Prompt: 100, Completion: 50, Total: 150},
	}, nil
}

func (c *plannerClient) Stream(context.Context, *llm.Request) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk)
	close(ch)
	return ch, nil
}

func (c *plannerClient) IsConfigured() bool            { return true }
func (c *plannerClient) SupportsFunctionCalling() bool { return true }
func (c *plannerClient) Name() llm.Provider            { return llm.ProviderAnthropic }
func (c *plannerClient) DefaultModel() string          { return "fake" }

func testOrchestrator(t *testing.T, plans ...string) (*Orchestrator, *observability.EventSink, string) {
	t.Helper()

	reg := llm.NewRegistry()
	reg.Register(&plannerClient{plans: plans})
	router := llm.NewRouter(llm.RouterConfig{
		Registry:    reg,
		RetryPolicy: retry.Policy{MaxAttempts: 1},
	})

	workspace := t.TempDir()
	scope := policy.NewScopeManager()
	if err := scope.AddWorkspace(policy.Workspace{ID: "ws", Name: "ws", Root: workspace}); err != nil {
		t.Fatal(err)
	}

	toolReg := tools.NewRegistry()
	builtin.RegisterBuiltins(toolReg, nil)

	executor := tools.NewExecutor(tools.ExecutorConfig{
		Registry:   toolReg,
		Resources:  resources.NewManager(resources.DefaultLimits(), nil),
		Classifier: policy.NewClassifier(scope, nil, nil),
	})

	sched := scheduler.New(scheduler.Config{MaxConcurrent: 2, ShutdownGrace: time.Second})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = sched.Shutdown(ctx)
	})

	sink := observability.NewEventSink()
	orch := New(Config{
		Router:   router,
		Registry: toolReg,
		Executor: executor,
		Sched:    sched,
		Sink:     sink,
	})
	return orch, sink, workspace
}

func TestRunSimpleReadGoal(t *testing.T) {
	orchPlanTemplate := `{"steps":[{"id":"s1","tool_id":"file_read","arguments":{"path":%q},"depends_on":[]}]}`

	// Build the orchestrator first to learn the workspace path, then
	// point the plan at a file inside it.
	orch, sink, workspace := testOrchestrator(t, "placeholder")
	path := filepath.Join(workspace, "a.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	orch.planner.router = routerForPlan(t, fmt.Sprintf(orchPlanTemplate, path))

	var topics []observability.Topic
	sink.Subscribe(func(e observability.Event) { topics = append(topics, e.Topic) })

	goal := &models.Goal{Description: "read a.txt", Priority: models.PriorityMedium}
	plan, err := orch.Run(context.Background(), goal)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if goal.Status != models.GoalStatusCompleted {
		t.Errorf("goal status = %s", goal.Status)
	}
	if plan.Status != models.PlanStatusCompleted || plan.CurrentStep != 1 {
		t.Errorf("plan = %s current=%d", plan.Status, plan.CurrentStep)
	}
	step := plan.Steps[0]
	if step.Status != models.StepStatusCompleted {
		t.Errorf("step status = %s", step.Status)
	}
	var content string
	if err := json.Unmarshal(step.Result, &content); err != nil || content != "hello" {
		t.Errorf("step result = %s (err %v)", step.Result, err)
	}

	var saw []string
	for _, topic := range topics {
		saw = append(saw, string(topic))
	}
	joined := strings.Join(saw, ",")
	for _, want := range []string{"goal_created", "step_started", "tool_execution", "step_completed", "goal_completed"} {
		if !strings.Contains(joined, want) {
			t.Errorf("missing %s event in %s", want, joined)
		}
	}
}

// routerForPlan builds a router whose single provider returns the given
// plan.
func routerForPlan(t *testing.T, plan string) *llm.Router {
	t.Helper()
	reg := llm.NewRegistry()
	reg.Register(&plannerClient{plans: []string{plan}})
	return llm.NewRouter(llm.RouterConfig{Registry: reg, RetryPolicy: retry.Policy{MaxAttempts: 1}})
}

func TestRunDependencyOrder(t *testing.T) {
	orch, _, workspace := testOrchestrator(t, "placeholder")
	out := filepath.Join(workspace, "out.txt")

	plan := fmt.Sprintf(`{"steps":[
		{"id":"write","tool_id":"file_write","arguments":{"path":%q,"content":"from step one"},"depends_on":[]},
		{"id":"read","tool_id":"file_read","arguments":{"path":%q},"depends_on":["write"]}
	]}`, out, out)
	orch.planner.router = routerForPlan(t, plan)

	goal := &models.Goal{Description: "write then read", Priority: models.PriorityHigh}
	result, err := orch.Run(context.Background(), goal)
	if err != nil {
		t.Fatal(err)
	}
	if result.CurrentStep != 2 {
		t.Errorf("current step = %d, want 2", result.CurrentStep)
	}

	var content string
	if err := json.Unmarshal(result.Steps[1].Result, &content); err != nil || content != "from step one" {
		t.Errorf("dependent step read %q (err %v)", content, err)
	}
}

func TestRunRejectsCyclicPlan(t *testing.T) {
	orch, _, _ := testOrchestrator(t, "placeholder")
	plan := `{"steps":[
		{"id":"a","tool_id":"file_read","arguments":{"path":"/tmp/x"},"depends_on":["b"]},
		{"id":"b","tool_id":"file_read","arguments":{"path":"/tmp/y"},"depends_on":["a"]}
	]}`
	orch.planner.router = routerForPlan(t, plan)

	goal := &models.Goal{Description: "cyclic"}
	_, err := orch.Run(context.Background(), goal)
	if !errdefs.IsKind(err, errdefs.KindPlanning) {
		t.Fatalf("expected planning error for cycle, got %v", err)
	}
	if goal.Status != models.GoalStatusFailed {
		t.Errorf("goal should fail, got %s", goal.Status)
	}
}

func TestRunPlanningFailureFailsGoal(t *testing.T) {
	orch, _, _ := testOrchestrator(t, "this is not json at all")

	goal := &models.Goal{Description: "unparseable"}
	_, err := orch.Run(context.Background(), goal)
	if !errdefs.IsKind(err, errdefs.KindPlanning) {
		t.Fatalf("expected planning error, got %v", err)
	}
	if goal.Status != models.GoalStatusFailed || goal.FailureReason == "" {
		t.Errorf("goal = %s reason=%q", goal.Status, goal.FailureReason)
	}
}

func TestRunStepFailureWithoutRetryFailsGoal(t *testing.T) {
	orch, _, workspace := testOrchestrator(t, "placeholder")
	missing := filepath.Join(workspace, "does-not-exist.txt")
	orch.planner.router = routerForPlan(t,
		fmt.Sprintf(`{"steps":[{"id":"s1","tool_id":"file_read","arguments":{"path":%q},"depends_on":[]}]}`, missing))

	goal := &models.Goal{Description: "read missing file"}
	plan, err := orch.Run(context.Background(), goal)
	if err == nil {
		t.Fatal("expected failure")
	}
	if goal.Status != models.GoalStatusFailed {
		t.Errorf("goal = %s", goal.Status)
	}
	if plan.Steps[0].Status != models.StepStatusFailed {
		t.Errorf("step = %s", plan.Steps[0].Status)
	}
}

func TestParsePlanHandles(t *testing.T) {
	goal := &models.Goal{ID: "g"}

	cases := []struct {
		name    string
		content string
		ok      bool
	}{
		{"bare json", `{"steps":[{"id":"s","tool_id":"t","arguments":{}}]}`, true},
		{"fenced json", "```json\n{\"steps\":[{\"id\":\"s\",\"tool_id\":\"t\",\"arguments\":{}}]}\n```", true},
		{"chatty wrapper", `Here is the plan: {"steps":[{"id":"s","tool_id":"t","arguments":{}}]} Done.`, true},
		{"string arguments", `{"steps":[{"id":"s","tool_id":"t","arguments":"{\"k\":1}"}]}`, true},
		{"empty plan", `{"steps":[]}`, false},
		{"no tool", `{"steps":[{"id":"s","arguments":{}}]}`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			plan, err := parsePlan(goal, tc.content)
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatal("expected error")
			}
			if tc.ok {
				var obj map[string]any
				if err := json.Unmarshal(plan.Steps[0].Arguments, &obj); err != nil {
					t.Errorf("arguments not canonicalized to object: %v", err)
				}
			}
		})
	}
}

func TestTopoSortOrdersDependencies(t *testing.T) {
	steps := []*models.Step{
		{ID: "c", DependsOn: []string{"b"}},
		{ID: "a"},
		{ID: "b", DependsOn: []string{"a"}},
	}
	ordered, err := topoSort(steps)
	if err != nil {
		t.Fatal(err)
	}
	pos := map[string]int{}
	for i, s := range ordered {
		pos[s.ID] = i
	}
	if !(pos["a"] < pos["b"] && pos["b"] < pos["c"]) {
		t.Errorf("order wrong: %v", pos)
	}

	if _, err := topoSort([]*models.Step{{ID: "x", DependsOn: []string{"ghost"}}}); err == nil {
		t.Error("unknown dependency should reject")
	}
	if _, err := topoSort([]*models.Step{{ID: "a", DependsOn: []string{"a"}}}); err == nil {
		t.Error("self-cycle should reject")
	}
}
