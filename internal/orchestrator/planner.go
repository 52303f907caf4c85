package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agiworkforce/workforce/internal/errdefs"
	"github.com/agiworkforce/workforce/internal/llm"
	"github.com/agiworkforce/workforce/internal/tools"
	"github.com/agiworkforce/workforce/pkg/models"
)

const planningSystemPrompt = `You are a planning engine for an autonomous desktop workforce.
Decompose the user's goal into an ordered set of tool invocations.

Respond with ONLY a JSON object of this exact shape:
{"steps": [{"id": "step-1", "tool_id": "<tool id>", "arguments": {...}, "depends_on": []}]}

Rules:
- Use only the tools listed in the catalog.
- Arguments must satisfy each tool's parameter schema.
- depends_on lists step ids that must complete first; leave it empty for independent steps.
- Prefer the smallest plan that satisfies the goal.`

// planner turns goals into plans via the router.
type planner struct {
	router   *llm.Router
	registry *tools.Registry
	prefs    llm.Preferences
}

// plan asks the router for a plan and parses it. failureContext carries
// the previous attempt's error during re-planning.
func (p *planner) plan(ctx context.Context, goal *models.Goal, failureContext string) (*models.Plan, error) {
	catalog, err := json.MarshalIndent(p.registry.FunctionSchemas(), "", "  ")
	if err != nil {
		return nil, errdefs.Planning("encode tool catalog").Wrap(err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Goal: %s\n", goal.Description)
	if len(goal.Constraints) > 0 {
		fmt.Fprintf(&sb, "Constraints:\n")
		for _, c := range goal.Constraints {
			fmt.Fprintf(&sb, "- %s\n", c)
		}
	}
	if len(goal.SuccessCriteria) > 0 {
		fmt.Fprintf(&sb, "Success criteria:\n")
		for _, c := range goal.SuccessCriteria {
			fmt.Fprintf(&sb, "- %s\n", c)
		}
	}
	if failureContext != "" {
		fmt.Fprintf(&sb, "\nA previous plan failed: %s\nProduce a revised plan that avoids this failure.\n", failureContext)
	}
	fmt.Fprintf(&sb, "\nTool catalog:\n%s\n", catalog)

	resp, err := p.router.Send(ctx, &llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: planningSystemPrompt},
			{Role: llm.RoleUser, Content: sb.String()},
		},
	}, p.prefs)
	if err != nil {
		return nil, errdefs.Planning("planner request failed").Wrap(err)
	}

	plan, err := parsePlan(goal, resp.Content)
	if err != nil {
		return nil, err
	}
	if _, err := topoSort(plan.Steps); err != nil {
		return nil, err
	}
	return plan, nil
}

type wireStep struct {
	ID        string          `json:"id"`
	ToolID    string          `json:"tool_id"`
	Arguments json.RawMessage `json:"arguments"`
	DependsOn []string        `json:"depends_on"`
}

// parsePlan decodes the planner's response into a Plan. Arguments are
// canonicalized to JSON objects whether the model sent an object or an
// encoded string.
func parsePlan(goal *models.Goal, content string) (*models.Plan, error) {
	payload := extractJSON(content)
	var wire struct {
		Steps []wireStep `json:"steps"`
	}
	if err := json.Unmarshal([]byte(payload), &wire); err != nil {
		return nil, errdefs.Planning("planner response is not valid JSON").Wrap(err)
	}
	if len(wire.Steps) == 0 {
		return nil, errdefs.Planning("planner produced an empty plan")
	}

	plan := &models.Plan{
		ID:        uuid.NewString(),
		GoalID:    goal.ID,
		Status:    models.PlanStatusDraft,
		CreatedAt: time.Now().UTC(),
	}
	for i, ws := range wire.Steps {
		if ws.ID == "" {
			ws.ID = fmt.Sprintf("step-%d", i+1)
		}
		if ws.ToolID == "" {
			return nil, errdefs.Planning("step %s names no tool", ws.ID)
		}
		args, err := canonicalizeArguments(ws.Arguments)
		if err != nil {
			return nil, errdefs.Planning("step %s arguments are malformed", ws.ID).Wrap(err)
		}
		plan.Steps = append(plan.Steps, &models.Step{
			ID:        ws.ID,
			PlanID:    plan.ID,
			ToolID:    ws.ToolID,
			Arguments: args,
			DependsOn: ws.DependsOn,
			Status:    models.StepStatusPending,
		})
	}
	return plan, nil
}

// canonicalizeArguments accepts either a JSON object or a JSON string
// containing one, and returns the object form.
func canonicalizeArguments(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return json.RawMessage(`{}`), nil
	}
	if strings.HasPrefix(trimmed, "\"") {
		var inner string
		if err := json.Unmarshal([]byte(trimmed), &inner); err != nil {
			return nil, err
		}
		trimmed = strings.TrimSpace(inner)
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		return nil, err
	}
	return json.RawMessage(trimmed), nil
}

// extractJSON strips markdown fences around a JSON payload.
func extractJSON(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		if idx := strings.LastIndex(content, "```"); idx >= 0 {
			content = content[:idx]
		}
		return strings.TrimSpace(content)
	}
	// Fall back to the outermost braces for chatty responses.
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		return content[start : end+1]
	}
	return content
}

// topoSort orders steps so every dependency precedes its dependents.
// Cycles and unknown references reject the plan at admission.
func topoSort(steps []*models.Step) ([]*models.Step, error) {
	byID := make(map[string]*models.Step, len(steps))
	for _, s := range steps {
		if _, dup := byID[s.ID]; dup {
			return nil, errdefs.Planning("duplicate step id %s", s.ID)
		}
		byID[s.ID] = s
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(steps))
	var order []*models.Step

	var visit func(s *models.Step) error
	visit = func(s *models.Step) error {
		switch state[s.ID] {
		case done:
			return nil
		case visiting:
			return errdefs.Planning("dependency cycle through step %s", s.ID)
		}
		state[s.ID] = visiting
		for _, dep := range s.DependsOn {
			depStep, ok := byID[dep]
			if !ok {
				return errdefs.Planning("step %s depends on unknown step %s", s.ID, dep)
			}
			if err := visit(depStep); err != nil {
				return err
			}
		}
		state[s.ID] = done
		order = append(order, s)
		return nil
	}

	for _, s := range steps {
		if err := visit(s); err != nil {
			return nil, err
		}
	}
	return order, nil
}
