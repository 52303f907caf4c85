// Package orchestrator binds the goal pipeline together: it obtains a
// plan from the router, materializes plan steps as scheduled tasks,
// drives tool execution through the registry, and owns every plan-level
// state transition.
package orchestrator

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/agiworkforce/workforce/internal/errdefs"
	"github.com/agiworkforce/workforce/internal/llm"
	"github.com/agiworkforce/workforce/internal/observability"
	"github.com/agiworkforce/workforce/internal/scheduler"
	"github.com/agiworkforce/workforce/internal/tools"
	"github.com/agiworkforce/workforce/pkg/models"
)

// maxReplans bounds how often a failed plan is rebuilt before the goal
// fails.
const maxReplans = 2

// Orchestrator drives goals from submission to a terminal state.
type Orchestrator struct {
	planner  *planner
	executor *tools.Executor
	sched    *scheduler.Scheduler
	sink     *observability.EventSink
	logger   *slog.Logger
}

// Config configures an Orchestrator.
type Config struct {
	Router   *llm.Router
	Registry *tools.Registry
	Executor *tools.Executor
	Sched    *scheduler.Scheduler
	Sink     *observability.EventSink
	Logger   *slog.Logger

	// Preferences steer the planner's LLM requests.
	Preferences llm.Preferences
}

// New creates an orchestrator.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default().With("component", "orchestrator")
	}
	return &Orchestrator{
		planner:  &planner{router: cfg.Router, registry: cfg.Registry, prefs: cfg.Preferences},
		executor: cfg.Executor,
		sched:    cfg.Sched,
		sink:     cfg.Sink,
		logger:   logger,
	}
}

// Run drives one goal to completion. It mutates the goal's status and
// returns the executed plan. Plan-level state transitions happen only
// here.
func (o *Orchestrator) Run(ctx context.Context, goal *models.Goal) (*models.Plan, error) {
	if goal.ID == "" {
		goal.ID = uuid.NewString()
	}
	if goal.CreatedAt.IsZero() {
		goal.CreatedAt = time.Now().UTC()
	}
	ctx = observability.WithGoalID(ctx, goal.ID)

	goal.Status = models.GoalStatusPlanning
	o.emit(observability.TopicGoalCreated, map[string]any{
		"goal_id":     goal.ID,
		"description": goal.Description,
		"priority":    goal.Priority.String(),
	})

	plan, err := o.planner.plan(ctx, goal, "")
	if err != nil {
		o.failGoal(goal, err)
		return nil, err
	}

	goal.Status = models.GoalStatusExecuting
	plan.Status = models.PlanStatusRunning

	replans := 0
	for {
		execErr := o.executePlan(ctx, goal, plan)
		if execErr == nil {
			break
		}

		step := findFailedStep(plan)
		if step == nil || !step.RetryOnFailure || replans >= maxReplans {
			plan.Status = models.PlanStatusFailed
			o.failGoal(goal, execErr)
			return plan, execErr
		}

		replans++
		o.logger.Info("re-planning after step failure",
			"goal_id", goal.ID, "step_id", step.ID, "attempt", replans)
		newPlan, planErr := o.planner.plan(ctx, goal, step.Error)
		if planErr != nil {
			plan.Status = models.PlanStatusFailed
			o.failGoal(goal, planErr)
			return plan, planErr
		}
		plan = newPlan
		plan.Status = models.PlanStatusRunning
	}

	plan.Status = models.PlanStatusCompleted
	now := time.Now().UTC()
	goal.Status = models.GoalStatusCompleted
	goal.CompletedAt = &now
	o.emit(observability.TopicGoalCompleted, map[string]any{
		"goal_id": goal.ID,
		"status":  goal.Status,
	})
	return plan, nil
}

// executePlan runs the plan frontier by frontier: every step whose
// dependencies are complete becomes a scheduled task; the frontier's
// tasks run concurrently under the scheduler's pool.
func (o *Orchestrator) executePlan(ctx context.Context, goal *models.Goal, plan *models.Plan) error {
	ordered, err := topoSort(plan.Steps)
	if err != nil {
		return err
	}

	completed := make(map[string]bool, len(ordered))
	for {
		frontier := nextFrontier(ordered, completed)
		if len(frontier) == 0 {
			if len(completed) == len(ordered) {
				return nil
			}
			return errdefs.Planning("plan stalled: %d of %d steps complete", len(completed), len(ordered))
		}

		type launched struct {
			step *models.Step
			task *scheduler.Task
		}
		var running []launched
		for _, step := range frontier {
			step.Status = models.StepStatusRunning
			o.emit(observability.TopicStepStarted, map[string]any{
				"goal_id": goal.ID,
				"plan_id": plan.ID,
				"step_id": step.ID,
				"tool_id": step.ToolID,
			})

			task := &scheduler.Task{
				ID:       uuid.NewString(),
				Name:     step.ToolID,
				Priority: goal.Priority,
				Timeout:  step.Timeout,
				Payload:  step.Arguments,
			}
			call := models.ToolCall{ID: step.ID, ToolID: step.ToolID, Arguments: step.Arguments}
			fn := func(taskCtx context.Context, tc *scheduler.TaskContext) (json.RawMessage, error) {
				result, execErr := o.executor.Execute(taskCtx, call)
				if execErr != nil {
					return nil, execErr
				}
				return result.Data, nil
			}
			if err := o.sched.Enqueue(task, fn); err != nil {
				return err
			}
			running = append(running, launched{step: step, task: task})
		}

		var frontierErr error
		for _, l := range running {
			done, waitErr := o.sched.Wait(ctx, l.task.ID)
			if waitErr != nil {
				return waitErr
			}
			switch done.Status {
			case scheduler.StatusCompleted:
				l.step.Status = models.StepStatusCompleted
				l.step.Result = done.Result
				completed[l.step.ID] = true
				plan.CurrentStep++
				o.emit(observability.TopicStepCompleted, map[string]any{
					"goal_id": goal.ID,
					"plan_id": plan.ID,
					"step_id": l.step.ID,
				})
			case scheduler.StatusCancelled:
				l.step.Status = models.StepStatusSkipped
				if frontierErr == nil {
					frontierErr = errdefs.Transient("step %s was cancelled", l.step.ID)
				}
			default:
				l.step.Status = models.StepStatusFailed
				l.step.Error = done.Error
				if frontierErr == nil {
					frontierErr = errdefs.NewToolError(errdefs.ToolAPI, "step %s failed: %s", l.step.ID, done.Error)
				}
			}
		}
		if frontierErr != nil {
			return frontierErr
		}
	}
}

func nextFrontier(ordered []*models.Step, completed map[string]bool) []*models.Step {
	var frontier []*models.Step
	for _, step := range ordered {
		if step.Status != models.StepStatusPending || completed[step.ID] {
			continue
		}
		ready := true
		for _, dep := range step.DependsOn {
			if !completed[dep] {
				ready = false
				break
			}
		}
		if ready {
			frontier = append(frontier, step)
		}
	}
	return frontier
}

func findFailedStep(plan *models.Plan) *models.Step {
	for _, step := range plan.Steps {
		if step.Status == models.StepStatusFailed {
			return step
		}
	}
	return nil
}

func (o *Orchestrator) failGoal(goal *models.Goal, err error) {
	now := time.Now().UTC()
	goal.Status = models.GoalStatusFailed
	goal.FailureReason = errdefs.Redact(err.Error())
	goal.CompletedAt = &now

	ec := errdefs.NewContext(err, "", "", "")
	o.emit(observability.TopicError, map[string]any{
		"goal_id":          goal.ID,
		"error":            goal.FailureReason,
		"user_message":     ec.UserMessage,
		"suggested_action": ec.SuggestedAction,
	})
	o.emit(observability.TopicGoalCompleted, map[string]any{
		"goal_id": goal.ID,
		"status":  goal.Status,
		"reason":  goal.FailureReason,
	})
	o.logger.Warn("goal failed", "goal_id", goal.ID, "error", goal.FailureReason)
}

func (o *Orchestrator) emit(topic observability.Topic, payload map[string]any) {
	if o.sink != nil {
		o.sink.Emit(topic, payload)
	}
}
