// Package maintenance runs the runtime's periodic housekeeping on a
// cron schedule: approval expiry sweeps, terminal-task garbage
// collection, and response-cache culls.
package maintenance

import (
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/agiworkforce/workforce/internal/llm"
	"github.com/agiworkforce/workforce/internal/policy"
	"github.com/agiworkforce/workforce/internal/scheduler"
)

// Config wires the maintained components. Nil fields skip their jobs.
type Config struct {
	Approvals *policy.Engine
	Scheduler *scheduler.Scheduler
	Cache     *llm.ResponseCache

	// TaskRetentionDays is handed to the task GC. Default: 30.
	TaskRetentionDays int

	Logger *slog.Logger
}

// Runner owns the cron scheduler.
type Runner struct {
	cron   *cron.Cron
	config Config
	logger *slog.Logger
}

// New creates a runner; Start launches it.
func New(cfg Config) *Runner {
	if cfg.TaskRetentionDays <= 0 {
		cfg.TaskRetentionDays = 30
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default().With("component", "maintenance")
	}
	return &Runner{cron: cron.New(), config: cfg, logger: logger}
}

// Start registers the jobs and starts the cron loop.
func (r *Runner) Start() error {
	if r.config.Approvals != nil {
		if _, err := r.cron.AddFunc("@every 1m", r.sweepApprovals); err != nil {
			return err
		}
	}
	if r.config.Cache != nil {
		if _, err := r.cron.AddFunc("@every 5m", r.cullCache); err != nil {
			return err
		}
	}
	if r.config.Scheduler != nil {
		if _, err := r.cron.AddFunc("@daily", r.gcTasks); err != nil {
			return err
		}
	}
	r.cron.Start()
	return nil
}

// Stop halts the cron loop, waiting for in-flight jobs.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
}

func (r *Runner) sweepApprovals() {
	expired, err := r.config.Approvals.ExpireTimedOut()
	if err != nil {
		r.logger.Error("approval expiry sweep failed", "error", err)
		return
	}
	if len(expired) > 0 {
		r.logger.Info("expired stale approval requests", "count", len(expired))
	}
}

func (r *Runner) cullCache() {
	n, err := r.config.Cache.CullExpired()
	if err != nil {
		r.logger.Error("cache cull failed", "error", err)
		return
	}
	if n > 0 {
		r.logger.Debug("culled expired cache entries", "count", n)
	}
}

func (r *Runner) gcTasks() {
	n, err := r.config.Scheduler.CleanupOldTasks(r.config.TaskRetentionDays)
	if err != nil {
		r.logger.Error("task GC failed", "error", err)
		return
	}
	if n > 0 {
		r.logger.Info("garbage-collected old tasks", "count", n, "retention_days", r.config.TaskRetentionDays)
	}
}
