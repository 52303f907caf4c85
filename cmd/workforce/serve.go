package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agiworkforce/workforce/internal/config"
	"github.com/agiworkforce/workforce/internal/llm"
	"github.com/agiworkforce/workforce/internal/llm/providers"
	"github.com/agiworkforce/workforce/internal/maintenance"
	"github.com/agiworkforce/workforce/internal/mcp"
	"github.com/agiworkforce/workforce/internal/observability"
	"github.com/agiworkforce/workforce/internal/orchestrator"
	"github.com/agiworkforce/workforce/internal/policy"
	"github.com/agiworkforce/workforce/internal/resources"
	"github.com/agiworkforce/workforce/internal/scheduler"
	"github.com/agiworkforce/workforce/internal/store"
	"github.com/agiworkforce/workforce/internal/tools"
	"github.com/agiworkforce/workforce/internal/tools/builtin"
	"github.com/agiworkforce/workforce/pkg/models"

	"github.com/prometheus/client_golang/prometheus"
)

// runtime is the assembled process: every core component plus the
// shutdown order that tears them down.
type runtime struct {
	cfg       *config.Config
	logger    *slog.Logger
	st        *store.Store
	sink      *observability.EventSink
	metrics   *observability.Metrics
	router    *llm.Router
	registry  *tools.Registry
	executor  *tools.Executor
	sched     *scheduler.Scheduler
	approvals *policy.Engine
	orch      *orchestrator.Orchestrator
	mcpMgr    *mcp.Manager
	maint     *maintenance.Runner
}

// buildRuntime wires the process from configuration. Initialization
// order follows the dependency graph: store, observability, providers,
// policy, tools, scheduler, orchestrator.
func buildRuntime(configPath string) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	slog.SetDefault(logger)

	if dir := filepath.Dir(cfg.Store.Path); dir != "." && cfg.Store.Path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, err
	}

	sink := observability.NewEventSink()
	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)

	// Providers register once at startup; unconfigured adapters stay
	// registered but are never routed to.
	providerRegistry := llm.DefaultRegistry()
	providerRegistry.Register(providers.NewAnthropicClient(providers.AnthropicConfig{APIKey: config.AnthropicKey()}))
	providerRegistry.Register(providers.NewOpenAIClient(config.OpenAIKey()))
	providerRegistry.Register(providers.NewGoogleClient(providers.GoogleConfig{APIKey: config.GoogleKey()}))
	providerRegistry.Register(providers.NewPerplexityClient(config.PerplexityKey()))
	providerRegistry.Register(providers.NewQwenClient(config.QwenKey()))
	providerRegistry.Register(providers.NewOllamaClient(providers.OllamaConfig{
		BaseURL: cfg.Ollama.BaseURL,
		Model:   cfg.Ollama.Model,
	}))

	cache, err := llm.NewResponseCache(st.DB(), llm.CacheConfig{
		TTL:        cfg.Cache.TTL.Std(),
		MaxEntries: cfg.Cache.MaxEntries,
	})
	if err != nil {
		return nil, err
	}

	router := llm.NewRouter(llm.RouterConfig{
		Registry:        providerRegistry,
		Cache:           cache,
		Metrics:         metrics,
		DefaultStrategy: llm.RoutingStrategy(cfg.Routing.Strategy),
		Logger:          logger,
	})

	scope := policy.NewScopeManager()
	for _, ws := range cfg.Workspaces {
		if err := scope.AddWorkspace(policy.Workspace{ID: ws.ID, Name: ws.Name, Root: ws.Root, CreatedAt: time.Now().UTC()}); err != nil {
			logger.Warn("skipping workspace", "id", ws.ID, "error", err)
		}
	}
	var criticalKinds []policy.ActionKind
	for _, kind := range cfg.Policy.CriticalActions {
		criticalKinds = append(criticalKinds, policy.ActionKind(kind))
	}
	classifier := policy.NewClassifier(scope, cfg.Policy.AllowedDomains, criticalKinds)
	approvals := policy.NewEngine(st, sink, metrics)

	toolRegistry := tools.DefaultRegistry()
	builtin.RegisterBuiltins(toolRegistry, st.DB())

	resourceMgr := resources.NewManager(resources.Limits{
		CPUPercent:  cfg.Resources.CPUPercent,
		MemoryMB:    cfg.Resources.MemoryMB,
		NetworkMbps: cfg.Resources.NetworkMbps,
		StorageMB:   cfg.Resources.StorageMB,
	}, resources.NewHostSampler())

	executor := tools.NewExecutor(tools.ExecutorConfig{
		Registry:        toolRegistry,
		Resources:       resourceMgr,
		Classifier:      classifier,
		Gate:            approvals,
		Sink:            sink,
		Metrics:         metrics,
		Logger:          logger,
		ApprovalTimeout: cfg.Policy.ApprovalTimeout.Std(),
	})

	sched := scheduler.New(scheduler.Config{
		MaxConcurrent: cfg.Scheduler.MaxConcurrent,
		ShutdownGrace: cfg.Scheduler.ShutdownGrace.Std(),
		Store:         st,
		Sink:          sink,
		Metrics:       metrics,
		Logger:        logger,
	})
	if err := sched.Restore(); err != nil {
		logger.Warn("task restore failed", "error", err)
	}

	orch := orchestrator.New(orchestrator.Config{
		Router:   router,
		Registry: toolRegistry,
		Executor: executor,
		Sched:    sched,
		Sink:     sink,
		Logger:   logger,
		Preferences: llm.Preferences{
			Strategy: llm.RoutingStrategy(cfg.Routing.Strategy),
			Provider: llm.Provider(cfg.Routing.Provider),
			Model:    cfg.Routing.Model,
		},
	})

	mcpMgr := mcp.NewManager(toolRegistry, logger)
	var mcpConfigs []mcp.ServerConfig
	for _, server := range cfg.MCP {
		mcpConfigs = append(mcpConfigs, mcp.ServerConfig{
			ID:      server.ID,
			Command: server.Command,
			Args:    server.Args,
			Env:     server.Env,
			WorkDir: server.WorkDir,
		})
	}
	if len(mcpConfigs) > 0 {
		if err := mcpMgr.Start(context.Background(), mcpConfigs); err != nil {
			logger.Warn("mcp startup failed", "error", err)
		}
	}

	maint := maintenance.New(maintenance.Config{
		Approvals:         approvals,
		Scheduler:         sched,
		Cache:             cache,
		TaskRetentionDays: cfg.Scheduler.TaskRetentionDays,
		Logger:            logger,
	})
	if err := maint.Start(); err != nil {
		return nil, err
	}

	return &runtime{
		cfg:       cfg,
		logger:    logger,
		st:        st,
		sink:      sink,
		metrics:   metrics,
		router:    router,
		registry:  toolRegistry,
		executor:  executor,
		sched:     sched,
		approvals: approvals,
		orch:      orch,
		mcpMgr:    mcpMgr,
		maint:     maint,
	}, nil
}

// shutdown tears the runtime down in reverse dependency order.
func (r *runtime) shutdown() {
	r.maint.Stop()
	r.mcpMgr.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := r.sched.Shutdown(ctx); err != nil {
		r.logger.Warn("scheduler shutdown incomplete", "error", err)
	}
	if err := r.st.Close(); err != nil {
		r.logger.Warn("store close failed", "error", err)
	}
}

func newServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the workforce runtime and wait for goals",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := buildRuntime(*configPath)
			if err != nil {
				return err
			}
			defer rt.shutdown()

			rt.logger.Info("workforce runtime started",
				"providers", len(llm.DefaultRegistry().Configured()),
				"tools", len(rt.registry.List()),
				"max_concurrent", rt.cfg.Scheduler.MaxConcurrent)

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
			<-stop
			rt.logger.Info("shutting down")
			return nil
		},
	}
}

func newRunCommand(configPath *string) *cobra.Command {
	var priority string
	cmd := &cobra.Command{
		Use:   "run [goal description]",
		Short: "Run a single goal to completion and print the result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(*configPath)
			if err != nil {
				return err
			}
			defer rt.shutdown()

			goal := &models.Goal{
				Description: args[0],
				Priority:    models.ParsePriority(priority),
			}
			plan, err := rt.orch.Run(cmd.Context(), goal)
			if err != nil {
				return fmt.Errorf("goal failed: %w", err)
			}

			fmt.Printf("goal %s: %s\n", goal.ID, goal.Status)
			for _, step := range plan.Steps {
				fmt.Printf("  %s (%s): %s\n", step.ID, step.ToolID, step.Status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&priority, "priority", "medium", "goal priority: low, medium, high, critical")
	return cmd
}
