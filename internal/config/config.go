// Package config loads the runtime configuration: workspaces, resource
// limits, routing defaults, cache tuning, scheduler bounds, and MCP
// servers. Provider credentials come from the environment, never from
// the file.
package config

import (
	"os"
	"time"

	"github.com/agiworkforce/workforce/internal/errdefs"
)

// Config is the root configuration document.
type Config struct {
	// Logging configures the structured logger.
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// Routing sets the router defaults.
	Routing RoutingConfig `yaml:"routing" json:"routing"`

	// Cache tunes the LLM response cache.
	Cache CacheConfig `yaml:"cache" json:"cache"`

	// Scheduler bounds the executor pool.
	Scheduler SchedulerConfig `yaml:"scheduler" json:"scheduler"`

	// Resources bounds the reservation budgets.
	Resources ResourcesConfig `yaml:"resources" json:"resources"`

	// Workspaces are the registered directory trees.
	Workspaces []WorkspaceConfig `yaml:"workspaces" json:"workspaces"`

	// Policy configures risk grading inputs.
	Policy PolicyConfig `yaml:"policy" json:"policy"`

	// MCP lists external tool servers.
	MCP []MCPServerConfig `yaml:"mcp_servers" json:"mcp_servers"`

	// Store is the SQLite database path.
	Store StoreConfig `yaml:"store" json:"store"`

	// Ollama configures the local provider (the only provider with
	// file-level configuration; the rest are env-gated API keys).
	Ollama OllamaConfig `yaml:"ollama" json:"ollama"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// RoutingConfig sets router defaults.
type RoutingConfig struct {
	// Strategy is auto, cost_optimized, latency_optimized, local_first
	// or explicit.
	Strategy string `yaml:"strategy" json:"strategy"`

	// Provider and Model lead the chain when set.
	Provider string `yaml:"provider" json:"provider"`
	Model    string `yaml:"model" json:"model"`
}

// CacheConfig tunes the response cache.
type CacheConfig struct {
	TTL        Duration `yaml:"ttl" json:"ttl"`
	MaxEntries int           `yaml:"max_entries" json:"max_entries"`
}

// SchedulerConfig bounds the executor pool.
type SchedulerConfig struct {
	MaxConcurrent int           `yaml:"max_concurrent" json:"max_concurrent"`
	ShutdownGrace Duration `yaml:"shutdown_grace" json:"shutdown_grace"`

	// TaskRetentionDays bounds how long terminal task rows are kept.
	TaskRetentionDays int `yaml:"task_retention_days" json:"task_retention_days"`
}

// ResourcesConfig bounds the reservation budgets.
type ResourcesConfig struct {
	CPUPercent  float64 `yaml:"cpu_percent" json:"cpu_percent"`
	MemoryMB    float64 `yaml:"memory_mb" json:"memory_mb"`
	NetworkMbps float64 `yaml:"network_mbps" json:"network_mbps"`
	StorageMB   float64 `yaml:"storage_mb" json:"storage_mb"`
}

// WorkspaceConfig registers one workspace.
type WorkspaceConfig struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
	Root string `yaml:"root" json:"root"`
}

// PolicyConfig configures risk grading.
type PolicyConfig struct {
	// AllowedDomains receive low risk for GET requests.
	AllowedDomains []string `yaml:"allowed_domains" json:"allowed_domains"`

	// CriticalActions force critical risk for the named action kinds.
	CriticalActions []string `yaml:"critical_actions" json:"critical_actions"`

	// ApprovalTimeout bounds how long a tool waits on an approval.
	ApprovalTimeout Duration `yaml:"approval_timeout" json:"approval_timeout"`
}

// MCPServerConfig launches one MCP server.
type MCPServerConfig struct {
	ID      string            `yaml:"id" json:"id"`
	Command string            `yaml:"command" json:"command"`
	Args    []string          `yaml:"args" json:"args"`
	Env     map[string]string `yaml:"env" json:"env"`
	WorkDir string            `yaml:"workdir" json:"workdir"`
}

// StoreConfig locates the embedded database.
type StoreConfig struct {
	Path string `yaml:"path" json:"path"`
}

// OllamaConfig configures the local provider.
type OllamaConfig struct {
	BaseURL string `yaml:"base_url" json:"base_url"`
	Model   string `yaml:"model" json:"model"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Logging:   LoggingConfig{Level: "info", Format: "json"},
		Routing:   RoutingConfig{Strategy: "auto"},
		Cache:     CacheConfig{TTL: Duration(time.Hour), MaxEntries: 1000},
		Scheduler: SchedulerConfig{MaxConcurrent: 4, ShutdownGrace: Duration(10 * time.Second), TaskRetentionDays: 30},
		Resources: ResourcesConfig{CPUPercent: 80, MemoryMB: 2048, NetworkMbps: 100, StorageMB: 10240},
		Policy:    PolicyConfig{ApprovalTimeout: Duration(30 * time.Minute)},
		Store:     StoreConfig{Path: defaultStorePath()},
	}
}

func defaultStorePath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir + "/workforce/workforce.db"
	}
	return "workforce.db"
}

// Validate rejects incoherent configurations.
func (c *Config) Validate() error {
	if c.Scheduler.MaxConcurrent <= 0 {
		return errdefs.Config("scheduler.max_concurrent must be positive")
	}
	if c.Cache.MaxEntries <= 0 {
		return errdefs.Config("cache.max_entries must be positive")
	}
	if c.Cache.TTL <= 0 {
		return errdefs.Config("cache.ttl must be positive")
	}
	switch c.Routing.Strategy {
	case "", "auto", "cost_optimized", "latency_optimized", "local_first", "explicit":
	default:
		return errdefs.Config("routing.strategy %q is not recognized", c.Routing.Strategy)
	}
	for _, ws := range c.Workspaces {
		if ws.Root == "" {
			return errdefs.Config("workspace %q has no root", ws.ID)
		}
	}
	return nil
}

// Provider API keys are environment-gated; these helpers centralize the
// variable names.

// OpenAIKey returns OPENAI_API_KEY.
func OpenAIKey() string { return os.Getenv("OPENAI_API_KEY") }

// AnthropicKey returns ANTHROPIC_API_KEY.
func AnthropicKey() string { return os.Getenv("ANTHROPIC_API_KEY") }

// GoogleKey returns GOOGLE_API_KEY.
func GoogleKey() string { return os.Getenv("GOOGLE_API_KEY") }

// PerplexityKey returns PERPLEXITY_API_KEY.
func PerplexityKey() string { return os.Getenv("PERPLEXITY_API_KEY") }

// QwenKey returns QWEN_API_KEY (DashScope).
func QwenKey() string { return os.Getenv("QWEN_API_KEY") }
