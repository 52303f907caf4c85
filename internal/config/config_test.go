package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaultsWhenNoPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Scheduler.MaxConcurrent != 4 || cfg.Cache.MaxEntries != 1000 {
		t.Errorf("defaults wrong: %+v", cfg)
	}
	if cfg.Routing.Strategy != "auto" {
		t.Errorf("default strategy = %s", cfg.Routing.Strategy)
	}
}

func TestLoadYAMLOverlay(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
routing:
  strategy: cost_optimized
cache:
  ttl: 30m
  max_entries: 50
scheduler:
  max_concurrent: 8
workspaces:
  - id: ws1
    name: projects
    root: /home/user/projects
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Routing.Strategy != "cost_optimized" {
		t.Errorf("strategy = %s", cfg.Routing.Strategy)
	}
	if cfg.Cache.TTL.Std() != 30*time.Minute || cfg.Cache.MaxEntries != 50 {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if cfg.Scheduler.MaxConcurrent != 8 {
		t.Errorf("max_concurrent = %d", cfg.Scheduler.MaxConcurrent)
	}
	if len(cfg.Workspaces) != 1 || cfg.Workspaces[0].Root != "/home/user/projects" {
		t.Errorf("workspaces = %+v", cfg.Workspaces)
	}
	// Untouched sections keep their defaults.
	if cfg.Resources.CPUPercent != 80 {
		t.Errorf("resources default lost: %+v", cfg.Resources)
	}
}

func TestLoadJSON5(t *testing.T) {
	path := writeConfig(t, "config.json5", `{
	// comments are allowed
	routing: {strategy: "local_first"},
	ollama: {model: "llama3"},
}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Routing.Strategy != "local_first" || cfg.Ollama.Model != "llama3" {
		t.Errorf("json5 overlay lost: %+v", cfg.Routing)
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("TEST_WS_ROOT", "/srv/data")
	path := writeConfig(t, "config.yaml", `
workspaces:
  - id: ws1
    name: data
    root: ${TEST_WS_ROOT}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Workspaces[0].Root != "/srv/data" {
		t.Errorf("env not expanded: %s", cfg.Workspaces[0].Root)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := []string{
		"routing:\n  strategy: warp_speed\n",
		"scheduler:\n  max_concurrent: -1\n",
		"cache:\n  max_entries: 0\n",
	}
	for _, content := range cases {
		path := writeConfig(t, "bad.yaml", content)
		if _, err := Load(path); err == nil {
			t.Errorf("config %q should be rejected", content)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/does/not/exist.yaml"); err == nil {
		t.Error("missing file should error")
	}
}
