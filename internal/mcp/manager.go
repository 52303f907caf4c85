package mcp

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/agiworkforce/workforce/internal/retry"
	"github.com/agiworkforce/workforce/internal/tools"
)

// restartPolicy governs reconnection after a server dies mid-session:
// exponential backoff from 1s to 30s, five attempts, then the server
// stays down until the next manager start.
func restartPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:  5,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Backoff:      retry.StrategyExponential,
		Factor:       2.0,
		Jitter:       true,
	}
}

// Manager launches the configured servers, bridges their tools into the
// registry, and restarts servers that die.
type Manager struct {
	registry *tools.Registry
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[string]*Client
	bridged map[string][]string

	watchCancel context.CancelFunc
	wg          sync.WaitGroup
}

// NewManager creates a manager registering bridged tools on registry.
func NewManager(registry *tools.Registry, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default().With("component", "mcp-manager")
	}
	return &Manager{
		registry: registry,
		logger:   logger,
		clients:  make(map[string]*Client),
		bridged:  make(map[string][]string),
	}
}

// Start connects every configured server and begins health watching.
// Individual server failures are logged, not fatal.
func (m *Manager) Start(ctx context.Context, configs []ServerConfig) error {
	for i := range configs {
		cfg := configs[i]
		if err := cfg.Validate(); err != nil {
			m.logger.Warn("skipping invalid MCP server config", "error", err)
			continue
		}
		if err := m.connect(ctx, &cfg); err != nil {
			m.logger.Warn("MCP server failed to start", "server", cfg.ID, "error", err)
		}
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	m.watchCancel = cancel
	m.wg.Add(1)
	go m.watch(watchCtx)
	return nil
}

// Stop disconnects every server and unregisters their tools.
func (m *Manager) Stop() {
	if m.watchCancel != nil {
		m.watchCancel()
	}
	m.wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, client := range m.clients {
		m.unbridgeLocked(id)
		_ = client.Close()
		delete(m.clients, id)
	}
}

// Client returns the client for a server ID.
func (m *Manager) Client(serverID string) (*Client, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[serverID]
	return c, ok
}

func (m *Manager) connect(ctx context.Context, cfg *ServerConfig) error {
	client := NewClient(cfg, m.logger)
	if err := client.Connect(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[cfg.ID] = client
	m.bridgeLocked(cfg.ID, client)
	return nil
}

// bridgeLocked registers every advertised tool. Callers hold mu.
func (m *Manager) bridgeLocked(serverID string, client *Client) {
	var ids []string
	for _, remote := range client.Tools() {
		bridge := newBridgedTool(client, serverID, remote)
		m.registry.Register(bridge)
		ids = append(ids, bridge.Descriptor().ID)
	}
	m.bridged[serverID] = ids
	m.logger.Info("bridged MCP tools", "server", serverID, "count", len(ids))
}

// unbridgeLocked removes a server's tools. Callers hold mu.
func (m *Manager) unbridgeLocked(serverID string) {
	for _, id := range m.bridged[serverID] {
		m.registry.Unregister(id)
	}
	delete(m.bridged, serverID)
}

// watch polls connection health and restarts dead servers under the
// restart policy.
func (m *Manager) watch(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		m.mu.Lock()
		var dead []*Client
		for _, client := range m.clients {
			if !client.Connected() {
				dead = append(dead, client)
			}
		}
		m.mu.Unlock()

		for _, client := range dead {
			m.restart(ctx, client)
		}
	}
}

func (m *Manager) restart(ctx context.Context, old *Client) {
	cfg := old.config
	m.logger.Warn("MCP server disconnected, restarting", "server", cfg.ID)

	m.mu.Lock()
	m.unbridgeLocked(cfg.ID)
	delete(m.clients, cfg.ID)
	m.mu.Unlock()
	_ = old.Close()

	result := retry.Do(ctx, restartPolicy(), func() error {
		return m.connect(ctx, cfg)
	})
	if result.Err != nil {
		m.logger.Error("MCP server restart failed, giving up",
			"server", cfg.ID, "attempts", result.Attempts, "error", result.Err)
		return
	}
	m.logger.Info("MCP server restarted", "server", cfg.ID, "attempts", result.Attempts)
}
