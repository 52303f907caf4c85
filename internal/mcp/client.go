package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Client wraps one transport with the MCP handshake and typed calls.
type Client struct {
	config    *ServerConfig
	transport *Transport
	logger    *slog.Logger

	mu        sync.RWMutex
	tools     []*RemoteTool
	resources []*RemoteResource
	info      ServerInfo
}

// NewClient creates a client for one server.
func NewClient(cfg *ServerConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		config:    cfg,
		transport: NewTransport(cfg, logger),
		logger:    logger.With("mcp_server", cfg.ID),
	}
}

// Connect launches the process, performs the initialize handshake, and
// loads the server's tool and resource lists.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.transport.Connect(ctx); err != nil {
		return fmt.Errorf("transport connect: %w", err)
	}

	result, err := c.transport.Call(ctx, "initialize", map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    "workforce",
			"version": "1.0.0",
		},
	})
	if err != nil {
		c.transport.Close()
		return fmt.Errorf("initialize: %w", err)
	}
	var init InitializeResult
	if err := json.Unmarshal(result, &init); err != nil {
		c.transport.Close()
		return fmt.Errorf("parse initialize result: %w", err)
	}
	c.mu.Lock()
	c.info = init.ServerInfo
	c.mu.Unlock()

	if err := c.transport.Notify(ctx, "notifications/initialized", nil); err != nil {
		c.logger.Warn("initialized notification failed", "error", err)
	}

	c.logger.Info("connected to MCP server",
		"name", init.ServerInfo.Name,
		"version", init.ServerInfo.Version,
		"protocol", init.ProtocolVersion)

	if err := c.RefreshCapabilities(ctx); err != nil {
		c.logger.Warn("capability refresh failed", "error", err)
	}
	return nil
}

// Connected reports whether the underlying transport is alive.
func (c *Client) Connected() bool {
	return c.transport.Connected()
}

// Close shuts down the server process.
func (c *Client) Close() error {
	return c.transport.Close()
}

// RefreshCapabilities reloads the tool and resource lists.
func (c *Client) RefreshCapabilities(ctx context.Context) error {
	toolsRaw, err := c.transport.Call(ctx, "tools/list", map[string]any{})
	if err != nil {
		return fmt.Errorf("tools/list: %w", err)
	}
	var toolsResult struct {
		Tools []*RemoteTool `json:"tools"`
	}
	if err := json.Unmarshal(toolsRaw, &toolsResult); err != nil {
		return fmt.Errorf("parse tools/list: %w", err)
	}

	var resourcesResult struct {
		Resources []*RemoteResource `json:"resources"`
	}
	// resources/list is optional; servers without it just expose tools.
	if resourcesRaw, err := c.transport.Call(ctx, "resources/list", map[string]any{}); err == nil {
		_ = json.Unmarshal(resourcesRaw, &resourcesResult)
	}

	c.mu.Lock()
	c.tools = toolsResult.Tools
	c.resources = resourcesResult.Resources
	c.mu.Unlock()
	return nil
}

// Tools returns the advertised tools.
func (c *Client) Tools() []*RemoteTool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*RemoteTool, len(c.tools))
	copy(out, c.tools)
	return out
}

// Resources returns the advertised resources.
func (c *Client) Resources() []*RemoteResource {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*RemoteResource, len(c.resources))
	copy(out, c.resources)
	return out
}

// CallTool invokes a remote tool. Arguments pass through verbatim.
func (c *Client) CallTool(ctx context.Context, toolName string, arguments map[string]any) (*CallResult, error) {
	raw, err := c.transport.Call(ctx, "tools/call", map[string]any{
		"name":      toolName,
		"arguments": arguments,
	})
	if err != nil {
		return nil, err
	}
	var result CallResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("parse tools/call result: %w", err)
	}
	return &result, nil
}

// ReadResource reads one resource by URI.
func (c *Client) ReadResource(ctx context.Context, uri string) (*ReadResourceResult, error) {
	raw, err := c.transport.Call(ctx, "resources/read", map[string]any{"uri": uri})
	if err != nil {
		return nil, err
	}
	var result ReadResourceResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("parse resources/read result: %w", err)
	}
	return &result, nil
}
