// Package mcp implements a Model Context Protocol client over stdio:
// one child process per server, newline-delimited JSON-RPC 2.0, and a
// bridge that exposes remote tools through the local registry under
// mcp_<server>_<name> IDs.
package mcp

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// protocolVersion is the MCP revision this client negotiates.
const protocolVersion = "2024-11-05"

// ServerConfig describes one MCP server to launch.
type ServerConfig struct {
	// ID names the server; it prefixes every bridged tool.
	ID string `yaml:"id" json:"id"`

	// Command and Args launch the child process.
	Command string   `yaml:"command" json:"command"`
	Args    []string `yaml:"args" json:"args,omitempty"`

	// Env is appended to the child's environment.
	Env map[string]string `yaml:"env" json:"env,omitempty"`

	// WorkDir is the child's working directory.
	WorkDir string `yaml:"workdir" json:"workdir,omitempty"`

	// Timeout bounds each request/response exchange. Default: 30s.
	Timeout time.Duration `yaml:"timeout" json:"timeout,omitempty"`
}

// Validate rejects malformed server configurations.
func (c *ServerConfig) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("mcp server ID is required")
	}
	if strings.TrimSpace(c.Command) == "" {
		return fmt.Errorf("mcp server %s: command is required", c.ID)
	}
	if strings.Contains(c.Command, "..") {
		return fmt.Errorf("mcp server %s: command contains a parent traversal", c.ID)
	}
	return nil
}

// JSONRPCRequest is one outbound frame.
type JSONRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// JSONRPCResponse is one inbound reply frame.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// JSONRPCNotification is one inbound frame without an ID.
type JSONRPCNotification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCError is a server-reported failure.
type JSONRPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *JSONRPCError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// ServerInfo identifies the remote implementation.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeResult is the reply to the initialize handshake.
type InitializeResult struct {
	ProtocolVersion string          `json:"protocolVersion"`
	Capabilities    json.RawMessage `json:"capabilities,omitempty"`
	ServerInfo      ServerInfo      `json:"serverInfo"`
}

// RemoteTool is a tool advertised by a server.
type RemoteTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// RemoteResource is a resource advertised by a server.
type RemoteResource struct {
	URI         string `json:"uri"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ContentBlock is one element of a tool call or resource read result.
type ContentBlock struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	URI      string `json:"uri,omitempty"`
}

// CallResult is the reply to tools/call.
type CallResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// ReadResourceResult is the reply to resources/read.
type ReadResourceResult struct {
	Contents []ContentBlock `json:"contents"`
}

// BridgedToolID composes the registry ID for a remote tool.
func BridgedToolID(serverID, toolName string) string {
	sanitize := func(s string) string {
		var b strings.Builder
		for _, r := range s {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
				b.WriteRune(r)
			default:
				b.WriteRune('_')
			}
		}
		return b.String()
	}
	return "mcp_" + sanitize(serverID) + "_" + sanitize(toolName)
}
