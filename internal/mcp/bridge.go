package mcp

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/agiworkforce/workforce/internal/errdefs"
	"github.com/agiworkforce/workforce/internal/policy"
	"github.com/agiworkforce/workforce/internal/resources"
	"github.com/agiworkforce/workforce/internal/tools"
)

// bridgedTool exposes one remote MCP tool through the local registry.
// Parameter validation happens server-side against the advertised input
// schema; locally the arguments are a single schema-checked object.
type bridgedTool struct {
	client   *Client
	serverID string
	remote   *RemoteTool
	id       string
}

func newBridgedTool(client *Client, serverID string, remote *RemoteTool) *bridgedTool {
	return &bridgedTool{
		client:   client,
		serverID: serverID,
		remote:   remote,
		id:       BridgedToolID(serverID, remote.Name),
	}
}

// Descriptor projects the remote tool into the local descriptor model.
func (b *bridgedTool) Descriptor() tools.Descriptor {
	desc := strings.TrimSpace(b.remote.Description)
	if desc == "" {
		desc = "MCP tool " + b.serverID + "." + b.remote.Name
	} else {
		desc = "MCP tool " + b.serverID + "." + b.remote.Name + ": " + desc
	}

	schema := b.remote.InputSchema
	if len(schema) == 0 {
		schema = json.RawMessage(`{"type":"object"}`)
	}
	return tools.Descriptor{
		ID:           b.id,
		Name:         b.remote.Name,
		Description:  desc,
		Capabilities: []tools.Capability{tools.CapabilityNetworkOperation},
		Parameters: []tools.Parameter{
			{Name: "arguments", Type: tools.TypeObject, Required: false, Description: "Tool arguments, passed through verbatim.", Schema: schema},
		},
		Estimated:    resources.Usage{CPUPercent: 2, MemoryMB: 32, NetworkMbps: 1},
		Dependencies: []string{"mcp:" + b.serverID},
	}
}

// Actions grades every bridged call as a network request to the server.
func (b *bridgedTool) Actions(map[string]any) []policy.Action {
	return []policy.Action{{Kind: policy.ActionNetworkRequest, Domain: "mcp:" + b.serverID, Method: "POST"}}
}

// Execute forwards the call over the session.
func (b *bridgedTool) Execute(ctx context.Context, args map[string]any) (json.RawMessage, error) {
	arguments, _ := args["arguments"].(map[string]any)

	result, err := b.client.CallTool(ctx, b.remote.Name, arguments)
	if err != nil {
		return nil, errdefs.NewToolError(errdefs.ToolAPI, "mcp %s/%s", b.serverID, b.remote.Name).Wrap(err)
	}
	if result.IsError {
		return nil, errdefs.NewToolError(errdefs.ToolAPI, "mcp %s/%s: %s", b.serverID, b.remote.Name, flattenContent(result.Content))
	}
	return json.Marshal(map[string]any{"content": flattenContent(result.Content)})
}

func flattenContent(blocks []ContentBlock) string {
	var sb strings.Builder
	for _, block := range blocks {
		if block.Text != "" {
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}
