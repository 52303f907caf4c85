// Package tools provides the tool registry and the uniform invocation
// surface over the heterogeneous tool set: parameter validation,
// resource reservation, policy gating, capability-class retries, and
// audit events.
package tools

import (
	"context"
	"encoding/json"

	"github.com/agiworkforce/workforce/internal/llm"
	"github.com/agiworkforce/workforce/internal/policy"
	"github.com/agiworkforce/workforce/internal/resources"
)

// Capability tags the kinds of side effects a tool may have.
type Capability string

const (
	CapabilityFileRead         Capability = "file_read"
	CapabilityFileWrite        Capability = "file_write"
	CapabilityNetworkOperation Capability = "network_operation"
	CapabilityShellExecute     Capability = "shell_execute"
	CapabilityUIAutomation     Capability = "ui_automation"
	CapabilityCredentialAccess Capability = "credential_access"
	CapabilityDatabaseAccess   Capability = "database_access"
)

// ParamType enumerates the accepted parameter types. FilePath and URL
// are strings with additional shape checks at validation time.
type ParamType string

const (
	TypeString   ParamType = "string"
	TypeInteger  ParamType = "integer"
	TypeFloat    ParamType = "float"
	TypeBoolean  ParamType = "boolean"
	TypeObject   ParamType = "object"
	TypeArray    ParamType = "array"
	TypeFilePath ParamType = "file_path"
	TypeURL      ParamType = "url"
)

// Parameter describes one tool argument. Parameters are ordered; the
// order is preserved in the projected function schema.
type Parameter struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	Required    bool      `json:"required"`
	Description string    `json:"description,omitempty"`

	// Default fills an absent optional parameter.
	Default any `json:"default,omitempty"`

	// Schema optionally constrains Object parameters with a JSON Schema
	// document, enforced at validation time.
	Schema json.RawMessage `json:"schema,omitempty"`
}

// Descriptor is the static, process-wide immutable description of a
// tool.
type Descriptor struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	Capabilities []Capability    `json:"capabilities,omitempty"`
	Parameters   []Parameter     `json:"parameters,omitempty"`
	Estimated    resources.Usage `json:"estimated_resources"`
	Dependencies []string        `json:"dependencies,omitempty"`
}

// Tool pairs a descriptor with its implementation. Actions reports the
// privileged operations one invocation would perform, for the policy
// gate; Execute performs the side effect.
type Tool interface {
	Descriptor() Descriptor
	Actions(args map[string]any) []policy.Action
	Execute(ctx context.Context, args map[string]any) (json.RawMessage, error)
}

// FunctionSchema projects the descriptor to the provider-agnostic
// function schema the router sends to LLMs.
func (d Descriptor) FunctionSchema() llm.ToolDefinition {
	properties := make(map[string]any, len(d.Parameters))
	var required []string
	for _, p := range d.Parameters {
		prop := map[string]any{"type": schemaType(p.Type)}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		// The schema is built from plain maps; marshalling cannot fail
		// with well-formed descriptors.
		raw = json.RawMessage(`{"type":"object"}`)
	}
	return llm.ToolDefinition{
		Name:        d.ID,
		Description: d.Description,
		Parameters:  raw,
	}
}

func schemaType(t ParamType) string {
	switch t {
	case TypeInteger:
		return "integer"
	case TypeFloat:
		return "number"
	case TypeBoolean:
		return "boolean"
	case TypeObject:
		return "object"
	case TypeArray:
		return "array"
	default:
		// FilePath and URL are strings on the wire.
		return "string"
	}
}
