// Package llm implements the multi-provider LLM router: provider
// registry, strategy-driven candidate selection, streaming, tool-call
// translation, and a content-addressed response cache.
//
// The router presents one canonical request/response shape; provider
// adapters in the providers subpackage map it to each native wire format.
package llm

import (
	"encoding/json"
	"time"
)

// Provider tags a registered provider implementation. The set is
// extensible; these are the well-known tags.
type Provider string

const (
	ProviderOpenAI     Provider = "openai"
	ProviderAnthropic  Provider = "anthropic"
	ProviderGoogle     Provider = "google"
	ProviderOllama     Provider = "ollama"
	ProviderPerplexity Provider = "perplexity"
	ProviderQwen       Provider = "qwen"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentPart is one element of a multimodal message: text or an image.
type ContentPart struct {
	// Type is "text" or "image".
	Type string `json:"type"`

	// Text is set for text parts.
	Text string `json:"text,omitempty"`

	// MimeType and Data carry base64 image payloads for image parts.
	MimeType string `json:"mime_type,omitempty"`
	Data     string `json:"data,omitempty"`
}

// Message is one turn in a conversation.
type Message struct {
	// Role is who authored the message.
	Role Role `json:"role"`

	// Content is the message text.
	Content string `json:"content"`

	// ToolCalls carries assistant tool-use requests.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID correlates a role=tool message with the call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`

	// Multimodal carries optional image/text parts for vision models.
	// When set, Content is ignored by adapters that support it.
	Multimodal []ContentPart `json:"multimodal_content,omitempty"`
}

// ToolCall is a provider-normalized tool invocation request. Arguments
// are kept as the wire JSON string; the orchestrator canonicalizes them
// to an object before dispatch.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDefinition describes a callable tool in provider-agnostic form.
// Parameters is a JSON Schema object.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolChoiceMode selects how the model may use tools.
type ToolChoiceMode string

const (
	ToolChoiceAuto     ToolChoiceMode = "auto"
	ToolChoiceRequired ToolChoiceMode = "required"
	ToolChoiceNone     ToolChoiceMode = "none"
	ToolChoiceSpecific ToolChoiceMode = "specific"
)

// ToolChoice constrains tool selection. Name is set only for
// ToolChoiceSpecific.
type ToolChoice struct {
	Mode ToolChoiceMode `json:"mode"`
	Name string         `json:"name,omitempty"`
}

// Request is the canonical LLM request.
type Request struct {
	// Messages is the conversation, in order. System messages are mapped
	// to each provider's native system slot.
	Messages []Message `json:"messages"`

	// Model is the model identifier; empty selects the provider default.
	Model string `json:"model,omitempty"`

	// Temperature, when non-nil, overrides the provider default.
	Temperature *float64 `json:"temperature,omitempty"`

	// MaxTokens bounds the completion length; 0 uses the provider default.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Stream requests a streaming response.
	Stream bool `json:"stream,omitempty"`

	// Tools lists the callable tools, if any.
	Tools []ToolDefinition `json:"tools,omitempty"`

	// ToolChoice constrains tool use; nil means auto when Tools is set.
	ToolChoice *ToolChoice `json:"tool_choice,omitempty"`
}

// TokenUsage counts tokens for one exchange.
type TokenUsage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// Response is the canonical LLM response.
type Response struct {
	// Content is the assistant text.
	Content string `json:"content"`

	// ToolCalls are normalized tool-use requests, if any.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// Tokens is the usage reported by the provider.
	Tokens TokenUsage `json:"tokens"`

	// CostUSD is computed from the static price table.
	CostUSD float64 `json:"cost_usd"`

	// Model is the model that produced the response.
	Model string `json:"model"`

	// Cached is true when the response was served from the cache.
	Cached bool `json:"cached"`

	// FinishReason is the provider's stop reason, normalized to
	// "stop", "length", "tool_calls" or "content_filter".
	FinishReason string `json:"finish_reason,omitempty"`
}

// StreamChunk is one element of a streaming response. Exactly one of the
// fields is meaningful per chunk.
type StreamChunk struct {
	// DeltaText is concatenative assistant text.
	DeltaText string `json:"delta_text,omitempty"`

	// DeltaToolCall accumulates a tool call by ID; Arguments fragments
	// append in arrival order.
	DeltaToolCall *ToolCall `json:"delta_tool_call,omitempty"`

	// FinishReason is set on the final chunk.
	FinishReason string `json:"finish_reason,omitempty"`

	// Usage is set on the final chunk when the provider reports it.
	Usage *TokenUsage `json:"usage,omitempty"`

	// Err terminates the stream when non-nil.
	Err error `json:"-"`
}

// RoutingStrategy selects how candidates are ordered.
type RoutingStrategy string

const (
	StrategyAuto             RoutingStrategy = "auto"
	StrategyCostOptimized    RoutingStrategy = "cost_optimized"
	StrategyLatencyOptimized RoutingStrategy = "latency_optimized"
	StrategyLocalFirst       RoutingStrategy = "local_first"
	StrategyExplicit         RoutingStrategy = "explicit"
)

// Preferences steer candidate selection for one request.
type Preferences struct {
	// Strategy orders the fallback chain; empty means StrategyAuto.
	Strategy RoutingStrategy `json:"strategy,omitempty"`

	// Provider, when set and configured, leads the chain regardless of
	// strategy (and is the sole meaning of StrategyExplicit).
	Provider Provider `json:"provider,omitempty"`

	// Model overrides the provider default for the preferred provider.
	Model string `json:"model,omitempty"`
}

// Candidate is one (provider, model) pair in the fallback chain.
type Candidate struct {
	Provider Provider `json:"provider"`
	Model    string   `json:"model"`
	Reason   string   `json:"reason"`
}

// Invocation reports a single candidate call for inspection.
type Invocation struct {
	Response  *Response     `json:"response"`
	LatencyMS int64         `json:"latency_ms"`
	Duration  time.Duration `json:"-"`
}
