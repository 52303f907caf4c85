package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/agiworkforce/workforce/internal/errdefs"
	"github.com/agiworkforce/workforce/internal/llm"
)

const defaultAnthropicModel = "claude-sonnet-4-20250514"

// AnthropicClient adapts Anthropic's Messages API to the router contract.
//
// Safe for concurrent use; each Stream call owns an independent SSE
// stream and goroutine.
type AnthropicClient struct {
	client       anthropic.Client
	apiKey       string
	defaultModel string
}

// AnthropicConfig configures the Anthropic adapter.
type AnthropicConfig struct {
	// APIKey authenticates against the API. Empty leaves the adapter
	// unconfigured (registered but never routed to).
	APIKey string

	// BaseURL overrides the API endpoint, for proxies.
	BaseURL string

	// DefaultModel is used when requests carry no model.
	DefaultModel string
}

// NewAnthropicClient creates the adapter.
func NewAnthropicClient(cfg AnthropicConfig) *AnthropicClient {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = defaultAnthropicModel
	}
	options := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		options = append(options, option.WithBaseURL(cfg.BaseURL))
	}
	return &AnthropicClient{
		client:       anthropic.NewClient(options...),
		apiKey:       cfg.APIKey,
		defaultModel: cfg.DefaultModel,
	}
}

// Name returns the provider tag.
func (c *AnthropicClient) Name() llm.Provider { return llm.ProviderAnthropic }

// IsConfigured reports whether an API key is present.
func (c *AnthropicClient) IsConfigured() bool { return c.apiKey != "" }

// SupportsFunctionCalling reports tool-use capability.
func (c *AnthropicClient) SupportsFunctionCalling() bool { return true }

// DefaultModel returns the model used when a request has none.
func (c *AnthropicClient) DefaultModel() string { return c.defaultModel }

// Send performs a blocking completion.
func (c *AnthropicClient) Send(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	params, err := c.buildParams(req)
	if err != nil {
		return nil, err
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, wrapAnthropicError(err, c.model(req))
	}

	resp := &llm.Response{
		Model: c.model(req),
		Tokens: llm.TokenUsage{
			Prompt:     int(msg.Usage.InputTokens),
			Completion: int(msg.Usage.OutputTokens),
			Total:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
		FinishReason: normalizeStopReason(string(msg.StopReason)),
	}

	var text strings.Builder
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.AsText().Text)
		case "tool_use":
			toolUse := block.AsToolUse()
			resp.ToolCalls = append(resp.ToolCalls, llm.ToolCall{
				ID:        toolUse.ID,
				Name:      toolUse.Name,
				Arguments: string(toolUse.Input),
			})
		}
	}
	resp.Content = text.String()
	return resp, nil
}

// Stream performs a streaming completion. The returned channel yields
// text deltas as they arrive and accumulated tool calls as the provider
// finalizes each block; it closes after the final chunk.
func (c *AnthropicClient) Stream(ctx context.Context, req *llm.Request) (<-chan llm.StreamChunk, error) {
	params, err := c.buildParams(req)
	if err != nil {
		return nil, err
	}

	stream := c.client.Messages.NewStreaming(ctx, params)
	chunks := make(chan llm.StreamChunk)

	go func() {
		defer close(chunks)

		var currentTool *llm.ToolCall
		var toolInput strings.Builder
		var usage llm.TokenUsage
		finish := "stop"

		for stream.Next() {
			if ctx.Err() != nil {
				chunks <- llm.StreamChunk{Err: ctx.Err()}
				return
			}
			event := stream.Current()

			switch event.Type {
			case "message_start":
				start := event.AsMessageStart()
				usage.Prompt = int(start.Message.Usage.InputTokens)

			case "content_block_start":
				block := event.AsContentBlockStart().ContentBlock
				if block.Type == "tool_use" {
					toolUse := block.AsToolUse()
					currentTool = &llm.ToolCall{ID: toolUse.ID, Name: toolUse.Name}
					toolInput.Reset()
				}

			case "content_block_delta":
				delta := event.AsContentBlockDelta().Delta
				switch delta.Type {
				case "text_delta":
					if delta.Text != "" {
						select {
						case chunks <- llm.StreamChunk{DeltaText: delta.Text}:
						case <-ctx.Done():
							return
						}
					}
				case "input_json_delta":
					if delta.PartialJSON != "" && currentTool != nil {
						toolInput.WriteString(delta.PartialJSON)
						call := *currentTool
						call.Arguments = delta.PartialJSON
						select {
						case chunks <- llm.StreamChunk{DeltaToolCall: &call}:
						case <-ctx.Done():
							return
						}
					}
				}

			case "content_block_stop":
				currentTool = nil

			case "message_delta":
				delta := event.AsMessageDelta()
				if delta.Usage.OutputTokens > 0 {
					usage.Completion = int(delta.Usage.OutputTokens)
				}
				if delta.Delta.StopReason != "" {
					finish = normalizeStopReason(string(delta.Delta.StopReason))
				}

			case "message_stop":
				usage.Total = usage.Prompt + usage.Completion
				chunks <- llm.StreamChunk{FinishReason: finish, Usage: &usage}
				return
			}
		}

		if err := stream.Err(); err != nil {
			chunks <- llm.StreamChunk{Err: wrapAnthropicError(err, c.model(req))}
		}
	}()

	return chunks, nil
}

func (c *AnthropicClient) model(req *llm.Request) string {
	if req.Model != "" {
		return req.Model
	}
	return c.defaultModel
}

func (c *AnthropicClient) buildParams(req *llm.Request) (anthropic.MessageNewParams, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model(req)),
		MaxTokens: int64(maxTokens),
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}

	// System messages map to the dedicated system slot.
	var system strings.Builder
	var messages []anthropic.MessageParam
	for _, m := range req.Messages {
		switch m.Role {
		case llm.RoleSystem:
			if system.Len() > 0 {
				system.WriteString("\n")
			}
			system.WriteString(m.Content)

		case llm.RoleTool:
			messages = append(messages, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false)))

		case llm.RoleAssistant:
			var content []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				content = append(content, anthropic.NewTextBlock(m.Content))
			}
			for _, call := range m.ToolCalls {
				var input map[string]any
				if err := json.Unmarshal([]byte(call.Arguments), &input); err != nil {
					return params, errdefs.NewLLMError(errdefs.LLMInvalidResponse, "invalid tool call arguments for %s", call.Name).Wrap(err)
				}
				content = append(content, anthropic.NewToolUseBlock(call.ID, input, call.Name))
			}
			messages = append(messages, anthropic.NewAssistantMessage(content...))

		default:
			content := convertMultimodalAnthropic(m)
			messages = append(messages, anthropic.NewUserMessage(content...))
		}
	}
	params.Messages = messages
	if system.Len() > 0 {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: system.String()}}
	}

	if len(req.Tools) > 0 {
		tools, err := convertToolsAnthropic(req.Tools)
		if err != nil {
			return params, err
		}
		params.Tools = tools
		if choice := convertToolChoiceAnthropic(req.ToolChoice); choice != nil {
			params.ToolChoice = *choice
		}
	}
	return params, nil
}

func convertMultimodalAnthropic(m llm.Message) []anthropic.ContentBlockParamUnion {
	if len(m.Multimodal) == 0 {
		return []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(m.Content)}
	}
	var content []anthropic.ContentBlockParamUnion
	for _, part := range m.Multimodal {
		switch part.Type {
		case "image":
			content = append(content, anthropic.NewImageBlockBase64(part.MimeType, part.Data))
		default:
			if part.Text != "" {
				content = append(content, anthropic.NewTextBlock(part.Text))
			}
		}
	}
	if len(content) == 0 {
		content = append(content, anthropic.NewTextBlock(m.Content))
	}
	return content
}

func convertToolsAnthropic(tools []llm.ToolDefinition) ([]anthropic.ToolUnionParam, error) {
	var result []anthropic.ToolUnionParam
	for _, tool := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(tool.Parameters, &schema); err != nil {
			return nil, fmt.Errorf("invalid schema for tool %s: %w", tool.Name, err)
		}
		param := anthropic.ToolUnionParamOfTool(schema, tool.Name)
		if param.OfTool == nil {
			return nil, fmt.Errorf("invalid tool definition for %s", tool.Name)
		}
		param.OfTool.Description = anthropic.String(tool.Description)
		result = append(result, param)
	}
	return result, nil
}

func convertToolChoiceAnthropic(choice *llm.ToolChoice) *anthropic.ToolChoiceUnionParam {
	if choice == nil {
		return nil
	}
	switch choice.Mode {
	case llm.ToolChoiceRequired:
		return &anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
	case llm.ToolChoiceNone:
		return &anthropic.ToolChoiceUnionParam{OfNone: &anthropic.ToolChoiceNoneParam{}}
	case llm.ToolChoiceSpecific:
		return &anthropic.ToolChoiceUnionParam{OfTool: &anthropic.ToolChoiceToolParam{Name: choice.Name}}
	default:
		return &anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
	}
}

func normalizeStopReason(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence", "stop":
		return "stop"
	case "max_tokens", "length":
		return "length"
	case "tool_use", "tool_calls":
		return "tool_calls"
	case "content_filter":
		return "content_filter"
	default:
		if reason == "" {
			return "stop"
		}
		return reason
	}
}
