package providers

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/agiworkforce/workforce/internal/llm"
)

// OpenAICompatClient adapts any OpenAI-compatible chat completion
// endpoint to the router contract. The OpenAI, Perplexity and Qwen
// adapters are thin constructors over this one implementation; they
// differ only in provider tag, base URL and default model.
type OpenAICompatClient struct {
	client       *openai.Client
	provider     llm.Provider
	apiKey       string
	defaultModel string
}

// OpenAICompatConfig configures an OpenAI-compatible adapter.
type OpenAICompatConfig struct {
	Provider     llm.Provider
	APIKey       string
	BaseURL      string
	DefaultModel string
}

// NewOpenAICompatClient creates an adapter for an arbitrary
// OpenAI-compatible endpoint.
func NewOpenAICompatClient(cfg OpenAICompatConfig) *OpenAICompatClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAICompatClient{
		client:       openai.NewClientWithConfig(clientCfg),
		provider:     cfg.Provider,
		apiKey:       cfg.APIKey,
		defaultModel: cfg.DefaultModel,
	}
}

// NewOpenAIClient creates the OpenAI adapter.
func NewOpenAIClient(apiKey string) *OpenAICompatClient {
	return NewOpenAICompatClient(OpenAICompatConfig{
		Provider:     llm.ProviderOpenAI,
		APIKey:       apiKey,
		DefaultModel: "gpt-4o",
	})
}

// NewPerplexityClient creates the Perplexity adapter, which speaks the
// OpenAI wire format against api.perplexity.ai.
func NewPerplexityClient(apiKey string) *OpenAICompatClient {
	return NewOpenAICompatClient(OpenAICompatConfig{
		Provider:     llm.ProviderPerplexity,
		APIKey:       apiKey,
		BaseURL:      "https://api.perplexity.ai",
		DefaultModel: "sonar-pro",
	})
}

// NewQwenClient creates the Qwen adapter against DashScope's
// OpenAI-compatible endpoint.
func NewQwenClient(apiKey string) *OpenAICompatClient {
	return NewOpenAICompatClient(OpenAICompatConfig{
		Provider:     llm.ProviderQwen,
		APIKey:       apiKey,
		BaseURL:      "https://dashscope.aliyuncs.com/compatible-mode/v1",
		DefaultModel: "qwen-plus",
	})
}

// Name returns the provider tag.
func (c *OpenAICompatClient) Name() llm.Provider { return c.provider }

// IsConfigured reports whether an API key is present.
func (c *OpenAICompatClient) IsConfigured() bool { return c.apiKey != "" }

// SupportsFunctionCalling reports tool-use capability. Perplexity does
// not implement the tools endpoint.
func (c *OpenAICompatClient) SupportsFunctionCalling() bool {
	return c.provider != llm.ProviderPerplexity
}

// DefaultModel returns the model used when a request has none.
func (c *OpenAICompatClient) DefaultModel() string { return c.defaultModel }

// Send performs a blocking completion.
func (c *OpenAICompatClient) Send(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	chatReq := c.buildRequest(req)

	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, wrapOpenAIError(string(c.provider), chatReq.Model, err)
	}
	if len(resp.Choices) == 0 {
		return nil, wrapOpenAIError(string(c.provider), chatReq.Model,
			errors.New("response contained no choices"))
	}

	choice := resp.Choices[0]
	out := &llm.Response{
		Content: choice.Message.Content,
		Model:   resp.Model,
		Tokens: llm.TokenUsage{
			Prompt:     resp.Usage.PromptTokens,
			Completion: resp.Usage.CompletionTokens,
			Total:      resp.Usage.TotalTokens,
		},
		FinishReason: normalizeStopReason(string(choice.FinishReason)),
	}
	for _, call := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}
	return out, nil
}

// Stream performs a streaming completion.
func (c *OpenAICompatClient) Stream(ctx context.Context, req *llm.Request) (<-chan llm.StreamChunk, error) {
	chatReq := c.buildRequest(req)
	chatReq.Stream = true

	stream, err := c.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, wrapOpenAIError(string(c.provider), chatReq.Model, err)
	}

	chunks := make(chan llm.StreamChunk)
	go func() {
		defer close(chunks)
		defer stream.Close()

		// Tool call fragments arrive with an index; IDs only appear on
		// the first fragment of each call.
		toolIDs := map[int]string{}
		toolNames := map[int]string{}
		finish := "stop"

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				chunks <- llm.StreamChunk{FinishReason: finish}
				return
			}
			if err != nil {
				select {
				case chunks <- llm.StreamChunk{Err: wrapOpenAIError(string(c.provider), chatReq.Model, err)}:
				case <-ctx.Done():
				}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			choice := resp.Choices[0]
			if choice.FinishReason != "" {
				finish = normalizeStopReason(string(choice.FinishReason))
			}

			if choice.Delta.Content != "" {
				select {
				case chunks <- llm.StreamChunk{DeltaText: choice.Delta.Content}:
				case <-ctx.Done():
					return
				}
			}
			for _, call := range choice.Delta.ToolCalls {
				idx := 0
				if call.Index != nil {
					idx = *call.Index
				}
				if call.ID != "" {
					toolIDs[idx] = call.ID
				}
				if call.Function.Name != "" {
					toolNames[idx] = call.Function.Name
				}
				delta := llm.ToolCall{
					ID:        toolIDs[idx],
					Name:      toolNames[idx],
					Arguments: call.Function.Arguments,
				}
				select {
				case chunks <- llm.StreamChunk{DeltaToolCall: &delta}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return chunks, nil
}

func (c *OpenAICompatClient) buildRequest(req *llm.Request) openai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	chatReq := openai.ChatCompletionRequest{
		Model:     model,
		MaxTokens: req.MaxTokens,
	}
	if req.Temperature != nil {
		chatReq.Temperature = float32(*req.Temperature)
	}

	for _, m := range req.Messages {
		msg := openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		}
		if m.Role == llm.RoleTool {
			msg.ToolCallID = m.ToolCallID
		}
		for _, call := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   call.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      call.Name,
					Arguments: call.Arguments,
				},
			})
		}
		if len(m.Multimodal) > 0 {
			msg.Content = ""
			for _, part := range m.Multimodal {
				switch part.Type {
				case "image":
					msg.MultiContent = append(msg.MultiContent, openai.ChatMessagePart{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    "data:" + part.MimeType + ";base64," + part.Data,
							Detail: openai.ImageURLDetailAuto,
						},
					})
				default:
					msg.MultiContent = append(msg.MultiContent, openai.ChatMessagePart{
						Type: openai.ChatMessagePartTypeText,
						Text: part.Text,
					})
				}
			}
		}
		chatReq.Messages = append(chatReq.Messages, msg)
	}

	for _, tool := range req.Tools {
		var schema map[string]any
		if err := json.Unmarshal(tool.Parameters, &schema); err != nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		chatReq.Tools = append(chatReq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  schema,
			},
		})
	}
	if req.ToolChoice != nil {
		switch req.ToolChoice.Mode {
		case llm.ToolChoiceRequired:
			chatReq.ToolChoice = "required"
		case llm.ToolChoiceNone:
			chatReq.ToolChoice = "none"
		case llm.ToolChoiceSpecific:
			chatReq.ToolChoice = openai.ToolChoice{
				Type:     openai.ToolTypeFunction,
				Function: openai.ToolFunction{Name: req.ToolChoice.Name},
			}
		default:
			chatReq.ToolChoice = "auto"
		}
	}
	return chatReq
}
