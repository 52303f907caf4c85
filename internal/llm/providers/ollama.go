package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agiworkforce/workforce/internal/errdefs"
	"github.com/agiworkforce/workforce/internal/llm"
)

// OllamaClient adapts a local Ollama server's /api/chat endpoint.
type OllamaClient struct {
	client       *http.Client
	baseURL      string
	defaultModel string
}

// OllamaConfig configures the Ollama adapter.
type OllamaConfig struct {
	// BaseURL defaults to http://localhost:11434.
	BaseURL string

	// DefaultModel is required for the adapter to count as configured;
	// there is no API key to gate on.
	DefaultModel string

	// Timeout bounds each HTTP exchange. Default: 2 minutes.
	Timeout time.Duration
}

// NewOllamaClient creates the adapter.
func NewOllamaClient(cfg OllamaConfig) *OllamaClient {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &OllamaClient{
		client:       &http.Client{Timeout: timeout},
		baseURL:      baseURL,
		defaultModel: strings.TrimSpace(cfg.DefaultModel),
	}
}

// Name returns the provider tag.
func (c *OllamaClient) Name() llm.Provider { return llm.ProviderOllama }

// IsConfigured reports whether a default model was configured.
func (c *OllamaClient) IsConfigured() bool { return c.defaultModel != "" }

// SupportsFunctionCalling reports tool-use capability.
func (c *OllamaClient) SupportsFunctionCalling() bool { return true }

// DefaultModel returns the model used when a request has none.
func (c *OllamaClient) DefaultModel() string { return c.defaultModel }

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaToolCall struct {
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Tools    []ollamaTool    `json:"tools,omitempty"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Parameters  json.RawMessage `json:"parameters"`
	} `json:"function"`
}

type ollamaChatResponse struct {
	Model     string        `json:"model"`
	Message   ollamaMessage `json:"message"`
	Done      bool          `json:"done"`
	DoneRes   string        `json:"done_reason"`
	PromptEC  int           `json:"prompt_eval_count"`
	EvalCount int           `json:"eval_count"`
	Error     string        `json:"error,omitempty"`
}

// Send performs a blocking completion.
func (c *OllamaClient) Send(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	body, err := c.do(ctx, req, false)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var out ollamaChatResponse
	if err := json.NewDecoder(body).Decode(&out); err != nil {
		return nil, errdefs.NewLLMError(errdefs.LLMInvalidResponse, "ollama: decode response").Wrap(err)
	}
	if out.Error != "" {
		return nil, errdefs.NewLLMError(classifyMessage(out.Error), "ollama: %s", out.Error)
	}

	resp := &llm.Response{
		Content: out.Message.Content,
		Model:   out.Model,
		Tokens: llm.TokenUsage{
			Prompt:     out.PromptEC,
			Completion: out.EvalCount,
			Total:      out.PromptEC + out.EvalCount,
		},
		FinishReason: normalizeStopReason(out.DoneRes),
	}
	for _, call := range out.Message.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, llm.ToolCall{
			ID:        uuid.NewString(),
			Name:      call.Function.Name,
			Arguments: string(call.Function.Arguments),
		})
	}
	return resp, nil
}

// Stream performs a streaming completion over newline-delimited JSON.
func (c *OllamaClient) Stream(ctx context.Context, req *llm.Request) (<-chan llm.StreamChunk, error) {
	body, err := c.do(ctx, req, true)
	if err != nil {
		return nil, err
	}

	chunks := make(chan llm.StreamChunk)
	go func() {
		defer close(chunks)
		defer body.Close()

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)
		var usage llm.TokenUsage

		for scanner.Scan() {
			if ctx.Err() != nil {
				chunks <- llm.StreamChunk{Err: ctx.Err()}
				return
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}

			var frame ollamaChatResponse
			if err := json.Unmarshal([]byte(line), &frame); err != nil {
				chunks <- llm.StreamChunk{Err: errdefs.NewLLMError(errdefs.LLMInvalidResponse, "ollama: malformed stream frame").Wrap(err)}
				return
			}
			if frame.Error != "" {
				chunks <- llm.StreamChunk{Err: errdefs.NewLLMError(classifyMessage(frame.Error), "ollama: %s", frame.Error)}
				return
			}

			if frame.Message.Content != "" {
				select {
				case chunks <- llm.StreamChunk{DeltaText: frame.Message.Content}:
				case <-ctx.Done():
					return
				}
			}
			for _, call := range frame.Message.ToolCalls {
				delta := llm.ToolCall{
					ID:        uuid.NewString(),
					Name:      call.Function.Name,
					Arguments: string(call.Function.Arguments),
				}
				select {
				case chunks <- llm.StreamChunk{DeltaToolCall: &delta}:
				case <-ctx.Done():
					return
				}
			}
			if frame.Done {
				usage.Prompt = frame.PromptEC
				usage.Completion = frame.EvalCount
				usage.Total = usage.Prompt + usage.Completion
				chunks <- llm.StreamChunk{FinishReason: normalizeStopReason(frame.DoneRes), Usage: &usage}
				return
			}
		}
		if err := scanner.Err(); err != nil {
			chunks <- llm.StreamChunk{Err: errdefs.NewLLMError(errdefs.LLMNetwork, "ollama: stream read failed").Wrap(err)}
		}
	}()
	return chunks, nil
}

func (c *OllamaClient) do(ctx context.Context, req *llm.Request, stream bool) (io.ReadCloser, error) {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.defaultModel
	}
	if model == "" {
		return nil, errdefs.NewLLMError(errdefs.LLMModelNotAvailable, "ollama: model is required")
	}

	payload := ollamaChatRequest{Model: model, Stream: stream}
	for _, m := range req.Messages {
		payload.Messages = append(payload.Messages, ollamaMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	for _, tool := range req.Tools {
		var t ollamaTool
		t.Type = "function"
		t.Function.Name = tool.Name
		t.Function.Description = tool.Description
		t.Function.Parameters = tool.Parameters
		payload.Tools = append(payload.Tools, t)
	}
	if req.MaxTokens > 0 {
		payload.Options = map[string]any{"num_predict": req.MaxTokens}
	}
	if req.Temperature != nil {
		if payload.Options == nil {
			payload.Options = map[string]any{}
		}
		payload.Options["temperature"] = *req.Temperature
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errdefs.NewLLMError(errdefs.LLMInvalidResponse, "ollama: marshal request").Wrap(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, errdefs.NewLLMError(errdefs.LLMAPI, "ollama: build request").Wrap(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, errdefs.NewLLMError(errdefs.LLMNetwork, "ollama: request failed").Wrap(err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, errdefs.NewLLMError(classifyStatus(resp.StatusCode),
			"ollama: status %d: %s", resp.StatusCode, string(bytes.TrimSpace(errBody)))
	}
	return resp.Body, nil
}
