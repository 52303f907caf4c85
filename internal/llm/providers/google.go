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

const googleBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GoogleClient adapts the Gemini generateContent API. Authentication is
// a URL key parameter; streaming uses SSE via alt=sse.
type GoogleClient struct {
	client       *http.Client
	baseURL      string
	apiKey       string
	defaultModel string
}

// GoogleConfig configures the Gemini adapter.
type GoogleConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	Timeout      time.Duration
}

// NewGoogleClient creates the adapter.
func NewGoogleClient(cfg GoogleConfig) *GoogleClient {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = googleBaseURL
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gemini-2.0-flash"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &GoogleClient{
		client:       &http.Client{Timeout: timeout},
		baseURL:      baseURL,
		apiKey:       cfg.APIKey,
		defaultModel: cfg.DefaultModel,
	}
}

// Name returns the provider tag.
func (c *GoogleClient) Name() llm.Provider { return llm.ProviderGoogle }

// IsConfigured reports whether an API key is present.
func (c *GoogleClient) IsConfigured() bool { return c.apiKey != "" }

// SupportsFunctionCalling reports tool-use capability.
func (c *GoogleClient) SupportsFunctionCalling() bool { return true }

// DefaultModel returns the model used when a request has none.
func (c *GoogleClient) DefaultModel() string { return c.defaultModel }

type geminiPart struct {
	Text         string              `json:"text,omitempty"`
	FunctionCall *geminiFunctionCall `json:"functionCall,omitempty"`
	FunctionResp *geminiFunctionResp `json:"functionResponse,omitempty"`
	InlineData   *geminiInlineData   `json:"inlineData,omitempty"`
}

type geminiFunctionCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

type geminiFunctionResp struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents          []geminiContent   `json:"contents"`
	SystemInstruction *geminiContent    `json:"systemInstruction,omitempty"`
	Tools             []geminiToolDecl  `json:"tools,omitempty"`
	GenerationConfig  *geminiGenConfig  `json:"generationConfig,omitempty"`
	ToolConfig        *geminiToolConfig `json:"toolConfig,omitempty"`
}

type geminiToolDecl struct {
	FunctionDeclarations []geminiFunctionDecl `json:"functionDeclarations"`
}

type geminiFunctionDecl struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type geminiGenConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

type geminiToolConfig struct {
	FunctionCallingConfig struct {
		Mode                 string   `json:"mode"`
		AllowedFunctionNames []string `json:"allowedFunctionNames,omitempty"`
	} `json:"functionCallingConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Send performs a blocking completion.
func (c *GoogleClient) Send(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	model := c.model(req)
	body, status, err := c.post(ctx, model, ":generateContent", req, false)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var out geminiResponse
	if err := json.NewDecoder(body).Decode(&out); err != nil {
		return nil, errdefs.NewLLMError(errdefs.LLMInvalidResponse, "google: decode response").Wrap(err)
	}
	if out.Error != nil {
		return nil, errdefs.NewLLMError(classifyStatus(out.Error.Code), "google %s: %s", model, out.Error.Message)
	}
	if status >= http.StatusBadRequest || len(out.Candidates) == 0 {
		return nil, errdefs.NewLLMError(errdefs.LLMInvalidResponse, "google %s: empty response (status %d)", model, status)
	}

	cand := out.Candidates[0]
	resp := &llm.Response{
		Model: model,
		Tokens: llm.TokenUsage{
			Prompt:     out.UsageMetadata.PromptTokenCount,
			Completion: out.UsageMetadata.CandidatesTokenCount,
			Total:      out.UsageMetadata.TotalTokenCount,
		},
		FinishReason: normalizeGeminiFinish(cand.FinishReason),
	}
	var text strings.Builder
	for _, part := range cand.Content.Parts {
		if part.Text != "" {
			text.WriteString(part.Text)
		}
		if part.FunctionCall != nil {
			resp.ToolCalls = append(resp.ToolCalls, llm.ToolCall{
				ID:        uuid.NewString(),
				Name:      part.FunctionCall.Name,
				Arguments: string(part.FunctionCall.Args),
			})
		}
	}
	resp.Content = text.String()
	return resp, nil
}

// Stream performs a streaming completion over SSE frames.
func (c *GoogleClient) Stream(ctx context.Context, req *llm.Request) (<-chan llm.StreamChunk, error) {
	model := c.model(req)
	body, _, err := c.post(ctx, model, ":streamGenerateContent?alt=sse", req, true)
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
		finish := "stop"

		for scanner.Scan() {
			if ctx.Err() != nil {
				chunks <- llm.StreamChunk{Err: ctx.Err()}
				return
			}
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "" || payload == "[DONE]" {
				continue
			}

			var frame geminiResponse
			if err := json.Unmarshal([]byte(payload), &frame); err != nil {
				chunks <- llm.StreamChunk{Err: errdefs.NewLLMError(errdefs.LLMInvalidResponse, "google: malformed stream frame").Wrap(err)}
				return
			}
			if frame.Error != nil {
				chunks <- llm.StreamChunk{Err: errdefs.NewLLMError(classifyStatus(frame.Error.Code), "google %s: %s", model, frame.Error.Message)}
				return
			}
			if frame.UsageMetadata.TotalTokenCount > 0 {
				usage.Prompt = frame.UsageMetadata.PromptTokenCount
				usage.Completion = frame.UsageMetadata.CandidatesTokenCount
				usage.Total = frame.UsageMetadata.TotalTokenCount
			}
			for _, cand := range frame.Candidates {
				if cand.FinishReason != "" {
					finish = normalizeGeminiFinish(cand.FinishReason)
				}
				for _, part := range cand.Content.Parts {
					if part.Text != "" {
						select {
						case chunks <- llm.StreamChunk{DeltaText: part.Text}:
						case <-ctx.Done():
							return
						}
					}
					if part.FunctionCall != nil {
						delta := llm.ToolCall{
							ID:        uuid.NewString(),
							Name:      part.FunctionCall.Name,
							Arguments: string(part.FunctionCall.Args),
						}
						select {
						case chunks <- llm.StreamChunk{DeltaToolCall: &delta}:
						case <-ctx.Done():
							return
						}
					}
				}
			}
		}
		if err := scanner.Err(); err != nil {
			chunks <- llm.StreamChunk{Err: errdefs.NewLLMError(errdefs.LLMNetwork, "google: stream read failed").Wrap(err)}
			return
		}
		chunks <- llm.StreamChunk{FinishReason: finish, Usage: &usage}
	}()
	return chunks, nil
}

func (c *GoogleClient) model(req *llm.Request) string {
	if req.Model != "" {
		return req.Model
	}
	return c.defaultModel
}

func (c *GoogleClient) post(ctx context.Context, model, method string, req *llm.Request, streaming bool) (io.ReadCloser, int, error) {
	payload := c.buildRequest(req)
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, errdefs.NewLLMError(errdefs.LLMInvalidResponse, "google: marshal request").Wrap(err)
	}

	sep := "?"
	if strings.Contains(method, "?") {
		sep = "&"
	}
	url := c.baseURL + "/models/" + model + method + sep + "key=" + c.apiKey

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, 0, errdefs.NewLLMError(errdefs.LLMAPI, "google: build request").Wrap(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, 0, errdefs.NewLLMError(errdefs.LLMNetwork, "google: request failed").Wrap(err)
	}
	if streaming && resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, resp.StatusCode, errdefs.NewLLMError(classifyStatus(resp.StatusCode),
			"google %s: status %d: %s", model, resp.StatusCode, strings.TrimSpace(string(errBody)))
	}
	return resp.Body, resp.StatusCode, nil
}

func (c *GoogleClient) buildRequest(req *llm.Request) geminiRequest {
	out := geminiRequest{}

	var system strings.Builder
	for _, m := range req.Messages {
		switch m.Role {
		case llm.RoleSystem:
			if system.Len() > 0 {
				system.WriteString("\n")
			}
			system.WriteString(m.Content)

		case llm.RoleTool:
			out.Contents = append(out.Contents, geminiContent{
				Role: "user",
				Parts: []geminiPart{{FunctionResp: &geminiFunctionResp{
					Name:     m.ToolCallID,
					Response: map[string]any{"content": m.Content},
				}}},
			})

		case llm.RoleAssistant:
			content := geminiContent{Role: "model"}
			if m.Content != "" {
				content.Parts = append(content.Parts, geminiPart{Text: m.Content})
			}
			for _, call := range m.ToolCalls {
				content.Parts = append(content.Parts, geminiPart{FunctionCall: &geminiFunctionCall{
					Name: call.Name,
					Args: json.RawMessage(call.Arguments),
				}})
			}
			out.Contents = append(out.Contents, content)

		default:
			content := geminiContent{Role: "user"}
			if len(m.Multimodal) > 0 {
				for _, part := range m.Multimodal {
					if part.Type == "image" {
						content.Parts = append(content.Parts, geminiPart{InlineData: &geminiInlineData{MimeType: part.MimeType, Data: part.Data}})
					} else if part.Text != "" {
						content.Parts = append(content.Parts, geminiPart{Text: part.Text})
					}
				}
			} else {
				content.Parts = append(content.Parts, geminiPart{Text: m.Content})
			}
			out.Contents = append(out.Contents, content)
		}
	}
	if system.Len() > 0 {
		out.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system.String()}}}
	}

	if len(req.Tools) > 0 {
		decl := geminiToolDecl{}
		for _, tool := range req.Tools {
			decl.FunctionDeclarations = append(decl.FunctionDeclarations, geminiFunctionDecl{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			})
		}
		out.Tools = []geminiToolDecl{decl}

		if req.ToolChoice != nil {
			cfg := &geminiToolConfig{}
			switch req.ToolChoice.Mode {
			case llm.ToolChoiceRequired:
				cfg.FunctionCallingConfig.Mode = "ANY"
			case llm.ToolChoiceNone:
				cfg.FunctionCallingConfig.Mode = "NONE"
			case llm.ToolChoiceSpecific:
				cfg.FunctionCallingConfig.Mode = "ANY"
				cfg.FunctionCallingConfig.AllowedFunctionNames = []string{req.ToolChoice.Name}
			default:
				cfg.FunctionCallingConfig.Mode = "AUTO"
			}
			out.ToolConfig = cfg
		}
	}

	if req.MaxTokens > 0 || req.Temperature != nil {
		out.GenerationConfig = &geminiGenConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		}
	}
	return out
}

func normalizeGeminiFinish(reason string) string {
	switch strings.ToUpper(reason) {
	case "STOP", "":
		return "stop"
	case "MAX_TOKENS":
		return "length"
	case "SAFETY", "BLOCKLIST", "PROHIBITED_CONTENT":
		return "content_filter"
	default:
		return strings.ToLower(reason)
	}
}
