// Package providers implements the LLM provider adapters behind the
// router: Anthropic, OpenAI and OpenAI-compatible endpoints (Perplexity,
// Qwen), Google Gemini, and local Ollama.
//
// Each adapter maps the canonical llm.Request/llm.Response shapes to its
// native wire format, classifies provider failures into the shared error
// taxonomy, and exposes streaming as a lazy channel that the consumer
// may abandon at any point.
package providers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"

	"github.com/agiworkforce/workforce/internal/errdefs"
)

// classifyStatus maps an HTTP status to the LLM error kind.
func classifyStatus(status int) errdefs.LLMErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return errdefs.LLMRateLimit
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errdefs.LLMAuth
	case status == http.StatusNotFound:
		return errdefs.LLMModelNotAvailable
	case status == http.StatusRequestTimeout:
		return errdefs.LLMTimeout
	case status >= 500:
		return errdefs.LLMAPI
	default:
		return errdefs.LLMAPI
	}
}

// classifyMessage falls back to substring matching when no structured
// status is available.
func classifyMessage(msg string) errdefs.LLMErrorKind {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "rate limit") || strings.Contains(lower, "rate_limit") || strings.Contains(lower, "too many requests"):
		return errdefs.LLMRateLimit
	case strings.Contains(lower, "context length") || strings.Contains(lower, "context_length") || strings.Contains(lower, "maximum context"):
		return errdefs.LLMContextLength
	case strings.Contains(lower, "content filter") || strings.Contains(lower, "content_filter") || strings.Contains(lower, "content policy"):
		return errdefs.LLMContentFilter
	case strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid api key") || strings.Contains(lower, "authentication"):
		return errdefs.LLMAuth
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded"):
		return errdefs.LLMTimeout
	case strings.Contains(lower, "connection") || strings.Contains(lower, "no such host") || strings.Contains(lower, "eof"):
		return errdefs.LLMNetwork
	case strings.Contains(lower, "model") && (strings.Contains(lower, "not found") || strings.Contains(lower, "not available") || strings.Contains(lower, "does not exist")):
		return errdefs.LLMModelNotAvailable
	default:
		return errdefs.LLMAPI
	}
}

// wrapAnthropicError converts an anthropic SDK error into the taxonomy.
func wrapAnthropicError(err error, model string) error {
	if err == nil {
		return nil
	}
	if _, ok := errdefs.AsError(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		kind := classifyStatus(apiErr.StatusCode)
		// The message can be more specific than the status.
		if refined := classifyMessage(err.Error()); refined == errdefs.LLMContextLength || refined == errdefs.LLMContentFilter {
			kind = refined
		}
		return errdefs.NewLLMError(kind, "anthropic %s: status %d", model, apiErr.StatusCode).Wrap(err)
	}
	return errdefs.NewLLMError(classifyMessage(err.Error()), "anthropic %s request failed", model).Wrap(err)
}

// wrapOpenAIError converts a go-openai error into the taxonomy. The
// provider name is carried for the OpenAI-compatible adapters.
func wrapOpenAIError(provider, model string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := errdefs.AsError(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		kind := classifyStatus(apiErr.HTTPStatusCode)
		switch apiErr.Code {
		case "context_length_exceeded":
			kind = errdefs.LLMContextLength
		case "content_filter":
			kind = errdefs.LLMContentFilter
		case "model_not_found":
			kind = errdefs.LLMModelNotAvailable
		}
		return errdefs.NewLLMError(kind, "%s %s: status %d", provider, model, apiErr.HTTPStatusCode).Wrap(err)
	}
	return errdefs.NewLLMError(classifyMessage(err.Error()), "%s %s request failed", provider, model).Wrap(err)
}
