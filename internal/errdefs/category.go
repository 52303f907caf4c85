package errdefs

import (
	"context"
	"errors"
)

// Category groups errors by how callers should respond.
type Category string

const (
	CategoryTransient     Category = "transient"
	CategoryPermanent     Category = "permanent"
	CategoryPermission    Category = "permission"
	CategoryResource      Category = "resource"
	CategoryConfiguration Category = "configuration"
)

// Categorize maps an error onto its category.
func Categorize(err error) Category {
	e, ok := AsError(err)
	if !ok {
		if errors.Is(err, context.DeadlineExceeded) {
			return CategoryTransient
		}
		return CategoryPermanent
	}

	switch e.Kind {
	case KindTransient, KindTimeout:
		return CategoryTransient
	case KindResource:
		return CategoryResource
	case KindPermission:
		return CategoryPermission
	case KindConfig:
		return CategoryConfiguration
	case KindLLM:
		switch e.LLM {
		case LLMRateLimit, LLMNetwork, LLMTimeout:
			return CategoryTransient
		case LLMAuth:
			return CategoryPermission
		default:
			return CategoryPermanent
		}
	default:
		return CategoryPermanent
	}
}

// IsRetryable reports whether retrying the failed operation may succeed.
//
// The classification is fixed:
//   - transient, LLM rate-limit/network/timeout, every resource axis, and
//     deadline timeouts retry;
//   - fatal, permission, LLM context-length/content-filter/auth, and
//     invalid tool parameters never retry;
//   - everything else defaults to non-retryable unless the calling site's
//     policy overrides.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	e, ok := AsError(err)
	if !ok {
		return false
	}

	switch e.Kind {
	case KindTransient, KindTimeout, KindResource:
		return true
	case KindFatal, KindPermission, KindConfig, KindPlanning:
		return false
	case KindLLM:
		switch e.LLM {
		case LLMRateLimit, LLMNetwork, LLMTimeout:
			return true
		default:
			return false
		}
	case KindTool:
		// Tool failures default to non-retryable; the executor's per-site
		// retry policy decides for the subsystems that warrant retries.
		return false
	default:
		return false
	}
}
