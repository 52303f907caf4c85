package llm

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/agiworkforce/workforce/internal/errdefs"
	"github.com/agiworkforce/workforce/internal/observability"
	"github.com/agiworkforce/workforce/internal/retry"
)

// Router dispatches requests to providers along a strategy-ordered
// fallback chain, consulting the response cache for cacheable requests.
type Router struct {
	registry *Registry
	cache    *ResponseCache
	metrics  *observability.Metrics
	logger   *slog.Logger

	// defaultStrategy applies when a request's preferences carry none.
	defaultStrategy RoutingStrategy

	// retryPolicy wraps each candidate invocation.
	retryPolicy retry.Policy
}

// RouterConfig configures a Router.
type RouterConfig struct {
	// Registry is the provider registry; nil uses the process default.
	Registry *Registry

	// Cache enables the response cache when non-nil.
	Cache *ResponseCache

	// Metrics records request counters when non-nil.
	Metrics *observability.Metrics

	// DefaultStrategy applies when preferences carry none. Default: auto.
	DefaultStrategy RoutingStrategy

	// RetryPolicy wraps each candidate invocation. Zero value uses the
	// llm preset.
	RetryPolicy retry.Policy

	// Logger for routing decisions.
	Logger *slog.Logger
}

// NewRouter creates a router.
func NewRouter(cfg RouterConfig) *Router {
	registry := cfg.Registry
	if registry == nil {
		registry = DefaultRegistry()
	}
	strategy := cfg.DefaultStrategy
	if strategy == "" {
		strategy = StrategyAuto
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default().With("component", "llm-router")
	}
	policy := cfg.RetryPolicy
	if policy.MaxAttempts == 0 {
		policy = retry.LLM()
	}
	return &Router{
		registry:        registry,
		cache:           cfg.Cache,
		metrics:         cfg.Metrics,
		logger:          logger,
		defaultStrategy: strategy,
		retryPolicy:     policy,
	}
}

// autoOrder is the fixed provider preference under StrategyAuto.
var autoOrder = []Provider{ProviderAnthropic, ProviderOpenAI, ProviderGoogle, ProviderOllama}

// Candidates returns the ordered fallback chain for a request. It is a
// pure function of the preferences and the set of configured providers.
func (r *Router) Candidates(req *Request, prefs Preferences) []Candidate {
	configured := r.registry.Configured()
	if len(configured) == 0 {
		return nil
	}
	isConfigured := make(map[Provider]bool, len(configured))
	for _, p := range configured {
		isConfigured[p] = true
	}

	strategy := prefs.Strategy
	if strategy == "" {
		strategy = r.defaultStrategy
	}

	var chain []Candidate
	seen := make(map[Provider]bool)

	push := func(p Provider, model, reason string) {
		if !isConfigured[p] || seen[p] {
			return
		}
		seen[p] = true
		if model == "" {
			if c, ok := r.registry.Get(p); ok {
				model = c.DefaultModel()
			}
		}
		chain = append(chain, Candidate{Provider: p, Model: model, Reason: reason})
	}

	// An explicit provider preference always leads the chain.
	if prefs.Provider != "" && isConfigured[prefs.Provider] {
		push(prefs.Provider, prefs.Model, "preferred provider")
	}
	if strategy == StrategyExplicit {
		return chain
	}

	switch strategy {
	case StrategyLocalFirst:
		push(ProviderOllama, "", "local first")
		r.pushAuto(push)
	case StrategyCostOptimized:
		ordered := append([]Provider(nil), configured...)
		sort.SliceStable(ordered, func(i, j int) bool {
			return costPerKilotoken(ordered[i]) < costPerKilotoken(ordered[j])
		})
		for _, p := range ordered {
			push(p, "", "cost optimized")
		}
	case StrategyLatencyOptimized:
		ordered := append([]Provider(nil), configured...)
		sort.SliceStable(ordered, func(i, j int) bool {
			return avgLatencyMS(ordered[i]) < avgLatencyMS(ordered[j])
		})
		for _, p := range ordered {
			push(p, "", "latency optimized")
		}
	default:
		r.pushAuto(push)
	}

	// Any remaining configured providers close out the chain.
	for _, p := range configured {
		push(p, "", "fallback")
	}
	return chain
}

func (r *Router) pushAuto(push func(Provider, string, string)) {
	for _, p := range autoOrder {
		push(p, "", "auto order")
	}
}

// Send performs a blocking completion, walking the candidate chain until
// one succeeds or a non-failover error stops the walk.
func (r *Router) Send(ctx context.Context, req *Request, prefs Preferences) (*Response, error) {
	candidates := r.Candidates(req, prefs)
	if len(candidates) == 0 {
		return nil, errdefs.Config("no configured LLM providers")
	}

	var lastErr error
	for _, cand := range candidates {
		if Cacheable(req) && r.cache != nil {
			if cached, err := r.cache.Get(cand.Provider, cand.Model, req.Messages); err != nil {
				r.logger.Warn("cache lookup failed", "error", err)
			} else if cached != nil {
				r.logger.Debug("cache hit", "provider", cand.Provider, "model", cand.Model)
				return cached, nil
			}
		}

		inv, err := r.InvokeCandidate(ctx, cand, req)
		if err == nil {
			if Cacheable(req) && r.cache != nil {
				if cerr := r.cache.Put(cand.Provider, cand.Model, req.Messages, inv.Response); cerr != nil {
					r.logger.Warn("cache store failed", "error", cerr)
				}
			}
			return inv.Response, nil
		}

		lastErr = err
		if !shouldFailover(err) {
			return nil, err
		}
		// Failed over: the error is logged, not surfaced.
		r.logger.Warn("provider failed, trying next candidate",
			"provider", cand.Provider,
			"model", cand.Model,
			"error", errdefs.Redact(err.Error()))
	}
	return nil, lastErr
}

// Stream performs a streaming completion on the first candidate that
// accepts the request. Streaming bypasses the cache.
func (r *Router) Stream(ctx context.Context, req *Request, prefs Preferences) (<-chan StreamChunk, error) {
	candidates := r.Candidates(req, prefs)
	if len(candidates) == 0 {
		return nil, errdefs.Config("no configured LLM providers")
	}

	var lastErr error
	for _, cand := range candidates {
		client, ok := r.registry.Get(cand.Provider)
		if !ok {
			continue
		}
		streamReq := *req
		if streamReq.Model == "" {
			streamReq.Model = cand.Model
		}
		ch, err := client.Stream(ctx, &streamReq)
		if err == nil {
			if r.metrics != nil {
				r.metrics.LLMRequest(string(cand.Provider), streamReq.Model, "stream")
			}
			return ch, nil
		}
		lastErr = err
		if !shouldFailover(err) {
			return nil, err
		}
		r.logger.Warn("stream open failed, trying next candidate",
			"provider", cand.Provider, "error", errdefs.Redact(err.Error()))
	}
	return nil, lastErr
}

// InvokeCandidate calls one candidate under the LLM retry policy and
// reports the response with its latency.
func (r *Router) InvokeCandidate(ctx context.Context, cand Candidate, req *Request) (*Invocation, error) {
	client, ok := r.registry.Get(cand.Provider)
	if !ok {
		return nil, errdefs.NewLLMError(errdefs.LLMModelNotAvailable, "provider %s not registered", cand.Provider)
	}

	callReq := *req
	if callReq.Model == "" {
		callReq.Model = cand.Model
	}

	start := time.Now()
	resp, result := retry.DoWithValue(ctx, r.retryPolicy, func() (*Response, error) {
		return client.Send(ctx, &callReq)
	})
	elapsed := time.Since(start)

	status := "success"
	if result.Err != nil {
		status = "error"
	}
	if r.metrics != nil {
		r.metrics.LLMRequest(string(cand.Provider), callReq.Model, status)
		r.metrics.LLMRequestSeconds(string(cand.Provider), callReq.Model, elapsed.Seconds())
	}
	if result.Err != nil {
		return nil, result.Err
	}

	resp.CostUSD = Cost(cand.Provider, resp.Tokens)
	if r.metrics != nil {
		r.metrics.LLMTokens(string(cand.Provider), callReq.Model, resp.Tokens.Prompt, resp.Tokens.Completion)
	}
	return &Invocation{Response: resp, LatencyMS: elapsed.Milliseconds(), Duration: elapsed}, nil
}

// shouldFailover reports whether the next candidate should be tried.
// Rate limits, network faults, timeouts, unavailable models, and generic
// API errors fail over; context-length, content-filter, auth, and
// invalid-response errors stop the walk.
func shouldFailover(err error) bool {
	e, ok := errdefs.AsError(err)
	if !ok {
		return true
	}
	if e.Kind != errdefs.KindLLM {
		return errdefs.IsRetryable(err)
	}
	switch e.LLM {
	case errdefs.LLMRateLimit, errdefs.LLMNetwork, errdefs.LLMTimeout,
		errdefs.LLMModelNotAvailable, errdefs.LLMAPI:
		return true
	default:
		return false
	}
}
