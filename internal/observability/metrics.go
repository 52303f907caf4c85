package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects runtime counters and histograms.
//
// Tracked series:
//   - LLM request counts, latencies and token consumption per provider/model
//   - tool execution counts and latencies per tool
//   - task lifecycle transitions per terminal status
//   - approval decisions per outcome
type Metrics struct {
	llmRequests  *prometheus.CounterVec
	llmSeconds   *prometheus.HistogramVec
	llmTokens    *prometheus.CounterVec
	toolRuns     *prometheus.CounterVec
	toolSeconds  *prometheus.HistogramVec
	taskOutcomes *prometheus.CounterVec
	approvals    *prometheus.CounterVec
}

// NewMetrics creates and registers the metric set on the given
// registerer. Pass prometheus.DefaultRegisterer in production and a
// fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		llmRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workforce_llm_requests_total",
			Help: "LLM requests by provider, model and status.",
		}, []string{"provider", "model", "status"}),
		llmSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "workforce_llm_request_seconds",
			Help:    "LLM request latency in seconds.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider", "model"}),
		llmTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workforce_llm_tokens_total",
			Help: "LLM tokens consumed by provider, model and type.",
		}, []string{"provider", "model", "type"}),
		toolRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workforce_tool_executions_total",
			Help: "Tool executions by tool and status.",
		}, []string{"tool", "status"}),
		toolSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "workforce_tool_execution_seconds",
			Help:    "Tool execution latency in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"tool"}),
		taskOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workforce_task_outcomes_total",
			Help: "Scheduled task terminal transitions by status.",
		}, []string{"status"}),
		approvals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workforce_approval_decisions_total",
			Help: "Approval request outcomes.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.llmRequests, m.llmSeconds, m.llmTokens, m.toolRuns, m.toolSeconds, m.taskOutcomes, m.approvals)
	return m
}

// LLMRequest counts one LLM request outcome.
func (m *Metrics) LLMRequest(provider, model, status string) {
	m.llmRequests.WithLabelValues(provider, model, status).Inc()
}

// LLMRequestSeconds observes one LLM request latency.
func (m *Metrics) LLMRequestSeconds(provider, model string, seconds float64) {
	m.llmSeconds.WithLabelValues(provider, model).Observe(seconds)
}

// LLMTokens counts token consumption for one exchange.
func (m *Metrics) LLMTokens(provider, model string, prompt, completion int) {
	m.llmTokens.WithLabelValues(provider, model, "prompt").Add(float64(prompt))
	m.llmTokens.WithLabelValues(provider, model, "completion").Add(float64(completion))
}

// ToolExecution counts one tool run and observes its latency.
func (m *Metrics) ToolExecution(tool string, success bool, seconds float64) {
	status := "success"
	if !success {
		status = "error"
	}
	m.toolRuns.WithLabelValues(tool, status).Inc()
	m.toolSeconds.WithLabelValues(tool).Observe(seconds)
}

// TaskOutcome counts one task reaching a terminal status.
func (m *Metrics) TaskOutcome(status string) {
	m.taskOutcomes.WithLabelValues(status).Inc()
}

// ApprovalDecision counts one approval outcome.
func (m *Metrics) ApprovalDecision(outcome string) {
	m.approvals.WithLabelValues(outcome).Inc()
}
