package llm

import (
	"context"
	"testing"
	"time"

	"github.com/agiworkforce/workforce/internal/errdefs"
	"github.com/agiworkforce/workforce/internal/retry"
)

// fastRetry keeps router tests from sleeping through the llm preset.
func fastRetry() retry.Policy {
	return retry.Policy{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Backoff: retry.StrategyConstant}
}

// fakeClient is a scriptable provider for router tests.
type fakeClient struct {
	name       Provider
	configured bool
	model      string
	responses  []func() (*Response, error)
	calls      int
}

func (f *fakeClient) Send(_ context.Context, _ *Request) (*Response, error) {
	f.calls++
	if len(f.responses) == 0 {
		return &Response{Content: "ok", Model: f.model, Tokens: TokenUsage{Prompt: 10, Completion: 5, Total: 15}}, nil
	}
	next := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return next()
}

func (f *fakeClient) Stream(_ context.Context, _ *Request) (<-chan StreamChunk, error) {
	ch := make(chan StreamChunk, 2)
	ch <- StreamChunk{DeltaText: "ok"}
	ch <- StreamChunk{FinishReason: "stop"}
	close(ch)
	return ch, nil
}

func (f *fakeClient) IsConfigured() bool            { return f.configured }
func (f *fakeClient) SupportsFunctionCalling() bool { return true }
func (f *fakeClient) Name() Provider                { return f.name }
func (f *fakeClient) DefaultModel() string          { return f.model }

func newTestRegistry(clients ...*fakeClient) *Registry {
	reg := NewRegistry()
	for _, c := range clients {
		reg.Register(c)
	}
	return reg
}

func request() *Request {
	return &Request{Messages: []Message{{Role: RoleUser, Content: "hello"}}}
}

func TestCandidatesAutoOrder(t *testing.T) {
	reg := newTestRegistry(
		&fakeClient{name: ProviderOpenAI, configured: true, model: "gpt-4o"},
		&fakeClient{name: ProviderAnthropic, configured: true, model: "claude-sonnet-4-20250514"},
		&fakeClient{name: ProviderOllama, configured: true, model: "llama3"},
		&fakeClient{name: ProviderGoogle, configured: false, model: "gemini-2.0-flash"},
	)
	router := NewRouter(RouterConfig{Registry: reg})

	got := router.Candidates(request(), Preferences{})
	want := []Provider{ProviderAnthropic, ProviderOpenAI, ProviderOllama}
	if len(got) != len(want) {
		t.Fatalf("got %d candidates, want %d: %+v", len(got), len(want), got)
	}
	for i, p := range want {
		if got[i].Provider != p {
			t.Errorf("candidate[%d] = %s, want %s", i, got[i].Provider, p)
		}
	}
	if got[0].Model != "claude-sonnet-4-20250514" {
		t.Errorf("leading candidate should carry the provider default model, got %s", got[0].Model)
	}
}

func TestCandidatesPreferredProviderLeads(t *testing.T) {
	reg := newTestRegistry(
		&fakeClient{name: ProviderAnthropic, configured: true, model: "claude"},
		&fakeClient{name: ProviderOpenAI, configured: true, model: "gpt-4o"},
	)
	router := NewRouter(RouterConfig{Registry: reg})

	got := router.Candidates(request(), Preferences{Provider: ProviderOpenAI, Model: "gpt-4o-mini"})
	if got[0].Provider != ProviderOpenAI || got[0].Model != "gpt-4o-mini" {
		t.Errorf("preferred provider/model should lead: %+v", got[0])
	}
	if len(got) != 2 {
		t.Errorf("remaining providers should complete the chain, got %d", len(got))
	}
}

func TestCandidatesExplicitStrategy(t *testing.T) {
	reg := newTestRegistry(
		&fakeClient{name: ProviderAnthropic, configured: true, model: "claude"},
		&fakeClient{name: ProviderOpenAI, configured: true, model: "gpt-4o"},
	)
	router := NewRouter(RouterConfig{Registry: reg})

	got := router.Candidates(request(), Preferences{Strategy: StrategyExplicit, Provider: ProviderOpenAI})
	if len(got) != 1 || got[0].Provider != ProviderOpenAI {
		t.Errorf("explicit strategy should yield only the named provider, got %+v", got)
	}
}

func TestCandidatesLocalFirst(t *testing.T) {
	reg := newTestRegistry(
		&fakeClient{name: ProviderAnthropic, configured: true, model: "claude"},
		&fakeClient{name: ProviderOllama, configured: true, model: "llama3"},
	)
	router := NewRouter(RouterConfig{Registry: reg})

	got := router.Candidates(request(), Preferences{Strategy: StrategyLocalFirst})
	if got[0].Provider != ProviderOllama {
		t.Errorf("local-first should lead with ollama, got %s", got[0].Provider)
	}
}

func TestCandidatesCostOptimized(t *testing.T) {
	reg := newTestRegistry(
		&fakeClient{name: ProviderAnthropic, configured: true, model: "claude"},
		&fakeClient{name: ProviderOllama, configured: true, model: "llama3"},
		&fakeClient{name: ProviderOpenAI, configured: true, model: "gpt-4o"},
	)
	router := NewRouter(RouterConfig{Registry: reg})

	got := router.Candidates(request(), Preferences{Strategy: StrategyCostOptimized})
	if got[0].Provider != ProviderOllama {
		t.Errorf("cost-optimized should lead with the free local provider, got %s", got[0].Provider)
	}
	if got[1].Provider != ProviderOpenAI || got[2].Provider != ProviderAnthropic {
		t.Errorf("cost order wrong: %+v", got)
	}
}

func TestCandidatesLatencyOptimized(t *testing.T) {
	reg := newTestRegistry(
		&fakeClient{name: ProviderAnthropic, configured: true, model: "claude"},
		&fakeClient{name: ProviderOpenAI, configured: true, model: "gpt-4o"},
		&fakeClient{name: ProviderOllama, configured: true, model: "llama3"},
	)
	router := NewRouter(RouterConfig{Registry: reg})

	got := router.Candidates(request(), Preferences{Strategy: StrategyLatencyOptimized})
	want := []Provider{ProviderOllama, ProviderOpenAI, ProviderAnthropic}
	for i, p := range want {
		if got[i].Provider != p {
			t.Errorf("latency order[%d] = %s, want %s", i, got[i].Provider, p)
		}
	}
}

func TestSendFailsOverOnRateLimit(t *testing.T) {
	flaky := &fakeClient{name: ProviderAnthropic, configured: true, model: "claude"}
	flaky.responses = []func() (*Response, error){
		func() (*Response, error) {
			return nil, errdefs.NewLLMError(errdefs.LLMRateLimit, "429")
		},
	}
	// The retry policy will retry the rate-limited provider before failing
	// over, so keep the flaky provider failing on every attempt.
	flaky.responses = append(flaky.responses, flaky.responses[0], flaky.responses[0], flaky.responses[0])

	healthy := &fakeClient{name: ProviderOpenAI, configured: true, model: "gpt-4o"}

	router := NewRouter(RouterConfig{Registry: newTestRegistry(flaky, healthy), RetryPolicy: fastRetry()})
	resp, err := router.Send(context.Background(), request(), Preferences{})
	if err != nil {
		t.Fatalf("Send should succeed via failover, got %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if healthy.calls != 1 {
		t.Errorf("healthy provider should have been called once, got %d", healthy.calls)
	}
}

func TestSendStopsOnAuthError(t *testing.T) {
	broken := &fakeClient{name: ProviderAnthropic, configured: true, model: "claude"}
	broken.responses = []func() (*Response, error){
		func() (*Response, error) {
			return nil, errdefs.NewLLMError(errdefs.LLMAuth, "401")
		},
	}
	fallback := &fakeClient{name: ProviderOpenAI, configured: true, model: "gpt-4o"}

	router := NewRouter(RouterConfig{Registry: newTestRegistry(broken, fallback), RetryPolicy: fastRetry()})
	_, err := router.Send(context.Background(), request(), Preferences{})
	if err == nil {
		t.Fatal("auth errors must not fail over")
	}
	if fallback.calls != 0 {
		t.Errorf("fallback should not have been tried, got %d calls", fallback.calls)
	}
}

func TestSendNoProviders(t *testing.T) {
	router := NewRouter(RouterConfig{Registry: NewRegistry()})
	_, err := router.Send(context.Background(), request(), Preferences{})
	if !errdefs.IsKind(err, errdefs.KindConfig) {
		t.Errorf("expected config error with no providers, got %v", err)
	}
}

func TestInvokeCandidateComputesCost(t *testing.T) {
	client := &fakeClient{name: ProviderAnthropic, configured: true, model: "claude"}
	router := NewRouter(RouterConfig{Registry: newTestRegistry(client), RetryPolicy: fastRetry()})

	inv, err := router.InvokeCandidate(context.Background(), Candidate{Provider: ProviderAnthropic, Model: "claude"}, request())
	if err != nil {
		t.Fatal(err)
	}
	want := Cost(ProviderAnthropic, TokenUsage{Prompt: 10, Completion: 5})
	if inv.Response.CostUSD != want {
		t.Errorf("cost = %v, want %v", inv.Response.CostUSD, want)
	}
	if inv.LatencyMS < 0 {
		t.Errorf("latency should be non-negative, got %d", inv.LatencyMS)
	}
}

func TestCacheableRules(t *testing.T) {
	if !Cacheable(request()) {
		t.Error("plain request should be cacheable")
	}
	streaming := request()
	streaming.Stream = true
	if Cacheable(streaming) {
		t.Error("streaming request must not be cacheable")
	}
	withTools := request()
	withTools.Tools = []ToolDefinition{{Name: "t"}}
	if Cacheable(withTools) {
		t.Error("tool request must not be cacheable")
	}
}

// streamingClient yields chunks until its context is cancelled, like a
// real adapter holding an open SSE transport.
type streamingClient struct {
	fakeClient
}

func (s *streamingClient) Stream(ctx context.Context, _ *Request) (<-chan StreamChunk, error) {
	ch := make(chan StreamChunk)
	go func() {
		defer close(ch)
		for i := 0; ; i++ {
			select {
			case <-ctx.Done():
				return
			case ch <- StreamChunk{DeltaText: "chunk"}:
			}
			time.Sleep(time.Millisecond)
		}
	}()
	return ch, nil
}

func TestStreamCancellationClosesStream(t *testing.T) {
	client := &streamingClient{fakeClient{name: ProviderAnthropic, configured: true, model: "claude"}}
	reg := NewRegistry()
	reg.Register(client)
	router := NewRouter(RouterConfig{Registry: reg})

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := router.Stream(ctx, request(), Preferences{})
	if err != nil {
		t.Fatal(err)
	}

	// Consume two chunks, then drop the stream.
	for i := 0; i < 2; i++ {
		chunk, ok := <-stream
		if !ok || chunk.DeltaText == "" {
			t.Fatalf("expected text chunk %d, got %+v ok=%v", i, chunk, ok)
		}
	}
	cancel()

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-stream:
			if !ok {
				return // channel closed promptly after cancellation
			}
		case <-deadline:
			t.Fatal("stream did not terminate after cancellation")
		}
	}
}
