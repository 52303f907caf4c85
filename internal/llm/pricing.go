package llm

// Static price and latency tables. Prices are USD per token (input,
// output); latency is an average figure in milliseconds. Both exist only
// to order candidates and attach a cost estimate to responses; they are
// implementation constants, not live market data.

type price struct {
	in  float64
	out float64
}

var priceTable = map[Provider]price{
	ProviderAnthropic:  {in: 3.0e-6, out: 15.0e-6},
	ProviderOpenAI:     {in: 2.5e-6, out: 10.0e-6},
	ProviderGoogle:     {in: 1.25e-6, out: 5.0e-6},
	ProviderPerplexity: {in: 1.0e-6, out: 1.0e-6},
	ProviderQwen:       {in: 0.5e-6, out: 1.5e-6},
	ProviderOllama:     {in: 0, out: 0},
}

var latencyTable = map[Provider]int{
	ProviderOllama:     250,
	ProviderGoogle:     600,
	ProviderOpenAI:     800,
	ProviderAnthropic:  900,
	ProviderQwen:       1100,
	ProviderPerplexity: 1400,
}

// Cost computes the USD cost of a usage for the given provider.
func Cost(p Provider, usage TokenUsage) float64 {
	rates, ok := priceTable[p]
	if !ok {
		return 0
	}
	return float64(usage.Prompt)*rates.in + float64(usage.Completion)*rates.out
}

// costPerKilotoken is the combined in+out rate used to order providers
// under StrategyCostOptimized.
func costPerKilotoken(p Provider) float64 {
	rates, ok := priceTable[p]
	if !ok {
		// Unknown providers sort last.
		return 1.0
	}
	return (rates.in + rates.out) * 1000
}

// avgLatencyMS orders providers under StrategyLatencyOptimized. Unknown
// providers sort last.
func avgLatencyMS(p Provider) int {
	if ms, ok := latencyTable[p]; ok {
		return ms
	}
	return 1 << 30
}
