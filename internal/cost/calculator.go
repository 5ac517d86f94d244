package cost

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/dossier-cli/internal/model"
)

// Provider names used for pricing lookups.
const (
	ProviderAnthropic  = "anthropic"
	ProviderPerplexity = "perplexity"
	ProviderJina       = "jina"
	ProviderFirecrawl  = "firecrawl"
)

// Rates holds per-provider pricing configuration.
type Rates struct {
	Anthropic  map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
	Perplexity PerplexityRate       `yaml:"perplexity" mapstructure:"perplexity"`
	Jina       JinaRate             `yaml:"jina" mapstructure:"jina"`
	Firecrawl  FirecrawlRate        `yaml:"firecrawl" mapstructure:"firecrawl"`
}

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// PerplexityRate holds Perplexity pricing: a flat request fee plus tokens.
type PerplexityRate struct {
	PerQuery float64 `yaml:"per_query" mapstructure:"per_query"`
	PerMTok  float64 `yaml:"per_mtok" mapstructure:"per_mtok"`
}

// JinaRate holds Jina pricing.
type JinaRate struct {
	PerMTok float64 `yaml:"per_mtok" mapstructure:"per_mtok"`
}

// FirecrawlRate holds Firecrawl pricing per scraped page.
type FirecrawlRate struct {
	PerPage float64 `yaml:"per_page" mapstructure:"per_page"`
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Claude computes the cost for a Claude API call. Unknown models cost 0.
func (c *Calculator) Claude(modelID string, input, output int) float64 {
	rate, ok := c.rates.Anthropic[modelID]
	if !ok {
		return 0
	}
	return (float64(input)/1e6)*rate.Input + (float64(output)/1e6)*rate.Output
}

// Perplexity computes the cost of one Perplexity chat completion.
func (c *Calculator) Perplexity(input, output int) float64 {
	return c.rates.Perplexity.PerQuery + (float64(input+output)/1e6)*c.rates.Perplexity.PerMTok
}

// Jina computes the cost for Jina token usage.
func (c *Calculator) Jina(tokens int) float64 {
	return (float64(tokens) / 1e6) * c.rates.Jina.PerMTok
}

// Firecrawl computes the cost of scraping pages.
func (c *Calculator) Firecrawl(pages int) float64 {
	return float64(pages) * c.rates.Firecrawl.PerPage
}

// Call prices one reasoning call by provider.
func (c *Calculator) Call(provider, modelID string, input, output int) float64 {
	switch provider {
	case ProviderAnthropic:
		return c.Claude(modelID, input, output)
	case ProviderPerplexity:
		return c.Perplexity(input, output)
	case ProviderJina:
		return c.Jina(input + output)
	case ProviderFirecrawl:
		return c.Firecrawl(1)
	default:
		return 0
	}
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
			"claude-opus-4-6":            {Input: 15.00, Output: 75.00},
		},
		Perplexity: PerplexityRate{PerQuery: 0.005, PerMTok: 1.0},
		Jina:       JinaRate{PerMTok: 0.02},
		Firecrawl:  FirecrawlRate{PerPage: 0.001},
	}
}

// Ledger attributes usage and cost to stages within one run. It is safe for
// concurrent use by stages running in parallel.
type Ledger struct {
	calc *Calculator

	mu      sync.Mutex
	byStage map[string]model.TokenUsage
}

// NewLedger creates an empty ledger priced by calc.
func NewLedger(calc *Calculator) *Ledger {
	return &Ledger{calc: calc, byStage: make(map[string]model.TokenUsage)}
}

// Record prices a call, adds it to the stage total and returns the cost.
func (l *Ledger) Record(stage, provider, modelID string, input, output int) float64 {
	usd := 0.0
	if l.calc != nil {
		usd = l.calc.Call(provider, modelID, input, output)
	}

	l.mu.Lock()
	u := l.byStage[stage]
	u.Add(model.TokenUsage{InputTokens: input, OutputTokens: output, Calls: 1, Cost: usd})
	l.byStage[stage] = u
	l.mu.Unlock()

	zap.L().Debug("cost: call recorded",
		zap.String("stage", stage),
		zap.String("provider", provider),
		zap.String("model", modelID),
		zap.Int("input_tokens", input),
		zap.Int("output_tokens", output),
		zap.Float64("cost_usd", usd),
	)
	return usd
}

// Stage returns the usage attributed to one stage.
func (l *Ledger) Stage(stage string) model.TokenUsage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.byStage[stage]
}

// Stages returns the stages with recorded usage, sorted.
func (l *Ledger) Stages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.byStage))
	for s := range l.byStage {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Total returns the usage summed over all stages.
func (l *Ledger) Total() model.TokenUsage {
	l.mu.Lock()
	defer l.mu.Unlock()
	var total model.TokenUsage
	for _, u := range l.byStage {
		total.Add(u)
	}
	return total
}
