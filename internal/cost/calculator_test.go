package cost

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func testRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"haiku":  {Input: 0.80, Output: 4.00},
			"sonnet": {Input: 3.00, Output: 15.00},
		},
		Perplexity: PerplexityRate{PerQuery: 0.005, PerMTok: 1.0},
		Jina:       JinaRate{PerMTok: 0.02},
		Firecrawl:  FirecrawlRate{PerPage: 0.001},
	}
}

func TestClaude(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	tests := []struct {
		name   string
		model  string
		input  int
		output int
		want   float64
	}{
		{name: "haiku", model: "haiku", input: 1000000, output: 100000, want: 0.80 + 0.40},
		{name: "sonnet", model: "sonnet", input: 500000, output: 200000, want: 1.50 + 3.00},
		{name: "unknown model", model: "gpt", input: 1000000, output: 1000000, want: 0},
		{name: "zero tokens", model: "haiku", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, calc.Claude(tt.model, tt.input, tt.output), 1e-9)
		})
	}
}

func TestPerplexity(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	assert.InDelta(t, 0.005, calc.Perplexity(0, 0), 1e-9)
	assert.InDelta(t, 0.005+1.0, calc.Perplexity(600000, 400000), 1e-9)
}

func TestJina(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())
	assert.InDelta(t, 0.02, calc.Jina(1000000), 1e-9)
}

func TestFirecrawl(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())
	assert.InDelta(t, 0.003, calc.Firecrawl(3), 1e-9)
	assert.InDelta(t, 0.001, calc.Call(ProviderFirecrawl, "", 0, 0), 1e-9)
}

func TestCallDispatch(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	assert.InDelta(t, calc.Claude("haiku", 10, 10), calc.Call(ProviderAnthropic, "haiku", 10, 10), 1e-12)
	assert.InDelta(t, calc.Perplexity(10, 10), calc.Call(ProviderPerplexity, "sonar", 10, 10), 1e-12)
	assert.Zero(t, calc.Call("stub", "x", 10, 10))
}

func TestDefaultRates(t *testing.T) {
	t.Parallel()
	rates := DefaultRates()
	assert.Contains(t, rates.Anthropic, "claude-sonnet-4-5-20250929")
	assert.InDelta(t, 0.005, rates.Perplexity.PerQuery, 1e-9)
}

func TestLedger(t *testing.T) {
	t.Parallel()
	l := NewLedger(NewCalculator(testRates()))

	got := l.Record("synthesis", ProviderAnthropic, "haiku", 1000000, 0)
	assert.InDelta(t, 0.80, got, 1e-9)
	l.Record("identity", ProviderPerplexity, "sonar-pro", 100, 50)
	l.Record("identity", ProviderPerplexity, "sonar-pro", 100, 50)

	id := l.Stage("identity")
	assert.Equal(t, 2, id.Calls)
	assert.Equal(t, 200, id.InputTokens)
	assert.Equal(t, []string{"identity", "synthesis"}, l.Stages())

	total := l.Total()
	assert.Equal(t, 3, total.Calls)
	assert.InDelta(t, 0.80+2*NewCalculator(testRates()).Perplexity(100, 50), total.Cost, 1e-9)
}

func TestLedgerConcurrent(t *testing.T) {
	t.Parallel()
	l := NewLedger(nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Record("funding", ProviderPerplexity, "sonar", 1, 1)
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, l.Stage("funding").Calls)
	assert.Zero(t, l.Total().Cost)
}
