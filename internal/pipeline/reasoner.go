package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/dossier-cli/internal/config"
	"github.com/sells-group/dossier-cli/internal/cost"
	"github.com/sells-group/dossier-cli/internal/resilience"
	"github.com/sells-group/dossier-cli/pkg/anthropic"
	"github.com/sells-group/dossier-cli/pkg/perplexity"
)

// ReasonRequest is one structured reasoning call.
type ReasonRequest struct {
	Stage       string
	Model       string
	System      string
	Prompt      string
	Schema      json.RawMessage
	MaxTokens   int
	Temperature *float64
	// RecencyFilter narrows web-grounded search ("week", "month", "year").
	RecencyFilter string
}

// ReasonResponse is the raw text answer plus the evidence the provider cited.
type ReasonResponse struct {
	Text         string
	Citations    []string
	InputTokens  int
	OutputTokens int
	Provider     string
	Model        string
}

// Reasoner is the reasoning/generation service used by every LLM stage.
type Reasoner interface {
	Reason(ctx context.Context, req ReasonRequest) (*ReasonResponse, error)
}

// ReasonerSet maps provider names to reasoners.
type ReasonerSet map[string]Reasoner

// Pick returns the reasoner configured for a stage.
func (s ReasonerSet) Pick(m config.StageModel) (Reasoner, error) {
	r, ok := s[m.Provider]
	if !ok || r == nil {
		return nil, eris.Errorf("pipeline: no reasoner for provider %q", m.Provider)
	}
	return r, nil
}

// ReasonerOption configures a provider reasoner.
type ReasonerOption func(*reasonerBase)

// WithBreaker routes calls through a circuit breaker.
func WithBreaker(b *resilience.Breaker) ReasonerOption {
	return func(r *reasonerBase) {
		r.breaker = b
	}
}

// WithRequestRate paces outbound calls to rps requests per second.
func WithRequestRate(rps float64) ReasonerOption {
	return func(r *reasonerBase) {
		if rps > 0 {
			r.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			r.limiter = nil
		}
	}
}

type reasonerBase struct {
	breaker *resilience.Breaker
	limiter *rate.Limiter
}

func (r *reasonerBase) wait(ctx context.Context) error {
	if r.limiter == nil {
		return nil
	}
	return r.limiter.Wait(ctx)
}

// PerplexityReasoner answers with web-grounded Perplexity completions. The
// citations returned by the API become evidence sources.
type PerplexityReasoner struct {
	reasonerBase
	client perplexity.Client
}

// NewPerplexityReasoner wraps a Perplexity client.
func NewPerplexityReasoner(client perplexity.Client, opts ...ReasonerOption) *PerplexityReasoner {
	r := &PerplexityReasoner{client: client}
	for _, opt := range opts {
		opt(&r.reasonerBase)
	}
	return r
}

// Reason implements Reasoner.
func (r *PerplexityReasoner) Reason(ctx context.Context, req ReasonRequest) (*ReasonResponse, error) {
	if err := r.wait(ctx); err != nil {
		return nil, eris.Wrap(err, "pipeline: perplexity rate limit")
	}

	msgs := make([]perplexity.Message, 0, 2)
	if req.System != "" {
		msgs = append(msgs, perplexity.Message{Role: "system", Content: req.System})
	}
	msgs = append(msgs, perplexity.Message{Role: "user", Content: req.Prompt})

	pReq := perplexity.ChatCompletionRequest{
		Model:               req.Model,
		Messages:            msgs,
		Temperature:         req.Temperature,
		SearchRecencyFilter: req.RecencyFilter,
	}
	if req.MaxTokens > 0 {
		mt := req.MaxTokens
		pReq.MaxTokens = &mt
	}
	if len(req.Schema) > 0 {
		pReq.ResponseFormat = &perplexity.ResponseFormat{
			Type:       "json_schema",
			JSONSchema: &perplexity.JSONSchema{Schema: req.Schema},
		}
	}

	resp, err := resilience.Call(ctx, r.breaker, func(ctx context.Context) (*perplexity.ChatCompletionResponse, error) {
		out, callErr := r.client.ChatCompletion(ctx, pReq)
		return out, classifyPerplexity(callErr)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: %s reasoning", req.Stage)
	}

	return &ReasonResponse{
		Text:         resp.Content(),
		Citations:    resp.Sources(),
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		Provider:     cost.ProviderPerplexity,
		Model:        firstNonEmpty(resp.Model, req.Model),
	}, nil
}

func classifyPerplexity(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *perplexity.APIError
	if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.StatusCode) {
		return resilience.NewTransientError(err, apiErr.StatusCode)
	}
	return err
}

// AnthropicReasoner answers with Claude. It performs no web search, so it is
// intended for synthesis over evidence already gathered.
type AnthropicReasoner struct {
	reasonerBase
	client anthropic.Client
}

// NewAnthropicReasoner wraps an Anthropic client.
func NewAnthropicReasoner(client anthropic.Client, opts ...ReasonerOption) *AnthropicReasoner {
	r := &AnthropicReasoner{client: client}
	for _, opt := range opts {
		opt(&r.reasonerBase)
	}
	return r
}

// Reason implements Reasoner.
func (r *AnthropicReasoner) Reason(ctx context.Context, req ReasonRequest) (*ReasonResponse, error) {
	if err := r.wait(ctx); err != nil {
		return nil, eris.Wrap(err, "pipeline: anthropic rate limit")
	}

	system := req.System
	if len(req.Schema) > 0 {
		system = strings.TrimSpace(system + "\n\nRespond with a single JSON object matching this schema:\n" + string(req.Schema))
	}
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 2048
	}

	aReq := anthropic.MessageRequest{
		Model:       req.Model,
		MaxTokens:   maxTokens,
		Messages:    []anthropic.Message{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
	}
	if system != "" {
		aReq.System = []anthropic.SystemBlock{{Text: system, Cached: true}}
	}

	resp, err := resilience.Call(ctx, r.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		out, callErr := r.client.CreateMessage(ctx, aReq)
		return out, classifyAnthropic(callErr)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: %s reasoning", req.Stage)
	}

	return &ReasonResponse{
		Text:         resp.Text(),
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
		Provider:     cost.ProviderAnthropic,
		Model:        firstNonEmpty(resp.Model, req.Model),
	}, nil
}

func classifyAnthropic(err error) error {
	if err == nil {
		return nil
	}
	if status := anthropic.StatusCode(err); resilience.IsTransientHTTPStatus(status) || status == 529 {
		return resilience.NewTransientError(err, status)
	}
	return err
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
