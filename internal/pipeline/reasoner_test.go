package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dossier-cli/internal/config"
	"github.com/sells-group/dossier-cli/internal/cost"
	"github.com/sells-group/dossier-cli/internal/resilience"
	"github.com/sells-group/dossier-cli/pkg/anthropic"
	anthropicmocks "github.com/sells-group/dossier-cli/pkg/anthropic/mocks"
	"github.com/sells-group/dossier-cli/pkg/perplexity"
	perplexitymocks "github.com/sells-group/dossier-cli/pkg/perplexity/mocks"
)

func pplxAnswer(text string, citations ...string) *perplexity.ChatCompletionResponse {
	return &perplexity.ChatCompletionResponse{
		Model:     "sonar-pro",
		Choices:   []perplexity.Choice{{Message: perplexity.Message{Role: "assistant", Content: text}}},
		Usage:     perplexity.Usage{PromptTokens: 120, CompletionTokens: 30},
		Citations: citations,
	}
}

func TestPerplexityReasoner_BuildsRequest(t *testing.T) {
	client := perplexitymocks.NewMockClient(t)
	client.On("ChatCompletion", mock.Anything, mock.MatchedBy(func(req perplexity.ChatCompletionRequest) bool {
		return req.Model == "sonar-pro" &&
			len(req.Messages) == 2 && req.Messages[0].Role == "system" && req.Messages[1].Content == "find it" &&
			req.MaxTokens != nil && *req.MaxTokens == 512 &&
			req.ResponseFormat != nil && req.ResponseFormat.Type == "json_schema" &&
			req.SearchRecencyFilter == "month"
	})).Return(pplxAnswer(`{"ok": true}`, "https://a.example"), nil)

	resp, err := NewPerplexityReasoner(client).Reason(context.Background(), ReasonRequest{
		Stage:         StageIdentity,
		Model:         "sonar-pro",
		System:        "be precise",
		Prompt:        "find it",
		Schema:        identitySchema,
		MaxTokens:     512,
		RecencyFilter: "month",
	})
	require.NoError(t, err)
	assert.Equal(t, `{"ok": true}`, resp.Text)
	assert.Equal(t, []string{"https://a.example"}, resp.Citations)
	assert.Equal(t, 120, resp.InputTokens)
	assert.Equal(t, 30, resp.OutputTokens)
	assert.Equal(t, cost.ProviderPerplexity, resp.Provider)
	assert.Equal(t, "sonar-pro", resp.Model)
}

func TestPerplexityReasoner_ClassifiesTransientStatus(t *testing.T) {
	client := perplexitymocks.NewMockClient(t)
	client.On("ChatCompletion", mock.Anything, mock.Anything).
		Return(nil, &perplexity.APIError{StatusCode: 503, Body: "overloaded"}).Once()
	client.On("ChatCompletion", mock.Anything, mock.Anything).
		Return(nil, &perplexity.APIError{StatusCode: 400, Body: "bad"}).Once()

	r := NewPerplexityReasoner(client)
	_, err := r.Reason(context.Background(), ReasonRequest{Stage: StageFunding, Prompt: "x"})
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))

	_, err = r.Reason(context.Background(), ReasonRequest{Stage: StageFunding, Prompt: "x"})
	require.Error(t, err)
	assert.False(t, resilience.IsRetryable(err))
}

func TestPerplexityReasoner_BreakerOpens(t *testing.T) {
	client := perplexitymocks.NewMockClient(t)
	client.On("ChatCompletion", mock.Anything, mock.Anything).
		Return(nil, &perplexity.APIError{StatusCode: 500, Body: "down"}).Twice()

	b := resilience.NewBreaker(cost.ProviderPerplexity, resilience.BreakerConfig{FailureThreshold: 2, ResetTimeout: time.Minute})
	r := NewPerplexityReasoner(client, WithBreaker(b))
	for range 2 {
		_, err := r.Reason(context.Background(), ReasonRequest{Stage: StageProfile, Prompt: "x"})
		require.Error(t, err)
	}
	assert.Equal(t, resilience.CircuitOpen, b.State())

	_, err := r.Reason(context.Background(), ReasonRequest{Stage: StageProfile, Prompt: "x"})
	require.ErrorIs(t, err, resilience.ErrCircuitOpen)
}

func TestPerplexityReasoner_RateLimitHonoursContext(t *testing.T) {
	client := perplexitymocks.NewMockClient(t)
	r := NewPerplexityReasoner(client, WithRequestRate(0.001))

	// The first token is available immediately; the second would take far
	// longer than the context allows.
	client.On("ChatCompletion", mock.Anything, mock.Anything).Return(pplxAnswer("{}"), nil).Once()
	_, err := r.Reason(context.Background(), ReasonRequest{Prompt: "x"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = r.Reason(ctx, ReasonRequest{Prompt: "x"})
	require.Error(t, err)
}

func TestAnthropicReasoner_EmbedsSchemaInSystem(t *testing.T) {
	client := anthropicmocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.MaxTokens == 2048 && len(req.System) == 1 && req.System[0].Cached &&
			strings.Contains(req.System[0].Text, "matching this schema") &&
			len(req.Messages) == 1 && req.Messages[0].Content == "write it"
	})).Return(&anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: `{"identity": "x"}`}},
		Usage:   anthropic.TokenUsage{InputTokens: 900, OutputTokens: 200},
	}, nil)

	resp, err := NewAnthropicReasoner(client).Reason(context.Background(), ReasonRequest{
		Stage:  StageSynthesis,
		Model:  "claude-sonnet-4-5-20250929",
		Prompt: "write it",
		Schema: synthesisSchema,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"identity": "x"}`, resp.Text)
	assert.Equal(t, 900, resp.InputTokens)
	assert.Equal(t, cost.ProviderAnthropic, resp.Provider)
	assert.Equal(t, "claude-sonnet-4-5-20250929", resp.Model)
	assert.Empty(t, resp.Citations)
}

func TestAnthropicReasoner_PlainErrorIsNotTransient(t *testing.T) {
	client := anthropicmocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, errors.New("invalid api key"))

	_, err := NewAnthropicReasoner(client).Reason(context.Background(), ReasonRequest{Stage: StageSynthesis, Prompt: "x"})
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
}

func TestReasonerSet_Pick(t *testing.T) {
	set := ReasonerSet{cost.ProviderPerplexity: &mockReasoner{}}

	r, err := set.Pick(config.StageModel{Provider: cost.ProviderPerplexity})
	require.NoError(t, err)
	assert.NotNil(t, r)

	_, err = set.Pick(config.StageModel{Provider: "openai"})
	assert.Error(t, err)
}

func TestReason_RecordsLedgerUsage(t *testing.T) {
	r := &mockReasoner{}
	r.On("Reason", mock.Anything, mock.Anything).Return(textResponse("{}"), nil)
	l := cost.NewLedger(cost.NewCalculator(cost.DefaultRates()))

	_, err := reason(withLedger(context.Background(), l), r, ReasonRequest{Stage: StageNews})
	require.NoError(t, err)
	assert.Equal(t, 1, l.Stage(StageNews).Calls)
	assert.Equal(t, 40, l.Total().OutputTokens)

	_, err = reason(context.Background(), nil, ReasonRequest{Stage: StageNews})
	assert.Error(t, err)
}
