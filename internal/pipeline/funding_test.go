package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dossier-cli/internal/model"
	"github.com/sells-group/dossier-cli/internal/resilience"
)

func TestFundingResearcher_NoPublicFunding(t *testing.T) {
	search := &mockSearcher{}
	search.On("Search", mock.Anything, mock.Anything, 8).Return(nil)
	search.On("Search", mock.Anything, "aaloatomics.ai funding round", 5).Return(nil)

	r := &mockReasoner{}
	r.On("Reason", mock.Anything, mock.MatchedBy(func(req ReasonRequest) bool {
		return req.Stage == StageFunding && req.Temperature != nil && *req.Temperature == 0.2
	})).Return(textResponse(`{"finding": "not_found", "funding_stage": "Unknown", "total_funding_usd": null,
		"confidence": 0.0, "reasoning": "No public funding found.", "sources": []}`), nil)

	f, err := NewFundingResearcher(r, stageModel("perplexity"), search).
		Research(context.Background(), identityAt(0.8, model.IdentityActive), aaloClues())
	require.NoError(t, err)
	search.AssertExpectations(t)
	r.AssertExpectations(t)

	assert.Equal(t, model.FundingNotFound, f.Finding)
	assert.Equal(t, model.StageNoPublicInfo, f.Stage)
	assert.False(t, f.Found())
	assert.Nil(t, f.LatestRound)
	assert.Greater(t, f.Confidence, 0.0)
	assert.Less(t, f.Confidence, 0.4)
}

func TestFundingResearcher_AnnouncedBorrowsHintRound(t *testing.T) {
	search := &mockSearcher{}
	search.On("Search", mock.Anything, mock.Anything, 8).Return([]SearchHit{{
		Title:   "Aalo Atomics raises $6.3M seed round",
		URL:     "https://news.example/aalo-seed",
		Snippet: "Led by Fifty Years. Announced 2023-04-12.",
	}})
	search.On("Search", mock.Anything, "aaloatomics.ai funding round", 5).Return([]SearchHit{{
		Title: "Aalo Atomics raises $6.3M seed round",
		URL:   "https://news.example/aalo-seed/",
	}})

	r := &mockReasoner{}
	r.On("Reason", mock.Anything, mock.Anything).Return(textResponse(`{"finding": "announced", "funding_stage": "",
		"confidence": 0.3, "reasoning": "Press coverage of a seed round.", "sources": ["https://news.example/aalo-seed"]}`), nil)

	f, err := NewFundingResearcher(r, stageModel("perplexity"), search).
		Research(context.Background(), identityAt(0.8, model.IdentityActive), aaloClues())
	require.NoError(t, err)

	assert.Equal(t, model.FundingAnnounced, f.Finding)
	assert.Equal(t, "Seed", f.Stage)
	require.NotNil(t, f.LatestRound)
	require.NotNil(t, f.LatestRound.AmountUSD)
	assert.InDelta(t, 6.3e6, *f.LatestRound.AmountUSD, 1)
	assert.Equal(t, "Fifty Years", f.LatestRound.LeadInvestor)
	require.NotNil(t, f.LatestRound.AnnouncedOn)
	assert.Equal(t, time.Date(2023, 4, 12, 0, 0, 0, 0, time.UTC), *f.LatestRound.AnnouncedOn)
	assert.InDelta(t, 0.4, f.Confidence, 1e-9)
	assert.Equal(t, []string{"https://news.example/aalo-seed"}, f.Sources)
}

func TestFundingResearcher_MalformedAnswer(t *testing.T) {
	r := &mockReasoner{}
	r.On("Reason", mock.Anything, mock.Anything).Return(textResponse(`{"finding": "maybe", "confidence": 0.5, "reasoning": "x"}`), nil)

	_, err := NewFundingResearcher(r, stageModel("perplexity"), nil).
		Research(context.Background(), identityAt(0.8, model.IdentityActive), aaloClues())
	require.Error(t, err)
	assert.True(t, resilience.IsMalformed(err))
}

func TestFundingResearcher_CancelledBeforeReasoning(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &mockReasoner{}

	_, err := NewFundingResearcher(r, stageModel("perplexity"), nil).
		Research(ctx, identityAt(0.8, model.IdentityActive), aaloClues())
	require.ErrorIs(t, err, context.Canceled)
	r.AssertNotCalled(t, "Reason", mock.Anything, mock.Anything)
}

func TestFinalizeFunding(t *testing.T) {
	conf := func(v float64) *float64 { return &v }
	amount := 12e6

	tests := []struct {
		name      string
		ans       fundingAnswer
		hint      FundingHint
		finding   model.FundingFinding
		stage     string
		conf      float64
		wantRound bool
	}{
		{
			name:    "bootstrapped drops round",
			ans:     fundingAnswer{Finding: "bootstrapped", Confidence: conf(0.95), Reasoning: "self-funded", LatestRound: &fundingRoundAnswer{RoundType: "seed"}},
			finding: model.FundingBootstrapped,
			stage:   model.StageBootstrapped,
			conf:    0.8,
		},
		{
			name:    "announced without any details becomes not found",
			ans:     fundingAnswer{Finding: "announced", Confidence: conf(0.9), Reasoning: "rumor"},
			finding: model.FundingNotFound,
			stage:   model.StageNoPublicInfo,
			conf:    0.2,
		},
		{
			name:      "announced with total only keeps unknown stage",
			ans:       fundingAnswer{Finding: "announced", Confidence: conf(0.6), Reasoning: "total", TotalFundingUSD: flexAmount{Value: &amount}},
			finding:   model.FundingAnnounced,
			stage:     model.StageUnknown,
			conf:      0.6,
			wantRound: false,
		},
		{
			name:      "round type becomes stage",
			ans:       fundingAnswer{Finding: "announced", Stage: "unknown", Confidence: conf(0.75), Reasoning: "press", LatestRound: &fundingRoundAnswer{RoundType: "series a", SourceURL: "https://pr.example/a"}},
			finding:   model.FundingAnnounced,
			stage:     "Series A",
			conf:      0.75,
			wantRound: true,
		},
		{
			name:      "weak announced answer is not raised into the found band",
			ans:       fundingAnswer{Finding: "announced", Confidence: conf(0.2), Reasoning: "one blog mention", LatestRound: &fundingRoundAnswer{RoundType: "seed"}},
			finding:   model.FundingAnnounced,
			stage:     "Seed",
			conf:      0.2,
			wantRound: true,
		},
		{
			name:    "weak bootstrapped answer is not raised",
			ans:     fundingAnswer{Finding: "bootstrapped", Confidence: conf(0.1), Reasoning: "maybe self-funded"},
			finding: model.FundingBootstrapped,
			stage:   model.StageBootstrapped,
			conf:    0.1,
		},
		{
			name:    "not found is clamped up to the floor",
			ans:     fundingAnswer{Finding: "not_found", Confidence: conf(0), Reasoning: "nothing", TotalFundingUSD: flexAmount{Value: &amount}},
			finding: model.FundingNotFound,
			stage:   model.StageNoPublicInfo,
			conf:    0.05,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ans := tt.ans
			f := finalizeFunding(&ans, tt.hint, nil)
			assert.Equal(t, tt.finding, f.Finding)
			assert.Equal(t, tt.stage, f.Stage)
			assert.InDelta(t, tt.conf, f.Confidence, 1e-9)
			assert.Equal(t, tt.wantRound, f.LatestRound != nil)
			if f.Finding == model.FundingNotFound {
				assert.Nil(t, f.TotalFundingUSD)
			}
		})
	}
}

func TestFinalizeFunding_RoundSourceIsCited(t *testing.T) {
	conf := 0.9
	f := finalizeFunding(&fundingAnswer{
		Finding:    "announced",
		Confidence: &conf,
		Reasoning:  "press release",
		LatestRound: &fundingRoundAnswer{
			RoundType:     "Seed",
			AnnouncedDate: "2024-03",
			LeadInvestors: []string{" Fifty Years "},
			Participants:  []string{"Fifty Years", "Crucible"},
			SourceURL:     "https://pr.example/seed",
		},
	}, FundingHint{}, []string{"https://citation.example"})

	require.NotNil(t, f.LatestRound)
	assert.Equal(t, "Fifty Years", f.LatestRound.LeadInvestor)
	assert.Equal(t, []string{"Fifty Years", "Crucible"}, f.LatestRound.Investors)
	require.NotNil(t, f.LatestRound.AnnouncedOn)
	assert.Equal(t, time.March, f.LatestRound.AnnouncedOn.Month())
	assert.Equal(t, []string{"https://citation.example", "https://pr.example/seed"}, f.Sources)
}

func TestFundingAnswer_Decode(t *testing.T) {
	ans, err := decodeAnswer[fundingAnswer](`{"finding": "Self-Funded", "total_funding_usd": "$12.5M",
		"confidence": 0.5, "reasoning": "founder interview"}`)
	require.NoError(t, err)
	assert.Equal(t, string(model.FundingBootstrapped), ans.Finding)
	require.NotNil(t, ans.TotalFundingUSD.Value)
	assert.InDelta(t, 12.5e6, *ans.TotalFundingUSD.Value, 1)

	_, err = decodeAnswer[fundingAnswer](`{"finding": "announced", "reasoning": "x"}`)
	assert.Error(t, err)
}
