package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dossier-cli/internal/model"
)

func TestProfileBuilder_ReadsWebsiteAndSearches(t *testing.T) {
	id := identityAt(0.8, model.IdentityActive)
	id.Website = "https://www.aaloatomics.ai"

	reader := &mockPageReader{}
	reader.On("ReadPage", mock.Anything, "https://www.aaloatomics.ai").
		Return("Aalo Atomics", "Aalo-X is a 10 MWe sodium-cooled microreactor for data centers.")
	search := &mockSearcher{}
	search.On("Search", mock.Anything, `"Aalo Atomics" product customers aaloatomics.ai`, 6).Return([]SearchHit{
		{Title: "Aalo picks Idaho site", URL: "https://news.example/idaho"},
	})
	r := &mockReasoner{}
	r.On("Reason", mock.Anything, mock.MatchedBy(func(req ReasonRequest) bool {
		return req.Stage == StageProfile && strings.Contains(req.Prompt, "sodium-cooled") &&
			strings.Contains(req.Prompt, "Idaho")
	})).Return(textResponse(`{
		"products": [{"text": "Aalo-X microreactor", "source": "https://www.aaloatomics.ai"}],
		"target_customers": ["Data centers"],
		"business_model": "Hardware sales",
		"confidence": 0.7,
		"reasoning": "Website describes the product.",
		"sources": []
	}`), nil)

	p, err := NewProfileBuilder(r, stageModel("perplexity"), reader, search).Build(context.Background(), id, aaloClues())
	require.NoError(t, err)
	reader.AssertExpectations(t)
	search.AssertExpectations(t)
	r.AssertExpectations(t)

	require.Len(t, p.Products, 1)
	assert.False(t, p.Products[0].Inferred)
	require.Len(t, p.TargetCustomers, 1)
	assert.True(t, p.TargetCustomers[0].Inferred)
	assert.Equal(t, []string{
		unconfirmedPrefix + "Data centers",
		unconfirmedPrefix + "Business model: Hardware sales",
	}, p.OpenQuestions)
	require.NotNil(t, p.BusinessModel)
	assert.Equal(t, "Hardware sales", p.BusinessModel.Text)
	assert.True(t, p.BusinessModel.Inferred)
	assert.InDelta(t, 0.7, p.Confidence, 1e-9)
	assert.Equal(t, []string{"https://www.aaloatomics.ai"}, p.Sources)
}

func TestProfileBuilder_SearchesCompanyDomain(t *testing.T) {
	id := identityAt(0.8, model.IdentityActive)

	search := &mockSiteSearcher{}
	search.On("Search", mock.Anything, `"Aalo Atomics" product customers aaloatomics.ai`, 6).Return([]SearchHit{
		{Title: "Aalo pricing", URL: "https://aaloatomics.ai/pricing/"},
	})
	search.On("SearchSite", mock.Anything, "aaloatomics.ai", mock.Anything, siteResultsPerProfile).Return([]SearchHit{
		{Title: "Aalo pricing", URL: "https://aaloatomics.ai/pricing"},
		{Title: "Aalo customers", URL: "https://aaloatomics.ai/customers"},
	})
	r := &mockReasoner{}
	r.On("Reason", mock.Anything, mock.MatchedBy(func(req ReasonRequest) bool {
		return strings.Count(req.Prompt, "aaloatomics.ai/pricing") == 1 &&
			strings.Contains(req.Prompt, "aaloatomics.ai/customers")
	})).Return(textResponse(`{"products": [{"text": "Aalo-X", "source": "https://aaloatomics.ai/customers"}],
		"confidence": 0.6, "reasoning": "site pages"}`), nil)

	_, err := NewProfileBuilder(r, stageModel("perplexity"), nil, search).Build(context.Background(), id, aaloClues())
	require.NoError(t, err)
	search.AssertExpectations(t)
	r.AssertExpectations(t)
}

func TestProfileBuilder_NoDomainSkipsSiteSearch(t *testing.T) {
	id := model.CompanyIdentity{Status: model.IdentityUnknown}

	search := &mockSiteSearcher{}
	search.On("Search", mock.Anything, `"Aalo Atomics" product customers`, 6).Return(nil)
	r := &mockReasoner{}
	r.On("Reason", mock.Anything, mock.Anything).Return(textResponse(`{"products": ["Reactor"], "confidence": 0.2, "reasoning": "thin"}`), nil)

	_, err := NewProfileBuilder(r, stageModel("perplexity"), nil, search).Build(context.Background(), id, aaloClues())
	require.NoError(t, err)
	search.AssertNotCalled(t, "SearchSite", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProfileBuilder_NoWebsiteSkipsReader(t *testing.T) {
	reader := &mockPageReader{}
	r := &mockReasoner{}
	r.On("Reason", mock.Anything, mock.Anything).Return(textResponse(`{"products": [], "target_customers": [],
		"confidence": 0.2, "reasoning": "Nothing public.", "sources": []}`), nil)

	id := model.CompanyIdentity{Status: model.IdentityStealth, Confidence: 0.4}
	p, err := NewProfileBuilder(r, stageModel("perplexity"), reader, nil).Build(context.Background(), id, aaloClues())
	require.NoError(t, err)
	reader.AssertNotCalled(t, "ReadPage", mock.Anything, mock.Anything)
	assert.Empty(t, p.AllFacts())
	assert.Empty(t, p.Sources)
}

func TestFinalizeProfile(t *testing.T) {
	conf := func(v float64) *float64 { return &v }

	t.Run("unsourced facts cap confidence", func(t *testing.T) {
		p := finalizeProfile(&profileAnswer{
			Products:        []factAnswer{{Text: "Reactor"}, {Text: "  "}},
			Differentiation: []factAnswer{{Text: "Factory built"}},
			OpenQuestions:   []string{"Who are the customers?", ""},
			Confidence:      conf(0.9),
			Reasoning:       "guess",
		}, nil)

		require.Len(t, p.Products, 1)
		assert.True(t, p.Products[0].Inferred)
		assert.Zero(t, p.SourcedFactCount())
		assert.InDelta(t, profileFactCap, p.Confidence, 1e-9)
		assert.Equal(t, []string{
			"Who are the customers?",
			unconfirmedPrefix + "Reactor",
			unconfirmedPrefix + "Factory built",
		}, p.OpenQuestions)
	})

	t.Run("single-valued fields need a citation too", func(t *testing.T) {
		p := finalizeProfile(&profileAnswer{
			ValueProposition: factAnswer{Text: "Cheapest nuclear power on earth"},
			GTMMotion:        factAnswer{Text: "Direct enterprise sales"},
			HeadcountRange:   factAnswer{Text: "51-200"},
			Headquarters:     factAnswer{Text: "Austin, TX", Source: "https://aaloatomics.ai/contact"},
			Confidence:       conf(0.8),
			Reasoning:        "site and guesses",
		}, nil)

		require.NotNil(t, p.ValueProposition)
		assert.True(t, p.ValueProposition.Inferred)
		assert.True(t, p.GTMMotion.Inferred)
		assert.True(t, p.HeadcountRange.Inferred)
		assert.False(t, p.Headquarters.Inferred)
		assert.Nil(t, p.BusinessModel)
		assert.Equal(t, []string{
			unconfirmedPrefix + "Value proposition: Cheapest nuclear power on earth",
			unconfirmedPrefix + "Go-to-market: Direct enterprise sales",
			unconfirmedPrefix + "Headcount: 51-200",
		}, p.OpenQuestions)
		assert.Equal(t, []string{"https://aaloatomics.ai/contact"}, p.Sources)
		assert.Equal(t, 1, p.SourcedFactCount())
		assert.InDelta(t, 0.8, p.Confidence, 1e-9)
	})

	t.Run("sources merge answer citations and facts", func(t *testing.T) {
		p := finalizeProfile(&profileAnswer{
			NotableCustomers: []factAnswer{{Text: "INL", Source: "https://inl.gov/aalo"}},
			Confidence:       conf(0.666),
			Reasoning:        "cited",
			Sources:          []string{"https://aaloatomics.ai", "https://inl.gov/aalo"},
		}, []string{"https://aaloatomics.ai", "https://news.example/x"})

		assert.Equal(t, []string{"https://aaloatomics.ai", "https://inl.gov/aalo", "https://news.example/x"}, p.Sources)
		assert.InDelta(t, 0.67, p.Confidence, 1e-9)
		assert.Equal(t, 1, p.SourcedFactCount())
	})
}

func TestFactAnswer_AcceptsStringOrObject(t *testing.T) {
	ans, err := decodeAnswer[profileAnswer](`{"products": ["Reactor", {"text": "Fuel", "source": "https://x.example"}],
		"confidence": 0.4, "reasoning": "mixed"}`)
	require.NoError(t, err)
	require.Len(t, ans.Products, 2)
	assert.Equal(t, factAnswer{Text: "Reactor"}, ans.Products[0])
	assert.Equal(t, factAnswer{Text: "Fuel", Source: "https://x.example"}, ans.Products[1])

	ans, err = decodeAnswer[profileAnswer](`{"headquarters": "Austin, TX", "go_to_market": {"text": "PLG", "source": "https://x.example"},
		"value_proposition": null, "confidence": 0.4, "reasoning": "scalars"}`)
	require.NoError(t, err)
	assert.Equal(t, factAnswer{Text: "Austin, TX"}, ans.Headquarters)
	assert.Equal(t, factAnswer{Text: "PLG", Source: "https://x.example"}, ans.GTMMotion)
	assert.Empty(t, ans.ValueProposition.Text)

	_, err = decodeAnswer[profileAnswer](`{"products": [], "confidence": 0.4}`)
	assert.Error(t, err)
}
