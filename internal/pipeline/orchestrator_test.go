package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dossier-cli/internal/model"
	"github.com/sells-group/dossier-cli/internal/resilience"
)

type tieredMocks struct {
	identity  *mockIdentityStage
	funding   *mockFundingStage
	profile   *mockProfileStage
	news      *mockNewsCollector
	synthesis *mockSynthesisStage
}

func newTieredMocks() *tieredMocks {
	return &tieredMocks{
		identity:  &mockIdentityStage{},
		funding:   &mockFundingStage{},
		profile:   &mockProfileStage{},
		news:      &mockNewsCollector{},
		synthesis: &mockSynthesisStage{},
	}
}

func (m *tieredMocks) tiered() *Tiered {
	return NewTiered(fastPolicy(), TieredStages{
		Identity:  m.identity,
		Funding:   m.funding,
		Profile:   m.profile,
		News:      m.news,
		Synthesis: m.synthesis,
	})
}

func (m *tieredMocks) assertExpectations(t *testing.T) {
	m.identity.AssertExpectations(t)
	m.funding.AssertExpectations(t)
	m.profile.AssertExpectations(t)
	m.news.AssertExpectations(t)
	m.synthesis.AssertExpectations(t)
}

// synthesisReturnsComposed makes the synthesis mock compose from its input.
func synthesisReturnsComposed(m *mockSynthesisStage) {
	m.On("Synthesize", mock.Anything, mock.Anything).
		Return(func(_ context.Context, in SynthesisInput) *model.Dossier {
			return ComposeDossier(in, nil)
		}, nil)
}

func TestTiered_SkipsResearchBelowThreshold(t *testing.T) {
	m := newTieredMocks()
	m.identity.On("Resolve", mock.Anything, mock.Anything).Return(identityAt(0.2, model.IdentityActive), nil)
	m.synthesis.On("Synthesize", mock.Anything, mock.MatchedBy(func(in SynthesisInput) bool {
		return in.Funding.State == model.OutcomeSkipped && in.Profile.State == model.OutcomeSkipped &&
			in.News.State == model.OutcomeSkipped
	})).Return(&model.Dossier{Callsign: "AALO"}, nil)

	run := NewRun(aaloClues(), nil)
	d, err := m.tiered().Produce(context.Background(), run)
	require.NoError(t, err)
	require.NotNil(t, d)

	m.assertExpectations(t)
	m.funding.AssertNotCalled(t, "Research", mock.Anything, mock.Anything, mock.Anything)
	m.profile.AssertNotCalled(t, "Build", mock.Anything, mock.Anything, mock.Anything)
	m.news.AssertNotCalled(t, "Collect", mock.Anything, mock.Anything)

	rec := run.Record()
	assert.Equal(t, model.RunSynthesizing, rec.State)
	assert.Contains(t, rec.Funding.Reason, "below 0.30")
}

func TestTiered_StealthSkipsNewsOnly(t *testing.T) {
	m := newTieredMocks()
	stealth := model.CompanyIdentity{
		Status:          model.IdentityStealth,
		Confidence:      0.5,
		Reasoning:       "founder profiles only",
		EvidencePath:    model.EvidenceFounderProfiles,
		FounderProfiles: []string{"https://www.linkedin.com/in/founder"},
		Sources:         []string{"https://www.linkedin.com/in/founder"},
	}
	m.identity.On("Resolve", mock.Anything, mock.Anything).Return(stealth, nil)
	m.funding.On("Research", mock.Anything, stealth, mock.Anything).
		Return(model.FundingIntelligence{Finding: model.FundingNotFound, Stage: model.StageNoPublicInfo, Confidence: 0.1, Reasoning: "none"}, nil)
	m.profile.On("Build", mock.Anything, stealth, mock.Anything).
		Return(model.CompanyProfileIntel{Confidence: 0.2, Reasoning: "thin"}, nil)
	synthesisReturnsComposed(m.synthesis)

	run := NewRun(aaloClues(), nil)
	d, err := m.tiered().Produce(context.Background(), run)
	require.NoError(t, err)

	m.assertExpectations(t)
	m.news.AssertNotCalled(t, "Collect", mock.Anything, mock.Anything)

	rec := run.Record()
	assert.Equal(t, model.OutcomeSkipped, rec.News.State)
	assert.Equal(t, "company is in stealth", rec.News.Reason)
	activity, ok := d.Section(model.SectionActivity)
	require.True(t, ok)
	assert.Contains(t, activity.Body, "stealth mode")
}

func TestTiered_FullResearchRunsEveryStage(t *testing.T) {
	m := newTieredMocks()
	id := identityAt(0.8, model.IdentityRedirected)
	m.identity.On("Resolve", mock.Anything, mock.Anything).Return(id, nil)
	m.funding.On("Research", mock.Anything, id, mock.Anything).
		Return(model.FundingIntelligence{Finding: model.FundingAnnounced, Stage: "Seed", Confidence: 0.7, Reasoning: "press"}, nil)
	m.profile.On("Build", mock.Anything, id, mock.Anything).
		Return(model.CompanyProfileIntel{Products: []model.Fact{{Text: "reactor", Source: "https://aaloatomics.ai"}}, Confidence: 0.6}, nil)
	m.news.On("Collect", mock.Anything, mock.MatchedBy(func(q NewsQuery) bool {
		return q.Domain == "aaloatomics.ai" && q.Name == "Aalo Atomics" && q.LookbackDays == DefaultNewsLookbackDays
	})).Return(model.NewsBundle{Items: []model.NewsItem{{Title: "Aalo raises seed", URL: "https://news.example/aalo"}}}, nil)
	synthesisReturnsComposed(m.synthesis)

	run := NewRun(aaloClues(), nil)
	d, err := m.tiered().Produce(context.Background(), run)
	require.NoError(t, err)
	m.assertExpectations(t)

	rec := run.Record()
	var states []model.RunState
	for _, tr := range rec.Transitions {
		states = append(states, tr.To)
	}
	assert.Equal(t, []model.RunState{
		model.RunIdentityPending,
		model.RunIdentityResolved,
		model.RunFundingPending,
		model.RunProfilePending,
		model.RunSynthesizing,
	}, states)
	assert.Equal(t, model.OutcomeCompleted, rec.Funding.State)
	assert.Equal(t, 1, rec.Funding.Attempts)
	assert.InDelta(t, 0.4*0.8+0.3*0.7+0.3*0.6, d.AggregateConfidence, 0.01)
}

func TestTiered_FundingFailureDegradesOnly(t *testing.T) {
	m := newTieredMocks()
	id := identityAt(0.5, model.IdentityActive)
	m.identity.On("Resolve", mock.Anything, mock.Anything).Return(id, nil)
	m.funding.On("Research", mock.Anything, id, mock.Anything).
		Return(model.FundingIntelligence{}, resilience.NewTransientError(errors.New("503"), 503)).Twice()
	m.profile.On("Build", mock.Anything, id, mock.Anything).
		Return(model.CompanyProfileIntel{Confidence: 0.3, Reasoning: "ok"}, nil)
	synthesisReturnsComposed(m.synthesis)

	run := NewRun(aaloClues(), nil)
	d, err := m.tiered().Produce(context.Background(), run)
	require.NoError(t, err)
	m.assertExpectations(t)

	rec := run.Record()
	assert.Equal(t, model.OutcomeFailed, rec.Funding.State)
	assert.Equal(t, 2, rec.Funding.Attempts)
	require.Len(t, rec.Failures, 1)
	assert.Equal(t, StageFunding, rec.Failures[0].Stage)

	funding, ok := d.Section(model.SectionFunding)
	require.True(t, ok)
	assert.True(t, funding.Absent)
	assert.Contains(t, funding.Body, "could not be completed")
}

func TestTiered_IdentityErrorEndsStrategy(t *testing.T) {
	m := newTieredMocks()
	m.identity.On("Resolve", mock.Anything, mock.Anything).
		Return(model.CompanyIdentity{}, errors.New("provider rejected request"))

	run := NewRun(aaloClues(), nil)
	d, err := m.tiered().Produce(context.Background(), run)
	require.Error(t, err)
	assert.Nil(t, d)

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageIdentity, se.Stage)
	assert.Equal(t, 1, se.Attempts)
	m.synthesis.AssertNotCalled(t, "Synthesize", mock.Anything, mock.Anything)
}

func TestTiered_CancelledBeforeSynthesis(t *testing.T) {
	m := newTieredMocks()
	ctx, cancel := context.WithCancel(context.Background())
	m.identity.On("Resolve", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(identityAt(0.1, model.IdentityUnknown), nil)

	_, err := m.tiered().Produce(ctx, NewRun(aaloClues(), nil))
	require.ErrorIs(t, err, context.Canceled)
	m.synthesis.AssertNotCalled(t, "Synthesize", mock.Anything, mock.Anything)
}

func TestTiered_NoNewsCollector(t *testing.T) {
	m := newTieredMocks()
	id := identityAt(0.9, model.IdentityActive)
	m.identity.On("Resolve", mock.Anything, mock.Anything).Return(id, nil)
	m.funding.On("Research", mock.Anything, id, mock.Anything).
		Return(model.FundingIntelligence{Finding: model.FundingNotFound, Confidence: 0.1}, nil)
	m.profile.On("Build", mock.Anything, id, mock.Anything).Return(model.CompanyProfileIntel{}, nil)
	synthesisReturnsComposed(m.synthesis)

	tiered := NewTiered(fastPolicy(), TieredStages{
		Identity:  m.identity,
		Funding:   m.funding,
		Profile:   m.profile,
		Synthesis: m.synthesis,
	})
	run := NewRun(aaloClues(), nil)
	_, err := tiered.Produce(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, "no news collector configured", run.Record().News.Reason)
}
