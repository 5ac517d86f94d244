package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/dossier-cli/internal/model"
)

// --- Reasoner Mock ---

type mockReasoner struct {
	mock.Mock
}

func (m *mockReasoner) Reason(ctx context.Context, req ReasonRequest) (*ReasonResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ReasonResponse), args.Error(1)
}

// --- Evidence Mocks ---

type mockSearcher struct {
	mock.Mock
}

func (m *mockSearcher) Search(ctx context.Context, query string, limit int) []SearchHit {
	args := m.Called(ctx, query, limit)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]SearchHit)
}

type mockSiteSearcher struct {
	mockSearcher
}

func (m *mockSiteSearcher) SearchSite(ctx context.Context, domain, query string, limit int) []SearchHit {
	args := m.Called(ctx, domain, query, limit)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]SearchHit)
}

type mockPageReader struct {
	mock.Mock
}

func (m *mockPageReader) ReadPage(ctx context.Context, url string) (string, string) {
	args := m.Called(ctx, url)
	return args.String(0), args.String(1)
}

type mockProber struct {
	mock.Mock
}

func (m *mockProber) Probe(ctx context.Context, domain string) (*ProbeResult, error) {
	args := m.Called(ctx, domain)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ProbeResult), args.Error(1)
}

// --- Stage Mocks ---

type mockIdentityStage struct {
	mock.Mock
}

func (m *mockIdentityStage) Resolve(ctx context.Context, clues model.CompanyClues) (model.CompanyIdentity, error) {
	args := m.Called(ctx, clues)
	return args.Get(0).(model.CompanyIdentity), args.Error(1)
}

type mockFundingStage struct {
	mock.Mock
}

func (m *mockFundingStage) Research(ctx context.Context, identity model.CompanyIdentity, clues model.CompanyClues) (model.FundingIntelligence, error) {
	args := m.Called(ctx, identity, clues)
	return args.Get(0).(model.FundingIntelligence), args.Error(1)
}

type mockProfileStage struct {
	mock.Mock
}

func (m *mockProfileStage) Build(ctx context.Context, identity model.CompanyIdentity, clues model.CompanyClues) (model.CompanyProfileIntel, error) {
	args := m.Called(ctx, identity, clues)
	return args.Get(0).(model.CompanyProfileIntel), args.Error(1)
}

type mockNewsCollector struct {
	mock.Mock
}

func (m *mockNewsCollector) Collect(ctx context.Context, q NewsQuery) (model.NewsBundle, error) {
	args := m.Called(ctx, q)
	return args.Get(0).(model.NewsBundle), args.Error(1)
}

type mockSynthesisStage struct {
	mock.Mock
}

func (m *mockSynthesisStage) Synthesize(ctx context.Context, in SynthesisInput) (*model.Dossier, error) {
	args := m.Called(ctx, in)
	if fn, ok := args.Get(0).(func(context.Context, SynthesisInput) *model.Dossier); ok {
		return fn(ctx, in), args.Error(1)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Dossier), args.Error(1)
}

// --- Strategy and Publisher Mocks ---

type mockStrategy struct {
	mock.Mock
	name string
}

func (m *mockStrategy) Name() string { return m.name }

func (m *mockStrategy) Produce(ctx context.Context, run *Run) (*model.Dossier, error) {
	args := m.Called(ctx, run)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Dossier), args.Error(1)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, rec *model.RunRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}
