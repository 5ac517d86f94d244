package pipeline

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dossier-cli/internal/model"
)

func fullInput() SynthesisInput {
	id := identityAt(0.9, model.IdentityRedirected)
	id.RedirectFrom = "aalo.com"
	amount := 6.3e6
	announced := time.Date(2023, 4, 12, 0, 0, 0, 0, time.UTC)
	published := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	return SynthesisInput{
		Clues:    aaloClues(),
		Identity: &id,
		Funding: model.Completed(model.FundingIntelligence{
			Finding: model.FundingAnnounced,
			Stage:   "Seed",
			LatestRound: &model.FundingRound{
				AmountUSD:    &amount,
				RoundType:    "Seed",
				AnnouncedOn:  &announced,
				LeadInvestor: "Fifty Years",
			},
			Confidence: 0.8,
			Reasoning:  "Press release.",
		}, 1),
		Profile: model.Completed(model.CompanyProfileIntel{
			Products:        []model.Fact{{Text: "Aalo-X microreactor", Source: "https://aaloatomics.ai"}},
			TargetCustomers: []model.Fact{{Text: "Data centers", Inferred: true}},
			Confidence:      0.7,
		}, 1),
		News: model.Completed(model.NewsBundle{
			Items: []model.NewsItem{{Title: "Aalo breaks ground", URL: "https://reuters.com/aalo", Source: "reuters.com", PublishedAt: &published}},
		}, 1),
	}
}

func TestComposeDossier_EmptyInputStillHasEverySection(t *testing.T) {
	d := ComposeDossier(SynthesisInput{Clues: aaloClues()}, nil)

	assert.Equal(t, model.SectionOrder, d.SectionTitles())
	assert.True(t, HasAllSections(d.Markdown))
	assert.Equal(t, model.SectionOrder, MarkdownHeadings(d.Markdown))
	assert.Zero(t, d.AggregateConfidence)
	for _, title := range []string{model.SectionIdentity, model.SectionOverview, model.SectionFunding, model.SectionActivity} {
		s, ok := d.Section(title)
		require.True(t, ok, title)
		assert.True(t, s.Absent, title)
		assert.NotEmpty(t, s.Body, title)
	}
	identity, _ := d.Section(model.SectionIdentity)
	assert.Contains(t, identity.Body, "aalo.com, which could not be verified")
	assert.GreaterOrEqual(t, len(d.Improvements), minImprovements)
	assert.LessOrEqual(t, len(d.Improvements), maxImprovements)
	assert.Contains(t, d.Gaps, "company identity unresolved")
}

func TestComposeDossier_ZeroConfidenceEverywhere(t *testing.T) {
	id := model.CompanyIdentity{Status: model.IdentityUnknown}
	d := ComposeDossier(SynthesisInput{
		Clues:    aaloClues(),
		Identity: &id,
		Funding:  model.Completed(model.FundingIntelligence{Finding: model.FundingNotFound, Stage: model.StageNoPublicInfo}, 1),
		Profile:  model.Completed(model.CompanyProfileIntel{}, 1),
		News:     model.Completed(model.NewsBundle{}, 1),
	}, &Narrative{Identity: "Nothing found. Really nothing. Truly."})

	assert.True(t, HasAllSections(d.Markdown))
	identity, _ := d.Section(model.SectionIdentity)
	assert.True(t, identity.Absent)
	assert.Contains(t, identity.Body, "Nothing found.")
	assert.NotContains(t, identity.Body, "Really nothing")
}

func TestComposeDossier_SkippedAndFailedAreWordedDifferently(t *testing.T) {
	in := SynthesisInput{
		Clues:   aaloClues(),
		Funding: model.Skipped[model.FundingIntelligence]("identity confidence 0.20 below 0.30"),
		Profile: model.Failed[model.CompanyProfileIntel](assert.AnError, 2),
		News:    model.Skipped[model.NewsBundle]("identity confidence 0.20 below 0.60"),
	}
	d := ComposeDossier(in, nil)

	funding, _ := d.Section(model.SectionFunding)
	assert.Contains(t, funding.Body, "Funding research was skipped: identity confidence 0.20 below 0.30.")
	overview, _ := d.Section(model.SectionOverview)
	assert.Contains(t, overview.Body, "Profile research could not be completed.")
	activity, _ := d.Section(model.SectionActivity)
	assert.Contains(t, activity.Body, "News collection was skipped")

	assert.Contains(t, d.Gaps, "funding research skipped")
	assert.Contains(t, d.Gaps, "profile research failed")
}

func TestComposeDossier_NarrativeIgnoredForAbsentSections(t *testing.T) {
	in := fullInput()
	in.Profile = model.Skipped[model.CompanyProfileIntel]("test")
	in.Funding = model.Failed[model.FundingIntelligence](assert.AnError, 2)

	d := ComposeDossier(in, &Narrative{
		Overview: "Aalo sells factory-built reactors to hyperscalers.",
		Funding:  "Aalo raised a huge Series C.",
	})
	overview, _ := d.Section(model.SectionOverview)
	assert.NotContains(t, overview.Body, "hyperscalers")
	funding, _ := d.Section(model.SectionFunding)
	assert.NotContains(t, funding.Body, "Series C")
	assert.Zero(t, overview.Confidence)
}

func TestComposeDossier_NarrativeHeadingsAreStripped(t *testing.T) {
	d := ComposeDossier(fullInput(), &Narrative{
		Identity:    "## Injected Heading\nAalo Atomics now operates as aaloatomics.ai.",
		QualityNote: "# Another\nReliable.",
	})
	assert.Equal(t, model.SectionOrder, MarkdownHeadings(d.Markdown))
	assert.Contains(t, d.Markdown, "Aalo Atomics now operates as aaloatomics.ai.")
}

func TestComposeDossier_FullInput(t *testing.T) {
	d := ComposeDossier(fullInput(), &Narrative{Improvements: []string{"1. Call the CEO", "call the CEO."}})

	assert.InDelta(t, 0.4*0.9+0.3*0.8+0.3*0.7, d.AggregateConfidence, 1e-9)

	identity, _ := d.Section(model.SectionIdentity)
	assert.False(t, identity.Absent)
	assert.Contains(t, identity.Body, "**Domain:** aaloatomics.ai")
	assert.Contains(t, identity.Body, "**Redirected from:** aalo.com")

	funding, _ := d.Section(model.SectionFunding)
	assert.Contains(t, funding.Body, "**Amount:** $6.3M")
	assert.Contains(t, funding.Body, "**Announced:** 2023-04-12")
	assert.Contains(t, funding.Body, "**Lead investor:** Fifty Years")

	overview, _ := d.Section(model.SectionOverview)
	assert.Contains(t, overview.Body, "Data centers (unconfirmed)")
	assert.Contains(t, overview.Body, "Unable to confirm business model")
	assert.Contains(t, overview.Body, "**Team:** Matt Loszak")

	activity, _ := d.Section(model.SectionActivity)
	assert.Contains(t, activity.Body, "[Aalo breaks ground](https://reuters.com/aalo) (reuters.com, 2025-12-01)")

	assert.Contains(t, d.Improvements, "Call the CEO")
	assert.NotContains(t, d.Improvements, "call the CEO.")
	assert.Empty(t, d.Gaps)
	assert.Len(t, d.Improvements, minImprovements)
}

func TestComposeDossier_FieldValuesCannotAddHeadings(t *testing.T) {
	in := fullInput()
	p := in.Profile.Get()
	p.ValueProposition = &model.Fact{Text: "Cheap power\n## Fake Section\nforever", Source: "https://aaloatomics.ai"}
	d := ComposeDossier(in, nil)
	assert.Equal(t, model.SectionOrder, MarkdownHeadings(d.Markdown))
}

func TestComposeDossier_SingleValuedProfileFieldsShowConfirmation(t *testing.T) {
	in := fullInput()
	p := in.Profile.Get()
	p.ValueProposition = &model.Fact{Text: "Cheapest nuclear power on earth", Inferred: true}
	p.Headquarters = &model.Fact{Text: "Austin, TX", Inferred: true}
	p.BusinessModel = &model.Fact{Text: "Hardware sales", Source: "https://aaloatomics.ai/about"}

	d := ComposeDossier(in, nil)
	overview, _ := d.Section(model.SectionOverview)
	assert.Contains(t, overview.Body, "**Value proposition:** Cheapest nuclear power on earth (unconfirmed)")
	assert.Contains(t, overview.Body, "**Headquarters:** Austin, TX (unconfirmed)")
	assert.Contains(t, overview.Body, "**Business model:** Hardware sales")
	assert.NotContains(t, overview.Body, "Hardware sales (unconfirmed)")
	assert.NotContains(t, overview.Body, "Unable to confirm business model")
}

func TestBudgetSentences(t *testing.T) {
	prose := "Aalo raised $6.3M in 2023. It builds reactors. It hired staff. It broke ground!"
	assert.Equal(t, prose, budgetSentences(prose, 0.9))
	assert.Equal(t, "Aalo raised $6.3M in 2023. It builds reactors. It hired staff.", budgetSentences(prose, 0.45))
	assert.Equal(t, "Aalo raised $6.3M in 2023.", budgetSentences(prose, 0.1))
	assert.Equal(t, "", budgetSentences("## Only a heading", 0.9))
	assert.Equal(t, "No terminal punctuation", budgetSentences("No terminal punctuation", 0.1))
}

func TestImprovementActions(t *testing.T) {
	assert.Equal(t, defaultActions, improvementActions(nil, nil))

	all := make([]string, 0, len(gapActions))
	for g := range gapActions {
		all = append(all, g)
	}
	assert.Len(t, improvementActions(all, []string{"extra"}), maxImprovements)

	got := improvementActions([]string{"no recent public activity"}, []string{"- Interview the CTO"})
	assert.Equal(t, []string{"Check the company blog and press page monthly for updates", "Interview the CTO"}, got)
}

func TestMarkdownHeadings(t *testing.T) {
	md := "# Title\n\n## First\n\nbody\n\n### Nested\n\n## Second **bold**\n"
	assert.Equal(t, []string{"First", "Second bold"}, MarkdownHeadings(md))

	missing := strings.Replace(ComposeDossier(fullInput(), nil).Markdown, "## Funding", "## Money", 1)
	assert.False(t, HasAllSections(missing))
}

func TestFormatUSD(t *testing.T) {
	v := func(f float64) *float64 { return &f }
	assert.Equal(t, "", formatUSD(nil))
	assert.Equal(t, "$2.3B", formatUSD(v(2.3e9)))
	assert.Equal(t, "$12.5M", formatUSD(v(12.5e6)))
	assert.Equal(t, "$750K", formatUSD(v(750e3)))
	assert.Equal(t, "$500", formatUSD(v(500)))
}
