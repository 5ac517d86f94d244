package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/dossier-cli/internal/config"
	"github.com/sells-group/dossier-cli/internal/model"
)

const profileSystem = `You are compiling an internal profile of a venture-backed startup. Treat roster
context as hints, not truth. Every fact you list must cite the URL it came from; leave source empty only
when you are inferring. Respond with JSON only.`

const profilePrompt = `INPUT DATA:
%s

WEBSITE CONTENT:
%s

SEARCH EVIDENCE:
%s

TASK:
Fill in the company's products, target customers, value proposition, business model, go-to-market
motion, headcount range, headquarters, differentiation and notable customers.
- Prefer official sources (company site, press releases) or credible press.
- Every field except open_questions is a fact {"text": ..., "source": "<url>"}, single-valued fields
  included; use an empty source for anything you could not confirm.
- If you cannot determine a field, leave it empty and add an open question.
- Stealth companies may have minimal data; focus on what can be verified.

Return ONLY a JSON object matching this schema:
%s`

const unconfirmedPrefix = "Unconfirmed (no citation): "

// profileFactCap bounds confidence for a profile with no sourced facts.
const profileFactCap = 0.3

// siteResultsPerProfile bounds the search restricted to the company's own domain.
const siteResultsPerProfile = 4

// factAnswer accepts a fact as an object or as a bare string.
type factAnswer struct {
	Text   string `json:"text"`
	Source string `json:"source,omitempty" jsonschema:"description=URL supporting the fact; empty if inferred"`
}

func (f *factAnswer) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &f.Text)
	}
	type plain factAnswer
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return eris.Wrap(err, "pipeline: decode fact")
	}
	*f = factAnswer(p)
	return nil
}

// JSONSchema describes a fact as an object with text and source.
func (factAnswer) JSONSchema() *jsonschema.Schema {
	props := jsonschema.NewProperties()
	props.Set("text", &jsonschema.Schema{Type: "string"})
	props.Set("source", &jsonschema.Schema{Type: "string", Description: "URL supporting the fact; empty if inferred"})
	return &jsonschema.Schema{
		Type:       "object",
		Properties: props,
		Required:   []string{"text"},
	}
}

// profileAnswer is the structured profile response.
type profileAnswer struct {
	Products         []factAnswer `json:"products"`
	TargetCustomers  []factAnswer `json:"target_customers"`
	ValueProposition factAnswer   `json:"value_proposition,omitempty"`
	BusinessModel    factAnswer   `json:"business_model,omitempty"`
	GTMMotion        factAnswer   `json:"go_to_market,omitempty"`
	HeadcountRange   factAnswer   `json:"headcount_range,omitempty" jsonschema:"description=e.g. 11-50"`
	Headquarters     factAnswer   `json:"headquarters,omitempty"`
	Differentiation  []factAnswer `json:"differentiation,omitempty"`
	NotableCustomers []factAnswer `json:"notable_customers,omitempty"`
	OpenQuestions    []string     `json:"open_questions,omitempty"`
	Confidence       *float64     `json:"confidence" jsonschema:"minimum=0,maximum=1"`
	Reasoning        string       `json:"reasoning"`
	Sources          []string     `json:"sources"`
}

var profileSchema = schemaOf(&profileAnswer{})

func (a *profileAnswer) validate() error {
	if err := requireConfidence(a.Confidence, "confidence"); err != nil {
		return err
	}
	if strings.TrimSpace(a.Reasoning) == "" {
		return eris.New("pipeline: missing required field reasoning")
	}
	return nil
}

// ProfileBuilder derives product, customer and go-to-market facts.
type ProfileBuilder struct {
	reasoner Reasoner
	model    config.StageModel
	reader   PageReader
	search   Searcher
}

// NewProfileBuilder creates a profile stage. reader and search may be nil.
func NewProfileBuilder(r Reasoner, m config.StageModel, reader PageReader, search Searcher) *ProfileBuilder {
	return &ProfileBuilder{reasoner: r, model: m, reader: reader, search: search}
}

type websiteEvidence struct {
	URL     string `json:"url,omitempty"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content,omitempty"`
}

// Build returns the company profile. Facts without a citation are kept but
// flagged as inferred and listed as open questions.
func (s *ProfileBuilder) Build(ctx context.Context, identity model.CompanyIdentity, clues model.CompanyClues) (model.CompanyProfileIntel, error) {
	site, hits := s.gather(ctx, identity, clues)
	if err := ctx.Err(); err != nil {
		return model.CompanyProfileIntel{}, err
	}

	prompt := fmt.Sprintf(profilePrompt,
		promptJSON(profileInput(identity, clues)),
		promptJSON(site),
		promptJSON(hits),
		profileSchema,
	)
	resp, err := reason(ctx, s.reasoner, ReasonRequest{
		Stage:       StageProfile,
		Model:       s.model.Model,
		System:      profileSystem,
		Prompt:      prompt,
		Schema:      profileSchema,
		MaxTokens:   s.model.MaxTokens,
		Temperature: floatPtr(0.25),
	})
	if err != nil {
		return model.CompanyProfileIntel{}, err
	}

	ans, err := decodeAnswer[profileAnswer](resp.Text)
	if err != nil {
		return model.CompanyProfileIntel{}, eris.Wrap(err, "pipeline: profile answer")
	}

	p := finalizeProfile(ans, resp.Citations)
	if site.Content != "" {
		p.Sources = dedupeStrings(append(p.Sources, site.URL))
	}
	zap.L().Info("pipeline: profile built",
		zap.String("callsign", clues.Callsign),
		zap.Int("products", len(p.Products)),
		zap.Int("sourced_facts", p.SourcedFactCount()),
		zap.Float64("confidence", p.Confidence),
	)
	return p, nil
}

func profileInput(id model.CompanyIdentity, c model.CompanyClues) map[string]any {
	return map[string]any{
		"callsign":            c.Callsign,
		"dba":                 c.DisplayName(),
		"beneficial_owners":   c.Owners,
		"tags":                c.Tags,
		"current_domain":      id.CurrentDomain,
		"current_website":     id.Website,
		"identity_status":     id.Status,
		"identity_confidence": id.Confidence,
		"identity_reasoning":  id.Reasoning,
	}
}

func (s *ProfileBuilder) gather(ctx context.Context, id model.CompanyIdentity, c model.CompanyClues) (websiteEvidence, []SearchHit) {
	var site websiteEvidence
	if s.reader != nil && id.Website != "" {
		site.URL = id.Website
		site.Title, site.Content = s.reader.ReadPage(ctx, id.Website)
	}
	var hits []SearchHit
	if s.search != nil && c.DisplayName() != "" {
		query := fmt.Sprintf("%q product customers", c.DisplayName())
		if id.HasDomain() {
			query += " " + id.CurrentDomain
		}
		hits = s.search.Search(ctx, query, 6)
	}
	if ss, ok := s.search.(SiteSearcher); ok && id.HasDomain() {
		hits = append(hits, ss.SearchSite(ctx, id.CurrentDomain, "customers pricing about", siteResultsPerProfile)...)
	}
	return site, dedupeHits(hits)
}

// finalizeProfile converts answer facts, marks unsourced ones as inferred
// and bounds confidence by the amount of cited evidence.
func finalizeProfile(ans *profileAnswer, citations []string) model.CompanyProfileIntel {
	var questions []string
	convert := func(in []factAnswer) []model.Fact {
		out := make([]model.Fact, 0, len(in))
		for _, fa := range in {
			text := strings.TrimSpace(fa.Text)
			if text == "" {
				continue
			}
			f := model.Fact{Text: text, Source: strings.TrimSpace(fa.Source)}
			if f.Source == "" {
				f.Inferred = true
				questions = append(questions, unconfirmedPrefix+text)
			}
			out = append(out, f)
		}
		return out
	}

	single := func(label string, fa factAnswer) *model.Fact {
		text := strings.TrimSpace(fa.Text)
		if text == "" {
			return nil
		}
		f := &model.Fact{Text: text, Source: strings.TrimSpace(fa.Source)}
		if f.Source == "" {
			f.Inferred = true
			questions = append(questions, unconfirmedPrefix+label+": "+text)
		}
		return f
	}

	p := model.CompanyProfileIntel{
		Products:         convert(ans.Products),
		TargetCustomers:  convert(ans.TargetCustomers),
		ValueProposition: single("Value proposition", ans.ValueProposition),
		GTMMotion:        single("Go-to-market", ans.GTMMotion),
		BusinessModel:    single("Business model", ans.BusinessModel),
		HeadcountRange:   single("Headcount", ans.HeadcountRange),
		Headquarters:     single("Headquarters", ans.Headquarters),
		Differentiation:  convert(ans.Differentiation),
		NotableCustomers: convert(ans.NotableCustomers),
		Reasoning:        strings.TrimSpace(ans.Reasoning),
	}
	p.OpenQuestions = dedupeStrings(append(trimAll(ans.OpenQuestions), questions...))

	sources := append(trimAll(ans.Sources), trimAll(citations)...)
	for _, f := range p.AllFacts() {
		sources = append(sources, f.Source)
	}
	p.Sources = dedupeStrings(sources)

	p.Confidence = clamp(*ans.Confidence, 0, 1)
	if p.SourcedFactCount() == 0 {
		p.Confidence = clamp(p.Confidence, 0, profileFactCap)
	}
	p.Confidence = round2(p.Confidence)
	return p
}
