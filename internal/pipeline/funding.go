package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/dossier-cli/internal/config"
	"github.com/sells-group/dossier-cli/internal/model"
)

const fundingSystem = `You are a venture capital analyst researching funding for a portfolio company.
Only report funding you found actual evidence for. If you are unsure about an amount, leave it null.
Respond with JSON only.`

const fundingPrompt = `COMPANY IDENTITY:
%s

SEARCH EVIDENCE:
%s

EXTRACTED HINTS (regular expressions over the evidence, may be wrong):
%s

TASK:
1. Find the most recent funding round: search "%s" + "raises" OR "funding" OR "seed" OR "series",
   the company's press page, founder announcements and press wires.
2. Extract amount (USD), round type, announcement date (YYYY-MM-DD), lead and participating
   investors, and total funding to date if mentioned.
3. Set finding to:
   - "announced" when a round was publicly reported
   - "bootstrapped" when there is evidence the company is self-funded
   - "not_found" when you could not find public funding information
4. Do not confuse total funding with the latest round amount.

CONFIDENCE GUIDANCE:
- 0.9-1.0: official press release or company announcement with full details
- 0.7-0.8: multiple credible sources confirm the round
- 0.5-0.6: some evidence but details incomplete or single source
- 0.3-0.4: indirect evidence such as founder mentions
- 0.0-0.2: no reliable information found

Return ONLY a JSON object matching this schema:
%s`

// fundingRoundAnswer is the latest round inside a funding answer.
type fundingRoundAnswer struct {
	AmountUSD     flexAmount `json:"amount_usd"`
	RoundType     string     `json:"round_type,omitempty"`
	AnnouncedDate string     `json:"announced_date,omitempty" jsonschema:"description=YYYY-MM-DD"`
	LeadInvestors []string   `json:"lead_investors,omitempty"`
	Participants  []string   `json:"participants,omitempty"`
	SourceURL     string     `json:"source_url,omitempty"`
}

// fundingAnswer is the structured funding response.
type fundingAnswer struct {
	Finding         string              `json:"finding" jsonschema:"enum=announced,enum=bootstrapped,enum=not_found"`
	Stage           string              `json:"funding_stage" jsonschema:"description=Pre-seed|Seed|Series A|Series B|Series C|Series D+|Bootstrapped|Unknown"`
	LatestRound     *fundingRoundAnswer `json:"latest_round,omitempty"`
	TotalFundingUSD flexAmount          `json:"total_funding_usd"`
	Confidence      *float64            `json:"confidence" jsonschema:"minimum=0,maximum=1"`
	Reasoning       string              `json:"reasoning"`
	Sources         []string            `json:"sources"`
}

var fundingSchema = schemaOf(&fundingAnswer{})

var fundingFindingAliases = map[string]model.FundingFinding{
	"found":          model.FundingAnnounced,
	"funded":         model.FundingAnnounced,
	"self-funded":    model.FundingBootstrapped,
	"self_funded":    model.FundingBootstrapped,
	"none":           model.FundingNotFound,
	"unknown":        model.FundingNotFound,
	"not found":      model.FundingNotFound,
	"no_public_info": model.FundingNotFound,
}

func (a *fundingAnswer) validate() error {
	a.Finding = strings.ToLower(strings.TrimSpace(a.Finding))
	if alias, ok := fundingFindingAliases[a.Finding]; ok {
		a.Finding = string(alias)
	}
	switch model.FundingFinding(a.Finding) {
	case model.FundingAnnounced, model.FundingBootstrapped, model.FundingNotFound:
	default:
		return eris.Errorf("pipeline: funding finding %q is not valid", a.Finding)
	}
	if err := requireConfidence(a.Confidence, "confidence"); err != nil {
		return err
	}
	if strings.TrimSpace(a.Reasoning) == "" {
		return eris.New("pipeline: missing required field reasoning")
	}
	return nil
}

// Funding confidence bands per finding.
var (
	fundingFoundBand        = band{0.40, 1.00}
	fundingBootstrappedBand = band{0.30, 0.80}
	fundingNotFoundBand     = band{0.05, 0.20}
)

// FundingResearcher researches a company's funding history.
type FundingResearcher struct {
	reasoner Reasoner
	model    config.StageModel
	search   Searcher
}

// NewFundingResearcher creates a funding stage. search may be nil.
func NewFundingResearcher(r Reasoner, m config.StageModel, search Searcher) *FundingResearcher {
	return &FundingResearcher{reasoner: r, model: m, search: search}
}

// Research returns funding intelligence. Finding nothing is a valid
// low-confidence result with Finding set to not_found.
func (s *FundingResearcher) Research(ctx context.Context, identity model.CompanyIdentity, clues model.CompanyClues) (model.FundingIntelligence, error) {
	hits := s.gather(ctx, identity, clues)
	if err := ctx.Err(); err != nil {
		return model.FundingIntelligence{}, err
	}
	hint := fundingHintFromHits(hits)

	prompt := fmt.Sprintf(fundingPrompt,
		promptJSON(fundingInput(identity, clues)),
		promptJSON(hits),
		promptJSON(hint),
		clues.DisplayName(),
		fundingSchema,
	)
	resp, err := reason(ctx, s.reasoner, ReasonRequest{
		Stage:       StageFunding,
		Model:       s.model.Model,
		System:      fundingSystem,
		Prompt:      prompt,
		Schema:      fundingSchema,
		MaxTokens:   s.model.MaxTokens,
		Temperature: floatPtr(0.2),
	})
	if err != nil {
		return model.FundingIntelligence{}, err
	}

	ans, err := decodeAnswer[fundingAnswer](resp.Text)
	if err != nil {
		return model.FundingIntelligence{}, eris.Wrap(err, "pipeline: funding answer")
	}

	f := finalizeFunding(ans, hint, resp.Citations)
	zap.L().Info("pipeline: funding researched",
		zap.String("callsign", clues.Callsign),
		zap.String("finding", string(f.Finding)),
		zap.String("funding_stage", f.Stage),
		zap.Float64("confidence", f.Confidence),
	)
	return f, nil
}

func fundingInput(id model.CompanyIdentity, c model.CompanyClues) map[string]any {
	return map[string]any{
		"dba":                 c.DisplayName(),
		"beneficial_owners":   c.Owners,
		"current_domain":      id.CurrentDomain,
		"current_website":     id.Website,
		"company_linkedin":    id.CompanyLinkedIn,
		"identity_status":     id.Status,
		"identity_confidence": id.Confidence,
	}
}

func (s *FundingResearcher) gather(ctx context.Context, id model.CompanyIdentity, c model.CompanyClues) []SearchHit {
	if s.search == nil || c.DisplayName() == "" {
		return nil
	}
	query := fmt.Sprintf("%q raises OR funding OR seed OR series", c.DisplayName())
	hits := s.search.Search(ctx, query, 8)
	if id.HasDomain() && len(hits) < 3 {
		hits = append(hits, s.search.Search(ctx, fmt.Sprintf("%s funding round", id.CurrentDomain), 5)...)
	}
	return dedupeHits(hits)
}

func fundingHintFromHits(hits []SearchHit) FundingHint {
	hints := make([]FundingHint, 0, len(hits))
	for _, h := range hits {
		hint := ExtractFundingHint(h.Title + ". " + h.Snippet)
		hint.SourceURL = h.URL
		hints = append(hints, hint)
	}
	return MergeFundingHints(hints...)
}

// finalizeFunding normalizes the answer and clamps confidence into the band
// of its finding, so an absent result always stays below the found band.
func finalizeFunding(ans *fundingAnswer, hint FundingHint, citations []string) model.FundingIntelligence {
	f := model.FundingIntelligence{
		Finding:         model.FundingFinding(ans.Finding),
		Stage:           strings.TrimSpace(ans.Stage),
		TotalFundingUSD: ans.TotalFundingUSD.Value,
		Confidence:      *ans.Confidence,
		Reasoning:       strings.TrimSpace(ans.Reasoning),
		Sources:         dedupeStrings(append(trimAll(ans.Sources), trimAll(citations)...)),
	}
	if ans.LatestRound != nil {
		f.LatestRound = roundFromAnswer(ans.LatestRound)
	}

	// An announced finding with no round details borrows what the evidence
	// regexes pulled out.
	if f.Finding == model.FundingAnnounced && f.LatestRound == nil {
		f.LatestRound = roundFromHint(hint)
	}
	if f.Finding == model.FundingAnnounced && f.LatestRound == nil && f.TotalFundingUSD == nil && f.Stage == "" {
		f.Finding = model.FundingNotFound
	}

	switch f.Finding {
	case model.FundingAnnounced:
		if f.Stage == "" || strings.EqualFold(f.Stage, model.StageUnknown) {
			if f.LatestRound != nil && f.LatestRound.RoundType != "" {
				f.Stage = f.LatestRound.RoundType
			} else {
				f.Stage = model.StageUnknown
			}
		}
		if f.LatestRound != nil && f.LatestRound.SourceURL != "" {
			f.Sources = dedupeStrings(append(f.Sources, f.LatestRound.SourceURL))
		}
	case model.FundingBootstrapped:
		f.Stage = model.StageBootstrapped
		f.LatestRound = nil
	default:
		f.Finding = model.FundingNotFound
		f.Stage = model.StageNoPublicInfo
		f.LatestRound = nil
		f.TotalFundingUSD = nil
	}
	f.Confidence = round2(fundingConfidence(f.Finding, f.Confidence))
	return f
}

// fundingConfidence caps conf at the top of the finding's band. Not found is
// the only finding held to its floor, so it never reads as zero.
func fundingConfidence(finding model.FundingFinding, conf float64) float64 {
	switch finding {
	case model.FundingAnnounced:
		return clamp(conf, 0, fundingFoundBand.hi)
	case model.FundingBootstrapped:
		return clamp(conf, 0, fundingBootstrappedBand.hi)
	default:
		return clamp(conf, fundingNotFoundBand.lo, fundingNotFoundBand.hi)
	}
}

func roundFromAnswer(r *fundingRoundAnswer) *model.FundingRound {
	round := &model.FundingRound{
		AmountUSD: r.AmountUSD.Value,
		RoundType: normalizeRoundType(r.RoundType),
		Investors: dedupeStrings(append(trimAll(r.LeadInvestors), trimAll(r.Participants)...)),
		SourceURL: strings.TrimSpace(r.SourceURL),
	}
	if len(r.LeadInvestors) > 0 {
		round.LeadInvestor = strings.TrimSpace(r.LeadInvestors[0])
	}
	if t, ok := parseAnnounced(r.AnnouncedDate); ok {
		round.AnnouncedOn = &t
	}
	if round.AmountUSD == nil && round.RoundType == "" && round.AnnouncedOn == nil && len(round.Investors) == 0 {
		return nil
	}
	return round
}

// parseAnnounced accepts full dates, year-month and bare years.
func parseAnnounced(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02", "2006-01", "2006", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func dedupeHits(hits []SearchHit) []SearchHit {
	seen := make(map[string]bool, len(hits))
	out := make([]SearchHit, 0, len(hits))
	for _, h := range hits {
		key := strings.TrimSuffix(strings.ToLower(h.URL), "/")
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, h)
	}
	return out
}
