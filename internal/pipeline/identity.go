package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/dossier-cli/internal/config"
	"github.com/sells-group/dossier-cli/internal/model"
)

const identitySystem = `You are a company intelligence analyst. You determine a portfolio company's
current online identity from the evidence you are given and from web search. Never invent a domain:
an honest low-confidence answer is better than a wrong one. Respond with JSON only.`

const identityPrompt = `COMPANY PROFILE:
%s

DETERMINISTIC EVIDENCE:
%s

TASK:
1. If a CSV domain is given, decide whether it is live and belongs to this company. If it redirects,
   the redirect target is the current domain and the status is "redirected".
2. If the domain is missing, unreachable or unrelated, search by company name plus founder names,
   then via the social profiles (LinkedIn, X/Twitter handle, Crunchbase page), for the company's real site.
3. If no site exists but founder profiles show an operating, unlaunched company, answer "stealth"
   with the founder profile URLs and no domain.
4. Set evidence_path to the strongest evidence you used:
   verified_domain | redirect | alternate_name | name_search | social_profile | founder_profiles | none

CONFIDENCE GUIDANCE:
- 0.9-1.0: domain verified, matches the company name, active site with relevant content
- 0.7-0.85: domain found via redirect or an alternate name match
- 0.3-0.6: social profiles only, or weak signals
- 0.0-0.2: nothing found or conflicting information

Return ONLY a JSON object matching this schema:
%s`

// identityAnswer is the structured identity response.
type identityAnswer struct {
	CurrentDomain   string   `json:"current_domain,omitempty" jsonschema:"description=Bare current domain or empty if none"`
	Website         string   `json:"website,omitempty" jsonschema:"description=Full URL with https://"`
	Status          string   `json:"status" jsonschema:"enum=active,enum=redirected,enum=inactive,enum=stealth,enum=unknown"`
	Confidence      *float64 `json:"confidence" jsonschema:"minimum=0,maximum=1"`
	EvidencePath    string   `json:"evidence_path" jsonschema:"enum=verified_domain,enum=redirect,enum=alternate_name,enum=name_search,enum=social_profile,enum=founder_profiles,enum=none"`
	RedirectFrom    string   `json:"redirect_from,omitempty"`
	CompanyLinkedIn string   `json:"company_linkedin,omitempty"`
	FounderProfiles []string `json:"founder_profiles,omitempty"`
	Reasoning       string   `json:"reasoning"`
	Sources         []string `json:"sources"`
}

var identitySchema = schemaOf(&identityAnswer{})

// identityStatusAliases maps the wording models tend to use onto statuses.
var identityStatusAliases = map[string]model.IdentityStatus{
	"redirect": model.IdentityRedirected,
	"defunct":  model.IdentityInactive,
	"parked":   model.IdentityInactive,
	"error":    model.IdentityUnknown,
}

func (a *identityAnswer) validate() error {
	a.Status = strings.ToLower(strings.TrimSpace(a.Status))
	if alias, ok := identityStatusAliases[a.Status]; ok {
		a.Status = string(alias)
	}
	if !model.IdentityStatus(a.Status).Valid() {
		return eris.Errorf("pipeline: identity status %q is not valid", a.Status)
	}
	if err := requireConfidence(a.Confidence, "confidence"); err != nil {
		return err
	}
	a.EvidencePath = strings.ToLower(strings.TrimSpace(a.EvidencePath))
	if a.EvidencePath == "" {
		a.EvidencePath = string(model.EvidenceNone)
	}
	if !model.EvidencePath(a.EvidencePath).Valid() {
		return eris.Errorf("pipeline: identity evidence_path %q is not valid", a.EvidencePath)
	}
	if strings.TrimSpace(a.Reasoning) == "" {
		return eris.New("pipeline: missing required field reasoning")
	}
	return nil
}

// identityEvidence is the deterministic evidence gathered before reasoning.
type identityEvidence struct {
	CSVDomain        string       `json:"csv_domain,omitempty"`
	Probe            *ProbeResult `json:"csv_domain_probe,omitempty"`
	NameMatch        bool         `json:"csv_domain_matches_name"`
	NameSearch       []SearchHit  `json:"name_search,omitempty"`
	CandidateDomains []string     `json:"candidate_domains,omitempty"`
	FounderProfiles  []string     `json:"founder_profiles,omitempty"`
	SocialURL        string       `json:"social_url,omitempty"`
	SocialProfiles   []string     `json:"social_profiles,omitempty"`

	answerProbe     *ProbeResult
	answerNameMatch bool
}

// band is the confidence range an evidence path may claim.
type band struct{ lo, hi float64 }

var evidenceBands = map[model.EvidencePath]band{
	model.EvidenceVerifiedDomain:  {0.90, 1.00},
	model.EvidenceRedirect:        {0.70, 0.85},
	model.EvidenceAlternateName:   {0.70, 0.85},
	model.EvidenceNameSearch:      {0.70, 0.85},
	model.EvidenceSocialProfile:   {0.30, 0.60},
	model.EvidenceFounderProfiles: {0.30, 0.60},
	model.EvidenceNone:            {0.00, 0.20},
}

var inactiveBand = band{0.30, 0.60}

// IdentityResolver resolves a company's current online identity.
type IdentityResolver struct {
	reasoner Reasoner
	model    config.StageModel
	prober   DomainProber
	search   Searcher
}

// NewIdentityResolver creates an identity stage. prober and search may be
// nil, in which case that evidence is simply absent.
func NewIdentityResolver(r Reasoner, m config.StageModel, prober DomainProber, search Searcher) *IdentityResolver {
	return &IdentityResolver{reasoner: r, model: m, prober: prober, search: search}
}

// Resolve returns the company's identity. Not finding a domain is a valid
// zero-confidence result; only reasoning transport failures, malformed
// answers and cancellation are errors.
func (s *IdentityResolver) Resolve(ctx context.Context, clues model.CompanyClues) (model.CompanyIdentity, error) {
	ev, err := s.gather(ctx, clues)
	if err != nil {
		return model.CompanyIdentity{}, err
	}

	prompt := fmt.Sprintf(identityPrompt, promptJSON(identityInput(clues)), promptJSON(ev), identitySchema)
	resp, err := reason(ctx, s.reasoner, ReasonRequest{
		Stage:       StageIdentity,
		Model:       s.model.Model,
		System:      identitySystem,
		Prompt:      prompt,
		Schema:      identitySchema,
		MaxTokens:   s.model.MaxTokens,
		Temperature: floatPtr(0.1),
	})
	if err != nil {
		return model.CompanyIdentity{}, err
	}

	ans, err := decodeAnswer[identityAnswer](resp.Text)
	if err != nil {
		return model.CompanyIdentity{}, eris.Wrap(err, "pipeline: identity answer")
	}

	if ans.EvidencePath == string(model.EvidenceVerifiedDomain) {
		s.probeAnswerDomain(ctx, clues, &ev, ans.CurrentDomain)
	}
	id := finalizeIdentity(clues, ev, ans, resp.Citations)

	zap.L().Info("pipeline: identity resolved",
		zap.String("callsign", clues.Callsign),
		zap.String("status", string(id.Status)),
		zap.Float64("confidence", id.Confidence),
		zap.String("domain", id.CurrentDomain),
		zap.String("evidence_path", string(id.EvidencePath)),
	)
	return id, nil
}

func identityInput(c model.CompanyClues) map[string]any {
	return map[string]any{
		"callsign":          c.Callsign,
		"dba":               c.DBA,
		"alias_names":       c.AliasNames,
		"beneficial_owners": c.Owners,
		"csv_domain":        c.Domain,
		"csv_website":       c.Website,
		"social_url":        c.SocialURL,
		"twitter_handle":    c.TwitterHandle,
		"crunchbase_url":    c.CrunchbaseURL,
		"tags":              c.Tags,
	}
}

// gather collects deterministic evidence in the order the resolution
// algorithm prefers: the CSV domain, then a by-name search, then the
// social profiles.
func (s *IdentityResolver) gather(ctx context.Context, clues model.CompanyClues) (identityEvidence, error) {
	ev := identityEvidence{SocialURL: clues.SocialURL, SocialProfiles: clues.SocialProfiles()}

	ev.CSVDomain = clues.Domain
	if ev.CSVDomain == "" && clues.Website != "" {
		ev.CSVDomain = model.NormalizeDomain(clues.Website)
	}

	if ev.CSVDomain != "" && s.prober != nil {
		probe, err := s.prober.Probe(ctx, ev.CSVDomain)
		if err != nil {
			if ctx.Err() != nil {
				return ev, ctx.Err()
			}
			zap.L().Debug("pipeline: identity probe error", zap.String("domain", ev.CSVDomain), zap.Error(err))
		}
		ev.Probe = probe
		if probe != nil && probe.Reachable {
			names := clues.Names()
			ev.NameMatch = anyNameMatches(names, probe.Title) ||
				anyNameMatches(names, probe.FinalDomain) ||
				anyNameMatches(names, ev.CSVDomain)
		}
	}

	needSearch := ev.CSVDomain == "" || ev.Probe == nil || !ev.Probe.Reachable || !ev.NameMatch
	if needSearch && s.search != nil && clues.DisplayName() != "" {
		query := fmt.Sprintf("%q %s official site", clues.DisplayName(), strings.Join(clues.Owners, " "))
		ev.NameSearch = s.search.Search(ctx, strings.TrimSpace(query), 8)
		for _, hit := range ev.NameSearch {
			switch {
			case isFounderProfile(hit.URL):
				ev.FounderProfiles = append(ev.FounderProfiles, hit.URL)
			case isSocialHost(hit.URL):
			default:
				root := RegistrableDomain(hit.URL)
				if root != "" && (anyNameMatches(clues.Names(), hit.Title+" "+root) || handleMatches(clues.TwitterHandle, root)) {
					ev.CandidateDomains = append(ev.CandidateDomains, root)
				}
			}
		}
		ev.CandidateDomains = dedupeStrings(ev.CandidateDomains)
		ev.FounderProfiles = dedupeStrings(ev.FounderProfiles)
	}
	if err := ctx.Err(); err != nil {
		return ev, err
	}
	return ev, nil
}

// finalizeIdentity reconciles the model's answer with observed evidence and
// enforces the identity invariants.
func finalizeIdentity(clues model.CompanyClues, ev identityEvidence, ans *identityAnswer, citations []string) model.CompanyIdentity {
	id := model.CompanyIdentity{
		CurrentDomain:   model.NormalizeDomain(ans.CurrentDomain),
		Website:         strings.TrimSpace(ans.Website),
		Status:          model.IdentityStatus(ans.Status),
		Confidence:      *ans.Confidence,
		Reasoning:       strings.TrimSpace(ans.Reasoning),
		EvidencePath:    model.EvidencePath(ans.EvidencePath),
		RedirectFrom:    model.NormalizeDomain(ans.RedirectFrom),
		CompanyLinkedIn: strings.TrimSpace(ans.CompanyLinkedIn),
		FounderProfiles: dedupeStrings(append(ans.FounderProfiles, ev.FounderProfiles...)),
	}
	for _, u := range append(ans.Sources, citations...) {
		id.AddSource(strings.TrimSpace(u))
	}
	if id.CurrentDomain != "" && isSocialHost(id.CurrentDomain) {
		// A social profile is evidence, not the company's domain.
		id.AddSource(id.Website)
		id.CurrentDomain, id.Website = "", ""
	}
	if isFounderProfile(clues.SocialURL) {
		id.FounderProfiles = dedupeStrings(append(id.FounderProfiles, clues.SocialURL))
	} else if isCompanyProfile(clues.SocialURL) && id.CompanyLinkedIn == "" {
		id.CompanyLinkedIn = clues.SocialURL
	}

	// A redirect we observed ourselves beats whatever the model concluded.
	observed := false
	if p := ev.Probe; p.CrossDomain() && !isSocialHost(p.FinalDomain) {
		observed = true
		id.CurrentDomain = p.FinalDomain
		id.Website = p.FinalURL
		id.Status = model.IdentityRedirected
		id.RedirectFrom = ev.CSVDomain
		id.EvidencePath = model.EvidenceRedirect
		chain := append([]string{p.RequestedURL}, p.Chain...)
		id.Reasoning = strings.TrimSpace(fmt.Sprintf("%s Observed redirect chain: %s.", id.Reasoning, strings.Join(chain, " -> ")))
		id.AddSource(p.RequestedURL)
		id.AddSource(p.FinalURL)
	}

	if id.EvidencePath == model.EvidenceVerifiedDomain {
		if verifiedByProbe(ev, id) {
			observed = true
		} else {
			id.EvidencePath = model.EvidenceAlternateName
		}
	}

	reconcileIdentity(clues, &id)

	b := evidenceBands[id.EvidencePath]
	if id.Status == model.IdentityInactive && id.EvidencePath != model.EvidenceNone {
		b = inactiveBand
	}
	if id.Status == model.IdentityUnknown {
		b = evidenceBands[model.EvidenceNone]
	}
	// Bands cap what an evidence path may claim. Only a redirect or a domain we
	// observed ourselves lifts a weak answer to the bottom of its band.
	floor := 0.0
	if observed && id.EvidencePath != model.EvidenceNone && id.Status != model.IdentityUnknown {
		floor = b.lo
	}
	id.Confidence = round2(clamp(id.Confidence, floor, b.hi))

	if id.Confidence == 0 {
		id.Status = model.IdentityUnknown
	}
	return id
}

// verifiedByProbe reports whether our own probe confirmed the identity's
// domain as reachable and matching the company name.
func verifiedByProbe(ev identityEvidence, id model.CompanyIdentity) bool {
	if !id.HasDomain() {
		return false
	}
	root := RegistrableDomain(id.CurrentDomain)
	if p := ev.Probe; p != nil && p.Reachable && ev.NameMatch {
		if RegistrableDomain(p.FinalDomain) == root || RegistrableDomain(ev.CSVDomain) == root {
			return true
		}
	}
	if p := ev.answerProbe; p != nil && p.Reachable && ev.answerNameMatch {
		return RegistrableDomain(p.FinalDomain) == root || RegistrableDomain(p.RequestedURL) == root
	}
	return false
}

// reconcileIdentity makes status, domain and evidence path agree.
func reconcileIdentity(clues model.CompanyClues, id *model.CompanyIdentity) {
	socialEvidence := func() model.EvidencePath {
		switch {
		case len(id.FounderProfiles) > 0:
			return model.EvidenceFounderProfiles
		case id.CompanyLinkedIn != "" || len(clues.SocialProfiles()) > 0:
			return model.EvidenceSocialProfile
		default:
			return model.EvidenceNone
		}
	}

	switch id.Status {
	case model.IdentityStealth:
		if id.EvidencePath != model.EvidenceVerifiedDomain {
			id.CurrentDomain, id.Website = "", ""
		}
		if id.EvidencePath != model.EvidenceSocialProfile && id.EvidencePath != model.EvidenceFounderProfiles {
			id.EvidencePath = socialEvidence()
		}
		for _, u := range id.FounderProfiles {
			id.AddSource(u)
		}
		id.AddSource(id.CompanyLinkedIn)
		for _, u := range clues.SocialProfiles() {
			id.AddSource(u)
		}
		if id.EvidencePath == model.EvidenceNone {
			id.Status = model.IdentityUnknown
		}
	case model.IdentityActive, model.IdentityRedirected:
		if !id.HasDomain() {
			if path := socialEvidence(); path != model.EvidenceNone {
				id.Status = model.IdentityStealth
				id.EvidencePath = path
				reconcileIdentity(clues, id)
			} else {
				id.Status = model.IdentityUnknown
				id.EvidencePath = model.EvidenceNone
			}
			return
		}
		if id.Status == model.IdentityRedirected && id.RedirectFrom == "" {
			id.RedirectFrom = clues.Domain
		}
		// A domain answer on weak evidence keeps its weak path unless the
		// confidence already reaches the name-search band.
		weak := id.EvidencePath == model.EvidenceNone || id.EvidencePath == model.EvidenceSocialProfile || id.EvidencePath == model.EvidenceFounderProfiles
		if weak && id.Confidence >= evidenceBands[model.EvidenceNameSearch].lo {
			id.EvidencePath = model.EvidenceNameSearch
		}
	case model.IdentityUnknown:
		id.EvidencePath = model.EvidenceNone
	}

	if id.HasDomain() && id.Website == "" {
		id.Website = "https://" + id.CurrentDomain
	}
}

// probeAnswerDomain probes a domain the model claims to have verified when
// it is not the CSV domain we already probed.
func (s *IdentityResolver) probeAnswerDomain(ctx context.Context, clues model.CompanyClues, ev *identityEvidence, domain string) {
	domain = model.NormalizeDomain(domain)
	if s.prober == nil || domain == "" || RegistrableDomain(domain) == RegistrableDomain(ev.CSVDomain) {
		return
	}
	probe, err := s.prober.Probe(ctx, domain)
	if err != nil || probe == nil || !probe.Reachable {
		return
	}
	names := clues.Names()
	ev.answerProbe = probe
	ev.answerNameMatch = anyNameMatches(names, probe.Title) || anyNameMatches(names, probe.FinalDomain)
}
