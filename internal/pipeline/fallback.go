package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/dossier-cli/internal/config"
	"github.com/sells-group/dossier-cli/internal/cost"
	"github.com/sells-group/dossier-cli/internal/model"
)

// Publisher receives a run record once it reaches a terminal state.
type Publisher interface {
	Publish(ctx context.Context, rec *model.RunRecord) error
}

// Runner drives one company through the fallback chain: each strategy in
// order until one produces a dossier, then the final strategy.
type Runner struct {
	strategies []Strategy
	final      FinalStrategy
	publishers []Publisher
	calc       *cost.Calculator
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithPublishers adds terminal-state publishers.
func WithPublishers(p ...Publisher) RunnerOption {
	return func(r *Runner) { r.publishers = append(r.publishers, p...) }
}

// WithCalculator prices usage recorded in each run's ledger.
func WithCalculator(c *cost.Calculator) RunnerOption {
	return func(r *Runner) { r.calc = c }
}

// NewRunner creates a runner. When tiered is false, strategies named
// "tiered" are left out so the chain starts at the legacy strategy.
func NewRunner(tiered bool, strategies []Strategy, final FinalStrategy, opts ...RunnerOption) *Runner {
	r := &Runner{final: final}
	for _, s := range strategies {
		if s == nil || (!tiered && s.Name() == StrategyTiered) {
			continue
		}
		r.strategies = append(r.strategies, s)
	}
	if r.final == nil {
		r.final = NewDeterministic(nil, nil, DefaultPolicy())
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run researches one company. It never returns nil: the record is done with
// a dossier, or cancelled.
func (r *Runner) Run(ctx context.Context, clues model.CompanyClues) *model.RunRecord {
	run := NewRun(clues, cost.NewLedger(r.calc))
	ctx = withLedger(ctx, run.Ledger())
	log := zap.L().With(zap.String("callsign", clues.Callsign), zap.String("run_id", run.ID()))
	start := time.Now()

	for i, s := range r.strategies {
		if ctx.Err() != nil {
			return r.cancel(run)
		}
		if i > 0 {
			run.resetOutputs()
		}
		run.setStrategy(s.Name())

		d, err := produce(ctx, s, run)
		if err == nil && d != nil && !HasAllSections(d.Markdown) {
			err = eris.Errorf("pipeline: %s dossier is missing sections", s.Name())
		}
		if err == nil && d != nil {
			return r.complete(ctx, run, d, start)
		}
		if ctx.Err() != nil {
			return r.cancel(run)
		}
		if err == nil {
			err = eris.Errorf("pipeline: %s produced no dossier", s.Name())
		}

		log.Warn("pipeline: strategy failed", zap.String("strategy", s.Name()), zap.Error(err))
		run.AddFailure(s.Name(), failedStage(err, s.Name()), err)
		if run.State() != model.RunFailed {
			if terr := run.Transition(model.RunFailed, s.Name()); terr != nil {
				log.Error("pipeline: transition to failed", zap.Error(terr))
			}
		}
	}

	if ctx.Err() != nil {
		return r.cancel(run)
	}
	run.resetOutputs()
	run.setStrategy(r.final.Name())
	if err := run.Transition(model.RunDeterministicFallback, ""); err != nil {
		log.Error("pipeline: transition to deterministic fallback", zap.Error(err))
	}
	d := produceFinal(ctx, r.final, run)
	return r.complete(ctx, run, d, start)
}

func (r *Runner) complete(ctx context.Context, run *Run, d *model.Dossier, start time.Time) *model.RunRecord {
	if err := run.Transition(model.RunDone, ""); err != nil {
		zap.L().Error("pipeline: transition to done", zap.String("run_id", run.ID()), zap.Error(err))
	}
	run.finish(d)
	rec := run.Record()
	zap.L().Info("pipeline: run complete",
		zap.String("callsign", rec.Callsign),
		zap.String("run_id", rec.ID),
		zap.String("strategy", rec.Strategy),
		zap.Float64("confidence", d.AggregateConfidence),
		zap.Float64("cost_usd", rec.Usage.Cost),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)

	if ctx.Err() != nil || len(r.publishers) == 0 {
		return rec
	}
	published := true
	for _, p := range r.publishers {
		if err := p.Publish(ctx, rec); err != nil {
			published = false
			run.AddFailure(rec.Strategy, "publish", err)
			zap.L().Warn("pipeline: publish failed", zap.String("run_id", rec.ID), zap.Error(err))
		}
	}
	if published {
		run.markPublished()
	}
	return run.Record()
}

func (r *Runner) cancel(run *Run) *model.RunRecord {
	if err := run.Transition(model.RunCancelled, ""); err != nil {
		zap.L().Error("pipeline: transition to cancelled", zap.String("run_id", run.ID()), zap.Error(err))
	}
	run.finish(nil)
	zap.L().Info("pipeline: run cancelled", zap.String("callsign", run.Clues().Callsign), zap.String("run_id", run.ID()))
	return run.Record()
}

// produce runs a strategy, converting a panic into an error.
func produce(ctx context.Context, s Strategy, run *Run) (d *model.Dossier, err error) {
	defer func() {
		if p := recover(); p != nil {
			zap.L().Error("pipeline: strategy panicked",
				zap.String("strategy", s.Name()),
				zap.Any("panic", p),
				zap.ByteString("stack", debug.Stack()),
			)
			d, err = nil, eris.Errorf("pipeline: %s panicked: %v", s.Name(), p)
		}
	}()
	return s.Produce(ctx, run)
}

// produceFinal runs the final strategy. A panic or nil result still yields
// a composed dossier from whatever the run holds.
func produceFinal(ctx context.Context, s FinalStrategy, run *Run) (d *model.Dossier) {
	defer func() {
		if p := recover(); p != nil {
			zap.L().Error("pipeline: final strategy panicked", zap.Any("panic", p))
			d = ComposeDossier(SynthesisInput{Clues: run.Clues()}, nil)
		}
	}()
	d = s.Produce(ctx, run)
	if d == nil {
		d = ComposeDossier(SynthesisInput{Clues: run.Clues()}, nil)
	}
	return d
}

func failedStage(err error, fallback string) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return fallback
}

// Batch runs companies with bounded parallelism. Records come back in input
// order; a cancelled context yields cancelled records for unstarted work.
func (r *Runner) Batch(ctx context.Context, companies []model.CompanyClues, concurrency int) []*model.RunRecord {
	if concurrency < 1 {
		concurrency = 1
	}
	out := make([]*model.RunRecord, len(companies))
	g := new(errgroup.Group)
	g.SetLimit(concurrency)
	for i, c := range companies {
		g.Go(func() error {
			out[i] = r.Run(ctx, c)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// --- Legacy single pass ---

const legacySystem = `You are a research assistant resolving a company's identity and funding in one
pass using web search. If information is ambiguous, say so and lower confidence. Always provide at least
one source URL. Respond with JSON only.`

const legacyPrompt = `Using the following internal profile fields, determine the company's identity,
confirm or update the canonical website (with domain root), and summarize the latest funding stage and
lead investors. Report the most recent funding round amount in USD as a pure number. When only total
funding to date is known, supply that amount and explain it in notes.

%s

Return ONLY a JSON object matching this schema:
%s`

type legacyDomain struct {
	DomainRoot string `json:"domain_root,omitempty"`
	Website    string `json:"website,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

type legacyFunding struct {
	Stage           string     `json:"stage,omitempty"`
	LatestRound     string     `json:"latest_round,omitempty"`
	LatestAmountUSD flexAmount `json:"latest_amount_usd"`
	LeadInvestors   []string   `json:"lead_investors,omitempty"`
	Summary         string     `json:"summary,omitempty"`
	Notes           string     `json:"notes,omitempty"`
}

// legacyAnswer is the combined identity and funding response.
type legacyAnswer struct {
	Confidence string        `json:"confidence" jsonschema:"enum=high,enum=medium,enum=low"`
	Domain     legacyDomain  `json:"domain"`
	Funding    legacyFunding `json:"funding"`
	Sources    []string      `json:"sources"`
	Summary    string        `json:"summary,omitempty"`
}

var legacySchema = schemaOf(&legacyAnswer{})

// legacyConfidence maps the coarse confidence labels to scores.
var legacyConfidence = map[string]float64{
	"high":   0.75,
	"medium": 0.5,
	"low":    0.2,
}

func (a *legacyAnswer) validate() error {
	a.Confidence = strings.ToLower(strings.TrimSpace(a.Confidence))
	if _, ok := legacyConfidence[a.Confidence]; !ok {
		return eris.Errorf("pipeline: legacy confidence %q is not valid", a.Confidence)
	}
	return nil
}

// SinglePass is the legacy strategy: one reasoning call for domain and
// funding, then composition.
type SinglePass struct {
	reasoner Reasoner
	model    config.StageModel
	policy   Policy
}

// NewSinglePass creates the legacy strategy.
func NewSinglePass(r Reasoner, m config.StageModel, p Policy) *SinglePass {
	return &SinglePass{reasoner: r, model: m, policy: p}
}

// Name implements Strategy.
func (s *SinglePass) Name() string { return StrategyLegacy }

// Produce implements Strategy.
func (s *SinglePass) Produce(ctx context.Context, run *Run) (*model.Dossier, error) {
	if err := run.Transition(model.RunLegacyFallback, ""); err != nil {
		return nil, err
	}
	clues := run.Clues()

	ans, attempts, err := runStage(ctx, s.policy, StageLegacy, clues.Callsign, s.policy.Timeouts.Legacy,
		func(ctx context.Context) (*legacyResult, error) {
			return s.ask(ctx, clues)
		})
	if err != nil {
		return nil, err
	}

	run.SetIdentity(ans.identity)
	run.SetFunding(model.Completed(ans.funding, attempts))
	run.SetProfile(model.Skipped[model.CompanyProfileIntel]("not researched by the legacy strategy"))
	run.SetNews(model.Skipped[model.NewsBundle]("not collected by the legacy strategy"))

	n := &Narrative{Identity: ans.identity.Reasoning, Funding: ans.funding.Reasoning}
	return ComposeDossier(run.Input(), n), nil
}

type legacyResult struct {
	identity model.CompanyIdentity
	funding  model.FundingIntelligence
}

func (s *SinglePass) ask(ctx context.Context, c model.CompanyClues) (*legacyResult, error) {
	prompt := fmt.Sprintf(legacyPrompt, legacyProfile(c), legacySchema)
	resp, err := reason(ctx, s.reasoner, ReasonRequest{
		Stage:     StageLegacy,
		Model:     s.model.Model,
		System:    legacySystem,
		Prompt:    prompt,
		Schema:    legacySchema,
		MaxTokens: s.model.MaxTokens,
	})
	if err != nil {
		return nil, err
	}
	ans, err := decodeAnswer[legacyAnswer](resp.Text)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: legacy answer")
	}
	return finalizeLegacy(c, ans, resp.Citations), nil
}

func legacyProfile(c model.CompanyClues) string {
	owners := strings.Join(c.Owners, ", ")
	lines := []string{
		"Internal identifier: " + firstNonEmpty(c.Callsign, "Unknown"),
		"Company legal name: " + firstNonEmpty(c.DBA, "Unknown"),
		"Known domain: " + firstNonEmpty(c.Domain, "Unknown"),
		"Known website: " + firstNonEmpty(c.Website, "Unknown"),
		"Owners / key contacts: " + firstNonEmpty(owners, "Unknown"),
	}
	if len(c.AliasNames) > 0 {
		lines = append(lines, "Also known as: "+strings.Join(c.AliasNames, ", "))
	}
	return strings.Join(lines, "\n")
}

func finalizeLegacy(c model.CompanyClues, ans *legacyAnswer, citations []string) *legacyResult {
	conf := legacyConfidence[ans.Confidence]
	sources := dedupeStrings(append(trimAll(ans.Sources), trimAll(citations)...))

	domain := RegistrableDomain(firstNonEmpty(ans.Domain.DomainRoot, ans.Domain.Website))
	if isSocialHost(domain) {
		domain = ""
	}
	id := model.CompanyIdentity{
		CurrentDomain: domain,
		Website:       strings.TrimSpace(ans.Domain.Website),
		Status:        model.IdentityActive,
		Confidence:    conf,
		Reasoning:     strings.TrimSpace(firstNonEmpty(ans.Summary, ans.Domain.Notes)),
		Sources:       sources,
		EvidencePath:  model.EvidenceNameSearch,
	}
	switch {
	case domain == "":
		id = model.UnknownIdentity(firstNonEmpty(id.Reasoning, "No domain identified."))
		id.Sources = sources
	case c.Domain != "" && RegistrableDomain(c.Domain) != domain:
		id.Status = model.IdentityRedirected
		id.RedirectFrom = c.Domain
		id.EvidencePath = model.EvidenceAlternateName
	case c.Domain != "":
		id.EvidencePath = model.EvidenceVerifiedDomain
	}
	if id.HasDomain() && id.Website == "" {
		id.Website = "https://" + id.CurrentDomain
	}

	f := model.FundingIntelligence{
		Stage:      strings.TrimSpace(ans.Funding.Stage),
		Confidence: conf,
		Reasoning:  strings.TrimSpace(firstNonEmpty(ans.Funding.Summary, ans.Funding.Notes)),
		Sources:    sources,
	}
	round := &model.FundingRound{
		AmountUSD: ans.Funding.LatestAmountUSD.Value,
		RoundType: normalizeRoundType(ans.Funding.LatestRound),
		Investors: trimAll(ans.Funding.LeadInvestors),
	}
	if len(round.Investors) > 0 {
		round.LeadInvestor = round.Investors[0]
	}
	switch {
	case strings.EqualFold(f.Stage, model.StageBootstrapped):
		f.Finding = model.FundingBootstrapped
		f.Stage = model.StageBootstrapped
		f.Confidence = fundingConfidence(f.Finding, conf)
	case round.AmountUSD != nil || round.RoundType != "":
		f.Finding = model.FundingAnnounced
		f.LatestRound = round
		if f.Stage == "" {
			f.Stage = round.RoundType
		}
		f.Confidence = fundingConfidence(f.Finding, conf)
	default:
		f.Finding = model.FundingNotFound
		f.Stage = model.StageNoPublicInfo
		f.Confidence = fundingConfidence(f.Finding, conf)
	}
	if f.Reasoning == "" {
		f.Reasoning = "Resolved in a single combined research pass."
	}
	return &legacyResult{identity: id, funding: f}
}

// --- Deterministic ---

// Deterministic is the final strategy: no reasoning calls, only the roster
// clues, an optional short probe and optional search hints.
type Deterministic struct {
	prober DomainProber
	search Searcher
	policy Policy
}

// NewDeterministic creates the final strategy. prober and search may be nil.
func NewDeterministic(prober DomainProber, search Searcher, p Policy) *Deterministic {
	return &Deterministic{prober: prober, search: search, policy: p}
}

// Name implements FinalStrategy.
func (s *Deterministic) Name() string { return StrategyDeterministic }

// Produce implements FinalStrategy.
func (s *Deterministic) Produce(ctx context.Context, run *Run) *model.Dossier {
	clues := run.Clues()
	id := s.identity(ctx, clues)
	run.SetIdentity(id)

	if f, ok := s.funding(ctx, clues); ok {
		run.SetFunding(model.Completed(f, 1))
	} else {
		run.SetFunding(model.Skipped[model.FundingIntelligence]("no deterministic funding evidence"))
	}
	run.SetProfile(model.Skipped[model.CompanyProfileIntel]("not researched by the deterministic strategy"))
	run.SetNews(model.Skipped[model.NewsBundle]("not collected by the deterministic strategy"))
	return ComposeDossier(run.Input(), nil)
}

func (s *Deterministic) identity(ctx context.Context, c model.CompanyClues) model.CompanyIdentity {
	root := RegistrableDomain(firstNonEmpty(c.Domain, c.Website))
	if root == "" || isSocialHost(root) {
		if isFounderProfile(c.SocialURL) || isCompanyProfile(c.SocialURL) || c.TwitterHandle != "" || c.CrunchbaseURL != "" {
			id := model.CompanyIdentity{
				Status:       model.IdentityStealth,
				Confidence:   0.3,
				Reasoning:    "No domain on record; a social profile is the only evidence.",
				EvidencePath: model.EvidenceSocialProfile,
			}
			for _, u := range c.SocialProfiles() {
				id.AddSource(u)
			}
			return id
		}
		return model.UnknownIdentity("No domain on record and no research was possible.")
	}

	id := model.CompanyIdentity{
		CurrentDomain: root,
		Website:       "https://" + root,
		Status:        model.IdentityActive,
		Confidence:    0.2,
		Reasoning:     fmt.Sprintf("Domain %s taken from the roster without verification.", root),
		EvidencePath:  model.EvidenceNone,
	}
	if s.prober == nil {
		return id
	}

	pctx, cancel := context.WithTimeout(ctx, s.probeTimeout())
	defer cancel()
	p, err := s.prober.Probe(pctx, root)
	if err != nil || p == nil {
		return id
	}
	switch {
	case p.CrossDomain():
		id.CurrentDomain = p.FinalDomain
		id.Website = p.FinalURL
		id.Status = model.IdentityRedirected
		id.RedirectFrom = root
		id.EvidencePath = model.EvidenceRedirect
		id.Confidence = evidenceBands[model.EvidenceRedirect].lo
		id.Reasoning = fmt.Sprintf("%s redirects to %s.", root, p.FinalDomain)
		id.AddSource(p.RequestedURL)
		id.AddSource(p.FinalURL)
	case p.Reachable && anyNameMatches(c.Names(), p.Title+" "+root):
		id.Website = p.FinalURL
		id.EvidencePath = model.EvidenceVerifiedDomain
		id.Confidence = evidenceBands[model.EvidenceVerifiedDomain].lo
		id.Reasoning = fmt.Sprintf("%s is reachable and matches the company name.", root)
		id.AddSource(p.FinalURL)
	case p.Reachable:
		id.Website = p.FinalURL
		id.Reasoning = fmt.Sprintf("%s is reachable but its content does not clearly match the company name.", root)
		id.AddSource(p.FinalURL)
	default:
		id.Status = model.IdentityInactive
		id.Confidence = inactiveBand.lo
		id.EvidencePath = model.EvidenceNone
		id.Reasoning = fmt.Sprintf("%s did not respond.", root)
	}
	return id
}

func (s *Deterministic) funding(ctx context.Context, c model.CompanyClues) (model.FundingIntelligence, bool) {
	if !s.policy.DeterministicSearch || s.search == nil || c.DisplayName() == "" {
		return model.FundingIntelligence{}, false
	}
	hits := s.search.Search(ctx, fmt.Sprintf("%q raises OR funding OR seed OR series", c.DisplayName()), 5)
	var relevant []SearchHit
	for _, h := range hits {
		if anyNameMatches(c.Names(), h.Title+" "+h.Snippet) {
			relevant = append(relevant, h)
		}
	}
	hint := fundingHintFromHits(relevant)
	if hint.Empty() {
		return model.FundingIntelligence{}, false
	}

	f := model.FundingIntelligence{
		Reasoning: "Extracted from search snippets without verification.",
	}
	for _, h := range relevant {
		f.Sources = append(f.Sources, h.URL)
	}
	switch round := roundFromHint(hint); {
	case round != nil:
		f.Finding = model.FundingAnnounced
		f.LatestRound = round
		f.Stage = firstNonEmpty(round.RoundType, model.StageUnknown)
		f.Confidence = fundingFoundBand.lo
	case hint.Bootstrapped:
		f.Finding = model.FundingBootstrapped
		f.Stage = model.StageBootstrapped
		f.Confidence = fundingBootstrappedBand.lo
	default:
		f.Finding = model.FundingNotFound
		f.Stage = model.StageNoPublicInfo
		f.Confidence = fundingNotFoundBand.lo
	}
	return f, true
}

func (s *Deterministic) probeTimeout() time.Duration {
	if t := s.policy.Timeouts.Probe; t > 0 && t < 5*time.Second {
		return t
	}
	return 5 * time.Second
}
