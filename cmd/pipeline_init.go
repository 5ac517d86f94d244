package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/dossier-cli/internal/config"
	"github.com/sells-group/dossier-cli/internal/cost"
	"github.com/sells-group/dossier-cli/internal/pipeline"
	"github.com/sells-group/dossier-cli/internal/publish"
	"github.com/sells-group/dossier-cli/internal/resilience"
	"github.com/sells-group/dossier-cli/internal/store"
	anthropicpkg "github.com/sells-group/dossier-cli/pkg/anthropic"
	"github.com/sells-group/dossier-cli/pkg/firecrawl"
	"github.com/sells-group/dossier-cli/pkg/jina"
	"github.com/sells-group/dossier-cli/pkg/notion"
	"github.com/sells-group/dossier-cli/pkg/perplexity"
)

// pipelineEnv holds the store, the runner and the optional Notion client
// needed by the run/batch/serve commands.
type pipelineEnv struct {
	Store  store.Store
	Runner *pipeline.Runner
	Notion notion.Client
	// Sink persists every finished run, cancelled ones included.
	Sink publish.Publisher
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// researchClients are the outbound collaborators of the research stages.
type researchClients struct {
	Perplexity perplexity.Client
	Anthropic  anthropicpkg.Client
	Jina       jina.Client
	Prober     pipeline.DomainProber
	// Firecrawl is the fallback page reader; nil disables it.
	Firecrawl  firecrawl.Client
}

func liveClients(c *config.Config) researchClients {
	jinaOpts := []jina.Option{jina.WithBaseURL(c.Jina.BaseURL)}
	if c.Jina.SearchBaseURL != "" {
		jinaOpts = append(jinaOpts, jina.WithSearchBaseURL(c.Jina.SearchBaseURL))
	}
	cl := researchClients{
		Perplexity: perplexity.NewClient(c.Perplexity.Key,
			perplexity.WithBaseURL(c.Perplexity.BaseURL),
			perplexity.WithModel(c.Perplexity.Model),
		),
		Anthropic: anthropicpkg.NewClient(c.Anthropic.Key),
		Jina:      jina.NewClient(c.Jina.Key, jinaOpts...),
		Prober:    pipeline.NewHTTPProber(nil, config.Timeout(c.Research.Timeouts.Probe)),
	}
	if c.Firecrawl.Key != "" {
		cl.Firecrawl = firecrawl.NewClient(c.Firecrawl.Key, firecrawl.WithBaseURL(c.Firecrawl.BaseURL))
	}
	return cl
}

// offlineClients returns canned collaborators so the whole chain runs
// without credentials or network access.
func offlineClients() researchClients {
	return researchClients{
		Perplexity: &pipeline.StubPerplexityClient{},
		Anthropic:  &pipeline.StubAnthropicClient{},
		Jina:       &pipeline.StubJinaClient{},
		Prober:     &pipeline.StubProber{},
	}
}

// initPipeline sets up the store, the research clients and the runner.
// Callers should defer env.Close().
func initPipeline(ctx context.Context, offline bool) (*pipelineEnv, error) {
	mode := config.ModeResearch
	if offline {
		mode = config.ModeOffline
	}
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	env := &pipelineEnv{Store: st, Sink: publish.NewStorePublisher(st)}

	clients := offlineClients()
	if !offline {
		clients = liveClients(cfg)
	}

	var opts []pipeline.RunnerOption
	if !offline && cfg.Notion.Token != "" {
		env.Notion = notion.NewClient(cfg.Notion.Token, notion.WithRateLimit(cfg.Notion.RatePerSec))
		if cfg.Notion.Publish && cfg.Notion.CompanyDB != "" {
			opts = append(opts, pipeline.WithPublishers(publish.NewNotionPublisher(env.Notion, cfg.Notion.CompanyDB)))
			zap.L().Info("notion publishing enabled", zap.String("company_db", cfg.Notion.CompanyDB))
		}
	}

	runner, err := buildRunner(cfg, clients, opts...)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Runner = runner

	zap.L().Info("pipeline ready",
		zap.Bool("offline", offline),
		zap.Bool("tiered", cfg.Research.TieredEnabled),
		zap.String("store", cfg.Store.Driver),
	)
	return env, nil
}

// buildRunner wires reasoners, evidence collaborators and stages into the
// fallback chain: tiered, legacy single pass, deterministic.
func buildRunner(c *config.Config, cl researchClients, opts ...pipeline.RunnerOption) (*pipeline.Runner, error) {
	policy := pipeline.PolicyFromConfig(c.Research, c.Resilience)

	breakers := resilience.NewBreakers(resilience.BreakerConfig{
		FailureThreshold: c.Resilience.FailureThreshold,
		ResetTimeout:     config.Timeout(c.Resilience.ResetTimeoutSecs),
	})
	reasoners := pipeline.ReasonerSet{
		cost.ProviderPerplexity: pipeline.NewPerplexityReasoner(cl.Perplexity,
			pipeline.WithBreaker(breakers.Get(cost.ProviderPerplexity)),
			pipeline.WithRequestRate(c.Resilience.ReasonerRPS),
		),
		cost.ProviderAnthropic: pipeline.NewAnthropicReasoner(cl.Anthropic,
			pipeline.WithBreaker(breakers.Get(cost.ProviderAnthropic)),
			pipeline.WithRequestRate(c.Resilience.ReasonerRPS),
		),
	}

	m := c.Research.Models
	pick := func(stage string, sm config.StageModel) (pipeline.Reasoner, error) {
		r, err := reasoners.Pick(sm)
		if err != nil {
			return nil, eris.Wrapf(err, "%s stage", stage)
		}
		return r, nil
	}
	identityR, err := pick("identity", m.Identity)
	if err != nil {
		return nil, err
	}
	fundingR, err := pick("funding", m.Funding)
	if err != nil {
		return nil, err
	}
	profileR, err := pick("profile", m.Profile)
	if err != nil {
		return nil, err
	}
	synthesisR, err := pick("synthesis", m.Synthesis)
	if err != nil {
		return nil, err
	}
	legacyR, err := pick("legacy", m.Legacy)
	if err != nil {
		return nil, err
	}

	evidence := pipeline.NewJinaEvidence(cl.Jina)
	var reader pipeline.PageReader = evidence
	if cl.Firecrawl != nil {
		reader = pipeline.ReaderChain{evidence, pipeline.NewFirecrawlReader(cl.Firecrawl)}
	}
	tiered := pipeline.NewTiered(policy, pipeline.TieredStages{
		Identity:  pipeline.NewIdentityResolver(identityR, m.Identity, cl.Prober, evidence),
		Funding:   pipeline.NewFundingResearcher(fundingR, m.Funding, evidence),
		Profile:   pipeline.NewProfileBuilder(profileR, m.Profile, reader, evidence),
		News:      pipeline.NewSearchNewsCollector(evidence),
		Synthesis: pipeline.NewSynthesizer(synthesisR, m.Synthesis),
	})
	legacy := pipeline.NewSinglePass(legacyR, m.Legacy, policy)
	final := pipeline.NewDeterministic(cl.Prober, evidence, policy)

	opts = append(opts, pipeline.WithCalculator(cost.NewCalculator(ratesFromConfig(c.Pricing))))
	return pipeline.NewRunner(policy.TieredEnabled, []pipeline.Strategy{tiered, legacy}, final, opts...), nil
}

// ratesFromConfig overlays configured prices on the default rate card.
func ratesFromConfig(p config.PricingConfig) cost.Rates {
	rates := cost.DefaultRates()
	for id, mp := range p.Anthropic {
		rates.Anthropic[id] = cost.ModelRate{Input: mp.Input, Output: mp.Output}
	}
	if p.Perplexity.PerQuery > 0 || p.Perplexity.PerMTok > 0 {
		rates.Perplexity = cost.PerplexityRate{PerQuery: p.Perplexity.PerQuery, PerMTok: p.Perplexity.PerMTok}
	}
	if p.Jina.PerMTok > 0 {
		rates.Jina = cost.JinaRate{PerMTok: p.Jina.PerMTok}
	}
	if p.Firecrawl.PerPage > 0 {
		rates.Firecrawl = cost.FirecrawlRate{PerPage: p.Firecrawl.PerPage}
	}
	return rates
}
