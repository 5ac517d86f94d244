package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/dossier-cli/internal/model"
)

// Strategy produces a dossier for a run or fails.
type Strategy interface {
	Name() string
	Produce(ctx context.Context, run *Run) (*model.Dossier, error)
}

// FinalStrategy is the last link of the fallback chain. It cannot fail.
type FinalStrategy interface {
	Name() string
	Produce(ctx context.Context, run *Run) *model.Dossier
}

// IdentityStage resolves a company's identity.
type IdentityStage interface {
	Resolve(ctx context.Context, clues model.CompanyClues) (model.CompanyIdentity, error)
}

// FundingStage researches funding for a resolved identity.
type FundingStage interface {
	Research(ctx context.Context, identity model.CompanyIdentity, clues model.CompanyClues) (model.FundingIntelligence, error)
}

// ProfileStage builds a business profile for a resolved identity.
type ProfileStage interface {
	Build(ctx context.Context, identity model.CompanyIdentity, clues model.CompanyClues) (model.CompanyProfileIntel, error)
}

// SynthesisStage writes the dossier.
type SynthesisStage interface {
	Synthesize(ctx context.Context, in SynthesisInput) (*model.Dossier, error)
}

// Strategy names.
const (
	StrategyTiered        = "tiered"
	StrategyLegacy        = "legacy"
	StrategyDeterministic = "deterministic"
)

// Tiered is the primary strategy: identity, then gated concurrent funding,
// profile and news research, then synthesis.
type Tiered struct {
	policy    Policy
	identity  IdentityStage
	funding   FundingStage
	profile   ProfileStage
	news      NewsCollector
	synthesis SynthesisStage
}

// TieredStages groups the collaborators of the tiered strategy. News may be
// nil; the other stages are required.
type TieredStages struct {
	Identity  IdentityStage
	Funding   FundingStage
	Profile   ProfileStage
	News      NewsCollector
	Synthesis SynthesisStage
}

// NewTiered creates the tiered strategy.
func NewTiered(p Policy, s TieredStages) *Tiered {
	return &Tiered{
		policy:    p,
		identity:  s.Identity,
		funding:   s.Funding,
		profile:   s.Profile,
		news:      s.News,
		synthesis: s.Synthesis,
	}
}

// Name implements Strategy.
func (t *Tiered) Name() string { return StrategyTiered }

// Produce implements Strategy. Identity and synthesis errors end the
// strategy; funding, profile and news errors only degrade their outcome.
func (t *Tiered) Produce(ctx context.Context, run *Run) (*model.Dossier, error) {
	clues := run.Clues()
	if err := run.Transition(model.RunIdentityPending, ""); err != nil {
		return nil, err
	}

	id, _, err := runStage(ctx, t.policy, StageIdentity, clues.Callsign, t.policy.Timeouts.Identity,
		func(ctx context.Context) (model.CompanyIdentity, error) {
			return t.identity.Resolve(ctx, clues)
		})
	if err != nil {
		return nil, err
	}
	run.SetIdentity(id)
	if err := run.Transition(model.RunIdentityResolved, fmt.Sprintf("%s %.2f", id.Status, id.Confidence)); err != nil {
		return nil, err
	}

	research, skipReason := t.policy.ShouldResearch(id)
	collectNews, newsReason := t.policy.ShouldCollectNews(id)
	if t.news == nil {
		collectNews, newsReason = false, "no news collector configured"
	}

	if research {
		if err := run.Transition(model.RunFundingPending, ""); err != nil {
			return nil, err
		}
		if err := run.Transition(model.RunProfilePending, ""); err != nil {
			return nil, err
		}
	} else {
		logSkip(clues.Callsign, StageFunding, skipReason)
		logSkip(clues.Callsign, StageProfile, skipReason)
		run.SetFunding(model.Skipped[model.FundingIntelligence](skipReason))
		run.SetProfile(model.Skipped[model.CompanyProfileIntel](skipReason))
	}
	if !collectNews {
		logSkip(clues.Callsign, StageNews, newsReason)
		run.SetNews(model.Skipped[model.NewsBundle](newsReason))
	}

	var g errgroup.Group
	if research {
		g.Go(func() error {
			f, attempts, err := runStage(ctx, t.policy, StageFunding, clues.Callsign, t.policy.Timeouts.Funding,
				func(ctx context.Context) (model.FundingIntelligence, error) {
					return t.funding.Research(ctx, id, clues)
				})
			if err != nil {
				run.AddFailure(StrategyTiered, StageFunding, err)
				run.SetFunding(model.Failed[model.FundingIntelligence](err, attempts))
				return nil
			}
			run.SetFunding(model.Completed(f, attempts))
			return nil
		})
		g.Go(func() error {
			p, attempts, err := runStage(ctx, t.policy, StageProfile, clues.Callsign, t.policy.Timeouts.Profile,
				func(ctx context.Context) (model.CompanyProfileIntel, error) {
					return t.profile.Build(ctx, id, clues)
				})
			if err != nil {
				run.AddFailure(StrategyTiered, StageProfile, err)
				run.SetProfile(model.Failed[model.CompanyProfileIntel](err, attempts))
				return nil
			}
			run.SetProfile(model.Completed(p, attempts))
			return nil
		})
	}
	if collectNews {
		q := NewsQuery{
			Domain:       id.CurrentDomain,
			Name:         clues.DisplayName(),
			Owners:       clues.Owners,
			LookbackDays: t.policy.NewsLookbackDays,
		}
		g.Go(func() error {
			b, attempts, err := runStage(ctx, t.policy, StageNews, clues.Callsign, t.policy.Timeouts.News,
				func(ctx context.Context) (model.NewsBundle, error) {
					return t.news.Collect(ctx, q)
				})
			if err != nil {
				run.AddFailure(StrategyTiered, StageNews, err)
				run.SetNews(model.Failed[model.NewsBundle](err, attempts))
				return nil
			}
			run.SetNews(model.Completed(b, attempts))
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := run.Transition(model.RunSynthesizing, ""); err != nil {
		return nil, err
	}
	in := run.Input()
	d, _, err := runStage(ctx, t.policy, StageSynthesis, clues.Callsign, t.policy.Timeouts.Synthesis,
		func(ctx context.Context) (*model.Dossier, error) {
			return t.synthesis.Synthesize(ctx, in)
		})
	if err != nil {
		return nil, err
	}
	return d, nil
}

func logSkip(callsign, stage, reason string) {
	zap.L().Info("pipeline: stage skipped",
		zap.String("callsign", callsign),
		zap.String("stage", stage),
		zap.String("reason", reason),
	)
}
