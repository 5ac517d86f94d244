package pipeline

import (
	"fmt"
	"time"

	"github.com/sells-group/dossier-cli/internal/config"
	"github.com/sells-group/dossier-cli/internal/model"
	"github.com/sells-group/dossier-cli/internal/resilience"
)

// Default gating thresholds. They trade research cost against dossier
// quality and are overridable through Policy.
const (
	DefaultResearchSkipThreshold = 0.3
	DefaultNewsSkipThreshold     = 0.6
	DefaultStageRetries          = 1
	DefaultNewsLookbackDays      = 180
)

// Stage names used in logs, ledgers and failure records.
const (
	StageIdentity  = "identity"
	StageFunding   = "funding"
	StageProfile   = "profile"
	StageNews      = "news"
	StageSynthesis = "synthesis"
	StageLegacy    = "legacy"
)

// Timeouts bounds each attempt of a stage.
type Timeouts struct {
	Identity  time.Duration
	Funding   time.Duration
	Profile   time.Duration
	News      time.Duration
	Synthesis time.Duration
	Legacy    time.Duration
	Probe     time.Duration
}

// Policy holds the gating, retry and timeout rules of a research run. It is
// fixed at construction; pipeline code never reads ambient settings.
type Policy struct {
	TieredEnabled         bool
	ResearchSkipThreshold float64
	NewsSkipThreshold     float64
	StageRetries          int
	NewsLookbackDays      int
	DeterministicSearch   bool
	Timeouts              Timeouts
	Backoff               resilience.Policy
}

// DefaultPolicy returns the stock policy.
func DefaultPolicy() Policy {
	return Policy{
		TieredEnabled:         true,
		ResearchSkipThreshold: DefaultResearchSkipThreshold,
		NewsSkipThreshold:     DefaultNewsSkipThreshold,
		StageRetries:          DefaultStageRetries,
		NewsLookbackDays:      DefaultNewsLookbackDays,
		DeterministicSearch:   true,
		Timeouts: Timeouts{
			Identity:  90 * time.Second,
			Funding:   90 * time.Second,
			Profile:   90 * time.Second,
			News:      45 * time.Second,
			Synthesis: 120 * time.Second,
			Legacy:    120 * time.Second,
			Probe:     10 * time.Second,
		},
		Backoff: resilience.DefaultPolicy(),
	}
}

// PolicyFromConfig builds a policy from configuration.
func PolicyFromConfig(rc config.ResearchConfig, res config.ResilienceConfig) Policy {
	p := DefaultPolicy()
	p.TieredEnabled = rc.TieredEnabled
	p.ResearchSkipThreshold = rc.ResearchSkipThreshold
	p.NewsSkipThreshold = rc.NewsSkipThreshold
	p.StageRetries = rc.StageRetries
	p.DeterministicSearch = rc.DeterministicSearch
	if rc.NewsLookbackDays > 0 {
		p.NewsLookbackDays = rc.NewsLookbackDays
	}

	t := rc.Timeouts
	setDuration(&p.Timeouts.Identity, t.Identity)
	setDuration(&p.Timeouts.Funding, t.Funding)
	setDuration(&p.Timeouts.Profile, t.Profile)
	setDuration(&p.Timeouts.News, t.News)
	setDuration(&p.Timeouts.Synthesis, t.Synthesis)
	setDuration(&p.Timeouts.Legacy, t.Legacy)
	setDuration(&p.Timeouts.Probe, t.Probe)

	if res.InitialBackoffMs > 0 {
		p.Backoff.InitialBackoff = time.Duration(res.InitialBackoffMs) * time.Millisecond
	}
	if res.MaxBackoffMs > 0 {
		p.Backoff.MaxBackoff = time.Duration(res.MaxBackoffMs) * time.Millisecond
	}
	if res.Multiplier > 0 {
		p.Backoff.Multiplier = res.Multiplier
	}
	if res.JitterFraction >= 0 {
		p.Backoff.JitterFraction = res.JitterFraction
	}
	return p
}

func setDuration(dst *time.Duration, secs int) {
	if secs > 0 {
		*dst = config.Timeout(secs)
	}
}

// ShouldResearch decides whether funding and profile research may run for
// an identity. The reason explains a skip.
func (p Policy) ShouldResearch(id model.CompanyIdentity) (bool, string) {
	if id.Confidence < p.ResearchSkipThreshold {
		return false, fmt.Sprintf("identity confidence %.2f below %.2f", id.Confidence, p.ResearchSkipThreshold)
	}
	return true, ""
}

// ShouldCollectNews decides whether the news/background collector may run.
func (p Policy) ShouldCollectNews(id model.CompanyIdentity) (bool, string) {
	if id.Status == model.IdentityStealth {
		return false, "company is in stealth"
	}
	if id.Confidence < p.NewsSkipThreshold {
		return false, fmt.Sprintf("identity confidence %.2f below %.2f", id.Confidence, p.NewsSkipThreshold)
	}
	return true, ""
}

// retryPolicy returns the bounded retry policy for one stage.
func (p Policy) retryPolicy(stage, callsign string, timeout time.Duration) resilience.Policy {
	rp := p.Backoff.WithRetries(p.StageRetries).WithTimeout(timeout)
	rp.OnRetry = resilience.RetryLogger(stage, callsign)
	return rp
}
