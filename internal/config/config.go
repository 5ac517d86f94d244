package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Firecrawl  FirecrawlConfig  `yaml:"firecrawl" mapstructure:"firecrawl"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Research   ResearchConfig   `yaml:"research" mapstructure:"research"`
	Resilience ResilienceConfig `yaml:"resilience" mapstructure:"resilience"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the run store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// NotionConfig holds Notion API credentials and the companies database.
type NotionConfig struct {
	Token      string  `yaml:"token" mapstructure:"token"`
	CompanyDB  string  `yaml:"company_db" mapstructure:"company_db"`
	Publish    bool    `yaml:"publish" mapstructure:"publish"`
	RatePerSec float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// JinaConfig holds Jina reader and search settings.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// FirecrawlConfig holds the optional fallback page reader settings. An
// empty key disables the fallback.
type FirecrawlConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// PricingConfig holds per-provider pricing rates.
type PricingConfig struct {
	Anthropic  map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
	Perplexity PerplexityPricing       `yaml:"perplexity" mapstructure:"perplexity"`
	Jina       JinaPricing             `yaml:"jina" mapstructure:"jina"`
	Firecrawl  FirecrawlPricing        `yaml:"firecrawl" mapstructure:"firecrawl"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// PerplexityPricing holds Perplexity pricing.
type PerplexityPricing struct {
	PerQuery float64 `yaml:"per_query" mapstructure:"per_query"`
	PerMTok  float64 `yaml:"per_mtok" mapstructure:"per_mtok"`
}

// JinaPricing holds Jina pricing.
type JinaPricing struct {
	PerMTok float64 `yaml:"per_mtok" mapstructure:"per_mtok"`
}

// FirecrawlPricing holds Firecrawl pricing.
type FirecrawlPricing struct {
	PerPage float64 `yaml:"per_page" mapstructure:"per_page"`
}

// StageModel selects the provider and model for one reasoning stage.
type StageModel struct {
	Provider  string `yaml:"provider" mapstructure:"provider"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// StageModels holds the model selection for every reasoning stage.
type StageModels struct {
	Identity  StageModel `yaml:"identity" mapstructure:"identity"`
	Funding   StageModel `yaml:"funding" mapstructure:"funding"`
	Profile   StageModel `yaml:"profile" mapstructure:"profile"`
	Synthesis StageModel `yaml:"synthesis" mapstructure:"synthesis"`
	Legacy    StageModel `yaml:"legacy" mapstructure:"legacy"`
}

// StageTimeouts holds per-attempt stage timeouts in seconds.
type StageTimeouts struct {
	Identity  int `yaml:"identity" mapstructure:"identity"`
	Funding   int `yaml:"funding" mapstructure:"funding"`
	Profile   int `yaml:"profile" mapstructure:"profile"`
	News      int `yaml:"news" mapstructure:"news"`
	Synthesis int `yaml:"synthesis" mapstructure:"synthesis"`
	Legacy    int `yaml:"legacy" mapstructure:"legacy"`
	Probe     int `yaml:"probe" mapstructure:"probe"`
}

// ResearchConfig configures the research pipeline policy.
type ResearchConfig struct {
	TieredEnabled         bool          `yaml:"tiered_enabled" mapstructure:"tiered_enabled"`
	ResearchSkipThreshold float64       `yaml:"research_skip_threshold" mapstructure:"research_skip_threshold"`
	NewsSkipThreshold     float64       `yaml:"news_skip_threshold" mapstructure:"news_skip_threshold"`
	StageRetries          int           `yaml:"stage_retries" mapstructure:"stage_retries"`
	NewsLookbackDays      int           `yaml:"news_lookback_days" mapstructure:"news_lookback_days"`
	DeterministicSearch   bool          `yaml:"deterministic_search" mapstructure:"deterministic_search"`
	Timeouts              StageTimeouts `yaml:"timeouts" mapstructure:"timeouts"`
	Models                StageModels   `yaml:"models" mapstructure:"models"`
}

// Timeout converts a timeout in seconds to a duration.
func Timeout(secs int) time.Duration {
	return time.Duration(secs) * time.Second
}

// ResilienceConfig configures retries and circuit breakers for outbound calls.
type ResilienceConfig struct {
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
	FailureThreshold int     `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int     `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
	ReasonerRPS      float64 `yaml:"reasoner_rps" mapstructure:"reasoner_rps"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrentCompanies int `yaml:"max_concurrent_companies" mapstructure:"max_concurrent_companies"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	RunTimeoutSecs int      `yaml:"run_timeout_secs" mapstructure:"run_timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DOSSIER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "dossier.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.run_timeout_secs", 600)
	v.SetDefault("batch.max_concurrent_companies", 4)
	v.SetDefault("notion.rate_per_sec", 3.0)
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev/v1")
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")

	v.SetDefault("research.tiered_enabled", true)
	v.SetDefault("research.research_skip_threshold", 0.3)
	v.SetDefault("research.news_skip_threshold", 0.6)
	v.SetDefault("research.stage_retries", 1)
	v.SetDefault("research.news_lookback_days", 180)
	v.SetDefault("research.deterministic_search", true)
	v.SetDefault("research.timeouts.identity", 90)
	v.SetDefault("research.timeouts.funding", 90)
	v.SetDefault("research.timeouts.profile", 90)
	v.SetDefault("research.timeouts.news", 45)
	v.SetDefault("research.timeouts.synthesis", 120)
	v.SetDefault("research.timeouts.legacy", 120)
	v.SetDefault("research.timeouts.probe", 10)
	v.SetDefault("research.models.identity.provider", "perplexity")
	v.SetDefault("research.models.identity.model", "sonar-pro")
	v.SetDefault("research.models.identity.max_tokens", 1200)
	v.SetDefault("research.models.funding.provider", "perplexity")
	v.SetDefault("research.models.funding.model", "sonar-pro")
	v.SetDefault("research.models.funding.max_tokens", 1200)
	v.SetDefault("research.models.profile.provider", "perplexity")
	v.SetDefault("research.models.profile.model", "sonar-pro")
	v.SetDefault("research.models.profile.max_tokens", 1600)
	v.SetDefault("research.models.synthesis.provider", "anthropic")
	v.SetDefault("research.models.synthesis.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("research.models.synthesis.max_tokens", 2500)
	v.SetDefault("research.models.legacy.provider", "perplexity")
	v.SetDefault("research.models.legacy.model", "sonar-pro")
	v.SetDefault("research.models.legacy.max_tokens", 1500)

	v.SetDefault("resilience.initial_backoff_ms", 500)
	v.SetDefault("resilience.max_backoff_ms", 10000)
	v.SetDefault("resilience.multiplier", 2.0)
	v.SetDefault("resilience.jitter_fraction", 0.25)
	v.SetDefault("resilience.failure_threshold", 5)
	v.SetDefault("resilience.reset_timeout_secs", 30)
	v.SetDefault("resilience.reasoner_rps", 2.0)

	v.SetDefault("pricing.perplexity.per_query", 0.005)
	v.SetDefault("pricing.perplexity.per_mtok", 1.0)
	v.SetDefault("pricing.jina.per_mtok", 0.02)
	v.SetDefault("pricing.firecrawl.per_page", 0.001)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Mode names the credential set a command needs.
type Mode string

const (
	ModeOffline  Mode = "offline"
	ModeResearch Mode = "research"
	ModeNotion   Mode = "notion"
)

// Validate checks that the settings required by mode are present.
func (c *Config) Validate(mode Mode) error {
	var missing []string
	switch mode {
	case ModeOffline:
	case ModeNotion:
		if c.Notion.Token == "" {
			missing = append(missing, "notion.token")
		}
		if c.Notion.CompanyDB == "" {
			missing = append(missing, "notion.company_db")
		}
		missing = append(missing, c.missingResearchKeys()...)
	default:
		missing = append(missing, c.missingResearchKeys()...)
	}

	r := c.Research
	if r.ResearchSkipThreshold < 0 || r.ResearchSkipThreshold > 1 {
		return eris.Errorf("config: research.research_skip_threshold %v outside [0,1]", r.ResearchSkipThreshold)
	}
	if r.NewsSkipThreshold < 0 || r.NewsSkipThreshold > 1 {
		return eris.Errorf("config: research.news_skip_threshold %v outside [0,1]", r.NewsSkipThreshold)
	}
	if r.StageRetries < 0 || r.StageRetries > 3 {
		return eris.Errorf("config: research.stage_retries %d outside [0,3]", r.StageRetries)
	}
	if n := c.Batch.MaxConcurrentCompanies; n < 1 || n > 50 {
		return eris.Errorf("config: batch.max_concurrent_companies must be between 1 and 50, got %d", n)
	}

	if len(missing) > 0 {
		return eris.Errorf("config: missing required keys: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (c *Config) missingResearchKeys() []string {
	var missing []string
	providers := map[string]bool{}
	for _, m := range []StageModel{
		c.Research.Models.Identity, c.Research.Models.Funding, c.Research.Models.Profile,
		c.Research.Models.Synthesis, c.Research.Models.Legacy,
	} {
		providers[m.Provider] = true
	}
	if providers["perplexity"] && c.Perplexity.Key == "" {
		missing = append(missing, "perplexity.key")
	}
	if providers["anthropic"] && c.Anthropic.Key == "" {
		missing = append(missing, "anthropic.key")
	}
	if c.Jina.Key == "" {
		missing = append(missing, "jina.key")
	}
	return missing
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
