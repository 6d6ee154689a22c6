package config

import (
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Ingest     IngestConfig     `yaml:"ingest" mapstructure:"ingest"`
	Stealth    StealthConfig    `yaml:"stealth" mapstructure:"stealth"`
	Consensus  ConsensusConfig  `yaml:"consensus" mapstructure:"consensus"`
	Breaker    BreakerConfig    `yaml:"breaker" mapstructure:"breaker"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// IngestConfig configures one ingestion cycle.
type IngestConfig struct {
	Sources          []string `yaml:"sources" mapstructure:"sources"`
	TimeoutSecs      int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	NavTimeoutSecs   int      `yaml:"nav_timeout_secs" mapstructure:"nav_timeout_secs"`
	ConsentTimeoutMs int      `yaml:"consent_timeout_ms" mapstructure:"consent_timeout_ms"`
	MaxItems         int      `yaml:"max_items" mapstructure:"max_items"`
	Concurrency      int      `yaml:"concurrency" mapstructure:"concurrency"`
	DedupPath        string   `yaml:"dedup_path" mapstructure:"dedup_path"`
	DedupCapacity    int      `yaml:"dedup_capacity" mapstructure:"dedup_capacity"`
}

// Timeout is the per-source budget.
func (c IngestConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// StealthConfig configures browsing sessions.
type StealthConfig struct {
	Driver         string   `yaml:"driver" mapstructure:"driver"`
	ControlURL     string   `yaml:"control_url" mapstructure:"control_url"`
	Bin            string   `yaml:"bin" mapstructure:"bin"`
	Headless       bool     `yaml:"headless" mapstructure:"headless"`
	UserAgents     []string `yaml:"user_agents" mapstructure:"user_agents"`
	AcceptLanguage string   `yaml:"accept_language" mapstructure:"accept_language"`
	DelayMinMs     int      `yaml:"delay_min_ms" mapstructure:"delay_min_ms"`
	DelayMaxMs     int      `yaml:"delay_max_ms" mapstructure:"delay_max_ms"`
}

// ConsensusConfig tunes the reduction.
type ConsensusConfig struct {
	AgreementFraction float64      `yaml:"agreement_fraction" mapstructure:"agreement_fraction"`
	Bands             []BandConfig `yaml:"bands" mapstructure:"bands"`
}

// BandConfig labels consensus values below Upper. A zero Upper on the last
// band leaves it open-ended.
type BandConfig struct {
	Name  string  `yaml:"name" mapstructure:"name"`
	Upper float64 `yaml:"upper" mapstructure:"upper"`
}

// BreakerConfig configures per-source circuit breakers. They are off by
// default so every cycle attempts every source.
type BreakerConfig struct {
	Enabled      bool `yaml:"enabled" mapstructure:"enabled"`
	Threshold    int  `yaml:"threshold" mapstructure:"threshold"`
	CooldownSecs int  `yaml:"cooldown_secs" mapstructure:"cooldown_secs"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// ServerConfig configures the HTTP trigger.
type ServerConfig struct {
	Port                  int      `yaml:"port" mapstructure:"port"`
	IngestMinIntervalSecs int      `yaml:"ingest_min_interval_secs" mapstructure:"ingest_min_interval_secs"`
	AllowedOrigins        []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// MonitoringConfig configures health checks over recent cycles.
type MonitoringConfig struct {
	WebhookURL              string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs       int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackCycles          int     `yaml:"lookback_cycles" mapstructure:"lookback_cycles"`
	MinCycles               int     `yaml:"min_cycles" mapstructure:"min_cycles"`
	SuccessRateThreshold    float64 `yaml:"success_rate_threshold" mapstructure:"success_rate_threshold"`
	ZeroSampleRateThreshold float64 `yaml:"zero_sample_rate_threshold" mapstructure:"zero_sample_rate_threshold"`
}

var (
	knownStealthDrivers = []string{"rod", "http"}
	knownStoreDrivers   = []string{"sqlite", "postgres"}
)

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("MARKET_INGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Every key needs one, even if empty: AutomaticEnv only
	// overrides keys viper already knows.
	v.SetDefault("ingest.sources", []string{"yahoo", "marketwatch", "cnbc", "investing", "google"})
	v.SetDefault("ingest.timeout_secs", 45)
	v.SetDefault("ingest.nav_timeout_secs", 20)
	v.SetDefault("ingest.consent_timeout_ms", 2000)
	v.SetDefault("ingest.max_items", 10)
	v.SetDefault("ingest.concurrency", 0)
	v.SetDefault("ingest.dedup_path", "data/seen.json")
	v.SetDefault("ingest.dedup_capacity", 1000)
	v.SetDefault("stealth.driver", "rod")
	v.SetDefault("stealth.control_url", "")
	v.SetDefault("stealth.bin", "")
	v.SetDefault("stealth.headless", true)
	v.SetDefault("stealth.user_agents", []string{})
	v.SetDefault("stealth.accept_language", "en-US,en;q=0.9")
	v.SetDefault("stealth.delay_min_ms", 800)
	v.SetDefault("stealth.delay_max_ms", 2500)
	v.SetDefault("consensus.agreement_fraction", 0.05)
	v.SetDefault("consensus.bands", []BandConfig{})
	v.SetDefault("breaker.enabled", false)
	v.SetDefault("breaker.threshold", 3)
	v.SetDefault("breaker.cooldown_secs", 600)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "data/market-ingest.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.ingest_min_interval_secs", 30)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_cycles", 20)
	v.SetDefault("monitoring.min_cycles", 3)
	v.SetDefault("monitoring.success_rate_threshold", 0.5)
	v.SetDefault("monitoring.zero_sample_rate_threshold", 0.25)

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

// Validate checks the settings a command mode depends on. Modes: "run",
// "serve", "dedup".
func (c *Config) Validate(mode string) error {
	var problems []string
	switch mode {
	case "run":
		problems = c.ingestProblems()
	case "serve":
		problems = c.ingestProblems()
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		if c.Server.IngestMinIntervalSecs < 0 {
			problems = append(problems, "server.ingest_min_interval_secs must be >= 0")
		}
	case "dedup":
		if c.Ingest.DedupCapacity <= 0 {
			problems = append(problems, "ingest.dedup_capacity must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}
	if len(problems) > 0 {
		return eris.Errorf("config: invalid: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) ingestProblems() []string {
	var problems []string
	if len(c.Ingest.Sources) == 0 {
		problems = append(problems, "ingest.sources is empty")
	}
	if c.Ingest.TimeoutSecs <= 0 {
		problems = append(problems, "ingest.timeout_secs must be > 0")
	}
	if c.Ingest.NavTimeoutSecs <= 0 {
		problems = append(problems, "ingest.nav_timeout_secs must be > 0")
	}
	if c.Ingest.DedupCapacity <= 0 {
		problems = append(problems, "ingest.dedup_capacity must be > 0")
	}
	if c.Ingest.MaxItems < 0 {
		problems = append(problems, "ingest.max_items must be >= 0")
	}
	if c.Stealth.DelayMinMs < 0 || c.Stealth.DelayMaxMs < c.Stealth.DelayMinMs {
		problems = append(problems, "stealth delay range must satisfy 0 <= delay_min_ms <= delay_max_ms")
	}
	if !slices.Contains(knownStealthDrivers, c.Stealth.Driver) {
		problems = append(problems, "stealth.driver must be one of "+strings.Join(knownStealthDrivers, ", "))
	}
	if !slices.Contains(knownStoreDrivers, c.Store.Driver) {
		problems = append(problems, "store.driver must be one of "+strings.Join(knownStoreDrivers, ", "))
	}
	if c.Consensus.AgreementFraction < 0 {
		problems = append(problems, "consensus.agreement_fraction must be >= 0")
	}
	if c.Breaker.Enabled && c.Breaker.Threshold <= 0 {
		problems = append(problems, "breaker.threshold must be > 0")
	}
	return problems
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
