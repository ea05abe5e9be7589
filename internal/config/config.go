package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Fetch      FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
	Ingest     IngestConfig     `yaml:"ingest" mapstructure:"ingest"`
	Archive    ArchiveConfig    `yaml:"archive" mapstructure:"archive"`
	Dedup      DedupConfig      `yaml:"dedup" mapstructure:"dedup"`
	Evaluate   EvaluateConfig   `yaml:"evaluate" mapstructure:"evaluate"`
	Digest     DigestConfig     `yaml:"digest" mapstructure:"digest"`
	Feedback   FeedbackConfig   `yaml:"feedback" mapstructure:"feedback"`
	Discovery  DiscoveryConfig  `yaml:"discovery" mapstructure:"discovery"`
	Schedule   ScheduleConfig   `yaml:"schedule" mapstructure:"schedule"`
	Kafka      KafkaConfig      `yaml:"kafka" mapstructure:"kafka"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// AnthropicConfig holds Anthropic API settings. The classifier model serves
// field recovery and source validation; the reasoning model writes rationales,
// narratives, and calibration analysis.
type AnthropicConfig struct {
	Key             string `yaml:"key" mapstructure:"key"`
	ClassifierModel string `yaml:"classifier_model" mapstructure:"classifier_model"`
	ReasoningModel  string `yaml:"reasoning_model" mapstructure:"reasoning_model"`
	MaxTokens       int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	FailureLimit    int    `yaml:"failure_limit" mapstructure:"failure_limit"`
}

// Enabled reports whether an API key is configured.
func (c AnthropicConfig) Enabled() bool {
	return c.Key != ""
}

// FetchConfig configures outbound HTTP.
type FetchConfig struct {
	UserAgent       string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs     int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	PolitenessMS    int    `yaml:"politeness_ms" mapstructure:"politeness_ms"`
	HostConcurrency int    `yaml:"host_concurrency" mapstructure:"host_concurrency"`
	MaxRedirects    int    `yaml:"max_redirects" mapstructure:"max_redirects"`
	PageCap         int    `yaml:"page_cap" mapstructure:"page_cap"`
	TempDir         string `yaml:"temp_dir" mapstructure:"temp_dir"`
}

// IngestConfig configures the daily ingestion run.
type IngestConfig struct {
	BrokenAfter    int  `yaml:"broken_after" mapstructure:"broken_after"`
	EscalateToLLM  bool `yaml:"escalate_to_llm" mapstructure:"escalate_to_llm"`
	ArchivePayload bool `yaml:"archive_payload" mapstructure:"archive_payload"`
}

// ArchiveConfig configures the optional S3 payload archive.
type ArchiveConfig struct {
	Bucket   string `yaml:"bucket" mapstructure:"bucket"`
	Prefix   string `yaml:"prefix" mapstructure:"prefix"`
	Region   string `yaml:"region" mapstructure:"region"`
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
}

// DedupConfig tunes cross-source duplicate detection.
type DedupConfig struct {
	TitleThreshold       float64 `yaml:"title_threshold" mapstructure:"title_threshold"`
	ClosingToleranceDays int     `yaml:"closing_tolerance_days" mapstructure:"closing_tolerance_days"`
	LookbackDays         int     `yaml:"lookback_days" mapstructure:"lookback_days"`
}

// EvaluateConfig tunes the scoring sweep.
type EvaluateConfig struct {
	Concurrency int  `yaml:"concurrency" mapstructure:"concurrency"`
	Rationale   bool `yaml:"rationale" mapstructure:"rationale"`
}

// DigestConfig tunes the daily digest.
type DigestConfig struct {
	TopN            int      `yaml:"top_n" mapstructure:"top_n"`
	ResurfaceDays   int      `yaml:"resurface_days" mapstructure:"resurface_days"`
	ClosingSoonDays int      `yaml:"closing_soon_days" mapstructure:"closing_soon_days"`
	Sinks           []string `yaml:"sinks" mapstructure:"sinks"`
	WebhookURL      string   `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// FeedbackConfig tunes the calibration loop.
type FeedbackConfig struct {
	WindowDays          int `yaml:"window_days" mapstructure:"window_days"`
	DecisionThreshold   int `yaml:"decision_threshold" mapstructure:"decision_threshold"`
	ReEvaluateSinceDays int `yaml:"re_evaluate_since_days" mapstructure:"re_evaluate_since_days"`
}

// Hub is a page discovery crawls for candidate feeds and listings.
type Hub struct {
	URL          string   `yaml:"url" mapstructure:"url"`
	Jurisdiction string   `yaml:"jurisdiction" mapstructure:"jurisdiction"`
	Organisation string   `yaml:"organisation" mapstructure:"organisation"`
	Keywords     []string `yaml:"keywords" mapstructure:"keywords"`
}

// DiscoveryConfig lists the hub pages crawled weekly.
type DiscoveryConfig struct {
	Hubs          []Hub    `yaml:"hubs" mapstructure:"hubs"`
	HostBlocklist []string `yaml:"host_blocklist" mapstructure:"host_blocklist"`
	MaxPerHub     int      `yaml:"max_per_hub" mapstructure:"max_per_hub"`
}

// ScheduleConfig holds cron specs per stage, evaluated in Timezone.
type ScheduleConfig struct {
	Timezone  string `yaml:"timezone" mapstructure:"timezone"`
	Discovery string `yaml:"discovery" mapstructure:"discovery"`
	Ingestion string `yaml:"ingestion" mapstructure:"ingestion"`
	Feedback  string `yaml:"feedback" mapstructure:"feedback"`
	Threshold string `yaml:"threshold_check" mapstructure:"threshold_check"`
}

// KafkaConfig configures the digest hand-off topic.
type KafkaConfig struct {
	Brokers     []string `yaml:"brokers" mapstructure:"brokers"`
	DigestTopic string   `yaml:"digest_topic" mapstructure:"digest_topic"`
}

// MonitoringConfig configures source-health alerting.
type MonitoringConfig struct {
	WebhookURL         string `yaml:"webhook_url" mapstructure:"webhook_url"`
	LookbackHours      int    `yaml:"lookback_hours" mapstructure:"lookback_hours"`
	FailedSourcesAlert int    `yaml:"failed_sources_alert" mapstructure:"failed_sources_alert"`
	CheckIntervalSecs  int    `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// ServerConfig configures the decision intake API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from an optional ./config.yaml and environment.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile reads configuration from path and environment. An empty path
// falls back to an optional ./config.yaml; an explicit path must exist.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("TENDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "tender-intel.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("anthropic.classifier_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.reasoning_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("anthropic.failure_limit", 3)
	v.SetDefault("fetch.user_agent", "5ML-TenderIntel/1.0")
	v.SetDefault("fetch.timeout_secs", 15)
	v.SetDefault("fetch.politeness_ms", 1500)
	v.SetDefault("fetch.host_concurrency", 4)
	v.SetDefault("fetch.max_redirects", 5)
	v.SetDefault("fetch.page_cap", 3)
	v.SetDefault("fetch.temp_dir", "/tmp/tender-intel")
	v.SetDefault("ingest.broken_after", 3)
	v.SetDefault("ingest.escalate_to_llm", true)
	v.SetDefault("ingest.archive_payload", false)
	v.SetDefault("archive.prefix", "raw")
	v.SetDefault("archive.region", "ap-east-1")
	v.SetDefault("dedup.title_threshold", 0.85)
	v.SetDefault("dedup.closing_tolerance_days", 2)
	v.SetDefault("dedup.lookback_days", 90)
	v.SetDefault("evaluate.concurrency", 8)
	v.SetDefault("evaluate.rationale", true)
	v.SetDefault("discovery.host_blocklist", []string{"facebook.com", "twitter.com", "x.com", "instagram.com", "youtube.com", "linkedin.com", "weibo.com", "whatsapp.com"})
	v.SetDefault("discovery.max_per_hub", 50)
	v.SetDefault("digest.top_n", 10)
	v.SetDefault("digest.resurface_days", 7)
	v.SetDefault("digest.closing_soon_days", 7)
	v.SetDefault("feedback.window_days", 90)
	v.SetDefault("feedback.decision_threshold", 10)
	v.SetDefault("feedback.re_evaluate_since_days", 30)
	v.SetDefault("schedule.timezone", "Asia/Hong_Kong")
	v.SetDefault("schedule.discovery", "0 2 * * 1")
	v.SetDefault("schedule.ingestion", "0 3 * * *")
	v.SetDefault("schedule.feedback", "0 5 * * 0")
	v.SetDefault("schedule.threshold_check", "30 5 * * *")
	v.SetDefault("kafka.digest_topic", "tender-digests")
	v.SetDefault("monitoring.lookback_hours", 24)
	v.SetDefault("monitoring.failed_sources_alert", 3)
	v.SetDefault("monitoring.check_interval_secs", 900)

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
