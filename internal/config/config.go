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
	Env       string          `yaml:"env" mapstructure:"env"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Scrape    ScrapeConfig    `yaml:"scrape" mapstructure:"scrape"`
	Verify    VerifyConfig    `yaml:"verify" mapstructure:"verify"`
	Review    ReviewConfig    `yaml:"review" mapstructure:"review"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Schedule  ScheduleConfig  `yaml:"schedule" mapstructure:"schedule"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds classifier service settings.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	Model       string `yaml:"model" mapstructure:"model"`
	ReviewModel string `yaml:"review_model" mapstructure:"review_model"`
	MaxTokens   int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// ScrapeConfig configures vendor page fetching.
type ScrapeConfig struct {
	TimeoutSecs     int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent       string `yaml:"user_agent" mapstructure:"user_agent"`
	HostIntervalMS  int    `yaml:"host_interval_ms" mapstructure:"host_interval_ms"`
	CheckWorkers    int    `yaml:"check_workers" mapstructure:"check_workers"`
	MaxBodyBytes    int64  `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	MaxExcerptChars int    `yaml:"max_excerpt_chars" mapstructure:"max_excerpt_chars"`
	UpdateChunkSize int    `yaml:"update_chunk_size" mapstructure:"update_chunk_size"`
}

// VerifyConfig configures the Tier-2 AI verification pass.
type VerifyConfig struct {
	Workers        int     `yaml:"workers" mapstructure:"workers"`
	BacklogCap     int     `yaml:"backlog_cap" mapstructure:"backlog_cap"`
	PriceTolerance float64 `yaml:"price_tolerance" mapstructure:"price_tolerance"`
}

// ReviewConfig configures the self-review learning loop.
type ReviewConfig struct {
	MinDecisions  int `yaml:"min_decisions" mapstructure:"min_decisions"`
	RecentWindow  int `yaml:"recent_window" mapstructure:"recent_window"`
	MaxNotes      int `yaml:"max_notes" mapstructure:"max_notes"`
	MinNoteLength int `yaml:"min_note_length" mapstructure:"min_note_length"`
}

// ServerConfig configures the job-trigger HTTP server.
type ServerConfig struct {
	Port   int    `yaml:"port" mapstructure:"port"`
	Secret string `yaml:"secret" mapstructure:"secret"`
}

// ScheduleConfig holds cron expressions for the in-process scheduler.
type ScheduleConfig struct {
	Check  string `yaml:"check" mapstructure:"check"`
	Verify string `yaml:"verify" mapstructure:"verify"`
	Review string `yaml:"review" mapstructure:"review"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Production reports whether the process runs with production settings.
// An unset job-trigger secret is tolerated only outside production.
func (c *Config) Production() bool {
	return strings.EqualFold(c.Env, "production")
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("STOCKWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("env", "development")
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.review_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("scrape.timeout_secs", 12)
	v.SetDefault("scrape.user_agent", "StockwatchBot/1.0 (+https://peptide-index.com/bot)")
	v.SetDefault("scrape.host_interval_ms", 800)
	v.SetDefault("scrape.check_workers", 4)
	v.SetDefault("scrape.max_body_bytes", 1024*1024)
	v.SetDefault("scrape.max_excerpt_chars", 3000)
	v.SetDefault("scrape.update_chunk_size", 50)
	v.SetDefault("verify.workers", 2)
	v.SetDefault("verify.backlog_cap", 50)
	v.SetDefault("verify.price_tolerance", 0.10)
	v.SetDefault("review.min_decisions", 10)
	v.SetDefault("review.recent_window", 100)
	v.SetDefault("review.max_notes", 3)
	v.SetDefault("review.min_note_length", 20)
	v.SetDefault("schedule.check", "0 */6 * * *")
	v.SetDefault("schedule.verify", "30 4 * * *")
	v.SetDefault("schedule.review", "0 5 * * 0")

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
