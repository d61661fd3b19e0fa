// Package config loads daemon configuration from YAML files and
// environment variables via viper.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all daemon configuration.
type Config struct {
	App        AppConfig              `mapstructure:"app"`
	Database   DatabaseConfig         `mapstructure:"database"`
	Redis      RedisConfig            `mapstructure:"redis"`
	LLM        LLMConfig              `mapstructure:"llm"`
	Trading    TradingConfig          `mapstructure:"trading"`
	Venues     map[string]VenueConfig `mapstructure:"venues"`
	Monitoring MonitoringConfig       `mapstructure:"monitoring"`
}

// AppConfig contains application-level settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
}

// DatabaseConfig contains PostgreSQL settings.
type DatabaseConfig struct {
	DSN              string `mapstructure:"dsn"`
	PoolSize         int    `mapstructure:"pool_size"`
	PoolMaxOverflow  int    `mapstructure:"pool_max_overflow"`
	PoolRecycleSecs  int    `mapstructure:"pool_recycle_seconds"`
	ConnectTimeoutMS int    `mapstructure:"connect_timeout_ms"`
	StatementTimeout int    `mapstructure:"statement_timeout_ms"`
	LockTimeout      int    `mapstructure:"lock_timeout_ms"`
}

// RedisConfig contains the broadcast sink settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Enabled  bool   `mapstructure:"enabled"`
}

// LLMConfig contains structured-output chat settings.
type LLMConfig struct {
	DefaultProvider string            `mapstructure:"default_provider"`
	DefaultModel    string            `mapstructure:"default_model"`
	APIKeys         map[string]string `mapstructure:"api_keys"`  // provider -> key
	Endpoints       map[string]string `mapstructure:"endpoints"` // provider -> chat completions URL
	Temperature     float64           `mapstructure:"temperature"`
	MaxTokens       int               `mapstructure:"max_tokens"`
	TimeoutMS       int               `mapstructure:"timeout_ms"`
}

// TradingConfig contains council pipeline settings.
type TradingConfig struct {
	ScheduleIntervalSecs  int      `mapstructure:"schedule_interval_seconds"`
	ConsensusThreshold    float64  `mapstructure:"consensus_threshold"`
	MinConfidenceForTrade float64  `mapstructure:"min_confidence_for_trade"`
	MaxPositionPct        float64  `mapstructure:"max_position_pct"`
	ErrorBackoffSecs      int      `mapstructure:"error_backoff_seconds"`
	AgentPoolSize         int      `mapstructure:"agent_pool_size"`
	AgentTimeoutMS        int      `mapstructure:"agent_timeout_ms"`
	Symbols               []string `mapstructure:"symbols"`
}

// VenueConfig contains venue-specific settings.
type VenueConfig struct {
	APIKey         string  `mapstructure:"api_key"`
	SecretKey      string  `mapstructure:"secret_key"`
	Testnet        bool    `mapstructure:"testnet"`
	TimeoutMS      int     `mapstructure:"timeout_ms"`
	RequestsPerSec float64 `mapstructure:"requests_per_sec"`
	TakerFee       float64 `mapstructure:"taker_fee"`
}

// MonitoringConfig contains metrics settings.
type MonitoringConfig struct {
	PrometheusPort int  `mapstructure:"prometheus_port"`
	EnableMetrics  bool `mapstructure:"enable_metrics"`
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("QUORUM")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file; defaults and environment only.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "quorumtrade")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("database.dsn", "postgres://postgres@localhost:5432/quorumtrade?sslmode=disable")
	v.SetDefault("database.pool_size", 10)
	v.SetDefault("database.pool_max_overflow", 5)
	v.SetDefault("database.pool_recycle_seconds", 1800)
	v.SetDefault("database.connect_timeout_ms", 5000)
	v.SetDefault("database.statement_timeout_ms", 30000)
	v.SetDefault("database.lock_timeout_ms", 10000)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.enabled", false)

	v.SetDefault("llm.default_provider", "anthropic")
	v.SetDefault("llm.default_model", "claude-sonnet-4-20250514")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 2000)
	v.SetDefault("llm.timeout_ms", 30000)

	v.SetDefault("trading.schedule_interval_seconds", 14400)
	v.SetDefault("trading.consensus_threshold", 0.6)
	v.SetDefault("trading.min_confidence_for_trade", 0.5)
	v.SetDefault("trading.max_position_pct", 0.2)
	v.SetDefault("trading.error_backoff_seconds", 60)
	v.SetDefault("trading.agent_pool_size", 8)
	v.SetDefault("trading.agent_timeout_ms", 30000)
	v.SetDefault("trading.symbols", []string{"BTCUSDT", "ETHUSDT"})

	v.SetDefault("venues.binance.timeout_ms", 30000)
	v.SetDefault("venues.binance.requests_per_sec", 10)
	v.SetDefault("venues.binance.taker_fee", 0.0)

	v.SetDefault("monitoring.prometheus_port", 9100)
	v.SetDefault("monitoring.enable_metrics", true)
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Trading.ConsensusThreshold <= 0 || c.Trading.ConsensusThreshold > 1 {
		return fmt.Errorf("trading.consensus_threshold must be in (0,1], got %f", c.Trading.ConsensusThreshold)
	}
	if c.Trading.MinConfidenceForTrade < 0 || c.Trading.MinConfidenceForTrade > 1 {
		return fmt.Errorf("trading.min_confidence_for_trade must be in [0,1], got %f", c.Trading.MinConfidenceForTrade)
	}
	if c.Trading.MaxPositionPct <= 0 || c.Trading.MaxPositionPct > 1 {
		return fmt.Errorf("trading.max_position_pct must be in (0,1], got %f", c.Trading.MaxPositionPct)
	}
	if c.Trading.ScheduleIntervalSecs <= 0 {
		return fmt.Errorf("trading.schedule_interval_seconds must be positive")
	}
	if c.Trading.AgentPoolSize <= 0 {
		return fmt.Errorf("trading.agent_pool_size must be positive")
	}
	return nil
}

// ScheduleInterval returns the per-council cycle interval.
func (c *TradingConfig) ScheduleInterval() time.Duration {
	return time.Duration(c.ScheduleIntervalSecs) * time.Second
}

// ErrorBackoff returns the per-council failure back-off.
func (c *TradingConfig) ErrorBackoff() time.Duration {
	return time.Duration(c.ErrorBackoffSecs) * time.Second
}

// AgentTimeout returns the per-agent invocation timeout.
func (c *TradingConfig) AgentTimeout() time.Duration {
	return time.Duration(c.AgentTimeoutMS) * time.Millisecond
}

// Timeout returns the LLM request timeout.
func (c *LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// Timeout returns the venue request timeout.
func (c *VenueConfig) Timeout() time.Duration {
	if c.TimeoutMS <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutMS) * time.Millisecond
}
