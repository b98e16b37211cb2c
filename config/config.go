// config/config.go
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// RiskConfig holds the capital-preservation limits. Loaded once at startup
// and immutable for the process lifetime.
type RiskConfig struct {
	MaxDailyLossPercent   float64 `yaml:"max_daily_loss_percent"`
	MaxCapitalLossPercent float64 `yaml:"max_capital_loss_percent"`
	MaxRiskPerTrade       float64 `yaml:"max_risk_per_trade"`
	MaxOpenTrades         int     `yaml:"max_open_trades"`
}

// TradingConfig holds the decision-engine parameters.
type TradingConfig struct {
	Instruments         []string `yaml:"instruments"`
	MaxSpread           float64  `yaml:"max_spread"`
	ConfidenceThreshold float64  `yaml:"confidence_threshold"`
	StopLossPercent     float64  `yaml:"stop_loss_percent"`
	TakeProfitPercent   float64  `yaml:"take_profit_percent"`
	UnitScaling         float64  `yaml:"unit_scaling"`
	CandleCount         int      `yaml:"candle_count"`
	CandleGranularity   string   `yaml:"candle_granularity"`
	MarketCacheSeconds  int      `yaml:"market_cache_seconds"`
}

// SentimentConfig controls the headline scraper and the remote inference call.
type SentimentConfig struct {
	Sources            []string `yaml:"sources"`
	ThrottleSeconds    int      `yaml:"throttle_seconds"`
	RequestsPerMinute  int      `yaml:"requests_per_minute"`
	HTTPTimeoutSeconds int      `yaml:"http_timeout_seconds"`
}

// LogConfig holds the configuration for logging.
type LogConfig struct {
	LogLevel   string `yaml:"log_level"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// NormalConfig holds general, non-strategy-specific configuration.
type NormalConfig struct {
	ScanIntervalSeconds      int    `yaml:"scan_interval_seconds"`
	IdlePollSeconds          int    `yaml:"idle_poll_seconds"`
	ErrorBackoffSeconds      int    `yaml:"error_backoff_seconds"`
	HeartbeatIntervalMinutes int    `yaml:"heartbeat_interval_minutes"`
	HTTPTimeoutSeconds       int    `yaml:"http_timeout_seconds"`
	LogDirectory             string `yaml:"log_directory"`
	StateDirectory           string `yaml:"state_directory"`
	JournalDirectory         string `yaml:"journal_directory"`
	MetricsListenAddr        string `yaml:"metrics_listen_addr"`
	StartingCapital          float64 `yaml:"starting_capital"`
}

// Config is the top-level configuration structure.
type Config struct {
	UseSimulation bool             `yaml:"use_simulation"`
	Risk          *RiskConfig      `yaml:"risk"`
	Trading       *TradingConfig   `yaml:"trading"`
	Sentiment     *SentimentConfig `yaml:"sentiment"`
	Normal        *NormalConfig    `yaml:"normal_config"`
	Logs          *LogConfig       `yaml:"logs"`
}

// NewConfig returns a Config with safe defaults. Strategy-critical values
// still have to come from the YAML file; Validate enforces that.
func NewConfig() *Config {
	return &Config{
		Risk: &RiskConfig{
			MaxDailyLossPercent:   20,
			MaxCapitalLossPercent: 70,
			MaxRiskPerTrade:       0.02,
			MaxOpenTrades:         3,
		},
		Trading: &TradingConfig{
			Instruments: []string{
				"EUR_USD", "GBP_USD", "USD_JPY", "AUD_USD",
				"USD_CAD", "EUR_GBP", "GBP_JPY", "EUR_JPY",
			},
			MaxSpread:           0.0003,
			ConfidenceThreshold: 0.6,
			StopLossPercent:     0.01,
			TakeProfitPercent:   0.02,
			UnitScaling:         100,
			CandleCount:         50,
			CandleGranularity:   "M15",
			MarketCacheSeconds:  30,
		},
		Sentiment: &SentimentConfig{
			ThrottleSeconds:    10,
			RequestsPerMinute:  5,
			HTTPTimeoutSeconds: 10,
		},
		Normal: &NormalConfig{
			ScanIntervalSeconds:      30,
			IdlePollSeconds:          1,
			ErrorBackoffSeconds:      5,
			HeartbeatIntervalMinutes: 30,
			HTTPTimeoutSeconds:       15,
			LogDirectory:             "logs",
			StateDirectory:           "data",
			JournalDirectory:         "data",
			MetricsListenAddr:        ":9110",
			StartingCapital:          10000,
		},
		Logs: &LogConfig{
			LogLevel:   "info",
			MaxSizeMB:  20,
			MaxBackups: 5,
			MaxAgeDays: 14,
		},
	}
}

// LoadConfig loads configuration from a given path, applies defaults, and
// validates it.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found at %s", path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the logical consistency and completeness of the configuration.
func (c *Config) Validate() error {
	if c.Risk == nil || c.Trading == nil || c.Sentiment == nil || c.Normal == nil || c.Logs == nil {
		return fmt.Errorf("config error: all of 'risk', 'trading', 'sentiment', 'normal_config' and 'logs' blocks must be present")
	}
	if c.Risk.MaxDailyLossPercent <= 0 || c.Risk.MaxDailyLossPercent > 100 {
		return fmt.Errorf("config error: risk.max_daily_loss_percent must be in (0, 100]")
	}
	if c.Risk.MaxCapitalLossPercent <= 0 || c.Risk.MaxCapitalLossPercent > 100 {
		return fmt.Errorf("config error: risk.max_capital_loss_percent must be in (0, 100]")
	}
	if c.Risk.MaxRiskPerTrade <= 0 || c.Risk.MaxRiskPerTrade >= 1 {
		return fmt.Errorf("config error: risk.max_risk_per_trade must be a fraction in (0, 1)")
	}
	if c.Risk.MaxOpenTrades <= 0 {
		return fmt.Errorf("config error: risk.max_open_trades must be positive")
	}
	if len(c.Trading.Instruments) == 0 {
		return fmt.Errorf("config error: trading.instruments must list at least one instrument")
	}
	if c.Trading.MaxSpread <= 0 {
		return fmt.Errorf("config error: trading.max_spread must be positive")
	}
	if c.Trading.ConfidenceThreshold <= 0 || c.Trading.ConfidenceThreshold >= 1 {
		return fmt.Errorf("config error: trading.confidence_threshold must be in (0, 1)")
	}
	if c.Trading.StopLossPercent <= 0 || c.Trading.TakeProfitPercent <= 0 {
		return fmt.Errorf("config error: trading stop-loss and take-profit percentages must be positive")
	}
	if c.Trading.UnitScaling <= 0 {
		return fmt.Errorf("config error: trading.unit_scaling must be positive")
	}
	if c.Trading.CandleCount < 20 {
		return fmt.Errorf("config error: trading.candle_count must be at least 20 for the technical indicators")
	}
	if c.Normal.ScanIntervalSeconds <= 0 {
		return fmt.Errorf("config error: normal_config.scan_interval_seconds must be positive")
	}
	if c.Normal.IdlePollSeconds <= 0 {
		return fmt.Errorf("config error: normal_config.idle_poll_seconds must be positive")
	}
	if c.Normal.IdlePollSeconds >= c.Normal.ScanIntervalSeconds {
		return fmt.Errorf("config error: idle_poll_seconds must be shorter than scan_interval_seconds")
	}
	if c.Normal.StartingCapital <= 0 {
		return fmt.Errorf("config error: normal_config.starting_capital must be positive")
	}
	if c.Normal.LogDirectory == "" || c.Normal.StateDirectory == "" || c.Normal.JournalDirectory == "" {
		return fmt.Errorf("config error: normal_config log/state/journal directories must be set")
	}
	if c.Logs.LogLevel == "" {
		return fmt.Errorf("config error: logs.log_level must be set (e.g. 'info', 'debug')")
	}
	return nil
}

// EnvConfig carries the secrets that never live in the YAML file.
type EnvConfig struct {
	OandaAPIKey      string
	OandaAccountID   string
	OandaBaseURL     string
	TelegramBotToken string
	TelegramChatID   string
	SentimentToken   string
}

// LoadEnvConfig reads the secrets from the environment. Missing values are
// validated by the orchestrator depending on simulation mode.
func LoadEnvConfig() *EnvConfig {
	baseURL := os.Getenv("OANDA_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api-fxpractice.oanda.com/v3"
	}
	return &EnvConfig{
		OandaAPIKey:      os.Getenv("OANDA_API_KEY"),
		OandaAccountID:   os.Getenv("OANDA_ACCOUNT_ID"),
		OandaBaseURL:     baseURL,
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:   os.Getenv("TELEGRAM_CHAT_ID"),
		SentimentToken:   os.Getenv("HF_TOKEN"),
	}
}
