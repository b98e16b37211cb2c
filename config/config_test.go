package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefaultsValidate(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 20.0, cfg.Risk.MaxDailyLossPercent)
	assert.Equal(t, 70.0, cfg.Risk.MaxCapitalLossPercent)
	assert.Equal(t, 0.02, cfg.Risk.MaxRiskPerTrade)
	assert.Equal(t, 0.6, cfg.Trading.ConfidenceThreshold)
	assert.Equal(t, 0.0003, cfg.Trading.MaxSpread)
	assert.Len(t, cfg.Trading.Instruments, 8)
	assert.Equal(t, 10000.0, cfg.Normal.StartingCapital)
	assert.Equal(t, 1, cfg.Normal.IdlePollSeconds)
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
use_simulation: true
risk:
  max_daily_loss_percent: 10
  max_capital_loss_percent: 50
  max_risk_per_trade: 0.01
  max_open_trades: 2
trading:
  instruments: ["EUR_USD"]
  max_spread: 0.0002
  confidence_threshold: 0.7
  stop_loss_percent: 0.01
  take_profit_percent: 0.02
  unit_scaling: 100
  candle_count: 30
  candle_granularity: "M5"
normal_config:
  scan_interval_seconds: 60
  idle_poll_seconds: 2
  starting_capital: 5000
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.True(t, cfg.UseSimulation)
	assert.Equal(t, 10.0, cfg.Risk.MaxDailyLossPercent)
	assert.Equal(t, []string{"EUR_USD"}, cfg.Trading.Instruments)
	assert.Equal(t, "M5", cfg.Trading.CandleGranularity)
	assert.Equal(t, 60, cfg.Normal.ScanIntervalSeconds)
	assert.Equal(t, 5000.0, cfg.Normal.StartingCapital)
	// Untouched sections keep their defaults.
	assert.Equal(t, "info", cfg.Logs.LogLevel)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestLoadConfigBadYAML(t *testing.T) {
	path := writeConfig(t, "risk: [not a mapping")
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero daily loss", func(c *Config) { c.Risk.MaxDailyLossPercent = 0 }},
		{"daily loss above 100", func(c *Config) { c.Risk.MaxDailyLossPercent = 150 }},
		{"risk per trade not a fraction", func(c *Config) { c.Risk.MaxRiskPerTrade = 1.5 }},
		{"no open trades allowed", func(c *Config) { c.Risk.MaxOpenTrades = 0 }},
		{"empty watchlist", func(c *Config) { c.Trading.Instruments = nil }},
		{"threshold out of range", func(c *Config) { c.Trading.ConfidenceThreshold = 1 }},
		{"negative spread ceiling", func(c *Config) { c.Trading.MaxSpread = -1 }},
		{"too few candles", func(c *Config) { c.Trading.CandleCount = 10 }},
		{"idle poll slower than scan", func(c *Config) { c.Normal.IdlePollSeconds = 60 }},
		{"zero starting capital", func(c *Config) { c.Normal.StartingCapital = 0 }},
		{"missing log level", func(c *Config) { c.Logs.LogLevel = "" }},
		{"missing risk block", func(c *Config) { c.Risk = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadEnvConfig(t *testing.T) {
	t.Setenv("OANDA_API_KEY", "key")
	t.Setenv("OANDA_ACCOUNT_ID", "001-004")
	t.Setenv("OANDA_BASE_URL", "")
	t.Setenv("TELEGRAM_BOT_TOKEN", "bot-token")
	t.Setenv("TELEGRAM_CHAT_ID", "12345")
	t.Setenv("HF_TOKEN", "hf-token")

	env := LoadEnvConfig()
	assert.Equal(t, "key", env.OandaAPIKey)
	assert.Equal(t, "001-004", env.OandaAccountID)
	assert.Equal(t, "https://api-fxpractice.oanda.com/v3", env.OandaBaseURL)
	assert.Equal(t, "bot-token", env.TelegramBotToken)
	assert.Equal(t, "12345", env.TelegramChatID)
	assert.Equal(t, "hf-token", env.SentimentToken)
}
