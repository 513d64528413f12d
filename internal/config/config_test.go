package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "full", cfg.Mode)
	assert.True(t, cfg.Trade.DryRun)
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "yolo"
	cfg.Risk.BaseRiskPercent = 0
	cfg.Strategy.Symbol = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown mode "yolo"`)
	assert.Contains(t, err.Error(), "base_risk_percent")
	assert.Contains(t, err.Error(), "symbol must not be empty")
}

func TestValidateLiveTradingRequiresCredentials(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.Trade.DryRun = false

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encrypted_key_path")

	cfg.Bybit.ApiKey = "key"
	cfg.Bybit.ApiSecret = "secret"
	require.NoError(t, cfg.Validate())
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("REGIMEBOT_BYBIT_API_KEY", "env-key")
	t.Setenv("REGIMEBOT_STRATEGY_SYMBOL", "ETHUSDT")
	t.Setenv("REGIMEBOT_NEWS_POLL_INTERVAL", "15m")
	t.Setenv("REGIMEBOT_TRADE_DRY_RUN", "false")
	t.Setenv("REGIMEBOT_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	assert.Equal(t, "env-key", cfg.Bybit.ApiKey)
	assert.Equal(t, "ETHUSDT", cfg.Strategy.Symbol)
	assert.Equal(t, 15*time.Minute, cfg.News.PollInterval.Duration)
	assert.False(t, cfg.Trade.DryRun)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Bybit.ApiSecret = "topsecret"
	cfg.News.ApiKey = "newskey"
	cfg.Postgres.Password = "pgpass"
	cfg.Notify.TelegramToken = "tok"

	red := RedactedConfig(&cfg)

	assert.Equal(t, "***", red.Bybit.ApiSecret)
	assert.Equal(t, "***", red.News.ApiKey)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Notify.TelegramToken)
	// Original untouched.
	assert.Equal(t, "topsecret", cfg.Bybit.ApiSecret)

	// Empty secrets stay empty rather than becoming "***".
	assert.Empty(t, red.Redis.Password)

	// Slice copies are independent.
	red.Notify.Events[0] = "changed"
	assert.Equal(t, "regime_transition", cfg.Notify.Events[0])
}

func TestDurationRoundTrip(t *testing.T) {
	var d duration
	require.NoError(t, d.UnmarshalText([]byte("90s")))
	assert.Equal(t, 90*time.Second, d.Duration)

	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(text))

	assert.Error(t, d.UnmarshalText([]byte("not-a-duration")))
}
