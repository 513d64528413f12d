// Package config defines the top-level configuration for the regime bot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by REGIMEBOT_* environment
// variables.
type Config struct {
	Bybit    BybitConfig    `toml:"bybit"`
	Macro    MacroConfig    `toml:"macro"`
	News     NewsConfig     `toml:"news"`
	Regime   RegimeConfig   `toml:"regime"`
	Strategy StrategyConfig `toml:"strategy"`
	Risk     RiskConfig     `toml:"risk"`
	Trade    TradeConfig    `toml:"trade"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// BybitConfig holds exchange endpoints and API credentials. Credentials may
// be given directly or via an encrypted key file.
type BybitConfig struct {
	BaseURL          string `toml:"base_url"`
	WSURL            string `toml:"ws_url"`
	ApiKey           string `toml:"api_key"`
	ApiSecret        string `toml:"api_secret"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
	RecvWindowMs     int64  `toml:"recv_window_ms"`
}

// MacroConfig holds the macro indicator polling parameters.
type MacroConfig struct {
	DXYURL       string   `toml:"dxy_url"`
	GlobalURL    string   `toml:"global_url"`
	PollInterval duration `toml:"poll_interval"`
}

// NewsConfig holds the news polling parameters.
type NewsConfig struct {
	BaseURL      string   `toml:"base_url"`
	ApiKey       string   `toml:"api_key"`
	Query        string   `toml:"query"`
	PollInterval duration `toml:"poll_interval"`
}

// RegimeConfig holds the regime state machine parameters.
type RegimeConfig struct {
	ConfidenceThreshold float64  `toml:"confidence_threshold"`
	MinTimeInState      duration `toml:"min_time_in_state"`
	EvalInterval        duration `toml:"eval_interval"`
}

// StrategyConfig holds the signal generator parameters.
type StrategyConfig struct {
	Symbol            string   `toml:"symbol"`
	KlineInterval     string   `toml:"kline_interval"`
	BackfillCandles   int      `toml:"backfill_candles"`
	EvalInterval      duration `toml:"eval_interval"`
	MinConfidence     float64  `toml:"min_confidence"`
	TriggerMaxAge     duration `toml:"trigger_max_age"`
	StopBufferPercent float64  `toml:"stop_buffer_percent"`
	OrderFlowVeto     float64  `toml:"orderflow_veto"`
	FallbackTargetR   float64  `toml:"fallback_target_r"`
	ProximityMaxPct   float64  `toml:"proximity_max_percent"`
}

// RiskConfig holds the position sizer limits.
type RiskConfig struct {
	BaseRiskPercent     float64 `toml:"base_risk_percent"`
	MinRiskReward       float64 `toml:"min_risk_reward"`
	MaxOpenPositions    int     `toml:"max_open_positions"`
	MaxDailyLossPercent float64 `toml:"max_daily_loss_percent"`
	ConfidenceFloor     float64 `toml:"confidence_floor"`
}

// TradeConfig holds the lifecycle manager parameters.
type TradeConfig struct {
	InitialBalance   float64 `toml:"initial_balance"`
	DryRun           bool    `toml:"dry_run"`
	MaxClosedHistory int     `toml:"max_closed_history"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
	Enabled       bool   `toml:"enabled"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	Enabled    bool   `toml:"enabled"`
}

// S3Config holds S3-compatible object storage parameters for the daily
// archiver.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	Enabled        bool   `toml:"enabled"`
}

// ServerConfig holds the HTTP API server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
}

// NotifyConfig holds notification channel credentials and the event filter.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration wraps time.Duration for human-readable TOML values ("5m", "1h").
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Bybit: BybitConfig{
			BaseURL:      "https://api.bybit.com",
			WSURL:        "wss://stream.bybit.com/v5/public/linear",
			RecvWindowMs: 5000,
		},
		Macro: MacroConfig{
			PollInterval: duration{time.Hour},
		},
		News: NewsConfig{
			PollInterval: duration{10 * time.Minute},
		},
		Regime: RegimeConfig{
			ConfidenceThreshold: 0.60,
			MinTimeInState:      duration{time.Hour},
			EvalInterval:        duration{5 * time.Minute},
		},
		Strategy: StrategyConfig{
			Symbol:            "BTCUSDT",
			KlineInterval:     "5",
			BackfillCandles:   200,
			EvalInterval:      duration{30 * time.Second},
			MinConfidence:     0.50,
			TriggerMaxAge:     duration{15 * time.Minute},
			StopBufferPercent: 0.1,
			OrderFlowVeto:     0.3,
			FallbackTargetR:   2.0,
			ProximityMaxPct:   1.0,
		},
		Risk: RiskConfig{
			BaseRiskPercent:     1.0,
			MinRiskReward:       1.5,
			MaxOpenPositions:    3,
			MaxDailyLossPercent: 5.0,
			ConfidenceFloor:     0.5,
		},
		Trade: TradeConfig{
			InitialBalance:   10_000,
			DryRun:           true,
			MaxClosedHistory: 200,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
			Enabled:       false,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			Enabled:    false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "regimebot-data",
			UseSSL:         false,
			ForcePathStyle: true,
			Enabled:        false,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Notify: NotifyConfig{
			Events: []string{
				"regime_transition",
				"position_opened",
				"position_closed",
				"placement_error",
				"limit_breach",
			},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade":   true,
	"monitor": true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, monitor, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Bybit — credentials are only required when live trading is possible.
	executionMode := c.Mode == "trade" || c.Mode == "full"
	if executionMode && !c.Trade.DryRun {
		if c.Bybit.ApiKey == "" && c.Bybit.EncryptedKeyPath == "" {
			errs = append(errs, "bybit: either api_key/api_secret or encrypted_key_path must be set for live trading")
		}
		if c.Bybit.ApiKey != "" && c.Bybit.ApiSecret == "" {
			errs = append(errs, "bybit: api_secret is required when api_key is set")
		}
		if c.Bybit.EncryptedKeyPath != "" && c.Bybit.KeyPassword == "" {
			errs = append(errs, "bybit: key_password is required when encrypted_key_path is set")
		}
	}

	// Strategy
	if c.Strategy.Symbol == "" {
		errs = append(errs, "strategy: symbol must not be empty")
	}
	if c.Strategy.MinConfidence < 0 || c.Strategy.MinConfidence > 1 {
		errs = append(errs, fmt.Sprintf("strategy: min_confidence %.2f out of range [0,1]", c.Strategy.MinConfidence))
	}
	if c.Strategy.EvalInterval.Duration <= 0 {
		errs = append(errs, "strategy: eval_interval must be positive")
	}

	// Regime
	if c.Regime.ConfidenceThreshold < 0 || c.Regime.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Sprintf("regime: confidence_threshold %.2f out of range [0,1]", c.Regime.ConfidenceThreshold))
	}
	if c.Regime.MinTimeInState.Duration < 0 {
		errs = append(errs, "regime: min_time_in_state must not be negative")
	}

	// Risk
	if c.Risk.BaseRiskPercent <= 0 || c.Risk.BaseRiskPercent > 100 {
		errs = append(errs, fmt.Sprintf("risk: base_risk_percent %.2f out of range (0,100]", c.Risk.BaseRiskPercent))
	}
	if c.Risk.MinRiskReward <= 0 {
		errs = append(errs, "risk: min_risk_reward must be positive")
	}
	if c.Risk.MaxOpenPositions <= 0 {
		errs = append(errs, "risk: max_open_positions must be positive")
	}
	if c.Risk.MaxDailyLossPercent <= 0 || c.Risk.MaxDailyLossPercent > 100 {
		errs = append(errs, fmt.Sprintf("risk: max_daily_loss_percent %.2f out of range (0,100]", c.Risk.MaxDailyLossPercent))
	}

	// Trade
	if c.Trade.InitialBalance <= 0 {
		errs = append(errs, "trade: initial_balance must be positive")
	}

	// Postgres
	if c.Postgres.Enabled && c.Postgres.DSN == "" && c.Postgres.Host == "" {
		errs = append(errs, "postgres: dsn or host must be set when enabled")
	}

	// Redis
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must be set when enabled")
	}

	// S3
	if c.S3.Enabled && c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must be set when enabled")
	}

	// Server
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server: port %d out of range", c.Server.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
