package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies REGIMEBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known REGIMEBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Bybit ──
	setStr(&cfg.Bybit.BaseURL, "REGIMEBOT_BYBIT_BASE_URL")
	setStr(&cfg.Bybit.WSURL, "REGIMEBOT_BYBIT_WS_URL")
	setStr(&cfg.Bybit.ApiKey, "REGIMEBOT_BYBIT_API_KEY")
	setStr(&cfg.Bybit.ApiSecret, "REGIMEBOT_BYBIT_API_SECRET")
	setStr(&cfg.Bybit.EncryptedKeyPath, "REGIMEBOT_BYBIT_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Bybit.KeyPassword, "REGIMEBOT_BYBIT_KEY_PASSWORD")
	setInt64(&cfg.Bybit.RecvWindowMs, "REGIMEBOT_BYBIT_RECV_WINDOW_MS")

	// ── Macro ──
	setStr(&cfg.Macro.DXYURL, "REGIMEBOT_MACRO_DXY_URL")
	setStr(&cfg.Macro.GlobalURL, "REGIMEBOT_MACRO_GLOBAL_URL")
	setDuration(&cfg.Macro.PollInterval, "REGIMEBOT_MACRO_POLL_INTERVAL")

	// ── News ──
	setStr(&cfg.News.BaseURL, "REGIMEBOT_NEWS_BASE_URL")
	setStr(&cfg.News.ApiKey, "REGIMEBOT_NEWS_API_KEY")
	setStr(&cfg.News.Query, "REGIMEBOT_NEWS_QUERY")
	setDuration(&cfg.News.PollInterval, "REGIMEBOT_NEWS_POLL_INTERVAL")

	// ── Regime ──
	setFloat64(&cfg.Regime.ConfidenceThreshold, "REGIMEBOT_REGIME_CONFIDENCE_THRESHOLD")
	setDuration(&cfg.Regime.MinTimeInState, "REGIMEBOT_REGIME_MIN_TIME_IN_STATE")
	setDuration(&cfg.Regime.EvalInterval, "REGIMEBOT_REGIME_EVAL_INTERVAL")

	// ── Strategy ──
	setStr(&cfg.Strategy.Symbol, "REGIMEBOT_STRATEGY_SYMBOL")
	setStr(&cfg.Strategy.KlineInterval, "REGIMEBOT_STRATEGY_KLINE_INTERVAL")
	setInt(&cfg.Strategy.BackfillCandles, "REGIMEBOT_STRATEGY_BACKFILL_CANDLES")
	setDuration(&cfg.Strategy.EvalInterval, "REGIMEBOT_STRATEGY_EVAL_INTERVAL")
	setFloat64(&cfg.Strategy.MinConfidence, "REGIMEBOT_STRATEGY_MIN_CONFIDENCE")
	setDuration(&cfg.Strategy.TriggerMaxAge, "REGIMEBOT_STRATEGY_TRIGGER_MAX_AGE")
	setFloat64(&cfg.Strategy.StopBufferPercent, "REGIMEBOT_STRATEGY_STOP_BUFFER_PERCENT")
	setFloat64(&cfg.Strategy.OrderFlowVeto, "REGIMEBOT_STRATEGY_ORDERFLOW_VETO")
	setFloat64(&cfg.Strategy.FallbackTargetR, "REGIMEBOT_STRATEGY_FALLBACK_TARGET_R")
	setFloat64(&cfg.Strategy.ProximityMaxPct, "REGIMEBOT_STRATEGY_PROXIMITY_MAX_PERCENT")

	// ── Risk ──
	setFloat64(&cfg.Risk.BaseRiskPercent, "REGIMEBOT_RISK_BASE_RISK_PERCENT")
	setFloat64(&cfg.Risk.MinRiskReward, "REGIMEBOT_RISK_MIN_RISK_REWARD")
	setInt(&cfg.Risk.MaxOpenPositions, "REGIMEBOT_RISK_MAX_OPEN_POSITIONS")
	setFloat64(&cfg.Risk.MaxDailyLossPercent, "REGIMEBOT_RISK_MAX_DAILY_LOSS_PERCENT")
	setFloat64(&cfg.Risk.ConfidenceFloor, "REGIMEBOT_RISK_CONFIDENCE_FLOOR")

	// ── Trade ──
	setFloat64(&cfg.Trade.InitialBalance, "REGIMEBOT_TRADE_INITIAL_BALANCE")
	setBool(&cfg.Trade.DryRun, "REGIMEBOT_TRADE_DRY_RUN")
	setInt(&cfg.Trade.MaxClosedHistory, "REGIMEBOT_TRADE_MAX_CLOSED_HISTORY")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "REGIMEBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "REGIMEBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "REGIMEBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "REGIMEBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "REGIMEBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "REGIMEBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "REGIMEBOT_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "REGIMEBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "REGIMEBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "REGIMEBOT_POSTGRES_RUN_MIGRATIONS")
	setBool(&cfg.Postgres.Enabled, "REGIMEBOT_POSTGRES_ENABLED")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "REGIMEBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "REGIMEBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REGIMEBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "REGIMEBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "REGIMEBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "REGIMEBOT_REDIS_TLS_ENABLED")
	setBool(&cfg.Redis.Enabled, "REGIMEBOT_REDIS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "REGIMEBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "REGIMEBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "REGIMEBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "REGIMEBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "REGIMEBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "REGIMEBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "REGIMEBOT_S3_FORCE_PATH_STYLE")
	setBool(&cfg.S3.Enabled, "REGIMEBOT_S3_ENABLED")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "REGIMEBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "REGIMEBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "REGIMEBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "REGIMEBOT_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "REGIMEBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "REGIMEBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "REGIMEBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "REGIMEBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "REGIMEBOT_MODE")
	setStr(&cfg.LogLevel, "REGIMEBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
