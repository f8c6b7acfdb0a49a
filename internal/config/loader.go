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
// built-in defaults, applies SOLSIM_* environment variable overrides, and
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

// applyEnvOverrides reads well-known SOLSIM_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "SOLSIM_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "SOLSIM_DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "SOLSIM_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SOLSIM_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SOLSIM_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SOLSIM_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SOLSIM_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SOLSIM_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "SOLSIM_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "SOLSIM_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "SOLSIM_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "SOLSIM_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SOLSIM_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SOLSIM_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SOLSIM_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SOLSIM_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SOLSIM_REDIS_TLS_ENABLED")

	// ── Pricing ──
	setStr(&cfg.Pricing.DexscreenerURL, "SOLSIM_PRICING_DEXSCREENER_URL")
	setStr(&cfg.Pricing.JupiterURL, "SOLSIM_PRICING_JUPITER_URL")
	setDuration(&cfg.Pricing.SharedTTL, "SOLSIM_PRICING_SHARED_TTL")
	setDuration(&cfg.Pricing.LocalTTL, "SOLSIM_PRICING_LOCAL_TTL")
	setDuration(&cfg.Pricing.NegativeTTL, "SOLSIM_PRICING_NEGATIVE_TTL")
	setDuration(&cfg.Pricing.FallbackMaxAge, "SOLSIM_PRICING_FALLBACK_MAX_AGE")
	setDuration(&cfg.Pricing.FetchTimeout, "SOLSIM_PRICING_FETCH_TIMEOUT")
	setStr(&cfg.Pricing.SOLMint, "SOLSIM_PRICING_SOL_MINT")
	setInt(&cfg.Pricing.Breaker.FailureThreshold, "SOLSIM_PRICING_BREAKER_FAILURE_THRESHOLD")
	setDuration(&cfg.Pricing.Breaker.Cooldown, "SOLSIM_PRICING_BREAKER_COOLDOWN")

	// ── Engine ──
	setBool(&cfg.Engine.Enabled, "SOLSIM_ENGINE_ENABLED")
	setDuration(&cfg.Engine.Interval, "SOLSIM_ENGINE_INTERVAL")
	setInt(&cfg.Engine.BatchSize, "SOLSIM_ENGINE_BATCH_SIZE")
	setDuration(&cfg.Engine.PassTimeout, "SOLSIM_ENGINE_PASS_TIMEOUT")
	setDuration(&cfg.Engine.LockTTL, "SOLSIM_ENGINE_LOCK_TTL")
	setDuration(&cfg.Engine.LockWait, "SOLSIM_ENGINE_LOCK_WAIT")

	// ── Trading ──
	setFloat64(&cfg.Trading.MaintenanceMarginRatio, "SOLSIM_TRADING_MAINTENANCE_MARGIN_RATIO")
	setFloat64(&cfg.Trading.OpenFeeRate, "SOLSIM_TRADING_OPEN_FEE_RATE")
	setFloat64(&cfg.Trading.CloseFeeRate, "SOLSIM_TRADING_CLOSE_FEE_RATE")
	setFloat64(&cfg.Trading.LiquidationFeeRate, "SOLSIM_TRADING_LIQUIDATION_FEE_RATE")
	setFloat64(&cfg.Trading.MinLiquidityUSD, "SOLSIM_TRADING_MIN_LIQUIDITY_USD")
	setStringSlice(&cfg.Trading.WhitelistMints, "SOLSIM_TRADING_WHITELIST_MINTS")
	setDuration(&cfg.Trading.LockTTL, "SOLSIM_TRADING_LOCK_TTL")
	setDuration(&cfg.Trading.LockWait, "SOLSIM_TRADING_LOCK_WAIT")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "SOLSIM_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "SOLSIM_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "SOLSIM_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "SOLSIM_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "SOLSIM_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "SOLSIM_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SOLSIM_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SOLSIM_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SOLSIM_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SOLSIM_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "SOLSIM_MODE")
	setStr(&cfg.LogLevel, "SOLSIM_LOG_LEVEL")
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
