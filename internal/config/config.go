// Package config defines the top-level configuration for the solsim trading
// service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SOLSIM_* environment variables.
type Config struct {
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	Pricing  PricingConfig  `toml:"pricing"`
	Engine   EngineConfig   `toml:"engine"`
	Trading  TradingConfig  `toml:"trading"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
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
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// BreakerConfig holds circuit breaker thresholds for one price source.
type BreakerConfig struct {
	FailureThreshold int      `toml:"failure_threshold"`
	Cooldown         duration `toml:"cooldown"`
}

// PricingConfig holds the price acquisition layer parameters: source
// endpoints, cache TTLs, and breaker settings.
type PricingConfig struct {
	DexscreenerURL string   `toml:"dexscreener_url"`
	JupiterURL     string   `toml:"jupiter_url"`
	SharedTTL      duration `toml:"shared_ttl"`
	LocalTTL       duration `toml:"local_ttl"`
	NegativeTTL    duration `toml:"negative_ttl"`
	FallbackMaxAge duration `toml:"fallback_max_age"`
	FetchTimeout   duration `toml:"fetch_timeout"`
	SOLMint        string   `toml:"sol_mint"`

	Breaker BreakerConfig `toml:"breaker"`
	// Breakers holds per-source overrides keyed by source name, e.g.
	// [pricing.breakers.jupiter].
	Breakers map[string]BreakerConfig `toml:"breakers"`
}

// EngineConfig holds liquidation engine parameters.
type EngineConfig struct {
	Enabled     bool     `toml:"enabled"`
	Interval    duration `toml:"interval"`
	BatchSize   int      `toml:"batch_size"`
	PassTimeout duration `toml:"pass_timeout"`
	LockTTL     duration `toml:"lock_ttl"`
	LockWait    duration `toml:"lock_wait"`
}

// TradingConfig holds margin parameters, fee rates, and the tradable token
// whitelist.
type TradingConfig struct {
	MaintenanceMarginRatio float64  `toml:"maintenance_margin_ratio"`
	OpenFeeRate            float64  `toml:"open_fee_rate"`
	CloseFeeRate           float64  `toml:"close_fee_rate"`
	LiquidationFeeRate     float64  `toml:"liquidation_fee_rate"`
	MinLiquidityUSD        float64  `toml:"min_liquidity_usd"`
	WhitelistMints         []string `toml:"whitelist_mints"`
	LockTTL                duration `toml:"lock_ttl"`
	LockWait               duration `toml:"lock_wait"`
}

// ServerConfig holds HTTP API parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	// RateLimit requests per rate_window per client IP; zero disables.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "solsim",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		Pricing: PricingConfig{
			DexscreenerURL: "https://api.dexscreener.com",
			JupiterURL:     "https://api.jup.ag",
			SharedTTL:      duration{30 * time.Second},
			LocalTTL:       duration{10 * time.Second},
			NegativeTTL:    duration{5 * time.Minute},
			FallbackMaxAge: duration{5 * time.Minute},
			FetchTimeout:   duration{3 * time.Second},
			SOLMint:        "So11111111111111111111111111111111111111112",
			Breaker: BreakerConfig{
				FailureThreshold: 5,
				Cooldown:         duration{30 * time.Second},
			},
			Breakers: map[string]BreakerConfig{},
		},
		Engine: EngineConfig{
			Enabled:     true,
			Interval:    duration{10 * time.Second},
			BatchSize:   50,
			PassTimeout: duration{8 * time.Second},
			LockTTL:     duration{5 * time.Second},
			LockWait:    duration{time.Second},
		},
		Trading: TradingConfig{
			MaintenanceMarginRatio: 0.025,
			OpenFeeRate:            0.001,
			CloseFeeRate:           0.001,
			LiquidationFeeRate:     0.005,
			MinLiquidityUSD:        0,
			WhitelistMints:         []string{},
			LockTTL:                duration{5 * time.Second},
			LockWait:               duration{2 * time.Second},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
			RateLimit:   20,
			RateWindow:  duration{time.Second},
		},
		Notify: NotifyConfig{
			Events: []string{"position_opened", "position_closed", "position_liquidated"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"full":   true, // trade service plus liquidation engine
	"engine": true, // liquidation engine only
	"trade":  true, // trade service only, no background scans
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: full, engine, trade)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Pricing
	if c.Pricing.DexscreenerURL == "" && c.Pricing.JupiterURL == "" {
		errs = append(errs, "pricing: at least one source URL must be set")
	}
	if c.Pricing.SOLMint == "" {
		errs = append(errs, "pricing: sol_mint must not be empty")
	}
	if c.Pricing.SharedTTL.Duration <= 0 {
		errs = append(errs, "pricing: shared_ttl must be > 0")
	}
	if c.Pricing.LocalTTL.Duration <= 0 {
		errs = append(errs, "pricing: local_ttl must be > 0")
	}
	if c.Pricing.NegativeTTL.Duration <= 0 {
		errs = append(errs, "pricing: negative_ttl must be > 0")
	}
	if c.Pricing.FetchTimeout.Duration <= 0 {
		errs = append(errs, "pricing: fetch_timeout must be > 0")
	}
	if c.Pricing.Breaker.FailureThreshold < 1 {
		errs = append(errs, "pricing: breaker.failure_threshold must be >= 1")
	}
	if c.Pricing.Breaker.Cooldown.Duration <= 0 {
		errs = append(errs, "pricing: breaker.cooldown must be > 0")
	}

	// Engine
	if c.Engine.Enabled {
		if c.Engine.Interval.Duration <= 0 {
			errs = append(errs, "engine: interval must be > 0")
		}
		if c.Engine.BatchSize < 1 {
			errs = append(errs, "engine: batch_size must be >= 1")
		}
		if c.Engine.PassTimeout.Duration >= c.Engine.Interval.Duration {
			errs = append(errs, "engine: pass_timeout must be shorter than interval")
		}
		if c.Engine.LockTTL.Duration <= 0 {
			errs = append(errs, "engine: lock_ttl must be > 0")
		}
	}

	// Trading
	if c.Trading.MaintenanceMarginRatio <= 0 || c.Trading.MaintenanceMarginRatio >= 1 {
		errs = append(errs, fmt.Sprintf("trading: maintenance_margin_ratio must be in (0, 1), got %g", c.Trading.MaintenanceMarginRatio))
	}
	if c.Trading.OpenFeeRate < 0 || c.Trading.CloseFeeRate < 0 || c.Trading.LiquidationFeeRate < 0 {
		errs = append(errs, "trading: fee rates must not be negative")
	}
	if c.Trading.MinLiquidityUSD < 0 {
		errs = append(errs, "trading: min_liquidity_usd must not be negative")
	}
	if c.Trading.LockTTL.Duration <= 0 {
		errs = append(errs, "trading: lock_ttl must be > 0")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
		}
	}

	// Notify credentials must be complete per channel.
	tgToken := c.Notify.TelegramToken != ""
	tgChat := c.Notify.TelegramChatID != ""
	if tgToken != tgChat {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
