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
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
mode = "engine"

[postgres]
host = "db.internal"

[pricing]
shared_ttl = "45s"

[trading]
whitelist_mints = ["MintA", "MintB"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "engine", cfg.Mode)
	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	// Untouched sections keep their defaults.
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Equal(t, "45s", cfg.Pricing.SharedTTL.String())
	assert.Equal(t, "10s", cfg.Pricing.LocalTTL.String())
	assert.Equal(t, []string{"MintA", "MintB"}, cfg.Trading.WhitelistMints)
	require.NoError(t, cfg.Validate())
}

func TestEnvOverridesWin(t *testing.T) {
	path := writeConfig(t, `
[redis]
addr = "file:6379"
`)
	t.Setenv("SOLSIM_REDIS_ADDR", "env:6379")
	t.Setenv("SOLSIM_ENGINE_BATCH_SIZE", "25")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env:6379", cfg.Redis.Addr)
	assert.Equal(t, 25, cfg.Engine.BatchSize)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "bogus"
	cfg.Trading.MaintenanceMarginRatio = 1.5
	cfg.Engine.PassTimeout = duration{cfg.Engine.Interval.Duration * 2}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "maintenance_margin_ratio")
	assert.Contains(t, err.Error(), "pass_timeout")
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "hunter2"
	cfg.Notify.TelegramToken = "123:abc"

	red := RedactedConfig(&cfg)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Notify.TelegramToken)
	// Original untouched.
	assert.Equal(t, "hunter2", cfg.Postgres.Password)
}
