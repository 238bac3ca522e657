package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, "development", cfg.AppEnv)
	require.Equal(t, "verif-hash", cfg.Payment.SignatureHeader)
	require.Equal(t, "30.00", cfg.Wallet.MinWithdrawal)
	require.Equal(t, "10", cfg.Wallet.WithdrawalFeePercent)
	require.Equal(t, 24*time.Hour, cfg.Session.TTL)
	require.Equal(t, int64(1), cfg.Snowflake.Node)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`
APP_ENV: staging
DATABASE:
  TYPE: sqlite
  DBNAME: reviewhub.db
PAYMENT:
  WEBHOOK_SECRET: from-file
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), content, 0o600))

	t.Setenv("PAYMENT_WEBHOOK_SECRET", "from-env")
	t.Setenv("REDIS_ADDR", "redis:6379")

	cfg, err := Load(dir)
	require.NoError(t, err)

	require.Equal(t, "staging", cfg.AppEnv)
	require.Equal(t, "sqlite", cfg.Database.Type)
	require.Equal(t, "reviewhub.db", cfg.Database.DBNAME)
	require.Equal(t, "from-env", cfg.Payment.WebhookSecret)
	require.Equal(t, "redis:6379", cfg.Redis.Addr)
}
