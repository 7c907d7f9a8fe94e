package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "bubbles.db", cfg.Database.Path)
	assert.Equal(t, 5*time.Second, cfg.Database.LockTimeout)
	assert.Equal(t, 3, cfg.Ledger.ContentionRetries)
	assert.Equal(t, 50, cfg.Dispatcher.BatchSize)
	assert.Equal(t, 7*24*time.Hour, cfg.Dispatcher.Retention)
	assert.Equal(t, "bubble-ledger", cfg.Formance.LedgerName)
	assert.Empty(t, cfg.Notify.GatewayUrl)
	assert.Equal(t, ":9090", cfg.OpsAddr)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/bubbles")
	t.Setenv("DB_LOCK_TIMEOUT", "250ms")
	t.Setenv("DISPATCHER_MAX_ATTEMPTS", "3")
	t.Setenv("NOTIFY_RATE_PER_SECOND", "2.5")
	t.Setenv("CREATE_DEMO_ACCOUNTS", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://localhost/bubbles", cfg.Database.Url)
	assert.Equal(t, 250*time.Millisecond, cfg.Database.LockTimeout)
	assert.Equal(t, 3, cfg.Dispatcher.MaxAttempts)
	assert.InDelta(t, 2.5, cfg.Notify.RatePerSecond, 0.0001)
	assert.True(t, cfg.Database.CreateDemoAccounts)
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Run("duration", func(t *testing.T) {
		t.Setenv("DISPATCHER_RETRY_BACKOFF", "soon")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "DISPATCHER_RETRY_BACKOFF")
	})

	t.Run("rate", func(t *testing.T) {
		t.Setenv("NOTIFY_RATE_PER_SECOND", "fast")
		_, err := Load()
		require.Error(t, err)
	})

	t.Run("unparseable int falls back", func(t *testing.T) {
		t.Setenv("DISPATCHER_BATCH_SIZE", "many")
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 50, cfg.Dispatcher.BatchSize)
	})
}
