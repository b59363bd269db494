package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "123456:test-token")
	t.Setenv("AI_API_KEY", "sk-test")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "sqlite", cfg.DBDriver)
	require.Equal(t, defaultAIConcurrency, cfg.AIConcurrency)
	require.Equal(t, defaultAIBaseURL, cfg.AIBaseURL)
	require.Equal(t, 30*24*time.Hour, cfg.HistoryRetention)
	require.Equal(t, defaultFreeDailyLimit, cfg.FreeDailyLimit)
}

func TestLoad_MissingSecrets(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "")
	t.Setenv("AI_API_KEY", "sk-test")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("TELEGRAM_TOKEN", "123456:test-token")
	t.Setenv("AI_API_KEY", "")
	_, err = Load()
	require.Error(t, err)
}

func TestLoad_GateCapacity(t *testing.T) {
	setRequired(t)

	t.Setenv("AI_CONCURRENCY", "50")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 50, cfg.AIConcurrency)

	t.Setenv("AI_CONCURRENCY", "0")
	_, err = Load()
	require.Error(t, err)

	t.Setenv("AI_CONCURRENCY", "banana")
	_, err = Load()
	require.Error(t, err)
}

func TestLoad_PostgresRequiresDSN(t *testing.T) {
	setRequired(t)

	t.Setenv("DB_DRIVER", "postgres")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("DB_DSN", "host=localhost dbname=pandapal sslmode=disable")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "postgres", cfg.DBDriver)
}

func TestLoad_BadRetention(t *testing.T) {
	setRequired(t)

	t.Setenv("HISTORY_RETENTION", "5m")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("HISTORY_RETENTION", "48h")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 48*time.Hour, cfg.HistoryRetention)
}
