package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	cfg, err := LoadAPIFromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "basketball", cfg.League.Variant)
	assert.Equal(t, 2025, cfg.League.StartingSeason)
	assert.True(t, cfg.League.StartupCreate)
	assert.Equal(t, "leaguesim.updates", cfg.NATSSubject)
}

func TestPortOverridesAddr(t *testing.T) {
	t.Setenv("PORT", "9000")
	cfg, err := LoadAPIFromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Addr)
}

func TestPostgresNeedsDatabaseURL(t *testing.T) {
	t.Setenv("LEAGUESIM_DB_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "")
	_, err := LoadAPIFromEnv()
	assert.Error(t, err)

	t.Setenv("DATABASE_URL", "postgres://localhost/leaguesim")
	cfg, err := LoadAPIFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/leaguesim", cfg.Store.DatabaseURL)

	t.Setenv("LEAGUESIM_DB_DRIVER", "mongo")
	_, err = LoadAPIFromEnv()
	assert.Error(t, err)
}

func TestWorkerConfig(t *testing.T) {
	t.Setenv("LEAGUESIM_DB_DRIVER", "sqlite")
	t.Setenv("LEAGUESIM_AUTOPLAY_EVERY", "30s")
	t.Setenv("LEAGUESIM_AUTOPLAY_DAYS", "7")
	t.Setenv("LEAGUESIM_WORKER_RUN_ONCE", "true")
	t.Setenv("LEAGUESIM_VARIANT", "football")
	cfg, err := LoadWorkerFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.AutoplayEvery)
	assert.Equal(t, 7, cfg.AutoplayDays)
	assert.True(t, cfg.RunOnce)
	assert.Equal(t, "football", cfg.League.Variant)
	assert.Equal(t, "leaguesim.db", cfg.Store.SQLiteFile)
}

func TestCLIBaseURLTrimmed(t *testing.T) {
	t.Setenv("LSIM_API_BASE_URL", "http://example.test:8080/ ")
	assert.Equal(t, "http://example.test:8080", LoadCLIFromEnv().APIBaseURL)
}
