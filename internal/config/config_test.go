package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadClean(t *testing.T) (*Config, error) {
	t.Helper()
	viper.Reset()
	return Load()
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := loadClean(t)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Service.Port)
	assert.Equal(t, 9090, cfg.Service.MetricsPort)
	assert.Equal(t, 30*time.Second, cfg.Service.ShutdownTimeout)
	assert.Equal(t, "info", cfg.Service.LogLevel)
	assert.Equal(t, []string{"*"}, cfg.Service.CORSOrigins)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "disable", cfg.Database.SSLMode)

	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "localhost:6379", cfg.Redis.Address)
	assert.Equal(t, 24*time.Hour, cfg.Redis.CacheTTL)

	assert.Equal(t, 15*time.Second, cfg.Fetcher.Timeout)

	assert.Equal(t, "text-embedding-3-small", cfg.Embedding.Model)
	assert.Equal(t, 1536, cfg.Embedding.Dimensions)

	assert.Equal(t, 500, cfg.Chunking.MaxTokens)
	assert.Equal(t, 15, cfg.Chunking.MinTextLen)
	assert.Equal(t, 5000, cfg.Chunking.MaxBodyChars)

	assert.Equal(t, 10, cfg.Search.DefaultLimit)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("PAGESEARCH_PORT", "9999")
	t.Setenv("DATABASE_HOST", "db.internal")
	t.Setenv("EMBEDDING_MODEL", "text-embedding-3-large")
	t.Setenv("EMBEDDING_DIMENSIONS", "3072")

	cfg, err := loadClean(t)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Service.Port)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "text-embedding-3-large", cfg.Embedding.Model)
	assert.Equal(t, 3072, cfg.Embedding.Dimensions)
}

func TestLoadRejectsInvalidPort(t *testing.T) {
	t.Setenv("PAGESEARCH_PORT", "99999")

	_, err := loadClean(t)
	assert.ErrorContains(t, err, "validation failed")
}

func TestDatabaseDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		Database: "pagesearch",
		Username: "user",
		Password: "secret",
		SSLMode:  "disable",
	}

	assert.Equal(t,
		"host=localhost port=5432 dbname=pagesearch user=user password=secret sslmode=disable",
		cfg.DSN())
}
