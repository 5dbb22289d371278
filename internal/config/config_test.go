package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	loader := NewLoader(NewEnvProvider())

	cfg, err := loader.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "./data/askdb.db", cfg.Database.Path)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 24*time.Hour, cfg.Auth.JWTExpiry)
	assert.Equal(t, 30*time.Second, cfg.Query.Timeout)
	assert.Equal(t, 1000, cfg.Query.MaxRows)
	assert.Equal(t, 500, cfg.Query.MaxQuestion)
	assert.False(t, cfg.History.Enabled)
	assert.True(t, cfg.Rules.HotReload)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("QUERY_TIMEOUT", "10s")
	t.Setenv("QUERY_MAX_ROWS", "50")
	t.Setenv("HISTORY_ENABLED", "true")
	t.Setenv("ALLOW_ANONYMOUS", "true")

	cfg, err := NewLoader(NewEnvProvider()).Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 10*time.Second, cfg.Query.Timeout)
	assert.Equal(t, 50, cfg.Query.MaxRows)
	assert.True(t, cfg.History.Enabled)
	assert.True(t, cfg.Auth.AllowAnonymous)
}

func TestLoadBadValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("QUERY_TIMEOUT", "not-a-duration")
	t.Setenv("QUERY_MAX_ROWS", "many")
	t.Setenv("HISTORY_ENABLED", "kinda")

	cfg, err := NewLoader(NewEnvProvider()).Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Query.Timeout)
	assert.Equal(t, 1000, cfg.Query.MaxRows)
	assert.False(t, cfg.History.Enabled)
}

func TestFileProvider(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "jwt-secret"), []byte("from-file\n"), 0o600))

	provider := NewFileProvider(dir)

	value, err := provider.GetSecret(context.Background(), "JWT_SECRET")
	require.NoError(t, err)
	assert.Equal(t, "from-file", value)

	// A missing file means this provider has no value, not a failure.
	value, err = provider.GetSecret(context.Background(), "MISSING_KEY")
	require.NoError(t, err)
	assert.Empty(t, value)
}

func TestChainProviderOrder(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "db-driver"), []byte("postgres"), 0o600))
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("REDIS_ADDR", "redis.internal:6379")

	chain := NewChainProvider(NewFileProvider(dir), NewEnvProvider())

	// The file wins when both sources have the key.
	value, err := chain.GetSecret(context.Background(), "DB_DRIVER")
	require.NoError(t, err)
	assert.Equal(t, "postgres", value)

	// The chain falls through to the environment.
	value, err = chain.GetSecret(context.Background(), "REDIS_ADDR")
	require.NoError(t, err)
	assert.Equal(t, "redis.internal:6379", value)
}
