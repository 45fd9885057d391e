package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoader_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.HTTPPort)
	require.Equal(t, "memory", cfg.Store.Backend)
	require.Equal(t, "local", cfg.Embedding.Provider)
	require.Equal(t, 7, cfg.Memory.WorkingCapacity)
	require.Equal(t, 30*time.Minute, cfg.Memory.ShortTermTTL)
}

func TestLoader_YAMLOverridesDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  http_port: 9000
store:
  backend: sqlite
database:
  path: /tmp/mem.db
memory:
  agent_id: agent-42
  working_capacity: 9
  short_term_ttl: 45m
`), 0o600))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	require.Equal(t, 9000, cfg.Server.HTTPPort)
	require.Equal(t, "sqlite", cfg.Store.Backend)
	require.Equal(t, "/tmp/mem.db", cfg.Database.Path)
	require.Equal(t, "agent-42", cfg.Memory.AgentID)
	require.Equal(t, 9, cfg.Memory.WorkingCapacity)
	require.Equal(t, 45*time.Minute, cfg.Memory.ShortTermTTL)

	// Untouched sections keep their defaults.
	require.Equal(t, "local", cfg.Embedding.Provider)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	// Not parallel: mutates process environment.
	t.Setenv("TESTMEM_SERVER_HTTP_PORT", "7070")
	t.Setenv("TESTMEM_STORE_BACKEND", "redis")
	t.Setenv("TESTMEM_REDIS_ADDR", "redis.internal:6379")
	t.Setenv("TESTMEM_EMBEDDING_RATE_LIMIT", "2.5")
	t.Setenv("TESTMEM_METRICS_ENABLED", "false")
	t.Setenv("TESTMEM_SERVER_READ_TIMEOUT", "45s")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  http_port: 9000\n"), 0o600))

	cfg, err := NewLoader().WithConfigPath(path).WithEnvPrefix("TESTMEM").Load()
	require.NoError(t, err)

	require.Equal(t, 7070, cfg.Server.HTTPPort)
	require.Equal(t, "redis", cfg.Store.Backend)
	require.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
	require.Equal(t, 2.5, cfg.Embedding.RateLimit)
	require.False(t, cfg.Metrics.Enabled)
	require.Equal(t, 45*time.Second, cfg.Server.ReadTimeout)
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := NewLoader().WithConfigPath("/nonexistent/config.yaml").Load()
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoader_MalformedYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o600))

	_, err := NewLoader().WithConfigPath(path).Load()
	require.Error(t, err)
}

func TestLoader_ValidatorHook(t *testing.T) {
	t.Parallel()

	called := false
	_, err := NewLoader().WithValidator(func(c *Config) error {
		called = true
		return nil
	}).Load()
	require.NoError(t, err)
	require.True(t, called)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Memory.AgentID = "a1"
	require.NoError(t, cfg.Validate())

	missing := DefaultConfig()
	require.Error(t, missing.Validate())

	badBackend := DefaultConfig()
	badBackend.Memory.AgentID = "a1"
	badBackend.Store.Backend = "cassandra"
	require.Error(t, badBackend.Validate())

	apiNoEndpoint := DefaultConfig()
	apiNoEndpoint.Memory.AgentID = "a1"
	apiNoEndpoint.Embedding.Provider = "api"
	require.Error(t, apiNoEndpoint.Validate())
}
