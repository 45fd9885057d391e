package config

import (
	"time"

	"github.com/BaSui01/agentmem/memory"
)

// DefaultConfig returns the default daemon configuration. The agent id is
// deliberately empty; it must come from the YAML file or a flag.
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Memory:    memory.DefaultConfig(),
		Store:     DefaultStoreConfig(),
		Redis:     DefaultRedisConfig(),
		Database:  DefaultDatabaseConfig(),
		Embedding: DefaultEmbeddingConfig(),
		Log:       DefaultLogConfig(),
		Metrics:   DefaultMetricsConfig(),
	}
}

// DefaultServerConfig returns the default HTTP surface settings.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

// DefaultStoreConfig selects the in-process store, suitable for tests and
// single-run tools.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{Backend: "memory"}
}

// DefaultRedisConfig returns local-development Redis settings.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:      "localhost:6379",
		PoolSize:  10,
		KeyPrefix: "agentmem:",
	}
}

// DefaultDatabaseConfig returns the default SQLite path.
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{Path: "agentmem.db"}
}

// DefaultEmbeddingConfig selects the deterministic local provider.
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		Provider:  "local",
		Dimension: 256,
	}
}

// DefaultLogConfig returns production-leaning logging defaults.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:        "info",
		Format:       "json",
		EnableCaller: true,
	}
}

// DefaultMetricsConfig enables the Prometheus endpoint.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled: true,
		Path:    "/metrics",
	}
}
