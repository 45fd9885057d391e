// Package agentmem provides a top-level convenience entry point for
// creating an agent memory system with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/agentmem"
//
//	mem, err := agentmem.New(ctx, "agent-1")
//	mem, err := agentmem.New(ctx, "agent-1", agentmem.WithSQLite("mem.db"))
//	mem, err := agentmem.New(ctx, "agent-1", agentmem.WithEmbedder(provider))
//
// Defaults: an in-process record store, the deterministic local embedding
// provider, a nop logger, and no metrics. Every default is replaceable
// through an option.
package agentmem

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/BaSui01/agentmem/embedding"
	"github.com/BaSui01/agentmem/internal/metrics"
	"github.com/BaSui01/agentmem/memory"
	"github.com/BaSui01/agentmem/store"
)

// Option configures the system created by [New].
type Option func(*options)

type options struct {
	cfg      memory.Config
	cfgSet   bool
	embedder embedding.Provider
	noEmbed  bool
	recStore store.RecordStore
	sqlite   string
	redis    *store.RedisConfig
	logger   *zap.Logger
	registry prometheus.Registerer
}

// WithConfig replaces the default tier configuration. The agent id passed
// to [New] still wins.
func WithConfig(cfg memory.Config) Option {
	return func(o *options) { o.cfg = cfg; o.cfgSet = true }
}

// WithEmbedder sets the embedding provider.
func WithEmbedder(p embedding.Provider) Option {
	return func(o *options) { o.embedder = p }
}

// WithoutEmbedding disables semantic search; episodic retrieval degrades
// to recency ordering.
func WithoutEmbedding() Option {
	return func(o *options) { o.noEmbed = true }
}

// WithStore sets a pre-built record store.
func WithStore(s store.RecordStore) Option {
	return func(o *options) { o.recStore = s }
}

// WithSQLite persists records to a SQLite file at path.
func WithSQLite(path string) Option {
	return func(o *options) { o.sqlite = path }
}

// WithRedis persists records to Redis.
func WithRedis(cfg store.RedisConfig) Option {
	return func(o *options) { o.redis = &cfg }
}

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics registers Prometheus metrics with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) { o.registry = reg }
}

// New creates a [memory.System] for one agent.
func New(ctx context.Context, agentID string, opts ...Option) (*memory.System, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	cfg := o.cfg
	if !o.cfgSet {
		cfg = memory.DefaultConfig()
	}
	cfg.AgentID = agentID

	recStore := o.recStore
	if recStore == nil {
		switch {
		case o.sqlite != "":
			s, err := store.NewSQLiteStore(o.sqlite, o.logger)
			if err != nil {
				return nil, err
			}
			recStore = s
		case o.redis != nil:
			s, err := store.NewRedisStore(*o.redis, o.logger)
			if err != nil {
				return nil, err
			}
			recStore = s
		default:
			recStore = store.NewInMemoryStore(o.logger)
		}
	}

	embedder := o.embedder
	if embedder == nil && !o.noEmbed {
		embedder = embedding.NewLocalProvider(0)
	}

	var collector *metrics.Collector
	if o.registry != nil {
		collector = metrics.NewCollector(o.registry)
	}

	return memory.NewSystem(ctx, cfg, embedder, recStore, collector, o.logger)
}
