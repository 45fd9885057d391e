package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisConfig holds connection settings for the Redis-backed record store.
type RedisConfig struct {
	Addr      string `yaml:"addr" json:"addr"`
	Password  string `yaml:"password" json:"password"`
	DB        int    `yaml:"db" json:"db"`
	PoolSize  int    `yaml:"pool_size" json:"pool_size"`
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`
}

// DefaultRedisConfig returns sensible defaults for local development.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:      "localhost:6379",
		PoolSize:  10,
		KeyPrefix: "agentmem:",
	}
}

// RedisStore is a RecordStore backed by Redis. Each namespace maps to a
// Redis hash, so List is a single HGETALL and startup index rebuilds stay
// one round-trip per tier.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	logger    *zap.Logger
}

// NewRedisStore connects to Redis and returns a record store.
func NewRedisStore(config RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
		PoolSize: config.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	keyPrefix := config.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "agentmem:"
	}

	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
		logger:    logger.With(zap.String("component", "record_store_redis")),
	}, nil
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if the store is healthy.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) namespaceKey(namespace string) string {
	return s.keyPrefix + "ns:" + namespace
}

func (s *RedisStore) Put(ctx context.Context, namespace, id string, data []byte) error {
	if namespace == "" || id == "" {
		return fmt.Errorf("namespace and id are required")
	}
	return s.client.HSet(ctx, s.namespaceKey(namespace), id, data).Err()
}

func (s *RedisStore) Get(ctx context.Context, namespace, id string) ([]byte, error) {
	data, err := s.client.HGet(ctx, s.namespaceKey(namespace), id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *RedisStore) List(ctx context.Context, namespace string) (map[string][]byte, error) {
	raw, err := s.client.HGetAll(ctx, s.namespaceKey(namespace)).Result()
	if err != nil {
		return nil, err
	}

	out := make(map[string][]byte, len(raw))
	for id, data := range raw {
		out[id] = []byte(data)
	}
	return out, nil
}

func (s *RedisStore) Delete(ctx context.Context, namespace, id string) error {
	return s.client.HDel(ctx, s.namespaceKey(namespace), id).Err()
}
