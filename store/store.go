// Package store provides the durable record store consumed by the memory
// tiers. Records are opaque JSON blobs keyed by id within a namespace;
// each agent/tier pair uses its own namespace.
//
// Implementations: InMemoryStore (tests, local development), GormStore
// (SQL via GORM, sqlite by default), RedisStore (distributed deployments).
package store

import (
	"context"
	"errors"
)

// RecordStore is a namespaced put/get/list/delete key-value store.
// List must return the full namespace so tiers can rebuild their in-memory
// indexes on startup.
type RecordStore interface {
	Put(ctx context.Context, namespace, id string, data []byte) error
	Get(ctx context.Context, namespace, id string) ([]byte, error)
	List(ctx context.Context, namespace string) (map[string][]byte, error)
	Delete(ctx context.Context, namespace, id string) error
}

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")
