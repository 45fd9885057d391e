package store

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// InMemoryStore is a RecordStore backed by process memory. It is used for
// local development, tests, and small-scale deployments. Data does not
// survive a restart.
type InMemoryStore struct {
	mu         sync.RWMutex
	namespaces map[string]map[string][]byte
	logger     *zap.Logger
}

// NewInMemoryStore creates an in-memory record store.
func NewInMemoryStore(logger *zap.Logger) *InMemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryStore{
		namespaces: make(map[string]map[string][]byte),
		logger:     logger.With(zap.String("component", "record_store_inmemory")),
	}
}

func (s *InMemoryStore) Put(ctx context.Context, namespace, id string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if namespace == "" || id == "" {
		return fmt.Errorf("namespace and id are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ns, ok := s.namespaces[namespace]
	if !ok {
		ns = make(map[string][]byte)
		s.namespaces[namespace] = ns
	}
	ns[id] = append([]byte(nil), data...)
	return nil
}

func (s *InMemoryStore) Get(ctx context.Context, namespace, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.namespaces[namespace][id]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (s *InMemoryStore) List(ctx context.Context, namespace string) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]byte, len(s.namespaces[namespace]))
	for id, data := range s.namespaces[namespace] {
		out[id] = append([]byte(nil), data...)
	}
	return out, nil
}

func (s *InMemoryStore) Delete(ctx context.Context, namespace, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.namespaces[namespace], id)
	return nil
}
