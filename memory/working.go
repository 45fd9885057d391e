package memory

import (
	"sync"

	"go.uber.org/zap"
)

// WorkingTier is the fixed-capacity ring of the most recent items. It never
// persists, never decays, and Store always succeeds: on overflow the oldest
// entry is silently dropped.
type WorkingTier struct {
	mu       sync.RWMutex
	items    []*Record
	capacity int
	logger   *zap.Logger
}

// AttendedRecord is a working-tier item with its attention weight.
// Weights favor recency: the newest item carries weight 1.0.
type AttendedRecord struct {
	Record    *Record `json:"record"`
	Attention float64 `json:"attention"`
}

// NewWorkingTier creates a working tier with the configured capacity.
func NewWorkingTier(cfg Config, logger *zap.Logger) *WorkingTier {
	if logger == nil {
		logger = zap.NewNop()
	}
	capacity := cfg.WorkingCapacity
	if capacity <= 0 {
		capacity = DefaultConfig().WorkingCapacity
	}
	return &WorkingTier{
		items:    make([]*Record, 0, capacity),
		capacity: capacity,
		logger:   logger.With(zap.String("tier", "working")),
	}
}

// Store appends rec, dropping the oldest entry when the tier is full.
func (t *WorkingTier) Store(rec *Record) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.items = append(t.items, rec)
	if len(t.items) > t.capacity {
		t.items = t.items[1:]
	}
}

// Retrieve returns all current items ordered oldest to newest, each with an
// attention weight of (position+1)/size. The query is intentionally unused:
// working memory is whatever the agent is holding right now.
func (t *WorkingTier) Retrieve(query string) []AttendedRecord {
	_ = query

	t.mu.RLock()
	defer t.mu.RUnlock()

	size := len(t.items)
	out := make([]AttendedRecord, 0, size)
	for i, rec := range t.items {
		out = append(out, AttendedRecord{
			Record:    rec,
			Attention: float64(i+1) / float64(size),
		})
	}
	return out
}

// Forget is a no-op: working memory only vanishes by capacity overflow.
func (t *WorkingTier) Forget(threshold float64) int {
	return 0
}

// Size returns the number of items currently held.
func (t *WorkingTier) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.items)
}
