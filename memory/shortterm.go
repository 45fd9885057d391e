package memory

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ShortTermTier is the time-boxed cache of recent experiences. Records decay
// fast (accelerated decay rate), expire after a fixed TTL, and the tier holds
// at most a configured number of items, evicting the single oldest record on
// overflow. Nothing here touches the durable store.
type ShortTermTier struct {
	mu      sync.Mutex
	records map[string]*Record
	cfg     Config
	now     func() time.Time
	logger  *zap.Logger
}

// NewShortTermTier creates a short-term tier.
func NewShortTermTier(cfg Config, logger *zap.Logger) *ShortTermTier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ShortTermTier{
		records: make(map[string]*Record),
		cfg:     cfg,
		now:     cfg.clock(),
		logger:  logger.With(zap.String("tier", "short_term")),
	}
}

// Store inserts rec with the accelerated short-term decay rate. When the
// tier exceeds its max item count after insertion, the single oldest record
// is evicted.
func (t *ShortTermTier) Store(rec *Record) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec.DecayRate = t.cfg.ShortTermDecayRate
	t.records[rec.ID] = rec

	if len(t.records) > t.cfg.ShortTermMaxItems {
		t.evictOldestLocked()
	}
}

func (t *ShortTermTier) evictOldestLocked() {
	var oldestID string
	var oldestAt time.Time
	for id, rec := range t.records {
		if oldestID == "" || rec.CreatedAt.Before(oldestAt) {
			oldestID = id
			oldestAt = rec.CreatedAt
		}
	}
	if oldestID != "" {
		delete(t.records, oldestID)
	}
}

// Retrieve returns records created within the optional window (0 disables
// the window), further bounded by the tier TTL, newest first.
//
// The query parameter is accepted for interface symmetry with the other
// tiers but is not matched against content: short-term recall is purely
// temporal. Extending it to substring matching is a deliberate non-feature.
func (t *ShortTermTier) Retrieve(query string, window time.Duration) []*Record {
	_ = query

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	cutoff := now.Add(-t.cfg.ShortTermTTL)
	if window > 0 && window < t.cfg.ShortTermTTL {
		cutoff = now.Add(-window)
	}

	out := make([]*Record, 0, len(t.records))
	for _, rec := range t.records {
		if rec.CreatedAt.Before(cutoff) {
			continue
		}
		out = append(out, rec)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Important returns records whose payload significance is at least
// threshold. The consolidator uses this to pick promotion candidates.
func (t *ShortTermTier) Important(threshold float64) []*Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*Record, 0)
	for _, rec := range t.records {
		if rec.Payload.Significance >= threshold {
			out = append(out, rec)
		}
	}
	return out
}

// Forget removes records whose strength is below threshold or whose age
// exceeds the TTL window, returning the count removed.
func (t *ShortTermTier) Forget(threshold float64) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	cutoff := now.Add(-t.cfg.ShortTermTTL)

	removed := 0
	for id, rec := range t.records {
		if rec.Strength(now) < threshold || rec.CreatedAt.Before(cutoff) {
			delete(t.records, id)
			removed++
		}
	}

	if removed > 0 {
		t.logger.Debug("short-term forget", zap.Int("removed", removed))
	}
	return removed
}

// Size returns the number of records currently held.
func (t *ShortTermTier) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}
