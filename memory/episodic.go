package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentmem/embedding"
	"github.com/BaSui01/agentmem/store"
)

// EpisodicRecord is a durable, significant experience with an optional
// embedding and undirected peer links to similar episodes. Related links are
// computed once at insert time and never retroactively updated; dangling ids
// are tolerated and filtered at read time.
type EpisodicRecord struct {
	Record
	Embedding    []float64          `json:"embedding,omitempty"`
	Significance float64            `json:"significance"`
	Related      []string           `json:"related,omitempty"`
	Emotions     map[string]float64 `json:"emotions,omitempty"`
}

// EpisodicTier stores significant experiences durably and mirrors their
// embeddings in a dense in-memory matrix for cosine similarity search. The
// matrix is rebuilt in full after deletions; correctness over cleverness.
type EpisodicTier struct {
	mu      sync.RWMutex
	records map[string]*EpisodicRecord
	// order and matrix move together: matrix[i] is the embedding of the
	// record with id order[i]. Records without embeddings are not indexed.
	order  []string
	matrix [][]float64

	embedder  embedding.Provider // nil means no semantic search
	persister store.RecordStore
	namespace string
	cfg       Config
	now       func() time.Time
	logger    *zap.Logger
}

// NewEpisodicTier creates an episodic tier and loads the persisted set,
// rebuilding the similarity matrix once. Malformed persisted records are
// skipped with a log; they never abort the load.
func NewEpisodicTier(ctx context.Context, cfg Config, embedder embedding.Provider, persister store.RecordStore, logger *zap.Logger) (*EpisodicTier, error) {
	if persister == nil {
		return nil, fmt.Errorf("record store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	t := &EpisodicTier{
		records:   make(map[string]*EpisodicRecord),
		embedder:  embedder,
		persister: persister,
		namespace: cfg.AgentID + ":episodic",
		cfg:       cfg,
		now:       cfg.clock(),
		logger:    logger.With(zap.String("tier", "episodic")),
	}

	if err := t.load(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *EpisodicTier) load(ctx context.Context) error {
	persisted, err := t.persister.List(ctx, t.namespace)
	if err != nil {
		return fmt.Errorf("load episodic records: %w", err)
	}

	for id, data := range persisted {
		var rec EpisodicRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			t.logger.Warn("skipping malformed episodic record",
				zap.String("id", id), zap.Error(err))
			continue
		}
		t.records[rec.ID] = &rec
	}

	t.rebuildMatrixLocked()
	t.logger.Info("episodic tier loaded", zap.Int("records", len(t.records)))
	return nil
}

// rebuildMatrixLocked recreates the similarity matrix from the current
// record set. Callers must hold the write lock (or be single-threaded
// during construction).
func (t *EpisodicTier) rebuildMatrixLocked() {
	t.order = t.order[:0]
	t.matrix = t.matrix[:0]
	for id, rec := range t.records {
		if len(rec.Embedding) == 0 {
			continue
		}
		t.order = append(t.order, id)
		t.matrix = append(t.matrix, rec.Embedding)
	}
}

// Store persists an experience whose significance passes the gate,
// linking it to its nearest neighbours. It returns false (without error)
// when the significance is below the threshold or outside [0,1]. Embedding
// failures degrade to an unindexed record, never to a store failure.
func (t *EpisodicTier) Store(ctx context.Context, rec *EpisodicRecord) (bool, error) {
	if rec == nil {
		return false, fmt.Errorf("record is nil")
	}
	if rec.Significance < 0 || rec.Significance > 1 {
		t.logger.Warn("rejecting episode with out-of-range significance",
			zap.String("id", rec.ID),
			zap.Float64("significance", rec.Significance))
		return false, nil
	}
	if rec.Significance < t.cfg.SignificanceThreshold {
		return false, nil
	}

	rec.DecayRate = t.cfg.EpisodicDecayRate

	if t.embedder != nil && len(rec.Embedding) == 0 {
		vec, err := t.embedder.Embed(ctx, rec.Payload.Content)
		if err != nil {
			// Degrade: the record is stored without semantic indexing.
			if !errors.Is(err, embedding.ErrUnavailable) && !errors.Is(err, context.Canceled) {
				t.logger.Warn("embedding failed, storing without vector", zap.Error(err))
			}
		} else {
			rec.Embedding = vec
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(rec.Embedding) > 0 {
		rec.Related = t.nearestLocked(rec.Embedding, t.cfg.RelatedLinks, rec.ID)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("marshal episodic record: %w", err)
	}
	if err := t.persister.Put(ctx, t.namespace, rec.ID, data); err != nil {
		return false, fmt.Errorf("persist episodic record: %w", err)
	}

	_, replaced := t.records[rec.ID]
	t.records[rec.ID] = rec
	switch {
	case replaced:
		// Re-inserting an existing episode (promotion does this) must not
		// leave a stale row in the matrix.
		t.rebuildMatrixLocked()
	case len(rec.Embedding) > 0:
		t.order = append(t.order, rec.ID)
		t.matrix = append(t.matrix, rec.Embedding)
	}

	t.logger.Debug("episode stored",
		zap.String("id", rec.ID),
		zap.Float64("significance", rec.Significance),
		zap.Int("related", len(rec.Related)))
	return true, nil
}

// nearestLocked returns the ids of up to k records most similar to vec,
// never including exclude (a record must not link to itself).
func (t *EpisodicTier) nearestLocked(vec []float64, k int, exclude string) []string {
	if k <= 0 || len(t.order) == 0 {
		return nil
	}

	type scored struct {
		id    string
		score float64
	}
	candidates := make([]scored, 0, len(t.order))
	for i, id := range t.order {
		if id == exclude {
			continue
		}
		candidates = append(candidates, scored{id: id, score: cosineSimilarity(vec, t.matrix[i])})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	if k > len(candidates) {
		k = len(candidates)
	}
	ids := make([]string, 0, k)
	for i := 0; i < k; i++ {
		ids = append(ids, candidates[i].id)
	}
	return ids
}

// Retrieve ranks episodes against the query. With an embedding provider the
// ranking is cosine similarity descending (ties broken by recency); without
// one it degrades to reverse-chronological order. Records below
// minSignificance are filtered, and every returned record has its access
// tracked and re-persisted best-effort.
func (t *EpisodicTier) Retrieve(ctx context.Context, query string, limit int, minSignificance float64) ([]*EpisodicRecord, error) {
	if limit <= 0 {
		return nil, nil
	}

	var queryVec []float64
	if t.embedder != nil {
		vec, err := t.embedder.Embed(ctx, query)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			// Degrade to recency ranking.
			queryVec = nil
		} else {
			queryVec = vec
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	type scored struct {
		rec   *EpisodicRecord
		score float64
	}
	candidates := make([]scored, 0, len(t.records))
	for _, rec := range t.records {
		if rec.Significance < minSignificance {
			continue
		}
		score := 0.0
		if queryVec != nil && len(rec.Embedding) > 0 {
			score = cosineSimilarity(queryVec, rec.Embedding)
		}
		candidates = append(candidates, scored{rec: rec, score: score})
	}

	if queryVec != nil {
		sort.Slice(candidates, func(i, j int) bool {
			if candidates[i].score != candidates[j].score {
				return candidates[i].score > candidates[j].score
			}
			return candidates[i].rec.CreatedAt.After(candidates[j].rec.CreatedAt)
		})
	} else {
		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].rec.CreatedAt.After(candidates[j].rec.CreatedAt)
		})
	}

	if limit > len(candidates) {
		limit = len(candidates)
	}

	now := t.now()
	out := make([]*EpisodicRecord, 0, limit)
	for i := 0; i < limit; i++ {
		rec := candidates[i].rec
		rec.Touch(now)
		t.persistLocked(ctx, rec)
		out = append(out, t.readCopyLocked(rec))
	}
	return out, nil
}

// persistLocked writes a record back best-effort; access tracking losing a
// write does not corrupt any invariant.
func (t *EpisodicTier) persistLocked(ctx context.Context, rec *EpisodicRecord) {
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := t.persister.Put(ctx, t.namespace, rec.ID, data); err != nil {
		t.logger.Warn("failed to persist access update",
			zap.String("id", rec.ID), zap.Error(err))
	}
}

// readCopyLocked returns a shallow copy of rec with dangling related ids
// filtered out.
func (t *EpisodicTier) readCopyLocked(rec *EpisodicRecord) *EpisodicRecord {
	copied := *rec
	if len(rec.Related) > 0 {
		live := make([]string, 0, len(rec.Related))
		for _, id := range rec.Related {
			if _, ok := t.records[id]; ok {
				live = append(live, id)
			}
		}
		copied.Related = live
	}
	return &copied
}

// Get returns a single episode by id with dangling links filtered.
func (t *EpisodicTier) Get(id string) (*EpisodicRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rec, ok := t.records[id]
	if !ok {
		return nil, false
	}
	return t.readCopyLocked(rec), true
}

// RecentSince returns episodes created at or after cutoff. The consolidator
// uses this to gather the extraction window.
func (t *EpisodicTier) RecentSince(cutoff time.Time) []*EpisodicRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*EpisodicRecord, 0)
	for _, rec := range t.records {
		if !rec.CreatedAt.Before(cutoff) {
			out = append(out, rec)
		}
	}
	return out
}

// Forget removes records whose strength is below threshold, deletes their
// persisted payload, and rebuilds the similarity matrix from the remaining
// set. Returns the count removed.
func (t *EpisodicTier) Forget(ctx context.Context, threshold float64) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	removed := 0
	var lastErr error
	for id, rec := range t.records {
		if rec.Strength(now) >= threshold {
			continue
		}
		if err := t.persister.Delete(ctx, t.namespace, id); err != nil {
			lastErr = err
			t.logger.Warn("failed to delete persisted episode",
				zap.String("id", id), zap.Error(err))
			continue
		}
		delete(t.records, id)
		removed++
	}

	if removed > 0 {
		t.rebuildMatrixLocked()
		t.logger.Debug("episodic forget", zap.Int("removed", removed))
	}
	return removed, lastErr
}

// Size returns the number of records currently held.
func (t *EpisodicTier) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.records)
}
