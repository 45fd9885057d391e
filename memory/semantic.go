package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/agentmem/store"
	"github.com/BaSui01/agentmem/types"
)

// ConceptRecord is a confidence-weighted node in the concept graph.
// Relationships map a relation type to the set of related concept ids.
type ConceptRecord struct {
	Record
	Name           string              `json:"name"`
	Properties     map[string]any      `json:"properties,omitempty"`
	Relationships  map[string][]string `json:"relationships,omitempty"`
	Confidence     float64             `json:"confidence"`
	SourceEpisodes []string            `json:"source_episodes,omitempty"`
}

// ConceptGraph is the node/edge export of a bounded graph traversal.
type ConceptGraph struct {
	Nodes []ConceptNode `json:"nodes"`
	Edges []ConceptEdge `json:"edges"`
}

// ConceptNode is one concept in an exported graph.
type ConceptNode struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Depth      int     `json:"depth"`
}

// ConceptEdge is one relation in an exported graph.
type ConceptEdge struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Relation string `json:"relation"`
}

// SemanticTier is the concept graph built from extracted knowledge. Concepts
// merge on insert (properties overwrite, confidence steps up, relationship
// sets union) and a reverse relationship index supports cleanup and
// incoming-edge lookups.
type SemanticTier struct {
	mu       sync.Mutex
	concepts map[string]*ConceptRecord
	// reverse maps target concept id -> relation type -> set of source ids.
	reverse map[string]map[string]map[string]struct{}

	persister store.RecordStore
	namespace string
	cfg       Config
	now       func() time.Time
	logger    *zap.Logger
}

// NewSemanticTier creates a semantic tier and loads the persisted concept
// set, rebuilding the reverse relationship index. Malformed records are
// skipped with a log.
func NewSemanticTier(ctx context.Context, cfg Config, persister store.RecordStore, logger *zap.Logger) (*SemanticTier, error) {
	if persister == nil {
		return nil, fmt.Errorf("record store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	t := &SemanticTier{
		concepts:  make(map[string]*ConceptRecord),
		reverse:   make(map[string]map[string]map[string]struct{}),
		persister: persister,
		namespace: cfg.AgentID + ":semantic",
		cfg:       cfg,
		now:       cfg.clock(),
		logger:    logger.With(zap.String("tier", "semantic")),
	}

	persisted, err := persister.List(ctx, t.namespace)
	if err != nil {
		return nil, fmt.Errorf("load semantic records: %w", err)
	}
	for id, data := range persisted {
		var rec ConceptRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			t.logger.Warn("skipping malformed concept record",
				zap.String("id", id), zap.Error(err))
			continue
		}
		t.concepts[rec.ID] = &rec
		t.indexRelationsLocked(&rec)
	}

	t.logger.Info("semantic tier loaded", zap.Int("concepts", len(t.concepts)))
	return t, nil
}

func (t *SemanticTier) indexRelationsLocked(rec *ConceptRecord) {
	for relType, targets := range rec.Relationships {
		for _, target := range targets {
			byRel, ok := t.reverse[target]
			if !ok {
				byRel = make(map[string]map[string]struct{})
				t.reverse[target] = byRel
			}
			set, ok := byRel[relType]
			if !ok {
				set = make(map[string]struct{})
				byRel[relType] = set
			}
			set[rec.ID] = struct{}{}
		}
	}
}

// Store merges fact into an existing concept or creates a new one.
// Merging overwrites properties, raises confidence by the configured step
// (capped at 1.0), unions relationship sets, and appends source episodes.
// A new concept without an explicit confidence starts at the default;
// an explicit confidence is clamped into [0,1].
func (t *SemanticTier) Store(ctx context.Context, fact types.KnowledgeFact) (*ConceptRecord, error) {
	if fact.Name == "" && fact.ConceptID == "" {
		return nil, fmt.Errorf("knowledge fact needs a concept id or name")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	id := fact.ConceptID
	if id == "" {
		id = uuid.NewString()
	}

	rec, exists := t.concepts[id]
	if exists {
		for k, v := range fact.Properties {
			if rec.Properties == nil {
				rec.Properties = make(map[string]any)
			}
			rec.Properties[k] = v
		}
		rec.Confidence = math.Min(1.0, rec.Confidence+t.cfg.ConfidenceStep)
		t.mergeRelationsLocked(rec, fact.Relationships)
		rec.SourceEpisodes = unionStrings(rec.SourceEpisodes, fact.SourceEpisodes)
	} else {
		confidence := fact.Confidence
		switch {
		case confidence <= 0:
			confidence = t.cfg.DefaultConfidence
		case confidence > 1:
			confidence = 1.0
		}
		rec = &ConceptRecord{
			Record: Record{
				ID:        id,
				CreatedAt: t.now(),
				Payload: types.ExperiencePayload{
					Kind:    types.ExperienceKnowledge,
					Content: fact.Name,
				},
				DecayRate: t.cfg.SemanticDecayRate,
			},
			Name:           fact.Name,
			Properties:     cloneAnyMap(fact.Properties),
			Confidence:     confidence,
			SourceEpisodes: unionStrings(nil, fact.SourceEpisodes),
		}
		t.mergeRelationsLocked(rec, fact.Relationships)
		t.concepts[id] = rec
	}

	if err := t.persistLocked(ctx, rec); err != nil {
		return nil, err
	}

	t.logger.Debug("concept stored",
		zap.String("id", rec.ID),
		zap.String("name", rec.Name),
		zap.Float64("confidence", rec.Confidence))
	return rec, nil
}

func (t *SemanticTier) mergeRelationsLocked(rec *ConceptRecord, incoming map[string][]string) {
	if len(incoming) == 0 {
		return
	}
	if rec.Relationships == nil {
		rec.Relationships = make(map[string][]string)
	}
	for relType, targets := range incoming {
		rec.Relationships[relType] = unionStrings(rec.Relationships[relType], targets)
	}
	t.indexRelationsLocked(rec)
}

func (t *SemanticTier) persistLocked(ctx context.Context, rec *ConceptRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal concept record: %w", err)
	}
	if err := t.persister.Put(ctx, t.namespace, rec.ID, data); err != nil {
		return fmt.Errorf("persist concept record: %w", err)
	}
	return nil
}

// Retrieve matches query against concept names (case-insensitive substring),
// unions in any concepts reachable via relationType from the matches, ranks
// by confidence descending, and records access on everything returned.
func (t *SemanticTier) Retrieve(ctx context.Context, query, relationType string, limit int) []*ConceptRecord {
	if limit <= 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	needle := strings.ToLower(query)
	matched := make(map[string]*ConceptRecord)
	for id, rec := range t.concepts {
		if needle == "" || strings.Contains(strings.ToLower(rec.Name), needle) {
			matched[id] = rec
		}
	}

	if relationType != "" {
		for _, rec := range snapshotConcepts(matched) {
			for _, target := range rec.Relationships[relationType] {
				if related, ok := t.concepts[target]; ok {
					matched[target] = related
				}
			}
		}
	}

	out := make([]*ConceptRecord, 0, len(matched))
	for _, rec := range matched {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})

	if limit < len(out) {
		out = out[:limit]
	}

	now := t.now()
	for _, rec := range out {
		rec.Touch(now)
		if err := t.persistLocked(ctx, rec); err != nil {
			t.logger.Warn("failed to persist access update",
				zap.String("id", rec.ID), zap.Error(err))
		}
	}
	return out
}

func snapshotConcepts(m map[string]*ConceptRecord) []*ConceptRecord {
	out := make([]*ConceptRecord, 0, len(m))
	for _, rec := range m {
		out = append(out, rec)
	}
	return out
}

// Get returns a concept by id.
func (t *SemanticTier) Get(id string) (*ConceptRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.concepts[id]
	return rec, ok
}

// ConceptGraph walks breadth-first from root up to depth hops, with cycle
// protection via a visited set, and returns the node/edge list.
func (t *SemanticTier) ConceptGraph(root string, depth int) (*ConceptGraph, error) {
	if depth <= 0 {
		depth = t.cfg.GraphDepth
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	start, ok := t.concepts[root]
	if !ok {
		return nil, fmt.Errorf("concept %q not found", root)
	}

	graph := &ConceptGraph{}
	visited := map[string]struct{}{root: {}}

	type frontier struct {
		id    string
		depth int
	}
	queue := []frontier{{id: root, depth: 0}}
	graph.Nodes = append(graph.Nodes, ConceptNode{
		ID: root, Name: start.Name, Confidence: start.Confidence, Depth: 0,
	})

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= depth {
			continue
		}

		rec := t.concepts[cur.id]
		if rec == nil {
			continue
		}
		for relType, targets := range rec.Relationships {
			for _, target := range targets {
				next, ok := t.concepts[target]
				if !ok {
					continue // dangling relation
				}
				graph.Edges = append(graph.Edges, ConceptEdge{
					From: cur.id, To: target, Relation: relType,
				})
				if _, seen := visited[target]; seen {
					continue
				}
				visited[target] = struct{}{}
				graph.Nodes = append(graph.Nodes, ConceptNode{
					ID:         target,
					Name:       next.Name,
					Confidence: next.Confidence,
					Depth:      cur.depth + 1,
				})
				queue = append(queue, frontier{id: target, depth: cur.depth + 1})
			}
		}
	}

	return graph, nil
}

// Forget removes concepts whose confidence or strength is below threshold
// and cleans them from the reverse relationship index. Returns the count
// removed.
func (t *SemanticTier) Forget(ctx context.Context, threshold float64) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	removed := 0
	var lastErr error
	for id, rec := range t.concepts {
		if rec.Confidence >= threshold && rec.Strength(now) >= threshold {
			continue
		}
		if err := t.persister.Delete(ctx, t.namespace, id); err != nil {
			lastErr = err
			t.logger.Warn("failed to delete persisted concept",
				zap.String("id", id), zap.Error(err))
			continue
		}
		delete(t.concepts, id)
		t.unindexConceptLocked(id, rec)
		removed++
	}

	if removed > 0 {
		t.logger.Debug("semantic forget", zap.Int("removed", removed))
	}
	return removed, lastErr
}

// unindexConceptLocked removes every trace of a concept from the reverse
// relationship index: its own entry and its appearances as a source.
func (t *SemanticTier) unindexConceptLocked(id string, rec *ConceptRecord) {
	delete(t.reverse, id)
	for relType, targets := range rec.Relationships {
		for _, target := range targets {
			if byRel, ok := t.reverse[target]; ok {
				if set, ok := byRel[relType]; ok {
					delete(set, id)
					if len(set) == 0 {
						delete(byRel, relType)
					}
				}
				if len(byRel) == 0 {
					delete(t.reverse, target)
				}
			}
		}
	}
}

// RelatedTo returns the ids of concepts that point at target via relType.
func (t *SemanticTier) RelatedTo(target, relType string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	set := t.reverse[target][relType]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Size returns the number of concepts currently held.
func (t *SemanticTier) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.concepts)
}

func unionStrings(existing, incoming []string) []string {
	if len(incoming) == 0 {
		return existing
	}
	seen := make(map[string]struct{}, len(existing))
	for _, s := range existing {
		seen[s] = struct{}{}
	}
	for _, s := range incoming {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		existing = append(existing, s)
	}
	return existing
}

func cloneAnyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
