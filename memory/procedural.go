package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/agentmem/store"
	"github.com/BaSui01/agentmem/types"
)

// Condition is a trigger comparison descriptor. Operator is one of
// "contains", ">", "<", or "range" (range carries Min/Max and is produced
// by skill generalization).
type Condition struct {
	Operator string  `json:"operator"`
	Value    any     `json:"value,omitempty"`
	Min      float64 `json:"min,omitempty"`
	Max      float64 `json:"max,omitempty"`
}

// SkillRecord is a learned skill: trigger conditions, an ordered action
// sequence, and success tracking. Trigger values are either literals or
// Condition descriptors.
type SkillRecord struct {
	Record
	Name        string         `json:"name"`
	Triggers    map[string]any `json:"triggers,omitempty"`
	Actions     []string       `json:"actions,omitempty"`
	SuccessRate float64        `json:"success_rate"`
	UsageCount  int            `json:"usage_count"`
	Refinements []string       `json:"refinements,omitempty"`
}

// PatternKey derives the index key grouping related skills: the sorted
// trigger condition keys joined by "|".
func (s *SkillRecord) PatternKey() string {
	return patternKey(s.Triggers)
}

func patternKey(triggers map[string]any) string {
	keys := make([]string, 0, len(triggers))
	for k := range triggers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, "|")
}

// ProceduralTier is the skill library. Re-storing an existing skill id
// folds the new outcome into a running-mean success rate; retrieval matches
// trigger conditions against a caller context.
type ProceduralTier struct {
	mu     sync.Mutex
	skills map[string]*SkillRecord
	// patterns maps a pattern key to the skill ids sharing it.
	patterns map[string][]string

	persister store.RecordStore
	namespace string
	cfg       Config
	now       func() time.Time
	logger    *zap.Logger
}

// NewProceduralTier creates a procedural tier and loads the persisted skill
// set. Malformed records are skipped with a log.
func NewProceduralTier(ctx context.Context, cfg Config, persister store.RecordStore, logger *zap.Logger) (*ProceduralTier, error) {
	if persister == nil {
		return nil, fmt.Errorf("record store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	t := &ProceduralTier{
		skills:    make(map[string]*SkillRecord),
		patterns:  make(map[string][]string),
		persister: persister,
		namespace: cfg.AgentID + ":procedural",
		cfg:       cfg,
		now:       cfg.clock(),
		logger:    logger.With(zap.String("tier", "procedural")),
	}

	persisted, err := persister.List(ctx, t.namespace)
	if err != nil {
		return nil, fmt.Errorf("load procedural records: %w", err)
	}
	for id, data := range persisted {
		var rec SkillRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			t.logger.Warn("skipping malformed skill record",
				zap.String("id", id), zap.Error(err))
			continue
		}
		t.skills[rec.ID] = &rec
		key := rec.PatternKey()
		t.patterns[key] = append(t.patterns[key], rec.ID)
	}

	t.logger.Info("procedural tier loaded", zap.Int("skills", len(t.skills)))
	return t, nil
}

// Store merges sample into an existing skill (usage count up, success rate
// folded as a running mean, refinement note appended) or creates a new one.
func (t *ProceduralTier) Store(ctx context.Context, sample types.SkillSample) (*SkillRecord, error) {
	if sample.Name == "" && sample.SkillID == "" {
		return nil, fmt.Errorf("skill sample needs a skill id or name")
	}
	if sample.Outcome < 0 || sample.Outcome > 1 {
		return nil, fmt.Errorf("skill outcome %v outside [0,1]", sample.Outcome)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	id := sample.SkillID
	if id == "" {
		id = uuid.NewString()
	}

	rec, exists := t.skills[id]
	if exists {
		// Running mean including the new outcome.
		total := rec.SuccessRate*float64(rec.UsageCount) + sample.Outcome
		rec.UsageCount++
		rec.SuccessRate = total / float64(rec.UsageCount)
		if sample.Refinement != "" {
			rec.Refinements = append(rec.Refinements, sample.Refinement)
		}
	} else {
		rec = &SkillRecord{
			Record: Record{
				ID:        id,
				CreatedAt: t.now(),
				Payload: types.ExperiencePayload{
					Kind:    types.ExperienceSkill,
					Content: sample.Name,
				},
				DecayRate: t.cfg.ProceduralDecayRate,
			},
			Name:        sample.Name,
			Triggers:    cloneAnyMap(sample.Triggers),
			Actions:     append([]string(nil), sample.Actions...),
			SuccessRate: sample.Outcome,
			UsageCount:  1,
		}
		if sample.Refinement != "" {
			rec.Refinements = []string{sample.Refinement}
		}
		t.skills[id] = rec
		key := rec.PatternKey()
		t.patterns[key] = append(t.patterns[key], id)
	}

	if err := t.persistLocked(ctx, rec); err != nil {
		return nil, err
	}

	t.logger.Debug("skill stored",
		zap.String("id", rec.ID),
		zap.String("name", rec.Name),
		zap.Float64("success_rate", rec.SuccessRate),
		zap.Int("usage", rec.UsageCount))
	return rec, nil
}

func (t *ProceduralTier) persistLocked(ctx context.Context, rec *SkillRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal skill record: %w", err)
	}
	if err := t.persister.Put(ctx, t.namespace, rec.ID, data); err != nil {
		return fmt.Errorf("persist skill record: %w", err)
	}
	return nil
}

// Retrieve returns skills whose trigger conditions match callerContext and
// whose success rate is at least minSuccessRate, sorted by success rate
// then usage count descending. Access is recorded on everything returned.
func (t *ProceduralTier) Retrieve(ctx context.Context, callerContext map[string]any, minSuccessRate float64) []*SkillRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*SkillRecord, 0)
	for _, rec := range t.skills {
		if rec.SuccessRate < minSuccessRate {
			continue
		}
		if !matchTriggers(rec.Triggers, callerContext) {
			continue
		}
		out = append(out, rec)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].SuccessRate != out[j].SuccessRate {
			return out[i].SuccessRate > out[j].SuccessRate
		}
		return out[i].UsageCount > out[j].UsageCount
	})

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

// All returns a snapshot of every skill. The consolidator uses this for
// generalization grouping.
func (t *ProceduralTier) All() []*SkillRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*SkillRecord, 0, len(t.skills))
	for _, rec := range t.skills {
		out = append(out, rec)
	}
	return out
}

// Get returns a skill by id.
func (t *ProceduralTier) Get(id string) (*SkillRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.skills[id]
	return rec, ok
}

// Forget removes skills whose success rate is below threshold AND whose
// usage count is below 3. The conjunction is deliberate: rarely used but
// promising skills survive until they have had three chances.
func (t *ProceduralTier) Forget(ctx context.Context, threshold float64) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	var lastErr error
	for id, rec := range t.skills {
		if rec.SuccessRate >= threshold || rec.UsageCount >= 3 {
			continue
		}
		if err := t.persister.Delete(ctx, t.namespace, id); err != nil {
			lastErr = err
			t.logger.Warn("failed to delete persisted skill",
				zap.String("id", id), zap.Error(err))
			continue
		}
		delete(t.skills, id)
		t.removePatternLocked(rec.PatternKey(), id)
		removed++
	}

	if removed > 0 {
		t.logger.Debug("procedural forget", zap.Int("removed", removed))
	}
	return removed, lastErr
}

func (t *ProceduralTier) removePatternLocked(key, id string) {
	ids := t.patterns[key]
	for i, candidate := range ids {
		if candidate == id {
			t.patterns[key] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(t.patterns[key]) == 0 {
		delete(t.patterns, key)
	}
}

// Size returns the number of skills currently held.
func (t *ProceduralTier) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.skills)
}

// matchTriggers reports whether callerContext satisfies every trigger
// condition: each condition key must be present, and its value must either
// equal the literal or satisfy the comparison descriptor.
func matchTriggers(triggers map[string]any, callerContext map[string]any) bool {
	for key, want := range triggers {
		got, ok := callerContext[key]
		if !ok {
			return false
		}
		cond, isCond := asCondition(want)
		if !isCond {
			if !literalEqual(want, got) {
				return false
			}
			continue
		}
		if !cond.matches(got) {
			return false
		}
	}
	return true
}

// asCondition recognizes a Condition in its native form or as the generic
// map a JSON reload produces.
func asCondition(v any) (Condition, bool) {
	switch c := v.(type) {
	case Condition:
		return c, true
	case *Condition:
		return *c, true
	case map[string]any:
		op, ok := c["operator"].(string)
		if !ok || op == "" {
			return Condition{}, false
		}
		cond := Condition{Operator: op, Value: c["value"]}
		if min, ok := toFloat(c["min"]); ok {
			cond.Min = min
		}
		if max, ok := toFloat(c["max"]); ok {
			cond.Max = max
		}
		return cond, true
	default:
		return Condition{}, false
	}
}

func (c Condition) matches(got any) bool {
	switch c.Operator {
	case "contains":
		return containsValue(got, c.Value)
	case ">":
		gotN, ok1 := toFloat(got)
		wantN, ok2 := toFloat(c.Value)
		return ok1 && ok2 && gotN > wantN
	case "<":
		gotN, ok1 := toFloat(got)
		wantN, ok2 := toFloat(c.Value)
		return ok1 && ok2 && gotN < wantN
	case "range":
		gotN, ok := toFloat(got)
		return ok && gotN >= c.Min && gotN <= c.Max
	default:
		return false
	}
}

// containsValue checks substring containment for strings and membership
// for slices.
func containsValue(haystack, needle any) bool {
	switch h := haystack.(type) {
	case string:
		n, ok := needle.(string)
		return ok && strings.Contains(h, n)
	case []string:
		for _, item := range h {
			if literalEqual(item, needle) {
				return true
			}
		}
	case []any:
		for _, item := range h {
			if literalEqual(item, needle) {
				return true
			}
		}
	}
	return false
}

func literalEqual(a, b any) bool {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}
		return false
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
