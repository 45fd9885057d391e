package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentmem/types"
)

// ConsolidationReport summarizes a single consolidation pass.
type ConsolidationReport struct {
	Promoted    int                            `json:"promoted"`
	Concepts    int                            `json:"concepts"`
	Generalized int                            `json:"generalized"`
	Forgotten   map[types.MemoryCategory]int   `json:"forgotten"`
	Aggressive  bool                           `json:"aggressive"`
	Duration    time.Duration                  `json:"duration"`
	StartedAt   time.Time                      `json:"started_at"`
}

// Consolidator runs the four-phase maintenance pass across tiers: promote
// important short-term records into episodic, extract concepts from recent
// episode clusters, generalize similar skills, then sweep decayed records.
// Each pass runs to completion; there is no partial or resumable state.
type Consolidator struct {
	mu      sync.Mutex
	lastRun time.Time

	shortTerm  *ShortTermTier
	episodic   *EpisodicTier
	semantic   *SemanticTier
	procedural *ProceduralTier

	cfg    Config
	now    func() time.Time
	logger *zap.Logger
}

// NewConsolidator wires the consolidator to the four tiers it maintains.
func NewConsolidator(cfg Config, shortTerm *ShortTermTier, episodic *EpisodicTier, semantic *SemanticTier, procedural *ProceduralTier, logger *zap.Logger) *Consolidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consolidator{
		shortTerm:  shortTerm,
		episodic:   episodic,
		semantic:   semantic,
		procedural: procedural,
		cfg:        cfg,
		now:        cfg.clock(),
		logger:     logger.With(zap.String("component", "consolidator")),
	}
}

// Consolidate performs one full pass. Phase errors are logged and the pass
// continues; only a cancelled context aborts early.
func (c *Consolidator) Consolidate(ctx context.Context) (*ConsolidationReport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := c.now()
	report := &ConsolidationReport{
		StartedAt: start,
		Forgotten: make(map[types.MemoryCategory]int),
	}
	// More than a day between passes means decay has accumulated; the sweep
	// thresholds are raised so the backlog actually clears.
	report.Aggressive = !c.lastRun.IsZero() && start.Sub(c.lastRun) > 24*time.Hour

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report.Promoted = c.promote(ctx)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report.Concepts = c.extract(ctx)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report.Generalized = c.generalize(ctx)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.sweep(ctx, report)

	c.lastRun = start
	report.Duration = c.now().Sub(start)

	c.logger.Info("consolidation complete",
		zap.Int("promoted", report.Promoted),
		zap.Int("concepts", report.Concepts),
		zap.Int("generalized", report.Generalized),
		zap.Bool("aggressive", report.Aggressive),
		zap.Duration("duration", report.Duration))
	return report, nil
}

// promote moves important short-term records into episodic memory. Each
// insert is still subject to the episodic significance gate. A record
// already promoted on an earlier pass is skipped: re-storing would
// overwrite the episode's accumulated access history.
func (c *Consolidator) promote(ctx context.Context) int {
	promoted := 0
	for _, rec := range c.shortTerm.Important(c.cfg.PromotionThreshold) {
		if _, exists := c.episodic.Get(rec.ID); exists {
			continue
		}
		episode := &EpisodicRecord{
			Record:       *rec,
			Significance: rec.Payload.Significance,
			Emotions:     rec.Payload.Emotions,
		}
		stored, err := c.episodic.Store(ctx, episode)
		if err != nil {
			c.logger.Warn("promotion failed", zap.String("id", rec.ID), zap.Error(err))
			continue
		}
		if stored {
			promoted++
		}
	}
	return promoted
}

// extract clusters episodes created within the extraction window by tag
// overlap and synthesizes a concept per cluster of three or more. Concept
// ids are derived from the shared tags, so re-running extraction over the
// same episodes updates the same concept instead of minting duplicates.
func (c *Consolidator) extract(ctx context.Context) int {
	cutoff := c.now().Add(-c.cfg.ExtractionWindow)
	recent := c.episodic.RecentSince(cutoff)
	if len(recent) < 3 {
		return 0
	}

	// Greedy clustering: each episode seeds a group and absorbs every
	// later episode sharing at least two tags with the seed.
	assigned := make(map[string]bool, len(recent))
	created := 0
	for _, seed := range recent {
		if assigned[seed.ID] || len(seed.Payload.Tags) == 0 {
			continue
		}
		group := []*EpisodicRecord{seed}
		for _, other := range recent {
			if other.ID == seed.ID || assigned[other.ID] {
				continue
			}
			if tagOverlap(seed.Payload.Tags, other.Payload.Tags) >= 2 {
				group = append(group, other)
			}
		}
		if len(group) < 3 {
			continue
		}
		for _, member := range group {
			assigned[member.ID] = true
		}
		if c.synthesizeConcept(ctx, group) {
			created++
		}
	}
	return created
}

// synthesizeConcept builds a concept from the tags shared by every group
// member. Returns false when the group is already covered by an existing
// concept or the merge fails.
func (c *Consolidator) synthesizeConcept(ctx context.Context, group []*EpisodicRecord) bool {
	shared := sharedTags(group)
	if len(shared) == 0 {
		return false
	}

	ids := make([]string, 0, len(group))
	for _, member := range group {
		ids = append(ids, member.ID)
	}
	sort.Strings(ids)

	conceptID := "concept:" + strings.Join(shared, "+")
	if existing, ok := c.semantic.Get(conceptID); ok && coversAll(existing.SourceEpisodes, ids) {
		// The pass has already seen these episodes; merging again would only
		// inflate the confidence.
		return false
	}

	fact := types.KnowledgeFact{
		ConceptID: conceptID,
		Name:      strings.Join(shared, " "),
		Properties: map[string]any{
			"episode_count": len(group),
			"tags":          shared,
		},
		Confidence:     minFloat(1.0, float64(len(group))/10.0),
		SourceEpisodes: ids,
	}
	if _, err := c.semantic.Store(ctx, fact); err != nil {
		c.logger.Warn("concept extraction failed",
			zap.String("concept", conceptID), zap.Error(err))
		return false
	}
	return true
}

// generalize groups skills whose trigger key sets overlap by at least 70%
// and, when the group's mean success rate exceeds 0.8, synthesizes a
// generalized skill. Trigger values every member agrees on stay exact;
// numeric disagreements widen into a range descriptor; anything else is
// dropped from the generalized triggers.
func (c *Consolidator) generalize(ctx context.Context) int {
	skills := c.procedural.All()
	if len(skills) < 2 {
		return 0
	}
	sort.Slice(skills, func(i, j int) bool { return skills[i].ID < skills[j].ID })

	assigned := make(map[string]bool, len(skills))
	created := 0
	for _, seed := range skills {
		if assigned[seed.ID] || strings.HasPrefix(seed.ID, "gen:") {
			continue
		}
		group := []*SkillRecord{seed}
		for _, other := range skills {
			if other.ID == seed.ID || assigned[other.ID] || strings.HasPrefix(other.ID, "gen:") {
				continue
			}
			if keyOverlap(seed.Triggers, other.Triggers) >= 0.7 {
				group = append(group, other)
			}
		}
		if len(group) < 2 {
			continue
		}

		var total float64
		for _, member := range group {
			total += member.SuccessRate
		}
		mean := total / float64(len(group))
		if mean <= 0.8 {
			continue
		}

		for _, member := range group {
			assigned[member.ID] = true
		}
		if c.synthesizeSkill(ctx, group, mean) {
			created++
		}
	}
	return created
}

func (c *Consolidator) synthesizeSkill(ctx context.Context, group []*SkillRecord, mean float64) bool {
	id := "gen:" + group[0].PatternKey()
	if _, ok := c.procedural.Get(id); ok {
		return false
	}

	sample := types.SkillSample{
		SkillID:  id,
		Name:     "generalized " + group[0].Name,
		Triggers: generalizeTriggers(group),
		// Documented simplification: the action sequence of one member,
		// capped at three steps.
		Actions: firstN(group[0].Actions, 3),
		Outcome: mean,
	}
	if _, err := c.procedural.Store(ctx, sample); err != nil {
		c.logger.Warn("skill generalization failed", zap.String("id", id), zap.Error(err))
		return false
	}
	return true
}

// generalizeTriggers keeps keys present in every group member: exact values
// when all agree, a numeric range when they disagree numerically.
func generalizeTriggers(group []*SkillRecord) map[string]any {
	out := make(map[string]any)
	for key, first := range group[0].Triggers {
		values := make([]any, 0, len(group))
		all := true
		for _, member := range group {
			v, ok := member.Triggers[key]
			if !ok {
				all = false
				break
			}
			values = append(values, v)
		}
		if !all {
			continue
		}

		agree := true
		for _, v := range values[1:] {
			if !literalEqual(first, v) {
				agree = false
				break
			}
		}
		if agree {
			out[key] = first
			continue
		}

		min, max, numeric := numericBounds(values)
		if numeric {
			out[key] = Condition{Operator: "range", Min: min, Max: max}
		}
	}
	return out
}

func numericBounds(values []any) (min, max float64, ok bool) {
	for i, v := range values {
		n, isNum := toFloat(v)
		if !isNum {
			return 0, 0, false
		}
		if i == 0 || n < min {
			min = n
		}
		if i == 0 || n > max {
			max = n
		}
	}
	return min, max, true
}

// sweep runs forget across the four decaying tiers, raising thresholds
// when the pass is overdue.
func (c *Consolidator) sweep(ctx context.Context, report *ConsolidationReport) {
	boost := 0.0
	if report.Aggressive {
		boost = c.cfg.AggressiveBoost
	}

	report.Forgotten[types.MemoryShortTerm] = c.shortTerm.Forget(c.cfg.ShortTermForgetThreshold + boost)

	if n, err := c.episodic.Forget(ctx, c.cfg.EpisodicForgetThreshold+boost); err != nil {
		c.logger.Warn("episodic sweep incomplete", zap.Error(err))
	} else {
		report.Forgotten[types.MemoryEpisodic] = n
	}

	if n, err := c.semantic.Forget(ctx, c.cfg.SemanticForgetThreshold+boost); err != nil {
		c.logger.Warn("semantic sweep incomplete", zap.Error(err))
	} else {
		report.Forgotten[types.MemorySemantic] = n
	}

	if n, err := c.procedural.Forget(ctx, c.cfg.ProceduralForgetThreshold+boost); err != nil {
		c.logger.Warn("procedural sweep incomplete", zap.Error(err))
	} else {
		report.Forgotten[types.MemoryProcedural] = n
	}
}

// sharedTags returns the sorted intersection of every member's tag set.
func sharedTags(group []*EpisodicRecord) []string {
	if len(group) == 0 {
		return nil
	}
	counts := make(map[string]int)
	for _, member := range group {
		seen := make(map[string]struct{}, len(member.Payload.Tags))
		for _, tag := range member.Payload.Tags {
			if _, dup := seen[tag]; dup {
				continue
			}
			seen[tag] = struct{}{}
			counts[tag]++
		}
	}
	shared := make([]string, 0, len(counts))
	for tag, n := range counts {
		if n == len(group) {
			shared = append(shared, tag)
		}
	}
	sort.Strings(shared)
	return shared
}

// coversAll reports whether have contains every id in want.
func coversAll(have, want []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, id := range have {
		set[id] = struct{}{}
	}
	for _, id := range want {
		if _, ok := set[id]; !ok {
			return false
		}
	}
	return true
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func firstN(s []string, n int) []string {
	if len(s) <= n {
		return append([]string(nil), s...)
	}
	return append([]string(nil), s[:n]...)
}
