package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentmem/store"
	"github.com/BaSui01/agentmem/types"
)

type consolidatorFixture struct {
	shortTerm  *ShortTermTier
	episodic   *EpisodicTier
	semantic   *SemanticTier
	procedural *ProceduralTier
	consolid   *Consolidator
	recStore   *store.InMemoryStore
}

func newConsolidatorFixture(t *testing.T, cfg Config) *consolidatorFixture {
	t.Helper()
	ctx := context.Background()
	recStore := store.NewInMemoryStore(nil)

	episodic, err := NewEpisodicTier(ctx, cfg, nil, recStore, nil)
	require.NoError(t, err)
	semantic, err := NewSemanticTier(ctx, cfg, recStore, nil)
	require.NoError(t, err)
	procedural, err := NewProceduralTier(ctx, cfg, recStore, nil)
	require.NoError(t, err)
	shortTerm := NewShortTermTier(cfg, nil)

	return &consolidatorFixture{
		shortTerm:  shortTerm,
		episodic:   episodic,
		semantic:   semantic,
		procedural: procedural,
		consolid:   NewConsolidator(cfg, shortTerm, episodic, semantic, procedural, nil),
		recStore:   recStore,
	}
}

func TestConsolidator_PromotesImportantShortTermRecords(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := DefaultConfig()
	cfg.AgentID = "a1"
	cfg.Now = func() time.Time { return now }
	f := newConsolidatorFixture(t, cfg)

	important := newTestRecord("imp", now)
	important.Payload = types.ExperiencePayload{
		Kind:         types.ExperienceObservation,
		Content:      "won the tournament",
		Significance: 0.9,
	}
	trivial := newTestRecord("triv", now)
	trivial.Payload = types.ExperiencePayload{
		Kind:         types.ExperienceObservation,
		Content:      "tied my shoes",
		Significance: 0.2,
	}
	f.shortTerm.Store(important)
	f.shortTerm.Store(trivial)

	report, err := f.consolid.Consolidate(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Promoted)

	promoted, ok := f.episodic.Get("imp")
	require.True(t, ok)
	require.Equal(t, 0.9, promoted.Significance)

	_, ok = f.episodic.Get("triv")
	require.False(t, ok)
}

func TestConsolidator_PromotionKeepsEpisodeAccessHistory(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := DefaultConfig()
	cfg.AgentID = "a1"
	cfg.Now = func() time.Time { return now }
	f := newConsolidatorFixture(t, cfg)

	important := newTestRecord("imp", now)
	important.Payload = types.ExperiencePayload{
		Kind:         types.ExperienceObservation,
		Content:      "won the tournament",
		Significance: 0.9,
	}
	f.shortTerm.Store(important)

	ctx := context.Background()
	_, err := f.consolid.Consolidate(ctx)
	require.NoError(t, err)

	// Retrieval between passes accumulates access history on the episode.
	results, err := f.episodic.Retrieve(ctx, "tournament", 1, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, 1, results[0].AccessCount)

	// The record is still in the short-term window, but re-promoting it
	// must not overwrite the episode with a fresh snapshot.
	report, err := f.consolid.Consolidate(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, report.Promoted)

	promoted, ok := f.episodic.Get("imp")
	require.True(t, ok)
	require.Equal(t, 1, promoted.AccessCount)
	require.NotNil(t, promoted.LastAccess)
}

func TestConsolidator_ExtractsConceptsFromTagClusters(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := DefaultConfig()
	cfg.AgentID = "a1"
	cfg.Now = func() time.Time { return now }
	f := newConsolidatorFixture(t, cfg)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		ep := newEpisode(fmt.Sprintf("pasta%d", i), "made pasta", 0.9, now.Add(-time.Duration(i)*time.Hour))
		ep.Payload.Tags = []string{"cooking", "pasta", fmt.Sprintf("day%d", i)}
		_, err := f.episodic.Store(ctx, ep)
		require.NoError(t, err)
	}
	// An unrelated episode that shares no tags stays out of the cluster.
	loner := newEpisode("run", "went running", 0.9, now)
	loner.Payload.Tags = []string{"exercise"}
	_, err := f.episodic.Store(ctx, loner)
	require.NoError(t, err)

	report, err := f.consolid.Consolidate(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Concepts)

	concept, ok := f.semantic.Get("concept:cooking+pasta")
	require.True(t, ok)
	require.InDelta(t, 0.3, concept.Confidence, 1e-12)
	require.ElementsMatch(t, []string{"pasta0", "pasta1", "pasta2"}, concept.SourceEpisodes)

	// A second pass over the same episodes does not mint a duplicate or
	// inflate the confidence.
	report, err = f.consolid.Consolidate(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, report.Concepts)

	concept, ok = f.semantic.Get("concept:cooking+pasta")
	require.True(t, ok)
	require.InDelta(t, 0.3, concept.Confidence, 1e-12)
}

func TestConsolidator_ExtractionWindowExcludesOldEpisodes(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := DefaultConfig()
	cfg.AgentID = "a1"
	cfg.Now = func() time.Time { return now }
	f := newConsolidatorFixture(t, cfg)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		ep := newEpisode(fmt.Sprintf("old%d", i), "ancient history", 0.9, now.Add(-8*24*time.Hour))
		ep.Payload.Tags = []string{"travel", "rome"}
		_, err := f.episodic.Store(ctx, ep)
		require.NoError(t, err)
	}

	report, err := f.consolid.Consolidate(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, report.Concepts)
}

func TestConsolidator_GeneralizesSimilarSkills(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := DefaultConfig()
	cfg.AgentID = "a1"
	cfg.Now = func() time.Time { return now }
	f := newConsolidatorFixture(t, cfg)

	ctx := context.Background()
	_, err := f.procedural.Store(ctx, types.SkillSample{
		SkillID:  "warm-low",
		Name:     "warm up slowly",
		Triggers: map[string]any{"temperature": 10, "mode": "heat"},
		Actions:  []string{"open valve", "wait"},
		Outcome:  0.9,
	})
	require.NoError(t, err)
	_, err = f.procedural.Store(ctx, types.SkillSample{
		SkillID:  "warm-high",
		Name:     "warm up fast",
		Triggers: map[string]any{"temperature": 30, "mode": "heat"},
		Actions:  []string{"open valve wide", "wait", "check gauge", "close valve"},
		Outcome:  0.95,
	})
	require.NoError(t, err)

	report, err := f.consolid.Consolidate(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Generalized)

	gen, ok := f.procedural.Get("gen:mode|temperature")
	require.True(t, ok)
	require.InDelta(t, 0.925, gen.SuccessRate, 1e-12)
	require.Len(t, gen.Actions, 3)

	// Agreed values stay exact; numeric disagreement widens to a range.
	require.Equal(t, "heat", gen.Triggers["mode"])
	cond, ok := gen.Triggers["temperature"].(Condition)
	require.True(t, ok)
	require.Equal(t, "range", cond.Operator)
	require.Equal(t, 10.0, cond.Min)
	require.Equal(t, 30.0, cond.Max)

	// The generalized skill matches anywhere inside the range.
	results := f.procedural.Retrieve(ctx, map[string]any{"temperature": 20, "mode": "heat"}, 0)
	require.Len(t, results, 1)
	require.Equal(t, "gen:mode|temperature", results[0].ID)

	// Re-running does not duplicate the generalized skill or fold its own
	// success rate back into itself.
	report, err = f.consolid.Consolidate(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, report.Generalized)

	gen, ok = f.procedural.Get("gen:mode|temperature")
	require.True(t, ok)
	require.Equal(t, 1, gen.UsageCount)
}

func TestConsolidator_SkipsLowSuccessGroups(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := DefaultConfig()
	cfg.AgentID = "a1"
	cfg.Now = func() time.Time { return now }
	f := newConsolidatorFixture(t, cfg)

	ctx := context.Background()
	_, err := f.procedural.Store(ctx, types.SkillSample{
		SkillID: "s1", Name: "s1", Triggers: map[string]any{"k": 1}, Outcome: 0.5,
	})
	require.NoError(t, err)
	_, err = f.procedural.Store(ctx, types.SkillSample{
		SkillID: "s2", Name: "s2", Triggers: map[string]any{"k": 2}, Outcome: 0.9,
	})
	require.NoError(t, err)

	report, err := f.consolid.Consolidate(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, report.Generalized) // mean 0.7 <= 0.8
}

func TestConsolidator_DecaySweepAndAggressiveFlag(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := &now
	cfg := DefaultConfig()
	cfg.AgentID = "a1"
	cfg.Now = func() time.Time { return *clock }
	f := newConsolidatorFixture(t, cfg)

	ctx := context.Background()
	expired := newTestRecord("expired", now.Add(-2*time.Hour))
	f.shortTerm.Store(expired)

	report, err := f.consolid.Consolidate(ctx)
	require.NoError(t, err)
	require.False(t, report.Aggressive)
	require.Equal(t, 1, report.Forgotten[types.MemoryShortTerm])

	// A pass more than 24 hours after the previous one raises thresholds.
	*clock = now.Add(30 * time.Hour)
	report, err = f.consolid.Consolidate(ctx)
	require.NoError(t, err)
	require.True(t, report.Aggressive)
}
