package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentmem/embedding"
	"github.com/BaSui01/agentmem/store"
	"github.com/BaSui01/agentmem/types"
)

func newEpisodicFixture(t *testing.T, cfg Config, embedder embedding.Provider, recStore store.RecordStore) *EpisodicTier {
	t.Helper()
	if recStore == nil {
		recStore = store.NewInMemoryStore(nil)
	}
	tier, err := NewEpisodicTier(context.Background(), cfg, embedder, recStore, nil)
	require.NoError(t, err)
	return tier
}

func newEpisode(id, content string, significance float64, at time.Time) *EpisodicRecord {
	return &EpisodicRecord{
		Record: Record{
			ID:        id,
			CreatedAt: at,
			Payload: types.ExperiencePayload{
				Kind:         types.ExperienceObservation,
				Content:      content,
				Significance: significance,
			},
		},
		Significance: significance,
	}
}

func TestEpisodicTier_SignificanceGate(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := DefaultConfig()
	cfg.AgentID = "a1"
	cfg.Now = func() time.Time { return now }
	tier := newEpisodicFixture(t, cfg, embedding.NewLocalProvider(16), nil)

	ctx := context.Background()

	stored, err := tier.Store(ctx, newEpisode("below", "minor event", 0.5, now))
	require.NoError(t, err)
	require.False(t, stored)

	stored, err = tier.Store(ctx, newEpisode("at", "major event", 0.6, now))
	require.NoError(t, err)
	require.True(t, stored)

	require.Equal(t, 1, tier.Size())
}

func TestEpisodicTier_RejectsOutOfRangeSignificance(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := DefaultConfig()
	cfg.AgentID = "a1"
	cfg.Now = func() time.Time { return now }
	tier := newEpisodicFixture(t, cfg, embedding.NewLocalProvider(16), nil)

	ctx := context.Background()

	stored, err := tier.Store(ctx, newEpisode("big", "event", 1.5, now))
	require.NoError(t, err)
	require.False(t, stored)

	stored, err = tier.Store(ctx, newEpisode("neg", "event", -0.1, now))
	require.NoError(t, err)
	require.False(t, stored)

	require.Equal(t, 0, tier.Size())
}

func TestEpisodicTier_RelatedLinks(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := DefaultConfig()
	cfg.AgentID = "a1"
	cfg.RelatedLinks = 2
	cfg.Now = func() time.Time { return now }
	tier := newEpisodicFixture(t, cfg, embedding.NewLocalProvider(32), nil)

	ctx := context.Background()
	contents := []string{
		"cooked pasta with tomato sauce",
		"cooked pasta with pesto sauce",
		"cooked pasta with cream sauce",
		"attended quantum physics lecture",
	}
	for i, content := range contents {
		id := string(rune('a' + i))
		_, err := tier.Store(ctx, newEpisode(id, content, 0.9, now))
		require.NoError(t, err)
	}

	// The last pasta episode links to its nearest neighbours, capped at 2.
	rec, ok := tier.Get("c")
	require.True(t, ok)
	require.Len(t, rec.Related, 2)
	require.Contains(t, []string{"a", "b"}, rec.Related[0])

	// The first episode had no peers at insert time and stays unlinked.
	first, ok := tier.Get("a")
	require.True(t, ok)
	require.Empty(t, first.Related)
}

func TestEpisodicTier_RetrieveBySimilarity(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := DefaultConfig()
	cfg.AgentID = "a1"
	cfg.Now = func() time.Time { return now }
	tier := newEpisodicFixture(t, cfg, embedding.NewLocalProvider(64), nil)

	ctx := context.Background()
	_, err := tier.Store(ctx, newEpisode("cook", "cooking dinner pasta kitchen", 0.9, now))
	require.NoError(t, err)
	_, err = tier.Store(ctx, newEpisode("phys", "quantum physics lecture notes", 0.9, now.Add(time.Minute)))
	require.NoError(t, err)

	results, err := tier.Retrieve(ctx, "cooking pasta kitchen", 2, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "cook", results[0].ID)

	// Access was tracked on everything returned.
	require.Equal(t, 1, results[0].AccessCount)
	require.NotNil(t, results[0].LastAccess)
}

func TestEpisodicTier_RetrieveDegradesToRecency(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := DefaultConfig()
	cfg.AgentID = "a1"
	cfg.Now = func() time.Time { return now }
	tier := newEpisodicFixture(t, cfg, nil, nil) // no embedder

	ctx := context.Background()
	_, err := tier.Store(ctx, newEpisode("old", "first thing", 0.9, now.Add(-time.Hour)))
	require.NoError(t, err)
	_, err = tier.Store(ctx, newEpisode("new", "second thing", 0.9, now))
	require.NoError(t, err)

	results, err := tier.Retrieve(ctx, "first thing", 2, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "new", results[0].ID)
}

func TestEpisodicTier_RetrieveFiltersSignificance(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := DefaultConfig()
	cfg.AgentID = "a1"
	cfg.SignificanceThreshold = 0.1
	cfg.Now = func() time.Time { return now }
	tier := newEpisodicFixture(t, cfg, nil, nil)

	ctx := context.Background()
	_, err := tier.Store(ctx, newEpisode("minor", "minor", 0.2, now))
	require.NoError(t, err)
	_, err = tier.Store(ctx, newEpisode("major", "major", 0.9, now))
	require.NoError(t, err)

	results, err := tier.Retrieve(ctx, "", 10, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "major", results[0].ID)
}

func TestEpisodicTier_RestartRebuildsIndex(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := DefaultConfig()
	cfg.AgentID = "a1"
	cfg.Now = func() time.Time { return now }
	recStore := store.NewInMemoryStore(nil)

	tier := newEpisodicFixture(t, cfg, embedding.NewLocalProvider(32), recStore)
	ctx := context.Background()
	_, err := tier.Store(ctx, newEpisode("e1", "walked in the park", 0.9, now))
	require.NoError(t, err)
	_, err = tier.Store(ctx, newEpisode("e2", "walked in the rain", 0.9, now))
	require.NoError(t, err)

	reloaded := newEpisodicFixture(t, cfg, embedding.NewLocalProvider(32), recStore)
	require.Equal(t, 2, reloaded.Size())

	results, err := reloaded.Retrieve(ctx, "walked in the park", 1, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "e1", results[0].ID)
}

func TestEpisodicTier_LoadSkipsMalformed(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := DefaultConfig()
	cfg.AgentID = "a1"
	cfg.Now = func() time.Time { return now }
	recStore := store.NewInMemoryStore(nil)

	ctx := context.Background()
	require.NoError(t, recStore.Put(ctx, "a1:episodic", "bad", []byte("{not json")))

	tier := newEpisodicFixture(t, cfg, nil, recStore)
	require.Equal(t, 0, tier.Size())

	_, err := tier.Store(ctx, newEpisode("good", "fine", 0.9, now))
	require.NoError(t, err)

	reloaded := newEpisodicFixture(t, cfg, nil, recStore)
	require.Equal(t, 1, reloaded.Size())
}

func TestEpisodicTier_ForgetRebuildsAndFiltersDanglingLinks(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := DefaultConfig()
	cfg.AgentID = "a1"
	cfg.Now = func() time.Time { return now }
	recStore := store.NewInMemoryStore(nil)
	tier := newEpisodicFixture(t, cfg, embedding.NewLocalProvider(32), recStore)

	ctx := context.Background()
	_, err := tier.Store(ctx, newEpisode("keep", "hiking trip mountain trail", 0.9, now))
	require.NoError(t, err)
	_, err = tier.Store(ctx, newEpisode("drop", "hiking trip forest trail", 0.9, now))
	require.NoError(t, err)
	_, err = tier.Store(ctx, newEpisode("last", "hiking trip river trail", 0.9, now))
	require.NoError(t, err)

	linked, ok := tier.Get("last")
	require.True(t, ok)
	require.Contains(t, linked.Related, "keep")
	require.Contains(t, linked.Related, "drop")

	// Age one record's access so its strength falls below the threshold;
	// never-accessed records always survive a sweep.
	tier.mu.Lock()
	past := now.Add(-100 * time.Hour)
	tier.records["drop"].LastAccess = &past
	tier.records["drop"].AccessCount = 1
	tier.mu.Unlock()

	removed, err := tier.Forget(ctx, 0.25)
	require.NoError(t, err)
	require.Equal(t, 1, removed)
	require.Equal(t, 2, tier.Size())

	_, ok = tier.Get("drop")
	require.False(t, ok)

	// The survivor's link to the removed record is filtered at read time;
	// links to live records survive.
	survivor, ok := tier.Get("last")
	require.True(t, ok)
	require.NotContains(t, survivor.Related, "drop")
	require.Contains(t, survivor.Related, "keep")

	// The persisted copy was deleted too.
	_, err = recStore.Get(ctx, "a1:episodic", "drop")
	require.ErrorIs(t, err, store.ErrNotFound)
}
