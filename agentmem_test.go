package agentmem

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentmem/memory"
	"github.com/BaSui01/agentmem/types"
)

func TestNewDefaults(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	sys, err := New(ctx, "agent-1")
	require.NoError(t, err)

	id, err := sys.StoreExperience(ctx, types.ExperiencePayload{
		Kind:         types.ExperienceObservation,
		Content:      "the deploy succeeded on the third attempt",
		Significance: 0.9,
	}, nil)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	recall, err := sys.RetrieveRelevant(ctx, "deploy", nil)
	require.NoError(t, err)
	require.NotEmpty(t, recall.Working)
	require.NotEmpty(t, recall.Episodic)
}

func TestNewRequiresAgentID(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), "")
	require.Error(t, err)
}

func TestNewWithOptions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	cfg := memory.DefaultConfig()
	cfg.WorkingCapacity = 3
	cfg.AgentID = "ignored" // the constructor argument wins

	reg := prometheus.NewRegistry()
	sys, err := New(ctx, "agent-2",
		WithConfig(cfg),
		WithoutEmbedding(),
		WithLogger(zap.NewNop()),
		WithMetrics(reg),
	)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := sys.StoreExperience(ctx, types.ExperiencePayload{
			Kind:    types.ExperienceObservation,
			Content: "note",
		}, nil)
		require.NoError(t, err)
	}

	stats := sys.Stats()
	require.Equal(t, 3, stats.ByTier[types.MemoryWorking])

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}

func TestNewWithSQLite(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "mem.db")

	sys, err := New(ctx, "agent-3", WithSQLite(path), WithoutEmbedding())
	require.NoError(t, err)

	_, err = sys.StoreExperience(ctx, types.ExperiencePayload{
		Kind:         types.ExperienceObservation,
		Content:      "persisted",
		Significance: 0.9,
	}, nil)
	require.NoError(t, err)

	recall, err := sys.RetrieveRelevant(ctx, "persisted", nil)
	require.NoError(t, err)
	require.NotEmpty(t, recall.Episodic)
}
