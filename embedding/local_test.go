package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalProvider_Deterministic(t *testing.T) {
	t.Parallel()

	p := NewLocalProvider(64)
	ctx := context.Background()

	a, err := p.Embed(ctx, "the quick brown fox")
	require.NoError(t, err)
	b, err := p.Embed(ctx, "the quick brown fox")
	require.NoError(t, err)

	require.Equal(t, a, b)
	require.Len(t, a, 64)
	require.Equal(t, 64, p.Dimension())
}

func TestLocalProvider_UnitNorm(t *testing.T) {
	t.Parallel()

	p := NewLocalProvider(32)
	vec, err := p.Embed(context.Background(), "normalize this text please")
	require.NoError(t, err)

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	require.InDelta(t, 1.0, math.Sqrt(norm), 1e-9)
}

func TestLocalProvider_LexicalOverlapScoresHigher(t *testing.T) {
	t.Parallel()

	p := NewLocalProvider(128)
	ctx := context.Background()

	base, err := p.Embed(ctx, "cooking pasta dinner")
	require.NoError(t, err)
	similar, err := p.Embed(ctx, "cooking pasta lunch")
	require.NoError(t, err)
	unrelated, err := p.Embed(ctx, "quantum entanglement research")
	require.NoError(t, err)

	dot := func(a, b []float64) float64 {
		var sum float64
		for i := range a {
			sum += a[i] * b[i]
		}
		return sum
	}

	require.Greater(t, dot(base, similar), dot(base, unrelated))
}

func TestLocalProvider_EmptyText(t *testing.T) {
	t.Parallel()

	p := NewLocalProvider(16)
	vec, err := p.Embed(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, vec, 16)
	for _, v := range vec {
		require.Zero(t, v)
	}
}

func TestLocalProvider_DefaultDimension(t *testing.T) {
	t.Parallel()

	require.Equal(t, 256, NewLocalProvider(0).Dimension())
}

func TestLocalProvider_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLocalProvider(16).Embed(ctx, "anything")
	require.ErrorIs(t, err, context.Canceled)
}
