package memory

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func newTestRecord(id string, at time.Time) *Record {
	return &Record{ID: id, CreatedAt: at}
}

func TestWorkingTier_CapacityBound(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.WorkingCapacity = 3
	tier := NewWorkingTier(cfg, nil)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		tier.Store(newTestRecord(fmt.Sprintf("r%d", i), now))
	}

	require.Equal(t, 3, tier.Size())

	items := tier.Retrieve("")
	require.Len(t, items, 3)
	// Oldest two were dropped; insertion order is preserved.
	require.Equal(t, "r2", items[0].Record.ID)
	require.Equal(t, "r4", items[2].Record.ID)
}

func TestWorkingTier_AttentionWeights(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	tier := NewWorkingTier(cfg, nil)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tier.Store(newTestRecord("a", now))
	tier.Store(newTestRecord("b", now))
	tier.Store(newTestRecord("c", now))
	tier.Store(newTestRecord("d", now))

	items := tier.Retrieve("ignored")
	require.Len(t, items, 4)
	require.InDelta(t, 0.25, items[0].Attention, 1e-12)
	require.InDelta(t, 0.5, items[1].Attention, 1e-12)
	require.InDelta(t, 1.0, items[3].Attention, 1e-12)
}

func TestWorkingTier_ForgetIsNoop(t *testing.T) {
	t.Parallel()

	tier := NewWorkingTier(DefaultConfig(), nil)
	tier.Store(newTestRecord("a", time.Now()))

	require.Equal(t, 0, tier.Forget(1.0))
	require.Equal(t, 1, tier.Size())
}

func TestWorkingTier_SizeNeverExceedsCapacity(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(rt *rapid.T) {
		capacity := rapid.IntRange(1, 10).Draw(rt, "capacity")
		stores := rapid.IntRange(0, 40).Draw(rt, "stores")

		cfg := DefaultConfig()
		cfg.WorkingCapacity = capacity
		tier := NewWorkingTier(cfg, nil)

		now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		for i := 0; i < stores; i++ {
			tier.Store(newTestRecord(fmt.Sprintf("r%d", i), now))
		}

		want := stores
		if want > capacity {
			want = capacity
		}
		if tier.Size() != want {
			rt.Fatalf("size = %d, want %d", tier.Size(), want)
		}

		items := tier.Retrieve("")
		if stores > 0 {
			last := items[len(items)-1]
			if last.Record.ID != fmt.Sprintf("r%d", stores-1) {
				rt.Fatalf("newest item = %s", last.Record.ID)
			}
			if last.Attention != 1.0 {
				rt.Fatalf("newest attention = %v", last.Attention)
			}
		}
	})
}
