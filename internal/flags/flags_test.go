package flags

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsEnabledRollout(t *testing.T) {
	f := New()

	t.Run("full rollout always on", func(t *testing.T) {
		assert.True(t, f.IsEnabled(FlagHybridGraphV1, "any-id"))
	})

	t.Run("disabled flag always off", func(t *testing.T) {
		f.Set(Flag{Name: "dark_feature", Enabled: false, RolloutPercentage: 100})
		assert.False(t, f.IsEnabled("dark_feature", "any-id"))
	})

	t.Run("zero rollout always off", func(t *testing.T) {
		f.Set(Flag{Name: "zero", Enabled: true, RolloutPercentage: 0})
		assert.False(t, f.IsEnabled("zero", "any-id"))
	})

	t.Run("unknown flag off", func(t *testing.T) {
		assert.False(t, f.IsEnabled("never_defined", "any-id"))
	})

	t.Run("partial rollout is deterministic per id", func(t *testing.T) {
		f.Set(Flag{Name: "canary", Enabled: true, RolloutPercentage: 50, DeploymentMode: ModeCanary})
		first := f.IsEnabled("canary", "inv-123")
		for i := 0; i < 10; i++ {
			assert.Equal(t, first, f.IsEnabled("canary", "inv-123"))
		}
	})

	t.Run("partial rollout splits a population", func(t *testing.T) {
		f.Set(Flag{Name: "split", Enabled: true, RolloutPercentage: 50})
		on := 0
		for i := 0; i < 200; i++ {
			if f.IsEnabled("split", filepath.Join("inv", string(rune('a'+i%26)), string(rune('0'+i%10)))) {
				on++
			}
		}
		assert.Greater(t, on, 0)
		assert.Less(t, on, 200)
	})
}

func TestEnvOverride(t *testing.T) {
	f := New()

	t.Setenv("HYBRID_FLAG_HYBRID_GRAPH_V1", "false")
	assert.False(t, f.IsEnabled(FlagHybridGraphV1, "any-id"))

	t.Setenv("HYBRID_FLAG_NEVER_DEFINED", "true")
	assert.True(t, f.IsEnabled("never_defined", "any-id"))
}

func TestABAssignmentDeterministic(t *testing.T) {
	f := New()
	a := f.ABAssignment(FlagABTestHybrid, "inv-1")
	assert.Contains(t, []string{"test", "control"}, a)
	for i := 0; i < 5; i++ {
		assert.Equal(t, a, f.ABAssignment(FlagABTestHybrid, "inv-1"))
	}
}

func TestGraphSelector(t *testing.T) {
	t.Run("hybrid flag on selects hybrid", func(t *testing.T) {
		sel := NewGraphSelector(New(), nil)
		assert.Equal(t, GraphHybrid, sel.Choose("inv-1", "user_id", ""))
	})

	t.Run("everything off selects sequential", func(t *testing.T) {
		f := New()
		f.Set(Flag{Name: FlagHybridGraphV1, Enabled: false})
		f.Set(Flag{Name: FlagABTestHybrid, Enabled: false})
		sel := NewGraphSelector(f, nil)
		assert.Equal(t, GraphSequential, sel.Choose("inv-1", "user_id", ""))
	})

	t.Run("ab test assigns by hash", func(t *testing.T) {
		f := New()
		f.Set(Flag{Name: FlagHybridGraphV1, Enabled: false})
		f.Set(Flag{Name: FlagABTestHybrid, Enabled: true, RolloutPercentage: 100, DeploymentMode: ModeABTest, TestSplit: 50})
		sel := NewGraphSelector(f, nil)
		got := sel.Choose("inv-1", "user_id", "")
		assert.Contains(t, []GraphKind{GraphHybrid, GraphSequential}, got)
		assert.Equal(t, got, sel.Choose("inv-1", "user_id", ""))
	})

	t.Run("rollback forces sequential over everything", func(t *testing.T) {
		rollback := NewRollbackTriggers(RollbackThresholds{ErrorRate: 0.5, MinSample: 1})
		rollback.RecordRun(true, false, 0, 100)
		require.True(t, rollback.Active())

		sel := NewGraphSelector(New(), rollback)
		assert.Equal(t, GraphSequential, sel.Choose("inv-1", "user_id", "hybrid"))
	})

	t.Run("force wins without rollback", func(t *testing.T) {
		f := New()
		f.Set(Flag{Name: FlagHybridGraphV1, Enabled: false})
		sel := NewGraphSelector(f, nil)
		assert.Equal(t, GraphHybrid, sel.Choose("inv-1", "user_id", "hybrid"))
	})
}

func TestRollbackTriggers(t *testing.T) {
	t.Run("needs a minimum sample", func(t *testing.T) {
		r := NewRollbackTriggers(RollbackThresholds{ErrorRate: 0.1, MinSample: 5})
		for i := 0; i < 4; i++ {
			r.RecordRun(true, false, 0, 100)
		}
		assert.False(t, r.Active())
		r.RecordRun(true, false, 0, 100)
		assert.True(t, r.Active())
		assert.Contains(t, r.Reason(), "error rate")
	})

	t.Run("latched until cleared", func(t *testing.T) {
		r := NewRollbackTriggers(RollbackThresholds{ErrorRate: 0.5, MinSample: 1})
		r.RecordRun(true, false, 0, 100)
		require.True(t, r.Active())

		// healthy runs do not clear the latch
		for i := 0; i < 20; i++ {
			r.RecordRun(false, false, 0, 100)
		}
		assert.True(t, r.Active())

		r.Clear()
		assert.False(t, r.Active())
		assert.Empty(t, r.Reason())
	})

	t.Run("override rate trips", func(t *testing.T) {
		r := NewRollbackTriggers(DefaultRollbackThresholds())
		for i := 0; i < 10; i++ {
			r.RecordRun(false, false, 3, 100)
		}
		assert.True(t, r.Active())
		assert.Contains(t, r.Reason(), "override rate")
	})
}

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flags.db")
	store, err := OpenStore(path)
	require.NoError(t, err)
	defer store.Close()

	flag := Flag{Name: "persisted", Enabled: true, RolloutPercentage: 25, DeploymentMode: ModeCanary}
	require.NoError(t, store.Save(flag))

	got, found, err := store.Load("persisted")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, flag, got)

	flags, err := store.LoadAll()
	require.NoError(t, err)
	loaded, ok := flags.Get("persisted")
	assert.True(t, ok)
	assert.Equal(t, 25, loaded.RolloutPercentage)
	// defaults still present underneath
	_, ok = flags.Get(FlagHybridGraphV1)
	assert.True(t, ok)
}
