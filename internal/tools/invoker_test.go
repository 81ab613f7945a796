package tools

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/config"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/state"
)

func invokerState() *state.InvestigationState {
	st := state.NewInvestigation(state.CreateConfig{
		EntityID:   "user-7",
		EntityType: state.EntityUserID,
		Mode:       config.ModeMock,
	})
	st.SnowflakeData = map[string]any{
		"transactions":     float64(180),
		"transactions_24h": float64(16),
		"window_days":      float64(90),
	}
	return st
}

func TestInvokeToolsCollectsResults(t *testing.T) {
	inv := NewInvoker(4)
	inv.Register(VelocityCheckTool())
	inv.Register(Func{
		ToolName: "echo",
		Fn: func(_ context.Context, snapshot *state.InvestigationState) (any, error) {
			return map[string]any{"entity_id": snapshot.EntityID}, nil
		},
	})

	results, used, err := inv.InvokeTools(context.Background(),
		[]string{"velocity_check", "echo"}, invokerState())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"echo", "velocity_check"}, used)

	velocity := results["velocity_check"].(map[string]any)
	assert.InDelta(t, 8.0, velocity["baseline_multiplier"].(float64), 1e-9)

	echo := results["echo"].(map[string]any)
	assert.Equal(t, "user-7", echo["entity_id"])
}

func TestInvokeToolsRecordsFailuresWithoutAborting(t *testing.T) {
	inv := NewInvoker(2)
	inv.Register(Func{
		ToolName: "flaky",
		Fn: func(context.Context, *state.InvestigationState) (any, error) {
			return nil, errors.New("upstream unavailable")
		},
	})
	inv.Register(Func{
		ToolName: "steady",
		Fn: func(context.Context, *state.InvestigationState) (any, error) {
			return map[string]any{"ok": true}, nil
		},
	})

	results, used, err := inv.InvokeTools(context.Background(),
		[]string{"flaky", "steady", "missing"}, invokerState())
	require.NoError(t, err)
	assert.Equal(t, []string{"steady"}, used)
	assert.Len(t, results, 3)

	flaky := results["flaky"].(map[string]any)
	assert.Contains(t, flaky["error"].(string), "flaky")
	missing := results["missing"].(map[string]any)
	assert.Equal(t, "unknown tool", missing["error"])
}

func TestInvokeToolsHonorsConcurrencyLimit(t *testing.T) {
	inv := NewInvoker(1)

	var inFlight, peak atomic.Int32
	for _, name := range []string{"a", "b", "c"} {
		inv.Register(Func{
			ToolName: name,
			Fn: func(context.Context, *state.InvestigationState) (any, error) {
				cur := inFlight.Add(1)
				if cur > peak.Load() {
					peak.Store(cur)
				}
				time.Sleep(10 * time.Millisecond)
				inFlight.Add(-1)
				return map[string]any{}, nil
			},
		})
	}

	_, used, err := inv.InvokeTools(context.Background(), []string{"a", "b", "c"}, invokerState())
	require.NoError(t, err)
	assert.Len(t, used, 3)
	assert.Equal(t, int32(1), peak.Load())
}

func TestInvokeToolsCancelledContext(t *testing.T) {
	inv := NewInvoker(2)
	inv.Register(Func{
		ToolName: "slow",
		Fn: func(ctx context.Context, _ *state.InvestigationState) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := inv.InvokeTools(ctx, []string{"slow"}, invokerState())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInvokeToolsEmptyRequest(t *testing.T) {
	inv := NewInvoker(2)
	results, used, err := inv.InvokeTools(context.Background(), nil, invokerState())
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Empty(t, used)
}
