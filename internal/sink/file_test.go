package sink

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/config"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/graph"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/outcome"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/state"
)

func TestFileSinkPersist(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileSink(dir)
	require.NoError(t, err)

	st := state.NewInvestigation(state.CreateConfig{
		EntityID:   "user-9",
		EntityType: state.EntityUserID,
		Mode:       config.ModeMock,
	})
	st.CurrentPhase = state.PhaseComplete
	o := outcome.Build(st)

	ctx := context.Background()
	require.NoError(t, s.Persist(ctx, st.InvestigationID, o, st))

	data, err := os.ReadFile(filepath.Join(dir, st.InvestigationID+"_outcome.json"))
	require.NoError(t, err)

	var loaded outcome.CanonicalFinalOutcome
	require.NoError(t, json.Unmarshal(data, &loaded))
	assert.Equal(t, st.InvestigationID, loaded.InvestigationID)
	assert.Equal(t, "user-9", loaded.EntityID)

	_, err = os.Stat(filepath.Join(dir, st.InvestigationID+"_state.json"))
	assert.NoError(t, err)
}

func TestFileSinkProgressAndScores(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileSink(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.UpdateProgress(ctx, "inv-1", graph.Progress{
		Status:             "COMPLETED",
		CurrentPhase:       "complete",
		ProgressPercentage: 100,
	}))

	require.NoError(t, s.StoreTransactionScores(ctx, "inv-1", map[string]float64{
		"txn-1": 0.82,
		"txn-2": 0.11,
	}))

	data, err := os.ReadFile(filepath.Join(dir, "inv-1_transaction_scores.json"))
	require.NoError(t, err)

	var scores map[string]float64
	require.NoError(t, json.Unmarshal(data, &scores))
	assert.Len(t, scores, 2)
	assert.InDelta(t, 0.82, scores["txn-1"], 1e-9)

	// an empty batch writes nothing
	require.NoError(t, s.StoreTransactionScores(ctx, "inv-2", nil))
	_, err = os.Stat(filepath.Join(dir, "inv-2_transaction_scores.json"))
	assert.True(t, os.IsNotExist(err))
}
