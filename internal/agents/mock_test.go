package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/config"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/state"
)

func mockState(entityID string) *state.InvestigationState {
	return state.NewInvestigation(state.CreateConfig{
		EntityID:   entityID,
		EntityType: state.EntityUserID,
		Mode:       config.ModeMock,
	})
}

func TestProfileForEntity(t *testing.T) {
	assert.Equal(t, ProfileHighRisk, ProfileForEntity("fraud-user-1"))
	assert.Equal(t, ProfileBenign, ProfileForEntity("clean-user-1"))
	assert.Equal(t, ProfileInsufficientEvidence, ProfileForEntity("thin-user-1"))
	assert.Equal(t, ProfileMixed, ProfileForEntity("user-1"))
}

func TestMockAgentHighRisk(t *testing.T) {
	suite := NewMockSuite(ProfileHighRisk)
	ctx := context.Background()

	for _, domain := range state.DomainOrder {
		finding, err := suite.RunAgent(ctx, domain, mockState("fraud-user-1"))
		require.NoError(t, err)
		assert.Equal(t, state.FindingOK, finding.Status)
		require.NotNil(t, finding.RiskScore)
		assert.Greater(t, *finding.RiskScore, 0.7, domain)
		assert.NotEmpty(t, finding.Evidence, domain)
		assert.NotEmpty(t, finding.Indicators, domain)
	}
}

func TestMockAgentInsufficientEvidence(t *testing.T) {
	suite := NewMockSuite(ProfileInsufficientEvidence)

	finding, err := suite.RunAgent(context.Background(), "network", mockState("thin-user-1"))
	require.NoError(t, err)
	assert.Equal(t, state.FindingInsufficientEvidence, finding.Status)
	assert.Nil(t, finding.RiskScore)
	assert.Empty(t, finding.Evidence)
	assert.InDelta(t, 0.1, finding.Confidence, 1e-9)
}

func TestMockAgentDeterministic(t *testing.T) {
	suite := NewMockSuite(ProfileMixed)
	ctx := context.Background()

	a, err := suite.RunAgent(ctx, "network", mockState("user-1"))
	require.NoError(t, err)
	b, err := suite.RunAgent(ctx, "network", mockState("user-1"))
	require.NoError(t, err)

	assert.Equal(t, a.Evidence, b.Evidence)
	assert.Equal(t, *a.RiskScore, *b.RiskScore)
	assert.Equal(t, a.Confidence, b.Confidence)
}

func TestMockInvestigatorOneTurn(t *testing.T) {
	suite := NewMockSuite(ProfileHighRisk)
	ctx := context.Background()
	st := mockState("fraud-user-1")

	turn, err := suite.Investigate(ctx, st)
	require.NoError(t, err)
	assert.NotEmpty(t, turn.Messages)
	assert.NotEmpty(t, turn.SnowflakeData)
	assert.Contains(t, turn.RiskIndicators, "device_spoof")
	assert.Equal(t, []string{"velocity_check", "link_graph"}, turn.ToolCalls)

	// once the dataset exists, the investigator stands down
	st.SnowflakeCompleted = true
	turn, err = suite.Investigate(ctx, st)
	require.NoError(t, err)
	assert.Empty(t, turn.Messages)
	assert.Empty(t, turn.ToolCalls)
}

func TestMockToolInvoker(t *testing.T) {
	suite := NewMockSuite(ProfileHighRisk)

	results, used, err := suite.InvokeTools(context.Background(),
		[]string{"velocity_check", "link_graph"}, mockState("fraud-user-1"))
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.ElementsMatch(t, []string{"velocity_check", "link_graph"}, used)

	payload := results["velocity_check"].(map[string]any)
	inner := payload["result"].(map[string]any)
	assert.InDelta(t, 8.4, inner["baseline_multiplier"].(float64), 1e-9)
}
