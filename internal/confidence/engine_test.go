package confidence

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/config"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/errors"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/state"
)

func newTestState() *state.InvestigationState {
	return state.NewInvestigation(state.CreateConfig{
		EntityID:   "user-7",
		EntityType: state.EntityUserID,
		Mode:       config.ModeMock,
	})
}

func ptr(v float64) *float64 { return &v }

// stubAssessor returns a fixed decision or error
type stubAssessor struct {
	decision state.AIDecision
	err      error
	calls    int
}

func (s *stubAssessor) Assess(_ context.Context, _ *state.InvestigationState) (state.AIDecision, error) {
	s.calls++
	return s.decision, s.err
}

func TestFactorsScoreWeighting(t *testing.T) {
	// all factors at 1.0 must hit exactly 1.0 (weights sum to one)
	f := Factors{1, 1, 1, 1, 1}
	assert.InDelta(t, 1.0, f.Score(), 1e-9)

	// snowflake alone contributes its 0.35 weight
	f = Factors{SnowflakeQuality: 1}
	assert.InDelta(t, 0.35, f.Score(), 1e-9)

	f = Factors{ToolsQuality: 1}
	assert.InDelta(t, 0.25, f.Score(), 1e-9)

	f = Factors{DomainsQuality: 0.5, PatternRecognition: 0.5}
	assert.InDelta(t, 0.5*0.20+0.5*0.15, f.Score(), 1e-9)
}

func TestComputeFactorsFromState(t *testing.T) {
	st := newTestState()
	st.SnowflakeCompleted = true
	st.SnowflakeQuality = 0.9
	st.ToolExecutionAttempts = 4
	st.ToolResults = map[string]any{"a": 1, "b": 2, "c": 3}
	st.DomainFindings["network"] = state.DomainFinding{Domain: "network", Confidence: 0.8, Status: state.FindingOK}
	st.DomainFindings["device"] = state.DomainFinding{Domain: "device", Confidence: 0.6, Status: state.FindingOK}

	f := ComputeFactors(st)
	assert.InDelta(t, 0.9, f.SnowflakeQuality, 1e-9)
	assert.InDelta(t, 0.75, f.ToolsQuality, 1e-9)
	assert.InDelta(t, 0.7, f.DomainsQuality, 1e-9)
}

func TestAssessHeuristicOnly(t *testing.T) {
	engine := NewEngine()
	st := newTestState()

	t.Run("no evidence yields UNKNOWN and comprehensive", func(t *testing.T) {
		d, err := engine.Assess(context.Background(), st)
		require.NoError(t, err)
		assert.Equal(t, state.ConfidenceUnknown, d.ConfidenceLevel)
		assert.Equal(t, state.StrategyComprehensive, d.Strategy)
		assert.Equal(t, "snowflake_analysis", d.RecommendedAction)
		assert.NotEmpty(t, d.Reasoning)
	})

	t.Run("after snowflake recommends tools", func(t *testing.T) {
		st.SnowflakeCompleted = true
		st.SnowflakeQuality = 0.8
		d, err := engine.Assess(context.Background(), st)
		require.NoError(t, err)
		assert.Equal(t, "tools", d.RecommendedAction)
		assert.NotEqual(t, state.ConfidenceUnknown, d.ConfidenceLevel)
	})
}

func TestSelectStrategyFirstMatchWins(t *testing.T) {
	st := newTestState()
	st.SnowflakeCompleted = true

	t.Run("unknown level forces comprehensive", func(t *testing.T) {
		got := SelectStrategy(st, state.ConfidenceUnknown, 0.9, Factors{SnowflakeQuality: 1})
		assert.Equal(t, state.StrategyComprehensive, got)
	})

	t.Run("low evidence forces comprehensive", func(t *testing.T) {
		got := SelectStrategy(st, state.ConfidenceHigh, 0.9, Factors{})
		assert.Equal(t, state.StrategyComprehensive, got)
	})

	t.Run("dominant domain at high confidence picks critical path", func(t *testing.T) {
		st.DomainFindings["network"] = state.DomainFinding{Domain: "network", RiskScore: ptr(0.9), Confidence: 0.9, Evidence: []string{"a", "b"}}
		st.DomainFindings["device"] = state.DomainFinding{Domain: "device", RiskScore: ptr(0.1), Confidence: 0.5, Evidence: []string{"c"}}
		rich := Factors{SnowflakeQuality: 0.9, ToolsQuality: 0.9, DomainsQuality: 0.9}
		got := SelectStrategy(st, state.ConfidenceHigh, 0.9, rich)
		assert.Equal(t, state.StrategyCriticalPath, got)
	})

	t.Run("indicators alone can pick critical path", func(t *testing.T) {
		early := newTestState()
		early.SnowflakeCompleted = true
		early.RiskIndicators = []string{"device_spoof", "emulator_detected", "velocity_spike"}
		rich := Factors{SnowflakeQuality: 0.9, ToolsQuality: 0.9, DomainsQuality: 0.9}
		got := SelectStrategy(early, state.ConfidenceHigh, 0.9, rich)
		assert.Equal(t, state.StrategyCriticalPath, got, "no domain agent has run yet")
	})

	t.Run("scattered indicators do not dominate", func(t *testing.T) {
		early := newTestState()
		early.SnowflakeCompleted = true
		early.RiskIndicators = []string{"device_spoof", "vpn_exit", "impossible_travel"}
		rich := Factors{SnowflakeQuality: 0.9, ToolsQuality: 0.9, DomainsQuality: 0.9}
		got := SelectStrategy(early, state.ConfidenceHigh, 0.9, rich)
		assert.NotEqual(t, state.StrategyCriticalPath, got)
	})

	t.Run("benign entity picks minimal", func(t *testing.T) {
		clean := newTestState()
		clean.SnowflakeCompleted = true
		clean.RiskScore = ptr(0.1)
		rich := Factors{SnowflakeQuality: 0.9, ToolsQuality: 0.9}
		got := SelectStrategy(clean, state.ConfidenceMedium, 0.78, rich)
		assert.Equal(t, state.StrategyMinimal, got)
	})

	t.Run("default is adaptive", func(t *testing.T) {
		plain := newTestState()
		plain.SnowflakeCompleted = true
		rich := Factors{SnowflakeQuality: 0.7, ToolsQuality: 0.5}
		got := SelectStrategy(plain, state.ConfidenceMedium, 0.55, rich)
		assert.Equal(t, state.StrategyAdaptive, got)
	})
}

func TestAssessExternalAssessorMerged(t *testing.T) {
	stub := &stubAssessor{decision: state.AIDecision{
		Confidence:        0.85,
		RecommendedAction: "risk_agent",
		Reasoning:         []string{"velocity anomaly dominates"},
	}}
	engine := NewEngine(WithAssessor(stub))
	st := newTestState()
	st.SnowflakeCompleted = true
	st.SnowflakeQuality = 0.9

	d, err := engine.Assess(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, 1, stub.calls)
	assert.Equal(t, 0.85, d.Confidence)
	assert.Equal(t, state.ConfidenceHigh, d.ConfidenceLevel)
	assert.Equal(t, "risk_agent", d.RecommendedAction)
	assert.NotEmpty(t, d.Strategy)
	assert.NotEmpty(t, d.ResourceImpact)
}

func TestAssessProviderErrorPropagates(t *testing.T) {
	stub := &stubAssessor{err: errors.ProviderError(errors.ProviderContextLengthExceeded, nil, "too long")}
	engine := NewEngine(WithAssessor(stub))
	st := newTestState()

	_, err := engine.Assess(context.Background(), st)
	require.Error(t, err)
	assert.True(t, errors.IsProvider(err))
	assert.Equal(t, errors.ProviderContextLengthExceeded, errors.ProviderSubkindOf(err))
}

func TestAssessFailureDegradesToNeutral(t *testing.T) {
	stub := &stubAssessor{err: fmt.Errorf("malformed response")}
	engine := NewEngine(WithAssessor(stub))
	st := newTestState()

	d, err := engine.Assess(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, 0.5, d.Confidence)
	assert.Equal(t, state.ConfidenceUnknown, d.ConfidenceLevel)
	require.Len(t, d.Reasoning, 1)
	assert.Contains(t, d.Reasoning[0], "assessment_failed:")

	// failure recorded on the state error log
	require.Len(t, st.Errors, 1)
	assert.Equal(t, "ai_confidence_assessment", st.Errors[0].Node)
	assert.Equal(t, "assessment_error", st.Errors[0].Kind)
}

func TestCleanJSONResponse(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"confidence":0.8}`, `{"confidence":0.8}`},
		{"fenced", "```json\n{\"confidence\":0.8}\n```", `{"confidence":0.8}`},
		{"prose wrapped", `Here you go: {"confidence":0.8} hope that helps`, `{"confidence":0.8}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanJSONResponse(tt.in))
		})
	}
}
