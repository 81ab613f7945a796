package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/config"
)

func newTestState(t *testing.T) *InvestigationState {
	t.Helper()
	return NewInvestigation(CreateConfig{
		EntityID:      "user-42",
		EntityType:    EntityUserID,
		Mode:          config.ModeMock,
		MaxTools:      8,
		DateRangeDays: 90,
	})
}

func TestNewInvestigation(t *testing.T) {
	st := newTestState(t)

	assert.NotEmpty(t, st.InvestigationID)
	assert.Equal(t, PhaseInitialization, st.CurrentPhase)
	assert.Equal(t, StrategyAdaptive, st.InvestigationStrategy)
	assert.Equal(t, 0.5, st.AIConfidence)
	assert.Equal(t, ConfidenceUnknown, st.AIConfidenceLevel)

	require.Len(t, st.AIDecisions, 1)
	assert.Equal(t, "snowflake_analysis", st.AIDecisions[0].RecommendedAction)

	assert.Equal(t, config.BaseLimits(config.ModeMock), st.DynamicLimits)
	assert.Equal(t, 12, st.DynamicLimits.MaxOrchestratorLoops)

	// every confidence factor pre-initialized to zero
	for _, key := range []string{"data_completeness", "pattern_recognition", "network_analysis", "risk_analysis"} {
		v, ok := st.ConfidenceFactors[key]
		assert.True(t, ok, "missing factor %s", key)
		assert.Zero(t, v)
	}

	require.Len(t, st.DecisionAuditTrail, 1)
	assert.Equal(t, "investigation_created", st.DecisionAuditTrail[0].Action)
}

func TestLevelForConfidence(t *testing.T) {
	tests := []struct {
		confidence float64
		want       ConfidenceLevel
	}{
		{0.95, ConfidenceHigh},
		{0.8, ConfidenceHigh},
		{0.79, ConfidenceMedium},
		{0.4, ConfidenceMedium},
		{0.39, ConfidenceLow},
		{0.0, ConfidenceLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LevelForConfidence(tt.confidence), "confidence=%v", tt.confidence)
	}
}

func TestUpdateAIConfidenceMonotonicAppends(t *testing.T) {
	st := newTestState(t)

	before := len(st.AIDecisions)
	auditBefore := len(st.DecisionAuditTrail)

	st.UpdateAIConfidence(AIDecision{
		Confidence:        0.85,
		ConfidenceLevel:   ConfidenceHigh,
		RecommendedAction: "critical_path",
		Strategy:          StrategyCriticalPath,
	}, "post_snowflake")

	assert.Equal(t, 0.85, st.AIConfidence)
	assert.Equal(t, ConfidenceHigh, st.AIConfidenceLevel)
	assert.Len(t, st.AIDecisions, before+1)
	assert.Greater(t, len(st.DecisionAuditTrail), auditBefore)

	require.Len(t, st.ConfidenceEvolution, 1)
	pt := st.ConfidenceEvolution[0]
	assert.InDelta(t, 0.35, pt.Delta, 1e-9)
	assert.Equal(t, "post_snowflake", pt.Trigger)
}

func TestApplyRejectsProtectedFields(t *testing.T) {
	st := newTestState(t)

	phase := PhaseInvestigation
	rejected := st.Apply("start_investigation", Update{
		Phase: &phase,
		Extra: map[string]any{
			"ai_confidence":        0.99,
			"dynamic_limits":       map[string]any{"max_orchestrator_loops": 999},
			"decision_audit_trail": []any{},
			"custom_user_prompt":   "focus on ATO",
		},
	})

	// protected writes dropped, non-protected writes land
	assert.Len(t, rejected, 3)
	assert.Equal(t, 0.5, st.AIConfidence)
	assert.Equal(t, 12, st.DynamicLimits.MaxOrchestratorLoops)
	assert.Equal(t, "focus on ATO", st.CustomUserPrompt)
	assert.Equal(t, PhaseInvestigation, st.CurrentPhase)

	// each rejection audited
	var rejections int
	for _, e := range st.DecisionAuditTrail {
		if e.Action == "protected_field_write_rejected" {
			rejections++
		}
	}
	assert.Equal(t, 3, rejections)
}

func TestApplyDomainFindings(t *testing.T) {
	st := newTestState(t)
	score := 0.7

	st.Apply("network_agent", Update{
		DomainFindings: map[string]DomainFinding{
			"network": {
				Domain:     "network",
				RiskScore:  &score,
				Confidence: 0.8,
				Evidence:   []string{"vpn exit node", "ip churn"},
				Status:     FindingOK,
			},
		},
	})

	assert.True(t, st.HasDomain("network"))
	assert.Equal(t, "device", st.NextUncompletedDomain())
	require.Len(t, st.OKFindings(), 1)
}

func TestAddSafetyOverrideAudited(t *testing.T) {
	st := newTestState(t)

	st.AddSafetyOverride(SafetyOverride{
		OriginalAIDecision: "comprehensive_investigation",
		SafetyDecision:     "summary",
		ConcernType:        ConcernResourcePressure,
		Reasoning:          "pressure above threshold",
	})

	require.Len(t, st.SafetyOverrides, 1)
	last := st.DecisionAuditTrail[len(st.DecisionAuditTrail)-1]
	assert.Equal(t, "safety_override", last.Action)
	assert.Equal(t, "safety_manager", last.Actor)
}

func TestMessageSequenceValid(t *testing.T) {
	t.Run("tool_use followed by result", func(t *testing.T) {
		msgs := []Message{
			{Role: "user", Kind: KindUser, Content: "investigate"},
			{Role: "assistant", Kind: KindToolUse, ToolUseID: "t1"},
			{Role: "tool", Kind: KindToolResult, ToolUseID: "t1"},
			{Role: "assistant", Kind: KindAssistant, Content: "done"},
		}
		assert.True(t, MessageSequenceValid(msgs))
	})

	t.Run("assistant interleaved before result", func(t *testing.T) {
		msgs := []Message{
			{Role: "assistant", Kind: KindToolUse, ToolUseID: "t1"},
			{Role: "assistant", Kind: KindAssistant, Content: "oops"},
			{Role: "tool", Kind: KindToolResult, ToolUseID: "t1"},
		}
		assert.False(t, MessageSequenceValid(msgs))
	})

	t.Run("dangling tool_use", func(t *testing.T) {
		msgs := []Message{
			{Role: "assistant", Kind: KindToolUse, ToolUseID: "t1"},
		}
		assert.False(t, MessageSequenceValid(msgs))
	})
}

func TestCloneIsDeep(t *testing.T) {
	st := newTestState(t)
	score := 0.6
	st.RiskScore = &score
	st.DomainFindings["network"] = DomainFinding{Domain: "network", Evidence: []string{"a"}}

	clone := st.Clone()
	clone.AIConfidence = 0.99
	*clone.RiskScore = 0.1
	clone.DomainFindings["device"] = DomainFinding{Domain: "device"}
	clone.ConfidenceFactors["data_completeness"] = 1.0
	clone.DecisionAuditTrail = append(clone.DecisionAuditTrail, AuditEntry{Action: "x"})

	assert.Equal(t, 0.5, st.AIConfidence)
	assert.Equal(t, 0.6, *st.RiskScore)
	assert.NotContains(t, st.DomainFindings, "device")
	assert.Zero(t, st.ConfidenceFactors["data_completeness"])
	require.Len(t, st.DecisionAuditTrail, 1)
}

func TestUpdateToolEfficiency(t *testing.T) {
	st := newTestState(t)
	st.ToolResults["snowflake_query"] = map[string]any{"rows": 12}
	st.AddToolUsed("snowflake_query")
	st.AddToolUsed("link_graph")
	st.AddToolUsed("snowflake_query") // dedup

	st.UpdateToolEfficiency()
	assert.InDelta(t, 0.5, st.ToolExecutionEfficiency, 1e-9)
	assert.InDelta(t, 0.5, st.PerformanceMetrics["tool_execution_efficiency"], 1e-9)

	// no tools used yet never divides by zero
	empty := newTestState(t)
	empty.ToolResults["bootstrap"] = map[string]any{"ok": true}
	empty.UpdateToolEfficiency()
	assert.InDelta(t, 1.0, empty.ToolExecutionEfficiency, 1e-9)
}

func TestMarkComplete(t *testing.T) {
	st := newTestState(t)
	st.StartTime = time.Now().UTC().Add(-2 * time.Second)
	st.MarkComplete()

	require.NotNil(t, st.EndTime)
	assert.Equal(t, PhaseComplete, st.CurrentPhase)
	assert.GreaterOrEqual(t, st.TotalDurationMS, int64(2000))
}
