package outcome

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/config"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/state"
)

func newTestState() *state.InvestigationState {
	return state.NewInvestigation(state.CreateConfig{
		EntityID:   "user-3",
		EntityType: state.EntityUserID,
		Mode:       config.ModeMock,
	})
}

func ptr(v float64) *float64 { return &v }

func TestDeriveStatus(t *testing.T) {
	t.Run("clean completion", func(t *testing.T) {
		s := newTestState()
		s.MarkComplete()
		assert.Equal(t, StatusCompleted, DeriveStatus(s))
	})

	t.Run("overrides yield warnings", func(t *testing.T) {
		s := newTestState()
		s.MarkComplete()
		s.SafetyOverrides = []state.SafetyOverride{{SafetyDecision: "summary"}}
		assert.Equal(t, StatusCompletedWithWarnings, DeriveStatus(s))
	})

	t.Run("evidence gating yields warnings", func(t *testing.T) {
		s := newTestState()
		s.MarkComplete()
		s.RiskScore = nil
		s.SafetyConcerns = []state.SafetyConcern{
			{Type: state.ConcernEvidenceInsufficient, Severity: state.SeverityMedium},
		}
		assert.Equal(t, StatusCompletedWithWarnings, DeriveStatus(s))
	})

	t.Run("provider error fails the run", func(t *testing.T) {
		s := newTestState()
		s.MarkComplete()
		s.RecordError("ai_confidence_assessment", "provider_error", "context length exceeded")
		assert.Equal(t, StatusFailed, DeriveStatus(s))
	})

	t.Run("critical concern dominates errors", func(t *testing.T) {
		s := newTestState()
		s.MarkComplete()
		s.RecordError("tools", "provider_error", "boom")
		s.SafetyConcerns = []state.SafetyConcern{
			{Type: state.ConcernLoopRisk, Severity: state.SeverityCritical},
		}
		assert.Equal(t, StatusTerminatedBySafety, DeriveStatus(s))
	})

	t.Run("timeout dominates everything", func(t *testing.T) {
		s := newTestState()
		s.SafetyConcerns = []state.SafetyConcern{
			{Type: state.ConcernLoopRisk, Severity: state.SeverityCritical},
		}
		s.StartTime = time.Now().UTC().Add(-time.Hour)
		s.MarkComplete()
		assert.Equal(t, StatusTimeout, DeriveStatus(s))
	})
}

func TestBuildCompletedOutcome(t *testing.T) {
	s := newTestState()
	s.SnowflakeCompleted = true
	s.SnowflakeQuality = 0.85
	s.RiskScore = ptr(0.75)
	s.ConfidenceScore = 0.8
	s.EvidenceStrength = 0.7
	s.DomainFindings["network"] = state.DomainFinding{
		Domain: "network", RiskScore: ptr(0.8), Confidence: 0.8,
		Summary: "traffic via anonymizing proxies", Status: state.FindingOK,
	}
	s.AddDomainCompleted("network")
	s.OrchestratorLoops = 5
	s.MarkComplete()

	o := Build(s)
	assert.Equal(t, StatusCompleted, o.Status)
	assert.True(t, o.Success)
	require.NotNil(t, o.RiskAssessment.FinalRiskScore)
	assert.Equal(t, "HIGH", o.RiskAssessment.FraudLikelihood)
	assert.Contains(t, o.RiskAssessment.MitigationRecommendations, "escalate to manual review")

	assert.True(t, o.EvidenceAssessment.ValidationPassed)
	assert.Contains(t, o.EvidenceAssessment.Sources, "snowflake")
	assert.Contains(t, o.EvidenceAssessment.Sources, "network")

	assert.Equal(t, 5, o.PerformanceMetrics.OrchestratorLoops)
	assert.Equal(t, "Efficient", o.PerformanceMetrics.ResourceUtilization)

	require.NotEmpty(t, o.KeyFindings)
	assert.Contains(t, o.KeyFindings[0], "anonymizing proxies")
	assert.Contains(t, o.SummaryText, "0.75")
}

func TestBuildGatedOutcome(t *testing.T) {
	s := newTestState()
	s.RiskScore = nil
	s.EvidenceStrength = 0.1
	s.MarkComplete()

	o := Build(s)
	assert.Nil(t, o.RiskAssessment.FinalRiskScore)
	assert.Equal(t, "UNDETERMINED", o.RiskAssessment.FraudLikelihood)
	assert.False(t, o.EvidenceAssessment.ValidationPassed)
	assert.Contains(t, o.SummaryText, "N/A (blocked by evidence gating)")
}

func TestResourceUtilization(t *testing.T) {
	s := newTestState()
	s.OrchestratorLoops = 10 // > half of the 12-loop mock limit
	s.MarkComplete()
	o := Build(s)
	assert.Equal(t, "Good", o.PerformanceMetrics.ResourceUtilization)

	s.SafetyOverrides = []state.SafetyOverride{{}}
	o = Build(s)
	assert.Equal(t, "Required Intervention", o.PerformanceMetrics.ResourceUtilization)
}
