package risk

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/config"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/state"
)

func newFinalizer() *Finalizer {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewFinalizer(logger, config.Default().Risk)
}

func newTestState() *state.InvestigationState {
	return state.NewInvestigation(state.CreateConfig{
		EntityID:   "ip-1",
		EntityType: state.EntityIPAddress,
		Mode:       config.ModeMock,
	})
}

func ptr(v float64) *float64 { return &v }

func TestEvidenceGatingNullsRiskScore(t *testing.T) {
	f := newFinalizer()
	s := newTestState()
	s.RiskScore = ptr(0.6) // stale value that must be cleared

	// one weak finding, below the 0.2 floor
	s.DomainFindings["network"] = state.DomainFinding{
		Domain:     "network",
		RiskScore:  ptr(0.9),
		Confidence: 0.1,
		Evidence:   []string{"single weak signal"},
		Status:     state.FindingOK,
	}

	result := f.Finalize(s)
	assert.True(t, result.Gated)
	assert.Nil(t, s.RiskScore, "gated investigation carries a null risk, not zero")
	assert.Less(t, s.EvidenceStrength, 0.2)

	require.NotEmpty(t, s.SafetyConcerns)
	assert.Equal(t, state.ConcernEvidenceInsufficient, s.SafetyConcerns[0].Type)
}

func TestEvidenceStrengthSkipsBadFindings(t *testing.T) {
	f := newFinalizer()
	s := newTestState()

	s.DomainFindings["network"] = state.DomainFinding{
		Domain: "network", Confidence: 0.8, Evidence: []string{"a"}, Status: state.FindingOK,
	}
	s.DomainFindings["device"] = state.DomainFinding{
		Domain: "device", Confidence: 0.9, Status: state.FindingError, Evidence: []string{"b"},
	}
	s.DomainFindings["logs"] = state.DomainFinding{
		Domain: "logs", Confidence: 0.9, Status: state.FindingOK, // no evidence items
	}

	// only the network finding qualifies
	assert.InDelta(t, 0.8, f.EvidenceStrength(s), 1e-9)
}

func TestWeightedRiskFinalization(t *testing.T) {
	f := newFinalizer()
	s := newTestState()

	s.DomainFindings["network"] = state.DomainFinding{
		Domain: "network", RiskScore: ptr(0.9), Confidence: 0.8,
		Evidence: []string{"tor exit", "asn churn"}, Status: state.FindingOK,
	}
	s.DomainFindings["risk"] = state.DomainFinding{
		Domain: "risk", RiskScore: ptr(0.5), Confidence: 0.6,
		Evidence: []string{"chargeback history"}, Status: state.FindingOK,
	}

	result := f.Finalize(s)
	require.False(t, result.Gated)
	require.NotNil(t, s.RiskScore)

	// weights: network 0.8*1.0, risk 0.6*1.2
	wNet, wRisk := 0.8*1.0, 0.6*1.2
	want := (0.9*wNet + 0.5*wRisk) / (wNet + wRisk)
	assert.InDelta(t, want, *s.RiskScore, 1e-9)
	assert.InDelta(t, 0.7, s.ConfidenceScore, 1e-9)
	assert.Equal(t, LikelihoodHigh, result.FraudLikelihood)
}

func TestReconstructFindingsFromToolResults(t *testing.T) {
	f := newFinalizer()
	s := newTestState()

	s.ToolResults["device_analysis"] = map[string]any{
		"risk_score": 0.7,
		"indicators": []any{"emulator detected", "rooted"},
	}
	s.ToolResults["network_analysis"] = map[string]any{
		"risk_score": 0.4,
		"confidence": 0.8,
		"evidence":   []string{"vpn"},
	}

	result := f.Finalize(s)
	require.False(t, result.Gated)

	device, ok := s.DomainFindings["device"]
	require.True(t, ok)
	require.NotNil(t, device.RiskScore)
	assert.Equal(t, 0.7, *device.RiskScore)
	// default confidence assigned when the projection lacks one
	assert.Equal(t, 0.35, device.Confidence)
	assert.Equal(t, []string{"emulator detected", "rooted"}, device.Evidence)

	network := s.DomainFindings["network"]
	assert.Equal(t, 0.8, network.Confidence)
	assert.True(t, s.HasDomain("device"))
	assert.True(t, s.HasDomain("network"))
}

func TestFraudLikelihoodBuckets(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{0.95, LikelihoodVeryHigh},
		{0.9, LikelihoodVeryHigh},
		{0.7, LikelihoodHigh},
		{0.5, LikelihoodModerate},
		{0.3, LikelihoodLow},
		{0.1, LikelihoodVeryLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FraudLikelihood(tt.score), "score=%v", tt.score)
	}
}
