package output

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/config"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/outcome"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/state"
)

func sampleOutcome() *outcome.CanonicalFinalOutcome {
	s := state.NewInvestigation(state.CreateConfig{
		EntityID:   "fraud-user-1",
		EntityType: state.EntityUserID,
		Mode:       config.ModeMock,
	})
	score := 0.82
	s.SnowflakeCompleted = true
	s.RiskScore = &score
	s.ConfidenceScore = 0.85
	s.EvidenceStrength = 0.7
	s.DomainFindings["device"] = state.DomainFinding{
		Domain: "device", RiskScore: &score, Confidence: 0.85,
		Summary: "device fingerprint rotated mid-session", Status: state.FindingOK,
	}
	s.AddDomainCompleted("device")
	s.RiskIndicators = []string{"device_spoof"}
	s.MarkComplete()
	return outcome.Build(s)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("markdown")
	require.NoError(t, err)
	assert.Equal(t, FormatMarkdown, f)

	f, err = ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatTerminal, f)

	_, err = ParseFormat("xml")
	assert.Error(t, err)
}

func TestTerminalFormat(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewFormatter(FormatTerminal).Format(sampleOutcome(), &buf))

	out := buf.String()
	assert.Contains(t, out, "fraud-user-1")
	assert.Contains(t, out, "0.82 (HIGH)")
	assert.Contains(t, out, "COMPLETED")
	assert.Contains(t, out, "device fingerprint rotated mid-session")
}

func TestJSONFormatRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	o := sampleOutcome()
	require.NoError(t, NewFormatter(FormatJSON).Format(o, &buf))

	var decoded outcome.CanonicalFinalOutcome
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, o.InvestigationID, decoded.InvestigationID)
	require.NotNil(t, decoded.RiskAssessment.FinalRiskScore)
	assert.InDelta(t, 0.82, *decoded.RiskAssessment.FinalRiskScore, 1e-9)
}

func TestMarkdownFormat(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewFormatter(FormatMarkdown).Format(sampleOutcome(), &buf))

	out := buf.String()
	assert.Contains(t, out, "# Fraud Investigation Report")
	assert.Contains(t, out, "| Risk score | 0.82 (HIGH) |")
	assert.Contains(t, out, "## Key findings")
}

func TestHTMLFormat(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewFormatter(FormatHTML).Format(sampleOutcome(), &buf))

	out := buf.String()
	assert.Contains(t, out, "<!DOCTYPE html>")
	assert.Contains(t, out, "fraud-user-1")
	assert.Contains(t, out, `class="status-COMPLETED"`)
}

func TestGatedOutcomeLabel(t *testing.T) {
	s := state.NewInvestigation(state.CreateConfig{
		EntityID:   "thin-user-1",
		EntityType: state.EntityUserID,
		Mode:       config.ModeMock,
	})
	s.RiskScore = nil
	s.MarkComplete()
	o := outcome.Build(s)

	var buf bytes.Buffer
	require.NoError(t, NewFormatter(FormatTerminal).Format(o, &buf))
	assert.Contains(t, buf.String(), "N/A (blocked by evidence gating)")
}

func TestFormatExtensions(t *testing.T) {
	assert.Equal(t, "json", FormatJSON.Extension())
	assert.Equal(t, "md", FormatMarkdown.Extension())
	assert.Equal(t, "html", FormatHTML.Extension())
	assert.Equal(t, "txt", FormatTerminal.Extension())
}
