package agents

import (
	"context"
	"fmt"
	"time"

	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/graph"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/state"
)

// MockSuite is the deterministic collaborator set for MOCK runs: agent
// runner, investigator, tool invoker and initializer in one value, all
// driven by the entity's profile
type MockSuite struct {
	profile Profile
}

// NewMockSuite creates a suite with an explicit profile
func NewMockSuite(profile Profile) *MockSuite {
	return &MockSuite{profile: profile}
}

// NewMockSuiteForEntity derives the profile from the entity id
func NewMockSuiteForEntity(entityID string) *MockSuite {
	return &MockSuite{profile: ProfileForEntity(entityID)}
}

// RunAgent returns the profile's fixture for the domain
func (m *MockSuite) RunAgent(_ context.Context, domain string, snapshot *state.InvestigationState) (state.DomainFinding, error) {
	if m.profile == ProfileInsufficientEvidence {
		return state.DomainFinding{
			Domain:     domain,
			Confidence: 0.1,
			Status:     state.FindingInsufficientEvidence,
			Summary:    "no usable evidence in the analysis window",
		}, nil
	}

	fixture, ok := fixtureFor(m.profile, domain)
	if !ok {
		return state.DomainFinding{
			Domain:     domain,
			Confidence: 0.1,
			Status:     state.FindingInsufficientEvidence,
			Summary:    fmt.Sprintf("no fixture for domain %s", domain),
		}, nil
	}

	score := fixture.risk
	return state.DomainFinding{
		Domain:     domain,
		RiskScore:  &score,
		Confidence: fixture.confidence,
		Evidence:   append([]string(nil), fixture.evidence...),
		Indicators: append([]string(nil), fixture.indicators...),
		Summary:    fixture.summary,
		Status:     state.FindingOK,
	}, nil
}

// Investigate produces one deterministic dataset-gathering turn, then
// empty turns so the flow moves on to assessment
func (m *MockSuite) Investigate(_ context.Context, snapshot *state.InvestigationState) (graph.InvestigationTurn, error) {
	if snapshot.SnowflakeCompleted {
		return graph.InvestigationTurn{}, nil
	}

	quality := 0.85
	indicators := []string{}
	if m.profile == ProfileHighRisk {
		indicators = []string{"device_spoof", "velocity_spike"}
	}
	if m.profile == ProfileInsufficientEvidence {
		quality = 0.2
	}

	return graph.InvestigationTurn{
		Messages: []state.Message{{
			Role:    "assistant",
			Kind:    state.KindAssistant,
			Content: fmt.Sprintf("Gathered the initial dataset for %s %s.", snapshot.EntityType, snapshot.EntityID),
		}},
		SnowflakeData: map[string]any{
			"transactions":  37,
			"sessions":      12,
			"devices":       2,
			"entity_id":     snapshot.EntityID,
			"window_days":   90,
			"profile_label": string(m.profile),
		},
		SnowflakeQuality: quality,
		RiskIndicators:   indicators,
		ToolCalls:        m.initialToolCalls(),
	}, nil
}

func (m *MockSuite) initialToolCalls() []string {
	if m.profile == ProfileInsufficientEvidence {
		return nil
	}
	return []string{"velocity_check", "link_graph"}
}

// InvokeTools answers every requested tool with a deterministic result
func (m *MockSuite) InvokeTools(_ context.Context, requested []string, snapshot *state.InvestigationState) (map[string]any, []string, error) {
	results := make(map[string]any, len(requested))
	used := make([]string, 0, len(requested))
	for _, tool := range requested {
		results[tool] = map[string]any{
			"tool":      tool,
			"entity_id": snapshot.EntityID,
			"ran_at":    time.Now().UTC().Format(time.RFC3339),
			"result":    mockToolPayload(m.profile, tool),
		}
		used = append(used, tool)
	}
	return results, used, nil
}

func mockToolPayload(profile Profile, tool string) map[string]any {
	hot := profile == ProfileHighRisk
	switch tool {
	case "velocity_check":
		multiplier := 1.1
		if hot {
			multiplier = 8.4
		}
		return map[string]any{"baseline_multiplier": multiplier, "window_hours": 24}
	case "link_graph":
		linked := 0
		if hot {
			linked = 5
		}
		return map[string]any{"linked_flagged_entities": linked, "depth": 2}
	default:
		return map[string]any{"status": "ok"}
	}
}

// InitialPayload supplies the start-node merge payload
func (m *MockSuite) InitialPayload(_ context.Context, entityID string, entityType state.EntityType) (map[string]any, error) {
	return map[string]any{
		"date_range_days": 90,
	}, nil
}
