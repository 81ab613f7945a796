package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/graph"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/llm"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/logging"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/state"
)

// DemoSuite runs domain analysis through a live LLM over synthetic
// entity data. Data generation stays deterministic so demo runs are
// reproducible; only the analysis text comes from the provider.
type DemoSuite struct {
	client *llm.Client
	mock   *MockSuite
}

// NewDemoSuite wraps an LLM client; the mock suite supplies the
// synthetic data the model reasons over
func NewDemoSuite(client *llm.Client, entityID string) *DemoSuite {
	return &DemoSuite{
		client: client,
		mock:   NewMockSuiteForEntity(entityID),
	}
}

const domainAgentSystemPrompt = `You are a fraud analysis agent specializing in one domain of a financial investigation.
Analyze the supplied entity data for your domain only and respond with a single JSON object:
{"risk_score": <0..1>, "confidence": <0..1>, "evidence": [strings], "indicators": [strings], "summary": "<one sentence>"}
Ground every evidence item in the data given. Do not invent transactions or sessions.`

type domainAgentResponse struct {
	RiskScore  float64  `json:"risk_score"`
	Confidence float64  `json:"confidence"`
	Evidence   []string `json:"evidence"`
	Indicators []string `json:"indicators"`
	Summary    string   `json:"summary"`
}

// RunAgent asks the model for a domain finding over the snapshot's data
func (d *DemoSuite) RunAgent(ctx context.Context, domain string, snapshot *state.InvestigationState) (state.DomainFinding, error) {
	prompt := buildDomainPrompt(domain, snapshot)

	raw, err := d.client.CompleteJSON(ctx, domainAgentSystemPrompt, prompt)
	if err != nil {
		return state.DomainFinding{}, llm.ClassifyProviderError(err)
	}

	var resp domainAgentResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return state.DomainFinding{}, fmt.Errorf("parse %s agent response: %w", domain, err)
	}

	if len(resp.Evidence) == 0 {
		return state.DomainFinding{
			Domain:     domain,
			Confidence: clamp01(resp.Confidence),
			Summary:    resp.Summary,
			Status:     state.FindingInsufficientEvidence,
		}, nil
	}

	score := clamp01(resp.RiskScore)
	return state.DomainFinding{
		Domain:     domain,
		RiskScore:  &score,
		Confidence: clamp01(resp.Confidence),
		Evidence:   resp.Evidence,
		Indicators: resp.Indicators,
		Summary:    resp.Summary,
		Status:     state.FindingOK,
	}, nil
}

func buildDomainPrompt(domain string, snapshot *state.InvestigationState) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Domain under analysis: %s\n", domain)
	fmt.Fprintf(&sb, "Entity: %s (%s)\n\n", snapshot.EntityID, snapshot.EntityType)

	if len(snapshot.SnowflakeData) > 0 {
		data, _ := json.Marshal(snapshot.SnowflakeData)
		fmt.Fprintf(&sb, "Initial dataset:\n%s\n\n", data)
	}
	if len(snapshot.ToolResults) > 0 {
		data, _ := json.Marshal(snapshot.ToolResults)
		fmt.Fprintf(&sb, "Tool results:\n%s\n\n", data)
	}
	if len(snapshot.RiskIndicators) > 0 {
		fmt.Fprintf(&sb, "Known indicators: %s\n", strings.Join(snapshot.RiskIndicators, ", "))
	}
	return sb.String()
}

// Investigate produces the dataset-gathering turn. Data is synthesized
// deterministically; the model contributes the narrative message.
func (d *DemoSuite) Investigate(ctx context.Context, snapshot *state.InvestigationState) (graph.InvestigationTurn, error) {
	turn, err := d.mock.Investigate(ctx, snapshot)
	if err != nil || len(turn.Messages) == 0 {
		return turn, err
	}

	narrative, nErr := d.client.Complete(ctx,
		"You are the lead investigator of a fraud case. Summarize the gathered dataset in two sentences.",
		fmt.Sprintf("Entity %s (%s), dataset: %v", snapshot.EntityID, snapshot.EntityType, turn.SnowflakeData))
	if nErr != nil {
		classified := llm.ClassifyProviderError(nErr)
		if classified != nErr {
			return graph.InvestigationTurn{}, classified
		}
		// narrative is cosmetic, keep the deterministic message
		logging.Warn("investigator narrative failed, using canned message", "error", nErr)
		return turn, nil
	}

	turn.Messages[0].Content = narrative
	return turn, nil
}

// InvokeTools reuses the deterministic tool payloads
func (d *DemoSuite) InvokeTools(ctx context.Context, requested []string, snapshot *state.InvestigationState) (map[string]any, []string, error) {
	return d.mock.InvokeTools(ctx, requested, snapshot)
}

// InitialPayload reuses the deterministic start payload
func (d *DemoSuite) InitialPayload(ctx context.Context, entityID string, entityType state.EntityType) (map[string]any, error) {
	return d.mock.InitialPayload(ctx, entityID, entityType)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
