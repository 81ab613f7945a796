package confidence

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"

	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/errors"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/state"
)

// OpenAIAssessor asks an OpenAI chat model for a structured confidence
// assessment of the investigation so far
type OpenAIAssessor struct {
	client openai.Client
	model  openai.ChatModel
}

// NewOpenAIAssessor creates an assessor backed by the OpenAI SDK.
// The SDK reads OPENAI_API_KEY from the environment.
func NewOpenAIAssessor(model string) *OpenAIAssessor {
	if model == "" {
		model = string(openai.ChatModelGPT4oMini)
	}
	return &OpenAIAssessor{
		client: openai.NewClient(),
		model:  openai.ChatModel(model),
	}
}

// assessmentResponse is the JSON contract the model is asked to fill
type assessmentResponse struct {
	Confidence                float64  `json:"confidence"`
	RecommendedAction         string   `json:"recommended_action"`
	Reasoning                 []string `json:"reasoning"`
	EvidenceQuality           float64  `json:"evidence_quality"`
	InvestigationCompleteness float64  `json:"investigation_completeness"`
	Strategy                  string   `json:"strategy"`
	AgentsToActivate          []string `json:"agents_to_activate"`
	ToolsRecommended          []string `json:"tools_recommended"`
	ResourceImpact            string   `json:"resource_impact"`
}

// Assess implements the assessor port
func (a *OpenAIAssessor) Assess(ctx context.Context, snapshot *state.InvestigationState) (state.AIDecision, error) {
	params := openai.ChatCompletionNewParams{
		Model: a.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(assessmentSystemPrompt),
			openai.UserMessage(buildAssessmentPrompt(snapshot)),
		},
	}

	completion, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return state.AIDecision{}, classifyProviderError(err)
	}
	if len(completion.Choices) == 0 {
		return state.AIDecision{}, errors.ProviderError(errors.ProviderAPIError, nil, "empty completion from provider")
	}

	var resp assessmentResponse
	raw := cleanJSONResponse(completion.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return state.AIDecision{}, fmt.Errorf("unparseable assessment response: %w", err)
	}

	return state.AIDecision{
		Confidence:                resp.Confidence,
		ConfidenceLevel:           state.LevelForConfidence(resp.Confidence),
		RecommendedAction:         resp.RecommendedAction,
		Reasoning:                 resp.Reasoning,
		EvidenceQuality:           resp.EvidenceQuality,
		InvestigationCompleteness: resp.InvestigationCompleteness,
		Strategy:                  state.Strategy(resp.Strategy),
		AgentsToActivate:          resp.AgentsToActivate,
		ToolsRecommended:          resp.ToolsRecommended,
		ResourceImpact:            state.ResourceImpact(resp.ResourceImpact),
	}, nil
}

// classifyProviderError maps SDK failures onto provider error subkinds.
// These are unrecoverable for the current run and propagate as-is.
func classifyProviderError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "context_length_exceeded") || strings.Contains(msg, "maximum context length"):
		return errors.ProviderError(errors.ProviderContextLengthExceeded, err, "context length exceeded")
	case strings.Contains(msg, "model_not_found") || strings.Contains(msg, "does not exist"):
		return errors.ProviderError(errors.ProviderModelNotFound, err, "model not found")
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "429"):
		return errors.ProviderError(errors.ProviderRateLimited, err, "provider rate limited")
	default:
		return errors.ProviderError(errors.ProviderAPIError, err, "provider request failed")
	}
}

// cleanJSONResponse strips markdown fences models tend to wrap JSON in
func cleanJSONResponse(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
		content = strings.TrimSpace(content)
	}
	// salvage the outermost object when the model added prose
	if !strings.HasPrefix(content, "{") {
		if start := strings.Index(content, "{"); start >= 0 {
			if end := strings.LastIndex(content, "}"); end > start {
				content = content[start : end+1]
			}
		}
	}
	return content
}

const assessmentSystemPrompt = `You are the confidence assessment component of a fraud investigation orchestrator.
Given the current investigation state you return a single JSON object, no markdown, with fields:
confidence (0-1), recommended_action (one of: snowflake_analysis, tools, network_agent, device_agent, location_agent, logs_agent, authentication_agent, risk_agent, summary),
reasoning (list of short strings naming the dominant factors), evidence_quality (0-1),
investigation_completeness (0-1), strategy (COMPREHENSIVE|FOCUSED|ADAPTIVE|CRITICAL_PATH|MINIMAL),
agents_to_activate (list), tools_recommended (list), resource_impact (low|medium|high).`

// buildAssessmentPrompt summarizes the state compactly; full message
// history is deliberately excluded to keep the context small
func buildAssessmentPrompt(s *state.InvestigationState) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Entity: %s (%s)\n", s.EntityID, s.EntityType)
	fmt.Fprintf(&sb, "Loop: %d  Phase: %s  Strategy: %s\n", s.OrchestratorLoops, s.CurrentPhase, s.InvestigationStrategy)
	fmt.Fprintf(&sb, "Snowflake completed: %v (quality %.2f)\n", s.SnowflakeCompleted, s.SnowflakeQuality)
	fmt.Fprintf(&sb, "Tools: %d results from %d attempts\n", len(s.ToolResults), s.ToolExecutionAttempts)
	fmt.Fprintf(&sb, "Domains completed: %s\n", strings.Join(s.DomainsCompleted, ", "))

	for domain, f := range s.DomainFindings {
		score := "null"
		if f.RiskScore != nil {
			score = fmt.Sprintf("%.2f", *f.RiskScore)
		}
		fmt.Fprintf(&sb, "  %s: risk=%s confidence=%.2f evidence=%d status=%s\n",
			domain, score, f.Confidence, len(f.Evidence), f.Status)
	}

	if len(s.RiskIndicators) > 0 {
		fmt.Fprintf(&sb, "Risk indicators: %s\n", strings.Join(s.RiskIndicators, "; "))
	}
	fmt.Fprintf(&sb, "Current AI confidence: %.2f (%s)\n", s.AIConfidence, s.AIConfidenceLevel)
	return sb.String()
}
