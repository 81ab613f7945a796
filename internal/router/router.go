package router

import (
	"fmt"
	"strings"
	"time"

	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/logging"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/safety"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/state"
)

// Node names the router can return
const (
	NodeFraudInvestigation = "fraud_investigation"
	NodeTools              = "tools"
	NodeSummary            = "summary"
	NodeComplete           = "complete"
)

// Decision is the routing verdict for one orchestrator loop
type Decision struct {
	NextNode       string `json:"next_node"`
	Reasoning      string `json:"reasoning"`
	SafetyOverride bool   `json:"safety_override"`
	OverrideReason string `json:"override_reason,omitempty"`
}

// Router turns an AI decision and a safety status into the next node
type Router struct {
	aiControl bool
}

// New creates the hybrid router: AI-guided dispatch when the safety
// manager grants control
func New() *Router {
	return &Router{aiControl: true}
}

// NewSequential creates the baseline router used for the sequential
// graph arm: AI control is never granted, every run walks the
// safety-first phase order, and deviations from AI recommendations are
// not overrides because the AI has no authority to override
func NewSequential() *Router {
	return &Router{}
}

// Decide picks the next node. Termination dominates; AI control dispatches
// by strategy when authorized; otherwise the safety-first sequential order
// applies. Deviations from the AI recommendation record a SafetyOverride.
func (r *Router) Decide(s *state.InvestigationState, d state.AIDecision, status safety.Status) Decision {
	decision := r.decide(s, d, status)

	if r.aiControl && deviates(d.RecommendedAction, decision.NextNode) && decision.NextNode != NodeComplete &&
		!fulfilled(s, d.RecommendedAction) {
		decision.SafetyOverride = true
		if decision.OverrideReason == "" {
			decision.OverrideReason = decision.Reasoning
		}
		s.AddSafetyOverride(state.SafetyOverride{
			Timestamp:          time.Now().UTC(),
			OriginalAIDecision: d.RecommendedAction,
			SafetyDecision:     decision.NextNode,
			ConcernType:        overrideConcernType(status),
			Reasoning:          decision.OverrideReason,
			MetricsAtOverride: map[string]float64{
				"resource_pressure":  status.ResourcePressure,
				"orchestrator_loops": float64(s.OrchestratorLoops),
				"ai_confidence":      s.AIConfidence,
			},
		})
	}

	// medium confidence gets an annotation pass, never a different node
	if s.AIConfidenceLevel == state.ConfidenceMedium {
		decision.Reasoning += "; medium-confidence validation applied"
	}

	s.RecordRouting(state.RoutingRecord{
		Loop:           s.OrchestratorLoops,
		NextNode:       decision.NextNode,
		Reasoning:      decision.Reasoning,
		SafetyOverride: decision.SafetyOverride,
		OverrideReason: decision.OverrideReason,
	})

	logging.Debug("routing decision",
		"investigation_id", s.InvestigationID,
		"next_node", decision.NextNode,
		"safety_override", decision.SafetyOverride,
		"loop", s.OrchestratorLoops)

	return decision
}

func (r *Router) decide(s *state.InvestigationState, d state.AIDecision, status safety.Status) Decision {
	if status.RequiresImmediateTermination {
		return Decision{
			NextNode:       NodeSummary,
			Reasoning:      "safety termination: " + status.OverrideReasoning,
			SafetyOverride: true,
			OverrideReason: status.OverrideReasoning,
		}
	}

	level := s.AIConfidenceLevel
	if r.aiControl && status.AllowsAIControl && (level == state.ConfidenceHigh || level == state.ConfidenceMedium) {
		return r.dispatchByStrategy(s, d)
	}

	return r.sequential(s)
}

// dispatchByStrategy routes under AI control
func (r *Router) dispatchByStrategy(s *state.InvestigationState, d state.AIDecision) Decision {
	switch s.InvestigationStrategy {
	case state.StrategyCriticalPath, state.StrategyMinimal:
		if !s.HasDomain("risk") {
			return Decision{
				NextNode:  "risk_agent",
				Reasoning: fmt.Sprintf("%s strategy goes directly to risk analysis", s.InvestigationStrategy),
			}
		}
		return Decision{
			NextNode:  NodeSummary,
			Reasoning: fmt.Sprintf("%s strategy complete after risk analysis", s.InvestigationStrategy),
		}

	case state.StrategyFocused:
		for _, agent := range d.AgentsToActivate {
			domain := strings.TrimSuffix(agent, "_agent")
			if !s.HasDomain(domain) {
				return Decision{
					NextNode:  domain + "_agent",
					Reasoning: "focused strategy activating " + agent,
				}
			}
		}
		return Decision{
			NextNode:  NodeSummary,
			Reasoning: "focused strategy exhausted its agent list",
		}

	case state.StrategyAdaptive:
		if !s.SnowflakeCompleted {
			return Decision{
				NextNode:  NodeFraudInvestigation,
				Reasoning: "adaptive strategy needs the initial dataset first",
			}
		}
		if len(s.ToolsUsed) < 2 && len(pendingRecommendedTools(s, d)) > 0 {
			return Decision{
				NextNode:  NodeTools,
				Reasoning: "adaptive strategy executing recommended tools",
			}
		}
		if len(s.DomainsCompleted) < 3 {
			return Decision{
				NextNode:  nextRecommendedDomain(s, d),
				Reasoning: "adaptive strategy broadening domain coverage",
			}
		}
		return Decision{
			NextNode:  NodeSummary,
			Reasoning: "adaptive strategy has sufficient coverage",
		}

	default: // COMPREHENSIVE
		return r.sequential(s)
	}
}

// sequential is the safety-first phase order
func (r *Router) sequential(s *state.InvestigationState) Decision {
	switch {
	case !s.SnowflakeCompleted:
		return Decision{
			NextNode:  NodeFraudInvestigation,
			Reasoning: "sequential: initial dataset not yet gathered",
		}
	case len(s.ToolResults) == 0:
		return Decision{
			NextNode:  NodeFraudInvestigation,
			Reasoning: "sequential: no tool results yet, triggering tool calls",
		}
	case len(s.DomainFindings) == 0:
		return Decision{
			NextNode:  state.DomainOrder[0] + "_agent",
			Reasoning: "sequential: starting domain analysis",
		}
	case len(s.DomainFindings) < 5:
		next := s.NextUncompletedDomain()
		if next == "" {
			return Decision{NextNode: NodeSummary, Reasoning: "sequential: all domains complete"}
		}
		return Decision{
			NextNode:  next + "_agent",
			Reasoning: "sequential: continuing domain analysis with " + next,
		}
	default:
		return Decision{
			NextNode:  NodeSummary,
			Reasoning: "sequential: domain coverage complete",
		}
	}
}

// pendingRecommendedTools filters the recommendation down to tools the
// run has not executed yet
func pendingRecommendedTools(s *state.InvestigationState, d state.AIDecision) []string {
	var pending []string
	for _, tool := range d.ToolsRecommended {
		if !s.HasTool(tool) {
			pending = append(pending, tool)
		}
	}
	return pending
}

// nextRecommendedDomain prefers the AI's agent list, falling back to the
// fixed domain order
func nextRecommendedDomain(s *state.InvestigationState, d state.AIDecision) string {
	for _, agent := range d.AgentsToActivate {
		domain := strings.TrimSuffix(agent, "_agent")
		if !s.HasDomain(domain) {
			return domain + "_agent"
		}
	}
	if next := s.NextUncompletedDomain(); next != "" {
		return next + "_agent"
	}
	return NodeSummary
}

// deviates compares the AI recommendation with the routed node, treating
// domain recommendations and their agent nodes as equivalent
func deviates(recommended, next string) bool {
	if recommended == "" {
		return false
	}
	if recommended == next {
		return false
	}
	// snowflake analysis happens inside the investigation node
	if recommended == "snowflake_analysis" && next == NodeFraudInvestigation {
		return false
	}
	if !strings.HasSuffix(recommended, "_agent") && recommended+"_agent" == next {
		return false
	}
	return true
}

// fulfilled reports a recommendation the state has already satisfied.
// Moving past a satisfied recommendation is progress, not an override.
func fulfilled(s *state.InvestigationState, recommended string) bool {
	switch recommended {
	case "", NodeSummary, NodeComplete:
		return false
	case "snowflake_analysis":
		return s.SnowflakeCompleted
	case NodeTools:
		return len(s.ToolsUsed) > 0
	default:
		domain := strings.TrimSuffix(recommended, "_agent")
		return s.HasDomain(domain)
	}
}

// overrideConcernType picks the concern type recorded with an override
func overrideConcernType(status safety.Status) state.ConcernType {
	for _, c := range status.SafetyConcerns {
		if c.IsCritical() {
			return c.Type
		}
	}
	if len(status.SafetyConcerns) > 0 {
		return status.SafetyConcerns[0].Type
	}
	if status.ResourcePressure >= 0.35 {
		return state.ConcernResourcePressure
	}
	return state.ConcernLoopRisk
}
