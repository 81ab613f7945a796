package graph

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/config"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/errors"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/logging"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/outcome"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/risk"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/router"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/safety"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/state"
)

// Node names
const (
	NodeStart              = "start_investigation"
	NodeRawData            = "raw_data"
	NodeFraudInvestigation = "fraud_investigation"
	NodeTools              = "tools"
	NodeAssessment         = "ai_confidence_assessment"
	NodeSafetyValidation   = "safety_validation"
	NodeOrchestrator       = "hybrid_orchestrator"
	NodeSummary            = "summary"
	NodeComplete           = "complete"
	NodeEnd                = "END"
)

// DomainAgentNode returns the node name for a domain
func DomainAgentNode(domain string) string {
	return domain + "_agent"
}

// IsDomainAgentNode reports whether node is a domain agent, returning
// the domain
func IsDomainAgentNode(node string) (string, bool) {
	for _, domain := range state.DomainOrder {
		if node == domain+"_agent" {
			return domain, true
		}
	}
	return "", false
}

// Deps wires the executor's collaborators
type Deps struct {
	Checkpointer Checkpointer
	Investigator Investigator
	Agents       AgentRunner
	Tools        ToolInvoker
	Assessor     Assessor
	Router       *router.Router
	Safety       *safety.Manager
	Finalizer    *risk.Finalizer
	Sink         ResultSink
	Initializer  Initializer
	Emitter      EventEmitter
}

// Executor drives one investigation through the node graph. State is
// owned exclusively by the executor between node invocations.
type Executor struct {
	deps Deps
	mode config.RunMode

	cancelled  atomic.Bool
	cancelWhy  atomic.Value // string
	agentLimit time.Duration
	toolLimit  time.Duration
}

// NewExecutor creates an executor
func NewExecutor(deps Deps, mode config.RunMode) *Executor {
	return &Executor{
		deps:       deps,
		mode:       mode,
		agentLimit: 2 * time.Minute,
		toolLimit:  90 * time.Second,
	}
}

// Cancel requests cooperative termination. The current node finishes,
// then the executor routes to summary.
func (e *Executor) Cancel(reason string) {
	e.cancelWhy.Store(reason)
	e.cancelled.Store(true)
}

// Run executes a fresh investigation to completion
func (e *Executor) Run(ctx context.Context, st *state.InvestigationState) (*outcome.CanonicalFinalOutcome, error) {
	return e.runFrom(ctx, st, NodeStart)
}

// Resume reloads the latest checkpoint and re-enters the last
// non-terminal node
func (e *Executor) Resume(ctx context.Context, investigationID string) (*outcome.CanonicalFinalOutcome, error) {
	node, st, err := e.deps.Checkpointer.LoadLatest(ctx, investigationID)
	if err != nil {
		return nil, errors.CheckpointError(err, "load latest checkpoint")
	}
	if st == nil {
		return nil, errors.ConfigErrorf("no checkpoint for investigation %s", investigationID)
	}
	if node == NodeComplete || node == NodeEnd {
		return outcome.Build(st), nil
	}
	logging.Info("resuming investigation",
		"investigation_id", investigationID, "node", node)
	return e.runFrom(ctx, st, node)
}

func (e *Executor) runFrom(ctx context.Context, st *state.InvestigationState, start string) (*outcome.CanonicalFinalOutcome, error) {
	node := start
	transitions := 0
	hardLimit := config.HardRecursionLimit(e.mode)
	var lastStatus safety.Status

	for node != NodeEnd {
		if e.cancelled.Load() && node != NodeSummary && node != NodeComplete {
			reason, _ := e.cancelWhy.Load().(string)
			st.AddSafetyConcern(state.SafetyConcern{
				Type:        state.ConcernResourcePressure,
				Severity:    state.SeverityCritical,
				Description: "external termination: " + reason,
			})
			st.RecordError(node, "cancelled", reason)
			node = NodeSummary
		}

		transitions++
		if transitions > hardLimit && node != NodeSummary && node != NodeComplete {
			st.AddSafetyConcern(state.SafetyConcern{
				Type:        state.ConcernLoopRisk,
				Severity:    state.SeverityCritical,
				Description: fmt.Sprintf("hard recursion limit %d exceeded", hardLimit),
			})
			node = NodeSummary
			continue
		}

		next, err := e.execNode(ctx, node, st, &lastStatus)
		if err != nil {
			// only provider errors escape node boundaries; the failure
			// checkpoint is best effort
			st.RecordError(node, "provider_error", err.Error())
			_ = e.checkpoint(ctx, st, node)
			return nil, err
		}

		if cpErr := e.checkpoint(ctx, st, node); cpErr != nil {
			return nil, cpErr
		}
		node = next
	}

	o := outcome.Build(st)
	e.persist(ctx, st, o)
	return o, nil
}

// execNode runs one node and returns the next. All failures except
// provider errors are absorbed here into errors[] plus a safe fallback.
func (e *Executor) execNode(ctx context.Context, node string, st *state.InvestigationState, lastStatus *safety.Status) (string, error) {
	started := time.Now()
	defer func() {
		logging.Debug("node executed",
			"investigation_id", st.InvestigationID,
			"node", node,
			"duration_ms", time.Since(started).Milliseconds())
	}()

	if domain, ok := IsDomainAgentNode(node); ok {
		return e.nodeDomainAgent(ctx, st, domain)
	}

	switch node {
	case NodeStart:
		return e.nodeStart(ctx, st)
	case NodeRawData:
		return e.nodeRawData(st)
	case NodeFraudInvestigation:
		return e.nodeFraudInvestigation(ctx, st)
	case NodeTools:
		return e.nodeTools(ctx, st)
	case NodeAssessment:
		return e.nodeAssessment(ctx, st)
	case NodeSafetyValidation:
		return e.nodeSafetyValidation(st, lastStatus)
	case NodeOrchestrator:
		return e.nodeOrchestrator(st, lastStatus)
	case NodeSummary:
		return e.nodeSummary(st)
	case NodeComplete:
		return e.nodeComplete(ctx, st)
	default:
		st.RecordError(node, "internal", "unknown node")
		return NodeSummary, nil
	}
}

// nodeStart merges the external initialization payload. Protected field
// writes are rejected with a dangerous-overwrite warning each.
func (e *Executor) nodeStart(ctx context.Context, st *state.InvestigationState) (string, error) {
	phase := state.PhaseInitialization
	st.CurrentPhase = phase

	if e.deps.Initializer != nil {
		payload, err := e.deps.Initializer.InitialPayload(ctx, st.EntityID, st.EntityType)
		if err != nil {
			st.RecordError(NodeStart, "init", err.Error())
		} else if len(payload) > 0 {
			rejected := st.Apply(NodeStart, state.Update{Extra: payload})
			for _, rej := range rejected {
				logging.Warn("dangerous overwrite attempt in initialization payload",
					"investigation_id", st.InvestigationID, "error", rej.Error())
			}
		}
	}

	st.AppendAudit(state.AuditEntry{
		Actor:  "executor",
		Action: "investigation_started",
		Detail: string(st.EntityType) + ":" + st.EntityID,
	})
	e.emit(st, "audit", map[string]any{"event": "started"})

	// raw-data routing condition: only worth a pass when the payload
	// brought raw content to score
	if len(st.ToolResults) > 0 {
		return NodeRawData, nil
	}
	return NodeFraudInvestigation, nil
}

// nodeRawData scores data completeness from content volume
func (e *Executor) nodeRawData(st *state.InvestigationState) (string, error) {
	st.CurrentPhase = state.PhaseRawData

	volume := len(st.ToolResults) + len(st.SnowflakeData)
	completeness := clamp01(0.2 * float64(volume))
	st.ConfidenceFactors["data_completeness"] = completeness

	st.AppendAudit(state.AuditEntry{
		Actor:    NodeRawData,
		Action:   "data_completeness_scored",
		Metadata: map[string]any{"completeness": completeness, "volume": volume},
	})
	return NodeFraudInvestigation, nil
}

// nodeFraudInvestigation runs one conversational turn of the
// investigator. Tool calls route to the tools node; otherwise the flow
// continues to assessment.
func (e *Executor) nodeFraudInvestigation(ctx context.Context, st *state.InvestigationState) (string, error) {
	st.CurrentPhase = state.PhaseInvestigation

	invCtx, cancel := context.WithTimeout(ctx, e.agentLimit)
	defer cancel()

	turn, err := e.deps.Investigator.Investigate(invCtx, st.Clone())
	if err != nil {
		if errors.IsProvider(err) {
			return "", err
		}
		kind := "agent"
		if errors.GetType(err) == errors.ErrorTypeTimeout || invCtx.Err() == context.DeadlineExceeded {
			kind = "timeout"
		}
		st.RecordError(NodeFraudInvestigation, kind, err.Error())
		return NodeSummary, nil
	}

	e.applyTurn(st, turn)

	if len(turn.ToolCalls) > 0 {
		st.ToolResults["__pending_tools"] = turn.ToolCalls
		return NodeTools, nil
	}
	return NodeAssessment, nil
}

// applyTurn folds an investigator turn into state, guarding the message
// sequence invariant and prepending AI guidance only when safe
func (e *Executor) applyTurn(st *state.InvestigationState, turn InvestigationTurn) {
	if turn.SnowflakeData != nil {
		st.SnowflakeData = turn.SnowflakeData
		st.SnowflakeCompleted = true
		if turn.SnowflakeQuality > 0 {
			st.SnowflakeQuality = turn.SnowflakeQuality
		}
		st.ConfidenceFactors["snowflake_quality"] = st.SnowflakeQuality
	}
	if len(turn.RiskIndicators) > 0 {
		st.RiskIndicators = append(st.RiskIndicators, turn.RiskIndicators...)
	}

	if len(turn.Messages) == 0 {
		return
	}

	// AI guidance lands in the first system message only when no tool
	// exchange would be broken by it. Guidance from an earlier loop is
	// replaced, never stacked.
	if guidance := e.guidance(st); guidance != "" && state.MessageSequenceValid(st.Messages) {
		switch {
		case len(st.Messages) == 0 || st.Messages[0].Kind != state.KindSystem:
			st.Messages = append([]state.Message{{
				Role: "system", Kind: state.KindSystem, Content: guidance,
			}}, st.Messages...)
		case strings.HasPrefix(st.Messages[0].Content, guidancePrefix):
			rest := ""
			if idx := strings.Index(st.Messages[0].Content, "\n\n"); idx >= 0 {
				rest = st.Messages[0].Content[idx:]
			}
			st.Messages[0].Content = guidance + rest
		default:
			st.Messages[0].Content = guidance + "\n\n" + st.Messages[0].Content
		}
	}
	st.Messages = append(st.Messages, turn.Messages...)
}

const guidancePrefix = "AI guidance:"

func (e *Executor) guidance(st *state.InvestigationState) string {
	d := st.LastDecision()
	if d == nil || d.RecommendedAction == "" {
		return ""
	}
	return fmt.Sprintf("%s strategy %s, recommended next action %s, confidence %.2f.",
		guidancePrefix, st.InvestigationStrategy, d.RecommendedAction, d.Confidence)
}

// nodeTools executes the pending tool calls through the invoker
func (e *Executor) nodeTools(ctx context.Context, st *state.InvestigationState) (string, error) {
	requested, _ := st.ToolResults["__pending_tools"].([]string)
	delete(st.ToolResults, "__pending_tools")

	st.ToolExecutionAttempts += len(requested)
	if len(requested) == 0 {
		st.ToolExecutionAttempts++
	}

	toolCtx, cancel := context.WithTimeout(ctx, e.toolLimit)
	defer cancel()

	results, used, err := e.deps.Tools.InvokeTools(toolCtx, requested, st.Clone())
	if err != nil {
		if errors.IsProvider(err) {
			return "", err
		}
		kind := "tool"
		if toolCtx.Err() == context.DeadlineExceeded {
			kind = "timeout"
			st.AddSafetyConcern(state.SafetyConcern{
				Type:        state.ConcernTimeoutRisk,
				Severity:    state.SeverityMedium,
				Description: "tool invocation deadline expired",
			})
		}
		st.RecordError(NodeTools, kind, err.Error())
		return NodeFraudInvestigation, nil
	}

	for k, v := range results {
		st.ToolResults[k] = v
	}
	for _, tool := range used {
		st.AddToolUsed(tool)
	}
	st.UpdateToolEfficiency()
	st.ConfidenceFactors["tools_quality"] = clamp01(
		float64(len(st.ToolResults)) / float64(max(1, st.ToolExecutionAttempts)))

	st.AppendAudit(state.AuditEntry{
		Actor:  NodeTools,
		Action: "tools_executed",
		Metadata: map[string]any{
			"requested": len(requested),
			"returned":  len(results),
		},
	})
	e.emit(st, "tool_result", map[string]any{"tools_used": used})

	return NodeFraudInvestigation, nil
}

// nodeAssessment updates confidence from the assessor
func (e *Executor) nodeAssessment(ctx context.Context, st *state.InvestigationState) (string, error) {
	decision, err := e.deps.Assessor.Assess(ctx, st)
	if err != nil {
		return "", err
	}

	st.UpdateAIConfidence(decision, fmt.Sprintf("loop_%d_assessment", st.OrchestratorLoops))
	if decision.Strategy != "" {
		st.SetStrategy(decision.Strategy, "assessor recommendation")
	}
	return NodeSafetyValidation, nil
}

// nodeSafetyValidation refreshes the safety status and dynamic limits
func (e *Executor) nodeSafetyValidation(st *state.InvestigationState, lastStatus *safety.Status) (string, error) {
	status := e.deps.Safety.Validate(st)
	*lastStatus = status
	st.SetDynamicLimits(status.CurrentLimits, fmt.Sprintf("safety level %s", status.SafetyLevel))
	e.emit(st, "safety", map[string]any{
		"level":    string(status.SafetyLevel),
		"pressure": status.ResourcePressure,
	})
	return NodeOrchestrator, nil
}

// nodeOrchestrator increments loop accounting and routes
func (e *Executor) nodeOrchestrator(st *state.InvestigationState, lastStatus *safety.Status) (string, error) {
	st.OrchestratorLoops++

	// both termination paths converge on the smaller limit
	limit := min(st.DynamicLimits.MaxOrchestratorLoops, config.HardRecursionLimit(e.mode))
	if st.OrchestratorLoops > limit {
		st.AddSafetyConcern(state.SafetyConcern{
			Type:        state.ConcernLoopRisk,
			Severity:    state.SeverityCritical,
			Description: fmt.Sprintf("orchestrator loop %d exceeded limit %d", st.OrchestratorLoops, limit),
		})
		return NodeSummary, nil
	}

	decision := state.AIDecision{}
	if d := st.LastDecision(); d != nil {
		decision = *d
	}

	routed := e.deps.Router.Decide(st, decision, *lastStatus)
	e.emit(st, "routing", map[string]any{
		"next_node": routed.NextNode,
		"override":  routed.SafetyOverride,
	})

	// the tools node consumes the pending list; routing there on a
	// recommendation has to stage the recommended tools itself
	if routed.NextNode == NodeTools {
		if _, staged := st.ToolResults["__pending_tools"]; !staged {
			var pending []string
			for _, tool := range decision.ToolsRecommended {
				if !st.HasTool(tool) {
					pending = append(pending, tool)
				}
			}
			if len(pending) > 0 {
				st.ToolResults["__pending_tools"] = pending
			}
		}
	}

	if _, ok := IsDomainAgentNode(routed.NextNode); ok {
		st.CurrentPhase = state.PhaseDomainAnalysis
	}
	return routed.NextNode, nil
}

// nodeDomainAgent runs one domain analysis
func (e *Executor) nodeDomainAgent(ctx context.Context, st *state.InvestigationState, domain string) (string, error) {
	agentCtx, cancel := context.WithTimeout(ctx, e.agentLimit)
	defer cancel()

	started := time.Now()
	finding, err := e.deps.Agents.RunAgent(agentCtx, domain, st.Clone())
	if err != nil {
		if errors.IsProvider(err) {
			return "", err
		}
		kind := "agent"
		if agentCtx.Err() == context.DeadlineExceeded || errors.GetType(err) == errors.ErrorTypeTimeout {
			kind = "timeout"
		}
		st.RecordError(DomainAgentNode(domain), kind, err.Error())
		st.DomainFindings[domain] = state.DomainFinding{
			Domain:  domain,
			Status:  state.FindingError,
			Summary: err.Error(),
		}
		st.AddDomainCompleted(domain)
		return NodeOrchestrator, nil
	}

	finding.Domain = domain
	finding.DurationMS = time.Since(started).Milliseconds()
	st.DomainFindings[domain] = finding
	st.AddDomainCompleted(domain)
	st.ConfidenceFactors[domain+"_analysis"] = finding.Confidence

	st.AppendAudit(state.AuditEntry{
		Actor:  DomainAgentNode(domain),
		Action: "domain_analyzed",
		Metadata: map[string]any{
			"status":      string(finding.Status),
			"confidence":  finding.Confidence,
			"duration_ms": finding.DurationMS,
		},
	})
	e.emit(st, "agent_result", map[string]any{
		"domain": domain,
		"status": string(finding.Status),
	})

	return NodeOrchestrator, nil
}

// nodeSummary consolidates confidence, gates evidence, finalizes risk
func (e *Executor) nodeSummary(st *state.InvestigationState) (string, error) {
	st.CurrentPhase = state.PhaseSummary

	result := e.deps.Finalizer.Finalize(st)
	st.AppendAudit(state.AuditEntry{
		Actor:  NodeSummary,
		Action: "investigation_summarized",
		Metadata: map[string]any{
			"gated":             result.Gated,
			"evidence_strength": result.EvidenceStrength,
			"fraud_likelihood":  result.FraudLikelihood,
		},
	})

	if st.EndTime == nil {
		now := time.Now().UTC()
		st.EndTime = &now
		st.TotalDurationMS = now.Sub(st.StartTime).Milliseconds()
	}
	return NodeComplete, nil
}

// nodeComplete finalizes metrics and pushes progress to the sink
func (e *Executor) nodeComplete(ctx context.Context, st *state.InvestigationState) (string, error) {
	st.UpdateToolEfficiency()
	st.SetPerformanceMetric("orchestrator_loops", float64(st.OrchestratorLoops))
	st.SetPerformanceMetric("domains_completed", float64(len(st.DomainsCompleted)))
	st.CurrentPhase = state.PhaseComplete

	if e.deps.Sink != nil {
		progress := Progress{
			RiskScore:          st.RiskScore,
			OverallRiskScore:   st.RiskScore,
			Status:             string(outcome.DeriveStatus(st)),
			CurrentPhase:       string(st.CurrentPhase),
			ProgressPercentage: 100,
		}
		if err := e.deps.Sink.UpdateProgress(ctx, st.InvestigationID, progress); err != nil {
			st.RecordError(NodeComplete, "sink", err.Error())
		}

		scores, dropped := filterTransactionScores(st.TransactionScores)
		if dropped > 0 {
			logging.Warn("dropped out-of-range transaction scores",
				"investigation_id", st.InvestigationID, "dropped", dropped)
		}
		if len(scores) > 0 {
			if err := e.deps.Sink.StoreTransactionScores(ctx, st.InvestigationID, scores); err != nil {
				st.RecordError(NodeComplete, "sink", err.Error())
			}
		}
	}

	e.emit(st, "completion", map[string]any{"status": string(outcome.DeriveStatus(st))})
	return NodeEnd, nil
}

// filterTransactionScores keeps scores in [0,1], counting the rest
func filterTransactionScores(scores map[string]float64) (map[string]float64, int) {
	kept := make(map[string]float64, len(scores))
	dropped := 0
	for id, score := range scores {
		if score < 0 || score > 1 {
			dropped++
			continue
		}
		kept[id] = score
	}
	return kept, dropped
}

// checkpoint persists state after a node, retrying once. A second
// failure fails the investigation: a run that cannot persist must not
// report success.
func (e *Executor) checkpoint(ctx context.Context, st *state.InvestigationState, node string) error {
	if e.deps.Checkpointer == nil {
		return nil
	}
	err := e.deps.Checkpointer.Save(ctx, st.InvestigationID, node, st)
	if err == nil {
		return nil
	}
	logging.Warn("checkpoint save failed, retrying",
		"investigation_id", st.InvestigationID, "node", node, "error", err)

	if err = e.deps.Checkpointer.Save(ctx, st.InvestigationID, node, st); err == nil {
		return nil
	}
	st.RecordError(node, "checkpoint", err.Error())
	logging.Error("checkpoint save failed after retry",
		"investigation_id", st.InvestigationID, "node", node, "error", err)
	return errors.CheckpointError(err, fmt.Sprintf("persist state at node %s", node))
}

func (e *Executor) persist(ctx context.Context, st *state.InvestigationState, o *outcome.CanonicalFinalOutcome) {
	if e.deps.Sink == nil {
		return
	}
	if err := e.deps.Sink.Persist(ctx, st.InvestigationID, o, st); err != nil {
		logging.Error("outcome persist failed",
			"investigation_id", st.InvestigationID, "error", err)
	}
}

func (e *Executor) emit(st *state.InvestigationState, frameType string, payload any) {
	if e.deps.Emitter == nil {
		return
	}
	e.deps.Emitter.Emit(st.InvestigationID, frameType, payload)
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
