package state

import (
	"time"

	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/config"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/errors"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/logging"
)

// Protected fields may only be written through the dedicated mutation
// methods below. Partial updates that touch them are rejected.
var protectedFields = map[string]bool{
	"decision_audit_trail":   true,
	"ai_confidence":          true,
	"ai_confidence_level":    true,
	"investigation_strategy": true,
	"safety_overrides":       true,
	"dynamic_limits":         true,
	"performance_metrics":    true,
	"hybrid_system_version":  true,
}

// IsProtectedField reports whether field may not be written by a
// partial update
func IsProtectedField(field string) bool {
	return protectedFields[field]
}

// Update is a partial state update produced by a node. Only the fields a
// node is allowed to touch are representable; keyed extras go through
// Extra and are validated against the protected set.
type Update struct {
	Phase            *Phase
	Messages         []Message
	DomainFindings   map[string]DomainFinding
	ToolResults      map[string]any
	SnowflakeData    map[string]any
	SnowflakeDone    *bool
	RiskScore        *float64
	ClearRiskScore   bool
	ConfidenceScore  *float64
	EvidenceStrength *float64
	RiskFactors      []string
	RiskIndicators   []string
	TxScores         map[string]float64
	Factors          map[string]float64
	ToolsUsed        []string
	Domains          []string
	Errors           []ErrorRecord

	// Extra carries free-form keyed writes from external callers
	// (start_investigation merges). Protected keys are rejected.
	Extra map[string]any
}

// Apply merges an update into the state. Writes to protected fields via
// Extra are dropped, logged, and returned as StateMergeErrors; the rest
// of the update still lands.
func (s *InvestigationState) Apply(node string, u Update) []error {
	var rejected []error

	if u.Phase != nil {
		s.CurrentPhase = *u.Phase
	}
	if len(u.Messages) > 0 {
		s.Messages = append(s.Messages, u.Messages...)
	}
	for domain, finding := range u.DomainFindings {
		s.DomainFindings[domain] = finding
		s.AddDomainCompleted(domain)
	}
	for k, v := range u.ToolResults {
		s.ToolResults[k] = v
	}
	if u.SnowflakeData != nil {
		s.SnowflakeData = u.SnowflakeData
	}
	if u.SnowflakeDone != nil {
		s.SnowflakeCompleted = *u.SnowflakeDone
	}
	if u.ClearRiskScore {
		s.RiskScore = nil
	} else if u.RiskScore != nil {
		s.RiskScore = u.RiskScore
	}
	if u.ConfidenceScore != nil {
		s.ConfidenceScore = *u.ConfidenceScore
	}
	if u.EvidenceStrength != nil {
		s.EvidenceStrength = *u.EvidenceStrength
	}
	if len(u.RiskFactors) > 0 {
		s.RiskFactors = append(s.RiskFactors, u.RiskFactors...)
	}
	if len(u.RiskIndicators) > 0 {
		s.RiskIndicators = append(s.RiskIndicators, u.RiskIndicators...)
	}
	for k, v := range u.TxScores {
		s.TransactionScores[k] = v
	}
	for k, v := range u.Factors {
		s.ConfidenceFactors[k] = v
	}
	for _, tool := range u.ToolsUsed {
		s.AddToolUsed(tool)
	}
	for _, domain := range u.Domains {
		s.AddDomainCompleted(domain)
	}
	if len(u.Errors) > 0 {
		s.Errors = append(s.Errors, u.Errors...)
	}

	for key, value := range u.Extra {
		if IsProtectedField(key) {
			err := errors.StateMergeError(key).WithContext("node", node)
			logging.Warn("rejected protected field write",
				"node", node, "field", key)
			s.AppendAudit(AuditEntry{
				Timestamp: time.Now().UTC(),
				Actor:     node,
				Action:    "protected_field_write_rejected",
				Detail:    key,
			})
			rejected = append(rejected, err)
			continue
		}
		s.applyExtra(key, value)
	}

	return rejected
}

// applyExtra routes free-form keyed writes to their typed fields.
// Unknown keys land in ToolResults so external context is never lost.
func (s *InvestigationState) applyExtra(key string, value any) {
	switch key {
	case "custom_user_prompt":
		if v, ok := value.(string); ok {
			s.CustomUserPrompt = v
		}
	case "max_tools":
		if v, ok := toInt(value); ok {
			s.MaxTools = v
		}
	case "date_range_days":
		if v, ok := toInt(value); ok {
			s.DateRangeDays = v
		}
	case "parallel_execution":
		if v, ok := value.(bool); ok {
			s.ParallelExecution = v
		}
	default:
		s.ToolResults[key] = value
	}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

// UpdateAIConfidence records a new assessor decision: updates the score
// and level, appends to the evolution series and the decision log, and
// audits the change. Strategy changes only land through SetStrategy.
func (s *InvestigationState) UpdateAIConfidence(d AIDecision, trigger string) {
	if d.Timestamp.IsZero() {
		d.Timestamp = time.Now().UTC()
	}

	delta := d.Confidence - s.AIConfidence
	s.AIConfidence = d.Confidence
	s.AIConfidenceLevel = d.ConfidenceLevel
	s.AIDecisions = append(s.AIDecisions, d)
	s.ConfidenceEvolution = append(s.ConfidenceEvolution, ConfidencePoint{
		Loop:       s.OrchestratorLoops,
		Confidence: d.Confidence,
		Delta:      delta,
		Trigger:    trigger,
		Timestamp:  d.Timestamp,
	})

	s.AppendAudit(AuditEntry{
		Timestamp: d.Timestamp,
		Actor:     "confidence_engine",
		Action:    "confidence_updated",
		Detail:    trigger,
		Metadata: map[string]any{
			"confidence": d.Confidence,
			"level":      string(d.ConfidenceLevel),
			"delta":      delta,
			"action":     d.RecommendedAction,
		},
	})
}

// SetStrategy changes the investigation strategy and audits the change
func (s *InvestigationState) SetStrategy(strategy Strategy, reason string) {
	if s.InvestigationStrategy == strategy {
		return
	}
	prev := s.InvestigationStrategy
	s.InvestigationStrategy = strategy
	s.AppendAudit(AuditEntry{
		Timestamp: time.Now().UTC(),
		Actor:     "confidence_engine",
		Action:    "strategy_changed",
		Detail:    reason,
		Metadata: map[string]any{
			"from": string(prev),
			"to":   string(strategy),
		},
	})
}

// SetDynamicLimits replaces the effective limits and audits the change
func (s *InvestigationState) SetDynamicLimits(limits config.Limits, reason string) {
	s.DynamicLimits = limits
	s.AppendAudit(AuditEntry{
		Timestamp: time.Now().UTC(),
		Actor:     "safety_manager",
		Action:    "limits_recomputed",
		Detail:    reason,
		Metadata: map[string]any{
			"max_orchestrator_loops": limits.MaxOrchestratorLoops,
			"max_tool_executions":    limits.MaxToolExecutions,
			"max_domain_attempts":    limits.MaxDomainAttempts,
			"max_time_minutes":       limits.MaxInvestigationTimeMinutes,
		},
	})
}

// AddSafetyOverride records a safety override and audits it
func (s *InvestigationState) AddSafetyOverride(o SafetyOverride) {
	if o.Timestamp.IsZero() {
		o.Timestamp = time.Now().UTC()
	}
	s.SafetyOverrides = append(s.SafetyOverrides, o)
	s.AppendAudit(AuditEntry{
		Timestamp: o.Timestamp,
		Actor:     "safety_manager",
		Action:    "safety_override",
		Detail:    o.Reasoning,
		Metadata: map[string]any{
			"original_decision": o.OriginalAIDecision,
			"safety_decision":   o.SafetyDecision,
			"concern_type":      string(o.ConcernType),
		},
	})
}

// AddSafetyConcern records a concern raised by the safety manager
func (s *InvestigationState) AddSafetyConcern(c SafetyConcern) {
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now().UTC()
	}
	s.SafetyConcerns = append(s.SafetyConcerns, c)
}

// AppendAudit appends to the decision audit trail. The trail is
// append-only; there is no removal path.
func (s *InvestigationState) AppendAudit(entry AuditEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	s.DecisionAuditTrail = append(s.DecisionAuditTrail, entry)
}

// RecordRouting appends a routing decision and its explanation
func (s *InvestigationState) RecordRouting(r RoutingRecord) {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	s.RoutingDecisions = append(s.RoutingDecisions, r)
	s.RoutingExplanations = append(s.RoutingExplanations, r.Reasoning)
	s.AppendAudit(AuditEntry{
		Timestamp: r.Timestamp,
		Actor:     "router",
		Action:    "route",
		Detail:    r.NextNode,
		Metadata: map[string]any{
			"loop":            r.Loop,
			"safety_override": r.SafetyOverride,
			"reasoning":       r.Reasoning,
		},
	})
}

// RecordError appends an error record and audits it
func (s *InvestigationState) RecordError(node, kind, message string) {
	s.Errors = append(s.Errors, ErrorRecord{
		Timestamp: time.Now().UTC(),
		Node:      node,
		Kind:      kind,
		Message:   message,
	})
}

// SetPerformanceMetric records a named performance metric
func (s *InvestigationState) SetPerformanceMetric(name string, value float64) {
	if s.PerformanceMetrics == nil {
		s.PerformanceMetrics = map[string]float64{}
	}
	s.PerformanceMetrics[name] = value
}

// UpdateToolEfficiency recomputes tool_execution_efficiency as the
// results captured per distinct tool used
func (s *InvestigationState) UpdateToolEfficiency() {
	used := len(s.ToolsUsed)
	if used < 1 {
		used = 1
	}
	s.ToolExecutionEfficiency = float64(len(s.ToolResults)) / float64(used)
	s.SetPerformanceMetric("tool_execution_efficiency", s.ToolExecutionEfficiency)
}
