package state

import (
	"time"
)

// EntityType identifies what kind of entity is under investigation
type EntityType string

const (
	EntityIPAddress     EntityType = "ip_address"
	EntityUserID        EntityType = "user_id"
	EntityDeviceID      EntityType = "device_id"
	EntityTransactionID EntityType = "transaction_id"
)

// ValidEntityType reports whether t is a supported entity type
func ValidEntityType(t string) bool {
	switch EntityType(t) {
	case EntityIPAddress, EntityUserID, EntityDeviceID, EntityTransactionID:
		return true
	}
	return false
}

// Phase is the lifecycle phase of an investigation
type Phase string

const (
	PhaseInitialization  Phase = "initialization"
	PhaseRawData         Phase = "raw_data"
	PhaseInvestigation   Phase = "investigation"
	PhaseDomainAnalysis  Phase = "domain_analysis"
	PhaseSummary         Phase = "summary"
	PhaseComplete        Phase = "complete"
	PhaseError           Phase = "error"
)

// ConfidenceLevel is the coarse bucket over AI confidence in [0,1]
type ConfidenceLevel string

const (
	ConfidenceHigh    ConfidenceLevel = "HIGH"
	ConfidenceMedium  ConfidenceLevel = "MEDIUM"
	ConfidenceLow     ConfidenceLevel = "LOW"
	ConfidenceUnknown ConfidenceLevel = "UNKNOWN"
)

// LevelForConfidence maps a confidence score onto its bucket
func LevelForConfidence(confidence float64) ConfidenceLevel {
	switch {
	case confidence >= 0.8:
		return ConfidenceHigh
	case confidence >= 0.4:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Strategy is the execution shape chosen for the investigation
type Strategy string

const (
	StrategyComprehensive Strategy = "COMPREHENSIVE"
	StrategyFocused       Strategy = "FOCUSED"
	StrategyAdaptive      Strategy = "ADAPTIVE"
	StrategyCriticalPath  Strategy = "CRITICAL_PATH"
	StrategyMinimal       Strategy = "MINIMAL"
)

// MessageKind distinguishes conversation message roles beyond the basic role
type MessageKind string

const (
	KindSystem     MessageKind = "system"
	KindUser       MessageKind = "user"
	KindAssistant  MessageKind = "assistant"
	KindToolUse    MessageKind = "tool_use"
	KindToolResult MessageKind = "tool_result"
)

// Message is one entry of the investigation conversation.
// Invariant: every tool_use is immediately followed by its matching
// tool_result entries before any assistant message of a different kind.
type Message struct {
	Role      string      `json:"role"`
	Content   string      `json:"content"`
	Kind      MessageKind `json:"kind"`
	ToolUseID string      `json:"tool_use_id,omitempty"`
}

// FindingStatus is the terminal status of a single domain analysis
type FindingStatus string

const (
	FindingOK                   FindingStatus = "OK"
	FindingInsufficientEvidence FindingStatus = "INSUFFICIENT_EVIDENCE"
	FindingError                FindingStatus = "ERROR"
)

// DomainFinding is the per-domain result of an agent invocation
type DomainFinding struct {
	Domain     string        `json:"domain"`
	RiskScore  *float64      `json:"risk_score"` // nil when the agent could not score
	Confidence float64       `json:"confidence"`
	Evidence   []string      `json:"evidence"`
	Indicators []string      `json:"indicators,omitempty"`
	Summary    string        `json:"summary"`
	Status     FindingStatus `json:"status"`
	DurationMS int64         `json:"duration_ms,omitempty"`
}

// ResourceImpact is the assessor's estimate of how expensive the
// recommended action will be
type ResourceImpact string

const (
	ImpactLow    ResourceImpact = "low"
	ImpactMedium ResourceImpact = "medium"
	ImpactHigh   ResourceImpact = "high"
)

// AIDecision is the assessor's structured output at a confidence checkpoint
type AIDecision struct {
	Confidence                float64         `json:"confidence"`
	ConfidenceLevel           ConfidenceLevel `json:"confidence_level"`
	RecommendedAction         string          `json:"recommended_action"`
	Reasoning                 []string        `json:"reasoning"`
	EvidenceQuality           float64         `json:"evidence_quality"`
	InvestigationCompleteness float64         `json:"investigation_completeness"`
	Strategy                  Strategy        `json:"strategy"`
	AgentsToActivate          []string        `json:"agents_to_activate,omitempty"`
	ToolsRecommended          []string        `json:"tools_recommended,omitempty"`
	RequiredSafetyChecks      []string        `json:"required_safety_checks,omitempty"`
	ResourceImpact            ResourceImpact  `json:"resource_impact"`
	EstimatedCompletionTime   string          `json:"estimated_completion_time,omitempty"`
	Timestamp                 time.Time       `json:"timestamp"`
}

// ConcernType categorizes safety concerns and overrides
type ConcernType string

const (
	ConcernLoopRisk             ConcernType = "LOOP_RISK"
	ConcernResourcePressure     ConcernType = "RESOURCE_PRESSURE"
	ConcernConfidenceDrop       ConcernType = "CONFIDENCE_DROP"
	ConcernEvidenceInsufficient ConcernType = "EVIDENCE_INSUFFICIENT"
	ConcernTimeoutRisk          ConcernType = "TIMEOUT_RISK"
)

// ConcernSeverity grades a safety concern
type ConcernSeverity string

const (
	SeverityLow      ConcernSeverity = "low"
	SeverityMedium   ConcernSeverity = "medium"
	SeverityHigh     ConcernSeverity = "high"
	SeverityCritical ConcernSeverity = "critical"
)

// SafetyConcern is one concern raised by the safety manager
type SafetyConcern struct {
	Type        ConcernType     `json:"type"`
	Severity    ConcernSeverity `json:"severity"`
	Description string          `json:"description"`
	Timestamp   time.Time       `json:"timestamp"`
}

// IsCritical reports whether the concern forces termination
func (c SafetyConcern) IsCritical() bool {
	return c.Severity == SeverityCritical
}

// SafetyOverride records a deviation from the AI recommendation
// imposed by the safety manager
type SafetyOverride struct {
	Timestamp          time.Time          `json:"timestamp"`
	OriginalAIDecision string             `json:"original_ai_decision"`
	SafetyDecision     string             `json:"safety_decision"`
	ConcernType        ConcernType        `json:"concern_type"`
	Reasoning          string             `json:"reasoning"`
	MetricsAtOverride  map[string]float64 `json:"metrics_at_override,omitempty"`
}

// ConfidencePoint is one sample of the confidence evolution
type ConfidencePoint struct {
	Loop       int       `json:"loop"`
	Confidence float64   `json:"confidence"`
	Delta      float64   `json:"delta"`
	Trigger    string    `json:"trigger"`
	Timestamp  time.Time `json:"timestamp"`
}

// AuditEntry is one entry of the decision audit trail. Append-only.
type AuditEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Actor     string         `json:"actor"` // "confidence_engine", "safety_manager", "router", "executor", node name
	Action    string         `json:"action"`
	Detail    string         `json:"detail,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ErrorRecord is one captured node or collaborator failure
type ErrorRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Node      string    `json:"node"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
}

// RoutingRecord captures one routing decision for the audit surfaces
type RoutingRecord struct {
	Loop           int       `json:"loop"`
	NextNode       string    `json:"next_node"`
	Reasoning      string    `json:"reasoning"`
	SafetyOverride bool      `json:"safety_override"`
	OverrideReason string    `json:"override_reason,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// DomainOrder is the fixed sequential order domains are visited in
// when the router falls back to safety-first execution
var DomainOrder = []string{"network", "device", "location", "logs", "authentication", "risk"}
