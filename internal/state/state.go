package state

import (
	"time"

	"github.com/google/uuid"

	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/config"
)

// InvestigationState is the single in-memory record for one investigation.
// The executor exclusively owns it between node invocations; nodes receive
// a snapshot and return a partial update (see update.go).
type InvestigationState struct {
	// Identity
	InvestigationID string     `json:"investigation_id"`
	EntityID        string     `json:"entity_id"`
	EntityType      EntityType `json:"entity_type"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	TotalDurationMS int64      `json:"total_duration_ms"`

	// Progress
	CurrentPhase          Phase    `json:"current_phase"`
	OrchestratorLoops     int      `json:"orchestrator_loops"`
	DomainsCompleted      []string `json:"domains_completed"`
	ToolsUsed             []string `json:"tools_used"`
	ToolExecutionAttempts int      `json:"tool_execution_attempts"`
	SnowflakeCompleted    bool     `json:"snowflake_completed"`

	// Messages
	Messages []Message `json:"messages"`

	// Evidence
	DomainFindings    map[string]DomainFinding `json:"domain_findings"`
	ToolResults       map[string]any           `json:"tool_results"`
	SnowflakeData     map[string]any           `json:"snowflake_data,omitempty"`
	SnowflakeQuality  float64                  `json:"snowflake_quality"`
	ToolsQuality      float64                  `json:"tools_quality"`
	DomainsQuality    float64                  `json:"domains_quality"`
	ConfidenceFactors map[string]float64       `json:"confidence_factors"`

	// Risk
	RiskScore         *float64           `json:"risk_score"` // nil means evidence-gated
	ConfidenceScore   float64            `json:"confidence_score"`
	EvidenceStrength  float64            `json:"evidence_strength"`
	RiskFactors       []string           `json:"risk_factors"`
	RiskIndicators    []string           `json:"risk_indicators"`
	TransactionScores map[string]float64 `json:"transaction_scores,omitempty"`

	// AI tracking
	AIConfidence          float64           `json:"ai_confidence"`
	AIConfidenceLevel     ConfidenceLevel   `json:"ai_confidence_level"`
	AIDecisions           []AIDecision      `json:"ai_decisions"`
	ConfidenceEvolution   []ConfidencePoint `json:"confidence_evolution"`
	InvestigationStrategy Strategy          `json:"investigation_strategy"`
	PlannedAgentSequence  []string          `json:"planned_agent_sequence,omitempty"`

	// Safety
	DynamicLimits     config.Limits    `json:"dynamic_limits"`
	SafetyOverrides   []SafetyOverride `json:"safety_overrides"`
	SafetyConcerns    []SafetyConcern  `json:"safety_concerns"`
	AIOverrideReasons []string         `json:"ai_override_reasons"`

	// Audit (all append-only)
	DecisionAuditTrail  []AuditEntry    `json:"decision_audit_trail"`
	RoutingDecisions    []RoutingRecord `json:"routing_decisions"`
	RoutingExplanations []string        `json:"routing_explanations"`
	Errors              []ErrorRecord   `json:"errors"`

	// Config
	MaxTools          int    `json:"max_tools"`
	ToolCount         int    `json:"tool_count"`
	DateRangeDays     int    `json:"date_range_days"`
	ParallelExecution bool   `json:"parallel_execution"`
	CustomUserPrompt  string `json:"custom_user_prompt,omitempty"`

	// Derived / bookkeeping
	ToolExecutionEfficiency float64            `json:"tool_execution_efficiency"`
	PerformanceMetrics      map[string]float64 `json:"performance_metrics"`
	HybridSystemVersion     string             `json:"hybrid_system_version"`
	Mode                    config.RunMode     `json:"mode"`
}

// HybridSystemVersion tag stamped into every new state
const currentHybridVersion = "hybrid-v1"

// CreateConfig carries the inputs needed to seed a new investigation
type CreateConfig struct {
	InvestigationID  string
	EntityID         string
	EntityType       EntityType
	Mode             config.RunMode
	MaxTools         int
	DateRangeDays    int
	Parallel         bool
	CustomUserPrompt string
}

// NewInvestigation initializes a state record: ADAPTIVE strategy, neutral
// confidence, a seeding AIDecision recommending snowflake analysis, limits
// from the mode table, and one audit entry.
func NewInvestigation(cc CreateConfig) *InvestigationState {
	now := time.Now().UTC()
	id := cc.InvestigationID
	if id == "" {
		id = uuid.NewString()
	}

	seed := AIDecision{
		Confidence:        0.5,
		ConfidenceLevel:   ConfidenceUnknown,
		RecommendedAction: "snowflake_analysis",
		Reasoning:         []string{"initial seeding decision"},
		Strategy:          StrategyAdaptive,
		ResourceImpact:    ImpactLow,
		Timestamp:         now,
	}

	st := &InvestigationState{
		InvestigationID:       id,
		EntityID:              cc.EntityID,
		EntityType:            cc.EntityType,
		StartTime:             now,
		CurrentPhase:          PhaseInitialization,
		DomainsCompleted:      []string{},
		ToolsUsed:             []string{},
		Messages:              []Message{},
		DomainFindings:        map[string]DomainFinding{},
		ToolResults:           map[string]any{},
		ConfidenceFactors:     zeroConfidenceFactors(),
		RiskFactors:           []string{},
		RiskIndicators:        []string{},
		TransactionScores:     map[string]float64{},
		AIConfidence:          0.5,
		AIConfidenceLevel:     ConfidenceUnknown,
		AIDecisions:           []AIDecision{seed},
		ConfidenceEvolution:   []ConfidencePoint{},
		InvestigationStrategy: StrategyAdaptive,
		DynamicLimits:         config.BaseLimits(cc.Mode),
		SafetyOverrides:       []SafetyOverride{},
		SafetyConcerns:        []SafetyConcern{},
		AIOverrideReasons:     []string{},
		DecisionAuditTrail:    []AuditEntry{},
		RoutingDecisions:      []RoutingRecord{},
		RoutingExplanations:   []string{},
		Errors:                []ErrorRecord{},
		MaxTools:              cc.MaxTools,
		DateRangeDays:         cc.DateRangeDays,
		ParallelExecution:     cc.Parallel,
		CustomUserPrompt:      cc.CustomUserPrompt,
		PerformanceMetrics:    map[string]float64{},
		HybridSystemVersion:   currentHybridVersion,
		Mode:                  cc.Mode,
	}

	st.AppendAudit(AuditEntry{
		Timestamp: now,
		Actor:     "executor",
		Action:    "investigation_created",
		Detail:    string(cc.EntityType) + ":" + cc.EntityID,
	})

	return st
}

// zeroConfidenceFactors pre-initializes every factor to zero so reads
// before the first write observe 0 rather than a missing key.
func zeroConfidenceFactors() map[string]float64 {
	factors := map[string]float64{
		"data_completeness":   0,
		"pattern_recognition": 0,
	}
	for _, domain := range DomainOrder {
		factors[domain+"_analysis"] = 0
	}
	return factors
}

// Elapsed returns wall time since the investigation started
func (s *InvestigationState) Elapsed() time.Duration {
	if s.EndTime != nil {
		return s.EndTime.Sub(s.StartTime)
	}
	return time.Since(s.StartTime)
}

// HasDomain reports whether the domain has completed
func (s *InvestigationState) HasDomain(domain string) bool {
	for _, d := range s.DomainsCompleted {
		if d == domain {
			return true
		}
	}
	return false
}

// AddDomainCompleted adds a domain to the completed set (idempotent)
func (s *InvestigationState) AddDomainCompleted(domain string) {
	if !s.HasDomain(domain) {
		s.DomainsCompleted = append(s.DomainsCompleted, domain)
	}
}

// HasTool reports whether the tool has been used
func (s *InvestigationState) HasTool(tool string) bool {
	for _, t := range s.ToolsUsed {
		if t == tool {
			return true
		}
	}
	return false
}

// AddToolUsed adds a tool to the used set (idempotent)
func (s *InvestigationState) AddToolUsed(tool string) {
	if !s.HasTool(tool) {
		s.ToolsUsed = append(s.ToolsUsed, tool)
	}
}

// NextUncompletedDomain returns the first domain in the fixed order that
// has not completed yet, or "" when all are done
func (s *InvestigationState) NextUncompletedDomain() string {
	for _, domain := range DomainOrder {
		if !s.HasDomain(domain) {
			return domain
		}
	}
	return ""
}

// OKFindings returns the findings whose status is OK
func (s *InvestigationState) OKFindings() []DomainFinding {
	var ok []DomainFinding
	for _, f := range s.DomainFindings {
		if f.Status == FindingOK {
			ok = append(ok, f)
		}
	}
	return ok
}

// LastDecision returns the most recent AI decision, or nil when none exist
func (s *InvestigationState) LastDecision() *AIDecision {
	if len(s.AIDecisions) == 0 {
		return nil
	}
	return &s.AIDecisions[len(s.AIDecisions)-1]
}

// MarkComplete stamps the terminal phase, end time, and duration
func (s *InvestigationState) MarkComplete() {
	now := time.Now().UTC()
	s.EndTime = &now
	s.TotalDurationMS = now.Sub(s.StartTime).Milliseconds()
	s.CurrentPhase = PhaseComplete
}

// MessageSequenceValid verifies the tool_use/tool_result invariant: every
// tool_use message is followed by its matching tool_result entries before
// any assistant message of a different kind appears.
func MessageSequenceValid(messages []Message) bool {
	pending := map[string]bool{}
	for _, msg := range messages {
		switch msg.Kind {
		case KindToolUse:
			pending[msg.ToolUseID] = true
		case KindToolResult:
			delete(pending, msg.ToolUseID)
		case KindAssistant, KindSystem, KindUser:
			if len(pending) > 0 {
				return false
			}
		}
	}
	return len(pending) == 0
}

// Clone produces a deep copy used as the node snapshot
func (s *InvestigationState) Clone() *InvestigationState {
	c := *s

	c.DomainsCompleted = append([]string(nil), s.DomainsCompleted...)
	c.ToolsUsed = append([]string(nil), s.ToolsUsed...)
	c.Messages = append([]Message(nil), s.Messages...)
	c.RiskFactors = append([]string(nil), s.RiskFactors...)
	c.RiskIndicators = append([]string(nil), s.RiskIndicators...)
	c.AIDecisions = append([]AIDecision(nil), s.AIDecisions...)
	c.ConfidenceEvolution = append([]ConfidencePoint(nil), s.ConfidenceEvolution...)
	c.PlannedAgentSequence = append([]string(nil), s.PlannedAgentSequence...)
	c.SafetyOverrides = append([]SafetyOverride(nil), s.SafetyOverrides...)
	c.SafetyConcerns = append([]SafetyConcern(nil), s.SafetyConcerns...)
	c.AIOverrideReasons = append([]string(nil), s.AIOverrideReasons...)
	c.DecisionAuditTrail = append([]AuditEntry(nil), s.DecisionAuditTrail...)
	c.RoutingDecisions = append([]RoutingRecord(nil), s.RoutingDecisions...)
	c.RoutingExplanations = append([]string(nil), s.RoutingExplanations...)
	c.Errors = append([]ErrorRecord(nil), s.Errors...)

	c.DomainFindings = make(map[string]DomainFinding, len(s.DomainFindings))
	for k, v := range s.DomainFindings {
		v.Evidence = append([]string(nil), v.Evidence...)
		c.DomainFindings[k] = v
	}
	c.ToolResults = copyAnyMap(s.ToolResults)
	c.SnowflakeData = copyAnyMap(s.SnowflakeData)
	c.ConfidenceFactors = copyFloatMap(s.ConfidenceFactors)
	c.TransactionScores = copyFloatMap(s.TransactionScores)
	c.PerformanceMetrics = copyFloatMap(s.PerformanceMetrics)

	if s.EndTime != nil {
		end := *s.EndTime
		c.EndTime = &end
	}
	if s.RiskScore != nil {
		score := *s.RiskScore
		c.RiskScore = &score
	}

	return &c
}

func copyAnyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	c := make(map[string]any, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

func copyFloatMap(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	c := make(map[string]float64, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
