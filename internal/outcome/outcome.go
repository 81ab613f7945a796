package outcome

import (
	"fmt"
	"strings"
	"time"

	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/risk"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/state"
)

// Status of a finished investigation
type Status string

const (
	StatusCompleted             Status = "COMPLETED"
	StatusCompletedWithWarnings Status = "COMPLETED_WITH_WARNINGS"
	StatusFailed                Status = "FAILED"
	StatusTerminatedBySafety    Status = "TERMINATED_BY_SAFETY"
	StatusTimeout               Status = "TIMEOUT"
)

// CanonicalFinalOutcome is the stable record every finished investigation
// produces, regardless of how it ended
type CanonicalFinalOutcome struct {
	InvestigationID     string    `json:"investigation_id"`
	EntityID            string    `json:"entity_id"`
	EntityType          string    `json:"entity_type"`
	CompletionTimestamp time.Time `json:"completion_timestamp"`

	Status           Status `json:"status"`
	Success          bool   `json:"success"`
	CompletionReason string `json:"completion_reason"`

	RiskAssessment     RiskAssessment     `json:"risk_assessment"`
	EvidenceAssessment EvidenceAssessment `json:"evidence_assessment"`
	PerformanceMetrics PerformanceMetrics `json:"performance_metrics"`
	AIIntelligence     AIIntelligence     `json:"ai_intelligence"`
	QualityAssurance   QualityAssurance   `json:"quality_assurance"`

	SummaryText     string   `json:"summary_text"`
	KeyFindings     []string `json:"key_findings"`
	Recommendations []string `json:"recommendations"`
}

type RiskAssessment struct {
	FinalRiskScore            *float64 `json:"final_risk_score"` // nil when evidence-gated
	FraudLikelihood           string   `json:"fraud_likelihood"`
	RiskFactors               []string `json:"risk_factors"`
	RiskIndicators            []string `json:"risk_indicators"`
	ConfidenceScore           float64  `json:"confidence_score"`
	MitigationRecommendations []string `json:"mitigation_recommendations"`
}

type EvidenceAssessment struct {
	OverallQuality   float64            `json:"overall_quality"`
	QualityLevel     string             `json:"quality_level"`
	SourceQualities  map[string]float64 `json:"source_qualities"`
	Sources          []string           `json:"sources"`
	QualityFactors   map[string]float64 `json:"quality_factors"`
	ValidationPassed bool               `json:"validation_passed"`
	ValidationReason string             `json:"validation_reason"`
}

type PerformanceMetrics struct {
	TotalDurationMS     int64   `json:"total_duration_ms"`
	OrchestratorLoops   int     `json:"orchestrator_loops"`
	DomainsCompleted    int     `json:"domains_completed"`
	ToolsExecuted       int     `json:"tools_executed"`
	Efficiency          float64 `json:"efficiency"`
	ResourceUtilization string  `json:"resource_utilization"`
	OptimizationApplied string  `json:"optimization_applied"`
}

type AIIntelligence struct {
	FinalConfidence     float64                 `json:"final_confidence"`
	ConfidenceLevel     string                  `json:"confidence_level"`
	AIDecisionsCount    int                     `json:"ai_decisions_count"`
	StrategyUsed        string                  `json:"strategy_used"`
	SafetyOverrides     []state.SafetyOverride  `json:"safety_overrides"`
	ConfidenceEvolution []state.ConfidencePoint `json:"confidence_evolution"`
}

type QualityAssurance struct {
	ValidationChecksPassed int                `json:"validation_checks_passed"`
	ValidationChecksFailed int                `json:"validation_checks_failed"`
	SafetyConcernsRaised   int                `json:"safety_concerns_raised"`
	DataQualityScore       float64            `json:"data_quality_score"`
	ComplianceStatus       string             `json:"compliance_status"`
	AuditTrail             []state.AuditEntry `json:"audit_trail"`
}

// Build assembles the canonical outcome from a finished state
func Build(s *state.InvestigationState) *CanonicalFinalOutcome {
	status := DeriveStatus(s)
	outcome := &CanonicalFinalOutcome{
		InvestigationID:     s.InvestigationID,
		EntityID:            s.EntityID,
		EntityType:          string(s.EntityType),
		CompletionTimestamp: completionTime(s),
		Status:              status,
		Success:             status == StatusCompleted || status == StatusCompletedWithWarnings,
		CompletionReason:    completionReason(s, status),
		RiskAssessment:      buildRiskAssessment(s),
		EvidenceAssessment:  buildEvidenceAssessment(s),
		PerformanceMetrics:  buildPerformanceMetrics(s),
		AIIntelligence:      buildAIIntelligence(s),
		QualityAssurance:    buildQualityAssurance(s),
	}

	outcome.KeyFindings = keyFindings(s)
	outcome.Recommendations = recommendations(s, outcome)
	outcome.SummaryText = summaryText(s, outcome)
	return outcome
}

// DeriveStatus maps terminal state onto the status enum. Timeouts and
// safety terminations dominate, then errors, then warnings.
func DeriveStatus(s *state.InvestigationState) Status {
	if hasTimeout(s) {
		return StatusTimeout
	}
	if terminatedBySafety(s) {
		return StatusTerminatedBySafety
	}
	if hasFatalErrors(s) {
		return StatusFailed
	}
	if len(s.SafetyOverrides) > 0 || s.CurrentPhase == state.PhaseSummary || evidenceGated(s) {
		return StatusCompletedWithWarnings
	}
	return StatusCompleted
}

func hasTimeout(s *state.InvestigationState) bool {
	if s.DynamicLimits.MaxInvestigationTimeMinutes > 0 &&
		s.Elapsed().Minutes() >= s.DynamicLimits.MaxInvestigationTimeMinutes {
		return true
	}
	for _, e := range s.Errors {
		if e.Kind == "timeout" {
			return true
		}
	}
	return false
}

// evidenceGated reports a run whose risk score was withheld by the
// evidence floor
func evidenceGated(s *state.InvestigationState) bool {
	if s.RiskScore != nil {
		return false
	}
	for _, c := range s.SafetyConcerns {
		if c.Type == state.ConcernEvidenceInsufficient {
			return true
		}
	}
	return false
}

func terminatedBySafety(s *state.InvestigationState) bool {
	for _, c := range s.SafetyConcerns {
		if c.IsCritical() {
			return true
		}
	}
	return false
}

func hasFatalErrors(s *state.InvestigationState) bool {
	for _, e := range s.Errors {
		if e.Kind == "provider_error" || e.Kind == "fatal" {
			return true
		}
	}
	return false
}

func completionTime(s *state.InvestigationState) time.Time {
	if s.EndTime != nil {
		return *s.EndTime
	}
	return time.Now().UTC()
}

func completionReason(s *state.InvestigationState, status Status) string {
	switch status {
	case StatusTimeout:
		return "investigation time limit reached"
	case StatusTerminatedBySafety:
		for _, c := range s.SafetyConcerns {
			if c.IsCritical() {
				return "terminated by safety: " + c.Description
			}
		}
		return "terminated by safety"
	case StatusFailed:
		if len(s.Errors) > 0 {
			last := s.Errors[len(s.Errors)-1]
			return fmt.Sprintf("failed at %s: %s", last.Node, last.Message)
		}
		return "investigation failed"
	case StatusCompletedWithWarnings:
		return fmt.Sprintf("completed with %d safety override(s)", len(s.SafetyOverrides))
	default:
		return "investigation completed"
	}
}

func buildRiskAssessment(s *state.InvestigationState) RiskAssessment {
	ra := RiskAssessment{
		FinalRiskScore:  s.RiskScore,
		RiskFactors:     s.RiskFactors,
		RiskIndicators:  s.RiskIndicators,
		ConfidenceScore: s.ConfidenceScore,
	}
	if s.RiskScore != nil {
		ra.FraudLikelihood = risk.FraudLikelihood(*s.RiskScore)
		ra.MitigationRecommendations = mitigations(*s.RiskScore)
	} else {
		ra.FraudLikelihood = "UNDETERMINED"
		ra.MitigationRecommendations = []string{"gather additional evidence before acting"}
	}
	return ra
}

func mitigations(score float64) []string {
	switch {
	case score >= 0.7:
		return []string{"escalate to manual review", "apply transaction holds", "require step-up authentication"}
	case score >= 0.5:
		return []string{"monitor closely", "require step-up authentication on high-value actions"}
	case score >= 0.3:
		return []string{"continue passive monitoring"}
	default:
		return []string{"no action required"}
	}
}

func buildEvidenceAssessment(s *state.InvestigationState) EvidenceAssessment {
	sources := make([]string, 0, len(s.DomainFindings)+1)
	qualities := map[string]float64{}
	if s.SnowflakeCompleted {
		sources = append(sources, "snowflake")
		qualities["snowflake"] = s.SnowflakeQuality
	}
	for domain, f := range s.DomainFindings {
		sources = append(sources, domain)
		qualities[domain] = f.Confidence
	}

	gated := s.RiskScore == nil && s.EvidenceStrength < 0.2
	ea := EvidenceAssessment{
		OverallQuality:   s.EvidenceStrength,
		QualityLevel:     qualityLevel(s.EvidenceStrength),
		SourceQualities:  qualities,
		Sources:          sources,
		QualityFactors:   s.ConfidenceFactors,
		ValidationPassed: !gated,
	}
	if gated {
		ea.ValidationReason = "evidence strength below the minimum floor; risk scoring blocked"
	} else {
		ea.ValidationReason = "evidence cleared the minimum floor"
	}
	return ea
}

func qualityLevel(strength float64) string {
	switch {
	case strength >= 0.8:
		return "excellent"
	case strength >= 0.6:
		return "good"
	case strength >= 0.4:
		return "fair"
	case strength >= 0.2:
		return "poor"
	default:
		return "insufficient"
	}
}

func buildPerformanceMetrics(s *state.InvestigationState) PerformanceMetrics {
	duration := s.TotalDurationMS
	if duration == 0 {
		duration = s.Elapsed().Milliseconds()
	}
	return PerformanceMetrics{
		TotalDurationMS:     duration,
		OrchestratorLoops:   s.OrchestratorLoops,
		DomainsCompleted:    len(s.DomainsCompleted),
		ToolsExecuted:       len(s.ToolsUsed),
		Efficiency:          s.ToolExecutionEfficiency,
		ResourceUtilization: resourceUtilization(s),
		OptimizationApplied: string(s.InvestigationStrategy),
	}
}

func resourceUtilization(s *state.InvestigationState) string {
	switch {
	case len(s.SafetyOverrides) > 0:
		return "Required Intervention"
	case s.OrchestratorLoops <= s.DynamicLimits.MaxOrchestratorLoops/2:
		return "Efficient"
	default:
		return "Good"
	}
}

func buildAIIntelligence(s *state.InvestigationState) AIIntelligence {
	return AIIntelligence{
		FinalConfidence:     s.AIConfidence,
		ConfidenceLevel:     string(s.AIConfidenceLevel),
		AIDecisionsCount:    len(s.AIDecisions),
		StrategyUsed:        string(s.InvestigationStrategy),
		SafetyOverrides:     s.SafetyOverrides,
		ConfidenceEvolution: s.ConfidenceEvolution,
	}
}

func buildQualityAssurance(s *state.InvestigationState) QualityAssurance {
	passed := 0
	failed := 0
	for _, f := range s.DomainFindings {
		if f.Status == state.FindingOK {
			passed++
		} else {
			failed++
		}
	}
	compliance := "compliant"
	if len(s.Errors) > 0 {
		compliance = "review_required"
	}
	return QualityAssurance{
		ValidationChecksPassed: passed,
		ValidationChecksFailed: failed,
		SafetyConcernsRaised:   len(s.SafetyConcerns),
		DataQualityScore:       s.EvidenceStrength,
		ComplianceStatus:       compliance,
		AuditTrail:             s.DecisionAuditTrail,
	}
}

func keyFindings(s *state.InvestigationState) []string {
	var findings []string
	for _, domain := range state.DomainOrder {
		f, ok := s.DomainFindings[domain]
		if !ok || f.Status != state.FindingOK {
			continue
		}
		if f.Summary != "" {
			findings = append(findings, fmt.Sprintf("%s: %s", domain, f.Summary))
			continue
		}
		if len(f.Evidence) > 0 {
			findings = append(findings, fmt.Sprintf("%s: %s", domain, f.Evidence[0]))
		}
	}
	return findings
}

func recommendations(s *state.InvestigationState, o *CanonicalFinalOutcome) []string {
	recs := append([]string{}, o.RiskAssessment.MitigationRecommendations...)
	if len(s.SafetyOverrides) > 0 {
		recs = append(recs, "review safety overrides recorded during this investigation")
	}
	return recs
}

func summaryText(s *state.InvestigationState, o *CanonicalFinalOutcome) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Investigation %s of %s %s finished with status %s. ",
		s.InvestigationID, s.EntityType, s.EntityID, o.Status)
	if s.RiskScore != nil {
		fmt.Fprintf(&sb, "Final risk score %.2f (%s) at confidence %.2f. ",
			*s.RiskScore, o.RiskAssessment.FraudLikelihood, s.ConfidenceScore)
	} else {
		sb.WriteString("Risk score N/A (blocked by evidence gating). ")
	}
	fmt.Fprintf(&sb, "%d domains analyzed across %d orchestrator loops using the %s strategy.",
		len(s.DomainsCompleted), s.OrchestratorLoops, s.InvestigationStrategy)
	return sb.String()
}
