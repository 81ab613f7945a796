package safety

import (
	"fmt"
	"time"

	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/config"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/logging"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/state"
)

// Level is the safety posture applied to an investigation
type Level string

const (
	LevelPermissive Level = "PERMISSIVE"
	LevelStandard   Level = "STANDARD"
	LevelStrict     Level = "STRICT"
	LevelEmergency  Level = "EMERGENCY"
)

// Pressure axis weights
const (
	pressureWeightTool   = 0.4
	pressureWeightLoop   = 0.3
	pressureWeightTime   = 0.2
	pressureWeightDomain = 0.1
)

// warmupLoops is how many orchestrator loops run before pressure applies
const warmupLoops = 3

// Status is the safety manager's verdict for one validation pass
type Status struct {
	AllowsAIControl               bool               `json:"allows_ai_control"`
	RequiresImmediateTermination  bool               `json:"requires_immediate_termination"`
	SafetyLevel                   Level              `json:"safety_level"`
	CurrentLimits                 config.Limits      `json:"current_limits"`
	ResourcePressure              float64            `json:"resource_pressure"`
	SafetyConcerns                []state.SafetyConcern `json:"safety_concerns"`
	OverrideReasoning             string             `json:"override_reasoning,omitempty"`
	EstimatedRemainingResources   map[string]float64 `json:"estimated_remaining_resources"`
	RecommendedActions            []string           `json:"recommended_actions"`
}

// Manager validates resource usage and derives the dynamic limits an
// investigation runs under
type Manager struct {
	mode config.RunMode
}

// NewManager creates a safety manager for the given run mode
func NewManager(mode config.RunMode) *Manager {
	return &Manager{mode: mode}
}

// Validate computes the full safety status for the current state.
// Concerns raised here are also recorded onto the state.
func (m *Manager) Validate(s *state.InvestigationState) Status {
	level := DeriveLevel(s)
	limits := m.DynamicLimits(level, s.InvestigationStrategy)
	pressure := m.ResourcePressure(s, limits)
	concerns := m.collectConcerns(s, limits, pressure)

	for _, c := range concerns {
		s.AddSafetyConcern(c)
	}

	status := Status{
		SafetyLevel:                 level,
		CurrentLimits:               limits,
		ResourcePressure:            pressure,
		SafetyConcerns:              concerns,
		EstimatedRemainingResources: remainingResources(s, limits),
	}

	status.RequiresImmediateTermination = m.requiresTermination(s, limits, concerns)
	status.AllowsAIControl = m.allowsAIControl(s, pressure, concerns) && !status.RequiresImmediateTermination

	if status.RequiresImmediateTermination {
		status.OverrideReasoning = terminationReason(s, limits, concerns)
		status.RecommendedActions = []string{"summary"}
	} else if !status.AllowsAIControl {
		status.OverrideReasoning = fmt.Sprintf(
			"ai control denied at pressure %.2f with confidence level %s", pressure, s.AIConfidenceLevel)
		status.RecommendedActions = []string{"sequential_execution"}
	}

	logging.Debug("safety validation",
		"investigation_id", s.InvestigationID,
		"level", string(level),
		"pressure", pressure,
		"ai_control", status.AllowsAIControl,
		"terminate", status.RequiresImmediateTermination,
		"concerns", len(concerns))

	return status
}

// DeriveLevel maps state onto a safety level. First match wins.
func DeriveLevel(s *state.InvestigationState) Level {
	switch {
	case s.OrchestratorLoops > 20 || len(s.SafetyOverrides) > 3:
		return LevelEmergency
	case s.AIConfidenceLevel == state.ConfidenceLow || len(s.SafetyOverrides) > 1:
		return LevelStrict
	case s.AIConfidenceLevel == state.ConfidenceHigh && len(s.SafetyOverrides) == 0:
		return LevelPermissive
	default:
		return LevelStandard
	}
}

// DynamicLimits scales the base limit table by safety level and strategy
func (m *Manager) DynamicLimits(level Level, strategy state.Strategy) config.Limits {
	limits := config.BaseLimits(m.mode)
	if mult, ok := config.LevelMultipliers[string(level)]; ok {
		limits = limits.Scale(mult)
	}
	if mult, ok := config.StrategyMultipliers[string(strategy)]; ok {
		limits = limits.Scale(mult)
	}
	return limits
}

// ProgressivePressure maps usage against a limit onto [0,1]. The curve is
// gentle below 70% of the limit and steep above it.
func ProgressivePressure(current, limit float64) float64 {
	if current <= 0 || limit <= 0 {
		return 0
	}
	ratio := current / limit
	var pressure float64
	if ratio <= 0.7 {
		pressure = ratio * 0.5
	} else {
		pressure = 0.35 + ((ratio-0.7)/0.3)*0.65
	}
	return clamp01(pressure)
}

// ResourcePressure is the weighted overall pressure. Zero during the
// warm-up loops so early routing is never pressure-constrained.
func (m *Manager) ResourcePressure(s *state.InvestigationState, limits config.Limits) float64 {
	if s.OrchestratorLoops < warmupLoops {
		return 0
	}

	tool := ProgressivePressure(float64(s.ToolExecutionAttempts), float64(limits.MaxToolExecutions))
	loop := ProgressivePressure(float64(s.OrchestratorLoops), float64(limits.MaxOrchestratorLoops))
	elapsed := s.Elapsed().Minutes()
	timePressure := ProgressivePressure(elapsed, limits.MaxInvestigationTimeMinutes)
	domain := ProgressivePressure(float64(len(s.DomainsCompleted)), float64(limits.MaxDomainAttempts))

	overall := pressureWeightTool*tool +
		pressureWeightLoop*loop +
		pressureWeightTime*timePressure +
		pressureWeightDomain*domain
	return clamp01(overall)
}

// collectConcerns raises the five concern kinds against current limits
func (m *Manager) collectConcerns(s *state.InvestigationState, limits config.Limits, pressure float64) []state.SafetyConcern {
	var concerns []state.SafetyConcern
	now := time.Now().UTC()

	loops := float64(s.OrchestratorLoops)
	loopLimit := float64(limits.MaxOrchestratorLoops)
	if loops >= loopLimit {
		concerns = append(concerns, state.SafetyConcern{
			Type:        state.ConcernLoopRisk,
			Severity:    state.SeverityCritical,
			Description: fmt.Sprintf("orchestrator loops %d reached limit %d", s.OrchestratorLoops, limits.MaxOrchestratorLoops),
			Timestamp:   now,
		})
	} else if loops >= 0.8*loopLimit {
		concerns = append(concerns, state.SafetyConcern{
			Type:        state.ConcernLoopRisk,
			Severity:    state.SeverityHigh,
			Description: fmt.Sprintf("orchestrator loops %d approaching limit %d", s.OrchestratorLoops, limits.MaxOrchestratorLoops),
			Timestamp:   now,
		})
	}

	if pressure >= 0.9 {
		concerns = append(concerns, state.SafetyConcern{
			Type:        state.ConcernResourcePressure,
			Severity:    state.SeverityCritical,
			Description: fmt.Sprintf("resource pressure %.2f", pressure),
			Timestamp:   now,
		})
	} else if pressure >= limits.ResourcePressureThreshold {
		concerns = append(concerns, state.SafetyConcern{
			Type:        state.ConcernResourcePressure,
			Severity:    state.SeverityHigh,
			Description: fmt.Sprintf("resource pressure %.2f above threshold %.2f", pressure, limits.ResourcePressureThreshold),
			Timestamp:   now,
		})
	}

	if n := len(s.ConfidenceEvolution); n >= 2 {
		drop := s.ConfidenceEvolution[n-2].Confidence - s.ConfidenceEvolution[n-1].Confidence
		if drop >= 0.3 {
			concerns = append(concerns, state.SafetyConcern{
				Type:        state.ConcernConfidenceDrop,
				Severity:    state.SeverityMedium,
				Description: fmt.Sprintf("confidence dropped %.2f between assessments", drop),
				Timestamp:   now,
			})
		}
	}

	if s.OrchestratorLoops >= warmupLoops+2 {
		if strength := interimEvidenceStrength(s); strength < 0.2 {
			concerns = append(concerns, state.SafetyConcern{
				Type:        state.ConcernEvidenceInsufficient,
				Severity:    state.SeverityMedium,
				Description: fmt.Sprintf("evidence strength %.2f below floor after %d loops", strength, s.OrchestratorLoops),
				Timestamp:   now,
			})
		}
	}

	elapsed := s.Elapsed().Minutes()
	if limits.MaxInvestigationTimeMinutes > 0 && elapsed >= 0.8*limits.MaxInvestigationTimeMinutes {
		severity := state.SeverityHigh
		if elapsed >= limits.MaxInvestigationTimeMinutes {
			severity = state.SeverityCritical
		}
		concerns = append(concerns, state.SafetyConcern{
			Type:        state.ConcernTimeoutRisk,
			Severity:    severity,
			Description: fmt.Sprintf("elapsed %.1f min against limit %.1f min", elapsed, limits.MaxInvestigationTimeMinutes),
			Timestamp:   now,
		})
	}

	return concerns
}

// interimEvidenceStrength approximates evidence quality mid-run. The
// risk finalizer writes the authoritative value during summary; before
// that, the average confidence of evidence-backed findings stands in.
func interimEvidenceStrength(s *state.InvestigationState) float64 {
	if s.EvidenceStrength > 0 {
		return s.EvidenceStrength
	}
	var sum float64
	var n int
	for _, finding := range s.DomainFindings {
		if finding.Status != state.FindingOK || len(finding.Evidence) == 0 {
			continue
		}
		sum += finding.Confidence
		n++
	}
	if n == 0 {
		return 0
	}
	return clamp01(sum / float64(n))
}

// allowsAIControl applies the authorization matrix
func (m *Manager) allowsAIControl(s *state.InvestigationState, pressure float64, concerns []state.SafetyConcern) bool {
	for _, c := range concerns {
		if c.IsCritical() {
			return false
		}
	}

	switch {
	case pressure < 0.35:
		return true
	case s.AIConfidenceLevel == state.ConfidenceHigh && pressure < 0.6:
		return true
	case s.AIConfidenceLevel == state.ConfidenceMedium && pressure < 0.8:
		return true
	case s.AIConfidenceLevel == state.ConfidenceUnknown && pressure < 0.5:
		return true
	default:
		return false
	}
}

// requiresTermination is true on any critical concern, any hard limit
// breach, or time exhaustion
func (m *Manager) requiresTermination(s *state.InvestigationState, limits config.Limits, concerns []state.SafetyConcern) bool {
	for _, c := range concerns {
		if c.IsCritical() {
			return true
		}
	}
	if s.OrchestratorLoops >= limits.MaxOrchestratorLoops {
		return true
	}
	if s.ToolExecutionAttempts >= limits.MaxToolExecutions && limits.MaxToolExecutions > 0 {
		return true
	}
	if limits.MaxInvestigationTimeMinutes > 0 && s.Elapsed().Minutes() >= limits.MaxInvestigationTimeMinutes {
		return true
	}
	return false
}

func terminationReason(s *state.InvestigationState, limits config.Limits, concerns []state.SafetyConcern) string {
	for _, c := range concerns {
		if c.IsCritical() {
			return c.Description
		}
	}
	if s.OrchestratorLoops >= limits.MaxOrchestratorLoops {
		return fmt.Sprintf("loop limit %d reached", limits.MaxOrchestratorLoops)
	}
	if s.ToolExecutionAttempts >= limits.MaxToolExecutions {
		return fmt.Sprintf("tool execution limit %d reached", limits.MaxToolExecutions)
	}
	return "investigation time limit reached"
}

func remainingResources(s *state.InvestigationState, limits config.Limits) map[string]float64 {
	remaining := func(used, limit float64) float64 {
		if limit <= 0 {
			return 0
		}
		return clamp01((limit - used) / limit)
	}
	return map[string]float64{
		"loops":   remaining(float64(s.OrchestratorLoops), float64(limits.MaxOrchestratorLoops)),
		"tools":   remaining(float64(s.ToolExecutionAttempts), float64(limits.MaxToolExecutions)),
		"domains": remaining(float64(len(s.DomainsCompleted)), float64(limits.MaxDomainAttempts)),
		"time":    remaining(s.Elapsed().Minutes(), limits.MaxInvestigationTimeMinutes),
	}
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
