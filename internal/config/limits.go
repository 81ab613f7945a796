package config

// Limits are the per-run resource limits an investigation operates under.
// Effective limits are base limits scaled by the safety-level and strategy
// multiplier tables below.
type Limits struct {
	MaxOrchestratorLoops           int     `json:"max_orchestrator_loops" yaml:"max_orchestrator_loops"`
	MaxToolExecutions              int     `json:"max_tool_executions" yaml:"max_tool_executions"`
	MaxDomainAttempts              int     `json:"max_domain_attempts" yaml:"max_domain_attempts"`
	MaxInvestigationTimeMinutes    float64 `json:"max_investigation_time_minutes" yaml:"max_investigation_time_minutes"`
	ConfidenceThresholdForOverride float64 `json:"confidence_threshold_for_override" yaml:"confidence_threshold_for_override"`
	ResourcePressureThreshold      float64 `json:"resource_pressure_threshold" yaml:"resource_pressure_threshold"`
}

// BaseLimits returns the base limit table row for the given mode.
// Mock and demo runs use the test column; live runs use the live column.
func BaseLimits(mode RunMode) Limits {
	if mode.UsesTestLimits() {
		return Limits{
			MaxOrchestratorLoops:           12,
			MaxToolExecutions:              8,
			MaxDomainAttempts:              6,
			MaxInvestigationTimeMinutes:    10,
			ConfidenceThresholdForOverride: 0.3,
			ResourcePressureThreshold:      0.8,
		}
	}
	return Limits{
		MaxOrchestratorLoops:           25,
		MaxToolExecutions:              15,
		MaxDomainAttempts:              10,
		MaxInvestigationTimeMinutes:    30,
		ConfidenceThresholdForOverride: 0.4,
		ResourcePressureThreshold:      0.7,
	}
}

// HardRecursionLimit is the executor's absolute transition ceiling.
// The executor enforces the smaller of this and the effective loop limit
// so that both termination paths converge.
func HardRecursionLimit(mode RunMode) int {
	if mode.UsesTestLimits() {
		return 50
	}
	return 100
}

// FactorMultipliers scale the four limit axes (loops, tools, domains, time)
type FactorMultipliers struct {
	Loops   float64
	Tools   float64
	Domains float64
	Time    float64
}

// LevelMultipliers maps safety level names to limit multipliers.
// Keyed by string to keep every threshold in this one table module.
var LevelMultipliers = map[string]FactorMultipliers{
	"PERMISSIVE": {Loops: 1.5, Tools: 1.3, Domains: 1.2, Time: 1.4},
	"STANDARD":   {Loops: 1.0, Tools: 1.0, Domains: 1.0, Time: 1.0},
	"STRICT":     {Loops: 0.7, Tools: 0.8, Domains: 0.8, Time: 0.8},
	"EMERGENCY":  {Loops: 0.5, Tools: 0.5, Domains: 0.5, Time: 0.5},
}

// StrategyMultipliers maps investigation strategy names to limit multipliers
var StrategyMultipliers = map[string]FactorMultipliers{
	"CRITICAL_PATH": {Loops: 0.8, Tools: 0.6, Domains: 0.5, Time: 0.7},
	"MINIMAL":       {Loops: 0.6, Tools: 0.5, Domains: 0.3, Time: 0.5},
	"FOCUSED":       {Loops: 0.9, Tools: 0.8, Domains: 0.7, Time: 0.8},
	"ADAPTIVE":      {Loops: 1.0, Tools: 1.0, Domains: 1.0, Time: 1.0},
	"COMPREHENSIVE": {Loops: 1.2, Tools: 1.3, Domains: 1.5, Time: 1.4},
}

// Scale applies a multiplier set to base limits. Integer axes round down
// but never below 1; the override and pressure thresholds are untouched.
func (l Limits) Scale(m FactorMultipliers) Limits {
	scaled := Limits{
		MaxOrchestratorLoops:           scaleInt(l.MaxOrchestratorLoops, m.Loops),
		MaxToolExecutions:              scaleInt(l.MaxToolExecutions, m.Tools),
		MaxDomainAttempts:              scaleInt(l.MaxDomainAttempts, m.Domains),
		MaxInvestigationTimeMinutes:    l.MaxInvestigationTimeMinutes * m.Time,
		ConfidenceThresholdForOverride: l.ConfidenceThresholdForOverride,
		ResourcePressureThreshold:      l.ResourcePressureThreshold,
	}
	return scaled
}

func scaleInt(v int, mult float64) int {
	scaled := int(float64(v) * mult)
	if scaled < 1 {
		return 1
	}
	return scaled
}
