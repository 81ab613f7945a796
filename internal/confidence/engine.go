package confidence

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/errors"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/logging"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/state"
)

// Factor weights. Must sum to 1.0.
const (
	WeightSnowflake = 0.35
	WeightTools     = 0.25
	WeightDomains   = 0.20
	WeightPattern   = 0.15
	WeightVelocity  = 0.05
)

// Assessor is the confidence assessor port. Implementations may call an
// LLM or compute heuristics; provider failures surface as provider errors.
type Assessor interface {
	Assess(ctx context.Context, snapshot *state.InvestigationState) (state.AIDecision, error)
}

// Engine produces AIDecisions for the orchestrator. When an external
// assessor is configured its output is merged over the heuristic baseline;
// assessment failures never propagate, they degrade to a neutral decision.
type Engine struct {
	assessor Assessor
	timeout  time.Duration
}

// Option configures the engine
type Option func(*Engine)

// WithAssessor attaches an external assessor
func WithAssessor(a Assessor) Option {
	return func(e *Engine) { e.assessor = a }
}

// WithTimeout bounds each external assessment call
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// NewEngine creates a confidence engine
func NewEngine(opts ...Option) *Engine {
	e := &Engine{timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Factors is the weighted factor breakdown behind a confidence score
type Factors struct {
	SnowflakeQuality      float64 `json:"snowflake_quality"`
	ToolsQuality          float64 `json:"tools_quality"`
	DomainsQuality        float64 `json:"domains_quality"`
	PatternRecognition    float64 `json:"pattern_recognition"`
	InvestigationVelocity float64 `json:"investigation_velocity"`
}

// Score collapses the factors into a single confidence value
func (f Factors) Score() float64 {
	score := f.SnowflakeQuality*WeightSnowflake +
		f.ToolsQuality*WeightTools +
		f.DomainsQuality*WeightDomains +
		f.PatternRecognition*WeightPattern +
		f.InvestigationVelocity*WeightVelocity
	return clamp01(score)
}

// ComputeFactors derives the factor breakdown from the current state
func ComputeFactors(s *state.InvestigationState) Factors {
	return Factors{
		SnowflakeQuality:      snowflakeQuality(s),
		ToolsQuality:          toolsQuality(s),
		DomainsQuality:        domainsQuality(s),
		PatternRecognition:    patternRecognition(s),
		InvestigationVelocity: investigationVelocity(s),
	}
}

// snowflakeQuality scores presence and completeness of the initial dataset
func snowflakeQuality(s *state.InvestigationState) float64 {
	if !s.SnowflakeCompleted {
		return 0
	}
	if s.SnowflakeQuality > 0 {
		return clamp01(s.SnowflakeQuality)
	}
	if len(s.SnowflakeData) == 0 {
		return 0.3
	}
	// completeness by populated sections, saturating at five
	quality := 0.4 + 0.12*float64(len(s.SnowflakeData))
	return clamp01(quality)
}

// toolsQuality is the fraction of attempted tools returning usable output
func toolsQuality(s *state.InvestigationState) float64 {
	if s.ToolExecutionAttempts == 0 {
		return 0
	}
	return clamp01(float64(len(s.ToolResults)) / float64(s.ToolExecutionAttempts))
}

// domainsQuality averages finding confidence over completed domains
func domainsQuality(s *state.InvestigationState) float64 {
	if len(s.DomainFindings) == 0 {
		return 0
	}
	var sum float64
	for _, f := range s.DomainFindings {
		sum += f.Confidence
	}
	return clamp01(sum / float64(len(s.DomainFindings)))
}

// patternRecognition is a heuristic over accumulated risk indicators,
// used when no external assessor has supplied a value
func patternRecognition(s *state.InvestigationState) float64 {
	if v, ok := s.ConfidenceFactors["pattern_recognition"]; ok && v > 0 {
		return clamp01(v)
	}
	indicators := len(s.RiskIndicators) + len(s.RiskFactors)
	if indicators == 0 {
		return 0
	}
	return clamp01(0.2 + 0.1*float64(indicators))
}

// investigationVelocity measures loops per unit of evidence gathered
func investigationVelocity(s *state.InvestigationState) float64 {
	if s.OrchestratorLoops == 0 {
		return 0.5
	}
	evidence := len(s.DomainFindings) + len(s.ToolResults)
	ratio := float64(evidence) / float64(s.OrchestratorLoops)
	return clamp01(ratio / 2.0)
}

// Assess produces the next AIDecision. Unrecoverable provider errors are
// returned as-is, never synthesized away; every other assessment failure
// degrades to a neutral UNKNOWN decision with the failure in reasoning.
func (e *Engine) Assess(ctx context.Context, s *state.InvestigationState) (state.AIDecision, error) {
	factors := ComputeFactors(s)
	baseline := e.heuristicDecision(s, factors)

	if e.assessor == nil {
		return baseline, nil
	}

	assessCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	decision, err := e.assessor.Assess(assessCtx, s.Clone())
	if err != nil {
		if errors.IsProvider(err) {
			return state.AIDecision{}, err
		}
		logging.Warn("confidence assessment failed",
			"investigation_id", s.InvestigationID, "error", err)
		s.RecordError("ai_confidence_assessment", "assessment_error", err.Error())
		return state.AIDecision{
			Confidence:        0.5,
			ConfidenceLevel:   state.ConfidenceUnknown,
			RecommendedAction: baseline.RecommendedAction,
			Reasoning:         []string{fmt.Sprintf("assessment_failed: %v", err)},
			Strategy:          s.InvestigationStrategy,
			ResourceImpact:    state.ImpactLow,
			Timestamp:         time.Now().UTC(),
		}, nil
	}

	return e.normalize(decision, s, factors), nil
}

// heuristicDecision is the pure-heuristic baseline decision
func (e *Engine) heuristicDecision(s *state.InvestigationState, factors Factors) state.AIDecision {
	score := factors.Score()
	level := levelFor(s, score)
	strategy := SelectStrategy(s, level, score, factors)

	return state.AIDecision{
		Confidence:                score,
		ConfidenceLevel:           level,
		RecommendedAction:         recommendAction(s),
		Reasoning:                 dominantFactors(factors),
		EvidenceQuality:           evidenceQuality(factors),
		InvestigationCompleteness: completeness(s),
		Strategy:                  strategy,
		AgentsToActivate:          uncompletedDomains(s),
		ResourceImpact:            impactFor(strategy),
		Timestamp:                 time.Now().UTC(),
	}
}

// normalize fills holes in an external decision and re-derives the level
// so external and heuristic paths agree on the mapping
func (e *Engine) normalize(d state.AIDecision, s *state.InvestigationState, factors Factors) state.AIDecision {
	d.Confidence = clamp01(d.Confidence)
	d.ConfidenceLevel = levelFor(s, d.Confidence)
	if d.Strategy == "" {
		d.Strategy = SelectStrategy(s, d.ConfidenceLevel, d.Confidence, factors)
	}
	if d.RecommendedAction == "" {
		d.RecommendedAction = recommendAction(s)
	}
	if len(d.Reasoning) == 0 {
		d.Reasoning = dominantFactors(factors)
	}
	if d.ResourceImpact == "" {
		d.ResourceImpact = impactFor(d.Strategy)
	}
	if d.Timestamp.IsZero() {
		d.Timestamp = time.Now().UTC()
	}
	return d
}

// levelFor maps a score to its bucket, holding UNKNOWN while no evidence
// inputs exist yet
func levelFor(s *state.InvestigationState, score float64) state.ConfidenceLevel {
	if missingInputs(s) {
		return state.ConfidenceUnknown
	}
	return state.LevelForConfidence(score)
}

func missingInputs(s *state.InvestigationState) bool {
	return !s.SnowflakeCompleted && len(s.ToolResults) == 0 && len(s.DomainFindings) == 0
}

// SelectStrategy picks the investigation strategy. First match wins.
func SelectStrategy(s *state.InvestigationState, level state.ConfidenceLevel, score float64, factors Factors) state.Strategy {
	evidence := evidenceQuality(factors)

	if level == state.ConfidenceUnknown || evidence < 0.3 {
		return state.StrategyComprehensive
	}
	if score >= 0.85 && dominantDomain(s) != "" {
		return state.StrategyCriticalPath
	}
	if score >= 0.75 && s.RiskScore != nil && *s.RiskScore < 0.2 {
		return state.StrategyMinimal
	}
	if score >= 0.6 && topDomainsCoverage(s) >= 0.7 {
		return state.StrategyFocused
	}
	return state.StrategyAdaptive
}

// dominantDomain returns the domain carrying a clearly dominant share of
// the risk signal, or "" when none dominates. Findings with risk scores
// decide when present; before any domain agent has run, accumulated risk
// indicators decide instead.
func dominantDomain(s *state.InvestigationState) string {
	if best := dominantByRiskScore(s); best != "" {
		return best
	}
	return dominantByIndicators(s)
}

func dominantByRiskScore(s *state.InvestigationState) string {
	var best string
	var bestScore, total float64
	for domain, f := range s.DomainFindings {
		if f.RiskScore == nil {
			continue
		}
		total += *f.RiskScore
		if *f.RiskScore > bestScore {
			bestScore = *f.RiskScore
			best = domain
		}
	}
	if total == 0 || bestScore/total < 0.5 {
		return ""
	}
	return best
}

func dominantByIndicators(s *state.InvestigationState) string {
	counts := make(map[string]int)
	total := 0
	for _, indicator := range s.RiskIndicators {
		domain := indicatorDomain(indicator)
		if domain == "" {
			continue
		}
		counts[domain]++
		total++
	}
	if total == 0 {
		return ""
	}

	var best string
	bestCount := 0
	for _, domain := range state.DomainOrder {
		if counts[domain] > bestCount {
			bestCount = counts[domain]
			best = domain
		}
	}
	if float64(bestCount)/float64(total) < 0.5 {
		return ""
	}
	return best
}

// indicatorKeywords attributes indicator strings to the domain they
// implicate. Keyed in DomainOrder so a multi-domain match is stable.
var indicatorKeywords = map[string][]string{
	"network":        {"network", "vpn", "proxy", "asn", "botnet"},
	"device":         {"device", "emulator", "rooted", "fingerprint"},
	"location":       {"location", "geo", "travel", "country"},
	"logs":           {"session", "log_", "_log", "audit"},
	"authentication": {"auth", "credential", "login", "password", "mfa", "takeover"},
}

func indicatorDomain(indicator string) string {
	lowered := strings.ToLower(indicator)
	for _, domain := range state.DomainOrder {
		for _, key := range indicatorKeywords[domain] {
			if strings.Contains(lowered, key) {
				return domain
			}
		}
	}
	return ""
}

// topDomainsCoverage returns the evidence-weight share of the top two domains
func topDomainsCoverage(s *state.InvestigationState) float64 {
	if len(s.DomainFindings) == 0 {
		return 0
	}
	weights := make([]float64, 0, len(s.DomainFindings))
	var total float64
	for _, f := range s.DomainFindings {
		w := f.Confidence * float64(len(f.Evidence))
		weights = append(weights, w)
		total += w
	}
	if total == 0 {
		return 0
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(weights)))
	top := weights[0]
	if len(weights) > 1 {
		top += weights[1]
	}
	return top / total
}

// recommendAction chooses the next action the same way the sequential
// router would, so heuristic decisions stay routable
func recommendAction(s *state.InvestigationState) string {
	if !s.SnowflakeCompleted {
		return "snowflake_analysis"
	}
	if len(s.ToolResults) == 0 {
		return "tools"
	}
	if next := s.NextUncompletedDomain(); next != "" {
		return next + "_agent"
	}
	return "summary"
}

func uncompletedDomains(s *state.InvestigationState) []string {
	var agents []string
	for _, domain := range state.DomainOrder {
		if !s.HasDomain(domain) {
			agents = append(agents, domain+"_agent")
		}
	}
	return agents
}

// evidenceQuality blends the evidence-bearing factors
func evidenceQuality(f Factors) float64 {
	return clamp01(0.45*f.SnowflakeQuality + 0.3*f.ToolsQuality + 0.25*f.DomainsQuality)
}

// completeness is the fraction of the fixed domain order already covered
func completeness(s *state.InvestigationState) float64 {
	return clamp01(float64(len(s.DomainsCompleted)) / float64(len(state.DomainOrder)))
}

func impactFor(strategy state.Strategy) state.ResourceImpact {
	switch strategy {
	case state.StrategyComprehensive:
		return state.ImpactHigh
	case state.StrategyMinimal, state.StrategyCriticalPath:
		return state.ImpactLow
	default:
		return state.ImpactMedium
	}
}

// dominantFactors produces the audit reasoning list, largest weighted
// contributions first
func dominantFactors(f Factors) []string {
	type contribution struct {
		name  string
		value float64
	}
	contributions := []contribution{
		{"snowflake_quality", f.SnowflakeQuality * WeightSnowflake},
		{"tools_quality", f.ToolsQuality * WeightTools},
		{"domains_quality", f.DomainsQuality * WeightDomains},
		{"pattern_recognition", f.PatternRecognition * WeightPattern},
		{"investigation_velocity", f.InvestigationVelocity * WeightVelocity},
	}
	sort.Slice(contributions, func(i, j int) bool {
		return contributions[i].value > contributions[j].value
	})

	reasoning := make([]string, 0, len(contributions))
	for _, c := range contributions {
		reasoning = append(reasoning, fmt.Sprintf("%s contributed %.3f", c.name, c.value))
	}
	return reasoning
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
