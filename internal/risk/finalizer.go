package risk

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/config"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/state"
)

// Likelihood buckets for reporting
const (
	LikelihoodVeryHigh = "VERY_HIGH"
	LikelihoodHigh     = "HIGH"
	LikelihoodModerate = "MODERATE"
	LikelihoodLow      = "LOW"
	LikelihoodVeryLow  = "VERY_LOW"
)

// Finalizer applies evidence gating and computes the final risk score
type Finalizer struct {
	logger *logrus.Logger
	cfg    config.RiskConfig
}

// NewFinalizer creates a risk finalizer
func NewFinalizer(logger *logrus.Logger, cfg config.RiskConfig) *Finalizer {
	if logger == nil {
		logger = logrus.New()
	}
	return &Finalizer{logger: logger, cfg: cfg}
}

// Result is the finalization output
type Result struct {
	Gated            bool
	EvidenceStrength float64
	RiskScore        *float64
	ConfidenceScore  float64
	FraudLikelihood  string
}

// Finalize runs evidence gating then, if the evidence clears the floor,
// risk finalization. A gated investigation carries a null risk score,
// which is the only way a completed run ends without one.
func (f *Finalizer) Finalize(s *state.InvestigationState) Result {
	// reconstruction first, otherwise a run whose agent results only
	// live in tool_results would always gate on an empty findings map
	f.reconstructFindings(s)

	strength := f.EvidenceStrength(s)
	s.EvidenceStrength = strength

	if strength < f.cfg.MinimumEvidenceFloor {
		s.RiskScore = nil
		s.AddSafetyConcern(state.SafetyConcern{
			Type:     state.ConcernEvidenceInsufficient,
			Severity: state.SeverityMedium,
			Description: fmt.Sprintf("evidence strength %.2f below floor %.2f, risk gated",
				strength, f.cfg.MinimumEvidenceFloor),
		})
		f.logger.WithFields(logrus.Fields{
			"investigation_id":  s.InvestigationID,
			"evidence_strength": strength,
			"floor":             f.cfg.MinimumEvidenceFloor,
		}).Warn("risk score N/A (blocked by evidence gating)")

		return Result{Gated: true, EvidenceStrength: strength}
	}

	score := f.weightedRiskScore(s)
	confidence := f.averageConfidence(s)
	s.RiskScore = &score
	s.ConfidenceScore = confidence

	likelihood := FraudLikelihood(score)
	f.logger.WithFields(logrus.Fields{
		"investigation_id": s.InvestigationID,
		"risk_score":       score,
		"confidence":       confidence,
		"likelihood":       likelihood,
	}).Info("risk finalized")

	return Result{
		EvidenceStrength: strength,
		RiskScore:        &score,
		ConfidenceScore:  confidence,
		FraudLikelihood:  likelihood,
	}
}

// EvidenceStrength is the weighted average of finding confidence over
// domains that are OK and carry enough evidence items
func (f *Finalizer) EvidenceStrength(s *state.InvestigationState) float64 {
	var sum, weight float64
	for domain, finding := range s.DomainFindings {
		if finding.Status != state.FindingOK {
			continue
		}
		if len(finding.Evidence) < f.cfg.MinItemsPerDomain {
			continue
		}
		w := f.domainWeight(domain)
		sum += finding.Confidence * w
		weight += w
	}
	if weight == 0 {
		return 0
	}
	return clamp01(sum / weight)
}

// reconstructFindings projects agent results sitting in tool_results into
// domain findings when the findings map arrived empty
func (f *Finalizer) reconstructFindings(s *state.InvestigationState) {
	if len(s.DomainFindings) > 0 {
		return
	}

	for _, domain := range []string{"device", "network", "location", "logs", "authentication"} {
		raw, ok := s.ToolResults[domain+"_analysis"]
		if !ok {
			continue
		}
		result, ok := raw.(map[string]any)
		if !ok {
			continue
		}

		finding := state.DomainFinding{
			Domain:     domain,
			Confidence: f.cfg.ReconstructedConfidence,
			Status:     state.FindingOK,
		}
		if score, ok := toFloat(result["risk_score"]); ok {
			finding.RiskScore = &score
		}
		if conf, ok := toFloat(result["confidence"]); ok {
			finding.Confidence = conf
		}
		finding.Evidence = firstEvidenceList(result)

		s.DomainFindings[domain] = finding
		s.AddDomainCompleted(domain)
		f.logger.WithField("domain", domain).Debug("reconstructed domain finding")
	}
}

// firstEvidenceList takes the first non-empty of evidence, indicators,
// analysis as the evidence list
func firstEvidenceList(result map[string]any) []string {
	for _, key := range []string{"evidence", "indicators", "analysis"} {
		if items := toStringList(result[key]); len(items) > 0 {
			return items
		}
	}
	return nil
}

// weightedRiskScore is the mean of domain risk scores weighted by
// confidence times the configured domain weight
func (f *Finalizer) weightedRiskScore(s *state.InvestigationState) float64 {
	var sum, weight float64
	for domain, finding := range s.DomainFindings {
		if finding.RiskScore == nil {
			continue
		}
		w := finding.Confidence * f.domainWeight(domain)
		sum += *finding.RiskScore * w
		weight += w
	}
	if weight == 0 {
		return 0
	}
	return clamp01(sum / weight)
}

// averageConfidence averages finding confidence over OK domains
func (f *Finalizer) averageConfidence(s *state.InvestigationState) float64 {
	var sum float64
	var n int
	for _, finding := range s.DomainFindings {
		if finding.Status != state.FindingOK {
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

func (f *Finalizer) domainWeight(domain string) float64 {
	if w, ok := f.cfg.DomainWeights[domain]; ok {
		return w
	}
	return 1.0
}

// FraudLikelihood buckets a risk score for reporting
func FraudLikelihood(score float64) string {
	switch {
	case score >= 0.9:
		return LikelihoodVeryHigh
	case score >= 0.7:
		return LikelihoodHigh
	case score >= 0.5:
		return LikelihoodModerate
	case score >= 0.3:
		return LikelihoodLow
	default:
		return LikelihoodVeryLow
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

func toStringList(v any) []string {
	switch items := v.(type) {
	case []string:
		return items
	case []any:
		var out []string
		for _, item := range items {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if items == "" {
			return nil
		}
		return []string{items}
	}
	return nil
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
