package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/outcome"
)

// TerminalFormatter renders the human-readable investigation report
type TerminalFormatter struct{}

const rule = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

func (f *TerminalFormatter) Format(o *outcome.CanonicalFinalOutcome, w io.Writer) error {
	fmt.Fprintf(w, "🔍 Fraud Investigation Report\n")
	fmt.Fprintf(w, "%s\n", rule)
	fmt.Fprintf(w, "Investigation: %s\n", o.InvestigationID)
	fmt.Fprintf(w, "Entity:        %s (%s)\n", o.EntityID, o.EntityType)
	fmt.Fprintf(w, "Status:        %s %s\n", statusEmoji(o.Status), o.Status)
	fmt.Fprintf(w, "Completed:     %s\n\n", o.CompletionTimestamp.Format("2006-01-02 15:04:05"))

	fmt.Fprintf(w, "Risk score:    %s\n", riskLabel(o))
	fmt.Fprintf(w, "Confidence:    %.0f%%\n", o.RiskAssessment.ConfidenceScore*100)
	fmt.Fprintf(w, "Evidence:      %.2f overall quality, validation %s\n\n",
		o.EvidenceAssessment.OverallQuality, passFail(o.EvidenceAssessment.ValidationPassed))

	if len(o.KeyFindings) > 0 {
		fmt.Fprintf(w, "Key findings:\n")
		for i, finding := range o.KeyFindings {
			fmt.Fprintf(w, "%d. %s\n", i+1, finding)
		}
		fmt.Fprintln(w)
	}

	if len(o.RiskAssessment.RiskIndicators) > 0 {
		fmt.Fprintf(w, "Risk indicators: %s\n\n", strings.Join(o.RiskAssessment.RiskIndicators, ", "))
	}

	if len(o.Recommendations) > 0 {
		fmt.Fprintf(w, "Recommendations:\n")
		for _, rec := range o.Recommendations {
			fmt.Fprintf(w, "- %s\n", rec)
		}
		fmt.Fprintln(w)
	}

	if len(o.AIIntelligence.SafetyOverrides) > 0 {
		fmt.Fprintf(w, "Safety overrides (%d):\n", len(o.AIIntelligence.SafetyOverrides))
		for _, ov := range o.AIIntelligence.SafetyOverrides {
			fmt.Fprintf(w, "- %s → %s (%s)\n", ov.OriginalAIDecision, ov.SafetyDecision, ov.ConcernType)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "%s\n", rule)
	fmt.Fprintf(w, "Loops: %d | Domains: %d | Tools: %d | Duration: %dms | Strategy: %s\n",
		o.PerformanceMetrics.OrchestratorLoops,
		o.PerformanceMetrics.DomainsCompleted,
		o.PerformanceMetrics.ToolsExecuted,
		o.PerformanceMetrics.TotalDurationMS,
		o.AIIntelligence.StrategyUsed)
	fmt.Fprintf(w, "%s\n", o.SummaryText)
	return nil
}

func passFail(passed bool) string {
	if passed {
		return "passed"
	}
	return "failed"
}
