package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/outcome"
)

// MarkdownFormatter renders a report suitable for case files and PRs
type MarkdownFormatter struct{}

func (f *MarkdownFormatter) Format(o *outcome.CanonicalFinalOutcome, w io.Writer) error {
	fmt.Fprintf(w, "# Fraud Investigation Report\n\n")
	fmt.Fprintf(w, "| | |\n|---|---|\n")
	fmt.Fprintf(w, "| Investigation | `%s` |\n", o.InvestigationID)
	fmt.Fprintf(w, "| Entity | `%s` (%s) |\n", o.EntityID, o.EntityType)
	fmt.Fprintf(w, "| Status | %s |\n", o.Status)
	fmt.Fprintf(w, "| Risk score | %s |\n", riskLabel(o))
	fmt.Fprintf(w, "| Confidence | %.0f%% |\n", o.RiskAssessment.ConfidenceScore*100)
	fmt.Fprintf(w, "| Completed | %s |\n\n", o.CompletionTimestamp.Format("2006-01-02 15:04:05 UTC"))

	fmt.Fprintf(w, "## Summary\n\n%s\n\n", o.SummaryText)

	if len(o.KeyFindings) > 0 {
		fmt.Fprintf(w, "## Key findings\n\n")
		for _, finding := range o.KeyFindings {
			fmt.Fprintf(w, "- %s\n", finding)
		}
		fmt.Fprintln(w)
	}

	if len(o.RiskAssessment.RiskIndicators) > 0 {
		fmt.Fprintf(w, "## Risk indicators\n\n%s\n\n",
			strings.Join(o.RiskAssessment.RiskIndicators, ", "))
	}

	if len(o.Recommendations) > 0 {
		fmt.Fprintf(w, "## Recommendations\n\n")
		for _, rec := range o.Recommendations {
			fmt.Fprintf(w, "1. %s\n", rec)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "## Evidence assessment\n\n")
	fmt.Fprintf(w, "- Overall quality: %.2f (%s)\n", o.EvidenceAssessment.OverallQuality, o.EvidenceAssessment.QualityLevel)
	fmt.Fprintf(w, "- Validation: %s\n", passFail(o.EvidenceAssessment.ValidationPassed))
	if o.EvidenceAssessment.ValidationReason != "" {
		fmt.Fprintf(w, "- Reason: %s\n", o.EvidenceAssessment.ValidationReason)
	}
	if len(o.EvidenceAssessment.Sources) > 0 {
		fmt.Fprintf(w, "- Sources: %s\n", strings.Join(o.EvidenceAssessment.Sources, ", "))
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "## Execution\n\n")
	fmt.Fprintf(w, "- Orchestrator loops: %d\n", o.PerformanceMetrics.OrchestratorLoops)
	fmt.Fprintf(w, "- Domains completed: %d\n", o.PerformanceMetrics.DomainsCompleted)
	fmt.Fprintf(w, "- Tools executed: %d\n", o.PerformanceMetrics.ToolsExecuted)
	fmt.Fprintf(w, "- Duration: %dms\n", o.PerformanceMetrics.TotalDurationMS)
	fmt.Fprintf(w, "- Strategy: %s\n", o.AIIntelligence.StrategyUsed)
	fmt.Fprintf(w, "- Safety overrides: %d\n", len(o.AIIntelligence.SafetyOverrides))
	return nil
}
