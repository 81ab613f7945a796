package output

import (
	"fmt"
	"io"

	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/outcome"
)

// Formatter renders a final outcome for one output surface
type Formatter interface {
	Format(o *outcome.CanonicalFinalOutcome, w io.Writer) error
}

// Format names the supported output formats
type Format string

const (
	FormatTerminal Format = "terminal"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

// ParseFormat validates a --output-format value
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatTerminal, FormatJSON, FormatMarkdown, FormatHTML:
		return Format(s), nil
	case "":
		return FormatTerminal, nil
	default:
		return "", fmt.Errorf("unknown output format %q (terminal, json, markdown, html)", s)
	}
}

// NewFormatter creates the formatter for a format
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	case FormatHTML:
		return &HTMLFormatter{}
	default:
		return &TerminalFormatter{}
	}
}

// Extension is the file extension for persisted reports
func (f Format) Extension() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatMarkdown:
		return "md"
	case FormatHTML:
		return "html"
	default:
		return "txt"
	}
}

func statusEmoji(status outcome.Status) string {
	switch status {
	case outcome.StatusCompleted:
		return "✅"
	case outcome.StatusCompletedWithWarnings:
		return "⚠️ "
	case outcome.StatusTerminatedBySafety:
		return "🛑"
	case outcome.StatusTimeout:
		return "⏱️ "
	default:
		return "❌"
	}
}

func riskLabel(o *outcome.CanonicalFinalOutcome) string {
	if o.RiskAssessment.FinalRiskScore == nil {
		return "N/A (blocked by evidence gating)"
	}
	return fmt.Sprintf("%.2f (%s)", *o.RiskAssessment.FinalRiskScore, o.RiskAssessment.FraudLikelihood)
}
