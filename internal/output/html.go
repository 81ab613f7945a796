package output

import (
	"html/template"
	"io"

	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/outcome"
)

// HTMLFormatter renders a standalone report page
type HTMLFormatter struct{}

var htmlReport = template.Must(template.New("report").Funcs(template.FuncMap{
	"riskLabel": riskLabel,
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Investigation {{.InvestigationID}}</title>
<style>
body { font-family: sans-serif; margin: 2rem auto; max-width: 60rem; color: #1a1a2e; }
table { border-collapse: collapse; margin-bottom: 1.5rem; }
td, th { border: 1px solid #ccc; padding: 0.4rem 0.8rem; text-align: left; }
.status-COMPLETED { color: #1b7f3a; }
.status-COMPLETED_WITH_WARNINGS { color: #b8860b; }
.status-TERMINATED_BY_SAFETY, .status-FAILED, .status-TIMEOUT { color: #b22222; }
</style>
</head>
<body>
<h1>Fraud Investigation Report</h1>
<table>
<tr><th>Investigation</th><td>{{.InvestigationID}}</td></tr>
<tr><th>Entity</th><td>{{.EntityID}} ({{.EntityType}})</td></tr>
<tr><th>Status</th><td class="status-{{.Status}}">{{.Status}}</td></tr>
<tr><th>Risk score</th><td>{{riskLabel .}}</td></tr>
<tr><th>Completed</th><td>{{.CompletionTimestamp.Format "2006-01-02 15:04:05 UTC"}}</td></tr>
</table>

<h2>Summary</h2>
<p>{{.SummaryText}}</p>

{{if .KeyFindings}}<h2>Key findings</h2>
<ul>{{range .KeyFindings}}<li>{{.}}</li>{{end}}</ul>{{end}}

{{if .Recommendations}}<h2>Recommendations</h2>
<ol>{{range .Recommendations}}<li>{{.}}</li>{{end}}</ol>{{end}}

<h2>Execution</h2>
<table>
<tr><th>Orchestrator loops</th><td>{{.PerformanceMetrics.OrchestratorLoops}}</td></tr>
<tr><th>Domains completed</th><td>{{.PerformanceMetrics.DomainsCompleted}}</td></tr>
<tr><th>Tools executed</th><td>{{.PerformanceMetrics.ToolsExecuted}}</td></tr>
<tr><th>Duration (ms)</th><td>{{.PerformanceMetrics.TotalDurationMS}}</td></tr>
<tr><th>Strategy</th><td>{{.AIIntelligence.StrategyUsed}}</td></tr>
<tr><th>Safety overrides</th><td>{{len .AIIntelligence.SafetyOverrides}}</td></tr>
</table>
</body>
</html>
`))

func (f *HTMLFormatter) Format(o *outcome.CanonicalFinalOutcome, w io.Writer) error {
	return htmlReport.Execute(w, o)
}
