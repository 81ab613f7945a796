package scenarios

import (
	"context"
	"fmt"

	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/config"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/errors"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/flags"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/graph"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/outcome"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/router"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/safety"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/state"
)

// Report is the result of one scenario run
type Report struct {
	Name        string
	Description string
	Outcome     *outcome.CanonicalFinalOutcome
	State       *state.InvestigationState
	RunErr      error
	Failures    []string
}

// Passed is true when every expectation held
func (r *Report) Passed() bool {
	return len(r.Failures) == 0
}

func (r *Report) failf(format string, args ...any) {
	r.Failures = append(r.Failures, fmt.Sprintf(format, args...))
}

// Scenario is one runnable end-to-end check
type Scenario struct {
	Name        string
	Description string
	Run         func(ctx context.Context) *Report
}

// Builtin returns the seed scenarios in their canonical order
func Builtin() []Scenario {
	return []Scenario{
		highConfidenceCriticalPath(),
		evidenceGated(),
		loopLimitTermination(),
		providerContextLength(),
		safetyOverride(),
		abRouting(),
	}
}

// ByName finds a builtin scenario
func ByName(name string) (Scenario, bool) {
	for _, s := range Builtin() {
		if s.Name == name {
			return s, true
		}
	}
	return Scenario{}, false
}

// Names lists the builtin scenario names
func Names() []string {
	builtin := Builtin()
	names := make([]string, len(builtin))
	for i, s := range builtin {
		names[i] = s.Name
	}
	return names
}

// highConfidenceCriticalPath: a confident assessor sends a clearly
// fraudulent entity straight through risk analysis to a clean completion
func highConfidenceCriticalPath() Scenario {
	return Scenario{
		Name:        "high_confidence_critical_path",
		Description: "high AI confidence routes directly to the risk agent and completes",
		Run: func(ctx context.Context) *Report {
			rep := &Report{Name: "high_confidence_critical_path"}

			deps, _ := mockDeps("fraud-user-042", criticalPathAssessor())
			exec := graph.NewExecutor(deps, config.ModeMock)
			st := newState("", "fraud-user-042", state.EntityUserID)

			o, err := exec.Run(ctx, st)
			rep.Outcome, rep.State, rep.RunErr = o, st, err
			if err != nil {
				rep.failf("run failed: %v", err)
				return rep
			}

			if o.Status != outcome.StatusCompleted {
				rep.failf("status %s, want COMPLETED", o.Status)
			}
			if len(st.SafetyOverrides) != 0 {
				rep.failf("unexpected safety overrides: %d", len(st.SafetyOverrides))
			}
			if o.RiskAssessment.FinalRiskScore == nil {
				rep.failf("risk score missing")
			} else if *o.RiskAssessment.FinalRiskScore >= 0.7 {
				if l := o.RiskAssessment.FraudLikelihood; l != "HIGH" && l != "VERY_HIGH" {
					rep.failf("fraud likelihood %s for score %.2f, want HIGH or VERY_HIGH",
						l, *o.RiskAssessment.FinalRiskScore)
				}
			}
			if !st.HasDomain("risk") {
				rep.failf("risk agent never ran")
			}
			return rep
		},
	}
}

// evidenceGated: every domain returns insufficient evidence, so the
// final risk score is withheld
func evidenceGated() Scenario {
	return Scenario{
		Name:        "evidence_gated",
		Description: "insufficient evidence in every domain gates the risk score",
		Run: func(ctx context.Context) *Report {
			rep := &Report{Name: "evidence_gated"}

			deps, _ := mockDeps("thin-user-007", focusedAssessor())
			exec := graph.NewExecutor(deps, config.ModeMock)
			st := newState("", "thin-user-007", state.EntityUserID)

			o, err := exec.Run(ctx, st)
			rep.Outcome, rep.State, rep.RunErr = o, st, err
			if err != nil {
				rep.failf("run failed: %v", err)
				return rep
			}

			if o.RiskAssessment.FinalRiskScore != nil {
				rep.failf("risk score %.2f, want null", *o.RiskAssessment.FinalRiskScore)
			}
			if o.Status != outcome.StatusCompletedWithWarnings {
				rep.failf("status %s, want COMPLETED_WITH_WARNINGS", o.Status)
			}
			if !hasConcern(st, state.ConcernEvidenceInsufficient) {
				rep.failf("no EVIDENCE_INSUFFICIENT concern recorded")
			}
			return rep
		},
	}
}

// loopLimitTermination: no progress is ever made, so the loop rail must
// terminate the run through the safety path
func loopLimitTermination() Scenario {
	return Scenario{
		Name:        "loop_limit_termination",
		Description: "a stalled investigation terminates at the orchestrator loop limit",
		Run: func(ctx context.Context) *Report {
			rep := &Report{Name: "loop_limit_termination"}

			deps, _ := mockDeps("user-loop-3", stalledAssessor())
			deps.Investigator = emptyInvestigator{}
			exec := graph.NewExecutor(deps, config.ModeMock)
			st := newState("", "user-loop-3", state.EntityUserID)

			o, err := exec.Run(ctx, st)
			rep.Outcome, rep.State, rep.RunErr = o, st, err
			if err != nil {
				rep.failf("run failed: %v", err)
				return rep
			}

			if o.Status != outcome.StatusTerminatedBySafety {
				rep.failf("status %s, want TERMINATED_BY_SAFETY", o.Status)
			}
			if !hasCriticalConcern(st, state.ConcernLoopRisk) {
				rep.failf("no critical LOOP_RISK concern recorded")
			}
			if st.CurrentPhase != state.PhaseComplete {
				rep.failf("phase %s, want %s", st.CurrentPhase, state.PhaseComplete)
			}
			return rep
		},
	}
}

// providerContextLength: the assessor dies with a context-length error
// on its third call; the error must surface without a synthesized score
func providerContextLength() Scenario {
	return Scenario{
		Name:        "provider_context_length",
		Description: "a provider context-length error fails the run without partial synthesis",
		Run: func(ctx context.Context) *Report {
			rep := &Report{Name: "provider_context_length"}

			provErr := errors.ProviderError(errors.ProviderContextLengthExceeded, nil, "context length exceeded")
			deps, _ := mockDeps("user-ctx-9", failingAssessor(3, provErr))
			deps.Investigator = emptyInvestigator{}
			exec := graph.NewExecutor(deps, config.ModeMock)
			st := newState("", "user-ctx-9", state.EntityUserID)

			o, err := exec.Run(ctx, st)
			rep.Outcome, rep.State, rep.RunErr = o, st, err

			if err == nil {
				rep.failf("run succeeded, want a provider error")
				return rep
			}
			if !errors.IsProvider(err) {
				rep.failf("error %v is not a provider error", err)
			}
			if errors.ProviderSubkindOf(err) != errors.ProviderContextLengthExceeded {
				rep.failf("subkind %s, want ContextLengthExceeded", errors.ProviderSubkindOf(err))
			}
			if o != nil && o.Success {
				rep.failf("successful outcome produced despite provider failure")
			}
			return rep
		},
	}
}

// safetyOverride: under heavy pressure with low confidence, the router
// must refuse the AI's tool recommendation and record the override
func safetyOverride() Scenario {
	return Scenario{
		Name:        "safety_override",
		Description: "low confidence at pressure 0.85 forces sequential routing with an override",
		Run: func(_ context.Context) *Report {
			rep := &Report{Name: "safety_override"}

			st := newState("", "user-pressure-5", state.EntityUserID)
			st.SnowflakeCompleted = true
			st.ToolResults["velocity_check"] = map[string]any{"error": "upstream unavailable"}
			st.AIConfidenceLevel = state.ConfidenceLow
			rep.State = st

			decision := state.AIDecision{
				Confidence:        0.3,
				ConfidenceLevel:   state.ConfidenceLow,
				RecommendedAction: "tools",
				ToolsRecommended:  []string{"velocity_check"},
			}
			status := safety.Status{
				AllowsAIControl:   false,
				ResourcePressure:  0.85,
				OverrideReasoning: "ai control denied at pressure 0.85 with confidence level LOW",
			}

			routed := router.New().Decide(st, decision, status)

			if routed.NextNode != "network_agent" {
				rep.failf("routed to %s, want network_agent", routed.NextNode)
			}
			if !routed.SafetyOverride {
				rep.failf("no safety override flagged")
			}
			if len(st.SafetyOverrides) != 1 {
				rep.failf("%d override entries, want 1", len(st.SafetyOverrides))
			} else if st.SafetyOverrides[0].ConcernType != state.ConcernResourcePressure {
				rep.failf("override concern %s, want RESOURCE_PRESSURE", st.SafetyOverrides[0].ConcernType)
			}
			return rep
		},
	}
}

// abRouting: with the A/B flag on, hashed investigation ids split
// between the hybrid and sequential graphs and both complete
func abRouting() Scenario {
	return Scenario{
		Name:        "ab_routing",
		Description: "A/B flag splits investigations across graphs; both produce outcomes",
		Run: func(ctx context.Context) *Report {
			rep := &Report{Name: "ab_routing"}

			ff := flags.New()
			ff.Set(flags.Flag{
				Name: flags.FlagHybridGraphV1, Enabled: false,
				DeploymentMode: flags.ModeDisabled,
			})
			ff.Set(flags.Flag{
				Name: flags.FlagABTestHybrid, Enabled: true,
				RolloutPercentage: 50, DeploymentMode: flags.ModeABTest, TestSplit: 50,
			})
			selector := flags.NewGraphSelector(ff, nil)

			hybridID, sequentialID := findSplitIDs(selector)
			if hybridID == "" || sequentialID == "" {
				rep.failf("could not find ids on both sides of the split")
				return rep
			}

			for _, tc := range []struct {
				id   string
				kind flags.GraphKind
			}{
				{hybridID, flags.GraphHybrid},
				{sequentialID, flags.GraphSequential},
			} {
				assessor := criticalPathAssessor()
				if tc.kind == flags.GraphSequential {
					assessor = stalledAssessor()
				}
				deps, _ := mockDeps("fraud-user-042", assessor)
				exec := graph.NewExecutor(deps, config.ModeMock)
				st := newState(tc.id, "fraud-user-042", state.EntityUserID)

				o, err := exec.Run(ctx, st)
				if err != nil {
					rep.failf("%s graph run failed: %v", tc.kind, err)
					continue
				}
				if o.CompletionReason == "" {
					rep.failf("%s graph outcome has no completion reason", tc.kind)
				}
				if o.InvestigationID != tc.id {
					rep.failf("%s graph outcome id %s, want %s", tc.kind, o.InvestigationID, tc.id)
				}
				if tc.kind == flags.GraphHybrid {
					rep.Outcome, rep.State = o, st
				}
			}
			return rep
		},
	}
}

// findSplitIDs scans candidate ids until both buckets are represented
func findSplitIDs(selector *flags.GraphSelector) (hybrid, sequential string) {
	for i := 0; i < 200 && (hybrid == "" || sequential == ""); i++ {
		id := fmt.Sprintf("ab-seed-%03d", i)
		switch selector.Choose(id, string(state.EntityUserID), "") {
		case flags.GraphHybrid:
			if hybrid == "" {
				hybrid = id
			}
		case flags.GraphSequential:
			if sequential == "" {
				sequential = id
			}
		}
	}
	return hybrid, sequential
}

func hasConcern(st *state.InvestigationState, kind state.ConcernType) bool {
	for _, c := range st.SafetyConcerns {
		if c.Type == kind {
			return true
		}
	}
	return false
}

func hasCriticalConcern(st *state.InvestigationState, kind state.ConcernType) bool {
	for _, c := range st.SafetyConcerns {
		if c.Type == kind && c.IsCritical() {
			return true
		}
	}
	return false
}
