package scenarios

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/agents"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/checkpoint"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/config"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/graph"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/risk"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/router"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/safety"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/state"
)

// mockDeps assembles the full executor dependency set around the
// deterministic mock suite for one entity
func mockDeps(entityID string, assessor graph.Assessor) (graph.Deps, *checkpoint.MemoryStore) {
	suite := agents.NewMockSuiteForEntity(entityID)
	store := checkpoint.NewMemoryStore()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	return graph.Deps{
		Checkpointer: store,
		Investigator: suite,
		Agents:       suite,
		Tools:        suite,
		Assessor:     assessor,
		Router:       router.New(),
		Safety:       safety.NewManager(config.ModeMock),
		Finalizer:    risk.NewFinalizer(logger, config.Default().Risk),
		Initializer:  suite,
	}, store
}

func newState(investigationID, entityID string, entityType state.EntityType) *state.InvestigationState {
	return state.NewInvestigation(state.CreateConfig{
		InvestigationID: investigationID,
		EntityID:        entityID,
		EntityType:      entityType,
		Mode:            config.ModeMock,
	})
}

// scriptedAssessor decides from the snapshot and the 1-based call count
type scriptedAssessor struct {
	decide func(st *state.InvestigationState, call int) (state.AIDecision, error)
	calls  int
}

func (a *scriptedAssessor) Assess(_ context.Context, st *state.InvestigationState) (state.AIDecision, error) {
	a.calls++
	return a.decide(st, a.calls)
}

// criticalPathAssessor is confident from the first look and sends the
// flow straight to risk analysis
func criticalPathAssessor() graph.Assessor {
	return &scriptedAssessor{decide: func(st *state.InvestigationState, _ int) (state.AIDecision, error) {
		action := "risk_agent"
		if st.HasDomain("risk") {
			action = "summary"
		}
		return state.AIDecision{
			Confidence:        0.9,
			ConfidenceLevel:   state.ConfidenceHigh,
			RecommendedAction: action,
			Strategy:          state.StrategyCriticalPath,
			Reasoning:         []string{"device spoofing with velocity spike, single-domain confirmation suffices"},
		}, nil
	}}
}

// focusedAssessor walks the full agent list under a focused strategy
func focusedAssessor() graph.Assessor {
	all := []string{"network_agent", "device_agent", "location_agent", "logs_agent", "authentication_agent"}
	return &scriptedAssessor{decide: func(st *state.InvestigationState, _ int) (state.AIDecision, error) {
		action := "summary"
		for _, agent := range all {
			domain := agent[:len(agent)-len("_agent")]
			if !st.HasDomain(domain) {
				action = agent
				break
			}
		}
		return state.AIDecision{
			Confidence:        0.6,
			ConfidenceLevel:   state.ConfidenceMedium,
			RecommendedAction: action,
			Strategy:          state.StrategyFocused,
			AgentsToActivate:  all,
			Reasoning:         []string{"thin dataset, canvassing every domain for evidence"},
		}, nil
	}}
}

// stalledAssessor never gains confidence, so routing stays sequential
// and the loop rails decide termination
func stalledAssessor() graph.Assessor {
	return &scriptedAssessor{decide: func(_ *state.InvestigationState, _ int) (state.AIDecision, error) {
		return state.AIDecision{
			Confidence:      0.4,
			ConfidenceLevel: state.ConfidenceUnknown,
			Strategy:        state.StrategyComprehensive,
		}, nil
	}}
}

// failingAssessor behaves until the given call, then returns err
func failingAssessor(failOn int, err error) graph.Assessor {
	return &scriptedAssessor{decide: func(_ *state.InvestigationState, call int) (state.AIDecision, error) {
		if call >= failOn {
			return state.AIDecision{}, err
		}
		return state.AIDecision{
			Confidence:      0.4,
			ConfidenceLevel: state.ConfidenceUnknown,
			Strategy:        state.StrategyComprehensive,
		}, nil
	}}
}

// emptyInvestigator makes no progress at all
type emptyInvestigator struct{}

func (emptyInvestigator) Investigate(context.Context, *state.InvestigationState) (graph.InvestigationTurn, error) {
	return graph.InvestigationTurn{}, nil
}
