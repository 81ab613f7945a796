package graph

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/config"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/errors"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/outcome"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/risk"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/router"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/safety"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/state"
)

// memCheckpointer is an in-memory checkpoint store for tests
type memCheckpointer struct {
	mu    sync.Mutex
	nodes []string
	last  map[string]checkpointRecord
}

type checkpointRecord struct {
	node string
	st   *state.InvestigationState
}

func newMemCheckpointer() *memCheckpointer {
	return &memCheckpointer{last: map[string]checkpointRecord{}}
}

func (m *memCheckpointer) Save(_ context.Context, id, node string, st *state.InvestigationState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes = append(m.nodes, node)
	m.last[id] = checkpointRecord{node: node, st: st.Clone()}
	return nil
}

func (m *memCheckpointer) LoadLatest(_ context.Context, id string) (string, *state.InvestigationState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.last[id]
	if !ok {
		return "", nil, nil
	}
	return rec.node, rec.st.Clone(), nil
}

// faultyCheckpointer fails the first failures saves, then delegates
type faultyCheckpointer struct {
	*memCheckpointer
	failures int
	attempts int
}

func (f *faultyCheckpointer) Save(ctx context.Context, id, node string, st *state.InvestigationState) error {
	f.attempts++
	if f.attempts <= f.failures {
		return fmt.Errorf("store unavailable")
	}
	return f.memCheckpointer.Save(ctx, id, node, st)
}

// scriptedInvestigator returns queued turns, then empty turns
type scriptedInvestigator struct {
	turns []InvestigationTurn
	errs  []error
	calls int
}

func (s *scriptedInvestigator) Investigate(_ context.Context, _ *state.InvestigationState) (InvestigationTurn, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return InvestigationTurn{}, s.errs[i]
	}
	if i < len(s.turns) {
		return s.turns[i], nil
	}
	return InvestigationTurn{}, nil
}

// stubAgents produces configurable findings per domain
type stubAgents struct {
	findings map[string]state.DomainFinding
	errs     map[string]error
	calls    []string
}

func (a *stubAgents) RunAgent(_ context.Context, domain string, _ *state.InvestigationState) (state.DomainFinding, error) {
	a.calls = append(a.calls, domain)
	if err, ok := a.errs[domain]; ok {
		return state.DomainFinding{}, err
	}
	if f, ok := a.findings[domain]; ok {
		return f, nil
	}
	score := 0.5
	return state.DomainFinding{
		Domain: domain, RiskScore: &score, Confidence: 0.7,
		Evidence: []string{domain + " signal"}, Status: state.FindingOK,
	}, nil
}

// stubTools returns one result per requested tool
type stubTools struct {
	err   error
	calls int
}

func (t *stubTools) InvokeTools(_ context.Context, requested []string, _ *state.InvestigationState) (map[string]any, []string, error) {
	t.calls++
	if t.err != nil {
		return nil, nil, t.err
	}
	results := map[string]any{}
	for _, tool := range requested {
		results[tool] = map[string]any{"ok": true}
	}
	return results, requested, nil
}

// scriptedAssessor returns queued decisions, repeating the last one
type scriptedAssessor struct {
	decisions []state.AIDecision
	err       error
	calls     int
}

func (s *scriptedAssessor) Assess(_ context.Context, _ *state.InvestigationState) (state.AIDecision, error) {
	i := s.calls
	s.calls++
	if s.err != nil {
		return state.AIDecision{}, s.err
	}
	if len(s.decisions) == 0 {
		return state.AIDecision{Confidence: 0.5, ConfidenceLevel: state.ConfidenceMedium, Strategy: state.StrategyAdaptive}, nil
	}
	if i >= len(s.decisions) {
		i = len(s.decisions) - 1
	}
	return s.decisions[i], nil
}

// recordingSink captures sink calls
type recordingSink struct {
	mu       sync.Mutex
	outcome  *outcome.CanonicalFinalOutcome
	progress []Progress
	txScores map[string]float64
}

func (s *recordingSink) Persist(_ context.Context, _ string, o *outcome.CanonicalFinalOutcome, _ *state.InvestigationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcome = o
	return nil
}

func (s *recordingSink) UpdateProgress(_ context.Context, _ string, p Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = append(s.progress, p)
	return nil
}

func (s *recordingSink) StoreTransactionScores(_ context.Context, _ string, scores map[string]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txScores = scores
	return nil
}

func quietFinalizer() *risk.Finalizer {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return risk.NewFinalizer(logger, config.Default().Risk)
}

func testDeps(inv Investigator, assessor Assessor) (Deps, *memCheckpointer, *recordingSink) {
	cp := newMemCheckpointer()
	sink := &recordingSink{}
	deps := Deps{
		Checkpointer: cp,
		Investigator: inv,
		Agents:       &stubAgents{},
		Tools:        &stubTools{},
		Assessor:     assessor,
		Router:       router.New(),
		Safety:       safety.NewManager(config.ModeMock),
		Finalizer:    quietFinalizer(),
		Sink:         sink,
	}
	return deps, cp, sink
}

func newRunState() *state.InvestigationState {
	return state.NewInvestigation(state.CreateConfig{
		EntityID:   "user-11",
		EntityType: state.EntityUserID,
		Mode:       config.ModeMock,
		MaxTools:   8,
	})
}

func snowflakeTurn() InvestigationTurn {
	return InvestigationTurn{
		Messages: []state.Message{
			{Role: "assistant", Kind: state.KindAssistant, Content: "initial dataset gathered"},
		},
		SnowflakeData:    map[string]any{"transactions": 42, "accounts": 2, "sessions": 9},
		SnowflakeQuality: 0.9,
	}
}

func TestHighConfidenceCriticalPathRun(t *testing.T) {
	inv := &scriptedInvestigator{turns: []InvestigationTurn{snowflakeTurn()}}
	assessor := &scriptedAssessor{decisions: []state.AIDecision{{
		Confidence:        0.9,
		ConfidenceLevel:   state.ConfidenceHigh,
		RecommendedAction: "risk_agent",
		Strategy:          state.StrategyCriticalPath,
		Reasoning:         []string{"clear account takeover pattern"},
	}}}
	deps, cp, sink := testDeps(inv, assessor)
	agents := deps.Agents.(*stubAgents)

	exec := NewExecutor(deps, config.ModeMock)
	st := newRunState()
	o, err := exec.Run(context.Background(), st)
	require.NoError(t, err)
	require.NotNil(t, o)

	// critical path goes straight to the risk agent, nothing else
	assert.Equal(t, []string{"risk"}, agents.calls)
	assert.Equal(t, state.StrategyCriticalPath, st.InvestigationStrategy)
	require.NotNil(t, st.RiskScore)
	assert.Equal(t, outcome.StatusCompleted, o.Status)
	assert.Empty(t, st.SafetyOverrides)

	// checkpoint after every node, terminal nodes included
	assert.Contains(t, cp.nodes, NodeStart)
	assert.Contains(t, cp.nodes, NodeOrchestrator)
	assert.Contains(t, cp.nodes, NodeSummary)
	assert.Contains(t, cp.nodes, NodeComplete)

	// sink saw the final outcome and a 100% progress update
	require.NotNil(t, sink.outcome)
	require.Len(t, sink.progress, 1)
	assert.Equal(t, float64(100), sink.progress[0].ProgressPercentage)
}

func TestGuidanceRefreshedNotStacked(t *testing.T) {
	deps, _, _ := testDeps(&scriptedInvestigator{}, &scriptedAssessor{})
	exec := NewExecutor(deps, config.ModeMock)

	st := newRunState()
	st.Messages = []state.Message{
		{Role: "system", Kind: state.KindSystem, Content: "You are a fraud investigator."},
	}
	st.UpdateAIConfidence(state.AIDecision{
		Confidence: 0.7, ConfidenceLevel: state.ConfidenceMedium, RecommendedAction: "network_agent",
	}, "loop_1_assessment")

	turn := InvestigationTurn{Messages: []state.Message{
		{Role: "assistant", Kind: state.KindAssistant, Content: "reviewed the signals"},
	}}
	exec.applyTurn(st, turn)
	exec.applyTurn(st, turn)

	first := st.Messages[0]
	assert.Equal(t, 1, strings.Count(first.Content, "AI guidance:"))
	assert.Contains(t, first.Content, "You are a fraud investigator.")

	// a newer decision replaces the stale guidance in place
	st.UpdateAIConfidence(state.AIDecision{
		Confidence: 0.8, ConfidenceLevel: state.ConfidenceHigh, RecommendedAction: "device_agent",
	}, "loop_2_assessment")
	exec.applyTurn(st, turn)

	first = st.Messages[0]
	assert.Equal(t, 1, strings.Count(first.Content, "AI guidance:"))
	assert.Contains(t, first.Content, "device_agent")
	assert.NotContains(t, first.Content, "network_agent")
	assert.Contains(t, first.Content, "You are a fraud investigator.")
}

func TestEvidenceGatedRun(t *testing.T) {
	inv := &scriptedInvestigator{turns: []InvestigationTurn{snowflakeTurn()}}
	assessor := &scriptedAssessor{decisions: []state.AIDecision{{
		Confidence:        0.9,
		ConfidenceLevel:   state.ConfidenceHigh,
		RecommendedAction: "risk_agent",
		Strategy:          state.StrategyCriticalPath,
	}}}
	deps, _, _ := testDeps(inv, assessor)
	deps.Agents = &stubAgents{findings: map[string]state.DomainFinding{
		"risk": {Domain: "risk", Confidence: 0.1, Evidence: []string{"weak"}, Status: state.FindingOK},
	}}

	exec := NewExecutor(deps, config.ModeMock)
	st := newRunState()
	o, err := exec.Run(context.Background(), st)
	require.NoError(t, err)

	assert.Nil(t, st.RiskScore, "evidence below the floor gates the risk score")
	assert.Nil(t, o.RiskAssessment.FinalRiskScore)
	assert.False(t, o.EvidenceAssessment.ValidationPassed)
	assert.Equal(t, outcome.StatusCompletedWithWarnings, o.Status)

	var gatedConcern bool
	for _, c := range st.SafetyConcerns {
		if c.Type == state.ConcernEvidenceInsufficient {
			gatedConcern = true
		}
	}
	assert.True(t, gatedConcern)
}

func TestLoopLimitTermination(t *testing.T) {
	// investigator makes no progress and the assessor never gains
	// confidence, so the run cycles until a loop rail fires
	inv := &scriptedInvestigator{}
	assessor := &scriptedAssessor{decisions: []state.AIDecision{{
		Confidence:      0.5,
		ConfidenceLevel: state.ConfidenceUnknown,
		Strategy:        state.StrategyComprehensive,
	}}}
	deps, _, _ := testDeps(inv, assessor)

	exec := NewExecutor(deps, config.ModeMock)
	st := newRunState()
	o, err := exec.Run(context.Background(), st)
	require.NoError(t, err)

	// run ended through the safety path, not a hang
	assert.Equal(t, state.PhaseComplete, st.CurrentPhase)
	assert.Equal(t, outcome.StatusTerminatedBySafety, o.Status)

	var loopConcern bool
	for _, c := range st.SafetyConcerns {
		if c.Type == state.ConcernLoopRisk && c.IsCritical() {
			loopConcern = true
		}
	}
	assert.True(t, loopConcern)
}

func TestProviderErrorPropagates(t *testing.T) {
	inv := &scriptedInvestigator{turns: []InvestigationTurn{snowflakeTurn()}}
	assessor := &scriptedAssessor{err: errors.ProviderError(errors.ProviderContextLengthExceeded, nil, "context length exceeded")}
	deps, cp, sink := testDeps(inv, assessor)

	exec := NewExecutor(deps, config.ModeMock)
	st := newRunState()
	o, err := exec.Run(context.Background(), st)

	require.Error(t, err)
	assert.Nil(t, o)
	assert.True(t, errors.IsProvider(err))
	assert.Equal(t, errors.ProviderContextLengthExceeded, errors.ProviderSubkindOf(err))

	// no outcome was synthesized, but the failure was checkpointed
	assert.Nil(t, sink.outcome)
	assert.Contains(t, cp.nodes, NodeAssessment)

	require.NotEmpty(t, st.Errors)
	assert.Equal(t, "provider_error", st.Errors[len(st.Errors)-1].Kind)
}

func TestToolCallsRouteThroughToolsNode(t *testing.T) {
	inv := &scriptedInvestigator{turns: []InvestigationTurn{
		{
			Messages: []state.Message{
				{Role: "assistant", Kind: state.KindToolUse, ToolUseID: "t1"},
				{Role: "tool", Kind: state.KindToolResult, ToolUseID: "t1"},
			},
			SnowflakeData:    map[string]any{"transactions": 10},
			SnowflakeQuality: 0.8,
			ToolCalls:        []string{"velocity_check", "link_graph"},
		},
	}}
	assessor := &scriptedAssessor{decisions: []state.AIDecision{{
		Confidence:        0.9,
		ConfidenceLevel:   state.ConfidenceHigh,
		RecommendedAction: "risk_agent",
		Strategy:          state.StrategyCriticalPath,
	}}}
	deps, _, _ := testDeps(inv, assessor)
	tools := deps.Tools.(*stubTools)

	exec := NewExecutor(deps, config.ModeMock)
	st := newRunState()
	_, err := exec.Run(context.Background(), st)
	require.NoError(t, err)

	assert.Equal(t, 1, tools.calls)
	assert.Contains(t, st.ToolResults, "velocity_check")
	assert.Contains(t, st.ToolsUsed, "link_graph")
	assert.Equal(t, 2, st.ToolExecutionAttempts)
	assert.NotContains(t, st.ToolResults, "__pending_tools")
}

func TestAdaptiveRecommendedToolsExecute(t *testing.T) {
	// the investigator never asks for tools itself; the recommendation
	// alone must reach the invoker
	inv := &scriptedInvestigator{turns: []InvestigationTurn{snowflakeTurn()}}
	assessor := &scriptedAssessor{decisions: []state.AIDecision{{
		Confidence:        0.8,
		ConfidenceLevel:   state.ConfidenceHigh,
		RecommendedAction: "tools",
		Strategy:          state.StrategyAdaptive,
		ToolsRecommended:  []string{"velocity_check"},
	}}}
	deps, _, _ := testDeps(inv, assessor)
	tools := deps.Tools.(*stubTools)
	agents := deps.Agents.(*stubAgents)

	exec := NewExecutor(deps, config.ModeMock)
	st := newRunState()
	o, err := exec.Run(context.Background(), st)
	require.NoError(t, err)

	assert.Equal(t, 1, tools.calls)
	assert.Equal(t, []string{"velocity_check"}, st.ToolsUsed)
	assert.Contains(t, st.ToolResults, "velocity_check")
	assert.NotContains(t, st.ToolResults, "__pending_tools")

	// already-executed recommendations stop re-routing to tools, so the
	// run broadens coverage and completes instead of cycling
	assert.Equal(t, []string{"network", "device", "location"}, agents.calls)
	assert.Equal(t, outcome.StatusCompleted, o.Status)
	assert.Empty(t, st.SafetyOverrides)
}

func TestCancellationRoutesToSummary(t *testing.T) {
	inv := &scriptedInvestigator{turns: []InvestigationTurn{snowflakeTurn()}}
	assessor := &scriptedAssessor{}
	deps, _, _ := testDeps(inv, assessor)

	exec := NewExecutor(deps, config.ModeMock)
	exec.Cancel("kill switch")

	st := newRunState()
	o, err := exec.Run(context.Background(), st)
	require.NoError(t, err)

	assert.Equal(t, outcome.StatusTerminatedBySafety, o.Status)
	assert.Equal(t, state.PhaseComplete, st.CurrentPhase)
	require.NotEmpty(t, st.Errors)
	assert.Equal(t, "cancelled", st.Errors[0].Kind)
}

func TestCheckpointRetriesOnceThenFails(t *testing.T) {
	newRun := func(failures int) (Deps, *faultyCheckpointer) {
		inv := &scriptedInvestigator{turns: []InvestigationTurn{snowflakeTurn()}}
		assessor := &scriptedAssessor{decisions: []state.AIDecision{{
			Confidence:        0.9,
			ConfidenceLevel:   state.ConfidenceHigh,
			RecommendedAction: "risk_agent",
			Strategy:          state.StrategyCriticalPath,
		}}}
		deps, _, _ := testDeps(inv, assessor)
		cp := &faultyCheckpointer{memCheckpointer: newMemCheckpointer(), failures: failures}
		deps.Checkpointer = cp
		return deps, cp
	}

	t.Run("single failure is retried and the run completes", func(t *testing.T) {
		deps, cp := newRun(1)
		exec := NewExecutor(deps, config.ModeMock)
		o, err := exec.Run(context.Background(), newRunState())
		require.NoError(t, err)
		require.NotNil(t, o)
		assert.Contains(t, cp.nodes, NodeComplete)
	})

	t.Run("persistent failure fails the investigation", func(t *testing.T) {
		deps, cp := newRun(1000)
		exec := NewExecutor(deps, config.ModeMock)
		st := newRunState()
		o, err := exec.Run(context.Background(), st)
		require.Error(t, err)
		assert.Nil(t, o)
		assert.Equal(t, errors.ErrorTypeCheckpoint, errors.GetType(err))

		// exactly one retry per save attempt before giving up
		assert.Equal(t, 2, cp.attempts)
		require.NotEmpty(t, st.Errors)
		assert.Equal(t, "checkpoint", st.Errors[len(st.Errors)-1].Kind)
	})
}

func TestResumeReentersLastNode(t *testing.T) {
	inv := &scriptedInvestigator{turns: []InvestigationTurn{snowflakeTurn()}}
	assessor := &scriptedAssessor{decisions: []state.AIDecision{{
		Confidence:        0.9,
		ConfidenceLevel:   state.ConfidenceHigh,
		RecommendedAction: "risk_agent",
		Strategy:          state.StrategyCriticalPath,
	}}}
	deps, _, _ := testDeps(inv, assessor)

	exec := NewExecutor(deps, config.ModeMock)
	st := newRunState()
	_, err := exec.Run(context.Background(), st)
	require.NoError(t, err)

	// checkpoint exists at complete; resume returns the built outcome
	// without re-running anything
	invCallsBefore := inv.calls
	o, err := exec.Resume(context.Background(), st.InvestigationID)
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.Equal(t, invCallsBefore, inv.calls)

	// unknown id fails cleanly
	_, err = exec.Resume(context.Background(), "missing-id")
	require.Error(t, err)
}
