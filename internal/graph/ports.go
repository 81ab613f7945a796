package graph

import (
	"context"

	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/outcome"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/state"
)

// Checkpointer persists state between nodes. Save must be atomic per
// call; LoadLatest returns the last node written for the investigation.
type Checkpointer interface {
	Save(ctx context.Context, investigationID, node string, st *state.InvestigationState) error
	LoadLatest(ctx context.Context, investigationID string) (node string, st *state.InvestigationState, err error)
}

// AgentRunner executes one domain analysis against a state snapshot.
// Implementations must not mutate the snapshot.
type AgentRunner interface {
	RunAgent(ctx context.Context, domain string, snapshot *state.InvestigationState) (state.DomainFinding, error)
}

// ToolInvoker runs the requested tools against a snapshot. It returns
// only when every tool finished or the context deadline fired.
type ToolInvoker interface {
	InvokeTools(ctx context.Context, requested []string, snapshot *state.InvestigationState) (results map[string]any, used []string, err error)
}

// InvestigationTurn is what the investigator produces on each visit to
// the fraud_investigation node
type InvestigationTurn struct {
	Messages         []state.Message
	ToolCalls        []string
	SnowflakeData    map[string]any
	SnowflakeQuality float64
	RiskIndicators   []string
}

// Investigator drives the conversational investigation loop: gathering
// the initial dataset and deciding which tools to call next
type Investigator interface {
	Investigate(ctx context.Context, snapshot *state.InvestigationState) (InvestigationTurn, error)
}

// Assessor produces an AIDecision. Only unrecoverable provider errors
// come back as errors; anything else degrades inside the implementation.
type Assessor interface {
	Assess(ctx context.Context, st *state.InvestigationState) (state.AIDecision, error)
}

// Progress is the incremental status pushed to the sink mid-run
type Progress struct {
	RiskScore          *float64 `json:"risk_score"`
	OverallRiskScore   *float64 `json:"overall_risk_score"`
	Status             string   `json:"status"`
	CurrentPhase       string   `json:"current_phase"`
	ProgressPercentage float64  `json:"progress_percentage"`
}

// ResultSink receives final outcomes and progress updates
type ResultSink interface {
	Persist(ctx context.Context, investigationID string, o *outcome.CanonicalFinalOutcome, raw *state.InvestigationState) error
	UpdateProgress(ctx context.Context, investigationID string, p Progress) error
	StoreTransactionScores(ctx context.Context, investigationID string, scores map[string]float64) error
}

// Initializer supplies the external initialization payload merged by
// start_investigation. Keys matching protected state fields are rejected
// by the merge.
type Initializer interface {
	InitialPayload(ctx context.Context, entityID string, entityType state.EntityType) (map[string]any, error)
}

// EventEmitter publishes monitor frames. Implementations must not block
// the executor; dropping frames is acceptable.
type EventEmitter interface {
	Emit(investigationID, frameType string, payload any)
}
