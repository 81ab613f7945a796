package guard

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/config"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/logging"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/safety"
)

// Breaker names the four independent circuit breakers
type Breaker string

const (
	BreakerCost   Breaker = "cost"
	BreakerTime   Breaker = "time"
	BreakerError  Breaker = "error"
	BreakerManual Breaker = "manual"
)

// CostSource tracks spend by origin
type CostSource string

const (
	SourceSnowflake   CostSource = "snowflake"
	SourceLLM         CostSource = "llm"
	SourceExternalAPI CostSource = "external_api"
)

// errorWindow is how long consecutive errors stay counted
const errorWindow = 60 * time.Second

// EmergencyCallback runs when any breaker trips
type EmergencyCallback func(breaker Breaker, reason string)

// Guard enforces cost, time, and error budgets in live mode. All counter
// updates are safe under concurrent investigations.
type Guard struct {
	cfg  config.GuardConfig
	mode config.RunMode

	mu           sync.Mutex
	sessionStart time.Time

	sessionCost float64
	costBySrc   map[CostSource]float64
	invCost     map[string]float64
	invStart    map[string]time.Time

	creditsUsed float64
	tokensUsed  int64
	callsMade   int64

	consecutiveErrors int
	lastErrorAt       time.Time
	recentResults     []bool // sliding window, true = error

	tripped   map[Breaker]string
	callbacks []EmergencyCallback
	lastErrs  []string
}

// New creates a guard. Outside live mode every check passes.
func New(cfg config.GuardConfig, mode config.RunMode) *Guard {
	return &Guard{
		cfg:          cfg,
		mode:         mode,
		sessionStart: time.Now().UTC(),
		costBySrc:    map[CostSource]float64{},
		invCost:      map[string]float64{},
		invStart:     map[string]time.Time{},
		tripped:      map[Breaker]string{},
	}
}

// OnEmergency registers a callback invoked whenever a breaker trips
func (g *Guard) OnEmergency(cb EmergencyCallback) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.callbacks = append(g.callbacks, cb)
}

// CanStartInvestigation is the single admission gate for new work
func (g *Guard) CanStartInvestigation() (bool, string) {
	if !g.mode.IsLive() {
		return true, ""
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.checkSessionBudgetsLocked()
	if len(g.tripped) > 0 {
		for breaker, reason := range g.tripped {
			return false, fmt.Sprintf("%s breaker open: %s", breaker, reason)
		}
	}
	return true, ""
}

// BeginInvestigation registers a run for per-investigation accounting
func (g *Guard) BeginInvestigation(investigationID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.invStart[investigationID] = time.Now().UTC()
	g.invCost[investigationID] = 0
}

// EndInvestigation drops per-run accounting once the run finishes
func (g *Guard) EndInvestigation(investigationID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.invStart, investigationID)
	delete(g.invCost, investigationID)
}

// RecordCost adds spend for a source, attributed to an investigation.
// Limits scale down under stricter safety levels.
func (g *Guard) RecordCost(investigationID string, source CostSource, usd float64, level safety.Level) {
	if !g.mode.IsLive() {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.sessionCost += usd
	g.costBySrc[source] += usd
	g.invCost[investigationID] += usd

	invLimit := g.cfg.InvestigationCostLimitUSD * costScale(level)
	if invLimit > 0 && g.invCost[investigationID] >= invLimit {
		g.tripLocked(BreakerCost, fmt.Sprintf(
			"investigation %s cost $%.2f reached limit $%.2f", investigationID, g.invCost[investigationID], invLimit))
		return
	}
	if g.cfg.SessionCostLimitUSD > 0 && g.sessionCost >= g.cfg.SessionCostLimitUSD {
		g.tripLocked(BreakerCost, fmt.Sprintf(
			"session cost $%.2f reached limit $%.2f", g.sessionCost, g.cfg.SessionCostLimitUSD))
	}
}

// costScale shrinks cost budgets as the safety posture tightens
func costScale(level safety.Level) float64 {
	switch level {
	case safety.LevelPermissive:
		return 1.2
	case safety.LevelStrict:
		return 0.7
	case safety.LevelEmergency:
		return 0.4
	default:
		return 1.0
	}
}

// RecordQuota tracks non-monetary consumption
func (g *Guard) RecordQuota(credits float64, tokens int64, calls int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.creditsUsed += credits
	g.tokensUsed += tokens
	g.callsMade += calls
}

// CheckTime verifies the per-investigation and session clocks
func (g *Guard) CheckTime(investigationID string) bool {
	if !g.mode.IsLive() {
		return true
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if start, ok := g.invStart[investigationID]; ok && g.cfg.InvestigationTimeLimit > 0 {
		if elapsed := time.Since(start); elapsed >= g.cfg.InvestigationTimeLimit {
			g.tripLocked(BreakerTime, fmt.Sprintf(
				"investigation %s ran %s, limit %s", investigationID, elapsed.Round(time.Second), g.cfg.InvestigationTimeLimit))
			return false
		}
	}
	g.checkSessionBudgetsLocked()
	_, open := g.tripped[BreakerTime]
	return !open
}

func (g *Guard) checkSessionBudgetsLocked() {
	if g.cfg.SessionTimeLimit > 0 && time.Since(g.sessionStart) >= g.cfg.SessionTimeLimit {
		g.tripLocked(BreakerTime, fmt.Sprintf("session ran past limit %s", g.cfg.SessionTimeLimit))
	}
}

// RecordResult feeds the error breaker. Consecutive failures inside the
// 60s window or a high rolling error rate trip it.
func (g *Guard) RecordResult(err error, detail string) {
	if !g.mode.IsLive() {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().UTC()
	isErr := err != nil

	g.recentResults = append(g.recentResults, isErr)
	if len(g.recentResults) > 20 {
		g.recentResults = g.recentResults[1:]
	}

	if isErr {
		if now.Sub(g.lastErrorAt) <= errorWindow {
			g.consecutiveErrors++
		} else {
			g.consecutiveErrors = 1
		}
		g.lastErrorAt = now
		g.lastErrs = append(g.lastErrs, fmt.Sprintf("%s: %v", detail, err))
		if len(g.lastErrs) > 10 {
			g.lastErrs = g.lastErrs[1:]
		}

		if g.cfg.ConsecutiveErrorLimit > 0 && g.consecutiveErrors >= g.cfg.ConsecutiveErrorLimit {
			g.tripLocked(BreakerError, fmt.Sprintf(
				"%d consecutive errors within %s", g.consecutiveErrors, errorWindow))
			return
		}
	} else {
		g.consecutiveErrors = 0
	}

	if g.cfg.ErrorRateThreshold > 0 && len(g.recentResults) >= 10 {
		errs := 0
		for _, e := range g.recentResults {
			if e {
				errs++
			}
		}
		rate := float64(errs) / float64(len(g.recentResults))
		if rate >= g.cfg.ErrorRateThreshold {
			g.tripLocked(BreakerError, fmt.Sprintf("rolling error rate %.2f over threshold %.2f",
				rate, g.cfg.ErrorRateThreshold))
		}
	}
}

// KillSwitch trips the manual breaker
func (g *Guard) KillSwitch(reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if reason == "" {
		reason = "manual kill switch activated"
	}
	g.tripLocked(BreakerManual, reason)
}

// Tripped reports whether a specific breaker is open
func (g *Guard) Tripped(b Breaker) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	reason, ok := g.tripped[b]
	return reason, ok
}

// Reset closes a breaker. Manual operator action only.
func (g *Guard) Reset(b Breaker) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.tripped, b)
	if b == BreakerError {
		g.consecutiveErrors = 0
		g.recentResults = nil
	}
	logging.Info("breaker reset", "breaker", string(b))
}

func (g *Guard) tripLocked(b Breaker, reason string) {
	if _, open := g.tripped[b]; open {
		return
	}
	g.tripped[b] = reason
	logging.Error("circuit breaker tripped", "breaker", string(b), "reason", reason)

	callbacks := append([]EmergencyCallback(nil), g.callbacks...)
	go func() {
		for _, cb := range callbacks {
			cb(b, reason)
		}
	}()
}

// Snapshot is the emergency-stop record written to disk
type Snapshot struct {
	Timestamp     time.Time              `json:"timestamp"`
	Breaker       Breaker                `json:"breaker"`
	Reason        string                 `json:"reason"`
	SessionCost   float64                `json:"session_cost_usd"`
	CostBySource  map[CostSource]float64 `json:"cost_by_source"`
	CreditsUsed   float64                `json:"credits_used"`
	TokensUsed    int64                  `json:"tokens_used"`
	CallsMade     int64                  `json:"calls_made"`
	LastErrors    []string               `json:"last_errors"`
	BreakerStates map[Breaker]string     `json:"breaker_states"`
	SafetyLevel   string                 `json:"safety_level"`
	StatePayload  json.RawMessage        `json:"state,omitempty"`
}

// EmergencyStop writes a snapshot of the tripped condition plus the
// current investigation state under the emergency directory
func (g *Guard) EmergencyStop(b Breaker, reason string, level safety.Level, statePayload json.RawMessage) (string, error) {
	g.mu.Lock()
	snap := Snapshot{
		Timestamp:     time.Now().UTC(),
		Breaker:       b,
		Reason:        reason,
		SessionCost:   g.sessionCost,
		CostBySource:  copySourceMap(g.costBySrc),
		CreditsUsed:   g.creditsUsed,
		TokensUsed:    g.tokensUsed,
		CallsMade:     g.callsMade,
		LastErrors:    append([]string(nil), g.lastErrs...),
		BreakerStates: copyBreakerMap(g.tripped),
		SafetyLevel:   string(level),
		StatePayload:  statePayload,
	}
	g.mu.Unlock()

	dir := g.cfg.EmergencyStateDir
	if dir == "" {
		dir = "emergency_states"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create emergency dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("emergency_%s_%s.json",
		b, snap.Timestamp.Format("20060102T150405")))
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write emergency snapshot: %w", err)
	}

	logging.Error("emergency stop snapshot written", "path", path, "breaker", string(b))
	return path, nil
}

func copySourceMap(m map[CostSource]float64) map[CostSource]float64 {
	c := make(map[CostSource]float64, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

func copyBreakerMap(m map[Breaker]string) map[Breaker]string {
	c := make(map[Breaker]string, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
