package flags

import (
	"fmt"
	"sync"

	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/logging"
)

// RollbackThresholds define when the hybrid graph gets pulled
type RollbackThresholds struct {
	ErrorRate              float64 // fraction of runs ending FAILED
	FailureRate            float64 // fraction of runs not completing at all
	SafetyOverrideRate     float64 // average overrides per run
	PerformanceDegradation float64 // mean duration growth factor vs baseline
	MinSample              int     // runs observed before thresholds apply
}

// DefaultRollbackThresholds returns the production defaults
func DefaultRollbackThresholds() RollbackThresholds {
	return RollbackThresholds{
		ErrorRate:              0.25,
		FailureRate:            0.10,
		SafetyOverrideRate:     2.0,
		PerformanceDegradation: 2.0,
		MinSample:              10,
	}
}

// RollbackTriggers watches hybrid-graph health and latches a rollback
// when any threshold is crossed. The latch must be cleared explicitly.
type RollbackTriggers struct {
	mu         sync.Mutex
	thresholds RollbackThresholds

	runs             int
	errored          int
	failed           int
	overrides        int
	totalDurationMS  int64
	baselineDuration int64

	active bool
	reason string
}

// NewRollbackTriggers creates a monitor with the given thresholds
func NewRollbackTriggers(t RollbackThresholds) *RollbackTriggers {
	return &RollbackTriggers{thresholds: t}
}

// SetBaselineDuration seeds the expected mean duration for the
// degradation check; zero disables it
func (r *RollbackTriggers) SetBaselineDuration(ms int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.baselineDuration = ms
}

// RecordRun feeds one finished hybrid run into the monitor
func (r *RollbackTriggers) RecordRun(errored, failed bool, safetyOverrides int, durationMS int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.runs++
	if errored {
		r.errored++
	}
	if failed {
		r.failed++
	}
	r.overrides += safetyOverrides
	r.totalDurationMS += durationMS

	if r.active || r.runs < r.thresholds.MinSample {
		return
	}

	sample := float64(r.runs)
	switch {
	case float64(r.errored)/sample >= r.thresholds.ErrorRate:
		r.trip(fmt.Sprintf("error rate %.2f over threshold %.2f", float64(r.errored)/sample, r.thresholds.ErrorRate))
	case float64(r.failed)/sample >= r.thresholds.FailureRate:
		r.trip(fmt.Sprintf("failure rate %.2f over threshold %.2f", float64(r.failed)/sample, r.thresholds.FailureRate))
	case float64(r.overrides)/sample >= r.thresholds.SafetyOverrideRate:
		r.trip(fmt.Sprintf("safety override rate %.2f over threshold %.2f", float64(r.overrides)/sample, r.thresholds.SafetyOverrideRate))
	case r.baselineDuration > 0 && float64(r.totalDurationMS)/sample >= float64(r.baselineDuration)*r.thresholds.PerformanceDegradation:
		r.trip(fmt.Sprintf("mean duration %.0fms degraded past %.1fx baseline",
			float64(r.totalDurationMS)/sample, r.thresholds.PerformanceDegradation))
	}
}

func (r *RollbackTriggers) trip(reason string) {
	r.active = true
	r.reason = reason
	logging.Error("hybrid graph rollback triggered", "reason", reason, "runs", r.runs)
}

// Active reports whether a rollback is latched
func (r *RollbackTriggers) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Reason returns the latched rollback reason
func (r *RollbackTriggers) Reason() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reason
}

// Clear resets the latch and the counters. Requires an explicit operator
// action; rollbacks never clear themselves.
func (r *RollbackTriggers) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = false
	r.reason = ""
	r.runs = 0
	r.errored = 0
	r.failed = 0
	r.overrides = 0
	r.totalDurationMS = 0
	logging.Info("hybrid graph rollback cleared")
}
