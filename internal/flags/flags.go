package flags

import (
	"hash/fnv"
	"os"
	"strings"
	"sync"

	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/logging"
)

// EnvPrefix for environment flag overrides: HYBRID_FLAG_<NAME>=true|false
const EnvPrefix = "HYBRID_FLAG_"

// DeploymentMode controls how a flag rolls out
type DeploymentMode string

const (
	ModeDisabled    DeploymentMode = "DISABLED"
	ModeCanary      DeploymentMode = "CANARY"
	ModeABTest      DeploymentMode = "AB_TEST"
	ModeFullRollout DeploymentMode = "FULL_ROLLOUT"
)

// Well-known flag names
const (
	FlagHybridGraphV1   = "hybrid_graph_v1"
	FlagABTestHybrid    = "ab_test_hybrid_vs_clean"
	FlagEnhancedSafety  = "enhanced_safety_monitoring"
	FlagConfidenceModel = "llm_confidence_assessor"
)

// Flag is one feature flag definition
type Flag struct {
	Name              string         `json:"name"`
	Enabled           bool           `json:"enabled"`
	RolloutPercentage int            `json:"rollout_percentage"`
	DeploymentMode    DeploymentMode `json:"deployment_mode"`
	TestSplit         int            `json:"test_split,omitempty"` // A/B boundary, defaults to 50
	Extras            map[string]any `json:"extras,omitempty"`
}

// FeatureFlags evaluates flags per investigation. Environment overrides
// beat stored definitions and force full rollout either way.
type FeatureFlags struct {
	mu    sync.RWMutex
	flags map[string]Flag
}

// New creates a flag set seeded with defaults
func New() *FeatureFlags {
	return &FeatureFlags{flags: map[string]Flag{
		FlagHybridGraphV1: {
			Name: FlagHybridGraphV1, Enabled: true,
			RolloutPercentage: 100, DeploymentMode: ModeFullRollout,
		},
		FlagABTestHybrid: {
			Name: FlagABTestHybrid, Enabled: false,
			RolloutPercentage: 50, DeploymentMode: ModeABTest, TestSplit: 50,
		},
		FlagEnhancedSafety: {
			Name: FlagEnhancedSafety, Enabled: true,
			RolloutPercentage: 100, DeploymentMode: ModeFullRollout,
		},
		FlagConfidenceModel: {
			Name: FlagConfidenceModel, Enabled: false,
			RolloutPercentage: 10, DeploymentMode: ModeCanary,
		},
	}}
}

// Set installs or replaces a flag definition
func (f *FeatureFlags) Set(flag Flag) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flags[flag.Name] = flag
}

// Get returns a flag definition
func (f *FeatureFlags) Get(name string) (Flag, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	flag, ok := f.flags[name]
	return flag, ok
}

// All returns a copy of every flag definition
func (f *FeatureFlags) All() []Flag {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Flag, 0, len(f.flags))
	for _, flag := range f.flags {
		out = append(out, flag)
	}
	return out
}

// IsEnabled evaluates a flag for one investigation. Deterministic: the
// same investigation id always lands in the same bucket.
func (f *FeatureFlags) IsEnabled(name, investigationID string) bool {
	if forced, ok := envOverride(name); ok {
		return forced
	}

	f.mu.RLock()
	flag, ok := f.flags[name]
	f.mu.RUnlock()
	if !ok {
		return false
	}
	if !flag.Enabled || flag.RolloutPercentage <= 0 || flag.DeploymentMode == ModeDisabled {
		return false
	}
	if flag.RolloutPercentage >= 100 {
		return true
	}
	return bucket(investigationID) < flag.RolloutPercentage
}

// ABAssignment returns "test" or "control" for an A/B flag. The split
// boundary comes from TestSplit (default 50).
func (f *FeatureFlags) ABAssignment(name, investigationID string) string {
	f.mu.RLock()
	flag, ok := f.flags[name]
	f.mu.RUnlock()

	split := 50
	if ok && flag.TestSplit > 0 {
		split = flag.TestSplit
	}
	if bucket(investigationID) < split {
		return "test"
	}
	return "control"
}

// envOverride checks HYBRID_FLAG_<NAME>
func envOverride(name string) (bool, bool) {
	v := os.Getenv(EnvPrefix + strings.ToUpper(name))
	switch strings.ToLower(v) {
	case "true", "1":
		return true, true
	case "false", "0":
		return false, true
	}
	return false, false
}

// bucket hashes an investigation id into [0,100)
func bucket(investigationID string) int {
	h := fnv.New32a()
	h.Write([]byte(investigationID))
	return int(h.Sum32() % 100)
}

// GraphKind names the two execution graphs
type GraphKind string

const (
	GraphHybrid     GraphKind = "hybrid"
	GraphSequential GraphKind = "sequential"
)

// GraphSelector chooses which graph an investigation runs on
type GraphSelector struct {
	flags    *FeatureFlags
	rollback *RollbackTriggers
}

// NewGraphSelector creates a selector
func NewGraphSelector(flags *FeatureFlags, rollback *RollbackTriggers) *GraphSelector {
	return &GraphSelector{flags: flags, rollback: rollback}
}

// Choose picks the graph for an investigation. force, when non-empty,
// wins over everything except an active rollback.
func (g *GraphSelector) Choose(investigationID, entityType, force string) GraphKind {
	if g.rollback != nil && g.rollback.Active() {
		logging.Warn("rollback active, selecting sequential graph",
			"investigation_id", investigationID,
			"reason", g.rollback.Reason())
		return GraphSequential
	}
	if force != "" {
		if GraphKind(force) == GraphHybrid {
			return GraphHybrid
		}
		return GraphSequential
	}
	if g.flags.IsEnabled(FlagHybridGraphV1, investigationID) {
		return GraphHybrid
	}
	if g.flags.IsEnabled(FlagABTestHybrid, investigationID) {
		if g.flags.ABAssignment(FlagABTestHybrid, investigationID) == "test" {
			return GraphHybrid
		}
		return GraphSequential
	}
	return GraphSequential
}
