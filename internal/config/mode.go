package config

import (
	"fmt"
	"os"
	"strings"
)

// RunMode represents the execution context of an investigation run
type RunMode string

const (
	// ModeMock runs with deterministic in-process agents and tools.
	// No external services are contacted. Used by the scenario harness.
	ModeMock RunMode = "mock"

	// ModeDemo runs with LLM-backed agents against demo data sources.
	// Cost guard is inactive; limits come from the test column.
	ModeDemo RunMode = "demo"

	// ModeLive runs against production data sources with the cost/time
	// guard active and live limits.
	ModeLive RunMode = "live"
)

// ParseRunMode parses a mode string, tolerating case differences
func ParseRunMode(s string) (RunMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mock", "":
		return ModeMock, nil
	case "demo":
		return ModeDemo, nil
	case "live":
		return ModeLive, nil
	default:
		return "", fmt.Errorf("invalid mode %q (must be mock, demo, or live)", s)
	}
}

// ResolveRunMode determines the run mode, with TEST_MODE taking
// precedence over the configured value. Resolved before any agents
// are instantiated.
func ResolveRunMode(configured RunMode) RunMode {
	if env := os.Getenv("TEST_MODE"); env != "" {
		if mode, err := ParseRunMode(env); err == nil {
			return mode
		}
	}
	if configured == "" {
		return ModeMock
	}
	return configured
}

// IsLive returns true for live runs (cost guard active)
func (m RunMode) IsLive() bool {
	return m == ModeLive
}

// UsesTestLimits returns true if the mode draws from the test limit column
func (m RunMode) UsesTestLimits() bool {
	return m != ModeLive
}

// String returns the string representation of the mode
func (m RunMode) String() string {
	return string(m)
}
