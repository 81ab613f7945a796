package scenarios

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinScenariosPass(t *testing.T) {
	for _, scenario := range Builtin() {
		t.Run(scenario.Name, func(t *testing.T) {
			rep := scenario.Run(context.Background())
			assert.True(t, rep.Passed(), "failures: %v", rep.Failures)
		})
	}
}

func TestByName(t *testing.T) {
	s, ok := ByName("evidence_gated")
	require.True(t, ok)
	assert.Equal(t, "evidence_gated", s.Name)

	_, ok = ByName("no_such_scenario")
	assert.False(t, ok)
}

func TestNamesMatchBuiltinOrder(t *testing.T) {
	names := Names()
	require.Len(t, names, 6)
	assert.Equal(t, "high_confidence_critical_path", names[0])
	assert.Equal(t, "ab_routing", names[5])
}

func TestLoadScenarioFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenarios.yaml")
	content := `
scenarios:
  - name: clean_entity
    description: a benign entity runs to completion
    entity_id: clean-user-12
    entity_type: user_id
    expect:
      risk_score: non_null
      max_risk_score: 0.3
  - name: thin_entity
    entity_id: thin-user-12
    expect:
      risk_score: "null"
      concern_types: [EVIDENCE_INSUFFICIENT]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	for _, scenario := range loaded {
		t.Run(scenario.Name, func(t *testing.T) {
			rep := scenario.Run(context.Background())
			assert.True(t, rep.Passed(), "failures: %v", rep.Failures)
		})
	}
}

func TestLoadRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("scenarios: []"), 0644))
	_, err := Load(empty)
	assert.Error(t, err)

	nameless := filepath.Join(dir, "nameless.yaml")
	require.NoError(t, os.WriteFile(nameless, []byte("scenarios:\n  - entity_id: x\n"), 0644))
	_, err = Load(nameless)
	assert.Error(t, err)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
