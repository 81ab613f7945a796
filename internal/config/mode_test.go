package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRunMode(t *testing.T) {
	tests := []struct {
		input   string
		want    RunMode
		wantErr bool
	}{
		{"mock", ModeMock, false},
		{"", ModeMock, false},
		{"DEMO", ModeDemo, false},
		{" live ", ModeLive, false},
		{"production", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			mode, err := ParseRunMode(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, mode)
		})
	}
}

func TestResolveRunModeEnvPrecedence(t *testing.T) {
	t.Setenv("TEST_MODE", "demo")
	assert.Equal(t, ModeDemo, ResolveRunMode(ModeLive))

	t.Setenv("TEST_MODE", "not-a-mode")
	assert.Equal(t, ModeLive, ResolveRunMode(ModeLive))

	t.Setenv("TEST_MODE", "")
	assert.Equal(t, ModeMock, ResolveRunMode(""))
}

func TestModeLimitsSelection(t *testing.T) {
	assert.True(t, ModeLive.IsLive())
	assert.False(t, ModeMock.IsLive())
	assert.True(t, ModeDemo.UsesTestLimits())
	assert.False(t, ModeLive.UsesTestLimits())
}

func TestMaskAPIKey(t *testing.T) {
	assert.Equal(t, "(not set)", MaskAPIKey(""))
	assert.Equal(t, "***", MaskAPIKey("sk-short"))
	assert.Equal(t, "sk-proj...cdef", MaskAPIKey("sk-proj-1234567890abcdef"))
}
