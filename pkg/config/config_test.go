package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, 8000, c.MaxTokens)
	assert.Equal(t, 0.5, c.TargetPressure)
	assert.Equal(t, 100, c.SummaryBudget)
	assert.Equal(t, 0.05, c.BranchBudget)
	assert.Equal(t, 3600, c.CheckpointTTLSeconds)
	assert.Equal(t, time.Hour, c.CheckpointTTL())
	assert.NoError(t, c.Validate())
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chronicle.yaml")
	data := "max_tokens: 16000\ntarget_pressure: 0.3\nprotect_patterns:\n  - critic-*\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 16000, c.MaxTokens)
	assert.Equal(t, 0.3, c.TargetPressure)
	assert.Equal(t, []string{"critic-*"}, c.ProtectPatterns)
	// Unset fields keep their defaults.
	assert.Equal(t, 100, c.SummaryBudget)
	assert.Equal(t, 0.05, c.BranchBudget)
}

func TestLoadRejectsMalformedAndInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"malformed yaml", "max_tokens: [unclosed"},
		{"zero max_tokens", "max_tokens: 0"},
		{"pressure over one", "target_pressure: 1.5"},
		{"negative branch budget", "branch_budget: -0.1"},
		{"zero ttl", "checkpoint_ttl_seconds: 0"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "chronicle.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tc.data), 0o600))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	c := Default()
	c.MaxTokens = 12000
	c.ProtectPatterns = []string{"planner", "critic-*"}

	path := filepath.Join(t.TempDir(), "nested", "chronicle.yaml")
	require.NoError(t, c.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestSaveRejectsInvalid(t *testing.T) {
	c := Default()
	c.SummaryBudget = -1
	assert.Error(t, c.Save(filepath.Join(t.TempDir(), "chronicle.yaml")))
}
