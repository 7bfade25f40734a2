// Package config loads chronicle's core defaults from a YAML file.
// Every field has a usable default; a missing config file is not an error.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Core holds the tunables for the conversation log core.
type Core struct {
	// MaxTokens is the default token budget for new logs.
	MaxTokens int `yaml:"max_tokens"`

	// TargetPressure is the pressure Compress aims for.
	TargetPressure float64 `yaml:"target_pressure"`

	// SummaryBudget is the per-turn token budget for Required-turn summaries.
	SummaryBudget int `yaml:"summary_budget"`

	// BranchBudget is the default entropy budget for new branches.
	BranchBudget float64 `yaml:"branch_budget"`

	// CheckpointDir is where the reaper persists checkpoint files.
	CheckpointDir string `yaml:"checkpoint_dir"`

	// CheckpointTTLSeconds is the default checkpoint lifetime.
	CheckpointTTLSeconds int `yaml:"checkpoint_ttl_seconds"`

	// ProtectPatterns are agent-name globs the reaper never evicts.
	ProtectPatterns []string `yaml:"protect_patterns"`
}

// Default returns the built-in configuration.
func Default() Core {
	return Core{
		MaxTokens:            8000,
		TargetPressure:       0.5,
		SummaryBudget:        100,
		BranchBudget:         0.05,
		CheckpointDir:        defaultCheckpointDir(),
		CheckpointTTLSeconds: 3600,
	}
}

func defaultCheckpointDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".chronicle/checkpoints"
	}
	return filepath.Join(homeDir, ".chronicle", "checkpoints")
}

// CheckpointTTL returns the configured TTL as a duration.
func (c Core) CheckpointTTL() time.Duration {
	return time.Duration(c.CheckpointTTLSeconds) * time.Second
}

// Validate rejects values the core cannot operate with.
func (c Core) Validate() error {
	if c.MaxTokens <= 0 {
		return fmt.Errorf("config: max_tokens must be positive, got %d", c.MaxTokens)
	}
	if c.TargetPressure <= 0 || c.TargetPressure > 1 {
		return fmt.Errorf("config: target_pressure must be in (0, 1], got %g", c.TargetPressure)
	}
	if c.SummaryBudget <= 0 {
		return fmt.Errorf("config: summary_budget must be positive, got %d", c.SummaryBudget)
	}
	if c.BranchBudget <= 0 || c.BranchBudget > 1 {
		return fmt.Errorf("config: branch_budget must be in (0, 1], got %g", c.BranchBudget)
	}
	if c.CheckpointTTLSeconds <= 0 {
		return fmt.Errorf("config: checkpoint_ttl_seconds must be positive, got %d", c.CheckpointTTLSeconds)
	}
	return nil
}

// Load reads configuration from a YAML file, filling unset fields with
// defaults. A missing file yields the defaults; a malformed or invalid file
// is an error.
func Load(path string) (Core, error) {
	c := Default()

	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return Core{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return Core{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return Core{}, err
	}
	return c, nil
}

// Save writes the configuration to a YAML file.
func (c Core) Save(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("config: init directory: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
