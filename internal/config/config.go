// Package config loads the orchestrator's configuration from a YAML file,
// environment variables, and CLI flags, merged with flags taking
// precedence — grounded on the teacher's internal/config package (same
// viper-based layering, same mapstructure tag convention).
package config

import "time"

// Config holds every tunable of the orchestrator. Field names mirror the
// CLI flags and config-file keys documented in SPEC_FULL.md §9.3.
type Config struct {
	Workspace  WorkspaceConfig  `mapstructure:"workspace"`
	Agent      AgentConfig      `mapstructure:"agent"`
	Run        RunConfig        `mapstructure:"run"`
	Log        LogConfig        `mapstructure:"log"`
}

// WorkspaceConfig configures the shared workspace tree and state file.
type WorkspaceConfig struct {
	Root      string `mapstructure:"root"`
	StateFile string `mapstructure:"state_file"`
	// HistoryDB is the path to the SQLite execution-history index
	// (SPEC_FULL.md §10.1). Empty disables history recording.
	HistoryDB string `mapstructure:"history_db"`
}

// AgentConfig configures the external agent subprocess the Task Runner
// invokes.
type AgentConfig struct {
	Path    string        `mapstructure:"path"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// RunConfig configures one orchestrator run.
type RunConfig struct {
	MaxConcurrent int  `mapstructure:"max_concurrent"`
	DryRun        bool `mapstructure:"dry_run"`
	FailFast      bool `mapstructure:"fail_fast"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Defaults returns the configuration baseline before file/env/flag layers
// are applied. Spec.md §5 fixes MaxConcurrent's default at 3; §4.4 fixes
// the agent timeout default at 3600s.
func Defaults() Config {
	return Config{
		Workspace: WorkspaceConfig{
			Root:      "./orchestrator-workspace",
			StateFile: "",
			HistoryDB: "",
		},
		Agent: AgentConfig{
			Path:    "claude",
			Timeout: 3600 * time.Second,
		},
		Run: RunConfig{
			MaxConcurrent: 3,
			DryRun:        false,
			FailFast:      false,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}
