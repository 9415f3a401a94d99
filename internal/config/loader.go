package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading from a file, environment variables
// (ORCH_ prefix), and CLI flags bound onto its viper instance — grounded on
// internal/config/loader.go's Loader, trimmed to this domain's smaller
// config surface.
type Loader struct {
	v          *viper.Viper
	configFile string
}

// NewLoader creates a loader with its own viper instance.
func NewLoader() *Loader {
	return &Loader{v: viper.New()}
}

// NewLoaderWithViper creates a loader around an existing viper instance,
// letting the CLI layer bind flags onto it before Load runs.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{v: v}
}

// WithConfigFile sets an explicit config file path. If unset, Load searches
// for .claude-orchestrator/config.yaml under the current directory.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// Viper returns the underlying viper instance, for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

func (l *Loader) setDefaults(d Config) {
	l.v.SetDefault("workspace.root", d.Workspace.Root)
	l.v.SetDefault("workspace.state_file", d.Workspace.StateFile)
	l.v.SetDefault("workspace.history_db", d.Workspace.HistoryDB)
	l.v.SetDefault("agent.path", d.Agent.Path)
	l.v.SetDefault("agent.timeout", d.Agent.Timeout)
	l.v.SetDefault("run.max_concurrent", d.Run.MaxConcurrent)
	l.v.SetDefault("run.dry_run", d.Run.DryRun)
	l.v.SetDefault("run.fail_fast", d.Run.FailFast)
	l.v.SetDefault("log.level", d.Log.Level)
	l.v.SetDefault("log.format", d.Log.Format)
}

// Load reads defaults, then a config file (if present), then ORCH_-prefixed
// environment variables, then any CLI flags already bound onto the viper
// instance — each layer overriding the last.
func (l *Loader) Load() (*Config, error) {
	l.setDefaults(Defaults())

	l.v.SetEnvPrefix("ORCH")
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName("config")
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(".claude-orchestrator")
	}

	if err := l.v.ReadInConfig(); err != nil {
		_, notFound := err.(viper.ConfigFileNotFoundError)
		switch {
		case notFound:
			// No file found on the search path: fall back to defaults.
		case errors.Is(err, os.ErrNotExist):
			// Explicit config file path that does not exist: same fallback.
		default:
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}
