package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_Defaults_NoFileNoEnv(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer func() { _ = os.Chdir(wd) }()

	l := NewLoader()
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Run.MaxConcurrent)
	assert.Equal(t, "claude", cfg.Agent.Path)
	assert.Equal(t, 3600*time.Second, cfg.Agent.Timeout)
	assert.Equal(t, "auto", cfg.Log.Format)
}

func TestLoader_ConfigFile_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
run:
  max_concurrent: 7
  dry_run: true
log:
  level: debug
`), 0o644))

	l := NewLoader().WithConfigFile(path)
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Run.MaxConcurrent)
	assert.True(t, cfg.Run.DryRun)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "claude", cfg.Agent.Path, "unset keys keep their default")
}

func TestLoader_EnvVar_OverridesFileAndDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
run:
  max_concurrent: 7
`), 0o644))

	t.Setenv("ORCH_RUN_MAX_CONCURRENT", "9")

	l := NewLoader().WithConfigFile(path)
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, 9, cfg.Run.MaxConcurrent)
}

func TestLoader_MissingConfigFile_FallsBackToDefaults(t *testing.T) {
	l := NewLoader().WithConfigFile(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Run.MaxConcurrent)
}
