package workspace

import (
	"os"
	"path/filepath"
)

// defaultClaudeSettings is written to a freshly provisioned sandbox when no
// project-level `.claude` configuration directory exists at the process's
// working directory. It grants the agent the one permission it needs to do
// any work at all.
const defaultClaudeSettings = `{
  "permissions": {
    "allow": ["Write"]
  }
}
`

// PrepareSandbox provisions a fresh per-task sandbox: a clean copy of the
// shared workspace (or an empty directory if none exists yet), project
// `.claude` configuration seeded or defaulted, an in-memory base snapshot
// recorded for this task, and an on-disk base-snapshot copy for 3-way merge
// ancestry. Returns the sandbox path. Spec.md §4.2.
func (e *Engine) PrepareSandbox(taskID string) (string, error) {
	if err := ValidateTaskID(taskID); err != nil {
		return "", err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	sandbox := e.SandboxDir(taskID)

	if _, err := os.Stat(sandbox); err == nil {
		if err := os.RemoveAll(sandbox); err != nil {
			return "", err
		}
	}
	if err := os.MkdirAll(sandbox, 0o755); err != nil {
		return "", err
	}

	shared := e.SharedDir()
	if _, err := os.Stat(shared); err == nil {
		if err := copyTree(shared, sandbox); err != nil {
			return "", err
		}
	}

	if err := e.seedClaudeConfig(sandbox); err != nil {
		return "", err
	}

	snap, err := TakeSnapshot(sandbox, e.logger)
	if err != nil {
		return "", err
	}
	e.baseSnapshots[taskID] = snap

	anyFile, err := hasAnyFile(sandbox)
	if err != nil {
		return "", err
	}
	if anyFile {
		if err := copyTreeExcluding(sandbox, e.BaseSnapshotDir(taskID)); err != nil {
			return "", err
		}
	}

	return sandbox, nil
}

// seedClaudeConfig copies the process's own `.claude` directory into the
// sandbox if one exists at the current working directory, otherwise writes
// a minimal default settings file.
func (e *Engine) seedClaudeConfig(sandbox string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	src := filepath.Join(cwd, ".claude")
	if info, err := os.Stat(src); err == nil && info.IsDir() {
		return copyTree(src, filepath.Join(sandbox, ".claude"))
	}

	dst := filepath.Join(sandbox, ".claude", "settings.json")
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, []byte(defaultClaudeSettings), 0o644)
}

// ReleaseBaseSnapshot discards the in-memory and on-disk base snapshot for
// a task. Safe to call once that task's integration has completed; calling
// it earlier would break 3-way merge ancestry for an in-flight conflict.
//
// The original source's task-runner cleanup never reaps the base-snapshots
// directory at all (spec.md §9's "probable source bug" list); this method
// exists so the orchestrator can close that gap without changing any
// externally observable behavior (SPEC_FULL.md §12).
func (e *Engine) ReleaseBaseSnapshot(taskID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.baseSnapshots, taskID)

	dir := e.BaseSnapshotDir(taskID)
	if _, err := os.Stat(dir); err == nil {
		return os.RemoveAll(dir)
	}
	return nil
}
