// Package resolver implements the Conflict Resolver: it never inspects
// semantics itself, only delegates a concurrent write to an external merge
// agent (via a Task Runner of its own) and classifies the result. Spec.md
// §4.3.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nichiki/claude-orchestrator/internal/runner"
	"github.com/nichiki/claude-orchestrator/internal/workspace"
)

// Resolver delegates 2-way and 3-way merges to a sub-agent launched by its
// own Task Runner, rooted at <workspace>/.merge_tasks. It implements
// workspace.Resolver.
type Resolver struct {
	runner *runner.Runner
	root   string // <workspace>/.merge_tasks
	logger *slog.Logger
}

// New constructs a Resolver. mergeTasksRoot should be
// Engine.MergeTasksDir(); r is the Task Runner used to invoke merge
// sub-agents — per spec.md §9 Design Notes this may share the main
// runner's semaphore or use an independently-limited instance.
func New(r *runner.Runner, mergeTasksRoot string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{runner: r, root: mergeTasksRoot, logger: logger}
}

// mergeSandbox is a throwaway ArtifactEngine that hands out a clean
// directory under the resolver's .merge_tasks root — merge sub-agents
// don't need the shared-workspace seeding real tasks get, just an empty
// place to write their answer.
type mergeSandbox struct{ root string }

func (m mergeSandbox) PrepareSandbox(taskID string) (string, error) {
	dir := filepath.Join(m.root, taskID)
	if err := os.RemoveAll(dir); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// mergeTaskID synthesizes a merge task id in the spec's
// "merge_<stem>_<unix_seconds>" shape (spec.md §4.3), extended with a short
// uuid fragment: the spec's scheme alone can collide when two conflicts on
// the same stem resolve within the same wall-clock second, which would
// silently alias two merge sandboxes onto one directory.
func mergeTaskID(filename string) string {
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	return fmt.Sprintf("merge_%s_%d_%s", stem, time.Now().Unix(), uuid.NewString()[:8])
}

// Resolve2 performs a 2-way merge between an existing file and a new one
// with the same destination name. Never returns an error to its caller:
// every failure path degrades to Resolution{Strategy: version} (spec.md
// §4.3 "Failure policy").
func (r *Resolver) Resolve2(existingPath, newPath, taskID string) workspace.Resolution {
	filename := filepath.Base(existingPath)

	existingBody, err := os.ReadFile(existingPath)
	if err != nil {
		return r.versionResult(fmt.Sprintf("reading existing file: %v", err))
	}
	newBody, err := os.ReadFile(newPath)
	if err != nil {
		return r.versionResult(fmt.Sprintf("reading new file: %v", err))
	}

	mergeID := mergeTaskID(filename)
	prompt := twoWayPrompt(filename, string(existingBody), string(newBody))

	return r.invoke(mergeID, filename, prompt)
}

// Resolve3 performs a 3-way merge. basePath is nil when the path did not
// exist in the common ancestor, in which case the prompt's BASE section is
// the literal placeholder spec.md §4.3 specifies.
func (r *Resolver) Resolve3(basePath *string, sharedPath, taskPath, taskID string) workspace.Resolution {
	filename := filepath.Base(sharedPath)

	baseBody := baseAbsentPlaceholder
	if basePath != nil {
		b, err := os.ReadFile(*basePath)
		if err != nil {
			return r.versionResult(fmt.Sprintf("reading base file: %v", err))
		}
		baseBody = string(b)
	}

	sharedBody, err := os.ReadFile(sharedPath)
	if err != nil {
		return r.versionResult(fmt.Sprintf("reading shared file: %v", err))
	}
	taskBody, err := os.ReadFile(taskPath)
	if err != nil {
		return r.versionResult(fmt.Sprintf("reading task file: %v", err))
	}

	mergeID := mergeTaskID(filename)
	prompt := threeWayPrompt(filename, baseBody, string(sharedBody), string(taskBody))

	return r.invoke(mergeID, filename, prompt)
}

// invoke runs the merge sub-agent and classifies its outcome per spec.md
// §4.3 step 4, common to both resolve2 and resolve3.
func (r *Resolver) invoke(mergeID, filename, prompt string) workspace.Resolution {
	sandbox := mergeSandbox{root: r.root}

	result := r.runner.Execute(context.Background(), runner.TaskInput{
		TaskID: mergeID,
		Name:   "Merge " + filename,
		Prompt: prompt,
	}, sandbox)

	if !result.Success {
		return r.versionResult(result.Error)
	}

	cannotMergePath := filepath.Join(result.Workspace, cannotMergeFilename)
	if body, err := os.ReadFile(cannotMergePath); err == nil {
		return workspace.Resolution{Strategy: workspace.StrategyVersion, Message: string(body)}
	}

	mergedPath := filepath.Join(result.Workspace, filename)
	if _, err := os.Stat(mergedPath); err == nil {
		return workspace.Resolution{Strategy: workspace.StrategyMerged, MergedPath: mergedPath}
	}

	return r.versionResult("no output file")
}

func (r *Resolver) versionResult(message string) workspace.Resolution {
	r.logger.Warn("resolver: falling back to versioned coexistence", "reason", message)
	return workspace.Resolution{Strategy: workspace.StrategyVersion, Message: message}
}
