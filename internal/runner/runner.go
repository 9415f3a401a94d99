// Package runner implements the Task Runner: it provisions a sandbox for a
// task, spawns the external agent subprocess against it with a wall-clock
// timeout, and reports the outcome as an ExecutionResult — never as a Go
// error, so a batch of concurrent task failures never aborts its siblings
// (spec.md §4.4).
package runner

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nichiki/claude-orchestrator/internal/core"
)

// DefaultTimeout is the wall-clock budget for a single agent invocation when
// the caller does not configure one (spec.md §4.4).
const DefaultTimeout = 3600 * time.Second

// claudeOutputFile is the name of the file a successful invocation's stdout
// is written to, verbatim, inside the sandbox.
const claudeOutputFile = "claude_output.txt"

// ArtifactEngine is the subset of the Workspace Engine the Task Runner
// depends on: sandbox provisioning. Declared here (rather than imported
// from internal/workspace) so runner has no compile-time dependency on the
// workspace package; *workspace.Engine satisfies this interface.
type ArtifactEngine interface {
	PrepareSandbox(taskID string) (string, error)
}

// TaskInput is everything the runner needs to invoke the agent for one
// task: its id, prompt, and any extra context files.
type TaskInput struct {
	TaskID        string
	Name          string
	Prompt        string
	ContextFiles   []string
	TimeoutOverride time.Duration // zero means use the runner's configured default
}

// ExecutionResult is the outcome of one Execute call. Spec.md §4.4 step 7.
type ExecutionResult struct {
	TaskID        string
	Success       bool
	Stdout        string
	Stderr        string
	Error         string
	Artifacts     []string
	ExecutionTime time.Duration
	Workspace     string
}

// Runner is the Task Runner: a counting semaphore of size MaxConcurrent
// gates every agent invocation it makes (spec.md §4.4, §5).
type Runner struct {
	AgentPath      string
	DefaultTimeout time.Duration
	MaxConcurrent  int
	Logger         *slog.Logger
}

// New constructs a Runner. maxConcurrent <= 0 is treated as 1 (a runner
// with no concurrency budget could never make progress).
func New(agentPath string, maxConcurrent int, timeout time.Duration, logger *slog.Logger) *Runner {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		AgentPath:      agentPath,
		DefaultTimeout: timeout,
		MaxConcurrent:  maxConcurrent,
		Logger:         logger,
	}
}

// Execute provisions a sandbox via engine, invokes the agent subprocess
// against it, and returns the outcome. It never returns a Go error: every
// failure mode (missing engine, spawn failure, timeout, non-zero exit) is
// captured into the returned ExecutionResult, per spec.md §4.4/§7.
func (r *Runner) Execute(ctx context.Context, input TaskInput, engine ArtifactEngine) ExecutionResult {
	start := time.Now()

	if engine == nil {
		return ExecutionResult{
			TaskID:        input.TaskID,
			Success:       false,
			Error:         "ArtifactManager required.",
			ExecutionTime: time.Since(start),
		}
	}

	sandbox, err := engine.PrepareSandbox(input.TaskID)
	if err != nil {
		return ExecutionResult{
			TaskID:        input.TaskID,
			Success:       false,
			Error:         fmt.Sprintf("preparing sandbox: %v", err),
			ExecutionTime: time.Since(start),
		}
	}

	timeout := input.TimeoutOverride
	if timeout <= 0 {
		timeout = r.DefaultTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := []string{"--print", input.Prompt}
	for _, f := range input.ContextFiles {
		args = append(args, "-f", f)
	}

	// #nosec G204 -- agent path is operator-configured, not user input
	cmd := exec.CommandContext(runCtx, r.AgentPath, args...)
	cmd.Dir = sandbox
	// Once the agent is killed, stop waiting for its output pipes after a
	// short grace period: a grandchild that inherited them would otherwise
	// hold Wait open until it exits on its own.
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.Logger.Debug("runner: spawning agent",
		"task_id", input.TaskID, "agent", r.AgentPath, "workspace", sandbox, "timeout", timeout)

	runErr := cmd.Run()
	elapsed := time.Since(start)

	if runCtx.Err() == context.DeadlineExceeded {
		domErr := core.ErrAgentTimeout(input.TaskID, timeout.Seconds())
		return ExecutionResult{
			TaskID:        input.TaskID,
			Success:       false,
			Stdout:        stdout.String(),
			Stderr:        stderr.String(),
			Error:         domErr.Message,
			ExecutionTime: elapsed,
			Workspace:     sandbox,
		}
	}

	if runErr != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if ok := asExitError(runErr, &exitErr); ok {
			exitCode = exitErr.ExitCode()
		}
		domErr := core.ErrAgentFailure(input.TaskID, exitCode)
		return ExecutionResult{
			TaskID:        input.TaskID,
			Success:       false,
			Stdout:        stdout.String(),
			Stderr:        stderr.String(),
			Error:         domErr.Message,
			ExecutionTime: elapsed,
			Workspace:     sandbox,
		}
	}

	if err := os.WriteFile(filepath.Join(sandbox, claudeOutputFile), stdout.Bytes(), 0o644); err != nil {
		r.Logger.Warn("runner: failed to write claude_output.txt", "task_id", input.TaskID, "error", err)
	}

	artifacts, err := collectArtifactPaths(sandbox)
	if err != nil {
		r.Logger.Warn("runner: failed to list sandbox artifacts", "task_id", input.TaskID, "error", err)
	}

	// Best-effort, non-contractual salvage: if the agent produced no files
	// of its own, look for a fenced code block in stdout and write it out.
	// Spec.md §4.4 step 6 / §9 explicitly scopes this out of the core
	// contract — failure to salvage is not a runner failure.
	if onlyHousekeepingFiles(artifacts) {
		if salvaged := salvageCodeBlock(stdout.String(), sandbox); salvaged != "" {
			if reArtifacts, err := collectArtifactPaths(sandbox); err == nil {
				artifacts = reArtifacts
			}
		}
	}

	return ExecutionResult{
		TaskID:        input.TaskID,
		Success:       true,
		Stdout:        stdout.String(),
		Stderr:        stderr.String(),
		Artifacts:     artifacts,
		ExecutionTime: elapsed,
		Workspace:     sandbox,
	}
}

func asExitError(err error, target **exec.ExitError) bool {
	ee, ok := err.(*exec.ExitError)
	if ok {
		*target = ee
	}
	return ok
}

// onlyHousekeepingFiles reports whether artifacts contains nothing but
// claude_output.txt and .claude/* paths.
func onlyHousekeepingFiles(artifacts []string) bool {
	for _, a := range artifacts {
		if a == claudeOutputFile {
			continue
		}
		if strings.HasPrefix(a, ".claude/") || a == ".claude" {
			continue
		}
		return false
	}
	return true
}

// BatchExecute fans out Execute concurrently over inputs, bounded by
// r.MaxConcurrent, via errgroup.SetLimit. Each task's failure is captured in
// its own ExecutionResult; the batch as a whole only fails to complete if
// the context is cancelled. Results are returned in input order regardless
// of completion order (spec.md §4.4 "Batch execute").
func (r *Runner) BatchExecute(ctx context.Context, inputs []TaskInput, engine ArtifactEngine) []ExecutionResult {
	results := make([]ExecutionResult, len(inputs))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.MaxConcurrent)

	for i, input := range inputs {
		i, input := i, input
		g.Go(func() error {
			results[i] = r.Execute(gCtx, input, engine)
			return nil
		})
	}

	// Errors are never produced by the goroutines above (failures are
	// captured into results), so Wait only blocks until every slot drains.
	_ = g.Wait()

	return results
}
