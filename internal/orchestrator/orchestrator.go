// Package orchestrator drives the system: it owns the run() event loop
// that ties the Graph Engine, Workspace Engine, Task Runner, and Conflict
// Resolver together, persisting lifecycle state and emitting progress
// events as it goes (spec.md §4.5).
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nichiki/claude-orchestrator/internal/logging"
	"github.com/nichiki/claude-orchestrator/internal/resolver"
	"github.com/nichiki/claude-orchestrator/internal/runner"
	"github.com/nichiki/claude-orchestrator/internal/wbs"
	"github.com/nichiki/claude-orchestrator/internal/workspace"
)

// dryRunSleep is how long a dry-run "execution" pretends to take.
const dryRunSleep = 50 * time.Millisecond

// Options configures an Orchestrator. Mirrors spec.md §4.5's constructor
// parameters plus the agent binary details the Task Runner needs.
type Options struct {
	WorkspaceRoot string
	StateFile     string // empty disables state persistence
	AgentPath     string
	AgentTimeout  time.Duration
	MaxConcurrent int
	// MergeMaxConcurrent bounds the merge sub-agent runner independently of
	// MaxConcurrent (spec.md §5: "merges use a separate runner instance
	// with its own independent limit by default"). Zero means reuse
	// MaxConcurrent.
	MergeMaxConcurrent int
	DryRun             bool
	FailFast           bool
	// History, if non-nil, additionally records every task outcome to the
	// execution history index (SPEC_FULL.md §10.1). Optional.
	History *workspace.History
}

// Orchestrator is the Orchestrator component (spec.md §4.5).
type Orchestrator struct {
	graph  *wbs.Graph
	engine *workspace.Engine
	runner *runner.Runner
	logger *logging.Logger
	events *bus

	statePath string
	dryRun    bool
	failFast  bool
	history   *workspace.History
	runID     string

	// completed records the ExecutionResult of every successfully
	// completed task, keyed by task id, so the final artifact pass can
	// walk each task's actual produced-artifact list instead of
	// re-deriving it from the sandbox on disk.
	completed map[string]runner.ExecutionResult

	// simulatedFailure, if set, makes dry-run executions of the named task
	// id fail instead of succeeding — the test hook spec.md §4.5 names
	// ("Dry-run semantics... a test hook may mark a specific task id as
	// simulated-failure").
	simulatedFailure string
}

// New loads the WBS at wbsPath, wires a Workspace Engine, Task Runner, and
// Conflict Resolver per opts, and returns a ready-to-run Orchestrator.
func New(wbsPath string, opts Options, logger *logging.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	graph, err := wbs.Load(wbsPath)
	if err != nil {
		return nil, err
	}

	engine := workspace.NewEngine(opts.WorkspaceRoot, nil, logger.Logger)

	mainRunner := runner.New(opts.AgentPath, opts.MaxConcurrent, opts.AgentTimeout, logger.Logger)

	mergeConcurrency := opts.MergeMaxConcurrent
	if mergeConcurrency <= 0 {
		mergeConcurrency = opts.MaxConcurrent
	}
	mergeRunner := runner.New(opts.AgentPath, mergeConcurrency, opts.AgentTimeout, logger.Logger)
	res := resolver.New(mergeRunner, engine.MergeTasksDir(), logger.Logger)
	engine.SetResolver(res)

	if err := engine.LoadRegistryFile(); err != nil {
		return nil, fmt.Errorf("loading artifact registry: %w", err)
	}

	return &Orchestrator{
		graph:     graph,
		engine:    engine,
		runner:    mainRunner,
		logger:    logger,
		events:    newBus(64),
		statePath: opts.StateFile,
		dryRun:    opts.DryRun,
		failFast:  opts.FailFast,
		history:   opts.History,
		runID:     uuid.NewString(),
		completed: make(map[string]runner.ExecutionResult),
	}, nil
}

// SetSimulatedFailure marks taskID to fail during dry-run execution,
// regardless of its actual prompt. Test-only hook (spec.md §4.5).
func (o *Orchestrator) SetSimulatedFailure(taskID string) {
	o.simulatedFailure = taskID
}

// Subscribe returns a channel of progress events for this run.
func (o *Orchestrator) Subscribe() <-chan Event {
	return o.events.Subscribe()
}

// Graph exposes the underlying Graph Engine, for status reporting.
func (o *Orchestrator) Graph() *wbs.Graph { return o.graph }

func (o *Orchestrator) summary() *Summary {
	s := o.graph.Summary()
	return &Summary{
		Total:      s.Total,
		Pending:    s.Pending,
		InProgress: s.InProgress,
		Completed:  s.Completed,
		Failed:     s.Failed,
	}
}

func (o *Orchestrator) publish(e Event) {
	e.Timestamp = time.Now()
	o.events.Publish(e)
}

// Run executes the run() loop (spec.md §4.5): resume from any persisted
// state, drive batches to completion, and perform a final artifact
// collection pass. Returns the final Summary; a non-nil error only occurs
// under fail-fast or a load-time failure.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	defer o.events.Close()

	if o.statePath != "" {
		state, err := loadState(o.statePath)
		if err != nil {
			return nil, fmt.Errorf("loading state file: %w", err)
		}
		if state != nil {
			for id, st := range state.TaskStatus {
				if _, ok := o.graph.Task(id); !ok {
					continue
				}
				if err := o.graph.Update(id, st); err != nil {
					return nil, err
				}
			}
		}
	}

	o.publish(Event{Type: EventProjectStarted, Summary: o.summary()})

	for !o.graph.Done() {
		ready := o.graph.Runnable()
		if len(ready) == 0 {
			if len(o.graph.FailedTasks()) > 0 {
				o.logger.Warn("orchestrator: stuck with failed tasks", "failed", o.graph.FailedTasks())
				if o.failFast {
					return o.summary(), fmt.Errorf("run halted: tasks failed: %s", strings.Join(o.graph.FailedTasks(), ", "))
				}
				break
			}
			// Quiescent but incomplete: shouldn't happen absent
			// cancellation, but there is no runnable work left.
			break
		}

		inputs := make([]runner.TaskInput, len(ready))
		for i, t := range ready {
			inputs[i] = runner.TaskInput{TaskID: t.ID, Name: t.Name, Prompt: t.Prompt}
			if err := o.graph.Update(t.ID, wbs.StateInProgress); err != nil {
				return nil, err
			}
			o.publish(Event{Type: EventTaskStarted, TaskID: t.ID})
		}
		if err := saveState(o.statePath, o.graph); err != nil {
			o.logger.Warn("orchestrator: failed to persist state", "error", err)
		}

		var results []runner.ExecutionResult
		if o.dryRun {
			results = o.dryRunBatch(inputs)
		} else {
			results = o.runner.BatchExecute(ctx, inputs, o.engine)
		}

		anyFailed := false
		for _, res := range results {
			started := time.Now().Add(-res.ExecutionTime)

			if res.Success {
				if err := o.graph.Update(res.TaskID, wbs.StateCompleted); err != nil {
					return nil, err
				}
				o.publish(Event{Type: EventTaskCompleted, TaskID: res.TaskID})
				o.record(res.TaskID, "completed", started, "")
				o.completed[res.TaskID] = res

				if !o.dryRun {
					o.integrate(res)
				}
			} else {
				anyFailed = true
				if err := o.graph.Update(res.TaskID, wbs.StateFailed); err != nil {
					return nil, err
				}
				o.publish(Event{Type: EventTaskFailed, TaskID: res.TaskID, Error: res.Error})
				o.record(res.TaskID, "failed", started, res.Error)
			}

			if err := saveState(o.statePath, o.graph); err != nil {
				o.logger.Warn("orchestrator: failed to persist state", "error", err)
			}
		}

		o.publish(Event{Type: EventProgressUpdate, Summary: o.summary()})

		if o.failFast && anyFailed {
			return o.summary(), fmt.Errorf("run halted (fail-fast): a task in this batch failed")
		}
	}

	o.publish(Event{Type: EventProjectComplete, Summary: o.summary()})

	if o.graph.Summary().Completed > 0 {
		if err := o.collectFinalArtifacts(); err != nil {
			o.logger.Warn("orchestrator: final artifact collection failed", "error", err)
		}
	}

	return o.summary(), nil
}

// integrate folds a successful task's sandbox into the shared workspace,
// registers its artifacts, and releases the task's base snapshot — the
// base-snapshot reaping spec.md §9 flags as a probable unbounded-growth bug
// (SPEC_FULL.md §12).
func (o *Orchestrator) integrate(res runner.ExecutionResult) {
	counts, err := o.engine.Integrate(res.TaskID)
	if err != nil {
		o.logger.Error("orchestrator: integration failed", "task_id", res.TaskID, "error", err)
		return
	}
	o.logger.Info("orchestrator: integrated task",
		"task_id", res.TaskID, "new", counts.New, "modified", counts.Modified,
		"conflict", counts.Conflict, "deleted", counts.Deleted)

	if task, ok := o.graph.Task(res.TaskID); ok {
		if _, err := o.engine.RegisterTaskArtifacts(res.TaskID, task.Name, res.Workspace); err != nil {
			o.logger.Warn("orchestrator: registering artifacts failed", "task_id", res.TaskID, "error", err)
		}
	}

	if err := o.engine.ReleaseBaseSnapshot(res.TaskID); err != nil {
		o.logger.Warn("orchestrator: releasing base snapshot failed", "task_id", res.TaskID, "error", err)
	}
}

func (o *Orchestrator) record(taskID, status string, started time.Time, errMsg string) {
	if o.history == nil {
		return
	}
	if err := o.history.Record(o.runID, taskID, status, started, time.Now(), errMsg); err != nil {
		o.logger.Warn("orchestrator: recording execution history failed", "task_id", taskID, "error", err)
	}
}

// dryRunBatch simulates execution without spawning any subprocess: it
// sleeps briefly per task and reports success, except for the task id
// SetSimulatedFailure marked (spec.md §4.5 "Dry-run semantics").
func (o *Orchestrator) dryRunBatch(inputs []runner.TaskInput) []runner.ExecutionResult {
	results := make([]runner.ExecutionResult, len(inputs))
	for i, in := range inputs {
		time.Sleep(dryRunSleep)
		if in.TaskID == o.simulatedFailure {
			results[i] = runner.ExecutionResult{
				TaskID:  in.TaskID,
				Success: false,
				Error:   "simulated failure",
			}
			continue
		}
		results[i] = runner.ExecutionResult{
			TaskID:  in.TaskID,
			Success: true,
		}
	}
	return results
}

// collectFinalArtifacts performs the final single-file integration pass
// into <workspace>/integrated/ (spec.md §4.5 step 5): every artifact from
// every completed task, excluding .claude/*, plus a summarizing README.
func (o *Orchestrator) collectFinalArtifacts() error {
	destDir := o.engine.IntegratedDir()
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return err
	}

	var collected []string
	var versioned []string

	for _, t := range o.graph.Tasks() {
		if t.State != wbs.StateCompleted {
			continue
		}
		res, ok := o.completed[t.ID]
		if !ok {
			continue
		}
		for _, rel := range res.Artifacts {
			src := filepath.Join(res.Workspace, rel)
			conflicted, err := o.engine.IntegrateArtifact(src, destDir, t.ID)
			if err != nil {
				o.logger.Warn("orchestrator: final integration failed", "task_id", t.ID, "path", src, "error", err)
				continue
			}
			if conflicted {
				versioned = append(versioned, filepath.Base(rel))
			} else {
				collected = append(collected, filepath.Base(rel))
			}
		}
	}

	return writeIntegratedReadme(destDir, collected, versioned)
}

func writeIntegratedReadme(destDir string, collected, versioned []string) error {
	var b strings.Builder
	b.WriteString("# Integrated Artifacts\n\n")
	fmt.Fprintf(&b, "%d file(s) collected.\n\n", len(collected)+len(versioned))

	b.WriteString("## Files\n\n")
	for _, f := range collected {
		fmt.Fprintf(&b, "- %s\n", f)
	}

	if len(versioned) > 0 {
		b.WriteString("\n## Versioned due to conflicts\n\n")
		for _, f := range versioned {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}

	return os.WriteFile(filepath.Join(destDir, "README.md"), []byte(b.String()), 0o644)
}
