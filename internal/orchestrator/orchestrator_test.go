package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nichiki/claude-orchestrator/internal/wbs"
)

func writeWBS(t *testing.T, yamlBody string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "wbs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o644))
	return path
}

func newTestOrchestrator(t *testing.T, wbsPath string, statePath string) *Orchestrator {
	t.Helper()
	o, err := New(wbsPath, Options{
		WorkspaceRoot: t.TempDir(),
		StateFile:     statePath,
		AgentPath:     "claude",
		MaxConcurrent: 2,
		DryRun:        true,
	}, nil)
	require.NoError(t, err)
	return o
}

func TestRun_LinearChain_BothTasksSucceedInOrder(t *testing.T) {
	path := writeWBS(t, `
phases:
  - id: phase-1
    tasks:
      - id: task-001
        name: First
        prompt: do one
      - id: task-002
        name: Second
        dependencies: [task-001]
        prompt: do two
`)
	o := newTestOrchestrator(t, path, "")

	summary, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Completed)
	assert.Equal(t, 0, summary.Failed)

	task1, ok := o.Graph().Task("task-001")
	require.True(t, ok)
	assert.Equal(t, wbs.StateCompleted, task1.State)
	task2, ok := o.Graph().Task("task-002")
	require.True(t, ok)
	assert.Equal(t, wbs.StateCompleted, task2.State)
}

func TestRun_FanOutFanIn_ThirdTaskRunsLast(t *testing.T) {
	path := writeWBS(t, `
phases:
  - id: phase-1
    tasks:
      - id: task-001
        name: A
        prompt: a
      - id: task-002
        name: B
        prompt: b
      - id: task-003
        name: C
        dependencies: [task-001, task-002]
        prompt: c
`)
	o := newTestOrchestrator(t, path, "")

	events := o.Subscribe()
	var taskStarted []string
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range events {
			if e.Type == EventTaskStarted {
				taskStarted = append(taskStarted, e.TaskID)
			}
		}
	}()

	summary, err := o.Run(context.Background())
	require.NoError(t, err)
	<-done

	assert.Equal(t, 3, summary.Completed)
	require.Len(t, taskStarted, 3)
	assert.ElementsMatch(t, []string{"task-001", "task-002"}, taskStarted[:2])
	assert.Equal(t, "task-003", taskStarted[2])
}

func TestRun_Resume_OnlyRemainingTaskRuns(t *testing.T) {
	path := writeWBS(t, `
phases:
  - id: phase-1
    tasks:
      - id: task-001
        name: First
        prompt: do one
      - id: task-002
        name: Second
        dependencies: [task-001]
        prompt: do two
`)
	statePath := filepath.Join(t.TempDir(), "state.json")

	// Simulate a prior run that completed only task-001: persist a state
	// file reflecting that, then start a fresh orchestrator against it.
	seed := newTestOrchestrator(t, path, statePath)
	require.NoError(t, seed.Graph().Update("task-001", wbs.StateCompleted))
	require.NoError(t, saveState(statePath, seed.Graph()))

	resumed := newTestOrchestrator(t, path, statePath)
	events := resumed.Subscribe()
	var started []string
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range events {
			if e.Type == EventTaskStarted {
				started = append(started, e.TaskID)
			}
		}
	}()

	summary, err := resumed.Run(context.Background())
	require.NoError(t, err)
	<-done

	assert.Equal(t, 2, summary.Completed)
	assert.Equal(t, []string{"task-002"}, started, "only the remaining task should execute")
}

func TestRun_NoFailFast_StopsWhenStuckWithFailedTasks(t *testing.T) {
	path := writeWBS(t, `
phases:
  - id: phase-1
    tasks:
      - id: task-001
        name: First
        prompt: do one
      - id: task-002
        name: Second
        dependencies: [task-001]
        prompt: do two
`)
	o := newTestOrchestrator(t, path, "")
	o.SetSimulatedFailure("task-001")

	summary, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Pending, "task-002 can never become runnable")
}

func TestRun_FailFast_ReturnsError(t *testing.T) {
	path := writeWBS(t, `
phases:
  - id: phase-1
    tasks:
      - id: task-001
        name: First
        prompt: do one
`)
	o, err := New(path, Options{
		WorkspaceRoot: t.TempDir(),
		AgentPath:     "claude",
		MaxConcurrent: 1,
		DryRun:        true,
		FailFast:      true,
	}, nil)
	require.NoError(t, err)
	o.SetSimulatedFailure("task-001")

	_, err = o.Run(context.Background())
	assert.Error(t, err)
}

func TestRun_CyclicWBS_FailsAtLoad(t *testing.T) {
	path := writeWBS(t, `
phases:
  - id: phase-1
    tasks:
      - id: a
        name: A
        dependencies: [b]
      - id: b
        name: B
        dependencies: [a]
`)
	_, err := New(path, Options{WorkspaceRoot: t.TempDir(), AgentPath: "claude"}, nil)
	assert.Error(t, err)
}

func TestRun_EmitsProjectStartedAndCompleted(t *testing.T) {
	path := writeWBS(t, `
phases:
  - id: phase-1
    tasks:
      - id: task-001
        name: First
        prompt: do one
`)
	o := newTestOrchestrator(t, path, "")
	events := o.Subscribe()

	var types []EventType
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range events {
			types = append(types, e.Type)
		}
	}()

	_, err := o.Run(context.Background())
	require.NoError(t, err)
	<-done

	require.NotEmpty(t, types)
	assert.Equal(t, EventProjectStarted, types[0])
	assert.Equal(t, EventProjectComplete, types[len(types)-1])
}
