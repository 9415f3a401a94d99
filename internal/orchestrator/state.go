package orchestrator

import (
	"encoding/json"
	"os"
	"time"

	"github.com/nichiki/claude-orchestrator/internal/core"
	"github.com/nichiki/claude-orchestrator/internal/wbs"
)

// ExecutionState is the persisted lifecycle snapshot spec.md §4.5/§6
// defines: written atomically on every lifecycle change when a state-file
// path is configured. Sandbox contents are never checkpointed, only the
// per-task state labels.
type ExecutionState struct {
	Timestamp  time.Time               `json:"timestamp"`
	TaskStatus map[string]wbs.TaskState `json:"task_status"`
}

// loadState reads a persisted ExecutionState. A missing file is not an
// error: it simply means this is a fresh run with nothing to resume.
func loadState(path string) (*ExecutionState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var s ExecutionState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// saveState persists the current task_status of every task in the graph,
// atomically, so a crash mid-write never corrupts the last-known-good
// state. A no-op if path is empty (state persistence is optional, spec.md
// §4.5).
func saveState(path string, g *wbs.Graph) error {
	if path == "" {
		return nil
	}

	status := make(map[string]wbs.TaskState)
	for _, t := range g.Tasks() {
		status[t.ID] = t.State
	}

	s := ExecutionState{Timestamp: time.Now(), TaskStatus: status}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return core.WriteFileAtomic(path, data, 0o644)
}
