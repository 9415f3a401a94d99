package workspace

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/nichiki/claude-orchestrator/internal/core"
)

// Artifact is one file produced by a task, recorded in the registry.
type Artifact struct {
	Filename  string    `json:"filename"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	Hash      string    `json:"hash"`
	CreatedAt time.Time `json:"created_at"`
	TaskID    string    `json:"task_id"`
}

// TaskArtifacts groups every artifact a single task produced.
type TaskArtifacts struct {
	TaskID      string     `json:"task_id"`
	TaskName    string     `json:"task_name"`
	CompletedAt time.Time  `json:"completed_at"`
	Artifacts   []Artifact `json:"artifacts"`
}

// Registry is the persisted mapping of task id -> TaskArtifacts plus a
// secondary filename -> task-ids index used for conflict discovery. Not
// safe for concurrent use directly; callers go through Engine, which
// serializes all registry mutation under its own mutex.
type Registry struct {
	ByTask    map[string]*TaskArtifacts `json:"registry"`
	FileIndex map[string][]string       `json:"file_index"`
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		ByTask:    make(map[string]*TaskArtifacts),
		FileIndex: make(map[string][]string),
	}
}

// LoadRegistry reads a previously persisted registry from path. A missing
// file is not an error — it yields a fresh empty registry, since the
// registry is created lazily on first artifact registration.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewRegistry(), nil
		}
		return nil, core.ErrLoad(path, err)
	}

	reg := NewRegistry()
	if err := json.Unmarshal(data, reg); err != nil {
		return nil, core.ErrLoad(path, err)
	}
	if reg.ByTask == nil {
		reg.ByTask = make(map[string]*TaskArtifacts)
	}
	if reg.FileIndex == nil {
		reg.FileIndex = make(map[string][]string)
	}
	// TaskArtifacts.artifacts[*].task_id is a denormalized field that
	// duplicates the container key; refresh it on load rather than trust
	// it as a stored pointer (spec.md §9 Design Notes).
	for taskID, ta := range reg.ByTask {
		for i := range ta.Artifacts {
			ta.Artifacts[i].TaskID = taskID
		}
	}
	return reg, nil
}

// register adds or replaces a task's artifact entry and refreshes the
// filename index. Caller must hold whatever lock protects the registry.
func (r *Registry) register(ta TaskArtifacts) {
	r.ByTask[ta.TaskID] = &ta
	for _, a := range ta.Artifacts {
		ids := r.FileIndex[a.Filename]
		found := false
		for _, id := range ids {
			if id == ta.TaskID {
				found = true
				break
			}
		}
		if !found {
			r.FileIndex[a.Filename] = append(ids, ta.TaskID)
			sort.Strings(r.FileIndex[a.Filename])
		}
	}
}

// save persists the registry as a single JSON document, atomically.
func (r *Registry) save(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return core.WriteFileAtomic(path, data, 0o644)
}

// RegisterTaskArtifacts walks a task's sandbox, records an Artifact for
// every non-excluded regular file, stores the resulting TaskArtifacts in
// the registry, and persists the registry atomically to RegistryPath().
// Spec.md §4.2 "Artifact registration".
func (e *Engine) RegisterTaskArtifacts(taskID, taskName, sandboxDir string) (TaskArtifacts, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var artifacts []Artifact
	err := filepath.WalkDir(sandboxDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if excludedNames[d.Name()] && path != sandboxDir {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(sandboxDir, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if pathExcluded(rel) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		hash, err := hashFile(path)
		if err != nil {
			return nil
		}
		artifacts = append(artifacts, Artifact{
			Filename:  filepath.Base(rel),
			Path:      rel,
			Size:      info.Size(),
			Hash:      hash,
			CreatedAt: info.ModTime(),
			TaskID:    taskID,
		})
		return nil
	})
	if err != nil {
		return TaskArtifacts{}, err
	}

	ta := TaskArtifacts{
		TaskID:      taskID,
		TaskName:    taskName,
		CompletedAt: time.Now(),
		Artifacts:   artifacts,
	}
	e.registry.register(ta)
	if err := e.registry.save(e.RegistryPath()); err != nil {
		return TaskArtifacts{}, err
	}
	return ta, nil
}

// LoadRegistryFile replaces the Engine's in-memory registry with the one
// persisted at RegistryPath(), if any.
func (e *Engine) LoadRegistryFile() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	reg, err := LoadRegistry(e.RegistryPath())
	if err != nil {
		return err
	}
	e.registry = reg
	return nil
}

// TaskArtifactsByID returns the artifact set a single task produced, if any
// — original_source/src/core/artifact_manager.py's get_task_artifacts.
func (e *Engine) TaskArtifactsByID(taskID string) (TaskArtifacts, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ta, ok := e.registry.ByTask[taskID]
	if !ok {
		return TaskArtifacts{}, false
	}
	return *ta, true
}

// TasksByFile returns every task id that produced a file named filename —
// original_source's get_tasks_by_file, backed by the registry's file_index.
func (e *Engine) TasksByFile(filename string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := e.registry.FileIndex[filename]
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

// FileConflicts returns every filename produced by more than one task,
// mapped to the producing task ids — original_source's
// detect_file_conflicts. A non-empty result names the candidates for the
// Conflict Resolver's merge protocol (spec.md §4.3).
func (e *Engine) FileConflicts() map[string][]string {
	e.mu.Lock()
	defer e.mu.Unlock()

	conflicts := make(map[string][]string)
	for filename, ids := range e.registry.FileIndex {
		if len(ids) > 1 {
			out := make([]string, len(ids))
			copy(out, ids)
			conflicts[filename] = out
		}
	}
	return conflicts
}

// ArtifactsByName returns every recorded Artifact named filename, optionally
// scoped to a single task — original_source's get_artifact_by_name.
func (e *Engine) ArtifactsByName(filename, taskID string) []Artifact {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []Artifact
	if taskID != "" {
		if ta, ok := e.registry.ByTask[taskID]; ok {
			for _, a := range ta.Artifacts {
				if a.Filename == filename {
					out = append(out, a)
				}
			}
		}
		return out
	}
	for _, ta := range e.registry.ByTask {
		for _, a := range ta.Artifacts {
			if a.Filename == filename {
				out = append(out, a)
			}
		}
	}
	return out
}

// DependencyArtifacts returns the recorded artifacts of every task id in
// deps that has a registry entry — original_source's
// get_dependencies_artifacts. The orchestrator does not call it; task
// invocations are built without their dependencies' artifact lists.
func (e *Engine) DependencyArtifacts(deps []string) map[string][]Artifact {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string][]Artifact)
	for _, dep := range deps {
		if ta, ok := e.registry.ByTask[dep]; ok {
			out[dep] = ta.Artifacts
		}
	}
	return out
}

// RegistrySummary reports how many tasks and artifacts the registry
// currently holds — original_source's get_summary.
func (e *Engine) RegistrySummary() (tasks, artifacts int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tasks = len(e.registry.ByTask)
	for _, ta := range e.registry.ByTask {
		artifacts += len(ta.Artifacts)
	}
	return tasks, artifacts
}
