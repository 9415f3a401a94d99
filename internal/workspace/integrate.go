package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Counts tallies the outcome of a single Integrate call, per spec.md §4.2
// step 7.
type Counts struct {
	New      int
	Modified int
	Conflict int
	Deleted  int
}

// Integrate applies a completed task's sandbox changes to the shared
// workspace: new paths are copied in, modified paths that didn't change
// concurrently on the shared side are overwritten, and modified paths that
// did change concurrently go through 3-way conflict resolution (or straight
// to a versioned sidecar if no resolver is configured). The entire body
// runs under the Engine's mutex so integrations never race against each
// other (spec.md §5, §9 Design Notes).
func (e *Engine) Integrate(taskID string) (Counts, error) {
	if err := ValidateTaskID(taskID); err != nil {
		return Counts{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var counts Counts

	base := e.baseSnapshots[taskID]
	sandbox := e.SandboxDir(taskID)

	taskSnap, err := TakeSnapshot(sandbox, e.logger)
	if err != nil {
		return counts, fmt.Errorf("snapshotting sandbox for %s: %w", taskID, err)
	}

	shared := e.SharedDir()
	if err := os.MkdirAll(shared, 0o755); err != nil {
		return counts, fmt.Errorf("ensuring shared workspace: %w", err)
	}
	sharedSnap, err := TakeSnapshot(shared, e.logger)
	if err != nil {
		return counts, fmt.Errorf("snapshotting shared workspace: %w", err)
	}

	d := DiffSnapshots(base, taskSnap)

	for _, p := range d.New {
		if err := copyFilePreservingModTime(filepath.Join(sandbox, p), filepath.Join(shared, p)); err != nil {
			return counts, fmt.Errorf("integrating new path %q: %w", p, err)
		}
		counts.New++
	}

	for _, p := range d.Modified {
		sharedMeta, inShared := sharedSnap[p]
		switch {
		case !inShared:
			if err := copyFilePreservingModTime(filepath.Join(sandbox, p), filepath.Join(shared, p)); err != nil {
				return counts, fmt.Errorf("integrating path %q absent from shared: %w", p, err)
			}
			counts.New++

		case sharedMeta.Hash == base[p].Hash:
			if err := copyFilePreservingModTime(filepath.Join(sandbox, p), filepath.Join(shared, p)); err != nil {
				return counts, fmt.Errorf("integrating modified path %q: %w", p, err)
			}
			counts.Modified++

		default:
			merged, err := e.resolveConflict(taskID, p, base, shared, sandbox)
			if err != nil {
				return counts, err
			}
			if merged {
				counts.Modified++
			} else {
				counts.Conflict++
			}
		}
	}

	// Deletions are counted but never acted on: the shared tree is
	// write-only to integrations (spec.md §9 Design Notes).
	counts.Deleted += len(d.Deleted)

	return counts, nil
}

// resolveConflict runs 3-way resolution for a concurrently modified path and
// applies its outcome. Returns true if the result was a merge (counted as
// "modified"), false if it fell back to a versioned sidecar (counted as
// "conflict").
func (e *Engine) resolveConflict(taskID, relPath string, base Snapshot, sharedDir, sandboxDir string) (bool, error) {
	sharedPath := filepath.Join(sharedDir, relPath)
	taskPath := filepath.Join(sandboxDir, relPath)

	var basePathPtr *string
	if _, ok := base[relPath]; ok {
		p := filepath.Join(e.BaseSnapshotDir(taskID), relPath)
		if _, err := os.Stat(p); err == nil {
			basePathPtr = &p
		}
	}

	if e.resolver == nil {
		if err := writeVersionedSidecar(taskPath, sharedDir, relPath, taskID); err != nil {
			return false, err
		}
		return false, nil
	}

	resolution := e.resolver.Resolve3(basePathPtr, sharedPath, taskPath, taskID)
	if resolution.Strategy == StrategyMerged && resolution.MergedPath != "" {
		if err := copyFilePreservingModTime(resolution.MergedPath, sharedPath); err != nil {
			return false, fmt.Errorf("applying merged result for %q: %w", relPath, err)
		}
		return true, nil
	}

	if err := writeVersionedSidecar(taskPath, sharedDir, relPath, taskID); err != nil {
		return false, err
	}
	return false, nil
}

// writeVersionedSidecar copies src to <sharedDir>/<stem>_<taskID><suffix>,
// computed from relPath, without ever touching the original shared file.
func writeVersionedSidecar(src, sharedDir, relPath, taskID string) error {
	sidecar := versionedSidecarName(relPath, taskID)
	return copyFilePreservingModTime(src, filepath.Join(sharedDir, sidecar))
}

// versionedSidecarName computes "<dir>/<stem>_<taskID><suffix>" from a
// relative path, preserving its directory component. Spec.md's Glossary:
// "a file saved alongside a conflicting shared file with a `_<taskId>`
// suffix before the extension."
func versionedSidecarName(relPath, taskID string) string {
	dir := filepath.Dir(relPath)
	base := filepath.Base(relPath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	name := fmt.Sprintf("%s_%s%s", stem, taskID, ext)
	if dir == "." {
		return name
	}
	return filepath.Join(dir, name)
}

// IntegrateArtifact copies src into destDir under its own base name. If the
// destination already exists, it delegates to the resolver for a 2-way
// merge (when configured) or falls straight to a versioned sidecar; the
// pre-existing destination file is never silently overwritten. Used by the
// orchestrator's final artifact collection pass (spec.md §4.5 step 5).
func (e *Engine) IntegrateArtifact(src, destDir, taskID string) (conflicted bool, err error) {
	name := filepath.Base(src)
	dest := filepath.Join(destDir, name)

	if _, statErr := os.Stat(dest); statErr != nil {
		if !os.IsNotExist(statErr) {
			return false, statErr
		}
		if err := copyFilePreservingModTime(src, dest); err != nil {
			return false, err
		}
		return false, nil
	}

	if e.resolver != nil {
		resolution := e.resolver.Resolve2(dest, src, taskID)
		if resolution.Strategy == StrategyMerged && resolution.MergedPath != "" {
			if err := copyFilePreservingModTime(resolution.MergedPath, dest); err != nil {
				return false, err
			}
			return false, nil
		}
	}

	rel := name
	sidecar := versionedSidecarName(rel, taskID)
	if err := copyFilePreservingModTime(src, filepath.Join(destDir, sidecar)); err != nil {
		return false, err
	}
	return true, nil
}
