package runner

import (
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// excludedNames mirrors internal/workspace's reserved path components; a
// sandbox's own .git/.claude/__pycache__ entries are never counted as
// agent-produced artifacts.
var excludedNames = map[string]bool{
	".git":        true,
	"__pycache__": true,
	".claude":     true,
}

// collectArtifactPaths lists every regular file under sandbox whose path
// does not contain a reserved-name component, relative to sandbox.
func collectArtifactPaths(sandbox string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(sandbox, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if excludedNames[d.Name()] && path != sandbox {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(sandbox, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		for _, part := range strings.Split(rel, "/") {
			if excludedNames[part] {
				return nil
			}
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}

// fencedBlockPattern matches a single markdown fenced code block whose
// opening fence carries at most a bare alphanumeric language tag (e.g.
// ```python); any filename hint is ignored. This is a best-effort heuristic,
// not part of the runner's contract (spec.md §4.4 step 6, §9 Design Notes).
var fencedBlockPattern = regexp.MustCompile("(?s)```[a-zA-Z0-9]*\\n(.*?)```")

// salvageCodeBlock looks for the first fenced code block in stdout and, if
// found, writes it to <sandbox>/salvaged_output.txt. Returns the filename
// written, or "" if nothing was salvaged. Never returns an error: a failed
// salvage attempt degrades to "no artifacts produced", which is itself a
// legitimate (if disappointing) outcome.
func salvageCodeBlock(stdout, sandbox string) string {
	match := fencedBlockPattern.FindStringSubmatch(stdout)
	if match == nil {
		return ""
	}
	body := strings.TrimSpace(match[1])
	if body == "" {
		return ""
	}

	const filename = "salvaged_output.txt"
	if err := os.WriteFile(filepath.Join(sandbox, filename), []byte(body+"\n"), 0o644); err != nil {
		return ""
	}
	return filename
}
