package workspace

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// copyTree recursively copies every entry under src into dst, creating dst
// if necessary and preserving file modification times. Used for sandbox
// seeding, where spec.md §4.2 requires a verbatim copy of the shared tree
// including any reserved-name directories it may contain.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			return os.MkdirAll(target, info.Mode().Perm()|0o700)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return copyFilePreservingModTime(path, target)
	})
}

// copyTreeExcluding copies only regular files whose relative path does not
// contain a reserved-name component (used for base-snapshot capture, which
// spec.md §4.2 scopes to "non-excluded files").
func copyTreeExcluding(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if excludedNames[d.Name()] && path != src {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if pathExcluded(filepath.ToSlash(rel)) {
			return nil
		}
		return copyFilePreservingModTime(path, filepath.Join(dst, rel))
	})
}

func copyFilePreservingModTime(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}

// hasAnyFile reports whether dir contains at least one regular file not
// excluded by the reserved-names set.
func hasAnyFile(dir string) (bool, error) {
	found := false
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if found {
			return filepath.SkipAll
		}
		if d.IsDir() {
			if excludedNames[d.Name()] && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return nil
		}
		if pathExcluded(filepath.ToSlash(rel)) {
			return nil
		}
		found = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return found, nil
}
