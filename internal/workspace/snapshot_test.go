package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestTakeSnapshot_ExcludesReservedNames(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/main.go", "package main")
	writeFile(t, root, ".git/HEAD", "ref: refs/heads/main")
	writeFile(t, root, "__pycache__/mod.pyc", "junk")
	writeFile(t, root, ".claude/settings.json", "{}")

	snap, err := TakeSnapshot(root, nil)
	require.NoError(t, err)

	assert.Contains(t, snap, "src/main.go")
	assert.NotContains(t, snap, ".git/HEAD")
	assert.NotContains(t, snap, "__pycache__/mod.pyc")
	assert.NotContains(t, snap, ".claude/settings.json")
}

func TestTakeSnapshot_MissingRoot_ReturnsEmpty(t *testing.T) {
	snap, err := TakeSnapshot(filepath.Join(t.TempDir(), "missing"), nil)
	require.NoError(t, err)
	assert.Empty(t, snap)
}

func TestTakeSnapshot_HashIsSixteenHexChars(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "hello world")

	snap, err := TakeSnapshot(root, nil)
	require.NoError(t, err)

	meta, ok := snap["a.txt"]
	require.True(t, ok)
	assert.Len(t, meta.Hash, 16)
	assert.Equal(t, int64(len("hello world")), meta.Size)
}

func TestTakeSnapshot_IdenticalContent_SameHash(t *testing.T) {
	rootA := t.TempDir()
	rootB := t.TempDir()
	writeFile(t, rootA, "f.txt", "identical payload")
	writeFile(t, rootB, "f.txt", "identical payload")

	snapA, err := TakeSnapshot(rootA, nil)
	require.NoError(t, err)
	snapB, err := TakeSnapshot(rootB, nil)
	require.NoError(t, err)

	assert.Equal(t, snapA["f.txt"].Hash, snapB["f.txt"].Hash)
}
