package workspace

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func snapOf(entries map[string]string) Snapshot {
	s := make(Snapshot, len(entries))
	for path, hash := range entries {
		s[path] = FileMetadata{Hash: hash, Size: int64(len(hash))}
	}
	return s
}

func TestDiffSnapshots_Reflexivity(t *testing.T) {
	s := snapOf(map[string]string{
		"a.txt": "hash-a",
		"b.txt": "hash-b",
	})

	d := DiffSnapshots(s, s)
	assert.Empty(t, d.New)
	assert.Empty(t, d.Modified)
	assert.Empty(t, d.Deleted)
}

func TestDiffSnapshots_CountIdentity_NoModifications(t *testing.T) {
	base := snapOf(map[string]string{
		"a.txt": "hash-a",
		"b.txt": "hash-b",
	})
	current := snapOf(map[string]string{
		"a.txt": "hash-a",
		"c.txt": "hash-c",
	})

	d := DiffSnapshots(base, current)
	assert.Equal(t, len(d.New)+len(base), len(current)+len(d.Deleted))
}

func TestDiffSnapshots_IdenticalHash_NeverModified(t *testing.T) {
	base := snapOf(map[string]string{"a.txt": "same-hash"})
	current := snapOf(map[string]string{"a.txt": "same-hash"})

	d := DiffSnapshots(base, current)
	assert.Empty(t, d.Modified)
}

func TestDiffSnapshots_Classification(t *testing.T) {
	base := snapOf(map[string]string{
		"kept.txt":     "h1",
		"changed.txt":  "h2",
		"removed.txt":  "h3",
	})
	current := snapOf(map[string]string{
		"kept.txt":    "h1",
		"changed.txt": "h2-new",
		"added.txt":   "h4",
	})

	d := DiffSnapshots(base, current)
	assert.ElementsMatch(t, []string{"added.txt"}, d.New)
	assert.ElementsMatch(t, []string{"changed.txt"}, d.Modified)
	assert.ElementsMatch(t, []string{"removed.txt"}, d.Deleted)
}
