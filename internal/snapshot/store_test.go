package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	work := t.TempDir()
	store := New(work, nil)
	t.Cleanup(func() { store.Cleanup() })
	return store
}

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestTrackIsDeterministic(t *testing.T) {
	store := newTestStore(t)
	writeFile(t, store.WorkDir(), "a.txt", "hello\n")

	first := store.Track()
	second := store.Track()
	require.NotEqual(t, Sentinel, first)
	assert.Equal(t, first, second)

	writeFile(t, store.WorkDir(), "a.txt", "changed\n")
	assert.NotEqual(t, first, store.Track())
}

func TestPatchFromListsChangedFiles(t *testing.T) {
	store := newTestStore(t)
	writeFile(t, store.WorkDir(), "keep.txt", "same\n")
	writeFile(t, store.WorkDir(), "edit.txt", "before\n")

	hash := store.Track()
	require.NotEqual(t, Sentinel, hash)

	writeFile(t, store.WorkDir(), "edit.txt", "after\n")
	writeFile(t, store.WorkDir(), "new.txt", "created\n")

	patch, err := store.PatchFrom(hash)
	require.NoError(t, err)
	assert.Equal(t, []string{"edit.txt", "new.txt"}, patch.Files)
}

func TestRestoreOverwritesModifiedFiles(t *testing.T) {
	store := newTestStore(t)
	writeFile(t, store.WorkDir(), "f.txt", "original\n")
	hash := store.Track()
	require.NotEqual(t, Sentinel, hash)

	writeFile(t, store.WorkDir(), "f.txt", "mangled\n")
	require.True(t, store.Restore(hash))

	data, err := os.ReadFile(filepath.Join(store.WorkDir(), "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, "original\n", string(data))
}

func TestRevertFilesDeletesCreatedFiles(t *testing.T) {
	store := newTestStore(t)
	writeFile(t, store.WorkDir(), "old.txt", "v1\n")
	hash := store.Track()
	require.NotEqual(t, Sentinel, hash)

	writeFile(t, store.WorkDir(), "old.txt", "v2\n")
	writeFile(t, store.WorkDir(), "made.txt", "new\n")

	reverted := store.RevertFiles([]Patch{{Hash: hash, Files: []string{"old.txt", "made.txt"}}})
	assert.True(t, reverted["old.txt"])
	assert.True(t, reverted["made.txt"])

	data, err := os.ReadFile(filepath.Join(store.WorkDir(), "old.txt"))
	require.NoError(t, err)
	assert.Equal(t, "v1\n", string(data))
	_, err = os.Stat(filepath.Join(store.WorkDir(), "made.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestRevertFilesUnknownSnapshot(t *testing.T) {
	store := newTestStore(t)
	reverted := store.RevertFiles([]Patch{{Hash: "deadbeef", Files: []string{"x"}}})
	assert.Empty(t, reverted)
}

func TestNumstat(t *testing.T) {
	additions, deletions := Numstat("a\nb\nc\n", "a\nx\nc\nd\n")
	assert.Equal(t, 2, additions)
	assert.Equal(t, 1, deletions)

	additions, deletions = Numstat("same\n", "same\n")
	assert.Zero(t, additions)
	assert.Zero(t, deletions)
}
