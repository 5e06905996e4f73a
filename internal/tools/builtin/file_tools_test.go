package builtin

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codesm/internal/agent/ports"
	"codesm/internal/snapshot"
)

func testDeps(t *testing.T) Deps {
	t.Helper()
	work := t.TempDir()
	store := snapshot.New(work, nil)
	t.Cleanup(func() { store.Cleanup() })
	return Deps{
		WorkDir:   work,
		Snapshots: store,
		Ledger:    snapshot.NewLedger(),
	}
}

func run(t *testing.T, tool ports.ToolExecutor, args map[string]any) *ports.ToolResult {
	t.Helper()
	result, err := tool.Execute(context.Background(), ports.ToolCall{ID: "t1", Name: tool.Metadata().Name, Arguments: args})
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

func seed(t *testing.T, deps Deps, rel, content string) string {
	t.Helper()
	abs := filepath.Join(deps.WorkDir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
	return abs
}

func TestReadNumbersLines(t *testing.T) {
	deps := testDeps(t)
	seed(t, deps, "f.txt", "alpha\nbeta\ngamma\n")

	result := run(t, NewRead(deps), map[string]any{"path": "f.txt", "start_line": float64(2), "end_line": float64(3)})
	require.NoError(t, result.Error)
	assert.Equal(t, "2 | beta\n3 | gamma", result.Content)
}

func TestReadRejectsBadRange(t *testing.T) {
	deps := testDeps(t)
	seed(t, deps, "f.txt", "one\n")

	result := run(t, NewRead(deps), map[string]any{"path": "f.txt", "start_line": float64(9), "end_line": float64(3)})
	require.Error(t, result.Error)
	assert.Contains(t, result.Error.Error(), "invalid range")
}

func TestWriteCreatesFileAndParents(t *testing.T) {
	deps := testDeps(t)
	result := run(t, NewWrite(deps), map[string]any{"path": "sub/dir/new.txt", "content": "a\nb\n"})
	require.NoError(t, result.Error)
	assert.Contains(t, result.Content, "Wrote sub/dir/new.txt (+2 -0)")

	data, err := os.ReadFile(filepath.Join(deps.WorkDir, "sub/dir/new.txt"))
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", string(data))
}

func TestEditReplacesFirstOccurrence(t *testing.T) {
	deps := testDeps(t)
	abs := seed(t, deps, "f.txt", "x one x\n")

	result := run(t, NewEdit(deps), map[string]any{
		"path":        "f.txt",
		"old_content": "x",
		"new_content": "y",
	})
	require.NoError(t, result.Error)

	data, err := os.ReadFile(abs)
	require.NoError(t, err)
	assert.Equal(t, "y one x\n", string(data))
}

func TestEditMissingOldContent(t *testing.T) {
	deps := testDeps(t)
	seed(t, deps, "f.txt", "body\n")

	result := run(t, NewEdit(deps), map[string]any{
		"path":        "f.txt",
		"old_content": "absent",
		"new_content": "other",
	})
	require.Error(t, result.Error)
	assert.Contains(t, result.Error.Error(), "not found")
}

func TestMultiEditAppliesInOrder(t *testing.T) {
	deps := testDeps(t)
	abs := seed(t, deps, "f.txt", "one two three\n")

	result := run(t, NewMultiEdit(deps), map[string]any{
		"path": "f.txt",
		"edits": []any{
			map[string]any{"old_content": "one", "new_content": "1"},
			map[string]any{"old_content": "1 two", "new_content": "1 2"},
		},
	})
	require.NoError(t, result.Error)
	assert.Contains(t, result.Content, "Applied 2 edits")

	data, err := os.ReadFile(abs)
	require.NoError(t, err)
	assert.Equal(t, "1 2 three\n", string(data))
}

func TestMultiEditValidationAbortsWholeBatch(t *testing.T) {
	deps := testDeps(t)
	abs := seed(t, deps, "f.txt", "stable\n")

	result := run(t, NewMultiEdit(deps), map[string]any{
		"path": "f.txt",
		"edits": []any{
			map[string]any{"old_content": "stable", "new_content": "changed"},
			map[string]any{"old_content": "ghost", "new_content": "boo"},
		},
	})
	require.Error(t, result.Error)
	assert.Contains(t, result.Error.Error(), "Validation failed: edit 2")

	// First edit must not have landed.
	data, err := os.ReadFile(abs)
	require.NoError(t, err)
	assert.Equal(t, "stable\n", string(data))
}

func TestEditThenUndoRoundTrip(t *testing.T) {
	deps := testDeps(t)
	abs := seed(t, deps, "f.txt", "original\n")

	edited := run(t, NewEdit(deps), map[string]any{
		"path":        "f.txt",
		"old_content": "original",
		"new_content": "mutated",
	})
	require.NoError(t, edited.Error)

	undone := run(t, NewUndo(deps), map[string]any{"path": "f.txt"})
	require.NoError(t, undone.Error)
	assert.Contains(t, undone.Content, "Reverted")

	data, err := os.ReadFile(abs)
	require.NoError(t, err)
	assert.Equal(t, "original\n", string(data))

	// Undo consumed the ledger entry.
	again := run(t, NewUndo(deps), map[string]any{"path": "f.txt"})
	require.Error(t, again.Error)
	assert.Contains(t, again.Error.Error(), "no recorded edit")
}

func TestUndoWithoutEdit(t *testing.T) {
	deps := testDeps(t)
	seed(t, deps, "f.txt", "body\n")
	result := run(t, NewUndo(deps), map[string]any{"path": "f.txt"})
	require.Error(t, result.Error)
}
