package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFilesIsEmpty(t *testing.T) {
	files := Load(t.TempDir(), nil)
	for _, file := range files {
		// Only the user-global file may leak in from the host.
		assert.NotContains(t, file.Path, t.TempDir())
	}
}

func TestLoadReadsWorkspaceAgentsFile(t *testing.T) {
	work := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(work, "AGENTS.md"), []byte("Use tabs.\n"), 0o644))

	files := Load(work, nil)
	require.NotEmpty(t, files)
	assert.Equal(t, filepath.Join(work, "AGENTS.md"), files[0].Path)
	assert.Equal(t, "Use tabs.", files[0].Content)
}

func TestLoadSkipsEmptyFiles(t *testing.T) {
	work := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(work, "AGENTS.md"), []byte("  \n"), 0o644))
	for _, file := range Load(work, nil) {
		assert.NotEqual(t, filepath.Join(work, "AGENTS.md"), file.Path)
	}
}

func TestFormatRendersSections(t *testing.T) {
	out := DefaultFormatter().Format([]File{
		{Path: "/w/AGENTS.md", Content: "Rule one."},
		{Path: "/w/AGENT.md", Content: "Rule two."},
	})
	assert.Contains(t, out, "# Project instructions")
	assert.Contains(t, out, "From /w/AGENTS.md:")
	assert.Contains(t, out, "Rule one.")
	assert.Contains(t, out, "Rule two.")
}

func TestFormatEmptyIsEmpty(t *testing.T) {
	assert.Empty(t, DefaultFormatter().Format(nil))
}
