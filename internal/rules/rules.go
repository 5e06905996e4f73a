// Package rules loads project instruction files (AGENTS.md and friends)
// for injection into the system prompt.
package rules

import (
	"os"
	"path/filepath"
	"strings"

	"codesm/internal/shared/logging"
)

// candidates in priority order; every file that exists contributes a
// section, nearest to the workspace root first.
var candidates = []string{"AGENTS.md", "AGENT.md", ".agentrules"}

const maxRuleBytes = 32 * 1024

// Formatter renders loaded rule files into prompt text. The default
// implementation emits one markdown section per file.
type Formatter interface {
	Format(files []File) string
}

// File is one loaded instruction file.
type File struct {
	Path    string
	Content string
}

// Load reads the workspace's instruction files and the user-global one
// under ~/.config/codesm/AGENTS.md. Missing files are not an error.
func Load(workDir string, logger logging.Logger) []File {
	logger = logging.OrNop(logger)
	var files []File

	paths := make([]string, 0, len(candidates)+1)
	for _, name := range candidates {
		paths = append(paths, filepath.Join(workDir, name))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "codesm", "AGENTS.md"))
	}

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		content := strings.TrimSpace(string(data))
		if content == "" {
			continue
		}
		if len(content) > maxRuleBytes {
			content = content[:maxRuleBytes] + "\n... (truncated)"
			logger.Warn("rules: %s exceeds %d bytes, truncated", path, maxRuleBytes)
		}
		files = append(files, File{Path: path, Content: content})
	}
	return files
}

type markdownFormatter struct{}

// DefaultFormatter renders each file under a "Project instructions"
// heading with its source path.
func DefaultFormatter() Formatter {
	return markdownFormatter{}
}

func (markdownFormatter) Format(files []File) string {
	if len(files) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("# Project instructions\n")
	for _, file := range files {
		b.WriteString("\nFrom " + file.Path + ":\n\n")
		b.WriteString(file.Content)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// Render is the common Load+Format path.
func Render(workDir string, logger logging.Logger) string {
	return DefaultFormatter().Format(Load(workDir, logger))
}
