package builtin

import (
	"context"
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	"codesm/internal/agent/ports"
)

const defaultGlobLimit = 100

type globTool struct {
	workDir string
}

func NewGlob(deps Deps) ports.ToolExecutor {
	return &globTool{workDir: deps.WorkDir}
}

func (t *globTool) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	pattern := argString(call.Arguments, "pattern")
	if pattern == "" {
		return failf(call.ID, "missing 'pattern'"), nil
	}
	root := resolvePath(t.workDir, argString(call.Arguments, "path"))
	limit := argInt(call.Arguments, "limit", defaultGlobLimit)
	if limit <= 0 || limit > defaultGlobLimit {
		limit = defaultGlobLimit
	}

	var matches []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if skipDirNames[d.Name()] || (strings.HasPrefix(d.Name(), ".") && p != root) {
				return filepath.SkipDir
			}
			return nil
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return nil
		}
		if matchGlob(pattern, filepath.ToSlash(rel)) {
			matches = append(matches, rel)
			if len(matches) >= limit {
				return filepath.SkipAll
			}
		}
		return nil
	})
	if err != nil {
		return failf(call.ID, "glob walk failed: %v", err), nil
	}
	if len(matches) == 0 {
		return ok(call.ID, "No files match "+pattern), nil
	}
	return ok(call.ID, strings.Join(matches, "\n")), nil
}

// matchGlob matches a relative slash path against the pattern. `**/`
// prefixes match at any depth; otherwise the pattern applies to the whole
// relative path, falling back to the basename for bare patterns.
func matchGlob(pattern, rel string) bool {
	if strings.HasPrefix(pattern, "**/") {
		suffix := strings.TrimPrefix(pattern, "**/")
		if matched, _ := path.Match(suffix, path.Base(rel)); matched {
			return true
		}
		parts := strings.Split(rel, "/")
		for i := range parts {
			if matched, _ := path.Match(suffix, strings.Join(parts[i:], "/")); matched {
				return true
			}
		}
		return false
	}
	if matched, _ := path.Match(pattern, rel); matched {
		return true
	}
	if !strings.Contains(pattern, "/") {
		matched, _ := path.Match(pattern, path.Base(rel))
		return matched
	}
	return false
}

func (t *globTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "glob",
		Description: "Find files by name pattern, e.g. *.go or **/*_test.go.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"pattern": {Type: "string", Description: "Glob pattern"},
				"path":    {Type: "string", Description: "Directory to search, defaults to the workspace root"},
				"limit":   {Type: "integer", Description: "Maximum results, default and cap 100"},
			},
			Required: []string{"pattern"},
		},
	}
}

func (t *globTool) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Name: "glob", Version: "1.0.0", Category: "search"}
}
