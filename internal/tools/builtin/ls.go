package builtin

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"codesm/internal/agent/ports"
)

const (
	maxLsDepth = 3
	maxLsLimit = 100
)

type lsTool struct {
	workDir string
}

func NewLs(deps Deps) ports.ToolExecutor {
	return &lsTool{workDir: deps.WorkDir}
}

func (t *lsTool) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	root := resolvePath(t.workDir, argString(call.Arguments, "path"))
	depth := argInt(call.Arguments, "depth", maxLsDepth)
	if depth < 1 || depth > maxLsDepth {
		depth = maxLsDepth
	}
	limit := argInt(call.Arguments, "limit", maxLsLimit)
	if limit < 1 || limit > maxLsLimit {
		limit = maxLsLimit
	}

	info, err := os.Stat(root)
	if err != nil {
		return failf(call.ID, "cannot list %s: %v", root, err), nil
	}
	if !info.IsDir() {
		return failf(call.ID, "%s is not a directory", root), nil
	}

	var b strings.Builder
	count := 0
	t.renderTree(&b, root, "", depth, limit, &count)
	out := strings.TrimRight(b.String(), "\n")
	if count >= limit {
		out += fmt.Sprintf("\n... (truncated at %d entries)", limit)
	}
	return ok(call.ID, out), nil
}

func (t *lsTool) renderTree(b *strings.Builder, dir, indent string, depth, limit int, count *int) {
	if depth == 0 || *count >= limit {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if *count >= limit {
			return
		}
		name := entry.Name()
		if skipDirNames[name] || strings.HasPrefix(name, ".") {
			continue
		}
		if entry.IsDir() {
			fmt.Fprintf(b, "%s%s/\n", indent, name)
			*count++
			t.renderTree(b, dir+string(os.PathSeparator)+name, indent+"  ", depth-1, limit, count)
		} else {
			fmt.Fprintf(b, "%s%s\n", indent, name)
			*count++
		}
	}
}

func (t *lsTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "ls",
		Description: "Render a directory tree, skipping hidden and dependency directories.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"path":  {Type: "string", Description: "Directory, defaults to the workspace root"},
				"depth": {Type: "integer", Description: "Tree depth, max 3"},
				"limit": {Type: "integer", Description: "Maximum entries, max 100"},
			},
		},
	}
}

func (t *lsTool) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Name: "ls", Version: "1.0.0", Category: "file"}
}
