package builtin

import (
	"context"
	"fmt"
	"os"
	"strings"

	"codesm/internal/agent/ports"
)

type readTool struct {
	workDir string
}

func NewRead(deps Deps) ports.ToolExecutor {
	return &readTool{workDir: deps.WorkDir}
}

func (t *readTool) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	path := argString(call.Arguments, "path")
	if path == "" {
		return failf(call.ID, "missing 'path'"), nil
	}
	abs := resolvePath(t.workDir, path)

	info, err := os.Stat(abs)
	if err != nil {
		return failf(call.ID, "cannot read %s: %v", path, err), nil
	}
	if info.IsDir() {
		return failf(call.ID, "%s is a directory, not a file", path), nil
	}
	content, err := os.ReadFile(abs)
	if err != nil {
		return failf(call.ID, "cannot read %s: %v", path, err), nil
	}

	lines := strings.Split(string(content), "\n")
	start := argInt(call.Arguments, "start_line", 1)
	end := argInt(call.Arguments, "end_line", len(lines))
	if start < 1 {
		start = 1
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start > end {
		return failf(call.ID, "invalid range %d-%d (file has %d lines)", start, end, len(lines)), nil
	}

	var out strings.Builder
	width := len(fmt.Sprintf("%d", end))
	for i := start; i <= end; i++ {
		fmt.Fprintf(&out, "%*d | %s\n", width, i, lines[i-1])
	}
	return ok(call.ID, strings.TrimRight(out.String(), "\n")), nil
}

func (t *readTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "read",
		Description: "Read a file with 1-based line numbers, optionally limited to a line range.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"path":       {Type: "string", Description: "File path, absolute or workspace-relative"},
				"start_line": {Type: "integer", Description: "First line to include (1-based)"},
				"end_line":   {Type: "integer", Description: "Last line to include (inclusive)"},
			},
			Required: []string{"path"},
		},
	}
}

func (t *readTool) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Name: "read", Version: "1.0.0", Category: "file"}
}
