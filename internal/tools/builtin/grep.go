package builtin

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"

	"codesm/internal/agent/ports"
)

// grepOutputCap bounds how much match text returns to the model.
const grepOutputCap = 10 * 1024

type grepTool struct {
	workDir string
}

func NewGrep(deps Deps) ports.ToolExecutor {
	return &grepTool{workDir: deps.WorkDir}
}

func (t *grepTool) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	pattern := argString(call.Arguments, "pattern")
	if pattern == "" {
		return failf(call.ID, "missing 'pattern'"), nil
	}
	if _, err := exec.LookPath("rg"); err != nil {
		return failf(call.ID, "ripgrep (rg) is not installed"), nil
	}
	searchPath := resolvePath(t.workDir, argString(call.Arguments, "path"))

	args := []string{"--line-number", "--no-heading", "--color", "never"}
	for dir := range skipDirNames {
		args = append(args, "--glob", "!"+dir)
	}
	if glob := argString(call.Arguments, "glob"); glob != "" {
		args = append(args, "--glob", glob)
	}
	if argBool(call.Arguments, "case_insensitive") {
		args = append(args, "--ignore-case")
	}
	args = append(args, pattern, searchPath)

	cmd := exec.CommandContext(ctx, "rg", args...)
	var out, errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		// rg exits 1 on zero matches.
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return ok(call.ID, "No matches found"), nil
		}
		return failf(call.ID, "ripgrep failed: %s", strings.TrimSpace(errBuf.String())), nil
	}

	result := out.String()
	if len(result) > grepOutputCap {
		result = result[:grepOutputCap] + "\n... (output truncated)"
	}
	return ok(call.ID, strings.TrimRight(result, "\n")), nil
}

func (t *grepTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "grep",
		Description: "Search file contents with ripgrep. Returns matching lines with file and line number.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"pattern":          {Type: "string", Description: "Regular expression to search for"},
				"path":             {Type: "string", Description: "File or directory to search, defaults to the workspace root"},
				"glob":             {Type: "string", Description: "Limit to files matching this glob, e.g. *.go"},
				"case_insensitive": {Type: "boolean", Description: "Ignore case"},
			},
			Required: []string{"pattern"},
		},
	}
}

func (t *grepTool) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Name: "grep", Version: "1.0.0", Category: "search"}
}
