package builtin

import (
	"context"
	"fmt"
	"os"
	"strings"

	"codesm/internal/agent/ports"
	"codesm/internal/lsp"
	"codesm/internal/snapshot"
)

type editTool struct {
	workDir   string
	snapshots *snapshot.Store
	ledger    *snapshot.Ledger
	lsp       *lsp.Multiplexer
}

func NewEdit(deps Deps) ports.ToolExecutor {
	return &editTool{
		workDir:   deps.WorkDir,
		snapshots: deps.Snapshots,
		ledger:    deps.Ledger,
		lsp:       deps.LSP,
	}
}

func (t *editTool) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	path := argString(call.Arguments, "path")
	oldContent := argString(call.Arguments, "old_content")
	newContent, hasNew := call.Arguments["new_content"].(string)
	if path == "" || oldContent == "" || !hasNew {
		return failf(call.ID, "edit needs 'path', 'old_content', and 'new_content'"), nil
	}
	if oldContent == newContent {
		return failf(call.ID, "old_content and new_content are identical"), nil
	}
	abs := resolvePath(t.workDir, path)

	data, err := os.ReadFile(abs)
	if err != nil {
		return failf(call.ID, "cannot read %s: %v", path, err), nil
	}
	before := string(data)
	if !strings.Contains(before, oldContent) {
		return failf(call.ID, "old_content not found in %s", path), nil
	}

	recordPreEdit(t.snapshots, t.ledger, abs)

	// First match only; repeat the edit for further occurrences.
	after := strings.Replace(before, oldContent, newContent, 1)
	if err := atomicWrite(abs, []byte(after)); err != nil {
		return failf(call.ID, "write %s: %v", path, err), nil
	}

	additions, deletions := snapshot.Numstat(before, after)
	summary := fmt.Sprintf("Edited %s (+%d -%d)", path, additions, deletions)
	if diag := diagnosticsSummary(ctx, t.lsp, abs); diag != "" {
		summary += "\n" + diag
	}
	return ok(call.ID, summary), nil
}

func (t *editTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "edit",
		Description: "Replace the first occurrence of old_content with new_content in a file.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"path":        {Type: "string", Description: "File path, absolute or workspace-relative"},
				"old_content": {Type: "string", Description: "Exact text to find"},
				"new_content": {Type: "string", Description: "Replacement text"},
			},
			Required: []string{"path", "old_content", "new_content"},
		},
	}
}

func (t *editTool) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Name: "edit", Version: "1.0.0", Category: "file", Mutating: true}
}
