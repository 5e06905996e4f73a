package builtin

import (
	"context"
	"path/filepath"
	"strings"

	"codesm/internal/agent/ports"
	"codesm/internal/snapshot"
)

type undoTool struct {
	workDir   string
	snapshots *snapshot.Store
	ledger    *snapshot.Ledger
}

func NewUndo(deps Deps) ports.ToolExecutor {
	return &undoTool{workDir: deps.WorkDir, snapshots: deps.Snapshots, ledger: deps.Ledger}
}

func (t *undoTool) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	path := argString(call.Arguments, "path")
	if path == "" {
		return failf(call.ID, "missing 'path'"), nil
	}
	if t.snapshots == nil || t.ledger == nil {
		return failf(call.ID, "snapshots are not enabled in this workspace"), nil
	}
	abs := resolvePath(t.workDir, path)

	hash, found := t.ledger.Last(abs)
	if !found {
		return failf(call.ID, "no recorded edit for %s", path), nil
	}

	rel, err := filepath.Rel(t.workDir, abs)
	if err != nil {
		rel = path
	}
	reverted := t.snapshots.RevertFiles([]snapshot.Patch{{Hash: hash, Files: []string{rel}}})
	if !reverted[rel] {
		return failf(call.ID, "could not restore %s from its pre-edit snapshot", path), nil
	}
	t.ledger.Forget(abs)
	return ok(call.ID, "Reverted "+strings.TrimSpace(path)+" to its pre-edit state"), nil
}

func (t *undoTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "undo",
		Description: "Revert a file to its state before the last write/edit/multiedit.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"path": {Type: "string", Description: "File path, absolute or workspace-relative"},
			},
			Required: []string{"path"},
		},
	}
}

func (t *undoTool) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Name: "undo", Version: "1.0.0", Category: "file", Mutating: true}
}
