package builtin

import (
	"context"
	"fmt"
	"os"
	"strings"

	"codesm/internal/agent/ports"
	"codesm/internal/lsp"
	"codesm/internal/shared/jsonx"
	"codesm/internal/snapshot"
)

type multiEditTool struct {
	workDir   string
	snapshots *snapshot.Store
	ledger    *snapshot.Ledger
	lsp       *lsp.Multiplexer
}

func NewMultiEdit(deps Deps) ports.ToolExecutor {
	return &multiEditTool{
		workDir:   deps.WorkDir,
		snapshots: deps.Snapshots,
		ledger:    deps.Ledger,
		lsp:       deps.LSP,
	}
}

type editSpec struct {
	Old string `json:"old_content"`
	New string `json:"new_content"`
}

func (t *multiEditTool) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	path := argString(call.Arguments, "path")
	if path == "" {
		return failf(call.ID, "missing 'path'"), nil
	}
	edits, err := decodeEdits(call.Arguments["edits"])
	if err != nil {
		return failf(call.ID, "%v", err), nil
	}
	if len(edits) == 0 {
		return failf(call.ID, "edits list is empty"), nil
	}
	abs := resolvePath(t.workDir, path)

	data, err := os.ReadFile(abs)
	if err != nil {
		return failf(call.ID, "cannot read %s: %v", path, err), nil
	}
	before := string(data)

	// Dry-validate every edit against the evolving buffer; nothing is
	// written unless all of them apply.
	buffer := before
	for i, edit := range edits {
		if edit.Old == "" {
			return failf(call.ID, "Validation failed: edit %d has empty old_content", i+1), nil
		}
		if edit.Old == edit.New {
			return failf(call.ID, "Validation failed: edit %d replaces text with itself", i+1), nil
		}
		if !strings.Contains(buffer, edit.Old) {
			return failf(call.ID, "Validation failed: edit %d old_content not found", i+1), nil
		}
		buffer = strings.Replace(buffer, edit.Old, edit.New, 1)
	}

	recordPreEdit(t.snapshots, t.ledger, abs)
	if err := atomicWrite(abs, []byte(buffer)); err != nil {
		return failf(call.ID, "write %s: %v", path, err), nil
	}

	additions, deletions := snapshot.Numstat(before, buffer)
	summary := fmt.Sprintf("Applied %d edits to %s (+%d -%d)", len(edits), path, additions, deletions)
	if diag := diagnosticsSummary(ctx, t.lsp, abs); diag != "" {
		summary += "\n" + diag
	}
	return ok(call.ID, summary), nil
}

func decodeEdits(raw any) ([]editSpec, error) {
	if raw == nil {
		return nil, fmt.Errorf("missing 'edits'")
	}
	data, err := jsonx.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("malformed edits: %v", err)
	}
	var edits []editSpec
	if err := jsonx.Unmarshal(data, &edits); err != nil {
		return nil, fmt.Errorf("edits must be a list of {old_content, new_content}: %v", err)
	}
	return edits, nil
}

func (t *multiEditTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "multiedit",
		Description: "Apply several sequential replacements to one file atomically. All edits are validated first; any failure aborts the whole batch.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"path": {Type: "string", Description: "File path, absolute or workspace-relative"},
				"edits": {
					Type:        "array",
					Description: "Ordered list of {old_content, new_content} replacements",
					Items:       &ports.Property{Type: "object"},
				},
			},
			Required: []string{"path", "edits"},
		},
	}
}

func (t *multiEditTool) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Name: "multiedit", Version: "1.0.0", Category: "file", Mutating: true}
}
