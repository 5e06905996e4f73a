package builtin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"codesm/internal/agent/ports"
	"codesm/internal/lsp"
	"codesm/internal/shared/logging"
	"codesm/internal/snapshot"
)

type writeTool struct {
	workDir   string
	snapshots *snapshot.Store
	ledger    *snapshot.Ledger
	lsp       *lsp.Multiplexer
	logger    logging.Logger
}

func NewWrite(deps Deps) ports.ToolExecutor {
	return &writeTool{
		workDir:   deps.WorkDir,
		snapshots: deps.Snapshots,
		ledger:    deps.Ledger,
		lsp:       deps.LSP,
		logger:    logging.OrNop(deps.Logger),
	}
}

func (t *writeTool) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	path := argString(call.Arguments, "path")
	if path == "" {
		return failf(call.ID, "missing 'path'"), nil
	}
	content, present := call.Arguments["content"].(string)
	if !present {
		return failf(call.ID, "missing 'content'"), nil
	}
	abs := resolvePath(t.workDir, path)

	before := ""
	if data, err := os.ReadFile(abs); err == nil {
		before = string(data)
	}

	recordPreEdit(t.snapshots, t.ledger, abs)

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return failf(call.ID, "cannot create parent directory: %v", err), nil
	}
	if err := atomicWrite(abs, []byte(content)); err != nil {
		return failf(call.ID, "write %s: %v", path, err), nil
	}

	additions, deletions := snapshot.Numstat(before, content)
	summary := fmt.Sprintf("Wrote %s (+%d -%d)", path, additions, deletions)
	if diag := diagnosticsSummary(ctx, t.lsp, abs); diag != "" {
		summary += "\n" + diag
	}
	return ok(call.ID, summary), nil
}

func (t *writeTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "write",
		Description: "Create or overwrite a file. The previous content is snapshotted and can be restored with undo.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"path":    {Type: "string", Description: "File path, absolute or workspace-relative"},
				"content": {Type: "string", Description: "Full new file content"},
			},
			Required: []string{"path", "content"},
		},
	}
}

func (t *writeTool) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Name: "write", Version: "1.0.0", Category: "file", Mutating: true}
}

// recordPreEdit snapshots the whole tree and remembers the hash as this
// path's pre-edit state. Snapshot failures degrade to no undo coverage.
func recordPreEdit(store *snapshot.Store, ledger *snapshot.Ledger, absPath string) {
	if store == nil || ledger == nil {
		return
	}
	ledger.Record(absPath, store.Track())
}

// atomicWrite lands content via a same-directory temp file and rename.
func atomicWrite(path string, content []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

// diagnosticsSummary refreshes the file with its language server and
// renders any resulting problems, empty when no server handles the file.
func diagnosticsSummary(ctx context.Context, mux *lsp.Multiplexer, absPath string) string {
	if mux == nil {
		return ""
	}
	if err := mux.TouchFile(ctx, absPath, true); err != nil {
		return ""
	}
	diags := mux.Diagnostics(absPath)
	if len(diags) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Diagnostics:")
	for _, d := range diags {
		fmt.Fprintf(&b, "\n  %s:%d:%d %s: %s", filepath.Base(d.Path), d.Line, d.Col, d.Severity, d.Message)
	}
	return b.String()
}
