// Package builtin holds the agent's built-in tools: file operations with
// snapshot bracketing, shell execution, search, language intelligence,
// web access, and session todos.
package builtin

import (
	"fmt"
	"path/filepath"

	"codesm/internal/agent/ports"
	"codesm/internal/index"
	"codesm/internal/lsp"
	"codesm/internal/shared/logging"
	"codesm/internal/snapshot"
)

// Deps carries the collaborators the built-in tools share.
type Deps struct {
	WorkDir   string
	Snapshots *snapshot.Store
	Ledger    *snapshot.Ledger
	LSP       *lsp.Multiplexer
	Sessions  ports.SessionStore
	Search    index.Searcher
	APIKeys   map[string]string
	Logger    logging.Logger
}

// RegisterAll wires every built-in tool into the registry.
func RegisterAll(registry ports.ToolRegistry, deps Deps) error {
	tools := []ports.ToolExecutor{
		NewRead(deps),
		NewWrite(deps),
		NewEdit(deps),
		NewMultiEdit(deps),
		NewUndo(deps),
		NewBash(deps),
		NewGrep(deps),
		NewGlob(deps),
		NewLs(deps),
		NewCodeSearch(deps),
		NewDiagnostics(deps),
		NewLsp(deps),
		NewWebFetch(deps),
		NewWebSearch(deps),
		NewTodo(deps),
	}
	for _, tool := range tools {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

func argString(args map[string]any, key string) string {
	value, _ := args[key].(string)
	return value
}

func argInt(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}

func argBool(args map[string]any, key string) bool {
	value, _ := args[key].(bool)
	return value
}

// resolvePath joins relative paths against the workspace root.
func resolvePath(workDir, path string) string {
	if path == "" {
		return workDir
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(workDir, path)
}

func failf(callID, format string, a ...any) *ports.ToolResult {
	return &ports.ToolResult{CallID: callID, Error: fmt.Errorf(format, a...)}
}

func ok(callID, content string) *ports.ToolResult {
	return &ports.ToolResult{CallID: callID, Content: content}
}

// skipDirNames are never descended into by the traversal tools.
var skipDirNames = map[string]bool{
	".git": true, "node_modules": true, "vendor": true, "__pycache__": true,
	".venv": true, "venv": true, "dist": true, "build": true, "target": true,
	".idea": true, ".vscode": true,
}
