package builtin

import (
	"context"
	"fmt"
	"strings"

	"codesm/internal/agent/ports"
	"codesm/internal/lsp"
)

type lspTool struct {
	workDir string
	lsp     *lsp.Multiplexer
}

func NewLsp(deps Deps) ports.ToolExecutor {
	return &lspTool{workDir: deps.WorkDir, lsp: deps.LSP}
}

func (t *lspTool) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	if t.lsp == nil {
		return failf(call.ID, "no language servers are running"), nil
	}
	action := argString(call.Arguments, "action")
	path := argString(call.Arguments, "path")
	line := argInt(call.Arguments, "line", 0)
	col := argInt(call.Arguments, "column", 0)
	abs := resolvePath(t.workDir, path)

	switch action {
	case "definition":
		locs, err := t.lsp.Definition(ctx, abs, line, col)
		return renderLocationResult(call.ID, "definition", locs, err), nil
	case "references":
		locs, err := t.lsp.References(ctx, abs, line, col)
		return renderLocationResult(call.ID, "references", locs, err), nil
	case "hover":
		text, err := t.lsp.Hover(ctx, abs, line, col)
		if err != nil {
			return failf(call.ID, "%v", err), nil
		}
		if text == "" {
			return ok(call.ID, "No hover information"), nil
		}
		return ok(call.ID, text), nil
	case "document_symbols":
		locs, err := t.lsp.DocumentSymbols(ctx, abs)
		return renderLocationResult(call.ID, "symbols", locs, err), nil
	case "workspace_symbols":
		query := argString(call.Arguments, "query")
		if query == "" {
			return failf(call.ID, "workspace_symbols needs 'query'"), nil
		}
		locs, err := t.lsp.WorkspaceSymbols(ctx, query)
		return renderLocationResult(call.ID, "symbols", locs, err), nil
	case "call_hierarchy_incoming":
		locs, err := t.lsp.CallHierarchy(ctx, abs, line, col, "incoming")
		return renderLocationResult(call.ID, "callers", locs, err), nil
	case "call_hierarchy_outgoing":
		locs, err := t.lsp.CallHierarchy(ctx, abs, line, col, "outgoing")
		return renderLocationResult(call.ID, "callees", locs, err), nil
	default:
		return failf(call.ID, "unknown action %q", action), nil
	}
}

func renderLocationResult(callID, noun string, locs []lsp.SymbolLocation, err error) *ports.ToolResult {
	if err != nil {
		return failf(callID, "%v", err)
	}
	if len(locs) == 0 {
		return ok(callID, "No "+noun+" found")
	}
	var b strings.Builder
	for _, loc := range locs {
		if loc.Name != "" {
			fmt.Fprintf(&b, "%s %s - %s:%d:%d\n", loc.Kind, loc.Name, loc.Path, loc.Line, loc.Col)
		} else {
			fmt.Fprintf(&b, "%s:%d:%d\n", loc.Path, loc.Line, loc.Col)
		}
	}
	return ok(callID, strings.TrimRight(b.String(), "\n"))
}

func (t *lspTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "lsp",
		Description: "Language intelligence: go-to-definition, references, hover, symbols, call hierarchy. Positions are 1-based.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"action": {Type: "string", Description: "Operation to run", Enum: []string{
					"definition", "references", "hover", "document_symbols",
					"workspace_symbols", "call_hierarchy_incoming", "call_hierarchy_outgoing",
				}},
				"path":   {Type: "string", Description: "File path"},
				"line":   {Type: "integer", Description: "1-based line"},
				"column": {Type: "integer", Description: "1-based column"},
				"query":  {Type: "string", Description: "Symbol query for workspace_symbols"},
			},
			Required: []string{"action"},
		},
	}
}

func (t *lspTool) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Name: "lsp", Version: "1.0.0", Category: "lsp"}
}
