package builtin

import (
	"context"
	"fmt"
	"strings"

	"codesm/internal/agent/ports"
	"codesm/internal/lsp"
)

type diagnosticsTool struct {
	workDir string
	lsp     *lsp.Multiplexer
}

func NewDiagnostics(deps Deps) ports.ToolExecutor {
	return &diagnosticsTool{workDir: deps.WorkDir, lsp: deps.LSP}
}

func (t *diagnosticsTool) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	if t.lsp == nil {
		return failf(call.ID, "no language servers are running"), nil
	}
	severity := argString(call.Arguments, "severity")
	if severity == "" {
		severity = "all"
	}

	var diags []lsp.FileDiagnostic
	if path := argString(call.Arguments, "path"); path != "" {
		abs := resolvePath(t.workDir, path)
		if err := t.lsp.TouchFile(ctx, abs, true); err != nil {
			return failf(call.ID, "%v", err), nil
		}
		diags = t.lsp.Diagnostics(abs)
	} else {
		diags = t.lsp.AllDiagnostics()
	}

	var filtered []lsp.FileDiagnostic
	for _, d := range diags {
		if severity == "all" || d.Severity == severity {
			filtered = append(filtered, d)
		}
	}
	if len(filtered) == 0 {
		return ok(call.ID, "No diagnostics"), nil
	}

	var b strings.Builder
	for _, d := range filtered {
		fmt.Fprintf(&b, "%s:%d:%d %s: %s\n", d.Path, d.Line, d.Col, d.Severity, d.Message)
		for _, rel := range d.Related {
			fmt.Fprintf(&b, "    related: %s\n", rel)
		}
	}
	return ok(call.ID, strings.TrimRight(b.String(), "\n")), nil
}

func (t *diagnosticsTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "diagnostics",
		Description: "Report language-server diagnostics, for one file or the whole workspace.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"path":     {Type: "string", Description: "File to check; omit for all cached diagnostics"},
				"severity": {Type: "string", Description: "Filter", Enum: []string{"error", "warning", "all"}},
			},
		},
	}
}

func (t *diagnosticsTool) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Name: "diagnostics", Version: "1.0.0", Category: "lsp"}
}
