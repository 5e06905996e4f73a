package lsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeParamsCapabilities(t *testing.T) {
	params := initializeParams("/work")
	assert.Equal(t, PathToURI("/work"), params["rootUri"])

	caps := params["capabilities"].(map[string]any)
	textDocument := caps["textDocument"].(map[string]any)

	publish := textDocument["publishDiagnostics"].(map[string]any)
	assert.Equal(t, true, publish["relatedInformation"])

	require.Contains(t, textDocument, "callHierarchy")
	assert.Contains(t, textDocument, "documentSymbol")
	assert.Contains(t, caps, "workspace")
}

func TestRenderDiagnosticsIncludesRelatedInformation(t *testing.T) {
	diags := []Diagnostic{{
		Range:    Range{Start: Position{Line: 4, Character: 2}},
		Severity: SeverityError,
		Message:  "undefined: helper",
		RelatedInformation: []DiagnosticRelatedInformation{{
			Location: Location{
				URI:   PathToURI("/work/other.go"),
				Range: Range{Start: Position{Line: 9, Character: 0}},
			},
			Message: "helper was removed here",
		}},
	}}

	out := renderDiagnostics("/work/main.go", diags)
	require.Len(t, out, 1)
	assert.Equal(t, 5, out[0].Line)
	assert.Equal(t, "error", out[0].Severity)
	require.Len(t, out[0].Related, 1)
	assert.Equal(t, "/work/other.go:10:1 helper was removed here", out[0].Related[0])
}
