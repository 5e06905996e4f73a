package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerToolDefinitionCarriesSchemaVerbatim(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"level": map[string]any{
				"type": "integer",
				"enum": []any{1, 2, 3},
			},
			"options": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"retries": map[string]any{
						"type":    "integer",
						"default": 3,
						"minimum": 0,
					},
				},
				"required":             []any{"retries"},
				"additionalProperties": false,
			},
		},
		"required": []any{"level"},
	}

	tool := &serverTool{server: "build", schema: ToolSchema{
		Name:        "compile",
		Description: "Compile the project",
		InputSchema: schema,
	}}

	def := tool.Definition()
	assert.Equal(t, "mcp_build_compile", def.Name)
	require.NotNil(t, def.RawParameters)
	assert.Equal(t, schema, def.RawParameters)
	assert.Equal(t, schema, def.ParametersDoc())

	props := def.RawParameters["properties"].(map[string]any)
	assert.Equal(t, []any{1, 2, 3}, props["level"].(map[string]any)["enum"])
	nested := props["options"].(map[string]any)
	assert.Equal(t, []any{"retries"}, nested["required"])
	retries := nested["properties"].(map[string]any)["retries"].(map[string]any)
	assert.Equal(t, 3, retries["default"])
	assert.Equal(t, 0, retries["minimum"])
}

func TestNormalizeSchemaFillsObjectShape(t *testing.T) {
	out := normalizeSchema(nil)
	assert.Equal(t, "object", out["type"])
	assert.Empty(t, out["properties"])

	out = normalizeSchema(map[string]any{"description": "bare"})
	assert.Equal(t, "object", out["type"])
	assert.Equal(t, "bare", out["description"])
}
