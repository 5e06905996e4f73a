package mcp

import (
	"context"
	"fmt"

	"codesm/internal/agent/ports"
	"codesm/internal/shared/jsonx"
)

// ExecuteTool is the `mcp_execute` registry tool: it hands an LLM-written
// script to the sandbox and renders the ExecutionResult as prose.
type ExecuteTool struct {
	sandbox *Sandbox
}

func NewExecuteTool(sandbox *Sandbox) *ExecuteTool {
	return &ExecuteTool{sandbox: sandbox}
}

func (t *ExecuteTool) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	code, _ := call.Arguments["code"].(string)
	if code == "" {
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("code is required")}, nil
	}
	result := t.sandbox.Execute(ctx, code)
	if !result.Success {
		msg := result.Error
		if result.Output != "" {
			msg += "\noutput:\n" + result.Output
		}
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("%s", msg)}, nil
	}

	content := result.Output
	if result.Value != nil {
		if content != "" {
			content += "\n"
		}
		content += "result: " + jsonx.MustMarshalString(result.Value)
	}
	if content == "" {
		content = "Script completed with no output."
	}
	return &ports.ToolResult{CallID: call.ID, Content: content}, nil
}

func (t *ExecuteTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name: "mcp_execute",
		Description: "Run a Python script that batches MCP tool calls via mcp_call(server, tool, arguments). " +
			"Set a `result` variable to return a value. Use mcp_tools first to see what is available. " +
			"Prefer this over many individual MCP calls: filter data in the script and return only the summary.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"code": {Type: "string", Description: "Python source to execute"},
			},
			Required: []string{"code"},
		},
	}
}

func (t *ExecuteTool) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Name: "mcp_execute", Category: "mcp", Tags: []string{"mcp", "code"}}
}

// CatalogTool is the `mcp_tools` registry tool: a cheap text rendering of
// the connected server/tool tree.
type CatalogTool struct {
	manager *Manager
}

func NewCatalogTool(manager *Manager) *CatalogTool {
	return &CatalogTool{manager: manager}
}

func (t *CatalogTool) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	return &ports.ToolResult{CallID: call.ID, Content: t.manager.Catalog()}, nil
}

func (t *CatalogTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "mcp_tools",
		Description: "List connected MCP servers with their tools, resources, and prompts.",
		Parameters:  ports.ParameterSchema{Type: "object", Properties: map[string]ports.Property{}},
	}
}

func (t *CatalogTool) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Name: "mcp_tools", Category: "mcp", Tags: []string{"mcp"}}
}
