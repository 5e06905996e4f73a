package ports

import "context"

// ToolExecutor executes a single tool call.
type ToolExecutor interface {
	// Execute runs the tool. User-facing failures travel inside the
	// returned ToolResult; the error return is reserved for programmer
	// bugs and is rendered to prose by the registry anyway.
	Execute(ctx context.Context, call ToolCall) (*ToolResult, error)

	// Definition returns the tool's schema for the LLM.
	Definition() ToolDefinition

	// Metadata returns tool metadata.
	Metadata() ToolMetadata
}

// ToolMetadata contains tool information.
type ToolMetadata struct {
	Name     string   `json:"name"`
	Version  string   `json:"version"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
	// Mutating marks tools that write to the workspace. The registry
	// serializes mutating calls that target the same path within one batch.
	Mutating bool `json:"mutating"`
}

// ToolRegistry manages available tools.
type ToolRegistry interface {
	Register(tool ToolExecutor) error
	Get(name string) (ToolExecutor, error)
	List() []ToolDefinition
	Unregister(name string) error

	// ExecuteParallel runs the calls concurrently and returns results in
	// input order. Individual failures occupy their slot as prose; they
	// never abort the batch.
	ExecuteParallel(ctx context.Context, calls []ToolCall) []ToolResult
}

// ContextManager estimates token pressure and compacts long histories.
type ContextManager interface {
	EstimateTokens(messages []Message) int

	// Compact returns the message list to use for the next turn. When the
	// estimate stays under the threshold the input is returned unchanged.
	Compact(ctx context.Context, messages []Message) ([]Message, error)
}
