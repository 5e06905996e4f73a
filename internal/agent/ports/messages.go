package ports

import "time"

// Message represents one conversation entry. Role is one of
// "user", "assistant", "tool" or "system".
type Message struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []ToolCall     `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Timestamp  time.Time      `json:"timestamp,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// MetadataContextSummary marks the synthetic message produced by context
// compaction.
const MetadataContextSummary = "_context_summary"

// IsContextSummary reports whether the message is a compaction summary.
func (m Message) IsContextSummary() bool {
	if m.Metadata == nil {
		return false
	}
	v, ok := m.Metadata[MetadataContextSummary].(bool)
	return ok && v
}

// ToolCall represents a request to execute a tool. Immutable once emitted by
// a provider.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolResult is the outcome of a single tool execution. Error is rendered as
// prose before it reaches the LLM; it never crosses the orchestrator
// boundary as a Go error.
type ToolResult struct {
	CallID   string         `json:"call_id"`
	Content  string         `json:"content"`
	Error    error          `json:"-"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// TokenUsage tracks token consumption reported by a provider.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ToolDefinition describes a tool for the LLM.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  ParameterSchema `json:"parameters"`
	// RawParameters, when set, is a server-provided JSON schema carried
	// verbatim to the provider wire in place of Parameters. MCP tools use
	// it so nested properties, defaults, and non-string enums survive.
	RawParameters map[string]any `json:"-"`
}

// ParametersDoc returns the schema document providers should send.
func (d ToolDefinition) ParametersDoc() any {
	if d.RawParameters != nil {
		return d.RawParameters
	}
	return d.Parameters
}

// ParameterSchema defines tool parameters in JSON Schema form.
type ParameterSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Property defines a single parameter.
type Property struct {
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Enum        []string  `json:"enum,omitempty"`
	Items       *Property `json:"items,omitempty"`
}
