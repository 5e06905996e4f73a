package ports

import "context"

// ToolContext is the open bag every tool execution can reach through its
// context. Meta-tools (task, parallel_tasks, mcp_execute) use the registry
// back-reference; it is injected by the agent facade after construction so
// no cycle forms at build time.
type ToolContext struct {
	WorkDir   string
	SessionID string
	Session   SessionStore
	Messages  []Message
	Registry  ToolRegistry
	Model     string
	Extra     map[string]any
}

type toolContextKey struct{}

// WithToolContext attaches tc to ctx.
func WithToolContext(ctx context.Context, tc *ToolContext) context.Context {
	return context.WithValue(ctx, toolContextKey{}, tc)
}

// ToolContextFrom returns the attached ToolContext, or an empty one so
// callers never nil-check.
func ToolContextFrom(ctx context.Context) *ToolContext {
	if tc, ok := ctx.Value(toolContextKey{}).(*ToolContext); ok && tc != nil {
		return tc
	}
	return &ToolContext{}
}
