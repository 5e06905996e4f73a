package ports

import "context"

// StreamRequest carries one provider turn.
type StreamRequest struct {
	System      string
	Messages    []Message
	Tools       []ToolDefinition
	MaxTokens   int
	Temperature float64
	Metadata    map[string]any
}

// Provider adapts one vendor's streaming chat API to the neutral chunk
// stream. Implementations must not mutate the request messages, must emit
// text deltas as they arrive, and must emit exactly one ChunkToolCall per
// completed tool call with a fully parsed argument map. The returned channel
// is closed when the vendor stream ends or ctx is cancelled.
type Provider interface {
	Stream(ctx context.Context, req StreamRequest) (<-chan StreamChunk, error)

	// Model returns the vendor-qualified model identifier.
	Model() string
}

// UsageReporter is implemented by providers that surface token accounting.
type UsageReporter interface {
	LastUsage() TokenUsage
}
