package ports

// ChunkKind discriminates the StreamChunk union.
type ChunkKind string

const (
	// ChunkText carries an incremental text delta.
	ChunkText ChunkKind = "text"
	// ChunkToolCall carries one completed tool call with parsed arguments.
	ChunkToolCall ChunkKind = "tool_call"
	// ChunkToolCallDelta carries partial tool-call argument JSON. Providers
	// that stream arguments emit these; a stream that ends without a
	// terminating tool_call event auto-finalizes the accumulator into a
	// ChunkToolCall.
	ChunkToolCallDelta ChunkKind = "tool_call_delta"
	// ChunkToolResult is emitted by the orchestrator after a tool ran.
	ChunkToolResult ChunkKind = "tool_result"
	// ChunkError surfaces transport and auth failures in-band. Streams never
	// panic or leak Go errors past the channel boundary.
	ChunkError ChunkKind = "error"
)

// StreamChunk is the tagged unit flowing through provider and orchestrator
// streams. Exactly the fields for the Kind are set.
type StreamChunk struct {
	Kind ChunkKind

	// ChunkText
	Text string

	// ChunkToolCall
	ToolCall *ToolCall

	// ChunkToolCallDelta
	Delta *ToolCallDelta

	// ChunkToolResult
	Result *ToolResultChunk

	// ChunkError
	Err string
}

// ToolCallDelta is a fragment of a streaming tool call.
type ToolCallDelta struct {
	ID          string
	Name        string
	PartialArgs string
}

// ToolResultChunk reports one finished tool execution to stream consumers.
type ToolResultChunk struct {
	CallID  string
	Name    string
	Content string
}

// TextChunk builds a text chunk.
func TextChunk(text string) StreamChunk {
	return StreamChunk{Kind: ChunkText, Text: text}
}

// ToolCallChunk builds a completed tool-call chunk.
func ToolCallChunk(call ToolCall) StreamChunk {
	return StreamChunk{Kind: ChunkToolCall, ToolCall: &call}
}

// ToolResultChunkOf builds a tool-result chunk.
func ToolResultChunkOf(callID, name, content string) StreamChunk {
	return StreamChunk{Kind: ChunkToolResult, Result: &ToolResultChunk{CallID: callID, Name: name, Content: content}}
}

// ErrorChunk builds an error chunk.
func ErrorChunk(msg string) StreamChunk {
	return StreamChunk{Kind: ChunkError, Err: msg}
}
