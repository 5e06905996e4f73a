package agent

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codesm/internal/agent/ports"
	"codesm/internal/tools"
)

// scriptedProvider replays one canned chunk sequence per Stream call.
type scriptedProvider struct {
	turns [][]ports.StreamChunk
	calls int
}

func (p *scriptedProvider) Stream(ctx context.Context, req ports.StreamRequest) (<-chan ports.StreamChunk, error) {
	var turn []ports.StreamChunk
	if p.calls < len(p.turns) {
		turn = p.turns[p.calls]
	}
	p.calls++
	out := make(chan ports.StreamChunk, len(turn))
	for _, chunk := range turn {
		out <- chunk
	}
	close(out)
	return out, nil
}

func (p *scriptedProvider) Model() string { return "test/scripted" }

type recordingTool struct {
	name  string
	calls []ports.ToolCall
	reply string
}

func (r *recordingTool) Execute(_ context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	r.calls = append(r.calls, call)
	return &ports.ToolResult{CallID: call.ID, Content: r.reply}, nil
}

func (r *recordingTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{Name: r.name, Parameters: ports.ParameterSchema{Type: "object"}}
}

func (r *recordingTool) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Name: r.name, Version: "1.0.0"}
}

func collect(t *testing.T, stream <-chan ports.StreamChunk, done <-chan Result) ([]ports.StreamChunk, Result) {
	t.Helper()
	var chunks []ports.StreamChunk
	for chunk := range stream {
		chunks = append(chunks, chunk)
	}
	select {
	case result := <-done:
		return chunks, result
	case <-time.After(5 * time.Second):
		t.Fatal("orchestrator did not finish")
		return nil, Result{}
	}
}

func TestPlainTextTurnEndsLoop(t *testing.T) {
	provider := &scriptedProvider{turns: [][]ports.StreamChunk{
		{ports.TextChunk("hello "), ports.TextChunk("world")},
	}}
	orch := NewOrchestrator(tools.NewRegistry(nil), 10, 1024, 0, nil)

	stream, done := orch.Execute(context.Background(), provider, "", []ports.Message{{Role: "user", Content: "hi"}})
	chunks, result := collect(t, stream, done)

	assert.Equal(t, "hello world", result.FinalText)
	assert.Equal(t, 1, result.Iterations)
	assert.False(t, result.Cancelled)
	require.Len(t, chunks, 2)
}

func TestToolCallRoundTrip(t *testing.T) {
	tool := &recordingTool{name: "echo", reply: "tool says hi"}
	registry := tools.NewRegistry(nil)
	require.NoError(t, registry.Register(tool))

	call := ports.ToolCall{ID: "c1", Name: "echo", Arguments: map[string]any{"k": "v"}}
	provider := &scriptedProvider{turns: [][]ports.StreamChunk{
		{ports.ToolCallChunk(call)},
		{ports.TextChunk("all done")},
	}}
	orch := NewOrchestrator(registry, 10, 1024, 0, nil)

	stream, done := orch.Execute(context.Background(), provider, "sys", []ports.Message{{Role: "user", Content: "go"}})
	chunks, result := collect(t, stream, done)

	require.Len(t, tool.calls, 1)
	assert.Equal(t, "v", tool.calls[0].Arguments["k"])
	assert.Equal(t, "all done", result.FinalText)
	assert.Equal(t, 2, result.Iterations)

	// The transcript carries the assistant tool-call turn and the tool reply.
	require.Len(t, result.Messages, 3)
	assert.Equal(t, "assistant", result.Messages[1].Role)
	assert.Equal(t, "tool", result.Messages[2].Role)
	assert.Equal(t, "tool says hi", result.Messages[2].Content)

	var kinds []ports.ChunkKind
	for _, chunk := range chunks {
		kinds = append(kinds, chunk.Kind)
	}
	assert.Contains(t, kinds, ports.ChunkToolResult)
}

func TestDeltaStreamAutoFinalizes(t *testing.T) {
	tool := &recordingTool{name: "echo", reply: "ok"}
	registry := tools.NewRegistry(nil)
	require.NoError(t, registry.Register(tool))

	// The stream ends mid-call: only deltas, no terminating tool_call.
	provider := &scriptedProvider{turns: [][]ports.StreamChunk{
		{
			{Kind: ports.ChunkToolCallDelta, Delta: &ports.ToolCallDelta{ID: "d1", Name: "echo", PartialArgs: `{"x":`}},
			{Kind: ports.ChunkToolCallDelta, Delta: &ports.ToolCallDelta{ID: "d1", PartialArgs: `1}`}},
		},
		{ports.TextChunk("finished")},
	}}
	orch := NewOrchestrator(registry, 10, 1024, 0, nil)

	stream, done := orch.Execute(context.Background(), provider, "", []ports.Message{{Role: "user", Content: "go"}})
	_, result := collect(t, stream, done)

	require.Len(t, tool.calls, 1)
	assert.Equal(t, "d1", tool.calls[0].ID)
	assert.Equal(t, float64(1), tool.calls[0].Arguments["x"])
	assert.Equal(t, "finished", result.FinalText)
}

func TestIterationCapStopsLoop(t *testing.T) {
	tool := &recordingTool{name: "echo", reply: "again"}
	registry := tools.NewRegistry(nil)
	require.NoError(t, registry.Register(tool))

	// Every turn issues another tool call; the cap has to intervene.
	turns := make([][]ports.StreamChunk, 5)
	for i := range turns {
		turns[i] = []ports.StreamChunk{ports.ToolCallChunk(ports.ToolCall{ID: "c", Name: "echo"})}
	}
	provider := &scriptedProvider{turns: turns}
	orch := NewOrchestrator(registry, 2, 1024, 0, nil)

	stream, done := orch.Execute(context.Background(), provider, "", []ports.Message{{Role: "user", Content: "go"}})
	chunks, result := collect(t, stream, done)

	assert.Equal(t, 2, result.Iterations)
	assert.Len(t, tool.calls, 2)

	last := chunks[len(chunks)-1]
	assert.Equal(t, ports.ChunkText, last.Kind)
	assert.Contains(t, last.Text, "maximum of 2 iterations")
}

func TestToolResultRenderingTruncatesLongOutput(t *testing.T) {
	long := strings.Repeat("lorem ipsum dolor sit amet ", 20000)
	rendered := renderToolResult(ports.ToolResult{CallID: "c1", Content: long})
	assert.Less(t, len(rendered), len(long))
	assert.True(t, strings.HasSuffix(rendered, "..."))

	short := renderToolResult(ports.ToolResult{CallID: "c2", Content: "small output"})
	assert.Equal(t, "small output", short)
}

func TestCancelledContextMarksResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	provider := &scriptedProvider{turns: [][]ports.StreamChunk{{ports.TextChunk("never")}}}
	orch := NewOrchestrator(tools.NewRegistry(nil), 10, 1024, 0, nil)

	stream, done := orch.Execute(ctx, provider, "", []ports.Message{{Role: "user", Content: "go"}})
	_, result := collect(t, stream, done)
	assert.True(t, result.Cancelled)
}
