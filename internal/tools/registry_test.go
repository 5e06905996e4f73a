package tools

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codesm/internal/agent/ports"
)

type fakeTool struct {
	name     string
	mutating bool
	execute  func(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error)
}

func (f *fakeTool) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	return f.execute(ctx, call)
}

func (f *fakeTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{Name: f.name, Parameters: ports.ParameterSchema{Type: "object"}}
}

func (f *fakeTool) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Name: f.name, Version: "1.0.0", Mutating: f.mutating}
}

func echoTool(name string) *fakeTool {
	return &fakeTool{name: name, execute: func(_ context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
		return &ports.ToolResult{CallID: call.ID, Content: name}, nil
	}}
}

func TestRegisterAndGet(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(echoTool("alpha")))

	tool, err := r.Get("alpha")
	require.NoError(t, err)
	assert.Equal(t, "alpha", tool.Metadata().Name)

	_, err = r.Get("missing")
	assert.Error(t, err)

	require.NoError(t, r.Unregister("alpha"))
	assert.Error(t, r.Unregister("alpha"))
}

func TestListIsSorted(t *testing.T) {
	r := NewRegistry(nil)
	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, r.Register(echoTool(name)))
	}
	defs := r.List()
	require.Len(t, defs, 3)
	assert.Equal(t, "alpha", defs[0].Name)
	assert.Equal(t, "zeta", defs[2].Name)
}

func TestExecuteParallelPreservesInputOrder(t *testing.T) {
	r := NewRegistry(nil)
	// slow finishes last but must stay first in the results.
	require.NoError(t, r.Register(&fakeTool{name: "slow", execute: func(_ context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
		time.Sleep(50 * time.Millisecond)
		return &ports.ToolResult{CallID: call.ID, Content: "slow"}, nil
	}}))
	require.NoError(t, r.Register(echoTool("fast")))

	results := r.ExecuteParallel(context.Background(), []ports.ToolCall{
		{ID: "1", Name: "slow"},
		{ID: "2", Name: "fast"},
	})
	require.Len(t, results, 2)
	assert.Equal(t, "slow", results[0].Content)
	assert.Equal(t, "fast", results[1].Content)
}

func TestExecuteParallelUnknownTool(t *testing.T) {
	r := NewRegistry(nil)
	results := r.ExecuteParallel(context.Background(), []ports.ToolCall{{ID: "1", Name: "ghost"}})
	require.Len(t, results, 1)
	require.Error(t, results[0].Error)
	assert.Contains(t, results[0].Error.Error(), "ghost")
}

func TestExecuteParallelRecoversPanics(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(&fakeTool{name: "boom", execute: func(context.Context, ports.ToolCall) (*ports.ToolResult, error) {
		panic("kaboom")
	}}))
	results := r.ExecuteParallel(context.Background(), []ports.ToolCall{{ID: "1", Name: "boom"}})
	require.Len(t, results, 1)
	require.Error(t, results[0].Error)
	assert.Contains(t, results[0].Error.Error(), "panicked")
}

func TestMutatingCallsOnSamePathSerialize(t *testing.T) {
	r := NewRegistry(nil)
	var mu sync.Mutex
	inFlight := 0
	maxInFlight := 0

	require.NoError(t, r.Register(&fakeTool{name: "write", mutating: true, execute: func(_ context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
		return &ports.ToolResult{CallID: call.ID, Content: "done"}, nil
	}}))

	calls := make([]ports.ToolCall, 4)
	for i := range calls {
		calls[i] = ports.ToolCall{
			ID:   fmt.Sprintf("c%d", i),
			Name: "write",
			// Different spellings of the same file must still collide.
			Arguments: map[string]any{"path": "./dir/../dir/file.txt"},
		}
	}
	r.ExecuteParallel(context.Background(), calls)
	assert.Equal(t, 1, maxInFlight)
}

func TestObserverSeesOutcome(t *testing.T) {
	r := NewRegistry(nil)
	var mu sync.Mutex
	seen := map[string]string{}
	r.SetObserver(func(name, status string, _ time.Duration) {
		mu.Lock()
		seen[name] = status
		mu.Unlock()
	})
	require.NoError(t, r.Register(echoTool("good")))

	r.ExecuteParallel(context.Background(), []ports.ToolCall{
		{ID: "1", Name: "good"},
		{ID: "2", Name: "ghost"},
	})
	assert.Equal(t, "ok", seen["good"])
	assert.Equal(t, "error", seen["ghost"])
}
