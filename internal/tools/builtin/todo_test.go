package builtin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codesm/internal/agent/ports"
	"codesm/internal/session/filestore"
)

func todoSetup(t *testing.T) (ports.ToolExecutor, context.Context) {
	t.Helper()
	store, err := filestore.New(t.TempDir(), nil, nil)
	require.NoError(t, err)
	session, err := store.Create(context.Background(), t.TempDir())
	require.NoError(t, err)

	ctx := ports.WithToolContext(context.Background(), &ports.ToolContext{
		SessionID: session.ID,
		Session:   store,
	})
	return NewTodo(Deps{Sessions: store}), ctx
}

func todoCall(t *testing.T, tool ports.ToolExecutor, ctx context.Context, args map[string]any) *ports.ToolResult {
	t.Helper()
	result, err := tool.Execute(ctx, ports.ToolCall{ID: "t", Name: "todo", Arguments: args})
	require.NoError(t, err)
	return result
}

func TestTodoLifecycle(t *testing.T) {
	tool, ctx := todoSetup(t)

	added := todoCall(t, tool, ctx, map[string]any{"action": "add", "text": "write tests"})
	require.NoError(t, added.Error)
	assert.Contains(t, added.Content, "[ ] #1 write tests")

	started := todoCall(t, tool, ctx, map[string]any{"action": "start", "id": float64(1)})
	require.NoError(t, started.Error)
	assert.Contains(t, started.Content, "[>] #1")

	done := todoCall(t, tool, ctx, map[string]any{"action": "done", "id": float64(1)})
	require.NoError(t, done.Error)
	assert.Contains(t, done.Content, "[x] #1")

	cleared := todoCall(t, tool, ctx, map[string]any{"action": "clear_done"})
	require.NoError(t, cleared.Error)
	assert.Equal(t, "No todos", cleared.Content)
}

func TestTodoNextIDFollowsHighestLive(t *testing.T) {
	tool, ctx := todoSetup(t)
	todoCall(t, tool, ctx, map[string]any{"action": "add", "text": "a"})
	todoCall(t, tool, ctx, map[string]any{"action": "add", "text": "b"})
	todoCall(t, tool, ctx, map[string]any{"action": "delete", "id": float64(2)})

	result := todoCall(t, tool, ctx, map[string]any{"action": "add", "text": "c"})
	require.NoError(t, result.Error)
	assert.Contains(t, result.Content, "#2 c")
}

func TestTodoUnknownAction(t *testing.T) {
	tool, ctx := todoSetup(t)
	result := todoCall(t, tool, ctx, map[string]any{"action": "explode"})
	require.Error(t, result.Error)
}

func TestTodoNeedsSession(t *testing.T) {
	tool, _ := todoSetup(t)
	result := todoCall(t, tool, context.Background(), map[string]any{"action": "list"})
	require.Error(t, result.Error)
	assert.Contains(t, result.Error.Error(), "session")
}
