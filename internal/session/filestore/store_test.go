package filestore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codesm/internal/agent/ports"
)

type staticTitles struct{ title string }

func (s staticTitles) Title(context.Context, string) (string, error) {
	return s.title, nil
}

func newTestStore(t *testing.T, titles ports.TitleProvider) ports.SessionStore {
	t.Helper()
	store, err := New(t.TempDir(), titles, nil)
	require.NoError(t, err)
	return store
}

func TestCreateAndReload(t *testing.T) {
	store := newTestStore(t, nil)
	ctx := context.Background()

	session, err := store.Create(ctx, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, ports.DefaultSessionTitle, session.Title)

	require.NoError(t, store.AddMessage(ctx, session.ID, ports.Message{Role: "user", Content: "hi"}))

	loaded, err := store.Get(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Messages, 1)
	assert.Equal(t, "hi", loaded.Messages[0].Content)
	assert.False(t, loaded.Messages[0].Timestamp.IsZero())
}

func TestTitleGeneratedOnFirstUserMessage(t *testing.T) {
	store := newTestStore(t, staticTitles{title: "Fix the build"})
	ctx := context.Background()

	session, err := store.Create(ctx, t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.AddMessage(ctx, session.ID, ports.Message{Role: "user", Content: "the build is broken"}))
	loaded, err := store.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "Fix the build", loaded.Title)
	assert.True(t, loaded.TitleGenerated)

	// A second user message must not retitle.
	require.NoError(t, store.AddMessage(ctx, session.ID, ports.Message{Role: "user", Content: "something else"}))
	loaded, err = store.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "Fix the build", loaded.Title)
}

func TestGetMessagesDropsToolTurns(t *testing.T) {
	store := newTestStore(t, nil)
	ctx := context.Background()

	session, err := store.Create(ctx, t.TempDir())
	require.NoError(t, err)

	msgs := []ports.Message{
		{Role: "user", Content: "read the file"},
		{Role: "assistant", ToolCalls: []ports.ToolCall{{ID: "c1", Name: "read"}}},
		{Role: "tool", Content: "file body", ToolCallID: "c1"},
		{Role: "assistant", Content: "here is what I found"},
	}
	for _, msg := range msgs {
		require.NoError(t, store.AddMessage(ctx, session.ID, msg))
	}

	visible, err := store.GetMessages(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, visible, 2)
	assert.Equal(t, "user", visible[0].Role)
	assert.Equal(t, "here is what I found", visible[1].Content)
}

func TestVisibleMessagesKeepsSystem(t *testing.T) {
	visible := VisibleMessages([]ports.Message{
		{Role: "system", Content: "instructions"},
		{Role: "tool", Content: "x"},
		{Role: "assistant", Content: "answer"},
	})
	require.Len(t, visible, 2)
	assert.Equal(t, "system", visible[0].Role)
}

func TestListAndDelete(t *testing.T) {
	store := newTestStore(t, nil)
	ctx := context.Background()

	a, err := store.Create(ctx, t.TempDir())
	require.NoError(t, err)
	b, err := store.Create(ctx, t.TempDir())
	require.NoError(t, err)

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Contains(t, ids, a.ID)
	assert.Contains(t, ids, b.ID)

	require.NoError(t, store.Delete(ctx, a.ID))
	_, err = store.Get(ctx, a.ID)
	assert.Error(t, err)
}
