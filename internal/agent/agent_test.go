package agent

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codesm/internal/agent/ports"
	"codesm/internal/lsp"
	"codesm/internal/mcp"
	"codesm/internal/session/filestore"
	"codesm/internal/shared/jsonx"
	"codesm/internal/shared/logging"
	"codesm/internal/tools"
)

// newTestAgent wires a facade around canned collaborators: a real file
// store in a temp dir, empty LSP/MCP managers, and the given provider.
// It returns the session directory so tests can inspect persisted state
// straight from disk.
func newTestAgent(t *testing.T, provider ports.Provider, registry *tools.Registry) (*Agent, string) {
	t.Helper()
	sessionDir := t.TempDir()
	store, err := filestore.New(sessionDir, nil, nil)
	require.NoError(t, err)
	workDir := t.TempDir()
	session, err := store.Create(context.Background(), workDir)
	require.NoError(t, err)

	return &Agent{
		workDir:    workDir,
		logger:     logging.OrNop(nil),
		provider:   provider,
		registry:   registry,
		sessions:   store,
		session:    session,
		lspMux:     lsp.NewMultiplexer(workDir, nil),
		mcpManager: mcp.NewManager(nil),
		contextMgr: NewContextManager(200000, nil, nil),
		orch:       NewOrchestrator(registry, 5, 0, 0, nil),
	}, sessionDir
}

// signalingTool closes a channel the first time it runs.
type signalingTool struct {
	name     string
	executed chan struct{}
	once     sync.Once
}

func (s *signalingTool) Execute(_ context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	s.once.Do(func() { close(s.executed) })
	return &ports.ToolResult{CallID: call.ID, Content: "done"}, nil
}

func (s *signalingTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{Name: s.name, Parameters: ports.ParameterSchema{Type: "object"}}
}

func (s *signalingTool) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Name: s.name, Version: "1.0.0"}
}

func TestChatPersistsTurnAndCountsUsage(t *testing.T) {
	provider := &scriptedProvider{turns: [][]ports.StreamChunk{
		{ports.TextChunk("hi "), ports.TextChunk("there")},
	}}
	a, _ := newTestAgent(t, provider, tools.NewRegistry(nil))

	stream, err := a.Chat(context.Background(), "hello")
	require.NoError(t, err)
	var text strings.Builder
	for chunk := range stream {
		if chunk.Kind == ports.ChunkText {
			text.WriteString(chunk.Text)
		}
	}
	assert.Equal(t, "hi there", text.String())

	messages, err := a.sessions.GetMessages(context.Background(), a.SessionID())
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "assistant", messages[1].Role)
	assert.Equal(t, "hi there", messages[1].Content)

	// The provider reports no usage; the final text still counts toward
	// the session totals.
	assert.Greater(t, a.Usage(context.Background()).TotalTokens, 0)
}

func TestChatAbandonedConsumerStillPersists(t *testing.T) {
	tool := &signalingTool{name: "mark", executed: make(chan struct{})}
	registry := tools.NewRegistry(nil)
	require.NoError(t, registry.Register(tool))

	// Turn one issues a tool call; turn two floods far more text than the
	// stream and output buffers hold combined.
	flood := make([]ports.StreamChunk, 100)
	for i := range flood {
		flood[i] = ports.TextChunk("chunk ")
	}
	provider := &scriptedProvider{turns: [][]ports.StreamChunk{
		{ports.ToolCallChunk(ports.ToolCall{ID: "c1", Name: "mark"})},
		flood,
	}}
	a, sessionDir := newTestAgent(t, provider, registry)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err := a.Chat(ctx, "start")
	require.NoError(t, err)

	// The consumer walks away without reading a single chunk. Give the
	// flood time to fill both buffers, then cancel: the turn must still
	// wind down and persist the tool exchange.
	<-tool.executed
	time.Sleep(100 * time.Millisecond)
	cancel()

	sessionFile := filepath.Join(sessionDir, a.SessionID()+".json")
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(sessionFile)
		if err != nil {
			return false
		}
		var session ports.Session
		if jsonx.Unmarshal(data, &session) != nil {
			return false
		}
		// user message, assistant tool-call turn, tool reply
		return len(session.Messages) >= 3
	}, 3*time.Second, 10*time.Millisecond, "cancelled turn was never persisted")
}
