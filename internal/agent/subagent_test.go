package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codesm/internal/agent/ports"
	"codesm/internal/tools"
)

func testRunner(answer string) *Runner {
	factory := func(string) (ports.Provider, error) {
		return &scriptedProvider{turns: [][]ports.StreamChunk{{ports.TextChunk(answer)}}}, nil
	}
	return NewRunner(tools.NewRegistry(nil), factory, 1024, nil)
}

func TestRunnerRunsSubagentToCompletion(t *testing.T) {
	runner := testRunner("the answer")
	text, err := runner.Run(context.Background(), "coder", "do the thing")
	require.NoError(t, err)
	assert.Equal(t, "the answer", text)
}

func TestRunnerRejectsUnknownType(t *testing.T) {
	runner := testRunner("x")
	_, err := runner.Run(context.Background(), "wizard", "prompt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown subagent type")
	assert.Contains(t, err.Error(), "coder")
}

func TestRunnerNarrowsParentRegistry(t *testing.T) {
	parent := tools.NewRegistry(nil)
	for _, name := range []string{"read", "bash", "task"} {
		require.NoError(t, parent.Register(&recordingTool{name: name}))
	}
	runner := testRunner("x")
	runner.parent = parent

	narrowed := runner.narrowed([]string{"read", "grep"})
	_, err := narrowed.Get("read")
	assert.NoError(t, err)
	_, err = narrowed.Get("grep") // not in parent, silently absent
	assert.Error(t, err)
	_, err = narrowed.Get("task") // never inherited
	assert.Error(t, err)
}

func TestTaskToolRequiresArguments(t *testing.T) {
	tool := NewTaskTool(testRunner("x"))
	result, err := tool.Execute(context.Background(), ports.ToolCall{ID: "1", Arguments: map[string]any{}})
	require.NoError(t, err)
	require.Error(t, result.Error)
}

func TestTaskToolReportsElapsed(t *testing.T) {
	tool := NewTaskTool(testRunner("done"))
	result, err := tool.Execute(context.Background(), ports.ToolCall{ID: "1", Arguments: map[string]any{
		"subagent_type": "finder",
		"prompt":        "locate it",
	}})
	require.NoError(t, err)
	require.NoError(t, result.Error)
	assert.Equal(t, "done", result.Content)
	assert.Contains(t, result.Metadata, "elapsed_ms")
}

func TestParallelTasksAggregatesInInputOrder(t *testing.T) {
	tool := NewParallelTasksTool(testRunner("answered"))
	tasks := []any{
		map[string]any{"subagent_type": "coder", "prompt": "a", "description": "first"},
		map[string]any{"subagent_type": "finder", "prompt": "b", "description": "second"},
	}
	result, err := tool.Execute(context.Background(), ports.ToolCall{ID: "1", Arguments: map[string]any{"tasks": tasks}})
	require.NoError(t, err)
	require.NoError(t, result.Error)

	first := "## Task 1: first"
	second := "## Task 2: second"
	assert.Contains(t, result.Content, first)
	assert.Contains(t, result.Content, second)
	assert.Less(t, strings.Index(result.Content, first), strings.Index(result.Content, second))
}

func TestParallelTasksTruncatesBeyondCap(t *testing.T) {
	tool := NewParallelTasksTool(testRunner("ok"))
	tasks := make([]any, MaxParallelTasks+3)
	for i := range tasks {
		tasks[i] = map[string]any{"subagent_type": "coder", "prompt": fmt.Sprintf("p%d", i)}
	}
	result, err := tool.Execute(context.Background(), ports.ToolCall{ID: "1", Arguments: map[string]any{"tasks": tasks}})
	require.NoError(t, err)
	require.NoError(t, result.Error)
	assert.Contains(t, result.Content, "3 task(s) beyond the cap of 10 were dropped")
	assert.Contains(t, result.Content, fmt.Sprintf("## Task %d:", MaxParallelTasks))
	assert.NotContains(t, result.Content, fmt.Sprintf("## Task %d:", MaxParallelTasks+1))
}

func TestParallelTasksRendersFailures(t *testing.T) {
	tool := NewParallelTasksTool(testRunner("fine"))
	tasks := []any{
		map[string]any{"subagent_type": "coder", "prompt": "good"},
		map[string]any{"subagent_type": "nonsense", "prompt": "bad"},
	}
	result, err := tool.Execute(context.Background(), ports.ToolCall{ID: "1", Arguments: map[string]any{"tasks": tasks}})
	require.NoError(t, err)
	require.NoError(t, result.Error)
	assert.Contains(t, result.Content, "fine")
	assert.Contains(t, result.Content, "Failed:")
}

// blockingProvider streams nothing until its context is cancelled; it
// signals once the stream is in flight.
type blockingProvider struct {
	started chan struct{}
	once    sync.Once
}

func (p *blockingProvider) Stream(ctx context.Context, _ ports.StreamRequest) (<-chan ports.StreamChunk, error) {
	p.once.Do(func() { close(p.started) })
	out := make(chan ports.StreamChunk)
	go func() {
		<-ctx.Done()
		close(out)
	}()
	return out, nil
}

func (p *blockingProvider) Model() string { return "test/blocking" }

// failingProvider errors out, but only after the sibling stream started.
type failingProvider struct {
	after <-chan struct{}
}

func (p *failingProvider) Stream(context.Context, ports.StreamRequest) (<-chan ports.StreamChunk, error) {
	<-p.after
	return nil, fmt.Errorf("model is unavailable")
}

func (p *failingProvider) Model() string { return "test/failing" }

func TestParallelTasksFailFastCancelsInFlight(t *testing.T) {
	started := make(chan struct{})
	factory := func(identifier string) (ports.Provider, error) {
		if strings.HasPrefix(identifier, "anthropic/") {
			return &blockingProvider{started: started}, nil
		}
		return &failingProvider{after: started}, nil
	}
	tool := NewParallelTasksTool(NewRunner(tools.NewRegistry(nil), factory, 1024, nil))

	type outcome struct {
		result *ports.ToolResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := tool.Execute(context.Background(), ports.ToolCall{ID: "1", Arguments: map[string]any{
			"fail_fast": true,
			"tasks": []any{
				map[string]any{"subagent_type": "coder", "prompt": "keep going"},
				map[string]any{"subagent_type": "oracle", "prompt": "doomed"},
			},
		}})
		done <- outcome{result, err}
	}()

	select {
	case got := <-done:
		require.NoError(t, got.err)
		require.NoError(t, got.result.Error)
		// The failing task reports its failure; the in-flight sibling was
		// cancelled instead of running to completion.
		assert.Contains(t, got.result.Content, "produced no answer")
		assert.Contains(t, got.result.Content, "context canceled")
	case <-time.After(5 * time.Second):
		t.Fatal("fail_fast left an in-flight task running")
	}
}

func TestDecodeTaskSpecs(t *testing.T) {
	specs, err := decodeTaskSpecs([]any{map[string]any{"subagent_type": "coder", "prompt": "x"}})
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, "coder", specs[0].SubagentType)

	_, err = decodeTaskSpecs(nil)
	assert.Error(t, err)

	_, err = decodeTaskSpecs("not a list")
	assert.Error(t, err)
}
