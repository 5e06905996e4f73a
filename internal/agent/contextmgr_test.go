package agent

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codesm/internal/agent/ports"
)

func makeMessages(n int) []ports.Message {
	msgs := make([]ports.Message, 0, n+1)
	msgs = append(msgs, ports.Message{Role: "system", Content: "base instructions"})
	for i := 0; i < n; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		msgs = append(msgs, ports.Message{
			Role:    role,
			Content: fmt.Sprintf("message %d %s", i, strings.Repeat("x", 400)),
		})
	}
	return msgs
}

func TestCompactBelowThresholdIsIdentity(t *testing.T) {
	m := NewContextManager(1_000_000, nil, nil)
	msgs := makeMessages(10)

	out, err := m.Compact(context.Background(), msgs)
	require.NoError(t, err)
	assert.Equal(t, msgs, out)
}

func TestCompactKeepsSystemAndTail(t *testing.T) {
	msgs := makeMessages(60)
	m := NewContextManager(100, nil, nil) // tiny window forces compaction

	out, err := m.Compact(context.Background(), msgs)
	require.NoError(t, err)

	// base system + one summary + the last 20 verbatim
	require.Len(t, out, 22)
	assert.Equal(t, "base instructions", out[0].Content)
	assert.True(t, out[1].IsContextSummary())
	assert.Equal(t, msgs[len(msgs)-20:], out[2:])
}

func TestCompactSummaryMentionsCounts(t *testing.T) {
	msgs := makeMessages(60)
	m := NewContextManager(100, nil, nil)

	out, err := m.Compact(context.Background(), msgs)
	require.NoError(t, err)
	assert.Contains(t, out[1].Content, "Summary of earlier conversation")
}

func TestCompactShortHistoryStaysIntact(t *testing.T) {
	// Everything fits in the tail, so there is nothing to summarize even
	// above the threshold.
	msgs := makeMessages(10)
	m := NewContextManager(10, nil, nil)

	out, err := m.Compact(context.Background(), msgs)
	require.NoError(t, err)
	assert.Equal(t, msgs, out)
}

func TestEstimateTokensCountsToolCalls(t *testing.T) {
	m := NewContextManager(1000, nil, nil)
	plain := m.EstimateTokens([]ports.Message{{Role: "user", Content: "hello there"}})
	withCall := m.EstimateTokens([]ports.Message{{
		Role:    "user",
		Content: "hello there",
		ToolCalls: []ports.ToolCall{{
			Name:      "grep",
			Arguments: map[string]any{"pattern": "needle in a haystack"},
		}},
	}})
	assert.Greater(t, withCall, plain)
}
