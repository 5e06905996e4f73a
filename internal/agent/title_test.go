package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codesm/internal/agent/ports"
)

func TestTitleFromProvider(t *testing.T) {
	provider := &scriptedProvider{turns: [][]ports.StreamChunk{
		{ports.TextChunk(`"Fix the flaky watcher test"` + "\nextra line")},
	}}
	titles := NewTitleProvider(provider, nil)

	title, err := titles.Title(context.Background(), "the watcher test keeps failing")
	require.NoError(t, err)
	assert.Equal(t, "Fix the flaky watcher test", title)
}

func TestTitleHeuristicWithoutProvider(t *testing.T) {
	titles := NewTitleProvider(nil, nil)

	title, err := titles.Title(context.Background(), "short request")
	require.NoError(t, err)
	assert.Equal(t, "short request", title)
}

func TestHeuristicTitleTruncatesAtWordBoundary(t *testing.T) {
	long := strings.Repeat("word ", 30)
	title := heuristicTitle(long)
	assert.LessOrEqual(t, len(title), 52)
	assert.True(t, strings.HasSuffix(title, "..."))
	assert.NotContains(t, title, "  ")
}

func TestSanitizeTitleCapsWords(t *testing.T) {
	title := sanitizeTitle("one two three four five six seven eight nine ten")
	assert.Equal(t, "one two three four five six seven eight", title)
}

func TestHeuristicTitleEmptyMessage(t *testing.T) {
	assert.Equal(t, ports.DefaultSessionTitle, heuristicTitle("   \n"))
}
