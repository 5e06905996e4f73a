package llm

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codesm/internal/agent/ports"
)

func TestResolveAliases(t *testing.T) {
	assert.Equal(t, "anthropic/claude-sonnet-4-5", Resolve("smart"))
	assert.Equal(t, "router/openrouter/auto", Resolve("router"))
	assert.Equal(t, "openai/custom-model", Resolve("openai/custom-model"))
}

func TestSplitIdentifiers(t *testing.T) {
	provider, model, err := Split("anthropic/claude-haiku-4-5")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", provider)
	assert.Equal(t, "claude-haiku-4-5", model)

	// Router identifiers keep their vendor-qualified remainder.
	provider, model, err = Split("router")
	require.NoError(t, err)
	assert.Equal(t, "router", provider)
	assert.Equal(t, "openrouter/auto", model)

	_, _, err = Split("no-slash")
	assert.Error(t, err)
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := New("mystery/model-x", Options{})
	assert.Error(t, err)
}

func TestStreamClientLeavesBodyUnbounded(t *testing.T) {
	client := newStreamClient(5 * time.Second)
	assert.Zero(t, client.Timeout)
	transport := client.Transport.(*http.Transport)
	assert.Equal(t, 5*time.Second, transport.ResponseHeaderTimeout)
}

func TestToolConversionPrefersRawSchema(t *testing.T) {
	raw := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"level": map[string]any{"type": "integer", "enum": []any{1, 2, 3}},
		},
	}
	tools := []ports.ToolDefinition{{Name: "compile", RawParameters: raw}}

	anthropic := convertAnthropicTools(tools)
	require.Len(t, anthropic, 1)
	assert.Equal(t, raw, anthropic[0]["input_schema"])

	openai := convertOpenAITools(tools)
	require.Len(t, openai, 1)
	assert.Equal(t, raw, openai[0]["function"].(map[string]any)["parameters"])
}

func TestNewBuildsKnownProviders(t *testing.T) {
	for _, identifier := range []string{"smart", "oracle", "router"} {
		provider, err := New(identifier, Options{APIKeys: map[string]string{
			"anthropic": "k", "openai": "k", "router": "k",
		}})
		require.NoError(t, err, identifier)
		assert.NotEmpty(t, provider.Model())
	}
}
