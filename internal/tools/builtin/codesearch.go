package builtin

import (
	"context"
	"fmt"
	"strings"

	"codesm/internal/agent/ports"
	"codesm/internal/index"
)

type codeSearchTool struct {
	search index.Searcher
}

func NewCodeSearch(deps Deps) ports.ToolExecutor {
	return &codeSearchTool{search: deps.Search}
}

func (t *codeSearchTool) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	query := argString(call.Arguments, "query")
	if query == "" {
		return failf(call.ID, "missing 'query'"), nil
	}
	if t.search == nil {
		return failf(call.ID, "semantic index is not available; use grep instead"), nil
	}
	topK := argInt(call.Arguments, "top_k", 5)

	hits, err := t.search.Search(ctx, query, topK)
	if err != nil {
		return failf(call.ID, "search failed: %v", err), nil
	}
	if len(hits) == 0 {
		return ok(call.ID, "No results"), nil
	}

	var b strings.Builder
	for i, hit := range hits {
		fmt.Fprintf(&b, "%d. %s (score %.2f)\n%s\n\n", i+1, hit.Path, hit.Score, strings.TrimSpace(hit.Snippet))
	}
	return ok(call.ID, strings.TrimRight(b.String(), "\n")), nil
}

func (t *codeSearchTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "codesearch",
		Description: "Semantic search over the workspace index. Finds code by meaning, not exact text.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"query": {Type: "string", Description: "Natural-language or code query"},
				"top_k": {Type: "integer", Description: "Number of results, default 5"},
			},
			Required: []string{"query"},
		},
	}
}

func (t *codeSearchTool) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Name: "codesearch", Version: "1.0.0", Category: "search"}
}
