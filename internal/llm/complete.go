package llm

import (
	"context"
	"errors"
	"strings"

	"codesm/internal/agent/ports"
)

// Complete drains a provider stream into one text response. Title
// generation and summarization use it; tool calls in the stream are
// ignored.
func Complete(ctx context.Context, provider ports.Provider, req ports.StreamRequest) (string, error) {
	stream, err := provider.Stream(ctx, req)
	if err != nil {
		return "", err
	}
	var out strings.Builder
	var streamErr error
	for chunk := range stream {
		switch chunk.Kind {
		case ports.ChunkText:
			out.WriteString(chunk.Text)
		case ports.ChunkError:
			streamErr = errors.New(chunk.Err)
		}
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if streamErr != nil && out.Len() == 0 {
		return "", streamErr
	}
	return out.String(), nil
}
