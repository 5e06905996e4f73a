// Package agent contains the ReAct orchestrator, context manager,
// subagent runtime, and the facade that ties sessions, tools, and
// providers into one conversational agent.
package agent

import (
	"context"
	"fmt"
	"strings"

	"codesm/internal/agent/ports"
	"codesm/internal/shared/jsonx"
	"codesm/internal/shared/logging"
	"codesm/internal/shared/token"
)

// toolResultTokenLimit bounds what one tool execution may feed back into
// the transcript, so a single oversized output cannot swamp the window.
const toolResultTokenLimit = 8000

// Result is what one orchestrator run produced beyond the streamed
// chunks: the extended local transcript and the final assistant text.
type Result struct {
	FinalText  string
	Messages   []ports.Message
	Iterations int
	Cancelled  bool
}

// Orchestrator drives the reason/act loop: stream the model, execute the
// tool calls it emits, feed results back, repeat until the model answers
// in plain text or the iteration cap trips.
type Orchestrator struct {
	registry      ports.ToolRegistry
	maxIterations int
	maxTokens     int
	temperature   float64
	logger        logging.Logger
}

// NewOrchestrator builds the loop. maxIterations 0 means unlimited.
func NewOrchestrator(registry ports.ToolRegistry, maxIterations, maxTokens int, temperature float64, logger logging.Logger) *Orchestrator {
	return &Orchestrator{
		registry:      registry,
		maxIterations: maxIterations,
		maxTokens:     maxTokens,
		temperature:   temperature,
		logger:        logging.OrNop(logger),
	}
}

// Execute starts the loop on a copy of messages and returns the chunk
// stream plus a single-element result channel that resolves when the
// stream closes. The orchestrator never persists anything; the facade
// owns the session.
func (o *Orchestrator) Execute(ctx context.Context, provider ports.Provider, system string, messages []ports.Message) (<-chan ports.StreamChunk, <-chan Result) {
	out := make(chan ports.StreamChunk, 32)
	done := make(chan Result, 1)

	local := make([]ports.Message, len(messages))
	copy(local, messages)

	go func() {
		defer close(out)
		done <- o.run(ctx, provider, system, local, out)
	}()
	return out, done
}

func (o *Orchestrator) run(ctx context.Context, provider ports.Provider, system string, local []ports.Message, out chan<- ports.StreamChunk) Result {
	emit := func(chunk ports.StreamChunk) bool {
		select {
		case out <- chunk:
			return true
		case <-ctx.Done():
			return false
		}
	}

	tools := o.registry.List()
	var finalText string

	for iteration := 1; ; iteration++ {
		if o.maxIterations > 0 && iteration > o.maxIterations {
			msg := fmt.Sprintf("Reached the maximum of %d iterations; stopping here.", o.maxIterations)
			emit(ports.TextChunk(msg))
			return Result{FinalText: finalText, Messages: local, Iterations: iteration - 1}
		}
		if ctx.Err() != nil {
			return Result{FinalText: finalText, Messages: local, Iterations: iteration - 1, Cancelled: true}
		}

		stream, err := provider.Stream(ctx, ports.StreamRequest{
			System:      system,
			Messages:    local,
			Tools:       tools,
			MaxTokens:   o.maxTokens,
			Temperature: o.temperature,
		})
		if err != nil {
			emit(ports.ErrorChunk(fmt.Sprintf("provider request failed: %v", err)))
			return Result{FinalText: finalText, Messages: local, Iterations: iteration}
		}

		turn := o.consumeTurn(ctx, stream, emit)
		if ctx.Err() != nil {
			return Result{FinalText: finalText, Messages: local, Iterations: iteration, Cancelled: true}
		}
		if turn.text != "" {
			finalText = turn.text
		}

		if len(turn.calls) == 0 {
			return Result{FinalText: finalText, Messages: local, Iterations: iteration}
		}

		local = append(local, ports.Message{
			Role:      "assistant",
			Content:   turn.text,
			ToolCalls: turn.calls,
		})

		o.logger.Debug("react: iteration %d executing %d tool call(s)", iteration, len(turn.calls))
		results := o.registry.ExecuteParallel(ctx, turn.calls)

		// Results re-enter in the provider's call order, which
		// ExecuteParallel already preserves.
		for i, result := range results {
			call := turn.calls[i]
			content := renderToolResult(result)
			local = append(local, ports.Message{
				Role:       "tool",
				Content:    content,
				ToolCallID: call.ID,
			})
			if !emit(ports.ToolResultChunkOf(call.ID, call.Name, content)) {
				return Result{FinalText: finalText, Messages: local, Iterations: iteration, Cancelled: true}
			}
		}
	}
}

type turnOutcome struct {
	text  string
	calls []ports.ToolCall
}

// consumeTurn drains one provider stream: text is forwarded verbatim,
// finalized tool calls are collected, and delta fragments are both
// forwarded and accumulated so a stream that ends mid-call still yields a
// complete call.
func (o *Orchestrator) consumeTurn(ctx context.Context, stream <-chan ports.StreamChunk, emit func(ports.StreamChunk) bool) turnOutcome {
	var text strings.Builder
	var calls []ports.ToolCall
	finalized := map[string]bool{}

	type pendingDelta struct {
		name string
		args strings.Builder
	}
	pending := map[string]*pendingDelta{}
	var pendingOrder []string

	for chunk := range stream {
		switch chunk.Kind {
		case ports.ChunkText:
			text.WriteString(chunk.Text)
			if !emit(chunk) {
				return turnOutcome{text: text.String(), calls: calls}
			}
		case ports.ChunkToolCall:
			if chunk.ToolCall != nil {
				calls = append(calls, *chunk.ToolCall)
				finalized[chunk.ToolCall.ID] = true
				if !emit(chunk) {
					return turnOutcome{text: text.String(), calls: calls}
				}
			}
		case ports.ChunkToolCallDelta:
			if chunk.Delta != nil {
				p, known := pending[chunk.Delta.ID]
				if !known {
					p = &pendingDelta{}
					pending[chunk.Delta.ID] = p
					pendingOrder = append(pendingOrder, chunk.Delta.ID)
				}
				if chunk.Delta.Name != "" {
					p.name = chunk.Delta.Name
				}
				p.args.WriteString(chunk.Delta.PartialArgs)
			}
			if !emit(chunk) {
				return turnOutcome{text: text.String(), calls: calls}
			}
		case ports.ChunkError:
			o.logger.Warn("react: provider stream error: %s", chunk.Err)
			emit(chunk)
		}
		if ctx.Err() != nil {
			return turnOutcome{text: text.String(), calls: calls}
		}
	}

	// Providers normally finalize their own calls; the fallback covers a
	// delta stream that ended without its terminating event.
	for _, id := range pendingOrder {
		if id == "" || finalized[id] {
			continue
		}
		p := pending[id]
		calls = append(calls, ports.ToolCall{
			ID:        id,
			Name:      p.name,
			Arguments: jsonx.DecodeArguments(p.args.String()),
		})
	}
	return turnOutcome{text: text.String(), calls: calls}
}

// renderToolResult flattens a result into the prose the model reads,
// truncated to the token budget.
func renderToolResult(result ports.ToolResult) string {
	var msg string
	switch {
	case result.Error != nil:
		msg = "Error: " + result.Error.Error()
		if result.Content != "" {
			msg += "\n" + result.Content
		}
	case result.Content == "":
		return "(no output)"
	default:
		msg = result.Content
	}
	return token.TruncateToTokens(msg, toolResultTokenLimit)
}
