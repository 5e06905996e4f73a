package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"codesm/internal/agent/ports"
	"codesm/internal/llm"
	"codesm/internal/shared/logging"
	"codesm/internal/shared/token"
)

const (
	// compactionThreshold is the fraction of the window that triggers a
	// summary pass.
	compactionThreshold = 0.8
	// compactionKeepTail messages stay verbatim at the end of the list.
	compactionKeepTail = 20
	// excerptLimit bounds each message's contribution to the summary input.
	excerptLimit = 500
)

// ContextManager watches token pressure and replaces the middle of long
// conversations with one summary message.
type ContextManager struct {
	window     int
	summarizer ports.Provider
	logger     logging.Logger
}

var _ ports.ContextManager = (*ContextManager)(nil)

// NewContextManager builds the manager. summarizer may be nil; the
// heuristic fallback then handles every compaction.
func NewContextManager(window int, summarizer ports.Provider, logger logging.Logger) *ContextManager {
	return &ContextManager{
		window:     window,
		summarizer: summarizer,
		logger:     logging.OrNop(logger),
	}
}

// EstimateTokens sums the deterministic per-message heuristic.
func (m *ContextManager) EstimateTokens(messages []ports.Message) int {
	total := 0
	for _, msg := range messages {
		total += token.Estimate(msg.Content)
		for _, call := range msg.ToolCalls {
			total += token.Estimate(call.Name)
			for key, value := range call.Arguments {
				total += token.Estimate(key) + token.Estimate(fmt.Sprintf("%v", value))
			}
		}
	}
	return total
}

// Compact returns the input unchanged below the threshold. Above it, the
// original system messages and the last messages survive verbatim and
// everything between collapses into a single summary system message.
func (m *ContextManager) Compact(ctx context.Context, messages []ports.Message) ([]ports.Message, error) {
	if len(messages) == 0 || m.window <= 0 {
		return messages, nil
	}
	estimate := m.EstimateTokens(messages)
	if float64(estimate) < compactionThreshold*float64(m.window) {
		return messages, nil
	}

	tailStart := len(messages) - compactionKeepTail
	if tailStart < 0 {
		tailStart = 0
	}

	var systems []ports.Message
	var middle []ports.Message
	for i, msg := range messages {
		if i >= tailStart {
			break
		}
		if msg.Role == "system" && !msg.IsContextSummary() {
			systems = append(systems, msg)
		} else {
			middle = append(middle, msg)
		}
	}
	if len(middle) == 0 {
		return messages, nil
	}

	m.logger.Info("context: compacting %d messages (~%d tokens, window %d)", len(middle), estimate, m.window)
	summary := m.summarize(ctx, middle)

	out := make([]ports.Message, 0, len(systems)+1+compactionKeepTail)
	out = append(out, systems...)
	out = append(out, ports.Message{
		Role:      "system",
		Content:   summary,
		Timestamp: time.Now(),
		Metadata:  map[string]any{ports.MetadataContextSummary: true},
	})
	out = append(out, messages[tailStart:]...)
	return out, nil
}

func (m *ContextManager) summarize(ctx context.Context, middle []ports.Message) string {
	input := formatForSummary(middle)
	if m.summarizer != nil {
		prompt := "Summarize this conversation segment for an AI coding assistant that will continue the session. " +
			"Keep file paths, decisions, unresolved tasks, and important results. Be dense and factual.\n\n" + input
		text, err := llm.Complete(ctx, m.summarizer, ports.StreamRequest{
			Messages:  []ports.Message{{Role: "user", Content: prompt}},
			MaxTokens: 1024,
		})
		if err == nil && strings.TrimSpace(text) != "" {
			return "Summary of earlier conversation:\n" + strings.TrimSpace(text)
		}
		m.logger.Warn("context: summarization failed, using heuristic: %v", err)
	}
	return heuristicSummary(middle)
}

// formatForSummary renders role-tagged excerpts for the summarizer.
func formatForSummary(messages []ports.Message) string {
	var b strings.Builder
	for _, msg := range messages {
		content := msg.Content
		if len(content) > excerptLimit {
			content = content[:excerptLimit] + "..."
		}
		if content == "" && len(msg.ToolCalls) > 0 {
			names := make([]string, 0, len(msg.ToolCalls))
			for _, call := range msg.ToolCalls {
				names = append(names, call.Name)
			}
			content = "(called tools: " + strings.Join(names, ", ") + ")"
		}
		fmt.Fprintf(&b, "[%s] %s\n", msg.Role, content)
	}
	return b.String()
}

// heuristicSummary keeps compaction alive when no summarizer is
// reachable: counts plus the first user request and the last exchanges.
func heuristicSummary(messages []ports.Message) string {
	var firstUser string
	toolCalls := 0
	for _, msg := range messages {
		if firstUser == "" && msg.Role == "user" {
			firstUser = msg.Content
			if len(firstUser) > excerptLimit {
				firstUser = firstUser[:excerptLimit] + "..."
			}
		}
		toolCalls += len(msg.ToolCalls)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Summary of earlier conversation (%d messages, %d tool calls).", len(messages), toolCalls)
	if firstUser != "" {
		b.WriteString(" The session started with: " + firstUser)
	}
	return b.String()
}
