package agent

import (
	"context"
	"strings"
	"unicode"

	"codesm/internal/agent/ports"
	"codesm/internal/llm"
	"codesm/internal/shared/logging"
)

const titleWordLimit = 8

// llmTitleProvider asks a cheap model for a short session title and falls
// back to a truncation heuristic when the call fails.
type llmTitleProvider struct {
	provider ports.Provider
	logger   logging.Logger
}

var _ ports.TitleProvider = (*llmTitleProvider)(nil)

// NewTitleProvider builds the title generator. provider may be nil; the
// heuristic then handles every call.
func NewTitleProvider(provider ports.Provider, logger logging.Logger) ports.TitleProvider {
	return &llmTitleProvider{provider: provider, logger: logging.OrNop(logger)}
}

func (t *llmTitleProvider) Title(ctx context.Context, firstUserMessage string) (string, error) {
	if t.provider != nil {
		prompt := "Write a session title of at most " +
			"8 words for this request. Answer with the title only, no quotes.\n\n" + firstUserMessage
		text, err := llm.Complete(ctx, t.provider, ports.StreamRequest{
			Messages:  []ports.Message{{Role: "user", Content: prompt}},
			MaxTokens: 32,
		})
		if err == nil {
			if title := sanitizeTitle(text); title != "" {
				return title, nil
			}
		} else {
			t.logger.Warn("title: generation failed, using heuristic: %v", err)
		}
	}
	return heuristicTitle(firstUserMessage), nil
}

// sanitizeTitle strips quoting and newlines and enforces the word cap.
func sanitizeTitle(raw string) string {
	title := strings.TrimSpace(raw)
	if idx := strings.IndexByte(title, '\n'); idx >= 0 {
		title = title[:idx]
	}
	title = strings.Trim(title, `"'`+"` ")
	words := strings.Fields(title)
	if len(words) > titleWordLimit {
		words = words[:titleWordLimit]
	}
	return strings.Join(words, " ")
}

// heuristicTitle takes the first line of the message, cut at a word
// boundary near 48 characters.
func heuristicTitle(message string) string {
	line := strings.TrimSpace(message)
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	if line == "" {
		return ports.DefaultSessionTitle
	}
	if len(line) <= 48 {
		return line
	}
	cut := 48
	for cut > 20 && !unicode.IsSpace(rune(line[cut])) {
		cut--
	}
	return strings.TrimSpace(line[:cut]) + "..."
}
