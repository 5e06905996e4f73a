package llm

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"codesm/internal/agent/ports"
	"codesm/internal/shared/jsonx"
	"codesm/internal/shared/logging"
)

const (
	defaultAnthropicBaseURL   = "https://api.anthropic.com/v1"
	defaultAnthropicVersion   = "2023-06-01"
	anthropicVersionHeaderKey = "anthropic-version"
	anthropicAPIKeyHeaderKey  = "x-api-key"
	anthropicMessagesPath     = "/messages"
)

type anthropicProvider struct {
	model      string
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     logging.Logger

	usageMu   sync.Mutex
	lastUsage ports.TokenUsage
}

func newAnthropicProvider(model string, opts Options, logger logging.Logger) *anthropicProvider {
	return &anthropicProvider{
		model:      model,
		apiKey:     opts.apiKey("anthropic"),
		baseURL:    opts.baseURL("anthropic", defaultAnthropicBaseURL),
		httpClient: newStreamClient(opts.timeout()),
		logger:     logger,
	}
}

func (p *anthropicProvider) Model() string {
	return "anthropic/" + p.model
}

func (p *anthropicProvider) LastUsage() ports.TokenUsage {
	p.usageMu.Lock()
	defer p.usageMu.Unlock()
	return p.lastUsage
}

func (p *anthropicProvider) Stream(ctx context.Context, req ports.StreamRequest) (<-chan ports.StreamChunk, error) {
	payload := map[string]any{
		"model":      p.model,
		"max_tokens": maxTokensOrDefault(req.MaxTokens),
		"messages":   convertAnthropicMessages(req.Messages),
		"stream":     true,
	}
	if req.System != "" {
		payload["system"] = req.System
	}
	if req.Temperature > 0 {
		payload["temperature"] = req.Temperature
	}
	if len(req.Tools) > 0 {
		payload["tools"] = convertAnthropicTools(req.Tools)
	}

	body, err := jsonx.Marshal(payload)
	if err != nil {
		return nil, err
	}

	headers := map[string]string{
		anthropicVersionHeaderKey: defaultAnthropicVersion,
	}
	if p.apiKey != "" {
		headers[anthropicAPIKeyHeaderKey] = p.apiKey
	}

	p.logger.Debug("anthropic stream: model=%s messages=%d tools=%d", p.model, len(req.Messages), len(req.Tools))
	resp, err := postJSON(ctx, p.httpClient, p.baseURL+anthropicMessagesPath, headers, body)
	if err != nil {
		return nil, err
	}

	out := make(chan ports.StreamChunk, 16)
	go func() {
		defer close(out)
		defer func() { _ = resp.Body.Close() }()
		p.consume(ctx, resp, out)
	}()
	return out, nil
}

type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`

	ContentBlock *struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
		Text string `json:"text"`
	} `json:"content_block"`

	Delta *struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
		StopReason  string `json:"stop_reason"`
	} `json:"delta"`

	Message *struct {
		Usage anthropicUsage `json:"usage"`
	} `json:"message"`

	Usage *anthropicUsage `json:"usage"`

	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func (p *anthropicProvider) consume(ctx context.Context, resp *http.Response, out chan<- ports.StreamChunk) {
	acc := newCallAccumulator()
	toolBlocks := map[int]bool{}
	usage := ports.TokenUsage{}

	emit := func(chunk ports.StreamChunk) bool {
		select {
		case out <- chunk:
			return true
		case <-ctx.Done():
			return false
		}
	}

	err := readSSE(ctx, resp.Body, func(event sseEvent) error {
		var ev anthropicStreamEvent
		if err := jsonx.Unmarshal([]byte(event.Data), &ev); err != nil {
			// Partial-argument JSON inside the event payload is the
			// vendor's concern; a frame we cannot parse is a real error.
			return err
		}

		switch ev.Type {
		case "message_start":
			if ev.Message != nil {
				usage.PromptTokens = ev.Message.Usage.InputTokens
			}
		case "content_block_start":
			if ev.ContentBlock != nil && ev.ContentBlock.Type == "tool_use" {
				toolBlocks[ev.Index] = true
				acc.start(ev.Index, ev.ContentBlock.ID, ev.ContentBlock.Name)
			}
		case "content_block_delta":
			if ev.Delta == nil {
				return nil
			}
			switch ev.Delta.Type {
			case "text_delta":
				if ev.Delta.Text != "" && !emit(ports.TextChunk(ev.Delta.Text)) {
					return ctx.Err()
				}
			case "input_json_delta":
				delta := acc.appendArgs(ev.Index, ev.Delta.PartialJSON)
				if !emit(ports.StreamChunk{Kind: ports.ChunkToolCallDelta, Delta: delta}) {
					return ctx.Err()
				}
			}
		case "content_block_stop":
			if toolBlocks[ev.Index] {
				if call := acc.finish(ev.Index); call != nil {
					if !emit(ports.ToolCallChunk(*call)) {
						return ctx.Err()
					}
				}
			}
		case "message_delta":
			if ev.Usage != nil {
				usage.CompletionTokens = ev.Usage.OutputTokens
			}
		case "error":
			msg := "provider stream error"
			if ev.Error != nil && ev.Error.Message != "" {
				msg = ev.Error.Type + ": " + ev.Error.Message
			}
			if !emit(ports.ErrorChunk(msg)) {
				return ctx.Err()
			}
		}
		return nil
	})

	if err != nil && ctx.Err() == nil {
		emit(ports.ErrorChunk(err.Error()))
	}

	// The vendor normally closes each tool block, but a truncated stream
	// must not strand accumulated calls.
	for _, call := range acc.finalize() {
		if !emit(ports.ToolCallChunk(call)) {
			return
		}
	}

	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	p.usageMu.Lock()
	p.lastUsage = usage
	p.usageMu.Unlock()
}

func maxTokensOrDefault(n int) int {
	if n <= 0 {
		return 8192
	}
	return n
}

type anthropicMessage struct {
	Role    string                  `json:"role"`
	Content []anthropicContentBlock `json:"content"`
}

type anthropicContentBlock struct {
	Type      string         `json:"type"`
	Text      string         `json:"text,omitempty"`
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	ToolUseID string         `json:"tool_use_id,omitempty"`
	Content   string         `json:"content,omitempty"`
}

// convertAnthropicMessages translates the neutral list into Anthropic's wire
// shape: system handled by the caller, tool results as user-role
// tool_result blocks, assistant tool calls as tool_use blocks. The input is
// never mutated.
func convertAnthropicMessages(msgs []ports.Message) []anthropicMessage {
	messages := make([]anthropicMessage, 0, len(msgs))
	for _, msg := range msgs {
		role := strings.ToLower(strings.TrimSpace(msg.Role))
		switch role {
		case "system":
			// System text rides the request-level field; a mid-list system
			// message (compaction summary) becomes a user turn so ordering
			// survives.
			if strings.TrimSpace(msg.Content) == "" {
				continue
			}
			messages = append(messages, anthropicMessage{
				Role:    "user",
				Content: []anthropicContentBlock{{Type: "text", Text: msg.Content}},
			})
		case "tool":
			if msg.ToolCallID == "" {
				continue
			}
			messages = append(messages, anthropicMessage{
				Role: "user",
				Content: []anthropicContentBlock{{
					Type:      "tool_result",
					ToolUseID: msg.ToolCallID,
					Content:   msg.Content,
				}},
			})
		case "user", "assistant":
			var blocks []anthropicContentBlock
			if strings.TrimSpace(msg.Content) != "" {
				blocks = append(blocks, anthropicContentBlock{Type: "text", Text: msg.Content})
			}
			for _, call := range msg.ToolCalls {
				args := call.Arguments
				if args == nil {
					args = map[string]any{}
				}
				blocks = append(blocks, anthropicContentBlock{
					Type:  "tool_use",
					ID:    call.ID,
					Name:  call.Name,
					Input: args,
				})
			}
			if len(blocks) == 0 {
				continue
			}
			messages = append(messages, anthropicMessage{Role: role, Content: blocks})
		}
	}
	return messages
}

func convertAnthropicTools(tools []ports.ToolDefinition) []map[string]any {
	result := make([]map[string]any, 0, len(tools))
	for _, tool := range tools {
		result = append(result, map[string]any{
			"name":         tool.Name,
			"description":  tool.Description,
			"input_schema": tool.ParametersDoc(),
		})
	}
	return result
}
