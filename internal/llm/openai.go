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
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultRouterBaseURL = "https://openrouter.ai/api/v1"
	chatCompletionsPath  = "/chat/completions"
)

// openAIProvider speaks the chat/completions SSE dialect. The router
// provider is the same adapter pointed at an OpenAI-compatible base URL
// that multiplexes many vendors.
type openAIProvider struct {
	model        string
	providerName string
	apiKey       string
	baseURL      string
	httpClient   *http.Client
	logger       logging.Logger

	usageMu   sync.Mutex
	lastUsage ports.TokenUsage
}

func newOpenAIProvider(model, providerName, baseURL string, opts Options, logger logging.Logger) *openAIProvider {
	return &openAIProvider{
		model:        model,
		providerName: providerName,
		apiKey:       opts.apiKey(providerName),
		baseURL:      baseURL,
		httpClient:   newStreamClient(opts.timeout()),
		logger:       logger,
	}
}

func (p *openAIProvider) Model() string {
	return p.providerName + "/" + p.model
}

func (p *openAIProvider) LastUsage() ports.TokenUsage {
	p.usageMu.Lock()
	defer p.usageMu.Unlock()
	return p.lastUsage
}

func (p *openAIProvider) Stream(ctx context.Context, req ports.StreamRequest) (<-chan ports.StreamChunk, error) {
	payload := map[string]any{
		"model":    p.model,
		"messages": convertOpenAIMessages(req.System, req.Messages),
		"stream":   true,
		"stream_options": map[string]any{
			"include_usage": true,
		},
	}
	if req.MaxTokens > 0 {
		payload["max_completion_tokens"] = req.MaxTokens
	}
	if req.Temperature > 0 {
		payload["temperature"] = req.Temperature
	}
	if len(req.Tools) > 0 {
		payload["tools"] = convertOpenAITools(req.Tools)
	}

	body, err := jsonx.Marshal(payload)
	if err != nil {
		return nil, err
	}

	headers := map[string]string{}
	if p.apiKey != "" {
		headers["Authorization"] = "Bearer " + p.apiKey
	}

	p.logger.Debug("%s stream: model=%s messages=%d tools=%d", p.providerName, p.model, len(req.Messages), len(req.Tools))
	resp, err := postJSON(ctx, p.httpClient, p.baseURL+chatCompletionsPath, headers, body)
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

type openAIStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (p *openAIProvider) consume(ctx context.Context, resp *http.Response, out chan<- ports.StreamChunk) {
	acc := newCallAccumulator()
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
		var ev openAIStreamChunk
		if err := jsonx.Unmarshal([]byte(event.Data), &ev); err != nil {
			return err
		}
		if ev.Error != nil && ev.Error.Message != "" {
			if !emit(ports.ErrorChunk(ev.Error.Type + ": " + ev.Error.Message)) {
				return ctx.Err()
			}
			return nil
		}
		if ev.Usage != nil {
			usage = ports.TokenUsage{
				PromptTokens:     ev.Usage.PromptTokens,
				CompletionTokens: ev.Usage.CompletionTokens,
				TotalTokens:      ev.Usage.TotalTokens,
			}
		}
		for _, choice := range ev.Choices {
			if choice.Delta.Content != "" {
				if !emit(ports.TextChunk(choice.Delta.Content)) {
					return ctx.Err()
				}
			}
			for _, tc := range choice.Delta.ToolCalls {
				acc.start(tc.Index, tc.ID, tc.Function.Name)
				if tc.Function.Arguments != "" {
					delta := acc.appendArgs(tc.Index, tc.Function.Arguments)
					if !emit(ports.StreamChunk{Kind: ports.ChunkToolCallDelta, Delta: delta}) {
						return ctx.Err()
					}
				}
			}
		}
		return nil
	})

	if err != nil && ctx.Err() == nil {
		emit(ports.ErrorChunk(err.Error()))
	}

	// chat/completions has no per-call terminator; completed calls finalize
	// at stream end, in emission order.
	for _, call := range acc.finalize() {
		if !emit(ports.ToolCallChunk(call)) {
			return
		}
	}

	p.usageMu.Lock()
	p.lastUsage = usage
	p.usageMu.Unlock()
}

type openAIMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content,omitempty"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openAIToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

func convertOpenAIMessages(system string, msgs []ports.Message) []openAIMessage {
	messages := make([]openAIMessage, 0, len(msgs)+1)
	if strings.TrimSpace(system) != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: system})
	}
	for _, msg := range msgs {
		role := strings.ToLower(strings.TrimSpace(msg.Role))
		switch role {
		case "tool":
			if msg.ToolCallID == "" {
				continue
			}
			messages = append(messages, openAIMessage{
				Role:       "tool",
				Content:    msg.Content,
				ToolCallID: msg.ToolCallID,
			})
		case "system", "user", "assistant":
			out := openAIMessage{Role: role, Content: msg.Content}
			for _, call := range msg.ToolCalls {
				tc := openAIToolCall{ID: call.ID, Type: "function"}
				tc.Function.Name = call.Name
				tc.Function.Arguments = jsonx.MustMarshalString(call.Arguments)
				out.ToolCalls = append(out.ToolCalls, tc)
			}
			if out.Content == "" && len(out.ToolCalls) == 0 {
				continue
			}
			messages = append(messages, out)
		}
	}
	return messages
}

func convertOpenAITools(tools []ports.ToolDefinition) []map[string]any {
	result := make([]map[string]any, 0, len(tools))
	for _, tool := range tools {
		result = append(result, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        tool.Name,
				"description": tool.Description,
				"parameters":  tool.ParametersDoc(),
			},
		})
	}
	return result
}
