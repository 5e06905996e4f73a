// Package llm adapts vendor streaming chat APIs to the neutral chunk
// stream. Vendors are spoken natively over HTTP; the neutral surface is
// ports.Provider.
package llm

import (
	"fmt"
	"strings"
	"time"

	"codesm/internal/agent/ports"
	"codesm/internal/shared/logging"
)

// Aliases maps task-typed short names to full "<provider>/<model>"
// identifiers. Subagents route through these.
var Aliases = map[string]string{
	"smart":   "anthropic/claude-sonnet-4-5",
	"rush":    "anthropic/claude-haiku-4-5",
	"oracle":  "openai/gpt-5",
	"finder":  "openai/gpt-5-mini",
	"review":  "anthropic/claude-sonnet-4-5",
	"diagram": "openai/gpt-5-mini",
	"handoff": "anthropic/claude-haiku-4-5",
	"topics":  "openai/gpt-5-nano",
	"router":  "router/openrouter/auto",
}

// Resolve expands an alias to a full identifier. Unknown names pass through
// unchanged.
func Resolve(model string) string {
	if full, ok := Aliases[strings.TrimSpace(model)]; ok {
		return full
	}
	return model
}

// Split cuts "<provider>/<model>" at the first slash. Router identifiers
// keep their vendor-qualified remainder as the model part.
func Split(identifier string) (provider, model string, err error) {
	resolved := Resolve(identifier)
	provider, model, found := strings.Cut(resolved, "/")
	if !found || provider == "" || model == "" {
		return "", "", fmt.Errorf("model identifier %q is not of the form <provider>/<model>", identifier)
	}
	return provider, model, nil
}

// Options configures provider construction.
type Options struct {
	APIKeys    map[string]string
	BaseURLs   map[string]string
	Timeout    time.Duration
	MaxRetries int
	Logger     logging.Logger
}

func (o Options) apiKey(provider string) string {
	return o.APIKeys[provider]
}

func (o Options) baseURL(provider, fallback string) string {
	if url := strings.TrimRight(o.BaseURLs[provider], "/"); url != "" {
		return url
	}
	return fallback
}

func (o Options) timeout() time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	return 120 * time.Second
}

// New builds the provider for a model identifier or alias.
func New(identifier string, opts Options) (ports.Provider, error) {
	providerName, model, err := Split(identifier)
	if err != nil {
		return nil, err
	}
	logger := logging.OrNop(opts.Logger)

	switch providerName {
	case "anthropic":
		return newAnthropicProvider(model, opts, logger), nil
	case "openai":
		return newOpenAIProvider(model, "openai", opts.baseURL("openai", defaultOpenAIBaseURL), opts, logger), nil
	case "router":
		return newOpenAIProvider(model, "router", opts.baseURL("router", defaultRouterBaseURL), opts, logger), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", providerName)
	}
}
