package mcp

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"codesm/internal/agent/ports"
	"codesm/internal/shared/logging"
)

// Manager connects the configured servers and projects their tools into
// the agent's registry under `mcp_<server>_<tool>` names.
type Manager struct {
	logger logging.Logger

	mu      sync.RWMutex
	clients map[string]*Client
}

func NewManager(logger logging.Logger) *Manager {
	return &Manager{
		logger:  logging.OrNop(logger),
		clients: map[string]*Client{},
	}
}

// ConnectAll starts every configured server concurrently. The result maps
// server name to whether it came up; a failing server is logged and
// omitted, never raised.
func (m *Manager) ConnectAll(ctx context.Context, configs map[string]ServerConfig) map[string]bool {
	status := make(map[string]bool, len(configs))
	var statusMu sync.Mutex

	var g errgroup.Group
	for name, cfg := range configs {
		g.Go(func() error {
			client := NewClient(name, cfg, m.logger)
			err := client.Connect(ctx)

			statusMu.Lock()
			status[name] = err == nil
			statusMu.Unlock()

			if err != nil {
				m.logger.Warn("mcp: server %s failed to connect: %v", name, err)
				return nil
			}
			m.mu.Lock()
			m.clients[name] = client
			m.mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return status
}

// Close disconnects every server.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, client := range m.clients {
		if err := client.Close(); err != nil {
			m.logger.Warn("mcp: closing %s: %v", name, err)
		}
	}
	m.clients = map[string]*Client{}
}

// ServerNames returns the connected servers, sorted.
func (m *Manager) ServerNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.clients))
	for name := range m.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Manager) client(name string) (*Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	client, ok := m.clients[name]
	return client, ok
}

// CallTool routes one call to the named server. The sandbox bridge and
// the projected registry tools both come through here.
func (m *Manager) CallTool(ctx context.Context, server, tool string, args map[string]any) (string, error) {
	client, ok := m.client(server)
	if !ok {
		return "", fmt.Errorf("unknown MCP server %q", server)
	}
	result, err := client.CallTool(ctx, tool, args)
	if err != nil {
		return "", err
	}
	text := result.Text()
	if result.IsError {
		return "", fmt.Errorf("%s", strings.TrimSpace(text))
	}
	return text, nil
}

// Tools returns one registry executor per discovered server tool, plus a
// synthetic read-resource tool for each server that advertises resources.
func (m *Manager) Tools() []ports.ToolExecutor {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ports.ToolExecutor
	names := make([]string, 0, len(m.clients))
	for name := range m.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		client := m.clients[name]
		for _, schema := range client.Tools() {
			out = append(out, &serverTool{manager: m, server: name, schema: schema})
		}
		if len(client.Resources()) > 0 {
			out = append(out, &resourceTool{client: client})
		}
	}
	return out
}

// Catalog renders the connected server/tool tree as text so the model can
// explore capabilities before writing sandbox code.
func (m *Manager) Catalog() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.clients) == 0 {
		return "No MCP servers connected."
	}
	names := make([]string, 0, len(m.clients))
	for name := range m.clients {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		client := m.clients[name]
		fmt.Fprintf(&b, "Server: %s\n", name)
		if tools := client.Tools(); len(tools) > 0 {
			b.WriteString("  Tools:\n")
			for _, tool := range tools {
				fmt.Fprintf(&b, "    %s - %s\n", tool.Name, firstLine(tool.Description))
			}
		}
		if resources := client.Resources(); len(resources) > 0 {
			b.WriteString("  Resources:\n")
			for _, res := range resources {
				fmt.Fprintf(&b, "    %s (%s)\n", res.URI, res.Name)
			}
		}
		if prompts := client.Prompts(); len(prompts) > 0 {
			b.WriteString("  Prompts:\n")
			for _, prompt := range prompts {
				fmt.Fprintf(&b, "    %s - %s\n", prompt.Name, firstLine(prompt.Description))
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// serverTool projects one MCP tool into the agent registry.
type serverTool struct {
	manager *Manager
	server  string
	schema  ToolSchema
}

func (t *serverTool) registryName() string {
	return "mcp_" + t.server + "_" + t.schema.Name
}

func (t *serverTool) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	text, err := t.manager.CallTool(ctx, t.server, t.schema.Name, call.Arguments)
	if err != nil {
		return &ports.ToolResult{CallID: call.ID, Error: err}, nil
	}
	return &ports.ToolResult{CallID: call.ID, Content: text}, nil
}

func (t *serverTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:          t.registryName(),
		Description:   t.schema.Description,
		RawParameters: normalizeSchema(t.schema.InputSchema),
	}
}

func (t *serverTool) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{
		Name:     t.registryName(),
		Category: "mcp",
		Tags:     []string{"mcp", t.server},
	}
}

// normalizeSchema carries the server's inputSchema verbatim, only filling
// in the top-level object shape providers require. Nested properties,
// required lists, defaults, and enums pass through untouched.
func normalizeSchema(schema map[string]any) map[string]any {
	out := make(map[string]any, len(schema)+2)
	for key, value := range schema {
		out[key] = value
	}
	if _, ok := out["type"]; !ok {
		out["type"] = "object"
	}
	if _, ok := out["properties"]; !ok {
		out["properties"] = map[string]any{}
	}
	return out
}

// resourceTool exposes resources/read as `mcp_<server>_read_resource`.
type resourceTool struct {
	client *Client
}

func (t *resourceTool) registryName() string {
	return "mcp_" + t.client.Name() + "_read_resource"
}

func (t *resourceTool) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	uri, _ := call.Arguments["uri"].(string)
	if uri == "" {
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("uri is required")}, nil
	}
	text, err := t.client.ReadResource(ctx, uri)
	if err != nil {
		return &ports.ToolResult{CallID: call.ID, Error: err}, nil
	}
	return &ports.ToolResult{CallID: call.ID, Content: text}, nil
}

func (t *resourceTool) Definition() ports.ToolDefinition {
	var uris []string
	for _, res := range t.client.Resources() {
		uris = append(uris, res.URI)
	}
	return ports.ToolDefinition{
		Name:        t.registryName(),
		Description: "Read a resource from the " + t.client.Name() + " MCP server. Available: " + strings.Join(uris, ", "),
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"uri": {Type: "string", Description: "Resource URI to read"},
			},
			Required: []string{"uri"},
		},
	}
}

func (t *resourceTool) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{
		Name:     t.registryName(),
		Category: "mcp",
		Tags:     []string{"mcp", t.client.Name(), "resource"},
	}
}
