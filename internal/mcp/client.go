package mcp

import (
	"bufio"
	"context"
	"fmt"
	"sync"
	"time"

	"codesm/internal/shared/logging"
)

const (
	callTimeout     = 30 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Client drives one MCP server over newline-delimited JSON-RPC on stdio.
// A single reader goroutine routes responses into a pending-call table;
// discovery failures leave the corresponding capability empty without
// failing the connection.
type Client struct {
	name    string
	process *processManager
	idGen   idGenerator
	logger  logging.Logger

	mu          sync.RWMutex
	pending     map[string]chan *response
	initialized bool
	serverInfo  ServerInfo
	caps        ServerCapabilities

	tools     []ToolSchema
	resources []Resource
	prompts   []Prompt
}

// NewClient builds a client for one configured server. Connect starts it.
func NewClient(name string, cfg ServerConfig, logger logging.Logger) *Client {
	logger = logging.OrNop(logger)
	return &Client{
		name:    name,
		process: newProcessManager(cfg, logger),
		logger:  logger,
		pending: map[string]chan *response{},
	}
}

// Name returns the configured server name.
func (c *Client) Name() string { return c.name }

// Connect launches the server, performs the initialize handshake, and
// discovers tools, resources, and prompts.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.process.start(); err != nil {
		return err
	}
	go c.readLoop()

	if err := c.initialize(ctx); err != nil {
		_ = c.process.stop(shutdownTimeout)
		return fmt.Errorf("initialize %s: %w", c.name, err)
	}
	c.discover(ctx)
	return nil
}

// Close disconnects: the reader drains on pipe close, the child gets a
// bounded wait then a kill.
func (c *Client) Close() error {
	return c.process.stop(shutdownTimeout)
}

func (c *Client) initialize(ctx context.Context) error {
	params := map[string]any{
		"protocolVersion": protocolVersion,
		"clientInfo":      clientInfo{Name: "codesm", Version: "0.1.0"},
		"capabilities": map[string]any{
			"roots":    map[string]any{"listChanged": true},
			"sampling": map[string]any{},
		},
	}
	raw, err := c.call(ctx, "initialize", params)
	if err != nil {
		return err
	}
	var result initializeResult
	if err := decodeResult(raw, &result); err != nil {
		return fmt.Errorf("parse initialize result: %w", err)
	}
	if result.ProtocolVersion != protocolVersion {
		c.logger.Warn("mcp: %s protocol version mismatch: client=%s server=%s",
			c.name, protocolVersion, result.ProtocolVersion)
	}

	c.mu.Lock()
	c.serverInfo = result.ServerInfo
	c.caps = result.Capabilities
	c.initialized = true
	c.mu.Unlock()

	if err := c.notify("notifications/initialized", nil); err != nil {
		c.logger.Warn("mcp: %s initialized notification failed: %v", c.name, err)
	}
	c.logger.Info("mcp: connected %s (%s v%s)", c.name, result.ServerInfo.Name, result.ServerInfo.Version)
	return nil
}

// discover pulls the server's tool, resource, and prompt lists. Each list
// is optional; a failing or unsupported list stays empty.
func (c *Client) discover(ctx context.Context) {
	if c.caps.Tools != nil {
		var result struct {
			Tools []ToolSchema `json:"tools"`
		}
		if raw, err := c.call(ctx, "tools/list", nil); err != nil {
			c.logger.Warn("mcp: %s tools/list failed: %v", c.name, err)
		} else if err := decodeResult(raw, &result); err != nil {
			c.logger.Warn("mcp: %s bad tools/list payload: %v", c.name, err)
		} else {
			c.tools = result.Tools
		}
	}
	if c.caps.Resources != nil {
		var result struct {
			Resources []Resource `json:"resources"`
		}
		if raw, err := c.call(ctx, "resources/list", nil); err != nil {
			c.logger.Warn("mcp: %s resources/list failed: %v", c.name, err)
		} else if err := decodeResult(raw, &result); err != nil {
			c.logger.Warn("mcp: %s bad resources/list payload: %v", c.name, err)
		} else {
			c.resources = result.Resources
		}
	}
	if c.caps.Prompts != nil {
		var result struct {
			Prompts []Prompt `json:"prompts"`
		}
		if raw, err := c.call(ctx, "prompts/list", nil); err != nil {
			c.logger.Warn("mcp: %s prompts/list failed: %v", c.name, err)
		} else if err := decodeResult(raw, &result); err != nil {
			c.logger.Warn("mcp: %s bad prompts/list payload: %v", c.name, err)
		} else {
			c.prompts = result.Prompts
		}
	}
	c.logger.Info("mcp: %s discovered %d tools, %d resources, %d prompts",
		c.name, len(c.tools), len(c.resources), len(c.prompts))
}

// Tools returns the discovered tool schemas.
func (c *Client) Tools() []ToolSchema { return c.tools }

// Resources returns the discovered resources.
func (c *Client) Resources() []Resource { return c.resources }

// Prompts returns the discovered prompt templates.
func (c *Client) Prompts() []Prompt { return c.prompts }

// CallTool executes one tool on the server.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*ToolCallResult, error) {
	if !c.isInitialized() {
		return nil, fmt.Errorf("client %s not initialized", c.name)
	}
	raw, err := c.call(ctx, "tools/call", map[string]any{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return nil, err
	}
	var result ToolCallResult
	if err := decodeResult(raw, &result); err != nil {
		return nil, fmt.Errorf("parse tool result: %w", err)
	}
	return &result, nil
}

// ReadResource fetches one resource's contents by URI.
func (c *Client) ReadResource(ctx context.Context, uri string) (string, error) {
	if !c.isInitialized() {
		return "", fmt.Errorf("client %s not initialized", c.name)
	}
	raw, err := c.call(ctx, "resources/read", map[string]any{"uri": uri})
	if err != nil {
		return "", err
	}
	var result struct {
		Contents []ContentBlock `json:"contents"`
	}
	if err := decodeResult(raw, &result); err != nil {
		return "", fmt.Errorf("parse resource contents: %w", err)
	}
	flat := ToolCallResult{Content: result.Contents}
	return flat.Text(), nil
}

// GetPrompt resolves a prompt template into message text.
func (c *Client) GetPrompt(ctx context.Context, name string, args map[string]any) (string, error) {
	if !c.isInitialized() {
		return "", fmt.Errorf("client %s not initialized", c.name)
	}
	raw, err := c.call(ctx, "prompts/get", map[string]any{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return "", err
	}
	var result struct {
		Messages []struct {
			Role    string       `json:"role"`
			Content ContentBlock `json:"content"`
		} `json:"messages"`
	}
	if err := decodeResult(raw, &result); err != nil {
		return "", fmt.Errorf("parse prompt: %w", err)
	}
	var out []ContentBlock
	for _, msg := range result.Messages {
		out = append(out, msg.Content)
	}
	flat := ToolCallResult{Content: out}
	return flat.Text(), nil
}

func (c *Client) isInitialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initialized
}

// call sends one request and waits for its response. Timeouts remove the
// pending entry so the table cannot leak.
func (c *Client) call(ctx context.Context, method string, params map[string]any) (result []byte, err error) {
	id := c.idGen.next()
	data, err := marshalLine(newRequest(id, method, params))
	if err != nil {
		return nil, err
	}

	respChan := make(chan *response, 1)
	c.mu.Lock()
	c.pending[id] = respChan
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.process.write(data); err != nil {
		return nil, fmt.Errorf("write %s request: %w", method, err)
	}

	select {
	case resp := <-respChan:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(callTimeout):
		return nil, fmt.Errorf("%s: %s timed out after %s", c.name, method, callTimeout)
	}
}

func (c *Client) notify(method string, params map[string]any) error {
	data, err := marshalLine(newNotification(method, params))
	if err != nil {
		return err
	}
	return c.process.write(data)
}

// readLoop scans newline-delimited frames and routes responses to waiting
// callers. Server-originated notifications are logged and dropped.
func (c *Client) readLoop() {
	scanner := bufio.NewScanner(c.process.stdoutReader())
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		resp, err := parseResponse(line)
		if err != nil {
			c.logger.Warn("mcp: %s unparseable frame: %v", c.name, err)
			continue
		}
		if resp.ID == nil {
			continue
		}
		key := idKey(resp.ID)
		c.mu.RLock()
		ch, ok := c.pending[key]
		c.mu.RUnlock()
		if !ok {
			c.logger.Debug("mcp: %s response for unknown id %s", c.name, key)
			continue
		}
		select {
		case ch <- resp:
		default:
		}
	}
	if err := scanner.Err(); err != nil && c.process.isRunning() {
		c.logger.Warn("mcp: %s read loop ended: %v", c.name, err)
	}
}
