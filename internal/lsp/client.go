package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"codesm/internal/shared/logging"
)

const requestTimeout = 30 * time.Second

// Client drives one language server subprocess over stdio. A dedicated
// reader goroutine demultiplexes responses into a pending-request table
// and routes server-initiated traffic; requests carry a 30s deadline so a
// wedged server can never stall the agent loop.
type Client struct {
	spec   ServerSpec
	root   string
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	diags  *DiagnosticsCache
	logger logging.Logger

	writeMu sync.Mutex
	nextID  atomic.Int64

	pendingMu sync.Mutex
	pending   map[int64]chan *jsonrpcMessage

	docMu sync.Mutex
	docs  map[string]int // open file path -> version

	closed chan struct{}
}

func newClient(spec ServerSpec, root string, diags *DiagnosticsCache, logger logging.Logger) *Client {
	return &Client{
		spec:    spec,
		root:    root,
		diags:   diags,
		logger:  logging.OrNop(logger),
		pending: map[int64]chan *jsonrpcMessage{},
		docs:    map[string]int{},
		closed:  make(chan struct{}),
	}
}

// start spawns the server process and performs the initialize handshake.
func (c *Client) start(ctx context.Context) error {
	cmd := exec.Command(c.spec.Command, c.spec.Args...)
	cmd.Dir = c.root
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", c.spec.Command, err)
	}
	c.cmd = cmd
	c.stdin = stdin

	go c.readLoop(bufio.NewReaderSize(stdout, 1<<20))

	params := initializeParams(c.root)
	if err := c.request(ctx, "initialize", params, nil); err != nil {
		c.stop()
		return fmt.Errorf("initialize %s: %w", c.spec.Key, err)
	}
	if err := c.notify("initialized", map[string]any{}); err != nil {
		c.stop()
		return err
	}
	c.logger.Info("lsp: %s ready (root=%s)", c.spec.Key, c.root)
	return nil
}

// initializeParams declares what the agent consumes: full-text sync,
// diagnostics with related information, plaintext/markdown hover,
// hierarchical document symbols, workspace symbols, and call hierarchy.
func initializeParams(root string) map[string]any {
	return map[string]any{
		"processId": nil,
		"rootUri":   PathToURI(root),
		"workspaceFolders": []map[string]any{{
			"uri":  PathToURI(root),
			"name": filepath.Base(root),
		}},
		"capabilities": map[string]any{
			"textDocument": map[string]any{
				"synchronization":    map[string]any{"didSave": true},
				"publishDiagnostics": map[string]any{"relatedInformation": true},
				"hover":              map[string]any{"contentFormat": []string{"plaintext", "markdown"}},
				"documentSymbol":     map[string]any{"hierarchicalDocumentSymbolSupport": true},
				"callHierarchy":      map[string]any{"dynamicRegistration": false},
			},
			"workspace": map[string]any{"symbol": map[string]any{}},
		},
	}
}

func (c *Client) readLoop(r *bufio.Reader) {
	defer close(c.closed)
	for {
		msg, err := readFrame(r)
		if err != nil {
			if err != io.EOF {
				c.logger.Warn("lsp: %s read loop ended: %v", c.spec.Key, err)
			}
			c.failPending(err)
			return
		}
		c.dispatch(msg)
	}
}

// readFrame reads one Content-Length framed JSON-RPC message.
func readFrame(r *bufio.Reader) (*jsonrpcMessage, error) {
	contentLength := -1
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		if name, value, ok := strings.Cut(line, ":"); ok {
			if strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
				contentLength, err = strconv.Atoi(strings.TrimSpace(value))
				if err != nil {
					return nil, fmt.Errorf("bad Content-Length %q", value)
				}
			}
		}
	}
	if contentLength < 0 {
		return nil, fmt.Errorf("frame missing Content-Length header")
	}
	body := make([]byte, contentLength)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	var msg jsonrpcMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *Client) dispatch(msg *jsonrpcMessage) {
	switch {
	case msg.Method != "" && msg.ID != nil:
		// Server-initiated request. Answer with an empty result so servers
		// waiting on configuration or registration do not block.
		c.logger.Debug("lsp: %s server request %s, replying null", c.spec.Key, msg.Method)
		reply := &jsonrpcMessage{JSONRPC: "2.0", ID: msg.ID, Result: json.RawMessage("null")}
		if msg.Method == "workspace/configuration" {
			reply.Result = json.RawMessage("[]")
		}
		if err := c.write(reply); err != nil {
			c.logger.Warn("lsp: %s reply failed: %v", c.spec.Key, err)
		}
	case msg.Method != "":
		c.handleNotification(msg)
	case msg.ID != nil:
		c.pendingMu.Lock()
		ch, ok := c.pending[*msg.ID]
		if ok {
			delete(c.pending, *msg.ID)
		}
		c.pendingMu.Unlock()
		if ok {
			ch <- msg
		}
	}
}

func (c *Client) handleNotification(msg *jsonrpcMessage) {
	if msg.Method != "textDocument/publishDiagnostics" {
		return
	}
	var params publishDiagnosticsParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		c.logger.Warn("lsp: %s bad diagnostics payload: %v", c.spec.Key, err)
		return
	}
	path := URIToPath(params.URI)
	c.diags.Set(path, params.Diagnostics)
	c.logger.Debug("lsp: %s published %d diagnostics for %s", c.spec.Key, len(params.Diagnostics), path)
}

func (c *Client) failPending(err error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pending {
		delete(c.pending, id)
		close(ch)
	}
	_ = err
}

func (c *Client) write(msg *jsonrpcMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := fmt.Fprintf(c.stdin, "Content-Length: %d\r\n\r\n", len(body)); err != nil {
		return err
	}
	_, err = c.stdin.Write(body)
	return err
}

// request sends one request and decodes the result into out (when non-nil).
func (c *Client) request(ctx context.Context, method string, params any, out any) error {
	id := c.nextID.Add(1)
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	ch := make(chan *jsonrpcMessage, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()

	msg := &jsonrpcMessage{JSONRPC: "2.0", ID: &id, Method: method, Params: raw}
	if err := c.write(msg); err != nil {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return err
	}

	timer := time.NewTimer(requestTimeout)
	defer timer.Stop()
	select {
	case resp, ok := <-ch:
		if !ok {
			return fmt.Errorf("%s: server exited before responding to %s", c.spec.Key, method)
		}
		if resp.Error != nil {
			return fmt.Errorf("%s: %s failed: %s", c.spec.Key, method, resp.Error.Message)
		}
		if out != nil && len(resp.Result) > 0 && string(resp.Result) != "null" {
			return json.Unmarshal(resp.Result, out)
		}
		return nil
	case <-timer.C:
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return fmt.Errorf("%s: %s timed out after %s", c.spec.Key, method, requestTimeout)
	case <-ctx.Done():
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return ctx.Err()
	}
}

func (c *Client) notify(method string, params any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	return c.write(&jsonrpcMessage{JSONRPC: "2.0", Method: method, Params: raw})
}

// touch opens the file with the server or, when already open, sends a full
// didChange with the current content. Diagnostics arrive asynchronously
// into the shared cache.
func (c *Client) touch(path, content string) error {
	c.docMu.Lock()
	version, open := c.docs[path]
	version++
	c.docs[path] = version
	c.docMu.Unlock()

	uri := PathToURI(path)
	if !open {
		return c.notify("textDocument/didOpen", map[string]any{
			"textDocument": textDocumentItem{
				URI:        uri,
				LanguageID: c.spec.LanguageID,
				Version:    version,
				Text:       content,
			},
		})
	}
	return c.notify("textDocument/didChange", map[string]any{
		"textDocument":   versionedTextDocumentIdentifier{URI: uri, Version: version},
		"contentChanges": []map[string]any{{"text": content}},
	})
}

func (c *Client) definition(ctx context.Context, path string, pos Position) ([]Location, error) {
	return c.locationsRequest(ctx, "textDocument/definition", path, pos)
}

func (c *Client) references(ctx context.Context, path string, pos Position) ([]Location, error) {
	params := referenceParams{
		TextDocument: textDocumentIdentifier{URI: PathToURI(path)},
		Position:     pos,
	}
	params.Context.IncludeDeclaration = true
	var locs []Location
	if err := c.request(ctx, "textDocument/references", params, &locs); err != nil {
		return nil, err
	}
	return locs, nil
}

func (c *Client) locationsRequest(ctx context.Context, method, path string, pos Position) ([]Location, error) {
	params := textDocumentPositionParams{
		TextDocument: textDocumentIdentifier{URI: PathToURI(path)},
		Position:     pos,
	}
	// Servers return either Location, []Location, or []LocationLink.
	var raw json.RawMessage
	if err := c.request(ctx, method, params, &raw); err != nil {
		return nil, err
	}
	return decodeLocations(raw), nil
}

func decodeLocations(raw json.RawMessage) []Location {
	if len(raw) == 0 {
		return nil
	}
	var one Location
	if err := json.Unmarshal(raw, &one); err == nil && one.URI != "" {
		return []Location{one}
	}
	var many []Location
	if err := json.Unmarshal(raw, &many); err == nil && len(many) > 0 && many[0].URI != "" {
		return many
	}
	var links []struct {
		TargetURI   string `json:"targetUri"`
		TargetRange Range  `json:"targetSelectionRange"`
	}
	if err := json.Unmarshal(raw, &links); err == nil {
		out := make([]Location, 0, len(links))
		for _, link := range links {
			out = append(out, Location{URI: link.TargetURI, Range: link.TargetRange})
		}
		return out
	}
	return nil
}

func (c *Client) hover(ctx context.Context, path string, pos Position) (*Hover, error) {
	params := textDocumentPositionParams{
		TextDocument: textDocumentIdentifier{URI: PathToURI(path)},
		Position:     pos,
	}
	var h Hover
	if err := c.request(ctx, "textDocument/hover", params, &h); err != nil {
		return nil, err
	}
	if len(h.Contents) == 0 {
		return nil, nil
	}
	return &h, nil
}

func (c *Client) documentSymbols(ctx context.Context, path string) ([]DocumentSymbol, error) {
	params := map[string]any{
		"textDocument": textDocumentIdentifier{URI: PathToURI(path)},
	}
	var raw json.RawMessage
	if err := c.request(ctx, "textDocument/documentSymbol", params, &raw); err != nil {
		return nil, err
	}
	var symbols []DocumentSymbol
	if err := json.Unmarshal(raw, &symbols); err == nil && (len(symbols) == 0 || symbols[0].Name != "") {
		return symbols, nil
	}
	// Flat SymbolInformation fallback for servers without hierarchy support.
	var flat []SymbolInformation
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, err
	}
	out := make([]DocumentSymbol, 0, len(flat))
	for _, sym := range flat {
		out = append(out, DocumentSymbol{
			Name:           sym.Name,
			Kind:           sym.Kind,
			Range:          sym.Location.Range,
			SelectionRange: sym.Location.Range,
		})
	}
	return out, nil
}

func (c *Client) workspaceSymbols(ctx context.Context, query string) ([]SymbolInformation, error) {
	var symbols []SymbolInformation
	if err := c.request(ctx, "workspace/symbol", map[string]any{"query": query}, &symbols); err != nil {
		return nil, err
	}
	return symbols, nil
}

func (c *Client) prepareCallHierarchy(ctx context.Context, path string, pos Position) ([]CallHierarchyItem, error) {
	params := textDocumentPositionParams{
		TextDocument: textDocumentIdentifier{URI: PathToURI(path)},
		Position:     pos,
	}
	var items []CallHierarchyItem
	if err := c.request(ctx, "textDocument/prepareCallHierarchy", params, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *Client) incomingCalls(ctx context.Context, item CallHierarchyItem) ([]callHierarchyCall, error) {
	var calls []callHierarchyCall
	err := c.request(ctx, "callHierarchy/incomingCalls", map[string]any{"item": item}, &calls)
	return calls, err
}

func (c *Client) outgoingCalls(ctx context.Context, item CallHierarchyItem) ([]callHierarchyCall, error) {
	var calls []callHierarchyCall
	err := c.request(ctx, "callHierarchy/outgoingCalls", map[string]any{"item": item}, &calls)
	return calls, err
}

// stop asks the server to shut down and kills it if it lingers.
func (c *Client) stop() {
	if c.cmd == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = c.request(ctx, "shutdown", nil, nil)
	_ = c.notify("exit", nil)
	if c.stdin != nil {
		_ = c.stdin.Close()
	}

	done := make(chan struct{})
	go func() {
		_ = c.cmd.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		_ = c.cmd.Process.Kill()
		<-done
	}
}
