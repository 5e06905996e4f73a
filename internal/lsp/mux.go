package lsp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"codesm/internal/shared/logging"
)

// Multiplexer routes language operations to per-language clients by file
// extension. Positions on this surface are one-based lines and columns;
// the zero-based wire convention stays inside the clients.
type Multiplexer struct {
	root    string
	logger  logging.Logger
	diags   *DiagnosticsCache
	clients map[string]*Client // extension -> client
	started []*Client
}

// FileDiagnostic is one problem rendered for tool output, one-based.
type FileDiagnostic struct {
	Path     string
	Line     int
	Col      int
	Severity string
	Source   string
	Message  string
	// Related holds the server's related-information entries rendered as
	// "path:line:col message" lines.
	Related []string
}

// SymbolLocation is a resolved code location, one-based.
type SymbolLocation struct {
	Path string
	Line int
	Col  int
	Name string
	Kind string
}

func NewMultiplexer(root string, logger logging.Logger) *Multiplexer {
	return &Multiplexer{
		root:    root,
		logger:  logging.OrNop(logger),
		diags:   NewDiagnosticsCache(),
		clients: map[string]*Client{},
	}
}

// Init probes the known servers and starts those that are both installed
// and relevant to the workspace. The result maps server key to whether it
// came up; a missing or failing server is logged, never fatal.
func (m *Multiplexer) Init(ctx context.Context, extra []ServerSpec) map[string]bool {
	status := map[string]bool{}
	for _, spec := range DefaultServers(extra) {
		if !spec.available() {
			m.logger.Debug("lsp: %s not on PATH, skipping", spec.Command)
			continue
		}
		if !spec.relevant(m.root) {
			m.logger.Debug("lsp: no %s files under %s, skipping %s", strings.Join(spec.Extensions, "/"), m.root, spec.Key)
			continue
		}
		client := newClient(spec, m.root, m.diags, m.logger)
		if err := client.start(ctx); err != nil {
			m.logger.Warn("lsp: %s failed to start: %v", spec.Key, err)
			status[spec.Key] = false
			continue
		}
		m.started = append(m.started, client)
		for _, ext := range spec.Extensions {
			m.clients[ext] = client
		}
		status[spec.Key] = true
	}
	return status
}

// Active returns the keys of running servers, sorted.
func (m *Multiplexer) Active() []string {
	seen := map[string]bool{}
	for _, client := range m.started {
		seen[client.spec.Key] = true
	}
	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (m *Multiplexer) clientFor(path string) *Client {
	return m.clients[filepath.Ext(path)]
}

// TouchFile pushes the file's current content to its server so fresh
// diagnostics get published. With wait set it sleeps briefly to let the
// asynchronous publish land in the cache; servers that stay silent simply
// leave the cache untouched.
func (m *Multiplexer) TouchFile(ctx context.Context, path string, wait bool) error {
	client := m.clientFor(path)
	if client == nil {
		return fmt.Errorf("no language server handles %s", filepath.Ext(path))
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := client.touch(path, string(content)); err != nil {
		return err
	}
	if wait {
		select {
		case <-time.After(800 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Diagnostics returns the cached problems for one file, one-based.
func (m *Multiplexer) Diagnostics(path string) []FileDiagnostic {
	return renderDiagnostics(path, m.diags.Get(path))
}

// AllDiagnostics returns every cached problem across the workspace,
// grouped by file and sorted by path.
func (m *Multiplexer) AllDiagnostics() []FileDiagnostic {
	all := m.diags.All()
	paths := make([]string, 0, len(all))
	for path := range all {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	var out []FileDiagnostic
	for _, path := range paths {
		out = append(out, renderDiagnostics(path, all[path])...)
	}
	return out
}

func renderDiagnostics(path string, diags []Diagnostic) []FileDiagnostic {
	out := make([]FileDiagnostic, 0, len(diags))
	for _, d := range diags {
		var related []string
		for _, info := range d.RelatedInformation {
			related = append(related, fmt.Sprintf("%s:%d:%d %s",
				URIToPath(info.Location.URI),
				info.Location.Range.Start.Line+1,
				info.Location.Range.Start.Character+1,
				info.Message))
		}
		out = append(out, FileDiagnostic{
			Path:     path,
			Line:     d.Range.Start.Line + 1,
			Col:      d.Range.Start.Character + 1,
			Severity: severityName(d.Severity),
			Source:   d.Source,
			Message:  d.Message,
			Related:  related,
		})
	}
	return out
}

func severityName(severity int) string {
	switch severity {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	case SeverityHint:
		return "hint"
	default:
		return "error"
	}
}

// Definition resolves the symbol at a one-based position.
func (m *Multiplexer) Definition(ctx context.Context, path string, line, col int) ([]SymbolLocation, error) {
	client, pos, err := m.route(ctx, path, line, col)
	if err != nil {
		return nil, err
	}
	locs, err := client.definition(ctx, path, pos)
	if err != nil {
		return nil, err
	}
	return renderLocations(locs), nil
}

// References lists usages of the symbol at a one-based position.
func (m *Multiplexer) References(ctx context.Context, path string, line, col int) ([]SymbolLocation, error) {
	client, pos, err := m.route(ctx, path, line, col)
	if err != nil {
		return nil, err
	}
	locs, err := client.references(ctx, path, pos)
	if err != nil {
		return nil, err
	}
	return renderLocations(locs), nil
}

// Hover returns the rendered hover text at a one-based position.
func (m *Multiplexer) Hover(ctx context.Context, path string, line, col int) (string, error) {
	client, pos, err := m.route(ctx, path, line, col)
	if err != nil {
		return "", err
	}
	h, err := client.hover(ctx, path, pos)
	if err != nil {
		return "", err
	}
	if h == nil {
		return "", nil
	}
	return renderHover(h), nil
}

// DocumentSymbols lists the symbols declared in one file.
func (m *Multiplexer) DocumentSymbols(ctx context.Context, path string) ([]SymbolLocation, error) {
	client := m.clientFor(path)
	if client == nil {
		return nil, fmt.Errorf("no language server handles %s", filepath.Ext(path))
	}
	if err := m.TouchFile(ctx, path, false); err != nil {
		return nil, err
	}
	symbols, err := client.documentSymbols(ctx, path)
	if err != nil {
		return nil, err
	}
	var out []SymbolLocation
	var walk func(syms []DocumentSymbol)
	walk = func(syms []DocumentSymbol) {
		for _, sym := range syms {
			out = append(out, SymbolLocation{
				Path: path,
				Line: sym.SelectionRange.Start.Line + 1,
				Col:  sym.SelectionRange.Start.Character + 1,
				Name: sym.Name,
				Kind: SymbolKindName(sym.Kind),
			})
			walk(sym.Children)
		}
	}
	walk(symbols)
	return out, nil
}

// WorkspaceSymbols queries every running server and merges the results.
func (m *Multiplexer) WorkspaceSymbols(ctx context.Context, query string) ([]SymbolLocation, error) {
	var out []SymbolLocation
	var lastErr error
	for _, client := range m.started {
		symbols, err := client.workspaceSymbols(ctx, query)
		if err != nil {
			lastErr = err
			continue
		}
		for _, sym := range symbols {
			out = append(out, SymbolLocation{
				Path: URIToPath(sym.Location.URI),
				Line: sym.Location.Range.Start.Line + 1,
				Col:  sym.Location.Range.Start.Character + 1,
				Name: sym.Name,
				Kind: SymbolKindName(sym.Kind),
			})
		}
	}
	if len(out) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return out, nil
}

// CallHierarchy lists callers (incoming) or callees (outgoing) of the
// symbol at a one-based position. Direction is "incoming" or "outgoing".
func (m *Multiplexer) CallHierarchy(ctx context.Context, path string, line, col int, direction string) ([]SymbolLocation, error) {
	client, pos, err := m.route(ctx, path, line, col)
	if err != nil {
		return nil, err
	}
	items, err := client.prepareCallHierarchy(ctx, path, pos)
	if err != nil {
		return nil, err
	}
	var out []SymbolLocation
	for _, item := range items {
		var calls []callHierarchyCall
		if direction == "outgoing" {
			calls, err = client.outgoingCalls(ctx, item)
		} else {
			calls, err = client.incomingCalls(ctx, item)
		}
		if err != nil {
			return nil, err
		}
		for _, call := range calls {
			node := call.From
			if direction == "outgoing" {
				node = call.To
			}
			if node == nil {
				continue
			}
			out = append(out, SymbolLocation{
				Path: URIToPath(node.URI),
				Line: node.SelectionRange.Start.Line + 1,
				Col:  node.SelectionRange.Start.Character + 1,
				Name: node.Name,
				Kind: SymbolKindName(node.Kind),
			})
		}
	}
	return out, nil
}

func (m *Multiplexer) route(ctx context.Context, path string, line, col int) (*Client, Position, error) {
	client := m.clientFor(path)
	if client == nil {
		return nil, Position{}, fmt.Errorf("no language server handles %s", filepath.Ext(path))
	}
	if line < 1 || col < 1 {
		return nil, Position{}, fmt.Errorf("line and column are 1-based, got %d:%d", line, col)
	}
	if err := m.TouchFile(ctx, path, false); err != nil {
		return nil, Position{}, err
	}
	return client, Position{Line: line - 1, Character: col - 1}, nil
}

func renderLocations(locs []Location) []SymbolLocation {
	out := make([]SymbolLocation, 0, len(locs))
	for _, loc := range locs {
		out = append(out, SymbolLocation{
			Path: URIToPath(loc.URI),
			Line: loc.Range.Start.Line + 1,
			Col:  loc.Range.Start.Character + 1,
		})
	}
	return out
}

func renderHover(h *Hover) string {
	// contents may be a string, {kind,value}, {language,value}, or arrays.
	var markup struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(h.Contents, &markup); err == nil && markup.Value != "" {
		return markup.Value
	}
	var text string
	if err := json.Unmarshal(h.Contents, &text); err == nil {
		return text
	}
	var parts []struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(h.Contents, &parts); err == nil {
		var b strings.Builder
		for _, part := range parts {
			if part.Value != "" {
				if b.Len() > 0 {
					b.WriteString("\n")
				}
				b.WriteString(part.Value)
			}
		}
		return b.String()
	}
	return string(h.Contents)
}

// Shutdown stops every running server.
func (m *Multiplexer) Shutdown() {
	for _, client := range m.started {
		client.stop()
	}
	m.started = nil
	m.clients = map[string]*Client{}
}
