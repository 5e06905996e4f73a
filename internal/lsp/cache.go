package lsp

import "sync"

// DiagnosticsCache holds the latest published diagnostics per file. All
// language clients write into one shared cache so the diagnostics surface
// is a single read regardless of which server produced what.
type DiagnosticsCache struct {
	mu    sync.RWMutex
	files map[string][]Diagnostic
}

func NewDiagnosticsCache() *DiagnosticsCache {
	return &DiagnosticsCache{files: map[string][]Diagnostic{}}
}

// Set replaces the diagnostics for one file path. An empty slice clears
// previously published problems, matching LSP publish semantics.
func (c *DiagnosticsCache) Set(path string, diags []Diagnostic) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files[path] = diags
}

// Get returns the cached diagnostics for one file path.
func (c *DiagnosticsCache) Get(path string) []Diagnostic {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.files[path]
}

// All returns a snapshot of every file that currently has diagnostics.
func (c *DiagnosticsCache) All() map[string][]Diagnostic {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string][]Diagnostic, len(c.files))
	for path, diags := range c.files {
		if len(diags) > 0 {
			out[path] = diags
		}
	}
	return out
}

// Clear drops every cached entry.
func (c *DiagnosticsCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files = map[string][]Diagnostic{}
}
