// Package tools provides the tool registry: named executors, schema
// export for providers, and concurrent batch execution with stable result
// ordering.
package tools

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"codesm/internal/agent/ports"
	"codesm/internal/shared/logging"
)

// Observer receives the outcome of every tool execution. Metrics hook.
type Observer func(name, status string, duration time.Duration)

var _ ports.ToolRegistry = (*Registry)(nil)

// Registry holds tools keyed by name.
type Registry struct {
	logger logging.Logger

	mu    sync.RWMutex
	tools map[string]ports.ToolExecutor

	lockMu    sync.Mutex
	pathLocks map[string]*sync.Mutex

	observer Observer
}

// SetObserver installs the execution observer. Call before first use; the
// field is not synchronized against in-flight batches.
func (r *Registry) SetObserver(observer Observer) {
	r.observer = observer
}

func NewRegistry(logger logging.Logger) *Registry {
	return &Registry{
		logger:    logging.OrNop(logger),
		tools:     map[string]ports.ToolExecutor{},
		pathLocks: map[string]*sync.Mutex{},
	}
}

// Register adds or replaces a tool under its metadata name.
func (r *Registry) Register(tool ports.ToolExecutor) error {
	name := tool.Metadata().Name
	if name == "" {
		return fmt.Errorf("tool has no name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		r.logger.Debug("tools: replacing %s", name)
	}
	r.tools[name] = tool
	return nil
}

// Unregister removes a tool.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[name]; !ok {
		return fmt.Errorf("unknown tool %q", name)
	}
	delete(r.tools, name)
	return nil
}

// Get returns the named tool.
func (r *Registry) Get(name string) (ports.ToolExecutor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("unknown tool %q", name)
	}
	return tool, nil
}

// List returns every registered definition, sorted by name for a stable
// provider payload.
func (r *Registry) List() []ports.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]ports.ToolDefinition, 0, len(r.tools))
	for _, tool := range r.tools {
		defs = append(defs, tool.Definition())
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ExecuteParallel runs the batch concurrently and returns results in
// input order regardless of completion order. Failures land in the
// result's Error, never as a returned error that aborts the batch.
// Mutating tools targeting the same file serialize on a per-path mutex so
// two edits in one turn cannot interleave their snapshot/write brackets.
func (r *Registry) ExecuteParallel(ctx context.Context, calls []ports.ToolCall) []ports.ToolResult {
	results := make([]ports.ToolResult, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = r.executeOne(ctx, call)
		}()
	}
	wg.Wait()
	return results
}

func (r *Registry) executeOne(ctx context.Context, call ports.ToolCall) (result ports.ToolResult) {
	started := time.Now()
	defer func() {
		if r.observer != nil {
			status := "ok"
			if result.Error != nil {
				status = "error"
			}
			r.observer(call.Name, status, time.Since(started))
		}
	}()
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tools: %s panicked: %v", call.Name, rec)
			result = ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("tool %s panicked: %v", call.Name, rec)}
		}
	}()

	tool, err := r.Get(call.Name)
	if err != nil {
		return ports.ToolResult{CallID: call.ID, Error: err}
	}

	if tool.Metadata().Mutating {
		if path := targetPath(call.Arguments); path != "" {
			lock := r.pathLock(path)
			lock.Lock()
			defer lock.Unlock()
		}
	}

	res, err := tool.Execute(ctx, call)
	if err != nil {
		// Tools report user-facing failures inside the result; an error
		// return means the tool itself broke.
		return ports.ToolResult{CallID: call.ID, Error: err}
	}
	if res == nil {
		return ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("tool %s returned no result", call.Name)}
	}
	if res.CallID == "" {
		res.CallID = call.ID
	}
	return *res
}

func (r *Registry) pathLock(path string) *sync.Mutex {
	r.lockMu.Lock()
	defer r.lockMu.Unlock()
	lock, ok := r.pathLocks[path]
	if !ok {
		lock = &sync.Mutex{}
		r.pathLocks[path] = lock
	}
	return lock
}

// targetPath picks the first path-shaped argument a mutating tool
// addresses, normalized so spellings of the same file collide.
func targetPath(args map[string]any) string {
	for _, key := range []string{"path", "file_path", "file"} {
		if value, ok := args[key].(string); ok && value != "" {
			return filepath.Clean(value)
		}
	}
	return ""
}
