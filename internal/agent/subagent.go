package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"codesm/internal/agent/ports"
	"codesm/internal/llm"
	"codesm/internal/shared/jsonx"
	"codesm/internal/shared/logging"
	"codesm/internal/tools"
)

// MaxParallelTasks caps concurrently running subagents globally.
const MaxParallelTasks = 10

// SubagentConfig narrows the main agent: a tool subset, a dedicated
// system prompt, and a task-tuned model alias.
type SubagentConfig struct {
	Name         string
	Description  string
	SystemPrompt string
	ModelAlias   string
	Tools        []string
}

var subagentConfigs = map[string]SubagentConfig{
	"coder": {
		Name:        "coder",
		Description: "Implements code changes",
		SystemPrompt: "You are a focused coding agent. Implement exactly what the task asks: read the relevant files, " +
			"make the edits, verify with diagnostics where available, and report what changed.",
		ModelAlias: "smart",
		Tools:      []string{"read", "write", "edit", "multiedit", "bash", "grep", "glob", "ls", "diagnostics", "lsp", "undo"},
	},
	"researcher": {
		Name:        "researcher",
		Description: "Gathers information from the web and the workspace",
		SystemPrompt: "You are a research agent. Collect the requested information from the workspace and the web, " +
			"cite where each fact came from, and return a dense factual report.",
		ModelAlias: "finder",
		Tools:      []string{"read", "grep", "glob", "ls", "codesearch", "webfetch", "websearch"},
	},
	"reviewer": {
		Name:        "reviewer",
		Description: "Reviews code for defects",
		SystemPrompt: "You are a code review agent. Read the code under review, point out concrete defects and risky " +
			"patterns with file:line references, and suggest fixes. Do not modify anything.",
		ModelAlias: "review",
		Tools:      []string{"read", "grep", "glob", "ls", "diagnostics", "lsp"},
	},
	"planner": {
		Name:        "planner",
		Description: "Breaks work into ordered steps",
		SystemPrompt: "You are a planning agent. Explore the workspace enough to ground the plan, then return a " +
			"numbered list of small verifiable steps. Do not implement anything.",
		ModelAlias: "smart",
		Tools:      []string{"read", "grep", "glob", "ls", "codesearch"},
	},
	"oracle": {
		Name:        "oracle",
		Description: "Answers hard questions with deep reasoning",
		SystemPrompt: "You are a reasoning agent for hard questions. Think the problem through carefully and return a " +
			"well-argued answer. Use tools only to check facts.",
		ModelAlias: "oracle",
		Tools:      []string{"read", "grep", "glob", "ls"},
	},
	"finder": {
		Name:        "finder",
		Description: "Locates code and files",
		SystemPrompt: "You are a code-finding agent. Locate the files, symbols, or patterns the task describes and " +
			"return precise paths with line numbers.",
		ModelAlias: "finder",
		Tools:      []string{"read", "grep", "glob", "ls", "codesearch", "lsp"},
	},
	"librarian": {
		Name:        "librarian",
		Description: "Explains libraries and APIs",
		SystemPrompt: "You are a documentation agent. Answer questions about libraries and APIs using the workspace's " +
			"dependencies and the web, with short grounded examples.",
		ModelAlias: "finder",
		Tools:      []string{"read", "grep", "glob", "webfetch", "websearch"},
	},
}

// SubagentTypes lists the known types, for schema enums and validation.
func SubagentTypes() []string {
	return []string{"coder", "researcher", "reviewer", "planner", "oracle", "finder", "librarian"}
}

// Runner executes subagents against a narrowed view of the parent
// registry. One global semaphore bounds parallelism across every caller.
type Runner struct {
	parent      ports.ToolRegistry
	newProvider func(identifier string) (ports.Provider, error)
	maxTokens   int
	logger      logging.Logger
	sem         *semaphore.Weighted
}

func NewRunner(parent ports.ToolRegistry, newProvider func(string) (ports.Provider, error), maxTokens int, logger logging.Logger) *Runner {
	return &Runner{
		parent:      parent,
		newProvider: newProvider,
		maxTokens:   maxTokens,
		logger:      logging.OrNop(logger),
		sem:         semaphore.NewWeighted(MaxParallelTasks),
	}
}

// Run executes one subagent to completion and returns its final text.
func (r *Runner) Run(ctx context.Context, subagentType, prompt string) (string, error) {
	if subagentType == "auto" {
		routed, err := r.route(ctx, prompt)
		if err != nil {
			return "", err
		}
		r.logger.Info("subagent: auto routed to %s", routed)
		subagentType = routed
	}
	cfg, known := subagentConfigs[subagentType]
	if !known {
		return "", fmt.Errorf("unknown subagent type %q (known: %s, auto)", subagentType, strings.Join(SubagentTypes(), ", "))
	}

	if err := r.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer r.sem.Release(1)

	provider, err := r.newProvider(llm.Resolve(cfg.ModelAlias))
	if err != nil {
		return "", fmt.Errorf("subagent provider: %w", err)
	}

	registry := r.narrowed(cfg.Tools)
	orch := NewOrchestrator(registry, 20, r.maxTokens, 0, r.logger)
	stream, done := orch.Execute(ctx, provider, cfg.SystemPrompt, []ports.Message{
		{Role: "user", Content: prompt, Timestamp: time.Now()},
	})
	for range stream {
		// Subagent chunks stay internal; only the final text surfaces.
	}
	result := <-done
	if result.Cancelled {
		return "", ctx.Err()
	}
	if strings.TrimSpace(result.FinalText) == "" {
		return "", fmt.Errorf("subagent %s produced no answer", subagentType)
	}
	return result.FinalText, nil
}

// narrowed builds a registry holding only the named subset of the parent
// tools. Meta-tools are never inherited, so subagents cannot recurse.
func (r *Runner) narrowed(names []string) ports.ToolRegistry {
	registry := tools.NewRegistry(r.logger)
	for _, name := range names {
		tool, err := r.parent.Get(name)
		if err != nil {
			continue
		}
		_ = registry.Register(tool)
	}
	return registry
}

// route asks the router model to classify the task into a concrete type.
func (r *Runner) route(ctx context.Context, prompt string) (string, error) {
	provider, err := r.newProvider(llm.Resolve("router"))
	if err != nil {
		return "", fmt.Errorf("router provider: %w", err)
	}
	question := "Classify this task for an AI coding assistant. Answer with exactly one word from: " +
		strings.Join(SubagentTypes(), ", ") + ".\n\nTask: " + prompt
	answer, err := llm.Complete(ctx, provider, ports.StreamRequest{
		Messages:  []ports.Message{{Role: "user", Content: question}},
		MaxTokens: 16,
	})
	if err != nil {
		return "", fmt.Errorf("router call failed: %w", err)
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	for _, known := range SubagentTypes() {
		if strings.Contains(answer, known) {
			return known, nil
		}
	}
	return "coder", nil
}

// TaskTool is the `task` registry tool: one subagent, one prompt.
type TaskTool struct {
	runner *Runner
}

func NewTaskTool(runner *Runner) *TaskTool {
	return &TaskTool{runner: runner}
}

func (t *TaskTool) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	subagentType := strings.TrimSpace(stringArg(call.Arguments, "subagent_type"))
	prompt := stringArg(call.Arguments, "prompt")
	if subagentType == "" || prompt == "" {
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("task needs 'subagent_type' and 'prompt'")}, nil
	}
	started := time.Now()
	text, err := t.runner.Run(ctx, subagentType, prompt)
	if err != nil {
		return &ports.ToolResult{CallID: call.ID, Error: err}, nil
	}
	elapsed := time.Since(started).Milliseconds()
	return &ports.ToolResult{
		CallID:   call.ID,
		Content:  text,
		Metadata: map[string]any{"subagent_type": subagentType, "elapsed_ms": elapsed},
	}, nil
}

func (t *TaskTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name: "task",
		Description: "Delegate one task to a specialized subagent and return its final answer. " +
			"Use 'auto' to let a router pick the type.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"subagent_type": {Type: "string", Description: "Subagent to run", Enum: append(SubagentTypes(), "auto")},
				"prompt":        {Type: "string", Description: "Complete task description for the subagent"},
				"description":   {Type: "string", Description: "Short label for progress display"},
			},
			Required: []string{"subagent_type", "prompt"},
		},
	}
}

func (t *TaskTool) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Name: "task", Version: "1.0.0", Category: "orchestration"}
}

// ParallelTasksTool is the `parallel_tasks` registry tool: up to
// MaxParallelTasks subagents at once, results aggregated with timings.
type ParallelTasksTool struct {
	runner *Runner
}

func NewParallelTasksTool(runner *Runner) *ParallelTasksTool {
	return &ParallelTasksTool{runner: runner}
}

type taskSpec struct {
	SubagentType string `json:"subagent_type"`
	Prompt       string `json:"prompt"`
	Description  string `json:"description"`
}

type taskOutcome struct {
	spec      taskSpec
	text      string
	err       error
	elapsedMS int64
}

func (t *ParallelTasksTool) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	specs, err := decodeTaskSpecs(call.Arguments["tasks"])
	if err != nil {
		return &ports.ToolResult{CallID: call.ID, Error: err}, nil
	}
	if len(specs) == 0 {
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("tasks list is empty")}, nil
	}
	truncated := 0
	if len(specs) > MaxParallelTasks {
		truncated = len(specs) - MaxParallelTasks
		specs = specs[:MaxParallelTasks]
	}
	failFast := boolArg(call.Arguments, "fail_fast")

	// fail_fast cancels the whole batch: the first failure flips a shared
	// flag and cancels the batch context, so running siblings stop and
	// tasks that have not started yet short-circuit.
	runCtx, cancelBatch := context.WithCancel(ctx)
	defer cancelBatch()
	var failed atomic.Bool
	outcomes := make([]taskOutcome, len(specs))
	var wg sync.WaitGroup
	for i, spec := range specs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome := taskOutcome{spec: spec}
			if failFast && failed.Load() {
				outcome.err = fmt.Errorf("cancelled: a previous task failed")
				outcomes[i] = outcome
				return
			}
			started := time.Now()
			outcome.text, outcome.err = t.runner.Run(runCtx, spec.SubagentType, spec.Prompt)
			outcome.elapsedMS = time.Since(started).Milliseconds()
			if outcome.err != nil && failFast && ctx.Err() == nil {
				failed.Store(true)
				cancelBatch()
			}
			outcomes[i] = outcome
		}()
	}
	wg.Wait()

	var b strings.Builder
	if truncated > 0 {
		fmt.Fprintf(&b, "Note: %d task(s) beyond the cap of %d were dropped.\n\n", truncated, MaxParallelTasks)
	}
	for i, outcome := range outcomes {
		label := outcome.spec.Description
		if label == "" {
			label = outcome.spec.SubagentType
		}
		fmt.Fprintf(&b, "## Task %d: %s (%d ms)\n", i+1, label, outcome.elapsedMS)
		if outcome.err != nil {
			fmt.Fprintf(&b, "Failed: %v\n\n", outcome.err)
			continue
		}
		b.WriteString(outcome.text + "\n\n")
	}
	return &ports.ToolResult{CallID: call.ID, Content: strings.TrimRight(b.String(), "\n")}, nil
}

func decodeTaskSpecs(raw any) ([]taskSpec, error) {
	if raw == nil {
		return nil, fmt.Errorf("missing 'tasks'")
	}
	data, err := jsonx.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("malformed tasks: %v", err)
	}
	var specs []taskSpec
	if err := jsonx.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("tasks must be a list of {subagent_type, prompt, description?}: %v", err)
	}
	return specs, nil
}

func (t *ParallelTasksTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name: "parallel_tasks",
		Description: fmt.Sprintf("Run up to %d independent subagent tasks concurrently and aggregate their answers with timings.", MaxParallelTasks),
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"tasks": {
					Type:        "array",
					Description: "Task specs: {subagent_type, prompt, description?}",
					Items:       &ports.Property{Type: "object"},
				},
				"fail_fast": {Type: "boolean", Description: "Cancel not-yet-started tasks after the first failure"},
			},
			Required: []string{"tasks"},
		},
	}
}

func (t *ParallelTasksTool) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Name: "parallel_tasks", Version: "1.0.0", Category: "orchestration"}
}

func stringArg(args map[string]any, key string) string {
	value, _ := args[key].(string)
	return value
}

func boolArg(args map[string]any, key string) bool {
	value, _ := args[key].(bool)
	return value
}
