package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"codesm/internal/agent/ports"
	"codesm/internal/index"
	"codesm/internal/llm"
	"codesm/internal/lsp"
	"codesm/internal/mcp"
	"codesm/internal/observability"
	"codesm/internal/rules"
	"codesm/internal/session/filestore"
	"codesm/internal/shared/config"
	"codesm/internal/shared/logging"
	"codesm/internal/shared/token"
	"codesm/internal/snapshot"
	"codesm/internal/tools"
	"codesm/internal/tools/builtin"
)

// Agent is the facade: one session, one registry, one provider, plus the
// collaborators the tools need. Construction wires everything; Chat runs
// turns; Cleanup tears the externals down.
type Agent struct {
	cfg     config.Config
	workDir string
	logger  logging.Logger

	provider   ports.Provider
	summarizer ports.Provider
	registry   *tools.Registry
	sessions   ports.SessionStore
	session    *ports.Session

	snapshots  *snapshot.Store
	ledger     *snapshot.Ledger
	lspMux     *lsp.Multiplexer
	mcpManager *mcp.Manager
	contextMgr *ContextManager
	orch       *Orchestrator
	metrics    *observability.MetricsCollector

	ruleText string
}

// SetMetrics attaches a collector; nil disables recording.
func (a *Agent) SetMetrics(metrics *observability.MetricsCollector) {
	a.metrics = metrics
	if metrics != nil {
		a.registry.SetObserver(func(name, status string, duration time.Duration) {
			metrics.RecordToolExecution(context.Background(), name, status, duration)
		})
	}
}

// New builds a fully wired agent rooted at workDir. External services
// that fail to come up (MCP servers, language servers, the semantic
// index) degrade to absent; only provider and session-store failures are
// fatal.
func New(ctx context.Context, cfg config.Config, workDir string, logger logging.Logger) (*Agent, error) {
	logger = logging.OrNop(logger)

	opts := llm.Options{
		APIKeys:    cfg.APIKeys,
		BaseURLs:   cfg.BaseURLs,
		Timeout:    cfg.RequestTimeoutDuration(),
		MaxRetries: 2,
		Logger:     logger,
	}
	provider, err := llm.New(cfg.Model, opts)
	if err != nil {
		return nil, fmt.Errorf("build provider: %w", err)
	}
	summarizer, err := llm.New(cfg.SummaryModel, opts)
	if err != nil {
		logger.Warn("agent: no summary provider (%v), using heuristics", err)
		summarizer = nil
	}

	sessions, err := filestore.New(cfg.SessionDir, NewTitleProvider(summarizer, logger), logger)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	session, err := sessions.Create(ctx, workDir)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	a := &Agent{
		cfg:        cfg,
		workDir:    workDir,
		logger:     logger,
		provider:   provider,
		summarizer: summarizer,
		registry:   tools.NewRegistry(logger),
		sessions:   sessions,
		session:    session,
		snapshots:  snapshot.New(workDir, logger),
		ledger:     snapshot.NewLedger(),
		lspMux:     lsp.NewMultiplexer(workDir, logger),
		mcpManager: mcp.NewManager(logger),
		contextMgr: NewContextManager(cfg.ContextWindow, summarizer, logger),
		ruleText:   rules.Render(workDir, logger),
	}
	a.orch = NewOrchestrator(a.registry, cfg.MaxIterations, cfg.MaxTokens, cfg.Temperature, logger)

	status := a.lspMux.Init(ctx, parseLSPServers(cfg.LSPServers))
	for key, ok := range status {
		if !ok {
			logger.Warn("agent: language server %s failed to start", key)
		}
	}

	deps := builtin.Deps{
		WorkDir:   workDir,
		Snapshots: a.snapshots,
		Ledger:    a.ledger,
		LSP:       a.lspMux,
		Sessions:  sessions,
		APIKeys:   cfg.APIKeys,
		Logger:    logger,
	}
	if semantic, err := index.Open(workDir, cfg.APIKeys["openai"], logger); err != nil {
		logger.Info("agent: semantic index unavailable: %v", err)
	} else {
		deps.Search = semantic
	}
	if err := builtin.RegisterAll(a.registry, deps); err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}

	a.connectMCP(ctx)

	runner := NewRunner(a.registry, func(identifier string) (ports.Provider, error) {
		return llm.New(identifier, opts)
	}, cfg.MaxTokens, logger)
	if err := a.registry.Register(NewTaskTool(runner)); err != nil {
		return nil, err
	}
	if err := a.registry.Register(NewParallelTasksTool(runner)); err != nil {
		return nil, err
	}

	return a, nil
}

// connectMCP discovers server configs, connects, and registers the
// resulting tools plus the sandbox meta-tools. Everything here is soft:
// no MCP servers means no MCP tools.
func (a *Agent) connectMCP(ctx context.Context) {
	var configs map[string]mcp.ServerConfig
	if a.cfg.MCPConfigPath != "" {
		configs = mcp.LoadConfigFile(config.ExpandHome(a.cfg.MCPConfigPath), a.logger)
	} else {
		configs = mcp.DiscoverConfigs(a.workDir, a.logger)
	}
	if len(configs) > 0 {
		status := a.mcpManager.ConnectAll(ctx, configs)
		for name, ok := range status {
			if !ok {
				a.logger.Warn("agent: mcp server %s failed to connect", name)
			}
		}
	}
	for _, tool := range a.mcpManager.Tools() {
		if err := a.registry.Register(tool); err != nil {
			a.logger.Warn("agent: skipping mcp tool: %v", err)
		}
	}
	sandbox := mcp.NewSandbox(a.mcpManager, a.workDir, mcp.DefaultSandboxTimeout, a.logger)
	_ = a.registry.Register(mcp.NewExecuteTool(sandbox))
	_ = a.registry.Register(mcp.NewCatalogTool(a.mcpManager))
}

// parseLSPServers decodes extra server entries of the form
// ".ext1,.ext2=command arg...".
func parseLSPServers(entries []string) []lsp.ServerSpec {
	var specs []lsp.ServerSpec
	for _, entry := range entries {
		exts, command, found := strings.Cut(entry, "=")
		if !found {
			continue
		}
		fields := strings.Fields(command)
		if len(fields) == 0 {
			continue
		}
		var extensions []string
		for _, ext := range strings.Split(exts, ",") {
			ext = strings.TrimSpace(ext)
			if ext == "" {
				continue
			}
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			extensions = append(extensions, ext)
		}
		if len(extensions) == 0 {
			continue
		}
		specs = append(specs, lsp.ServerSpec{
			Key:        fields[0],
			Command:    fields[0],
			Args:       fields[1:],
			LanguageID: strings.TrimPrefix(extensions[0], "."),
			Extensions: extensions,
		})
	}
	return specs
}

// SessionID returns the active session id.
func (a *Agent) SessionID() string {
	return a.session.ID
}

// Sessions exposes the store for session-management surfaces.
func (a *Agent) Sessions() ports.SessionStore {
	return a.sessions
}

// Chat runs one turn: persist the user message, compact, stream the
// react loop, then persist what the loop produced. The returned channel
// closes when the turn ends; cancellation via ctx closes it early.
func (a *Agent) Chat(ctx context.Context, text string) (<-chan ports.StreamChunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("empty message")
	}
	if err := a.sessions.AddMessage(ctx, a.session.ID, ports.Message{
		Role:      "user",
		Content:   text,
		Timestamp: time.Now(),
	}); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	messages, err := a.sessions.GetMessages(ctx, a.session.ID)
	if err != nil {
		return nil, err
	}
	messages, err = a.contextMgr.Compact(ctx, messages)
	if err != nil {
		a.logger.Warn("agent: compaction failed, sending full history: %v", err)
	}

	system := buildSystemPrompt(promptEnv{
		WorkDir:    a.workDir,
		ToolNames:  a.registry.Names(),
		LSPServers: a.lspMux.Active(),
		MCPServers: a.mcpManager.ServerNames(),
		Rules:      a.ruleText,
	})

	ctx = ports.WithToolContext(ctx, &ports.ToolContext{
		WorkDir:   a.workDir,
		SessionID: a.session.ID,
		Session:   a.sessions,
		Registry:  a.registry,
		Model:     a.provider.Model(),
	})

	started := time.Now()
	stream, done := a.orch.Execute(ctx, a.provider, system, messages)

	out := make(chan ports.StreamChunk, 32)
	go func() {
		defer close(out)
		for chunk := range stream {
			select {
			case out <- chunk:
			case <-ctx.Done():
				// The consumer is gone; keep draining so the loop can
				// wind down and the turn still persists.
				for range stream {
				}
			}
		}
		result := <-done
		a.persistTurn(result, len(messages))
		a.recordTurn(result, time.Since(started))
	}()
	return out, nil
}

func (a *Agent) recordTurn(result Result, elapsed time.Duration) {
	if a.metrics == nil {
		return
	}
	status := "ok"
	if result.Cancelled {
		status = "cancelled"
	}
	var usage ports.TokenUsage
	if reporter, ok := a.provider.(ports.UsageReporter); ok {
		usage = reporter.LastUsage()
	}
	a.metrics.RecordLLMRequest(context.Background(), a.provider.Model(), status, elapsed, usage.PromptTokens, usage.CompletionTokens)
}

// persistTurn writes the loop's new messages to the session. Tool turns
// are kept for display; a cancelled turn drops its partial final text.
func (a *Agent) persistTurn(result Result, inputLen int) {
	// Persistence must survive the turn's cancellation.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, msg := range result.Messages[inputLen:] {
		if err := a.sessions.AddMessage(ctx, a.session.ID, msg); err != nil {
			a.logger.Error("agent: persist turn message: %v", err)
			return
		}
	}
	if !result.Cancelled && result.FinalText != "" {
		if err := a.sessions.AddMessage(ctx, a.session.ID, ports.Message{
			Role:      "assistant",
			Content:   result.FinalText,
			Timestamp: time.Now(),
			Metadata:  map[string]any{"iterations": result.Iterations},
		}); err != nil {
			a.logger.Error("agent: persist assistant message: %v", err)
		}
	}
	a.accumulateUsage(ctx, result)
}

// accumulateUsage folds the provider's last-turn token counts into the
// session totals. Providers without usage reporting still contribute a
// completion-side count of the final text.
func (a *Agent) accumulateUsage(ctx context.Context, result Result) {
	var usage ports.TokenUsage
	if reporter, ok := a.provider.(ports.UsageReporter); ok {
		usage = reporter.LastUsage()
	}
	if usage.TotalTokens == 0 && result.FinalText != "" {
		usage.CompletionTokens = token.CountTokens(result.FinalText)
		usage.TotalTokens = usage.CompletionTokens
	}
	if usage.TotalTokens == 0 {
		return
	}
	session, err := a.sessions.Get(ctx, a.session.ID)
	if err != nil {
		return
	}
	session.Usage.PromptTokens += usage.PromptTokens
	session.Usage.CompletionTokens += usage.CompletionTokens
	session.Usage.TotalTokens += usage.TotalTokens
	if err := a.sessions.Save(ctx, session); err != nil {
		a.logger.Warn("agent: save usage: %v", err)
	}
}

// NewSession abandons the current session and starts a fresh one.
// Snapshots and the undo ledger reset with it.
func (a *Agent) NewSession(ctx context.Context) (string, error) {
	session, err := a.sessions.Create(ctx, a.workDir)
	if err != nil {
		return "", err
	}
	a.session = session
	a.ledger.Reset()
	return session.ID, nil
}

// Usage returns the session's accumulated token counts.
func (a *Agent) Usage(ctx context.Context) ports.TokenUsage {
	session, err := a.sessions.Get(ctx, a.session.ID)
	if err != nil {
		return ports.TokenUsage{}
	}
	return session.Usage
}

// Cleanup releases external resources: snapshot storage, language
// servers, MCP server processes.
func (a *Agent) Cleanup() {
	a.snapshots.Cleanup()
	a.lspMux.Shutdown()
	a.mcpManager.Close()
}
