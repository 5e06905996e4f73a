package agent

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"
)

// promptEnv is the snapshot of environment facts the system prompt
// embeds for one turn.
type promptEnv struct {
	WorkDir    string
	ToolNames  []string
	LSPServers []string
	MCPServers []string
	Rules      string
}

const basePrompt = `You are codesm, an AI coding assistant operating inside the user's workspace.

Work iteratively: inspect before you change, make small verifiable edits, and check diagnostics after writes. Prefer the dedicated tools (read, edit, grep, glob) over shell commands when one fits. Use the todo tool to plan multi-step work. Delegate large independent subtasks with the task and parallel_tasks tools.

When you change files, state plainly what changed and why. If a tool fails, read the error and adjust; do not repeat the identical call. Never invent file contents you have not read.`

// buildSystemPrompt assembles the per-turn system prompt: the fixed
// instructions, the environment block, and any project rule files.
func buildSystemPrompt(env promptEnv) string {
	var b strings.Builder
	b.WriteString(basePrompt)

	b.WriteString("\n\n# Environment\n")
	fmt.Fprintf(&b, "- Working directory: %s\n", env.WorkDir)
	fmt.Fprintf(&b, "- Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&b, "- Date: %s\n", time.Now().Format("2006-01-02"))
	if len(env.ToolNames) > 0 {
		names := append([]string(nil), env.ToolNames...)
		sort.Strings(names)
		fmt.Fprintf(&b, "- Tools: %s\n", strings.Join(names, ", "))
	}
	if len(env.LSPServers) > 0 {
		fmt.Fprintf(&b, "- Language servers: %s\n", strings.Join(env.LSPServers, ", "))
	}
	if len(env.MCPServers) > 0 {
		fmt.Fprintf(&b, "- MCP servers: %s\n", strings.Join(env.MCPServers, ", "))
	}

	if env.Rules != "" {
		b.WriteString("\n" + env.Rules + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
