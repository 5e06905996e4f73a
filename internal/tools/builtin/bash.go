package builtin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"codesm/internal/agent/ports"
	"codesm/internal/shared/logging"
)

// defaultBashTimeout bounds one command run.
const defaultBashTimeout = 120 * time.Second

type bashTool struct {
	workDir string
	logger  logging.Logger
}

func NewBash(deps Deps) ports.ToolExecutor {
	return &bashTool{workDir: deps.WorkDir, logger: logging.OrNop(deps.Logger)}
}

func (t *bashTool) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	command := argString(call.Arguments, "command")
	if command == "" {
		return failf(call.ID, "missing 'command'"), nil
	}
	cwd := resolvePath(t.workDir, argString(call.Arguments, "cwd"))

	timeout := defaultBashTimeout
	if secs := argInt(call.Arguments, "timeout", 0); secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "bash", "-c", command)
	cmd.Dir = cwd
	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined

	t.logger.Debug("bash: %s (cwd=%s timeout=%s)", command, cwd, timeout)
	runErr := cmd.Run()

	output := strings.TrimRight(combined.String(), "\n")
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return failf(call.ID, "command timed out after %s\n%s", timeout, output), nil
	}
	if runErr != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		if output == "" {
			output = runErr.Error()
		}
		return ok(call.ID, fmt.Sprintf("%s\n[exit code %d]", output, exitCode)), nil
	}
	if output == "" {
		output = "(no output)"
	}
	return ok(call.ID, output), nil
}

func (t *bashTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "bash",
		Description: "Run a shell command and return combined stdout/stderr. Non-zero exits append the exit code instead of failing.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"command": {Type: "string", Description: "Shell command to run"},
				"cwd":     {Type: "string", Description: "Working directory, defaults to the workspace root"},
				"timeout": {Type: "integer", Description: "Timeout in seconds, default 120"},
			},
			Required: []string{"command"},
		},
	}
}

func (t *bashTool) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Name: "bash", Version: "1.0.0", Category: "execution", Tags: []string{"shell"}}
}
