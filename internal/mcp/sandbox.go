package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"codesm/internal/shared/jsonx"
	"codesm/internal/shared/logging"
)

// Bridge markers. Each rides a dedicated line with a JSON payload between
// the begin and end tags.
const (
	markerCallBegin   = "<MCP_CALL_BEGIN>"
	markerCallEnd     = "<MCP_CALL_END>"
	markerResultBegin = "<MCP_RESULT_BEGIN>"
	markerResultEnd   = "<MCP_RESULT_END>"
	markerErrorBegin  = "<MCP_ERROR_BEGIN>"
	markerErrorEnd    = "<MCP_ERROR_END>"
	markerFinalBegin  = "<RESULT_BEGIN>"
	markerFinalEnd    = "<RESULT_END>"
)

// DefaultSandboxTimeout bounds one script run and each bridge read.
const DefaultSandboxTimeout = 30 * time.Second

// ExecutionResult is the sandbox's verdict on one script run.
type ExecutionResult struct {
	Success bool   `json:"success"`
	Output  string `json:"output,omitempty"`
	Value   any    `json:"value,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Sandbox runs LLM-written Python scripts that batch MCP calls through a
// line-delimited bridge: the script emits call markers on stdout, the
// sandbox answers with result or error markers on its stdin, and a final
// result marker carries the script's return value. This keeps many
// intermediate tool payloads out of the prompt context.
type Sandbox struct {
	manager *Manager
	workDir string
	timeout time.Duration
	logger  logging.Logger
}

func NewSandbox(manager *Manager, workDir string, timeout time.Duration, logger logging.Logger) *Sandbox {
	if timeout <= 0 {
		timeout = DefaultSandboxTimeout
	}
	return &Sandbox{
		manager: manager,
		workDir: workDir,
		timeout: timeout,
		logger:  logging.OrNop(logger),
	}
}

// scriptPreamble gives the script an mcp_call function speaking the
// bridge protocol and a _finish hook that reports the `result` variable.
const scriptPreamble = `import json, sys

def mcp_call(server, tool, arguments=None):
    request = {"server": server, "tool": tool, "arguments": arguments or {}}
    sys.stdout.write("<MCP_CALL_BEGIN>" + json.dumps(request) + "<MCP_CALL_END>\n")
    sys.stdout.flush()
    line = sys.stdin.readline().rstrip("\n")
    if line.startswith("<MCP_RESULT_BEGIN>") and line.endswith("<MCP_RESULT_END>"):
        return json.loads(line[len("<MCP_RESULT_BEGIN>"):-len("<MCP_RESULT_END>")])
    if line.startswith("<MCP_ERROR_BEGIN>") and line.endswith("<MCP_ERROR_END>"):
        raise RuntimeError(json.loads(line[len("<MCP_ERROR_BEGIN>"):-len("<MCP_ERROR_END>")]))
    raise RuntimeError("bridge protocol violation: " + line)

`

const scriptEpilogue = `

sys.stdout.write("<RESULT_BEGIN>" + json.dumps(globals().get("result")) + "<RESULT_END>\n")
sys.stdout.flush()
`

type bridgeCall struct {
	Server    string         `json:"server"`
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
}

// Execute runs one script to completion. Failures come back inside the
// result, never as a raised error: the calling tool renders them as prose.
func (s *Sandbox) Execute(ctx context.Context, code string) ExecutionResult {
	interpreter, err := exec.LookPath("python3")
	if err != nil {
		if interpreter, err = exec.LookPath("python"); err != nil {
			return ExecutionResult{Success: false, Error: "no python interpreter on PATH"}
		}
	}

	script, err := os.CreateTemp(s.workDir, "mcp_exec_*.py")
	if err != nil {
		return ExecutionResult{Success: false, Error: fmt.Sprintf("write script: %v", err)}
	}
	scriptPath := script.Name()
	defer func() { _ = os.Remove(scriptPath) }()
	if _, err := script.WriteString(scriptPreamble + code + scriptEpilogue); err != nil {
		_ = script.Close()
		return ExecutionResult{Success: false, Error: fmt.Sprintf("write script: %v", err)}
	}
	_ = script.Close()

	cmd := exec.Command(interpreter, scriptPath)
	cmd.Dir = s.workDir
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return ExecutionResult{Success: false, Error: err.Error()}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return ExecutionResult{Success: false, Error: err.Error()}
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return ExecutionResult{Success: false, Error: fmt.Sprintf("start interpreter: %v", err)}
	}

	result := s.bridge(ctx, cmd, stdin, stdout)

	waitErr := cmd.Wait()
	if result.Error == "" && waitErr != nil {
		result.Success = false
		result.Error = strings.TrimSpace(stderr.String())
		if result.Error == "" {
			result.Error = waitErr.Error()
		}
	}
	return result
}

// bridge pumps the marker protocol until the script exits or a read
// exceeds the timeout. Non-marker stdout lines accumulate as plain
// output.
func (s *Sandbox) bridge(ctx context.Context, cmd *exec.Cmd, stdin io.WriteCloser, stdout io.Reader) ExecutionResult {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	var output strings.Builder
	result := ExecutionResult{}
	sawFinal := false

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				result.Output = strings.TrimRight(output.String(), "\n")
				result.Success = true
				if !sawFinal {
					s.logger.Debug("mcp: script exited without a final result marker")
				}
				return result
			}
			switch {
			case strings.HasPrefix(line, markerCallBegin) && strings.HasSuffix(line, markerCallEnd):
				payload := line[len(markerCallBegin) : len(line)-len(markerCallEnd)]
				s.answerCall(ctx, stdin, payload)
			case strings.HasPrefix(line, markerFinalBegin) && strings.HasSuffix(line, markerFinalEnd):
				payload := line[len(markerFinalBegin) : len(line)-len(markerFinalEnd)]
				var value any
				if err := json.Unmarshal([]byte(payload), &value); err == nil {
					result.Value = value
				}
				sawFinal = true
			default:
				output.WriteString(line)
				output.WriteString("\n")
			}
		case <-time.After(s.timeout):
			s.logger.Warn("mcp: sandbox timed out after %s, killing script", s.timeout)
			_ = cmd.Process.Kill()
			return ExecutionResult{
				Success: false,
				Output:  strings.TrimRight(output.String(), "\n"),
				Error:   "timeout",
			}
		case <-ctx.Done():
			_ = cmd.Process.Kill()
			return ExecutionResult{
				Success: false,
				Output:  strings.TrimRight(output.String(), "\n"),
				Error:   ctx.Err().Error(),
			}
		}
	}
}

// answerCall runs one bridged tool call and writes the reply marker.
func (s *Sandbox) answerCall(ctx context.Context, stdin io.Writer, payload string) {
	var call bridgeCall
	if err := json.Unmarshal([]byte(payload), &call); err != nil {
		s.writeMarker(stdin, markerErrorBegin, markerErrorEnd, "malformed bridge request: "+err.Error())
		return
	}
	text, err := s.manager.CallTool(ctx, call.Server, call.Tool, call.Arguments)
	if err != nil {
		s.writeMarker(stdin, markerErrorBegin, markerErrorEnd, err.Error())
		return
	}
	s.writeMarker(stdin, markerResultBegin, markerResultEnd, text)
}

func (s *Sandbox) writeMarker(stdin io.Writer, begin, end string, value any) {
	payload := jsonx.MustMarshalString(value)
	if _, err := fmt.Fprintf(stdin, "%s%s%s\n", begin, payload, end); err != nil {
		s.logger.Warn("mcp: bridge write failed: %v", err)
	}
}
