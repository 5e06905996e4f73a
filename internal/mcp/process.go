package mcp

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"codesm/internal/shared/logging"
)

// processManager owns one MCP server subprocess: stdio pipes, stderr
// draining, and bounded shutdown.
type processManager struct {
	command string
	args    []string
	env     []string
	logger  logging.Logger

	mu       sync.Mutex
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	stdout   io.ReadCloser
	running  bool
	waitDone chan error
}

func newProcessManager(cfg ServerConfig, logger logging.Logger) *processManager {
	pm := &processManager{
		command: cfg.Command,
		args:    cfg.Args,
		logger:  logging.OrNop(logger),
	}
	if len(cfg.Env) > 0 {
		pm.env = os.Environ()
		for k, v := range cfg.Env {
			pm.env = append(pm.env, k+"="+v)
		}
	}
	return pm
}

func (pm *processManager) start() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if pm.running {
		return fmt.Errorf("process already running")
	}

	resolved, err := resolveExecutable(pm.command)
	if err != nil {
		return err
	}
	cmd := exec.Command(resolved, pm.args...)
	cmd.Env = pm.env

	if pm.stdin, err = cmd.StdinPipe(); err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	if pm.stdout, err = cmd.StdoutPipe(); err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", pm.command, err)
	}

	pm.cmd = cmd
	pm.running = true
	pm.waitDone = make(chan error, 1)
	pm.logger.Debug("mcp: started %s (pid %d)", pm.command, cmd.Process.Pid)

	go pm.drainStderr(stderr)
	go func() { pm.waitDone <- cmd.Wait() }()
	return nil
}

func resolveExecutable(command string) (string, error) {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return "", fmt.Errorf("command is required")
	}
	resolved, err := exec.LookPath(trimmed)
	if err != nil {
		return "", fmt.Errorf("command not found: %w", err)
	}
	return resolved, nil
}

// stop closes stdin to let the server exit on its own, then kills it when
// the wait exceeds the timeout.
func (pm *processManager) stop(timeout time.Duration) error {
	pm.mu.Lock()
	if !pm.running {
		pm.mu.Unlock()
		return nil
	}
	pm.running = false
	cmd := pm.cmd
	stdin := pm.stdin
	waitDone := pm.waitDone
	pm.mu.Unlock()

	if stdin != nil {
		_ = stdin.Close()
	}
	select {
	case <-waitDone:
		return nil
	case <-time.After(timeout):
		pm.logger.Warn("mcp: %s did not exit in %s, killing", pm.command, timeout)
		if cmd != nil && cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		<-waitDone
		return nil
	}
}

func (pm *processManager) isRunning() bool {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.running
}

func (pm *processManager) write(data []byte) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if !pm.running || pm.stdin == nil {
		return fmt.Errorf("process not running")
	}
	_, err := pm.stdin.Write(data)
	return err
}

func (pm *processManager) stdoutReader() io.Reader {
	return pm.stdout
}

func (pm *processManager) drainStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		pm.logger.Debug("mcp: [%s stderr] %s", pm.command, scanner.Text())
	}
}
