// Package logging provides the minimal printf-style logging contract used
// across the codebase plus file-backed component loggers.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Logger defines a minimal, printf-style logging contract.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Nop returns a logger that discards all output.
func Nop() Logger {
	return nopLogger{}
}

// OrNop returns logger when non-nil, otherwise a no-op logger.
func OrNop(logger Logger) Logger {
	if logger == nil {
		return Nop()
	}
	return logger
}

// Level controls which records a component logger emits.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps a config string to a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

var (
	defaultMu    sync.Mutex
	defaultSink  io.Writer
	defaultLevel = LevelInfo
)

// Configure sets the process-wide log sink and level. When path is empty the
// default file codesm.log under the user cache dir is used; "-" writes to
// stderr.
func Configure(path string, level Level) error {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLevel = level

	if path == "-" {
		defaultSink = os.Stderr
		return nil
	}
	if path == "" {
		cache, err := os.UserCacheDir()
		if err != nil {
			defaultSink = os.Stderr
			return nil
		}
		dir := filepath.Join(cache, "codesm")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			defaultSink = os.Stderr
			return nil
		}
		path = filepath.Join(dir, "codesm.log")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defaultSink = f
	return nil
}

type componentLogger struct {
	component string
}

// NewComponentLogger returns the default application logger scoped to a
// component.
func NewComponentLogger(component string) Logger {
	return &componentLogger{component: component}
}

func (l *componentLogger) log(level Level, tag, format string, args ...any) {
	defaultMu.Lock()
	sink := defaultSink
	min := defaultLevel
	defaultMu.Unlock()
	if sink == nil || level < min {
		return
	}
	line := fmt.Sprintf("%s %s [%s] %s\n",
		time.Now().Format("2006-01-02 15:04:05.000"),
		tag,
		l.component,
		fmt.Sprintf(format, args...),
	)
	defaultMu.Lock()
	_, _ = io.WriteString(sink, line)
	defaultMu.Unlock()
}

func (l *componentLogger) Debug(format string, args ...any) {
	l.log(LevelDebug, "DEBUG", format, args...)
}

func (l *componentLogger) Info(format string, args ...any) {
	l.log(LevelInfo, "INFO ", format, args...)
}

func (l *componentLogger) Warn(format string, args ...any) {
	l.log(LevelWarn, "WARN ", format, args...)
}

func (l *componentLogger) Error(format string, args ...any) {
	l.log(LevelError, "ERROR", format, args...)
}

type multiLogger struct {
	loggers []Logger
}

// Multi returns a logger fan-out that calls every non-nil logger in order.
func Multi(loggers ...Logger) Logger {
	flattened := make([]Logger, 0, len(loggers))
	for _, logger := range loggers {
		if logger == nil {
			continue
		}
		if ml, ok := logger.(*multiLogger); ok {
			flattened = append(flattened, ml.loggers...)
			continue
		}
		flattened = append(flattened, logger)
	}
	if len(flattened) == 0 {
		return Nop()
	}
	if len(flattened) == 1 {
		return flattened[0]
	}
	return &multiLogger{loggers: flattened}
}

func (l *multiLogger) Debug(format string, args ...any) {
	for _, logger := range l.loggers {
		logger.Debug(format, args...)
	}
}

func (l *multiLogger) Info(format string, args ...any) {
	for _, logger := range l.loggers {
		logger.Info(format, args...)
	}
}

func (l *multiLogger) Warn(format string, args ...any) {
	for _, logger := range l.loggers {
		logger.Warn(format, args...)
	}
}

func (l *multiLogger) Error(format string, args ...any) {
	for _, logger := range l.loggers {
		logger.Error(format, args...)
	}
}
