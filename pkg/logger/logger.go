// Package logger provides component-scoped structured logging.
//
// Every call names the component that emits it ("discord", "bot",
// "cooldown", ...) so log lines can be filtered per subsystem.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

var (
	mu      sync.RWMutex
	level             = INFO
	format            = "text"
	output  io.Writer = os.Stderr
	current           = newSlog(output, format, level)
)

func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "debug"
	case WARN:
		return "warn"
	case ERROR:
		return "error"
	default:
		return "info"
	}
}

// ParseLevel maps a config string to a LogLevel. Unknown values are an error.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return INFO, nil
	case "debug":
		return DEBUG, nil
	case "warn", "warning":
		return WARN, nil
	case "error":
		return ERROR, nil
	default:
		return INFO, fmt.Errorf("unknown log level: %s", s)
	}
}

func SetLevel(l LogLevel) {
	mu.Lock()
	defer mu.Unlock()
	level = l
	current = newSlog(output, format, level)
}

func GetLevel() LogLevel {
	mu.RLock()
	defer mu.RUnlock()
	return level
}

// SetFormat switches between "text" and "json" handlers.
func SetFormat(f string) error {
	f = strings.ToLower(strings.TrimSpace(f))
	switch f {
	case "", "text":
		f = "text"
	case "json":
	default:
		return fmt.Errorf("unknown log format: %s", f)
	}
	mu.Lock()
	defer mu.Unlock()
	format = f
	current = newSlog(output, format, level)
	return nil
}

func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	mu.Lock()
	defer mu.Unlock()
	output = w
	current = newSlog(output, format, level)
}

func newSlog(w io.Writer, f string, l LogLevel) *slog.Logger {
	opts := &slog.HandlerOptions{Level: toSlogLevel(l)}
	if f == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func toSlogLevel(l LogLevel) slog.Level {
	switch l {
	case DEBUG:
		return slog.LevelDebug
	case WARN:
		return slog.LevelWarn
	case ERROR:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func logMessage(l LogLevel, component, message string, fields map[string]any) {
	mu.RLock()
	lg := current
	mu.RUnlock()

	args := make([]any, 0, 2+len(fields)*2)
	if component != "" {
		args = append(args, "component", component)
	}
	for k, v := range fields {
		args = append(args, k, v)
	}
	lg.Log(context.Background(), toSlogLevel(l), message, args...)
}

func Debug(message string) {
	logMessage(DEBUG, "", message, nil)
}

func DebugC(component, message string) {
	logMessage(DEBUG, component, message, nil)
}

func DebugCF(component, message string, fields map[string]any) {
	logMessage(DEBUG, component, message, fields)
}

func Info(message string) {
	logMessage(INFO, "", message, nil)
}

func InfoC(component, message string) {
	logMessage(INFO, component, message, nil)
}

func InfoCF(component, message string, fields map[string]any) {
	logMessage(INFO, component, message, fields)
}

func Warn(message string) {
	logMessage(WARN, "", message, nil)
}

func WarnC(component, message string) {
	logMessage(WARN, component, message, nil)
}

func WarnCF(component, message string, fields map[string]any) {
	logMessage(WARN, component, message, fields)
}

func Error(message string) {
	logMessage(ERROR, "", message, nil)
}

func ErrorC(component, message string) {
	logMessage(ERROR, component, message, nil)
}

func ErrorCF(component, message string, fields map[string]any) {
	logMessage(ERROR, component, message, fields)
}
