// Package logger provides leveled, field-carrying process logging for the
// CLI and the executor edges. Per-query decision trails do not go through
// here; they are accumulated on the query's own debug log.
package logger

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// ANSI color codes for console output
const (
	colorReset  = "\033[0m"
	colorCyan   = "\033[36m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[93m"
	colorRed    = "\033[91m"
	colorGray   = "\033[90m"
)

// Level is a log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	}
	return "UNKNOWN"
}

// Logger writes formatted entries for one named component.
type Logger struct {
	component string

	mu           sync.RWMutex
	minLevel     Level
	colorEnabled bool
}

// New creates a logger for a component.
func New(component string) *Logger {
	return &Logger{
		component:    component,
		minLevel:     LevelInfo,
		colorEnabled: isTerminal(),
	}
}

// isTerminal checks if we're outputting to a terminal (for color support)
func isTerminal() bool {
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	fileInfo, _ := os.Stdout.Stat()
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}

// SetLevel sets the minimum severity that gets written.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	l.minLevel = level
	l.mu.Unlock()
}

// Debug logs at debug severity.
func (l *Logger) Debug(message string, fields map[string]string) {
	l.log(LevelDebug, message, fields)
}

// Info logs at info severity.
func (l *Logger) Info(message string, fields map[string]string) {
	l.log(LevelInfo, message, fields)
}

// Warn logs at warn severity.
func (l *Logger) Warn(message string, fields map[string]string) {
	l.log(LevelWarn, message, fields)
}

// Error logs at error severity.
func (l *Logger) Error(message string, fields map[string]string) {
	l.log(LevelError, message, fields)
}

func (l *Logger) colorFor(level Level) string {
	if !l.colorEnabled {
		return ""
	}
	switch level {
	case LevelDebug:
		return colorGray
	case LevelInfo:
		return colorGreen
	case LevelWarn:
		return colorYellow
	case LevelError:
		return colorRed
	}
	return colorReset
}

func (l *Logger) log(level Level, message string, fields map[string]string) {
	l.mu.RLock()
	minLevel := l.minLevel
	colorEnabled := l.colorEnabled
	l.mu.RUnlock()
	if level < minLevel {
		return
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	color := l.colorFor(level)
	reset := ""
	if colorEnabled {
		reset = colorReset
	}

	line := fmt.Sprintf("%s[%s]%s [%s] [%s%s%s] %s",
		colorCyan, timestamp, reset, l.component, color, level, reset, message)
	if rendered := renderFields(fields); rendered != "" {
		line += " " + rendered
	}
	fmt.Fprintln(os.Stderr, line)
}

// renderFields renders fields as sorted key=value pairs so lines are
// stable across runs.
func renderFields(fields map[string]string) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%s", k, fields[k])
	}
	return strings.Join(parts, " ")
}
