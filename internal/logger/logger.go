// Package logger provides verbose logging for the mortar CLI.
// When verbose mode is enabled via the --verbose flag, pipeline stages
// print debug messages to stderr so that retrieval and grounding decisions
// can be followed per request.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Logger writes levelled messages to a single writer. The zero value is
// not usable; use New or the package-level functions.
type Logger struct {
	mu      sync.RWMutex
	verbose bool
	out     io.Writer
}

// New returns a logger writing to w with verbose mode disabled.
func New(w io.Writer) *Logger {
	return &Logger{out: w}
}

// std is the process-wide logger used by the package-level functions.
var std = New(os.Stderr)

// SetVerbose enables or disables verbose output.
func (l *Logger) SetVerbose(v bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.verbose = v
}

// IsVerbose reports whether verbose output is enabled.
func (l *Logger) IsVerbose() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.verbose
}

// SetOutput redirects log output, mainly for tests.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = w
}

func (l *Logger) emit(prefix, format string, args ...any) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.verbose {
		return
	}
	fmt.Fprintf(l.out, prefix+format+"\n", args...)
}

// Debug logs a debug message when verbose mode is enabled.
func (l *Logger) Debug(format string, args ...any) { l.emit("[DEBUG] ", format, args...) }

// Info logs an informational message when verbose mode is enabled.
func (l *Logger) Info(format string, args ...any) { l.emit("[INFO] ", format, args...) }

// Warn logs a warning when verbose mode is enabled.
func (l *Logger) Warn(format string, args ...any) { l.emit("[WARN] ", format, args...) }

// Section prints a section header when verbose mode is enabled.
func (l *Logger) Section(name string) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.verbose {
		fmt.Fprintf(l.out, "\n=== %s ===\n", name)
	}
}

// Package-level functions delegate to the process-wide logger.

func SetVerbose(v bool)                { std.SetVerbose(v) }
func IsVerbose() bool                  { return std.IsVerbose() }
func SetOutput(w io.Writer)            { std.SetOutput(w) }
func Debug(format string, args ...any) { std.Debug(format, args...) }
func Info(format string, args ...any)  { std.Info(format, args...) }
func Warn(format string, args ...any)  { std.Warn(format, args...) }
func Section(name string)              { std.Section(name) }
