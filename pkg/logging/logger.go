// =============================================================================
// pkg/logging/logger.go - Dual Logging Implementation
// =============================================================================
//
// This package provides a dual-output logger that writes:
//   - Informational messages to a log file
//   - Error messages to a separate error file
//
// SCOPED LOGGING:
//   Loggers can be scoped with a prefix using WithScope(). This creates a
//   child logger that prefixes all messages with the scope name, e.g.:
//
//     logger, _ := logging.NewDualLogger("store.log", "store-error.log")
//     writerLog := logger.WithScope("WRITER")
//     writerLog.Info("Committed block 1000") // → [timestamp] [WRITER] Committed block 1000
//
// =============================================================================

package logging

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/karthikiyer56/chainstore/pkg/interfaces"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// SeparatorLine is the visual separator used in logs
	SeparatorLine = "========================================================================="

	// TimeFormat is the timestamp format for log messages
	TimeFormat = "2006-01-02 15:04:05.000"
)

// =============================================================================
// DualLogger Implementation
// =============================================================================

// DualLogger implements the Logger interface with separate log and error files.
type DualLogger struct {
	mu        sync.Mutex
	logFile   *os.File
	errorFile *os.File
	logPath   string
	errorPath string
}

// NewDualLogger creates a new DualLogger that writes to the specified files.
// If the files exist, they are appended to.
func NewDualLogger(logPath, errorPath string) (*DualLogger, error) {
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", logPath, err)
	}

	errorFile, err := os.OpenFile(errorPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("failed to open error file %s: %w", errorPath, err)
	}

	return &DualLogger{
		logFile:   logFile,
		errorFile: errorFile,
		logPath:   logPath,
		errorPath: errorPath,
	}, nil
}

// WithScope creates a scoped logger that prefixes all messages with the
// scope name. The returned ScopedLogger shares the underlying files.
func (l *DualLogger) WithScope(scope string) interfaces.Logger {
	return &ScopedLogger{
		parent: l,
		scope:  scope,
	}
}

// Info logs an informational message to the log file.
func (l *DualLogger) Info(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format(TimeFormat)
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(l.logFile, "[%s] %s\n", timestamp, msg)
}

// Error logs an error message to both the error file and log file.
func (l *DualLogger) Error(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format(TimeFormat)
	msg := fmt.Sprintf(format, args...)

	fmt.Fprintf(l.errorFile, "[%s] ERROR: %s\n", timestamp, msg)
	fmt.Fprintf(l.logFile, "[%s] ERROR: %s\n", timestamp, msg)
}

// Separator logs a visual separator line to the log file.
func (l *DualLogger) Separator() {
	l.mu.Lock()
	defer l.mu.Unlock()

	fmt.Fprintln(l.logFile, SeparatorLine)
}

// Sync forces a flush of all log data to disk.
func (l *DualLogger) Sync() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.logFile.Sync()
	l.errorFile.Sync()
}

// Close closes all log files after syncing.
func (l *DualLogger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logFile != nil {
		l.logFile.Sync()
		l.logFile.Close()
		l.logFile = nil
	}

	if l.errorFile != nil {
		l.errorFile.Sync()
		l.errorFile.Close()
		l.errorFile = nil
	}
}

// =============================================================================
// ScopedLogger - Logger with a Prefix
// =============================================================================

// ScopedLogger wraps a DualLogger and prefixes all messages with a scope
// name. It shares the underlying files with its parent; closing the parent
// closes the files, do not close ScopedLogger directly.
type ScopedLogger struct {
	parent *DualLogger
	scope  string
}

// WithScope creates a nested scoped logger.
// The scopes are combined: parent.WithScope("A").WithScope("B") → [A:B]
func (l *ScopedLogger) WithScope(scope string) interfaces.Logger {
	return &ScopedLogger{
		parent: l.parent,
		scope:  l.scope + ":" + scope,
	}
}

// Info logs an informational message with the scope prefix.
func (l *ScopedLogger) Info(format string, args ...interface{}) {
	l.parent.mu.Lock()
	defer l.parent.mu.Unlock()

	if l.parent.logFile == nil {
		return
	}
	timestamp := time.Now().Format(TimeFormat)
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(l.parent.logFile, "[%s] [%s] %s\n", timestamp, l.scope, msg)
}

// Error logs an error message with the scope prefix.
func (l *ScopedLogger) Error(format string, args ...interface{}) {
	l.parent.mu.Lock()
	defer l.parent.mu.Unlock()

	if l.parent.logFile == nil {
		return
	}
	timestamp := time.Now().Format(TimeFormat)
	msg := fmt.Sprintf(format, args...)

	fmt.Fprintf(l.parent.errorFile, "[%s] [%s] ERROR: %s\n", timestamp, l.scope, msg)
	fmt.Fprintf(l.parent.logFile, "[%s] [%s] ERROR: %s\n", timestamp, l.scope, msg)
}

// Separator logs a visual separator line (no scope prefix for separators).
func (l *ScopedLogger) Separator() {
	l.parent.Separator()
}

// Sync forces a flush of all log data to disk.
func (l *ScopedLogger) Sync() {
	l.parent.Sync()
}

// Close is a no-op for ScopedLogger. Close the parent DualLogger instead.
func (l *ScopedLogger) Close() {
	// No-op: ScopedLogger does not own the files
}

// =============================================================================
// Discard Logger
// =============================================================================

// discardLogger swallows everything. Used by tests and as the default when
// no logger is supplied.
type discardLogger struct{}

// Discard returns a Logger that drops all output.
func Discard() interfaces.Logger { return discardLogger{} }

func (discardLogger) Info(string, ...interface{})          {}
func (discardLogger) Error(string, ...interface{})         {}
func (discardLogger) Separator()                           {}
func (d discardLogger) WithScope(string) interfaces.Logger { return d }
func (discardLogger) Sync()                                {}
func (discardLogger) Close()                               {}

// Compile-Time Interface Checks
var _ interfaces.Logger = (*DualLogger)(nil)
var _ interfaces.Logger = (*ScopedLogger)(nil)
var _ interfaces.Logger = discardLogger{}
