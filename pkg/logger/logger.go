// Package logger is the logging contract shared by the scheduler loop, the
// behavior host, the RPC server and the daemon. Components receive a Logger
// at construction; a nil Logger is treated as NopLogger by every consumer.
package logger

import (
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
)

// Logger is a printf-style leveled logger.
type Logger interface {
	// Debug logs a diagnostic message. Backends may drop it.
	Debug(format string, args ...interface{})

	// Info logs an informational message (e.g., "loop started").
	Info(format string, args ...interface{})

	// Warning logs a recoverable problem (e.g., "stop on unknown timer 4").
	Warning(format string, args ...interface{})

	// Error logs a failure (e.g., a panic recovered from a fired callback).
	Error(format string, args ...interface{})

	// Close releases backend resources. Safe to call multiple times.
	Close() error
}

// OrNop returns l, or a NopLogger when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return NopLogger{}
	}
	return l
}

// StandardLogger writes through a stdlib *log.Logger with a level prefix.
type StandardLogger struct {
	logger *log.Logger
	debug  bool
}

// NewStandardLogger wraps l. Debug messages are dropped unless debug is set.
func NewStandardLogger(l *log.Logger, debug bool) *StandardLogger {
	return &StandardLogger{logger: l, debug: debug}
}

func (s *StandardLogger) Debug(format string, args ...interface{}) {
	if !s.debug {
		return
	}
	s.logger.Printf("[DEBUG] "+format, args...)
}

func (s *StandardLogger) Info(format string, args ...interface{}) {
	s.logger.Printf("[INFO] "+format, args...)
}

func (s *StandardLogger) Warning(format string, args ...interface{}) {
	s.logger.Printf("[WARNING] "+format, args...)
}

func (s *StandardLogger) Error(format string, args ...interface{}) {
	s.logger.Printf("[ERROR] "+format, args...)
}

// Close is a no-op; the wrapped *log.Logger owns its writer.
func (s *StandardLogger) Close() error {
	return nil
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(format string, args ...interface{})   {}
func (NopLogger) Info(format string, args ...interface{})    {}
func (NopLogger) Warning(format string, args ...interface{}) {}
func (NopLogger) Error(format string, args ...interface{})   {}
func (NopLogger) Close() error                               { return nil }

// MockLogger records formatted messages per level. It is safe for
// concurrent use since loop goroutines and tests read it at the same time.
type MockLogger struct {
	mu           sync.Mutex
	DebugCalls   []string
	InfoCalls    []string
	WarningCalls []string
	ErrorCalls   []string
	CloseCalled  bool
}

// NewMockLogger creates an empty MockLogger.
func NewMockLogger() *MockLogger {
	return &MockLogger{}
}

func (m *MockLogger) record(dst *[]string, format string, args []interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*dst = append(*dst, fmt.Sprintf(format, args...))
}

func (m *MockLogger) Debug(format string, args ...interface{}) {
	m.record(&m.DebugCalls, format, args)
}

func (m *MockLogger) Info(format string, args ...interface{}) {
	m.record(&m.InfoCalls, format, args)
}

func (m *MockLogger) Warning(format string, args ...interface{}) {
	m.record(&m.WarningCalls, format, args)
}

func (m *MockLogger) Error(format string, args ...interface{}) {
	m.record(&m.ErrorCalls, format, args)
}

func (m *MockLogger) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CloseCalled = true
	return nil
}

// Errors returns a copy of the recorded error messages.
func (m *MockLogger) Errors() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ErrorCalls...)
}

// Warnings returns a copy of the recorded warning messages.
func (m *MockLogger) Warnings() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.WarningCalls...)
}

// ToStdLogger adapts l to a *log.Logger whose output is logged at Info
// level, for libraries that only accept the stdlib type.
func ToStdLogger(l Logger) *log.Logger {
	return log.New(&infoWriter{l: OrNop(l)}, "", 0)
}

type infoWriter struct {
	l Logger
}

func (w *infoWriter) Write(p []byte) (int, error) {
	w.l.Info("%s", strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

var (
	_ Logger    = (*StandardLogger)(nil)
	_ Logger    = NopLogger{}
	_ Logger    = (*MockLogger)(nil)
	_ io.Writer = (*infoWriter)(nil)
)
