// Package log provides the leveled logger shared by lsmcore components.
package log

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Level represents the logging level
type Level int32

const (
	// LevelDebug level for detailed troubleshooting information
	LevelDebug Level = iota
	// LevelInfo level for general operational information
	LevelInfo
	// LevelWarn level for potentially harmful situations
	LevelWarn
	// LevelError level for error events that might still allow the application to continue
	LevelError
	// LevelFatal level for severe error events that will lead the application to abort
	LevelFatal
	// LevelOff disables all output
	LevelOff
)

// String returns the string representation of the log level
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
	case LevelFatal:
		return "FATAL"
	case LevelOff:
		return "OFF"
	default:
		return fmt.Sprintf("LEVEL(%d)", l)
	}
}

// ParseLevel converts a level name such as "debug" or "WARN" into a Level
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug, nil
	case "INFO", "":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	case "FATAL":
		return LevelFatal, nil
	case "OFF", "NONE":
		return LevelOff, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Logger interface defines the methods for logging at different levels
type Logger interface {
	// Debug logs a debug-level message
	Debug(msg string, args ...interface{})
	// Info logs an info-level message
	Info(msg string, args ...interface{})
	// Warn logs a warning-level message
	Warn(msg string, args ...interface{})
	// Error logs an error-level message
	Error(msg string, args ...interface{})
	// Fatal logs a fatal-level message and then calls os.Exit(1)
	Fatal(msg string, args ...interface{})
	// WithFields returns a new logger with the given fields added to the context
	WithFields(fields map[string]interface{}) Logger
	// WithField returns a new logger with the given field added to the context
	WithField(key string, value interface{}) Logger
	// Named returns a new logger tagged with a component name
	Named(component string) Logger
	// GetLevel returns the current logging level
	GetLevel() Level
	// SetLevel sets the logging level
	SetLevel(level Level)
}

// StandardLogger writes one line per entry:
//
//	[timestamp] [LEVEL] name: k1=v1 k2=v2 message
//
// Fields are printed in key order. Loggers derived through WithFields or
// Named share the writer and level of their parent.
type StandardLogger struct {
	mu     *sync.Mutex
	level  *atomic.Int32
	out    io.Writer
	name   string
	fields map[string]interface{}
	keys   []string
	exit   func(int)
}

// NewStandardLogger creates a new StandardLogger with the given options
func NewStandardLogger(options ...LoggerOption) *StandardLogger {
	logger := &StandardLogger{
		mu:     &sync.Mutex{},
		level:  &atomic.Int32{},
		out:    os.Stdout,
		fields: make(map[string]interface{}),
		exit:   os.Exit,
	}
	logger.level.Store(int32(LevelInfo))

	for _, option := range options {
		option(logger)
	}
	logger.sortKeys()

	return logger
}

// LoggerOption is a function that configures a StandardLogger
type LoggerOption func(*StandardLogger)

// WithLevel sets the logging level
func WithLevel(level Level) LoggerOption {
	return func(l *StandardLogger) {
		l.level.Store(int32(level))
	}
}

// WithOutput sets the output writer
func WithOutput(out io.Writer) LoggerOption {
	return func(l *StandardLogger) {
		l.out = out
	}
}

// WithName sets the component name
func WithName(name string) LoggerOption {
	return func(l *StandardLogger) {
		l.name = name
	}
}

// WithInitialFields sets initial fields for the logger
func WithInitialFields(fields map[string]interface{}) LoggerOption {
	return func(l *StandardLogger) {
		for k, v := range fields {
			l.fields[k] = v
		}
	}
}

func (l *StandardLogger) sortKeys() {
	l.keys = l.keys[:0]
	for k := range l.fields {
		l.keys = append(l.keys, k)
	}
	sort.Strings(l.keys)
}

// log logs a message at the specified level
func (l *StandardLogger) log(level Level, msg string, args ...interface{}) {
	if level < l.GetLevel() {
		return
	}

	formattedMsg := msg
	if len(args) > 0 {
		formattedMsg = fmt.Sprintf(msg, args...)
	}

	var b strings.Builder
	b.WriteString("[")
	b.WriteString(time.Now().Format("2006-01-02 15:04:05.000"))
	b.WriteString("] [")
	b.WriteString(level.String())
	b.WriteString("]")
	if l.name != "" {
		b.WriteString(" ")
		b.WriteString(l.name)
		b.WriteString(":")
	}
	for _, k := range l.keys {
		fmt.Fprintf(&b, " %s=%v", k, l.fields[k])
	}
	b.WriteString(" ")
	b.WriteString(formattedMsg)
	b.WriteString("\n")

	l.mu.Lock()
	io.WriteString(l.out, b.String())
	l.mu.Unlock()

	if level == LevelFatal {
		l.exit(1)
	}
}

// Debug logs a debug-level message
func (l *StandardLogger) Debug(msg string, args ...interface{}) {
	l.log(LevelDebug, msg, args...)
}

// Info logs an info-level message
func (l *StandardLogger) Info(msg string, args ...interface{}) {
	l.log(LevelInfo, msg, args...)
}

// Warn logs a warning-level message
func (l *StandardLogger) Warn(msg string, args ...interface{}) {
	l.log(LevelWarn, msg, args...)
}

// Error logs an error-level message
func (l *StandardLogger) Error(msg string, args ...interface{}) {
	l.log(LevelError, msg, args...)
}

// Fatal logs a fatal-level message and then calls os.Exit(1)
func (l *StandardLogger) Fatal(msg string, args ...interface{}) {
	l.log(LevelFatal, msg, args...)
}

func (l *StandardLogger) derive() *StandardLogger {
	child := &StandardLogger{
		mu:     l.mu,
		level:  l.level,
		out:    l.out,
		name:   l.name,
		fields: make(map[string]interface{}, len(l.fields)),
		exit:   l.exit,
	}
	for k, v := range l.fields {
		child.fields[k] = v
	}
	return child
}

// WithFields returns a new logger with the given fields added to the context
func (l *StandardLogger) WithFields(fields map[string]interface{}) Logger {
	child := l.derive()
	for k, v := range fields {
		child.fields[k] = v
	}
	child.sortKeys()
	return child
}

// WithField returns a new logger with the given field added to the context
func (l *StandardLogger) WithField(key string, value interface{}) Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

// Named returns a new logger whose name is extended with component
func (l *StandardLogger) Named(component string) Logger {
	child := l.derive()
	if child.name == "" {
		child.name = component
	} else {
		child.name = child.name + "." + component
	}
	child.sortKeys()
	return child
}

// GetLevel returns the current logging level
func (l *StandardLogger) GetLevel() Level {
	return Level(l.level.Load())
}

// SetLevel sets the logging level for this logger and every logger derived
// from the same root
func (l *StandardLogger) SetLevel(level Level) {
	l.level.Store(int32(level))
}

// nopLogger discards everything
type nopLogger struct{}

// NewNopLogger returns a logger that discards all output. Fatal does not exit.
func NewNopLogger() Logger {
	return nopLogger{}
}

func (nopLogger) Debug(string, ...interface{})               {}
func (nopLogger) Info(string, ...interface{})                {}
func (nopLogger) Warn(string, ...interface{})                {}
func (nopLogger) Error(string, ...interface{})               {}
func (nopLogger) Fatal(string, ...interface{})               {}
func (n nopLogger) WithFields(map[string]interface{}) Logger { return n }
func (n nopLogger) WithField(string, interface{}) Logger     { return n }
func (n nopLogger) Named(string) Logger                      { return n }
func (nopLogger) GetLevel() Level                            { return LevelOff }
func (nopLogger) SetLevel(Level)                             {}

// Default logger instance
var defaultLogger = NewStandardLogger()

// SetDefaultLogger sets the default logger instance
func SetDefaultLogger(logger *StandardLogger) {
	defaultLogger = logger
}

// GetDefaultLogger returns the default logger instance
func GetDefaultLogger() *StandardLogger {
	return defaultLogger
}

// These functions use the default logger

// Debug logs a debug-level message to the default logger
func Debug(msg string, args ...interface{}) {
	defaultLogger.Debug(msg, args...)
}

// Info logs an info-level message to the default logger
func Info(msg string, args ...interface{}) {
	defaultLogger.Info(msg, args...)
}

// Warn logs a warning-level message to the default logger
func Warn(msg string, args ...interface{}) {
	defaultLogger.Warn(msg, args...)
}

// Error logs an error-level message to the default logger
func Error(msg string, args ...interface{}) {
	defaultLogger.Error(msg, args...)
}

// Fatal logs a fatal-level message to the default logger and then calls os.Exit(1)
func Fatal(msg string, args ...interface{}) {
	defaultLogger.Fatal(msg, args...)
}

// WithFields returns a new logger with the given fields added to the context
func WithFields(fields map[string]interface{}) Logger {
	return defaultLogger.WithFields(fields)
}

// WithField returns a new logger with the given field added to the context
func WithField(key string, value interface{}) Logger {
	return defaultLogger.WithField(key, value)
}

// Named returns a component logger derived from the default logger
func Named(component string) Logger {
	return defaultLogger.Named(component)
}

// SetLevel sets the logging level of the default logger
func SetLevel(level Level) {
	defaultLogger.SetLevel(level)
}
