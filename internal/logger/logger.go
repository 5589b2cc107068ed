// Package logger provides a simple leveled logger for the application.
// It supports three levels: off (no output), normal (info/warn/error),
// and verbose (includes debug). Loggers can be scoped to a component
// with Named; scoped loggers share one output and one level. All
// methods are safe for concurrent use.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

// Level controls the verbosity of the logger.
type Level int

const (
	// LevelOff disables all log output.
	LevelOff Level = iota
	// LevelNormal enables info, warn, and error output.
	LevelNormal
	// LevelVerbose enables all output including debug.
	LevelVerbose
)

// Logger is a leveled logger, optionally scoped to a component name.
// Named loggers share the parent's sinks and level, so SetLevel on any
// of them affects all of them.
type Logger struct {
	core *core
	name string
}

// core holds the state shared by a logger and everything derived from
// it via Named.
type core struct {
	mu     sync.RWMutex
	level  Level
	debug  *log.Logger
	info   *log.Logger
	warn   *log.Logger
	errLog *log.Logger
}

// New creates a logger with the given level, writing to the given output.
// If out is nil, os.Stderr is used.
func New(level Level, out io.Writer) *Logger {
	if out == nil {
		out = os.Stderr
	}

	flags := log.Ltime

	return &Logger{core: &core{
		level:  level,
		debug:  log.New(out, "[DBG] ", flags),
		info:   log.New(out, "[INF] ", flags),
		warn:   log.New(out, "[WRN] ", flags),
		errLog: log.New(out, "[ERR] ", flags),
	}}
}

// Named returns a logger that prefixes every message with "name: ".
// Nested names chain: log.Named("speech").Named("capture") prefixes
// "speech/capture: ".
func (l *Logger) Named(name string) *Logger {
	if l.name != "" {
		name = l.name + "/" + name
	}
	return &Logger{core: l.core, name: name}
}

// SetLevel changes the log level at runtime for this logger and every
// logger sharing its core.
func (l *Logger) SetLevel(level Level) {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	l.core.level = level
}

// GetLevel returns the current log level.
func (l *Logger) GetLevel() Level {
	l.core.mu.RLock()
	defer l.core.mu.RUnlock()
	return l.core.level
}

func (l *Logger) format(format string, args ...any) string {
	msg := fmt.Sprintf(format, args...)
	if l.name != "" {
		return l.name + ": " + msg
	}
	return msg
}

// Debug logs a message at debug level (only visible in verbose mode).
func (l *Logger) Debug(format string, args ...any) {
	l.core.mu.RLock()
	defer l.core.mu.RUnlock()
	if l.core.level >= LevelVerbose {
		l.core.debug.Output(2, l.format(format, args...))
	}
}

// Info logs a message at info level.
func (l *Logger) Info(format string, args ...any) {
	l.core.mu.RLock()
	defer l.core.mu.RUnlock()
	if l.core.level >= LevelNormal {
		l.core.info.Output(2, l.format(format, args...))
	}
}

// Warn logs a message at warn level.
func (l *Logger) Warn(format string, args ...any) {
	l.core.mu.RLock()
	defer l.core.mu.RUnlock()
	if l.core.level >= LevelNormal {
		l.core.warn.Output(2, l.format(format, args...))
	}
}

// Error logs a message at error level.
func (l *Logger) Error(format string, args ...any) {
	l.core.mu.RLock()
	defer l.core.mu.RUnlock()
	if l.core.level >= LevelNormal {
		l.core.errLog.Output(2, l.format(format, args...))
	}
}
