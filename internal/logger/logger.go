// Package logger provides leveled diagnostic logging for the wrapper: a
// stderr writer optionally tee'd to a log file. Every component receives
// its own *Logger explicitly from cmd/outpost-wrapper/main.go; there is no
// global singleton to reach for, since nothing in this wrapper logs before
// its owning component has been constructed with one.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"
)

// Level orders the severities a Logger can emit, least to most severe,
// plus LevelNone to silence everything.
type Level int

const (
	// LevelDebug is the most verbose logging level.
	LevelDebug Level = iota
	// LevelInfo logs informational messages.
	LevelInfo
	// LevelWarn logs warnings.
	LevelWarn
	// LevelError logs errors.
	LevelError
	// LevelNone disables all logging.
	LevelNone
)

// String returns the string representation of a Level.
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
	case LevelNone:
		return "NONE"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a string into a Level, defaulting to LevelInfo.
func ParseLevel(s string) Level {
	switch s {
	case "debug", "DEBUG":
		return LevelDebug
	case "info", "INFO":
		return LevelInfo
	case "warn", "WARN", "warning", "WARNING":
		return LevelWarn
	case "error", "ERROR":
		return LevelError
	case "none", "NONE":
		return LevelNone
	default:
		return LevelInfo
	}
}

// Logger writes leveled, prefixed lines to stderr and, optionally, a
// tee'd log file. Its level and sinks are fixed at construction; a
// component that needs a different one constructs a new Logger rather
// than mutating a shared one, so no lock is needed here beyond what
// log.Logger itself already provides around Println.
type Logger struct {
	level  Level
	out    *log.Logger
	prefix string
	file   *os.File
}

// New creates a Logger that always writes to stderr and, if logPath is
// non-empty, also appends to that file.
func New(level Level, logPath string, prefix string) (*Logger, error) {
	l := &Logger{level: level, prefix: prefix}

	if level == LevelNone {
		l.out = log.New(io.Discard, "", 0)
		return l, nil
	}

	writers := []io.Writer{os.Stderr}

	if logPath != "" {
		if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
			return nil, fmt.Errorf("logger: create log directory: %w", err)
		}

		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("logger: open log file: %w", err)
		}

		l.file = file
		writers = append(writers, file)
	}

	l.out = log.New(io.MultiWriter(writers...), "", 0)
	return l, nil
}

func (l *Logger) log(level Level, format string, args ...interface{}) {
	if level < l.level {
		return
	}

	ts := time.Now().Format("2006-01-02 15:04:05.000")
	prefix := ""
	if l.prefix != "" {
		prefix = "[" + l.prefix + "] "
	}

	l.out.Println(fmt.Sprintf("%s [%s] %s%s", ts, level.String(), prefix, fmt.Sprintf(format, args...)))
}

// Debug logs a debug-level message.
func (l *Logger) Debug(format string, args ...interface{}) { l.log(LevelDebug, format, args...) }

// Info logs an info-level message.
func (l *Logger) Info(format string, args ...interface{}) { l.log(LevelInfo, format, args...) }

// Warn logs a warn-level message.
func (l *Logger) Warn(format string, args ...interface{}) { l.log(LevelWarn, format, args...) }

// Error logs an error-level message.
func (l *Logger) Error(format string, args ...interface{}) { l.log(LevelError, format, args...) }

// Close closes the underlying log file, if any.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
