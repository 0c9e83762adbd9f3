// Package logger provides the structured, leveled logger used by the
// sender and receiver. It is intentionally small: timestamped lines with
// an optional ANSI color and a caller-supplied prefix, writable to stdout
// or to a file named after the day it was opened (the file is not rotated
// afterwards).
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// Level is a log severity.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
	Fatal
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	case Fatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

func (l Level) color() string {
	switch l {
	case Debug:
		return "\033[37m"
	case Info:
		return "\033[34m"
	case Warn:
		return "\033[33m"
	case Error:
		return "\033[31m"
	case Fatal:
		return "\033[35m"
	default:
		return "\033[0m"
	}
}

// Logger writes leveled, timestamped lines to output.
type Logger struct {
	level    Level
	output   io.Writer
	prefix   string
	file     *os.File
	useColor bool
}

// New creates a logger writing to output at or above level.
func New(level Level, output io.Writer, prefix string) *Logger {
	return &Logger{level: level, output: output, prefix: prefix, useColor: true}
}

// NewFile creates a logger that appends to a file named
// "<prefix>_<date>.log" inside dir, creating dir if needed.
func NewFile(level Level, dir, prefix string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.log", prefix, time.Now().Format("2006-01-02")))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
	if err != nil {
		return nil, err
	}
	return &Logger{level: level, output: f, prefix: prefix, file: f, useColor: false}, nil
}

// Close closes the underlying file, if any.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// SetLevel changes the minimum level that is written.
func (l *Logger) SetLevel(level Level) { l.level = level }

// SetColor toggles ANSI coloring.
func (l *Logger) SetColor(useColor bool) { l.useColor = useColor }

func (l *Logger) log(level Level, format string, args ...interface{}) {
	if level < l.level {
		return
	}
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		file, line = "unknown", 0
	} else {
		file = filepath.Base(file)
	}
	message := fmt.Sprintf(format, args...)
	timestamp := time.Now().Format("2006-01-02 15:04:05.000")

	var logLine string
	if l.useColor {
		logLine = fmt.Sprintf("%s[%s] %s %s:%d %s\033[0m\n", level.color(), timestamp, level, file, line, message)
	} else {
		logLine = fmt.Sprintf("[%s] %s %s:%d %s\n", timestamp, level, file, line, message)
	}
	if l.prefix != "" {
		logLine = fmt.Sprintf("[%s] %s", l.prefix, logLine)
	}
	l.output.Write([]byte(logLine))
}

func (l *Logger) Debug(format string, args ...interface{}) { l.log(Debug, format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.log(Info, format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.log(Warn, format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.log(Error, format, args...) }

// Fatal logs and terminates the process.
func (l *Logger) Fatal(format string, args ...interface{}) {
	l.log(Fatal, format, args...)
	os.Exit(1)
}

// WithField returns a derived logger that prefixes every line with key=value.
func (l *Logger) WithField(key, value string) *Logger {
	return &Logger{level: l.level, output: l.output, file: l.file, useColor: l.useColor,
		prefix: fmt.Sprintf("%s %s=%s", l.prefix, key, value)}
}

// WithFields returns a derived logger that prefixes every line with the
// given key=value pairs.
func (l *Logger) WithFields(fields map[string]string) *Logger {
	parts := make([]string, 0, len(fields))
	for k, v := range fields {
		parts = append(parts, fmt.Sprintf("%s=%s", k, v))
	}
	return &Logger{level: l.level, output: l.output, file: l.file, useColor: l.useColor,
		prefix: fmt.Sprintf("%s %s", l.prefix, strings.Join(parts, " "))}
}
