// SPDX-License-Identifier: MIT
//
// Package log is the process-wide leveled logger. Every line carries the
// level tag and, for component loggers, a "Component: " prefix so output from
// the loader, extractor, cache and server can be told apart in one stream.
package log

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync/atomic"
)

// LogLevel defines the severity of a log message.
type LogLevel uint32

// Constants for log levels.
const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string {
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
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a string (case-insensitive) to a LogLevel.
// Returns LevelInfo and false if the string is not recognized.
func ParseLevel(levelStr string) (LogLevel, bool) {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO", "":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	case "FATAL":
		return LevelFatal, true
	default:
		return LevelInfo, false // Default to Info on parse error
	}
}

// --- Global Logger State ---

// currentLevel holds the current global log level atomically.
var currentLevel atomic.Uint32

// logger is the standard logger instance used internally.
// We configure it to show date, time with microseconds.
var logger = stdlog.New(os.Stderr, "", stdlog.Ldate|stdlog.Ltime|stdlog.Lmicroseconds)

func init() {
	// Default level at startup. Can be overridden by config.
	SetLevel(LevelInfo)
}

// SetLevel sets the global logging level atomically.
func SetLevel(level LogLevel) {
	currentLevel.Store(uint32(level))
}

// GetLevel gets the current global logging level atomically.
func GetLevel() LogLevel {
	return LogLevel(currentLevel.Load())
}

// SetOutput redirects all log output, e.g. into a buffer during tests.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

func shouldLog(level LogLevel) bool {
	return level >= GetLevel()
}

// output writes one line; the level tag is padded so messages line up.
func output(level LogLevel, prefix, msg string) {
	if !shouldLog(level) {
		return
	}
	tag := level.String()
	if len(tag) < 5 {
		tag += " "
	}
	logger.Printf("[%s] %s%s", tag, prefix, msg)
}

// --- Public Logging Functions ---

// Debugf logs a formatted debug message if the level is appropriate.
func Debugf(format string, v ...any) { output(LevelDebug, "", fmt.Sprintf(format, v...)) }

// Infof logs a formatted info message if the level is appropriate.
func Infof(format string, v ...any) { output(LevelInfo, "", fmt.Sprintf(format, v...)) }

// Warnf logs a formatted warning message if the level is appropriate.
func Warnf(format string, v ...any) { output(LevelWarn, "", fmt.Sprintf(format, v...)) }

// Errorf logs a formatted error message if the level is appropriate.
func Errorf(format string, v ...any) { output(LevelError, "", fmt.Sprintf(format, v...)) }

// Fatalf logs a formatted fatal message and exits the application.
// Fatal messages are always logged regardless of the current level.
func Fatalf(format string, v ...any) {
	logger.Fatalf("[%s] %s", LevelFatal, fmt.Sprintf(format, v...))
}

// Fatal logs a fatal message and exits the application.
func Fatal(v ...any) {
	logger.Fatalf("[%s] %s", LevelFatal, fmt.Sprint(v...))
}

// --- Component loggers ---

// Component is a logger whose lines start with "Name: ".
type Component struct {
	prefix string
}

// For returns the logger for the named component.
func For(name string) Component {
	return Component{prefix: name + ": "}
}

func (c Component) Debugf(format string, v ...any) {
	output(LevelDebug, c.prefix, fmt.Sprintf(format, v...))
}

func (c Component) Infof(format string, v ...any) {
	output(LevelInfo, c.prefix, fmt.Sprintf(format, v...))
}

func (c Component) Warnf(format string, v ...any) {
	output(LevelWarn, c.prefix, fmt.Sprintf(format, v...))
}

// Warningf is an alias of Warnf for libraries that expect that spelling
// (badger.Logger).
func (c Component) Warningf(format string, v ...any) {
	c.Warnf(format, v...)
}

func (c Component) Errorf(format string, v ...any) {
	output(LevelError, c.prefix, fmt.Sprintf(format, v...))
}
