// Package logging provides structured logging for the suggestion
// pipeline. Every recovered pipeline failure is reported through a
// Logger so that generation can degrade to safe defaults silently for
// the caller but visibly for the operator.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"
)

// Logger interface for structured logging
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})

	WithComponent(component string) Logger
}

// LogLevel represents logging levels
type LogLevel int

const (
	// DEBUG is the most verbose level
	DEBUG LogLevel = iota
	// INFO is the default level
	INFO
	// WARN reports recovered failures
	WARN
	// ERROR reports failures surfaced to callers
	ERROR
)

var levelNames = map[LogLevel]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

// ParseLogLevel parses a level name, defaulting to INFO.
func ParseLogLevel(level string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// StructuredLogger implements Logger with JSON or key=value text output.
type StructuredLogger struct {
	out       io.Writer
	level     LogLevel
	component string
	useJSON   bool
}

// NewLogger creates a logger writing to stderr.
func NewLogger(level LogLevel, useJSON bool) Logger {
	return &StructuredLogger{out: os.Stderr, level: level, useJSON: useJSON}
}

// NewLoggerTo creates a logger writing to the given sink.
func NewLoggerTo(out io.Writer, level LogLevel, useJSON bool) Logger {
	return &StructuredLogger{out: out, level: level, useJSON: useJSON}
}

// WithComponent returns a child logger tagging every line with the
// component name.
func (l *StructuredLogger) WithComponent(component string) Logger {
	child := *l
	child.component = component
	return &child
}

// Debug logs at DEBUG level.
func (l *StructuredLogger) Debug(msg string, fields ...interface{}) {
	l.emit(DEBUG, msg, fields)
}

// Info logs at INFO level.
func (l *StructuredLogger) Info(msg string, fields ...interface{}) {
	l.emit(INFO, msg, fields)
}

// Warn logs at WARN level.
func (l *StructuredLogger) Warn(msg string, fields ...interface{}) {
	l.emit(WARN, msg, fields)
}

// Error logs at ERROR level.
func (l *StructuredLogger) Error(msg string, fields ...interface{}) {
	l.emit(ERROR, msg, fields)
}

func (l *StructuredLogger) emit(level LogLevel, msg string, fields []interface{}) {
	if level < l.level {
		return
	}

	// Fields come as alternating key/value pairs; a trailing key without
	// a value is kept with a nil value rather than dropped.
	kv := make(map[string]interface{}, (len(fields)+1)/2)
	for i := 0; i < len(fields); i += 2 {
		key := fmt.Sprintf("%v", fields[i])
		if i+1 < len(fields) {
			kv[key] = fields[i+1]
		} else {
			kv[key] = nil
		}
	}

	ts := time.Now().UTC().Format(time.RFC3339Nano)

	if l.useJSON {
		line := map[string]interface{}{
			"timestamp": ts,
			"level":     levelNames[level],
			"message":   msg,
		}
		if l.component != "" {
			line["component"] = l.component
		}
		if len(kv) > 0 {
			line["fields"] = kv
		}
		data, err := json.Marshal(line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to encode log line: %v\n", err)
			return
		}
		fmt.Fprintln(l.out, string(data))
		return
	}

	var b strings.Builder
	b.WriteString(ts)
	b.WriteString(" [")
	b.WriteString(levelNames[level])
	b.WriteString("]")
	if l.component != "" {
		b.WriteString(" ")
		b.WriteString(l.component)
		b.WriteString(":")
	}
	b.WriteString(" ")
	b.WriteString(msg)
	for _, k := range sortedFieldKeys(kv) {
		fmt.Fprintf(&b, " %s=%v", k, kv[k])
	}
	fmt.Fprintln(l.out, b.String())
}

func sortedFieldKeys(kv map[string]interface{}) []string {
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
