// Package logging provides structured logging with trace IDs for the
// search serving core.
package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
)

// Logger is the structured logging interface handed to every component.
type Logger interface {
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Debug(msg string, fields ...interface{})

	// Context-aware variants pick the trace ID out of the request context.
	InfoContext(ctx context.Context, msg string, fields ...interface{})
	WarnContext(ctx context.Context, msg string, fields ...interface{})
	ErrorContext(ctx context.Context, msg string, fields ...interface{})
	DebugContext(ctx context.Context, msg string, fields ...interface{})

	WithTraceID(traceID string) Logger
	WithComponent(component string) Logger
}

// ContextKey is the key type for logging values stored in a context.
type ContextKey string

// TraceIDKey carries the per-request trace ID.
const TraceIDKey ContextKey = "trace_id"

// LogLevel orders log severities.
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

// ParseLevel maps a config string to a LogLevel, defaulting to INFO.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(s) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

// LogEntry is one emitted record.
type LogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	TraceID   string                 `json:"trace_id,omitempty"`
	Component string                 `json:"component,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// StructuredLogger writes JSON (or readable text) entries to stdout.
type StructuredLogger struct {
	level     LogLevel
	traceID   string
	component string
	useJSON   bool
}

// NewLogger creates a structured logger at the given level. Output format
// follows the LOG_JSON environment toggle, defaulting to JSON.
func NewLogger(level LogLevel) Logger {
	return &StructuredLogger{
		level:   level,
		useJSON: os.Getenv("LOG_JSON") != "false",
	}
}

// WithTraceID returns a copy bound to a trace ID.
func (l *StructuredLogger) WithTraceID(traceID string) Logger {
	c := *l
	c.traceID = traceID
	return &c
}

// WithComponent returns a copy bound to a component name.
func (l *StructuredLogger) WithComponent(component string) Logger {
	c := *l
	c.component = component
	return &c
}

func (l *StructuredLogger) Info(msg string, fields ...interface{}) {
	l.log(INFO, "INFO", msg, "", fields)
}

func (l *StructuredLogger) Warn(msg string, fields ...interface{}) {
	l.log(WARN, "WARN", msg, "", fields)
}

func (l *StructuredLogger) Error(msg string, fields ...interface{}) {
	l.log(ERROR, "ERROR", msg, "", fields)
}

func (l *StructuredLogger) Debug(msg string, fields ...interface{}) {
	l.log(DEBUG, "DEBUG", msg, "", fields)
}

func (l *StructuredLogger) InfoContext(ctx context.Context, msg string, fields ...interface{}) {
	l.log(INFO, "INFO", msg, TraceIDFrom(ctx), fields)
}

func (l *StructuredLogger) WarnContext(ctx context.Context, msg string, fields ...interface{}) {
	l.log(WARN, "WARN", msg, TraceIDFrom(ctx), fields)
}

func (l *StructuredLogger) ErrorContext(ctx context.Context, msg string, fields ...interface{}) {
	l.log(ERROR, "ERROR", msg, TraceIDFrom(ctx), fields)
}

func (l *StructuredLogger) DebugContext(ctx context.Context, msg string, fields ...interface{}) {
	l.log(DEBUG, "DEBUG", msg, TraceIDFrom(ctx), fields)
}

func (l *StructuredLogger) log(level LogLevel, name, msg, ctxTraceID string, fields []interface{}) {
	if l.level > level {
		return
	}
	traceID := l.traceID
	if ctxTraceID != "" {
		traceID = ctxTraceID
	}

	fieldMap := make(map[string]interface{}, len(fields)/2)
	for i := 0; i < len(fields); i += 2 {
		if i+1 < len(fields) {
			fieldMap[fmt.Sprintf("%v", fields[i])] = fields[i+1]
		} else {
			fieldMap[fmt.Sprintf("field_%d", i)] = fields[i]
		}
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     name,
		Message:   msg,
		TraceID:   traceID,
		Component: l.component,
		Fields:    fieldMap,
	}
	if l.useJSON {
		data, err := json.Marshal(entry)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to marshal log entry: %v\n", err)
			return
		}
		fmt.Println(string(data))
		return
	}
	l.outputText(entry)
}

func (l *StructuredLogger) outputText(entry LogEntry) {
	parts := []string{entry.Timestamp, fmt.Sprintf("[%s]", entry.Level)}
	if entry.TraceID != "" && len(entry.TraceID) >= 8 {
		parts = append(parts, "trace:"+entry.TraceID[:8])
	}
	if entry.Component != "" {
		parts = append(parts, "component:"+entry.Component)
	}
	parts = append(parts, entry.Message)
	if len(entry.Fields) > 0 {
		keys := make([]string, 0, len(entry.Fields))
		for k := range entry.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, entry.Fields[k]))
		}
	}
	fmt.Println(strings.Join(parts, " "))
}

// TraceContext stores a trace ID in ctx for the context-aware log methods.
func TraceContext(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// TraceIDFrom extracts the trace ID stored by TraceContext, or "".
func TraceIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(TraceIDKey).(string); ok {
		return v
	}
	return ""
}

