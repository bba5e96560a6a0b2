// Package logger provides structured logging for the Aegis request-inspection
// service. It supports multiple log levels, JSON formatting, and integration
// with OpenTelemetry for distributed tracing.
package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/turtacn/aegis/pkg/constants"
)

// ================================================================================
// Logger Interface
// ================================================================================

// Logger defines the interface for structured logging
type Logger interface {
	// Debug logs a debug message
	Debug(ctx context.Context, message string, fields ...Field)

	// Info logs an informational message
	Info(ctx context.Context, message string, fields ...Field)

	// Warn logs a warning message
	Warn(ctx context.Context, message string, fields ...Field)

	// Error logs an error message
	Error(ctx context.Context, message string, err error, fields ...Field)

	// Fatal logs a fatal message and exits the application
	Fatal(ctx context.Context, message string, err error, fields ...Field)

	// WithFields creates a new logger with additional fields
	WithFields(fields ...Field) Logger

	// WithComponent creates a new logger for a specific component
	WithComponent(component string) Logger

	// SetLevel sets the logging level
	SetLevel(level constants.LogLevel)

	// GetLevel returns the current logging level
	GetLevel() constants.LogLevel
}

// ================================================================================
// Field Type for Structured Logging
// ================================================================================

// Field represents a key-value pair for structured logging
type Field struct {
	Key   string
	Value interface{}
}

// F is a shorthand constructor for Field
func F(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// String creates a string field
func String(key string, value string) Field {
	return Field{Key: key, Value: value}
}

// Int creates an integer field
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Int64 creates an int64 field
func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

// Float64 creates a float64 field
func Float64(key string, value float64) Field {
	return Field{Key: key, Value: value}
}

// Bool creates a boolean field
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Error creates an error field
func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Duration creates a duration field
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

// Time creates a time field
func Time(key string, value time.Time) Field {
	return Field{Key: key, Value: value.Format(time.RFC3339)}
}

// Any creates a field with any type
func Any(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// ================================================================================
// Logger Implementation
// ================================================================================

// logger is the internal implementation of the Logger interface
type logger struct {
	level      constants.LogLevel
	output     io.Writer
	component  string
	baseFields []Field
}

// LogEntry represents a structured log entry
type LogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Component string                 `json:"component,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	TraceID   string                 `json:"trace_id,omitempty"`
	SpanID    string                 `json:"span_id,omitempty"`
	Caller    string                 `json:"caller,omitempty"`
}

// ================================================================================
// Logger Constructor
// ================================================================================

// NewLogger creates a new Logger instance
func NewLogger(level constants.LogLevel, output io.Writer) Logger {
	if output == nil {
		output = os.Stdout
	}

	return &logger{
		level:      level,
		output:     output,
		baseFields: make([]Field, 0),
	}
}

// NewDefaultLogger creates a logger with default settings (stdout, Info level)
func NewDefaultLogger() Logger {
	return NewLogger(constants.LogLevelInfo, os.Stdout)
}

// ================================================================================
// Core Logging Methods
// ================================================================================

// Debug logs a debug message
func (l *logger) Debug(ctx context.Context, message string, fields ...Field) {
	if l.level > constants.LogLevelDebug {
		return
	}
	l.log(ctx, constants.LogLevelDebug, message, nil, fields...)
}

// Info logs an informational message
func (l *logger) Info(ctx context.Context, message string, fields ...Field) {
	if l.level > constants.LogLevelInfo {
		return
	}
	l.log(ctx, constants.LogLevelInfo, message, nil, fields...)
}

// Warn logs a warning message
func (l *logger) Warn(ctx context.Context, message string, fields ...Field) {
	if l.level > constants.LogLevelWarn {
		return
	}
	l.log(ctx, constants.LogLevelWarn, message, nil, fields...)
}

// Error logs an error message
func (l *logger) Error(ctx context.Context, message string, err error, fields ...Field) {
	if l.level > constants.LogLevelError {
		return
	}

	if err != nil {
		fields = append(fields, Error(err))
	}

	l.log(ctx, constants.LogLevelError, message, err, fields...)
}

// Fatal logs a fatal message and exits
func (l *logger) Fatal(ctx context.Context, message string, err error, fields ...Field) {
	// Always log fatal messages regardless of level
	if err != nil {
		fields = append(fields, Error(err))
	}

	l.log(ctx, constants.LogLevelFatal, message, err, fields...)
	os.Exit(1)
}

// ================================================================================
// Logger Configuration Methods
// ================================================================================

// WithFields creates a new logger with additional base fields
func (l *logger) WithFields(fields ...Field) Logger {
	newLogger := &logger{
		level:      l.level,
		output:     l.output,
		component:  l.component,
		baseFields: make([]Field, len(l.baseFields)+len(fields)),
	}

	copy(newLogger.baseFields, l.baseFields)
	copy(newLogger.baseFields[len(l.baseFields):], fields)

	return newLogger
}

// WithComponent creates a new logger with a component name
func (l *logger) WithComponent(component string) Logger {
	newLogger := &logger{
		level:      l.level,
		output:     l.output,
		component:  component,
		baseFields: make([]Field, len(l.baseFields)),
	}

	copy(newLogger.baseFields, l.baseFields)

	return newLogger
}

// SetLevel sets the logging level
func (l *logger) SetLevel(level constants.LogLevel) {
	l.level = level
}

// GetLevel returns the current logging level
func (l *logger) GetLevel() constants.LogLevel {
	return l.level
}

// ================================================================================
// Internal Logging Implementation
// ================================================================================

// log is the internal method that performs the actual logging
func (l *logger) log(ctx context.Context, level constants.LogLevel, message string, err error, fields ...Field) {
	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     levelToString(level),
		Component: l.component,
		Message:   message,
		Fields:    make(map[string]interface{}),
	}

	// Extract trace context from OpenTelemetry
	if ctx != nil {
		span := trace.SpanFromContext(ctx)
		if span.SpanContext().IsValid() {
			entry.TraceID = span.SpanContext().TraceID().String()
			entry.SpanID = span.SpanContext().SpanID().String()
		}

		// Extract context values
		if requestID := ctx.Value(constants.ContextKeyRequestID); requestID != nil {
			entry.Fields["request_id"] = requestID
		}
		if clientKey := ctx.Value(constants.ContextKeyClientKey); clientKey != nil {
			entry.Fields["client_key"] = clientKey
		}
		if userType := ctx.Value(constants.ContextKeyUserType); userType != nil {
			entry.Fields["user_type"] = userType
		}
	}

	// Add caller information for errors and fatal logs
	if level >= constants.LogLevelError {
		entry.Caller = getCaller(3)
	}

	// Merge base fields
	for _, field := range l.baseFields {
		entry.Fields[field.Key] = sanitizeValue(field.Key, field.Value)
	}

	// Merge provided fields
	for _, field := range fields {
		entry.Fields[field.Key] = sanitizeValue(field.Key, field.Value)
	}

	// Marshal to JSON
	jsonData, marshalErr := json.Marshal(entry)
	if marshalErr != nil {
		// Fallback to plain text if JSON marshaling fails
		fmt.Fprintf(l.output, "[%s] %s: %s (marshal error: %v)\n",
			entry.Timestamp, entry.Level, message, marshalErr)
		return
	}

	// Write to output
	fmt.Fprintln(l.output, string(jsonData))
}

// ================================================================================
// Utility Functions
// ================================================================================

// levelToString converts a log level to its string representation
func levelToString(level constants.LogLevel) string {
	switch level {
	case constants.LogLevelDebug:
		return "DEBUG"
	case constants.LogLevelInfo:
		return "INFO"
	case constants.LogLevelWarn:
		return "WARN"
	case constants.LogLevelError:
		return "ERROR"
	case constants.LogLevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// getCaller returns the file and line number of the caller
func getCaller(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}

	// Extract just the filename (not the full path)
	parts := strings.Split(file, "/")
	if len(parts) > 0 {
		file = parts[len(parts)-1]
	}

	return fmt.Sprintf("%s:%d", file, line)
}

// sanitizeValue sanitizes sensitive field values. The logger is the one place
// matched sensitive values could leak back out of the scanner, so field keys
// that look like credentials are masked before serialization.
func sanitizeValue(key string, value interface{}) interface{} {
	sensitiveKeys := []string{
		"password",
		"secret",
		"token",
		"api_key",
		"authorization",
		"private_key",
		"matched_value",
		"session",
		"cookie",
	}

	keyLower := strings.ToLower(key)
	for _, sensitiveKey := range sensitiveKeys {
		if strings.Contains(keyLower, sensitiveKey) {
			if str, ok := value.(string); ok && len(str) > 0 {
				return maskString(str)
			}
			return "***REDACTED***"
		}
	}

	return value
}

// maskString partially masks a string value
func maskString(s string) string {
	if len(s) <= 8 {
		return "***"
	}

	// Show first 4 and last 4 characters
	return s[:4] + "***" + s[len(s)-4:]
}
