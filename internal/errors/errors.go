package errors

import (
	"fmt"
	"runtime"
	"strings"
)

// ErrorType represents the category of error
type ErrorType int

const (
	// Configuration errors - missing required configuration or invalid mode
	ErrorTypeConfig ErrorType = iota
	// Provider errors - LLM provider failures, never recoverable in-run
	ErrorTypeProvider
	// Tool errors - a single tool call failed, investigation continues
	ErrorTypeTool
	// Agent errors - a domain agent failed, domain marked ERROR
	ErrorTypeAgent
	// Safety violations - a circuit breaker or safety concern forced termination
	ErrorTypeSafety
	// Timeout errors - a deadline expired at tool, agent, investigation or session scope
	ErrorTypeTimeout
	// State merge errors - a node attempted to overwrite a protected field
	ErrorTypeStateMerge
	// Checkpoint errors - checkpoint persistence failed
	ErrorTypeCheckpoint
	// Internal errors - unexpected internal state
	ErrorTypeInternal
)

// ProviderSubkind distinguishes unrecoverable LLM provider failures.
// These propagate out of the executor without fallback synthesis.
type ProviderSubkind string

const (
	ProviderContextLengthExceeded ProviderSubkind = "context_length_exceeded"
	ProviderModelNotFound         ProviderSubkind = "model_not_found"
	ProviderAPIError              ProviderSubkind = "api_error"
	ProviderRateLimited           ProviderSubkind = "rate_limited"
)

// Severity represents how critical an error is
type Severity int

const (
	// SeverityLow - can continue with degraded functionality
	SeverityLow Severity = iota
	// SeverityMedium - should be addressed but not fatal
	SeverityMedium
	// SeverityHigh - significant issue, may impact the final outcome
	SeverityHigh
	// SeverityCritical - must be addressed, stops the investigation
	SeverityCritical
)

// Error represents a structured error with context
type Error struct {
	Type       ErrorType
	Subkind    ProviderSubkind
	Severity   Severity
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace string
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Is checks if this error matches the target error type
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Type != t.Type {
		return false
	}
	if t.Subkind != "" && e.Subkind != t.Subkind {
		return false
	}
	return true
}

// IsFatal returns true if this error should terminate the investigation
func (e *Error) IsFatal() bool {
	return e.Severity == SeverityCritical
}

// DetailedString returns a detailed error message with context
func (e *Error) DetailedString() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("[%s] [%s] %s\n",
		severityString(e.Severity),
		typeString(e.Type),
		e.Message))

	if e.Subkind != "" {
		sb.WriteString(fmt.Sprintf("Subkind: %s\n", e.Subkind))
	}

	if e.Cause != nil {
		sb.WriteString(fmt.Sprintf("Caused by: %v\n", e.Cause))
	}

	if len(e.Context) > 0 {
		sb.WriteString("Context:\n")
		for k, v := range e.Context {
			sb.WriteString(fmt.Sprintf("  %s: %v\n", k, v))
		}
	}

	if e.StackTrace != "" {
		sb.WriteString(fmt.Sprintf("Stack trace:\n%s\n", e.StackTrace))
	}

	return sb.String()
}

func typeString(t ErrorType) string {
	switch t {
	case ErrorTypeConfig:
		return "CONFIG"
	case ErrorTypeProvider:
		return "PROVIDER"
	case ErrorTypeTool:
		return "TOOL"
	case ErrorTypeAgent:
		return "AGENT"
	case ErrorTypeSafety:
		return "SAFETY"
	case ErrorTypeTimeout:
		return "TIMEOUT"
	case ErrorTypeStateMerge:
		return "STATE_MERGE"
	case ErrorTypeCheckpoint:
		return "CHECKPOINT"
	case ErrorTypeInternal:
		return "INTERNAL"
	default:
		return "UNKNOWN"
	}
}

func severityString(s Severity) string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// captureStackTrace captures the current stack trace
func captureStackTrace(skip int) string {
	var sb strings.Builder
	for i := skip; i < skip+10; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			break
		}
		sb.WriteString(fmt.Sprintf("  %s:%d %s\n", file, line, fn.Name()))
	}
	return sb.String()
}

// New creates a new error with the given type, severity, and message
func New(errType ErrorType, severity Severity, message string) *Error {
	return &Error{
		Type:       errType,
		Severity:   severity,
		Message:    message,
		Context:    make(map[string]interface{}),
		StackTrace: captureStackTrace(2),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, severity Severity, message string) *Error {
	if err == nil {
		return nil
	}

	return &Error{
		Type:       errType,
		Severity:   severity,
		Message:    message,
		Cause:      err,
		Context:    make(map[string]interface{}),
		StackTrace: captureStackTrace(2),
	}
}

// Convenience constructors for the orchestrator's error kinds

// ConfigError creates a configuration error
func ConfigError(message string) *Error {
	return New(ErrorTypeConfig, SeverityCritical, message)
}

// ConfigErrorf creates a configuration error with formatting
func ConfigErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeConfig, SeverityCritical, fmt.Sprintf(format, args...))
}

// ProviderError creates a provider error with the given subkind.
// Provider errors are never synthesized away; the executor surfaces them.
func ProviderError(subkind ProviderSubkind, err error, message string) *Error {
	e := Wrap(err, ErrorTypeProvider, SeverityCritical, message)
	if e == nil {
		e = New(ErrorTypeProvider, SeverityCritical, message)
	}
	e.Subkind = subkind
	return e
}

// ToolError wraps a failed tool call
func ToolError(err error, toolName string) *Error {
	return Wrap(err, ErrorTypeTool, SeverityMedium, fmt.Sprintf("tool %s failed", toolName)).
		WithContext("tool", toolName)
}

// AgentError wraps a failed domain agent invocation
func AgentError(err error, domain string) *Error {
	return Wrap(err, ErrorTypeAgent, SeverityMedium, fmt.Sprintf("%s agent failed", domain)).
		WithContext("domain", domain)
}

// SafetyViolation creates a safety violation error
func SafetyViolation(message string) *Error {
	return New(ErrorTypeSafety, SeverityCritical, message)
}

// SafetyViolationf creates a safety violation error with formatting
func SafetyViolationf(format string, args ...interface{}) *Error {
	return New(ErrorTypeSafety, SeverityCritical, fmt.Sprintf(format, args...))
}

// TimeoutError creates a timeout error for the given scope (tool, agent, investigation, session)
func TimeoutError(scope, message string) *Error {
	return New(ErrorTypeTimeout, SeverityHigh, message).WithContext("scope", scope)
}

// StateMergeError creates an error for a rejected protected-field write.
// The write is dropped and logged; the investigation continues.
func StateMergeError(field string) *Error {
	return New(ErrorTypeStateMerge, SeverityLow, fmt.Sprintf("attempted overwrite of protected field %q", field)).
		WithContext("field", field)
}

// CheckpointError wraps a checkpoint persistence failure
func CheckpointError(err error, message string) *Error {
	return Wrap(err, ErrorTypeCheckpoint, SeverityHigh, message)
}

// InternalError creates an internal error
func InternalError(message string) *Error {
	return New(ErrorTypeInternal, SeverityCritical, message)
}

// InternalErrorf creates an internal error with formatting
func InternalErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeInternal, SeverityCritical, fmt.Sprintf(format, args...))
}

// IsProvider reports whether err is a provider error, optionally of a specific subkind
func IsProvider(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Type == ErrorTypeProvider
}

// ProviderSubkindOf returns the subkind of a provider error, or "" if err is not one
func ProviderSubkindOf(err error) ProviderSubkind {
	if e, ok := err.(*Error); ok && e.Type == ErrorTypeProvider {
		return e.Subkind
	}
	return ""
}

// IsFatal checks if an error is fatal (should stop the investigation)
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	if e, ok := err.(*Error); ok {
		return e.IsFatal()
	}

	return false
}

// GetSeverity returns the severity of an error
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityLow
	}

	if e, ok := err.(*Error); ok {
		return e.Severity
	}

	return SeverityMedium
}

// GetType returns the type of an error
func GetType(err error) ErrorType {
	if err == nil {
		return ErrorTypeInternal
	}

	if e, ok := err.(*Error); ok {
		return e.Type
	}

	return ErrorTypeInternal
}
