// Package errors provides production-grade error handling for PulseFlow.
// It implements structured errors with codes, context, and stack traces.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Error codes for programmatic handling
type Code string

const (
	// Input errors (1xx)
	CodeUnknownEvent    Code = "E101"
	CodeInvalidEvent    Code = "E102"
	CodeTaxonomyFormat  Code = "E103"
	CodeMissingProperty Code = "E104"

	// Queue errors (2xx)
	CodePersistFailed Code = "E201"
	CodeLoadFailed    Code = "E202"
	CodeQueueCorrupt  Code = "E203"

	// Transport errors (3xx)
	CodeSendFailed     Code = "E301"
	CodeClientRejected Code = "E302"
	CodeCircuitOpen    Code = "E303"
	CodeCompression    Code = "E304"

	// System errors (4xx)
	CodeContextCanceled Code = "E401"
	CodeTimeout         Code = "E402"
	CodeArchiveFailed   Code = "E403"

	// Unknown
	CodeUnknown Code = "E999"
)

// PulseFlowError is the base error type for all PulseFlow errors.
type PulseFlowError struct {
	Code       Code
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace []Frame
}

// Frame represents a stack frame.
type Frame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface.
func (e *PulseFlowError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if len(e.Context) > 0 {
		sb.WriteString(" (")
		first := true
		for k, v := range e.Context {
			if !first {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s=%v", k, v))
			first = false
		}
		sb.WriteString(")")
	}

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}

	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *PulseFlowError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target error.
func (e *PulseFlowError) Is(target error) bool {
	if t, ok := target.(*PulseFlowError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext adds context to the error.
func (e *PulseFlowError) WithContext(key string, value interface{}) *PulseFlowError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new PulseFlowError.
func New(code Code, message string) *PulseFlowError {
	return &PulseFlowError{
		Code:       code,
		Message:    message,
		StackTrace: captureStack(2),
	}
}

// Wrap wraps an existing error with additional context.
func Wrap(err error, code Code, message string) *PulseFlowError {
	if err == nil {
		return nil
	}

	return &PulseFlowError{
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: captureStack(2),
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code Code, format string, args ...interface{}) *PulseFlowError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// captureStack captures the current stack trace.
func captureStack(skip int) []Frame {
	var frames []Frame
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)
	pcs = pcs[:n]

	cf := runtime.CallersFrames(pcs)
	for {
		frame, more := cf.Next()
		frames = append(frames, Frame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
		if !more || len(frames) >= 10 {
			break
		}
	}
	return frames
}

// FormatStack returns a formatted stack trace.
func (e *PulseFlowError) FormatStack() string {
	var sb strings.Builder
	for _, f := range e.StackTrace {
		sb.WriteString(fmt.Sprintf("  at %s\n    %s:%d\n", f.Function, f.File, f.Line))
	}
	return sb.String()
}

// --- Convenience constructors ---

// UnknownEvent creates an error for an event name absent from the taxonomy.
func UnknownEvent(name string) *PulseFlowError {
	return New(CodeUnknownEvent, "event name not in taxonomy").WithContext("event", name)
}

// MissingProperty creates an error for a missing required property.
func MissingProperty(event, key string) *PulseFlowError {
	return New(CodeMissingProperty, "required property missing").
		WithContext("event", event).
		WithContext("key", key)
}

// PersistFailed creates a queue persistence error.
func PersistFailed(key string, err error) *PulseFlowError {
	return Wrap(err, CodePersistFailed, "queue persistence write failed").
		WithContext("key", key)
}

// ContextCanceled creates a cancellation error.
func ContextCanceled(operation string) *PulseFlowError {
	return New(CodeContextCanceled, "operation canceled").
		WithContext("operation", operation)
}

// --- Error checking utilities ---

// IsCode checks if an error has a specific code.
func IsCode(err error, code Code) bool {
	var pfErr *PulseFlowError
	if errors.As(err, &pfErr) {
		return pfErr.Code == code
	}
	return false
}

// GetCode extracts the error code from an error.
func GetCode(err error) Code {
	var pfErr *PulseFlowError
	if errors.As(err, &pfErr) {
		return pfErr.Code
	}
	return CodeUnknown
}

// IsRetryable returns true if the error is retryable.
func IsRetryable(err error) bool {
	code := GetCode(err)
	switch code {
	case CodeSendFailed, CodeCircuitOpen, CodeTimeout:
		return true
	default:
		return false
	}
}

// MultiError collects multiple errors.
type MultiError struct {
	Errors []error
}

// Error implements the error interface.
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d errors occurred:\n", len(m.Errors)))
	for i, err := range m.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// HasErrors returns true if any errors were collected.
func (m *MultiError) HasErrors() bool {
	return len(m.Errors) > 0
}

// Combined returns nil if no errors, the single error if one, or the MultiError.
func (m *MultiError) Combined() error {
	switch len(m.Errors) {
	case 0:
		return nil
	case 1:
		return m.Errors[0]
	default:
		return m
	}
}
