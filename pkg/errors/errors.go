// Package errors provides structured error handling for sq2pq
package errors

import (
	"errors"
	"fmt"
	"runtime"
)

// Type represents the category of error
type Type string

const (
	// TypeInternal represents internal invariant violations
	TypeInternal Type = "internal"
	// TypeConfig represents configuration errors
	TypeConfig Type = "config"
	// TypeIntrospection represents failures reading source schema metadata
	TypeIntrospection Type = "introspection"
	// TypeQuery represents query preparation or execution errors
	TypeQuery Type = "query"
	// TypeRowCountMismatch represents column cursors disagreeing on row count
	TypeRowCountMismatch Type = "row_count_mismatch"
	// TypeTypeMismatch represents a source value that cannot be coerced to the target type
	TypeTypeMismatch Type = "type_mismatch"
	// TypeOverflow represents a numeric value outside the target type's range
	TypeOverflow Type = "numeric_overflow"
	// TypeLengthMismatch represents a fixed-length value of the wrong length
	TypeLengthMismatch Type = "fixed_length_mismatch"
	// TypeSink represents errors propagated from the parquet sink
	TypeSink Type = "sink"
)

// Error represents a structured error with context
type Error struct {
	Type    Type
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Detail returns a detail value by key, or nil if absent
func (e *Error) Detail(key string) interface{} {
	if e.Details == nil {
		return nil
	}
	return e.Details[key]
}

// New creates a new error with the given type and message
func New(errType Type, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates a new error with a formatted message
func Newf(errType Type, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType Type, message string) *Error {
	if err == nil {
		return nil
	}

	// If already our error type, preserve the stack
	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// Wrapf wraps an existing error with a formatted message
func Wrapf(err error, errType Type, format string, args ...interface{}) *Error {
	return Wrap(err, errType, fmt.Sprintf(format, args...))
}

// TypeOf returns the type of a structured error, or TypeInternal for others
func TypeOf(err error) Type {
	var e *Error
	if !errors.As(err, &e) {
		return TypeInternal
	}
	return e.Type
}

// IsType checks if the error is of the given type
func IsType(err error, errType Type) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// captureStack captures the current call stack
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
