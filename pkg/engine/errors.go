package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorClass represents the classification of an error.
type ErrorClass string

const (
	// ErrorClassTransient indicates a failure outside the configuration itself that may
	// succeed when run again, such as a container runtime that is not reachable yet.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassPermanent indicates an error in the inputs.
	// Examples: malformed recipe, unmet dependency, unknown variable.
	ErrorClassPermanent ErrorClass = "permanent"
)

// Error represents a classified error together with the configuration entity that caused it.
// nolint:revive // Error is intentionally generic; callers refer to it as engine.Error
type Error struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Fragment is the source path of the config fragment involved, if any.
	Fragment string `json:"fragment,omitempty"`

	// Service is the compose service involved, if any.
	Service string `json:"service,omitempty"`

	// File is the recipe or extended file involved, if any.
	File string `json:"file,omitempty"`

	// Variable is the variable name involved, if any.
	Variable string `json:"variable,omitempty"`

	// Dependency is the dependency id involved, if any.
	Dependency string `json:"dependency,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)

	entities := e.entities()
	if len(entities) > 0 {
		sb.WriteString(" (")
		sb.WriteString(strings.Join(entities, ", "))
		sb.WriteString(")")
	}

	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) entities() []string {
	var out []string
	if e.Fragment != "" {
		out = append(out, "fragment="+e.Fragment)
	}
	if e.Service != "" {
		out = append(out, "service="+e.Service)
	}
	if e.File != "" {
		out = append(out, "file="+e.File)
	}
	if e.Variable != "" {
		out = append(out, "variable="+e.Variable)
	}
	if e.Dependency != "" {
		out = append(out, "dependency="+e.Dependency)
	}
	return out
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewTransientError creates a new transient error.
func NewTransientError(message string, err error) *Error {
	return &Error{
		Class:   ErrorClassTransient,
		Message: message,
		Err:     err,
	}
}

// NewPermanentError creates a new permanent error.
func NewPermanentError(message string, err error) *Error {
	return &Error{
		Class:   ErrorClassPermanent,
		Message: message,
		Err:     err,
	}
}

// WithCode adds an error code to an error.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// WithFragment adds fragment context to an error.
func (e *Error) WithFragment(path string) *Error {
	e.Fragment = path
	return e
}

// WithService adds service context to an error.
func (e *Error) WithService(name string) *Error {
	e.Service = name
	return e
}

// WithFile adds file context to an error.
func (e *Error) WithFile(path string) *Error {
	e.File = path
	return e
}

// WithVariable adds variable context to an error.
func (e *Error) WithVariable(name string) *Error {
	e.Variable = name
	return e
}

// WithDependency adds dependency context to an error.
func (e *Error) WithDependency(id string) *Error {
	e.Dependency = id
	return e
}

// IsTransient returns true if the error is classified as transient.
func IsTransient(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == ErrorClassTransient
	}
	return false
}

// IsPermanent returns true if the error is classified as permanent.
func IsPermanent(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == ErrorClassPermanent
	}
	return false
}

// HasCode reports whether err, or any error it wraps, carries the given code.
func HasCode(err error, code string) bool {
	var e *Error
	if errors.As(err, &e) {
		if e.Code == code {
			return true
		}
		return HasCode(e.Err, code)
	}
	return false
}

// Common error codes.
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeParse            = "PARSE_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeUnmetDependency  = "UNMET_DEPENDENCY"
	ErrCodeCycle            = "DEPENDENCY_CYCLE"
	ErrCodeVariableNotFound = "VARIABLE_NOT_FOUND"
	ErrCodeIO               = "IO_ERROR"
	ErrCodeHookFailed       = "HOOK_FAILED"
	ErrCodeRuntime          = "RUNTIME_ERROR"
	ErrCodeInternal         = "INTERNAL_ERROR"
)

// Validation is a shorthand for a permanent validation error.
func Validation(format string, args ...any) *Error {
	return NewPermanentError(fmt.Sprintf(format, args...), nil).WithCode(ErrCodeValidation)
}
