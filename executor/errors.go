package executor

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed execution
type ErrorKind string

// Error kinds. ValidationError and ServerError are returned as *Error;
// CompilationError and RuntimeError are derived from a Result.
const (
	ValidationError  ErrorKind = "ValidationError"
	CompilationError ErrorKind = "CompilationError"
	RuntimeError     ErrorKind = "RuntimeError"
	ServerError      ErrorKind = "ServerError"
)

// Error is returned by Execute when no result could be produced
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err. Errors that did not come from Execute are
// reported as ServerError; nil has no kind.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var execErr *Error
	if errors.As(err, &execErr) {
		return execErr.Kind
	}
	return ServerError
}

func validationError(format string, args ...any) *Error {
	return &Error{Kind: ValidationError, Message: fmt.Sprintf(format, args...)}
}
