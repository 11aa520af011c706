package executor

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError(t *testing.T) {
	cause := errors.New("connection refused")
	err := &Error{Kind: ServerError, Message: "failed to execute code", Err: cause}

	assert.Equal(t, "ServerError: failed to execute code: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "ValidationError: code must not be empty", validationError("code must not be empty").Error())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, ErrorKind(""), KindOf(nil))
	assert.Equal(t, ServerError, KindOf(errors.New("plain")))
	assert.Equal(t, ValidationError, KindOf(validationError("bad")))
	assert.Equal(t, ValidationError, KindOf(fmt.Errorf("wrapped: %w", validationError("bad"))))
}

func TestResultErrorKind(t *testing.T) {
	tests := []struct {
		name   string
		result Result
		want   ErrorKind
	}{
		{"Success", Result{Stdout: "ok"}, ""},
		{"CompileFailed", Result{ExitCode: 1, CompileFailed: true, CompileOutput: "error"}, CompilationError},
		{"CompileWarningsOnly", Result{CompileOutput: "warning: unused"}, ""},
		{"NonZeroExit", Result{ExitCode: 2}, RuntimeError},
		{"RuntimeErrorSet", Result{ExitCode: 1, RuntimeError: "execution timed out after 1s"}, RuntimeError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.result.ErrorKind())
		})
	}
}
