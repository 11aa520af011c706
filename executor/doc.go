// Package executor is the entry point for running user code.
//
// An Executor validates a Request against the language registry, resolves
// resource limits (request options clamped to the configured ceilings),
// assigns a unique execution id and hands the request to the sandbox
// runtime. Failures that prevent execution are returned as *Error with kind
// ValidationError or ServerError; compilation and runtime failures come back
// as a Result whose ErrorKind says what went wrong.
//
// Usage:
//
//	exec := executor.NewFromConfig(logger, registry, runtime, cfg)
//	result, err := exec.Execute(ctx, executor.Request{
//	    Language: "python",
//	    Code:     "print(input())",
//	    Stdin:    "hello",
//	})
package executor
