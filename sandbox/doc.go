// Package sandbox provides secure code execution capabilities.
//
// The sandbox package implements the execution engine for running untrusted
// code in isolated containers. An Engine is the control connection to the
// container subsystem; DockerEngine speaks the Docker Engine API and
// CLIEngine drives the docker or podman binaries. One engine is created per
// process and shared by every request.
//
// A Runtime runs one request through its lifecycle. The Materializer stages
// the source, scaffold files and input.txt in a scratch area, the scratch area
// is bind-mounted (or copied) to /app in a fresh container, the compile and
// run steps execute as separate execs, and the container and scratch area
// are removed whatever happened.
//
// Usage:
//
//	engine, err := sandbox.NewEngine(logger, cfg)
//	runtime := sandbox.NewRuntimeFromConfig(logger, engine, cfg)
//	result, err := runtime.Run(ctx, sandbox.RunRequest{
//	    ExecID:   id,
//	    Language: lang,
//	    Code:     "print('Hello, World!')",
//	    Limits:   sandbox.Limits{MemoryBytes: 128 << 20, CPUs: 1},
//	    Timeout:  10 * time.Second,
//	})
package sandbox
