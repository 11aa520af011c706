package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/isdmx/codebox/config"
	"github.com/isdmx/codebox/languages"
	"github.com/isdmx/codebox/metrics"
	"github.com/isdmx/codebox/normalize"
)

// RuntimeConfig holds the runtime settings that do not vary per request
type RuntimeConfig struct {
	MountMode      string
	PullImages     bool
	MaxOutputBytes int
	CleanupTimeout time.Duration
	// Owner is the user sandboxed processes run as. Zero means HostOwner.
	Owner Owner
}

// RunRequest is one compile and run cycle handed to the Runtime
type RunRequest struct {
	ExecID   string
	Language languages.Language
	Code     string
	Stdin    string
	Limits   Limits
	// Timeout bounds the run step. Zero means no deadline beyond the
	// caller's context.
	Timeout time.Duration
	// CompileTimeout bounds the compile step the same way.
	CompileTimeout time.Duration
}

// Runtime drives one sandbox container per request through its lifecycle:
// created, started, compiling, running, torn down
type Runtime struct {
	logger       *zap.Logger
	engine       Engine
	materializer *Materializer
	cfg          RuntimeConfig
}

// NewRuntime creates a Runtime on top of a shared engine
func NewRuntime(logger *zap.Logger, engine Engine, materializer *Materializer, cfg RuntimeConfig) *Runtime {
	if cfg.CleanupTimeout <= 0 {
		cfg.CleanupTimeout = 10 * time.Second
	}
	if cfg.MountMode == "" {
		cfg.MountMode = config.MountBind
	}
	if cfg.Owner.IsZero() {
		cfg.Owner = HostOwner()
	}
	return &Runtime{
		logger:       logger,
		engine:       engine,
		materializer: materializer,
		cfg:          cfg,
	}
}

// Run executes one request. Failures before the container is started are
// returned as errors; anything that goes wrong afterwards is reported in
// Result.RuntimeError. The container and scratch area are always removed.
//
//nolint:funlen // Linear walk through the sandbox lifecycle
func (r *Runtime) Run(ctx context.Context, req RunRequest) (Result, error) {
	lang := req.Language
	logger := r.logger.With(zap.String("exec_id", req.ExecID), zap.String("language", string(lang.ID)))

	scratch, err := r.materializer.Prepare(req.ExecID, r.cfg.Owner)
	if err != nil {
		return Result{}, err
	}

	var containerID string
	defer func() {
		r.teardown(ctx, logger, containerID, scratch)
	}()

	if err := r.materializer.Materialize(scratch.Path, lang, req.Code, req.Stdin); err != nil {
		return Result{}, err
	}

	if r.cfg.PullImages {
		if err := r.engine.EnsureImage(ctx, lang.Image); err != nil {
			return Result{}, err
		}
	}

	createStart := time.Now()
	spec := ContainerSpec{
		Name:       ContainerPrefix + req.ExecID,
		Image:      lang.Image,
		Cmd:        keepAliveCmd,
		WorkingDir: languages.MountPath,
		Env:        sandboxEnv(lang),
		User:       r.cfg.Owner.String(),
		Labels: map[string]string{
			LabelManaged:       "true",
			LabelExecID:        req.ExecID,
			"codebox.language": string(lang.ID),
		},
		Limits: req.Limits,
	}
	if r.cfg.MountMode == config.MountBind {
		spec.Binds = []string{scratch.Path + ":" + languages.MountPath}
	}

	containerID, err = r.engine.Create(ctx, spec)
	if err != nil {
		return Result{}, err
	}
	metrics.SandboxesActive.Inc()
	logger = logger.With(zap.String("container", shortID(containerID)))

	if r.cfg.MountMode == config.MountCopy {
		archive, err := CreateTarFromDir(scratch.Path, strings.TrimPrefix(languages.MountPath, "/"), r.cfg.Owner)
		if err != nil {
			return Result{}, err
		}
		if err := r.engine.CopyTo(ctx, containerID, "/", bytes.NewReader(archive)); err != nil {
			return Result{}, err
		}
	}

	if err := r.engine.Start(ctx, containerID); err != nil {
		return Result{}, err
	}
	metrics.SandboxCreateDuration.Observe(time.Since(createStart).Seconds())
	logger.Debug("sandbox started")

	var result Result

	if lang.HasCompileStep() {
		compileCtx, cancel := withTimeout(ctx, req.CompileTimeout)
		defer cancel()

		compileOut := newCaptureBuffer(r.cfg.MaxOutputBytes)
		started := time.Now()
		exitCode, err := r.engine.Exec(compileCtx, containerID, ExecSpec{
			Cmd:        lang.CompileCmd,
			WorkingDir: languages.MountPath,
			Stdout:     compileOut,
			Stderr:     compileOut,
		})
		result.CompileTime = time.Since(started)
		metrics.PhaseDuration.WithLabelValues(string(lang.ID), "compile").Observe(result.CompileTime.Seconds())
		if err != nil {
			return r.execFailure(compileCtx, logger, req.CompileTimeout, "compile", err, result), nil
		}

		result.CompileOutput = normalize.Clean(compileOut.String())
		result.Truncated = compileOut.Truncated()
		if exitCode != 0 {
			logger.Debug("compilation failed", zap.Int("exit_code", exitCode))
			result.ExitCode = exitCode
			result.CompileFailed = true
			result.Stderr = result.CompileOutput
			if result.Stderr == "" {
				result.Stderr = "Compilation failed"
			}
			r.countTruncated(lang, result)
			return result, nil
		}
	}

	runCtx, cancel := withTimeout(ctx, req.Timeout)
	defer cancel()

	stdout := newCaptureBuffer(r.cfg.MaxOutputBytes)
	stderr := newCaptureBuffer(r.cfg.MaxOutputBytes)
	run := ExecSpec{
		Cmd:        lang.RunCommand(req.Stdin != ""),
		WorkingDir: languages.MountPath,
		Stdout:     stdout,
		Stderr:     stderr,
	}
	if lang.Stdin == languages.StdinStream {
		run.Stdin = strings.NewReader(normalizeInput(req.Stdin))
	}

	started := time.Now()
	exitCode, err := r.engine.Exec(runCtx, containerID, run)
	result.RunTime = time.Since(started)
	metrics.PhaseDuration.WithLabelValues(string(lang.ID), "run").Observe(result.RunTime.Seconds())
	if err != nil {
		return r.execFailure(runCtx, logger, req.Timeout, "run", err, result), nil
	}

	result.ExitCode = exitCode
	result.Stdout = normalize.Clean(stdout.String())
	result.Stderr = normalize.Clean(stderr.String())
	result.Truncated = result.Truncated || stdout.Truncated() || stderr.Truncated()
	r.countTruncated(lang, result)

	logger.Debug("execution finished", zap.Int("exit_code", exitCode), zap.Duration("duration", result.RunTime))
	return result, nil
}

// execFailure turns an exec error into a runtime error result. Whatever the
// earlier steps produced (compiler warnings, timings) is kept.
func (*Runtime) execFailure(stepCtx context.Context, logger *zap.Logger, timeout time.Duration, step string, err error, partial Result) Result {
	var msg string
	switch {
	case errors.Is(stepCtx.Err(), context.DeadlineExceeded) && step == "compile":
		msg = fmt.Sprintf("compilation timed out after %s", timeout)
	case errors.Is(stepCtx.Err(), context.DeadlineExceeded):
		msg = fmt.Sprintf("execution timed out after %s", timeout)
	case errors.Is(stepCtx.Err(), context.Canceled):
		msg = "execution cancelled"
	case errors.Is(err, ErrContainerNotRunning):
		msg = "sandbox container stopped unexpectedly (possibly out of memory)"
	default:
		msg = fmt.Sprintf("%s step failed: %v", step, err)
	}

	logger.Warn("execution failed", zap.String("step", step), zap.String("reason", msg), zap.Error(err))
	partial.ExitCode = 1
	partial.Stdout = ""
	partial.Stderr = msg
	partial.RuntimeError = msg
	return partial
}

// withTimeout is context.WithTimeout that treats a zero timeout as none
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// sandboxEnv is the language environment plus a writable HOME, since the
// sandbox user has no home directory in the image
func sandboxEnv(lang languages.Language) []string {
	env := lang.Env()
	if _, ok := lang.Environment["HOME"]; !ok {
		env = append(env, "HOME=/tmp")
	}
	return env
}

func (*Runtime) countTruncated(lang languages.Language, result Result) {
	if result.Truncated {
		metrics.OutputTruncated.WithLabelValues(string(lang.ID)).Inc()
	}
}

// teardown removes the container and scratch area under its own deadline so
// that a cancelled request still cleans up after itself
func (r *Runtime) teardown(ctx context.Context, logger *zap.Logger, containerID string, scratch ScratchArea) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.CleanupTimeout)
	defer cancel()

	if containerID != "" {
		if err := r.engine.Remove(cleanupCtx, containerID); err != nil {
			logger.Error("failed to remove sandbox container", zap.Error(err))
			metrics.CleanupFailures.WithLabelValues("container").Inc()
		}
		metrics.SandboxesActive.Dec()
	}

	if err := scratch.Remove(); err != nil {
		logger.Error("failed to remove scratch area", zap.String("path", scratch.Path), zap.Error(err))
		metrics.CleanupFailures.WithLabelValues("scratch").Inc()
	}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
