package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/isdmx/codebox/config"
	"github.com/isdmx/codebox/languages"
	"github.com/isdmx/codebox/metrics"
	"github.com/isdmx/codebox/sandbox"
)

// minMemoryBytes is the smallest memory cap container runtimes accept
const minMemoryBytes = 6 * sandbox.BytesPerMB

// Options are per-request overrides of the sandbox limits. Zero values fall
// back to the configured defaults; values above the configured ceilings are
// clamped.
type Options struct {
	MemoryLimitBytes int64
	CPULimit         float64
	Timeout          time.Duration
}

// Request is one execution request
type Request struct {
	Language string
	Code     string
	Stdin    string
	Options  Options
}

// Result is the outcome of an execution that ran
type Result struct {
	Stdout        string        `json:"stdout"`
	Stderr        string        `json:"stderr"`
	ExitCode      int           `json:"exitCode"`
	CompileOutput string        `json:"compileOutput,omitempty"`
	RuntimeError  string        `json:"runtimeError,omitempty"`
	Truncated     bool          `json:"truncated"`
	CompileFailed bool          `json:"-"`
	Duration      time.Duration `json:"-"`
}

// ErrorKind reports how the execution failed, or "" if it succeeded
func (r Result) ErrorKind() ErrorKind {
	switch {
	case r.CompileFailed:
		return CompilationError
	case r.RuntimeError != "" || r.ExitCode != 0:
		return RuntimeError
	default:
		return ""
	}
}

// Message is a one-line description of a failed result
func (r Result) Message() string {
	switch r.ErrorKind() {
	case CompilationError:
		return "compilation failed"
	case RuntimeError:
		if r.RuntimeError != "" {
			return r.RuntimeError
		}
		return fmt.Sprintf("process exited with code %d", r.ExitCode)
	default:
		return ""
	}
}

// Runner executes one prepared request in a sandbox
type Runner interface {
	Run(ctx context.Context, req sandbox.RunRequest) (sandbox.Result, error)
}

// Limits are the defaults and ceilings applied to request options
type Limits struct {
	DefaultMemoryBytes int64
	MaxMemoryBytes     int64
	DefaultCPUs        float64
	MaxCPUs            float64
	PidsLimit          int64
	DefaultTimeout     time.Duration
	MaxTimeout         time.Duration
	// CompileTimeout bounds the compile step; request timeouts only cover
	// the run step.
	CompileTimeout time.Duration
}

// LimitsFromConfig reads Limits from the sandbox section
func LimitsFromConfig(cfg *config.Config) Limits {
	return Limits{
		DefaultMemoryBytes: int64(cfg.Sandbox.MemoryMB) * sandbox.BytesPerMB,
		MaxMemoryBytes:     int64(cfg.Sandbox.MaxMemoryMB) * sandbox.BytesPerMB,
		DefaultCPUs:        cfg.Sandbox.CPUs,
		MaxCPUs:            cfg.Sandbox.MaxCPUs,
		PidsLimit:          cfg.Sandbox.PidsLimit,
		DefaultTimeout:     cfg.GetTimeout(),
		MaxTimeout:         cfg.GetMaxTimeout(),
		CompileTimeout:     cfg.GetCompileTimeout(),
	}
}

// Executor is the single entry point for running code
type Executor struct {
	logger   *zap.Logger
	registry *languages.Registry
	runner   Runner
	limits   Limits
}

// New creates an Executor
func New(logger *zap.Logger, registry *languages.Registry, runner Runner, limits Limits) *Executor {
	return &Executor{
		logger:   logger,
		registry: registry,
		runner:   runner,
		limits:   limits,
	}
}

// NewFromConfig creates an Executor using the limits from cfg
func NewFromConfig(logger *zap.Logger, registry *languages.Registry, runner *sandbox.Runtime, cfg *config.Config) *Executor {
	return New(logger, registry, runner, LimitsFromConfig(cfg))
}

// Languages returns the supported language ids
func (e *Executor) Languages() []string {
	return e.registry.IDs()
}

// Execute validates req, runs it in a fresh sandbox and returns the result.
// Compilation and runtime failures are reported through the Result; the
// returned error is always an *Error of kind ValidationError or ServerError.
func (e *Executor) Execute(ctx context.Context, req Request) (result Result, err error) {
	started := time.Now()

	lang, err := e.validate(req)
	if err != nil {
		metrics.ExecutionsTotal.WithLabelValues(e.languageLabel(req.Language), metrics.OutcomeValidationError).Inc()
		e.logger.Debug("rejected execution request", zap.String("language", req.Language), zap.Error(err))
		return Result{}, err
	}

	execID := uuid.NewString()
	logger := e.logger.With(zap.String("exec_id", execID), zap.String("language", req.Language))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic during execution", zap.Any("panic", r), zap.Stack("stack"))
			metrics.ExecutionsTotal.WithLabelValues(req.Language, metrics.OutcomeServerError).Inc()
			result = Result{}
			err = &Error{Kind: ServerError, Message: "internal error during execution", Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	runReq := sandbox.RunRequest{
		ExecID:   execID,
		Language: lang,
		Code:     req.Code,
		Stdin:    req.Stdin,
		Limits:   e.limitsFor(req.Options),
		Timeout:  e.timeoutFor(req.Options),

		CompileTimeout: e.limits.CompileTimeout,
	}

	logger.Info("executing code in sandbox",
		zap.Int64("memory_bytes", runReq.Limits.MemoryBytes),
		zap.Float64("cpus", runReq.Limits.CPUs),
		zap.Duration("timeout", runReq.Timeout),
		zap.Bool("has_stdin", req.Stdin != ""))

	out, runErr := e.runner.Run(ctx, runReq)
	if runErr != nil {
		logger.Error("sandbox execution failed", zap.Error(runErr))
		metrics.ExecutionsTotal.WithLabelValues(req.Language, metrics.OutcomeServerError).Inc()
		return Result{}, &Error{Kind: ServerError, Message: "failed to execute code", Err: runErr}
	}

	result = Result{
		Stdout:        out.Stdout,
		Stderr:        out.Stderr,
		ExitCode:      out.ExitCode,
		CompileOutput: out.CompileOutput,
		RuntimeError:  out.RuntimeError,
		Truncated:     out.Truncated,
		CompileFailed: out.CompileFailed,
		Duration:      time.Since(started),
	}

	metrics.ExecutionsTotal.WithLabelValues(req.Language, outcome(result)).Inc()
	metrics.PhaseDuration.WithLabelValues(req.Language, "total").Observe(result.Duration.Seconds())

	logger.Info("code execution completed",
		zap.Int("exit_code", result.ExitCode),
		zap.String("error_kind", string(result.ErrorKind())),
		zap.Int("stdout_len", len(result.Stdout)),
		zap.Int("stderr_len", len(result.Stderr)),
		zap.Bool("truncated", result.Truncated),
		zap.Duration("duration", result.Duration))

	return result, nil
}

func (e *Executor) validate(req Request) (languages.Language, error) {
	if strings.TrimSpace(req.Language) == "" {
		return languages.Language{}, validationError("language is required")
	}
	if strings.TrimSpace(req.Code) == "" {
		return languages.Language{}, validationError("code must not be empty")
	}
	if req.Options.MemoryLimitBytes < 0 {
		return languages.Language{}, validationError("memoryLimitBytes must not be negative")
	}
	if req.Options.CPULimit < 0 {
		return languages.Language{}, validationError("cpuLimit must not be negative")
	}
	if req.Options.Timeout < 0 {
		return languages.Language{}, validationError("timeout must not be negative")
	}

	lang, err := e.registry.Lookup(req.Language)
	if err != nil {
		return languages.Language{}, &Error{
			Kind:    ValidationError,
			Message: fmt.Sprintf("unsupported language: %s", req.Language),
			Err:     languages.ErrNotSupported,
		}
	}
	return lang, nil
}

func (e *Executor) limitsFor(opts Options) sandbox.Limits {
	memory := e.limits.DefaultMemoryBytes
	if opts.MemoryLimitBytes > 0 {
		memory = opts.MemoryLimitBytes
	}
	if e.limits.MaxMemoryBytes > 0 && memory > e.limits.MaxMemoryBytes {
		memory = e.limits.MaxMemoryBytes
	}
	if memory < minMemoryBytes {
		memory = minMemoryBytes
	}

	cpus := e.limits.DefaultCPUs
	if opts.CPULimit > 0 {
		cpus = opts.CPULimit
	}
	if e.limits.MaxCPUs > 0 && cpus > e.limits.MaxCPUs {
		cpus = e.limits.MaxCPUs
	}

	return sandbox.Limits{
		MemoryBytes: memory,
		CPUs:        cpus,
		PidsLimit:   e.limits.PidsLimit,
	}
}

func (e *Executor) timeoutFor(opts Options) time.Duration {
	timeout := e.limits.DefaultTimeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	if e.limits.MaxTimeout > 0 && timeout > e.limits.MaxTimeout {
		timeout = e.limits.MaxTimeout
	}
	return timeout
}

func outcome(r Result) string {
	switch r.ErrorKind() {
	case CompilationError:
		return metrics.OutcomeCompilationError
	case RuntimeError:
		return metrics.OutcomeRuntimeError
	default:
		return metrics.OutcomeSuccess
	}
}

// languageLabel keeps arbitrary user input out of metric label values
func (e *Executor) languageLabel(language string) string {
	if _, err := e.registry.Lookup(language); err != nil {
		return "unknown"
	}
	return language
}
