package sandbox

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// CLIEngine implements Engine by driving a Docker-compatible command line
// client such as docker or podman
type CLIEngine struct {
	binary    string
	logger    *zap.Logger
	cmdRunner CommandRunner
}

// CLIEngineOption defines a functional option for CLIEngine
type CLIEngineOption func(*CLIEngine)

// WithCommandRunner sets the CommandRunner for CLIEngine
func WithCommandRunner(cmdRunner CommandRunner) CLIEngineOption {
	return func(c *CLIEngine) {
		c.cmdRunner = cmdRunner
	}
}

// NewCLIEngine creates a CLIEngine for binary ("docker" or "podman")
func NewCLIEngine(logger *zap.Logger, binary string, opts ...CLIEngineOption) *CLIEngine {
	engine := &CLIEngine{
		binary:    binary,
		logger:    logger,
		cmdRunner: RealCommandRunner{},
	}

	for _, opt := range opts {
		opt(engine)
	}

	return engine
}

func (c *CLIEngine) run(ctx context.Context, stdin io.Reader, args ...string) (string, error) {
	argv := append([]string{c.binary}, args...)
	stdout, stderr, exitCode, err := runCaptured(ctx, c.cmdRunner, argv, stdin)
	if err != nil {
		return "", fmt.Errorf("%s %s: %w", c.binary, args[0], err)
	}
	if exitCode != 0 {
		msg := strings.TrimSpace(stderr)
		if isNotRunningMessage(msg) {
			return "", fmt.Errorf("%w: %s", ErrContainerNotRunning, msg)
		}
		return "", fmt.Errorf("%s %s exited with code %d: %s", c.binary, args[0], exitCode, msg)
	}
	return strings.TrimSpace(stdout), nil
}

// EnsureImage pulls img unless it is already present
func (c *CLIEngine) EnsureImage(ctx context.Context, img string) error {
	if _, err := c.run(ctx, nil, "image", "inspect", img); err == nil {
		return nil
	}

	c.logger.Info("pulling image", zap.String("binary", c.binary), zap.String("image", img))
	if _, err := c.run(ctx, nil, "pull", img); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", img, err)
	}
	return nil
}

// Create creates (but does not start) the sandbox container
func (c *CLIEngine) Create(ctx context.Context, spec ContainerSpec) (string, error) {
	id, err := c.run(ctx, nil, createArgs(spec)...)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}
	if id == "" {
		return "", fmt.Errorf("failed to create container: %s returned no id", c.binary)
	}
	return id, nil
}

// CopyTo streams a tar archive into the container at dstPath
func (c *CLIEngine) CopyTo(ctx context.Context, id, dstPath string, archive io.Reader) error {
	if _, err := c.run(ctx, archive, "cp", "-", id+":"+dstPath); err != nil {
		return fmt.Errorf("failed to copy files into container: %w", err)
	}
	return nil
}

// Start starts a created container
func (c *CLIEngine) Start(ctx context.Context, id string) error {
	if _, err := c.run(ctx, nil, "start", id); err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}
	return nil
}

// Exec runs spec.Cmd inside the container. The command's own non-zero exit
// is returned as exitCode; a container that died underneath it is reported
// as ErrContainerNotRunning.
func (c *CLIEngine) Exec(ctx context.Context, id string, spec ExecSpec) (int, error) {
	args := []string{c.binary, "exec"}
	if spec.Stdin != nil {
		args = append(args, "-i")
	}
	if spec.WorkingDir != "" {
		args = append(args, "-w", spec.WorkingDir)
	}
	for _, env := range spec.Env {
		args = append(args, "-e", env)
	}
	args = append(args, id)
	args = append(args, spec.Cmd...)

	stdout, stderr := spec.Stdout, spec.Stderr
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	exitCode, err := c.cmdRunner.RunCommand(ctx, args, spec.Stdin, stdout, stderr)
	if err != nil {
		if ctx.Err() != nil {
			return -1, ctx.Err()
		}
		return -1, fmt.Errorf("%s exec: %w", c.binary, err)
	}

	if exitCode != 0 {
		running, inspectErr := c.running(ctx, id)
		if inspectErr == nil && !running {
			return -1, fmt.Errorf("%w: exec exited with code %d", ErrContainerNotRunning, exitCode)
		}
	}

	return exitCode, nil
}

func (c *CLIEngine) running(ctx context.Context, id string) (bool, error) {
	out, err := c.run(ctx, nil, "inspect", "-f", "{{.State.Running}}", id)
	if err != nil {
		return false, err
	}
	return strconv.ParseBool(out)
}

// Remove force-removes the container and its anonymous volumes
func (c *CLIEngine) Remove(ctx context.Context, id string) error {
	if _, err := c.run(ctx, nil, "rm", "-f", "-v", id); err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

// RemoveStale removes every container carrying the codebox label
func (c *CLIEngine) RemoveStale(ctx context.Context) (int, error) {
	out, err := c.run(ctx, nil, "ps", "-aq", "--filter", "label="+managedLabelFilter())
	if err != nil {
		return 0, fmt.Errorf("failed to list containers: %w", err)
	}

	removed := 0
	for _, id := range strings.Fields(out) {
		if err := c.Remove(ctx, id); err != nil {
			c.logger.Warn("failed to remove stale container", zap.String("container", id), zap.Error(err))
			continue
		}
		removed++
	}
	return removed, nil
}

// Close is a no-op; the CLI holds no connection
func (*CLIEngine) Close() error {
	return nil
}

func createArgs(spec ContainerSpec) []string {
	args := []string{
		"create",
		"--name", spec.Name,
		"--network", "none",
		"--security-opt", "no-new-privileges",
		"--cap-drop", "ALL",
	}
	if spec.User != "" {
		args = append(args, "--user", spec.User)
	}

	if spec.Limits.MemoryBytes > 0 {
		memory := strconv.FormatInt(spec.Limits.MemoryBytes, 10)
		args = append(args, "--memory", memory, "--memory-swap", memory)
	}
	if spec.Limits.CPUs > 0 {
		args = append(args, "--cpus", strconv.FormatFloat(spec.Limits.CPUs, 'f', -1, 64))
	}
	if spec.Limits.PidsLimit > 0 {
		args = append(args, "--pids-limit", strconv.FormatInt(spec.Limits.PidsLimit, 10))
	}
	if spec.WorkingDir != "" {
		args = append(args, "-w", spec.WorkingDir)
	}
	for _, bind := range spec.Binds {
		args = append(args, "-v", bind)
	}
	for _, env := range spec.Env {
		args = append(args, "-e", env)
	}

	keys := make([]string, 0, len(spec.Labels))
	for k := range spec.Labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--label", k+"="+spec.Labels[k])
	}

	args = append(args, spec.Image)
	return append(args, spec.Cmd...)
}
