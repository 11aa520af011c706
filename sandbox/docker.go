// Package sandbox provides secure code execution capabilities.
//
// The DockerEngine talks to the Docker Engine API through the official SDK.
// Containers are created with resource limits, networking disabled and
// no-new-privileges, and are driven through exec calls whose multiplexed
// output is split back into stdout and stderr.
package sandbox

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"go.uber.org/zap"
)

// cpuPeriod is the CFS period the CPU quota is expressed against.
const cpuPeriod = 100000

// DockerEngine implements Engine using the Docker Engine API
type DockerEngine struct {
	cli    *client.Client
	logger *zap.Logger
}

// NewDockerEngine connects to the daemon described by the DOCKER_*
// environment variables, negotiating the API version
func NewDockerEngine(logger *zap.Logger) (*DockerEngine, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &DockerEngine{cli: cli, logger: logger}, nil
}

// EnsureImage pulls img unless it is already present
func (d *DockerEngine) EnsureImage(ctx context.Context, img string) error {
	_, _, err := d.cli.ImageInspectWithRaw(ctx, img)
	if err == nil {
		return nil
	}

	d.logger.Info("pulling docker image", zap.String("image", img))
	reader, err := d.cli.ImagePull(ctx, img, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", img, err)
	}
	defer reader.Close()

	// The pull only completes once the progress stream is consumed
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", img, err)
	}

	d.logger.Info("successfully pulled docker image", zap.String("image", img))
	return nil
}

// Create creates (but does not start) the sandbox container
func (d *DockerEngine) Create(ctx context.Context, spec ContainerSpec) (string, error) {
	cfg, hostCfg := containerConfigs(spec)
	resp, err := d.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, spec.Name)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}
	for _, warning := range resp.Warnings {
		d.logger.Warn("container create warning", zap.String("container", resp.ID), zap.String("warning", warning))
	}
	return resp.ID, nil
}

// CopyTo extracts a tar archive into the container at dstPath
func (d *DockerEngine) CopyTo(ctx context.Context, id, dstPath string, archive io.Reader) error {
	if err := d.cli.CopyToContainer(ctx, id, dstPath, archive, container.CopyToContainerOptions{}); err != nil {
		return fmt.Errorf("failed to copy files into container: %w", err)
	}
	return nil
}

// Start starts a created container
func (d *DockerEngine) Start(ctx context.Context, id string) error {
	if err := d.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}
	return nil
}

// Exec runs spec.Cmd inside the container and waits for it to finish
func (d *DockerEngine) Exec(ctx context.Context, id string, spec ExecSpec) (int, error) {
	execResp, err := d.cli.ContainerExecCreate(ctx, id, container.ExecOptions{
		Cmd:          spec.Cmd,
		WorkingDir:   spec.WorkingDir,
		Env:          spec.Env,
		AttachStdin:  spec.Stdin != nil,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		if isNotRunningMessage(err.Error()) {
			return -1, fmt.Errorf("%w: %v", ErrContainerNotRunning, err)
		}
		return -1, fmt.Errorf("failed to create exec: %w", err)
	}

	attach, err := d.cli.ContainerExecAttach(ctx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		if isNotRunningMessage(err.Error()) {
			return -1, fmt.Errorf("%w: %v", ErrContainerNotRunning, err)
		}
		return -1, fmt.Errorf("failed to attach exec: %w", err)
	}
	defer attach.Close()

	if spec.Stdin != nil {
		go func() {
			if _, err := io.Copy(attach.Conn, spec.Stdin); err != nil {
				d.logger.Debug("failed to write exec stdin", zap.String("container", id), zap.Error(err))
			}
			_ = attach.CloseWrite()
		}()
	}

	stdout, stderr := spec.Stdout, spec.Stderr
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	done := make(chan error, 1)
	go func() {
		_, err := stdcopy.StdCopy(stdout, stderr, attach.Reader)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return -1, fmt.Errorf("failed to read exec output: %w", err)
		}
	case <-ctx.Done():
		// Unblock the reader and wait so no write races the caller
		attach.Close()
		<-done
		return -1, ctx.Err()
	}

	return d.waitExit(ctx, execResp.ID)
}

// waitExit polls until the exec is reported finished. The output stream can
// close slightly before the daemon records the exit code.
func (d *DockerEngine) waitExit(ctx context.Context, execID string) (int, error) {
	backoff := 5 * time.Millisecond
	for {
		inspect, err := d.cli.ContainerExecInspect(ctx, execID)
		if err != nil {
			return -1, fmt.Errorf("failed to inspect exec: %w", err)
		}
		if !inspect.Running {
			return inspect.ExitCode, nil
		}

		select {
		case <-ctx.Done():
			return -1, ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 100*time.Millisecond {
			backoff *= 2
		}
	}
}

// Remove force-removes the container and its anonymous volumes
func (d *DockerEngine) Remove(ctx context.Context, id string) error {
	if err := d.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

// RemoveStale removes every container carrying the codebox label, e.g. ones
// left behind by a crashed process
func (d *DockerEngine) RemoveStale(ctx context.Context) (int, error) {
	containers, err := d.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", managedLabelFilter())),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list containers: %w", err)
	}

	removed := 0
	for _, c := range containers {
		if err := d.Remove(ctx, c.ID); err != nil {
			d.logger.Warn("failed to remove stale container", zap.String("container", c.ID), zap.Error(err))
			continue
		}
		removed++
	}
	return removed, nil
}

// Close releases the client's connections
func (d *DockerEngine) Close() error {
	return d.cli.Close()
}

func containerConfigs(spec ContainerSpec) (*container.Config, *container.HostConfig) {
	var pidsLimit *int64
	if spec.Limits.PidsLimit > 0 {
		limit := spec.Limits.PidsLimit
		pidsLimit = &limit
	}

	cfg := &container.Config{
		Image:           spec.Image,
		Cmd:             spec.Cmd,
		Env:             spec.Env,
		WorkingDir:      spec.WorkingDir,
		User:            spec.User,
		Labels:          spec.Labels,
		Tty:             false,
		NetworkDisabled: true,
	}

	hostCfg := &container.HostConfig{
		Binds:       spec.Binds,
		NetworkMode: "none",
		SecurityOpt: []string{"no-new-privileges"},
		CapDrop:     []string{"ALL"},
		Resources: container.Resources{
			Memory:     spec.Limits.MemoryBytes,
			MemorySwap: spec.Limits.MemoryBytes, // no swap
			CPUPeriod:  cpuPeriod,
			CPUQuota:   int64(spec.Limits.CPUs * cpuPeriod),
			PidsLimit:  pidsLimit,
		},
	}

	return cfg, hostCfg
}
