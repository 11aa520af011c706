package sandbox

import (
	"context"
	"errors"
	"io"
	"strings"
)

// ErrContainerNotRunning is returned when an exec targets a container that
// has stopped, for example after the kernel OOM killer took its init process.
var ErrContainerNotRunning = errors.New("container is not running")

// ContainerSpec describes the sandbox container to create
type ContainerSpec struct {
	Name       string
	Image      string
	Cmd        []string
	WorkingDir string
	Env        []string
	// User is the uid:gid the container's processes run as
	User string
	// Binds are host:container bind mounts. Empty in copy mount mode.
	Binds  []string
	Labels map[string]string
	Limits Limits
}

// ExecSpec describes one command run inside a started container
type ExecSpec struct {
	Cmd        []string
	WorkingDir string
	Env        []string
	// Stdin is attached to the command when non-nil and closed after it
	// has been fully written.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Engine is the control connection to the container subsystem. One engine
// is shared by all requests; every call addresses its own container, so no
// locking is needed.
type Engine interface {
	EnsureImage(ctx context.Context, image string) error
	Create(ctx context.Context, spec ContainerSpec) (string, error)
	CopyTo(ctx context.Context, id, dstPath string, archive io.Reader) error
	Start(ctx context.Context, id string) error
	Exec(ctx context.Context, id string, spec ExecSpec) (exitCode int, err error)
	Remove(ctx context.Context, id string) error
	RemoveStale(ctx context.Context) (int, error)
	Close() error
}

func isNotRunningMessage(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "is not running") || strings.Contains(msg, "no such container")
}

func managedLabelFilter() string {
	return LabelManaged + "=true"
}
