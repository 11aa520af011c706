// Package sandbox provides secure code execution capabilities.
//
// The sandbox package implements the execution engine for running untrusted
// code in isolated containers. It stages inputs on disk, drives one
// container per execution through compile and run steps and always tears
// the container and scratch area down afterwards.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"time"
)

// Limits are the resource caps applied to one sandbox container
type Limits struct {
	MemoryBytes int64
	CPUs        float64
	PidsLimit   int64
}

// Result represents the outcome of one compile and run cycle
type Result struct {
	Stdout        string
	Stderr        string
	ExitCode      int
	CompileOutput string
	// CompileFailed is set when the compile step decided the outcome and
	// the run step never happened.
	CompileFailed bool
	RuntimeError  string
	Truncated     bool
	CompileTime   time.Duration
	RunTime       time.Duration
}

// CommandRunner defines an interface for executing system commands
type CommandRunner interface {
	RunCommand(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) (exitCode int, err error)
}

// RealCommandRunner implements CommandRunner using actual exec commands
type RealCommandRunner struct{}

// RunCommand executes the given command with arguments. A non-zero exit is
// reported through exitCode, not err.
func (RealCommandRunner) RunCommand(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	if len(args) < 1 {
		return 0, fmt.Errorf("no command provided")
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...) //nolint:gosec // Safe as this is controlled input
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return -1, ctxErr
	}
	if err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			return exitError.ExitCode(), nil
		}
		return -1, err
	}
	return 0, nil
}

// runCaptured runs a command and returns its output as strings
func runCaptured(ctx context.Context, runner CommandRunner, args []string, stdin io.Reader) (stdout, stderr string, exitCode int, err error) {
	var stdoutBuf, stderrBuf bytes.Buffer
	exitCode, err = runner.RunCommand(ctx, args, stdin, &stdoutBuf, &stderrBuf)
	return stdoutBuf.String(), stderrBuf.String(), exitCode, err
}

// FileSystem defines an interface for file system operations
type FileSystem interface {
	MkdirTemp(dir, pattern string) (string, error)
	Chmod(path string, perm os.FileMode) error
	Chown(path string, uid, gid int) error
	WriteFile(filename string, data []byte, perm os.FileMode) error
	RemoveAll(path string) error
}

// RealFileSystem implements FileSystem using actual file system operations
type RealFileSystem struct{}

func (RealFileSystem) MkdirTemp(dir, pattern string) (string, error) {
	return os.MkdirTemp(dir, pattern)
}

func (RealFileSystem) Chmod(path string, perm os.FileMode) error {
	return os.Chmod(path, perm)
}

func (RealFileSystem) Chown(path string, uid, gid int) error {
	return os.Chown(path, uid, gid)
}

func (RealFileSystem) WriteFile(filename string, data []byte, perm os.FileMode) error {
	return os.WriteFile(filename, data, perm)
}

func (RealFileSystem) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

// File permission and size constants
const (
	DirPermission  = 0o755
	FilePermission = 0o644
	BytesPerKB     = 1024
	BytesPerMB     = 1024 * 1024
)

// Container naming and labelling
const (
	ContainerPrefix = "codebox-"
	LabelManaged    = "codebox.managed"
	LabelExecID     = "codebox.exec-id"
)

// nobodyID is the uid and gid of the conventional unprivileged user
const nobodyID = 65534

// Owner is the numeric user and group sandboxed processes run as. Files the
// program creates in a bind-mounted scratch area belong to this user on the
// host too.
type Owner struct {
	UID int
	GID int
}

// HostOwner returns the user of the current process, so that sandbox output
// stays removable by us. When we run as root the sandbox gets nobody instead.
func HostOwner() Owner {
	uid, gid := os.Getuid(), os.Getgid()
	if uid <= 0 {
		return Owner{UID: nobodyID, GID: nobodyID}
	}
	return Owner{UID: uid, GID: gid}
}

// IsZero reports whether o is unset
func (o Owner) IsZero() bool {
	return o == Owner{}
}

// String formats o as uid:gid for the container user setting
func (o Owner) String() string {
	return strconv.Itoa(o.UID) + ":" + strconv.Itoa(o.GID)
}

// keepAliveCmd keeps the container idle so it can serve several exec calls.
var keepAliveCmd = []string{"sh", "-c", "tail -f /dev/null"}
