// Package sandboxtest provides an in-memory sandbox.Engine for tests.
package sandboxtest

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/isdmx/codebox/sandbox"
)

var _ sandbox.Engine = (*Engine)(nil)

// ExecFunc decides the outcome of one exec call
type ExecFunc func(ctx context.Context, id string, spec sandbox.ExecSpec) (int, error)

// ExecCall records one exec call
type ExecCall struct {
	ContainerID string
	Cmd         []string
	HasStdin    bool
}

// Engine is a fake sandbox.Engine. Containers only exist in memory; exec
// behaviour comes from OnExec, which defaults to a successful silent run.
type Engine struct {
	OnExec ExecFunc

	EnsureImageErr error
	CreateErr      error
	CopyErr        error
	StartErr       error
	RemoveErr      error

	mu       sync.Mutex
	nextID   int
	specs    map[string]sandbox.ContainerSpec
	live     map[string]bool
	created  []string
	removed  []string
	pulled   []string
	execs    []ExecCall
	archives map[string][]byte
}

// NewEngine creates an empty fake engine
func NewEngine() *Engine {
	return &Engine{
		specs:    make(map[string]sandbox.ContainerSpec),
		live:     make(map[string]bool),
		archives: make(map[string][]byte),
	}
}

// Reply returns an ExecFunc that writes fixed output and exits with code
func Reply(stdout, stderr string, code int) ExecFunc {
	return func(_ context.Context, _ string, spec sandbox.ExecSpec) (int, error) {
		if spec.Stdout != nil {
			_, _ = io.WriteString(spec.Stdout, stdout)
		}
		if spec.Stderr != nil {
			_, _ = io.WriteString(spec.Stderr, stderr)
		}
		return code, nil
	}
}

func (e *Engine) EnsureImage(_ context.Context, image string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pulled = append(e.pulled, image)
	return e.EnsureImageErr
}

func (e *Engine) Create(_ context.Context, spec sandbox.ContainerSpec) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.CreateErr != nil {
		return "", e.CreateErr
	}
	e.nextID++
	id := fmt.Sprintf("fake-%04d", e.nextID)
	e.specs[id] = spec
	e.live[id] = true
	e.created = append(e.created, id)
	return id, nil
}

func (e *Engine) CopyTo(_ context.Context, id, _ string, archive io.Reader) error {
	if e.CopyErr != nil {
		return e.CopyErr
	}
	data, err := io.ReadAll(archive)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.archives[id] = data
	return nil
}

func (e *Engine) Start(_ context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.live[id] {
		return fmt.Errorf("no such container: %s", id)
	}
	return e.StartErr
}

func (e *Engine) Exec(ctx context.Context, id string, spec sandbox.ExecSpec) (int, error) {
	e.mu.Lock()
	e.execs = append(e.execs, ExecCall{ContainerID: id, Cmd: spec.Cmd, HasStdin: spec.Stdin != nil})
	alive := e.live[id]
	fn := e.OnExec
	e.mu.Unlock()

	if !alive {
		return -1, sandbox.ErrContainerNotRunning
	}
	if fn == nil {
		return 0, nil
	}
	return fn(ctx, id, spec)
}

func (e *Engine) Remove(_ context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.removed = append(e.removed, id)
	if e.RemoveErr != nil {
		return e.RemoveErr
	}
	delete(e.live, id)
	return nil
}

func (e *Engine) RemoveStale(ctx context.Context) (int, error) {
	e.mu.Lock()
	ids := make([]string, 0, len(e.live))
	for id := range e.live {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	for _, id := range ids {
		if err := e.Remove(ctx, id); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

func (*Engine) Close() error {
	return nil
}

// Spec returns the spec the container was created with
func (e *Engine) Spec(id string) sandbox.ContainerSpec {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.specs[id]
}

// Created returns the ids of every container created so far
func (e *Engine) Created() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.created...)
}

// Removed returns the ids passed to Remove
func (e *Engine) Removed() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.removed...)
}

// Pulled returns the images passed to EnsureImage
func (e *Engine) Pulled() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.pulled...)
}

// Execs returns every exec call in order
func (e *Engine) Execs() []ExecCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]ExecCall(nil), e.execs...)
}

// Archive returns the tar copied into the container, if any
func (e *Engine) Archive(id string) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.archives[id]
}

// Live returns the number of containers not yet removed
func (e *Engine) Live() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.live)
}

// ScratchDir returns the host directory bind-mounted into the container, or
// "" when the container was created without a bind
func (e *Engine) ScratchDir(id string) string {
	spec := e.Spec(id)
	if len(spec.Binds) == 0 {
		return ""
	}
	host, _, _ := strings.Cut(spec.Binds[0], ":")
	return host
}
