package sandbox

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
)

// mockResult is the canned outcome of one command
type mockResult struct {
	stdout   string
	stderr   string
	exitCode int
	err      error
}

// MockCommandRunner implements CommandRunner for testing. Results are keyed
// by the space-joined command line; unmatched commands get defaultResult.
type MockCommandRunner struct {
	mu             sync.Mutex
	commandResults map[string]mockResult
	defaultResult  mockResult
	calls          []string
	stdin          map[string]string
}

func (m *MockCommandRunner) RunCommand(_ context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	cmdKey := strings.Join(args, " ")

	var input string
	if stdin != nil {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return -1, err
		}
		input = string(data)
	}

	m.mu.Lock()
	m.calls = append(m.calls, cmdKey)
	if stdin != nil {
		if m.stdin == nil {
			m.stdin = make(map[string]string)
		}
		m.stdin[cmdKey] = input
	}
	result, exists := m.commandResults[cmdKey]
	if !exists {
		result = m.defaultResult
	}
	m.mu.Unlock()

	if stdout != nil {
		_, _ = io.WriteString(stdout, result.stdout)
	}
	if stderr != nil {
		_, _ = io.WriteString(stderr, result.stderr)
	}
	return result.exitCode, result.err
}

func (m *MockCommandRunner) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// MockFileSystem implements FileSystem for testing
type MockFileSystem struct {
	mkdirTempResult string
	mkdirTempErr    error
	chmodErr        error
	chownErr        error
	chowned         map[string]Owner
	writeFileErrors map[string]error
	writeFileData   map[string][]byte
	removed         []string
}

func (m *MockFileSystem) MkdirTemp(dir, pattern string) (string, error) {
	if m.mkdirTempErr != nil {
		return "", m.mkdirTempErr
	}
	if m.mkdirTempResult != "" {
		return m.mkdirTempResult, nil
	}
	return dir + "/" + strings.ReplaceAll(pattern, "*", "0001"), nil
}

func (m *MockFileSystem) Chmod(string, os.FileMode) error {
	return m.chmodErr
}

func (m *MockFileSystem) Chown(path string, uid, gid int) error {
	if m.chownErr != nil {
		return m.chownErr
	}
	if m.chowned == nil {
		m.chowned = make(map[string]Owner)
	}
	m.chowned[path] = Owner{UID: uid, GID: gid}
	return nil
}

func (m *MockFileSystem) WriteFile(filename string, data []byte, _ os.FileMode) error {
	if err, exists := m.writeFileErrors[filename]; exists {
		return err
	}
	if m.writeFileData == nil {
		m.writeFileData = make(map[string][]byte)
	}
	m.writeFileData[filename] = data
	return nil
}

func (m *MockFileSystem) RemoveAll(path string) error {
	m.removed = append(m.removed, path)
	return nil
}
