package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRealCommandRunner(t *testing.T) {
	runner := RealCommandRunner{}
	ctx := context.Background()

	t.Run("CapturesOutputAndExitCode", func(t *testing.T) {
		stdout, stderr, code, err := runCaptured(ctx, runner, []string{"sh", "-c", "echo out; echo err >&2; exit 3"}, nil)
		require.NoError(t, err)
		assert.Equal(t, 3, code)
		assert.Equal(t, "out\n", stdout)
		assert.Equal(t, "err\n", stderr)
	})

	t.Run("PassesStdin", func(t *testing.T) {
		stdout, _, code, err := runCaptured(ctx, runner, []string{"cat"}, strings.NewReader("piped"))
		require.NoError(t, err)
		assert.Equal(t, 0, code)
		assert.Equal(t, "piped", stdout)
	})

	t.Run("NoCommand", func(t *testing.T) {
		_, _, _, err := runCaptured(ctx, runner, nil, nil)
		require.Error(t, err)
	})

	t.Run("MissingBinary", func(t *testing.T) {
		_, _, code, err := runCaptured(ctx, runner, []string{"codebox-definitely-missing-binary"}, nil)
		require.Error(t, err)
		assert.Equal(t, -1, code)
	})

	t.Run("CancelledContext", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, _, _, err := runCaptured(cancelled, runner, []string{"sleep", "5"}, nil)
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestRealFileSystem(t *testing.T) {
	fs := RealFileSystem{}
	base := t.TempDir()

	dir, err := fs.MkdirTemp(base, "codebox-test-*")
	require.NoError(t, err)
	require.NoError(t, fs.Chmod(dir, DirPermission))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(DirPermission), info.Mode().Perm())

	file := filepath.Join(dir, "file.txt")
	require.NoError(t, fs.WriteFile(file, []byte("content"), FilePermission))

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))

	require.NoError(t, fs.RemoveAll(dir))
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestOwner(t *testing.T) {
	assert.Equal(t, "1000:998", Owner{UID: 1000, GID: 998}.String())
	assert.True(t, Owner{}.IsZero())

	owner := HostOwner()
	assert.False(t, owner.IsZero())
	if os.Getuid() <= 0 {
		assert.Equal(t, Owner{UID: nobodyID, GID: nobodyID}, owner, "root never leaks into the sandbox")
	} else {
		assert.Equal(t, Owner{UID: os.Getuid(), GID: os.Getgid()}, owner)
	}
}
