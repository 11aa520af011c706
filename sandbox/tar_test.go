package sandbox

import (
	"archive/tar"
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testOwner = Owner{UID: 1000, GID: 1000}

func readTar(t *testing.T, data []byte) map[string]string {
	t.Helper()
	entries := make(map[string]string)
	tr := tar.NewReader(bytes.NewReader(data))
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		content, err := io.ReadAll(tr)
		require.NoError(t, err)
		entries[hdr.Name] = string(content)
		assert.Equal(t, testOwner.UID, hdr.Uid)
		assert.Equal(t, testOwner.GID, hdr.Gid)
		assert.Empty(t, hdr.Uname)
	}
	return entries
}

func TestCreateTarFromDir(t *testing.T) {
	t.Run("PrefixedEntries", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "code.py"), []byte("print(1)"), FilePermission))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "input.txt"), []byte("1\n"), FilePermission))
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "out"), DirPermission))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "out", "project"), []byte("bin"), FilePermission))

		data, err := CreateTarFromDir(dir, "app", testOwner)
		require.NoError(t, err)

		entries := readTar(t, data)
		assert.Equal(t, map[string]string{
			"app/":            "",
			"app/code.py":     "print(1)",
			"app/input.txt":   "1\n",
			"app/out/":        "",
			"app/out/project": "bin",
		}, entries)
	})

	t.Run("NoPrefix", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), FilePermission))

		data, err := CreateTarFromDir(dir, "", testOwner)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"a.txt": "a"}, readTar(t, data))
	})

	t.Run("EmptyDirectory", func(t *testing.T) {
		data, err := CreateTarFromDir(t.TempDir(), "app", testOwner)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"app/": ""}, readTar(t, data))
	})

	t.Run("MissingDirectory", func(t *testing.T) {
		_, err := CreateTarFromDir(filepath.Join(t.TempDir(), "missing"), "app", testOwner)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to archive")
	})
}
