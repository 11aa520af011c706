package sandbox

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
)

// CreateTarFromDir packs srcDir into an uncompressed tar whose entries live
// under prefix. The container copy API expects a plain tar stream, and
// extracting it at "/" with prefix "app" recreates the scratch area at /app.
// Every entry is owned by owner so the sandbox user can write next to them.
func CreateTarFromDir(srcDir, prefix string, owner Owner) ([]byte, error) {
	var buf bytes.Buffer
	tarWriter := tar.NewWriter(&buf)

	err := filepath.Walk(srcDir, func(file string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !fi.IsDir() && !fi.Mode().IsRegular() {
			return nil
		}

		header, err := tar.FileInfoHeader(fi, "")
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(srcDir, file)
		if err != nil {
			return err
		}
		name := path.Join(prefix, filepath.ToSlash(relPath))
		if relPath == "." {
			if prefix == "" {
				return nil
			}
			name = prefix
		}
		if fi.IsDir() {
			name += "/"
		}
		header.Name = name
		// Ownership on the host means nothing inside the sandbox
		header.Uid, header.Gid = owner.UID, owner.GID
		header.Uname, header.Gname = "", ""

		if err := tarWriter.WriteHeader(header); err != nil {
			return err
		}

		if fi.IsDir() {
			return nil
		}

		data, err := os.Open(file)
		if err != nil {
			return err
		}
		defer data.Close()

		_, err = io.Copy(tarWriter, data)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to archive %s: %w", srcDir, err)
	}

	if err := tarWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish archive: %w", err)
	}

	return buf.Bytes(), nil
}
