package sandbox

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/isdmx/codebox/languages"
)

// ScratchArea is the per-execution directory mounted into the sandbox
type ScratchArea struct {
	Path string
	fs   FileSystem
}

// Remove deletes the scratch area and everything in it
func (s ScratchArea) Remove() error {
	if s.Path == "" {
		return nil
	}
	if err := s.fs.RemoveAll(s.Path); err != nil {
		return fmt.Errorf("failed to remove scratch area %s: %w", s.Path, err)
	}
	return nil
}

// Materializer stages an execution's inputs on disk
type Materializer struct {
	fs      FileSystem
	baseDir string
}

// NewMaterializer creates a Materializer rooted at baseDir. An empty baseDir
// uses the system temp directory.
func NewMaterializer(fs FileSystem, baseDir string) *Materializer {
	if fs == nil {
		fs = RealFileSystem{}
	}
	return &Materializer{fs: fs, baseDir: baseDir}
}

// Prepare creates a fresh scratch area named after execID and hands it to
// owner, the user the sandbox runs as. A zero owner leaves ownership alone.
func (m *Materializer) Prepare(execID string, owner Owner) (ScratchArea, error) {
	dir, err := m.fs.MkdirTemp(m.baseDir, ContainerPrefix+execID+"-*")
	if err != nil {
		return ScratchArea{}, fmt.Errorf("failed to create scratch area: %w", err)
	}
	// MkdirTemp creates 0700; the sandbox user may differ from ours
	if err := m.fs.Chmod(dir, DirPermission); err != nil {
		_ = m.fs.RemoveAll(dir)
		return ScratchArea{}, fmt.Errorf("failed to set scratch area permissions: %w", err)
	}
	if !owner.IsZero() {
		if err := m.fs.Chown(dir, owner.UID, owner.GID); err != nil {
			_ = m.fs.RemoveAll(dir)
			return ScratchArea{}, fmt.Errorf("failed to set scratch area owner: %w", err)
		}
	}
	return ScratchArea{Path: dir, fs: m.fs}, nil
}

// Materialize writes the transformed source, any scaffold files and the
// stdin file into dir
func (m *Materializer) Materialize(dir string, lang languages.Language, code, stdin string) error {
	source := lang.PrepareSource(code)
	if err := m.fs.WriteFile(filepath.Join(dir, lang.SourceFile), []byte(source), FilePermission); err != nil {
		return fmt.Errorf("failed to write source file: %w", err)
	}

	names := make([]string, 0, len(lang.ExtraFiles))
	for name := range lang.ExtraFiles {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := m.fs.WriteFile(filepath.Join(dir, name), []byte(lang.ExtraFiles[name]), FilePermission); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}

	input := normalizeInput(stdin)
	if err := m.fs.WriteFile(filepath.Join(dir, languages.InputFileName), []byte(input), FilePermission); err != nil {
		return fmt.Errorf("failed to write input file: %w", err)
	}

	return nil
}

func normalizeInput(stdin string) string {
	return strings.ReplaceAll(stdin, "\r\n", "\n")
}
