package fs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path"
	"path/filepath"

	"vault-go/internal/vault"
)

// OSFilesystemManager is the real filesystem implementation of vault.FilesystemManager.
type OSFilesystemManager struct{}

// NewOSFilesystemManager creates a new filesystem manager that operates on the real filesystem.
func NewOSFilesystemManager() *OSFilesystemManager {
	return &OSFilesystemManager{}
}

func (m *OSFilesystemManager) Exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

func (m *OSFilesystemManager) IsDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}

func (m *OSFilesystemManager) MkdirAll(p string) error {
	if err := os.MkdirAll(p, 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	return nil
}

func (m *OSFilesystemManager) Remove(p string) error {
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing file: %w", err)
	}
	return nil
}

func (m *OSFilesystemManager) RemoveAll(p string) error {
	if err := os.RemoveAll(p); err != nil {
		return fmt.Errorf("removing directory: %w", err)
	}
	return nil
}

func (m *OSFilesystemManager) Size(p string) (int64, error) {
	info, err := os.Stat(p)
	if err != nil {
		return 0, fmt.Errorf("stat path: %w", err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("path is a directory: %s", p)
	}
	return info.Size(), nil
}

// Open opens a file for reading.
func (m *OSFilesystemManager) Open(p string) (io.ReadCloser, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("stat path: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("cannot open directory as file: %s", p)
	}
	return os.Open(p)
}

// CreateExclusive creates p with O_EXCL, so concurrent callers cannot both own it.
func (m *OSFilesystemManager) CreateExclusive(p string) (io.WriteCloser, error) {
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}
	return f, nil
}

// Walk yields the tree below root in pre-order with siblings sorted by name.
// Symlinks are followed; a directory already visited on this walk is skipped,
// which breaks symlink cycles. Dangling symlinks and special files are ignored.
func (m *OSFilesystemManager) Walk(root string) iter.Seq2[vault.Entry, error] {
	return func(yield func(vault.Entry, error) bool) {
		info, err := os.Stat(root)
		if err != nil {
			yield(vault.Entry{}, fmt.Errorf("stat root: %w", err))
			return
		}
		if !info.IsDir() {
			yield(vault.Entry{}, fmt.Errorf("walk root is not a directory: %s", root))
			return
		}

		visited := map[fileKey]bool{}
		if key, ok := keyOf(root, info); ok {
			visited[key] = true
		}
		walkDir(root, "", visited, yield)
	}
}

// walkDir returns false once the consumer stops iterating.
func walkDir(absDir, relDir string, visited map[fileKey]bool, yield func(vault.Entry, error) bool) bool {
	entries, err := os.ReadDir(absDir)
	if err != nil {
		return yield(vault.Entry{}, fmt.Errorf("reading directory %s: %w", absDir, err))
	}

	for _, de := range entries {
		abs := filepath.Join(absDir, de.Name())
		rel := path.Join(relDir, de.Name())

		info, err := os.Stat(abs)
		if err != nil {
			if de.Type()&fs.ModeSymlink != 0 && errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if !yield(vault.Entry{}, fmt.Errorf("stat %s: %w", abs, err)) {
				return false
			}
			continue
		}

		switch {
		case info.IsDir():
			if key, ok := keyOf(abs, info); ok {
				if visited[key] {
					continue
				}
				visited[key] = true
			}
			if !yield(vault.Entry{RelPath: rel, AbsPath: abs, IsDir: true}, nil) {
				return false
			}
			if !walkDir(abs, rel, visited, yield) {
				return false
			}
		case info.Mode().IsRegular():
			if !yield(vault.Entry{RelPath: rel, AbsPath: abs, Size: info.Size()}, nil) {
				return false
			}
		}
	}
	return true
}

// Compile-time check that OSFilesystemManager implements vault.FilesystemManager interface
var _ vault.FilesystemManager = (*OSFilesystemManager)(nil)
