package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// pendingFile is an archive being written to a temp file next to its final path.
// commit renames it into place; discard removes it.
type pendingFile struct {
	f        *os.File
	tmpPath  string
	destPath string
	done     bool
}

func createPending(destPath string) (*pendingFile, error) {
	// Same directory so the rename is atomic.
	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	return &pendingFile{f: tmp, tmpPath: tmp.Name(), destPath: destPath}, nil
}

func (p *pendingFile) commit() error {
	if p.done {
		return fmt.Errorf("archive already closed: %s", p.destPath)
	}
	if err := p.f.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := p.f.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(p.tmpPath, p.destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	p.done = true
	return nil
}

func (p *pendingFile) discard() error {
	if p.done {
		return nil
	}
	p.done = true
	p.f.Close()
	if err := os.Remove(p.tmpPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove temp file: %w", err)
	}
	return nil
}

// copyFile streams the file at path into w.
func copyFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	return nil
}

// entryName validates an archive entry name and normalizes it to slash form.
func entryName(name string) (string, error) {
	name = strings.ReplaceAll(name, `\`, "/")
	if name == "" || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("invalid entry name: %q", name)
	}
	return name, nil
}

// safeJoin resolves an archive entry name below destDir, rejecting names that
// would escape it.
func safeJoin(destDir, name string) (string, error) {
	name = strings.ReplaceAll(name, `\`, "/")
	if strings.HasPrefix(name, "/") || filepath.IsAbs(name) || filepath.VolumeName(name) != "" {
		return "", fmt.Errorf("illegal absolute path in archive: %s", name)
	}
	target := filepath.Join(destDir, filepath.FromSlash(name))
	rel, err := filepath.Rel(destDir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("illegal path in archive: %s", name)
	}
	return target, nil
}

// writeEntry creates or truncates target and copies r into it.
func writeEntry(target string, r io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}
	if perm&0600 == 0 {
		perm = 0644
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm.Perm())
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("writing file: %w", err)
	}
	return f.Close()
}
