//go:build !unix

package fs

import (
	"io/fs"
	"path/filepath"
)

// fileKey identifies a directory by its symlink-free absolute path.
type fileKey string

func keyOf(p string, _ fs.FileInfo) (fileKey, bool) {
	resolved, err := filepath.EvalSymlinks(p)
	if err != nil {
		return "", false
	}
	abs, err := filepath.Abs(resolved)
	if err != nil {
		return "", false
	}
	return fileKey(abs), true
}
