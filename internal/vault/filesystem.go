package vault

import (
	"io"
	"iter"
)

// Entry is one node yielded by FilesystemManager.Walk.
type Entry struct {
	RelPath string // slash-separated, relative to the walk root
	AbsPath string
	IsDir   bool
	Size    int64 // zero for directories
}

// FilesystemManager abstracts the storage tree so the core can be tested without touching disk.
type FilesystemManager interface {
	Exists(path string) bool
	IsDir(path string) bool
	MkdirAll(path string) error

	// Remove deletes a single file. A missing file is not an error.
	Remove(path string) error

	// RemoveAll deletes path and everything below it. A missing path is not an error.
	RemoveAll(path string) error

	Size(path string) (int64, error)
	Open(path string) (io.ReadCloser, error)

	// CreateExclusive creates a new file for writing. It fails with an error
	// matching fs.ErrExist when path already exists.
	CreateExclusive(path string) (io.WriteCloser, error)

	// Walk lazily yields every directory and regular file below root in pre-order,
	// depth-first, with siblings sorted by name. The root itself is not yielded.
	// Symlinked directories already visited on the current walk are skipped.
	Walk(root string) iter.Seq2[Entry, error]
}

// PathResolver turns configured relative roots into absolute base paths.
type PathResolver interface {
	BasePath(rel string) string
}
