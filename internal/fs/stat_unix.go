//go:build unix

package fs

import (
	"io/fs"
	"syscall"
)

// fileKey identifies a directory independently of the path used to reach it.
type fileKey struct {
	dev uint64
	ino uint64
}

// keyOf extracts device and inode from a FileInfo.
// Returns false for FileInfo values without *syscall.Stat_t, e.g. from mock filesystems.
func keyOf(_ string, info fs.FileInfo) (fileKey, bool) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return fileKey{}, false
	}
	return fileKey{dev: uint64(stat.Dev), ino: uint64(stat.Ino)}, true
}
