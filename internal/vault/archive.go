package vault

// ArchiveCodec creates and extracts backup archives of one format.
type ArchiveCodec interface {
	// Extension is the file name suffix of archives in this format, including the dot.
	Extension() string

	// Create starts a new archive that becomes visible at path only after Close succeeds.
	Create(path string) (ArchiveWriter, error)

	// Extract unpacks every entry of the archive into destDir, overwriting existing files.
	// Entries that would land outside destDir are rejected.
	Extract(archivePath, destDir string) error
}

// ArchiveWriter accumulates entries for one archive.
type ArchiveWriter interface {
	// SetCompression toggles compression for entries added after the call.
	SetCompression(enabled bool)

	// AddFile copies the file at absPath into the archive under name.
	AddFile(absPath, name string) error

	// AddDir records an empty directory entry. name ends with "/".
	AddDir(name string) error

	// Close finalizes the archive and moves it into place.
	Close() error

	// Abort discards everything written so far. Safe to call after a failed Close.
	Abort() error
}
