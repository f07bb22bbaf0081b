package archive

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"

	"vault-go/internal/vault"
)

// ZipCodec writes deflate-compressed zip archives.
type ZipCodec struct {
	level int
}

// NewZipCodec creates a zip codec using the given flate level for compressed entries.
func NewZipCodec(level int) *ZipCodec {
	return &ZipCodec{level: level}
}

func (c *ZipCodec) Extension() string { return ".zip" }

// Create starts a zip archive that appears at path once Close succeeds.
func (c *ZipCodec) Create(path string) (vault.ArchiveWriter, error) {
	pf, err := createPending(path)
	if err != nil {
		return nil, err
	}

	zw := zip.NewWriter(pf.f)
	level := c.level
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, level)
	})

	return &zipWriter{pending: pf, zw: zw, method: zip.Deflate}, nil
}

// Extract unpacks every entry into destDir, overwriting existing files.
func (c *ZipCodec) Extract(archivePath, destDir string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open zip archive: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		target, err := safeJoin(destDir, f.Name)
		if err != nil {
			return err
		}

		if strings.HasSuffix(f.Name, "/") || f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("creating directory %s: %w", f.Name, err)
			}
			continue
		}
		if f.Mode()&os.ModeSymlink != 0 {
			continue
		}

		if err := extractZipFile(f, target); err != nil {
			return fmt.Errorf("extracting %s: %w", f.Name, err)
		}
	}
	return nil
}

func extractZipFile(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	return writeEntry(target, rc, f.Mode())
}

type zipWriter struct {
	pending *pendingFile
	zw      *zip.Writer
	method  uint16
}

func (w *zipWriter) SetCompression(enabled bool) {
	if enabled {
		w.method = zip.Deflate
	} else {
		w.method = zip.Store
	}
}

func (w *zipWriter) AddFile(absPath, name string) error {
	name, err := entryName(name)
	if err != nil {
		return err
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("stat file: %w", err)
	}

	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("building zip header: %w", err)
	}
	hdr.Name = name
	hdr.Method = w.method

	dst, err := w.zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("adding zip entry: %w", err)
	}
	return copyFile(dst, absPath)
}

func (w *zipWriter) AddDir(name string) error {
	name, err := entryName(name)
	if err != nil {
		return err
	}
	if !strings.HasSuffix(name, "/") {
		name += "/"
	}
	hdr := &zip.FileHeader{Name: name, Method: zip.Store}
	hdr.SetMode(os.ModeDir | 0755)
	if _, err := w.zw.CreateHeader(hdr); err != nil {
		return fmt.Errorf("adding zip directory: %w", err)
	}
	return nil
}

func (w *zipWriter) Close() error {
	if err := w.zw.Close(); err != nil {
		return fmt.Errorf("finalizing zip: %w", err)
	}
	return w.pending.commit()
}

func (w *zipWriter) Abort() error {
	return w.pending.discard()
}

var _ vault.ArchiveCodec = (*ZipCodec)(nil)
