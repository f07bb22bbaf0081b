package archive

import (
	"archive/tar"
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"

	"vault-go/internal/vault"
)

// zstdMagic opens every zstd frame.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// TarZstdCodec writes tar archives compressed with zstd.
// With compression disabled the tar stream is stored as is; Extract detects both.
type TarZstdCodec struct {
	level zstd.EncoderLevel
}

// NewTarZstdCodec creates a tar+zstd codec with the given encoder level.
func NewTarZstdCodec(level zstd.EncoderLevel) *TarZstdCodec {
	return &TarZstdCodec{level: level}
}

func (c *TarZstdCodec) Extension() string { return ".tar.zst" }

func (c *TarZstdCodec) Create(path string) (vault.ArchiveWriter, error) {
	pf, err := createPending(path)
	if err != nil {
		return nil, err
	}
	return &tarWriter{pending: pf, level: c.level, compress: true}, nil
}

func (c *TarZstdCodec) Extract(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	var r io.Reader = br
	if magic, err := br.Peek(len(zstdMagic)); err == nil && bytes.Equal(magic, zstdMagic) {
		dec, err := zstd.NewReader(br)
		if err != nil {
			return fmt.Errorf("failed to open zstd stream: %w", err)
		}
		defer dec.Close()
		r = dec
	}

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading tar entry: %w", err)
		}

		target, err := safeJoin(destDir, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("creating directory %s: %w", hdr.Name, err)
			}
		case tar.TypeReg:
			if err := writeEntry(target, tr, os.FileMode(hdr.Mode)); err != nil {
				return fmt.Errorf("extracting %s: %w", hdr.Name, err)
			}
		}
	}
}

type tarWriter struct {
	pending  *pendingFile
	level    zstd.EncoderLevel
	compress bool

	// Opened on the first entry, once the compression setting is final.
	enc *zstd.Encoder
	tw  *tar.Writer
}

// SetCompression applies to the whole stream and is ignored once an entry was added.
func (w *tarWriter) SetCompression(enabled bool) {
	if w.tw == nil {
		w.compress = enabled
	}
}

func (w *tarWriter) open() error {
	if w.tw != nil {
		return nil
	}
	var out io.Writer = w.pending.f
	if w.compress {
		enc, err := zstd.NewWriter(w.pending.f, zstd.WithEncoderLevel(w.level))
		if err != nil {
			return fmt.Errorf("creating zstd encoder: %w", err)
		}
		w.enc = enc
		out = enc
	}
	w.tw = tar.NewWriter(out)
	return nil
}

func (w *tarWriter) AddFile(absPath, name string) error {
	name, err := entryName(name)
	if err != nil {
		return err
	}
	if err := w.open(); err != nil {
		return err
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("stat file: %w", err)
	}

	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Size:     info.Size(),
		Mode:     int64(info.Mode().Perm()),
		ModTime:  info.ModTime(),
		Format:   tar.FormatPAX,
	}
	if err := w.tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("adding tar entry: %w", err)
	}
	return copyFile(w.tw, absPath)
}

func (w *tarWriter) AddDir(name string) error {
	name, err := entryName(name)
	if err != nil {
		return err
	}
	if err := w.open(); err != nil {
		return err
	}
	if !strings.HasSuffix(name, "/") {
		name += "/"
	}
	hdr := &tar.Header{
		Typeflag: tar.TypeDir,
		Name:     name,
		Mode:     0755,
		Format:   tar.FormatPAX,
	}
	if err := w.tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("adding tar directory: %w", err)
	}
	return nil
}

func (w *tarWriter) Close() error {
	if err := w.open(); err != nil {
		return err
	}
	if err := w.tw.Close(); err != nil {
		return fmt.Errorf("finalizing tar: %w", err)
	}
	if w.enc != nil {
		err := w.enc.Close()
		w.enc = nil
		if err != nil {
			return fmt.Errorf("finalizing zstd stream: %w", err)
		}
	}
	return w.pending.commit()
}

func (w *tarWriter) Abort() error {
	if w.enc != nil {
		w.enc.Close()
		w.enc = nil
	}
	return w.pending.discard()
}

var _ vault.ArchiveCodec = (*TarZstdCodec)(nil)
