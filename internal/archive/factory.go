package archive

import (
	"fmt"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"

	"vault-go/internal/vault"
)

// Codecs creates archives in one format and extracts any known format,
// chosen by file extension.
type Codecs struct {
	primary vault.ArchiveCodec
	all     []vault.ArchiveCodec
}

// NewCodecFromConfig returns a codec set that writes the configured format.
// An empty format selects zip.
func NewCodecFromConfig(format string) (*Codecs, error) {
	zipCodec := NewZipCodec(flate.DefaultCompression)
	tarCodec := NewTarZstdCodec(zstd.SpeedDefault)

	c := &Codecs{all: []vault.ArchiveCodec{zipCodec, tarCodec}}
	switch format {
	case "", "zip":
		c.primary = zipCodec
	case "tar.zst", "tar.zstd":
		c.primary = tarCodec
	default:
		return nil, fmt.Errorf("unknown archive format: %s", format)
	}
	return c, nil
}

func (c *Codecs) Extension() string { return c.primary.Extension() }

func (c *Codecs) Create(path string) (vault.ArchiveWriter, error) {
	return c.primary.Create(path)
}

// Extract picks the codec matching the archive's extension, defaulting to the primary one.
func (c *Codecs) Extract(archivePath, destDir string) error {
	for _, codec := range c.all {
		if strings.HasSuffix(archivePath, codec.Extension()) {
			return codec.Extract(archivePath, destDir)
		}
	}
	return c.primary.Extract(archivePath, destDir)
}

var _ vault.ArchiveCodec = (*Codecs)(nil)
