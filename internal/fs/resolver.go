package fs

import (
	"path/filepath"

	"vault-go/internal/vault"
)

// BaseResolver resolves configured paths against a base directory.
type BaseResolver struct {
	base string
}

// NewBaseResolver creates a resolver rooted at base, made absolute.
func NewBaseResolver(base string) (*BaseResolver, error) {
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, err
	}
	return &BaseResolver{base: abs}, nil
}

// BasePath joins rel onto the base directory. Absolute paths are returned cleaned.
func (r *BaseResolver) BasePath(rel string) string {
	if filepath.IsAbs(rel) {
		return filepath.Clean(rel)
	}
	return filepath.Join(r.base, rel)
}

var _ vault.PathResolver = (*BaseResolver)(nil)
