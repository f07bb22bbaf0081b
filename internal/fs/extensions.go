package fs

import (
	"path/filepath"
	"strings"
)

// ExtensionMatcher decides whether an uploaded file name is acceptable.
// A "*" pattern allows every name. Patterns without glob characters are
// extensions ("jpg" or ".jpg"); anything else is a glob matched against the basename.
// Matching is case-insensitive.
type ExtensionMatcher struct {
	allowAll   bool
	extensions map[string]bool
	globs      []string
}

// NewExtensionMatcher creates an ExtensionMatcher from raw patterns.
// Blank patterns and patterns starting with '#' are skipped. No patterns allows everything.
func NewExtensionMatcher(rawPatterns []string) *ExtensionMatcher {
	m := &ExtensionMatcher{extensions: map[string]bool{}}
	for _, raw := range rawPatterns {
		raw = strings.ToLower(strings.TrimSpace(raw))
		switch {
		case raw == "" || strings.HasPrefix(raw, "#"):
			continue
		case raw == "*":
			m.allowAll = true
		case strings.ContainsAny(raw, "*?["):
			m.globs = append(m.globs, raw)
		default:
			m.extensions[strings.TrimPrefix(raw, ".")] = true
		}
	}
	if len(m.extensions) == 0 && len(m.globs) == 0 {
		m.allowAll = true
	}
	return m
}

// Allowed reports whether name may be uploaded.
func (m *ExtensionMatcher) Allowed(name string) bool {
	if m.allowAll {
		return true
	}

	basename := strings.ToLower(filepath.Base(filepath.ToSlash(name)))
	if ext := strings.TrimPrefix(filepath.Ext(basename), "."); ext != "" && m.extensions[ext] {
		return true
	}

	for _, g := range m.globs {
		matched, err := filepath.Match(g, basename)
		if err != nil {
			// Bad pattern, skip rather than reject everything.
			continue
		}
		if matched {
			return true
		}
	}
	return false
}
