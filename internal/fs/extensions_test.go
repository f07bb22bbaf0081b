package fs

import "testing"

func TestNewExtensionMatcher(t *testing.T) {
	t.Run("skips blank lines and comments", func(t *testing.T) {
		t.Parallel()
		m := NewExtensionMatcher([]string{"", "  ", "# comment", "jpg"})
		if len(m.extensions) != 1 || !m.extensions["jpg"] {
			t.Fatalf("extensions = %v, want [jpg]", m.extensions)
		}
		if m.allowAll {
			t.Error("allowAll should be false")
		}
	})

	t.Run("no patterns allows everything", func(t *testing.T) {
		t.Parallel()
		if !NewExtensionMatcher(nil).allowAll {
			t.Error("empty matcher should allow all")
		}
	})
}

func TestExtensionMatcher_Allowed(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		file     string
		want     bool
	}{
		{"wildcard allows anything", []string{"*"}, "archive.exe", true},
		{"bare extension", []string{"jpg", "png"}, "photo.jpg", true},
		{"dotted extension", []string{".pdf"}, "docs/report.pdf", true},
		{"case insensitive", []string{"JPG"}, "PHOTO.Jpg", true},
		{"other extension rejected", []string{"jpg"}, "photo.gif", false},
		{"no extension rejected", []string{"jpg"}, "Makefile", false},
		{"glob on basename", []string{"report-*.csv"}, "out/report-2025.csv", true},
		{"glob mismatch", []string{"report-*.csv"}, "summary.csv", false},
		{"bad glob skipped", []string{"[", "txt"}, "notes.txt", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewExtensionMatcher(tt.patterns)
			if got := m.Allowed(tt.file); got != tt.want {
				t.Errorf("Allowed(%q) = %v, want %v", tt.file, got, tt.want)
			}
		})
	}
}
