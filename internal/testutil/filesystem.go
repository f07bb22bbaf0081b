package testutil

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"vault-go/internal/vault"
)

// MockFile represents a file or directory in the mock filesystem.
type MockFile struct {
	Content     []byte
	IsDirectory bool
}

// MockFilesystemManager is an in-memory filesystem for testing.
// Paths are cleaned and compared as given; parents are created implicitly.
type MockFilesystemManager struct {
	mu       sync.Mutex
	files    map[string]*MockFile
	walkErrs map[string]error
}

// NewMockFilesystemManager creates a new mock filesystem.
func NewMockFilesystemManager() *MockFilesystemManager {
	return &MockFilesystemManager{
		files:    make(map[string]*MockFile),
		walkErrs: make(map[string]error),
	}
}

// AddFile adds a file and its missing parent directories.
func (m *MockFilesystemManager) AddFile(p string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = filepath.Clean(p)
	m.addParents(p)
	m.files[p] = &MockFile{Content: content}
}

// AddDirectory adds a directory and its missing parents.
func (m *MockFilesystemManager) AddDirectory(p string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mkdirAll(filepath.Clean(p))
}

// FailWalk makes Walk yield err when it reaches p.
func (m *MockFilesystemManager) FailWalk(p string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.walkErrs[filepath.Clean(p)] = err
}

func (m *MockFilesystemManager) addParents(p string) {
	if dir := filepath.Dir(p); dir != p {
		m.mkdirAll(dir)
	}
}

func (m *MockFilesystemManager) mkdirAll(p string) {
	for {
		if f, ok := m.files[p]; ok && f.IsDirectory {
			return
		}
		m.files[p] = &MockFile{IsDirectory: true}
		parent := filepath.Dir(p)
		if parent == p {
			return
		}
		p = parent
	}
}

func (m *MockFilesystemManager) Exists(p string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[filepath.Clean(p)]
	return ok
}

func (m *MockFilesystemManager) IsDir(p string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[filepath.Clean(p)]
	return ok && f.IsDirectory
}

func (m *MockFilesystemManager) MkdirAll(p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = filepath.Clean(p)
	if f, ok := m.files[p]; ok && !f.IsDirectory {
		return fmt.Errorf("not a directory: %s", p)
	}
	m.mkdirAll(p)
	return nil
}

func (m *MockFilesystemManager) Remove(p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = filepath.Clean(p)
	f, ok := m.files[p]
	if !ok {
		return nil
	}
	if f.IsDirectory && len(m.children(p)) > 0 {
		return fmt.Errorf("directory not empty: %s", p)
	}
	delete(m.files, p)
	return nil
}

func (m *MockFilesystemManager) RemoveAll(p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = filepath.Clean(p)
	prefix := p + string(filepath.Separator)
	for name := range m.files {
		if name == p || strings.HasPrefix(name, prefix) {
			delete(m.files, name)
		}
	}
	return nil
}

func (m *MockFilesystemManager) Size(p string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[filepath.Clean(p)]
	if !ok {
		return 0, fmt.Errorf("file not found: %s", p)
	}
	if f.IsDirectory {
		return 0, nil
	}
	return int64(len(f.Content)), nil
}

func (m *MockFilesystemManager) Open(p string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[filepath.Clean(p)]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", p)
	}
	if f.IsDirectory {
		return nil, fmt.Errorf("cannot open directory: %s", p)
	}
	return io.NopCloser(bytes.NewReader(f.Content)), nil
}

// children returns the sorted direct children of dir. Caller holds mu.
func (m *MockFilesystemManager) CreateExclusive(p string) (io.WriteCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = filepath.Clean(p)
	if _, ok := m.files[p]; ok {
		return nil, fmt.Errorf("creating %s: %w", p, fs.ErrExist)
	}
	m.addParents(p)
	m.files[p] = &MockFile{}
	return &mockWriter{m: m, path: p}, nil
}

// mockWriter stores its buffer as the file content on Close.
type mockWriter struct {
	m    *MockFilesystemManager
	path string
	buf  bytes.Buffer
}

func (w *mockWriter) Write(b []byte) (int, error) { return w.buf.Write(b) }

func (w *mockWriter) Close() error {
	w.m.mu.Lock()
	defer w.m.mu.Unlock()
	if f, ok := w.m.files[w.path]; ok {
		f.Content = w.buf.Bytes()
	}
	return nil
}

func (m *MockFilesystemManager) children(dir string) []string {
	var names []string
	for name := range m.files {
		if name != dir && filepath.Dir(name) == dir {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

func (m *MockFilesystemManager) Walk(root string) iter.Seq2[vault.Entry, error] {
	return func(yield func(vault.Entry, error) bool) {
		root := filepath.Clean(root)

		// Snapshot so the caller may modify the tree while iterating.
		m.mu.Lock()
		var entries []vault.Entry
		var errs []error
		var visit func(dir, rel string)
		visit = func(dir, rel string) {
			for _, child := range m.children(dir) {
				childRel := path.Join(rel, filepath.Base(child))
				if err, ok := m.walkErrs[child]; ok {
					entries = append(entries, vault.Entry{})
					errs = append(errs, err)
					continue
				}
				f := m.files[child]
				entries = append(entries, vault.Entry{
					RelPath: childRel,
					AbsPath: child,
					IsDir:   f.IsDirectory,
					Size:    int64(len(f.Content)),
				})
				errs = append(errs, nil)
				if f.IsDirectory {
					visit(child, childRel)
				}
			}
		}
		visit(root, "")
		m.mu.Unlock()

		for i, e := range entries {
			if !yield(e, errs[i]) {
				return
			}
		}
	}
}

// Compile-time check
var _ vault.FilesystemManager = (*MockFilesystemManager)(nil)
