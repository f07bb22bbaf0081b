package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"vault-go/internal/archive"
	"vault-go/internal/database"
	"vault-go/internal/fs"
	"vault-go/internal/vault"
)

// Vault bundles a fully wired vault over a temporary directory and an
// in-memory database.
type Vault struct {
	Root      string
	DB        *database.SQLDatabase
	FS        *fs.OSFilesystemManager
	Clock     *StubClock
	IDs       *StubIDGenerator
	Manager   *vault.Manager
	Backups   *vault.BackupEngine
	Analytics *vault.Analytics
}

// NewTestVault wires a vault with the given settings. A nil observer is allowed.
func NewTestVault(t *testing.T, settings vault.Settings, observer vault.Observer) *Vault {
	t.Helper()
	return NewTestVaultWithDB(t, NewTestDatabase(t), settings, observer)
}

// NewTestVaultWithDB is NewTestVault over a caller-provided database.
func NewTestVaultWithDB(t *testing.T, db *database.SQLDatabase, settings vault.Settings, observer vault.Observer) *Vault {
	t.Helper()

	root := t.TempDir()
	resolver, err := fs.NewBaseResolver(root)
	if err != nil {
		t.Fatalf("failed to create resolver: %v", err)
	}
	codec, err := archive.NewCodecFromConfig("zip")
	if err != nil {
		t.Fatalf("failed to create codec: %v", err)
	}

	fsmgr := fs.NewOSFilesystemManager()
	clock := FixedClock()
	ids := NewStubIDGenerator()
	logger := vault.NewNopLogger()

	manager := vault.NewManager(db, fsmgr, resolver, settings, logger, clock, ids, observer)
	return &Vault{
		Root:      root,
		DB:        db,
		FS:        fsmgr,
		Clock:     clock,
		IDs:       ids,
		Manager:   manager,
		Backups:   vault.NewBackupEngine(manager, db, fsmgr, resolver, codec, logger, clock, ids, observer),
		Analytics: vault.NewAnalytics(db),
	}
}

// StorageDir returns the account's storage directory, creating it.
func (v *Vault) StorageDir(t *testing.T, accountID string) string {
	t.Helper()
	dir, err := v.Manager.StoragePath(accountID)
	if err != nil {
		t.Fatalf("StoragePath(%s) error = %v", accountID, err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("creating storage dir: %v", err)
	}
	return dir
}

// WriteFile writes content to rel below the account's storage directory and
// returns the absolute path.
func (v *Vault) WriteFile(t *testing.T, accountID, rel string, content []byte) string {
	t.Helper()
	p := filepath.Join(v.StorageDir(t, accountID), filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatalf("creating parent dir: %v", err)
	}
	if err := os.WriteFile(p, content, 0644); err != nil {
		t.Fatalf("writing %s: %v", rel, err)
	}
	return p
}

// Upload writes content to disk and tracks it, failing the test on error.
func (v *Vault) Upload(t *testing.T, accountID, rel string, content []byte) {
	t.Helper()
	v.WriteFile(t, accountID, rel, content)
	if err := v.Manager.TrackUpload(accountID, rel, int64(len(content)), SHA256Hex(content)); err != nil {
		t.Fatalf("TrackUpload(%s, %s) error = %v", accountID, rel, err)
	}
}
