package vault_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"vault-go/internal/archive"
	"vault-go/internal/fs"
	"vault-go/internal/testutil"
	"vault-go/internal/vault"
)

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		t.Fatalf("ReadDir(%s) error = %v", dir, err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestBackupEngine_Create(t *testing.T) {
	t.Run("archives storage and records backup", func(t *testing.T) {
		obs := &recordingObserver{}
		v := testutil.NewTestVault(t, vault.DefaultSettings(), obs)
		mustAllocate(t, v.Manager, "acct-1", 1)
		v.Upload(t, "acct-1", "a.txt", []byte("alpha"))
		v.Upload(t, "acct-1", "docs/b.txt", []byte("beta"))

		path, err := v.Backups.Create("acct-1")
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		wantName := "acct-1_2025-03-10_120000.zip"
		if filepath.Base(path) != wantName {
			t.Errorf("archive name = %q, want %q", filepath.Base(path), wantName)
		}
		if filepath.Dir(path) != v.Backups.BackupDir() {
			t.Errorf("archive dir = %q, want %q", filepath.Dir(path), v.Backups.BackupDir())
		}
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("archive missing: %v", err)
		}

		backups, err := v.Backups.List("acct-1")
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(backups) != 1 {
			t.Fatalf("len(List()) = %d, want 1", len(backups))
		}
		b := backups[0]
		if b.Path != wantName || b.Size != info.Size() {
			t.Errorf("record = %+v, want path %q size %d", b, wantName, info.Size())
		}
		wantExpiry := v.Clock.Now().AddDate(0, 0, 30)
		if !b.ExpiresAt.Valid || !b.ExpiresAt.Time.Equal(wantExpiry) {
			t.Errorf("ExpiresAt = %+v, want %v", b.ExpiresAt, wantExpiry)
		}
		if obs.backups != 1 || obs.backupBytes != info.Size() {
			t.Errorf("observer = %+v", obs)
		}
	})

	t.Run("no expiry without retention", func(t *testing.T) {
		settings := vault.DefaultSettings()
		settings.BackupRetentionDays = 0
		v := testutil.NewTestVault(t, settings, nil)
		v.StorageDir(t, "acct-1")

		if _, err := v.Backups.Create("acct-1"); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		backups, _ := v.Backups.List("acct-1")
		if len(backups) != 1 || backups[0].ExpiresAt.Valid {
			t.Errorf("backups = %+v, want one without expiry", backups)
		}
	})

	t.Run("same second gets a suffix", func(t *testing.T) {
		v := testutil.NewTestVault(t, vault.DefaultSettings(), nil)
		v.WriteFile(t, "acct-1", "a.txt", []byte("alpha"))

		first, err := v.Backups.Create("acct-1")
		if err != nil {
			t.Fatal(err)
		}
		second, err := v.Backups.Create("acct-1")
		if err != nil {
			t.Fatal(err)
		}
		if first == second {
			t.Fatalf("both backups written to %s", first)
		}
		if filepath.Base(second) != "acct-1_2025-03-10_120000_1.zip" {
			t.Errorf("second name = %q", filepath.Base(second))
		}
	})

	t.Run("missing storage directory", func(t *testing.T) {
		obs := &recordingObserver{}
		v := testutil.NewTestVault(t, vault.DefaultSettings(), obs)
		mustAllocate(t, v.Manager, "acct-1", 1)

		_, err := v.Backups.Create("acct-1")
		if !errors.Is(err, vault.ErrStorageNotFound) {
			t.Fatalf("Create() error = %v, want ErrStorageNotFound", err)
		}
		if names := listDir(t, v.Backups.BackupDir()); len(names) != 0 {
			t.Errorf("backup dir contains %v, want nothing", names)
		}
		if backups, _ := v.Backups.List("acct-1"); len(backups) != 0 {
			t.Errorf("List() = %d records, want 0", len(backups))
		}
	})

	t.Run("archive failure leaves nothing behind", func(t *testing.T) {
		obs := &recordingObserver{}
		v := testutil.NewTestVault(t, vault.DefaultSettings(), obs)
		v.WriteFile(t, "acct-1", "a.txt", []byte("alpha"))

		engine := newEngineWithCodec(t, v, failingCodec{}, obs)
		_, err := engine.Create("acct-1")
		if !errors.Is(err, vault.ErrOperationFailed) {
			t.Fatalf("Create() error = %v, want ErrOperationFailed", err)
		}
		if names := listDir(t, engine.BackupDir()); len(names) != 0 {
			t.Errorf("backup dir contains %v, want nothing", names)
		}
		if backups, _ := engine.List("acct-1"); len(backups) != 0 {
			t.Errorf("List() = %d records, want 0", len(backups))
		}
		if obs.backupFailures != 1 || obs.backups != 0 {
			t.Errorf("observer = %+v", obs)
		}
	})
}

func TestBackupEngine_Restore(t *testing.T) {
	t.Run("round trip after wipe", func(t *testing.T) {
		v := testutil.NewTestVault(t, vault.DefaultSettings(), nil)
		mustAllocate(t, v.Manager, "acct-1", 1)
		v.Upload(t, "acct-1", "a.txt", []byte("alpha"))
		v.Upload(t, "acct-1", "docs/b.txt", []byte("beta!"))
		if err := os.MkdirAll(filepath.Join(v.StorageDir(t, "acct-1"), "empty"), 0755); err != nil {
			t.Fatal(err)
		}

		path, err := v.Backups.Create("acct-1")
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if err := v.Manager.WipeStorage("acct-1"); err != nil {
			t.Fatalf("WipeStorage() error = %v", err)
		}

		if err := v.Backups.Restore("acct-1", path); err != nil {
			t.Fatalf("Restore() error = %v", err)
		}

		dir := v.StorageDir(t, "acct-1")
		if got, _ := os.ReadFile(filepath.Join(dir, "docs", "b.txt")); string(got) != "beta!" {
			t.Errorf("docs/b.txt = %q, want %q", got, "beta!")
		}
		if info, err := os.Stat(filepath.Join(dir, "empty")); err != nil || !info.IsDir() {
			t.Errorf("empty directory not restored: %v", err)
		}
		if u := mustUsage(t, v.Manager, "acct-1"); u.Used != 10 {
			t.Errorf("Used = %d, want 10", u.Used)
		}
	})

	t.Run("overwrites existing files and keeps others", func(t *testing.T) {
		v := testutil.NewTestVault(t, vault.DefaultSettings(), nil)
		mustAllocate(t, v.Manager, "acct-1", 1)
		v.WriteFile(t, "acct-1", "a.txt", []byte("original"))

		path, err := v.Backups.Create("acct-1")
		if err != nil {
			t.Fatal(err)
		}
		v.WriteFile(t, "acct-1", "a.txt", []byte("changed later"))
		v.WriteFile(t, "acct-1", "new.txt", []byte("new"))

		if err := v.Backups.Restore("acct-1", filepath.Base(path)); err != nil {
			t.Fatalf("Restore(relative) error = %v", err)
		}
		dir := v.StorageDir(t, "acct-1")
		if got, _ := os.ReadFile(filepath.Join(dir, "a.txt")); string(got) != "original" {
			t.Errorf("a.txt = %q, want %q", got, "original")
		}
		if _, err := os.Stat(filepath.Join(dir, "new.txt")); err != nil {
			t.Errorf("new.txt removed by restore: %v", err)
		}
		if u := mustUsage(t, v.Manager, "acct-1"); u.Used != 11 {
			t.Errorf("Used = %d, want 11", u.Used)
		}
	})

	t.Run("into another account", func(t *testing.T) {
		v := testutil.NewTestVault(t, vault.DefaultSettings(), nil)
		mustAllocate(t, v.Manager, "acct-2", 1)
		v.WriteFile(t, "acct-1", "a.txt", []byte("alpha"))

		path, err := v.Backups.Create("acct-1")
		if err != nil {
			t.Fatal(err)
		}
		if err := v.Backups.Restore("acct-2", path); err != nil {
			t.Fatalf("Restore() error = %v", err)
		}
		if got, _ := os.ReadFile(filepath.Join(v.StorageDir(t, "acct-2"), "a.txt")); string(got) != "alpha" {
			t.Errorf("acct-2/a.txt = %q, want %q", got, "alpha")
		}
	})

	t.Run("missing archive", func(t *testing.T) {
		v := testutil.NewTestVault(t, vault.DefaultSettings(), nil)
		mustAllocate(t, v.Manager, "acct-1", 1)

		err := v.Backups.Restore("acct-1", "nope.zip")
		if !errors.Is(err, vault.ErrStorageNotFound) || !errors.Is(err, vault.ErrOperationFailed) {
			t.Errorf("Restore() error = %v, want operation error wrapping storage not found", err)
		}
	})

	t.Run("unallocated account extracts nothing", func(t *testing.T) {
		v := testutil.NewTestVault(t, vault.DefaultSettings(), nil)
		mustAllocate(t, v.Manager, "acct-1", 1)
		v.Upload(t, "acct-1", "a.txt", []byte("alpha"))

		path, err := v.Backups.Create("acct-1")
		if err != nil {
			t.Fatal(err)
		}

		err = v.Backups.Restore("acct-2", path)
		if !errors.Is(err, vault.ErrStorageNotFound) {
			t.Fatalf("Restore() error = %v, want ErrStorageNotFound", err)
		}
		storage, err := v.Manager.StoragePath("acct-2")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := os.Stat(storage); !os.IsNotExist(err) {
			t.Errorf("storage directory created for unallocated account: %v", err)
		}
	})

	t.Run("by id", func(t *testing.T) {
		v := testutil.NewTestVault(t, vault.DefaultSettings(), nil)
		mustAllocate(t, v.Manager, "acct-1", 1)
		v.Upload(t, "acct-1", "a.txt", []byte("alpha"))

		if _, err := v.Backups.Create("acct-1"); err != nil {
			t.Fatal(err)
		}
		backups, _ := v.Backups.List("acct-1")
		if err := v.Manager.WipeStorage("acct-1"); err != nil {
			t.Fatal(err)
		}

		if err := v.Backups.RestoreByID(backups[0].ID); err != nil {
			t.Fatalf("RestoreByID() error = %v", err)
		}
		if u := mustUsage(t, v.Manager, "acct-1"); u.Used != 5 {
			t.Errorf("Used = %d, want 5", u.Used)
		}

		if err := v.Backups.RestoreByID(9999); !errors.Is(err, vault.ErrStorageNotFound) {
			t.Errorf("RestoreByID(9999) error = %v, want ErrStorageNotFound", err)
		}
	})
}

func TestBackupEngine_Delete(t *testing.T) {
	obs := &recordingObserver{}
	v := testutil.NewTestVault(t, vault.DefaultSettings(), obs)
	v.WriteFile(t, "acct-1", "a.txt", []byte("alpha"))

	path, err := v.Backups.Create("acct-1")
	if err != nil {
		t.Fatal(err)
	}
	backups, _ := v.Backups.List("acct-1")

	deleted, err := v.Backups.Delete(backups[0].ID)
	if err != nil || !deleted {
		t.Fatalf("Delete() = %v, %v, want true", deleted, err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("archive still present: %v", err)
	}
	if obs.removed != 1 {
		t.Errorf("removed = %d, want 1", obs.removed)
	}

	deleted, err = v.Backups.Delete(backups[0].ID)
	if err != nil || deleted {
		t.Errorf("second Delete() = %v, %v, want false", deleted, err)
	}
}

func TestBackupEngine_Delete_MissingFile(t *testing.T) {
	v := testutil.NewTestVault(t, vault.DefaultSettings(), nil)
	v.WriteFile(t, "acct-1", "a.txt", []byte("alpha"))

	path, err := v.Backups.Create("acct-1")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	backups, _ := v.Backups.List("acct-1")

	deleted, err := v.Backups.Delete(backups[0].ID)
	if err != nil || !deleted {
		t.Errorf("Delete() = %v, %v, want record removed", deleted, err)
	}
}

func TestBackupEngine_Cleanup(t *testing.T) {
	t.Run("age and expiry are combined", func(t *testing.T) {
		settings := vault.DefaultSettings()
		settings.BackupRetentionDays = 2
		v := testutil.NewTestVault(t, settings, nil)
		v.WriteFile(t, "acct-1", "a.txt", []byte("alpha"))

		// expired after 2 days, younger than 30
		expired, err := v.Backups.Create("acct-1")
		if err != nil {
			t.Fatal(err)
		}
		v.Clock.AdvanceDays(3)
		fresh, err := v.Backups.Create("acct-1")
		if err != nil {
			t.Fatal(err)
		}

		n, err := v.Backups.Cleanup(30)
		if err != nil {
			t.Fatalf("Cleanup() error = %v", err)
		}
		if n != 1 {
			t.Errorf("Cleanup() = %d, want 1", n)
		}
		if _, err := os.Stat(expired); !os.IsNotExist(err) {
			t.Error("expired archive still present")
		}
		if _, err := os.Stat(fresh); err != nil {
			t.Errorf("fresh archive removed: %v", err)
		}
	})

	t.Run("age alone without expiry", func(t *testing.T) {
		settings := vault.DefaultSettings()
		settings.BackupRetentionDays = 0
		v := testutil.NewTestVault(t, settings, nil)
		v.WriteFile(t, "acct-1", "a.txt", []byte("alpha"))

		if _, err := v.Backups.Create("acct-1"); err != nil {
			t.Fatal(err)
		}
		v.Clock.AdvanceDays(40)
		if _, err := v.Backups.Create("acct-1"); err != nil {
			t.Fatal(err)
		}

		n, err := v.Backups.Cleanup(30)
		if err != nil {
			t.Fatalf("Cleanup() error = %v", err)
		}
		if n != 1 {
			t.Errorf("Cleanup() = %d, want 1", n)
		}
		backups, _ := v.Backups.List("acct-1")
		if len(backups) != 1 || !backups[0].CreatedAt.Equal(v.Clock.Now()) {
			t.Errorf("remaining = %+v, want only the new backup", backups)
		}

		n, _ = v.Backups.CleanupExpired()
		if n != 0 {
			t.Errorf("CleanupExpired() = %d, want 0 with retention disabled", n)
		}
	})

	t.Run("zero days removes everything created before now", func(t *testing.T) {
		settings := vault.DefaultSettings()
		settings.BackupRetentionDays = 0
		v := testutil.NewTestVault(t, settings, nil)
		v.WriteFile(t, "acct-1", "a.txt", []byte("alpha"))

		path, err := v.Backups.Create("acct-1")
		if err != nil {
			t.Fatal(err)
		}
		v.Clock.AdvanceDays(1)

		n, err := v.Backups.Cleanup(0)
		if err != nil {
			t.Fatalf("Cleanup(0) error = %v", err)
		}
		if n != 1 {
			t.Errorf("Cleanup(0) = %d, want 1", n)
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Error("archive still present")
		}
	})

	t.Run("negative days rejected", func(t *testing.T) {
		v := testutil.NewTestVault(t, vault.DefaultSettings(), nil)

		if _, err := v.Backups.Cleanup(-1); !errors.Is(err, vault.ErrInvalidArgument) {
			t.Errorf("Cleanup(-1) error = %v, want ErrInvalidArgument", err)
		}
	})

	t.Run("CleanupExpired uses retention", func(t *testing.T) {
		obs := &recordingObserver{}
		v := testutil.NewTestVault(t, vault.DefaultSettings(), obs)
		v.WriteFile(t, "acct-1", "a.txt", []byte("alpha"))
		v.WriteFile(t, "acct-2", "b.txt", []byte("beta"))

		if _, err := v.Backups.Create("acct-1"); err != nil {
			t.Fatal(err)
		}
		if _, err := v.Backups.Create("acct-2"); err != nil {
			t.Fatal(err)
		}
		v.Clock.Advance(31 * 24 * time.Hour)

		n, err := v.Backups.CleanupExpired()
		if err != nil {
			t.Fatalf("CleanupExpired() error = %v", err)
		}
		if n != 2 {
			t.Errorf("CleanupExpired() = %d, want 2", n)
		}
		if names := listDir(t, v.Backups.BackupDir()); len(names) != 0 {
			t.Errorf("backup dir contains %v, want nothing", names)
		}
		if obs.removed != 2 {
			t.Errorf("removed = %d, want 2", obs.removed)
		}
	})
}

func TestBackupEngine_TarZstd(t *testing.T) {
	v := testutil.NewTestVault(t, vault.DefaultSettings(), nil)
	mustAllocate(t, v.Manager, "acct-1", 1)
	v.Upload(t, "acct-1", "a.txt", []byte("alpha"))

	codec, err := archive.NewCodecFromConfig("tar.zst")
	if err != nil {
		t.Fatal(err)
	}
	engine := newEngineWithCodec(t, v, codec, nil)

	path, err := engine.Create("acct-1")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if filepath.Ext(path) != ".zst" {
		t.Errorf("archive = %q, want .tar.zst", path)
	}
	if err := v.Manager.WipeStorage("acct-1"); err != nil {
		t.Fatal(err)
	}
	if err := engine.Restore("acct-1", path); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if u := mustUsage(t, v.Manager, "acct-1"); u.Used != 5 {
		t.Errorf("Used = %d, want 5", u.Used)
	}
}

func newEngineWithCodec(t *testing.T, v *testutil.Vault, codec vault.ArchiveCodec, observer vault.Observer) *vault.BackupEngine {
	t.Helper()
	resolver, err := fs.NewBaseResolver(v.Root)
	if err != nil {
		t.Fatal(err)
	}
	return vault.NewBackupEngine(v.Manager, v.DB, v.FS, resolver, codec, vault.NewNopLogger(), v.Clock, v.IDs, observer)
}

// failingCodec produces writers that fail on the first file.
type failingCodec struct{}

func (failingCodec) Extension() string { return ".zip" }

func (failingCodec) Create(path string) (vault.ArchiveWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &failingWriter{f: f, path: path}, nil
}

func (failingCodec) Extract(string, string) error {
	return errors.New("not supported")
}

type failingWriter struct {
	f    *os.File
	path string
}

func (w *failingWriter) SetCompression(bool) {}

func (w *failingWriter) AddDir(string) error { return nil }

func (w *failingWriter) AddFile(string, string) error {
	return errors.New("disk full")
}

func (w *failingWriter) Close() error {
	return w.f.Close()
}

func (w *failingWriter) Abort() error {
	w.f.Close()
	return nil
}
