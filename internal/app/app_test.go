package app

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"vault-go/internal/config"
	"vault-go/internal/vault"
)

func newMemoryConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig(t.TempDir())
	cfg.Database = config.DatabaseConfig{Type: "memory"}
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) *VaultApp {
	t.Helper()
	a, err := NewVaultApp(cfg, "test", io.Discard)
	if err != nil {
		t.Fatalf("NewVaultApp() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func writeStorageFile(t *testing.T, a *VaultApp, accountID, rel, content string) {
	t.Helper()
	dir, err := a.Manager().StoragePath(accountID)
	if err != nil {
		t.Fatal(err)
	}
	p := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestNewVaultApp_Memory(t *testing.T) {
	cfg := newMemoryConfig(t)
	a := newTestApp(t, cfg)

	if a.Database().Dialect() != "sqlite" {
		t.Errorf("Dialect() = %q, want sqlite", a.Database().Dialect())
	}
	if a.Operation().Name != "test" {
		t.Errorf("Operation().Name = %q, want test", a.Operation().Name)
	}

	storage, err := a.Manager().StoragePath("acct-1")
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(cfg.BaseDir, "storage", "vault", "acct-1")
	if storage != want {
		t.Errorf("StoragePath() = %q, want %q", storage, want)
	}
	if got := a.Backups().BackupDir(); got != filepath.Join(cfg.BaseDir, "storage", "vault-backups") {
		t.Errorf("BackupDir() = %q", got)
	}

	if _, err := os.Stat(filepath.Join(cfg.LogDir, "vault.log")); err != nil {
		t.Errorf("log file not created: %v", err)
	}
}

func TestNewVaultApp_UnknownArchiveFormat(t *testing.T) {
	cfg := newMemoryConfig(t)
	cfg.Vault.ArchiveFormat = "rar"

	if _, err := NewVaultApp(cfg, "test", io.Discard); err == nil {
		t.Fatal("NewVaultApp() expected error for unknown archive format")
	}
}

func TestNewVaultApp_RequiresMigration(t *testing.T) {
	cfg := config.NewConfig(t.TempDir())

	_, err := NewVaultApp(cfg, "test", io.Discard)
	if err == nil {
		t.Fatal("NewVaultApp() on unmigrated database expected error")
	}
	if !strings.Contains(err.Error(), "vault db migrate") {
		t.Errorf("error = %v, want migrate hint", err)
	}

	current, latest, err := DatabaseStatus(cfg.Database)
	if err != nil {
		t.Fatalf("DatabaseStatus() error = %v", err)
	}
	if current != 0 || latest == 0 {
		t.Errorf("DatabaseStatus() = %d, %d, want 0 and latest", current, latest)
	}

	from, to, err := MigrateDatabase(cfg.Database)
	if err != nil {
		t.Fatalf("MigrateDatabase() error = %v", err)
	}
	if from != 0 || to != latest {
		t.Errorf("MigrateDatabase() = %d -> %d, want 0 -> %d", from, to, latest)
	}

	a := newTestApp(t, cfg)
	if _, err := a.Manager().Allocate("acct-1", 10); err != nil {
		t.Fatalf("Allocate() after migration error = %v", err)
	}
}

func TestSettingsFromConfig(t *testing.T) {
	got := SettingsFromConfig(config.NewConfig("/srv/vault").Vault)
	if got != vault.DefaultSettings() {
		t.Errorf("SettingsFromConfig(defaults) = %+v, want %+v", got, vault.DefaultSettings())
	}
}

func TestVaultApp_Wipe(t *testing.T) {
	a := newTestApp(t, newMemoryConfig(t))
	if _, err := a.Manager().Allocate("acct-1", 10); err != nil {
		t.Fatal(err)
	}
	writeStorageFile(t, a, "acct-1", "docs/a.txt", "hello")
	if _, err := a.Manager().RecalculateUsage("acct-1"); err != nil {
		t.Fatal(err)
	}

	archivePath, err := a.Wipe("acct-1", true)
	if err != nil {
		t.Fatalf("Wipe() error = %v", err)
	}
	if _, err := os.Stat(archivePath); err != nil {
		t.Errorf("backup archive missing: %v", err)
	}

	u, err := a.Manager().GetUsage("acct-1")
	if err != nil {
		t.Fatal(err)
	}
	if u.Used != 0 {
		t.Errorf("Used = %d after wipe, want 0", u.Used)
	}

	if err := a.Backups().Restore("acct-1", archivePath); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	dir, _ := a.Manager().StoragePath("acct-1")
	got, err := os.ReadFile(filepath.Join(dir, "docs", "a.txt"))
	if err != nil || string(got) != "hello" {
		t.Errorf("restored file = %q, %v", got, err)
	}
}

func TestVaultApp_WipeWithoutBackup(t *testing.T) {
	a := newTestApp(t, newMemoryConfig(t))
	if _, err := a.Manager().Allocate("acct-1", 10); err != nil {
		t.Fatal(err)
	}
	writeStorageFile(t, a, "acct-1", "a.txt", "x")

	archivePath, err := a.Wipe("acct-1", false)
	if err != nil {
		t.Fatalf("Wipe() error = %v", err)
	}
	if archivePath != "" {
		t.Errorf("archive path = %q, want none", archivePath)
	}
	list, err := a.Backups().List("acct-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Errorf("backups = %d, want 0", len(list))
	}
}

func TestVaultApp_HashFile(t *testing.T) {
	a := newTestApp(t, newMemoryConfig(t))
	p := filepath.Join(t.TempDir(), "f.txt")
	if err := os.WriteFile(p, []byte("abc"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := a.HashFile(p)
	if err != nil {
		t.Fatalf("HashFile() error = %v", err)
	}
	const want = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got != want {
		t.Errorf("HashFile() = %q, want %q", got, want)
	}
}

func TestVaultApp_Server(t *testing.T) {
	gin.SetMode(gin.TestMode)
	a := newTestApp(t, newMemoryConfig(t))
	if _, err := a.Manager().Allocate("acct-1", 10); err != nil {
		t.Fatal(err)
	}
	handler := a.Server().Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/usage", nil)
	req.Header.Set(a.Config().Server.AccountHeader, "acct-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("GET /v1/usage status = %d, body = %s", rec.Code, rec.Body)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("metrics output missing go collector")
	}
}

func TestVaultApp_FailAndClose(t *testing.T) {
	cfg := newMemoryConfig(t)
	a, err := NewVaultApp(cfg, "quota recalc", io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	a.Fail(os.ErrNotExist)
	if !a.Operation().Failed() {
		t.Error("Operation().Failed() = false after Fail")
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(cfg.LogDir, "vault.log"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "operation failed") || !strings.Contains(string(data), "status=error") {
		t.Errorf("log missing failure lines:\n%s", data)
	}
}
