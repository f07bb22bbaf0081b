package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"vault-go/internal/archive"
	"vault-go/internal/config"
	"vault-go/internal/database"
	"vault-go/internal/fs"
	"vault-go/internal/metrics"
	"vault-go/internal/server"
	"vault-go/internal/vault"
)

// VaultApp is the application layer between the CLI and the vault services.
// It constructs all dependencies from config and manages the DB and log file
// lifecycle on Close.
type VaultApp struct {
	cfg       *config.Config
	db        *database.SQLDatabase
	fsmgr     *fs.OSFilesystemManager
	registry  *prometheus.Registry
	manager   *vault.Manager
	backups   *vault.BackupEngine
	analytics *vault.Analytics
	logger    *slogAdapter
	clock     vault.Clock
	op        *Operation
	logFile   *os.File
}

// NewVaultApp creates a fully wired VaultApp from the given config.
// operation names the CLI command being run (e.g. "backup create").
// Warnings are also written to stderr. The caller must call Close when done.
func NewVaultApp(cfg *config.Config, operation string, stderr io.Writer) (*VaultApp, error) {
	fsmgr := fs.NewOSFilesystemManager()

	resolver, err := fs.NewBaseResolver(cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("resolving base directory: %w", err)
	}

	codec, err := archive.NewCodecFromConfig(cfg.Vault.ArchiveFormat)
	if err != nil {
		return nil, fmt.Errorf("creating archive codec: %w", err)
	}

	db, err := database.NewDatabaseFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}

	if err := db.CheckMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database schema out of date (run \"vault db migrate\"): %w", err)
	}

	clock := vault.RealClock{}
	op := NewOperation(operation, clock.Now())
	slogger, logFile, err := newLogger(cfg.LogDir, op.ID, stderr)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	observer := metrics.New(registry)

	idgen := vault.UUIDGenerator{}
	manager := vault.NewManager(db, fsmgr, resolver, SettingsFromConfig(cfg.Vault), logger, clock, idgen, observer)
	backups := vault.NewBackupEngine(manager, db, fsmgr, resolver, codec, logger, clock, idgen, observer)

	logger.Debug("operation started", "operation", operation, "database", db.Dialect())

	return &VaultApp{
		cfg:       cfg,
		db:        db,
		fsmgr:     fsmgr,
		registry:  registry,
		manager:   manager,
		backups:   backups,
		analytics: vault.NewAnalytics(db),
		logger:    logger,
		clock:     clock,
		op:        op,
		logFile:   logFile,
	}, nil
}

// SettingsFromConfig converts the [vault] config section to core settings.
func SettingsFromConfig(c config.VaultConfig) vault.Settings {
	return vault.Settings{
		DefaultQuotaMB:      c.DefaultQuotaMB,
		MaxQuotaMB:          c.MaxQuotaMB,
		StoragePath:         c.StoragePath,
		BackupPath:          c.BackupPath,
		BackupRetentionDays: c.BackupRetentionDays,
		FileTracking:        c.EnableFileTracking,
		Compression:         c.EnableCompression,
	}
}

func (a *VaultApp) Manager() *vault.Manager         { return a.manager }
func (a *VaultApp) Backups() *vault.BackupEngine    { return a.backups }
func (a *VaultApp) Analytics() *vault.Analytics     { return a.analytics }
func (a *VaultApp) Tracker() *vault.FileTracker     { return a.manager.Tracker() }
func (a *VaultApp) Registry() *prometheus.Registry  { return a.registry }
func (a *VaultApp) Operation() *Operation           { return a.op }
func (a *VaultApp) Config() *config.Config          { return a.cfg }
func (a *VaultApp) Database() *database.SQLDatabase { return a.db }

// HashFile resolves rawPath and returns the SHA-256 of the file.
func (a *VaultApp) HashFile(rawPath string) (string, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}
	return a.manager.CalculateHash(absPath)
}

// Wipe empties the account's storage, optionally archiving it first.
// Returns the archive path when a backup was taken.
func (a *VaultApp) Wipe(accountID string, backupFirst bool) (string, error) {
	var archivePath string
	if backupFirst {
		p, err := a.backups.Create(accountID)
		if err != nil {
			return "", fmt.Errorf("backup before wipe: %w", err)
		}
		archivePath = p
	}
	if err := a.manager.WipeStorage(accountID); err != nil {
		return archivePath, err
	}
	return archivePath, nil
}

// Server builds the HTTP server from the [server] and [vault] config sections.
func (a *VaultApp) Server() *server.Server {
	policy := server.Policy{
		AccountHeader: a.cfg.Server.AccountHeader,
		MaxFileSize:   a.cfg.Vault.MaxFileSizeMB * vault.BytesPerMB,
		Extensions:    fs.NewExtensionMatcher(a.cfg.Vault.AllowedExtensions),
	}
	return server.NewServer(a.manager, a.fsmgr, a.logger, policy, a.registry)
}

// Serve runs the HTTP server until ctx is cancelled, then shuts it down gracefully.
func (a *VaultApp) Serve(ctx context.Context) error {
	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           a.Server().Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	a.logger.Info("server listening", "addr", a.cfg.Server.Addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		a.logger.Info("server shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		return nil
	}
}

// Fail marks the current operation as failed and logs err.
func (a *VaultApp) Fail(err error) {
	a.op.Fail()
	a.logger.Error("operation failed", "operation", a.op.Name, "error", err)
}

// Close logs the operation outcome and closes all resources.
func (a *VaultApp) Close() error {
	var firstErr error

	a.logger.Info("operation finished", "operation", a.op.Name, "status", a.op.Status,
		"elapsed", a.op.Elapsed(a.clock.Now()))

	if err := a.db.Close(); err != nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}

// MigrateDatabase applies pending schema migrations to the configured database.
// Returns the schema version before and after.
func MigrateDatabase(cfg config.DatabaseConfig) (from, to uint, err error) {
	db, err := database.NewDatabaseFromConfig(cfg)
	if err != nil {
		return 0, 0, fmt.Errorf("creating database: %w", err)
	}
	defer db.Close()

	from, _, err = db.SchemaVersion()
	if err != nil {
		return 0, 0, fmt.Errorf("reading schema version: %w", err)
	}
	if err := db.Migrate(); err != nil {
		return from, 0, fmt.Errorf("migrating database: %w", err)
	}
	to, _, err = db.SchemaVersion()
	if err != nil {
		return from, 0, fmt.Errorf("reading schema version: %w", err)
	}
	return from, to, nil
}

// DatabaseStatus returns the applied and latest schema versions of the configured database.
func DatabaseStatus(cfg config.DatabaseConfig) (current, latest uint, err error) {
	db, err := database.NewDatabaseFromConfig(cfg)
	if err != nil {
		return 0, 0, fmt.Errorf("creating database: %w", err)
	}
	defer db.Close()

	return db.SchemaVersion()
}
