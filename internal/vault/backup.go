package vault

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"vault-go/internal/model"
)

const backupTimeLayout = "2006-01-02_150405"

// BackupEngine snapshots account storage trees into archives and restores them.
// An archive gets an inventory record only after it has been closed successfully.
type BackupEngine struct {
	manager  *Manager
	database Database
	fsmgr    FilesystemManager
	resolver PathResolver
	codec    ArchiveCodec
	settings Settings
	logger   Logger
	clock    Clock
	idgen    IDGenerator
	observer Observer
}

// NewBackupEngine creates a BackupEngine that shares the manager's storage tree.
func NewBackupEngine(manager *Manager, database Database, fsmgr FilesystemManager, resolver PathResolver, codec ArchiveCodec, logger Logger, clock Clock, idgen IDGenerator, observer Observer) *BackupEngine {
	if observer == nil {
		observer = NopObserver{}
	}
	return &BackupEngine{
		manager:  manager,
		database: database,
		fsmgr:    fsmgr,
		resolver: resolver,
		codec:    codec,
		settings: manager.Settings(),
		logger:   logger,
		clock:    clock,
		idgen:    idgen,
		observer: observer,
	}
}

// BackupDir returns the absolute directory archives are written to.
func (e *BackupEngine) BackupDir() string {
	return e.resolver.BasePath(e.settings.BackupPath)
}

// Create archives the account's storage directory and returns the archive path.
// On failure no archive file and no record are left behind.
func (e *BackupEngine) Create(accountID string) (string, error) {
	storagePath, err := e.manager.StoragePath(accountID)
	if err != nil {
		return "", err
	}
	if !e.fsmgr.IsDir(storagePath) {
		return "", &StorageNotFoundError{AccountID: accountID, Path: storagePath}
	}

	backupDir := e.BackupDir()
	if err := e.fsmgr.MkdirAll(backupDir); err != nil {
		e.observer.BackupFailed()
		return "", &OperationError{Op: "create backup", Err: fmt.Errorf("creating backup directory: %w", err)}
	}

	now := e.clock.Now()
	name := e.archiveName(backupDir, accountID, now)
	archivePath := filepath.Join(backupDir, name)

	w, err := e.codec.Create(archivePath)
	if err != nil {
		e.observer.BackupFailed()
		return "", &OperationError{Op: "create backup", Err: fmt.Errorf("creating archive: %w", err)}
	}

	fail := func(err error) (string, error) {
		if abortErr := w.Abort(); abortErr != nil {
			e.logger.Warn("aborting archive", "path", archivePath, "error", abortErr)
		}
		if rmErr := e.fsmgr.Remove(archivePath); rmErr != nil {
			e.logger.Warn("removing partial archive", "path", archivePath, "error", rmErr)
		}
		e.observer.BackupFailed()
		e.logger.Error("backup failed", "account", accountID, "error", err)
		return "", &OperationError{Op: "create backup", Err: err}
	}

	w.SetCompression(e.settings.Compression)
	entries := 0
	for entry, err := range e.fsmgr.Walk(storagePath) {
		if err != nil {
			return fail(fmt.Errorf("walking storage: %w", err))
		}
		if entry.IsDir {
			err = w.AddDir(entry.RelPath + "/")
		} else {
			err = w.AddFile(entry.AbsPath, entry.RelPath)
		}
		if err != nil {
			return fail(fmt.Errorf("adding %s: %w", entry.RelPath, err))
		}
		entries++
	}

	if err := w.Close(); err != nil {
		return fail(fmt.Errorf("closing archive: %w", err))
	}

	size, err := e.fsmgr.Size(archivePath)
	if err != nil {
		return fail(fmt.Errorf("reading archive size: %w", err))
	}

	record := &model.BackupRecord{
		AccountID: accountID,
		RefID:     e.idgen.New(),
		Path:      name,
		Size:      size,
		CreatedAt: now,
	}
	if e.settings.BackupRetentionDays > 0 {
		record.ExpiresAt = sql.NullTime{Time: now.AddDate(0, 0, e.settings.BackupRetentionDays), Valid: true}
	}
	if _, err := e.database.InsertBackup(record); err != nil {
		return fail(fmt.Errorf("recording backup: %w", err))
	}

	e.observer.BackupCreated(size)
	e.logger.Info("backup created", "account", accountID, "path", archivePath, "entries", entries, "size", size)
	return archivePath, nil
}

// archiveName picks "<account>_<timestamp><ext>", adding a numeric suffix when
// an archive with that name already exists.
func (e *BackupEngine) archiveName(dir, accountID string, now time.Time) string {
	base := accountID + "_" + now.UTC().Format(backupTimeLayout)
	ext := e.codec.Extension()
	name := base + ext
	for i := 1; e.fsmgr.Exists(filepath.Join(dir, name)); i++ {
		name = base + "_" + strconv.Itoa(i) + ext
	}
	return name
}

// Restore extracts the archive at backupPath into the account's storage directory,
// overwriting existing files, then recalculates usage. A relative backupPath is
// resolved against the backup directory.
func (e *BackupEngine) Restore(accountID, backupPath string) error {
	storagePath, err := e.manager.StoragePath(accountID)
	if err != nil {
		return err
	}

	archivePath := e.resolveArchive(backupPath)
	if !e.fsmgr.Exists(archivePath) || e.fsmgr.IsDir(archivePath) {
		return &OperationError{Op: "restore backup", Err: &StorageNotFoundError{AccountID: accountID, Path: archivePath}}
	}

	// Nothing is extracted for an account the ledger cannot account for.
	if _, err := e.manager.GetUsage(accountID); err != nil {
		return err
	}

	if !e.fsmgr.IsDir(storagePath) {
		if err := e.fsmgr.MkdirAll(storagePath); err != nil {
			return &OperationError{Op: "restore backup", Err: fmt.Errorf("creating storage directory: %w", err)}
		}
	}

	if err := e.codec.Extract(archivePath, storagePath); err != nil {
		return &OperationError{Op: "restore backup", Err: fmt.Errorf("extracting archive: %w", err)}
	}

	used, err := e.manager.RecalculateUsage(accountID)
	if err != nil {
		return &OperationError{Op: "restore backup", Err: err}
	}

	e.logger.Info("backup restored", "account", accountID, "path", archivePath, "used_bytes", used)
	return nil
}

// RestoreByID restores a recorded backup into the account it was taken from.
func (e *BackupEngine) RestoreByID(backupID int64) error {
	b, err := e.database.FindBackup(backupID)
	if err != nil {
		return fmt.Errorf("finding backup: %w", err)
	}
	if b == nil {
		return &StorageNotFoundError{Path: fmt.Sprintf("backup #%d", backupID)}
	}
	return e.Restore(b.AccountID, b.Path)
}

// List returns the account's backups, newest first.
func (e *BackupEngine) List(accountID string) ([]*model.BackupRecord, error) {
	backups, err := e.database.ListBackups(accountID)
	if err != nil {
		return nil, fmt.Errorf("listing backups: %w", err)
	}
	return backups, nil
}

// Delete removes the archive file, if present, and its record.
// Returns false when no backup has the given id.
func (e *BackupEngine) Delete(backupID int64) (bool, error) {
	b, err := e.database.FindBackup(backupID)
	if err != nil {
		return false, fmt.Errorf("finding backup: %w", err)
	}
	if b == nil {
		return false, nil
	}
	if err := e.remove(b); err != nil {
		return false, err
	}
	e.observer.BackupsRemoved(1)
	return true, nil
}

// Cleanup deletes every backup created more than olderThanDays ago or whose expiry
// has passed. Returns the number of backups deleted.
func (e *BackupEngine) Cleanup(olderThanDays int) (int, error) {
	if olderThanDays < 0 {
		return 0, &InvalidArgumentError{Field: "days", Reason: "must not be negative"}
	}
	return e.cleanup(e.clock.Now().AddDate(0, 0, -olderThanDays), olderThanDays)
}

// CleanupExpired runs Cleanup with the configured retention period.
// With retention disabled (<= 0) only backups past their expiry are deleted.
func (e *BackupEngine) CleanupExpired() (int, error) {
	if e.settings.BackupRetentionDays <= 0 {
		return e.cleanup(time.Time{}, 0)
	}
	return e.Cleanup(e.settings.BackupRetentionDays)
}

// cleanup deletes backups created before createdBefore or already expired.
// A zero createdBefore leaves only the expiry criterion.
func (e *BackupEngine) cleanup(createdBefore time.Time, olderThanDays int) (int, error) {
	backups, err := e.database.FindBackupsForCleanup(createdBefore, e.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("finding backups to clean up: %w", err)
	}

	deleted := 0
	for _, b := range backups {
		if err := e.remove(b); err != nil {
			e.observer.BackupsRemoved(deleted)
			return deleted, err
		}
		deleted++
	}

	e.observer.BackupsRemoved(deleted)
	e.logger.Info("backups cleaned up", "count", deleted, "older_than_days", olderThanDays)
	return deleted, nil
}

func (e *BackupEngine) remove(b *model.BackupRecord) error {
	archivePath := e.resolveArchive(b.Path)
	if e.fsmgr.Exists(archivePath) {
		if err := e.fsmgr.Remove(archivePath); err != nil {
			return &OperationError{Op: "delete backup", Err: err}
		}
	}
	if err := e.database.DeleteBackup(b.ID); err != nil {
		return fmt.Errorf("deleting backup record: %w", err)
	}
	e.logger.Debug("backup deleted", "id", b.ID, "path", archivePath)
	return nil
}

func (e *BackupEngine) resolveArchive(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(e.BackupDir(), p)
}
