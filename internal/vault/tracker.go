package vault

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"vault-go/internal/model"
)

// FileTracker owns the per-upload file records.
type FileTracker struct {
	database Database
	fsmgr    FilesystemManager
	logger   Logger
	clock    Clock
	idgen    IDGenerator
}

// NewFileTracker creates a FileTracker.
func NewFileTracker(database Database, fsmgr FilesystemManager, logger Logger, clock Clock, idgen IDGenerator) *FileTracker {
	return &FileTracker{
		database: database,
		fsmgr:    fsmgr,
		logger:   logger,
		clock:    clock,
		idgen:    idgen,
	}
}

// Track inserts an active record inside the caller's transaction.
// An empty hash is stored as NULL.
func (t *FileTracker) Track(tx Tx, accountID, path string, size int64, hash string) (*model.FileRecord, error) {
	f, err := tx.InsertFile(&model.FileRecord{
		AccountID:  accountID,
		RefID:      t.idgen.New(),
		Path:       path,
		Size:       size,
		Hash:       sql.NullString{String: hash, Valid: hash != ""},
		State:      model.FileActive,
		UploadedAt: t.clock.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("inserting file record: %w", err)
	}
	return f, nil
}

// Untrack soft-deletes the newest active record at path.
// Returns the deleted record, or nil if there was nothing to delete.
func (t *FileTracker) Untrack(accountID, path string) (*model.FileRecord, error) {
	var deleted *model.FileRecord
	err := t.database.Transact(func(tx Tx) error {
		f, err := t.untrack(tx, accountID, path)
		deleted = f
		return err
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

func (t *FileTracker) untrack(tx Tx, accountID, path string) (*model.FileRecord, error) {
	f, err := tx.FindLatestActiveFile(accountID, path)
	if err != nil {
		return nil, fmt.Errorf("finding file record: %w", err)
	}
	if f == nil {
		return nil, nil
	}
	return f, t.markDeleted(tx, f)
}

func (t *FileTracker) markDeleted(tx Tx, f *model.FileRecord) error {
	now := t.clock.Now()
	if err := tx.MarkFileDeleted(f.ID, now); err != nil {
		return fmt.Errorf("marking file deleted: %w", err)
	}
	f.State = model.FileDeleted
	f.DeletedAt = sql.NullTime{Time: now, Valid: true}
	return nil
}

// Files returns the account's records, newest first. Deleted records are
// included only when includeDeleted is set.
func (t *FileTracker) Files(accountID string, includeDeleted bool) ([]*model.FileRecord, error) {
	files, err := t.database.ListFiles(accountID, includeDeleted)
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}
	return files, nil
}

// FindDuplicates returns active records of any account carrying hash.
func (t *FileTracker) FindDuplicates(hash string) ([]*model.FileRecord, error) {
	files, err := t.database.FindActiveFilesByHash(hash)
	if err != nil {
		return nil, fmt.Errorf("finding duplicates: %w", err)
	}
	return files, nil
}

// FileCount returns the number of active records for an account.
func (t *FileTracker) FileCount(accountID string) (int64, error) {
	n, err := t.database.CountActiveFiles(accountID)
	if err != nil {
		return 0, fmt.Errorf("counting files: %w", err)
	}
	return n, nil
}

// CalculateHash returns the hex SHA-256 of the file's contents.
func (t *FileTracker) CalculateHash(path string) (string, error) {
	if !t.fsmgr.Exists(path) || t.fsmgr.IsDir(path) {
		return "", &StorageNotFoundError{Path: path}
	}

	f, err := t.fsmgr.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// PurgeDeleted permanently removes records deleted more than olderThanDays ago.
func (t *FileTracker) PurgeDeleted(olderThanDays int) (int64, error) {
	if olderThanDays < 0 {
		return 0, &InvalidArgumentError{Field: "days", Reason: "must not be negative"}
	}

	cutoff := t.clock.Now().Add(-time.Duration(olderThanDays) * 24 * time.Hour)
	n, err := t.database.PurgeDeletedFiles(cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging deleted files: %w", err)
	}

	t.logger.Info("deleted file records purged", "count", n, "older_than_days", olderThanDays)
	return n, nil
}
