package vault

import (
	"errors"
	"fmt"
	"math"
	"path"
	"path/filepath"
	"strings"

	"vault-go/internal/model"
)

// Usage is a point-in-time view of an account's quota.
type Usage struct {
	Used       int64   `json:"used"`
	Quota      int64   `json:"quota"`
	Remaining  int64   `json:"remaining"`
	Percentage float64 `json:"percentage"`
}

// Manager coordinates quota allocation and upload/deletion accounting.
// Every mutation of used bytes by an upload or deletion happens while the
// account's quota record is locked.
type Manager struct {
	database Database
	ledger   *QuotaLedger
	tracker  *FileTracker
	fsmgr    FilesystemManager
	resolver PathResolver
	settings Settings
	logger   Logger
	observer Observer
}

// NewManager creates a Manager with the provided dependencies.
func NewManager(database Database, fsmgr FilesystemManager, resolver PathResolver, settings Settings, logger Logger, clock Clock, idgen IDGenerator, observer Observer) *Manager {
	if observer == nil {
		observer = NopObserver{}
	}
	return &Manager{
		database: database,
		ledger:   NewQuotaLedger(database, clock, idgen),
		tracker:  NewFileTracker(database, fsmgr, logger, clock, idgen),
		fsmgr:    fsmgr,
		resolver: resolver,
		settings: settings,
		logger:   logger,
		observer: observer,
	}
}

// Tracker returns the file tracker used by the manager.
func (m *Manager) Tracker() *FileTracker {
	return m.tracker
}

// Settings returns the policy the manager was built with.
func (m *Manager) Settings() Settings {
	return m.settings
}

const maxQuotaMB = math.MaxInt64 / BytesPerMB

// Allocate sets the account's capacity to quotaMB megabytes.
func (m *Manager) Allocate(accountID string, quotaMB int64) (*model.QuotaRecord, error) {
	if err := ValidateAccountID(accountID); err != nil {
		return nil, err
	}
	if quotaMB <= 0 || (m.settings.MaxQuotaMB > 0 && quotaMB > m.settings.MaxQuotaMB) {
		return nil, &InvalidQuotaError{QuotaMB: quotaMB, MaxMB: m.settings.MaxQuotaMB}
	}
	// The byte capacity must fit in an int64.
	if quotaMB > maxQuotaMB {
		return nil, &InvalidQuotaError{QuotaMB: quotaMB, MaxMB: maxQuotaMB}
	}

	q, err := m.ledger.Allocate(accountID, quotaMB*BytesPerMB)
	if err != nil {
		return nil, err
	}

	m.logger.Info("quota allocated", "account", accountID, "quota_mb", quotaMB)
	return q, nil
}

// AllocateDefault allocates the configured default quota.
func (m *Manager) AllocateDefault(accountID string) (*model.QuotaRecord, error) {
	return m.Allocate(accountID, m.settings.DefaultQuotaMB)
}

// GetUsage returns the account's current usage.
func (m *Manager) GetUsage(accountID string) (*Usage, error) {
	if err := ValidateAccountID(accountID); err != nil {
		return nil, err
	}
	q, err := m.ledger.Get(accountID)
	if err != nil {
		return nil, err
	}
	return usageOf(q), nil
}

func usageOf(q *model.QuotaRecord) *Usage {
	u := &Usage{
		Used:      q.UsedBytes,
		Quota:     q.QuotaBytes,
		Remaining: max(0, q.QuotaBytes-q.UsedBytes),
	}
	if q.QuotaBytes > 0 {
		u.Percentage = math.Round(float64(q.UsedBytes)/float64(q.QuotaBytes)*100*100) / 100
	}
	return u
}

// CanUpload reports whether size more bytes would fit. The answer is advisory:
// it takes no lock, so only TrackUpload enforces the quota.
func (m *Manager) CanUpload(accountID string, size int64) (bool, error) {
	u, err := m.GetUsage(accountID)
	if err != nil {
		return false, err
	}
	return u.Used+size <= u.Quota, nil
}

// IsFull reports whether usage has reached the capacity.
func (m *Manager) IsFull(accountID string) (bool, error) {
	u, err := m.GetUsage(accountID)
	if err != nil {
		return false, err
	}
	return u.Used >= u.Quota, nil
}

// RemainingSpace returns the bytes left before the capacity is reached.
func (m *Manager) RemainingSpace(accountID string) (int64, error) {
	u, err := m.GetUsage(accountID)
	if err != nil {
		return 0, err
	}
	return u.Remaining, nil
}

// TrackUpload accounts for a file already written to the account's storage.
// The usage update and the file record commit together or not at all.
func (m *Manager) TrackUpload(accountID, filePath string, size int64, hash string) error {
	if err := ValidateAccountID(accountID); err != nil {
		return err
	}
	if size <= 0 {
		return &InvalidArgumentError{Field: "size", Reason: "file size must be greater than zero"}
	}
	rel, err := CleanRelPath(filePath)
	if err != nil {
		return err
	}

	err = m.database.Transact(func(tx Tx) error {
		if _, err := m.ledger.Reserve(tx, accountID, size); err != nil {
			return err
		}
		if m.settings.FileTracking {
			if _, err := m.tracker.Track(tx, accountID, rel, size, hash); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrQuotaExceeded) {
			m.observer.UploadRejected()
			m.logger.Info("upload rejected", "account", accountID, "path", rel, "size", size)
		}
		return err
	}

	m.observer.UploadTracked(size)
	m.logger.Debug("upload tracked", "account", accountID, "path", rel, "size", size)
	return nil
}

// TrackDeletion releases the bytes of the newest active record at filePath and
// soft-deletes it. Deleting an untracked path is a no-op.
func (m *Manager) TrackDeletion(accountID, filePath string) error {
	if err := ValidateAccountID(accountID); err != nil {
		return err
	}
	rel, err := CleanRelPath(filePath)
	if err != nil {
		return err
	}

	var released *model.FileRecord
	var usedAfter int64
	err = m.database.Transact(func(tx Tx) error {
		q, err := tx.LockQuota(accountID)
		if err != nil {
			return fmt.Errorf("locking quota: %w", err)
		}

		f, err := tx.FindLatestActiveFile(accountID, rel)
		if err != nil {
			return fmt.Errorf("finding file record: %w", err)
		}
		if f == nil {
			return nil
		}
		if q == nil {
			return &StorageNotFoundError{AccountID: accountID}
		}

		q, err = m.ledger.Release(tx, q, f.Size)
		if err != nil {
			return err
		}
		if err := m.tracker.markDeleted(tx, f); err != nil {
			return err
		}
		released = f
		usedAfter = q.UsedBytes
		return nil
	})
	if err != nil {
		return err
	}
	if released == nil {
		m.logger.Debug("deletion of untracked path ignored", "account", accountID, "path", rel)
		return nil
	}

	if usedAfter < 0 {
		m.logger.Warn("usage drifted below zero", "account", accountID, "used_bytes", usedAfter)
	}
	m.observer.DeletionTracked(released.Size)
	m.logger.Debug("deletion tracked", "account", accountID, "path", rel, "size", released.Size)
	return nil
}

// RecalculateUsage replaces the account's usage with the total size of the files
// under its storage directory. The result may exceed the quota.
func (m *Manager) RecalculateUsage(accountID string) (int64, error) {
	storagePath, err := m.StoragePath(accountID)
	if err != nil {
		return 0, err
	}
	if _, err := m.ledger.Get(accountID); err != nil {
		return 0, err
	}

	var total int64
	if m.fsmgr.IsDir(storagePath) {
		for entry, err := range m.fsmgr.Walk(storagePath) {
			if err != nil {
				return 0, &OperationError{Op: "recalculate usage", Err: err}
			}
			if !entry.IsDir {
				total += entry.Size
			}
		}
	}

	if err := m.ledger.SetUsed(accountID, total); err != nil {
		return 0, err
	}

	m.observer.UsageRecalculated()
	m.logger.Info("usage recalculated", "account", accountID, "used_bytes", total)
	return total, nil
}

// StoragePath returns the absolute storage directory of an account.
func (m *Manager) StoragePath(accountID string) (string, error) {
	if err := ValidateAccountID(accountID); err != nil {
		return "", err
	}
	return filepath.Join(m.resolver.BasePath(m.settings.StoragePath), accountID), nil
}

// WipeStorage removes everything in the account's storage directory and resets
// usage from the now empty tree.
func (m *Manager) WipeStorage(accountID string) error {
	storagePath, err := m.StoragePath(accountID)
	if err != nil {
		return err
	}
	if _, err := m.ledger.Get(accountID); err != nil {
		return err
	}

	if err := m.fsmgr.RemoveAll(storagePath); err != nil {
		return &OperationError{Op: "wipe storage", Err: err}
	}
	if err := m.fsmgr.MkdirAll(storagePath); err != nil {
		return &OperationError{Op: "wipe storage", Err: err}
	}
	if _, err := m.RecalculateUsage(accountID); err != nil {
		return err
	}

	m.logger.Warn("storage wiped", "account", accountID)
	return nil
}

// CalculateHash returns the hex SHA-256 of a file.
func (m *Manager) CalculateHash(path string) (string, error) {
	return m.tracker.CalculateHash(path)
}

// FindDuplicates returns active records of any account carrying hash.
func (m *Manager) FindDuplicates(hash string) ([]*model.FileRecord, error) {
	return m.tracker.FindDuplicates(hash)
}

// ValidateAccountID rejects ids that cannot name a single directory below the storage root.
func ValidateAccountID(accountID string) error {
	switch {
	case accountID == "":
		return &InvalidArgumentError{Field: "account id", Reason: "must not be empty"}
	case accountID == "." || accountID == "..":
		return &InvalidArgumentError{Field: "account id", Reason: "must not be a relative directory"}
	case strings.ContainsAny(accountID, `/\`) || strings.ContainsRune(accountID, 0):
		return &InvalidArgumentError{Field: "account id", Reason: "must not contain path separators"}
	}
	return nil
}

// CleanRelPath normalizes a file path relative to an account's storage root.
// Absolute paths and paths escaping the root are rejected.
func CleanRelPath(p string) (string, error) {
	p = strings.ReplaceAll(p, `\`, "/")
	if p == "" {
		return "", &InvalidArgumentError{Field: "path", Reason: "must not be empty"}
	}
	if strings.HasPrefix(p, "/") || filepath.IsAbs(p) {
		return "", &InvalidArgumentError{Field: "path", Reason: "must be relative"}
	}
	clean := path.Clean(p)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", &InvalidArgumentError{Field: "path", Reason: "must stay inside the storage directory"}
	}
	return clean, nil
}
