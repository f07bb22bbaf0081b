package vault

import (
	"fmt"

	"vault-go/internal/model"
)

// QuotaLedger owns the quota records. The locked read-modify-write helpers take the
// caller's Tx so the update commits together with whatever else the caller writes.
type QuotaLedger struct {
	database Database
	clock    Clock
	idgen    IDGenerator
}

// NewQuotaLedger creates a QuotaLedger over the given database.
func NewQuotaLedger(database Database, clock Clock, idgen IDGenerator) *QuotaLedger {
	return &QuotaLedger{
		database: database,
		clock:    clock,
		idgen:    idgen,
	}
}

// Allocate sets the capacity of an account, creating its record on first use.
// A fresh reference id is generated each time. Used bytes are left untouched.
func (l *QuotaLedger) Allocate(accountID string, quotaBytes int64) (*model.QuotaRecord, error) {
	now := l.clock.Now()
	q, err := l.database.UpsertQuota(&model.QuotaRecord{
		AccountID:  accountID,
		RefID:      l.idgen.New(),
		QuotaBytes: quotaBytes,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		return nil, fmt.Errorf("upserting quota: %w", err)
	}
	return q, nil
}

// Get returns the account's record or a StorageNotFoundError.
func (l *QuotaLedger) Get(accountID string) (*model.QuotaRecord, error) {
	q, err := l.database.FindQuota(accountID)
	if err != nil {
		return nil, fmt.Errorf("finding quota: %w", err)
	}
	if q == nil {
		return nil, &StorageNotFoundError{AccountID: accountID}
	}
	return q, nil
}

// SetUsed overwrites the account's usage.
func (l *QuotaLedger) SetUsed(accountID string, used int64) error {
	found, err := l.database.SetUsedBytes(accountID, used, l.clock.Now())
	if err != nil {
		return fmt.Errorf("updating used bytes: %w", err)
	}
	if !found {
		return &StorageNotFoundError{AccountID: accountID}
	}
	return nil
}

// Reserve locks the account's record and adds size to its usage.
// Nothing is written when the result would exceed the capacity.
func (l *QuotaLedger) Reserve(tx Tx, accountID string, size int64) (*model.QuotaRecord, error) {
	q, err := l.lock(tx, accountID)
	if err != nil {
		return nil, err
	}

	newUsed := q.UsedBytes + size
	if newUsed > q.QuotaBytes {
		return nil, &QuotaExceededError{
			AccountID: accountID,
			Required:  size,
			Available: q.QuotaBytes - q.UsedBytes,
		}
	}

	if _, err := tx.SetUsedBytes(accountID, newUsed, l.clock.Now()); err != nil {
		return nil, fmt.Errorf("updating used bytes: %w", err)
	}
	q.UsedBytes = newUsed
	return q, nil
}

// Release subtracts size from a record already locked by the caller.
// The result is not clamped; a negative value means the ledger drifted from disk.
func (l *QuotaLedger) Release(tx Tx, q *model.QuotaRecord, size int64) (*model.QuotaRecord, error) {
	newUsed := q.UsedBytes - size
	if _, err := tx.SetUsedBytes(q.AccountID, newUsed, l.clock.Now()); err != nil {
		return nil, fmt.Errorf("updating used bytes: %w", err)
	}
	q.UsedBytes = newUsed
	return q, nil
}

func (l *QuotaLedger) lock(tx Tx, accountID string) (*model.QuotaRecord, error) {
	q, err := tx.LockQuota(accountID)
	if err != nil {
		return nil, fmt.Errorf("locking quota: %w", err)
	}
	if q == nil {
		return nil, &StorageNotFoundError{AccountID: accountID}
	}
	return q, nil
}
