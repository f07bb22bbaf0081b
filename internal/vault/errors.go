package vault

import (
	"errors"
	"fmt"
)

// Error kinds. Typed errors below match their kind with errors.Is.
var (
	ErrStorageNotFound = errors.New("storage not found")
	ErrQuotaExceeded   = errors.New("storage quota exceeded")
	ErrInvalidQuota    = errors.New("invalid quota")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrOperationFailed = errors.New("operation failed")
)

// StorageNotFoundError reports a missing quota record, storage directory, or backup file.
type StorageNotFoundError struct {
	AccountID string
	Path      string
}

func (e *StorageNotFoundError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("storage not found: %s", e.Path)
	}
	return fmt.Sprintf("storage not found for account: %s", e.AccountID)
}

func (e *StorageNotFoundError) Is(target error) bool { return target == ErrStorageNotFound }

// QuotaExceededError reports an upload that would push usage past capacity.
type QuotaExceededError struct {
	AccountID string
	Required  int64
	Available int64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("storage quota exceeded for account %q: required %d bytes, available %d bytes",
		e.AccountID, e.Required, e.Available)
}

func (e *QuotaExceededError) Is(target error) bool { return target == ErrQuotaExceeded }

// InvalidQuotaError reports a negative, zero, or over-maximum allocation.
type InvalidQuotaError struct {
	QuotaMB int64
	MaxMB   int64
}

func (e *InvalidQuotaError) Error() string {
	switch {
	case e.QuotaMB < 0:
		return fmt.Sprintf("quota cannot be negative: %d", e.QuotaMB)
	case e.QuotaMB == 0:
		return "quota must be greater than zero"
	default:
		return fmt.Sprintf("quota %dMB exceeds maximum allowed %dMB", e.QuotaMB, e.MaxMB)
	}
}

func (e *InvalidQuotaError) Is(target error) bool { return target == ErrInvalidQuota }

// InvalidArgumentError reports a caller-supplied value the core refuses to act on.
type InvalidArgumentError struct {
	Field  string
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InvalidArgumentError) Is(target error) bool { return target == ErrInvalidArgument }

// OperationError wraps an I/O or archive failure together with the operation it interrupted.
type OperationError struct {
	Op  string
	Err error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }

func (e *OperationError) Is(target error) bool { return target == ErrOperationFailed }
