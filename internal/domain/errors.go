package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidAmount is returned for non-positive or non-numeric amounts and prices.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInsufficientFunds is returned when the cash balance cannot cover an operation.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrInsufficientHoldings is returned when selling more of an asset than is held.
	ErrInsufficientHoldings = errors.New("insufficient holdings")
	// ErrAssetNotFound is returned when selling an asset that is not held.
	ErrAssetNotFound = errors.New("asset not found")
	// ErrPersistence matches every PersistenceError.
	ErrPersistence = errors.New("persistence failed")
	// ErrPendingCommit is returned when a mutation is attempted while a
	// previous change still waits for the store's acknowledgement.
	ErrPendingCommit = errors.New("previous change is not committed")
	// ErrConflict is returned by a store when the account was changed by
	// another writer since the committing ledger loaded it.
	ErrConflict = errors.New("account was changed concurrently")
)

// PersistenceError reports that a change was applied in memory but the
// durable write was not acknowledged.
type PersistenceError struct {
	Op          string
	Transaction Transaction
	Err         error
}

// NewPersistenceError wraps a storage failure for the given operation.
func NewPersistenceError(op string, tx Transaction, err error) *PersistenceError {
	return &PersistenceError{Op: op, Transaction: tx, Err: err}
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Transaction.ID, ErrPersistence.Error(), e.Err)
}

// Unwrap returns the storage error.
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrPersistence.
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

// CheckVersion returns ErrConflict unless the stored version directly
// precedes the one being committed.
func CheckVersion(accountID string, stored, committing int64) error {
	if stored != committing-1 {
		return errors.Wrapf(ErrConflict, "account %s: stored version %d, committing %d", accountID, stored, committing)
	}
	return nil
}
