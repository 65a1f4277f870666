package repositories

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict is returned when a ledger write would not move the
	// entity version forward.
	ErrVersionConflict = errors.New("version conflict: entity was modified by another device")

	// ErrForeignDevice is returned when a device id is already registered
	// under a different account.
	ErrForeignDevice = errors.New("device belongs to another account")

	// ErrDuplicateEvent is returned when an event id is already in the log
	// of the account.
	ErrDuplicateEvent = errors.New("event already recorded")

	// ErrVersionTaken is returned when a log entry would reuse an entity
	// version that another entry already produced.
	ErrVersionTaken = errors.New("entity version already written")

	ErrAlreadyResolved = errors.New("conflict already resolved")
	ErrEmailExists     = errors.New("email already exists")
)

// Low-level database operation errors.
var (
	ErrBuildingSQLQuery     = errors.New("error building sql query")
	ErrExecutingQuery       = errors.New("error executing sql query")
	ErrBeginningTransaction = errors.New("failed to begin transaction")
	ErrCommitingTransaction = errors.New("failed to commit transaction")
	ErrAcquiringLock        = errors.New("failed to acquire account lock")
	ErrScanningRow          = errors.New("failed to scan row")
	ErrScanningRows         = errors.New("failed to scan rows")
	ErrEncodingJSON         = errors.New("failed to encode json column")
)
