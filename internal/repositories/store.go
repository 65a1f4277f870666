package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/prudhvinik1/syncengine/internal/logger"
)

const lockAccount = `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`

const (
	DefaultMaxRetries  = 3
	DefaultBaseBackoff = 50 * time.Millisecond
)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db          *sql.DB
	classifier  ErrorClassifier
	maxRetries  uint64
	baseBackoff time.Duration
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:          db,
		classifier:  NewPostgresErrorClassifier(),
		maxRetries:  DefaultMaxRetries,
		baseBackoff: DefaultBaseBackoff,
	}
}

// Repositories returns repositories bound to the pool, outside any
// account lock. Used for reads.
func (s *Store) Repositories() Repositories {
	return newRepositories(s.db)
}

func newRepositories(q dbtx) Repositories {
	return Repositories{
		Ledger:    NewPostgresVersionLedger(q),
		Log:       NewPostgresSyncLogRepository(q),
		Devices:   NewPostgresDeviceRepository(q),
		Conflicts: NewPostgresConflictRepository(q),
	}
}

// WithinAccount serializes fn against every other WithinAccount call for
// the same account. Retryable failures re-run the whole transaction with
// exponential backoff.
func (s *Store) WithinAccount(ctx context.Context, accountID string, fn TxFunc) error {
	log := logger.FromContext(ctx)

	backoff := retry.WithMaxRetries(s.maxRetries, retry.NewExponential(s.baseBackoff))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := s.withinAccount(ctx, accountID, fn)
		if err != nil && s.classifier.Classify(err) == Retryable {
			log.Warn().Err(err).
				Str("func", "Store.WithinAccount").
				Str("account_id", accountID).
				Msg("retrying account transaction")
			return retry.RetryableError(err)
		}
		return err
	})
}

func (s *Store) withinAccount(ctx context.Context, accountID string, fn TxFunc) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBeginningTransaction, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, lockAccount, accountID); err != nil {
		return fmt.Errorf("%w: %w", ErrAcquiringLock, err)
	}

	if err = fn(ctx, newRepositories(tx)); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", ErrCommitingTransaction, err)
	}
	return nil
}

// ReadSnapshot runs fn with repositories bound to a read-only REPEATABLE
// READ transaction, so every read in fn sees the same committed state. It
// takes no account lock.
func (s *Store) ReadSnapshot(ctx context.Context, fn TxFunc) (err error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBeginningTransaction, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(ctx, newRepositories(tx)); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", ErrCommitingTransaction, err)
	}
	return nil
}
