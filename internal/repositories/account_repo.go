package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/prudhvinik1/syncengine/internal/models"
)

const (
	accountColumns = `id, email, password_hash, created_at, updated_at, deleted_at`

	insertAccount = `INSERT INTO accounts (email, password_hash)
	          VALUES ($1, $2)
	          RETURNING id, created_at, updated_at`

	getAccountByID    = `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 AND deleted_at IS NULL`
	getAccountByEmail = `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1 AND deleted_at IS NULL`
	updateAccount     = `UPDATE accounts SET email = $1, password_hash = $2, updated_at = NOW() WHERE id = $3 AND deleted_at IS NULL`
	deleteAccount     = `UPDATE accounts SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`
)

type PostgresAccountRepository struct {
	q dbtx
}

func NewPostgresAccountRepository(db *sql.DB) *PostgresAccountRepository {
	return &PostgresAccountRepository{q: db}
}

func (r *PostgresAccountRepository) Create(ctx context.Context, account *models.Account) error {
	err := r.q.QueryRowContext(ctx, insertAccount, account.Email, account.PasswordHash).
		Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)
	if _, ok := uniqueViolation(err); ok {
		return ErrEmailExists
	}
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (r *PostgresAccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	return r.get(ctx, getAccountByID, id)
}

func (r *PostgresAccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.get(ctx, getAccountByEmail, email)
}

func (r *PostgresAccountRepository) get(ctx context.Context, query string, arg string) (*models.Account, error) {
	var account models.Account
	err := r.q.QueryRowContext(ctx, query, arg).Scan(
		&account.ID,
		&account.Email,
		&account.PasswordHash,
		&account.CreatedAt,
		&account.UpdatedAt,
		&account.DeletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

func (r *PostgresAccountRepository) Update(ctx context.Context, account *models.Account) error {
	result, err := r.q.ExecContext(ctx, updateAccount, account.Email, account.PasswordHash, account.ID)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	return requireAffected(result)
}

func (r *PostgresAccountRepository) Delete(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, deleteAccount, id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return requireAffected(result)
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
