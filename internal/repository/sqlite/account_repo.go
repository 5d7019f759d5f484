package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/prn-tf/keygate/internal/domain"
	"github.com/prn-tf/keygate/internal/repository"
)

// accountRepository implements repository.AccountRepository for SQLite.
type accountRepository struct {
	db *DB
}

// NewAccountRepository creates a new SQLite account repository.
func NewAccountRepository(db *DB) repository.AccountRepository {
	return &accountRepository{db: db}
}

// Create creates a new account.
func (r *accountRepository) Create(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (username, password, hwid, activation_key, created_date, is_active)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		account.Username,
		account.PasswordHash,
		account.HWID,
		account.ActivationKey,
		formatTime(account.CreatedAt),
		boolToInt(account.IsActive),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: username '%s'", domain.ErrAccountAlreadyExists, account.Username)
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	account.ID = id

	return nil
}

// GetByUsername retrieves an account by username.
func (r *accountRepository) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	query := `
		SELECT id, username, password, hwid, activation_key, created_date, last_login, is_active
		FROM accounts
		WHERE username = ?
	`

	account := &domain.Account{}
	var createdAt, lastLogin sql.NullString
	var isActive sql.NullInt64

	err := r.db.QueryRowContext(ctx, query, username).Scan(
		&account.ID,
		&account.Username,
		&account.PasswordHash,
		&account.HWID,
		&account.ActivationKey,
		&createdAt,
		&lastLogin,
		&isActive,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account by username: %w", err)
	}

	account.CreatedAt = parseTime(createdAt.String)
	account.LastLoginAt = parseNullTime(lastLogin)
	account.IsActive = !isActive.Valid || isActive.Int64 != 0

	return account, nil
}

// ExistsByUsername checks if an account with the given username exists.
func (r *accountRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts WHERE username = ?`, username).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check username existence: %w", err)
	}
	return count > 0, nil
}

// Count returns the total number of accounts.
func (r *accountRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count accounts: %w", err)
	}
	return count, nil
}

// Ensure accountRepository implements repository.AccountRepository.
var _ repository.AccountRepository = (*accountRepository)(nil)
