package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/prn-tf/keygate/internal/domain"
	"github.com/prn-tf/keygate/internal/repository"
)

const keyColumns = `id, key_value, status, hwid, created_date, used_date`

// keyRepository implements repository.KeyRepository for SQLite.
type keyRepository struct {
	db *DB
}

// NewKeyRepository creates a new SQLite key repository.
func NewKeyRepository(db *DB) repository.KeyRepository {
	return &keyRepository{db: db}
}

// Create inserts a new key.
func (r *keyRepository) Create(ctx context.Context, key *domain.Key) error {
	query := `
		INSERT INTO keys (key_value, status, hwid, created_date, used_date)
		VALUES (?, ?, ?, ?, ?)
	`

	var usedAt sql.NullString
	if key.UsedAt != nil {
		usedAt = sql.NullString{String: formatTime(*key.UsedAt), Valid: true}
	}

	result, err := r.db.ExecContext(ctx, query,
		key.Value,
		key.Status,
		nullString(key.HWID),
		formatTime(key.CreatedAt),
		usedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", domain.ErrKeyAlreadyExists, key.Value)
		}
		return fmt.Errorf("failed to create key: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	key.ID = id

	return nil
}

// GetByValue retrieves a key by its token value.
func (r *keyRepository) GetByValue(ctx context.Context, value string) (*domain.Key, error) {
	query := `SELECT ` + keyColumns + ` FROM keys WHERE key_value = ?`
	return scanKey(r.db.QueryRowContext(ctx, query, value))
}

// ExistsByValue checks if a key with the given value exists.
func (r *keyRepository) ExistsByValue(ctx context.Context, value string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM keys WHERE key_value = ?`, value).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check key existence: %w", err)
	}
	return count > 0, nil
}

// Bind classifies and, when possible, binds the key inside one transaction.
func (r *keyRepository) Bind(ctx context.Context, value, hwid string, usedAt time.Time) (domain.BindingState, error) {
	state := domain.BindingNotFound
	updating := false

	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		key, err := scanKey(tx.QueryRowContext(ctx, `SELECT `+keyColumns+` FROM keys WHERE key_value = ?`, value))
		if err != nil && !errors.Is(err, domain.ErrKeyNotFound) {
			return err
		}

		state = domain.ClassifyBinding(key, hwid)
		if state != domain.BindingAvailable {
			return nil
		}

		updating = true
		result, err := tx.ExecContext(ctx, `
			UPDATE keys
			SET status = ?, hwid = ?, used_date = ?
			WHERE key_value = ? AND status = ?
		`, domain.KeyStatusUsed, hwid, formatTime(usedAt), value, domain.KeyStatusUnused)
		if err != nil {
			return err
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rowsAffected != 1 {
			return fmt.Errorf("conditional update affected %d rows", rowsAffected)
		}

		state = domain.BindingBound
		return nil
	})

	if err != nil {
		if updating {
			return domain.BindingNotFound, domain.NewDomainError(domain.ErrKeyMarkFailed, err.Error(), value)
		}
		return domain.BindingNotFound, fmt.Errorf("failed to look up key: %w", err)
	}

	return state, nil
}

// List returns keys, optionally filtered by status, newest first.
func (r *keyRepository) List(ctx context.Context, opts repository.KeyListOptions) (*repository.ListResult[domain.Key], error) {
	where := ""
	var args []interface{}
	if opts.Status != "" {
		where = ` WHERE status = ?`
		args = append(args, opts.Status)
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM keys`+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count keys: %w", err)
	}

	query := `SELECT ` + keyColumns + ` FROM keys` + where + ` ORDER BY id DESC LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, append(args, opts.Limit, opts.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var keys []*domain.Key
	for rows.Next() {
		key, err := scanKeyRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating keys: %w", err)
	}

	return &repository.ListResult[domain.Key]{
		Items:  keys,
		Total:  total,
		Offset: opts.Offset,
		Limit:  opts.Limit,
	}, nil
}

// CountAll returns the total number of keys.
func (r *keyRepository) CountAll(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM keys`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count keys: %w", err)
	}
	return count, nil
}

// CountByStatus returns the number of keys in the given status.
func (r *keyRepository) CountByStatus(ctx context.Context, status domain.KeyStatus) (int64, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM keys WHERE status = ?`, status).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s keys: %w", status, err)
	}
	return count, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanKey scans a single key row.
func scanKey(row *sql.Row) (*domain.Key, error) {
	key, err := scanKeyRow(row)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to scan key: %w", err)
	}
	return key, nil
}

func scanKeyRow(row rowScanner) (*domain.Key, error) {
	key := &domain.Key{}
	var hwid, createdAt, usedAt sql.NullString

	if err := row.Scan(
		&key.ID,
		&key.Value,
		&key.Status,
		&hwid,
		&createdAt,
		&usedAt,
	); err != nil {
		return nil, err
	}

	key.HWID = scanNullString(hwid)
	key.CreatedAt = parseTime(createdAt.String)
	key.UsedAt = parseNullTime(usedAt)

	return key, nil
}

// Ensure keyRepository implements repository.KeyRepository.
var _ repository.KeyRepository = (*keyRepository)(nil)
