package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/prn-tf/keygate/internal/domain"
	"github.com/prn-tf/keygate/internal/repository"
)

const keyColumns = `id, key_value, status, hwid, created_date, used_date`

// keyRepository implements repository.KeyRepository.
type keyRepository struct {
	db *DB
}

// NewKeyRepository creates a new PostgreSQL key repository.
func NewKeyRepository(db *DB) repository.KeyRepository {
	return &keyRepository{db: db}
}

// Create inserts a new key.
func (r *keyRepository) Create(ctx context.Context, key *domain.Key) error {
	query := `
		INSERT INTO keys (key_value, status, hwid, created_date, used_date)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	err := r.db.Pool.QueryRow(ctx, query,
		key.Value,
		string(key.Status),
		key.HWID,
		key.CreatedAt,
		key.UsedAt,
	).Scan(&key.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", domain.ErrKeyAlreadyExists, key.Value)
		}
		return fmt.Errorf("failed to create key: %w", err)
	}

	return nil
}

// GetByValue retrieves a key by its token value.
func (r *keyRepository) GetByValue(ctx context.Context, value string) (*domain.Key, error) {
	return getKey(ctx, r.db.Pool, `SELECT `+keyColumns+` FROM keys WHERE key_value = $1`, value)
}

// ExistsByValue checks if a key with the given value exists.
func (r *keyRepository) ExistsByValue(ctx context.Context, value string) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM keys WHERE key_value = $1)`, value).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check key existence: %w", err)
	}
	return exists, nil
}

// Bind classifies and, when possible, binds the key inside one transaction.
// The row is locked with FOR UPDATE so concurrent binders serialise on it.
func (r *keyRepository) Bind(ctx context.Context, value, hwid string, usedAt time.Time) (domain.BindingState, error) {
	state := domain.BindingNotFound
	updating := false

	err := r.db.WithTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		key, err := getKey(ctx, tx, `SELECT `+keyColumns+` FROM keys WHERE key_value = $1 FOR UPDATE`, value)
		if err != nil && !errors.Is(err, domain.ErrKeyNotFound) {
			return err
		}

		state = domain.ClassifyBinding(key, hwid)
		if state != domain.BindingAvailable {
			return nil
		}

		updating = true
		tag, err := tx.Exec(ctx, `
			UPDATE keys
			SET status = $1, hwid = $2, used_date = $3
			WHERE key_value = $4 AND status = $5
		`, string(domain.KeyStatusUsed), hwid, usedAt, value, string(domain.KeyStatusUnused))
		if err != nil {
			return err
		}
		if tag.RowsAffected() != 1 {
			return fmt.Errorf("conditional update affected %d rows", tag.RowsAffected())
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
	var total int64
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM keys WHERE ($1 = '' OR status = $1)`,
		string(opts.Status),
	).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("failed to count keys: %w", err)
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+keyColumns+`
		FROM keys
		WHERE ($1 = '' OR status = $1)
		ORDER BY id DESC
		LIMIT $2 OFFSET $3
	`, string(opts.Status), opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var keys []*domain.Key
	for rows.Next() {
		key, err := scanKey(rows)
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
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM keys`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count keys: %w", err)
	}
	return count, nil
}

// CountByStatus returns the number of keys in the given status.
func (r *keyRepository) CountByStatus(ctx context.Context, status domain.KeyStatus) (int64, error) {
	var count int64
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM keys WHERE status = $1`, string(status)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s keys: %w", status, err)
	}
	return count, nil
}

// getKey runs a single-row key query on q.
func getKey(ctx context.Context, q Querier, query string, args ...any) (*domain.Key, error) {
	key, err := scanKey(q.QueryRow(ctx, query, args...))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to get key: %w", err)
	}
	return key, nil
}

func scanKey(row pgx.Row) (*domain.Key, error) {
	key := &domain.Key{}
	var status string

	if err := row.Scan(
		&key.ID,
		&key.Value,
		&status,
		&key.HWID,
		&key.CreatedAt,
		&key.UsedAt,
	); err != nil {
		return nil, err
	}

	key.Status = domain.KeyStatus(status)
	return key, nil
}

// Ensure keyRepository implements repository.KeyRepository.
var _ repository.KeyRepository = (*keyRepository)(nil)
