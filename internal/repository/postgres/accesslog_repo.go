package postgres

import (
	"context"
	"fmt"

	"github.com/prn-tf/keygate/internal/domain"
	"github.com/prn-tf/keygate/internal/repository"
)

// accessLogRepository implements repository.AccessLogRepository.
type accessLogRepository struct {
	db *DB
}

// NewAccessLogRepository creates a new PostgreSQL access log repository.
func NewAccessLogRepository(db *DB) repository.AccessLogRepository {
	return &accessLogRepository{db: db}
}

// Append writes a new audit row.
func (r *accessLogRepository) Append(ctx context.Context, entry *domain.AccessLog) error {
	query := `
		INSERT INTO access_logs (username, hwid, action, ip_address, user_agent, created_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	err := r.db.Pool.QueryRow(ctx, query,
		entry.Username,
		entry.HWID,
		string(entry.Action),
		entry.IPAddress,
		entry.UserAgent,
		entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("failed to append access log: %w", err)
	}

	return nil
}

// List returns audit rows, newest first.
func (r *accessLogRepository) List(ctx context.Context, opts repository.ListOptions) (*repository.ListResult[domain.AccessLog], error) {
	var total int64
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM access_logs`).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count access logs: %w", err)
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, username, hwid, action, COALESCE(ip_address, ''), COALESCE(user_agent, ''), created_date
		FROM access_logs
		ORDER BY id DESC
		LIMIT $1 OFFSET $2
	`, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list access logs: %w", err)
	}
	defer rows.Close()

	var entries []*domain.AccessLog
	for rows.Next() {
		entry := &domain.AccessLog{}
		var action string

		err := rows.Scan(
			&entry.ID,
			&entry.Username,
			&entry.HWID,
			&action,
			&entry.IPAddress,
			&entry.UserAgent,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan access log: %w", err)
		}

		entry.Action = domain.AccessAction(action)
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating access logs: %w", err)
	}

	return &repository.ListResult[domain.AccessLog]{
		Items:  entries,
		Total:  total,
		Offset: opts.Offset,
		Limit:  opts.Limit,
	}, nil
}

// Ensure accessLogRepository implements repository.AccessLogRepository.
var _ repository.AccessLogRepository = (*accessLogRepository)(nil)
