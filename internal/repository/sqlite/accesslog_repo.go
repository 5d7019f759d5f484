package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/prn-tf/keygate/internal/domain"
	"github.com/prn-tf/keygate/internal/repository"
)

// accessLogRepository implements repository.AccessLogRepository for SQLite.
type accessLogRepository struct {
	db *DB
}

// NewAccessLogRepository creates a new SQLite access log repository.
func NewAccessLogRepository(db *DB) repository.AccessLogRepository {
	return &accessLogRepository{db: db}
}

// Append writes a new audit row.
func (r *accessLogRepository) Append(ctx context.Context, entry *domain.AccessLog) error {
	query := `
		INSERT INTO access_logs (username, hwid, action, ip_address, user_agent, created_date)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		nullString(entry.Username),
		entry.HWID,
		entry.Action,
		entry.IPAddress,
		entry.UserAgent,
		formatTime(entry.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to append access log: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	entry.ID = id

	return nil
}

// List returns audit rows, newest first.
func (r *accessLogRepository) List(ctx context.Context, opts repository.ListOptions) (*repository.ListResult[domain.AccessLog], error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM access_logs`).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count access logs: %w", err)
	}

	query := `
		SELECT id, username, hwid, action, ip_address, user_agent, created_date
		FROM access_logs
		ORDER BY id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := r.db.QueryContext(ctx, query, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list access logs: %w", err)
	}
	defer rows.Close()

	var entries []*domain.AccessLog
	for rows.Next() {
		entry := &domain.AccessLog{}
		var username, ipAddress, userAgent, createdAt sql.NullString

		err := rows.Scan(
			&entry.ID,
			&username,
			&entry.HWID,
			&entry.Action,
			&ipAddress,
			&userAgent,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan access log: %w", err)
		}

		entry.Username = scanNullString(username)
		entry.IPAddress = ipAddress.String
		entry.UserAgent = userAgent.String
		entry.CreatedAt = parseTime(createdAt.String)

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
