package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/prn-tf/keygate/internal/domain"
	"github.com/prn-tf/keygate/internal/repository"
)

// Default and maximum page sizes for audit listings.
const (
	defaultAuditPageSize = 50
	maxAuditPageSize     = 1000
)

// AuditService appends and lists access log rows.
type AuditService struct {
	accessLogRepo repository.AccessLogRepository
	logger        zerolog.Logger
}

// NewAuditService creates a new AuditService.
func NewAuditService(accessLogRepo repository.AccessLogRepository, logger zerolog.Logger) *AuditService {
	return &AuditService{
		accessLogRepo: accessLogRepo,
		logger:        logger.With().Str("service", "audit").Logger(),
	}
}

// Record appends entry. A failed write is logged and otherwise ignored:
// the audit trail never changes the outcome of the audited action.
func (s *AuditService) Record(ctx context.Context, entry *domain.AccessLog) {
	if err := s.accessLogRepo.Append(ctx, entry); err != nil {
		event := s.logger.Error().
			Err(err).
			Str("action", string(entry.Action)).
			Str("hwid", entry.HWID)
		if entry.Username != nil {
			event = event.Str("username", *entry.Username)
		}
		event.Msg("failed to append access log")
	}
}

// List returns audit rows, newest first.
func (s *AuditService) List(ctx context.Context, opts repository.ListOptions) (*repository.ListResult[domain.AccessLog], error) {
	if opts.Limit <= 0 {
		opts.Limit = defaultAuditPageSize
	}
	if opts.Limit > maxAuditPageSize {
		opts.Limit = maxAuditPageSize
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	result, err := s.accessLogRepo.List(ctx, opts)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list access logs")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return result, nil
}
