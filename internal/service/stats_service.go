package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/prn-tf/keygate/internal/domain"
	"github.com/prn-tf/keygate/internal/repository"
)

// StatsService aggregates key and account counts.
type StatsService struct {
	keyRepo     repository.KeyRepository
	accountRepo repository.AccountRepository
	logger      zerolog.Logger
}

// NewStatsService creates a new StatsService.
func NewStatsService(keyRepo repository.KeyRepository, accountRepo repository.AccountRepository, logger zerolog.Logger) *StatsService {
	return &StatsService{
		keyRepo:     keyRepo,
		accountRepo: accountRepo,
		logger:      logger.With().Str("service", "stats").Logger(),
	}
}

// Get returns the current totals. unused_keys is derived, not counted.
func (s *StatsService) Get(ctx context.Context) (*domain.Stats, error) {
	total, err := s.keyRepo.CountAll(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to count keys")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	used, err := s.keyRepo.CountByStatus(ctx, domain.KeyStatusUsed)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to count used keys")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	accounts, err := s.accountRepo.Count(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to count accounts")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	return domain.NewStats(total, used, accounts), nil
}
