package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/prn-tf/keygate/internal/domain"
	"github.com/prn-tf/keygate/internal/lock"
	"github.com/prn-tf/keygate/internal/pkg/crypto"
	"github.com/prn-tf/keygate/internal/repository"
)

// maxUniqueKeyAttempts bounds the regenerate-on-collision loop.
const maxUniqueKeyAttempts = 32

// keyGroups is the number of random groups after the prefix.
const keyGroups = 3

// KeyServiceConfig holds key policy settings.
type KeyServiceConfig struct {
	// DefaultPrefix is used when GenerateKeysInput.Prefix is nil.
	DefaultPrefix string

	// LockTTL bounds how long one generation batch may hold the lock.
	LockTTL time.Duration
}

// KeyService handles activation key generation and binding.
type KeyService struct {
	keyRepo  repository.KeyRepository
	audit    *AuditService
	locker   lock.Locker
	validate *validator.Validate
	config   KeyServiceConfig
	logger   zerolog.Logger
}

// NewKeyService creates a new KeyService.
func NewKeyService(
	keyRepo repository.KeyRepository,
	audit *AuditService,
	locker lock.Locker,
	config KeyServiceConfig,
	logger zerolog.Logger,
) *KeyService {
	if config.DefaultPrefix == "" {
		config.DefaultPrefix = domain.DefaultKeyPrefix
	}
	if config.LockTTL <= 0 {
		config.LockTTL = 30 * time.Second
	}

	return &KeyService{
		keyRepo:  keyRepo,
		audit:    audit,
		locker:   locker,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		config:   config,
		logger:   logger.With().Str("service", "key").Logger(),
	}
}

// ValidateKeyInput contains the data needed to validate a key.
type ValidateKeyInput struct {
	Key     string
	Machine domain.MachineIdentity
	Client  domain.ClientInfo
}

// ValidateKeyOutput contains the result of a successful validation.
type ValidateKeyOutput struct {
	// HWID is the identity derived from the machine components.
	HWID string

	// State is BindingBound for a fresh binding and
	// BindingAlreadyHere when the key was bound to HWID before.
	State domain.BindingState
}

// Validate evaluates a key against the caller's machine and binds it on
// first use. An audit row is written before any lookup, for every call.
func (s *KeyService) Validate(ctx context.Context, input ValidateKeyInput) (*ValidateKeyOutput, error) {
	hwid := input.Machine.HWID()

	s.audit.Record(ctx, domain.NewAnonymousAccessLog(hwid, domain.AccessActionKeyValidation, input.Client))

	if strings.TrimSpace(input.Key) == "" {
		return nil, ErrKeyInvalid
	}

	state, err := s.keyRepo.Bind(ctx, input.Key, hwid, time.Now().UTC())
	if err != nil {
		if errors.Is(err, domain.ErrKeyMarkFailed) {
			s.logger.Error().Err(err).Str("key", input.Key).Str("hwid", hwid).Msg("failed to mark key as used")
			return nil, ErrKeyMarkFailed
		}
		s.logger.Error().Err(err).Str("key", input.Key).Msg("failed to look up key")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	switch state {
	case domain.BindingAlreadyHere:
		s.logger.Debug().Str("key", input.Key).Str("hwid", hwid).Msg("key already bound to this machine")
		return &ValidateKeyOutput{HWID: hwid, State: state}, nil

	case domain.BindingBound:
		s.logger.Info().Str("key", input.Key).Str("hwid", hwid).Msg("key bound")
		return &ValidateKeyOutput{HWID: hwid, State: state}, nil

	case domain.BindingElsewhere:
		s.logger.Info().Str("key", input.Key).Str("hwid", hwid).Msg("key already bound to another machine")
		return nil, ErrKeyUsedElsewhere

	default:
		return nil, ErrKeyInvalid
	}
}

// GenerateKeysInput contains the data needed to generate a key batch.
type GenerateKeysInput struct {
	// Count is the number of keys requested.
	Count int `validate:"min=1,max=100"`

	// Prefix overrides the configured default when non-nil.
	// An explicit empty prefix is kept as-is.
	Prefix *string
}

// GenerateKeysOutput contains the result of generating keys.
type GenerateKeysOutput struct {
	// Keys holds the inserted values in generation order.
	Keys []string

	// Skipped is the number of candidates whose insert failed.
	Skipped int
}

// Generate creates and stores a batch of unused keys.
// Candidates whose insert fails are skipped; only an empty batch is an error.
// Batches are serialised across the locker's scope so the uniqueness check
// and the insert of one batch never interleave with another batch.
func (s *KeyService) Generate(ctx context.Context, input GenerateKeysInput) (*GenerateKeysOutput, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, ErrInvalidKeyCount
	}

	prefix := s.config.DefaultPrefix
	if input.Prefix != nil {
		prefix = *input.Prefix
	}

	output := &GenerateKeysOutput{Keys: make([]string, 0, input.Count)}

	err := lock.WithLock(ctx, s.locker, lock.Keys.KeyGeneration(), s.config.LockTTL, func(ctx context.Context) error {
		for i := 0; i < input.Count; i++ {
			value, err := s.uniqueKeyValue(ctx, prefix)
			if err != nil {
				return err
			}

			if err := s.keyRepo.Create(ctx, domain.NewKey(value)); err != nil {
				s.logger.Warn().Err(err).Str("key", value).Msg("failed to insert generated key, skipping")
				output.Skipped++
				continue
			}

			output.Keys = append(output.Keys, value)
		}
		return nil
	})
	if err != nil {
		s.logger.Error().Err(err).Int("count", input.Count).Str("prefix", prefix).Msg("failed to generate keys")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	if len(output.Keys) == 0 {
		return nil, ErrNoKeysGenerated
	}

	s.logger.Info().
		Int("requested", input.Count).
		Int("generated", len(output.Keys)).
		Int("skipped", output.Skipped).
		Str("prefix", prefix).
		Msg("keys generated")

	return output, nil
}

// uniqueKeyValue draws candidates until one is not already stored.
func (s *KeyService) uniqueKeyValue(ctx context.Context, prefix string) (string, error) {
	for attempt := 0; attempt < maxUniqueKeyAttempts; attempt++ {
		groups, err := crypto.GenerateKeyGroups(keyGroups, domain.KeyGroupLength)
		if err != nil {
			return "", err
		}
		value := domain.FormatKey(prefix, groups...)

		exists, err := s.keyRepo.ExistsByValue(ctx, value)
		if err != nil {
			return "", err
		}
		if !exists {
			return value, nil
		}
	}
	return "", fmt.Errorf("no unused key value after %d attempts", maxUniqueKeyAttempts)
}

// ListKeysInput contains the filters for listing keys.
type ListKeysInput struct {
	Status domain.KeyStatus
	Limit  int
	Offset int
}

// List returns stored keys, newest first.
func (s *KeyService) List(ctx context.Context, input ListKeysInput) (*repository.ListResult[domain.Key], error) {
	switch input.Status {
	case "", domain.KeyStatusUsed, domain.KeyStatusUnused:
	default:
		return nil, fmt.Errorf("invalid key status %q", input.Status)
	}

	if input.Limit <= 0 {
		input.Limit = 100
	}

	result, err := s.keyRepo.List(ctx, repository.KeyListOptions{
		ListOptions: repository.ListOptions{Offset: input.Offset, Limit: input.Limit},
		Status:      input.Status,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list keys")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return result, nil
}
