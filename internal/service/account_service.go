package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/prn-tf/keygate/internal/domain"
	"github.com/prn-tf/keygate/internal/repository"
)

// bcryptMaxPasswordBytes is the longest input bcrypt hashes. Longer
// passwords are truncated, so only their first 72 bytes count.
const bcryptMaxPasswordBytes = 72

// bcryptPassword returns the bytes of password that bcrypt uses.
func bcryptPassword(password string) []byte {
	b := []byte(password)
	if len(b) > bcryptMaxPasswordBytes {
		b = b[:bcryptMaxPasswordBytes]
	}
	return b
}

// AccountServiceConfig holds account policy settings.
type AccountServiceConfig struct {
	// BcryptCost is the work factor for new password hashes.
	BcryptCost int

	// StrictBinding requires the activation key to be used and bound
	// to the account's hwid.
	StrictBinding bool
}

// AccountService handles account creation and login.
type AccountService struct {
	accountRepo repository.AccountRepository
	keyRepo     repository.KeyRepository
	audit       *AuditService
	config      AccountServiceConfig
	logger      zerolog.Logger
}

// NewAccountService creates a new AccountService.
func NewAccountService(
	accountRepo repository.AccountRepository,
	keyRepo repository.KeyRepository,
	audit *AuditService,
	config AccountServiceConfig,
	logger zerolog.Logger,
) *AccountService {
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}

	return &AccountService{
		accountRepo: accountRepo,
		keyRepo:     keyRepo,
		audit:       audit,
		config:      config,
		logger:      logger.With().Str("service", "account").Logger(),
	}
}

// CreateAccountInput contains the data needed to create an account.
type CreateAccountInput struct {
	Username string
	Password string
	HWID     string
	Key      string
	Client   domain.ClientInfo
}

// Create registers a new account. Checks run in order and the first
// failure wins: username length, password length, username taken,
// activation key present (and, in strict mode, bound to HWID).
func (s *AccountService) Create(ctx context.Context, input CreateAccountInput) (*domain.Account, error) {
	if len(input.Username) < domain.MinUsernameLength {
		return nil, ErrUsernameTooShort
	}
	if len(input.Password) < domain.MinPasswordLength {
		return nil, ErrPasswordTooShort
	}

	exists, err := s.accountRepo.ExistsByUsername(ctx, input.Username)
	if err != nil {
		s.logger.Error().Err(err).Str("username", input.Username).Msg("failed to check username existence")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if exists {
		return nil, ErrUsernameTaken
	}

	if strings.TrimSpace(input.Key) == "" {
		return nil, ErrActivationKeyNotValidated
	}

	if s.config.StrictBinding {
		if err := s.checkKeyBinding(ctx, input.Key, input.HWID); err != nil {
			return nil, err
		}
	}

	passwordHash, err := bcrypt.GenerateFromPassword(bcryptPassword(input.Password), s.config.BcryptCost)
	if err != nil {
		s.logger.Error().Err(err).Str("username", input.Username).Msg("failed to hash password")
		return nil, fmt.Errorf("%w: failed to hash password", ErrInternalError)
	}

	account := domain.NewAccount(input.Username, string(passwordHash), input.HWID, input.Key)
	if err := s.accountRepo.Create(ctx, account); err != nil {
		if errors.Is(err, domain.ErrAccountAlreadyExists) {
			return nil, ErrUsernameTaken
		}
		s.logger.Error().Err(err).Str("username", input.Username).Msg("failed to create account")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.audit.Record(ctx, domain.NewAccessLog(account.Username, account.HWID, domain.AccessActionAccountCreation, input.Client))

	s.logger.Info().
		Int64("account_id", account.ID).
		Str("username", account.Username).
		Str("hwid", account.HWID).
		Msg("account created")

	return account, nil
}

// checkKeyBinding requires key to be used and bound to hwid.
func (s *AccountService) checkKeyBinding(ctx context.Context, value, hwid string) error {
	key, err := s.keyRepo.GetByValue(ctx, value)
	if err != nil {
		if errors.Is(err, domain.ErrKeyNotFound) {
			return ErrActivationKeyNotValidated
		}
		s.logger.Error().Err(err).Str("key", value).Msg("failed to look up activation key")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	if !key.IsUsed() || !key.BoundTo(hwid) {
		s.logger.Debug().Str("key", value).Str("hwid", hwid).Msg("activation key not bound to this machine")
		return ErrActivationKeyNotValidated
	}
	return nil
}

// LoginInput contains the data needed to log in.
type LoginInput struct {
	Username string
	Password string
	Machine  domain.MachineIdentity
	Client   domain.ClientInfo
}

// Login verifies the password and the derived hwid. Exactly one audit row
// is written per call: login on success, failed_login otherwise.
func (s *AccountService) Login(ctx context.Context, input LoginInput) (*domain.Account, error) {
	hwid := input.Machine.HWID()

	account, err := s.authenticate(ctx, input.Username, input.Password, hwid)
	if err != nil {
		s.audit.Record(ctx, domain.NewAccessLog(input.Username, hwid, domain.AccessActionFailedLogin, input.Client))
		return nil, err
	}

	s.audit.Record(ctx, domain.NewAccessLog(input.Username, hwid, domain.AccessActionLogin, input.Client))

	s.logger.Info().
		Int64("account_id", account.ID).
		Str("username", account.Username).
		Msg("account logged in")

	return account, nil
}

// authenticate collapses every failure into ErrInvalidCredentials so the
// caller cannot tell which check failed.
func (s *AccountService) authenticate(ctx context.Context, username, password, hwid string) (*domain.Account, error) {
	account, err := s.accountRepo.GetByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, domain.ErrAccountNotFound) {
			s.logger.Error().Err(err).Str("username", username).Msg("failed to look up account")
		} else {
			s.logger.Debug().Str("username", username).Msg("account not found during login")
		}
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), bcryptPassword(password)); err != nil {
		s.logger.Debug().Str("username", username).Msg("invalid password during login")
		return nil, ErrInvalidCredentials
	}

	if !account.MatchesHWID(hwid) {
		s.logger.Info().Str("username", username).Str("hwid", hwid).Msg("login from unbound machine")
		return nil, ErrInvalidCredentials
	}

	return account, nil
}
