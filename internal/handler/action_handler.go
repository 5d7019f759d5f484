package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/keygate/internal/domain"
	"github.com/prn-tf/keygate/internal/metrics"
	"github.com/prn-tf/keygate/internal/repository"
	"github.com/prn-tf/keygate/internal/service"
)

// Action names selected with ?action=.
const (
	ActionValidateKey   = "validate_key"
	ActionCreateAccount = "create_account"
	ActionLogin         = "login"
	ActionGenerateKeys  = "generate_keys"
	ActionGetStats      = "get_stats"
)

// ActionHandler serves the single action-dispatch endpoint.
type ActionHandler struct {
	keyService     *service.KeyService
	accountService *service.AccountService
	statsService   *service.StatsService
	db             repository.DatabaseHealth
	metrics        *metrics.Metrics
	adminToken     string
	maxBodySize    int64
	logger         zerolog.Logger
}

// ActionHandlerConfig contains the dependencies of an ActionHandler.
type ActionHandlerConfig struct {
	KeyService     *service.KeyService
	AccountService *service.AccountService
	StatsService   *service.StatsService
	Database       repository.DatabaseHealth
	Metrics        *metrics.Metrics

	// AdminToken guards generate_keys and get_stats when non-empty.
	AdminToken string

	// MaxBodySize caps request bodies; 0 means 1MB.
	MaxBodySize int64

	Logger zerolog.Logger
}

// NewActionHandler creates a new ActionHandler.
func NewActionHandler(cfg ActionHandlerConfig) *ActionHandler {
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = 1 << 20
	}

	return &ActionHandler{
		keyService:     cfg.KeyService,
		accountService: cfg.AccountService,
		statsService:   cfg.StatsService,
		db:             cfg.Database,
		metrics:        cfg.Metrics,
		adminToken:     cfg.AdminToken,
		maxBodySize:    cfg.MaxBodySize,
		logger:         cfg.Logger.With().Str("handler", "action").Logger(),
	}
}

// log returns the request-scoped logger, falling back to the handler's own.
func (h *ActionHandler) log(r *http.Request) *zerolog.Logger {
	if l := zerolog.Ctx(r.Context()); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &h.logger
}

// actionFunc handles one action and returns its status and response.
type actionFunc func(r *http.Request) (int, Response, string)

// ServeHTTP implements http.Handler.
// OPTIONS short-circuits with an empty 200. Otherwise the store is checked
// before any action runs, and an unknown action or method gets
// "Invalid action" with HTTP 200.
func (h *ActionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.db.Health(r.Context()); err != nil {
		h.log(r).Error().Err(err).Msg("database health check failed")
		writeJSON(w, r, http.StatusInternalServerError, failure(msgDatabaseFailed))
		return
	}

	action := r.URL.Query().Get("action")
	fn := h.route(action, r.Method)
	if fn == nil {
		writeJSON(w, r, http.StatusOK, failure(msgInvalidAction))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	start := time.Now()
	status, resp, outcome := fn(r)
	h.metrics.ObserveAction(action, outcome, time.Since(start))

	writeJSON(w, r, status, resp)
}

// route picks the handler for action and method, or nil.
func (h *ActionHandler) route(action, method string) actionFunc {
	switch {
	case action == ActionValidateKey && method == http.MethodPost:
		return h.validateKey
	case action == ActionCreateAccount && method == http.MethodPost:
		return h.createAccount
	case action == ActionLogin && method == http.MethodPost:
		return h.login
	case action == ActionGenerateKeys && method == http.MethodPost:
		return h.admin(h.generateKeys)
	case action == ActionGetStats && method == http.MethodGet:
		return h.admin(h.getStats)
	default:
		return nil
	}
}

// admin wraps fn with the bearer token check.
func (h *ActionHandler) admin(fn actionFunc) actionFunc {
	return func(r *http.Request) (int, Response, string) {
		if !adminAuthorized(r, h.adminToken) {
			h.log(r).Warn().Msg("rejected administrative action without valid token")
			return http.StatusUnauthorized, failure(msgUnauthorized), metrics.OutcomeFailure
		}
		return fn(r)
	}
}

func (h *ActionHandler) validateKey(r *http.Request) (int, Response, string) {
	var req validateKeyRequest
	decodeBody(r, &req)

	out, err := h.keyService.Validate(r.Context(), service.ValidateKeyInput{
		Key:     string(req.Key),
		Machine: req.machine(),
		Client:  clientInfo(r),
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrKeyUsedElsewhere):
			return http.StatusOK, failure(msgKeyElsewhere), metrics.OutcomeFailure
		case errors.Is(err, service.ErrKeyMarkFailed):
			return http.StatusOK, failure(msgKeyMarkFailed), metrics.OutcomeError
		case errors.Is(err, service.ErrInternalError):
			return http.StatusOK, failure(msgKeyInvalid), metrics.OutcomeError
		default:
			return http.StatusOK, failure(msgKeyInvalid), metrics.OutcomeFailure
		}
	}

	message := msgKeyValidated
	if out.State == domain.BindingAlreadyHere {
		message = msgKeyAlreadyHere
	}
	return http.StatusOK, Response{Success: true, Message: message, HWID: out.HWID}, metrics.OutcomeSuccess
}

func (h *ActionHandler) createAccount(r *http.Request) (int, Response, string) {
	var req createAccountRequest
	decodeBody(r, &req)

	_, err := h.accountService.Create(r.Context(), service.CreateAccountInput{
		Username: string(req.Username),
		Password: string(req.Password),
		HWID:     string(req.HWID),
		Key:      string(req.Key),
		Client:   clientInfo(r),
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUsernameTooShort):
			return http.StatusOK, failure(msgUsernameTooShort), metrics.OutcomeFailure
		case errors.Is(err, service.ErrPasswordTooShort):
			return http.StatusOK, failure(msgPasswordTooShort), metrics.OutcomeFailure
		case errors.Is(err, service.ErrUsernameTaken):
			return http.StatusOK, failure(msgUsernameTaken), metrics.OutcomeFailure
		case errors.Is(err, service.ErrActivationKeyNotValidated):
			return http.StatusOK, failure(msgKeyNotValidated), metrics.OutcomeFailure
		default:
			return http.StatusOK, failure(msgAccountFailed), metrics.OutcomeError
		}
	}

	return http.StatusOK, Response{Success: true, Message: msgAccountCreated}, metrics.OutcomeSuccess
}

func (h *ActionHandler) login(r *http.Request) (int, Response, string) {
	var req loginRequest
	decodeBody(r, &req)

	_, err := h.accountService.Login(r.Context(), service.LoginInput{
		Username: string(req.Username),
		Password: string(req.Password),
		Machine:  req.machine(),
		Client:   clientInfo(r),
	})
	if err != nil {
		return http.StatusOK, failure(msgLoginFailed), metrics.OutcomeFailure
	}

	return http.StatusOK, Response{Success: true, Message: msgLoginSuccessful}, metrics.OutcomeSuccess
}

func (h *ActionHandler) generateKeys(r *http.Request) (int, Response, string) {
	var req generateKeysRequest
	decodeBody(r, &req)

	count := 1
	if req.Count != nil {
		count = int(*req.Count)
	}

	out, err := h.keyService.Generate(r.Context(), service.GenerateKeysInput{
		Count:  count,
		Prefix: req.prefix(),
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidKeyCount):
			return http.StatusOK, failure(msgInvalidCount), metrics.OutcomeFailure
		case errors.Is(err, service.ErrNoKeysGenerated):
			return http.StatusOK, failure(msgNoKeysGenerated), metrics.OutcomeError
		default:
			return http.StatusOK, failure(msgGenerateError), metrics.OutcomeError
		}
	}

	h.metrics.AddKeysGenerated(len(out.Keys))
	return http.StatusOK, Response{Success: true, Message: msgKeysGenerated, Keys: out.Keys}, metrics.OutcomeSuccess
}

func (h *ActionHandler) getStats(r *http.Request) (int, Response, string) {
	stats, err := h.statsService.Get(r.Context())
	if err != nil {
		return http.StatusOK, failure(msgStatsError), metrics.OutcomeError
	}

	return http.StatusOK, Response{Success: true, Message: msgStatsRetrieved, Stats: stats}, metrics.OutcomeSuccess
}
